package tensor

import (
	"fmt"
	"math/rand"
)

// NewTensor creates a tensor with the given shape and backing data. The
// data slice must match the dtype and hold exactly the number of elements
// the shape implies.
func NewTensor(shape []int, dtype DType, data interface{}) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	t := &Tensor{
		Shape:    append([]int(nil), shape...),
		Strides:  calculateStrides(shape),
		DType:    dtype,
		NumElems: calculateNumElements(shape),
	}

	if err := t.setData(data); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tensor) setData(data interface{}) error {
	switch t.DType {
	case Float32:
		d, ok := data.([]float32)
		if !ok {
			return fmt.Errorf("data type mismatch: expected []float32 for %s tensor", t.DType)
		}
		if len(d) != t.NumElems {
			return fmt.Errorf("data length mismatch: expected %d elements, got %d", t.NumElems, len(d))
		}
		t.Data = d
	case Int32:
		d, ok := data.([]int32)
		if !ok {
			return fmt.Errorf("data type mismatch: expected []int32 for %s tensor", t.DType)
		}
		if len(d) != t.NumElems {
			return fmt.Errorf("data length mismatch: expected %d elements, got %d", t.NumElems, len(d))
		}
		t.Data = d
	default:
		return fmt.Errorf("unsupported dtype: %s", t.DType)
	}
	return nil
}

// Zeros creates a zero-initialized tensor.
func Zeros(shape []int, dtype DType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	n := calculateNumElements(shape)
	switch dtype {
	case Float32:
		return NewTensor(shape, dtype, make([]float32, n))
	case Int32:
		return NewTensor(shape, dtype, make([]int32, n))
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}
}

// RandomNormal creates a Float32 tensor drawn from N(mean, std^2) using the
// supplied source, so callers control determinism.
func RandomNormal(shape []int, mean, std float32, rng *rand.Rand) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	n := calculateNumElements(shape)
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(rng.NormFloat64())*std + mean
	}
	return NewTensor(shape, Float32, data)
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() (*Tensor, error) {
	switch t.DType {
	case Float32:
		src := t.Data.([]float32)
		dst := make([]float32, len(src))
		copy(dst, src)
		return NewTensor(t.Shape, t.DType, dst)
	case Int32:
		src := t.Data.([]int32)
		dst := make([]int32, len(src))
		copy(dst, src)
		return NewTensor(t.Shape, t.DType, dst)
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", t.DType)
	}
}

// Float32Data returns the backing float32 slice.
func (t *Tensor) Float32Data() ([]float32, error) {
	d, ok := t.Data.([]float32)
	if !ok {
		return nil, fmt.Errorf("tensor is not Float32, got %s", t.DType)
	}
	return d, nil
}

// Int32Data returns the backing int32 slice.
func (t *Tensor) Int32Data() ([]int32, error) {
	d, ok := t.Data.([]int32)
	if !ok {
		return nil, fmt.Errorf("tensor is not Int32, got %s", t.DType)
	}
	return d, nil
}
