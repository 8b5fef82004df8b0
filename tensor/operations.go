package tensor

import (
	"fmt"
	"math"
)

func checkCompatibility(t1, t2 *Tensor) error {
	if t1.DType != t2.DType {
		return fmt.Errorf("dtype mismatch: %s vs %s", t1.DType, t2.DType)
	}
	if !shapesEqual(t1.Shape, t2.Shape) {
		return fmt.Errorf("shape mismatch: %v vs %v", t1.Shape, t2.Shape)
	}
	return nil
}

// Add performs element-wise addition of two same-shaped tensors.
func Add(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}

	switch t1.DType {
	case Float32:
		a := t1.Data.([]float32)
		b := t2.Data.([]float32)
		out := make([]float32, len(a))
		for i := range a {
			out[i] = a[i] + b[i]
		}
		return NewTensor(t1.Shape, t1.DType, out)
	case Int32:
		a := t1.Data.([]int32)
		b := t2.Data.([]int32)
		out := make([]int32, len(a))
		for i := range a {
			out[i] = a[i] + b[i]
		}
		return NewTensor(t1.Shape, t1.DType, out)
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", t1.DType)
	}
}

// Sub performs element-wise subtraction of two same-shaped tensors.
func Sub(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}

	switch t1.DType {
	case Float32:
		a := t1.Data.([]float32)
		b := t2.Data.([]float32)
		out := make([]float32, len(a))
		for i := range a {
			out[i] = a[i] - b[i]
		}
		return NewTensor(t1.Shape, t1.DType, out)
	case Int32:
		a := t1.Data.([]int32)
		b := t2.Data.([]int32)
		out := make([]int32, len(a))
		for i := range a {
			out[i] = a[i] - b[i]
		}
		return NewTensor(t1.Shape, t1.DType, out)
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", t1.DType)
	}
}

// Mul performs element-wise multiplication of two same-shaped tensors.
func Mul(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}

	switch t1.DType {
	case Float32:
		a := t1.Data.([]float32)
		b := t2.Data.([]float32)
		out := make([]float32, len(a))
		for i := range a {
			out[i] = a[i] * b[i]
		}
		return NewTensor(t1.Shape, t1.DType, out)
	case Int32:
		a := t1.Data.([]int32)
		b := t2.Data.([]int32)
		out := make([]int32, len(a))
		for i := range a {
			out[i] = a[i] * b[i]
		}
		return NewTensor(t1.Shape, t1.DType, out)
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", t1.DType)
	}
}

// Scale multiplies every element of a Float32 tensor by a scalar.
func Scale(t *Tensor, s float32) (*Tensor, error) {
	data, err := t.Float32Data()
	if err != nil {
		return nil, err
	}

	out := make([]float32, len(data))
	for i := range data {
		out[i] = data[i] * s
	}
	return NewTensor(t.Shape, Float32, out)
}

// ReLU applies max(0, x) element-wise to a Float32 tensor.
func ReLU(t *Tensor) (*Tensor, error) {
	data, err := t.Float32Data()
	if err != nil {
		return nil, err
	}

	out := make([]float32, len(data))
	for i, v := range data {
		if v > 0 {
			out[i] = v
		}
	}
	return NewTensor(t.Shape, Float32, out)
}

// Sqrt applies the element-wise square root to a Float32 tensor.
func Sqrt(t *Tensor) (*Tensor, error) {
	data, err := t.Float32Data()
	if err != nil {
		return nil, err
	}

	out := make([]float32, len(data))
	for i, v := range data {
		if v < 0 {
			return nil, fmt.Errorf("sqrt of negative value %f at index %d", v, i)
		}
		out[i] = float32(math.Sqrt(float64(v)))
	}
	return NewTensor(t.Shape, Float32, out)
}
