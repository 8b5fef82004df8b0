package tensor

import (
	"math"
	"math/rand"
	"testing"
)

func TestNewTensor(t *testing.T) {
	t.Run("valid float32", func(t *testing.T) {
		tn, err := NewTensor([]int{2, 3}, Float32, []float32{1, 2, 3, 4, 5, 6})
		if err != nil {
			t.Fatalf("NewTensor failed: %v", err)
		}
		if tn.NumElems != 6 {
			t.Errorf("expected 6 elements, got %d", tn.NumElems)
		}
		if tn.Strides[0] != 3 || tn.Strides[1] != 1 {
			t.Errorf("expected strides [3 1], got %v", tn.Strides)
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		if _, err := NewTensor([]int{2, 3}, Float32, []float32{1, 2}); err == nil {
			t.Error("expected error for mismatched data length")
		}
	})

	t.Run("dtype mismatch", func(t *testing.T) {
		if _, err := NewTensor([]int{2}, Float32, []int32{1, 2}); err == nil {
			t.Error("expected error for wrong data slice type")
		}
	})

	t.Run("invalid shape", func(t *testing.T) {
		if _, err := NewTensor([]int{2, 0}, Float32, []float32{}); err == nil {
			t.Error("expected error for zero dimension")
		}
	})
}

func TestZeros(t *testing.T) {
	tn, err := Zeros([]int{3, 2}, Int32)
	if err != nil {
		t.Fatalf("Zeros failed: %v", err)
	}
	data, err := tn.Int32Data()
	if err != nil {
		t.Fatalf("Int32Data failed: %v", err)
	}
	for i, v := range data {
		if v != 0 {
			t.Errorf("element %d: expected 0, got %d", i, v)
		}
	}
}

func TestRandomNormalDeterminism(t *testing.T) {
	a, err := RandomNormal([]int{4, 4}, 0, 1, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("RandomNormal failed: %v", err)
	}
	b, err := RandomNormal([]int{4, 4}, 0, 1, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("RandomNormal failed: %v", err)
	}

	aData := a.Data.([]float32)
	bData := b.Data.([]float32)
	for i := range aData {
		if aData[i] != bData[i] {
			t.Fatalf("element %d differs: %f vs %f", i, aData[i], bData[i])
		}
	}
}

func TestMatMul(t *testing.T) {
	t.Run("known product", func(t *testing.T) {
		// [1 2; 3 4] x [5 6; 7 8] = [19 22; 43 50]
		a, _ := NewTensor([]int{2, 2}, Float32, []float32{1, 2, 3, 4})
		b, _ := NewTensor([]int{2, 2}, Float32, []float32{5, 6, 7, 8})

		c, err := MatMul(a, b)
		if err != nil {
			t.Fatalf("MatMul failed: %v", err)
		}

		expected := []float32{19, 22, 43, 50}
		data := c.Data.([]float32)
		for i, want := range expected {
			if data[i] != want {
				t.Errorf("element %d: expected %f, got %f", i, want, data[i])
			}
		}
	})

	t.Run("rectangular", func(t *testing.T) {
		a, _ := NewTensor([]int{1, 3}, Float32, []float32{1, 2, 3})
		b, _ := NewTensor([]int{3, 2}, Float32, []float32{1, 0, 0, 1, 1, 1})

		c, err := MatMul(a, b)
		if err != nil {
			t.Fatalf("MatMul failed: %v", err)
		}
		if c.Shape[0] != 1 || c.Shape[1] != 2 {
			t.Fatalf("expected shape [1 2], got %v", c.Shape)
		}

		data := c.Data.([]float32)
		if data[0] != 4 || data[1] != 5 {
			t.Errorf("expected [4 5], got %v", data)
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		a, _ := NewTensor([]int{2, 3}, Float32, make([]float32, 6))
		b, _ := NewTensor([]int{2, 2}, Float32, make([]float32, 4))
		if _, err := MatMul(a, b); err == nil {
			t.Error("expected inner dimension error")
		}
	})
}

func TestTranspose(t *testing.T) {
	a, _ := NewTensor([]int{2, 3}, Float32, []float32{1, 2, 3, 4, 5, 6})
	at, err := Transpose(a)
	if err != nil {
		t.Fatalf("Transpose failed: %v", err)
	}
	if at.Shape[0] != 3 || at.Shape[1] != 2 {
		t.Fatalf("expected shape [3 2], got %v", at.Shape)
	}

	expected := []float32{1, 4, 2, 5, 3, 6}
	data := at.Data.([]float32)
	for i, want := range expected {
		if data[i] != want {
			t.Errorf("element %d: expected %f, got %f", i, want, data[i])
		}
	}
}

func TestArgMaxRows(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		a, _ := NewTensor([]int{2, 3}, Float32, []float32{0.1, 0.7, 0.2, 0.9, 0.05, 0.05})
		idx, err := ArgMaxRows(a)
		if err != nil {
			t.Fatalf("ArgMaxRows failed: %v", err)
		}
		if idx[0] != 1 || idx[1] != 0 {
			t.Errorf("expected [1 0], got %v", idx)
		}
	})

	t.Run("ties resolve low", func(t *testing.T) {
		a, _ := NewTensor([]int{1, 3}, Float32, []float32{0.5, 0.5, 0.5})
		idx, err := ArgMaxRows(a)
		if err != nil {
			t.Fatalf("ArgMaxRows failed: %v", err)
		}
		if idx[0] != 0 {
			t.Errorf("expected tie to resolve to index 0, got %d", idx[0])
		}
	})
}

func TestElementWise(t *testing.T) {
	a, _ := NewTensor([]int{2, 2}, Float32, []float32{1, -2, 3, -4})
	b, _ := NewTensor([]int{2, 2}, Float32, []float32{1, 1, 1, 1})

	t.Run("add", func(t *testing.T) {
		c, err := Add(a, b)
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		expected := []float32{2, -1, 4, -3}
		data := c.Data.([]float32)
		for i, want := range expected {
			if data[i] != want {
				t.Errorf("element %d: expected %f, got %f", i, want, data[i])
			}
		}
	})

	t.Run("relu", func(t *testing.T) {
		c, err := ReLU(a)
		if err != nil {
			t.Fatalf("ReLU failed: %v", err)
		}
		expected := []float32{1, 0, 3, 0}
		data := c.Data.([]float32)
		for i, want := range expected {
			if data[i] != want {
				t.Errorf("element %d: expected %f, got %f", i, want, data[i])
			}
		}
	})

	t.Run("scale", func(t *testing.T) {
		c, err := Scale(a, 2)
		if err != nil {
			t.Fatalf("Scale failed: %v", err)
		}
		data := c.Data.([]float32)
		if data[0] != 2 || data[3] != -8 {
			t.Errorf("unexpected scaled values: %v", data)
		}
	})

	t.Run("shape mismatch", func(t *testing.T) {
		c, _ := NewTensor([]int{4}, Float32, []float32{1, 1, 1, 1})
		if _, err := Add(a, c); err == nil {
			t.Error("expected shape mismatch error")
		}
	})
}

func TestSqrt(t *testing.T) {
	a, _ := NewTensor([]int{3}, Float32, []float32{4, 9, 2})
	c, err := Sqrt(a)
	if err != nil {
		t.Fatalf("Sqrt failed: %v", err)
	}
	data := c.Data.([]float32)
	if data[0] != 2 || data[1] != 3 {
		t.Errorf("unexpected roots: %v", data)
	}
	if math.Abs(float64(data[2])-math.Sqrt2) > 1e-6 {
		t.Errorf("expected sqrt(2), got %f", data[2])
	}

	neg, _ := NewTensor([]int{1}, Float32, []float32{-1})
	if _, err := Sqrt(neg); err == nil {
		t.Error("expected error for negative input")
	}
}

func TestReshapeAndClone(t *testing.T) {
	a, _ := NewTensor([]int{2, 3}, Float32, []float32{1, 2, 3, 4, 5, 6})

	r, err := a.Reshape([]int{3, 2})
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if r.Shape[0] != 3 || r.Shape[1] != 2 {
		t.Errorf("expected shape [3 2], got %v", r.Shape)
	}
	if _, err := a.Reshape([]int{5}); err == nil {
		t.Error("expected error for element count mismatch")
	}

	c, err := a.Clone()
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	c.Data.([]float32)[0] = 99
	if a.Data.([]float32)[0] != 1 {
		t.Error("clone shares storage with original")
	}
}
