package features

import (
	"fmt"
)

// Table is the flattened, ignore-filtered collection of (feature vector,
// label) rows. Rows are stored contiguously; row i occupies
// features[i*dim : (i+1)*dim].
type Table struct {
	features []float32
	labels   []int32
	dim      int
}

// NewTable wraps pre-built row storage. len(features) must equal
// len(labels)*dim.
func NewTable(features []float32, labels []int32, dim int) (*Table, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("feature dim must be positive, got %d", dim)
	}
	if len(features) != len(labels)*dim {
		return nil, fmt.Errorf("feature storage mismatch: %d floats for %d rows of dim %d",
			len(features), len(labels), dim)
	}
	return &Table{features: features, labels: labels, dim: dim}, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.labels)
}

// Dim returns the feature vector length.
func (t *Table) Dim() int {
	return t.dim
}

// Row returns a view of row idx's feature vector and its label. The slice
// aliases the table storage and must not be mutated.
func (t *Table) Row(idx int) ([]float32, int32) {
	return t.features[idx*t.dim : (idx+1)*t.dim], t.labels[idx]
}

// Labels returns the aligned label vector.
func (t *Table) Labels() []int32 {
	return t.labels
}
