// Package training implements mini-batch optimization of a pixel
// classifier over a materialized feature table: batching, cross-entropy
// loss, the Adam optimizer and plateau-based early stopping.
package training

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-segment/tensor"
)

// Dataset is a random-access collection of (feature vector, label) rows.
type Dataset interface {
	Len() int
	Dim() int
	Row(idx int) ([]float32, int32)
}

// Batch is one mini-batch of training rows.
type Batch struct {
	Data   *tensor.Tensor // (B, D) Float32
	Labels *tensor.Tensor // (B) Int32
}

// DataLoader iterates a dataset in mini-batches. With shuffle enabled the
// row order is re-permuted on every Reset; every row appears at most once
// per epoch. With dropLast enabled a trailing partial batch is skipped.
type DataLoader struct {
	dataset   Dataset
	batchSize int
	shuffle   bool
	dropLast  bool
	rng       *rand.Rand

	indices  []int
	position int
}

// NewDataLoader creates a loader over dataset. rng drives shuffling and
// may be nil when shuffle is disabled.
func NewDataLoader(dataset Dataset, batchSize int, shuffle, dropLast bool, rng *rand.Rand) (*DataLoader, error) {
	if dataset == nil || dataset.Len() == 0 {
		return nil, fmt.Errorf("data loader requires a non-empty dataset")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if shuffle && rng == nil {
		return nil, fmt.Errorf("shuffling requires a random source")
	}

	indices := make([]int, dataset.Len())
	for i := range indices {
		indices[i] = i
	}

	dl := &DataLoader{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		dropLast:  dropLast,
		rng:       rng,
		indices:   indices,
	}
	dl.Reset()
	return dl, nil
}

// Len returns the number of batches per epoch.
func (dl *DataLoader) Len() int {
	n := dl.dataset.Len()
	if dl.dropLast {
		return n / dl.batchSize
	}
	return (n + dl.batchSize - 1) / dl.batchSize
}

// Reset rewinds the loader to the start of an epoch, reshuffling if
// enabled.
func (dl *DataLoader) Reset() {
	dl.position = 0
	if dl.shuffle {
		dl.rng.Shuffle(len(dl.indices), func(i, j int) {
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		})
	}
}

// Next returns the next batch, or nil when the epoch is exhausted.
func (dl *DataLoader) Next() (*Batch, error) {
	remaining := len(dl.indices) - dl.position
	if remaining <= 0 {
		return nil, nil
	}

	size := dl.batchSize
	if remaining < size {
		if dl.dropLast {
			return nil, nil
		}
		size = remaining
	}

	dim := dl.dataset.Dim()
	data := make([]float32, size*dim)
	labels := make([]int32, size)
	for i := 0; i < size; i++ {
		row, label := dl.dataset.Row(dl.indices[dl.position+i])
		copy(data[i*dim:(i+1)*dim], row)
		labels[i] = label
	}
	dl.position += size

	dataTensor, err := tensor.NewTensor([]int{size, dim}, tensor.Float32, data)
	if err != nil {
		return nil, fmt.Errorf("failed to build batch data tensor: %w", err)
	}
	labelTensor, err := tensor.NewTensor([]int{size}, tensor.Int32, labels)
	if err != nil {
		return nil, fmt.Errorf("failed to build batch label tensor: %w", err)
	}

	return &Batch{Data: dataTensor, Labels: labelTensor}, nil
}
