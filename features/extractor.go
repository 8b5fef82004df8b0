// Package features turns labeled images into the flat (feature vector,
// label) table the classifiers train and evaluate on.
package features

import (
	"math/rand"

	"github.com/tsawler/go-segment/tensor"
)

// Extractor maps one image to a per-pixel feature tensor. Implementations
// must be deterministic given the same image and the same noise tensor.
type Extractor interface {
	// Extract returns a (D, H, W) Float32 feature tensor for a
	// (3, H, W) image. noise is either nil or a (3, H, W) tensor shared
	// across every image of the run.
	Extract(img *tensor.Tensor, noise *tensor.Tensor) (*tensor.Tensor, error)

	// FeatureDim returns D, the per-pixel feature vector length.
	FeatureDim() int
}

// SharedNoise builds the run's shared noise tensor from the configured
// seed, or returns nil when noise sharing is disabled. Training and
// evaluation must call this with identical arguments so extracted feature
// distributions match.
func SharedNoise(enabled bool, seed int64, size int) (*tensor.Tensor, error) {
	if !enabled {
		return nil, nil
	}
	rng := rand.New(rand.NewSource(seed))
	return tensor.RandomNormal([]int{3, size, size}, 0, 1, rng)
}
