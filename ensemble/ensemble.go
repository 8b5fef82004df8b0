// Package ensemble manages a fixed-size collection of independently
// initialized pixel classifiers: training the members that are not yet on
// disk, and loading a complete set for evaluation.
package ensemble

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-segment/checkpoints"
	"github.com/tsawler/go-segment/classifier"
	"github.com/tsawler/go-segment/training"
)

// CountTrained returns the number of consecutive trained members found
// under dir, scanning from index 0 until the first missing checkpoint.
// A checkpoint's existence is the sole completion marker.
func CountTrained(dir string, size int) int {
	for i := 0; i < size; i++ {
		if !checkpoints.Exists(dir, i) {
			return i
		}
	}
	return size
}

// TrainAll brings the ensemble under dir up to size trained members,
// skipping those whose checkpoints already exist. Members train
// sequentially; each gets an independent weight initialization and batch
// order derived from seed and its index, so a resumed run initializes
// member i the same way a fresh run would.
func TrainAll(dir string, size int, dataset training.Dataset, cfg training.TrainerConfig, inputDim, numClasses int, seed int64) error {
	if size <= 0 {
		return fmt.Errorf("ensemble size must be positive, got %d", size)
	}

	trainer, err := training.NewTrainer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create trainer: %w", err)
	}

	start := CountTrained(dir, size)
	if start > 0 {
		fmt.Printf("Resuming: %d of %d members already trained\n", start, size)
	}

	for i := start; i < size; i++ {
		if checkpoints.Exists(dir, i) {
			continue
		}

		fmt.Printf("Training member %d of %d\n", i+1, size)

		model, err := classifier.New(inputDim, numClasses)
		if err != nil {
			return fmt.Errorf("failed to create member %d: %w", i, err)
		}
		rng := rand.New(rand.NewSource(seed + int64(i)))
		model.InitWeights(rng)

		result, err := trainer.Train(model, dataset, rng)
		if err != nil {
			return fmt.Errorf("failed to train member %d: %w", i, err)
		}

		state := checkpoints.TrainingState{
			Epochs:       result.Epochs,
			Steps:        result.Steps,
			BestLoss:     result.BestLoss,
			StoppedEarly: result.StoppedEarly,
		}
		if err := checkpoints.Save(dir, i, model, state); err != nil {
			return fmt.Errorf("failed to save member %d: %w", i, err)
		}
	}
	return nil
}

// Load reads all size members from dir. A missing or unreadable member is
// an error: evaluation never runs on a partial ensemble.
func Load(dir string, size int) ([]*classifier.PixelClassifier, error) {
	if trained := CountTrained(dir, size); trained < size {
		return nil, fmt.Errorf("ensemble under %s has %d of %d trained members", dir, trained, size)
	}

	models := make([]*classifier.PixelClassifier, size)
	for i := range models {
		model, err := checkpoints.Load(dir, i)
		if err != nil {
			return nil, fmt.Errorf("failed to load member %d: %w", i, err)
		}
		models[i] = model
	}
	return models, nil
}
