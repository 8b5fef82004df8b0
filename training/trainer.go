package training

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-segment/classifier"
)

// TrainerConfig controls one member's optimization run.
type TrainerConfig struct {
	BatchSize    int
	LearningRate float32
	MaxEpochs    int
	LogEvery     int
	WarmupEpochs int
	Patience     int
}

// DefaultTrainerConfig returns the standard hyperparameters: batch 64,
// lr 0.001, up to 100 epochs, logging every 1000 steps, stopping after
// more than 50 flat steps once past epoch 3.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		BatchSize:    64,
		LearningRate: 0.001,
		MaxEpochs:    100,
		LogEvery:     1000,
		WarmupEpochs: 3,
		Patience:     50,
	}
}

// Trainer optimizes a pixel classifier over a feature table with Adam and
// plateau early stopping.
type Trainer struct {
	cfg TrainerConfig
}

// NewTrainer validates the configuration and creates a trainer.
func NewTrainer(cfg TrainerConfig) (*Trainer, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %g", cfg.LearningRate)
	}
	if cfg.MaxEpochs <= 0 {
		return nil, fmt.Errorf("max epochs must be positive, got %d", cfg.MaxEpochs)
	}
	if cfg.LogEvery <= 0 {
		return nil, fmt.Errorf("log interval must be positive, got %d", cfg.LogEvery)
	}
	if cfg.Patience <= 0 {
		return nil, fmt.Errorf("patience must be positive, got %d", cfg.Patience)
	}
	return &Trainer{cfg: cfg}, nil
}

// Result summarizes a completed training run.
type Result struct {
	Epochs       int
	Steps        int
	BestLoss     float32
	StoppedEarly bool
}

// Train runs mini-batch optimization of model over dataset until the
// epoch budget is exhausted or the loss plateaus. rng drives batch
// shuffling. Trailing partial batches are dropped so batch statistics
// stay well conditioned.
func (t *Trainer) Train(model *classifier.PixelClassifier, dataset Dataset, rng *rand.Rand) (*Result, error) {
	loader, err := NewDataLoader(dataset, t.cfg.BatchSize, true, true, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create data loader: %w", err)
	}
	if loader.Len() == 0 {
		return nil, fmt.Errorf("dataset has %d rows, fewer than one batch of %d", dataset.Len(), t.cfg.BatchSize)
	}

	optimizer, err := NewAdam(model.Parameters(), t.cfg.LearningRate, 0.9, 0.999, 1e-8)
	if err != nil {
		return nil, fmt.Errorf("failed to create optimizer: %w", err)
	}
	criterion := NewCrossEntropyLoss()
	stopper := NewPlateauStopper(t.cfg.WarmupEpochs, t.cfg.Patience)

	fmt.Printf("Training: %d rows, %d batches per epoch, batch size %d\n",
		dataset.Len(), loader.Len(), t.cfg.BatchSize)

	result := &Result{}
	for epoch := 0; epoch < t.cfg.MaxEpochs; epoch++ {
		loader.Reset()
		result.Epochs = epoch + 1

		for {
			batch, err := loader.Next()
			if err != nil {
				return nil, err
			}
			if batch == nil {
				break
			}

			optimizer.ZeroGrad()
			logits, err := model.Forward(batch.Data, true)
			if err != nil {
				return nil, fmt.Errorf("forward pass failed at step %d: %w", result.Steps, err)
			}
			loss, err := criterion.Forward(logits, batch.Labels)
			if err != nil {
				return nil, fmt.Errorf("loss computation failed at step %d: %w", result.Steps, err)
			}
			grad, err := criterion.Backward(logits, batch.Labels)
			if err != nil {
				return nil, err
			}
			if err := model.Backward(grad); err != nil {
				return nil, fmt.Errorf("backward pass failed at step %d: %w", result.Steps, err)
			}
			if err := optimizer.Step(); err != nil {
				return nil, fmt.Errorf("optimizer step failed at step %d: %w", result.Steps, err)
			}
			result.Steps++

			if result.Steps%t.cfg.LogEvery == 0 {
				acc, err := MultiAccuracy(logits, batch.Labels)
				if err != nil {
					return nil, err
				}
				fmt.Printf("Epoch %d, step %d: loss %.4f, acc %.4f\n", epoch, result.Steps, loss, acc)
			}

			if stopper.Observe(epoch, loss) {
				break
			}
		}

		if stopper.ShouldStop() {
			result.StoppedEarly = true
			fmt.Printf("Loss plateaued at epoch %d after %d steps, stopping (best loss %.4f)\n",
				epoch, result.Steps, stopper.BestLoss())
			break
		}
	}

	result.BestLoss = stopper.BestLoss()
	return result, nil
}
