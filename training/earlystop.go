package training

// bestLossSentinel exceeds any plausible cross-entropy value, so the
// first observed loss always becomes the baseline.
const bestLossSentinel = float32(1e7)

// PlateauStopper implements step-level early stopping: once past the
// warmup epochs, every training step that fails to improve the best loss
// seen so far increments a counter, and crossing the patience threshold
// stops the run. Any improvement resets the counter.
type PlateauStopper struct {
	warmupEpochs int
	patience     int

	bestLoss   float32
	breakCount int
	stopSign   bool
}

// NewPlateauStopper creates a stopper that is inactive through
// warmupEpochs and fires after more than patience consecutive
// non-improving steps.
func NewPlateauStopper(warmupEpochs, patience int) *PlateauStopper {
	return &PlateauStopper{
		warmupEpochs: warmupEpochs,
		patience:     patience,
		bestLoss:     bestLossSentinel,
	}
}

// Observe records one training step's loss and reports whether training
// should stop. Steps during warmup epochs leave the stopper untouched, so
// the baseline and the counter form entirely from post-warmup losses.
func (s *PlateauStopper) Observe(epoch int, loss float32) bool {
	if epoch <= s.warmupEpochs {
		return s.stopSign
	}

	if loss < s.bestLoss {
		s.bestLoss = loss
		s.breakCount = 0
	} else {
		s.breakCount++
	}

	if s.breakCount > s.patience {
		s.stopSign = true
	}
	return s.stopSign
}

// ShouldStop reports whether a stop has been signaled.
func (s *PlateauStopper) ShouldStop() bool {
	return s.stopSign
}

// BestLoss returns the lowest loss observed so far.
func (s *PlateauStopper) BestLoss() float32 {
	return s.bestLoss
}
