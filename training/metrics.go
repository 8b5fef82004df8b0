package training

import (
	"fmt"

	"github.com/tsawler/go-segment/tensor"
)

// MultiAccuracy returns the fraction of rows whose argmax logit matches
// the target label.
func MultiAccuracy(logits, targets *tensor.Tensor) (float64, error) {
	predictions, err := tensor.ArgMaxRows(logits)
	if err != nil {
		return 0, fmt.Errorf("accuracy: %w", err)
	}
	targetData, err := targets.Int32Data()
	if err != nil {
		return 0, fmt.Errorf("accuracy targets: %w", err)
	}
	if len(predictions) != len(targetData) {
		return 0, fmt.Errorf("accuracy: %d predictions but %d targets", len(predictions), len(targetData))
	}

	correct := 0
	for i, p := range predictions {
		if p == targetData[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(targetData)), nil
}
