// Package evaluation runs a trained ensemble over held-out images,
// producing consensus predictions, per-image uncertainty and
// intersection-over-union scores.
package evaluation

import (
	"fmt"
)

// IoUAccumulator gathers per-class intersection and union counts across
// many images. Ignore-labeled ground-truth pixels contribute nothing.
type IoUAccumulator struct {
	numClasses int
	ignore     int32

	tp []int64
	fp []int64
	fn []int64
}

// NewIoUAccumulator creates an accumulator over numClasses classes.
func NewIoUAccumulator(numClasses int, ignore int32) *IoUAccumulator {
	return &IoUAccumulator{
		numClasses: numClasses,
		ignore:     ignore,
		tp:         make([]int64, numClasses),
		fp:         make([]int64, numClasses),
		fn:         make([]int64, numClasses),
	}
}

// Add folds one image's aligned prediction and ground-truth maps into the
// counts.
func (a *IoUAccumulator) Add(pred, gt []int32) error {
	if len(pred) != len(gt) {
		return fmt.Errorf("iou: %d predictions but %d ground-truth pixels", len(pred), len(gt))
	}

	for i, g := range gt {
		if g == a.ignore {
			continue
		}
		p := pred[i]
		if p == g {
			a.tp[g]++
			continue
		}
		a.fn[g]++
		if p >= 0 && int(p) < a.numClasses {
			a.fp[p]++
		}
	}
	return nil
}

// PerClass returns each class's IoU and whether the class appeared at all
// in the accumulated ground truth or predictions.
func (a *IoUAccumulator) PerClass() (ious []float64, present []bool) {
	ious = make([]float64, a.numClasses)
	present = make([]bool, a.numClasses)
	for c := 0; c < a.numClasses; c++ {
		denom := a.tp[c] + a.fp[c] + a.fn[c]
		present[c] = denom > 0
		if denom > 0 {
			ious[c] = float64(a.tp[c]) / float64(denom)
		}
	}
	return ious, present
}

// MeanIoU averages IoU over the classes present in the accumulated data.
// Classes absent from both ground truth and predictions are excluded so
// they neither reward nor punish the score.
func (a *IoUAccumulator) MeanIoU() float64 {
	ious, present := a.PerClass()
	var sum float64
	count := 0
	for c, ok := range present {
		if ok {
			sum += ious[c]
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
