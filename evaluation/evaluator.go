package evaluation

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/tsawler/go-segment/classifier"
	"github.com/tsawler/go-segment/compute"
	"github.com/tsawler/go-segment/config"
	"github.com/tsawler/go-segment/features"
	"github.com/tsawler/go-segment/tensor"
	"github.com/tsawler/go-segment/training"
)

// Report is the outcome of evaluating an ensemble over a test set.
type Report struct {
	MeanIoU          float64
	PerClassIoU      []float64
	ClassPresent     []bool
	ImageUncertainty []float64
	MeanUncertainty  float64
	StdUncertainty   float64
}

// Evaluator scores a complete ensemble over held-out images using the
// same extractor and shared noise the training set was materialized with.
type Evaluator struct {
	ctx     compute.Context
	models  []*classifier.PixelClassifier
	ex      features.Extractor
	cfg     *config.RunConfig
	saveDir string
}

// NewEvaluator creates an evaluator. saveDir, when non-empty, receives a
// color PNG of each consensus prediction.
func NewEvaluator(ctx compute.Context, models []*classifier.PixelClassifier, ex features.Extractor, cfg *config.RunConfig, saveDir string) (*Evaluator, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("evaluation requires at least one model")
	}
	for i, m := range models {
		if m.InputDim() != ex.FeatureDim() {
			return nil, fmt.Errorf("member %d expects %d features but extractor produces %d",
				i, m.InputDim(), ex.FeatureDim())
		}
		if m.NumClasses() != cfg.NumberClass {
			return nil, fmt.Errorf("member %d predicts %d classes but config declares %d",
				i, m.NumClasses(), cfg.NumberClass)
		}
	}
	return &Evaluator{ctx: ctx, models: models, ex: ex, cfg: cfg, saveDir: saveDir}, nil
}

// Evaluate runs every member over every test image, forms the consensus
// prediction from the mean of the member distributions, and aggregates
// IoU against the ground truth plus per-image uncertainty.
func (e *Evaluator) Evaluate(src features.ImageSource) (*Report, error) {
	n := src.Len()
	if n == 0 {
		return nil, fmt.Errorf("evaluation requires at least one image")
	}

	s := e.cfg.ImageSize()
	d := e.ex.FeatureDim()
	classes := e.cfg.NumberClass
	plane := s * s

	noise, err := features.SharedNoise(e.cfg.ShareNoise, e.cfg.Seed, s)
	if err != nil {
		return nil, fmt.Errorf("failed to build shared noise: %w", err)
	}

	acc := NewIoUAccumulator(classes, int32(e.cfg.IgnoreLabel))
	uncertainties := make([]float64, 0, n)

	bar := training.NewProgressBar("Evaluating", n)
	for i := 0; i < n; i++ {
		img, label, path, err := src.Get(i)
		if err != nil {
			return nil, fmt.Errorf("evaluation failed at image %d: %w", i, err)
		}

		ft, err := e.ex.Extract(img, noise)
		if err != nil {
			return nil, fmt.Errorf("failed to extract features for %s: %w", path, err)
		}
		rows, err := pixelRows(ft, d, plane)
		if err != nil {
			return nil, fmt.Errorf("feature rows for %s: %w", path, err)
		}

		meanProbs, err := e.meanDistribution(rows, plane, classes)
		if err != nil {
			return nil, fmt.Errorf("ensemble prediction for %s: %w", path, err)
		}

		pred := consensus(meanProbs, plane, classes)
		uncertainties = append(uncertainties, meanEntropy(meanProbs, plane, classes))

		labelData, err := label.Int32Data()
		if err != nil {
			return nil, err
		}
		if err := acc.Add(pred, labelData); err != nil {
			return nil, fmt.Errorf("iou for %s: %w", path, err)
		}

		if e.saveDir != "" {
			out := filepath.Join(e.saveDir, predictionName(i, path))
			if err := SavePrediction(out, pred, s, classes); err != nil {
				return nil, err
			}
		}

		bar.Update(i+1, nil)
	}
	bar.Finish()

	perClass, present := acc.PerClass()
	report := &Report{
		MeanIoU:          acc.MeanIoU(),
		PerClassIoU:      perClass,
		ClassPresent:     present,
		ImageUncertainty: uncertainties,
		MeanUncertainty:  stat.Mean(uncertainties, nil),
	}
	if len(uncertainties) > 1 {
		report.StdUncertainty = stat.StdDev(uncertainties, nil)
	}
	return report, nil
}

// meanDistribution averages the softmax outputs of every member over the
// image's pixel rows. Members run in parallel into disjoint buffers.
func (e *Evaluator) meanDistribution(rows *tensor.Tensor, plane, classes int) ([]float32, error) {
	memberProbs := make([][]float32, len(e.models))
	err := e.ctx.Parallel(len(e.models), func(m int) error {
		probs, err := e.models[m].Probabilities(rows)
		if err != nil {
			return err
		}
		memberProbs[m] = probs.Data.([]float32)
		return nil
	})
	if err != nil {
		return nil, err
	}

	mean := make([]float32, plane*classes)
	for _, probs := range memberProbs {
		for i, p := range probs {
			mean[i] += p
		}
	}
	scale := 1 / float32(len(e.models))
	for i := range mean {
		mean[i] *= scale
	}
	return mean, nil
}

// pixelRows rearranges a (D, H, W) feature volume into a (H*W, D) batch:
// collapse the spatial axes, then swap the two.
func pixelRows(ft *tensor.Tensor, d, plane int) (*tensor.Tensor, error) {
	if ft.NumElems != d*plane {
		return nil, fmt.Errorf("feature volume has %d values, want %d", ft.NumElems, d*plane)
	}

	flat, err := ft.Reshape([]int{d, plane})
	if err != nil {
		return nil, err
	}
	return tensor.Transpose(flat)
}

// consensus takes the per-pixel argmax of the mean distribution. Ties
// resolve to the lowest class index.
func consensus(meanProbs []float32, plane, classes int) []int32 {
	pred := make([]int32, plane)
	for p := 0; p < plane; p++ {
		row := meanProbs[p*classes : (p+1)*classes]
		best := 0
		for c := 1; c < classes; c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		pred[p] = int32(best)
	}
	return pred
}

// meanEntropy returns the image's uncertainty: the Shannon entropy of the
// mean distribution at each pixel, normalized by log(classes) to [0, 1]
// and averaged over all pixels. 0 means every pixel got a fully confident
// consensus; 1 means uniform disagreement everywhere.
func meanEntropy(meanProbs []float32, plane, classes int) float64 {
	norm := math.Log(float64(classes))
	var total float64
	for p := 0; p < plane; p++ {
		row := meanProbs[p*classes : (p+1)*classes]
		var h float64
		for _, v := range row {
			if v > 0 {
				h -= float64(v) * math.Log(float64(v))
			}
		}
		total += h / norm
	}
	return total / float64(plane)
}

// predictionName derives the output PNG name from the image's position
// and base name. The index prefix keeps images with the same stem from
// different directories from overwriting each other.
func predictionName(index int, imagePath string) string {
	base := filepath.Base(imagePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%04d_%s_pred.png", index, stem)
}
