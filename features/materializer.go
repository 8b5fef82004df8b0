package features

import (
	"fmt"

	"github.com/tsawler/go-segment/compute"
	"github.com/tsawler/go-segment/config"
	"github.com/tsawler/go-segment/tensor"
	"github.com/tsawler/go-segment/training"
)

// minLabelSupport is the smallest per-image pixel count a class needs to
// survive sparse-label suppression. Classes with 0 < count < 20 pixels in
// an image are statistically unreliable and are relabeled to ignore.
const minLabelSupport = 20

// ImageSource yields ordered (image, label map, path) triples.
type ImageSource interface {
	Len() int
	Get(idx int) (img *tensor.Tensor, label *tensor.Tensor, path string, err error)
}

// Materialize runs the extractor over every image of src and returns the
// flattened, ignore-filtered feature table. Extraction failures propagate;
// there is no row-level recovery. Memory cost is dominated by the
// (N, D, H, W) accumulator, so callers bound N.
func Materialize(ctx compute.Context, src ImageSource, ex Extractor, cfg *config.RunConfig) (*Table, error) {
	n := src.Len()
	if n == 0 {
		return nil, fmt.Errorf("materialization requires at least one image")
	}

	s := cfg.ImageSize()
	d := ex.FeatureDim()
	if d != cfg.FeatureDim() {
		return nil, fmt.Errorf("extractor produces %d features but config declares %d", d, cfg.FeatureDim())
	}

	noise, err := SharedNoise(cfg.ShareNoise, cfg.Seed, s)
	if err != nil {
		return nil, fmt.Errorf("failed to build shared noise: %w", err)
	}

	plane := s * s
	feats := make([]float32, n*d*plane)
	labels := make([]int32, n*plane)

	bar := training.NewProgressBar("Materializing features", n)
	for i := 0; i < n; i++ {
		img, label, path, err := src.Get(i)
		if err != nil {
			return nil, fmt.Errorf("materialization failed at image %d: %w", i, err)
		}

		ft, err := ex.Extract(img, noise)
		if err != nil {
			return nil, fmt.Errorf("failed to extract features for %s: %w", path, err)
		}
		if !shapeMatches(ft, []int{d, s, s}) {
			return nil, fmt.Errorf("extractor returned shape %v for %s, want [%d %d %d]", ft.Shape, path, d, s, s)
		}
		if !shapeMatches(label, []int{s, s}) {
			return nil, fmt.Errorf("label map for %s has shape %v, want [%d %d]", path, label.Shape, s, s)
		}

		ftData, err := ft.Float32Data()
		if err != nil {
			return nil, err
		}
		copy(feats[i*d*plane:], ftData)

		labelData, err := label.Int32Data()
		if err != nil {
			return nil, err
		}
		if err := validateLabels(labelData, cfg.NumberClass, cfg.IgnoreLabel, path); err != nil {
			return nil, err
		}

		dst := labels[i*plane : (i+1)*plane]
		copy(dst, labelData)
		suppressSparseLabels(dst, cfg.NumberClass, int32(cfg.IgnoreLabel), path)

		bar.Update(i+1, nil)
	}
	bar.Finish()

	return flatten(ctx, feats, labels, n, d, plane, int32(cfg.IgnoreLabel))
}

// suppressSparseLabels relabels any class with 0 < count < minLabelSupport
// pixels in this image to the ignore label. The ignore class itself is
// never checked.
func suppressSparseLabels(labels []int32, numClasses int, ignore int32, path string) {
	counts := make([]int, numClasses)
	for _, v := range labels {
		if v != ignore {
			counts[v]++
		}
	}

	for class, count := range counts {
		if count > 0 && count < minLabelSupport {
			fmt.Printf("Suppressing sparse label: image %s class %d (%d pixels)\n", path, class, count)
			for i, v := range labels {
				if v == int32(class) {
					labels[i] = ignore
				}
			}
		}
	}
}

func validateLabels(labels []int32, numClasses, ignore int, path string) error {
	for _, v := range labels {
		if v == int32(ignore) {
			continue
		}
		if v < 0 || v >= int32(numClasses) {
			return fmt.Errorf("label map for %s contains value %d outside [0, %d) and ignore %d",
				path, v, numClasses, ignore)
		}
	}
	return nil
}

// flatten permutes the (N, D, H, W) accumulator into rows of D features
// and drops every ignore-labeled pixel. Row order is (image, pixel);
// per-image gathers run in parallel into disjoint, precomputed slots.
func flatten(ctx compute.Context, feats []float32, labels []int32, n, d, plane int, ignore int32) (*Table, error) {
	// Prefix offsets of kept rows per image keep the output ordered.
	offsets := make([]int, n+1)
	for i := 0; i < n; i++ {
		kept := 0
		for _, v := range labels[i*plane : (i+1)*plane] {
			if v != ignore {
				kept++
			}
		}
		offsets[i+1] = offsets[i] + kept
	}

	total := offsets[n]
	rowFeats := make([]float32, total*d)
	rowLabels := make([]int32, total)

	err := ctx.Parallel(n, func(i int) error {
		row := offsets[i]
		imgFeats := feats[i*d*plane : (i+1)*d*plane]
		imgLabels := labels[i*plane : (i+1)*plane]
		for p := 0; p < plane; p++ {
			if imgLabels[p] == ignore {
				continue
			}
			dst := rowFeats[row*d : (row+1)*d]
			for c := 0; c < d; c++ {
				dst[c] = imgFeats[c*plane+p]
			}
			rowLabels[row] = imgLabels[p]
			row++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to flatten feature table: %w", err)
	}

	fmt.Printf("Feature table: %d rows, dim %d\n", total, d)
	return NewTable(rowFeats, rowLabels, d)
}
