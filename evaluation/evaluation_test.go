package evaluation

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/tsawler/go-segment/classifier"
	"github.com/tsawler/go-segment/compute"
	"github.com/tsawler/go-segment/config"
	"github.com/tsawler/go-segment/tensor"
)

func TestIoUAccumulator(t *testing.T) {
	t.Run("perfect prediction scores one", func(t *testing.T) {
		acc := NewIoUAccumulator(3, 255)
		gt := []int32{0, 1, 2, 1, 0}
		if err := acc.Add(gt, gt); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if got := acc.MeanIoU(); got != 1.0 {
			t.Errorf("expected mIoU 1.0, got %f", got)
		}
	})

	t.Run("disjoint prediction scores zero", func(t *testing.T) {
		acc := NewIoUAccumulator(2, 255)
		pred := []int32{0, 0, 0}
		gt := []int32{1, 1, 1}
		if err := acc.Add(pred, gt); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if got := acc.MeanIoU(); got != 0.0 {
			t.Errorf("expected mIoU 0.0, got %f", got)
		}
	})

	t.Run("hand-computed mixed case", func(t *testing.T) {
		// Class 0: tp=2, fp=1, fn=0 -> IoU 2/3.
		// Class 1: tp=1, fp=0, fn=1 -> IoU 1/2.
		acc := NewIoUAccumulator(2, 255)
		pred := []int32{0, 0, 1, 0}
		gt := []int32{0, 0, 1, 1}
		if err := acc.Add(pred, gt); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		ious, present := acc.PerClass()
		if !present[0] || !present[1] {
			t.Fatal("both classes should be present")
		}
		if math.Abs(ious[0]-2.0/3.0) > 1e-9 {
			t.Errorf("class 0 IoU: expected 2/3, got %f", ious[0])
		}
		if math.Abs(ious[1]-0.5) > 1e-9 {
			t.Errorf("class 1 IoU: expected 0.5, got %f", ious[1])
		}

		want := (2.0/3.0 + 0.5) / 2
		if math.Abs(acc.MeanIoU()-want) > 1e-9 {
			t.Errorf("expected mIoU %f, got %f", want, acc.MeanIoU())
		}
	})

	t.Run("absent class excluded from the mean", func(t *testing.T) {
		acc := NewIoUAccumulator(3, 255)
		pred := []int32{0, 0}
		gt := []int32{0, 0}
		if err := acc.Add(pred, gt); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		_, present := acc.PerClass()
		if present[1] || present[2] {
			t.Error("classes 1 and 2 never appeared and must not be present")
		}
		if got := acc.MeanIoU(); got != 1.0 {
			t.Errorf("expected mIoU 1.0 over the single present class, got %f", got)
		}
	})

	t.Run("ignore pixels contribute nothing", func(t *testing.T) {
		acc := NewIoUAccumulator(2, 255)
		pred := []int32{0, 1, 1}
		gt := []int32{0, 255, 255}
		if err := acc.Add(pred, gt); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		ious, present := acc.PerClass()
		if present[1] {
			t.Error("class 1 appeared only under ignore pixels")
		}
		if ious[0] != 1.0 {
			t.Errorf("class 0 IoU: expected 1.0, got %f", ious[0])
		}
	})

	t.Run("length mismatch rejected", func(t *testing.T) {
		acc := NewIoUAccumulator(2, 255)
		if err := acc.Add([]int32{0}, []int32{0, 1}); err == nil {
			t.Error("expected error for mismatched lengths")
		}
	})
}

func TestConsensus(t *testing.T) {
	t.Run("argmax of the mean distribution", func(t *testing.T) {
		// 2 pixels, 3 classes.
		probs := []float32{0.2, 0.5, 0.3, 0.6, 0.3, 0.1}
		pred := consensus(probs, 2, 3)
		if pred[0] != 1 || pred[1] != 0 {
			t.Errorf("expected [1 0], got %v", pred)
		}
	})

	t.Run("ties resolve to the lowest class", func(t *testing.T) {
		probs := []float32{0.5, 0.5}
		pred := consensus(probs, 1, 2)
		if pred[0] != 0 {
			t.Errorf("expected class 0 on tie, got %d", pred[0])
		}
	})
}

func TestMeanEntropy(t *testing.T) {
	t.Run("confident distribution has zero entropy", func(t *testing.T) {
		probs := []float32{1, 0, 0, 0}
		if got := meanEntropy(probs, 1, 4); got != 0 {
			t.Errorf("expected 0, got %f", got)
		}
	})

	t.Run("uniform distribution has entropy one", func(t *testing.T) {
		probs := []float32{0.25, 0.25, 0.25, 0.25}
		if got := meanEntropy(probs, 1, 4); math.Abs(got-1) > 1e-6 {
			t.Errorf("expected 1, got %f", got)
		}
	})

	t.Run("averaged over pixels", func(t *testing.T) {
		// One confident pixel, one uniform pixel -> 0.5.
		probs := []float32{1, 0, 0.5, 0.5}
		if got := meanEntropy(probs, 2, 2); math.Abs(got-0.5) > 1e-6 {
			t.Errorf("expected 0.5, got %f", got)
		}
	})
}

// memorySource serves pre-built tensors as a test image source.
type memorySource struct {
	images []*tensor.Tensor
	labels []*tensor.Tensor
	paths  []string
}

func (m *memorySource) Len() int { return len(m.images) }
func (m *memorySource) Get(idx int) (*tensor.Tensor, *tensor.Tensor, string, error) {
	return m.images[idx], m.labels[idx], m.paths[idx], nil
}

// flatExtractor emits constant features, so member outputs depend only on
// their weights.
type flatExtractor struct {
	dim int
}

func (e *flatExtractor) FeatureDim() int { return e.dim }
func (e *flatExtractor) Extract(img, noise *tensor.Tensor) (*tensor.Tensor, error) {
	h, w := img.Shape[1], img.Shape[2]
	data := make([]float32, e.dim*h*w)
	for i := range data {
		data[i] = 0.5
	}
	return tensor.NewTensor([]int{e.dim, h, w}, tensor.Float32, data)
}

func TestEvaluate(t *testing.T) {
	size, dim, classes := 4, 3, 2
	cfg := &config.RunConfig{
		Dim:         []int{size, size, dim},
		NumberClass: classes,
		IgnoreLabel: 255,
	}
	ctx := compute.Context{Workers: 2}
	ex := &flatExtractor{dim: dim}

	models := make([]*classifier.PixelClassifier, 2)
	for i := range models {
		m, err := classifier.New(dim, classes)
		if err != nil {
			t.Fatalf("classifier.New failed: %v", err)
		}
		m.InitWeights(rand.New(rand.NewSource(int64(i + 1))))
		models[i] = m
	}

	img, _ := tensor.NewTensor([]int{3, size, size}, tensor.Float32, make([]float32, 3*size*size))
	labelData := make([]int32, size*size)
	label, _ := tensor.NewTensor([]int{size, size}, tensor.Int32, labelData)
	src := &memorySource{
		images: []*tensor.Tensor{img},
		labels: []*tensor.Tensor{label},
		paths:  []string{"test.png"},
	}

	t.Run("report invariants", func(t *testing.T) {
		ev, err := NewEvaluator(ctx, models, ex, cfg, "")
		if err != nil {
			t.Fatalf("NewEvaluator failed: %v", err)
		}
		report, err := ev.Evaluate(src)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}

		if len(report.ImageUncertainty) != 1 {
			t.Fatalf("expected 1 uncertainty, got %d", len(report.ImageUncertainty))
		}
		u := report.ImageUncertainty[0]
		if u < 0 || u > 1 {
			t.Errorf("uncertainty %f outside [0, 1]", u)
		}
		if report.MeanUncertainty != u {
			t.Errorf("mean uncertainty %f differs from the single image's %f",
				report.MeanUncertainty, u)
		}
		if report.MeanIoU < 0 || report.MeanIoU > 1 {
			t.Errorf("mIoU %f outside [0, 1]", report.MeanIoU)
		}
		if len(report.PerClassIoU) != classes {
			t.Errorf("expected %d per-class entries, got %d", classes, len(report.PerClassIoU))
		}
	})

	t.Run("saves prediction images", func(t *testing.T) {
		dir := t.TempDir()
		ev, err := NewEvaluator(ctx, models, ex, cfg, dir)
		if err != nil {
			t.Fatalf("NewEvaluator failed: %v", err)
		}
		if _, err := ev.Evaluate(src); err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}

		if _, err := os.Stat(filepath.Join(dir, "0000_test_pred.png")); err != nil {
			t.Errorf("prediction image missing: %v", err)
		}
	})

	t.Run("same-named images do not collide", func(t *testing.T) {
		// Two images sharing a base name from different directories must
		// produce two prediction files.
		dir := t.TempDir()
		twin := &memorySource{
			images: []*tensor.Tensor{img, img},
			labels: []*tensor.Tensor{label, label},
			paths:  []string{"a/img.png", "b/img.png"},
		}

		ev, err := NewEvaluator(ctx, models, ex, cfg, dir)
		if err != nil {
			t.Fatalf("NewEvaluator failed: %v", err)
		}
		if _, err := ev.Evaluate(twin); err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}

		for _, name := range []string{"0000_img_pred.png", "0001_img_pred.png"} {
			if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
				t.Errorf("prediction %s missing: %v", name, err)
			}
		}
	})

	t.Run("mismatched model rejected", func(t *testing.T) {
		wrong, _ := classifier.New(dim+1, classes)
		if _, err := NewEvaluator(ctx, []*classifier.PixelClassifier{wrong}, ex, cfg, ""); err == nil {
			t.Error("expected error for input dim mismatch")
		}
	})

	t.Run("empty ensemble rejected", func(t *testing.T) {
		if _, err := NewEvaluator(ctx, nil, ex, cfg, ""); err == nil {
			t.Error("expected error for empty ensemble")
		}
	})
}

func TestPixelRows(t *testing.T) {
	// (2, 1, 2) volume: channel 0 = [1 2], channel 1 = [3 4]. Pixel p's row
	// gathers that pixel's value from every channel.
	ft, _ := tensor.NewTensor([]int{2, 1, 2}, tensor.Float32, []float32{1, 2, 3, 4})

	rows, err := pixelRows(ft, 2, 2)
	if err != nil {
		t.Fatalf("pixelRows failed: %v", err)
	}
	if rows.Shape[0] != 2 || rows.Shape[1] != 2 {
		t.Fatalf("expected shape [2 2], got %v", rows.Shape)
	}

	expected := []float32{1, 3, 2, 4}
	data := rows.Data.([]float32)
	for i, want := range expected {
		if data[i] != want {
			t.Errorf("element %d: expected %f, got %f", i, want, data[i])
		}
	}

	t.Run("size mismatch rejected", func(t *testing.T) {
		if _, err := pixelRows(ft, 3, 2); err == nil {
			t.Error("expected error for element count mismatch")
		}
	})
}

func TestClassPalette(t *testing.T) {
	palette := ClassPalette(5)
	if len(palette) != 5 {
		t.Fatalf("expected 5 colors, got %d", len(palette))
	}
	seen := map[[3]uint8]bool{}
	for _, c := range palette {
		key := [3]uint8{c.R, c.G, c.B}
		if seen[key] {
			t.Errorf("duplicate palette color %v", key)
		}
		seen[key] = true
	}
}

func TestSavePrediction(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pred.png")

	pred := []int32{0, 1, 1, 0}
	if err := SavePrediction(path, pred, 2, 2); err != nil {
		t.Fatalf("SavePrediction failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("prediction file missing: %v", err)
	}

	if err := SavePrediction(path, pred, 3, 2); err == nil {
		t.Error("expected error for pixel count mismatch")
	}
}
