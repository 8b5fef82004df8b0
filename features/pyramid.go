package features

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-segment/tensor"
)

// pyramidScales are the downsampling factors of the multi-scale stack.
var pyramidScales = []int{1, 2, 4, 8}

// PyramidExtractor is the built-in reference extractor: it stacks each
// color channel at several smoothing scales and projects the stack to a
// D-dimensional descriptor per pixel with a fixed random projection. It
// exists to satisfy the Extractor contract with something cheap and fully
// deterministic; runs with a real backbone swap in their own Extractor.
type PyramidExtractor struct {
	dim        int
	noiseScale float32
	projection *tensor.Tensor // (planes, dim)
}

// NewPyramidExtractor creates an extractor producing dim features per
// pixel. The projection matrix is derived from seed, so two extractors
// built with the same dim and seed produce identical features.
func NewPyramidExtractor(dim int, seed int64) (*PyramidExtractor, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("feature dim must be positive, got %d", dim)
	}

	planes := 3 * len(pyramidScales)
	rng := rand.New(rand.NewSource(seed))
	projection, err := tensor.RandomNormal([]int{planes, dim}, 0, 1, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to build projection: %w", err)
	}

	return &PyramidExtractor{
		dim:        dim,
		noiseScale: 0.1,
		projection: projection,
	}, nil
}

// FeatureDim returns the per-pixel feature vector length.
func (p *PyramidExtractor) FeatureDim() int {
	return p.dim
}

// Extract computes the (D, H, W) feature tensor for a (3, H, W) image.
func (p *PyramidExtractor) Extract(img *tensor.Tensor, noise *tensor.Tensor) (*tensor.Tensor, error) {
	if img.DType != tensor.Float32 || len(img.Shape) != 3 || img.Shape[0] != 3 {
		return nil, fmt.Errorf("expected (3, H, W) Float32 image, got %s", img)
	}
	h, w := img.Shape[1], img.Shape[2]

	src := img.Data.([]float32)
	if noise != nil {
		if !shapeMatches(noise, img.Shape) {
			return nil, fmt.Errorf("noise shape %v does not match image shape %v", noise.Shape, img.Shape)
		}
		noisy := make([]float32, len(src))
		noiseData := noise.Data.([]float32)
		for i := range src {
			noisy[i] = src[i] + p.noiseScale*noiseData[i]
		}
		src = noisy
	}

	// Stack: one smoothed plane per channel per scale, laid out so row
	// (y*w + x) of the (H*W, planes) matrix is that pixel's raw stack.
	planes := 3 * len(pyramidScales)
	stack := make([]float32, h*w*planes)
	planeIdx := 0
	for c := 0; c < 3; c++ {
		channel := src[c*h*w : (c+1)*h*w]
		for _, scale := range pyramidScales {
			smoothed := smoothPlane(channel, h, w, scale)
			for i := 0; i < h*w; i++ {
				stack[i*planes+planeIdx] = smoothed[i]
			}
			planeIdx++
		}
	}

	stackT, err := tensor.NewTensor([]int{h * w, planes}, tensor.Float32, stack)
	if err != nil {
		return nil, err
	}

	projected, err := tensor.MatMul(stackT, p.projection) // (H*W, D)
	if err != nil {
		return nil, fmt.Errorf("projection failed: %w", err)
	}

	// Rearrange (H*W, D) to (D, H, W).
	projData := projected.Data.([]float32)
	out := make([]float32, p.dim*h*w)
	for i := 0; i < h*w; i++ {
		for d := 0; d < p.dim; d++ {
			out[d*h*w+i] = projData[i*p.dim+d]
		}
	}

	return tensor.NewTensor([]int{p.dim, h, w}, tensor.Float32, out)
}

// smoothPlane box-filters a plane with the given block size, clamping
// blocks at the borders. Scale 1 returns the plane unchanged.
func smoothPlane(plane []float32, h, w, scale int) []float32 {
	if scale <= 1 {
		out := make([]float32, len(plane))
		copy(out, plane)
		return out
	}

	out := make([]float32, len(plane))
	for y := 0; y < h; y++ {
		y0 := (y / scale) * scale
		y1 := y0 + scale
		if y1 > h {
			y1 = h
		}
		for x := 0; x < w; x++ {
			x0 := (x / scale) * scale
			x1 := x0 + scale
			if x1 > w {
				x1 = w
			}

			var sum float32
			for yy := y0; yy < y1; yy++ {
				for xx := x0; xx < x1; xx++ {
					sum += plane[yy*w+xx]
				}
			}
			out[y*w+x] = sum / float32((y1-y0)*(x1-x0))
		}
	}
	return out
}

func shapeMatches(t *tensor.Tensor, shape []int) bool {
	if t.Dim() != len(shape) {
		return false
	}
	for i, d := range t.Size() {
		if d != shape[i] {
			return false
		}
	}
	return true
}
