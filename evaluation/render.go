package evaluation

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/lucasb-eyer/go-colorful"
)

// ClassPalette returns numClasses visually distinct colors, spaced evenly
// around the hue circle. The same class always maps to the same color.
func ClassPalette(numClasses int) []color.RGBA {
	palette := make([]color.RGBA, numClasses)
	for c := 0; c < numClasses; c++ {
		hue := 360 * float64(c) / float64(numClasses)
		r, g, b := colorful.Hsv(hue, 0.85, 0.9).RGB255()
		palette[c] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return palette
}

// SavePrediction writes a size x size prediction map as a color PNG.
// Labels outside [0, numClasses) render black.
func SavePrediction(path string, pred []int32, size, numClasses int) error {
	if len(pred) != size*size {
		return fmt.Errorf("prediction has %d pixels, want %d", len(pred), size*size)
	}

	palette := ClassPalette(numClasses)
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := pred[y*size+x]
			if c >= 0 && int(c) < numClasses {
				img.SetRGBA(x, y, palette[c])
			} else {
				img.SetRGBA(x, y, color.RGBA{A: 255})
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}
