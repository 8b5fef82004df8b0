// Package dataset loads image/label-map pairs for segmentation runs.
package dataset

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nfnt/resize"

	"github.com/tsawler/go-segment/tensor"
)

// ImageLabelDataset yields ordered (image, label map, path) triples from a
// directory laid out as <root>/images/*.{jpg,jpeg,png} with a matching
// <root>/labels/<stem>.png grayscale label map per image.
type ImageLabelDataset struct {
	resolution int
	imagePaths []string
	labelPaths []string
}

// NewImageLabelDataset scans root and keeps the first numImages pairs in
// sorted filename order. Every image must have a label map.
func NewImageLabelDataset(root string, resolution, numImages int) (*ImageLabelDataset, error) {
	if resolution <= 0 {
		return nil, fmt.Errorf("resolution must be positive, got %d", resolution)
	}

	imageDir := filepath.Join(root, "images")
	labelDir := filepath.Join(root, "labels")

	var paths []string
	for _, ext := range []string{".jpg", ".jpeg", ".png"} {
		files, err := filepath.Glob(filepath.Join(imageDir, "*"+ext))
		if err != nil {
			return nil, fmt.Errorf("failed to list images in %s: %w", imageDir, err)
		}
		paths = append(paths, files...)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, fmt.Errorf("no images found in %s", imageDir)
	}
	if numImages > 0 && numImages < len(paths) {
		paths = paths[:numImages]
	}
	if numImages > len(paths) {
		return nil, fmt.Errorf("requested %d images but only %d found in %s", numImages, len(paths), imageDir)
	}

	ds := &ImageLabelDataset{resolution: resolution}
	for _, p := range paths {
		stem := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		labelPath := filepath.Join(labelDir, stem+".png")
		if _, err := os.Stat(labelPath); err != nil {
			return nil, fmt.Errorf("missing label map for %s: %w", p, err)
		}
		ds.imagePaths = append(ds.imagePaths, p)
		ds.labelPaths = append(ds.labelPaths, labelPath)
	}

	return ds, nil
}

// Len returns the number of image/label pairs.
func (d *ImageLabelDataset) Len() int {
	return len(d.imagePaths)
}

// ImagePaths returns the ordered image paths.
func (d *ImageLabelDataset) ImagePaths() []string {
	return d.imagePaths
}

// Get decodes pair idx: a (3, S, S) Float32 image tensor normalized to
// [0, 1] and an (S, S) Int32 label map, plus the image path.
func (d *ImageLabelDataset) Get(idx int) (*tensor.Tensor, *tensor.Tensor, string, error) {
	if idx < 0 || idx >= len(d.imagePaths) {
		return nil, nil, "", fmt.Errorf("index %d out of range [0, %d)", idx, len(d.imagePaths))
	}

	img, err := d.loadImage(d.imagePaths[idx])
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to load image %s: %w", d.imagePaths[idx], err)
	}

	label, err := d.loadLabelMap(d.labelPaths[idx])
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to load label map %s: %w", d.labelPaths[idx], err)
	}

	return img, label, d.imagePaths[idx], nil
}

// loadImage decodes and resizes an image to (3, S, S) CHW float32.
func (d *ImageLabelDataset) loadImage(path string) (*tensor.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	s := d.resolution
	resized := resize.Resize(uint(s), uint(s), img, resize.Lanczos3)

	data := make([]float32, 3*s*s)
	plane := s * s
	for y := 0; y < s; y++ {
		for x := 0; x < s; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			idx := y*s + x
			data[idx] = float32(r) / 65535.0
			data[plane+idx] = float32(g) / 65535.0
			data[2*plane+idx] = float32(b) / 65535.0
		}
	}

	return tensor.NewTensor([]int{3, s, s}, tensor.Float32, data)
}

// loadLabelMap decodes a grayscale label map. Nearest-neighbor resizing
// keeps every value a class index; no interpolated classes appear.
func (d *ImageLabelDataset) loadLabelMap(path string) (*tensor.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	s := d.resolution
	resized := resize.Resize(uint(s), uint(s), img, resize.NearestNeighbor)

	data := make([]int32, s*s)
	for y := 0; y < s; y++ {
		for x := 0; x < s; x++ {
			r, _, _, _ := resized.At(x, y).RGBA()
			// 16-bit channel back to the 8-bit class value on disk.
			data[y*s+x] = int32(r >> 8)
		}
	}

	return tensor.NewTensor([]int{s, s}, tensor.Int32, data)
}
