// Package raster wraps the image codec used by the pipeline: validating
// downloaded bytes, decoding cached tiles, allocating the mosaic canvas,
// placing crops onto it and encoding the result.
package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// JPEGQuality is used when the output path has a .jpg/.jpeg extension.
const JPEGQuality = 95

// Decode decodes encoded tile bytes in any registered format.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to decode image: empty payload")
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Validate reports whether data is a well-formed image with a non-empty
// bounding box. A truncated body fails here.
func Validate(data []byte) error {
	img, err := Decode(data)
	if err != nil {
		return err
	}
	if img.Bounds().Empty() {
		return fmt.Errorf("image has empty bounds %v", img.Bounds())
	}
	return nil
}

// ParseColor parses a "#rrggbb" style hex colour into an opaque colour.
func ParseColor(hex string) (color.Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return nil, fmt.Errorf("invalid colour %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// NewCanvas allocates a width x height canvas filled with background.
func NewCanvas(width, height int, background color.Color) *image.NRGBA {
	return imaging.New(width, height, background)
}

// Place crops src to crop, taken relative to the origin of src, and draws it
// onto canvas with its top-left corner at dst. Pixels already on the canvas
// are replaced.
func Place(canvas draw.Image, src image.Image, crop image.Rectangle, dst image.Point) {
	cropped := imaging.Crop(src, crop.Add(src.Bounds().Min))
	r := image.Rectangle{Min: dst, Max: dst.Add(cropped.Bounds().Size())}
	draw.Draw(canvas, r, cropped, image.Point{}, draw.Src)
}

// Save encodes img to path; the format follows the file extension.
func Save(img image.Image, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return fmt.Errorf("failed to save image %s: %w", path, err)
	}
	return nil
}
