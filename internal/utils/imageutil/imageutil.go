package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// MaxPixels caps the decoded area so a tiny file cannot expand into gigabytes.
const MaxPixels = 64 << 20

var ErrTooManyPixels = errors.New("image dimensions too large")

// Decode sniffs the real format from data and decodes it. JPEG, PNG and WebP
// decoders are registered.
func Decode(data []byte) (image.Image, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return nil, "", ErrTooManyPixels
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}

	return img, format, nil
}

// FitWithin scales width x height so the longest side is at most maxDimension,
// keeping the aspect ratio. Images already inside the box keep their size.
func FitWithin(width, height, maxDimension int) (int, int) {
	longest := max(width, height)
	if longest <= maxDimension {
		return width, height
	}

	scale := float64(maxDimension) / float64(longest)
	w := max(1, int(float64(width)*scale+0.5))
	h := max(1, int(float64(height)*scale+0.5))
	return min(w, maxDimension), min(h, maxDimension)
}

func Resize(img image.Image, maxDimension int) image.Image {
	size := img.Bounds().Size()
	width, height := FitWithin(size.X, size.Y, maxDimension)
	if width == size.X && height == size.Y {
		return img
	}

	return transform.Resize(img, width, height, transform.Lanczos)
}

// FlattenOnWhite composites img over an opaque white background.
func FlattenOnWhite(img image.Image) image.Image {
	bounds := img.Bounds()
	background := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(background, background.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	return blend.Normal(background, img)
}

func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var output bytes.Buffer
	if err := imgio.JPEGEncoder(quality)(&output, img); err != nil {
		return nil, err
	}

	return output.Bytes(), nil
}
