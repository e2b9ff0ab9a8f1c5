// Package imgproc holds the image side of the evaluation: decoding, cubic
// resampling, JPEG degradation, thumbnails and YCbCr conversion.
//
// Every function returns a new image and leaves its input untouched.
package imgproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrTooSmall is returned when an image cannot be reduced by the scale factor.
var ErrTooSmall = errors.New("image too small for scale")

// Open decodes an image file and converts it to opaque RGB. EXIF orientation
// is not applied, pixels are used in stored order.
func Open(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	return ToRGB(img), nil
}

// ToRGB copies img into an NRGBA image with every alpha value set to 255.
// Colour channels are kept as they are, alpha is dropped rather than
// composited.
func ToRGB(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// Save writes img to path. The format follows the extension; JPEG output
// uses quality.
func Save(img image.Image, path string, quality int) error {
	if err := imaging.Save(img, path, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Compress round-trips img through an in-memory JPEG at quality.
func Compress(img image.Image, quality int) (*image.NRGBA, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	dec, err := imaging.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("jpeg decode: %w", err)
	}
	return ToRGB(dec), nil
}

// Crop returns the side x side square whose top left corner is (left, top).
// Parts of the square outside img are black.
func Crop(img image.Image, left, top, side int) (*image.NRGBA, error) {
	if side <= 0 {
		return nil, fmt.Errorf("crop side must be positive, got %d", side)
	}
	b := img.Bounds()
	region := image.Rect(left, top, left+side, top+side).Add(b.Min)
	dst := imaging.New(side, side, color.NRGBA{A: 0xff})
	if in := region.Intersect(b); !in.Empty() {
		dst = imaging.Paste(dst, imaging.Crop(img, in), in.Min.Sub(region.Min))
	}
	return dst, nil
}

// Pipeline resizes with a fixed resampler.
type Pipeline struct {
	Resampler Resampler
}

// NewPipeline returns a pipeline using the named resampler.
func NewPipeline(resampler string) (*Pipeline, error) {
	r, err := NewResampler(resampler)
	if err != nil {
		return nil, err
	}
	return &Pipeline{Resampler: r}, nil
}

func (p *Pipeline) resize(img image.Image, w, h int) (*image.NRGBA, error) {
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("resize to %dx%d: %w", w, h, ErrTooSmall)
	}
	return p.Resampler.Resize(img, w, h), nil
}

// ModCrop resizes img so both dimensions are the largest multiple of scale
// not above the original.
func (p *Pipeline) ModCrop(img image.Image, scale int) (*image.NRGBA, error) {
	b := img.Bounds()
	return p.resize(img, b.Dx()/scale*scale, b.Dy()/scale*scale)
}

// Downscale shrinks img by scale, rounding down.
func (p *Pipeline) Downscale(img image.Image, scale int) (*image.NRGBA, error) {
	b := img.Bounds()
	return p.resize(img, b.Dx()/scale, b.Dy()/scale)
}

// Upscale enlarges img by scale.
func (p *Pipeline) Upscale(img image.Image, scale int) (*image.NRGBA, error) {
	b := img.Bounds()
	return p.resize(img, b.Dx()*scale, b.Dy()*scale)
}
