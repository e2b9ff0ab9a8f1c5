package imgproc

import (
	"fmt"
	"image"
	"sort"

	"github.com/disintegration/gift"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Resampler scales an image to exactly w x h pixels with cubic interpolation.
type Resampler interface {
	Resize(img image.Image, w, h int) *image.NRGBA
}

// ResamplerFunc adapts a function to Resampler.
type ResamplerFunc func(img image.Image, w, h int) *image.NRGBA

// Resize calls f.
func (f ResamplerFunc) Resize(img image.Image, w, h int) *image.NRGBA { return f(img, w, h) }

var resamplers = map[string]Resampler{
	"nfnt":       ResamplerFunc(nfntBicubic),
	"gift":       ResamplerFunc(giftCubic),
	"catmullrom": ResamplerFunc(catmullRom),
}

// DefaultResampler is the name of the resampler used when none is given.
const DefaultResampler = "nfnt"

// NewResampler looks a resampler up by name.
func NewResampler(name string) (Resampler, error) {
	if name == "" {
		name = DefaultResampler
	}
	r, ok := resamplers[name]
	if !ok {
		return nil, fmt.Errorf("unknown resampler %q, want one of %v", name, ResamplerNames())
	}
	return r, nil
}

// ResamplerNames lists the registered resamplers.
func ResamplerNames() []string {
	names := make([]string, 0, len(resamplers))
	for n := range resamplers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func nfntBicubic(img image.Image, w, h int) *image.NRGBA {
	if w <= 0 || h <= 0 {
		return image.NewNRGBA(image.Rect(0, 0, 0, 0))
	}
	return imaging.Clone(resize.Resize(uint(w), uint(h), img, resize.Bicubic))
}

func giftCubic(img image.Image, w, h int) *image.NRGBA {
	g := gift.New(gift.Resize(w, h, gift.CubicResampling))
	dst := image.NewNRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}

func catmullRom(img image.Image, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
