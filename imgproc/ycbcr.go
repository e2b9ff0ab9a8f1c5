package imgproc

import (
	"fmt"
	"image"

	"github.com/lon9/acnet-go/acnet"
)

// RGBToYCbCr converts 0..255 RGB to BT.601 studio swing YCbCr.
func RGBToYCbCr(r, g, b float64) (y, cb, cr float64) {
	y = 16 + (64.738*r+129.057*g+25.064*b)/256
	cb = 128 + (-37.945*r-74.494*g+112.439*b)/256
	cr = 128 + (112.439*r-94.154*g-18.285*b)/256
	return
}

// YCbCrToRGB is the inverse of RGBToYCbCr. The result is not clipped.
func YCbCrToRGB(y, cb, cr float64) (r, g, b float64) {
	r = 298.082*y/256 + 408.583*cr/256 - 222.921
	g = 298.082*y/256 - 100.291*cb/256 - 208.120*cr/256 + 135.576
	b = 298.082*y/256 + 516.412*cb/256 - 276.836
	return
}

// Planes holds the Y, Cb and Cr channels of an image as 0..255 floats.
type Planes struct {
	W, H      int
	Y, Cb, Cr []float64
}

// Decompose splits img into YCbCr planes.
func Decompose(img *image.NRGBA) *Planes {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	p := &Planes{
		W:  w,
		H:  h,
		Y:  make([]float64, w*h),
		Cb: make([]float64, w*h),
		Cr: make([]float64, w*h),
	}
	idx := 0
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+3]
			p.Y[idx], p.Cb[idx], p.Cr[idx] = RGBToYCbCr(float64(px[0]), float64(px[1]), float64(px[2]))
			idx++
		}
	}
	return p
}

// Luma returns the Y plane scaled to [0, 1] as a single channel tensor.
func (p *Planes) Luma() *acnet.Tensor {
	t := acnet.NewTensor(1, p.H, p.W)
	for i, v := range p.Y {
		t.Data[i] = v / 255
	}
	return t
}

// Compose rebuilds an RGB image from a [0, 1] luma tensor and the chroma
// planes of p. Channels are clipped to 0..255 and truncated.
func (p *Planes) Compose(luma *acnet.Tensor) (*image.NRGBA, error) {
	if luma.C != 1 || luma.H != p.H || luma.W != p.W {
		return nil, fmt.Errorf("luma is %dx%dx%d, chroma is %dx%d: %w", luma.C, luma.H, luma.W, p.H, p.W, acnet.ErrShapeMismatch)
	}
	img := image.NewNRGBA(image.Rect(0, 0, p.W, p.H))
	for i, v := range luma.Data {
		r, g, b := YCbCrToRGB(v*255, p.Cb[i], p.Cr[i])
		px := img.Pix[i*4 : i*4+4]
		px[0], px[1], px[2], px[3] = clip8(r), clip8(g), clip8(b), 0xff
	}
	return img, nil
}

func clip8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
