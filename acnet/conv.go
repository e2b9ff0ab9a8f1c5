package acnet

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// tilePixels is the number of output pixels each worker unrolls at once.
const tilePixels = 8192

// Conv2D is a stride 1 convolution with zero "same" padding.
// Weight is laid out (Out, In, KH, KW) like a PyTorch Conv2d.
type Conv2D struct {
	Out, In, KH, KW int
	Weight          []float64
	Bias            []float64
}

// NewConv2D returns a zero initialized convolution.
func NewConv2D(in, out, kh, kw int) *Conv2D {
	return &Conv2D{
		Out:    out,
		In:     in,
		KH:     kh,
		KW:     kw,
		Weight: make([]float64, out*in*kh*kw),
		Bias:   make([]float64, out),
	}
}

// WeightShape is the PyTorch shape of the weight parameter.
func (c *Conv2D) WeightShape() []int {
	return []int{c.Out, c.In, c.KH, c.KW}
}

// Forward convolves in and returns a new (Out, H, W) tensor. Row tiles of the
// output are computed concurrently on at most workers goroutines.
func (c *Conv2D) Forward(ctx context.Context, in *Tensor, workers int) (*Tensor, error) {
	if in.C != c.In {
		return nil, fmt.Errorf("conv expects %d input channels, got %d: %w", c.In, in.C, ErrShapeMismatch)
	}
	if workers < 1 {
		workers = 1
	}
	out := NewTensor(c.Out, in.H, in.W)
	if in.H == 0 || in.W == 0 {
		return out, nil
	}

	k := c.In * c.KH * c.KW
	weight := mat.NewDense(c.Out, k, c.Weight)

	rows := tilePixels / in.W
	if rows < 1 {
		rows = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for y0 := 0; y0 < in.H; y0 += rows {
		y1 := min(y0+rows, in.H)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n := (y1 - y0) * in.W
			cols := mat.NewDense(k, n, c.im2col(in, y0, y1))
			res := mat.NewDense(c.Out, n, nil)
			res.Mul(weight, cols)
			for o := 0; o < c.Out; o++ {
				dst := out.Plane(o)[y0*in.W : y1*in.W]
				b := c.Bias[o]
				for i, v := range res.RawRowView(o) {
					dst[i] = v + b
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// im2col unrolls the receptive fields of output rows [y0, y1) into a
// (In*KH*KW, (y1-y0)*W) row-major matrix.
func (c *Conv2D) im2col(in *Tensor, y0, y1 int) []float64 {
	ph, pw := c.KH/2, c.KW/2
	n := (y1 - y0) * in.W
	cols := make([]float64, c.In*c.KH*c.KW*n)
	idx := 0
	for ci := 0; ci < c.In; ci++ {
		plane := in.Plane(ci)
		for ky := 0; ky < c.KH; ky++ {
			for kx := 0; kx < c.KW; kx++ {
				for y := y0; y < y1; y++ {
					sy := y + ky - ph
					if sy < 0 || sy >= in.H {
						idx += in.W
						continue
					}
					src := plane[sy*in.W : (sy+1)*in.W]
					for x := 0; x < in.W; x++ {
						sx := x + kx - pw
						if sx >= 0 && sx < in.W {
							cols[idx] = src[sx]
						}
						idx++
					}
				}
			}
		}
	}
	return cols
}
