package acnet

import (
	"fmt"
)

// Tensor is a dense feature map laid out channel-major (C, H, W).
type Tensor struct {
	C, H, W int
	Data    []float64
}

// NewTensor returns a zeroed tensor.
func NewTensor(c, h, w int) *Tensor {
	return &Tensor{C: c, H: h, W: w, Data: make([]float64, c*h*w)}
}

// Plane returns the data of channel c. The slice aliases t.Data.
func (t *Tensor) Plane(c int) []float64 {
	n := t.H * t.W
	return t.Data[c*n : (c+1)*n]
}

// At returns the value at (c, y, x).
func (t *Tensor) At(c, y, x int) float64 {
	return t.Data[(c*t.H+y)*t.W+x]
}

// Clone returns a deep copy of t.
func (t *Tensor) Clone() *Tensor {
	d := make([]float64, len(t.Data))
	copy(d, t.Data)
	return &Tensor{C: t.C, H: t.H, W: t.W, Data: d}
}

func (t *Tensor) sameShape(o *Tensor) bool {
	return t.C == o.C && t.H == o.H && t.W == o.W
}

// Add accumulates o into t in place.
func (t *Tensor) Add(o *Tensor) error {
	if !t.sameShape(o) {
		return fmt.Errorf("add %dx%dx%d and %dx%dx%d: %w", t.C, t.H, t.W, o.C, o.H, o.W, ErrShapeMismatch)
	}
	for i, v := range o.Data {
		t.Data[i] += v
	}
	return nil
}

// ReLU clamps negative values to zero in place.
func (t *Tensor) ReLU() *Tensor {
	for i, v := range t.Data {
		if v < 0 {
			t.Data[i] = 0
		}
	}
	return t
}

// Clamp limits every value to [lo, hi] in place.
func (t *Tensor) Clamp(lo, hi float64) *Tensor {
	for i, v := range t.Data {
		if v < lo {
			t.Data[i] = lo
		} else if v > hi {
			t.Data[i] = hi
		}
	}
	return t
}

// PixelShuffle rearranges a (C*r*r, H, W) tensor into (C, H*r, W*r).
func PixelShuffle(t *Tensor, r int) (*Tensor, error) {
	if r < 1 || t.C%(r*r) != 0 {
		return nil, fmt.Errorf("pixel shuffle of %d channels by %d: %w", t.C, r, ErrShapeMismatch)
	}
	c := t.C / (r * r)
	out := NewTensor(c, t.H*r, t.W*r)
	for oc := 0; oc < c; oc++ {
		for i := 0; i < r; i++ {
			for j := 0; j < r; j++ {
				src := t.Plane(oc*r*r + i*r + j)
				for y := 0; y < t.H; y++ {
					row := ((oc*out.H)+y*r+i)*out.W + j
					for x := 0; x < t.W; x++ {
						out.Data[row+x*r] = src[y*t.W+x]
					}
				}
			}
		}
	}
	return out, nil
}
