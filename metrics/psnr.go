// Package metrics scores reconstructed images against a reference.
package metrics

import (
	"errors"
	"fmt"
	"math"

	"github.com/lon9/acnet-go/acnet"
	"gonum.org/v1/gonum/floats"
)

// ErrEmpty is returned when there are no samples to compare.
var ErrEmpty = errors.New("no samples")

// MSE is the mean squared difference of a and b.
func MSE(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%d vs %d samples: %w", len(a), len(b), acnet.ErrShapeMismatch)
	}
	if len(a) == 0 {
		return 0, ErrEmpty
	}
	d := floats.Distance(a, b, 2)
	return d * d / float64(len(a)), nil
}

// PSNR is the peak signal to noise ratio in decibels of two images whose
// values lie in [0, 1]. Identical images give +Inf.
func PSNR(ref, img *acnet.Tensor) (float64, error) {
	if ref.C != img.C || ref.H != img.H || ref.W != img.W {
		return 0, fmt.Errorf("psnr of %dx%dx%d and %dx%dx%d: %w", ref.C, ref.H, ref.W, img.C, img.H, img.W, acnet.ErrShapeMismatch)
	}
	mse, err := MSE(ref.Data, img.Data)
	if err != nil {
		return 0, err
	}
	if mse == 0 {
		return math.Inf(1), nil
	}
	return 10 * math.Log10(1/mse), nil
}
