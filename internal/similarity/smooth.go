package similarity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// truncateSigmas is how many standard deviations the kernel extends on
// each side of its centre.
const truncateSigmas = 4.0

// minSigma is the width below which smoothing is the identity.
const minSigma = 1e-15

// GaussianKernel returns the normalised 1-D Gaussian kernel for sigma with
// radius int(4*sigma + 0.5). The kernel has 2*radius+1 taps summing to 1.
func GaussianKernel(sigma float64) []float64 {
	radius := int(truncateSigmas*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// GaussianFilter1D smooths x with a Gaussian of width sigma.
//
// Edges use reflect mode: the series is extended by mirroring about the
// half-sample boundary (d c b a | a b c d | d c b a), repeating the
// reflection if the kernel is wider than the series. sigma == 0 returns a
// copy of x.
func GaussianFilter1D(x []float64, sigma float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 || sigma < minSigma {
		copy(out, x)
		return out
	}
	kernel := GaussianKernel(sigma)
	radius := len(kernel) / 2
	padded := reflectPad(x, radius)
	for k := range x {
		out[k] = floats.Dot(kernel, padded[k:k+len(kernel)])
	}
	return out
}

// reflectPad extends x by radius samples on each side in reflect mode.
func reflectPad(x []float64, radius int) []float64 {
	n := len(x)
	padded := make([]float64, n+2*radius)
	for p := range padded {
		padded[p] = x[reflectIndex(p-radius, n)]
	}
	return padded
}

func reflectIndex(idx, n int) int {
	period := 2 * n
	m := idx % period
	if m < 0 {
		m += period
	}
	if m >= n {
		m = period - 1 - m
	}
	return m
}

// Smooth returns a copy of t with every (i,j) series, i >= j and diagonal
// included, replaced by its Gaussian-filtered version and mirrored into
// (j,i). The input tensor is not modified.
func Smooth(t *Tensor, sigma float64) (*Tensor, error) {
	if sigma < 0 || math.IsNaN(sigma) {
		return nil, fmt.Errorf("smoothing width must be non-negative, got %g", sigma)
	}
	out := t.Clone()
	n := t.NumClasses()
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			out.SetSeries(i, j, GaussianFilter1D(t.Series(i, j), sigma))
		}
	}
	return out, nil
}
