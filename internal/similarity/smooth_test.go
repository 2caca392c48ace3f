package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaussianKernel(t *testing.T) {
	t.Parallel()

	k := GaussianKernel(1)
	require.Len(t, k, 9, "radius int(4*1+0.5) = 4")

	var sum float64
	for _, w := range k {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.InDelta(t, k[0], k[8], 1e-15, "kernel is symmetric")
	assert.Greater(t, k[4], k[3])

	assert.Len(t, GaussianKernel(3), 25)
	assert.Len(t, GaussianKernel(0.1), 1)
}

func TestReflectPad(t *testing.T) {
	t.Parallel()

	got := reflectPad([]float64{1, 2, 3}, 4)
	// c b a | a b c | c b a | a with repetition once the kernel outruns the series
	want := []float64{3, 3, 2, 1, 1, 2, 3, 3, 2, 1, 1}
	assert.Equal(t, want, got)

	assert.Equal(t, []float64{2, 1, 1, 2, 3, 4, 4, 3}, reflectPad([]float64{1, 2, 3, 4}, 2))
}

func TestGaussianFilter1D_ZeroSigmaIsIdentity(t *testing.T) {
	t.Parallel()

	x := []float64{0.1, 0.5, -0.2, 0.9}
	got := GaussianFilter1D(x, 0)
	assert.Equal(t, x, got)

	got[0] = 42
	assert.Equal(t, 0.1, x[0], "result must not alias the input")
}

func TestGaussianFilter1D_ConstantSeriesUnchanged(t *testing.T) {
	t.Parallel()

	x := []float64{0.7, 0.7, 0.7, 0.7, 0.7}
	for _, v := range GaussianFilter1D(x, 2) {
		assert.InDelta(t, 0.7, v, 1e-12)
	}
}

func TestGaussianFilter1D_EdgeUsesReflection(t *testing.T) {
	t.Parallel()

	x := []float64{1, 2, 3}
	k := GaussianKernel(1)
	padded := []float64{3, 3, 2, 1, 1, 2, 3, 3, 2, 1, 1}

	got := GaussianFilter1D(x, 1)
	for i := range x {
		var want float64
		for m, w := range k {
			want += w * padded[i+m]
		}
		assert.InDelta(t, want, got[i], 1e-12, "index %d", i)
	}
	assert.InDelta(t, got[0], 4-got[2], 1e-12, "reflection keeps the ramp antisymmetric about its midpoint")
}

func TestGaussianFilter1D_Impulse(t *testing.T) {
	t.Parallel()

	x := make([]float64, 21)
	x[10] = 1
	got := GaussianFilter1D(x, 1.5)
	k := GaussianKernel(1.5)
	r := len(k) / 2
	for i := -r; i <= r; i++ {
		assert.InDelta(t, k[r+i], got[10+i], 1e-12)
	}
}

func TestSmooth(t *testing.T) {
	t.Parallel()

	tensor := mustTensor(t, []string{"a", "b"}, []float64{0, 1, 2, 3, 4}, [][][]float64{
		{{1.0, 0.0}, {0.0, 0.9}},
		{{1.0, 0.2}, {0.2, 0.9}},
		{{1.0, 0.9}, {0.9, 0.9}},
		{{1.0, 0.2}, {0.2, 0.9}},
		{{1.0, 0.0}, {0.0, 0.9}},
	})
	before := tensor.Array()

	smoothed, err := Smooth(tensor, 1)
	require.NoError(t, err)

	assert.Equal(t, before, tensor.Array(), "input tensor must not be modified")

	want := GaussianFilter1D([]float64{0, 0.2, 0.9, 0.2, 0}, 1)
	for k := range want {
		assert.InDelta(t, want[k], smoothed.At(k, 1, 0), 1e-12)
		assert.Equal(t, smoothed.At(k, 1, 0), smoothed.At(k, 0, 1), "mirrored")
		assert.InDelta(t, 1.0, smoothed.At(k, 0, 0), 1e-12)
		assert.InDelta(t, 0.9, smoothed.At(k, 1, 1), 1e-12)
	}
}

func TestSmooth_RejectsNegativeSigma(t *testing.T) {
	t.Parallel()

	tensor := mustTensor(t, []string{"a"}, []float64{0}, [][][]float64{{{1}}})
	_, err := Smooth(tensor, -1)
	assert.Error(t, err)
	_, err = Smooth(tensor, math.NaN())
	assert.Error(t, err)
}

func mustTensor(t *testing.T, classes []string, times []float64, data [][][]float64) *Tensor {
	t.Helper()
	tensor, err := FromArray(classes, times, data)
	require.NoError(t, err)
	return tensor
}
