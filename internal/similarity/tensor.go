// Package similarity holds the time-indexed class similarity tensor and the
// preprocessing applied to it before branch points are resolved.
//
// A Tensor is T slices of C×C symmetric matrices: slice k holds the mean
// pairwise cosine similarity between classes i and j at diffusion time
// Times[k]. Diagonal entries are intra-class similarities.
package similarity

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidTensor is matched by every shape, symmetry or value error
// reported while building a Tensor.
var ErrInvalidTensor = errors.New("invalid similarity tensor")

// symmetryTolerance bounds |sim[t,i,j] - sim[t,j,i]| for input arrays.
const symmetryTolerance = 1e-9

// Tensor is a T×C×C similarity array with classes in lexicographic order.
type Tensor struct {
	classes []string
	times   []float64
	slices  []*mat.SymDense
}

// NewTensor returns a zero-valued tensor over the given classes and times.
// Classes must be unique; they are stored sorted.
func NewTensor(classes []string, times []float64) (*Tensor, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("%w: no classes", ErrInvalidTensor)
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("%w: empty time axis", ErrInvalidTensor)
	}
	sorted := slices.Clone(classes)
	sort.Strings(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return nil, fmt.Errorf("%w: duplicate class %q", ErrInvalidTensor, sorted[i])
		}
	}
	t := &Tensor{
		classes: sorted,
		times:   slices.Clone(times),
		slices:  make([]*mat.SymDense, len(times)),
	}
	for k := range t.slices {
		t.slices[k] = mat.NewSymDense(len(sorted), nil)
	}
	return t, nil
}

// FromArray builds a tensor from a raw T×C×C array whose class axes follow
// the order of classes. If classes are not already sorted the matrix axes
// are permuted so the stored tensor is in lexicographic class order.
func FromArray(classes []string, times []float64, data [][][]float64) (*Tensor, error) {
	t, err := NewTensor(classes, times)
	if err != nil {
		return nil, err
	}
	if len(data) != len(times) {
		return nil, fmt.Errorf("%w: %d time slices for %d times", ErrInvalidTensor, len(data), len(times))
	}

	// perm[sortedIndex] = input index
	perm := make([]int, len(classes))
	for si, c := range t.classes {
		perm[si] = slices.Index(classes, c)
	}

	n := len(classes)
	for k, slice := range data {
		if len(slice) != n {
			return nil, fmt.Errorf("%w: slice %d has %d rows, want %d", ErrInvalidTensor, k, len(slice), n)
		}
		for i, row := range slice {
			if len(row) != n {
				return nil, fmt.Errorf("%w: slice %d row %d has %d columns, want %d", ErrInvalidTensor, k, i, len(row), n)
			}
		}
		for i := 0; i < n; i++ {
			for j := 0; j <= i; j++ {
				v, w := slice[i][j], slice[j][i]
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return nil, fmt.Errorf("%w: non-finite value at [%d,%d,%d]", ErrInvalidTensor, k, i, j)
				}
				if math.Abs(v-w) > symmetryTolerance {
					return nil, fmt.Errorf("%w: slice %d not symmetric at (%s,%s): %g != %g",
						ErrInvalidTensor, k, classes[i], classes[j], v, w)
				}
			}
		}
		for si := 0; si < n; si++ {
			for sj := 0; sj <= si; sj++ {
				t.slices[k].SetSym(si, sj, slice[perm[si]][perm[sj]])
			}
		}
	}
	return t, nil
}

// Classes returns the class labels in index order.
func (t *Tensor) Classes() []string { return slices.Clone(t.classes) }

// Times returns the time axis.
func (t *Tensor) Times() []float64 { return slices.Clone(t.times) }

// NumClasses returns C.
func (t *Tensor) NumClasses() int { return len(t.classes) }

// NumTimes returns T.
func (t *Tensor) NumTimes() int { return len(t.times) }

// ClassIndex returns the index of a class label, or -1.
func (t *Tensor) ClassIndex(class string) int {
	i, ok := slices.BinarySearch(t.classes, class)
	if !ok {
		return -1
	}
	return i
}

// At returns sim[k,i,j].
func (t *Tensor) At(k, i, j int) float64 { return t.slices[k].At(i, j) }

// Set writes sim[k,i,j] and its mirror sim[k,j,i].
func (t *Tensor) Set(k, i, j int, v float64) { t.slices[k].SetSym(i, j, v) }

// Slice returns a read-only view of the C×C matrix at time index k.
func (t *Tensor) Slice(k int) mat.Symmetric { return t.slices[k] }

// Series returns a copy of the (i,j) similarity time series.
func (t *Tensor) Series(i, j int) []float64 {
	out := make([]float64, len(t.times))
	for k, s := range t.slices {
		out[k] = s.At(i, j)
	}
	return out
}

// SetSeries replaces the (i,j) and (j,i) time series.
func (t *Tensor) SetSeries(i, j int, series []float64) {
	for k, s := range t.slices {
		s.SetSym(i, j, series[k])
	}
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := &Tensor{
		classes: slices.Clone(t.classes),
		times:   slices.Clone(t.times),
		slices:  make([]*mat.SymDense, len(t.slices)),
	}
	for k, s := range t.slices {
		c.slices[k] = mat.NewSymDense(len(t.classes), nil)
		c.slices[k].CopySym(s)
	}
	return c
}

// Array returns the tensor as a plain T×C×C array.
func (t *Tensor) Array() [][][]float64 {
	n := len(t.classes)
	out := make([][][]float64, len(t.slices))
	for k, s := range t.slices {
		out[k] = make([][]float64, n)
		for i := 0; i < n; i++ {
			out[k][i] = make([]float64, n)
			for j := 0; j < n; j++ {
				out[k][i][j] = s.At(i, j)
			}
		}
	}
	return out
}
