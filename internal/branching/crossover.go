package branching

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/branchpoints/internal/monitoring"
	"github.com/banshee-data/branchpoints/internal/similarity"
)

// CrossoverMatrix holds, for every class pair, the earliest time at which
// the pair became indistinguishable. It is symmetric with a zero diagonal.
type CrossoverMatrix struct {
	Classes []string
	Times   *mat.SymDense
}

// At returns the crossover time of classes i and j.
func (m *CrossoverMatrix) At(i, j int) float64 { return m.Times.At(i, j) }

// Len returns the number of classes.
func (m *CrossoverMatrix) Len() int { return len(m.Classes) }

// Array returns the matrix as a dense C×C array.
func (m *CrossoverMatrix) Array() [][]float64 {
	n := m.Len()
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

// NewCrossoverMatrix builds a matrix from a dense C×C array, taking the
// lower triangle. Used to feed precomputed crossover times straight to
// ComputeBranchPoints.
func NewCrossoverMatrix(classes []string, times [][]float64) (*CrossoverMatrix, error) {
	n := len(classes)
	if n == 0 {
		return nil, fmt.Errorf("%w: no classes", ErrInvalidParams)
	}
	if len(times) != n {
		return nil, fmt.Errorf("%w: crossover matrix has %d rows for %d classes", ErrInvalidParams, len(times), n)
	}
	m := &CrossoverMatrix{Classes: append([]string(nil), classes...), Times: mat.NewSymDense(n, nil)}
	for i := 0; i < n; i++ {
		if len(times[i]) != n {
			return nil, fmt.Errorf("%w: crossover row %d has %d columns", ErrInvalidParams, i, len(times[i]))
		}
		for j := 0; j < i; j++ {
			m.Times.SetSym(i, j, times[i][j])
		}
	}
	return m, nil
}

// ValidateTimeAxis checks that times is strictly increasing.
func ValidateTimeAxis(times []float64) error {
	for k := 1; k < len(times); k++ {
		if !(times[k] > times[k-1]) {
			return &TimeAxisError{Index: k, Previous: times[k-1], Time: times[k]}
		}
	}
	return nil
}

// crossoverIndex returns the smallest time index at which the pair's
// inter-class similarity is within epsilon of the mean of the two
// intra-class similarities, or -1.
func crossoverIndex(t *similarity.Tensor, i, j int, epsilon float64) int {
	for k := 0; k < t.NumTimes(); k++ {
		intra := (t.At(k, i, i) + t.At(k, j, j)) / 2
		if t.At(k, i, j) >= intra-epsilon {
			return k
		}
	}
	return -1
}

// ResolveCrossoverTimes computes the crossover matrix for every distinct
// class pair of a (smoothed) similarity tensor. A pair that never crosses
// aborts the whole resolution with a *CrossoverNotFoundError.
//
// Pairs are independent, so with workers > 1 they are resolved
// concurrently. The reported failure is always the first failing pair in
// row-major order regardless of scheduling.
func ResolveCrossoverTimes(ctx context.Context, t *similarity.Tensor, epsilon float64, workers int) (*CrossoverMatrix, error) {
	if epsilon < 0 {
		return nil, fmt.Errorf("%w: epsilon must be non-negative, got %g", ErrInvalidParams, epsilon)
	}
	times := t.Times()
	if err := ValidateTimeAxis(times); err != nil {
		return nil, err
	}

	n := t.NumClasses()
	classes := t.Classes()

	type pair struct{ i, j int }
	pairs := make([]pair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			pairs = append(pairs, pair{i, j})
		}
	}
	found := make([]int, len(pairs))

	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for p, pr := range pairs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found[p] = crossoverIndex(t, pr.i, pr.j, epsilon)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := &CrossoverMatrix{Classes: classes, Times: mat.NewSymDense(n, nil)}
	for p, pr := range pairs {
		k := found[p]
		if k < 0 {
			return nil, &CrossoverNotFoundError{I: pr.i, J: pr.j, ClassI: classes[pr.i], ClassJ: classes[pr.j]}
		}
		m.Times.SetSym(pr.i, pr.j, times[k])
		monitoring.Debugf("crossover (%s,%s) at t=%g (index %d)", classes[pr.i], classes[pr.j], times[k], k)
	}
	return m, nil
}
