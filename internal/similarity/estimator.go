package similarity

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/branchpoints/internal/monitoring"
)

// Sampler produces a batch of diffused sample vectors for a class at a
// diffusion time. Each sample is flattened to one vector; all vectors in a
// batch have the same length.
type Sampler interface {
	Sample(ctx context.Context, class string, t float64) ([][]float64, error)
}

// SamplerFunc adapts a plain function to the Sampler interface.
type SamplerFunc func(ctx context.Context, class string, t float64) ([][]float64, error)

// Sample calls f.
func (f SamplerFunc) Sample(ctx context.Context, class string, t float64) ([][]float64, error) {
	return f(ctx, class, t)
}

// Estimator turns sampled batches into a similarity tensor.
type Estimator interface {
	Estimate(ctx context.Context, s Sampler, classes []string, times []float64) (*Tensor, error)
}

// CosineEstimator computes mean pairwise cosine similarity between class
// batches at every time.
//
// Intra-class entries pair each sample with the batch in reverse order; for
// odd batch sizes the middle sample is swapped with the first so no sample
// is compared to itself. Batches of different sizes are truncated to the
// smaller one.
type CosineEstimator struct {
	// Workers bounds how many time slices are sampled concurrently.
	// Zero means GOMAXPROCS.
	Workers int
}

// Estimate samples every class at every time and fills a Tensor.
func (e CosineEstimator) Estimate(ctx context.Context, s Sampler, classes []string, times []float64) (*Tensor, error) {
	t, err := NewTensor(classes, times)
	if err != nil {
		return nil, err
	}

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var warnOnce sync.Once
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for k, tm := range t.times {
		g.Go(func() error {
			batches := make([][][]float64, len(t.classes))
			for i, c := range t.classes {
				b, err := s.Sample(ctx, c, tm)
				if err != nil {
					return fmt.Errorf("sample class %q at t=%g: %w", c, tm, err)
				}
				batches[i] = b
			}
			// Each goroutine owns slice k exclusively.
			for i := range batches {
				for j := 0; j <= i; j++ {
					var sim float64
					var err error
					if i == j {
						sim, err = selfSimilarity(batches[i])
					} else {
						a, b := batches[i], batches[j]
						if len(a) != len(b) {
							warnOnce.Do(func() {
								monitoring.Logf("Warning: truncating batches of %d and %d samples to %d",
									len(a), len(b), min(len(a), len(b)))
							})
							n := min(len(a), len(b))
							a, b = a[:n], b[:n]
						}
						sim, err = meanCosine(a, b)
					}
					if err != nil {
						return fmt.Errorf("t=%g (%s,%s): %w", tm, t.classes[i], t.classes[j], err)
					}
					t.slices[k].SetSym(i, j, sim)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return t, nil
}

// selfPairing returns the partner index for each sample in a batch of n.
func selfPairing(n int) []int {
	rev := make([]int, n)
	for i := range rev {
		rev[i] = n - 1 - i
	}
	if n%2 == 1 {
		mid := n / 2
		rev[mid], rev[0] = rev[0], rev[mid]
	}
	return rev
}

func selfSimilarity(batch [][]float64) (float64, error) {
	if len(batch) < 2 {
		return 0, fmt.Errorf("intra-class similarity needs at least 2 samples, got %d", len(batch))
	}
	partner := selfPairing(len(batch))
	paired := make([][]float64, len(batch))
	for i, p := range partner {
		paired[i] = batch[p]
	}
	return meanCosine(batch, paired)
}

func meanCosine(a, b [][]float64) (float64, error) {
	if len(a) == 0 {
		return 0, fmt.Errorf("empty batch")
	}
	var sum float64
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return 0, fmt.Errorf("sample %d: dimension mismatch %d != %d", i, len(a[i]), len(b[i]))
		}
		sum += cosine(a[i], b[i])
	}
	return sum / float64(len(a)), nil
}

// cosine returns the cosine similarity of x and y, or 0 if either is the
// zero vector.
func cosine(x, y []float64) float64 {
	nx, ny := floats.Norm(x, 2), floats.Norm(y, 2)
	if nx == 0 || ny == 0 {
		return 0
	}
	return floats.Dot(x, y) / (nx * ny)
}
