// Package analysis runs the full branch-point pipeline over a similarity
// tensor: smoothing, crossover resolution, branch point computation and
// interval reconstruction.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/branchpoints/internal/branching"
	"github.com/banshee-data/branchpoints/internal/config"
	"github.com/banshee-data/branchpoints/internal/monitoring"
	"github.com/banshee-data/branchpoints/internal/similarity"
)

// Options controls one pipeline run.
type Options struct {
	SmoothSigma float64
	Params      branching.Params
	Workers     int
}

// OptionsFromConfig resolves cfg against the time axis of a tensor.
func OptionsFromConfig(cfg *config.AnalysisConfig, times []float64) (Options, error) {
	if err := cfg.Validate(); err != nil {
		return Options{}, fmt.Errorf("%w: %v", branching.ErrInvalidParams, err)
	}
	p, err := cfg.Params(times)
	if err != nil {
		return Options{}, err
	}
	return Options{
		SmoothSigma: cfg.GetSmoothSigma(),
		Params:      p,
		Workers:     cfg.GetCrossoverWorkers(),
	}, nil
}

// Result is everything one run produces.
type Result struct {
	Classes      []string                     `json:"classes"`
	Times        []float64                    `json:"times"`
	SmoothSigma  float64                      `json:"smooth_sigma"`
	Params       branching.Params             `json:"params"`
	Smoothed     *similarity.Tensor           `json:"-"`
	Crossover    *branching.CrossoverMatrix   `json:"-"`
	BranchPoints []branching.BranchPoint      `json:"branch_points"`
	Definitions  []branching.BranchDefinition `json:"branch_definitions"`
}

// Run executes the pipeline. The input tensor is not modified.
func Run(ctx context.Context, t *similarity.Tensor, opts Options) (*Result, error) {
	times := t.Times()
	if err := opts.Params.Validate(times); err != nil {
		return nil, err
	}
	if t.NumClasses() < 2 {
		return nil, fmt.Errorf("%w: need at least 2 classes, got %d", branching.ErrInvalidParams, t.NumClasses())
	}
	start := time.Now()

	smoothed, err := similarity.Smooth(t, opts.SmoothSigma)
	if err != nil {
		return nil, fmt.Errorf("smoothing: %w", err)
	}
	monitoring.Debugf("smoothed %d classes over %d times with sigma=%g", t.NumClasses(), t.NumTimes(), opts.SmoothSigma)

	crossover, err := branching.ResolveCrossoverTimes(ctx, smoothed, opts.Params.Epsilon, opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("resolving crossover times: %w", err)
	}

	points, err := branching.ComputeBranchPoints(crossover, opts.Params)
	if err != nil {
		return nil, fmt.Errorf("computing branch points: %w", err)
	}

	defs, err := branching.BranchDefinitions(crossover.Classes, points, opts.Params.TStart, opts.Params.TLimit)
	if err != nil {
		return nil, fmt.Errorf("reconstructing branch intervals: %w", err)
	}

	monitoring.Logf("analysis: %d classes, %d branch points, %d branch definitions in %v",
		t.NumClasses(), len(points), len(defs), time.Since(start).Round(time.Millisecond))

	return &Result{
		Classes:      smoothed.Classes(),
		Times:        times,
		SmoothSigma:  opts.SmoothSigma,
		Params:       opts.Params,
		Smoothed:     smoothed,
		Crossover:    crossover,
		BranchPoints: points,
		Definitions:  defs,
	}, nil
}
