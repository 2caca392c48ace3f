package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/banshee-data/branchpoints/internal/branching"
)

// Defaults applied by the Get* accessors when a field is unset.
const (
	DefaultSmoothSigma      = 3.0
	DefaultEpsilon          = 0.005
	DefaultMinBranchLength  = 0.0
	DefaultTStart           = 0.0
	DefaultCrossoverWorkers = 1
)

// AnalysisConfig holds the tunable parameters of one branch-point analysis.
// Every field is optional: nil means "use the default", so partial JSON
// files are safe. The schema matches the params object stored with each
// analysis run.
type AnalysisConfig struct {
	// Smoothing
	SmoothSigma *float64 `json:"smooth_sigma,omitempty"`

	// Crossover detection
	Epsilon          *float64 `json:"epsilon,omitempty"`
	CrossoverWorkers *int     `json:"crossover_workers,omitempty"`

	// Branch point floors
	MinBranchTime   *float64 `json:"min_branch_time,omitempty"` // defaults to the first time on the axis
	MinBranchLength *float64 `json:"min_branch_length,omitempty"`

	// Reconstruction window
	TStart *float64 `json:"t_start,omitempty"`
	TLimit *float64 `json:"t_limit,omitempty"` // defaults to the last time on the axis
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyAnalysisConfig returns an AnalysisConfig with all fields set to nil.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// DefaultAnalysisConfig returns a config with every axis-independent field
// set to its default. MinBranchTime and TLimit stay nil because their
// defaults depend on the time axis.
func DefaultAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		SmoothSigma:      ptrFloat64(DefaultSmoothSigma),
		Epsilon:          ptrFloat64(DefaultEpsilon),
		CrossoverWorkers: ptrInt(DefaultCrossoverWorkers),
		MinBranchLength:  ptrFloat64(DefaultMinBranchLength),
		TStart:           ptrFloat64(DefaultTStart),
	}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Merge returns a copy of c with every field set in o taking precedence.
func (c *AnalysisConfig) Merge(o *AnalysisConfig) *AnalysisConfig {
	out := *c
	if o == nil {
		return &out
	}
	if o.SmoothSigma != nil {
		out.SmoothSigma = o.SmoothSigma
	}
	if o.Epsilon != nil {
		out.Epsilon = o.Epsilon
	}
	if o.CrossoverWorkers != nil {
		out.CrossoverWorkers = o.CrossoverWorkers
	}
	if o.MinBranchTime != nil {
		out.MinBranchTime = o.MinBranchTime
	}
	if o.MinBranchLength != nil {
		out.MinBranchLength = o.MinBranchLength
	}
	if o.TStart != nil {
		out.TStart = o.TStart
	}
	if o.TLimit != nil {
		out.TLimit = o.TLimit
	}
	return &out
}

func nonNegative(name string, v *float64) error {
	if v != nil && (*v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0)) {
		return fmt.Errorf("%s must be a non-negative finite number, got %g", name, *v)
	}
	return nil
}

// Validate checks the values that can be checked without a time axis.
func (c *AnalysisConfig) Validate() error {
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"smooth_sigma", c.SmoothSigma},
		{"epsilon", c.Epsilon},
		{"min_branch_length", c.MinBranchLength},
	} {
		if err := nonNegative(f.name, f.v); err != nil {
			return err
		}
	}

	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"min_branch_time", c.MinBranchTime},
		{"t_start", c.TStart},
		{"t_limit", c.TLimit},
	} {
		if f.v != nil && (math.IsNaN(*f.v) || math.IsInf(*f.v, 0)) {
			return fmt.Errorf("%s must be finite, got %g", f.name, *f.v)
		}
	}

	if c.CrossoverWorkers != nil && *c.CrossoverWorkers < 1 {
		return fmt.Errorf("crossover_workers must be at least 1, got %d", *c.CrossoverWorkers)
	}

	if c.TStart != nil && c.TLimit != nil && !(*c.TStart < *c.TLimit) {
		return fmt.Errorf("t_start (%g) must be before t_limit (%g)", *c.TStart, *c.TLimit)
	}
	return nil
}

// GetSmoothSigma returns the smooth_sigma value or the default.
func (c *AnalysisConfig) GetSmoothSigma() float64 {
	if c.SmoothSigma == nil {
		return DefaultSmoothSigma
	}
	return *c.SmoothSigma
}

// GetEpsilon returns the epsilon value or the default.
func (c *AnalysisConfig) GetEpsilon() float64 {
	if c.Epsilon == nil {
		return DefaultEpsilon
	}
	return *c.Epsilon
}

// GetCrossoverWorkers returns the crossover_workers value or the default.
func (c *AnalysisConfig) GetCrossoverWorkers() int {
	if c.CrossoverWorkers == nil {
		return DefaultCrossoverWorkers
	}
	return *c.CrossoverWorkers
}

// GetMinBranchTime returns min_branch_time, falling back to the first time
// on the axis.
func (c *AnalysisConfig) GetMinBranchTime(times []float64) float64 {
	if c.MinBranchTime == nil {
		if len(times) == 0 {
			return 0
		}
		return times[0]
	}
	return *c.MinBranchTime
}

// GetMinBranchLength returns the min_branch_length value or the default.
func (c *AnalysisConfig) GetMinBranchLength() float64 {
	if c.MinBranchLength == nil {
		return DefaultMinBranchLength
	}
	return *c.MinBranchLength
}

// GetTStart returns the t_start value or the default.
func (c *AnalysisConfig) GetTStart() float64 {
	if c.TStart == nil {
		return DefaultTStart
	}
	return *c.TStart
}

// GetTLimit returns t_limit, falling back to the last time on the axis.
func (c *AnalysisConfig) GetTLimit(times []float64) float64 {
	if c.TLimit == nil {
		if len(times) == 0 {
			return 0
		}
		return times[len(times)-1]
	}
	return *c.TLimit
}

// Params resolves the branching parameters for the given time axis and
// validates them against it.
func (c *AnalysisConfig) Params(times []float64) (branching.Params, error) {
	p := branching.Params{
		Epsilon:         c.GetEpsilon(),
		MinBranchTime:   c.GetMinBranchTime(times),
		MinBranchLength: c.GetMinBranchLength(),
		TStart:          c.GetTStart(),
		TLimit:          c.GetTLimit(times),
	}
	if err := p.Validate(times); err != nil {
		return branching.Params{}, err
	}
	return p, nil
}
