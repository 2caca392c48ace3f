package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/branchpoints/internal/branching"
)

func TestDefaultAnalysisConfig(t *testing.T) {
	cfg := DefaultAnalysisConfig()

	if cfg.SmoothSigma == nil || *cfg.SmoothSigma != 3 {
		t.Errorf("Expected SmoothSigma 3, got %v", cfg.SmoothSigma)
	}
	if cfg.Epsilon == nil || *cfg.Epsilon != 0.005 {
		t.Errorf("Expected Epsilon 0.005, got %v", cfg.Epsilon)
	}
	if cfg.CrossoverWorkers == nil || *cfg.CrossoverWorkers != 1 {
		t.Errorf("Expected CrossoverWorkers 1, got %v", cfg.CrossoverWorkers)
	}
	if cfg.MinBranchTime != nil || cfg.TLimit != nil {
		t.Errorf("Expected axis-dependent fields to be nil, got %v %v", cfg.MinBranchTime, cfg.TLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults: %v", err)
	}
}

func TestEmptyConfigGetters(t *testing.T) {
	cfg := EmptyAnalysisConfig()
	times := []float64{0.25, 0.5, 0.75, 1}

	if got := cfg.GetSmoothSigma(); got != DefaultSmoothSigma {
		t.Errorf("GetSmoothSigma() = %v, want %v", got, DefaultSmoothSigma)
	}
	if got := cfg.GetEpsilon(); got != DefaultEpsilon {
		t.Errorf("GetEpsilon() = %v, want %v", got, DefaultEpsilon)
	}
	if got := cfg.GetCrossoverWorkers(); got != 1 {
		t.Errorf("GetCrossoverWorkers() = %d, want 1", got)
	}
	if got := cfg.GetMinBranchTime(times); got != 0.25 {
		t.Errorf("GetMinBranchTime() = %v, want 0.25", got)
	}
	if got := cfg.GetMinBranchLength(); got != 0 {
		t.Errorf("GetMinBranchLength() = %v, want 0", got)
	}
	if got := cfg.GetTStart(); got != 0 {
		t.Errorf("GetTStart() = %v, want 0", got)
	}
	if got := cfg.GetTLimit(times); got != 1 {
		t.Errorf("GetTLimit() = %v, want 1", got)
	}
	if got := cfg.GetTLimit(nil); got != 0 {
		t.Errorf("GetTLimit(nil) = %v, want 0", got)
	}
}

func TestLoadAnalysisConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "analysis.json")

	testJSON := `{
  "smooth_sigma": 0,
  "epsilon": 0.01,
  "min_branch_time": 0.1,
  "min_branch_length": 0.05,
  "t_limit": 2,
  "crossover_workers": 4
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadAnalysisConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetSmoothSigma() != 0 {
		t.Errorf("Expected SmoothSigma 0, got %v", cfg.GetSmoothSigma())
	}
	if cfg.GetEpsilon() != 0.01 {
		t.Errorf("Expected Epsilon 0.01, got %v", cfg.GetEpsilon())
	}
	if cfg.GetCrossoverWorkers() != 4 {
		t.Errorf("Expected CrossoverWorkers 4, got %d", cfg.GetCrossoverWorkers())
	}
	// Omitted fields fall back to defaults.
	if cfg.TStart != nil || cfg.GetTStart() != 0 {
		t.Errorf("Expected TStart unset, got %v", cfg.TStart)
	}
}

func TestLoadAnalysisConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"missing file", "/nonexistent/path/to/config.json", "failed to stat"},
		{"wrong extension", write("config.yaml", "epsilon: 1"), ".json extension"},
		{"invalid JSON", write("broken.json", `{"epsilon": "x"`), "failed to parse"},
		{"invalid values", write("negative.json", `{"epsilon": -1}`), "invalid configuration"},
		{"too large", write("large.json", `{"epsilon": 0.1,"pad":"`+strings.Repeat("x", 1024*1024)+`"}`), "too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAnalysisConfig(tt.path)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *AnalysisConfig
		wantErr bool
	}{
		{"valid config", DefaultAnalysisConfig(), false},
		{"empty config is valid", &AnalysisConfig{}, false},
		{"zero sigma disables smoothing", &AnalysisConfig{SmoothSigma: ptrFloat64(0)}, false},
		{"negative sigma", &AnalysisConfig{SmoothSigma: ptrFloat64(-1)}, true},
		{"negative epsilon", &AnalysisConfig{Epsilon: ptrFloat64(-0.1)}, true},
		{"negative min branch length", &AnalysisConfig{MinBranchLength: ptrFloat64(-2)}, true},
		{"zero workers", &AnalysisConfig{CrossoverWorkers: ptrInt(0)}, true},
		{"t_start equals t_limit", &AnalysisConfig{TStart: ptrFloat64(1), TLimit: ptrFloat64(1)}, true},
		{"t_start after t_limit", &AnalysisConfig{TStart: ptrFloat64(2), TLimit: ptrFloat64(1)}, true},
		{"NaN min branch time", &AnalysisConfig{MinBranchTime: ptrFloat64(math.NaN())}, true},
		{"infinite min branch time", &AnalysisConfig{MinBranchTime: ptrFloat64(math.Inf(-1))}, true},
		{"NaN t_start", &AnalysisConfig{TStart: ptrFloat64(math.NaN())}, true},
		{"infinite t_limit", &AnalysisConfig{TLimit: ptrFloat64(math.Inf(1))}, true},
		{"NaN sigma", &AnalysisConfig{SmoothSigma: ptrFloat64(math.NaN())}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := DefaultAnalysisConfig()
	override := &AnalysisConfig{Epsilon: ptrFloat64(0.2), TLimit: ptrFloat64(9)}

	got := base.Merge(override)
	if got.GetEpsilon() != 0.2 {
		t.Errorf("Epsilon = %v, want 0.2", got.GetEpsilon())
	}
	if got.GetTLimit(nil) != 9 {
		t.Errorf("TLimit = %v, want 9", got.GetTLimit(nil))
	}
	if got.GetSmoothSigma() != DefaultSmoothSigma {
		t.Errorf("SmoothSigma = %v, want default", got.GetSmoothSigma())
	}
	if base.GetEpsilon() != DefaultEpsilon {
		t.Errorf("Merge modified the receiver")
	}
	if base.Merge(nil).GetEpsilon() != DefaultEpsilon {
		t.Errorf("Merge(nil) changed values")
	}
}

func TestParams(t *testing.T) {
	times := []float64{0, 1, 2, 3, 4}

	p, err := EmptyAnalysisConfig().Params(times)
	if err != nil {
		t.Fatalf("Params() error: %v", err)
	}
	want := branching.Params{Epsilon: DefaultEpsilon, MinBranchTime: 0, MinBranchLength: 0, TStart: 0, TLimit: 4}
	if p != want {
		t.Errorf("Params() = %+v, want %+v", p, want)
	}

	cfg := &AnalysisConfig{TLimit: ptrFloat64(3)}
	if _, err := cfg.Params(times); !errors.Is(err, branching.ErrInvalidParams) {
		t.Errorf("Params() with t_limit before axis end: got %v, want ErrInvalidParams", err)
	}

	cfg = &AnalysisConfig{MinBranchTime: ptrFloat64(-1)}
	if _, err := cfg.Params(times); !errors.Is(err, branching.ErrInvalidParams) {
		t.Errorf("Params() with min_branch_time before axis start: got %v, want ErrInvalidParams", err)
	}
}
