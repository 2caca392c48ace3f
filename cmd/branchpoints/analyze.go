package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/banshee-data/branchpoints/internal/analysis"
	"github.com/banshee-data/branchpoints/internal/config"
	"github.com/banshee-data/branchpoints/internal/db"
	"github.com/banshee-data/branchpoints/internal/monitoring"
	"github.com/banshee-data/branchpoints/internal/render"
	"github.com/banshee-data/branchpoints/internal/similarity"
)

// analysisFlags maps analyze flags onto AnalysisConfig keys.
var analysisFlags = []struct {
	flag, key, usage string
}{
	{"sigma", "smooth_sigma", "Gaussian smoothing width in time steps (0 disables)"},
	{"epsilon", "epsilon", "how far inter-class similarity may sit below the intra-class mean and still count as crossed"},
	{"min-branch-time", "min_branch_time", "earliest allowed branch time (default: first time on the axis)"},
	{"min-branch-length", "min_branch_length", "shortest time a merged branch must persist"},
	{"t-start", "t_start", "start of the reconstructed window"},
	{"t-limit", "t_limit", "end of the reconstructed window (default: last time on the axis)"},
}

func newAnalyzeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze --input tensor.json",
		Short: "Compute branch points and branch definitions for a similarity tensor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, v)
		},
	}

	f := cmd.Flags()
	f.String("input", "", "similarity tensor JSON file")
	f.String("config", "", "analysis config JSON file")
	f.String("label", "", "label stored with the run")
	for _, af := range analysisFlags {
		f.Float64(af.flag, 0, af.usage)
	}
	f.Int("workers", config.DefaultCrossoverWorkers, "concurrent crossover workers")
	f.String("csv", "", "write branch definitions as CSV to this file instead of stdout")
	f.String("json", "", "write the full result as JSON to this file")
	f.String("png", "", "write a dendrogram image to this file")
	f.String("html", "", "write an interactive tree chart to this file")
	f.String("similarity-html", "", "write smoothed similarity curves per class pair to this file")
	f.StringArray("pair", nil, "class pair to chart as a,b (repeatable; default every pair)")
	_ = cmd.MarkFlagRequired("input")

	for _, af := range analysisFlags {
		_ = v.BindPFlag(af.key, f.Lookup(af.flag))
	}
	_ = v.BindPFlag("crossover_workers", f.Lookup("workers"))
	return cmd
}

// overrides collects every analysis setting given by flag or environment.
func overrides(v *viper.Viper) *config.AnalysisConfig {
	out := config.EmptyAnalysisConfig()
	floatIfSet := func(key string) *float64 {
		if !v.IsSet(key) {
			return nil
		}
		x := v.GetFloat64(key)
		return &x
	}
	out.SmoothSigma = floatIfSet("smooth_sigma")
	out.Epsilon = floatIfSet("epsilon")
	out.MinBranchTime = floatIfSet("min_branch_time")
	out.MinBranchLength = floatIfSet("min_branch_length")
	out.TStart = floatIfSet("t_start")
	out.TLimit = floatIfSet("t_limit")
	if v.IsSet("crossover_workers") {
		n := v.GetInt("crossover_workers")
		out.CrossoverWorkers = &n
	}
	return out
}

// resolveConfig applies defaults, then the config file, then flags and
// environment.
func resolveConfig(cmd *cobra.Command, v *viper.Viper) (*config.AnalysisConfig, error) {
	cfg := config.DefaultAnalysisConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		fileCfg, err := config.LoadAnalysisConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	return cfg.Merge(overrides(v)), nil
}

func runAnalyze(cmd *cobra.Command, v *viper.Viper) error {
	input, _ := cmd.Flags().GetString("input")
	tensor, err := similarity.LoadTensor(input)
	if err != nil {
		return err
	}
	monitoring.Logf("loaded %d classes over %d times from %s", tensor.NumClasses(), tensor.NumTimes(), input)

	cfg, err := resolveConfig(cmd, v)
	if err != nil {
		return err
	}
	opts, err := analysis.OptionsFromConfig(cfg, tensor.Times())
	if err != nil {
		return err
	}

	res, err := analysis.Run(cmd.Context(), tensor, opts)
	if err != nil {
		return err
	}

	label, _ := cmd.Flags().GetString("label")
	if label == "" {
		label = filepath.Base(input)
	}
	if err := writeOutputs(cmd, res, label); err != nil {
		return err
	}

	if !v.IsSet("db") {
		return nil
	}
	dbInst, store, err := openStore(v)
	if err != nil {
		return err
	}
	defer dbInst.Close()

	run := db.NewRun(label, res)
	if err := store.Insert(cmd.Context(), run); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "stored run %s in %s\n", run.ID, dbInst.Path())
	return nil
}

// writeFile creates path and hands it to write.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeOutputs(cmd *cobra.Command, res *analysis.Result, label string) error {
	flags := cmd.Flags()
	get := func(name string) string {
		s, _ := flags.GetString(name)
		return s
	}

	if path := get("csv"); path != "" {
		if err := writeFile(path, func(w io.Writer) error { return render.WriteCSV(w, res.Definitions) }); err != nil {
			return err
		}
	} else if err := render.WriteCSV(cmd.OutOrStdout(), res.Definitions); err != nil {
		return err
	}

	if path := get("json"); path != "" {
		if err := writeFile(path, func(w io.Writer) error { return render.WriteJSON(w, res) }); err != nil {
			return err
		}
	}
	if path := get("png"); path != "" {
		if err := render.WritePNG(path, res.Definitions, label); err != nil {
			return err
		}
	}
	if path := get("html"); path != "" {
		if err := render.WriteTreeHTML(path, res.Definitions, label); err != nil {
			return err
		}
	}
	if path := get("similarity-html"); path != "" {
		specs, _ := flags.GetStringArray("pair")
		pairs, err := classPairs(res.Classes, specs)
		if err != nil {
			return err
		}
		if err := render.WriteSimilarityHTML(path, res, pairs); err != nil {
			return err
		}
	}
	return nil
}

// classPairs resolves "a,b" pair flags against the sorted class labels.
// No flags selects every pair.
func classPairs(classes []string, specs []string) ([][2]int, error) {
	if len(specs) == 0 {
		return render.AllPairs(&analysis.Result{Classes: classes}), nil
	}
	pairs := make([][2]int, 0, len(specs))
	for _, spec := range specs {
		a, b, ok := strings.Cut(spec, ",")
		if !ok {
			return nil, fmt.Errorf("invalid --pair %q: want a,b", spec)
		}
		i, j := slices.Index(classes, strings.TrimSpace(a)), slices.Index(classes, strings.TrimSpace(b))
		if i < 0 || j < 0 {
			return nil, fmt.Errorf("invalid --pair %q: unknown class", spec)
		}
		if i == j {
			return nil, fmt.Errorf("invalid --pair %q: classes must differ", spec)
		}
		pairs = append(pairs, [2]int{i, j})
	}
	return pairs, nil
}
