package render

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/branchpoints/internal/analysis"
	"github.com/banshee-data/branchpoints/internal/branching"
)

// AssetsHost overrides where rendered pages load the echarts scripts from.
// Empty uses the go-echarts default CDN.
var AssetsHost string

func initOpts(title string) opts.Initialization {
	return opts.Initialization{PageTitle: title, Width: "100%", Height: "720px", AssetsHost: AssetsHost}
}

func nodeLabel(n *branching.Node) string {
	return n.BranchDefinition.String()
}

func treeData(n *branching.Node) *opts.TreeData {
	td := &opts.TreeData{Name: nodeLabel(n)}
	for _, c := range n.Children {
		td.Children = append(td.Children, treeData(c))
	}
	return td
}

// TreeChart builds an interactive tree of the branch definitions, root on
// the left and leaves on the right.
func TreeChart(defs []branching.BranchDefinition, title string) (*charts.Tree, error) {
	root, err := branching.BuildTree(defs)
	if err != nil {
		return nil, err
	}

	tree := charts.NewTree()
	tree.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(title)),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("classes=%d", len(root.Classes))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	tree.AddSeries("branches", []opts.TreeData{*treeData(root)},
		charts.WithTreeOpts(opts.TreeChart{
			Layout:           "orthogonal",
			Orient:           "LR",
			InitialTreeDepth: -1,
		}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "right"}),
	)
	return tree, nil
}

// SimilarityChart plots the smoothed inter-class similarity of classes i
// and j against their mean intra-class baseline and the crossing threshold.
func SimilarityChart(res *analysis.Result, i, j int) (*charts.Line, error) {
	if res.Smoothed == nil {
		return nil, fmt.Errorf("result carries no similarity tensor")
	}
	n := res.Smoothed.NumClasses()
	if i < 0 || j < 0 || i >= n || j >= n || i == j {
		return nil, fmt.Errorf("invalid class pair (%d,%d) for %d classes", i, j, n)
	}

	x := make([]string, len(res.Times))
	for k, t := range res.Times {
		x[k] = strconv.FormatFloat(t, 'g', -1, 64)
	}
	inter := res.Smoothed.Series(i, j)
	ii, jj := res.Smoothed.Series(i, i), res.Smoothed.Series(j, j)

	interData := make([]opts.LineData, len(inter))
	intraData := make([]opts.LineData, len(inter))
	thresholdData := make([]opts.LineData, len(inter))
	for k := range inter {
		intra := (ii[k] + jj[k]) / 2
		interData[k] = opts.LineData{Value: inter[k]}
		intraData[k] = opts.LineData{Value: intra}
		thresholdData[k] = opts.LineData{Value: intra - res.Params.Epsilon}
	}

	title := fmt.Sprintf("%s vs %s", res.Classes[i], res.Classes[j])
	subtitle := fmt.Sprintf("sigma=%g epsilon=%g", res.SmoothSigma, res.Params.Epsilon)
	if res.Crossover != nil {
		subtitle += fmt.Sprintf(" crossover=%g", res.Crossover.At(i, j))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(title)),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Similarity"}),
	)
	line.SetXAxis(x).
		AddSeries("inter-class", interData).
		AddSeries("intra-class mean", intraData).
		AddSeries("threshold", thresholdData)
	return line, nil
}

// AllPairs lists every unordered class pair (i<j) of res.
func AllPairs(res *analysis.Result) [][2]int {
	n := len(res.Classes)
	pairs := make([][2]int, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	return pairs
}

// SimilarityPage stacks one SimilarityChart per pair on a single page.
func SimilarityPage(res *analysis.Result, pairs [][2]int) (*components.Page, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no class pairs to chart")
	}
	page := components.NewPage()
	if AssetsHost != "" {
		page.SetAssetsHost(AssetsHost)
	}
	for _, pr := range pairs {
		line, err := SimilarityChart(res, pr[0], pr[1])
		if err != nil {
			return nil, err
		}
		page.AddCharts(line)
	}
	return page, nil
}

// WriteSimilarityHTML writes the similarity curves of pairs to path.
func WriteSimilarityHTML(path string, res *analysis.Result, pairs [][2]int) error {
	page, err := SimilarityPage(res, pairs)
	if err != nil {
		return err
	}
	return writeHTML(path, page)
}

// renderer is satisfied by every go-echarts chart.
type renderer interface {
	Render(w io.Writer) error
}

// RenderHTML renders a chart to a standalone HTML page.
func RenderHTML(w io.Writer, chart renderer) error {
	var buf bytes.Buffer
	if err := chart.Render(&buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteTreeHTML writes the interactive branch tree to path.
func WriteTreeHTML(path string, defs []branching.BranchDefinition, title string) error {
	tree, err := TreeChart(defs, title)
	if err != nil {
		return err
	}
	return writeHTML(path, tree)
}

func writeHTML(path string, chart renderer) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := RenderHTML(f, chart); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
