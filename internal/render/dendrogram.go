package render

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/branchpoints/internal/branching"
)

// segment is one straight stroke of the dendrogram in (time, row) space.
type segment struct {
	X0, Y0, X1, Y1 float64
}

// dendrogramLayout places every leaf on its own row in depth-first order
// and every internal node midway between its children. Each node draws a
// horizontal stroke over its interval; each branch point draws a vertical
// stroke joining its two children at the branch time.
func dendrogramLayout(root *branching.Node) (leaves []string, segs []segment) {
	var place func(n *branching.Node) float64
	place = func(n *branching.Node) float64 {
		var y float64
		if len(n.Children) == 0 {
			y = float64(len(leaves))
			leaves = append(leaves, n.Classes...)
		} else {
			ys := make([]float64, len(n.Children))
			for i, c := range n.Children {
				ys[i] = place(c)
			}
			y = (ys[0] + ys[len(ys)-1]) / 2
			segs = append(segs, segment{X0: n.Start, Y0: ys[0], X1: n.Start, Y1: ys[len(ys)-1]})
		}
		segs = append(segs, segment{X0: n.Start, Y0: y, X1: n.End, Y1: y})
		return y
	}
	place(root)
	return leaves, segs
}

// Dendrogram builds a gonum plot of the branch tree with time on the x axis.
func Dendrogram(defs []branching.BranchDefinition, title string) (*plot.Plot, error) {
	root, err := branching.BuildTree(defs)
	if err != nil {
		return nil, err
	}
	leaves, segs := dendrogramLayout(root)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "Class"

	for _, s := range segs {
		line, err := plotter.NewLine(plotter.XYs{{X: s.X0, Y: s.Y0}, {X: s.X1, Y: s.Y1}})
		if err != nil {
			return nil, err
		}
		line.Color = color.RGBA{R: 0x31, G: 0x68, B: 0x8e, A: 255}
		line.Width = vg.Points(1.5)
		p.Add(line)
	}

	ticks := make(plot.ConstantTicks, len(leaves))
	for i, c := range leaves {
		ticks[i] = plot.Tick{Value: float64(i), Label: c}
	}
	p.Y.Tick.Marker = ticks
	p.Y.Min, p.Y.Max = -0.5, float64(len(leaves))-0.5
	p.Add(plotter.NewGrid())
	return p, nil
}

// dendrogramSize scales the image height with the number of classes.
func dendrogramSize(defs []branching.BranchDefinition) (vg.Length, vg.Length) {
	rows := 0
	for _, d := range defs {
		rows = max(rows, len(d.Classes))
	}
	return 10 * vg.Inch, vg.Length(max(4, rows/3+2)) * vg.Inch
}

// WriteDendrogram encodes the dendrogram to w in format ("png", "svg", ...).
func WriteDendrogram(w io.Writer, defs []branching.BranchDefinition, title, format string) error {
	p, err := Dendrogram(defs, title)
	if err != nil {
		return err
	}
	width, height := dendrogramSize(defs)
	wt, err := p.WriterTo(width, height, format)
	if err != nil {
		return fmt.Errorf("failed to encode dendrogram: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// WritePNG saves the dendrogram to path. The image format follows the file
// extension.
func WritePNG(path string, defs []branching.BranchDefinition, title string) error {
	p, err := Dendrogram(defs, title)
	if err != nil {
		return err
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	width, height := dendrogramSize(defs)
	if err := p.Save(width, height, filepath.Clean(path)); err != nil {
		return fmt.Errorf("failed to save dendrogram: %w", err)
	}
	return nil
}

// ensureDir creates the parent directory of path.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
