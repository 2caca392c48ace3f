// Package render writes analysis results as CSV, JSON, static dendrogram
// images and interactive charts.
package render

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/banshee-data/branchpoints/internal/analysis"
	"github.com/banshee-data/branchpoints/internal/branching"
)

// ClassSeparator joins class names within one CSV cell.
const ClassSeparator = "|"

// SortDefinitions returns defs ordered by start time, then end time
// descending, then joined class names.
func SortDefinitions(defs []branching.BranchDefinition) []branching.BranchDefinition {
	out := slices.Clone(defs)
	slices.SortStableFunc(out, func(a, b branching.BranchDefinition) int {
		switch {
		case a.Start != b.Start:
			if a.Start < b.Start {
				return -1
			}
			return 1
		case a.End != b.End:
			if a.End > b.End {
				return -1
			}
			return 1
		}
		return strings.Compare(strings.Join(a.Classes, ClassSeparator), strings.Join(b.Classes, ClassSeparator))
	})
	return out
}

// WriteCSV writes one row per definition under a classes,start,end header.
func WriteCSV(w io.Writer, defs []branching.BranchDefinition) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"classes", "start", "end"}); err != nil {
		return err
	}
	for _, d := range SortDefinitions(defs) {
		if err := cw.Write([]string{
			strings.Join(d.Classes, ClassSeparator),
			strconv.FormatFloat(d.Start, 'g', -1, 64),
			strconv.FormatFloat(d.End, 'g', -1, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// resultDocument is the JSON layout of an analysis result.
type resultDocument struct {
	*analysis.Result
	Crossover [][]float64 `json:"crossover,omitempty"`
}

// WriteJSON writes res as indented JSON, crossover matrix included.
func WriteJSON(w io.Writer, res *analysis.Result) error {
	doc := resultDocument{Result: res}
	if res.Crossover != nil {
		doc.Crossover = res.Crossover.Array()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
