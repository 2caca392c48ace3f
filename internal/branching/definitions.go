package branching

import (
	"fmt"
	"slices"

	"github.com/banshee-data/branchpoints/internal/monitoring"
)

// BranchDefinition states that exactly Classes shared one indistinguishable
// branch over [Start, End).
type BranchDefinition struct {
	Classes []string `json:"classes"`
	Start   float64  `json:"start"`
	End     float64  `json:"end"`
}

func (d BranchDefinition) String() string {
	return fmt.Sprintf("%s [%g,%g)", formatClasses(d.Classes), d.Start, d.End)
}

// branchEnd is a branch whose end time is known but whose start is not yet.
type branchEnd struct {
	classes []string
	end     float64
}

// BranchDefinitions flattens ascending branch points into one interval per
// class group. classes is the full, sorted class set; the last branch point
// must cover it.
//
// Starting from the whole set open at tLimit, branch points are replayed
// latest first: each closes the open end matching its merged set at the
// branch time and opens its two sides ending at that time. Whatever is still
// open at the end began at tStart.
func BranchDefinitions(classes []string, points []BranchPoint, tStart, tLimit float64) ([]BranchDefinition, error) {
	if err := checkAscending(points); err != nil {
		return nil, err
	}
	all := slices.Clone(classes)
	slices.Sort(all)
	if len(points) == 0 {
		return nil, &IncompleteTreeError{Want: all}
	}
	if last := points[len(points)-1].Classes(); !slices.Equal(last, all) {
		return nil, &IncompleteTreeError{Want: all, Covered: last}
	}

	open := []branchEnd{{classes: all, end: tLimit}}
	defs := make([]BranchDefinition, 0, 2*len(points)+1)
	for k := len(points) - 1; k >= 0; k-- {
		bp := points[k]
		merged := bp.Classes()

		match, count := -1, 0
		for idx, be := range open {
			if slices.Equal(be.classes, merged) {
				match = idx
				count++
			}
		}
		if count != 1 {
			return nil, &BranchEndError{Classes: merged, Time: bp.Time, Matches: count}
		}

		closed := open[match]
		if bp.Time > closed.end {
			return nil, fmt.Errorf("%w: %s would span [%g,%g)", ErrInvertedInterval, formatClasses(merged), bp.Time, closed.end)
		}
		defs = append(defs, BranchDefinition{Classes: merged, Start: bp.Time, End: closed.end})

		open = slices.Delete(open, match, match+1)
		open = append(open,
			branchEnd{classes: slices.Sorted(slices.Values(bp.Left)), end: bp.Time},
			branchEnd{classes: slices.Sorted(slices.Values(bp.Right)), end: bp.Time},
		)
	}

	for _, be := range open {
		if tStart > be.end {
			return nil, fmt.Errorf("%w: %s would span [%g,%g)", ErrInvertedInterval, formatClasses(be.classes), tStart, be.end)
		}
		if tStart == be.end {
			monitoring.Logf("branch %s has zero length at t=%g", formatClasses(be.classes), tStart)
		}
		defs = append(defs, BranchDefinition{Classes: be.classes, Start: tStart, End: be.end})
	}
	return defs, nil
}
