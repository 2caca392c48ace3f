package branching

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/banshee-data/branchpoints/internal/monitoring"
)

// Params holds the thresholds that shape the branch tree.
type Params struct {
	// Epsilon is how far inter-class similarity may sit below the
	// intra-class baseline and still count as crossed.
	Epsilon float64 `json:"epsilon"`
	// MinBranchTime is the earliest time any branch point may occur.
	MinBranchTime float64 `json:"min_branch_time"`
	// MinBranchLength is the shortest time a merged group must persist
	// before it may take part in a later branch point.
	MinBranchLength float64 `json:"min_branch_length"`
	// TStart and TLimit bound the reconstructed intervals.
	TStart float64 `json:"t_start"`
	TLimit float64 `json:"t_limit"`
}

// Validate checks the parameters against the time axis they will be used
// with.
func (p Params) Validate(times []float64) error {
	switch {
	case p.Epsilon < 0 || math.IsNaN(p.Epsilon):
		return fmt.Errorf("%w: epsilon must be non-negative, got %g", ErrInvalidParams, p.Epsilon)
	case p.MinBranchLength < 0 || math.IsNaN(p.MinBranchLength):
		return fmt.Errorf("%w: min_branch_length must be non-negative, got %g", ErrInvalidParams, p.MinBranchLength)
	case !isFinite(p.MinBranchTime):
		return fmt.Errorf("%w: min_branch_time must be finite, got %g", ErrInvalidParams, p.MinBranchTime)
	case !isFinite(p.TStart) || !isFinite(p.TLimit):
		return fmt.Errorf("%w: t_start (%g) and t_limit (%g) must be finite", ErrInvalidParams, p.TStart, p.TLimit)
	case !(p.TStart < p.TLimit):
		return fmt.Errorf("%w: t_start (%g) must be before t_limit (%g)", ErrInvalidParams, p.TStart, p.TLimit)
	}
	if len(times) > 0 {
		if !(p.MinBranchTime >= times[0]) {
			return fmt.Errorf("%w: min_branch_time (%g) precedes the time axis start (%g)", ErrInvalidParams, p.MinBranchTime, times[0])
		}
		if last := times[len(times)-1]; p.TLimit < last {
			return fmt.Errorf("%w: t_limit (%g) precedes the last time on the axis (%g)", ErrInvalidParams, p.TLimit, last)
		}
	}
	return nil
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// BranchPoint records that Left and Right were one indistinguishable branch
// before Time and separate branches from Time on. Both sides are sorted and
// disjoint.
type BranchPoint struct {
	Time  float64  `json:"time"`
	Left  []string `json:"left"`
	Right []string `json:"right"`
}

// Classes returns the sorted union of both sides.
func (bp BranchPoint) Classes() []string {
	out := make([]string, 0, len(bp.Left)+len(bp.Right))
	out = append(append(out, bp.Left...), bp.Right...)
	slices.Sort(out)
	return out
}

func (bp BranchPoint) String() string {
	return fmt.Sprintf("(%g, %s, %s)", bp.Time, formatClasses(bp.Left), formatClasses(bp.Right))
}

// classPair is one off-diagonal crossover entry in processing order.
type classPair struct {
	i, j int
	time float64
}

// orderedPairs returns every off-diagonal (i,j) entry sorted by ascending
// crossover time. Ties keep row-major order of the flattened matrix, so
// (i,j) with the smaller i*C+j goes first.
func orderedPairs(m *CrossoverMatrix) []classPair {
	n := m.Len()
	pairs := make([]classPair, 0, n*(n-1))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				pairs = append(pairs, classPair{i: i, j: j, time: m.At(i, j)})
			}
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].time < pairs[b].time })
	return pairs
}

// ComputeBranchPoints merges classes in ascending crossover order and
// returns one branch point per merge, |C|-1 in total, in emission order.
//
// A merge of roots r1 and r2 for pair (i,j) happens at
//
//	max(floor(r1), floor(r2), crossover[i,j])
//
// where floor is MinBranchTime for an original singleton (formed == 0) and
// formed+MinBranchLength for a merged group.
func ComputeBranchPoints(m *CrossoverMatrix, p Params) ([]BranchPoint, error) {
	if m.Len() < 2 {
		return nil, fmt.Errorf("%w: need at least 2 classes, got %d", ErrInvalidParams, m.Len())
	}
	if p.MinBranchLength < 0 || !isFinite(p.MinBranchLength) {
		return nil, fmt.Errorf("%w: min_branch_length must be non-negative and finite, got %g", ErrInvalidParams, p.MinBranchLength)
	}
	if !isFinite(p.MinBranchTime) {
		return nil, fmt.Errorf("%w: min_branch_time must be finite, got %g", ErrInvalidParams, p.MinBranchTime)
	}

	floor := func(f *Forest, root int) float64 {
		if formed := f.Formed(root); formed != 0 {
			return formed + p.MinBranchLength
		}
		return p.MinBranchTime
	}

	forest := NewForest(m.Classes)
	points := make([]BranchPoint, 0, m.Len()-1)
	for _, pr := range orderedPairs(m) {
		ri, rj := forest.Find(pr.i), forest.Find(pr.j)
		if ri == rj {
			continue
		}
		bt := max(floor(forest, ri), floor(forest, rj), pr.time)
		bp := BranchPoint{Time: bt, Left: forest.Members(ri), Right: forest.Members(rj)}
		points = append(points, bp)
		monitoring.Debugf("branch point %s from pair (%s,%s) crossing at t=%g",
			bp, m.Classes[pr.i], m.Classes[pr.j], pr.time)

		forest.Union(ri, rj, bt)
		if forest.Roots() == 1 {
			break
		}
	}

	if forest.Roots() != 1 {
		var covered []string
		if len(points) > 0 {
			covered = points[len(points)-1].Classes()
		}
		return nil, &IncompleteTreeError{Want: slices.Clone(m.Classes), Covered: covered}
	}
	if err := checkAscending(points); err != nil {
		return nil, err
	}
	return points, nil
}

// checkAscending verifies branch times never decrease.
func checkAscending(points []BranchPoint) error {
	for k := 1; k < len(points); k++ {
		if points[k].Time < points[k-1].Time {
			return &OrderError{Index: k, Previous: points[k-1].Time, Time: points[k].Time}
		}
	}
	return nil
}
