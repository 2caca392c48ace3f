package branching

import "slices"

// group is the payload of a forest root: the classes it holds and the time
// the group was last formed (0 for an original singleton).
type group struct {
	members []string
	formed  float64
}

// Forest is a weighted union-find over class indices. Each slot stores a
// negative size when it is a root and a parent index otherwise, so find
// walks indices instead of recursing. Only roots carry a live group.
type Forest struct {
	slots  []int
	groups []group
	roots  int
}

// NewForest returns a forest with one singleton root per class. classes
// must already be in index order.
func NewForest(classes []string) *Forest {
	f := &Forest{
		slots:  make([]int, len(classes)),
		groups: make([]group, len(classes)),
		roots:  len(classes),
	}
	for i, c := range classes {
		f.slots[i] = -1
		f.groups[i] = group{members: []string{c}}
	}
	return f
}

// Find returns the root of x, compressing the path behind it.
func (f *Forest) Find(x int) int {
	root := x
	for f.slots[root] >= 0 {
		root = f.slots[root]
	}
	for f.slots[x] >= 0 {
		next := f.slots[x]
		f.slots[x] = root
		x = next
	}
	return root
}

// Size returns the number of classes under root.
func (f *Forest) Size(root int) int { return -f.slots[root] }

// Members returns a sorted copy of the classes held by root.
func (f *Forest) Members(root int) []string { return slices.Clone(f.groups[root].members) }

// Formed returns the time root's group was formed, 0 for an original
// singleton.
func (f *Forest) Formed(root int) float64 { return f.groups[root].formed }

// Roots returns the number of active sets.
func (f *Forest) Roots() int { return f.roots }

// Union merges two distinct roots at time t and returns the absorbing root.
// The larger set absorbs the smaller; on a tie a absorbs b. The absorbing
// root's group is replaced with the union stamped at t and the absorbed
// slot's group is cleared.
func (f *Forest) Union(a, b int, t float64) int {
	if f.slots[a] > f.slots[b] {
		// b is larger
		a, b = b, a
	}
	merged := group{
		members: mergeSorted(f.groups[a].members, f.groups[b].members),
		formed:  t,
	}
	f.slots[a] += f.slots[b]
	f.slots[b] = a
	f.groups[a] = merged
	f.groups[b] = group{}
	f.roots--
	return a
}

// mergeSorted merges two sorted, disjoint label lists.
func mergeSorted(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] < b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
