package branching

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Node is one branch definition placed in the dendrogram.
type Node struct {
	BranchDefinition
	Children []*Node
}

// Leaves returns the classes under n in depth-first order, which is the
// order that draws the dendrogram without crossing lines.
func (n *Node) Leaves() []string {
	if len(n.Children) == 0 {
		return slices.Clone(n.Classes)
	}
	var out []string
	for _, c := range n.Children {
		out = append(out, c.Leaves()...)
	}
	return out
}

// Walk visits n and its descendants depth-first, parents before children.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

func classKey(classes []string) string { return strings.Join(classes, "\x00") }

// BuildTree rebuilds the branch hierarchy from flat definitions. A
// definition's children are the two definitions that end where it starts
// and partition its classes.
func BuildTree(defs []BranchDefinition) (*Node, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no branch definitions", ErrIncompleteTree)
	}
	nodes := make([]*Node, len(defs))
	byKey := make(map[string]*Node, len(defs))
	for i, d := range defs {
		d.Classes = slices.Sorted(slices.Values(d.Classes))
		n := &Node{BranchDefinition: d}
		key := classKey(d.Classes)
		if _, dup := byKey[key]; dup {
			return nil, fmt.Errorf("%w: duplicate branch definition for %s", ErrAmbiguousBranchEnd, formatClasses(d.Classes))
		}
		byKey[key] = n
		nodes[i] = n
	}

	root := nodes[0]
	for _, n := range nodes[1:] {
		if len(n.Classes) > len(root.Classes) {
			root = n
		}
	}

	var attach func(n *Node) error
	attach = func(n *Node) error {
		if len(n.Classes) == 1 {
			return nil
		}
		// The largest proper subset ending at n.Start is a direct child:
		// any deeper descendant sits inside a child and is strictly smaller.
		var best *Node
		for _, c := range nodes {
			if c == n || c.End != n.Start || len(c.Classes) >= len(n.Classes) || !isSubset(c.Classes, n.Classes) {
				continue
			}
			if best == nil || len(c.Classes) > len(best.Classes) {
				best = c
			}
		}
		if best == nil {
			return fmt.Errorf("%w: no children for %s", ErrMissingBranchEnd, n.BranchDefinition)
		}
		rest := complement(n.Classes, best.Classes)
		other, ok := byKey[classKey(rest)]
		if !ok || other.End != n.Start {
			return fmt.Errorf("%w: %s has no sibling for %s", ErrMissingBranchEnd, n.BranchDefinition, formatClasses(best.Classes))
		}
		n.Children = []*Node{best, other}
		sort.Slice(n.Children, func(a, b int) bool { return n.Children[a].Classes[0] < n.Children[b].Classes[0] })
		for _, c := range n.Children {
			if err := attach(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := attach(root); err != nil {
		return nil, err
	}

	count := 0
	root.Walk(func(*Node) { count++ })
	if count != len(defs) {
		return nil, fmt.Errorf("%w: tree reaches %d of %d branch definitions", ErrIncompleteTree, count, len(defs))
	}
	return root, nil
}

// Lineage re-derives branch points from branch definitions, ascending by
// time. Each internal node yields one point whose sides are its children,
// the side holding the lexicographically first class on the left.
func Lineage(defs []BranchDefinition) ([]BranchPoint, error) {
	root, err := BuildTree(defs)
	if err != nil {
		return nil, err
	}
	var points []BranchPoint
	root.Walk(func(n *Node) {
		if len(n.Children) == 2 {
			points = append(points, BranchPoint{
				Time:  n.Start,
				Left:  slices.Clone(n.Children[0].Classes),
				Right: slices.Clone(n.Children[1].Classes),
			})
		}
	})
	sort.SliceStable(points, func(a, b int) bool {
		if points[a].Time != points[b].Time {
			return points[a].Time < points[b].Time
		}
		return len(points[a].Left)+len(points[a].Right) < len(points[b].Left)+len(points[b].Right)
	})
	return points, nil
}

func isSubset(sub, super []string) bool {
	for _, c := range sub {
		if _, ok := slices.BinarySearch(super, c); !ok {
			return false
		}
	}
	return true
}

func complement(set, sub []string) []string {
	out := make([]string, 0, len(set)-len(sub))
	for _, c := range set {
		if _, ok := slices.BinarySearch(sub, c); !ok {
			out = append(out, c)
		}
	}
	return out
}
