package branching

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched with errors.Is. Every failure returned by this
// package wraps exactly one of them.
var (
	ErrCrossoverNotFound        = errors.New("crossover not found")
	ErrIncompleteTree           = errors.New("incomplete tree")
	ErrMissingBranchEnd         = errors.New("missing branch end")
	ErrAmbiguousBranchEnd       = errors.New("ambiguous branch end")
	ErrNonMonotonicTimeAxis     = errors.New("time axis not strictly increasing")
	ErrNonMonotonicBranchPoints = errors.New("branch points not in ascending time order")
	ErrInvertedInterval         = errors.New("branch interval ends before it starts")
	ErrInvalidParams            = errors.New("invalid branching parameters")
)

// CrossoverNotFoundError reports a class pair whose inter-class similarity
// never reached the intra-class baseline on the time axis.
type CrossoverNotFoundError struct {
	I, J           int
	ClassI, ClassJ string
}

func (e *CrossoverNotFoundError) Error() string {
	return fmt.Sprintf("%v: classes %q (index %d) and %q (index %d): inter-similarity never reached intra-similarity",
		ErrCrossoverNotFound, e.ClassI, e.I, e.ClassJ, e.J)
}

func (e *CrossoverNotFoundError) Unwrap() error { return ErrCrossoverNotFound }

// TimeAxisError reports the first position where the time axis fails to
// increase.
type TimeAxisError struct {
	Index          int
	Previous, Time float64
}

func (e *TimeAxisError) Error() string {
	return fmt.Sprintf("%v: times[%d]=%g does not exceed times[%d]=%g",
		ErrNonMonotonicTimeAxis, e.Index, e.Time, e.Index-1, e.Previous)
}

func (e *TimeAxisError) Unwrap() error { return ErrNonMonotonicTimeAxis }

// BranchEndError reports a branch point whose merged class set did not match
// exactly one open branch end during reconstruction.
type BranchEndError struct {
	Classes []string
	Time    float64
	Matches int
}

func (e *BranchEndError) Error() string {
	kind := ErrMissingBranchEnd
	if e.Matches > 1 {
		kind = ErrAmbiguousBranchEnd
	}
	return fmt.Sprintf("%v: found %d branch ends matching classes %s at t=%g",
		kind, e.Matches, formatClasses(e.Classes), e.Time)
}

func (e *BranchEndError) Unwrap() error {
	if e.Matches > 1 {
		return ErrAmbiguousBranchEnd
	}
	return ErrMissingBranchEnd
}

// IncompleteTreeError reports a merge sequence that did not unify every
// class.
type IncompleteTreeError struct {
	Want    []string
	Covered []string
}

func (e *IncompleteTreeError) Error() string {
	return fmt.Sprintf("%v: final branch covers %s, want %s",
		ErrIncompleteTree, formatClasses(e.Covered), formatClasses(e.Want))
}

func (e *IncompleteTreeError) Unwrap() error { return ErrIncompleteTree }

// OrderError reports a branch point emitted or supplied out of ascending
// time order.
type OrderError struct {
	Index          int
	Previous, Time float64
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("%v: branch point %d at t=%g precedes branch point %d at t=%g",
		ErrNonMonotonicBranchPoints, e.Index, e.Time, e.Index-1, e.Previous)
}

func (e *OrderError) Unwrap() error { return ErrNonMonotonicBranchPoints }

func formatClasses(classes []string) string {
	return "(" + strings.Join(classes, ",") + ")"
}
