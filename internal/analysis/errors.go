package analysis

import "fmt"

// InsufficientDataError reports that an analysis was asked to run on fewer
// pairs than it needs. Recoverable: the report marks the group
// "insufficient_data" and the run continues.
type InsufficientDataError struct {
	Op  string
	N   int
	Min int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: %d pairs, need at least %d", e.Op, e.N, e.Min)
}

// DegenerateVarianceError reports that one axis has zero variance, which
// makes the Deming closed form (and any correlation) undefined. Recoverable:
// the group is marked "degenerate".
type DegenerateVarianceError struct {
	Axis string // "ground" or "satellite"
}

func (e *DegenerateVarianceError) Error() string {
	return fmt.Sprintf("deming fit: zero variance on %s axis", e.Axis)
}

// InsufficientPartitionsError reports that leave-one-city-out validation was
// given fewer than two cities. Recoverable: the LOCO section is omitted.
type InsufficientPartitionsError struct {
	Cities int
}

func (e *InsufficientPartitionsError) Error() string {
	return fmt.Sprintf("loco validation: %d distinct cities, need at least 2", e.Cities)
}
