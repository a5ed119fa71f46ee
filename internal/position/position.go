// Package position implements fractional-index arithmetic for ordering tasks
// within a column. Positions are strictly positive float64 values; inserting
// between two neighbours takes their midpoint, so a single insert is O(1) and
// no other row is renumbered. When the gap between neighbours drops below
// MinGap the midpoint is considered exhausted and the caller rebalances the
// whole column.
package position

const (
	// Step is the spacing between consecutive positions after a rebalance
	// and the increment used when appending to the end of a column.
	Step = 65536.0

	// MinGap is the smallest neighbour gap a midpoint insert may split.
	// Starting from Step-spaced rows, roughly 2^40 consecutive splits fit
	// between any two initial neighbours before a rebalance is needed.
	MinGap = 0.5
)

// AtEnd returns the position for a task appended after existing, or Step when
// the column is empty.
func AtEnd(existing []float64) float64 {
	if len(existing) == 0 {
		return Step
	}
	max := existing[0]
	for _, p := range existing[1:] {
		if p > max {
			max = p
		}
	}
	return max + Step
}

// Between returns a position strictly between before and after. Either bound
// may be nil, meaning insert-at-start or insert-at-end. The second return is
// false when midpoint precision is exhausted and the column must be
// rebalanced before the insert can be placed.
func Between(before, after *float64) (float64, bool) {
	switch {
	case before == nil && after == nil:
		return Step, true
	case before == nil:
		half := *after / 2
		if half < MinGap {
			return 0, false
		}
		return half, true
	case after == nil:
		return *before + Step, true
	default:
		gap := *after - *before
		if gap < MinGap {
			return 0, false
		}
		return *before + gap/2, true
	}
}

// ForIndex returns the canonical post-rebalance position for row i (0-based):
// (i+1)*Step.
func ForIndex(i int) float64 {
	return float64(i+1) * Step
}
