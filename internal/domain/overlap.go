package domain

import "time"

// IntervalsOverlap reports whether two half-open intervals intersect. A nil
// end means the interval is unbounded (the entry is still running). Touching
// intervals (endA == startB) do not overlap. Symmetric in its arguments.
func IntervalsOverlap(startA time.Time, endA *time.Time, startB time.Time, endB *time.Time) bool {
	aBeforeBEnd := endB == nil || startA.Before(*endB)
	bBeforeAEnd := endA == nil || startB.Before(*endA)
	return aBeforeBEnd && bBeforeAEnd
}
