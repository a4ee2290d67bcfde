package domain

import (
	"testing"
	"time"
)

func TestIntervalsOverlap(t *testing.T) {
	at := func(hour int) time.Time {
		return time.Date(2026, time.March, 2, hour, 0, 0, 0, time.UTC)
	}
	ptr := func(v time.Time) *time.Time { return &v }

	cases := []struct {
		name   string
		startA time.Time
		endA   *time.Time
		startB time.Time
		endB   *time.Time
		want   bool
	}{
		{"disjoint", at(9), ptr(at(10)), at(11), ptr(at(12)), false},
		{"partial overlap", at(9), ptr(at(11)), at(10), ptr(at(12)), true},
		{"contained", at(9), ptr(at(12)), at(10), ptr(at(11)), true},
		{"identical", at(9), ptr(at(10)), at(9), ptr(at(10)), true},
		{"touching does not overlap", at(9), ptr(at(10)), at(10), ptr(at(11)), false},
		{"unbounded overlaps later interval", at(9), nil, at(15), ptr(at(16)), true},
		{"unbounded starts after bounded ends", at(10), nil, at(8), ptr(at(9)), false},
		{"unbounded touching does not overlap", at(10), nil, at(9), ptr(at(10)), false},
		{"both unbounded", at(9), nil, at(15), nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IntervalsOverlap(tc.startA, tc.endA, tc.startB, tc.endB); got != tc.want {
				t.Fatalf("expected %t got %t", tc.want, got)
			}
			// Symmetry.
			if got := IntervalsOverlap(tc.startB, tc.endB, tc.startA, tc.endA); got != tc.want {
				t.Fatalf("expected symmetric result %t", tc.want)
			}
		})
	}
}
