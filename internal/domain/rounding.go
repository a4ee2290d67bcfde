package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundingMethod selects how raw durations snap to the rounding interval.
type RoundingMethod string

const (
	RoundingNone    RoundingMethod = "none"
	RoundingUp      RoundingMethod = "up"
	RoundingDown    RoundingMethod = "down"
	RoundingNearest RoundingMethod = "nearest"
)

// CalculateDuration returns the whole minutes between start and end, floored.
// An end at or before start yields 0; the clamp is deliberate, not an error.
func CalculateDuration(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}

// RoundDuration snaps minutes to a multiple of intervalMin. NONE passes
// through, UP takes the next multiple, DOWN the previous, NEAREST the
// closest with exact half-ties rounding up. A non-positive interval always
// passes through regardless of method.
func RoundDuration(minutes int, method RoundingMethod, intervalMin int) int {
	if intervalMin <= 0 || method == RoundingNone {
		return minutes
	}
	remainder := minutes % intervalMin
	if remainder == 0 {
		return minutes
	}
	switch method {
	case RoundingUp:
		return minutes + intervalMin - remainder
	case RoundingDown:
		return minutes - remainder
	case RoundingNearest:
		if remainder*2 >= intervalMin {
			return minutes + intervalMin - remainder
		}
		return minutes - remainder
	default:
		return minutes
	}
}

// CalculateTotalAmount computes (minutes/60) × hourlyRate rounded to two
// decimal places.
func CalculateTotalAmount(minutes int, hourlyRate decimal.Decimal) decimal.Decimal {
	hours := decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60))
	return hours.Mul(hourlyRate).Round(2)
}

// EffectiveHourlyRate resolves the rate applied to an entry: the entry's own
// rate wins over the project rate, which wins over the tenant default. Nil
// when none is defined.
func EffectiveHourlyRate(entryRate, projectRate, settingsRate *decimal.Decimal) *decimal.Decimal {
	switch {
	case entryRate != nil:
		return entryRate
	case projectRate != nil:
		return projectRate
	default:
		return settingsRate
	}
}

// DayBounds returns the inclusive [start, end] instants of the calendar day
// containing t, in t's location. The end is the last millisecond of the day.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1).Add(-time.Millisecond)
}

// WeekBounds returns the inclusive bounds of the week containing t.
// weekStartDay follows time.Weekday numbering (0=Sunday .. 6=Saturday).
func WeekBounds(t time.Time, weekStartDay int) (time.Time, time.Time) {
	dayStart, _ := DayBounds(t)
	offset := (int(dayStart.Weekday()) - weekStartDay + 7) % 7
	start := dayStart.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7).Add(-time.Millisecond)
}

// MonthBounds returns the inclusive bounds of the calendar month containing
// t. AddDate normalization keeps this correct across month lengths and leap
// years.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0).Add(-time.Millisecond)
}
