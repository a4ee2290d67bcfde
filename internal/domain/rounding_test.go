package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCalculateDuration(t *testing.T) {
	start := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		end  time.Time
		want int
	}{
		{"whole minutes", start.Add(90 * time.Minute), 90},
		{"partial minute floors", start.Add(90*time.Minute + 59*time.Second), 90},
		{"end equals start", start, 0},
		{"end before start clamps to zero", start.Add(-time.Hour), 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CalculateDuration(start, tc.end); got != tc.want {
				t.Fatalf("expected %d got %d", tc.want, got)
			}
		})
	}
}

func TestRoundDuration(t *testing.T) {
	cases := []struct {
		name     string
		minutes  int
		method   RoundingMethod
		interval int
		want     int
	}{
		{"none passes through", 52, RoundingNone, 15, 52},
		{"zero interval passes through", 52, RoundingUp, 0, 52},
		{"negative interval passes through", 52, RoundingNearest, -5, 52},
		{"exact multiple untouched", 60, RoundingUp, 15, 60},
		{"up", 52, RoundingUp, 15, 60},
		{"down", 52, RoundingDown, 15, 45},
		{"nearest down", 51, RoundingNearest, 15, 45},
		{"nearest up", 53, RoundingNearest, 15, 60},
		{"nearest half tie rounds up", 45, RoundingNearest, 30, 60},
		{"up one past multiple", 61, RoundingUp, 60, 120},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RoundDuration(tc.minutes, tc.method, tc.interval); got != tc.want {
				t.Fatalf("expected %d got %d", tc.want, got)
			}
		})
	}
}

func TestCalculateTotalAmount(t *testing.T) {
	rate := decimal.NewFromInt(100)
	amount := CalculateTotalAmount(150, rate)
	if amount.String() != "250" {
		t.Fatalf("expected 250 got %s", amount.String())
	}

	// 50 minutes at 100/h is 83.333..., rounded to cents.
	amount = CalculateTotalAmount(50, rate)
	if amount.String() != "83.33" {
		t.Fatalf("expected 83.33 got %s", amount.String())
	}

	amount = CalculateTotalAmount(0, rate)
	if !amount.IsZero() {
		t.Fatalf("expected zero got %s", amount.String())
	}
}

func TestEffectiveHourlyRate(t *testing.T) {
	entryRate := decimal.NewFromInt(120)
	projectRate := decimal.NewFromInt(90)
	defaultRate := decimal.NewFromInt(60)

	if got := EffectiveHourlyRate(&entryRate, &projectRate, &defaultRate); got == nil || !got.Equal(entryRate) {
		t.Fatalf("entry rate should win, got %v", got)
	}
	if got := EffectiveHourlyRate(nil, &projectRate, &defaultRate); got == nil || !got.Equal(projectRate) {
		t.Fatalf("project rate should win over default, got %v", got)
	}
	if got := EffectiveHourlyRate(nil, nil, &defaultRate); got == nil || !got.Equal(defaultRate) {
		t.Fatalf("default rate should apply, got %v", got)
	}
	if got := EffectiveHourlyRate(nil, nil, nil); got != nil {
		t.Fatalf("expected nil rate, got %v", got)
	}
}

func TestDayBounds(t *testing.T) {
	instant := time.Date(2026, time.March, 2, 14, 30, 0, 0, time.UTC)
	from, to := DayBounds(instant)

	if !from.Equal(time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected day start %s", from)
	}
	if !to.Equal(time.Date(2026, time.March, 2, 23, 59, 59, 999000000, time.UTC)) {
		t.Fatalf("unexpected day end %s", to)
	}
}

func TestWeekBounds(t *testing.T) {
	// Wednesday 2026-03-04.
	wednesday := time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)

	from, to := WeekBounds(wednesday, int(time.Monday))
	if !from.Equal(time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected Monday start, got %s", from)
	}
	if !to.Equal(time.Date(2026, time.March, 8, 23, 59, 59, 999000000, time.UTC)) {
		t.Fatalf("expected Sunday end, got %s", to)
	}

	from, _ = WeekBounds(wednesday, int(time.Sunday))
	if !from.Equal(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected Sunday start, got %s", from)
	}

	// A Monday with a Monday week start is its own week start.
	monday := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	from, _ = WeekBounds(monday, int(time.Monday))
	if !from.Equal(monday) {
		t.Fatalf("expected %s got %s", monday, from)
	}
}

func TestMonthBounds(t *testing.T) {
	// February of a leap year.
	instant := time.Date(2028, time.February, 10, 8, 0, 0, 0, time.UTC)
	from, to := MonthBounds(instant)

	if !from.Equal(time.Date(2028, time.February, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected month start %s", from)
	}
	if !to.Equal(time.Date(2028, time.February, 29, 23, 59, 59, 999000000, time.UTC)) {
		t.Fatalf("unexpected month end %s", to)
	}
}
