package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Timesheet aggregates a user's entries over one period.
type Timesheet struct {
	From            time.Time
	To              time.Time
	TotalMin        int
	TotalRoundedMin int
	BillableAmount  decimal.Decimal
	Entries         []TimeEntry
	HasRunningTimer bool
}

// DailyTotal is one day's slice of a weekly timesheet.
type DailyTotal struct {
	Day             time.Time
	TotalMin        int
	TotalRoundedMin int
	BillableAmount  decimal.Decimal
}

// WeeklyTimesheet adds a per-day breakdown to the period totals.
type WeeklyTimesheet struct {
	Timesheet
	Days []DailyTotal
}

// GetDailyTimesheet aggregates the user's entries for the calendar day
// containing date. A still-running timer contributes its elapsed minutes so
// far but no amount.
func (s *Service) GetDailyTimesheet(ctx context.Context, tenantID, userID string, date time.Time) (*Timesheet, error) {
	from, to := DayBounds(date)
	sheet, err := s.buildTimesheet(ctx, tenantID, userID, from, to)
	if err != nil {
		return nil, err
	}
	return sheet, nil
}

// GetWeeklyTimesheet aggregates the week containing weekStart, using the
// tenant's configured week start day, with a per-day breakdown.
func (s *Service) GetWeeklyTimesheet(ctx context.Context, tenantID, userID string, weekStart time.Time) (*WeeklyTimesheet, error) {
	settings, err := s.settings.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	from, to := WeekBounds(weekStart, settings.WeekStartDay)

	sheet, err := s.buildTimesheet(ctx, tenantID, userID, from, to)
	if err != nil {
		return nil, err
	}

	weekly := &WeeklyTimesheet{Timesheet: *sheet, Days: make([]DailyTotal, 7)}
	for i := range weekly.Days {
		weekly.Days[i] = DailyTotal{Day: from.AddDate(0, 0, i), BillableAmount: decimal.Zero}
	}
	for _, entry := range sheet.Entries {
		idx := daysBetween(from, entry.StartTime)
		if idx < 0 || idx > 6 {
			continue
		}
		day := &weekly.Days[idx]
		day.TotalMin += entryMinutes(entry, s.clock)
		day.TotalRoundedMin += entry.RoundedDurationMin
		if entry.TotalAmount != nil {
			day.BillableAmount = day.BillableAmount.Add(*entry.TotalAmount)
		}
	}
	return weekly, nil
}

// buildTimesheet aggregates the period [from, to]. The store filter is
// generous, so entries are re-checked against the exact half-open interval:
// an entry ending at the period start belongs to the previous period. An
// entry that crosses a period boundary is counted whole in every period it
// overlaps, not split.
func (s *Service) buildTimesheet(ctx context.Context, tenantID, userID string, from, to time.Time) (*Timesheet, error) {
	entries, err := s.repo.ListBetween(ctx, tenantID, userID, from, to)
	if err != nil {
		return nil, err
	}

	// to is the period's last millisecond; the half-open end is one past it.
	periodEnd := to.Add(time.Millisecond)

	sheet := &Timesheet{From: from, To: to, BillableAmount: decimal.Zero}
	for _, entry := range entries {
		if !entry.IsActive {
			continue
		}
		if !IntervalsOverlap(from, &periodEnd, entry.StartTime, entry.EndTime) {
			continue
		}
		sheet.Entries = append(sheet.Entries, entry)
		sheet.TotalMin += entryMinutes(entry, s.clock)
		sheet.TotalRoundedMin += entry.RoundedDurationMin
		if entry.TotalAmount != nil {
			sheet.BillableAmount = sheet.BillableAmount.Add(*entry.TotalAmount)
		}
		if entry.IsRunning {
			sheet.HasRunningTimer = true
		}
	}
	return sheet, nil
}

// entryMinutes returns an entry's raw minutes, measuring a still-running
// entry up to the current instant.
func entryMinutes(entry TimeEntry, clock Clock) int {
	if entry.IsRunning {
		return CalculateDuration(entry.StartTime, clock.Now())
	}
	return entry.DurationMin
}

func daysBetween(from, t time.Time) int {
	fromDay, _ := DayBounds(from)
	tDay, _ := DayBounds(t)
	return int(tDay.Sub(fromDay) / (24 * time.Hour))
}
