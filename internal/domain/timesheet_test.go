package domain

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDailyTimesheetAggregatesEntries(t *testing.T) {
	clock := &testClock{now: time.Date(2026, time.March, 2, 15, 0, 0, 0, time.UTC)}
	service, repo, _ := newTestService(clock, nil)

	amount := decimal.NewFromInt(100)
	end := time.Date(2026, time.March, 2, 11, 0, 0, 0, time.UTC)
	repo.seed(TimeEntry{
		ID:                 "entry-finished",
		TenantID:           "tenant-1",
		UserID:             "user-1",
		StartTime:          end.Add(-2 * time.Hour),
		EndTime:            &end,
		DurationMin:        120,
		RoundedDurationMin: 120,
		TotalAmount:        &amount,
		Status:             StatusDraft,
		IsActive:           true,
	})
	// Running since 14:00, clock at 15:00: contributes 60 elapsed minutes.
	repo.seed(TimeEntry{
		ID:        "entry-running",
		TenantID:  "tenant-1",
		UserID:    "user-1",
		StartTime: time.Date(2026, time.March, 2, 14, 0, 0, 0, time.UTC),
		IsRunning: true,
		Status:    StatusDraft,
		IsActive:  true,
	})
	// Previous day, outside the window.
	prevEnd := time.Date(2026, time.March, 1, 18, 0, 0, 0, time.UTC)
	repo.seed(TimeEntry{
		ID:          "entry-yesterday",
		TenantID:    "tenant-1",
		UserID:      "user-1",
		StartTime:   prevEnd.Add(-time.Hour),
		EndTime:     &prevEnd,
		DurationMin: 60,
		Status:      StatusDraft,
		IsActive:    true,
	})

	sheet, err := service.GetDailyTimesheet(context.Background(), "tenant-1", "user-1", clock.now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sheet.Entries) != 2 {
		t.Fatalf("expected 2 entries got %d", len(sheet.Entries))
	}
	if sheet.TotalMin != 180 {
		t.Fatalf("expected total 180 got %d", sheet.TotalMin)
	}
	if sheet.TotalRoundedMin != 120 {
		t.Fatalf("expected rounded total 120 got %d", sheet.TotalRoundedMin)
	}
	if !sheet.BillableAmount.Equal(amount) {
		t.Fatalf("expected amount 100 got %s", sheet.BillableAmount)
	}
	if !sheet.HasRunningTimer {
		t.Fatalf("expected running timer flagged")
	}
}

func TestDailyTimesheetExcludesEntryTouchingPeriodStart(t *testing.T) {
	clock := &testClock{now: time.Date(2026, time.March, 2, 15, 0, 0, 0, time.UTC)}
	service, repo, _ := newTestService(clock, nil)

	// Ends exactly at midnight: belongs to March 1, not March 2.
	midnight := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	repo.seed(TimeEntry{
		ID:          "entry-night",
		TenantID:    "tenant-1",
		UserID:      "user-1",
		StartTime:   midnight.Add(-2 * time.Hour),
		EndTime:     &midnight,
		DurationMin: 120,
		Status:      StatusDraft,
		IsActive:    true,
	})

	sheet, err := service.GetDailyTimesheet(context.Background(), "tenant-1", "user-1", clock.now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sheet.Entries) != 0 || sheet.TotalMin != 0 {
		t.Fatalf("expected empty sheet, got %+v", sheet)
	}

	prev, err := service.GetDailyTimesheet(context.Background(), "tenant-1", "user-1", midnight.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prev.Entries) != 1 || prev.TotalMin != 120 {
		t.Fatalf("expected the entry on the previous day, got %+v", prev)
	}
}

func TestWeeklyTimesheetBreaksDownByDay(t *testing.T) {
	clock := &testClock{now: time.Date(2026, time.March, 6, 18, 0, 0, 0, time.UTC)}
	service, repo, _ := newTestService(clock, nil)

	// Monday and Wednesday of the week of 2026-03-02.
	for i, day := range []int{2, 4} {
		end := time.Date(2026, time.March, day, 12, 0, 0, 0, time.UTC)
		repo.seed(TimeEntry{
			ID:                 []string{"entry-mon", "entry-wed"}[i],
			TenantID:           "tenant-1",
			UserID:             "user-1",
			StartTime:          end.Add(-90 * time.Minute),
			EndTime:            &end,
			DurationMin:        90,
			RoundedDurationMin: 90,
			Status:             StatusDraft,
			IsActive:           true,
		})
	}

	sheet, err := service.GetWeeklyTimesheet(context.Background(), "tenant-1", "user-1", time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sheet.From.Equal(time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected week starting Monday March 2, got %s", sheet.From)
	}
	if len(sheet.Days) != 7 {
		t.Fatalf("expected 7 day slots got %d", len(sheet.Days))
	}
	if sheet.TotalMin != 180 {
		t.Fatalf("expected total 180 got %d", sheet.TotalMin)
	}
	if sheet.Days[0].TotalMin != 90 || sheet.Days[2].TotalMin != 90 {
		t.Fatalf("expected 90 minutes on Monday and Wednesday, got %+v", sheet.Days)
	}
	for _, idx := range []int{1, 3, 4, 5, 6} {
		if sheet.Days[idx].TotalMin != 0 {
			t.Fatalf("expected empty day %d, got %+v", idx, sheet.Days[idx])
		}
	}
}

func TestWeeklyTimesheetHonorsWeekStartDay(t *testing.T) {
	clock := &testClock{now: time.Date(2026, time.March, 6, 18, 0, 0, 0, time.UTC)}
	settings := DefaultSettings("tenant-1")
	settings.WeekStartDay = int(time.Sunday)
	service, _, _ := newTestService(clock, &settings)

	sheet, err := service.GetWeeklyTimesheet(context.Background(), "tenant-1", "user-1", time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sheet.From.Equal(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected week starting Sunday March 1, got %s", sheet.From)
	}
}
