package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSelectRunningSurvivorLatestStartWins(t *testing.T) {
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	entries := []TimeEntry{
		{ID: "entry-a", StartTime: base},
		{ID: "entry-b", StartTime: base.Add(2 * time.Hour)},
		{ID: "entry-c", StartTime: base.Add(time.Hour)},
	}

	survivor, losers := SelectRunningSurvivor(entries)
	if survivor.ID != "entry-b" {
		t.Fatalf("expected entry-b to survive, got %s", survivor.ID)
	}
	if len(losers) != 2 {
		t.Fatalf("expected 2 losers got %d", len(losers))
	}
	for _, loser := range losers {
		if loser.ID == "entry-b" {
			t.Fatalf("survivor listed among losers")
		}
	}
}

func TestSelectRunningSurvivorIDBreaksTies(t *testing.T) {
	start := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	entries := []TimeEntry{
		{ID: "entry-a", StartTime: start},
		{ID: "entry-c", StartTime: start},
		{ID: "entry-b", StartTime: start},
	}

	survivor, losers := SelectRunningSurvivor(entries)
	if survivor.ID != "entry-c" {
		t.Fatalf("expected highest id to survive, got %s", survivor.ID)
	}
	if len(losers) != 2 {
		t.Fatalf("expected 2 losers got %d", len(losers))
	}
}

type stopCall struct {
	entryID string
	endTime time.Time
	record  AuditRecord
}

type memRepairStore struct {
	groups     [][]TimeEntry
	calls      []stopCall
	failIDs    map[string]bool
	auditFail  map[string]bool
	stoppedIDs map[string]bool
}

func (s *memRepairStore) ListRunningDuplicates(ctx context.Context) ([][]TimeEntry, error) {
	return s.groups, nil
}

func (s *memRepairStore) ForceStopWithAudit(ctx context.Context, entry TimeEntry, endTime time.Time, record AuditRecord) (bool, error) {
	if s.failIDs[entry.ID] {
		return false, errors.New("stop failed")
	}
	if s.stoppedIDs[entry.ID] {
		return false, &NotFoundError{Resource: "running timer", ID: entry.ID}
	}
	s.calls = append(s.calls, stopCall{entryID: entry.ID, endTime: endTime, record: record})
	return !s.auditFail[entry.ID], nil
}

func duplicateGroup(tenantID, userID string, ids ...string) []TimeEntry {
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	group := make([]TimeEntry, 0, len(ids))
	for i, id := range ids {
		group = append(group, TimeEntry{
			ID:        id,
			TenantID:  tenantID,
			UserID:    userID,
			StartTime: base.Add(time.Duration(i) * time.Hour),
			IsRunning: true,
			Status:    StatusDraft,
			IsActive:  true,
		})
	}
	return group
}

func TestRepairerStopsEveryLoser(t *testing.T) {
	store := &memRepairStore{groups: [][]TimeEntry{
		duplicateGroup("tenant-1", "user-1", "entry-a", "entry-b", "entry-c"),
	}}
	clock := &testClock{now: time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)}

	report, err := NewRepairer(store, clock, zap.NewNop(), false).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Groups != 1 || report.Stopped != 2 || report.AuditSkipped != 0 || report.FailedGroups != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(store.calls) != 2 {
		t.Fatalf("expected 2 force-stops got %d", len(store.calls))
	}
	for _, call := range store.calls {
		if call.entryID == "entry-c" {
			t.Fatalf("survivor entry-c was force-stopped")
		}
		if !call.endTime.Equal(clock.now) {
			t.Fatalf("expected end time %s got %s", clock.now, call.endTime)
		}
		if call.record.Action != "repair_force_stop" || call.record.ActorID != SystemActorRepair {
			t.Fatalf("unexpected audit record %+v", call.record)
		}
	}
}

func TestRepairerDryRunStopsNothing(t *testing.T) {
	store := &memRepairStore{groups: [][]TimeEntry{
		duplicateGroup("tenant-1", "user-1", "entry-a", "entry-b"),
	}}
	clock := &testClock{now: time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)}

	report, err := NewRepairer(store, clock, zap.NewNop(), true).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Groups != 1 || report.Stopped != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(store.calls) != 0 {
		t.Fatalf("dry run issued %d force-stops", len(store.calls))
	}
}

func TestRepairerCountsSkippedAudits(t *testing.T) {
	store := &memRepairStore{
		groups: [][]TimeEntry{
			duplicateGroup("tenant-1", "user-1", "entry-a", "entry-b"),
		},
		auditFail: map[string]bool{"entry-a": true},
	}
	clock := &testClock{now: time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)}

	report, err := NewRepairer(store, clock, zap.NewNop(), false).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Stopped != 1 || report.AuditSkipped != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRepairerSkipsConcurrentlyStoppedDuplicates(t *testing.T) {
	store := &memRepairStore{
		groups: [][]TimeEntry{
			duplicateGroup("tenant-1", "user-1", "entry-a", "entry-b", "entry-c"),
		},
		stoppedIDs: map[string]bool{"entry-a": true},
	}
	clock := &testClock{now: time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)}

	report, err := NewRepairer(store, clock, zap.NewNop(), false).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Stopped != 1 {
		t.Fatalf("a no-op must not count as a stop, got %+v", report)
	}
	if report.AuditSkipped != 0 || report.FailedGroups != 0 {
		t.Fatalf("a no-op must not count as a skipped audit or failure, got %+v", report)
	}
	if len(store.calls) != 1 || store.calls[0].entryID != "entry-b" {
		t.Fatalf("expected only entry-b stopped, got %v", store.calls)
	}
}

func TestRepairerContinuesAfterFailedGroup(t *testing.T) {
	store := &memRepairStore{
		groups: [][]TimeEntry{
			duplicateGroup("tenant-1", "user-1", "entry-a", "entry-b"),
			duplicateGroup("tenant-1", "user-2", "entry-c", "entry-d"),
		},
		failIDs: map[string]bool{"entry-a": true},
	}
	clock := &testClock{now: time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)}

	report, err := NewRepairer(store, clock, zap.NewNop(), false).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Groups != 2 || report.FailedGroups != 1 || report.Stopped != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(store.calls) != 1 || store.calls[0].entryID != "entry-c" {
		t.Fatalf("expected the second group still processed, got %v", store.calls)
	}
}
