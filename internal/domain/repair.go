package domain

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// SelectRunningSurvivor picks which of several running entries for the same
// (tenant, actor) keeps running: the one with the latest start time. Entry id
// breaks exact start-time ties deterministically. The remaining entries are
// returned as the duplicates to force-stop.
//
// This is the single definition of the tie-break policy, shared by the
// backfill binary and any live reconciliation path.
func SelectRunningSurvivor(entries []TimeEntry) (TimeEntry, []TimeEntry) {
	survivor := entries[0]
	for _, candidate := range entries[1:] {
		if candidate.StartTime.After(survivor.StartTime) ||
			(candidate.StartTime.Equal(survivor.StartTime) && candidate.ID > survivor.ID) {
			survivor = candidate
		}
	}
	losers := make([]TimeEntry, 0, len(entries)-1)
	for _, entry := range entries {
		if entry.ID != survivor.ID {
			losers = append(losers, entry)
		}
	}
	return survivor, losers
}

// RepairStore is the persistence contract of the repair pass.
type RepairStore interface {
	// ListRunningDuplicates returns, per (tenant, user) holding more than one
	// running active entry, the group of those entries.
	ListRunningDuplicates(ctx context.Context) ([][]TimeEntry, error)
	// ForceStopWithAudit stops one duplicate inside a single transaction:
	// the audit insert and the stop update commit or roll back together. A
	// failed audit insert is tolerated (auditWritten=false) as long as the
	// stop itself succeeds; a failed stop rolls everything back. A duplicate
	// already stopped by a concurrent writer returns *NotFoundError.
	ForceStopWithAudit(ctx context.Context, entry TimeEntry, endTime time.Time, record AuditRecord) (auditWritten bool, err error)
}

// RepairReport summarizes one repair pass.
type RepairReport struct {
	Groups       int
	Stopped      int
	AuditSkipped int
	FailedGroups int
}

// Repairer restores the single-running-timer invariant on a store that
// already violates it, e.g. before the partial unique index is introduced.
type Repairer struct {
	store  RepairStore
	clock  Clock
	logger *zap.Logger
	dryRun bool
}

// NewRepairer constructs a Repairer.
func NewRepairer(store RepairStore, clock Clock, logger *zap.Logger, dryRun bool) *Repairer {
	return &Repairer{store: store, clock: clock, logger: logger, dryRun: dryRun}
}

// Run scans for duplicate running timers and force-stops every entry the
// tie-break does not keep. A failed stop is fatal to its group but the pass
// continues with the remaining groups.
func (r *Repairer) Run(ctx context.Context) (RepairReport, error) {
	groups, err := r.store.ListRunningDuplicates(ctx)
	if err != nil {
		return RepairReport{}, err
	}

	report := RepairReport{Groups: len(groups)}
	now := r.clock.Now()

	for _, group := range groups {
		survivor, losers := SelectRunningSurvivor(group)
		r.logger.Info("duplicate running timers",
			zap.String("tenant_id", survivor.TenantID),
			zap.String("user_id", survivor.UserID),
			zap.String("survivor_id", survivor.ID),
			zap.Int("duplicates", len(losers)))

		groupFailed := false
		for _, loser := range losers {
			if r.dryRun {
				r.logger.Info("dry run: would force-stop",
					zap.String("entry_id", loser.ID),
					zap.Time("end_time", now))
				continue
			}

			record := AuditRecord{
				TenantID:   loser.TenantID,
				EntityType: "time_entry",
				EntityID:   loser.ID,
				Action:     "repair_force_stop",
				Changes: []FieldChange{
					{Field: "is_running", Old: "true", New: "false"},
					{Field: "end_time", Old: "", New: now.Format(time.RFC3339)},
				},
				ActorID:   SystemActorRepair,
				CreatedAt: now,
			}

			auditWritten, err := r.store.ForceStopWithAudit(ctx, loser, now, record)
			if err != nil {
				var notFound *NotFoundError
				if errors.As(err, &notFound) {
					// Already stopped between the scan and this write;
					// nothing was applied, nothing to count.
					r.logger.Info("duplicate already stopped",
						zap.String("entry_id", loser.ID))
					continue
				}
				r.logger.Error("force-stop failed, leaving group for the next pass",
					zap.String("entry_id", loser.ID),
					zap.Error(err))
				groupFailed = true
				break
			}
			if !auditWritten {
				report.AuditSkipped++
				r.logger.Warn("audit write skipped for force-stop",
					zap.String("entry_id", loser.ID))
			}
			report.Stopped++
		}
		if groupFailed {
			report.FailedGroups++
		}
	}
	return report, nil
}
