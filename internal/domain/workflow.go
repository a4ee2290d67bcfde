package domain

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Submit moves a draft or rejected entry into review. The entry must be
// finished, and its rounded duration must fall inside the tenant's
// configured bounds when those are set.
func (s *Service) Submit(ctx context.Context, tenantID, actorID, entryID string) (*TimeEntry, error) {
	entry, err := s.workflowEntry(ctx, tenantID, entryID, "submit")
	if err != nil {
		return nil, err
	}
	if entry.Status != StatusDraft && entry.Status != StatusRejected {
		return nil, &StateError{From: entry.Status, Action: "submit"}
	}
	if entry.IsRunning || entry.EndTime == nil {
		return nil, &ValidationError{Field: "end_time", Reason: "a running timer cannot be submitted"}
	}

	settings, err := s.settings.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if settings.MinimumEntryMin > 0 && entry.RoundedDurationMin < settings.MinimumEntryMin {
		return nil, &ValidationError{Field: "duration", Reason: fmt.Sprintf("below minimum of %d minutes", settings.MinimumEntryMin)}
	}
	if settings.MaximumEntryMin > 0 && entry.RoundedDurationMin > settings.MaximumEntryMin {
		return nil, &ValidationError{Field: "duration", Reason: fmt.Sprintf("above maximum of %d minutes", settings.MaximumEntryMin)}
	}

	from := entry.Status
	now := s.clock.Now()
	entry.Status = StatusSubmitted
	entry.SubmittedAt = &now
	entry.RejectionNote = ""
	entry.UpdatedAt = now
	return s.commitTransition(ctx, entry, from, actorID, "submit")
}

// Approve accepts a submitted entry. The approver must not be the entry's
// own actor: self-approval is forbidden.
func (s *Service) Approve(ctx context.Context, tenantID, approverID, entryID string) (*TimeEntry, error) {
	entry, err := s.workflowEntry(ctx, tenantID, entryID, "approve")
	if err != nil {
		return nil, err
	}
	if entry.Status != StatusSubmitted {
		return nil, &StateError{From: entry.Status, Action: "approve"}
	}
	if approverID == entry.UserID {
		return nil, &ForbiddenError{Reason: "an entry cannot be approved by its own actor"}
	}

	from := entry.Status
	now := s.clock.Now()
	entry.Status = StatusApproved
	entry.ApprovedBy = &approverID
	entry.ApprovedAt = &now
	entry.UpdatedAt = now
	return s.commitTransition(ctx, entry, from, approverID, "approve")
}

// Reject returns a submitted entry to its actor with a mandatory note. The
// entry can be corrected and resubmitted.
func (s *Service) Reject(ctx context.Context, tenantID, actorID, entryID, note string) (*TimeEntry, error) {
	if note == "" {
		return nil, &ValidationError{Field: "rejection_note", Reason: "a rejection note is required"}
	}
	entry, err := s.workflowEntry(ctx, tenantID, entryID, "reject")
	if err != nil {
		return nil, err
	}
	if entry.Status != StatusSubmitted {
		return nil, &StateError{From: entry.Status, Action: "reject"}
	}

	from := entry.Status
	now := s.clock.Now()
	entry.Status = StatusRejected
	entry.RejectionNote = note
	entry.UpdatedAt = now
	return s.commitTransition(ctx, entry, from, actorID, "reject")
}

// Bill marks an approved entry as billed, the terminal state. When the
// tenant does not require approval, a finished draft or submitted entry is
// considered bill-ready as well; the legal transition graph is unchanged.
func (s *Service) Bill(ctx context.Context, tenantID, actorID, entryID string) (*TimeEntry, error) {
	entry, err := s.workflowEntry(ctx, tenantID, entryID, "bill")
	if err != nil {
		return nil, err
	}

	if entry.Status != StatusApproved {
		settings, err := s.settings.Resolve(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		billReady := !settings.RequireApproval &&
			(entry.Status == StatusDraft || entry.Status == StatusSubmitted) &&
			entry.EndTime != nil
		if !billReady {
			return nil, &StateError{From: entry.Status, Action: "bill"}
		}
	}

	from := entry.Status
	now := s.clock.Now()
	entry.Status = StatusBilled
	entry.BilledAt = &now
	entry.UpdatedAt = now
	return s.commitTransition(ctx, entry, from, actorID, "bill")
}

// workflowEntry loads an entry for a transition, applying the guards shared
// by every transition: the entry must exist, be active, and not be billed.
func (s *Service) workflowEntry(ctx context.Context, tenantID, entryID, action string) (*TimeEntry, error) {
	entry, err := s.repo.Get(ctx, tenantID, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil || !entry.IsActive {
		return nil, &NotFoundError{Resource: "time entry", ID: entryID}
	}
	if entry.Status == StatusBilled {
		return nil, &ForbiddenError{Reason: fmt.Sprintf("cannot %s a billed entry", action)}
	}
	return entry, nil
}

func (s *Service) commitTransition(ctx context.Context, entry *TimeEntry, from EntryStatus, actorID, action string) (*TimeEntry, error) {
	if err := s.repo.Update(ctx, *entry); err != nil {
		return nil, err
	}
	if err := s.appendAudit(ctx, *entry, action, []FieldChange{
		{Field: "status", Old: string(from), New: string(entry.Status)},
	}, actorID); err != nil {
		return nil, err
	}
	s.logger.Info("workflow transition",
		zap.String("tenant_id", entry.TenantID),
		zap.String("entry_id", entry.ID),
		zap.String("action", action),
		zap.String("from", string(from)),
		zap.String("to", string(entry.Status)))
	return entry, nil
}
