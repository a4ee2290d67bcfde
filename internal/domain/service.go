// Package domain implements the time-entry lifecycle: timer sessions,
// manual entries, the approval workflow, and the running-timer invariant.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EntryRepository captures persistence operations for time entries.
//
// CreateRunning must rely on the store's conditional uniqueness guarantee
// scoped to (tenant, user) and filtered to running+active rows: a violation
// is returned as *ConflictError carrying the already-running entry id. The
// service never pre-checks for a running entry before inserting.
type EntryRepository interface {
	CreateRunning(ctx context.Context, entry TimeEntry) error
	Create(ctx context.Context, entry TimeEntry) error
	Get(ctx context.Context, tenantID, entryID string) (*TimeEntry, error)
	FindRunning(ctx context.Context, tenantID, userID string) (*TimeEntry, error)
	ListRunning(ctx context.Context, tenantID string) ([]TimeEntry, error)
	// Update applies a single-row atomic update keyed by id. Updating a row
	// that no longer exists returns *NotFoundError.
	Update(ctx context.Context, entry TimeEntry) error
	// UpdateRunning applies the update only while the row is still running.
	// A row already finalized or discarded by a concurrent call returns
	// *NotFoundError: of two racing stops, exactly one applies.
	UpdateRunning(ctx context.Context, entry TimeEntry) error
	// DeleteRunning removes a running entry without finalizing it.
	DeleteRunning(ctx context.Context, tenantID, entryID string) error
	List(ctx context.Context, tenantID string, filter EntryFilter, cursor *Cursor, limit int) ([]TimeEntry, *Cursor, error)
	// ListBetween returns active entries for a user whose interval could
	// intersect [from, to), including still-running entries. Exact half-open
	// overlap semantics are applied by the caller via IntervalsOverlap.
	ListBetween(ctx context.Context, tenantID, userID string, from, to time.Time) ([]TimeEntry, error)
}

// EntryFilter narrows ListEntries results.
type EntryFilter struct {
	UserID   string
	Status   EntryStatus
	Billable *bool
	From     *time.Time
	To       *time.Time
}

// Cursor models the keyset pagination token for entry listings.
type Cursor struct {
	StartTime time.Time
	ID        string
}

// Service orchestrates timer sessions and entry workflows.
type Service struct {
	repo     EntryRepository
	settings *SettingsResolver
	audit    AuditRepository
	clock    Clock
	logger   *zap.Logger
}

// NewService constructs a Service.
func NewService(repo EntryRepository, settings *SettingsResolver, audit AuditRepository, clock Clock, logger *zap.Logger) *Service {
	return &Service{repo: repo, settings: settings, audit: audit, clock: clock, logger: logger}
}

// StartTimerInput captures descriptive attributes for a new running entry.
type StartTimerInput struct {
	Description string
	Tags        []string
	ClientID    *string
	TaskID      *string
	ProjectID   *string
	IsBillable  bool
	HourlyRate  *decimal.Decimal
	Currency    string
}

// StartTimer creates a new running entry for the actor. It always attempts
// the insert; a second concurrent start surfaces as *ConflictError from the
// repository, which is the only correct signal of "already running".
func (s *Service) StartTimer(ctx context.Context, tenantID, userID string, input StartTimerInput) (*TimeEntry, error) {
	settings, err := s.settings.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	currency := input.Currency
	if currency == "" {
		currency = settings.DefaultCurrency
	}

	now := s.clock.Now()
	entry := TimeEntry{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		UserID:      userID,
		ClientID:    input.ClientID,
		TaskID:      input.TaskID,
		ProjectID:   input.ProjectID,
		Description: input.Description,
		Tags:        input.Tags,
		StartTime:   now,
		IsRunning:   true,
		IsBillable:  input.IsBillable,
		HourlyRate:  input.HourlyRate,
		Currency:    currency,
		Status:      StatusDraft,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.CreateRunning(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("timer started",
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID),
		zap.String("entry_id", entry.ID))
	return &entry, nil
}

// StopTimer finalizes the actor's running entry: sets the end time, computes
// raw and rounded duration, resolves the effective rate, and records the
// billable amount. Fails with *NotFoundError when no timer is running.
func (s *Service) StopTimer(ctx context.Context, tenantID, userID string) (*TimeEntry, error) {
	entry, err := s.repo.FindRunning(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, &NotFoundError{Resource: "running timer"}
	}

	settings, err := s.settings.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	s.finalize(entry, now, settings)

	// Conditional on is_running: a concurrent stop that won the race leaves
	// nothing for this one to finalize.
	if err := s.repo.UpdateRunning(ctx, *entry); err != nil {
		return nil, err
	}

	s.logger.Info("timer stopped",
		zap.String("tenant_id", tenantID),
		zap.String("entry_id", entry.ID),
		zap.Int("duration_min", entry.DurationMin),
		zap.Int("rounded_min", entry.RoundedDurationMin))
	return entry, nil
}

// finalize applies end-of-timer math in place. The project-level rate slot
// is unused here: project records live outside this subsystem.
func (s *Service) finalize(entry *TimeEntry, end time.Time, settings TimeSettings) {
	entry.EndTime = &end
	entry.IsRunning = false
	entry.DurationMin = CalculateDuration(entry.StartTime, end)
	entry.RoundedDurationMin = RoundDuration(entry.DurationMin, settings.RoundingMethod, settings.RoundingIntervalMin)

	rate := EffectiveHourlyRate(entry.HourlyRate, nil, settings.DefaultHourlyRate)
	if rate != nil {
		entry.HourlyRate = rate
		if entry.IsBillable {
			amount := CalculateTotalAmount(entry.RoundedDurationMin, *rate)
			entry.TotalAmount = &amount
		}
	}
	entry.UpdatedAt = end
}

// TimerPatch mutates descriptive fields of the running entry. Nil fields are
// left untouched. Start and end time are present only so attempts to set
// them can be rejected explicitly.
type TimerPatch struct {
	Description *string
	Tags        []string
	ClientID    *string
	TaskID      *string
	ProjectID   *string
	StartTime   *time.Time
	EndTime     *time.Time
}

// UpdateActiveTimer mutates descriptive fields of the actor's running entry.
// Time fields cannot be edited while the timer runs.
func (s *Service) UpdateActiveTimer(ctx context.Context, tenantID, userID string, patch TimerPatch) (*TimeEntry, error) {
	if patch.StartTime != nil || patch.EndTime != nil {
		return nil, &ValidationError{Field: "time", Reason: "cannot set start or end time on a running timer"}
	}

	entry, err := s.repo.FindRunning(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, &NotFoundError{Resource: "running timer"}
	}

	changes := applyDescriptivePatch(entry, patch)
	if len(changes) == 0 {
		return entry, nil
	}
	entry.UpdatedAt = s.clock.Now()

	// Conditional write: if the timer was stopped between the read and this
	// update, the stale running snapshot must not resurrect it.
	if err := s.repo.UpdateRunning(ctx, *entry); err != nil {
		return nil, err
	}
	if err := s.appendAudit(ctx, *entry, "update", changes, userID); err != nil {
		return nil, err
	}
	return entry, nil
}

// DiscardTimer removes the actor's running entry without finalizing an
// amount; used when a timer was started by mistake.
func (s *Service) DiscardTimer(ctx context.Context, tenantID, userID string) error {
	entry, err := s.repo.FindRunning(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if entry == nil {
		return &NotFoundError{Resource: "running timer"}
	}
	if err := s.repo.DeleteRunning(ctx, tenantID, entry.ID); err != nil {
		return err
	}
	s.logger.Info("timer discarded",
		zap.String("tenant_id", tenantID),
		zap.String("entry_id", entry.ID))
	return nil
}

// GetActiveTimer returns the actor's running entry, or nil when none exists.
// Lets a reconnecting client resynchronize its view.
func (s *Service) GetActiveTimer(ctx context.Context, tenantID, userID string) (*TimeEntry, error) {
	return s.repo.FindRunning(ctx, tenantID, userID)
}

// ManualEntryInput captures a manually created, already-finished entry.
type ManualEntryInput struct {
	Description string
	Tags        []string
	ClientID    *string
	TaskID      *string
	ProjectID   *string
	StartTime   time.Time
	EndTime     time.Time
	IsBillable  bool
	HourlyRate  *decimal.Decimal
	Currency    string
}

// CreateManualEntry creates a finished draft entry. The time range must be
// valid, and unless the tenant allows overlapping entries it must not
// intersect any existing entry for the actor.
func (s *Service) CreateManualEntry(ctx context.Context, tenantID, userID string, input ManualEntryInput) (*TimeEntry, error) {
	if input.StartTime.IsZero() || !input.EndTime.After(input.StartTime) {
		return nil, &ValidationError{Field: "time_range", Reason: "end time must be after start time"}
	}

	settings, err := s.settings.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if !settings.AllowOverlapping {
		if err := s.checkOverlap(ctx, tenantID, userID, input.StartTime, input.EndTime, ""); err != nil {
			return nil, err
		}
	}

	currency := input.Currency
	if currency == "" {
		currency = settings.DefaultCurrency
	}

	now := s.clock.Now()
	entry := TimeEntry{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		UserID:      userID,
		ClientID:    input.ClientID,
		TaskID:      input.TaskID,
		ProjectID:   input.ProjectID,
		Description: input.Description,
		Tags:        input.Tags,
		StartTime:   input.StartTime,
		IsBillable:  input.IsBillable,
		HourlyRate:  input.HourlyRate,
		Currency:    currency,
		Status:      StatusDraft,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.finalize(&entry, input.EndTime, settings)
	entry.UpdatedAt = now

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Service) checkOverlap(ctx context.Context, tenantID, userID string, start, end time.Time, excludeID string) error {
	candidates, err := s.repo.ListBetween(ctx, tenantID, userID, start, end)
	if err != nil {
		return err
	}
	endPtr := &end
	for _, candidate := range candidates {
		if candidate.ID == excludeID || !candidate.IsActive {
			continue
		}
		if IntervalsOverlap(start, endPtr, candidate.StartTime, candidate.EndTime) {
			return &ValidationError{Field: "time_range", Reason: fmt.Sprintf("overlaps entry %s", candidate.ID)}
		}
	}
	return nil
}

// EntryPatch mutates a finished entry. Nil fields are left untouched.
type EntryPatch struct {
	Description *string
	Tags        []string
	ClientID    *string
	TaskID      *string
	ProjectID   *string
	StartTime   *time.Time
	EndTime     *time.Time
	IsBillable  *bool
	HourlyRate  *decimal.Decimal
	Currency    *string
}

// UpdateEntry edits a draft or rejected entry. Billed entries are immutable,
// submitted and approved entries must go back through the workflow, and
// entries older than the tenant's lock window cannot be edited.
func (s *Service) UpdateEntry(ctx context.Context, tenantID, actorID, entryID string, patch EntryPatch) (*TimeEntry, error) {
	entry, err := s.repo.Get(ctx, tenantID, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil || !entry.IsActive {
		return nil, &NotFoundError{Resource: "time entry", ID: entryID}
	}
	if entry.Status == StatusBilled {
		return nil, &ForbiddenError{Reason: "billed entries are immutable"}
	}
	if entry.IsRunning {
		return nil, &ValidationError{Field: "entry", Reason: "use the timer operations to modify a running entry"}
	}
	if entry.Status != StatusDraft && entry.Status != StatusRejected {
		return nil, &StateError{From: entry.Status, Action: "update"}
	}

	settings, err := s.settings.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if settings.LockEntriesAfter > 0 {
		lockAt := entry.StartTime.AddDate(0, 0, settings.LockEntriesAfter)
		if now.After(lockAt) {
			return nil, &ForbiddenError{Reason: fmt.Sprintf("entry is locked after %d days", settings.LockEntriesAfter)}
		}
	}

	changes := applyDescriptivePatch(entry, TimerPatch{
		Description: patch.Description,
		Tags:        patch.Tags,
		ClientID:    patch.ClientID,
		TaskID:      patch.TaskID,
		ProjectID:   patch.ProjectID,
	})
	changes = append(changes, applyBillingPatch(entry, patch)...)

	start := entry.StartTime
	end := entry.EndTime
	timesChanged := false
	if patch.StartTime != nil && !patch.StartTime.Equal(start) {
		changes = append(changes, FieldChange{Field: "start_time", Old: start.Format(time.RFC3339), New: patch.StartTime.Format(time.RFC3339)})
		start = *patch.StartTime
		timesChanged = true
	}
	if patch.EndTime != nil && (end == nil || !patch.EndTime.Equal(*end)) {
		oldVal := ""
		if end != nil {
			oldVal = end.Format(time.RFC3339)
		}
		changes = append(changes, FieldChange{Field: "end_time", Old: oldVal, New: patch.EndTime.Format(time.RFC3339)})
		end = patch.EndTime
		timesChanged = true
	}

	if timesChanged {
		if end == nil || !end.After(start) {
			return nil, &ValidationError{Field: "time_range", Reason: "end time must be after start time"}
		}
		if !settings.AllowOverlapping {
			if err := s.checkOverlap(ctx, tenantID, entry.UserID, start, *end, entry.ID); err != nil {
				return nil, err
			}
		}
		entry.StartTime = start
	}
	if len(changes) == 0 {
		return entry, nil
	}

	// Anything affecting duration or rate may have moved; recompute.
	if finalEnd := end; finalEnd != nil {
		s.finalize(entry, *finalEnd, settings)
	}
	entry.UpdatedAt = now

	if err := s.repo.Update(ctx, *entry); err != nil {
		return nil, err
	}
	if err := s.appendAudit(ctx, *entry, "update", changes, actorID); err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteEntry soft-deactivates a finished entry. Running entries must be
// discarded through the timer, and billed entries are immutable.
func (s *Service) DeleteEntry(ctx context.Context, tenantID, actorID, entryID string) error {
	entry, err := s.repo.Get(ctx, tenantID, entryID)
	if err != nil {
		return err
	}
	if entry == nil || !entry.IsActive {
		return &NotFoundError{Resource: "time entry", ID: entryID}
	}
	if entry.Status == StatusBilled {
		return &ForbiddenError{Reason: "billed entries are immutable"}
	}
	if entry.IsRunning {
		return &ValidationError{Field: "entry", Reason: "discard the running timer instead of deleting it"}
	}

	entry.IsActive = false
	entry.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, *entry); err != nil {
		return err
	}
	return s.appendAudit(ctx, *entry, "deactivate",
		[]FieldChange{{Field: "is_active", Old: "true", New: "false"}}, actorID)
}

// GetEntry fetches one entry by id.
func (s *Service) GetEntry(ctx context.Context, tenantID, entryID string) (*TimeEntry, error) {
	entry, err := s.repo.Get(ctx, tenantID, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil || !entry.IsActive {
		return nil, &NotFoundError{Resource: "time entry", ID: entryID}
	}
	return entry, nil
}

// ListEntries returns entries matching the filter with cursor pagination.
func (s *Service) ListEntries(ctx context.Context, tenantID string, filter EntryFilter, cursor *Cursor, limit int) ([]TimeEntry, *Cursor, error) {
	return s.repo.List(ctx, tenantID, filter, cursor, limit)
}

// AutoStopOverdue force-stops running entries that exceeded the tenant's
// auto-stop limit, finalizing them as a normal stop would at the moment the
// limit was reached.
func (s *Service) AutoStopOverdue(ctx context.Context, tenantID string) (int, error) {
	settings, err := s.settings.Resolve(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if settings.AutoStopAfterMin <= 0 {
		return 0, nil
	}

	running, err := s.repo.ListRunning(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	limit := time.Duration(settings.AutoStopAfterMin) * time.Minute
	stopped := 0
	for i := range running {
		entry := running[i]
		if now.Sub(entry.StartTime) < limit {
			continue
		}
		cutoff := entry.StartTime.Add(limit)
		s.finalize(&entry, cutoff, settings)
		entry.UpdatedAt = now
		if err := s.repo.UpdateRunning(ctx, entry); err != nil {
			var notFound *NotFoundError
			if errors.As(err, &notFound) {
				// Stopped by its owner between the scan and this write.
				continue
			}
			return stopped, err
		}
		if err := s.appendAudit(ctx, entry, "auto_stop", []FieldChange{
			{Field: "is_running", Old: "true", New: "false"},
			{Field: "end_time", Old: "", New: cutoff.Format(time.RFC3339)},
		}, SystemActorRepair); err != nil {
			return stopped, err
		}
		stopped++
		s.logger.Warn("auto-stopped overdue timer",
			zap.String("tenant_id", tenantID),
			zap.String("entry_id", entry.ID),
			zap.Time("cutoff", cutoff))
	}
	return stopped, nil
}

func (s *Service) appendAudit(ctx context.Context, entry TimeEntry, action string, changes []FieldChange, actorID string) error {
	return s.audit.Append(ctx, AuditRecord{
		TenantID:   entry.TenantID,
		EntityType: "time_entry",
		EntityID:   entry.ID,
		Action:     action,
		Changes:    changes,
		ActorID:    actorID,
		CreatedAt:  s.clock.Now(),
	})
}

func applyDescriptivePatch(entry *TimeEntry, patch TimerPatch) []FieldChange {
	var changes []FieldChange
	if patch.Description != nil && *patch.Description != entry.Description {
		changes = append(changes, FieldChange{Field: "description", Old: entry.Description, New: *patch.Description})
		entry.Description = *patch.Description
	}
	if patch.Tags != nil {
		changes = append(changes, FieldChange{Field: "tags", Old: fmt.Sprintf("%v", entry.Tags), New: fmt.Sprintf("%v", patch.Tags)})
		entry.Tags = patch.Tags
	}
	if patch.ClientID != nil {
		changes = append(changes, linkChange("client_id", entry.ClientID, patch.ClientID))
		entry.ClientID = nilIfBlank(patch.ClientID)
	}
	if patch.TaskID != nil {
		changes = append(changes, linkChange("task_id", entry.TaskID, patch.TaskID))
		entry.TaskID = nilIfBlank(patch.TaskID)
	}
	if patch.ProjectID != nil {
		changes = append(changes, linkChange("project_id", entry.ProjectID, patch.ProjectID))
		entry.ProjectID = nilIfBlank(patch.ProjectID)
	}
	return changes
}

func applyBillingPatch(entry *TimeEntry, patch EntryPatch) []FieldChange {
	var changes []FieldChange
	if patch.IsBillable != nil && *patch.IsBillable != entry.IsBillable {
		changes = append(changes, FieldChange{Field: "is_billable", Old: fmt.Sprintf("%t", entry.IsBillable), New: fmt.Sprintf("%t", *patch.IsBillable)})
		entry.IsBillable = *patch.IsBillable
	}
	if patch.HourlyRate != nil && (entry.HourlyRate == nil || !patch.HourlyRate.Equal(*entry.HourlyRate)) {
		oldVal := ""
		if entry.HourlyRate != nil {
			oldVal = entry.HourlyRate.String()
		}
		changes = append(changes, FieldChange{Field: "hourly_rate", Old: oldVal, New: patch.HourlyRate.String()})
		entry.HourlyRate = patch.HourlyRate
	}
	if patch.Currency != nil && *patch.Currency != entry.Currency {
		changes = append(changes, FieldChange{Field: "currency", Old: entry.Currency, New: *patch.Currency})
		entry.Currency = *patch.Currency
	}
	return changes
}

func linkChange(field string, oldVal, newVal *string) FieldChange {
	change := FieldChange{Field: field}
	if oldVal != nil {
		change.Old = *oldVal
	}
	if newVal != nil {
		change.New = *newVal
	}
	return change
}

func nilIfBlank(value *string) *string {
	if value == nil || *value == "" {
		return nil
	}
	return value
}
