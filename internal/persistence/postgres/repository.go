// Package postgres provides pgx-backed persistence for time entries,
// settings, and audit records.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"example.com/timetrack/internal/domain"
	"example.com/timetrack/internal/events"
	"example.com/timetrack/internal/observability"
)

// Name of the partial unique index enforcing the single-running-timer
// invariant. A 23505 on this index is the canonical "already running" signal.
const runningTimerConstraint = "uniq_running_timer"

const uniqueViolation = "23505"

const entryColumns = `entry_id, tenant_id, user_id, client_id, task_id, project_id, description, tags,
        start_time, end_time, is_running, is_billable, hourly_rate::text, total_amount::text, currency,
        duration_min, rounded_duration_min, status, rejection_note, submitted_at, approved_by, approved_at,
        billed_at, is_active, created_at, updated_at`

// Repository provides Postgres-backed persistence for time entries and
// their outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateRunning inserts a new running entry. It never pre-checks: a unique
// violation on the running-timer index is translated into a typed
// *domain.ConflictError carrying the id of the entry already running.
func (r *Repository) CreateRunning(ctx context.Context, entry domain.TimeEntry) error {
	err := r.create(ctx, entry)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == runningTimerConstraint {
			observability.RecordTimerConflict()
			conflict := &domain.ConflictError{Resource: "timer"}
			if running, findErr := r.FindRunning(ctx, entry.TenantID, entry.UserID); findErr == nil && running != nil {
				conflict.RunningEntryID = running.ID
			}
			return conflict
		}
		return err
	}
	observability.RecordTimerStarted()
	return nil
}

// Create inserts a finished manual entry.
func (r *Repository) Create(ctx context.Context, entry domain.TimeEntry) error {
	return r.create(ctx, entry)
}

// create persists the entry and records the created event inside a single
// transaction.
func (r *Repository) create(ctx context.Context, entry domain.TimeEntry) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", entry.TenantID); err != nil {
		return err
	}

	const insertEntry = `INSERT INTO time_entries (entry_id, tenant_id, user_id, client_id, task_id, project_id,
        description, tags, start_time, end_time, is_running, is_billable, hourly_rate, total_amount, currency,
        duration_min, rounded_duration_min, status, rejection_note, submitted_at, approved_by, approved_at,
        billed_at, is_active, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)`

	_, err = tx.Exec(ctx, insertEntry,
		entry.ID,
		entry.TenantID,
		entry.UserID,
		entry.ClientID,
		entry.TaskID,
		entry.ProjectID,
		entry.Description,
		entry.Tags,
		entry.StartTime,
		entry.EndTime,
		entry.IsRunning,
		entry.IsBillable,
		decimalText(entry.HourlyRate),
		decimalText(entry.TotalAmount),
		entry.Currency,
		entry.DurationMin,
		entry.RoundedDurationMin,
		string(entry.Status),
		entry.RejectionNote,
		entry.SubmittedAt,
		entry.ApprovedBy,
		entry.ApprovedAt,
		entry.BilledAt,
		entry.IsActive,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, entry, "timeentry.created", events.TimeEntryCreated{
		EntryID:   entry.ID,
		TenantID:  entry.TenantID,
		UserID:    entry.UserID,
		StartTime: entry.StartTime,
		IsRunning: entry.IsRunning,
		Status:    string(entry.Status),
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordEntryPersisted(entry.UpdatedAt)
	return nil
}

// Get retrieves an entry by id.
func (r *Repository) Get(ctx context.Context, tenantID, entryID string) (*domain.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE tenant_id=$1 AND entry_id=$2`
	return r.queryOne(ctx, tenantID, query, tenantID, entryID)
}

// FindRunning returns the single running active entry for the actor, or nil.
func (r *Repository) FindRunning(ctx context.Context, tenantID, userID string) (*domain.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries
        WHERE tenant_id=$1 AND user_id=$2 AND is_running AND is_active`
	return r.queryOne(ctx, tenantID, query, tenantID, userID)
}

// ListRunning returns every running active entry for the tenant.
func (r *Repository) ListRunning(ctx context.Context, tenantID string) ([]domain.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries
        WHERE tenant_id=$1 AND is_running AND is_active ORDER BY start_time`
	return r.queryMany(ctx, tenantID, query, tenantID)
}

// Update applies a single-row atomic update keyed by id.
func (r *Repository) Update(ctx context.Context, entry domain.TimeEntry) error {
	return r.update(ctx, entry, false)
}

// UpdateRunning applies the update only while the row is still running. Zero
// rows means the timer was finalized or discarded by a concurrent call; that
// surfaces as *domain.NotFoundError so the loser of a stop race fails cleanly
// instead of double-applying.
func (r *Repository) UpdateRunning(ctx context.Context, entry domain.TimeEntry) error {
	return r.update(ctx, entry, true)
}

func (r *Repository) update(ctx context.Context, entry domain.TimeEntry, onlyRunning bool) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", entry.TenantID); err != nil {
		return err
	}

	stmt := `UPDATE time_entries SET client_id=$3, task_id=$4, project_id=$5, description=$6, tags=$7,
        start_time=$8, end_time=$9, is_running=$10, is_billable=$11, hourly_rate=$12, total_amount=$13,
        currency=$14, duration_min=$15, rounded_duration_min=$16, status=$17, rejection_note=$18,
        submitted_at=$19, approved_by=$20, approved_at=$21, billed_at=$22, is_active=$23, updated_at=$24
        WHERE tenant_id=$1 AND entry_id=$2`
	if onlyRunning {
		stmt += ` AND is_running`
	}

	tag, err := tx.Exec(ctx, stmt,
		entry.TenantID,
		entry.ID,
		entry.ClientID,
		entry.TaskID,
		entry.ProjectID,
		entry.Description,
		entry.Tags,
		entry.StartTime,
		entry.EndTime,
		entry.IsRunning,
		entry.IsBillable,
		decimalText(entry.HourlyRate),
		decimalText(entry.TotalAmount),
		entry.Currency,
		entry.DurationMin,
		entry.RoundedDurationMin,
		string(entry.Status),
		entry.RejectionNote,
		entry.SubmittedAt,
		entry.ApprovedBy,
		entry.ApprovedAt,
		entry.BilledAt,
		entry.IsActive,
		entry.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if onlyRunning {
			err = &domain.NotFoundError{Resource: "running timer", ID: entry.ID}
		} else {
			err = &domain.NotFoundError{Resource: "time entry", ID: entry.ID}
		}
		return err
	}

	if err = insertOutbox(ctx, tx, entry, "timeentry.state_changed", events.TimeEntryStateChanged{
		EntryID:    entry.ID,
		TenantID:   entry.TenantID,
		UserID:     entry.UserID,
		Status:     string(entry.Status),
		IsRunning:  entry.IsRunning,
		OccurredAt: entry.UpdatedAt,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordEntryPersisted(entry.UpdatedAt)
	observability.RecordEntryStateChange(string(entry.Status))
	return nil
}

// DeleteRunning hard-deletes a running entry. Used only by timer discard.
func (r *Repository) DeleteRunning(ctx context.Context, tenantID, entryID string) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM time_entries WHERE tenant_id=$1 AND entry_id=$2 AND is_running`, tenantID, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = &domain.NotFoundError{Resource: "running timer", ID: entryID}
		return err
	}
	return tx.Commit(ctx)
}

// List returns active entries matching the filter, newest first, with keyset
// pagination on (start_time, entry_id).
func (r *Repository) List(ctx context.Context, tenantID string, filter domain.EntryFilter, cursor *domain.Cursor, limit int) ([]domain.TimeEntry, *domain.Cursor, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE tenant_id=$1 AND is_active`
	args := []interface{}{tenantID}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND user_id=$%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if filter.Billable != nil {
		args = append(args, *filter.Billable)
		query += fmt.Sprintf(" AND is_billable=$%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND start_time >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND start_time <= $%d", len(args))
	}
	if cursor != nil {
		args = append(args, cursor.StartTime, cursor.ID)
		query += fmt.Sprintf(" AND (start_time, entry_id) < ($%d, $%d)", len(args)-1, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY start_time DESC, entry_id DESC LIMIT $%d", len(args))

	results, err := r.queryMany(ctx, tenantID, query, args...)
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return results, next, nil
}

// ListBetween returns active entries for a user whose interval could
// intersect [from, to), including still-running entries. The filter is
// deliberately generous; callers apply exact half-open semantics.
func (r *Repository) ListBetween(ctx context.Context, tenantID, userID string, from, to time.Time) ([]domain.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries
        WHERE tenant_id=$1 AND user_id=$2 AND is_active
          AND start_time <= $4 AND (end_time IS NULL OR end_time >= $3)
        ORDER BY start_time`
	return r.queryMany(ctx, tenantID, query, tenantID, userID, from, to)
}

func (r *Repository) queryOne(ctx context.Context, tenantID, query string, args ...interface{}) (*domain.TimeEntry, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, query, args...)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *Repository) queryMany(ctx context.Context, tenantID, query string, args ...interface{}) ([]domain.TimeEntry, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.TimeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*domain.TimeEntry, error) {
	var (
		entry      domain.TimeEntry
		status     string
		rateText   *string
		amountText *string
	)
	if err := row.Scan(
		&entry.ID, &entry.TenantID, &entry.UserID, &entry.ClientID, &entry.TaskID, &entry.ProjectID,
		&entry.Description, &entry.Tags, &entry.StartTime, &entry.EndTime, &entry.IsRunning,
		&entry.IsBillable, &rateText, &amountText, &entry.Currency, &entry.DurationMin,
		&entry.RoundedDurationMin, &status, &entry.RejectionNote, &entry.SubmittedAt,
		&entry.ApprovedBy, &entry.ApprovedAt, &entry.BilledAt, &entry.IsActive,
		&entry.CreatedAt, &entry.UpdatedAt,
	); err != nil {
		return nil, err
	}
	entry.Status = domain.EntryStatus(status)

	var err error
	if entry.HourlyRate, err = parseDecimal(rateText); err != nil {
		return nil, err
	}
	if entry.TotalAmount, err = parseDecimal(amountText); err != nil {
		return nil, err
	}
	return &entry, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, entry domain.TimeEntry, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	partitionKey := meta.PartitionKeyFn(entry)
	dedupeKey := fmt.Sprintf("%s:%s:%d", entry.ID, eventType, entry.UpdatedAt.UnixNano())

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		entry.TenantID,
		"time_entry",
		entry.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

func decimalText(value *decimal.Decimal) interface{} {
	if value == nil {
		return nil
	}
	return value.String()
}

func parseDecimal(text *string) (*decimal.Decimal, error) {
	if text == nil {
		return nil, nil
	}
	parsed, err := decimal.NewFromString(*text)
	if err != nil {
		return nil, fmt.Errorf("parsing numeric column: %w", err)
	}
	return &parsed, nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.TimeEntry) string
}

var eventCatalog = map[string]EventMetadata{
	"timeentry.created": {
		Topic:         "timeentry_events",
		SchemaSubject: "timeentry_events-value",
		PartitionKeyFn: func(e domain.TimeEntry) string {
			return fmt.Sprintf("%s:%s", e.TenantID, e.UserID)
		},
	},
	"timeentry.state_changed": {
		Topic:         "timeentry_state_changed",
		SchemaSubject: "timeentry_state_changed-value",
		PartitionKeyFn: func(e domain.TimeEntry) string {
			return e.ID
		},
	},
}
