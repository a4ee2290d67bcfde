package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/timetrack/internal/domain"
)

// SettingsRepository stores the single per-tenant settings row.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository constructs a SettingsRepository.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

const settingsColumns = `tenant_id, rounding_method, rounding_interval_min, default_hourly_rate::text,
        default_currency, require_approval, allow_overlapping, working_hours_per_day, working_hours_per_week,
        week_start_day, auto_stop_after_min, minimum_entry_min, maximum_entry_min, lock_entries_after_days,
        created_at, updated_at`

// Get returns the tenant's settings row, or nil when none exists yet.
func (r *SettingsRepository) Get(ctx context.Context, tenantID string) (*domain.TimeSettings, error) {
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

	query := `SELECT ` + settingsColumns + ` FROM time_settings WHERE tenant_id=$1`
	row := tx.QueryRow(ctx, query, tenantID)

	var (
		settings domain.TimeSettings
		method   string
		rateText *string
	)
	if err := row.Scan(
		&settings.TenantID, &method, &settings.RoundingIntervalMin, &rateText,
		&settings.DefaultCurrency, &settings.RequireApproval, &settings.AllowOverlapping,
		&settings.WorkingHoursPerDay, &settings.WorkingHoursPerWeek, &settings.WeekStartDay,
		&settings.AutoStopAfterMin, &settings.MinimumEntryMin, &settings.MaximumEntryMin,
		&settings.LockEntriesAfter, &settings.CreatedAt, &settings.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}
	settings.RoundingMethod = domain.RoundingMethod(method)
	if settings.DefaultHourlyRate, err = parseDecimal(rateText); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Upsert writes the tenant's single settings row. The unique index on
// tenant_id is the backstop: a concurrent duplicate insert surfaces as
// *domain.ConflictError.
func (r *SettingsRepository) Upsert(ctx context.Context, settings domain.TimeSettings) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", settings.TenantID); err != nil {
		return err
	}

	const update = `UPDATE time_settings SET rounding_method=$2, rounding_interval_min=$3,
        default_hourly_rate=$4, default_currency=$5, require_approval=$6, allow_overlapping=$7,
        working_hours_per_day=$8, working_hours_per_week=$9, week_start_day=$10, auto_stop_after_min=$11,
        minimum_entry_min=$12, maximum_entry_min=$13, lock_entries_after_days=$14, updated_at=NOW()
        WHERE tenant_id=$1`

	tag, err := tx.Exec(ctx, update,
		settings.TenantID,
		string(settings.RoundingMethod),
		settings.RoundingIntervalMin,
		decimalText(settings.DefaultHourlyRate),
		settings.DefaultCurrency,
		settings.RequireApproval,
		settings.AllowOverlapping,
		settings.WorkingHoursPerDay,
		settings.WorkingHoursPerWeek,
		settings.WeekStartDay,
		settings.AutoStopAfterMin,
		settings.MinimumEntryMin,
		settings.MaximumEntryMin,
		settings.LockEntriesAfter,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		const insert = `INSERT INTO time_settings (tenant_id, rounding_method, rounding_interval_min,
            default_hourly_rate, default_currency, require_approval, allow_overlapping,
            working_hours_per_day, working_hours_per_week, week_start_day, auto_stop_after_min,
            minimum_entry_min, maximum_entry_min, lock_entries_after_days, created_at, updated_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW(),NOW())`

		_, err = tx.Exec(ctx, insert,
			settings.TenantID,
			string(settings.RoundingMethod),
			settings.RoundingIntervalMin,
			decimalText(settings.DefaultHourlyRate),
			settings.DefaultCurrency,
			settings.RequireApproval,
			settings.AllowOverlapping,
			settings.WorkingHoursPerDay,
			settings.WorkingHoursPerWeek,
			settings.WeekStartDay,
			settings.AutoStopAfterMin,
			settings.MinimumEntryMin,
			settings.MaximumEntryMin,
			settings.LockEntriesAfter,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				err = &domain.ConflictError{Resource: "settings"}
			}
			return err
		}
	}
	return tx.Commit(ctx)
}
