package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/timetrack/internal/domain"
	"example.com/timetrack/internal/observability"
)

// AuditRepository persists append-only audit records and implements the
// repair routine's transactional unit of work.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Append writes one audit record. Records are never updated or deleted.
func (r *AuditRepository) Append(ctx context.Context, record domain.AuditRecord) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", record.TenantID); err != nil {
		return err
	}
	if err = appendAuditTx(ctx, tx, record); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListByEntity returns records for one entity, oldest first.
func (r *AuditRepository) ListByEntity(ctx context.Context, tenantID, entityType, entityID string) ([]domain.AuditRecord, error) {
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

	const query = `SELECT audit_id, tenant_id, entity_type, entity_id, action, changes, actor_id, created_at
        FROM audit_records WHERE tenant_id=$1 AND entity_type=$2 AND entity_id=$3 ORDER BY audit_id`

	rows, err := tx.Query(ctx, query, tenantID, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var (
			record  domain.AuditRecord
			changes []byte
		)
		if err := rows.Scan(&record.ID, &record.TenantID, &record.EntityType, &record.EntityID,
			&record.Action, &changes, &record.ActorID, &record.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(changes, &record.Changes); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

func appendAuditTx(ctx context.Context, tx pgx.Tx, record domain.AuditRecord) error {
	changes, err := json.Marshal(record.Changes)
	if err != nil {
		return err
	}
	const stmt = `INSERT INTO audit_records (tenant_id, entity_type, entity_id, action, changes, actor_id, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err = tx.Exec(ctx, stmt,
		record.TenantID, record.EntityType, record.EntityID, record.Action, changes, record.ActorID, record.CreatedAt)
	return err
}

// RepairStore implements the repair pass against Postgres. It scans outside
// row-level security on purpose: duplicates span every tenant.
type RepairStore struct {
	pool *pgxpool.Pool
}

// NewRepairStore constructs a RepairStore.
func NewRepairStore(pool *pgxpool.Pool) *RepairStore {
	return &RepairStore{pool: pool}
}

// ListRunningDuplicates groups running active entries by (tenant, user) and
// returns every group holding more than one.
func (s *RepairStore) ListRunningDuplicates(ctx context.Context) ([][]domain.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries
        WHERE is_running AND is_active
          AND (tenant_id, user_id) IN (
            SELECT tenant_id, user_id FROM time_entries
            WHERE is_running AND is_active
            GROUP BY tenant_id, user_id HAVING COUNT(*) > 1)
        ORDER BY tenant_id, user_id, start_time`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups [][]domain.TimeEntry
	var current []domain.TimeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if len(current) > 0 &&
			(current[0].TenantID != entry.TenantID || current[0].UserID != entry.UserID) {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups, nil
}

// TenantsWithRunning returns every tenant that currently has at least one
// running active entry. Used by the auto-stop sweeper.
func (s *RepairStore) TenantsWithRunning(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT tenant_id FROM time_entries WHERE is_running AND is_active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenant string
		if err := rows.Scan(&tenant); err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

// ForceStopWithAudit stops one duplicate inside a single transaction. The
// audit insert is best-effort: its failure is reported but does not abort
// the stop. A failed stop rolls the whole unit back, so no audit record can
// describe a change that did not happen.
func (s *RepairStore) ForceStopWithAudit(ctx context.Context, entry domain.TimeEntry, endTime time.Time, record domain.AuditRecord) (auditWritten bool, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	auditWritten = true
	if auditErr := appendAuditTx(ctx, tx, record); auditErr != nil {
		// Best effort: the stop must proceed, but the aborted statement
		// poisons the transaction, so restart it without the audit write.
		auditWritten = false
		tx.Rollback(ctx)
		tx, err = s.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return false, err
		}
	}

	const stmt = `UPDATE time_entries SET is_running=FALSE, end_time=$3, updated_at=$3
        WHERE tenant_id=$1 AND entry_id=$2 AND is_running`
	tag, err := tx.Exec(ctx, stmt, entry.TenantID, entry.ID, endTime)
	if err != nil {
		return auditWritten, err
	}
	if tag.RowsAffected() == 0 {
		// Concurrently stopped; nothing to repair, and the audit record
		// describing a stop must not survive the rollback.
		err = &domain.NotFoundError{Resource: "running timer", ID: entry.ID}
		return false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return auditWritten, err
	}
	observability.RecordRepairForceStop()
	return auditWritten, nil
}
