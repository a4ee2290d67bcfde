package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Failure reasons come straight from broker and registry errors, which can
// be arbitrarily long; cap them so a pathological error cannot bloat rows.
const maxFailureReason = 2048

const insertDLQ = `
INSERT INTO outbox_dlq (
    tenant_id, event_id, event_type, topic, payload, reason,
    aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`

// DLQWriter parks time-entry events the dispatcher could not deliver, with
// the failure reason, so they can be inspected and replayed.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter constructs a writer backed by the given pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// Write records one undeliverable event under its tenant.
func (w *DLQWriter) Write(ctx context.Context, msg Message, reason string) error {
	if len(reason) > maxFailureReason {
		reason = reason[:maxFailureReason]
	}

	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", msg.TenantID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, insertDLQ,
		msg.TenantID, msg.EventID, msg.EventType, msg.Topic, msg.Payload, reason,
		msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey,
	); err != nil {
		return fmt.Errorf("park event %d: %w", msg.EventID, err)
	}

	return tx.Commit(ctx)
}
