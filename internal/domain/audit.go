package domain

import (
	"context"
	"time"
)

// SystemActorRepair identifies changes made by the invariant-repair routine
// rather than a human actor.
const SystemActorRepair = "system:timer-repair"

// FieldChange records one field's before/after values within an audit record.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// AuditRecord is an append-only description of a mutation: which entity
// changed, how, and on whose behalf.
type AuditRecord struct {
	ID         int64
	TenantID   string
	EntityType string
	EntityID   string
	Action     string
	Changes    []FieldChange
	ActorID    string
	CreatedAt  time.Time
}

// AuditRepository persists audit records append-only.
type AuditRepository interface {
	Append(ctx context.Context, record AuditRecord) error
	// ListByEntity returns records for one entity, oldest first.
	ListByEntity(ctx context.Context, tenantID, entityType, entityID string) ([]AuditRecord, error)
}
