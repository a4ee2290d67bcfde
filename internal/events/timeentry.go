// Package events defines the event payloads published by this service.
package events

import "time"

// TimeEntryCreated is emitted when a new entry is accepted, whether started
// as a timer or created manually.
type TimeEntryCreated struct {
	EntryID   string    `json:"entry_id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	StartTime time.Time `json:"start_time"`
	IsRunning bool      `json:"is_running"`
	Status    string    `json:"status"`
}

// TimeEntryStateChanged tracks lifecycle changes: timer stops, workflow
// transitions, and deactivations.
type TimeEntryStateChanged struct {
	EntryID    string    `json:"entry_id"`
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"`
	IsRunning  bool      `json:"is_running"`
	OccurredAt time.Time `json:"occurred_at"`
}
