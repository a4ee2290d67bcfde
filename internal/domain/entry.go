package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryStatus represents an entry's position in the approval workflow.
type EntryStatus string

const (
	StatusDraft     EntryStatus = "draft"
	StatusSubmitted EntryStatus = "submitted"
	StatusApproved  EntryStatus = "approved"
	StatusRejected  EntryStatus = "rejected"
	StatusBilled    EntryStatus = "billed"
)

// TimeEntry is the tracked-time aggregate stored in Postgres. An entry is
// created either by starting a timer (running, no end time) or manually
// (end time set), and advances through the approval workflow before billing.
type TimeEntry struct {
	ID          string
	TenantID    string
	UserID      string
	ClientID    *string
	TaskID      *string
	ProjectID   *string
	Description string
	Tags        []string

	StartTime time.Time
	EndTime   *time.Time
	IsRunning bool

	IsBillable  bool
	HourlyRate  *decimal.Decimal
	TotalAmount *decimal.Decimal
	Currency    string

	// DurationMin is the raw floored duration; RoundedDurationMin is the
	// value after applying the tenant's rounding settings. Both are
	// persisted when the entry is finalized.
	DurationMin        int
	RoundedDurationMin int

	Status        EntryStatus
	RejectionNote string
	SubmittedAt   *time.Time
	ApprovedBy    *string
	ApprovedAt    *time.Time
	BilledAt      *time.Time

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Interval returns the entry's half-open time interval. A nil end means the
// entry is still running and extends without bound.
func (e *TimeEntry) Interval() (time.Time, *time.Time) {
	return e.StartTime, e.EndTime
}
