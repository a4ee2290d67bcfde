package domain

import "fmt"

// ValidationError reports input that fails a business rule before any state
// change is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// ConflictError reports a uniqueness violation. For timer starts it carries
// the id of the entry that is already running so callers can offer "resume"
// or "stop existing" instead of a bare failure.
type ConflictError struct {
	Resource       string
	RunningEntryID string
}

func (e *ConflictError) Error() string {
	if e.RunningEntryID != "" {
		return fmt.Sprintf("%s conflict: entry %s is already running", e.Resource, e.RunningEntryID)
	}
	return fmt.Sprintf("%s conflict", e.Resource)
}

// NotFoundError reports a missing entry, timer, or settings row.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ForbiddenError reports an operation the caller is not allowed to perform,
// such as approving their own entry or mutating a billed entry.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

// StateError reports an illegal workflow transition.
type StateError struct {
	From   EntryStatus
	Action string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s an entry in status %q", e.Action, e.From)
}
