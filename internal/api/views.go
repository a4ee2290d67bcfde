package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"example.com/timetrack/internal/domain"
)

// StartTimerRequest is the payload for POST /v1/timer/start.
type StartTimerRequest struct {
	Description string           `json:"description"`
	Tags        []string         `json:"tags"`
	ClientID    *string          `json:"client_id"`
	TaskID      *string          `json:"task_id"`
	ProjectID   *string          `json:"project_id"`
	IsBillable  bool             `json:"is_billable"`
	HourlyRate  *decimal.Decimal `json:"hourly_rate"`
	Currency    string           `json:"currency"`
}

// PatchTimerRequest mutates the running timer. Absent fields are untouched.
type PatchTimerRequest struct {
	Description *string    `json:"description"`
	Tags        []string   `json:"tags"`
	ClientID    *string    `json:"client_id"`
	TaskID      *string    `json:"task_id"`
	ProjectID   *string    `json:"project_id"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
}

// CreateEntryRequest is the payload for POST /v1/entries.
type CreateEntryRequest struct {
	Description string           `json:"description"`
	Tags        []string         `json:"tags"`
	ClientID    *string          `json:"client_id"`
	TaskID      *string          `json:"task_id"`
	ProjectID   *string          `json:"project_id"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	IsBillable  bool             `json:"is_billable"`
	HourlyRate  *decimal.Decimal `json:"hourly_rate"`
	Currency    string           `json:"currency"`
}

// PatchEntryRequest mutates a finished entry. Absent fields are untouched.
type PatchEntryRequest struct {
	Description *string          `json:"description"`
	Tags        []string         `json:"tags"`
	ClientID    *string          `json:"client_id"`
	TaskID      *string          `json:"task_id"`
	ProjectID   *string          `json:"project_id"`
	StartTime   *time.Time       `json:"start_time"`
	EndTime     *time.Time       `json:"end_time"`
	IsBillable  *bool            `json:"is_billable"`
	HourlyRate  *decimal.Decimal `json:"hourly_rate"`
	Currency    *string          `json:"currency"`
}

// RejectEntryRequest carries the mandatory rejection note.
type RejectEntryRequest struct {
	Note string `json:"note"`
}

// EntryView exposes full details about a time entry.
type EntryView struct {
	EntryID            string           `json:"entry_id"`
	TenantID           string           `json:"tenant_id"`
	UserID             string           `json:"user_id"`
	ClientID           *string          `json:"client_id,omitempty"`
	TaskID             *string          `json:"task_id,omitempty"`
	ProjectID          *string          `json:"project_id,omitempty"`
	Description        string           `json:"description"`
	Tags               []string         `json:"tags"`
	StartTime          time.Time        `json:"start_time"`
	EndTime            *time.Time       `json:"end_time,omitempty"`
	IsRunning          bool             `json:"is_running"`
	IsBillable         bool             `json:"is_billable"`
	HourlyRate         *decimal.Decimal `json:"hourly_rate,omitempty"`
	TotalAmount        *decimal.Decimal `json:"total_amount,omitempty"`
	Currency           string           `json:"currency"`
	DurationMin        int              `json:"duration_min"`
	RoundedDurationMin int              `json:"rounded_duration_min"`
	Status             string           `json:"status"`
	RejectionNote      string           `json:"rejection_note,omitempty"`
	SubmittedAt        *time.Time       `json:"submitted_at,omitempty"`
	ApprovedBy         *string          `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time       `json:"approved_at,omitempty"`
	BilledAt           *time.Time       `json:"billed_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// ListEntriesResponse packages list results.
type ListEntriesResponse struct {
	Items      []EntryView `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// TimesheetView summarises one period of a user's entries.
type TimesheetView struct {
	From            time.Time       `json:"from"`
	To              time.Time       `json:"to"`
	TotalMin        int             `json:"total_min"`
	TotalRoundedMin int             `json:"total_rounded_min"`
	BillableAmount  decimal.Decimal `json:"billable_amount"`
	HasRunningTimer bool            `json:"has_running_timer"`
	Entries         []EntryView     `json:"entries"`
}

// DailyTotalView is one day's slice of a weekly timesheet.
type DailyTotalView struct {
	Day             time.Time       `json:"day"`
	TotalMin        int             `json:"total_min"`
	TotalRoundedMin int             `json:"total_rounded_min"`
	BillableAmount  decimal.Decimal `json:"billable_amount"`
}

// WeeklyTimesheetView adds the per-day breakdown.
type WeeklyTimesheetView struct {
	TimesheetView
	Days []DailyTotalView `json:"days"`
}

// SettingsView mirrors the tenant's time-tracking policy.
type SettingsView struct {
	RoundingMethod      string           `json:"rounding_method"`
	RoundingIntervalMin int              `json:"rounding_interval_min"`
	DefaultHourlyRate   *decimal.Decimal `json:"default_hourly_rate,omitempty"`
	DefaultCurrency     string           `json:"default_currency"`
	RequireApproval     bool             `json:"require_approval"`
	AllowOverlapping    bool             `json:"allow_overlapping"`
	WorkingHoursPerDay  int              `json:"working_hours_per_day"`
	WorkingHoursPerWeek int              `json:"working_hours_per_week"`
	WeekStartDay        int              `json:"week_start_day"`
	AutoStopAfterMin    int              `json:"auto_stop_after_min"`
	MinimumEntryMin     int              `json:"minimum_entry_min"`
	MaximumEntryMin     int              `json:"maximum_entry_min"`
	LockEntriesAfter    int              `json:"lock_entries_after_days"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// UpdateSettingsRequest is the payload for PUT /v1/settings.
type UpdateSettingsRequest struct {
	RoundingMethod      string           `json:"rounding_method"`
	RoundingIntervalMin int              `json:"rounding_interval_min"`
	DefaultHourlyRate   *decimal.Decimal `json:"default_hourly_rate"`
	DefaultCurrency     string           `json:"default_currency"`
	RequireApproval     bool             `json:"require_approval"`
	AllowOverlapping    bool             `json:"allow_overlapping"`
	WorkingHoursPerDay  int              `json:"working_hours_per_day"`
	WorkingHoursPerWeek int              `json:"working_hours_per_week"`
	WeekStartDay        int              `json:"week_start_day"`
	AutoStopAfterMin    int              `json:"auto_stop_after_min"`
	MinimumEntryMin     int              `json:"minimum_entry_min"`
	MaximumEntryMin     int              `json:"maximum_entry_min"`
	LockEntriesAfter    int              `json:"lock_entries_after_days"`
}

func toEntryView(entry domain.TimeEntry) EntryView {
	tags := entry.Tags
	if tags == nil {
		tags = []string{}
	}
	return EntryView{
		EntryID:            entry.ID,
		TenantID:           entry.TenantID,
		UserID:             entry.UserID,
		ClientID:           entry.ClientID,
		TaskID:             entry.TaskID,
		ProjectID:          entry.ProjectID,
		Description:        entry.Description,
		Tags:               tags,
		StartTime:          entry.StartTime,
		EndTime:            entry.EndTime,
		IsRunning:          entry.IsRunning,
		IsBillable:         entry.IsBillable,
		HourlyRate:         entry.HourlyRate,
		TotalAmount:        entry.TotalAmount,
		Currency:           entry.Currency,
		DurationMin:        entry.DurationMin,
		RoundedDurationMin: entry.RoundedDurationMin,
		Status:             string(entry.Status),
		RejectionNote:      entry.RejectionNote,
		SubmittedAt:        entry.SubmittedAt,
		ApprovedBy:         entry.ApprovedBy,
		ApprovedAt:         entry.ApprovedAt,
		BilledAt:           entry.BilledAt,
		CreatedAt:          entry.CreatedAt,
		UpdatedAt:          entry.UpdatedAt,
	}
}

func toTimesheetView(sheet domain.Timesheet) TimesheetView {
	entries := make([]EntryView, 0, len(sheet.Entries))
	for _, entry := range sheet.Entries {
		entries = append(entries, toEntryView(entry))
	}
	return TimesheetView{
		From:            sheet.From,
		To:              sheet.To,
		TotalMin:        sheet.TotalMin,
		TotalRoundedMin: sheet.TotalRoundedMin,
		BillableAmount:  sheet.BillableAmount,
		HasRunningTimer: sheet.HasRunningTimer,
		Entries:         entries,
	}
}

func toSettingsView(settings domain.TimeSettings) SettingsView {
	return SettingsView{
		RoundingMethod:      string(settings.RoundingMethod),
		RoundingIntervalMin: settings.RoundingIntervalMin,
		DefaultHourlyRate:   settings.DefaultHourlyRate,
		DefaultCurrency:     settings.DefaultCurrency,
		RequireApproval:     settings.RequireApproval,
		AllowOverlapping:    settings.AllowOverlapping,
		WorkingHoursPerDay:  settings.WorkingHoursPerDay,
		WorkingHoursPerWeek: settings.WorkingHoursPerWeek,
		WeekStartDay:        settings.WeekStartDay,
		AutoStopAfterMin:    settings.AutoStopAfterMin,
		MinimumEntryMin:     settings.MinimumEntryMin,
		MaximumEntryMin:     settings.MaximumEntryMin,
		LockEntriesAfter:    settings.LockEntriesAfter,
		UpdatedAt:           settings.UpdatedAt,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
