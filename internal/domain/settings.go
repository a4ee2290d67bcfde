package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TimeSettings holds a tenant's time-tracking policy. One row per tenant.
type TimeSettings struct {
	TenantID            string
	RoundingMethod      RoundingMethod
	RoundingIntervalMin int
	DefaultHourlyRate   *decimal.Decimal
	DefaultCurrency     string
	RequireApproval     bool
	AllowOverlapping    bool
	WorkingHoursPerDay  int
	WorkingHoursPerWeek int
	// WeekStartDay follows time.Weekday numbering (0=Sunday .. 6=Saturday).
	WeekStartDay       int
	AutoStopAfterMin   int
	MinimumEntryMin    int
	MaximumEntryMin    int
	LockEntriesAfter   int // days; 0 disables locking
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DefaultSettings returns the system defaults applied when a tenant has no
// settings row yet.
func DefaultSettings(tenantID string) TimeSettings {
	return TimeSettings{
		TenantID:            tenantID,
		RoundingMethod:      RoundingNone,
		RoundingIntervalMin: 15,
		DefaultCurrency:     "USD",
		WorkingHoursPerDay:  8,
		WorkingHoursPerWeek: 40,
		WeekStartDay:        int(time.Monday),
	}
}

// Validate checks enum and range fields before a settings write.
func (s TimeSettings) Validate() error {
	switch s.RoundingMethod {
	case RoundingNone, RoundingUp, RoundingDown, RoundingNearest:
	default:
		return &ValidationError{Field: "rounding_method", Reason: "unknown method"}
	}
	if s.WeekStartDay < 0 || s.WeekStartDay > 6 {
		return &ValidationError{Field: "week_start_day", Reason: "must be 0 (Sunday) through 6 (Saturday)"}
	}
	if s.MinimumEntryMin < 0 || s.MaximumEntryMin < 0 {
		return &ValidationError{Field: "entry_minutes", Reason: "bounds must not be negative"}
	}
	if s.MinimumEntryMin > 0 && s.MaximumEntryMin > 0 && s.MinimumEntryMin > s.MaximumEntryMin {
		return &ValidationError{Field: "entry_minutes", Reason: "minimum exceeds maximum"}
	}
	if s.AutoStopAfterMin < 0 || s.LockEntriesAfter < 0 {
		return &ValidationError{Field: "limits", Reason: "must not be negative"}
	}
	return nil
}

// SettingsRepository persists per-tenant settings.
type SettingsRepository interface {
	// Get returns the tenant's settings row, or nil when none exists.
	Get(ctx context.Context, tenantID string) (*TimeSettings, error)
	// Upsert writes the tenant's single settings row. A concurrent insert of
	// a second row for the same tenant surfaces as *ConflictError.
	Upsert(ctx context.Context, settings TimeSettings) error
}

// SettingsResolver returns tenant settings, falling back to system defaults
// when no row exists yet.
type SettingsResolver struct {
	repo SettingsRepository
}

// NewSettingsResolver constructs a SettingsResolver.
func NewSettingsResolver(repo SettingsRepository) *SettingsResolver {
	return &SettingsResolver{repo: repo}
}

// Resolve fetches the tenant's settings or the defaults.
func (r *SettingsResolver) Resolve(ctx context.Context, tenantID string) (TimeSettings, error) {
	stored, err := r.repo.Get(ctx, tenantID)
	if err != nil {
		return TimeSettings{}, err
	}
	if stored == nil {
		return DefaultSettings(tenantID), nil
	}
	return *stored, nil
}

// Update validates and writes the tenant's settings row.
func (r *SettingsResolver) Update(ctx context.Context, settings TimeSettings) (TimeSettings, error) {
	if err := settings.Validate(); err != nil {
		return TimeSettings{}, err
	}
	if err := r.repo.Upsert(ctx, settings); err != nil {
		return TimeSettings{}, err
	}
	stored, err := r.repo.Get(ctx, settings.TenantID)
	if err != nil {
		return TimeSettings{}, err
	}
	if stored == nil {
		return TimeSettings{}, &NotFoundError{Resource: "settings", ID: settings.TenantID}
	}
	return *stored, nil
}
