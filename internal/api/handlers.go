// Package api exposes HTTP handlers for the time tracking service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/timetrack/internal/auth"
	"example.com/timetrack/internal/domain"
	"example.com/timetrack/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service  *domain.Service
	settings *domain.SettingsResolver
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, settings *domain.SettingsResolver) *Handler {
	return &Handler{service: service, settings: settings}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/timer", h.timer)
	mux.HandleFunc("/v1/timer/start", h.startTimer)
	mux.HandleFunc("/v1/timer/stop", h.stopTimer)
	mux.HandleFunc("/v1/timer/discard", h.discardTimer)
	mux.HandleFunc("/v1/entries", h.entries)
	mux.HandleFunc("/v1/entries/", h.entryByID)
	mux.HandleFunc("/v1/timesheets/daily", h.dailyTimesheet)
	mux.HandleFunc("/v1/timesheets/weekly", h.weeklyTimesheet)
	mux.HandleFunc("/v1/settings", h.tenantSettings)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) timer(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.activeTimer(w, r)
	case http.MethodPatch:
		h.patchTimer(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) startTimer(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireScope(w, r, http.MethodPost, auth.ScopeTimetrackWrite)
	if !ok {
		return
	}

	var req StartTimerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	entry, err := h.service.StartTimer(r.Context(), claims.TenantID, claims.Subject, domain.StartTimerInput{
		Description: req.Description,
		Tags:        req.Tags,
		ClientID:    req.ClientID,
		TaskID:      req.TaskID,
		ProjectID:   req.ProjectID,
		IsBillable:  req.IsBillable,
		HourlyRate:  req.HourlyRate,
		Currency:    req.Currency,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryView(*entry))
}

func (h *Handler) stopTimer(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireScope(w, r, http.MethodPost, auth.ScopeTimetrackWrite)
	if !ok {
		return
	}

	entry, err := h.service.StopTimer(r.Context(), claims.TenantID, claims.Subject)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryView(*entry))
}

func (h *Handler) discardTimer(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireScope(w, r, http.MethodPost, auth.ScopeTimetrackWrite)
	if !ok {
		return
	}

	if err := h.service.DiscardTimer(r.Context(), claims.TenantID, claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) activeTimer(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	entry, err := h.service.GetActiveTimer(r.Context(), claims.TenantID, claims.Subject)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "not_found", "no running timer")
		return
	}

	writeJSON(w, http.StatusOK, toEntryView(*entry))
}

func (h *Handler) patchTimer(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireScope(w, r, http.MethodPatch, auth.ScopeTimetrackWrite)
	if !ok {
		return
	}

	var req PatchTimerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	entry, err := h.service.UpdateActiveTimer(r.Context(), claims.TenantID, claims.Subject, domain.TimerPatch{
		Description: req.Description,
		Tags:        req.Tags,
		ClientID:    req.ClientID,
		TaskID:      req.TaskID,
		ProjectID:   req.ProjectID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryView(*entry))
}

func (h *Handler) entries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createEntry(w, r)
	case http.MethodGet:
		h.listEntries(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeTimetrackWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope timetrack:write required")
		return
	}

	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	entry, err := h.service.CreateManualEntry(r.Context(), claims.TenantID, claims.Subject, domain.ManualEntryInput{
		Description: req.Description,
		Tags:        req.Tags,
		ClientID:    req.ClientID,
		TaskID:      req.TaskID,
		ProjectID:   req.ProjectID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		IsBillable:  req.IsBillable,
		HourlyRate:  req.HourlyRate,
		Currency:    req.Currency,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryView(*entry))
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()

	filter := domain.EntryFilter{
		UserID: query.Get("user_id"),
		Status: domain.EntryStatus(query.Get("status")),
	}
	if raw := query.Get("billable"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid billable parameter")
			return
		}
		filter.Billable = &parsed
	}
	if raw := query.Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid from parameter")
			return
		}
		filter.From = &parsed
	}
	if raw := query.Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid to parameter")
			return
		}
		filter.To = &parsed
	}

	limit := 20
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(query.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	items, next, err := h.service.ListEntries(r.Context(), claims.TenantID, filter, cursor, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]EntryView, 0, len(items))
	for _, entry := range items {
		views = append(views, toEntryView(entry))
	}

	writeJSON(w, http.StatusOK, ListEntriesResponse{
		Items:      views,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) entryByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/entries/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing entry id")
		return
	}

	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing entry id")
		return
	}

	if action != "" {
		h.workflowAction(w, r, id, action)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getEntry(w, r, id)
	case http.MethodPatch:
		h.patchEntry(w, r, id)
	case http.MethodDelete:
		h.deleteEntry(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	entry, err := h.service.GetEntry(r.Context(), claims.TenantID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryView(*entry))
}

func (h *Handler) patchEntry(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeTimetrackWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope timetrack:write required")
		return
	}

	var req PatchEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	entry, err := h.service.UpdateEntry(r.Context(), claims.TenantID, claims.Subject, id, domain.EntryPatch{
		Description: req.Description,
		Tags:        req.Tags,
		ClientID:    req.ClientID,
		TaskID:      req.TaskID,
		ProjectID:   req.ProjectID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		IsBillable:  req.IsBillable,
		HourlyRate:  req.HourlyRate,
		Currency:    req.Currency,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryView(*entry))
}

func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeTimetrackWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope timetrack:write required")
		return
	}

	if err := h.service.DeleteEntry(r.Context(), claims.TenantID, claims.Subject, id); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) workflowAction(w http.ResponseWriter, r *http.Request, id, action string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	scope := auth.ScopeTimetrackWrite
	if action == "approve" || action == "reject" || action == "bill" {
		scope = auth.ScopeTimetrackApprove
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return
	}

	var (
		entry *domain.TimeEntry
		err   error
	)
	switch action {
	case "submit":
		entry, err = h.service.Submit(r.Context(), claims.TenantID, claims.Subject, id)
	case "approve":
		entry, err = h.service.Approve(r.Context(), claims.TenantID, claims.Subject, id)
	case "reject":
		var req RejectEntryRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		entry, err = h.service.Reject(r.Context(), claims.TenantID, claims.Subject, id, req.Note)
	case "bill":
		entry, err = h.service.Bill(r.Context(), claims.TenantID, claims.Subject, id)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown action")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryView(*entry))
}

func (h *Handler) dailyTimesheet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	userID := claims.Subject
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		userID = raw
	}

	date, ok := parseDateParam(w, r, "date")
	if !ok {
		return
	}

	sheet, err := h.service.GetDailyTimesheet(r.Context(), claims.TenantID, userID, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTimesheetView(*sheet))
}

func (h *Handler) weeklyTimesheet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	userID := claims.Subject
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		userID = raw
	}

	weekStart, ok := parseDateParam(w, r, "week_start")
	if !ok {
		return
	}

	sheet, err := h.service.GetWeeklyTimesheet(r.Context(), claims.TenantID, userID, weekStart)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	days := make([]DailyTotalView, 0, len(sheet.Days))
	for _, day := range sheet.Days {
		days = append(days, DailyTotalView{
			Day:             day.Day,
			TotalMin:        day.TotalMin,
			TotalRoundedMin: day.TotalRoundedMin,
			BillableAmount:  day.BillableAmount,
		})
	}

	writeJSON(w, http.StatusOK, WeeklyTimesheetView{
		TimesheetView: toTimesheetView(sheet.Timesheet),
		Days:          days,
	})
}

func (h *Handler) tenantSettings(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !hasReadAccess(claims) {
			writeError(w, http.StatusForbidden, "forbidden", "scope timetrack:read required")
			return
		}
		settings, err := h.settings.Resolve(r.Context(), claims.TenantID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSettingsView(settings))

	case http.MethodPut:
		if !claims.HasScope(auth.ScopeTimetrackAdmin) {
			writeError(w, http.StatusForbidden, "forbidden", "scope timetrack:admin required")
			return
		}

		var req UpdateSettingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}

		updated, err := h.settings.Update(r.Context(), domain.TimeSettings{
			TenantID:            claims.TenantID,
			RoundingMethod:      domain.RoundingMethod(req.RoundingMethod),
			RoundingIntervalMin: req.RoundingIntervalMin,
			DefaultHourlyRate:   req.DefaultHourlyRate,
			DefaultCurrency:     req.DefaultCurrency,
			RequireApproval:     req.RequireApproval,
			AllowOverlapping:    req.AllowOverlapping,
			WorkingHoursPerDay:  req.WorkingHoursPerDay,
			WorkingHoursPerWeek: req.WorkingHoursPerWeek,
			WeekStartDay:        req.WeekStartDay,
			AutoStopAfterMin:    req.AutoStopAfterMin,
			MinimumEntryMin:     req.MinimumEntryMin,
			MaximumEntryMin:     req.MaximumEntryMin,
			LockEntriesAfter:    req.LockEntriesAfter,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSettingsView(updated))

	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) requireScope(w http.ResponseWriter, r *http.Request, method, scope string) (*auth.Claims, bool) {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return nil, false
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func (h *Handler) requireRead(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !hasReadAccess(claims) {
		writeError(w, http.StatusForbidden, "forbidden", "scope timetrack:read required")
		return nil, false
	}
	return claims, true
}

// hasReadAccess reports whether the claims grant read visibility: every
// stronger scope implies it.
func hasReadAccess(claims *auth.Claims) bool {
	return claims.HasScope(auth.ScopeTimetrackRead) ||
		claims.HasScope(auth.ScopeTimetrackWrite) ||
		claims.HasScope(auth.ScopeTimetrackApprove) ||
		claims.HasScope(auth.ScopeTimetrackAdmin)
}

func parseDateParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing "+name+" parameter")
		return time.Time{}, false
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid "+name+" parameter, expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return parsed, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		writeError(w, http.StatusBadRequest, "validation_failed", validation.Error())
		return
	}

	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, "not_found", notFound.Error())
		return
	}

	var forbidden *domain.ForbiddenError
	if errors.As(err, &forbidden) {
		writeError(w, http.StatusForbidden, "forbidden", forbidden.Error())
		return
	}

	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		payload := map[string]string{
			"type":   "conflict",
			"detail": conflict.Error(),
		}
		if conflict.RunningEntryID != "" {
			payload["running_entry_id"] = conflict.RunningEntryID
		}
		writeJSON(w, http.StatusConflict, payload)
		return
	}

	var state *domain.StateError
	if errors.As(err, &state) {
		writeError(w, http.StatusUnprocessableEntity, "invalid_state", state.Error())
		return
	}

	writeError(w, http.StatusInternalServerError, "server_error", err.Error())
}
