/*
handlers.go - HTTP API handlers for the leave service

PURPOSE:
  Exposes the leave core via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ACTOR IDENTIFICATION:
  Every request carries the calling user's id in the X-Actor-Id header.
  Authentication itself is terminated upstream (gateway); this service
  only enforces domain authorization against the directory.

ERROR HANDLING:
  Domain errors map to HTTP status by category:
  - 400: validation failures, inactive leave type
  - 403: actor not authorized, operation forbidden for role
  - 404: leave / leave type / balance not found
  - 409: insufficient balance, invalid transition, duplicates, type in use
  - 503: directory unavailable (retryable, nothing was mutated)
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/daking/leave-engine/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *leave.Service
	Catalog   *leave.Catalog
	Job       *leave.AccrualJob
	Directory leave.DirectoryGateway
	Log       *zap.Logger

	// Scenarios is wired only in development; nil disables the
	// /api/scenarios endpoints.
	Scenarios *ScenarioLoader
}

func NewHandler(service *leave.Service, catalog *leave.Catalog, job *leave.AccrualJob, directory leave.DirectoryGateway, log *zap.Logger) *Handler {
	return &Handler{
		Service:   service,
		Catalog:   catalog,
		Job:       job,
		Directory: directory,
		Log:       log,
	}
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// ApplyLeave files a new leave request.
// POST /api/leaves
func (h *Handler) ApplyLeave(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	var req ApplyLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	created, err := h.Service.Apply(r.Context(), leave.ApplyRequest{
		UserID:      actorID,
		LeaveTypeID: req.LeaveTypeID,
		StartDate:   start,
		EndDate:     end,
		Reason:      req.Reason,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to apply for leave", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveDTO(*created))
}

// GetLeave returns one leave request.
// GET /api/leaves/{id}
func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	l, err := h.Service.GetLeave(r.Context(), chi.URLParam(r, "id"), actorID)
	if err != nil {
		h.writeDomainError(w, "Failed to get leave", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(*l))
}

// ListLeaves returns a user's leave requests, newest first. user_id
// defaults to the actor.
// GET /api/leaves?user_id=42
func (h *Handler) ListLeaves(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	userID := actorID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid user_id", err)
			return
		}
		userID = parsed
	}

	leaves, err := h.Service.LeavesByUser(r.Context(), userID, actorID)
	if err != nil {
		h.writeDomainError(w, "Failed to list leaves", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTOs(leaves))
}

// ListPendingLeaves returns the pending requests the actor may decide.
// GET /api/leaves/pending
func (h *Handler) ListPendingLeaves(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	leaves, err := h.Service.PendingLeaves(r.Context(), actorID)
	if err != nil {
		h.writeDomainError(w, "Failed to list pending leaves", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTOs(leaves))
}

// ApproveLeave approves a pending request.
// POST /api/leaves/{id}/approve
func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Service.Approve)
}

// RejectLeave rejects a pending request. A comment is mandatory.
// POST /api/leaves/{id}/reject
func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Service.Reject)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, leaveID string, actorID int64, comments string) (*leave.Leave, error)) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	var req DecisionRequest
	if r.Body != nil {
		// An empty body is fine for approvals.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	l, err := fn(r.Context(), chi.URLParam(r, "id"), actorID, req.Comments)
	if err != nil {
		h.writeDomainError(w, "Failed to decide leave", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(*l))
}

// CancelLeave withdraws a pending or approved request.
// POST /api/leaves/{id}/cancel
func (h *Handler) CancelLeave(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	l, err := h.Service.Cancel(r.Context(), chi.URLParam(r, "id"), actorID)
	if err != nil {
		h.writeDomainError(w, "Failed to cancel leave", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(*l))
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalances returns the balance rows for a user and year. user_id
// defaults to the actor, year to the current year.
// GET /api/balances?user_id=42&year=2026
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	userID := actorID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid user_id", err)
			return
		}
		userID = parsed
	}
	year := time.Now().UTC().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = parsed
	}

	balances, err := h.Service.Balances(r.Context(), userID, year, actorID)
	if err != nil {
		h.writeDomainError(w, "Failed to get balances", err)
		return
	}
	dtos := make([]BalanceDTO, len(balances))
	for i, b := range balances {
		dtos[i] = toBalanceDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBalanceEntries returns the journal for one balance row.
// GET /api/balances/entries?user_id=42&leave_type_id=1&year=2026
func (h *Handler) GetBalanceEntries(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user_id", err)
		return
	}
	leaveTypeID, err := strconv.ParseInt(r.URL.Query().Get("leave_type_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid leave_type_id", err)
		return
	}
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}

	key := leave.BalanceKey{UserID: userID, LeaveTypeID: leaveTypeID, Year: year}
	entries, err := h.Service.BalanceEntries(r.Context(), key, actorID)
	if err != nil {
		h.writeDomainError(w, "Failed to get balance entries", err)
		return
	}
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LEAVE TYPE HANDLERS
// =============================================================================

// ListLeaveTypes returns catalog entries. ?active=true filters retired ones.
// GET /api/leave-types
func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	types, err := h.Catalog.List(r.Context(), activeOnly)
	if err != nil {
		h.writeDomainError(w, "Failed to list leave types", err)
		return
	}
	dtos := make([]LeaveTypeDTO, len(types))
	for i, t := range types {
		dtos[i] = toLeaveTypeDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLeaveType returns one catalog entry.
// GET /api/leave-types/{id}
func (h *Handler) GetLeaveType(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid leave type id", err)
		return
	}
	t, err := h.Catalog.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get leave type", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveTypeDTO(*t))
}

// CreateLeaveType registers a new catalog entry. Admin only.
// POST /api/leave-types
func (h *Handler) CreateLeaveType(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var req SaveLeaveTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	t, err := h.Catalog.Create(r.Context(), req.toLeaveType())
	if err != nil {
		h.writeDomainError(w, "Failed to create leave type", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveTypeDTO(*t))
}

// UpdateLeaveType replaces a catalog entry's mutable fields. Admin only.
// PUT /api/leave-types/{id}
func (h *Handler) UpdateLeaveType(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid leave type id", err)
		return
	}
	var req SaveLeaveTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	t, err := h.Catalog.Update(r.Context(), id, req.toLeaveType())
	if err != nil {
		h.writeDomainError(w, "Failed to update leave type", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveTypeDTO(*t))
}

// DeleteLeaveType removes an unreferenced catalog entry. Admin only.
// DELETE /api/leave-types/{id}
func (h *Handler) DeleteLeaveType(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid leave type id", err)
		return
	}
	if err := h.Catalog.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to delete leave type", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateAdjustment applies a manual balance correction. Admin only.
// POST /api/admin/adjustments
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	key := leave.BalanceKey{UserID: req.UserID, LeaveTypeID: req.LeaveTypeID, Year: req.Year}
	b, err := h.Service.AdjustBalance(r.Context(), key, req.DeltaDays, req.Reason, actorID)
	if err != nil {
		h.writeDomainError(w, "Failed to adjust balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(*b))
}

// CreateBulkAdjustment applies the same correction to many users. Admin only.
// POST /api/admin/bulk-adjustments
func (h *Handler) CreateBulkAdjustment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	var req BulkAdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	applied, err := h.Service.BulkAdjust(r.Context(), req.UserIDs, req.LeaveTypeID, req.Year, req.DeltaDays, req.Reason, actorID)
	resp := BulkAdjustmentResponse{Applied: applied}
	if err != nil {
		// Admin-level rejections abort the whole call; per-user failures
		// ride along in the response body.
		if applied == 0 && (errors.Is(err, leave.ErrUnauthorized) || errors.Is(err, leave.ErrValidation)) {
			h.writeDomainError(w, "Failed to bulk adjust", err)
			return
		}
		resp.Errors = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// InitializeBalances seeds missing rows for a year. Admin only.
// POST /api/admin/initialize-balances
func (h *Handler) InitializeBalances(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	var req InitializeBalancesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Year == 0 {
		req.Year = time.Now().UTC().Year()
	}

	created, err := h.Service.InitializeMissingBalances(r.Context(), req.Year, actorID)
	if err != nil {
		h.writeDomainError(w, "Failed to initialize balances", err)
		return
	}
	writeJSON(w, http.StatusOK, JobRunResponse{Applied: created})
}

// RunAccrual triggers the monthly accrual immediately. Admin only.
// POST /api/admin/run-accrual
func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	applied, err := h.Job.RunMonthlyAccrual(r.Context(), time.Now())
	resp := JobRunResponse{Applied: applied}
	if err != nil {
		resp.Errors = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// RunCarryOver triggers the year-end carry-over immediately. Admin only.
// POST /api/admin/run-carryover
func (h *Handler) RunCarryOver(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	applied, err := h.Job.RunCarryOver(r.Context(), time.Now())
	resp := JobRunResponse{Applied: applied}
	if err != nil {
		resp.Errors = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

// actorID extracts the calling user from the X-Actor-Id header.
func (h *Handler) actorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-Actor-Id")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "X-Actor-Id header is required", nil)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid X-Actor-Id header", err)
		return 0, false
	}
	return id, true
}

// requireAdmin resolves the actor's role and rejects non-admins.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return false
	}
	actor, err := h.Directory.User(r.Context(), actorID)
	if err != nil {
		h.writeDomainError(w, "Failed to resolve actor", err)
		return false
	}
	if actor == nil || actor.Role != leave.RoleAdmin {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return false
	}
	return true
}

// writeDomainError maps a domain error to an HTTP status.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, leave.ErrValidation), errors.Is(err, leave.ErrLeaveTypeInactive):
		status = http.StatusBadRequest
	case errors.Is(err, leave.ErrUnauthorized), errors.Is(err, leave.ErrForbiddenForRole):
		status = http.StatusForbidden
	case leave.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, leave.ErrInsufficientBalance),
		errors.Is(err, leave.ErrInvalidTransition),
		errors.Is(err, leave.ErrDuplicateEntry),
		errors.Is(err, leave.ErrLeaveTypeInUse):
		status = http.StatusConflict
	case errors.Is(err, leave.ErrDirectoryUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.Log.Error(message, zap.Error(err))
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
