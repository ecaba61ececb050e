/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DAY QUANTITIES:
  Responses carry day quantities as decimal strings ("12.5") so clients
  never see float artifacts. Requests use decimal.Decimal fields, which
  accept both JSON numbers and strings.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/daking/leave-engine/leave"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

// LeaveTypeDTO represents a catalog entry in API responses.
type LeaveTypeDTO struct {
	ID                    int64  `json:"id"`
	Name                  string `json:"name"`
	DefaultDays           string `json:"default_days"`
	AccrualRate           string `json:"accrual_rate"`
	CarryOverAllowed      bool   `json:"carry_over_allowed"`
	MaxCarryOverDays      string `json:"max_carry_over_days"`
	RequiresApproval      bool   `json:"requires_approval"`
	RequiresDocumentation bool   `json:"requires_documentation"`
	Paid                  bool   `json:"paid"`
	Active                bool   `json:"active"`
	CreatedAt             string `json:"created_at,omitempty"`
	UpdatedAt             string `json:"updated_at,omitempty"`
}

// SaveLeaveTypeRequest creates or updates a catalog entry.
type SaveLeaveTypeRequest struct {
	Name                  string          `json:"name"`
	DefaultDays           decimal.Decimal `json:"default_days"`
	AccrualRate           decimal.Decimal `json:"accrual_rate"`
	CarryOverAllowed      bool            `json:"carry_over_allowed"`
	MaxCarryOverDays      decimal.Decimal `json:"max_carry_over_days"`
	RequiresApproval      bool            `json:"requires_approval"`
	RequiresDocumentation bool            `json:"requires_documentation"`
	Paid                  bool            `json:"paid"`
	Active                bool            `json:"active"`
}

func (r SaveLeaveTypeRequest) toLeaveType() leave.LeaveType {
	return leave.LeaveType{
		Name:                  r.Name,
		DefaultDays:           r.DefaultDays,
		AccrualRate:           r.AccrualRate,
		CarryOverAllowed:      r.CarryOverAllowed,
		MaxCarryOverDays:      r.MaxCarryOverDays,
		RequiresApproval:      r.RequiresApproval,
		RequiresDocumentation: r.RequiresDocumentation,
		Paid:                  r.Paid,
		Active:                r.Active,
	}
}

func toLeaveTypeDTO(t leave.LeaveType) LeaveTypeDTO {
	return LeaveTypeDTO{
		ID:                    t.ID,
		Name:                  t.Name,
		DefaultDays:           t.DefaultDays.String(),
		AccrualRate:           t.AccrualRate.String(),
		CarryOverAllowed:      t.CarryOverAllowed,
		MaxCarryOverDays:      t.MaxCarryOverDays.String(),
		RequiresApproval:      t.RequiresApproval,
		RequiresDocumentation: t.RequiresDocumentation,
		Paid:                  t.Paid,
		Active:                t.Active,
		CreatedAt:             t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             t.UpdatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// BALANCES
// =============================================================================

// BalanceDTO represents a balance row in API responses.
type BalanceDTO struct {
	UserID          int64  `json:"user_id"`
	LeaveTypeID     int64  `json:"leave_type_id"`
	Year            int    `json:"year"`
	TotalDays       string `json:"total_days"`
	UsedDays        string `json:"used_days"`
	RemainingDays   string `json:"remaining_days"`
	CarriedOverDays string `json:"carried_over_days"`
	UpdatedAt       string `json:"updated_at"`
}

func toBalanceDTO(b leave.Balance) BalanceDTO {
	return BalanceDTO{
		UserID:          b.UserID,
		LeaveTypeID:     b.LeaveTypeID,
		Year:            b.Year,
		TotalDays:       b.TotalDays.String(),
		UsedDays:        b.UsedDays.String(),
		RemainingDays:   b.RemainingDays.String(),
		CarriedOverDays: b.CarriedOverDays.String(),
		UpdatedAt:       b.UpdatedAt.Format(time.RFC3339),
	}
}

// EntryDTO represents a journal entry in API responses.
type EntryDTO struct {
	ID             string            `json:"id"`
	Op             string            `json:"op"`
	Delta          string            `json:"delta"`
	Reason         string            `json:"reason,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	ActorID        int64             `json:"actor_id"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      string            `json:"created_at"`
}

func toEntryDTO(e leave.Entry) EntryDTO {
	return EntryDTO{
		ID:             e.ID,
		Op:             string(e.Op),
		Delta:          e.Delta.String(),
		Reason:         e.Reason,
		IdempotencyKey: e.IdempotencyKey,
		ActorID:        e.ActorID,
		Metadata:       e.Metadata,
		CreatedAt:      e.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// LEAVES
// =============================================================================

// LeaveDTO represents a leave request in API responses.
type LeaveDTO struct {
	ID           string  `json:"id"`
	UserID       int64   `json:"user_id"`
	LeaveTypeID  int64   `json:"leave_type_id"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	TotalDays    string  `json:"total_days"`
	Status       string  `json:"status"`
	Reason       string  `json:"reason,omitempty"`
	ApproverID   int64   `json:"approver_id,omitempty"`
	Comments     string  `json:"comments,omitempty"`
	DepartmentID int64   `json:"department_id"`
	DocumentIDs  []int64 `json:"document_ids,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

func toLeaveDTO(l leave.Leave) LeaveDTO {
	return LeaveDTO{
		ID:           l.ID,
		UserID:       l.UserID,
		LeaveTypeID:  l.LeaveTypeID,
		StartDate:    l.StartDate.Format("2006-01-02"),
		EndDate:      l.EndDate.Format("2006-01-02"),
		TotalDays:    l.TotalDays.String(),
		Status:       string(l.Status),
		Reason:       l.Reason,
		ApproverID:   l.ApproverID,
		Comments:     l.Comments,
		DepartmentID: l.DepartmentID,
		DocumentIDs:  l.DocumentIDs,
		CreatedAt:    l.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    l.UpdatedAt.Format(time.RFC3339),
	}
}

func toLeaveDTOs(leaves []leave.Leave) []LeaveDTO {
	dtos := make([]LeaveDTO, len(leaves))
	for i, l := range leaves {
		dtos[i] = toLeaveDTO(l)
	}
	return dtos
}

// ApplyLeaveRequest submits a new leave application.
type ApplyLeaveRequest struct {
	LeaveTypeID int64   `json:"leave_type_id"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	Reason      string  `json:"reason"`
	DocumentIDs []int64 `json:"document_ids,omitempty"`
}

// DecisionRequest carries the approver's comment for approve/reject.
type DecisionRequest struct {
	Comments string `json:"comments"`
}

// =============================================================================
// ADMIN
// =============================================================================

// AdjustmentRequest applies a manual balance correction.
type AdjustmentRequest struct {
	UserID      int64           `json:"user_id"`
	LeaveTypeID int64           `json:"leave_type_id"`
	Year        int             `json:"year"`
	DeltaDays   decimal.Decimal `json:"delta_days"`
	Reason      string          `json:"reason"`
}

// BulkAdjustmentRequest applies the same correction to many users.
type BulkAdjustmentRequest struct {
	UserIDs     []int64         `json:"user_ids"`
	LeaveTypeID int64           `json:"leave_type_id"`
	Year        int             `json:"year"`
	DeltaDays   decimal.Decimal `json:"delta_days"`
	Reason      string          `json:"reason"`
}

// BulkAdjustmentResponse reports how many adjustments were applied.
type BulkAdjustmentResponse struct {
	Applied int    `json:"applied"`
	Errors  string `json:"errors,omitempty"`
}

// InitializeBalancesRequest seeds missing balance rows for a year.
type InitializeBalancesRequest struct {
	Year int `json:"year"`
}

// JobRunResponse reports the outcome of a manually triggered job.
type JobRunResponse struct {
	Applied int    `json:"applied"`
	Errors  string `json:"errors,omitempty"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
