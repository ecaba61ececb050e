/*
errors.go - Centralized error taxonomy for the leave core

PURPOSE:
  All error types in one place. Callers branch with errors.Is/errors.As;
  the HTTP layer maps sentinels to status codes.

ERROR CATEGORIES:
  1. Validation errors  - bad input, rejected before any mutation
  2. Ledger errors      - balance rule violations
  3. Transition errors  - state machine guard failures
  4. Authorization      - actor lacks rights to decide
  5. Upstream errors    - directory lookups failed or timed out

SEE ALSO:
  - ledger.go:  returns InsufficientBalanceError, ErrForbiddenForRole
  - machine.go: returns InvalidTransitionError, UnauthorizedError
  - api/handlers.go: status code mapping
*/
package leave

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all pre-mutation input rejections.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientBalance is returned when a reservation exceeds the
	// remaining days of a balance row.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidTransition is returned when a lifecycle operation finds the
	// leave in a state it cannot move from. The re-read happens inside the
	// same critical section as the ledger call, so a duplicate transition
	// can never credit or debit twice.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrUnauthorized is returned when the actor may not decide this request.
	ErrUnauthorized = errors.New("actor not authorized")

	// ErrForbiddenForRole is returned when a ledger operation targets an
	// administrative user. Admins hold no leave balances.
	ErrForbiddenForRole = errors.New("operation forbidden for role")

	// ErrDirectoryUnavailable is returned when the identity service cannot
	// be reached or times out. Retryable; nothing was mutated.
	ErrDirectoryUnavailable = errors.New("directory unavailable")

	// ErrDuplicateEntry is returned when a journal entry with the same
	// idempotency key already exists.
	ErrDuplicateEntry = errors.New("duplicate journal entry")

	// ErrLeaveNotFound / ErrLeaveTypeNotFound / ErrBalanceNotFound identify
	// missing records.
	ErrLeaveNotFound     = errors.New("leave not found")
	ErrLeaveTypeNotFound = errors.New("leave type not found")
	ErrBalanceNotFound   = errors.New("leave balance not found")

	// ErrLeaveTypeInactive rejects new applications against retired types.
	ErrLeaveTypeInactive = errors.New("leave type is not active")

	// ErrLeaveTypeInUse blocks catalog deletion while leaves or balances
	// still reference the type.
	ErrLeaveTypeInUse = errors.New("leave type is referenced by leaves or balances")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientBalanceError details a balance shortage.
type InsufficientBalanceError struct {
	Key       BalanceKey
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: requested %s, available %s",
		e.Key, e.Requested, e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InvalidTransitionError details a rejected state change.
type InvalidTransitionError struct {
	LeaveID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for leave %s: %s -> %s", e.LeaveID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// UnauthorizedError details a failed authorization check.
type UnauthorizedError struct {
	ActorID      int64
	DepartmentID int64
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("actor %d not authorized to decide for department %d", e.ActorID, e.DepartmentID)
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

// InvariantError reports ledger state that violates the balance invariant.
// Seeing one means a bug, not bad input; the enclosing transaction is
// rolled back.
type InvariantError struct {
	Key     BalanceKey
	Message string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("balance invariant violated for %s: %s", e.Key, e.Message)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// or a business rule rejection, not an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbiddenForRole) ||
		errors.Is(err, ErrLeaveTypeInactive) ||
		errors.Is(err, ErrLeaveTypeInUse)
}

// IsRetryable returns true if the same call might succeed on retry.
// Nothing was committed, so a retry is safe.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDirectoryUnavailable)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLeaveNotFound) ||
		errors.Is(err, ErrLeaveTypeNotFound) ||
		errors.Is(err, ErrBalanceNotFound)
}
