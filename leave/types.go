/*
Package leave implements the leave balance ledger and the leave request
state machine.

PURPOSE:
  This package contains the core domain of the leave service: per-year
  entitlement balances, the request lifecycle (apply, approve, reject,
  cancel), authorization decisions, and the scheduled accrual/carry-over
  jobs. HTTP plumbing lives in api/, persistence in store/sqlite and
  leave/store.

KEY CONCEPTS IN THIS FILE (types.go):
  - LeaveType: catalog entry describing entitlement and policy flags
  - Balance:   the (user, leave type, year) entitlement row
  - Leave:     a request with its one-directional status lifecycle
  - Entry:     an immutable journal record for every balance mutation

DESIGN PRINCIPLES:
  1. Precision: day quantities use decimal.Decimal, never raw floats
  2. Auditability: every balance change appends an Entry with reason,
     actor, and idempotency key
  3. Single writer: Balance rows are mutated only through the Ledger

SEE ALSO:
  - ledger.go:  Balance mutations (reserve, release, adjust, accrue, carry-over)
  - machine.go: Leave request state machine
  - errors.go:  Error taxonomy
*/
package leave

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROLES AND DIRECTORY FACTS
// =============================================================================

// Role mirrors the roles exposed by the identity/department service.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleStaff   Role = "STAFF"
)

// Administrative returns true for roles that hold no leave balances.
func (r Role) Administrative() bool { return r == RoleAdmin }

// User is the read-only directory record the core needs: identity, role,
// and home department. It is never persisted here.
type User struct {
	ID           int64
	Email        string
	FirstName    string
	LastName     string
	Role         Role
	DepartmentID int64
}

// =============================================================================
// LEAVE TYPE - Catalog reference data
// =============================================================================

type LeaveType struct {
	ID                    int64
	Name                  string
	DefaultDays           decimal.Decimal // annual entitlement seeded into new balances
	AccrualRate           decimal.Decimal // days added per monthly accrual run
	CarryOverAllowed      bool
	MaxCarryOverDays      decimal.Decimal
	RequiresApproval      bool
	RequiresDocumentation bool
	Paid                  bool
	Active                bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// =============================================================================
// BALANCE - The (user, leave type, year) entitlement row
// =============================================================================

// BalanceKey identifies a balance row and is the unit of ledger contention.
type BalanceKey struct {
	UserID      int64
	LeaveTypeID int64
	Year        int
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("%d/%d/%d", k.UserID, k.LeaveTypeID, k.Year)
}

// Balance holds entitlement for one user, leave type, and year.
// TotalDays already includes carried-over days.
//
// INVARIANT: RemainingDays == TotalDays - UsedDays after every mutation,
// and no field is negative. Mutated only through Ledger operations.
type Balance struct {
	UserID          int64
	LeaveTypeID     int64
	Year            int
	TotalDays       decimal.Decimal
	UsedDays        decimal.Decimal
	RemainingDays   decimal.Decimal
	CarriedOverDays decimal.Decimal
	UpdatedAt       time.Time
}

func (b *Balance) Key() BalanceKey {
	return BalanceKey{UserID: b.UserID, LeaveTypeID: b.LeaveTypeID, Year: b.Year}
}

// CheckInvariant verifies the ledger invariant. The Ledger calls this after
// every mutation before committing.
func (b *Balance) CheckInvariant() error {
	if !b.RemainingDays.Equal(b.TotalDays.Sub(b.UsedDays)) {
		return &InvariantError{
			Key:     b.Key(),
			Message: fmt.Sprintf("remaining %s != total %s - used %s", b.RemainingDays, b.TotalDays, b.UsedDays),
		}
	}
	for _, f := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"totalDays", b.TotalDays},
		{"usedDays", b.UsedDays},
		{"remainingDays", b.RemainingDays},
		{"carriedOverDays", b.CarriedOverDays},
	} {
		if f.v.IsNegative() {
			return &InvariantError{
				Key:     b.Key(),
				Message: fmt.Sprintf("%s is negative: %s", f.name, f.v),
			}
		}
	}
	return nil
}

// Days constructs a day quantity from a float literal. Test and seed helper;
// production paths keep decimals end to end.
func Days(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// =============================================================================
// LEAVE - A request moving through the approval lifecycle
// =============================================================================

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool { return s == StatusRejected || s == StatusCancelled }

// CanTransitionTo encodes the one-directional lifecycle:
// PENDING -> {APPROVED, REJECTED, CANCELLED}; APPROVED -> CANCELLED.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusRejected || next == StatusCancelled
	case StatusApproved:
		return next == StatusCancelled
	default:
		return false
	}
}

// Leave is a leave request. Terminal records are retained forever for audit.
type Leave struct {
	ID          string
	UserID      int64
	LeaveTypeID int64
	StartDate   time.Time // date-only, UTC midnight
	EndDate     time.Time
	TotalDays   decimal.Decimal // inclusive day count, reserved on creation
	Status      Status
	Reason      string
	ApproverID  int64 // 0 until decided
	Comments    string
	// DepartmentID is captured from the applicant's directory record at
	// creation so later decisions don't depend on directory availability.
	DepartmentID int64
	DocumentIDs  []int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BalanceKey returns the balance row this leave reserves against.
// The start year owns the reservation.
func (l *Leave) BalanceKey() BalanceKey {
	return BalanceKey{UserID: l.UserID, LeaveTypeID: l.LeaveTypeID, Year: l.StartDate.Year()}
}

// InclusiveDays counts calendar days from start to end, both inclusive.
func InclusiveDays(start, end time.Time) int {
	s := truncateDay(start)
	e := truncateDay(end)
	return int(e.Sub(s).Hours()/24) + 1
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DocumentRef points at a supporting document held by the document service.
type DocumentRef struct {
	ID       int64
	FileName string
	URL      string
}

// =============================================================================
// ENTRY - Append-only journal of balance mutations
// =============================================================================

// EntryOp names the ledger operation that produced an entry.
type EntryOp string

const (
	OpSeed      EntryOp = "seed"
	OpReserve   EntryOp = "reserve"
	OpRelease   EntryOp = "release"
	OpAdjust    EntryOp = "adjust"
	OpAccrue    EntryOp = "accrue"
	OpCarryOver EntryOp = "carry_over"
)

// Entry records one balance mutation. Entries are append-only: no update,
// no delete. The unique IdempotencyKey doubles as the guard against
// re-applying the same mutation (double release, repeated accrual period,
// repeated carry-over).
type Entry struct {
	ID             string
	Op             EntryOp
	UserID         int64
	LeaveTypeID    int64
	Year           int
	Delta          decimal.Decimal // signed change to RemainingDays
	Reason         string
	IdempotencyKey string
	ActorID        int64 // 0 = system (scheduler)
	Metadata       map[string]string
	CreatedAt      time.Time
}

// =============================================================================
// LIFECYCLE EVENTS - Forwarded to the notification sink
// =============================================================================

type EventKind string

const (
	EventLeaveApplied       EventKind = "leave_applied"
	EventLeaveApproved      EventKind = "leave_approved"
	EventLeaveRejected      EventKind = "leave_rejected"
	EventLeaveCancelled     EventKind = "leave_cancelled"
	EventAccrualCompleted   EventKind = "accrual_completed"
	EventCarryOverCompleted EventKind = "carry_over_completed"
)

// Event is a best-effort lifecycle notification. Sink failures are logged
// and never roll back the operation that emitted the event.
type Event struct {
	Kind       EventKind
	LeaveID    string
	UserID     int64   // subject of the event
	Recipients []int64 // user ids to notify
	Message    string
	At         time.Time
}
