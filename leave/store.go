/*
store.go - Persistence interface for balances, leaves, and the journal

PURPOSE:
  Defines the interface between the domain logic and the database.
  Implementations: store/sqlite (production) and leave/store (in-memory,
  for tests and development).

TWO TABLES, ONE JOURNAL:
  leave_balances:  one mutable row per (user, leave type, year)
  leaves:          the request records with their status lifecycle
  balance_entries: append-only journal of every balance mutation

JOURNAL CONTRACT:
  AppendEntry is the only write on the journal; there is no update or
  delete. Each entry carries an idempotency key with a uniqueness
  constraint. Re-applying a mutation (double release, repeated accrual
  period, repeated carry-over) fails with ErrDuplicateEntry, which the
  Ledger converts into a no-op where the spec calls for one.

TRANSACTIONS:
  WithTx gives all-or-nothing semantics for coupled writes: a status
  transition and its balance release commit together or not at all.

SEE ALSO:
  - ledger.go: the only caller allowed to write balances
  - store/sqlite/sqlite.go, leave/store/memory.go: implementations
*/
package leave

import "context"

// Store handles persistence for the leave core. Missing single records are
// reported as (nil, nil); listing operations return empty slices.
type Store interface {
	// --- balances (written only by the Ledger) ---

	GetBalance(ctx context.Context, key BalanceKey) (*Balance, error)
	SaveBalance(ctx context.Context, b Balance) error
	ListBalancesByUser(ctx context.Context, userID int64) ([]Balance, error)
	ListBalancesByYear(ctx context.Context, year int) ([]Balance, error)

	// --- journal (append-only) ---

	// AppendEntry persists a journal entry. Fails with ErrDuplicateEntry
	// if the idempotency key already exists.
	AppendEntry(ctx context.Context, e Entry) error
	EntryExists(ctx context.Context, idempotencyKey string) (bool, error)
	EntriesByBalance(ctx context.Context, key BalanceKey) ([]Entry, error)

	// --- leaves ---

	SaveLeave(ctx context.Context, l Leave) error
	GetLeave(ctx context.Context, id string) (*Leave, error)
	ListLeavesByUser(ctx context.Context, userID int64) ([]Leave, error)
	ListLeavesByStatus(ctx context.Context, status Status) ([]Leave, error)
	ListLeavesByDepartments(ctx context.Context, departmentIDs []int64, status Status) ([]Leave, error)
	CountLeavesByType(ctx context.Context, leaveTypeID int64) (int, error)

	// --- leave types ---

	// SaveLeaveType inserts or updates a type. A zero ID means insert;
	// the assigned id is written back into t.
	SaveLeaveType(ctx context.Context, t *LeaveType) error
	GetLeaveType(ctx context.Context, id int64) (*LeaveType, error)
	ListLeaveTypes(ctx context.Context) ([]LeaveType, error)
	DeleteLeaveType(ctx context.Context, id int64) error
	CountBalancesByType(ctx context.Context, leaveTypeID int64) (int, error)
}

// TxStore wraps Store with transaction support. The Ledger runs every
// mutation inside WithTx; if fn returns an error the transaction is rolled
// back, otherwise committed.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
