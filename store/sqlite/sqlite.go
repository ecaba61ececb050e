/*
Package sqlite provides the SQLite-backed implementation of leave.TxStore.

PURPOSE:
  Persists balances, leaves, leave types, and the balance journal. The
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  leave_balances:  one mutable row per (user, leave type, year)
  leaves:          leave requests with their status lifecycle
  balance_entries: append-only journal; UNIQUE(idempotency_key) is the
                   storage-level guard behind the ledger's idempotency
  leave_types:     catalog reference data

APPEND-ONLY ENFORCEMENT:
  balance_entries has no UPDATE or DELETE path. A violated unique
  constraint on idempotency_key surfaces as leave.ErrDuplicateEntry.

PRECISION:
  Day quantities are stored as TEXT and parsed back through
  decimal.Decimal; they never pass through float64.

WAL MODE:
  SQLite is opened with WAL for better concurrency: multiple readers
  don't block, a single writer at a time, better crash recovery.

SEE ALSO:
  - leave/store.go: interface definition
  - leave/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/daking/leave-engine/leave"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const (
	dayFormat = "2006-01-02"
)

// Store implements leave.TxStore on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at dbPath. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Catalog reference data
	CREATE TABLE IF NOT EXISTS leave_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		default_days TEXT NOT NULL,
		accrual_rate TEXT NOT NULL,
		carry_over_allowed BOOLEAN NOT NULL DEFAULT FALSE,
		max_carry_over_days TEXT NOT NULL,
		requires_approval BOOLEAN NOT NULL DEFAULT TRUE,
		requires_documentation BOOLEAN NOT NULL DEFAULT FALSE,
		paid BOOLEAN NOT NULL DEFAULT TRUE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_leave_types_name
		ON leave_types(name COLLATE NOCASE);

	-- One mutable row per (user, leave type, year)
	CREATE TABLE IF NOT EXISTS leave_balances (
		user_id INTEGER NOT NULL,
		leave_type_id INTEGER NOT NULL,
		year INTEGER NOT NULL,
		total_days TEXT NOT NULL,
		used_days TEXT NOT NULL,
		remaining_days TEXT NOT NULL,
		carried_over_days TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, leave_type_id, year)
	);

	CREATE INDEX IF NOT EXISTS idx_balances_user
		ON leave_balances(user_id);
	CREATE INDEX IF NOT EXISTS idx_balances_year
		ON leave_balances(year);

	-- Leave requests; terminal rows are kept forever for audit
	CREATE TABLE IF NOT EXISTS leaves (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		leave_type_id INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		total_days TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		approver_id INTEGER NOT NULL DEFAULT 0,
		comments TEXT,
		department_id INTEGER NOT NULL DEFAULT 0,
		document_ids_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leaves_user
		ON leaves(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_leaves_status
		ON leaves(status);
	CREATE INDEX IF NOT EXISTS idx_leaves_department_status
		ON leaves(department_id, status);
	CREATE INDEX IF NOT EXISTS idx_leaves_type
		ON leaves(leave_type_id);

	-- Append-only journal of balance mutations
	CREATE TABLE IF NOT EXISTS balance_entries (
		id TEXT PRIMARY KEY,
		op TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		leave_type_id INTEGER NOT NULL,
		year INTEGER NOT NULL,
		delta TEXT NOT NULL,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		actor_id INTEGER NOT NULL DEFAULT 0,
		metadata_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_balance
		ON balance_entries(user_id, leave_type_id, year, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx so every query helper
// runs identically inside and outside WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// BALANCES
// =============================================================================

func (s *Store) GetBalance(ctx context.Context, key leave.BalanceKey) (*leave.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBalance(ctx, s.db, key)
}

func (s *Store) SaveBalance(ctx context.Context, b leave.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveBalance(ctx, s.db, b)
}

func (s *Store) ListBalancesByUser(ctx context.Context, userID int64) ([]leave.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryBalances(ctx, s.db, balanceColumns+" FROM leave_balances WHERE user_id = ? ORDER BY leave_type_id, year", userID)
}

func (s *Store) ListBalancesByYear(ctx context.Context, year int) ([]leave.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryBalances(ctx, s.db, balanceColumns+" FROM leave_balances WHERE year = ? ORDER BY user_id, leave_type_id", year)
}

const balanceColumns = `SELECT user_id, leave_type_id, year, total_days, used_days, remaining_days, carried_over_days, updated_at`

func getBalance(ctx context.Context, q querier, key leave.BalanceKey) (*leave.Balance, error) {
	rows, err := queryBalances(ctx, q,
		balanceColumns+" FROM leave_balances WHERE user_id = ? AND leave_type_id = ? AND year = ?",
		key.UserID, key.LeaveTypeID, key.Year)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func saveBalance(ctx context.Context, q querier, b leave.Balance) error {
	query := `
		INSERT INTO leave_balances
		(user_id, leave_type_id, year, total_days, used_days, remaining_days, carried_over_days, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, leave_type_id, year) DO UPDATE SET
			total_days = excluded.total_days,
			used_days = excluded.used_days,
			remaining_days = excluded.remaining_days,
			carried_over_days = excluded.carried_over_days,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		b.UserID, b.LeaveTypeID, b.Year,
		b.TotalDays.String(), b.UsedDays.String(), b.RemainingDays.String(), b.CarriedOverDays.String(),
		b.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

func queryBalances(ctx context.Context, q querier, query string, args ...any) ([]leave.Balance, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var balances []leave.Balance
	for rows.Next() {
		var (
			b                                 leave.Balance
			total, used, remaining, carried   string
			updatedAt                         string
		)
		if err := rows.Scan(&b.UserID, &b.LeaveTypeID, &b.Year, &total, &used, &remaining, &carried, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		b.TotalDays = mustDecimal(total)
		b.UsedDays = mustDecimal(used)
		b.RemainingDays = mustDecimal(remaining)
		b.CarriedOverDays = mustDecimal(carried)
		b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// =============================================================================
// JOURNAL (append-only)
// =============================================================================

func (s *Store) AppendEntry(ctx context.Context, e leave.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntry(ctx, s.db, e)
}

func (s *Store) EntryExists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entryExists(ctx, s.db, idempotencyKey)
}

func (s *Store) EntriesByBalance(ctx context.Context, key leave.BalanceKey) ([]leave.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entriesByBalance(ctx, s.db, key)
}

func appendEntry(ctx context.Context, q querier, e leave.Entry) error {
	metadataJSON, _ := json.Marshal(e.Metadata)

	query := `
		INSERT INTO balance_entries
		(id, op, user_id, leave_type_id, year, delta, reason, idempotency_key, actor_id, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		e.ID, string(e.Op), e.UserID, e.LeaveTypeID, e.Year,
		e.Delta.String(), e.Reason, nullString(e.IdempotencyKey), e.ActorID,
		string(metadataJSON), e.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return leave.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

func entryExists(ctx context.Context, q querier, idempotencyKey string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM balance_entries WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

func entriesByBalance(ctx context.Context, q querier, key leave.BalanceKey) ([]leave.Entry, error) {
	query := `
		SELECT id, op, user_id, leave_type_id, year, delta, reason, idempotency_key, actor_id, metadata_json, created_at
		FROM balance_entries
		WHERE user_id = ? AND leave_type_id = ? AND year = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := q.QueryContext(ctx, query, key.UserID, key.LeaveTypeID, key.Year)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []leave.Entry
	for rows.Next() {
		var (
			e              leave.Entry
			op             string
			delta          string
			reason         sql.NullString
			idempotencyKey sql.NullString
			metadataJSON   sql.NullString
			createdAt      string
		)
		if err := rows.Scan(&e.ID, &op, &e.UserID, &e.LeaveTypeID, &e.Year,
			&delta, &reason, &idempotencyKey, &e.ActorID, &metadataJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Op = leave.EntryOp(op)
		e.Delta = mustDecimal(delta)
		e.Reason = reason.String
		e.IdempotencyKey = idempotencyKey.String
		if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
			json.Unmarshal([]byte(metadataJSON.String), &e.Metadata)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// LEAVES
// =============================================================================

func (s *Store) SaveLeave(ctx context.Context, l leave.Leave) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveLeave(ctx, s.db, l)
}

func (s *Store) GetLeave(ctx context.Context, id string) (*leave.Leave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLeave(ctx, s.db, id)
}

func (s *Store) ListLeavesByUser(ctx context.Context, userID int64) ([]leave.Leave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryLeaves(ctx, s.db,
		leaveColumns+" FROM leaves WHERE user_id = ? ORDER BY created_at DESC, id", userID)
}

func (s *Store) ListLeavesByStatus(ctx context.Context, status leave.Status) ([]leave.Leave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryLeaves(ctx, s.db,
		leaveColumns+" FROM leaves WHERE status = ? ORDER BY created_at DESC, id", string(status))
}

func (s *Store) ListLeavesByDepartments(ctx context.Context, departmentIDs []int64, status leave.Status) ([]leave.Leave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLeavesByDepartments(ctx, s.db, departmentIDs, status)
}

func (s *Store) CountLeavesByType(ctx context.Context, leaveTypeID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countLeavesByType(ctx, s.db, leaveTypeID)
}

const leaveColumns = `SELECT id, user_id, leave_type_id, start_date, end_date, total_days, status, reason, approver_id, comments, department_id, document_ids_json, created_at, updated_at`

func saveLeave(ctx context.Context, q querier, l leave.Leave) error {
	docsJSON, _ := json.Marshal(l.DocumentIDs)

	query := `
		INSERT INTO leaves
		(id, user_id, leave_type_id, start_date, end_date, total_days, status, reason,
		 approver_id, comments, department_id, document_ids_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			approver_id = excluded.approver_id,
			comments = excluded.comments,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		l.ID, l.UserID, l.LeaveTypeID,
		l.StartDate.UTC().Format(dayFormat), l.EndDate.UTC().Format(dayFormat),
		l.TotalDays.String(), string(l.Status), l.Reason,
		l.ApproverID, l.Comments, l.DepartmentID, string(docsJSON),
		l.CreatedAt.UTC().Format(time.RFC3339), l.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save leave: %w", err)
	}
	return nil
}

func getLeave(ctx context.Context, q querier, id string) (*leave.Leave, error) {
	leaves, err := queryLeaves(ctx, q, leaveColumns+" FROM leaves WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(leaves) == 0 {
		return nil, nil
	}
	return &leaves[0], nil
}

func listLeavesByDepartments(ctx context.Context, q querier, departmentIDs []int64, status leave.Status) ([]leave.Leave, error) {
	if len(departmentIDs) == 0 {
		return []leave.Leave{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(departmentIDs)), ",")
	query := leaveColumns + " FROM leaves WHERE status = ? AND department_id IN (" + placeholders + ") ORDER BY created_at DESC, id"

	args := make([]any, 0, len(departmentIDs)+1)
	args = append(args, string(status))
	for _, d := range departmentIDs {
		args = append(args, d)
	}
	return queryLeaves(ctx, q, query, args...)
}

func countLeavesByType(ctx context.Context, q querier, leaveTypeID int64) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM leaves WHERE leave_type_id = ?", leaveTypeID,
	).Scan(&count)
	return count, err
}

func queryLeaves(ctx context.Context, q querier, query string, args ...any) ([]leave.Leave, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaves: %w", err)
	}
	defer rows.Close()

	var leaves []leave.Leave
	for rows.Next() {
		var (
			l                    leave.Leave
			startDate, endDate   string
			totalDays, status    string
			reason, comments     sql.NullString
			docsJSON             sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.LeaveTypeID, &startDate, &endDate,
			&totalDays, &status, &reason, &l.ApproverID, &comments,
			&l.DepartmentID, &docsJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan leave: %w", err)
		}
		l.StartDate, _ = time.Parse(dayFormat, startDate)
		l.EndDate, _ = time.Parse(dayFormat, endDate)
		l.TotalDays = mustDecimal(totalDays)
		l.Status = leave.Status(status)
		l.Reason = reason.String
		l.Comments = comments.String
		if docsJSON.Valid && docsJSON.String != "" && docsJSON.String != "null" {
			json.Unmarshal([]byte(docsJSON.String), &l.DocumentIDs)
		}
		l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		l.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		leaves = append(leaves, l)
	}
	return leaves, rows.Err()
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

func (s *Store) SaveLeaveType(ctx context.Context, t *leave.LeaveType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveLeaveType(ctx, s.db, t)
}

func (s *Store) GetLeaveType(ctx context.Context, id int64) (*leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLeaveType(ctx, s.db, id)
}

func (s *Store) ListLeaveTypes(ctx context.Context) ([]leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryLeaveTypes(ctx, s.db, leaveTypeColumns+" FROM leave_types ORDER BY id")
}

func (s *Store) DeleteLeaveType(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM leave_types WHERE id = ?", id)
	return err
}

func (s *Store) CountBalancesByType(ctx context.Context, leaveTypeID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countBalancesByType(ctx, s.db, leaveTypeID)
}

const leaveTypeColumns = `SELECT id, name, default_days, accrual_rate, carry_over_allowed, max_carry_over_days, requires_approval, requires_documentation, paid, active, created_at, updated_at`

func saveLeaveType(ctx context.Context, q querier, t *leave.LeaveType) error {
	if t.ID == 0 {
		query := `
			INSERT INTO leave_types
			(name, default_days, accrual_rate, carry_over_allowed, max_carry_over_days,
			 requires_approval, requires_documentation, paid, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		res, err := q.ExecContext(ctx, query,
			t.Name, t.DefaultDays.String(), t.AccrualRate.String(),
			t.CarryOverAllowed, t.MaxCarryOverDays.String(),
			t.RequiresApproval, t.RequiresDocumentation, t.Paid, t.Active,
			t.CreatedAt.UTC().Format(time.RFC3339), t.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert leave type: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		t.ID = id
		return nil
	}

	query := `
		INSERT INTO leave_types
		(id, name, default_days, accrual_rate, carry_over_allowed, max_carry_over_days,
		 requires_approval, requires_documentation, paid, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			default_days = excluded.default_days,
			accrual_rate = excluded.accrual_rate,
			carry_over_allowed = excluded.carry_over_allowed,
			max_carry_over_days = excluded.max_carry_over_days,
			requires_approval = excluded.requires_approval,
			requires_documentation = excluded.requires_documentation,
			paid = excluded.paid,
			active = excluded.active,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		t.ID, t.Name, t.DefaultDays.String(), t.AccrualRate.String(),
		t.CarryOverAllowed, t.MaxCarryOverDays.String(),
		t.RequiresApproval, t.RequiresDocumentation, t.Paid, t.Active,
		t.CreatedAt.UTC().Format(time.RFC3339), t.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save leave type: %w", err)
	}
	return nil
}

func getLeaveType(ctx context.Context, q querier, id int64) (*leave.LeaveType, error) {
	types, err := queryLeaveTypes(ctx, q, leaveTypeColumns+" FROM leave_types WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, nil
	}
	return &types[0], nil
}

func countBalancesByType(ctx context.Context, q querier, leaveTypeID int64) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM leave_balances WHERE leave_type_id = ?", leaveTypeID,
	).Scan(&count)
	return count, err
}

func queryLeaveTypes(ctx context.Context, q querier, query string, args ...any) ([]leave.LeaveType, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave types: %w", err)
	}
	defer rows.Close()

	var types []leave.LeaveType
	for rows.Next() {
		var (
			t                        leave.LeaveType
			defaultDays, accrualRate string
			maxCarryOver             string
			createdAt, updatedAt     string
		)
		if err := rows.Scan(&t.ID, &t.Name, &defaultDays, &accrualRate,
			&t.CarryOverAllowed, &maxCarryOver, &t.RequiresApproval,
			&t.RequiresDocumentation, &t.Paid, &t.Active, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan leave type: %w", err)
		}
		t.DefaultDays = mustDecimal(defaultDays)
		t.AccrualRate = mustDecimal(accrualRate)
		t.MaxCarryOverDays = mustDecimal(maxCarryOver)
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		types = append(types, t)
	}
	return types, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (leave.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. All reads and writes
// in fn go through the same *sql.Tx, so fn observes its own writes and a
// returned error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(store leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetBalance(ctx context.Context, key leave.BalanceKey) (*leave.Balance, error) {
	return getBalance(ctx, ts.tx, key)
}

func (ts *txStore) SaveBalance(ctx context.Context, b leave.Balance) error {
	return saveBalance(ctx, ts.tx, b)
}

func (ts *txStore) ListBalancesByUser(ctx context.Context, userID int64) ([]leave.Balance, error) {
	return queryBalances(ctx, ts.tx, balanceColumns+" FROM leave_balances WHERE user_id = ? ORDER BY leave_type_id, year", userID)
}

func (ts *txStore) ListBalancesByYear(ctx context.Context, year int) ([]leave.Balance, error) {
	return queryBalances(ctx, ts.tx, balanceColumns+" FROM leave_balances WHERE year = ? ORDER BY user_id, leave_type_id", year)
}

func (ts *txStore) AppendEntry(ctx context.Context, e leave.Entry) error {
	return appendEntry(ctx, ts.tx, e)
}

func (ts *txStore) EntryExists(ctx context.Context, idempotencyKey string) (bool, error) {
	return entryExists(ctx, ts.tx, idempotencyKey)
}

func (ts *txStore) EntriesByBalance(ctx context.Context, key leave.BalanceKey) ([]leave.Entry, error) {
	return entriesByBalance(ctx, ts.tx, key)
}

func (ts *txStore) SaveLeave(ctx context.Context, l leave.Leave) error {
	return saveLeave(ctx, ts.tx, l)
}

func (ts *txStore) GetLeave(ctx context.Context, id string) (*leave.Leave, error) {
	return getLeave(ctx, ts.tx, id)
}

func (ts *txStore) ListLeavesByUser(ctx context.Context, userID int64) ([]leave.Leave, error) {
	return queryLeaves(ctx, ts.tx, leaveColumns+" FROM leaves WHERE user_id = ? ORDER BY created_at DESC, id", userID)
}

func (ts *txStore) ListLeavesByStatus(ctx context.Context, status leave.Status) ([]leave.Leave, error) {
	return queryLeaves(ctx, ts.tx, leaveColumns+" FROM leaves WHERE status = ? ORDER BY created_at DESC, id", string(status))
}

func (ts *txStore) ListLeavesByDepartments(ctx context.Context, departmentIDs []int64, status leave.Status) ([]leave.Leave, error) {
	return listLeavesByDepartments(ctx, ts.tx, departmentIDs, status)
}

func (ts *txStore) CountLeavesByType(ctx context.Context, leaveTypeID int64) (int, error) {
	return countLeavesByType(ctx, ts.tx, leaveTypeID)
}

func (ts *txStore) SaveLeaveType(ctx context.Context, t *leave.LeaveType) error {
	return saveLeaveType(ctx, ts.tx, t)
}

func (ts *txStore) GetLeaveType(ctx context.Context, id int64) (*leave.LeaveType, error) {
	return getLeaveType(ctx, ts.tx, id)
}

func (ts *txStore) ListLeaveTypes(ctx context.Context) ([]leave.LeaveType, error) {
	return queryLeaveTypes(ctx, ts.tx, leaveTypeColumns+" FROM leave_types ORDER BY id")
}

func (ts *txStore) DeleteLeaveType(ctx context.Context, id int64) error {
	_, err := ts.tx.ExecContext(ctx, "DELETE FROM leave_types WHERE id = ?", id)
	return err
}

func (ts *txStore) CountBalancesByType(ctx context.Context, leaveTypeID int64) (int, error) {
	return countBalancesByType(ctx, ts.tx, leaveTypeID)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"balance_entries", "leaves", "leave_balances", "leave_types"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
