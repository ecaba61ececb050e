// Package store provides the in-memory Store implementation used by tests
// and local development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/daking/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	balances    map[leave.BalanceKey]leave.Balance
	entries     []leave.Entry
	idempotency map[string]bool
	leaves      map[string]leave.Leave
	leaveTypes  map[int64]leave.LeaveType
	nextTypeID  int64
}

func NewMemory() *Memory {
	return &Memory{
		balances:    make(map[leave.BalanceKey]leave.Balance),
		idempotency: make(map[string]bool),
		leaves:      make(map[string]leave.Leave),
		leaveTypes:  make(map[int64]leave.LeaveType),
		nextTypeID:  1,
	}
}

// Reset drops all stored data. Used by demo scenario loading.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances = make(map[leave.BalanceKey]leave.Balance)
	m.entries = nil
	m.idempotency = make(map[string]bool)
	m.leaves = make(map[string]leave.Leave)
	m.leaveTypes = make(map[int64]leave.LeaveType)
	m.nextTypeID = 1
	return nil
}

// --- balances ---

func (m *Memory) GetBalance(_ context.Context, key leave.BalanceKey) (*leave.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBalanceLocked(key)
}

func (m *Memory) getBalanceLocked(key leave.BalanceKey) (*leave.Balance, error) {
	b, ok := m.balances[key]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *Memory) SaveBalance(_ context.Context, b leave.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[b.Key()] = b
	return nil
}

func (m *Memory) ListBalancesByUser(_ context.Context, userID int64) ([]leave.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listBalancesLocked(func(b leave.Balance) bool { return b.UserID == userID }), nil
}

func (m *Memory) ListBalancesByYear(_ context.Context, year int) ([]leave.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listBalancesLocked(func(b leave.Balance) bool { return b.Year == year }), nil
}

func (m *Memory) listBalancesLocked(keep func(leave.Balance) bool) []leave.Balance {
	out := []leave.Balance{}
	for _, b := range m.balances {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		if out[i].LeaveTypeID != out[j].LeaveTypeID {
			return out[i].LeaveTypeID < out[j].LeaveTypeID
		}
		return out[i].Year < out[j].Year
	})
	return out
}

// --- journal ---

func (m *Memory) AppendEntry(_ context.Context, e leave.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEntryLocked(e)
}

func (m *Memory) appendEntryLocked(e leave.Entry) error {
	if e.IdempotencyKey != "" && m.idempotency[e.IdempotencyKey] {
		return leave.ErrDuplicateEntry
	}
	m.entries = append(m.entries, e)
	if e.IdempotencyKey != "" {
		m.idempotency[e.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) EntryExists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

func (m *Memory) EntriesByBalance(_ context.Context, key leave.BalanceKey) ([]leave.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesByBalanceLocked(key), nil
}

func (m *Memory) entriesByBalanceLocked(key leave.BalanceKey) []leave.Entry {
	out := []leave.Entry{}
	for _, e := range m.entries {
		if e.UserID == key.UserID && e.LeaveTypeID == key.LeaveTypeID && e.Year == key.Year {
			out = append(out, e)
		}
	}
	return out
}

// --- leaves ---

func (m *Memory) SaveLeave(_ context.Context, l leave.Leave) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves[l.ID] = l
	return nil
}

func (m *Memory) GetLeave(_ context.Context, id string) (*leave.Leave, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLeaveLocked(id)
}

func (m *Memory) getLeaveLocked(id string) (*leave.Leave, error) {
	l, ok := m.leaves[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (m *Memory) ListLeavesByUser(_ context.Context, userID int64) ([]leave.Leave, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLeavesLocked(func(l leave.Leave) bool { return l.UserID == userID }), nil
}

func (m *Memory) ListLeavesByStatus(_ context.Context, status leave.Status) ([]leave.Leave, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLeavesLocked(func(l leave.Leave) bool { return l.Status == status }), nil
}

func (m *Memory) ListLeavesByDepartments(_ context.Context, departmentIDs []int64, status leave.Status) ([]leave.Leave, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	depts := make(map[int64]bool, len(departmentIDs))
	for _, d := range departmentIDs {
		depts[d] = true
	}
	return m.listLeavesLocked(func(l leave.Leave) bool {
		return l.Status == status && depts[l.DepartmentID]
	}), nil
}

func (m *Memory) CountLeavesByType(_ context.Context, leaveTypeID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, l := range m.leaves {
		if l.LeaveTypeID == leaveTypeID {
			n++
		}
	}
	return n, nil
}

// listLeavesLocked returns matches newest first.
func (m *Memory) listLeavesLocked(keep func(leave.Leave) bool) []leave.Leave {
	out := []leave.Leave{}
	for _, l := range m.leaves {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// --- leave types ---

func (m *Memory) SaveLeaveType(_ context.Context, t *leave.LeaveType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLeaveTypeLocked(t)
}

func (m *Memory) saveLeaveTypeLocked(t *leave.LeaveType) error {
	if t.ID == 0 {
		t.ID = m.nextTypeID
		m.nextTypeID++
	}
	m.leaveTypes[t.ID] = *t
	return nil
}

func (m *Memory) GetLeaveType(_ context.Context, id int64) (*leave.LeaveType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLeaveTypeLocked(id)
}

func (m *Memory) getLeaveTypeLocked(id int64) (*leave.LeaveType, error) {
	t, ok := m.leaveTypes[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) ListLeaveTypes(_ context.Context) ([]leave.LeaveType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLeaveTypesLocked(), nil
}

func (m *Memory) listLeaveTypesLocked() []leave.LeaveType {
	out := make([]leave.LeaveType, 0, len(m.leaveTypes))
	for _, t := range m.leaveTypes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) DeleteLeaveType(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leaveTypes, id)
	return nil
}

func (m *Memory) CountBalancesByType(_ context.Context, leaveTypeID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, b := range m.balances {
		if b.LeaveTypeID == leaveTypeID {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction. For the memory store this is
// simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm.Memory}
	if err := fn(view); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	balances    map[leave.BalanceKey]leave.Balance
	entries     []leave.Entry
	idempotency map[string]bool
	leaves      map[string]leave.Leave
	leaveTypes  map[int64]leave.LeaveType
	nextTypeID  int64
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		balances:    make(map[leave.BalanceKey]leave.Balance, len(tm.balances)),
		entries:     append([]leave.Entry{}, tm.entries...),
		idempotency: make(map[string]bool, len(tm.idempotency)),
		leaves:      make(map[string]leave.Leave, len(tm.leaves)),
		leaveTypes:  make(map[int64]leave.LeaveType, len(tm.leaveTypes)),
		nextTypeID:  tm.nextTypeID,
	}
	for k, v := range tm.balances {
		s.balances[k] = v
	}
	for k, v := range tm.idempotency {
		s.idempotency[k] = v
	}
	for k, v := range tm.leaves {
		s.leaves[k] = v
	}
	for k, v := range tm.leaveTypes {
		s.leaveTypes[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.balances = s.balances
	tm.entries = s.entries
	tm.idempotency = s.idempotency
	tm.leaves = s.leaves
	tm.leaveTypes = s.leaveTypes
	tm.nextTypeID = s.nextTypeID
}

// txMemoryView routes Store calls to the locked internals while WithTx
// holds the write lock.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) GetBalance(_ context.Context, key leave.BalanceKey) (*leave.Balance, error) {
	return tv.parent.getBalanceLocked(key)
}

func (tv *txMemoryView) SaveBalance(_ context.Context, b leave.Balance) error {
	tv.parent.balances[b.Key()] = b
	return nil
}

func (tv *txMemoryView) ListBalancesByUser(_ context.Context, userID int64) ([]leave.Balance, error) {
	return tv.parent.listBalancesLocked(func(b leave.Balance) bool { return b.UserID == userID }), nil
}

func (tv *txMemoryView) ListBalancesByYear(_ context.Context, year int) ([]leave.Balance, error) {
	return tv.parent.listBalancesLocked(func(b leave.Balance) bool { return b.Year == year }), nil
}

func (tv *txMemoryView) AppendEntry(_ context.Context, e leave.Entry) error {
	return tv.parent.appendEntryLocked(e)
}

func (tv *txMemoryView) EntryExists(_ context.Context, idempotencyKey string) (bool, error) {
	return tv.parent.idempotency[idempotencyKey], nil
}

func (tv *txMemoryView) EntriesByBalance(_ context.Context, key leave.BalanceKey) ([]leave.Entry, error) {
	return tv.parent.entriesByBalanceLocked(key), nil
}

func (tv *txMemoryView) SaveLeave(_ context.Context, l leave.Leave) error {
	tv.parent.leaves[l.ID] = l
	return nil
}

func (tv *txMemoryView) GetLeave(_ context.Context, id string) (*leave.Leave, error) {
	return tv.parent.getLeaveLocked(id)
}

func (tv *txMemoryView) ListLeavesByUser(_ context.Context, userID int64) ([]leave.Leave, error) {
	return tv.parent.listLeavesLocked(func(l leave.Leave) bool { return l.UserID == userID }), nil
}

func (tv *txMemoryView) ListLeavesByStatus(_ context.Context, status leave.Status) ([]leave.Leave, error) {
	return tv.parent.listLeavesLocked(func(l leave.Leave) bool { return l.Status == status }), nil
}

func (tv *txMemoryView) ListLeavesByDepartments(_ context.Context, departmentIDs []int64, status leave.Status) ([]leave.Leave, error) {
	depts := make(map[int64]bool, len(departmentIDs))
	for _, d := range departmentIDs {
		depts[d] = true
	}
	return tv.parent.listLeavesLocked(func(l leave.Leave) bool {
		return l.Status == status && depts[l.DepartmentID]
	}), nil
}

func (tv *txMemoryView) CountLeavesByType(_ context.Context, leaveTypeID int64) (int, error) {
	n := 0
	for _, l := range tv.parent.leaves {
		if l.LeaveTypeID == leaveTypeID {
			n++
		}
	}
	return n, nil
}

func (tv *txMemoryView) SaveLeaveType(_ context.Context, t *leave.LeaveType) error {
	return tv.parent.saveLeaveTypeLocked(t)
}

func (tv *txMemoryView) GetLeaveType(_ context.Context, id int64) (*leave.LeaveType, error) {
	return tv.parent.getLeaveTypeLocked(id)
}

func (tv *txMemoryView) ListLeaveTypes(_ context.Context) ([]leave.LeaveType, error) {
	return tv.parent.listLeaveTypesLocked(), nil
}

func (tv *txMemoryView) DeleteLeaveType(_ context.Context, id int64) error {
	delete(tv.parent.leaveTypes, id)
	return nil
}

func (tv *txMemoryView) CountBalancesByType(_ context.Context, leaveTypeID int64) (int, error) {
	n := 0
	for _, b := range tv.parent.balances {
		if b.LeaveTypeID == leaveTypeID {
			n++
		}
	}
	return n, nil
}
