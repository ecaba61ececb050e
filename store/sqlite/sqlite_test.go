package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daking/leave-engine/leave"
	"github.com/daking/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testKey() leave.BalanceKey {
	return leave.BalanceKey{UserID: 1, LeaveTypeID: 1, Year: 2026}
}

func testBalance() leave.Balance {
	return leave.Balance{
		UserID:        1,
		LeaveTypeID:   1,
		Year:          2026,
		TotalDays:     leave.Days(20),
		UsedDays:      leave.Days(3),
		RemainingDays: leave.Days(17),
		UpdatedAt:     time.Now().UTC(),
	}
}

func testEntry(idem string) leave.Entry {
	return leave.Entry{
		ID:             "entry-" + idem,
		Op:             leave.OpReserve,
		UserID:         1,
		LeaveTypeID:    1,
		Year:           2026,
		Delta:          leave.Days(-3),
		Reason:         "reserved for leave abc",
		IdempotencyKey: idem,
		ActorID:        1,
		Metadata:       map[string]string{"period": "2026-08"},
		CreatedAt:      time.Now().UTC(),
	}
}

func testLeave(id string, userID, deptID int64, status leave.Status) leave.Leave {
	start := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	return leave.Leave{
		ID:           id,
		UserID:       userID,
		LeaveTypeID:  1,
		StartDate:    start,
		EndDate:      start.AddDate(0, 0, 2),
		TotalDays:    leave.Days(3),
		Status:       status,
		Reason:       "family trip",
		DepartmentID: deptID,
		DocumentIDs:  []int64{7, 8},
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
}

// =============================================================================
// BALANCES
// =============================================================================

func TestStore_Balance_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	missing, err := s.GetBalance(ctx, testKey())
	require.NoError(t, err)
	assert.Nil(t, missing, "missing rows come back nil, not an error")

	require.NoError(t, s.SaveBalance(ctx, testBalance()))

	got, err := s.GetBalance(ctx, testKey())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.TotalDays.Equal(leave.Days(20)))
	assert.True(t, got.UsedDays.Equal(leave.Days(3)))
	assert.True(t, got.RemainingDays.Equal(leave.Days(17)))
	assert.NoError(t, got.CheckInvariant())

	// Upsert replaces the row.
	b := testBalance()
	b.UsedDays = leave.Days(5)
	b.RemainingDays = leave.Days(15)
	require.NoError(t, s.SaveBalance(ctx, b))

	got, err = s.GetBalance(ctx, testKey())
	require.NoError(t, err)
	assert.True(t, got.UsedDays.Equal(leave.Days(5)))
}

func TestStore_ListBalances(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, b := range []leave.Balance{
		{UserID: 1, LeaveTypeID: 1, Year: 2026, TotalDays: leave.Days(20), RemainingDays: leave.Days(20), UpdatedAt: time.Now().UTC()},
		{UserID: 1, LeaveTypeID: 2, Year: 2026, TotalDays: leave.Days(10), RemainingDays: leave.Days(10), UpdatedAt: time.Now().UTC()},
		{UserID: 2, LeaveTypeID: 1, Year: 2025, TotalDays: leave.Days(20), RemainingDays: leave.Days(20), UpdatedAt: time.Now().UTC()},
	} {
		require.NoError(t, s.SaveBalance(ctx, b))
	}

	byUser, err := s.ListBalancesByUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	byYear, err := s.ListBalancesByYear(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, byYear, 1)
	assert.Equal(t, int64(2), byYear[0].UserID)
}

// =============================================================================
// JOURNAL
// =============================================================================

func TestStore_AppendEntry_IdempotencyKeyUnique(t *testing.T) {
	// GIVEN: A journal entry with key "reserve-abc"
	// WHEN: A second entry reuses the key
	// THEN: The unique index rejects it as a duplicate

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEntry(ctx, testEntry("reserve-abc")))

	dup := testEntry("reserve-abc")
	dup.ID = "entry-other"
	err := s.AppendEntry(ctx, dup)
	assert.ErrorIs(t, err, leave.ErrDuplicateEntry)

	exists, err := s.EntryExists(ctx, "reserve-abc")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.EntryExists(ctx, "release-abc")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_EntriesByBalance_PreservesMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEntry(ctx, testEntry("reserve-abc")))

	entries, err := s.EntriesByBalance(ctx, testKey())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, leave.OpReserve, entries[0].Op)
	assert.True(t, entries[0].Delta.Equal(leave.Days(-3)))
	assert.Equal(t, "2026-08", entries[0].Metadata["period"])
}

// =============================================================================
// LEAVES
// =============================================================================

func TestStore_Leave_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	l := testLeave("leave-1", 1, 10, leave.StatusPending)
	require.NoError(t, s.SaveLeave(ctx, l))

	got, err := s.GetLeave(ctx, "leave-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.StartDate.Equal(l.StartDate))
	assert.True(t, got.EndDate.Equal(l.EndDate))
	assert.True(t, got.TotalDays.Equal(leave.Days(3)))
	assert.Equal(t, []int64{7, 8}, got.DocumentIDs)

	// Updating flips the lifecycle fields.
	l.Status = leave.StatusApproved
	l.ApproverID = 2
	l.Comments = "enjoy"
	require.NoError(t, s.SaveLeave(ctx, l))

	got, err = s.GetLeave(ctx, "leave-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, got.Status)
	assert.Equal(t, int64(2), got.ApproverID)
	assert.Equal(t, "enjoy", got.Comments)

	missing, err := s.GetLeave(ctx, "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_ListLeavesByDepartments(t *testing.T) {
	// GIVEN: Pending and approved requests across three departments
	// WHEN: Listing pending requests for departments 10 and 20
	// THEN: Only matching rows come back

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveLeave(ctx, testLeave("leave-1", 1, 10, leave.StatusPending)))
	require.NoError(t, s.SaveLeave(ctx, testLeave("leave-2", 2, 20, leave.StatusPending)))
	require.NoError(t, s.SaveLeave(ctx, testLeave("leave-3", 3, 30, leave.StatusPending)))
	require.NoError(t, s.SaveLeave(ctx, testLeave("leave-4", 4, 10, leave.StatusApproved)))

	got, err := s.ListLeavesByDepartments(ctx, []int64{10, 20}, leave.StatusPending)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, l := range got {
		assert.Equal(t, leave.StatusPending, l.Status)
		assert.Contains(t, []int64{10, 20}, l.DepartmentID)
	}

	none, err := s.ListLeavesByDepartments(ctx, nil, leave.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_ListLeavesByStatusAndUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveLeave(ctx, testLeave("leave-1", 1, 10, leave.StatusPending)))
	require.NoError(t, s.SaveLeave(ctx, testLeave("leave-2", 1, 10, leave.StatusRejected)))
	require.NoError(t, s.SaveLeave(ctx, testLeave("leave-3", 2, 10, leave.StatusPending)))

	pending, err := s.ListLeavesByStatus(ctx, leave.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	mine, err := s.ListLeavesByUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	count, err := s.CountLeavesByType(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

func TestStore_LeaveType_InsertAssignsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lt := &leave.LeaveType{
		Name:             "Annual Leave",
		DefaultDays:      leave.Days(20),
		AccrualRate:      leave.Days(1.66),
		CarryOverAllowed: true,
		MaxCarryOverDays: leave.Days(5),
		RequiresApproval: true,
		Paid:             true,
		Active:           true,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	require.NoError(t, s.SaveLeaveType(ctx, lt))
	assert.NotZero(t, lt.ID, "insert writes the generated id back")

	got, err := s.GetLeaveType(ctx, lt.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Annual Leave", got.Name)
	assert.True(t, got.AccrualRate.Equal(leave.Days(1.66)))
	assert.True(t, got.CarryOverAllowed)

	// Update keeps the id.
	got.Name = "Annual Leave (revised)"
	require.NoError(t, s.SaveLeaveType(ctx, got))
	all, err := s.ListLeaveTypes(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Annual Leave (revised)", all[0].Name)
}

func TestStore_LeaveType_DeleteAndCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lt := &leave.LeaveType{Name: "Annual Leave", DefaultDays: leave.Days(20), Active: true, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	require.NoError(t, s.SaveLeaveType(ctx, lt))
	require.NoError(t, s.SaveBalance(ctx, leave.Balance{UserID: 1, LeaveTypeID: lt.ID, Year: 2026, TotalDays: leave.Days(20), RemainingDays: leave.Days(20), UpdatedAt: time.Now().UTC()}))

	count, err := s.CountBalancesByType(ctx, lt.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, s.DeleteLeaveType(ctx, lt.ID))
	got, err := s.GetLeaveType(ctx, lt.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that saves a balance and an entry, then fails
	// WHEN: The function returns an error
	// THEN: Neither write survives

	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx leave.Store) error {
		if err := tx.SaveBalance(ctx, testBalance()); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, testEntry("reserve-abc")); err != nil {
			return err
		}

		// Uncommitted writes are visible inside the transaction.
		b, err := tx.GetBalance(ctx, testKey())
		if err != nil {
			return err
		}
		require.NotNil(t, b)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	b, err := s.GetBalance(ctx, testKey())
	require.NoError(t, err)
	assert.Nil(t, b)

	exists, err := s.EntryExists(ctx, "reserve-abc")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_WithTx_CommitsOnSuccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx leave.Store) error {
		if err := tx.SaveBalance(ctx, testBalance()); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, testEntry("reserve-abc"))
	})
	require.NoError(t, err)

	b, err := s.GetBalance(ctx, testKey())
	require.NoError(t, err)
	require.NotNil(t, b)

	exists, err := s.EntryExists(ctx, "reserve-abc")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStore_Reset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBalance(ctx, testBalance()))
	require.NoError(t, s.Reset(ctx))

	b, err := s.GetBalance(ctx, testKey())
	require.NoError(t, err)
	assert.Nil(t, b)
}
