package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daking/leave-engine/leave"
	"github.com/daking/leave-engine/leave/store"
)

func seedBalance() leave.Balance {
	return leave.Balance{
		UserID:        1,
		LeaveTypeID:   1,
		Year:          2026,
		TotalDays:     leave.Days(20),
		RemainingDays: leave.Days(20),
		UpdatedAt:     time.Now().UTC(),
	}
}

func TestTxMemory_RollbackRestoresSnapshot(t *testing.T) {
	// GIVEN: A committed balance row
	// WHEN: A transaction mutates it, appends an entry, and then fails
	// THEN: Every write inside the transaction is undone

	mem := store.NewTxMemory()
	ctx := context.Background()
	key := leave.BalanceKey{UserID: 1, LeaveTypeID: 1, Year: 2026}
	boom := errors.New("boom")

	require.NoError(t, mem.SaveBalance(ctx, seedBalance()))

	err := mem.WithTx(ctx, func(tx leave.Store) error {
		b, err := tx.GetBalance(ctx, key)
		if err != nil {
			return err
		}
		b.UsedDays = leave.Days(5)
		b.RemainingDays = leave.Days(15)
		if err := tx.SaveBalance(ctx, *b); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, leave.Entry{
			ID: "e1", Op: leave.OpReserve, UserID: 1, LeaveTypeID: 1, Year: 2026,
			Delta: leave.Days(-5), IdempotencyKey: "reserve-x", CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	b, err := mem.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, b.UsedDays.IsZero())

	exists, err := mem.EntryExists(ctx, "reserve-x")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTxMemory_DuplicateIdempotencyKey(t *testing.T) {
	mem := store.NewTxMemory()
	ctx := context.Background()

	entry := leave.Entry{
		ID: "e1", Op: leave.OpReserve, UserID: 1, LeaveTypeID: 1, Year: 2026,
		Delta: leave.Days(-5), IdempotencyKey: "reserve-x", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, mem.AppendEntry(ctx, entry))

	entry.ID = "e2"
	assert.ErrorIs(t, mem.AppendEntry(ctx, entry), leave.ErrDuplicateEntry)
}

func TestMemory_ListLeavesNewestFirst(t *testing.T) {
	mem := store.NewTxMemory()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, mem.SaveLeave(ctx, leave.Leave{
			ID: id, UserID: 1, LeaveTypeID: 1,
			StartDate: base.AddDate(0, 1, 0), EndDate: base.AddDate(0, 1, 2),
			TotalDays: leave.Days(3), Status: leave.StatusPending,
			DepartmentID: 10, CreatedAt: base.AddDate(0, 0, i), UpdatedAt: base.AddDate(0, 0, i),
		}))
	}

	leaves, err := mem.ListLeavesByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, leaves, 3)
	assert.Equal(t, "new", leaves[0].ID)
	assert.Equal(t, "old", leaves[2].ID)
}
