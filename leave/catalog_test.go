package leave_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daking/leave-engine/leave"
	"github.com/daking/leave-engine/leave/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestCatalog(t *testing.T) (*leave.Catalog, *store.TxMemory) {
	t.Helper()
	mem := store.NewTxMemory()
	return leave.NewCatalog(mem, zap.NewNop()), mem
}

// =============================================================================
// CREATE / UPDATE
// =============================================================================

func TestCatalog_Create_AssignsIDAndActivates(t *testing.T) {
	catalog, _ := newTestCatalog(t)

	created, err := catalog.Create(context.Background(), leave.LeaveType{
		Name:        "Annual Leave",
		DefaultDays: leave.Days(20),
		Paid:        true,
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.True(t, created.Active, "new types start active")
}

func TestCatalog_Create_DuplicateNameRejected(t *testing.T) {
	// GIVEN: An existing type named "Annual Leave"
	// WHEN: Creating another with a different casing of the same name
	// THEN: The catalog refuses

	catalog, _ := newTestCatalog(t)
	ctx := context.Background()

	_, err := catalog.Create(ctx, leave.LeaveType{Name: "Annual Leave", DefaultDays: leave.Days(20)})
	require.NoError(t, err)

	_, err = catalog.Create(ctx, leave.LeaveType{Name: "annual leave", DefaultDays: leave.Days(15)})
	assert.ErrorIs(t, err, leave.ErrValidation)
}

func TestCatalog_Create_Validation(t *testing.T) {
	catalog, _ := newTestCatalog(t)
	ctx := context.Background()

	// Empty name.
	_, err := catalog.Create(ctx, leave.LeaveType{Name: "   "})
	assert.ErrorIs(t, err, leave.ErrValidation)

	// Negative entitlement.
	_, err = catalog.Create(ctx, leave.LeaveType{Name: "Broken", DefaultDays: leave.Days(-1)})
	assert.ErrorIs(t, err, leave.ErrValidation)

	// Carry-over cap without carry-over.
	_, err = catalog.Create(ctx, leave.LeaveType{
		Name:             "Inconsistent",
		DefaultDays:      leave.Days(10),
		MaxCarryOverDays: leave.Days(5),
	})
	assert.ErrorIs(t, err, leave.ErrValidation)
}

func TestCatalog_Update_ReplacesMutableFields(t *testing.T) {
	catalog, _ := newTestCatalog(t)
	ctx := context.Background()

	created, err := catalog.Create(ctx, leave.LeaveType{Name: "Annual Leave", DefaultDays: leave.Days(20)})
	require.NoError(t, err)

	created.DefaultDays = leave.Days(25)
	created.Active = false
	updated, err := catalog.Update(ctx, created.ID, *created)
	require.NoError(t, err)
	assert.True(t, updated.DefaultDays.Equal(leave.Days(25)))
	assert.False(t, updated.Active)
}

func TestCatalog_Update_NameClashRejected(t *testing.T) {
	catalog, _ := newTestCatalog(t)
	ctx := context.Background()

	_, err := catalog.Create(ctx, leave.LeaveType{Name: "Annual Leave", DefaultDays: leave.Days(20)})
	require.NoError(t, err)
	sick, err := catalog.Create(ctx, leave.LeaveType{Name: "Sick Leave", DefaultDays: leave.Days(10)})
	require.NoError(t, err)

	sick.Name = "Annual Leave"
	_, err = catalog.Update(ctx, sick.ID, *sick)
	assert.ErrorIs(t, err, leave.ErrValidation)
}

func TestCatalog_Update_UnknownType(t *testing.T) {
	catalog, _ := newTestCatalog(t)

	_, err := catalog.Update(context.Background(), 999, leave.LeaveType{Name: "Ghost"})
	assert.ErrorIs(t, err, leave.ErrLeaveTypeNotFound)
}

// =============================================================================
// LIST / DELETE
// =============================================================================

func TestCatalog_List_ActiveFilter(t *testing.T) {
	catalog, _ := newTestCatalog(t)
	ctx := context.Background()

	_, err := catalog.Create(ctx, leave.LeaveType{Name: "Annual Leave", DefaultDays: leave.Days(20)})
	require.NoError(t, err)
	retired, err := catalog.Create(ctx, leave.LeaveType{Name: "Legacy Leave", DefaultDays: leave.Days(5)})
	require.NoError(t, err)
	retired.Active = false
	_, err = catalog.Update(ctx, retired.ID, *retired)
	require.NoError(t, err)

	all, err := catalog.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := catalog.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Annual Leave", active[0].Name)
}

func TestCatalog_Delete_BlockedWhenReferenced(t *testing.T) {
	// GIVEN: A type with a seeded balance against it
	// WHEN: Deleting the type
	// THEN: The catalog refuses; retire with Active=false instead

	catalog, mem := newTestCatalog(t)
	ctx := context.Background()

	created, err := catalog.Create(ctx, leave.LeaveType{Name: "Annual Leave", DefaultDays: leave.Days(20)})
	require.NoError(t, err)

	dir := newTestDirectory()
	ledger := leave.NewLedger(mem, dir, zap.NewNop())
	_, err = ledger.GetOrCreate(ctx, leave.BalanceKey{UserID: staffID, LeaveTypeID: created.ID, Year: 2026})
	require.NoError(t, err)

	err = catalog.Delete(ctx, created.ID)
	assert.ErrorIs(t, err, leave.ErrLeaveTypeInUse)
}

func TestCatalog_Delete_UnreferencedType(t *testing.T) {
	catalog, _ := newTestCatalog(t)
	ctx := context.Background()

	created, err := catalog.Create(ctx, leave.LeaveType{Name: "Annual Leave", DefaultDays: leave.Days(20)})
	require.NoError(t, err)

	require.NoError(t, catalog.Delete(ctx, created.ID))

	_, err = catalog.Get(ctx, created.ID)
	assert.ErrorIs(t, err, leave.ErrLeaveTypeNotFound)
}
