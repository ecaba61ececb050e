package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daking/leave-engine/leave"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestJob(t *testing.T) (*leave.AccrualJob, *serviceFixture) {
	t.Helper()
	f := newTestService(t)
	job := leave.NewAccrualJob(f.ledger, f.catalog, f.dir, f.sink, zap.NewNop())
	return job, f
}

// =============================================================================
// MONTHLY ACCRUAL
// =============================================================================

func TestAccrualJob_RunMonthlyAccrual(t *testing.T) {
	// GIVEN: Three balance-holding users and one accruing type
	// WHEN: The monthly run fires twice in August and once in September
	// THEN: Each balance is credited once per month

	job, f := newTestJob(t)
	ctx := context.Background()
	august := time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC)

	applied, err := job.RunMonthlyAccrual(ctx, august)
	require.NoError(t, err)
	assert.Equal(t, 3, applied)

	b := f.balance(t, staffID, 2026)
	assert.True(t, b.TotalDays.Equal(leave.Days(21.66)), "seeded 20 + one accrual of 1.66")

	// Re-firing within the same month is a no-op.
	applied, err = job.RunMonthlyAccrual(ctx, august.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	b = f.balance(t, staffID, 2026)
	assert.True(t, b.TotalDays.Equal(leave.Days(21.66)))

	// The next month credits again.
	applied, err = job.RunMonthlyAccrual(ctx, august.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, 3, applied)
}

func TestAccrualJob_SkipsNonAccruingTypes(t *testing.T) {
	// GIVEN: A second type with no accrual rate
	// WHEN: The monthly run fires
	// THEN: Only the accruing type's balances are credited

	job, f := newTestJob(t)
	ctx := context.Background()

	_, err := f.catalog.Create(ctx, leave.LeaveType{
		Name:        "Sick Leave",
		DefaultDays: leave.Days(10),
		Paid:        true,
	})
	require.NoError(t, err)

	applied, err := job.RunMonthlyAccrual(ctx, time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 3, applied, "one credit per user, annual type only")
}

func TestAccrualJob_NotifiesAdminsWithSummary(t *testing.T) {
	job, f := newTestJob(t)

	_, err := job.RunMonthlyAccrual(context.Background(), time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	events := f.sink.EventsOfKind(leave.EventAccrualCompleted)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Recipients, adminID)
}

func TestAccrualJob_DirectoryDownAbortsRun(t *testing.T) {
	job, f := newTestJob(t)
	f.dir.Fail = true

	applied, err := job.RunMonthlyAccrual(context.Background(), time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, leave.ErrDirectoryUnavailable)
	assert.Equal(t, 0, applied)
}

// =============================================================================
// CARRY-OVER
// =============================================================================

func TestAccrualJob_RunCarryOver(t *testing.T) {
	// GIVEN: One user with 8 unused days from 2025 and a 5-day cap
	// WHEN: The January run fires twice
	// THEN: 5 days move into 2026 exactly once; users without a prior-year
	//       row are untouched

	job, f := newTestJob(t)
	ctx := context.Background()
	from := leave.BalanceKey{UserID: staffID, LeaveTypeID: f.annual.ID, Year: 2025}

	_, err := f.ledger.GetOrCreate(ctx, from)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Reserve(ctx, from, leave.Days(12), "leave-2025", staffID))

	january := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	applied, err := job.RunCarryOver(ctx, january)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	to := f.balance(t, staffID, 2026)
	assert.True(t, to.CarriedOverDays.Equal(leave.Days(5)))
	assert.True(t, to.TotalDays.Equal(leave.Days(25)))

	// staff2 had no 2025 row; nothing was created for them.
	b, err := f.store.GetBalance(ctx, leave.BalanceKey{UserID: staff2ID, LeaveTypeID: f.annual.ID, Year: 2026})
	require.NoError(t, err)
	assert.Nil(t, b)

	// Re-running is a no-op.
	applied, err = job.RunCarryOver(ctx, january)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	events := f.sink.EventsOfKind(leave.EventCarryOverCompleted)
	assert.Len(t, events, 2, "every run reports a summary")
}
