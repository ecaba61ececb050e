package api_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daking/leave-engine/api"
	"github.com/daking/leave-engine/leave"
)

// =============================================================================
// SCENARIO ENDPOINTS
// =============================================================================

func TestScenarios_List(t *testing.T) {
	f := newTestAPI(t)

	rec := f.do(t, http.MethodGet, "/api/scenarios", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]api.ScenarioDTO](t, rec)
	assert.Len(t, list, 3)
}

func TestScenarios_DisabledInProduction(t *testing.T) {
	f := newTestAPI(t)
	f.handler.Scenarios = nil

	rec := f.do(t, http.MethodGet, "/api/scenarios", 0, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/scenarios/load", 0, map[string]any{"scenario_id": "fresh-team"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestScenarios_UnknownID(t *testing.T) {
	f := newTestAPI(t)

	rec := f.do(t, http.MethodPost, "/api/scenarios/load", 0, map[string]any{"scenario_id": "no-such-thing"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// LOADERS
// =============================================================================

func TestScenarios_FreshTeam(t *testing.T) {
	// GIVEN: An empty environment
	// WHEN: The fresh-team scenario loads
	// THEN: The catalog is seeded and every balance holder has rows

	f := newTestAPI(t)
	ctx := context.Background()

	rec := f.do(t, http.MethodPost, "/api/scenarios/load", 0, map[string]any{"scenario_id": "fresh-team"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	types, err := f.catalog.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, types, 3)

	// Two balance holders (staff + manager), three types each.
	balances, err := f.store.ListBalancesByYear(ctx, time.Now().UTC().Year())
	require.NoError(t, err)
	assert.Len(t, balances, 6)

	rec = f.do(t, http.MethodGet, "/api/scenarios/current", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	current := decode[api.ScenarioDTO](t, rec)
	assert.Equal(t, "fresh-team", current.ID)
}

func TestScenarios_BusyQuarter(t *testing.T) {
	// GIVEN: A directory with an admin decider
	// WHEN: The busy-quarter scenario loads
	// THEN: Requests exist in several lifecycle states and every row
	//       still satisfies the balance invariant

	f := newTestAPI(t)
	ctx := context.Background()

	rec := f.do(t, http.MethodPost, "/api/scenarios/load", 0, map[string]any{"scenario_id": "busy-quarter"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var statuses []leave.Status
	for _, uid := range []int64{staffID, managerID} {
		leaves, err := f.store.ListLeavesByUser(ctx, uid)
		require.NoError(t, err)
		require.Len(t, leaves, 1)
		statuses = append(statuses, leaves[0].Status)
	}
	assert.ElementsMatch(t, []leave.Status{leave.StatusApproved, leave.StatusRejected}, statuses)

	balances, err := f.store.ListBalancesByYear(ctx, time.Now().UTC().Year())
	require.NoError(t, err)
	for _, b := range balances {
		assert.NoError(t, b.CheckInvariant())
	}
}

func TestScenarios_YearEnd(t *testing.T) {
	// GIVEN: Prior-year balances with unused days above the cap
	// WHEN: The year-end scenario loads
	// THEN: Each balance holder carried exactly the cap into this year

	f := newTestAPI(t)
	ctx := context.Background()

	rec := f.do(t, http.MethodPost, "/api/scenarios/load", 0, map[string]any{"scenario_id": "year-end"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	balances, err := f.store.ListBalancesByYear(ctx, time.Now().UTC().Year())
	require.NoError(t, err)
	require.Len(t, balances, 2)
	for _, b := range balances {
		assert.True(t, b.CarriedOverDays.Equal(leave.Days(5)), "capped carry-over")
		assert.True(t, b.TotalDays.Equal(leave.Days(25)))
	}
}

func TestScenarios_LoadResetsPreviousData(t *testing.T) {
	f := newTestAPI(t)
	ctx := context.Background()

	// File a request against the fixture's own catalog entry.
	rec := f.do(t, http.MethodPost, "/api/leaves", staffID, applyBody(f, 7, 9))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/scenarios/load", 0, map[string]any{"scenario_id": "fresh-team"})
	require.Equal(t, http.StatusOK, rec.Code)

	leaves, err := f.store.ListLeavesByUser(ctx, staffID)
	require.NoError(t, err)
	assert.Empty(t, leaves, "loading a scenario starts from a clean store")
}
