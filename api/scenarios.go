/*
scenarios.go - Demo scenario loaders for development and demos

PURPOSE:
  Populates the store with realistic data so a fresh environment has
  something to show. Every loader drives the real domain operations
  (catalog, ledger, state machine, jobs) rather than writing rows by
  hand, so demo data always satisfies the balance invariant and the
  transition guards.

AVAILABLE SCENARIOS:
  fresh-team:    Catalog seeded, every balance-holding user initialized
  busy-quarter:  fresh-team plus a mix of pending/approved/rejected requests
  year-end:      Prior-year leftovers carried over into the current year

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "busy-quarter"}

NOTE:
  Loading a scenario resets the store. The loader is only wired in
  development; in production the endpoints answer 503.

SEE ALSO:
  - server.go: /api/scenarios routes
  - cmd/server/main.go: development-only wiring
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/daking/leave-engine/leave"
)

// ResettableStore is a TxStore that can be wiped for demo loading.
type ResettableStore interface {
	leave.TxStore
	Reset(ctx context.Context) error
}

// ScenarioLoader builds demo datasets through the domain services.
type ScenarioLoader struct {
	Store     ResettableStore
	Service   *leave.Service
	Ledger    *leave.Ledger
	Catalog   *leave.Catalog
	Job       *leave.AccrualJob
	Directory leave.DirectoryGateway
	Log       *zap.Logger

	mu      sync.Mutex
	current string
}

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-team",
		Name:        "Fresh Team",
		Description: "Seeded catalog and initialized balances, no requests yet",
	},
	{
		ID:          "busy-quarter",
		Name:        "Busy Quarter",
		Description: "Pending, approved, and rejected requests across departments",
	},
	{
		ID:          "year-end",
		Name:        "Year-End Carry-Over",
		Description: "Unused prior-year days carried into the current year, capped",
	},
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, _ *http.Request) {
	if h.Scenarios == nil {
		writeError(w, http.StatusServiceUnavailable, "Scenarios are disabled in this environment", nil)
		return
	}
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, _ *http.Request) {
	if h.Scenarios == nil {
		writeError(w, http.StatusServiceUnavailable, "Scenarios are disabled in this environment", nil)
		return
	}
	current := h.Scenarios.Current()
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.Scenarios == nil {
		writeError(w, http.StatusServiceUnavailable, "Scenarios are disabled in this environment", nil)
		return
	}
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Scenarios.Load(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// LOADER
// =============================================================================

var errUnknownScenario = errors.New("unknown scenario")

// Current returns the id of the last loaded scenario, empty when none.
func (l *ScenarioLoader) Current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Load wipes the store and runs the named scenario's loader.
func (l *ScenarioLoader) Load(ctx context.Context, scenarioID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.Store.Reset(ctx); err != nil {
		return err
	}
	l.current = ""

	var err error
	switch scenarioID {
	case "fresh-team":
		err = l.loadFreshTeam(ctx)
	case "busy-quarter":
		err = l.loadBusyQuarter(ctx)
	case "year-end":
		err = l.loadYearEnd(ctx)
	default:
		return errUnknownScenario
	}
	if err != nil {
		return err
	}

	l.current = scenarioID
	l.Log.Info("demo scenario loaded", zap.String("scenario", scenarioID))
	return nil
}

// loadFreshTeam seeds the catalog and a balance row for every
// balance-holding user and active type.
func (l *ScenarioLoader) loadFreshTeam(ctx context.Context) error {
	if _, err := l.seedCatalog(ctx); err != nil {
		return err
	}

	users, err := l.balanceHolders(ctx)
	if err != nil {
		return err
	}
	types, err := l.Catalog.List(ctx, true)
	if err != nil {
		return err
	}
	year := time.Now().UTC().Year()
	for _, u := range users {
		for _, t := range types {
			key := leave.BalanceKey{UserID: u.ID, LeaveTypeID: t.ID, Year: year}
			if _, err := l.Ledger.GetOrCreate(ctx, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadBusyQuarter builds on fresh-team with a spread of requests in
// different lifecycle states.
func (l *ScenarioLoader) loadBusyQuarter(ctx context.Context) error {
	if err := l.loadFreshTeam(ctx); err != nil {
		return err
	}
	types, err := l.Catalog.List(ctx, true)
	if err != nil {
		return err
	}
	if len(types) == 0 {
		return fmt.Errorf("no active leave types after seeding")
	}
	annual := types[0]

	users, err := l.balanceHolders(ctx)
	if err != nil {
		return err
	}
	decider, err := l.decider(ctx)
	if err != nil {
		return err
	}

	today := time.Now().UTC()
	for i, u := range users {
		// Stagger each user's request so none overlap their own.
		start := today.AddDate(0, 0, 14+4*i)
		filed, err := l.Service.Apply(ctx, leave.ApplyRequest{
			UserID:      u.ID,
			LeaveTypeID: annual.ID,
			StartDate:   start,
			EndDate:     start.AddDate(0, 0, 2),
			Reason:      "demo time off",
		})
		if err != nil {
			return err
		}
		if decider == nil {
			continue
		}
		switch i % 3 {
		case 0:
			if _, err := l.Service.Approve(ctx, filed.ID, decider.ID, "approved for the demo"); err != nil {
				return err
			}
		case 1:
			if _, err := l.Service.Reject(ctx, filed.ID, decider.ID, "demo blackout period"); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadYearEnd gives every user prior-year leftovers and runs the
// carry-over job, so capped transfers and forfeits show up.
func (l *ScenarioLoader) loadYearEnd(ctx context.Context) error {
	types, err := l.seedCatalog(ctx)
	if err != nil {
		return err
	}
	annual := types["annual"]

	users, err := l.balanceHolders(ctx)
	if err != nil {
		return err
	}
	lastYear := time.Now().UTC().Year() - 1
	for i, u := range users {
		key := leave.BalanceKey{UserID: u.ID, LeaveTypeID: annual.ID, Year: lastYear}
		if _, err := l.Ledger.GetOrCreate(ctx, key); err != nil {
			return err
		}
		// Leave each user a different remainder: some below the
		// carry-over cap, some above it.
		used := leave.Days(float64(10 + 2*(i%4)))
		leaveID := fmt.Sprintf("demo-%d-%d", lastYear, u.ID)
		if err := l.Ledger.Reserve(ctx, key, used, leaveID, u.ID); err != nil {
			return err
		}
	}

	if _, err := l.Job.RunCarryOver(ctx, time.Now().UTC()); err != nil {
		return err
	}
	return nil
}

// =============================================================================
// SEED HELPERS
// =============================================================================

// seedCatalog creates the demo leave types, keyed by short handle.
func (l *ScenarioLoader) seedCatalog(ctx context.Context) (map[string]*leave.LeaveType, error) {
	out := make(map[string]*leave.LeaveType)

	annual, err := l.Catalog.Create(ctx, leave.LeaveType{
		Name:             "Annual Leave",
		DefaultDays:      leave.Days(20),
		AccrualRate:      leave.Days(1.66),
		CarryOverAllowed: true,
		MaxCarryOverDays: leave.Days(5),
		RequiresApproval: true,
		Paid:             true,
	})
	if err != nil {
		return nil, err
	}
	out["annual"] = annual

	sick, err := l.Catalog.Create(ctx, leave.LeaveType{
		Name:        "Sick Leave",
		DefaultDays: leave.Days(10),
		Paid:        true,
	})
	if err != nil {
		return nil, err
	}
	out["sick"] = sick

	unpaid, err := l.Catalog.Create(ctx, leave.LeaveType{
		Name:             "Unpaid Leave",
		DefaultDays:      leave.Days(15),
		RequiresApproval: true,
	})
	if err != nil {
		return nil, err
	}
	out["unpaid"] = unpaid

	return out, nil
}

// balanceHolders lists everyone who holds balances: staff and managers.
func (l *ScenarioLoader) balanceHolders(ctx context.Context) ([]leave.User, error) {
	var users []leave.User
	for _, role := range []leave.Role{leave.RoleStaff, leave.RoleManager} {
		batch, err := l.Directory.UsersByRole(ctx, role)
		if err != nil {
			return nil, err
		}
		users = append(users, batch...)
	}
	return users, nil
}

// decider returns an admin who can approve or reject any request, or
// nil when the directory has none.
func (l *ScenarioLoader) decider(ctx context.Context) (*leave.User, error) {
	admins, err := l.Directory.UsersByRole(ctx, leave.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if len(admins) == 0 {
		return nil, nil
	}
	return &admins[0], nil
}
