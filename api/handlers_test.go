package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daking/leave-engine/api"
	"github.com/daking/leave-engine/directory"
	"github.com/daking/leave-engine/leave"
	"github.com/daking/leave-engine/leave/store"
	"github.com/daking/leave-engine/notify"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	staffID   int64 = 1
	managerID int64 = 2
	adminID   int64 = 3
	deptID    int64 = 10
)

type apiFixture struct {
	router  http.Handler
	handler *api.Handler
	catalog *leave.Catalog
	dir     *directory.Memory
	store   *store.TxMemory
	annual  *leave.LeaveType
}

func newTestAPI(t *testing.T) *apiFixture {
	t.Helper()
	mem := store.NewTxMemory()
	log := zap.NewNop()

	dir := directory.NewMemory()
	dir.AddUser(leave.User{ID: staffID, Email: "staff@acme.io", Role: leave.RoleStaff, DepartmentID: deptID})
	dir.AddUser(leave.User{ID: managerID, Email: "mgr@acme.io", Role: leave.RoleManager, DepartmentID: deptID})
	dir.AddUser(leave.User{ID: adminID, Email: "admin@acme.io", Role: leave.RoleAdmin})
	dir.SetManagedDepartments(managerID, []int64{deptID})

	ledger := leave.NewLedger(mem, dir, log)
	catalog := leave.NewCatalog(mem, log)
	svc := leave.NewService(leave.ServiceDeps{
		Store:     mem,
		Ledger:    ledger,
		Catalog:   catalog,
		Resolver:  leave.NewResolver(dir),
		Directory: dir,
		Notify:    notify.NewMemory(),
		Log:       log,
	})
	job := leave.NewAccrualJob(ledger, catalog, dir, nil, log)

	annual, err := catalog.Create(context.Background(), leave.LeaveType{
		Name:             "Annual Leave",
		DefaultDays:      leave.Days(20),
		RequiresApproval: true,
		Paid:             true,
	})
	require.NoError(t, err)

	h := api.NewHandler(svc, catalog, job, dir, log)
	h.Scenarios = &api.ScenarioLoader{
		Store:     mem,
		Service:   svc,
		Ledger:    ledger,
		Catalog:   catalog,
		Job:       job,
		Directory: dir,
		Log:       log,
	}
	return &apiFixture{
		router:  api.NewRouter(h, []string{"*"}),
		handler: h,
		catalog: catalog,
		dir:     dir,
		store:   mem,
		annual:  annual,
	}
}

// do performs a request as the given actor. actor 0 omits the header.
func (f *apiFixture) do(t *testing.T, method, path string, actor int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != 0 {
		req.Header.Set("X-Actor-Id", fmt.Sprintf("%d", actor))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func dateOffset(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}

func applyBody(f *apiFixture, startOffset, endOffset int) map[string]any {
	return map[string]any{
		"leave_type_id": f.annual.ID,
		"start_date":    dateOffset(startOffset),
		"end_date":      dateOffset(endOffset),
		"reason":        "family trip",
	}
}

// =============================================================================
// PLUMBING
// =============================================================================

func TestAPI_Health(t *testing.T) {
	f := newTestAPI(t)

	rec := f.do(t, http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_ActorHeaderRequired(t *testing.T) {
	f := newTestAPI(t)

	rec := f.do(t, http.MethodGet, "/api/leaves", 0, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/leaves", nil)
	req.Header.Set("X-Actor-Id", "not-a-number")
	got := httptest.NewRecorder()
	f.router.ServeHTTP(got, req)
	assert.Equal(t, http.StatusBadRequest, got.Code)
}

// =============================================================================
// LEAVE LIFECYCLE OVER HTTP
// =============================================================================

func TestAPI_ApplyApproveFlow(t *testing.T) {
	// GIVEN: A staff user and their department's manager
	// WHEN: The user applies and the manager approves over HTTP
	// THEN: The request moves PENDING -> APPROVED and the balance reflects it

	f := newTestAPI(t)

	rec := f.do(t, http.MethodPost, "/api/leaves", staffID, applyBody(f, 7, 9))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[api.LeaveDTO](t, rec)
	assert.Equal(t, "PENDING", created.Status)
	assert.Equal(t, "3", created.TotalDays)

	rec = f.do(t, http.MethodPost, "/api/leaves/"+created.ID+"/approve", managerID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[api.LeaveDTO](t, rec)
	assert.Equal(t, "APPROVED", approved.Status)
	assert.Equal(t, managerID, approved.ApproverID)

	rec = f.do(t, http.MethodGet, "/api/balances", staffID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balances := decode[[]api.BalanceDTO](t, rec)
	require.Len(t, balances, 1)
	assert.Equal(t, "3", balances[0].UsedDays)
	assert.Equal(t, "17", balances[0].RemainingDays)
}

func TestAPI_RejectReleasesBalance(t *testing.T) {
	f := newTestAPI(t)

	rec := f.do(t, http.MethodPost, "/api/leaves", staffID, applyBody(f, 7, 9))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[api.LeaveDTO](t, rec)

	rec = f.do(t, http.MethodPost, "/api/leaves/"+created.ID+"/reject", managerID,
		map[string]any{"comments": "blackout period"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rejected := decode[api.LeaveDTO](t, rec)
	assert.Equal(t, "REJECTED", rejected.Status)

	rec = f.do(t, http.MethodGet, "/api/balances", staffID, nil)
	balances := decode[[]api.BalanceDTO](t, rec)
	require.Len(t, balances, 1)
	assert.Equal(t, "0", balances[0].UsedDays)
}

// =============================================================================
// ERROR STATUS MAPPING
// =============================================================================

func TestAPI_StatusMapping(t *testing.T) {
	f := newTestAPI(t)

	// 400: rejection without a comment.
	rec := f.do(t, http.MethodPost, "/api/leaves", staffID, applyBody(f, 7, 9))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[api.LeaveDTO](t, rec)

	rec = f.do(t, http.MethodPost, "/api/leaves/"+created.ID+"/reject", managerID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 403: a staff user deciding.
	rec = f.do(t, http.MethodPost, "/api/leaves/"+created.ID+"/approve", staffID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// 403: a staff user listing the decision queue.
	rec = f.do(t, http.MethodGet, "/api/leaves/pending", staffID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// 404: unknown leave.
	rec = f.do(t, http.MethodGet, "/api/leaves/no-such-id", staffID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// 409: application exceeding the remaining balance.
	rec = f.do(t, http.MethodPost, "/api/leaves", staffID, applyBody(f, 20, 45))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// 503: directory outage.
	f.dir.Fail = true
	rec = f.do(t, http.MethodPost, "/api/leaves/"+created.ID+"/approve", managerID, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	f.dir.Fail = false
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

func TestAPI_LeaveTypes_AdminOnlyWrites(t *testing.T) {
	f := newTestAPI(t)
	body := map[string]any{"name": "Sick Leave", "default_days": 10, "paid": true}

	rec := f.do(t, http.MethodPost, "/api/leave-types", staffID, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/leave-types", adminID, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[api.LeaveTypeDTO](t, rec)
	assert.Equal(t, "Sick Leave", created.Name)
	assert.True(t, created.Active)

	rec = f.do(t, http.MethodGet, "/api/leave-types", staffID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	types := decode[[]api.LeaveTypeDTO](t, rec)
	assert.Len(t, types, 2)
}

func TestAPI_DeleteLeaveType_InUseConflicts(t *testing.T) {
	// GIVEN: A type with a leave filed against it
	// WHEN: An admin tries to delete it
	// THEN: 409; the type must be retired instead

	f := newTestAPI(t)

	rec := f.do(t, http.MethodPost, "/api/leaves", staffID, applyBody(f, 7, 9))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/leave-types/%d", f.annual.ID), adminID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

func TestAPI_Adjustment(t *testing.T) {
	f := newTestAPI(t)
	body := map[string]any{
		"user_id":       staffID,
		"leave_type_id": f.annual.ID,
		"year":          time.Now().UTC().Year(),
		"delta_days":    2,
		"reason":        "anniversary bonus",
	}

	rec := f.do(t, http.MethodPost, "/api/admin/adjustments", managerID, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/admin/adjustments", adminID, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	adjusted := decode[api.BalanceDTO](t, rec)
	assert.Equal(t, "22", adjusted.TotalDays)
}

func TestAPI_BulkAdjustment_ReportsPartialFailures(t *testing.T) {
	f := newTestAPI(t)

	rec := f.do(t, http.MethodPost, "/api/admin/bulk-adjustments", adminID, map[string]any{
		"user_ids":      []int64{staffID, adminID},
		"leave_type_id": f.annual.ID,
		"year":          time.Now().UTC().Year(),
		"delta_days":    1,
		"reason":        "year-end bonus",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[api.BulkAdjustmentResponse](t, rec)
	assert.Equal(t, 1, resp.Applied)
	assert.NotEmpty(t, resp.Errors, "the admin target's failure is reported")
}

func TestAPI_InitializeBalancesAndRunAccrual(t *testing.T) {
	f := newTestAPI(t)

	rec := f.do(t, http.MethodPost, "/api/admin/initialize-balances", adminID, map[string]any{"year": 0})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	seeded := decode[api.JobRunResponse](t, rec)
	assert.Equal(t, 2, seeded.Applied, "staff and manager, one active type")

	rec = f.do(t, http.MethodPost, "/api/admin/run-accrual", staffID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/admin/run-accrual", adminID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode[api.JobRunResponse](t, rec)
	assert.Equal(t, 0, run.Applied, "annual type has no accrual rate")
}
