/*
handlers_test.go - HTTP tests for the ledger API

Tests for:
- Allocation / delivery / edit / delete round trip over HTTP
- Error mapping (400, 404, 409)
- Delivery board and pending count
- Demo scenarios
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/site-ledger/ledger"
	"github.com/warp/site-ledger/ledger/store"
	"github.com/warp/site-ledger/lock"
	"github.com/warp/site-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	t      *testing.T
	router http.Handler
	store  Store
}

func newTestServerWith(t *testing.T, s Store) *testServer {
	t.Helper()
	cache := ledger.NewStatsCache()
	coord := ledger.NewCoordinator(s, lock.NewLocal())
	coord.Cache = cache
	h := NewHandler(s, coord, ledger.NewQueries(s, cache), nil)
	return &testServer{t: t, router: NewRouter(h, RouterOptions{}), store: s}
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWith(t, store.NewTxMemory())
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) decode(rec *httptest.ResponseRecorder, wantStatus int, dst any) {
	ts.t.Helper()
	require.Equal(ts.t, wantStatus, rec.Code, rec.Body.String())
	if dst != nil {
		require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), dst))
	}
}

func (ts *testServer) seed() {
	ts.t.Helper()
	ts.decode(ts.do("POST", "/api/projects", map[string]any{
		"id": "p1", "name": "Skyline Penthouse Reno", "address": "101 Skyline Dr", "status": "ACTIVE",
	}), http.StatusCreated, nil)
	ts.decode(ts.do("POST", "/api/materials", map[string]any{
		"id": "m1", "name": "Oak Flooring", "unit": "sqft", "current_stock": "100", "min_stock_level": "10",
	}), http.StatusCreated, nil)
	ts.decode(ts.do("POST", "/api/users", map[string]any{
		"id": "u1", "name": "John Carpenter", "role": "STAFF",
	}), http.StatusCreated, nil)
}

func (ts *testServer) material(id string) MaterialDTO {
	ts.t.Helper()
	var m MaterialDTO
	ts.decode(ts.do("GET", "/api/materials/"+id, nil), http.StatusOK, &m)
	return m
}

func (ts *testServer) stats(projectID string) ProjectStatsResponse {
	ts.t.Helper()
	var s ProjectStatsResponse
	ts.decode(ts.do("GET", "/api/projects/"+projectID+"/stats", nil), http.StatusOK, &s)
	return s
}

func qty(t *testing.T, want int64, got interface{ String() string }) {
	t.Helper()
	assert.Equal(t, ledger.Qty(want).String(), got.String())
}

// =============================================================================
// ALLOCATION LIFECYCLE
// =============================================================================

func TestAPI_AllocationLifecycle(t *testing.T) {
	// GIVEN: Oak Flooring at 100 and an active project
	// WHEN: Allocate 20, deliver, raise to 30, delete
	// THEN: Warehouse 80, 80, 70, 100; site stock follows the delivery

	ts := newTestServer(t)
	ts.seed()

	var tx TransactionDTO
	ts.decode(ts.do("POST", "/api/projects/p1/allocations", map[string]any{
		"material_id": "m1", "quantity": 20, "performed_by": "u1", "memo": "Living room",
	}), http.StatusCreated, &tx)
	assert.Equal(t, "OUT", tx.Type)
	assert.Equal(t, "PENDING", tx.DeliveryStatus)
	qty(t, 80, ts.material("m1").CurrentStock)

	s := ts.stats("p1")
	require.Len(t, s.Materials, 1)
	qty(t, 20, s.Materials[0].Allocated)
	qty(t, 0, s.Materials[0].Current)

	ts.decode(ts.do("PUT", "/api/transactions/"+tx.ID+"/delivery", map[string]any{"status": "DELIVERED"}), http.StatusOK, nil)
	qty(t, 80, ts.material("m1").CurrentStock)
	qty(t, 20, ts.stats("p1").Materials[0].Current)

	var edited TransactionDTO
	ts.decode(ts.do("PATCH", "/api/transactions/"+tx.ID, map[string]any{"quantity": "30"}), http.StatusOK, &edited)
	assert.Equal(t, tx.CreatedAt, edited.CreatedAt)
	qty(t, 70, ts.material("m1").CurrentStock)
	qty(t, 30, ts.stats("p1").TotalAllocated)

	ts.decode(ts.do("DELETE", "/api/transactions/"+tx.ID, nil), http.StatusOK, nil)
	qty(t, 100, ts.material("m1").CurrentStock)
	assert.Empty(t, ts.stats("p1").Materials)
}

func TestAPI_AdvanceDelivery(t *testing.T) {
	ts := newTestServer(t)
	ts.seed()

	var tx TransactionDTO
	ts.decode(ts.do("POST", "/api/projects/p1/allocations", map[string]any{"material_id": "m1", "quantity": 5}), http.StatusCreated, &tx)

	var step TransactionDTO
	ts.decode(ts.do("POST", "/api/transactions/"+tx.ID+"/delivery/advance", nil), http.StatusOK, &step)
	assert.Equal(t, "IN_TRANSIT", step.DeliveryStatus)
	ts.decode(ts.do("POST", "/api/transactions/"+tx.ID+"/delivery/advance", nil), http.StatusOK, &step)
	assert.Equal(t, "DELIVERED", step.DeliveryStatus)

	rec := ts.do("POST", "/api/transactions/"+tx.ID+"/delivery/advance", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_StockCheckAndReturn(t *testing.T) {
	ts := newTestServer(t)
	ts.seed()

	ts.decode(ts.do("POST", "/api/projects/p1/allocations", map[string]any{"material_id": "m1", "quantity": 10}), http.StatusCreated, nil)
	ts.decode(ts.do("POST", "/api/projects/p1/stock-checks", map[string]any{"material_id": "m1", "quantity": 5}), http.StatusCreated, nil)
	ts.decode(ts.do("POST", "/api/projects/p1/returns", map[string]any{"material_id": "m1", "quantity": 8}), http.StatusCreated, nil)

	// 100 - 10 + 8; the count never touches the warehouse
	qty(t, 98, ts.material("m1").CurrentStock)
	qty(t, -3, ts.stats("p1").Materials[0].Current)

	var checks []TransactionDTO
	ts.decode(ts.do("GET", "/api/projects/p1/stock-checks", nil), http.StatusOK, &checks)
	require.Len(t, checks, 1)
	assert.Equal(t, "DELIVERED", checks[0].DeliveryStatus)

	var history []HistoryEntryDTO
	ts.decode(ts.do("GET", "/api/projects/p1/history", nil), http.StatusOK, &history)
	require.Len(t, history, 2)
	assert.Equal(t, "IN", history[0].Type)
	assert.Equal(t, "Oak Flooring", history[0].MaterialName)
}

func TestAPI_CreateTransaction_SkipWarehouse(t *testing.T) {
	ts := newTestServer(t)
	ts.seed()

	ts.decode(ts.do("POST", "/api/transactions", map[string]any{
		"id": "imp-1", "material_id": "m1", "project_id": "p1", "type": "OUT", "quantity": 12,
		"delivery_status": "DELIVERED", "warehouse_effect": "skip",
	}), http.StatusCreated, nil)
	qty(t, 100, ts.material("m1").CurrentStock)

	ts.decode(ts.do("DELETE", "/api/transactions/imp-1?warehouse_effect=skip", nil), http.StatusOK, nil)
	qty(t, 100, ts.material("m1").CurrentStock)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_Errors(t *testing.T) {
	ts := newTestServer(t)
	ts.seed()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown material", "GET", "/api/materials/nope", nil, http.StatusNotFound},
		{"unknown project stats", "GET", "/api/projects/nope/stats", nil, http.StatusNotFound},
		{"allocation to missing material", "POST", "/api/projects/p1/allocations", map[string]any{"material_id": "ghost", "quantity": 1}, http.StatusNotFound},
		{"negative quantity", "POST", "/api/projects/p1/allocations", map[string]any{"material_id": "m1", "quantity": -1}, http.StatusBadRequest},
		{"missing material id", "POST", "/api/projects/p1/allocations", map[string]any{"quantity": 1}, http.StatusBadRequest},
		{"bad type", "POST", "/api/transactions", map[string]any{"material_id": "m1", "type": "MOVE", "quantity": 1}, http.StatusBadRequest},
		{"bad effect", "DELETE", "/api/transactions/x?warehouse_effect=later", nil, http.StatusBadRequest},
		{"edit missing", "PATCH", "/api/transactions/nope", map[string]any{"quantity": 1}, http.StatusNotFound},
		{"bad board view", "GET", "/api/deliveries?view=archived", nil, http.StatusBadRequest},
		{"bad project status", "POST", "/api/projects", map[string]any{"name": "X", "status": "ARCHIVED"}, http.StatusBadRequest},
		{"bad email", "POST", "/api/users", map[string]any{"name": "X", "email": "nope", "role": "STAFF"}, http.StatusBadRequest},
		{"bad list type", "GET", "/api/transactions?type=MOVE", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}

	qty(t, 100, ts.material("m1").CurrentStock)
}

func TestAPI_DuplicateTransactionID_ReSavesInstead(t *testing.T) {
	// A re-posted id is a re-save: the warehouse moves by the difference.
	ts := newTestServer(t)
	ts.seed()

	body := map[string]any{"id": "t1", "material_id": "m1", "project_id": "p1", "type": "OUT", "quantity": 10}
	ts.decode(ts.do("POST", "/api/transactions", body), http.StatusCreated, nil)
	ts.decode(ts.do("POST", "/api/transactions", body), http.StatusCreated, nil)
	qty(t, 90, ts.material("m1").CurrentStock)
}

// =============================================================================
// PROJECTS AND DELIVERIES
// =============================================================================

func TestAPI_CompleteProject(t *testing.T) {
	// GIVEN: Two open allocations
	// WHEN: The project is saved as COMPLETED
	// THEN: Both are delivered, the board is empty, new allocations are refused

	ts := newTestServer(t)
	ts.seed()
	for _, q := range []int{3, 4} {
		ts.decode(ts.do("POST", "/api/projects/p1/allocations", map[string]any{"material_id": "m1", "quantity": q}), http.StatusCreated, nil)
	}

	var count map[string]int
	ts.decode(ts.do("GET", "/api/deliveries/pending-count", nil), http.StatusOK, &count)
	assert.Equal(t, 2, count["pending"])

	var board []DeliveryGroupDTO
	ts.decode(ts.do("GET", "/api/deliveries?group_by=project", nil), http.StatusOK, &board)
	require.Len(t, board, 1)
	assert.Len(t, board[0].Items, 2)
	assert.Equal(t, "Skyline Penthouse Reno", board[0].Label)

	var resp SaveProjectResponse
	ts.decode(ts.do("PUT", "/api/projects/p1", map[string]any{"name": "Skyline Penthouse Reno", "status": "COMPLETED"}), http.StatusOK, &resp)
	assert.Equal(t, 2, resp.DeliveriesCompleted)
	assert.Equal(t, "COMPLETED", resp.Project.Status)

	ts.decode(ts.do("GET", "/api/deliveries/pending-count", nil), http.StatusOK, &count)
	assert.Zero(t, count["pending"])
	ts.decode(ts.do("GET", "/api/deliveries", nil), http.StatusOK, &board)
	assert.Empty(t, board)

	qty(t, 93, ts.material("m1").CurrentStock)
	qty(t, 7, ts.stats("p1").Materials[0].Current)

	rec := ts.do("POST", "/api/projects/p1/allocations", map[string]any{"material_id": "m1", "quantity": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = ts.do("POST", "/api/transactions", map[string]any{"material_id": "m1", "project_id": "p1", "type": "OUT", "quantity": 1})
	assert.Equal(t, http.StatusConflict, rec.Code, "the generic create path is guarded too")
	qty(t, 93, ts.material("m1").CurrentStock)
}

func TestAPI_DeletedMaterialShowsUnknown(t *testing.T) {
	ts := newTestServer(t)
	ts.seed()
	ts.decode(ts.do("POST", "/api/projects/p1/allocations", map[string]any{"material_id": "m1", "quantity": 3}), http.StatusCreated, nil)
	ts.decode(ts.do("DELETE", "/api/materials/m1", nil), http.StatusOK, nil)

	s := ts.stats("p1")
	require.Len(t, s.Materials, 1)
	assert.Equal(t, ledger.UnknownMaterialName, s.Materials[0].Name)

	var board []DeliveryGroupDTO
	ts.decode(ts.do("GET", "/api/deliveries", nil), http.StatusOK, &board)
	require.Len(t, board, 1)
	assert.Equal(t, ledger.UnknownMaterialName, board[0].Items[0].MaterialName)
}

func TestAPI_LowStockList(t *testing.T) {
	ts := newTestServer(t)
	ts.seed()
	ts.decode(ts.do("POST", "/api/projects/p1/allocations", map[string]any{"material_id": "m1", "quantity": 95}), http.StatusCreated, nil)

	var low []MaterialDTO
	ts.decode(ts.do("GET", "/api/materials/low-stock", nil), http.StatusOK, &low)
	require.Len(t, low, 1)
	assert.True(t, low[0].LowStock)
}

func TestAPI_Health(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusOK, ts.do("GET", "/healthz", nil).Code)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenario_AllocationRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	ts.decode(ts.do("POST", "/api/scenarios/load", map[string]any{"scenario_id": "allocation-roundtrip"}), http.StatusOK, nil)

	qty(t, 70, ts.material("m1").CurrentStock)
	s := ts.stats("p1")
	require.Len(t, s.Materials, 1)
	qty(t, 30, s.Materials[0].Allocated)
	qty(t, 30, s.Materials[0].Current)

	var current ScenarioDTO
	ts.decode(ts.do("GET", "/api/scenarios/current", nil), http.StatusOK, &current)
	assert.Equal(t, "allocation-roundtrip", current.ID)
}

func TestScenario_SiteDemo_SQLite(t *testing.T) {
	// GIVEN: The site demo loaded into SQLite
	// THEN: Warehouse counters and site stock match the seeded movements

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ts := newTestServerWith(t, db)

	ts.decode(ts.do("POST", "/api/scenarios/load", map[string]any{"scenario_id": "site-demo"}), http.StatusOK, nil)

	qty(t, 1420, ts.material("m1").CurrentStock) // 1500 - 300 + 20 + 200
	qty(t, 3, ts.material("m2").CurrentStock)
	qty(t, 18, ts.material("m3").CurrentStock)

	s := ts.stats("p1")
	require.Len(t, s.Materials, 2)
	byID := map[string]MaterialStockDTO{}
	for _, m := range s.Materials {
		byID[m.MaterialID] = m
	}
	qty(t, 300, byID["m1"].Allocated)
	qty(t, 260, byID["m1"].Current) // counted 280, then 20 returned
	qty(t, 10, byID["m3"].Allocated)
	qty(t, 0, byID["m3"].Current)

	var count map[string]int
	ts.decode(ts.do("GET", "/api/deliveries/pending-count", nil), http.StatusOK, &count)
	assert.Equal(t, 2, count["pending"])
}

func TestScenario_ProjectCompletion(t *testing.T) {
	ts := newTestServer(t)
	ts.decode(ts.do("POST", "/api/scenarios/load", map[string]any{"scenario_id": "project-completion"}), http.StatusOK, nil)

	var count map[string]int
	ts.decode(ts.do("GET", "/api/deliveries/pending-count", nil), http.StatusOK, &count)
	assert.Zero(t, count["pending"])

	var p ProjectDTO
	ts.decode(ts.do("GET", "/api/projects/p1", nil), http.StatusOK, &p)
	assert.Equal(t, "COMPLETED", p.Status)
}

func TestScenario_Unknown(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do("POST", "/api/scenarios/load", map[string]any{"scenario_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenario_ResetClearsEverything(t *testing.T) {
	ts := newTestServer(t)
	ts.decode(ts.do("POST", "/api/scenarios/load", map[string]any{"scenario_id": "site-demo"}), http.StatusOK, nil)
	ts.decode(ts.do("POST", "/api/scenarios/reset", nil), http.StatusOK, nil)

	materials, err := ts.store.ListMaterials(context.Background())
	require.NoError(t, err)
	assert.Empty(t, materials)
	assert.Equal(t, http.StatusNotFound, ts.do("GET", "/api/projects/p1/stats", nil).Code)
}
