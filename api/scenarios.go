/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Every scenario writes through the coordinator, so the
	warehouse counters end up exactly where real traffic would leave them.

AVAILABLE SCENARIOS:

	site-demo:            Directory, three projects, allocations in every delivery state
	allocation-roundtrip: Allocate, deliver, re-quantify one allocation of Oak Flooring
	project-completion:   A project closed with deliveries still open

HOW SCENARIOS WORK:
 1. Reset database (clear all data and the stats cache)
 2. Create users, projects and materials
 3. Record transactions with backdated CreatedAt
 4. Optionally move deliveries / edit quantities

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "site-demo"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/site-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "site-demo",
		Name:        "Site Demo",
		Description: "Three projects with allocations pending, in transit and delivered, a stock check and a return",
		Category:    "demo",
	},
	{
		ID:          "allocation-roundtrip",
		Name:        "Allocation Round Trip",
		Description: "Oak Flooring at 100: allocate 20, deliver, raise to 30. Warehouse ends at 70; deleting the allocation restores 100",
		Category:    "ledger",
	},
	{
		ID:          "project-completion",
		Name:        "Project Completion",
		Description: "A project with open deliveries is marked COMPLETED; every allocation becomes DELIVERED, warehouse untouched",
		Category:    "delivery",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "site-demo":
		load = h.loadSiteDemoScenario
	case "allocation-roundtrip":
		load = h.loadAllocationRoundTripScenario
	case "project-completion":
		load = h.loadProjectCompletionScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := load(ctx); err != nil {
		h.writeLedgerError(w, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Logger.Info("scenario loaded", "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SEED DATA
// =============================================================================

var demoUsers = []ledger.User{
	{ID: "u1", Name: "Admin User", Email: "admin@uniqid.com", Phone: "+15550001", Role: ledger.RoleAdmin},
	{ID: "u2", Name: "John Carpenter", Email: "staff@uniqid.com", Phone: "+15550002", Role: ledger.RoleStaff},
	{ID: "u3", Name: "Sarah Electric", Email: "sarah@uniqid.com", Phone: "+15550003", Role: ledger.RoleStaff},
}

var demoProjects = []ledger.Project{
	{
		ID: "p1", Name: "Skyline Penthouse Reno",
		ClientName: "Alice Morgan", ClientEmail: "alice@example.com", ClientPhone: "555-1234",
		Address: "101 Skyline Dr, Apt 4B", Status: ledger.ProjectActive,
	},
	{
		ID: "p2", Name: "Downtown Office Fitout",
		ClientName: "Tech Corp", ClientEmail: "contact@techcorp.com", ClientPhone: "555-5678",
		Address: "500 Market St, Floor 12", Status: ledger.ProjectPlanned,
	},
	{
		ID: "p3", Name: "Lakeside Villa",
		ClientName: "Bob Smith", ClientEmail: "bob@example.com", ClientPhone: "555-9999",
		Address: "88 Lakeview Rd", Status: ledger.ProjectCompleted,
	},
}

var demoMaterials = []ledger.Material{
	{ID: "m1", Name: "Oak Flooring", Category: "Wood", Unit: "sqft", CurrentStock: ledger.Qty(1500), MinStockLevel: ledger.Qty(500), Notes: "Premium grade"},
	{ID: "m2", Name: "White Paint (Matte)", Category: "Paint", Unit: "gal", CurrentStock: ledger.Qty(5), MinStockLevel: ledger.Qty(20), Notes: "Low VOC"},
	{ID: "m3", Name: "Ceramic Tiles (Gray)", Category: "Tiles", Unit: "box", CurrentStock: ledger.Qty(40), MinStockLevel: ledger.Qty(50), Notes: "Kitchen backsplash"},
}

func (h *Handler) seedDirectory(ctx context.Context, projects []ledger.Project, materials []ledger.Material) error {
	for _, u := range demoUsers {
		if err := h.Store.UpsertUser(ctx, u); err != nil {
			return err
		}
	}
	for _, p := range projects {
		if _, err := h.Coordinator.SaveProject(ctx, p); err != nil {
			return err
		}
	}
	for _, m := range materials {
		if _, err := h.Coordinator.SaveMaterial(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSiteDemoScenario(ctx context.Context) error {
	if err := h.seedDirectory(ctx, demoProjects, demoMaterials); err != nil {
		return err
	}

	now := h.Coordinator.Clock()
	daysAgo := func(d int) time.Time { return now.Add(-time.Duration(d) * 24 * time.Hour) }

	// Every new allocation debits the warehouse once.
	movements := []ledger.Transaction{
		{ID: "t1", MaterialID: "m1", ProjectID: "p1", Type: ledger.TxOut, Quantity: ledger.Qty(300), PerformedBy: "u2", Memo: "Living room", CreatedAt: daysAgo(6), DeliveryStatus: ledger.DeliveryDelivered},
		{ID: "t2", MaterialID: "m3", ProjectID: "p1", Type: ledger.TxOut, Quantity: ledger.Qty(10), PerformedBy: "u2", Memo: "Kitchen backsplash", CreatedAt: daysAgo(3)},
		{ID: "t3", MaterialID: "m2", ProjectID: "p2", Type: ledger.TxOut, Quantity: ledger.Qty(2), PerformedBy: "u3", CreatedAt: daysAgo(2), DeliveryStatus: ledger.DeliveryInTransit},
		{ID: "t4", MaterialID: "m1", ProjectID: "p1", Type: ledger.TxCheck, Quantity: ledger.Qty(280), PerformedBy: "u2", Memo: "Weekly count", CreatedAt: daysAgo(1)},
		{ID: "t5", MaterialID: "m1", ProjectID: "p1", Type: ledger.TxIn, Quantity: ledger.Qty(20), PerformedBy: "u2", Memo: "Offcuts returned", CreatedAt: daysAgo(1).Add(time.Hour)},
		{ID: "t6", MaterialID: "m1", Type: ledger.TxIn, Quantity: ledger.Qty(200), PerformedBy: "u1", Memo: "Supplier delivery", CreatedAt: daysAgo(5)},
		{ID: "t7", MaterialID: "m3", ProjectID: "p3", Type: ledger.TxOut, Quantity: ledger.Qty(12), PerformedBy: "u3", CreatedAt: daysAgo(30), DeliveryStatus: ledger.DeliveryDelivered},
	}
	for _, tx := range movements {
		if _, err := h.Coordinator.RecordTransaction(ctx, tx, ledger.ApplyToWarehouse); err != nil {
			return fmt.Errorf("record %s: %w", tx.ID, err)
		}
	}
	return nil
}

func (h *Handler) loadAllocationRoundTripScenario(ctx context.Context) error {
	oak := demoMaterials[0]
	oak.CurrentStock = ledger.Qty(100)
	if err := h.seedDirectory(ctx, demoProjects[:1], []ledger.Material{oak}); err != nil {
		return err
	}

	// Warehouse 100 -> 80, site current 0, allocated 20.
	tx, err := h.Coordinator.RecordTransaction(ctx, ledger.Transaction{
		ID: "alloc-1", MaterialID: oak.ID, ProjectID: "p1", Type: ledger.TxOut,
		Quantity: ledger.Qty(20), PerformedBy: "u2", Memo: "Master bedroom",
	}, ledger.ApplyToWarehouse)
	if err != nil {
		return err
	}

	// Site current 20, warehouse still 80.
	if _, err := h.Coordinator.SetDeliveryStatus(ctx, tx.ID, ledger.DeliveryDelivered); err != nil {
		return err
	}

	// Delta +10 only: warehouse 70, allocated 30, current 30.
	_, err = h.Coordinator.EditTransactionQuantity(ctx, tx.ID, ledger.Qty(30))
	return err
}

func (h *Handler) loadProjectCompletionScenario(ctx context.Context) error {
	open := demoProjects[0]
	if err := h.seedDirectory(ctx, []ledger.Project{open}, demoMaterials); err != nil {
		return err
	}

	for i, tx := range []ledger.Transaction{
		{MaterialID: "m1", Quantity: ledger.Qty(100), DeliveryStatus: ledger.DeliveryPending},
		{MaterialID: "m2", Quantity: ledger.Qty(3), DeliveryStatus: ledger.DeliveryInTransit},
		{MaterialID: "m3", Quantity: ledger.Qty(8), DeliveryStatus: ledger.DeliveryDelivered},
	} {
		tx.ID = ledger.TransactionID(fmt.Sprintf("close-%d", i+1))
		tx.ProjectID = open.ID
		tx.Type = ledger.TxOut
		tx.PerformedBy = "u3"
		if _, err := h.Coordinator.RecordTransaction(ctx, tx, ledger.ApplyToWarehouse); err != nil {
			return err
		}
	}

	open.Status = ledger.ProjectCompleted
	_, err := h.Coordinator.SaveProject(ctx, open)
	return err
}
