/*
handlers.go - HTTP API handlers for the material stock ledger

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response, JSON
  serialization and validation, and delegates to the coordinator (writes)
  and queries (reads).

ENDPOINTS:
  Materials:
    GET    /api/materials                  List materials
    POST   /api/materials                  Create material
    GET    /api/materials/low-stock        Materials at or below reorder level
    GET    /api/materials/{id}             Get material
    PUT    /api/materials/{id}             Replace material (admin correction)
    DELETE /api/materials/{id}             Delete material (ledger rows stay)

  Projects:
    GET    /api/projects                   List projects
    POST   /api/projects                   Create project
    GET    /api/projects/{id}              Get project
    PUT    /api/projects/{id}              Replace project; COMPLETED closes deliveries
    DELETE /api/projects/{id}              Delete project
    GET    /api/projects/{id}/stats        Replayed allocated/current per material
    GET    /api/projects/{id}/history      Newest-first ledger, CHECKs excluded
    GET    /api/projects/{id}/allocations  OUT transactions
    POST   /api/projects/{id}/allocations  Allocate (OUT, warehouse debited)
    GET    /api/projects/{id}/stock-checks CHECK transactions
    POST   /api/projects/{id}/stock-checks Physical count (CHECK)
    GET    /api/projects/{id}/returns      IN transactions
    POST   /api/projects/{id}/returns      Return to warehouse (IN, warehouse credited)
    POST   /api/projects/{id}/complete     Mark open deliveries DELIVERED

  Transactions:
    GET    /api/transactions               List (?project_id=, ?type=)
    POST   /api/transactions               Record (warehouse_effect apply|skip)
    GET    /api/transactions/{id}          Get
    PATCH  /api/transactions/{id}          Edit quantity/memo/status (delta only)
    DELETE /api/transactions/{id}          Delete (?warehouse_effect=apply|skip)
    PUT    /api/transactions/{id}/delivery         Set delivery status
    POST   /api/transactions/{id}/delivery/advance One step forward

  Deliveries:
    GET    /api/deliveries                 Board (?view=active|history&group_by=date|project)
    GET    /api/deliveries/pending-count   Allocations not yet delivered

  Users:
    GET    /api/users                      List users
    POST   /api/users                      Create user

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (invalid transition, duplicate id, concurrent modification)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/site-ledger/ledger"
	"github.com/warp/site-ledger/logging"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the API needs from persistence: the ledger store plus a
// reset for demo scenarios.
type Store interface {
	ledger.TxStore
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       Store
	Coordinator *ledger.Coordinator
	Queries     *ledger.Queries
	Logger      *logging.Logger

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the handler. The coordinator and queries must share store.
func NewHandler(store Store, coordinator *ledger.Coordinator, queries *ledger.Queries, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{
		Store:       store,
		Coordinator: coordinator,
		Queries:     queries,
		Logger:      logger,
		validate:    validator.New(),
	}
}

// =============================================================================
// MATERIAL HANDLERS
// =============================================================================

// ListMaterials returns all materials, by name.
func (h *Handler) ListMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := h.Store.ListMaterials(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to list materials", err)
		return
	}
	sort.Slice(materials, func(i, j int) bool { return materials[i].Name < materials[j].Name })

	dtos := make([]MaterialDTO, len(materials))
	for i, m := range materials {
		dtos[i] = toMaterialDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListLowStock returns materials at or below their reorder level.
func (h *Handler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	materials, err := h.Queries.LowStock(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to list low-stock materials", err)
		return
	}
	dtos := make([]MaterialDTO, len(materials))
	for i, m := range materials {
		dtos[i] = toMaterialDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMaterial returns a single material.
func (h *Handler) GetMaterial(w http.ResponseWriter, r *http.Request) {
	m, err := h.Store.GetMaterial(r.Context(), ledger.MaterialID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeLedgerError(w, "Failed to get material", err)
		return
	}
	writeJSON(w, http.StatusOK, toMaterialDTO(m))
}

// CreateMaterial adds a material to the warehouse registry.
func (h *Handler) CreateMaterial(w http.ResponseWriter, r *http.Request) {
	var req SaveMaterialRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.saveMaterial(w, r, req, http.StatusCreated)
}

// UpdateMaterial replaces a material, including its stock counter.
func (h *Handler) UpdateMaterial(w http.ResponseWriter, r *http.Request) {
	var req SaveMaterialRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := ledger.MaterialID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetMaterial(r.Context(), id); err != nil {
		h.writeLedgerError(w, "Failed to get material", err)
		return
	}
	req.ID = string(id)
	h.saveMaterial(w, r, req, http.StatusOK)
}

func (h *Handler) saveMaterial(w http.ResponseWriter, r *http.Request, req SaveMaterialRequest, status int) {
	saved, err := h.Coordinator.SaveMaterial(r.Context(), ledger.Material{
		ID:            ledger.MaterialID(req.ID),
		Name:          req.Name,
		Category:      req.Category,
		Brand:         req.Brand,
		Location:      req.Location,
		Unit:          req.Unit,
		CurrentStock:  req.CurrentStock,
		MinStockLevel: req.MinStockLevel,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeLedgerError(w, "Failed to save material", err)
		return
	}
	writeJSON(w, status, toMaterialDTO(saved))
}

// DeleteMaterial removes a material. Its transactions remain and display
// as Unknown.
func (h *Handler) DeleteMaterial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Coordinator.DeleteMaterial(r.Context(), ledger.MaterialID(id)); err != nil {
		h.writeLedgerError(w, "Failed to delete material", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// =============================================================================
// PROJECT HANDLERS
// =============================================================================

// ListProjects returns all projects, by name.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Store.ListProjects(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to list projects", err)
		return
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })

	dtos := make([]ProjectDTO, len(projects))
	for i, p := range projects {
		dtos[i] = toProjectDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProject returns a single project.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetProject(r.Context(), ledger.ProjectID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeLedgerError(w, "Failed to get project", err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectDTO(p))
}

// CreateProject creates a project.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req SaveProjectRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	h.saveProject(w, r, req, http.StatusCreated)
}

// UpdateProject replaces a project. Moving it to COMPLETED marks every open
// allocation DELIVERED without touching the warehouse.
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var req SaveProjectRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := ledger.ProjectID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetProject(r.Context(), id); err != nil {
		h.writeLedgerError(w, "Failed to get project", err)
		return
	}
	req.ID = string(id)
	h.saveProject(w, r, req, http.StatusOK)
}

func (h *Handler) saveProject(w http.ResponseWriter, r *http.Request, req SaveProjectRequest, status int) {
	p := ledger.Project{
		ID:          ledger.ProjectID(req.ID),
		Name:        req.Name,
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		ClientPhone: req.ClientPhone,
		Address:     req.Address,
		Status:      ledger.ProjectStatus(req.Status),
	}
	completed, err := h.Coordinator.SaveProject(r.Context(), p)
	if err != nil {
		h.writeLedgerError(w, "Failed to save project", err)
		return
	}
	writeJSON(w, status, SaveProjectResponse{Project: toProjectDTO(p), DeliveriesCompleted: completed})
}

// DeleteProject removes a project. Its transactions stay in the ledger but
// drop off the delivery board.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Store.DeleteProject(r.Context(), ledger.ProjectID(id)); err != nil {
		h.writeLedgerError(w, "Failed to delete project", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// GetProjectStats returns the replayed site stock of a project.
func (h *Handler) GetProjectStats(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	rows, err := h.Queries.ProjectStats(r.Context(), ledger.ProjectID(projectID))
	if err != nil {
		h.writeLedgerError(w, "Failed to compute project stats", err)
		return
	}

	resp := ProjectStatsResponse{
		ProjectID:      projectID,
		Materials:      make([]MaterialStockDTO, len(rows)),
		TotalAllocated: decimal.Zero,
	}
	for i, row := range rows {
		resp.Materials[i] = MaterialStockDTO{
			MaterialID: string(row.MaterialID),
			Name:       row.Name,
			Unit:       row.Unit,
			Allocated:  row.Allocated,
			Current:    row.Current,
		}
		resp.TotalAllocated = resp.TotalAllocated.Add(row.Allocated)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProjectHistory returns the project's ledger, newest first.
func (h *Handler) GetProjectHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Queries.ProjectHistory(r.Context(), ledger.ProjectID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeLedgerError(w, "Failed to load project history", err)
		return
	}
	dtos := make([]HistoryEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = HistoryEntryDTO{
			TransactionDTO: toTransactionDTO(e.Transaction),
			MaterialName:   e.MaterialName,
			Unit:           e.Unit,
			PerformerName:  e.PerformerName,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListAllocations, ListStockChecks and ListReturns back the project tabs.
func (h *Handler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	h.listProjectTransactions(w, r, ledger.TxOut)
}

func (h *Handler) ListStockChecks(w http.ResponseWriter, r *http.Request) {
	h.listProjectTransactions(w, r, ledger.TxCheck)
}

func (h *Handler) ListReturns(w http.ResponseWriter, r *http.Request) {
	h.listProjectTransactions(w, r, ledger.TxIn)
}

func (h *Handler) listProjectTransactions(w http.ResponseWriter, r *http.Request, t ledger.TxType) {
	projectID := ledger.ProjectID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetProject(r.Context(), projectID); err != nil {
		h.writeLedgerError(w, "Failed to get project", err)
		return
	}
	txs, err := h.Queries.ProjectTransactionsOfType(r.Context(), projectID, t)
	if err != nil {
		h.writeLedgerError(w, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// CreateAllocation sends material to the site. New allocation: the
// warehouse is debited once, here.
func (h *Handler) CreateAllocation(w http.ResponseWriter, r *http.Request) {
	h.recordProjectMovement(w, r, ledger.TxOut)
}

// CreateStockCheck records a physical count. CHECK never moves the
// warehouse, so apply mode is a no-op for the counter.
func (h *Handler) CreateStockCheck(w http.ResponseWriter, r *http.Request) {
	h.recordProjectMovement(w, r, ledger.TxCheck)
}

// CreateReturn sends material back to the warehouse, which is credited.
func (h *Handler) CreateReturn(w http.ResponseWriter, r *http.Request) {
	h.recordProjectMovement(w, r, ledger.TxIn)
}

func (h *Handler) recordProjectMovement(w http.ResponseWriter, r *http.Request, t ledger.TxType) {
	var req ProjectMovementRequest
	if !h.decode(w, r, &req) {
		return
	}
	projectID := ledger.ProjectID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetProject(r.Context(), projectID); err != nil {
		h.writeLedgerError(w, "Failed to get project", err)
		return
	}

	saved, err := h.Coordinator.RecordTransaction(r.Context(), ledger.Transaction{
		MaterialID:  ledger.MaterialID(req.MaterialID),
		ProjectID:   projectID,
		Type:        t,
		Quantity:    req.Quantity,
		PerformedBy: ledger.UserID(req.PerformedBy),
		Memo:        req.Memo,
	}, ledger.ApplyToWarehouse)
	if err != nil {
		h.writeLedgerError(w, "Failed to record transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(saved))
}

// CompleteProject closes every open delivery of the project.
func (h *Handler) CompleteProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	n, err := h.Coordinator.CompleteProjectDeliveries(r.Context(), ledger.ProjectID(projectID))
	if err != nil {
		h.writeLedgerError(w, "Failed to complete deliveries", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project_id": projectID, "deliveries_completed": n})
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions returns transactions newest first, optionally filtered.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := r.URL.Query().Get("project_id")
	txType := ledger.TxType(r.URL.Query().Get("type"))
	if txType != "" && !txType.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid type (use IN, OUT, ADJUST or CHECK)", nil)
		return
	}

	var (
		txs []ledger.Transaction
		err error
	)
	if projectID != "" {
		txs, err = h.Store.ListProjectTransactions(ctx, ledger.ProjectID(projectID))
	} else {
		txs, err = h.Store.ListTransactions(ctx)
	}
	if err != nil {
		h.writeLedgerError(w, "Failed to list transactions", err)
		return
	}

	out := make([]ledger.Transaction, 0, len(txs))
	for _, tx := range txs {
		if txType == "" || tx.Type == txType {
			out = append(out, tx)
		}
	}
	ledger.SortChronological(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(out))
}

// GetTransaction returns a single transaction.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Store.GetTransaction(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeLedgerError(w, "Failed to get transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// CreateTransaction records a transaction. warehouse_effect defaults to
// apply; skip persists the record only.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	effect, err := ledger.ParseWarehouseEffect(req.WarehouseEffect)
	if err != nil {
		h.writeLedgerError(w, "Invalid warehouse_effect", err)
		return
	}

	saved, err := h.Coordinator.RecordTransaction(r.Context(), ledger.Transaction{
		ID:             ledger.TransactionID(req.ID),
		MaterialID:     ledger.MaterialID(req.MaterialID),
		ProjectID:      ledger.ProjectID(req.ProjectID),
		Type:           ledger.TxType(req.Type),
		Quantity:       req.Quantity,
		PerformedBy:    ledger.UserID(req.PerformedBy),
		Memo:           req.Memo,
		DeliveryStatus: ledger.DeliveryStatus(req.DeliveryStatus),
	}, effect)
	if err != nil {
		h.writeLedgerError(w, "Failed to record transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(saved))
}

// PatchTransaction edits quantity, memo or delivery status. A quantity
// change moves the warehouse by the delta only.
func (h *Handler) PatchTransaction(w http.ResponseWriter, r *http.Request) {
	var req PatchTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	patch := ledger.TransactionPatch{Quantity: req.Quantity, Memo: req.Memo}
	if req.DeliveryStatus != nil {
		s := ledger.DeliveryStatus(*req.DeliveryStatus)
		patch.DeliveryStatus = &s
	}

	updated, err := h.Coordinator.EditTransaction(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")), patch)
	if err != nil {
		h.writeLedgerError(w, "Failed to edit transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(updated))
}

// DeleteTransaction removes a transaction. Default apply reverses its
// warehouse movement.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	effect, err := ledger.ParseWarehouseEffect(r.URL.Query().Get("warehouse_effect"))
	if err != nil {
		h.writeLedgerError(w, "Invalid warehouse_effect", err)
		return
	}
	removed, err := h.Coordinator.DeleteTransaction(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")), effect)
	if err != nil {
		h.writeLedgerError(w, "Failed to delete transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "deleted",
		"transaction":      toTransactionDTO(removed),
		"warehouse_effect": effect.String(),
	})
}

// SetDelivery moves an allocation to any status, backward included.
func (h *Handler) SetDelivery(w http.ResponseWriter, r *http.Request) {
	var req SetDeliveryRequest
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.Coordinator.SetDeliveryStatus(r.Context(),
		ledger.TransactionID(chi.URLParam(r, "id")), ledger.DeliveryStatus(req.Status))
	if err != nil {
		h.writeLedgerError(w, "Failed to set delivery status", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(updated))
}

// AdvanceDelivery moves an allocation one step forward.
func (h *Handler) AdvanceDelivery(w http.ResponseWriter, r *http.Request) {
	updated, err := h.Coordinator.AdvanceDelivery(r.Context(), ledger.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeLedgerError(w, "Failed to advance delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(updated))
}

// =============================================================================
// DELIVERY HANDLERS
// =============================================================================

// DeliveryBoard returns the grouped delivery board.
func (h *Handler) DeliveryBoard(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Queries.DeliveryBoard(r.Context(), ledger.DeliveryFilter{
		View:    ledger.DeliveryView(r.URL.Query().Get("view")),
		GroupBy: ledger.DeliveryGrouping(r.URL.Query().Get("group_by")),
	})
	if err != nil {
		h.writeLedgerError(w, "Failed to load deliveries", err)
		return
	}

	dtos := make([]DeliveryGroupDTO, len(groups))
	for i, g := range groups {
		items := make([]DeliveryItemDTO, len(g.Items))
		for j, it := range g.Items {
			items[j] = DeliveryItemDTO{
				TransactionDTO: toTransactionDTO(it.Transaction),
				Status:         string(it.Status),
				MaterialName:   it.MaterialName,
				Unit:           it.Unit,
				ProjectName:    it.ProjectName,
				Address:        it.Address,
			}
		}
		dtos[i] = DeliveryGroupDTO{Key: g.Key, Label: g.Label, Items: items}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PendingDeliveryCount returns the number of allocations not yet delivered.
func (h *Handler) PendingDeliveryCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.Queries.PendingDeliveryCount(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to count deliveries", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pending": n})
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all users, by name.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		h.writeLedgerError(w, "Failed to list users", err)
		return
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateUser adds a user to the directory.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	u := ledger.User{
		ID:    ledger.UserID(req.ID),
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Role:  ledger.Role(req.Role),
	}
	if err := h.Store.UpsertUser(r.Context(), u); err != nil {
		h.writeLedgerError(w, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	if h.Coordinator.Cache != nil {
		h.Coordinator.Cache.Reset()
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// Health reports whether the API is up.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// writeLedgerError maps ledger errors to HTTP status codes.
func (h *Handler) writeLedgerError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, ledger.ErrDuplicateID),
		errors.Is(err, ledger.ErrProjectCompleted),
		errors.Is(err, ledger.ErrConcurrentModification),
		errors.Is(err, ledger.ErrLockNotObtained):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error(message, "error", err)
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
