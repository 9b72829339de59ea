/*
coordinator.go - Stock Mutation Coordinator

PURPOSE:
  The only writer of Material.CurrentStock. Decides, per operation, whether
  and by how much the warehouse counter moves, and makes the ledger write
  and the counter move one all-or-nothing unit.

OPERATIONS:
  RecordTransaction        create or re-save a transaction (Apply or Skip)
  EditTransaction          quantity / memo / delivery status edit
  EditTransactionQuantity  quantity only; warehouse moves by the delta
  DeleteTransaction        remove; Apply reverses the original movement
  SetDeliveryStatus        any known status, never moves the warehouse
  AdvanceDelivery          one forward step on the delivery lifecycle
  SaveProject              upsert; COMPLETED forces open deliveries to DELIVERED
  SaveMaterial / DeleteMaterial  admin registry edits

CONSISTENCY:
  - Every operation runs inside Store.WithTx. A failed counter update
    rolls the ledger write back; nothing is left half-applied.
  - The counter only moves through MaterialRegistry.AdjustStock (CAS on
    Material.Version), never by writing back a previously read value.
  - Writers of one entity are serialized through Locker. Lock order is
    project -> transaction -> material, everywhere.
  - Edits compute their delta from the stored record, read inside the
    same unit of work, not from a caller-supplied "original quantity".

MISSING MATERIALS:
  A transaction may outlive its material. When the warehouse step of an
  edit, delete or re-save finds no material, the step is skipped and a
  warning with inconsistency=warehouse_adjustment_skipped is logged; the
  ledger write itself still commits. Creating a NEW transaction for a
  missing material is rejected with NotFoundError.

TIMEOUTS:
  Each operation gets context.WithTimeout(ctx, Timeout). Storage calls that
  hang surface as errors instead of blocking the caller.
*/
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/site-ledger/logging"
)

// DefaultTimeout bounds a single coordinator operation.
const DefaultTimeout = 10 * time.Second

var tracer = otel.Tracer("github.com/warp/site-ledger/ledger")

// Coordinator holds the dependencies of every stock-changing operation.
// Zero-valued optional fields are filled by NewCoordinator.
type Coordinator struct {
	Store     TxStore
	Locker    Locker
	Publisher Publisher
	Cache     *StatsCache // optional
	Logger    *logging.Logger
	Clock     func() time.Time
	NewID     func() TransactionID
	Timeout   time.Duration
}

func NewCoordinator(store TxStore, locker Locker) *Coordinator {
	return &Coordinator{
		Store:     store,
		Locker:    locker,
		Publisher: NopPublisher(),
		Logger:    logging.Nop(),
		Clock:     func() time.Time { return time.Now().UTC() },
		NewID:     func() TransactionID { return TransactionID(uuid.NewString()) },
		Timeout:   DefaultTimeout,
	}
}

// TransactionPatch carries the editable fields of a transaction. Nil means
// unchanged. CreatedAt, MaterialID, ProjectID and Type are not editable.
type TransactionPatch struct {
	Quantity       *decimal.Decimal
	Memo           *string
	DeliveryStatus *DeliveryStatus
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// RecordTransaction persists tx. For a new transaction (empty or unknown ID)
// the ID and CreatedAt are assigned if missing, an allocation starts as
// PENDING and a stock check is stored as DELIVERED. Re-saving an existing ID keeps its stored CreatedAt.
//
// With ApplyToWarehouse a new IN adds its quantity to the material and a new
// OUT removes it. Re-saving an existing transaction with ApplyToWarehouse
// moves the warehouse by the difference between the new and stored
// movement, so an allocation is never debited twice.
//
// An allocation that is not DELIVERED cannot be added to a COMPLETED
// project (ErrProjectCompleted).
func (c *Coordinator) RecordTransaction(ctx context.Context, tx Transaction, effect WarehouseEffect) (saved Transaction, err error) {
	if effect != ApplyToWarehouse && effect != SkipWarehouse {
		return Transaction{}, invalid("warehouse_effect", "must be apply or skip")
	}
	if err := validateTransaction(tx); err != nil {
		return Transaction{}, err
	}
	if tx.ID == "" {
		tx.ID = c.NewID()
	}

	ctx, end := c.begin(ctx, "RecordTransaction",
		attribute.String("transaction.id", string(tx.ID)),
		attribute.String("transaction.type", string(tx.Type)),
		attribute.String("warehouse.effect", effect.String()))
	defer end(&err)

	existing, found, unlockTx, err := c.lockTransaction(ctx, tx.ID, tx.ProjectID)
	if err != nil {
		return Transaction{}, err
	}
	defer unlockTx()

	materials := []MaterialID{tx.MaterialID}
	if found {
		materials = append(materials, existing.MaterialID)
	}
	unlockMat, err := c.lockMaterials(ctx, materials...)
	if err != nil {
		return Transaction{}, err
	}
	defer unlockMat()

	var (
		delta decimal.Decimal
		after *Material
	)
	err = c.Store.WithTx(ctx, func(s Store) error {
		existing, found, err := c.lookup(ctx, s, tx.ID)
		if err != nil {
			return err
		}

		if found {
			tx.CreatedAt = existing.CreatedAt
			if err := requireOpenProject(ctx, s, tx); err != nil {
				return err
			}
			if err := s.UpsertTransaction(ctx, tx); err != nil {
				return WrapStorage("upsert transaction", err)
			}
			if effect == SkipWarehouse {
				return nil
			}
			// Undo what the stored version did, then apply the new one.
			if existing.MaterialID == tx.MaterialID {
				delta = warehouseDelta(tx).Sub(warehouseDelta(existing))
				after, err = c.adjust(ctx, s, tx.MaterialID, delta, tx.ID)
				return err
			}
			if _, err := c.adjust(ctx, s, existing.MaterialID, warehouseDelta(existing).Neg(), tx.ID); err != nil {
				return err
			}
			delta = warehouseDelta(tx)
			after, err = c.adjust(ctx, s, tx.MaterialID, delta, tx.ID)
			return err
		}

		if _, err := s.GetMaterial(ctx, tx.MaterialID); err != nil {
			return WrapStorage("get material", err)
		}
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = c.Clock()
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		if tx.DeliveryStatus == DeliveryNone {
			switch {
			case tx.IsAllocation():
				tx.DeliveryStatus = DeliveryPending
			case tx.Type == TxCheck:
				// Counts are taken on site; replay ignores the status.
				tx.DeliveryStatus = DeliveryDelivered
			}
		}
		if err := requireOpenProject(ctx, s, tx); err != nil {
			return err
		}
		if err := s.InsertTransaction(ctx, tx); err != nil {
			return WrapStorage("insert transaction", err)
		}
		if effect == SkipWarehouse {
			return nil
		}
		delta = warehouseDelta(tx)
		after, err = c.adjust(ctx, s, tx.MaterialID, delta, tx.ID)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}

	c.invalidate(tx.ProjectID, tx.MaterialID)
	if found {
		c.invalidate(existing.ProjectID, existing.MaterialID)
	}
	c.publish(ctx, txEvent(EventTransactionRecorded, tx, delta, after, c.Clock()))
	c.Logger.Info("transaction recorded",
		"transaction_id", tx.ID, "type", tx.Type, "material_id", tx.MaterialID,
		"project_id", tx.ProjectID, "quantity", tx.Quantity.String(),
		"warehouse_effect", effect.String(), "warehouse_delta", delta.String())
	return tx, nil
}

// EditTransactionQuantity changes the quantity of a transaction. The record
// is re-saved without a warehouse effect and the warehouse moves by the
// delta only: raising an allocation from 10 to 15 removes 5 more units.
func (c *Coordinator) EditTransactionQuantity(ctx context.Context, id TransactionID, newQuantity decimal.Decimal) (Transaction, error) {
	return c.EditTransaction(ctx, id, TransactionPatch{Quantity: &newQuantity})
}

// EditTransaction applies patch to the stored transaction.
func (c *Coordinator) EditTransaction(ctx context.Context, id TransactionID, patch TransactionPatch) (Transaction, error) {
	if patch.Quantity != nil && patch.Quantity.IsNegative() {
		return Transaction{}, invalid("quantity", "must not be negative")
	}
	if patch.DeliveryStatus != nil && !ValidDeliveryStatus(*patch.DeliveryStatus) {
		return Transaction{}, invalid("delivery_status", fmt.Sprintf("unknown status %q", *patch.DeliveryStatus))
	}
	return c.mutate(ctx, "EditTransaction", id, func(cur Transaction) (Transaction, error) {
		next := cur
		if patch.Quantity != nil {
			next.Quantity = *patch.Quantity
		}
		if patch.Memo != nil {
			next.Memo = *patch.Memo
		}
		if patch.DeliveryStatus != nil {
			if !cur.IsAllocation() {
				return cur, invalid("delivery_status", "only allocations have a delivery status")
			}
			next.DeliveryStatus = *patch.DeliveryStatus
		}
		return next, nil
	})
}

// DeleteTransaction removes a transaction. With ApplyToWarehouse the
// original movement is reversed: a deleted OUT returns its quantity to the
// warehouse, a deleted IN takes it back out.
func (c *Coordinator) DeleteTransaction(ctx context.Context, id TransactionID, effect WarehouseEffect) (removed Transaction, err error) {
	if effect != ApplyToWarehouse && effect != SkipWarehouse {
		return Transaction{}, invalid("warehouse_effect", "must be apply or skip")
	}

	ctx, end := c.begin(ctx, "DeleteTransaction",
		attribute.String("transaction.id", string(id)),
		attribute.String("warehouse.effect", effect.String()))
	defer end(&err)

	cur, found, unlockTx, err := c.lockTransaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	defer unlockTx()
	if !found {
		return Transaction{}, NotFound("transaction", string(id))
	}
	unlockMat, err := c.lockMaterials(ctx, cur.MaterialID)
	if err != nil {
		return Transaction{}, err
	}
	defer unlockMat()

	var (
		delta decimal.Decimal
		after *Material
	)
	err = c.Store.WithTx(ctx, func(s Store) error {
		removed, err = s.DeleteTransaction(ctx, id)
		if err != nil {
			return WrapStorage("delete transaction", err)
		}
		if effect == SkipWarehouse {
			return nil
		}
		delta = warehouseDelta(removed).Neg()
		after, err = c.adjust(ctx, s, removed.MaterialID, delta, id)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}

	c.invalidate(removed.ProjectID, removed.MaterialID)
	c.publish(ctx, txEvent(EventTransactionDeleted, removed, delta, after, c.Clock()))
	c.Logger.Info("transaction deleted",
		"transaction_id", id, "material_id", removed.MaterialID,
		"warehouse_effect", effect.String(), "warehouse_delta", delta.String())
	return removed, nil
}

// =============================================================================
// DELIVERY
// =============================================================================

// SetDeliveryStatus moves an allocation to any known status, backward moves
// included. The warehouse never moves; only replay's site stock changes.
func (c *Coordinator) SetDeliveryStatus(ctx context.Context, id TransactionID, status DeliveryStatus) (Transaction, error) {
	return c.EditTransaction(ctx, id, TransactionPatch{DeliveryStatus: &status})
}

// AdvanceDelivery moves an allocation one step forward. A DELIVERED
// allocation returns ErrInvalidTransition.
func (c *Coordinator) AdvanceDelivery(ctx context.Context, id TransactionID) (Transaction, error) {
	return c.mutate(ctx, "AdvanceDelivery", id, func(cur Transaction) (Transaction, error) {
		if !cur.IsAllocation() {
			return cur, invalid("delivery_status", "only allocations have a delivery status")
		}
		next, err := NextDeliveryStatus(cur.DeliveryStatus)
		if err != nil {
			return cur, fmt.Errorf("%w: %s is terminal", err, cur.DeliveryStatus)
		}
		cur.DeliveryStatus = next
		return cur, nil
	})
}

// =============================================================================
// PROJECTS
// =============================================================================

// SaveProject upserts p. When p is COMPLETED, every open allocation of the
// project is marked DELIVERED in the same unit of work; the returned count
// is how many were changed.
func (c *Coordinator) SaveProject(ctx context.Context, p Project) (int, error) {
	if p.ID == "" {
		return 0, invalid("id", "required")
	}
	if p.Name == "" {
		return 0, invalid("name", "required")
	}
	if !p.Status.Valid() {
		return 0, invalid("status", fmt.Sprintf("unknown status %q", p.Status))
	}
	return c.completeProject(ctx, "SaveProject", p.ID, &p)
}

// CompleteProjectDeliveries marks every open allocation of the project as
// DELIVERED. The warehouse already gave these up at allocation time, so
// this runs with SkipWarehouse semantics.
func (c *Coordinator) CompleteProjectDeliveries(ctx context.Context, projectID ProjectID) (int, error) {
	return c.completeProject(ctx, "CompleteProjectDeliveries", projectID, nil)
}

func (c *Coordinator) completeProject(ctx context.Context, op string, projectID ProjectID, save *Project) (completed int, err error) {
	ctx, end := c.begin(ctx, op, attribute.String("project.id", string(projectID)))
	defer end(&err)

	unlockProject, err := c.Locker.Lock(ctx, projectKey(projectID))
	if err != nil {
		return 0, err
	}
	defer unlockProject()

	finishing := save == nil || save.Status == ProjectCompleted

	// Every writer of a project's transactions holds the project lock, so
	// the open set cannot grow past this point.
	if finishing {
		txs, err := c.Store.ListProjectTransactions(ctx, projectID)
		if err != nil {
			return 0, WrapStorage("list project transactions", err)
		}
		keys := make([]string, 0, len(txs))
		for _, tx := range txs {
			if tx.IsAllocation() && !tx.IsDelivered() {
				keys = append(keys, transactionKey(tx.ID))
			}
		}
		unlockOpen, err := c.lockKeys(ctx, keys...)
		if err != nil {
			return 0, err
		}
		defer unlockOpen()
	}

	var changed []Transaction
	err = c.Store.WithTx(ctx, func(s Store) error {
		if save != nil {
			if err := s.UpsertProject(ctx, *save); err != nil {
				return WrapStorage("upsert project", err)
			}
		} else if _, err := s.GetProject(ctx, projectID); err != nil {
			return WrapStorage("get project", err)
		}
		if !finishing {
			return nil
		}
		txs, err := s.ListProjectTransactions(ctx, projectID)
		if err != nil {
			return WrapStorage("list project transactions", err)
		}
		SortChronological(txs)
		for _, tx := range txs {
			if !tx.IsAllocation() || tx.IsDelivered() {
				continue
			}
			tx.DeliveryStatus = DeliveryDelivered
			if err := s.UpsertTransaction(ctx, tx); err != nil {
				return WrapStorage("upsert transaction", err)
			}
			changed = append(changed, tx)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	now := c.Clock()
	events := make([]Event, 0, len(changed)+1)
	for _, tx := range changed {
		c.invalidate(tx.ProjectID, tx.MaterialID)
		events = append(events, txEvent(EventDeliveryChanged, tx, decimal.Zero, nil, now))
	}
	if finishing {
		events = append(events, Event{Type: EventProjectCompleted, ProjectID: projectID, At: now})
	}
	c.publish(ctx, events...)
	if len(changed) > 0 {
		c.Logger.Info("project deliveries completed", "project_id", projectID, "count", len(changed))
	}
	return len(changed), nil
}

// =============================================================================
// MATERIALS
// =============================================================================

// SaveMaterial upserts a material as given, including its CurrentStock. This
// is the admin correction path; ledger-driven movements go through the
// transaction operations.
func (c *Coordinator) SaveMaterial(ctx context.Context, m Material) (saved Material, err error) {
	if m.ID == "" {
		m.ID = MaterialID(uuid.NewString())
	}
	if m.Name == "" {
		return Material{}, invalid("name", "required")
	}
	if m.MinStockLevel.IsNegative() {
		return Material{}, invalid("min_stock_level", "must not be negative")
	}

	ctx, end := c.begin(ctx, "SaveMaterial", attribute.String("material.id", string(m.ID)))
	defer end(&err)

	unlock, err := c.lockMaterials(ctx, m.ID)
	if err != nil {
		return Material{}, err
	}
	defer unlock()

	err = c.Store.WithTx(ctx, func(s Store) error {
		if err := s.UpsertMaterial(ctx, m); err != nil {
			return WrapStorage("upsert material", err)
		}
		saved, err = s.GetMaterial(ctx, m.ID)
		return WrapStorage("get material", err)
	})
	if err != nil {
		return Material{}, err
	}
	if saved.IsLowStock() {
		c.publish(ctx, Event{Type: EventMaterialLowStock, MaterialID: saved.ID, StockAfter: &saved.CurrentStock, MinStockLevel: &saved.MinStockLevel, At: c.Clock()})
	}
	return saved, nil
}

// DeleteMaterial removes a material. Transactions that reference it stay in
// the ledger and are displayed as Unknown.
func (c *Coordinator) DeleteMaterial(ctx context.Context, id MaterialID) (err error) {
	ctx, end := c.begin(ctx, "DeleteMaterial", attribute.String("material.id", string(id)))
	defer end(&err)

	unlock, err := c.lockMaterials(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	return c.Store.WithTx(ctx, func(s Store) error {
		return WrapStorage("delete material", s.DeleteMaterial(ctx, id))
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// mutate runs a read-modify-write of one transaction. change may touch
// Quantity, Memo and DeliveryStatus; the warehouse moves by the quantity
// delta computed from the stored record.
func (c *Coordinator) mutate(ctx context.Context, op string, id TransactionID, change func(Transaction) (Transaction, error)) (updated Transaction, err error) {
	ctx, end := c.begin(ctx, op, attribute.String("transaction.id", string(id)))
	defer end(&err)

	cur, found, unlockTx, err := c.lockTransaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	defer unlockTx()
	if !found {
		return Transaction{}, NotFound("transaction", string(id))
	}
	unlockMat, err := c.lockMaterials(ctx, cur.MaterialID)
	if err != nil {
		return Transaction{}, err
	}
	defer unlockMat()

	var (
		before Transaction
		delta  decimal.Decimal
		after  *Material
	)
	err = c.Store.WithTx(ctx, func(s Store) error {
		before, err = s.GetTransaction(ctx, id)
		if err != nil {
			return WrapStorage("get transaction", err)
		}
		next, err := change(before)
		if err != nil {
			return err
		}
		next.ID = before.ID
		next.MaterialID = before.MaterialID
		next.ProjectID = before.ProjectID
		next.Type = before.Type
		next.CreatedAt = before.CreatedAt

		// The record write itself is SkipWarehouse; only the delta moves stock.
		if err := s.UpsertTransaction(ctx, next); err != nil {
			return WrapStorage("upsert transaction", err)
		}
		updated = next

		delta = editDelta(before.Type, before.Quantity, next.Quantity)
		after, err = c.adjust(ctx, s, before.MaterialID, delta, id)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}

	c.invalidate(updated.ProjectID, updated.MaterialID)
	now := c.Clock()
	events := []Event{txEvent(EventTransactionEdited, updated, delta, after, now)}
	if before.DeliveryStatus != updated.DeliveryStatus {
		events = append(events, txEvent(EventDeliveryChanged, updated, decimal.Zero, nil, now))
	}
	c.publish(ctx, events...)
	c.Logger.Info("transaction edited",
		"transaction_id", id, "op", op,
		"quantity_before", before.Quantity.String(), "quantity_after", updated.Quantity.String(),
		"status_before", before.DeliveryStatus, "status_after", updated.DeliveryStatus,
		"warehouse_delta", delta.String())
	return updated, nil
}

// adjust moves a material's counter. A missing material is logged and
// skipped; any other failure aborts the surrounding unit of work.
func (c *Coordinator) adjust(ctx context.Context, s Store, id MaterialID, delta decimal.Decimal, txID TransactionID) (*Material, error) {
	if delta.IsZero() {
		return nil, nil
	}
	m, err := s.AdjustStock(ctx, id, delta)
	if IsNotFound(err) {
		c.Logger.Warn("warehouse adjustment skipped: material not found",
			"inconsistency", "warehouse_adjustment_skipped",
			"material_id", id, "transaction_id", txID, "delta", delta.String())
		return nil, nil
	}
	if err != nil {
		return nil, WrapStorage("adjust stock", err)
	}
	return &m, nil
}

// lookup reads a transaction, reporting absence through found.
func (c *Coordinator) lookup(ctx context.Context, s Store, id TransactionID) (Transaction, bool, error) {
	tx, err := s.GetTransaction(ctx, id)
	if IsNotFound(err) {
		return Transaction{}, false, nil
	}
	if err != nil {
		return Transaction{}, false, WrapStorage("get transaction", err)
	}
	return tx, true, nil
}

// lockTransaction takes the project locks (the stored transaction's project
// plus extra), then the transaction lock, and returns the transaction as read
// under them. The caller must call unlock once err is nil.
func (c *Coordinator) lockTransaction(ctx context.Context, id TransactionID, extra ...ProjectID) (tx Transaction, found bool, unlock func(), err error) {
	pre, preFound, err := c.lookup(ctx, c.Store, id)
	if err != nil {
		return Transaction{}, false, nil, err
	}
	projects := append([]ProjectID{}, extra...)
	if preFound {
		projects = append(projects, pre.ProjectID)
	}
	keys := make([]string, 0, len(projects))
	held := make(map[ProjectID]bool, len(projects))
	for _, p := range projects {
		held[p] = true
		if p != "" {
			keys = append(keys, projectKey(p))
		}
	}
	unlockProjects, err := c.lockKeys(ctx, keys...)
	if err != nil {
		return Transaction{}, false, nil, err
	}
	unlockTx, err := c.Locker.Lock(ctx, transactionKey(id))
	if err != nil {
		unlockProjects()
		return Transaction{}, false, nil, err
	}
	unlock = func() {
		unlockTx()
		unlockProjects()
	}

	tx, found, err = c.lookup(ctx, c.Store, id)
	if err == nil && found && !held[tx.ProjectID] {
		err = fmt.Errorf("%w: transaction %s moved to project %s", ErrConcurrentModification, id, tx.ProjectID)
	}
	if err != nil {
		unlock()
		return Transaction{}, false, nil, err
	}
	return tx, found, unlock, nil
}

// lockMaterials locks the distinct material ids in sorted order.
func (c *Coordinator) lockMaterials(ctx context.Context, ids ...MaterialID) (func(), error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, materialKey(id))
	}
	return c.lockKeys(ctx, keys...)
}

// lockKeys locks the distinct keys in sorted order and returns one release
// func for all of them.
func (c *Coordinator) lockKeys(ctx context.Context, keys ...string) (func(), error) {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			uniq = append(uniq, k)
		}
	}
	sort.Strings(uniq)

	unlocks := make([]func(), 0, len(uniq))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, key := range uniq {
		unlock, err := c.Locker.Lock(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

func (c *Coordinator) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	ctx, span := tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		if errp != nil && *errp != nil {
			span.RecordError(*errp)
			span.SetStatus(codes.Error, (*errp).Error())
		}
		span.End()
		cancel()
	}
}

func (c *Coordinator) invalidate(projectID ProjectID, materialID MaterialID) {
	if c.Cache != nil && projectID != "" {
		c.Cache.Invalidate(projectID, materialID)
	}
}

func (c *Coordinator) publish(ctx context.Context, events ...Event) {
	if len(events) == 0 || c.Publisher == nil {
		return
	}
	if err := c.Publisher.Publish(ctx, events...); err != nil {
		c.Logger.Error("publish ledger events", "error", err, "count", len(events))
	}
}

func txEvent(t EventType, tx Transaction, delta decimal.Decimal, after *Material, at time.Time) Event {
	e := Event{
		Type:           t,
		TransactionID:  tx.ID,
		MaterialID:     tx.MaterialID,
		ProjectID:      tx.ProjectID,
		Quantity:       tx.Quantity,
		DeliveryStatus: tx.DeliveryStatus,
		WarehouseDelta: delta,
		At:             at,
	}
	if after != nil {
		stock := after.CurrentStock
		e.StockAfter = &stock
	}
	return e
}

// requireOpenProject rejects an allocation that would be left open on a
// COMPLETED project. Unknown projects are not checked here.
func requireOpenProject(ctx context.Context, s Store, tx Transaction) error {
	if !tx.IsAllocation() || tx.IsDelivered() {
		return nil
	}
	p, err := s.GetProject(ctx, tx.ProjectID)
	if IsNotFound(err) {
		return nil
	}
	if err != nil {
		return WrapStorage("get project", err)
	}
	if p.Status == ProjectCompleted {
		return fmt.Errorf("%w: %s", ErrProjectCompleted, p.ID)
	}
	return nil
}

func validateTransaction(tx Transaction) error {
	if tx.MaterialID == "" {
		return invalid("material_id", "required")
	}
	if !tx.Type.Valid() {
		return invalid("type", fmt.Sprintf("unknown type %q", tx.Type))
	}
	if tx.Quantity.IsNegative() {
		return invalid("quantity", "must not be negative")
	}
	if tx.DeliveryStatus != DeliveryNone && !ValidDeliveryStatus(tx.DeliveryStatus) {
		return invalid("delivery_status", fmt.Sprintf("unknown status %q", tx.DeliveryStatus))
	}
	return nil
}
