// Package store provides in-process ledger.Store implementations.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/site-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	tables
}

type tables struct {
	materials    map[ledger.MaterialID]ledger.Material
	transactions map[ledger.TransactionID]ledger.Transaction
	projects     map[ledger.ProjectID]ledger.Project
	users        map[ledger.UserID]ledger.User
}

func newTables() tables {
	return tables{
		materials:    make(map[ledger.MaterialID]ledger.Material),
		transactions: make(map[ledger.TransactionID]ledger.Transaction),
		projects:     make(map[ledger.ProjectID]ledger.Project),
		users:        make(map[ledger.UserID]ledger.User),
	}
}

func NewMemory() *Memory {
	return &Memory{tables: newTables()}
}

// Reset drops every record.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables = newTables()
	return nil
}

// --- transactions ---

func (m *Memory) InsertTransaction(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertTransaction(tx)
}

func (m *Memory) UpsertTransaction(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[tx.ID] = tx
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTransaction(id)
}

func (m *Memory) DeleteTransaction(_ context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteTransaction(id)
}

func (m *Memory) ListTransactions(_ context.Context) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTransactions(""), nil
}

func (m *Memory) ListProjectTransactions(_ context.Context, projectID ledger.ProjectID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTransactions(projectID), nil
}

// --- materials ---

func (m *Memory) GetMaterial(_ context.Context, id ledger.MaterialID) (ledger.Material, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getMaterial(id)
}

func (m *Memory) UpsertMaterial(_ context.Context, mat ledger.Material) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertMaterial(mat)
	return nil
}

func (m *Memory) DeleteMaterial(_ context.Context, id ledger.MaterialID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteMaterial(id)
}

func (m *Memory) ListMaterials(_ context.Context) ([]ledger.Material, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listMaterials(), nil
}

// AdjustStock is atomic under the store mutex; the version still moves so
// callers observe the same contract as the SQL store.
func (m *Memory) AdjustStock(_ context.Context, id ledger.MaterialID, delta decimal.Decimal) (ledger.Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjustStock(id, delta)
}

// --- projects ---

func (m *Memory) GetProject(_ context.Context, id ledger.ProjectID) (ledger.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getProject(id)
}

func (m *Memory) UpsertProject(_ context.Context, p ledger.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
	return nil
}

func (m *Memory) DeleteProject(_ context.Context, id ledger.ProjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteProject(id)
}

func (m *Memory) ListProjects(_ context.Context) ([]ledger.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listProjects(), nil
}

// --- users ---

func (m *Memory) GetUser(_ context.Context, id ledger.UserID) (ledger.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUser(id)
}

func (m *Memory) UpsertUser(_ context.Context, u ledger.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) ListUsers(_ context.Context) ([]ledger.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listUsers(), nil
}

// =============================================================================
// TABLE OPERATIONS - Callers hold the lock
// =============================================================================

func (t *tables) insertTransaction(tx ledger.Transaction) error {
	if _, ok := t.transactions[tx.ID]; ok {
		return fmt.Errorf("%w: transaction %s", ledger.ErrDuplicateID, tx.ID)
	}
	t.transactions[tx.ID] = tx
	return nil
}

func (t *tables) getTransaction(id ledger.TransactionID) (ledger.Transaction, error) {
	tx, ok := t.transactions[id]
	if !ok {
		return ledger.Transaction{}, ledger.NotFound("transaction", string(id))
	}
	return tx, nil
}

func (t *tables) deleteTransaction(id ledger.TransactionID) (ledger.Transaction, error) {
	tx, ok := t.transactions[id]
	if !ok {
		return ledger.Transaction{}, ledger.NotFound("transaction", string(id))
	}
	delete(t.transactions, id)
	return tx, nil
}

// listTransactions returns map order on purpose: the store makes no
// ordering promise. An empty projectID lists everything.
func (t *tables) listTransactions(projectID ledger.ProjectID) []ledger.Transaction {
	out := make([]ledger.Transaction, 0, len(t.transactions))
	for _, tx := range t.transactions {
		if projectID == "" || tx.ProjectID == projectID {
			out = append(out, tx)
		}
	}
	return out
}

func (t *tables) getMaterial(id ledger.MaterialID) (ledger.Material, error) {
	mat, ok := t.materials[id]
	if !ok {
		return ledger.Material{}, ledger.NotFound("material", string(id))
	}
	return mat, nil
}

func (t *tables) upsertMaterial(mat ledger.Material) {
	mat.Version = t.materials[mat.ID].Version + 1
	t.materials[mat.ID] = mat
}

func (t *tables) deleteMaterial(id ledger.MaterialID) error {
	if _, ok := t.materials[id]; !ok {
		return ledger.NotFound("material", string(id))
	}
	delete(t.materials, id)
	return nil
}

func (t *tables) listMaterials() []ledger.Material {
	out := make([]ledger.Material, 0, len(t.materials))
	for _, mat := range t.materials {
		out = append(out, mat)
	}
	return out
}

func (t *tables) adjustStock(id ledger.MaterialID, delta decimal.Decimal) (ledger.Material, error) {
	mat, ok := t.materials[id]
	if !ok {
		return ledger.Material{}, ledger.NotFound("material", string(id))
	}
	mat.CurrentStock = mat.CurrentStock.Add(delta)
	mat.Version++
	t.materials[id] = mat
	return mat, nil
}

func (t *tables) getProject(id ledger.ProjectID) (ledger.Project, error) {
	p, ok := t.projects[id]
	if !ok {
		return ledger.Project{}, ledger.NotFound("project", string(id))
	}
	return p, nil
}

func (t *tables) deleteProject(id ledger.ProjectID) error {
	if _, ok := t.projects[id]; !ok {
		return ledger.NotFound("project", string(id))
	}
	delete(t.projects, id)
	return nil
}

func (t *tables) listProjects() []ledger.Project {
	out := make([]ledger.Project, 0, len(t.projects))
	for _, p := range t.projects {
		out = append(out, p)
	}
	return out
}

func (t *tables) getUser(id ledger.UserID) (ledger.User, error) {
	u, ok := t.users[id]
	if !ok {
		return ledger.User{}, ledger.NotFound("user", string(id))
	}
	return u, nil
}

func (t *tables) listUsers() []ledger.User {
	out := make([]ledger.User, 0, len(t.users))
	for _, u := range t.users {
		out = append(out, u)
	}
	return out
}

func (t *tables) clone() tables {
	c := newTables()
	for k, v := range t.materials {
		c.materials[k] = v
	}
	for k, v := range t.transactions {
		c.transactions[k] = v
	}
	for k, v := range t.projects {
		c.projects[k] = v
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	return c
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory

	// FailAdjust, when set, is returned by AdjustStock inside WithTx. Tests
	// use it to check that a failed counter update rolls the ledger back.
	FailAdjust error
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Units of work are serialized by the store mutex.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.tables.clone()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.tables = snapshot
		return err
	}
	return nil
}

type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) InsertTransaction(_ context.Context, tx ledger.Transaction) error {
	return tv.parent.insertTransaction(tx)
}

func (tv *txMemoryView) UpsertTransaction(_ context.Context, tx ledger.Transaction) error {
	tv.parent.transactions[tx.ID] = tx
	return nil
}

func (tv *txMemoryView) GetTransaction(_ context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	return tv.parent.getTransaction(id)
}

func (tv *txMemoryView) DeleteTransaction(_ context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	return tv.parent.deleteTransaction(id)
}

func (tv *txMemoryView) ListTransactions(_ context.Context) ([]ledger.Transaction, error) {
	return tv.parent.listTransactions(""), nil
}

func (tv *txMemoryView) ListProjectTransactions(_ context.Context, projectID ledger.ProjectID) ([]ledger.Transaction, error) {
	return tv.parent.listTransactions(projectID), nil
}

func (tv *txMemoryView) GetMaterial(_ context.Context, id ledger.MaterialID) (ledger.Material, error) {
	return tv.parent.getMaterial(id)
}

func (tv *txMemoryView) UpsertMaterial(_ context.Context, mat ledger.Material) error {
	tv.parent.upsertMaterial(mat)
	return nil
}

func (tv *txMemoryView) DeleteMaterial(_ context.Context, id ledger.MaterialID) error {
	return tv.parent.deleteMaterial(id)
}

func (tv *txMemoryView) ListMaterials(_ context.Context) ([]ledger.Material, error) {
	return tv.parent.listMaterials(), nil
}

func (tv *txMemoryView) AdjustStock(_ context.Context, id ledger.MaterialID, delta decimal.Decimal) (ledger.Material, error) {
	if tv.parent.FailAdjust != nil {
		return ledger.Material{}, tv.parent.FailAdjust
	}
	return tv.parent.adjustStock(id, delta)
}

func (tv *txMemoryView) GetProject(_ context.Context, id ledger.ProjectID) (ledger.Project, error) {
	return tv.parent.getProject(id)
}

func (tv *txMemoryView) UpsertProject(_ context.Context, p ledger.Project) error {
	tv.parent.projects[p.ID] = p
	return nil
}

func (tv *txMemoryView) DeleteProject(_ context.Context, id ledger.ProjectID) error {
	return tv.parent.deleteProject(id)
}

func (tv *txMemoryView) ListProjects(_ context.Context) ([]ledger.Project, error) {
	return tv.parent.listProjects(), nil
}

func (tv *txMemoryView) GetUser(_ context.Context, id ledger.UserID) (ledger.User, error) {
	return tv.parent.getUser(id)
}

func (tv *txMemoryView) UpsertUser(_ context.Context, u ledger.User) error {
	tv.parent.users[u.ID] = u
	return nil
}

func (tv *txMemoryView) ListUsers(_ context.Context) ([]ledger.User, error) {
	return tv.parent.listUsers(), nil
}
