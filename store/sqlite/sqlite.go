/*
Package sqlite provides a SQL-backed implementation of ledger.TxStore.

PURPOSE:
  Persists materials, transactions, projects and users. SQLite is the
  default; PostgreSQL runs through the same code, with placeholders
  rebound by sqlx for the driver in use.

INTERFACES IMPLEMENTED:
  ledger.Store:   all four registries
  ledger.TxStore: WithTx over a database transaction

KEY TABLES:
  materials:    warehouse counter (current_stock) guarded by version
  transactions: the stock ledger; rows may outlive their material
  projects:     status gates the delivery board and completion
  users:        performer display names

ATOMIC STOCK:
  AdjustStock never writes back a value it did not just compare:

    UPDATE materials SET current_stock = ?, version = version + 1
    WHERE id = ? AND version = ?

  Zero rows affected means another writer got there first; the read and
  the update are retried up to ledger.MaxStockRetries times.

TIMESTAMPS:
  created_at is TEXT in a fixed-width UTC layout with nanoseconds, so the
  string order is the time order and round trips are exact.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite allows a single writer; the
  mutex keeps writers of one process from tripping over SQLITE_BUSY. With
  PostgreSQL, row versions and the Locker handle cross-process writers.

IN-MEMORY DATABASES:
  ":memory:" creates one database per connection, so the pool is capped at
  one connection and every query inside WithTx goes through the tx.

USAGE:
  store, err := sqlite.New("./data/site-ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  coordinator := ledger.NewCoordinator(store, lock.NewLocal())

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/site-ledger/ledger"
)

// timeLayout sorts lexicographically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements ledger.TxStore on database/sql through sqlx.
type Store struct {
	db *sqlx.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	return open(db)
}

// Open connects with an explicit driver: "sqlite3" or "postgres".
func Open(driver, dsn string) (*Store, error) {
	if driver == "sqlite3" || driver == "sqlite" {
		return New(dsn)
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	return open(db)
}

func open(db *sqlx.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema. The DDL is portable between SQLite
// and PostgreSQL.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS materials (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		brand TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT '',
		current_stock TEXT NOT NULL DEFAULT '0',
		min_stock_level TEXT NOT NULL DEFAULT '0',
		notes TEXT NOT NULL DEFAULT '',
		version BIGINT NOT NULL DEFAULT 1
	);

	-- No foreign key to materials: a transaction may outlive its material.
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		material_id TEXT NOT NULL,
		project_id TEXT NOT NULL DEFAULT '',
		tx_type TEXT NOT NULL,
		quantity TEXT NOT NULL,
		performed_by TEXT NOT NULL DEFAULT '',
		memo TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		delivery_status TEXT NOT NULL DEFAULT ''
	);

	-- Replay of one project (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_project_created
		ON transactions(project_id, created_at);

	-- Delivery board scans allocations only
	CREATE INDEX IF NOT EXISTS idx_transactions_type_status
		ON transactions(tx_type, delivery_status);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		client_name TEXT NOT NULL DEFAULT '',
		client_email TEXT NOT NULL DEFAULT '',
		client_phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) conn() conn { return conn{q: s.db} }

// =============================================================================
// TRANSACTION STORE
// =============================================================================

func (s *Store) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().InsertTransaction(ctx, tx)
}

func (s *Store) UpsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().UpsertTransaction(ctx, tx)
}

func (s *Store) GetTransaction(ctx context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetTransaction(ctx, id)
}

func (s *Store) DeleteTransaction(ctx context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	var removed ledger.Transaction
	err := s.WithTx(ctx, func(st ledger.Store) error {
		var err error
		removed, err = st.DeleteTransaction(ctx, id)
		return err
	})
	return removed, err
}

func (s *Store) ListTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListTransactions(ctx)
}

func (s *Store) ListProjectTransactions(ctx context.Context, projectID ledger.ProjectID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListProjectTransactions(ctx, projectID)
}

// =============================================================================
// MATERIAL REGISTRY
// =============================================================================

func (s *Store) GetMaterial(ctx context.Context, id ledger.MaterialID) (ledger.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetMaterial(ctx, id)
}

func (s *Store) UpsertMaterial(ctx context.Context, m ledger.Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().UpsertMaterial(ctx, m)
}

func (s *Store) DeleteMaterial(ctx context.Context, id ledger.MaterialID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().DeleteMaterial(ctx, id)
}

func (s *Store) ListMaterials(ctx context.Context) ([]ledger.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListMaterials(ctx)
}

func (s *Store) AdjustStock(ctx context.Context, id ledger.MaterialID, delta decimal.Decimal) (ledger.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().AdjustStock(ctx, id, delta)
}

// =============================================================================
// PROJECTS / USERS
// =============================================================================

func (s *Store) GetProject(ctx context.Context, id ledger.ProjectID) (ledger.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetProject(ctx, id)
}

func (s *Store) UpsertProject(ctx context.Context, p ledger.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().UpsertProject(ctx, p)
}

func (s *Store) DeleteProject(ctx context.Context, id ledger.ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().DeleteProject(ctx, id)
}

func (s *Store) ListProjects(ctx context.Context) ([]ledger.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListProjects(ctx)
}

func (s *Store) GetUser(ctx context.Context, id ledger.UserID) (ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetUser(ctx, id)
}

func (s *Store) UpsertUser(ctx context.Context, u ledger.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().UpsertUser(ctx, u)
}

func (s *Store) ListUsers(ctx context.Context) ([]ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListUsers(ctx)
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(conn{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"transactions", "materials", "projects", "users"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// CONN - Queries against a *sqlx.DB or a *sqlx.Tx
// =============================================================================

// conn implements ledger.Store without locking. Inside WithTx it wraps the
// tx, so every read sees the unit of work's own writes.
type conn struct {
	q sqlx.ExtContext
}

type transactionRow struct {
	ID             string          `db:"id"`
	MaterialID     string          `db:"material_id"`
	ProjectID      string          `db:"project_id"`
	Type           string          `db:"tx_type"`
	Quantity       decimal.Decimal `db:"quantity"`
	PerformedBy    string          `db:"performed_by"`
	Memo           string          `db:"memo"`
	CreatedAt      string          `db:"created_at"`
	DeliveryStatus string          `db:"delivery_status"`
}

const transactionColumns = `id, material_id, project_id, tx_type, quantity, performed_by, memo, created_at, delivery_status`

func (r transactionRow) toLedger() (ledger.Transaction, error) {
	createdAt, err := time.Parse(timeLayout, r.CreatedAt)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("transaction %s: bad created_at %q: %w", r.ID, r.CreatedAt, err)
	}
	return ledger.Transaction{
		ID:             ledger.TransactionID(r.ID),
		MaterialID:     ledger.MaterialID(r.MaterialID),
		ProjectID:      ledger.ProjectID(r.ProjectID),
		Type:           ledger.TxType(r.Type),
		Quantity:       r.Quantity,
		PerformedBy:    ledger.UserID(r.PerformedBy),
		Memo:           r.Memo,
		CreatedAt:      createdAt,
		DeliveryStatus: ledger.DeliveryStatus(r.DeliveryStatus),
	}, nil
}

func transactionArgs(tx ledger.Transaction) []any {
	return []any{
		string(tx.ID),
		string(tx.MaterialID),
		string(tx.ProjectID),
		string(tx.Type),
		tx.Quantity.String(),
		string(tx.PerformedBy),
		tx.Memo,
		tx.CreatedAt.UTC().Format(timeLayout),
		string(tx.DeliveryStatus),
	}
}

func (c conn) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	query := c.q.Rebind(`INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := c.q.ExecContext(ctx, query, transactionArgs(tx)...); err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: transaction %s", ledger.ErrDuplicateID, tx.ID)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (c conn) UpsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	query := c.q.Rebind(`INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			material_id = excluded.material_id,
			project_id = excluded.project_id,
			tx_type = excluded.tx_type,
			quantity = excluded.quantity,
			performed_by = excluded.performed_by,
			memo = excluded.memo,
			created_at = excluded.created_at,
			delivery_status = excluded.delivery_status`)
	if _, err := c.q.ExecContext(ctx, query, transactionArgs(tx)...); err != nil {
		return fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return nil
}

func (c conn) GetTransaction(ctx context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	var row transactionRow
	query := c.q.Rebind(`SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`)
	err := sqlx.GetContext(ctx, c.q, &row, query, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, ledger.NotFound("transaction", string(id))
	}
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("failed to get transaction: %w", err)
	}
	return row.toLedger()
}

func (c conn) DeleteTransaction(ctx context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	tx, err := c.GetTransaction(ctx, id)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if _, err := c.q.ExecContext(ctx, c.q.Rebind(`DELETE FROM transactions WHERE id = ?`), string(id)); err != nil {
		return ledger.Transaction{}, fmt.Errorf("failed to delete transaction: %w", err)
	}
	return tx, nil
}

func (c conn) ListTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	return c.selectTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions`)
}

func (c conn) ListProjectTransactions(ctx context.Context, projectID ledger.ProjectID) ([]ledger.Transaction, error) {
	return c.selectTransactions(ctx,
		c.q.Rebind(`SELECT `+transactionColumns+` FROM transactions WHERE project_id = ?`),
		string(projectID))
}

func (c conn) selectTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	var rows []transactionRow
	if err := sqlx.SelectContext(ctx, c.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	out := make([]ledger.Transaction, 0, len(rows))
	for _, r := range rows {
		tx, err := r.toLedger()
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

type materialRow struct {
	ID            string          `db:"id"`
	Name          string          `db:"name"`
	Category      string          `db:"category"`
	Brand         string          `db:"brand"`
	Location      string          `db:"location"`
	Unit          string          `db:"unit"`
	CurrentStock  decimal.Decimal `db:"current_stock"`
	MinStockLevel decimal.Decimal `db:"min_stock_level"`
	Notes         string          `db:"notes"`
	Version       int64           `db:"version"`
}

const materialColumns = `id, name, category, brand, location, unit, current_stock, min_stock_level, notes, version`

func (r materialRow) toLedger() ledger.Material {
	return ledger.Material{
		ID:            ledger.MaterialID(r.ID),
		Name:          r.Name,
		Category:      r.Category,
		Brand:         r.Brand,
		Location:      r.Location,
		Unit:          r.Unit,
		CurrentStock:  r.CurrentStock,
		MinStockLevel: r.MinStockLevel,
		Notes:         r.Notes,
		Version:       r.Version,
	}
}

func (c conn) GetMaterial(ctx context.Context, id ledger.MaterialID) (ledger.Material, error) {
	var row materialRow
	query := c.q.Rebind(`SELECT ` + materialColumns + ` FROM materials WHERE id = ?`)
	err := sqlx.GetContext(ctx, c.q, &row, query, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Material{}, ledger.NotFound("material", string(id))
	}
	if err != nil {
		return ledger.Material{}, fmt.Errorf("failed to get material: %w", err)
	}
	return row.toLedger(), nil
}

func (c conn) UpsertMaterial(ctx context.Context, m ledger.Material) error {
	query := c.q.Rebind(`INSERT INTO materials (` + materialColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			brand = excluded.brand,
			location = excluded.location,
			unit = excluded.unit,
			current_stock = excluded.current_stock,
			min_stock_level = excluded.min_stock_level,
			notes = excluded.notes,
			version = materials.version + 1`)
	_, err := c.q.ExecContext(ctx, query,
		string(m.ID), m.Name, m.Category, m.Brand, m.Location, m.Unit,
		m.CurrentStock.String(), m.MinStockLevel.String(), m.Notes)
	if err != nil {
		return fmt.Errorf("failed to upsert material: %w", err)
	}
	return nil
}

func (c conn) DeleteMaterial(ctx context.Context, id ledger.MaterialID) error {
	return c.deleteByID(ctx, "materials", "material", string(id))
}

func (c conn) ListMaterials(ctx context.Context) ([]ledger.Material, error) {
	var rows []materialRow
	if err := sqlx.SelectContext(ctx, c.q, &rows, `SELECT `+materialColumns+` FROM materials`); err != nil {
		return nil, fmt.Errorf("failed to query materials: %w", err)
	}
	out := make([]ledger.Material, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toLedger())
	}
	return out, nil
}

// AdjustStock adds delta through a compare-and-swap on version.
func (c conn) AdjustStock(ctx context.Context, id ledger.MaterialID, delta decimal.Decimal) (ledger.Material, error) {
	update := c.q.Rebind(`UPDATE materials SET current_stock = ?, version = version + 1
		WHERE id = ? AND version = ?`)

	for attempt := 0; attempt < ledger.MaxStockRetries; attempt++ {
		m, err := c.GetMaterial(ctx, id)
		if err != nil {
			return ledger.Material{}, err
		}
		next := m.CurrentStock.Add(delta)
		res, err := c.q.ExecContext(ctx, update, next.String(), string(id), m.Version)
		if err != nil {
			return ledger.Material{}, fmt.Errorf("failed to adjust stock: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return ledger.Material{}, fmt.Errorf("failed to get affected rows: %w", err)
		}
		if n == 1 {
			m.CurrentStock = next
			m.Version++
			return m, nil
		}
	}
	return ledger.Material{}, fmt.Errorf("%w: material %s", ledger.ErrConcurrentModification, id)
}

type projectRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	ClientName  string `db:"client_name"`
	ClientEmail string `db:"client_email"`
	ClientPhone string `db:"client_phone"`
	Address     string `db:"address"`
	Status      string `db:"status"`
}

const projectColumns = `id, name, client_name, client_email, client_phone, address, status`

func (r projectRow) toLedger() ledger.Project {
	return ledger.Project{
		ID:          ledger.ProjectID(r.ID),
		Name:        r.Name,
		ClientName:  r.ClientName,
		ClientEmail: r.ClientEmail,
		ClientPhone: r.ClientPhone,
		Address:     r.Address,
		Status:      ledger.ProjectStatus(r.Status),
	}
}

func (c conn) GetProject(ctx context.Context, id ledger.ProjectID) (ledger.Project, error) {
	var row projectRow
	query := c.q.Rebind(`SELECT ` + projectColumns + ` FROM projects WHERE id = ?`)
	err := sqlx.GetContext(ctx, c.q, &row, query, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Project{}, ledger.NotFound("project", string(id))
	}
	if err != nil {
		return ledger.Project{}, fmt.Errorf("failed to get project: %w", err)
	}
	return row.toLedger(), nil
}

func (c conn) UpsertProject(ctx context.Context, p ledger.Project) error {
	query := c.q.Rebind(`INSERT INTO projects (` + projectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			client_name = excluded.client_name,
			client_email = excluded.client_email,
			client_phone = excluded.client_phone,
			address = excluded.address,
			status = excluded.status`)
	_, err := c.q.ExecContext(ctx, query,
		string(p.ID), p.Name, p.ClientName, p.ClientEmail, p.ClientPhone, p.Address, string(p.Status))
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}
	return nil
}

func (c conn) DeleteProject(ctx context.Context, id ledger.ProjectID) error {
	return c.deleteByID(ctx, "projects", "project", string(id))
}

func (c conn) ListProjects(ctx context.Context) ([]ledger.Project, error) {
	var rows []projectRow
	if err := sqlx.SelectContext(ctx, c.q, &rows, `SELECT `+projectColumns+` FROM projects`); err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	out := make([]ledger.Project, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toLedger())
	}
	return out, nil
}

type userRow struct {
	ID    string `db:"id"`
	Name  string `db:"name"`
	Email string `db:"email"`
	Phone string `db:"phone"`
	Role  string `db:"role"`
}

func (r userRow) toLedger() ledger.User {
	return ledger.User{
		ID:    ledger.UserID(r.ID),
		Name:  r.Name,
		Email: r.Email,
		Phone: r.Phone,
		Role:  ledger.Role(r.Role),
	}
}

func (c conn) GetUser(ctx context.Context, id ledger.UserID) (ledger.User, error) {
	var row userRow
	query := c.q.Rebind(`SELECT id, name, email, phone, role FROM users WHERE id = ?`)
	err := sqlx.GetContext(ctx, c.q, &row, query, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.User{}, ledger.NotFound("user", string(id))
	}
	if err != nil {
		return ledger.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toLedger(), nil
}

func (c conn) UpsertUser(ctx context.Context, u ledger.User) error {
	query := c.q.Rebind(`INSERT INTO users (id, name, email, phone, role)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			role = excluded.role`)
	if _, err := c.q.ExecContext(ctx, query, string(u.ID), u.Name, u.Email, u.Phone, string(u.Role)); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (c conn) ListUsers(ctx context.Context) ([]ledger.User, error) {
	var rows []userRow
	if err := sqlx.SelectContext(ctx, c.q, &rows, `SELECT id, name, email, phone, role FROM users`); err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	out := make([]ledger.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toLedger())
	}
	return out, nil
}

func (c conn) deleteByID(ctx context.Context, table, kind, id string) error {
	res, err := c.q.ExecContext(ctx, c.q.Rebind(`DELETE FROM `+table+` WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return ledger.NotFound(kind, id)
	}
	return nil
}

// Helper functions

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
