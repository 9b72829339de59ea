/*
store.go - Persistence interfaces for the ledger

PURPOSE:
  Defines the boundary between the ledger logic and the database. Only
  materials, transactions, projects and users are persisted; replay
  aggregates are always recomputed.

KEY INTERFACES:
  TransactionStore: keyed transaction records (insert, upsert, delete, scan)
  MaterialRegistry: keyed materials plus the atomic AdjustStock primitive
  ProjectStore:     projects (status gates the delivery board and completion)
  UserDirectory:    performer display names
  TxStore:          all of the above inside one all-or-nothing unit

ORDERING:
  ListTransactions and ListProjectTransactions make NO ordering promise.
  Callers that care (replay, history) sort explicitly.

ATOMIC STOCK:
  AdjustStock applies a delta to Material.CurrentStock as a compare-and-swap
  on Material.Version. Implementations must never do an unguarded
  read-then-write of the counter.

IMPLEMENTATIONS:
  - ledger/store/memory.go: in-memory, for tests
  - store/sqlite/sqlite.go: SQLite (and PostgreSQL through the same code)
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// MaxStockRetries bounds the compare-and-swap loop in AdjustStock implementations.
const MaxStockRetries = 5

type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx Transaction) error

	// UpsertTransaction replaces the record with the same id, or inserts it.
	UpsertTransaction(ctx context.Context, tx Transaction) error

	GetTransaction(ctx context.Context, id TransactionID) (Transaction, error)

	// DeleteTransaction removes the record and returns what was removed.
	DeleteTransaction(ctx context.Context, id TransactionID) (Transaction, error)

	ListTransactions(ctx context.Context) ([]Transaction, error)
	ListProjectTransactions(ctx context.Context, projectID ProjectID) ([]Transaction, error)
}

type MaterialRegistry interface {
	GetMaterial(ctx context.Context, id MaterialID) (Material, error)
	UpsertMaterial(ctx context.Context, m Material) error
	DeleteMaterial(ctx context.Context, id MaterialID) error
	ListMaterials(ctx context.Context) ([]Material, error)

	// AdjustStock adds delta to CurrentStock atomically and returns the
	// updated material.
	AdjustStock(ctx context.Context, id MaterialID, delta decimal.Decimal) (Material, error)
}

type ProjectStore interface {
	GetProject(ctx context.Context, id ProjectID) (Project, error)
	UpsertProject(ctx context.Context, p Project) error
	DeleteProject(ctx context.Context, id ProjectID) error
	ListProjects(ctx context.Context) ([]Project, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, id UserID) (User, error)
	UpsertUser(ctx context.Context, u User) error
	ListUsers(ctx context.Context) ([]User, error)
}

type Store interface {
	TransactionStore
	MaterialRegistry
	ProjectStore
	UserDirectory
}

// TxStore wraps Store with transaction support.
// If fn returns an error, every write made through the Store it received is
// rolled back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
