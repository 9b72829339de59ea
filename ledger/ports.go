package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LOCKER - Per-entity write serialization
// =============================================================================

// Locker serializes writers of one entity. Lock blocks until the key is
// free or ctx is done, and returns the release function.
//
// Implementations: lock.Local (single process), lock.Redis (several
// server instances sharing one database).
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

func materialKey(id MaterialID) string       { return "material:" + string(id) }
func transactionKey(id TransactionID) string { return "transaction:" + string(id) }
func projectKey(id ProjectID) string         { return "project:" + string(id) }

// =============================================================================
// EVENTS - Hand-off to notification / reporting collaborators
// =============================================================================

type EventType string

const (
	EventTransactionRecorded EventType = "transaction.recorded"
	EventTransactionEdited   EventType = "transaction.edited"
	EventTransactionDeleted  EventType = "transaction.deleted"
	EventDeliveryChanged     EventType = "delivery.status_changed"
	EventProjectCompleted    EventType = "project.completed"
	EventMaterialLowStock    EventType = "material.low_stock"
)

// Event describes a committed ledger change. WarehouseDelta is what the
// write did to the material's CurrentStock (zero under SkipWarehouse).
// MinStockLevel is set on material.low_stock events only.
type Event struct {
	Type           EventType        `json:"type"`
	TransactionID  TransactionID    `json:"transaction_id,omitempty"`
	MaterialID     MaterialID       `json:"material_id,omitempty"`
	ProjectID      ProjectID        `json:"project_id,omitempty"`
	Quantity       decimal.Decimal  `json:"quantity"`
	DeliveryStatus DeliveryStatus   `json:"delivery_status,omitempty"`
	WarehouseDelta decimal.Decimal  `json:"warehouse_delta"`
	StockAfter     *decimal.Decimal `json:"stock_after,omitempty"`
	MinStockLevel  *decimal.Decimal `json:"min_stock_level,omitempty"`
	At             time.Time        `json:"at"`
}

// Publisher delivers events. Failures never undo the committed write.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, ...Event) error { return nil }

// NopPublisher drops every event.
func NopPublisher() Publisher { return nopPublisher{} }
