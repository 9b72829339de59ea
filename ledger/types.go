/*
Package ledger provides the material stock ledger engine.

PURPOSE:
  Tracks construction materials held in the warehouse and committed to
  project sites. Warehouse stock is a stored counter on each Material;
  site stock is never stored and is always derived by replaying the
  project's transactions.

KEY CONCEPTS IN THIS FILE (types.go):
  - Material: a warehouse stock-keeping unit with a CurrentStock counter
  - Transaction: a ledger entry (IN, OUT, ADJUST, CHECK)
  - DeliveryStatus: PENDING -> IN_TRANSIT -> DELIVERED for allocations
  - Project / User: the collaborators the ledger needs to know about

DESIGN PRINCIPLES:
  1. Derived, not stored: site stock and allocation totals are replayed
  2. Precision: quantities use decimal.Decimal
  3. Type safety: distinct ID types for materials, projects and transactions
  4. One writer per entity: the Coordinator owns every CurrentStock change

USAGE:
  tx := ledger.Transaction{
      MaterialID: "m1",
      ProjectID:  "p1",
      Type:       ledger.TxOut,
      Quantity:   ledger.Qty(20),
  }
  saved, err := coordinator.RecordTransaction(ctx, tx, ledger.ApplyToWarehouse)

SEE ALSO:
  - replay.go: site stock derivation
  - coordinator.go: warehouse counter mutations
  - delivery.go: delivery status transitions
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MaterialID string
type ProjectID string
type TransactionID string
type UserID string

// =============================================================================
// QUANTITIES
// =============================================================================

// Qty builds a quantity from an integer count.
func Qty(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

// ParseQty parses a decimal quantity such as "12.5".
func ParseQty(s string) (decimal.Decimal, error) { return decimal.NewFromString(s) }

// =============================================================================
// MATERIAL - Warehouse-level stock keeping unit
// =============================================================================

type Material struct {
	ID            MaterialID
	Name          string
	Category      string
	Brand         string
	Location      string
	Unit          string
	CurrentStock  decimal.Decimal
	MinStockLevel decimal.Decimal
	Notes         string

	// Version is bumped on every stock write; AdjustStock compares it.
	Version int64
}

// IsLowStock reports whether the warehouse counter is at or below the reorder threshold.
func (m Material) IsLowStock() bool {
	return m.CurrentStock.LessThanOrEqual(m.MinStockLevel)
}

// UnknownName is displayed for references that no longer resolve: a
// deleted material or an unregistered performer.
const (
	UnknownName         = "Unknown"
	UnknownMaterialName = UnknownName
)

// =============================================================================
// TRANSACTION - Ledger entry
// =============================================================================

type TxType string

const (
	TxIn     TxType = "IN"     // Return to warehouse (or plain receipt without project)
	TxOut    TxType = "OUT"    // Allocation to a site
	TxAdjust TxType = "ADJUST" // Manual warehouse note, no derived effect
	TxCheck  TxType = "CHECK"  // Physical count on site, overrides site stock
)

func (t TxType) Valid() bool {
	switch t {
	case TxIn, TxOut, TxAdjust, TxCheck:
		return true
	}
	return false
}

type DeliveryStatus string

const (
	DeliveryNone      DeliveryStatus = ""
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryInTransit DeliveryStatus = "IN_TRANSIT"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
)

type Transaction struct {
	ID             TransactionID
	MaterialID     MaterialID
	ProjectID      ProjectID // empty for pure warehouse movements
	Type           TxType
	Quantity       decimal.Decimal
	PerformedBy    UserID
	Memo           string
	CreatedAt      time.Time
	DeliveryStatus DeliveryStatus
}

// IsAllocation reports whether the transaction commits material to a site.
func (t Transaction) IsAllocation() bool {
	return t.Type == TxOut && t.ProjectID != ""
}

// IsDelivered treats a missing status on an allocation as PENDING.
func (t Transaction) IsDelivered() bool {
	return t.DeliveryStatus == DeliveryDelivered
}

// EffectiveDeliveryStatus returns the status the board should show.
func (t Transaction) EffectiveDeliveryStatus() DeliveryStatus {
	if t.DeliveryStatus == DeliveryNone && t.IsAllocation() {
		return DeliveryPending
	}
	return t.DeliveryStatus
}

// =============================================================================
// PROJECT / USER - Collaborator records
// =============================================================================

type ProjectStatus string

const (
	ProjectPlanned   ProjectStatus = "PLANNED"
	ProjectActive    ProjectStatus = "ACTIVE"
	ProjectCompleted ProjectStatus = "COMPLETED"
)

func (s ProjectStatus) Valid() bool {
	return s == ProjectPlanned || s == ProjectActive || s == ProjectCompleted
}

type Project struct {
	ID          ProjectID
	Name        string
	ClientName  string
	ClientEmail string
	ClientPhone string
	Address     string
	Status      ProjectStatus
}

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleStaff  Role = "STAFF"
	RoleDriver Role = "DRIVER"
)

type User struct {
	ID    UserID
	Name  string
	Email string
	Phone string
	Role  Role
}

// =============================================================================
// DERIVED AGGREGATES
// =============================================================================

// StockStats is the replayed state of one (project, material) pair.
type StockStats struct {
	Allocated decimal.Decimal // sum of every OUT, whatever its delivery status
	Current   decimal.Decimal // believed to be physically on site; may go negative
}
