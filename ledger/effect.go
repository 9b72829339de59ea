package ledger

import "github.com/shopspring/decimal"

// WarehouseEffect says whether a write also moves Material.CurrentStock.
//
// A single allocation touches the warehouse exactly once, when it is first
// recorded. Later edits of the same allocation either move nothing (status,
// memo) or move only the quantity delta, so every caller must say which
// case it is in.
type WarehouseEffect int

const (
	// ApplyToWarehouse moves the counter: IN adds, OUT subtracts. On delete
	// the movement is reversed.
	ApplyToWarehouse WarehouseEffect = iota + 1

	// SkipWarehouse persists the ledger record only.
	SkipWarehouse
)

func (e WarehouseEffect) String() string {
	switch e {
	case ApplyToWarehouse:
		return "apply"
	case SkipWarehouse:
		return "skip"
	}
	return "unknown"
}

// ParseWarehouseEffect accepts "apply" and "skip". An empty string means apply.
func ParseWarehouseEffect(s string) (WarehouseEffect, error) {
	switch s {
	case "", "apply":
		return ApplyToWarehouse, nil
	case "skip":
		return SkipWarehouse, nil
	}
	return 0, invalid("warehouse_effect", "must be apply or skip")
}

// warehouseDelta is the counter movement recording tx causes under
// ApplyToWarehouse. CHECK and ADJUST never move the warehouse.
func warehouseDelta(tx Transaction) decimal.Decimal {
	switch tx.Type {
	case TxIn:
		return tx.Quantity
	case TxOut:
		return tx.Quantity.Neg()
	}
	return decimal.Zero
}

// editDelta is the counter movement for changing a transaction's quantity
// from old to new: the difference, signed like warehouseDelta.
func editDelta(txType TxType, oldQty, newQty decimal.Decimal) decimal.Decimal {
	diff := newQty.Sub(oldQty)
	switch txType {
	case TxIn:
		return diff
	case TxOut:
		return diff.Neg()
	}
	return decimal.Zero
}
