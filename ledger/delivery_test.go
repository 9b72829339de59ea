package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDeliveryStatus(t *testing.T) {
	tests := []struct {
		from    DeliveryStatus
		want    DeliveryStatus
		wantErr bool
	}{
		{DeliveryNone, DeliveryInTransit, false},
		{DeliveryPending, DeliveryInTransit, false},
		{DeliveryInTransit, DeliveryDelivered, false},
		{DeliveryDelivered, DeliveryDelivered, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			got, err := NextDeliveryStatus(tt.from)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsForward(t *testing.T) {
	assert.True(t, IsForward(DeliveryNone, DeliveryInTransit))
	assert.True(t, IsForward(DeliveryPending, DeliveryDelivered))
	assert.False(t, IsForward(DeliveryDelivered, DeliveryPending))
	assert.False(t, IsForward(DeliveryPending, DeliveryPending))
	assert.False(t, IsForward(DeliveryPending, "LOST"))
}

func TestEffectiveDeliveryStatus(t *testing.T) {
	alloc := Transaction{Type: TxOut, ProjectID: "p1"}
	assert.Equal(t, DeliveryPending, alloc.EffectiveDeliveryStatus())

	warehouseOut := Transaction{Type: TxOut}
	assert.Equal(t, DeliveryNone, warehouseOut.EffectiveDeliveryStatus())
	assert.False(t, warehouseOut.IsAllocation())
}

// =============================================================================
// WAREHOUSE EFFECT
// =============================================================================

func TestWarehouseDelta(t *testing.T) {
	assert.True(t, warehouseDelta(Transaction{Type: TxIn, Quantity: Qty(5)}).Equal(Qty(5)))
	assert.True(t, warehouseDelta(Transaction{Type: TxOut, Quantity: Qty(5)}).Equal(Qty(-5)))
	assert.True(t, warehouseDelta(Transaction{Type: TxCheck, Quantity: Qty(5)}).IsZero())
	assert.True(t, warehouseDelta(Transaction{Type: TxAdjust, Quantity: Qty(5)}).IsZero())
}

func TestEditDelta(t *testing.T) {
	// Raising an allocation from 10 to 15 removes 5 more from the warehouse.
	assert.True(t, editDelta(TxOut, Qty(10), Qty(15)).Equal(Qty(-5)))
	// Lowering a return from 8 to 3 takes 5 back out.
	assert.True(t, editDelta(TxIn, Qty(8), Qty(3)).Equal(Qty(-5)))
	assert.True(t, editDelta(TxCheck, Qty(1), Qty(100)).IsZero())

	half := decimal.RequireFromString("0.5")
	assert.True(t, editDelta(TxOut, Qty(1), Qty(1).Add(half)).Equal(half.Neg()))
}

func TestParseWarehouseEffect(t *testing.T) {
	e, err := ParseWarehouseEffect("")
	require.NoError(t, err)
	assert.Equal(t, ApplyToWarehouse, e)

	e, err = ParseWarehouseEffect("skip")
	require.NoError(t, err)
	assert.Equal(t, SkipWarehouse, e)
	assert.Equal(t, "skip", e.String())

	_, err = ParseWarehouseEffect("sometimes")
	assert.ErrorIs(t, err, ErrValidation)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestWrapStorage(t *testing.T) {
	assert.NoError(t, WrapStorage("op", nil))

	nf := NotFound("material", "m1")
	assert.Same(t, nf, WrapStorage("op", nf))

	cause := errors.New("disk full")
	err := WrapStorage("insert", cause)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "insert")
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("project", "p1")))
	assert.True(t, IsClientError(invalid("quantity", "negative")))
	assert.True(t, IsClientError(ErrInvalidTransition))
	assert.True(t, IsRetryable(ErrConcurrentModification))
	assert.False(t, IsRetryable(ErrStorage))

	var verr *ValidationError
	require.ErrorAs(t, invalid("quantity", "negative"), &verr)
	assert.Equal(t, "quantity", verr.Field)
}

func TestMaterial_IsLowStock(t *testing.T) {
	assert.True(t, Material{CurrentStock: Qty(5), MinStockLevel: Qty(5)}.IsLowStock())
	assert.False(t, Material{CurrentStock: Qty(6), MinStockLevel: Qty(5)}.IsLowStock())
}
