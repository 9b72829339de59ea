package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/site-ledger/ledger"
	"github.com/warp/site-ledger/lock"
	"github.com/warp/site-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func oak() ledger.Material {
	return ledger.Material{
		ID: "m1", Name: "Oak Flooring", Category: "Wood", Unit: "sqft",
		CurrentStock: ledger.Qty(100), MinStockLevel: ledger.Qty(10), Notes: "Premium grade",
	}
}

// =============================================================================
// MATERIALS
// =============================================================================

func TestStore_MaterialRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertMaterial(ctx, oak()))
	got, err := store.GetMaterial(ctx, "m1")
	require.NoError(t, err)

	assert.Equal(t, "Oak Flooring", got.Name)
	assert.Equal(t, "Premium grade", got.Notes)
	assert.True(t, got.CurrentStock.Equal(ledger.Qty(100)))
	assert.Equal(t, int64(1), got.Version)

	// Upsert bumps the version
	m := oak()
	m.Name = "Oak Flooring (Select)"
	require.NoError(t, store.UpsertMaterial(ctx, m))
	got, err = store.GetMaterial(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Oak Flooring (Select)", got.Name)
	assert.Equal(t, int64(2), got.Version)
}

func TestStore_AdjustStock(t *testing.T) {
	// GIVEN: Oak Flooring at 100
	// WHEN: Adjusting by -20.5 then +0.5
	// THEN: 80, exact decimals, version bumped each time

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertMaterial(ctx, oak()))

	m, err := store.AdjustStock(ctx, "m1", decimal.RequireFromString("-20.5"))
	require.NoError(t, err)
	assert.True(t, m.CurrentStock.Equal(decimal.RequireFromString("79.5")))

	m, err = store.AdjustStock(ctx, "m1", decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.True(t, m.CurrentStock.Equal(ledger.Qty(80)))
	assert.Equal(t, int64(3), m.Version)

	stored, err := store.GetMaterial(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, stored.CurrentStock.Equal(m.CurrentStock))
	assert.Equal(t, m.Version, stored.Version)
}

func TestStore_AdjustStock_MissingMaterial(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AdjustStock(context.Background(), "ghost", ledger.Qty(1))
	assert.True(t, ledger.IsNotFound(err))
}

func TestStore_AdjustStock_ConcurrentWriters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertMaterial(ctx, oak()))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AdjustStock(ctx, "m1", ledger.Qty(-1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	m, err := store.GetMaterial(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, m.CurrentStock.Equal(ledger.Qty(80)))
}

func TestStore_DeleteMaterial(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertMaterial(ctx, oak()))

	require.NoError(t, store.DeleteMaterial(ctx, "m1"))
	_, err := store.GetMaterial(ctx, "m1")
	assert.True(t, ledger.IsNotFound(err))
	assert.True(t, ledger.IsNotFound(store.DeleteMaterial(ctx, "m1")))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_TransactionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2025, time.March, 10, 9, 30, 15, 123456789, time.UTC)
	tx := ledger.Transaction{
		ID: "t1", MaterialID: "m1", ProjectID: "p1", Type: ledger.TxOut,
		Quantity: decimal.RequireFromString("12.25"), PerformedBy: "u2", Memo: "Living room",
		CreatedAt: created, DeliveryStatus: ledger.DeliveryInTransit,
	}
	require.NoError(t, store.InsertTransaction(ctx, tx))

	got, err := store.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(created), "timestamps round trip to the nanosecond")
	assert.True(t, got.Quantity.Equal(tx.Quantity))
	assert.Equal(t, ledger.DeliveryInTransit, got.DeliveryStatus)
	assert.Equal(t, "Living room", got.Memo)

	// Transactions may reference materials that do not exist.
	_, err = store.GetMaterial(ctx, "m1")
	assert.True(t, ledger.IsNotFound(err))
}

func TestStore_InsertDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tx := ledger.Transaction{ID: "t1", MaterialID: "m1", Type: ledger.TxIn, Quantity: ledger.Qty(1), CreatedAt: time.Now()}

	require.NoError(t, store.InsertTransaction(ctx, tx))
	assert.ErrorIs(t, store.InsertTransaction(ctx, tx), ledger.ErrDuplicateID)
}

func TestStore_UpsertAndDeleteTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tx := ledger.Transaction{ID: "t1", MaterialID: "m1", ProjectID: "p1", Type: ledger.TxOut, Quantity: ledger.Qty(20), CreatedAt: time.Now()}
	require.NoError(t, store.UpsertTransaction(ctx, tx))

	tx.Quantity = ledger.Qty(30)
	tx.DeliveryStatus = ledger.DeliveryDelivered
	require.NoError(t, store.UpsertTransaction(ctx, tx))

	all, err := store.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Quantity.Equal(ledger.Qty(30)))

	removed, err := store.DeleteTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, ledger.DeliveryDelivered, removed.DeliveryStatus)

	_, err = store.DeleteTransaction(ctx, "t1")
	assert.True(t, ledger.IsNotFound(err))
}

func TestStore_ListProjectTransactions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	for _, tx := range []ledger.Transaction{
		{ID: "a", MaterialID: "m1", ProjectID: "p1", Type: ledger.TxOut, Quantity: ledger.Qty(1), CreatedAt: now},
		{ID: "b", MaterialID: "m1", ProjectID: "p2", Type: ledger.TxOut, Quantity: ledger.Qty(1), CreatedAt: now},
		{ID: "c", MaterialID: "m1", Type: ledger.TxIn, Quantity: ledger.Qty(1), CreatedAt: now},
	} {
		require.NoError(t, store.InsertTransaction(ctx, tx))
	}

	txs, err := store.ListProjectTransactions(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.TransactionID("a"), txs[0].ID)
}

// =============================================================================
// PROJECTS / USERS
// =============================================================================

func TestStore_ProjectsAndUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := ledger.Project{ID: "p1", Name: "Lakeside Villa", ClientName: "Bob Smith", Address: "88 Lakeview Rd", Status: ledger.ProjectActive}
	require.NoError(t, store.UpsertProject(ctx, p))
	p.Status = ledger.ProjectCompleted
	require.NoError(t, store.UpsertProject(ctx, p))

	got, err := store.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	projects, err := store.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)

	require.NoError(t, store.DeleteProject(ctx, "p1"))
	assert.True(t, ledger.IsNotFound(store.DeleteProject(ctx, "p1")))

	u := ledger.User{ID: "u1", Name: "Admin User", Email: "admin@uniqid.com", Role: ledger.RoleAdmin}
	require.NoError(t, store.UpsertUser(ctx, u))
	gotUser, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, u, gotUser)

	_, err = store.GetUser(ctx, "u9")
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// UNITS OF WORK
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: Oak Flooring at 100
	// WHEN: A unit of work inserts a transaction, moves stock, then fails
	// THEN: Neither the record nor the stock change survives

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertMaterial(ctx, oak()))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(s ledger.Store) error {
		tx := ledger.Transaction{ID: "t1", MaterialID: "m1", ProjectID: "p1", Type: ledger.TxOut, Quantity: ledger.Qty(20), CreatedAt: time.Now()}
		if err := s.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		m, err := s.AdjustStock(ctx, "m1", ledger.Qty(-20))
		if err != nil {
			return err
		}
		// Reads inside the unit see its own writes.
		if !m.CurrentStock.Equal(ledger.Qty(80)) {
			return errors.New("unexpected stock")
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetTransaction(ctx, "t1")
	assert.True(t, ledger.IsNotFound(err))
	m, err := store.GetMaterial(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, m.CurrentStock.Equal(ledger.Qty(100)))
}

func TestStore_WithTx_Commits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertMaterial(ctx, oak()))

	err := store.WithTx(ctx, func(s ledger.Store) error {
		_, err := s.AdjustStock(ctx, "m1", ledger.Qty(5))
		return err
	})
	require.NoError(t, err)

	m, err := store.GetMaterial(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, m.CurrentStock.Equal(ledger.Qty(105)))
}

func TestStore_Reset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertMaterial(ctx, oak()))
	require.NoError(t, store.Reset(ctx))

	materials, err := store.ListMaterials(ctx)
	require.NoError(t, err)
	assert.Empty(t, materials)
}

// =============================================================================
// COORDINATOR OVER SQL
// =============================================================================

func TestCoordinator_SQL_NoDoubleDeduction(t *testing.T) {
	// GIVEN: Oak Flooring at 100 in SQLite
	// WHEN: Allocate 20, deliver, raise to 30, delete
	// THEN: 80, 80, 70, 100

	store := newTestStore(t)
	ctx := context.Background()
	coord := ledger.NewCoordinator(store, lock.NewLocal())

	_, err := coord.SaveProject(ctx, ledger.Project{ID: "p1", Name: "Skyline", Status: ledger.ProjectActive})
	require.NoError(t, err)
	_, err = coord.SaveMaterial(ctx, oak())
	require.NoError(t, err)

	stock := func() decimal.Decimal {
		m, err := store.GetMaterial(ctx, "m1")
		require.NoError(t, err)
		return m.CurrentStock
	}

	tx, err := coord.RecordTransaction(ctx, ledger.Transaction{MaterialID: "m1", ProjectID: "p1", Type: ledger.TxOut, Quantity: ledger.Qty(20)}, ledger.ApplyToWarehouse)
	require.NoError(t, err)
	assert.True(t, stock().Equal(ledger.Qty(80)))

	_, err = coord.SetDeliveryStatus(ctx, tx.ID, ledger.DeliveryDelivered)
	require.NoError(t, err)
	assert.True(t, stock().Equal(ledger.Qty(80)))

	_, err = coord.EditTransactionQuantity(ctx, tx.ID, ledger.Qty(30))
	require.NoError(t, err)
	assert.True(t, stock().Equal(ledger.Qty(70)))

	stored, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, stored.CreatedAt.Equal(tx.CreatedAt))

	_, err = coord.DeleteTransaction(ctx, tx.ID, ledger.ApplyToWarehouse)
	require.NoError(t, err)
	assert.True(t, stock().Equal(ledger.Qty(100)))
}
