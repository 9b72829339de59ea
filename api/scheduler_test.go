package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/site-ledger/ledger"
	"github.com/warp/site-ledger/ledger/store"
	"github.com/warp/site-ledger/logging"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []ledger.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, evs ...ledger.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evs...)
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestLowStockMonitor_ReportsOncePerDip(t *testing.T) {
	// GIVEN: White Paint below its reorder level
	// WHEN: Scanning twice, restocking, then dipping again
	// THEN: Reported on the first scan and after the second dip only

	ctx := context.Background()
	s := store.NewTxMemory()
	require.NoError(t, s.UpsertMaterial(ctx, ledger.Material{ID: "m2", Name: "White Paint", CurrentStock: ledger.Qty(5), MinStockLevel: ledger.Qty(20)}))
	require.NoError(t, s.UpsertMaterial(ctx, ledger.Material{ID: "m1", Name: "Oak Flooring", CurrentStock: ledger.Qty(1500), MinStockLevel: ledger.Qty(500)}))

	pub := &capturePublisher{}
	m := NewLowStockMonitor(ledger.NewQueries(s, nil), pub, logging.Nop())

	assert.Equal(t, 1, m.Check(ctx))
	assert.Equal(t, ledger.EventMaterialLowStock, pub.events[0].Type)
	assert.Equal(t, ledger.MaterialID("m2"), pub.events[0].MaterialID)
	assert.Equal(t, 0, m.Check(ctx))

	_, err := s.AdjustStock(ctx, "m2", ledger.Qty(100))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Check(ctx))

	_, err = s.AdjustStock(ctx, "m2", ledger.Qty(-100))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Check(ctx))
	assert.Equal(t, 2, pub.count())
}

func TestLowStockMonitor_RetriesAfterPublishFailure(t *testing.T) {
	ctx := context.Background()
	s := store.NewTxMemory()
	require.NoError(t, s.UpsertMaterial(ctx, ledger.Material{ID: "m3", Name: "Ceramic Tiles", CurrentStock: ledger.Qty(40), MinStockLevel: ledger.Qty(50)}))

	pub := &capturePublisher{err: errors.New("broker down")}
	m := NewLowStockMonitor(ledger.NewQueries(s, nil), pub, logging.Nop())

	assert.Equal(t, 0, m.Check(ctx))

	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()
	assert.Equal(t, 1, m.Check(ctx))
}

func TestLowStockMonitor_StartStop(t *testing.T) {
	ctx := context.Background()
	s := store.NewTxMemory()
	require.NoError(t, s.UpsertMaterial(ctx, ledger.Material{ID: "m2", Name: "White Paint", CurrentStock: ledger.Qty(5), MinStockLevel: ledger.Qty(20)}))

	pub := &capturePublisher{}
	m := NewLowStockMonitor(ledger.NewQueries(s, nil), pub, logging.Nop())
	m.CheckInterval = time.Hour
	m.Start()

	assert.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
	m.Stop()
	m.Stop()
}

// blockingStore holds the first ListMaterials call until release is closed.
type blockingStore struct {
	*store.TxMemory
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) ListMaterials(ctx context.Context) ([]ledger.Material, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.TxMemory.ListMaterials(ctx)
}

func TestLowStockMonitor_StopDuringScan(t *testing.T) {
	// GIVEN: A running monitor whose first scan is stuck in the store
	// WHEN: Stop is called mid-scan and the store is released afterwards
	// THEN: The scan finishes, the loop exits cleanly and Stop returns

	ctx := context.Background()
	s := &blockingStore{TxMemory: store.NewTxMemory(), entered: make(chan struct{}), release: make(chan struct{})}
	require.NoError(t, s.UpsertMaterial(ctx, ledger.Material{ID: "m2", Name: "White Paint", CurrentStock: ledger.Qty(5), MinStockLevel: ledger.Qty(20)}))

	pub := &capturePublisher{}
	m := NewLowStockMonitor(ledger.NewQueries(s, nil), pub, logging.Nop())
	m.CheckInterval = time.Millisecond
	m.Start()

	select {
	case <-s.entered:
	case <-time.After(time.Second):
		t.Fatal("scan never started")
	}

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	time.Sleep(20 * time.Millisecond)
	close(s.release)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, 1, pub.count())

	// restartable after a stop
	m.Start()
	m.Stop()
}

func TestLowStockMonitor_EventCarriesThreshold(t *testing.T) {
	ctx := context.Background()
	s := store.NewTxMemory()
	require.NoError(t, s.UpsertMaterial(ctx, ledger.Material{ID: "m2", Name: "White Paint", CurrentStock: ledger.Qty(5), MinStockLevel: ledger.Qty(20)}))

	pub := &capturePublisher{}
	m := NewLowStockMonitor(ledger.NewQueries(s, nil), pub, logging.Nop())
	require.Equal(t, 1, m.Check(ctx))

	ev := pub.events[0]
	assert.True(t, ev.Quantity.IsZero(), "no stock movement on a low-stock event")
	require.NotNil(t, ev.MinStockLevel)
	assert.True(t, ev.MinStockLevel.Equal(ledger.Qty(20)))
	require.NotNil(t, ev.StockAfter)
	assert.True(t, ev.StockAfter.Equal(ledger.Qty(5)))
}

func TestLowStockMonitor_Disabled(t *testing.T) {
	m := NewLowStockMonitor(ledger.NewQueries(store.NewTxMemory(), nil), &capturePublisher{}, nil)
	m.CheckInterval = 0
	m.Start()
	m.Stop()
}
