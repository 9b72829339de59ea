/*
scheduler.go - Low-stock monitor

PURPOSE:
  Periodically scans the warehouse registry and publishes a
  material.low_stock event for every material that has dropped to or below
  its reorder level since the previous scan. The notification service
  consumes these events.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Remembers which materials were already reported; a material is
    reported again only after it recovered above its threshold
  - Publishing failures are logged; the next scan retries them

USAGE:
  monitor := NewLowStockMonitor(queries, publisher, logger)
  monitor.CheckInterval = 15 * time.Minute
  monitor.Start()
  // ... later
  monitor.Stop()
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/site-ledger/ledger"
	"github.com/warp/site-ledger/logging"
)

// LowStockMonitor reports materials that need reordering.
type LowStockMonitor struct {
	Queries       *ledger.Queries
	Publisher     ledger.Publisher
	Logger        *logging.Logger
	CheckInterval time.Duration
	Enabled       bool
	Clock         func() time.Time

	running  bool
	stop     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	scanMu   sync.Mutex
	reported map[ledger.MaterialID]bool
}

// NewLowStockMonitor creates a new monitor.
func NewLowStockMonitor(queries *ledger.Queries, publisher ledger.Publisher, logger *logging.Logger) *LowStockMonitor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &LowStockMonitor{
		Queries:       queries,
		Publisher:     publisher,
		Logger:        logger,
		CheckInterval: 15 * time.Minute,
		Enabled:       true,
		Clock:         func() time.Time { return time.Now().UTC() },
		reported:      make(map[ledger.MaterialID]bool),
	}
}

// Start begins the monitor.
func (m *LowStockMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Enabled || m.CheckInterval <= 0 {
		m.Logger.Info("low-stock monitor disabled")
		return
	}

	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	ticker := time.NewTicker(m.CheckInterval)
	m.wg.Add(1)
	go m.run(ticker, m.stop)

	m.Logger.Info("low-stock monitor started", "interval", m.CheckInterval)
}

// Stop stops the monitor and waits for an in-flight scan.
func (m *LowStockMonitor) Stop() {
	m.mu.Lock()
	running, stop := m.running, m.stop
	m.running = false
	m.mu.Unlock()

	if running {
		close(stop)
		m.wg.Wait()
		m.Logger.Info("low-stock monitor stopped")
	}
}

// run owns the ticker; stop is the only shutdown signal.
func (m *LowStockMonitor) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer m.wg.Done()
	defer ticker.Stop()

	// Run immediately on start
	m.Check(context.Background())

	for {
		select {
		case <-ticker.C:
			m.Check(context.Background())
		case <-stop:
			return
		}
	}
}

// Check runs one scan and returns how many materials were newly reported.
func (m *LowStockMonitor) Check(ctx context.Context) int {
	low, err := m.Queries.LowStock(ctx)
	if err != nil {
		m.Logger.Error("low-stock scan failed", "error", err)
		return 0
	}

	m.scanMu.Lock()
	defer m.scanMu.Unlock()

	current := make(map[ledger.MaterialID]bool, len(low))
	var events []ledger.Event
	now := m.Clock()
	for _, mat := range low {
		current[mat.ID] = true
		if m.reported[mat.ID] {
			continue
		}
		stock, threshold := mat.CurrentStock, mat.MinStockLevel
		events = append(events, ledger.Event{
			Type:          ledger.EventMaterialLowStock,
			MaterialID:    mat.ID,
			StockAfter:    &stock,
			MinStockLevel: &threshold,
			At:            now,
		})
	}

	if len(events) > 0 {
		if err := m.Publisher.Publish(ctx, events...); err != nil {
			m.Logger.Error("publish low-stock events", "error", err, "count", len(events))
			return 0
		}
		m.Logger.Info("low-stock materials reported", "count", len(events))
	}

	// Recovered materials drop out and can be reported again later.
	m.reported = current
	return len(events)
}
