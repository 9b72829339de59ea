package events

import (
	"context"
	"errors"

	"github.com/warp/site-ledger/ledger"
	"github.com/warp/site-ledger/logging"
)

// Log writes each event as a structured log line.
type Log struct {
	Logger *logging.Logger
}

func NewLog(logger *logging.Logger) *Log {
	return &Log{Logger: logger}
}

func (p *Log) Publish(_ context.Context, evs ...ledger.Event) error {
	for _, e := range evs {
		kv := []interface{}{"type", e.Type, "at", e.At}
		if e.TransactionID != "" {
			kv = append(kv, "transaction_id", e.TransactionID)
		}
		if e.MaterialID != "" {
			kv = append(kv, "material_id", e.MaterialID)
		}
		if e.ProjectID != "" {
			kv = append(kv, "project_id", e.ProjectID)
		}
		if e.DeliveryStatus != "" {
			kv = append(kv, "delivery_status", e.DeliveryStatus)
		}
		if !e.WarehouseDelta.IsZero() {
			kv = append(kv, "warehouse_delta", e.WarehouseDelta.String())
		}
		if e.StockAfter != nil {
			kv = append(kv, "stock_after", e.StockAfter.String())
		}
		if e.MinStockLevel != nil {
			kv = append(kv, "min_stock_level", e.MinStockLevel.String())
		}
		p.Logger.Info("ledger event", kv...)
	}
	return nil
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []ledger.Publisher

func (f Fanout) Publish(ctx context.Context, evs ...ledger.Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, evs...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
