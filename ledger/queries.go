/*
queries.go - Read side of the ledger

PURPOSE:
  Joins replay output with the material registry, the project list and the
  user directory for display: per-project stock, history, the delivery
  board and the warehouse low-stock list.

  Nothing here writes. Missing materials and performers are displayed as
  "Unknown" rather than failing the read. A deleted project keeps its
  ledger: stats and history are still computed from its transactions.

  Every read is bounded by Timeout, like coordinator operations.
*/
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// MaterialStock is one row of a project's stock table.
type MaterialStock struct {
	MaterialID MaterialID
	Name       string
	Unit       string
	Allocated  decimal.Decimal
	Current    decimal.Decimal
}

// HistoryEntry is a transaction with display names resolved.
type HistoryEntry struct {
	Transaction
	MaterialName  string
	Unit          string
	PerformerName string
}

type DeliveryView string

const (
	ViewActive  DeliveryView = "active"  // not yet delivered
	ViewHistory DeliveryView = "history" // delivered
)

type DeliveryGrouping string

const (
	GroupByDate    DeliveryGrouping = "date"
	GroupByProject DeliveryGrouping = "project"
)

type DeliveryFilter struct {
	View    DeliveryView
	GroupBy DeliveryGrouping
}

// DeliveryItem is one allocation on the delivery board.
type DeliveryItem struct {
	Transaction
	Status       DeliveryStatus
	MaterialName string
	Unit         string
	ProjectName  string
	Address      string
}

// DeliveryGroup holds board items sharing a date (YYYY-MM-DD, UTC) or a
// project. Items are newest first.
type DeliveryGroup struct {
	Key   string
	Label string
	Items []DeliveryItem
}

type Queries struct {
	Store   Store
	Cache   *StatsCache // optional
	Timeout time.Duration

	flight singleflight.Group
}

func NewQueries(store Store, cache *StatsCache) *Queries {
	return &Queries{Store: store, Cache: cache, Timeout: DefaultTimeout}
}

func (q *Queries) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := q.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// ProjectStats replays the project and returns one row per material it
// touched, sorted by name then id. Concurrent callers for one project share
// a replay; a caller that gives up does not cancel it for the others.
func (q *Queries) ProjectStats(ctx context.Context, projectID ProjectID) ([]MaterialStock, error) {
	ctx, cancel := q.bound(ctx)
	defer cancel()

	ch := q.flight.DoChan(string(projectID), func() (interface{}, error) {
		shared, done := q.bound(context.WithoutCancel(ctx))
		defer done()
		return q.projectStats(shared, projectID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		rows := res.Val.([]MaterialStock)
		out := make([]MaterialStock, len(rows))
		copy(out, rows)
		return out, nil
	}
}

// requireLedger fails with NotFound only for a project id that has neither
// a project row nor transactions.
func (q *Queries) requireLedger(ctx context.Context, projectID ProjectID) error {
	_, err := q.Store.GetProject(ctx, projectID)
	if !IsNotFound(err) {
		return WrapStorage("get project", err)
	}
	txs, lerr := q.Store.ListProjectTransactions(ctx, projectID)
	if lerr != nil {
		return WrapStorage("list project transactions", lerr)
	}
	if len(txs) == 0 {
		return err
	}
	return nil
}

func (q *Queries) projectStats(ctx context.Context, projectID ProjectID) ([]MaterialStock, error) {
	if err := q.requireLedger(ctx, projectID); err != nil {
		return nil, err
	}

	load := func(ctx context.Context) ([]Transaction, error) {
		txs, err := q.Store.ListProjectTransactions(ctx, projectID)
		return txs, WrapStorage("list project transactions", err)
	}
	var (
		stats map[MaterialID]StockStats
		err   error
	)
	if q.Cache != nil {
		stats, err = q.Cache.Stats(ctx, projectID, load)
	} else {
		var txs []Transaction
		if txs, err = load(ctx); err == nil {
			stats = ComputeProjectStats(projectID, txs)
		}
	}
	if err != nil {
		return nil, err
	}

	materials, err := q.materialIndex(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]MaterialStock, 0, len(stats))
	for id, s := range stats {
		row := MaterialStock{MaterialID: id, Name: UnknownMaterialName, Allocated: s.Allocated, Current: s.Current}
		if m, ok := materials[id]; ok {
			row.Name = m.Name
			row.Unit = m.Unit
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Name == rows[j].Name {
			return rows[i].MaterialID < rows[j].MaterialID
		}
		return rows[i].Name < rows[j].Name
	})
	return rows, nil
}

// ProjectHistory returns the project's non-CHECK transactions, newest first.
func (q *Queries) ProjectHistory(ctx context.Context, projectID ProjectID) ([]HistoryEntry, error) {
	ctx, cancel := q.bound(ctx)
	defer cancel()

	txs, err := q.Store.ListProjectTransactions(ctx, projectID)
	if err != nil {
		return nil, WrapStorage("list project transactions", err)
	}
	if len(txs) == 0 {
		if _, err := q.Store.GetProject(ctx, projectID); err != nil {
			return nil, WrapStorage("get project", err)
		}
	}
	materials, err := q.materialIndex(ctx)
	if err != nil {
		return nil, err
	}
	users, err := q.userIndex(ctx)
	if err != nil {
		return nil, err
	}

	history := ComputeProjectHistory(projectID, txs)
	out := make([]HistoryEntry, 0, len(history))
	for _, tx := range history {
		e := HistoryEntry{Transaction: tx, MaterialName: UnknownMaterialName, PerformerName: UnknownName}
		if m, ok := materials[tx.MaterialID]; ok {
			e.MaterialName = m.Name
			e.Unit = m.Unit
		}
		if u, ok := users[tx.PerformedBy]; ok {
			e.PerformerName = u.Name
		}
		out = append(out, e)
	}
	return out, nil
}

// ProjectTransactionsOfType returns one project's transactions of type t,
// newest first. Used for the allocations, stock-check and returns tabs.
func (q *Queries) ProjectTransactionsOfType(ctx context.Context, projectID ProjectID, t TxType) ([]Transaction, error) {
	ctx, cancel := q.bound(ctx)
	defer cancel()

	txs, err := q.Store.ListProjectTransactions(ctx, projectID)
	if err != nil {
		return nil, WrapStorage("list project transactions", err)
	}
	out := make([]Transaction, 0)
	for _, tx := range txs {
		if tx.Type == t {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return chronological(out[j], out[i]) })
	return out, nil
}

// DeliveryBoard lists allocations of projects that exist and are not
// COMPLETED, split by view and grouped as requested.
func (q *Queries) DeliveryBoard(ctx context.Context, f DeliveryFilter) ([]DeliveryGroup, error) {
	ctx, cancel := q.bound(ctx)
	defer cancel()

	if f.View == "" {
		f.View = ViewActive
	}
	if f.GroupBy == "" {
		f.GroupBy = GroupByDate
	}
	if f.View != ViewActive && f.View != ViewHistory {
		return nil, invalid("view", "must be active or history")
	}
	if f.GroupBy != GroupByDate && f.GroupBy != GroupByProject {
		return nil, invalid("group_by", "must be date or project")
	}

	txs, err := q.Store.ListTransactions(ctx)
	if err != nil {
		return nil, WrapStorage("list transactions", err)
	}
	projects, err := q.Store.ListProjects(ctx)
	if err != nil {
		return nil, WrapStorage("list projects", err)
	}
	byProject := make(map[ProjectID]Project, len(projects))
	for _, p := range projects {
		byProject[p.ID] = p
	}
	materials, err := q.materialIndex(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]DeliveryItem, 0)
	for _, tx := range txs {
		if !tx.IsAllocation() {
			continue
		}
		p, ok := byProject[tx.ProjectID]
		if !ok || p.Status == ProjectCompleted {
			continue
		}
		if tx.IsDelivered() != (f.View == ViewHistory) {
			continue
		}
		item := DeliveryItem{
			Transaction:  tx,
			Status:       tx.EffectiveDeliveryStatus(),
			MaterialName: UnknownMaterialName,
			ProjectName:  p.Name,
			Address:      p.Address,
		}
		if m, ok := materials[tx.MaterialID]; ok {
			item.MaterialName = m.Name
			item.Unit = m.Unit
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool { return chronological(items[j].Transaction, items[i].Transaction) })

	index := make(map[string]int)
	groups := make([]DeliveryGroup, 0)
	for _, item := range items {
		key, label := item.CreatedAt.UTC().Format("2006-01-02"), item.CreatedAt.UTC().Format("Mon, Jan 2 2006")
		if f.GroupBy == GroupByProject {
			key, label = string(item.ProjectID), item.ProjectName
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DeliveryGroup{Key: key, Label: label})
		}
		groups[i].Items = append(groups[i].Items, item)
	}

	if f.GroupBy == GroupByProject {
		sort.SliceStable(groups, func(i, j int) bool {
			if groups[i].Label == groups[j].Label {
				return groups[i].Key < groups[j].Key
			}
			return groups[i].Label < groups[j].Label
		})
	}
	// Date groups are already newest first from the item order.
	return groups, nil
}

// PendingDeliveryCount counts allocations that are not yet DELIVERED,
// whatever their project's status.
func (q *Queries) PendingDeliveryCount(ctx context.Context) (int, error) {
	ctx, cancel := q.bound(ctx)
	defer cancel()

	txs, err := q.Store.ListTransactions(ctx)
	if err != nil {
		return 0, WrapStorage("list transactions", err)
	}
	n := 0
	for _, tx := range txs {
		if tx.IsAllocation() && !tx.IsDelivered() {
			n++
		}
	}
	return n, nil
}

// LowStock returns materials at or below their reorder level, by name.
func (q *Queries) LowStock(ctx context.Context) ([]Material, error) {
	ctx, cancel := q.bound(ctx)
	defer cancel()

	materials, err := q.Store.ListMaterials(ctx)
	if err != nil {
		return nil, WrapStorage("list materials", err)
	}
	out := make([]Material, 0)
	for _, m := range materials {
		if m.IsLowStock() {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (q *Queries) materialIndex(ctx context.Context) (map[MaterialID]Material, error) {
	materials, err := q.Store.ListMaterials(ctx)
	if err != nil {
		return nil, WrapStorage("list materials", err)
	}
	idx := make(map[MaterialID]Material, len(materials))
	for _, m := range materials {
		idx[m.ID] = m
	}
	return idx, nil
}

func (q *Queries) userIndex(ctx context.Context) (map[UserID]User, error) {
	users, err := q.Store.ListUsers(ctx)
	if err != nil {
		return nil, WrapStorage("list users", err)
	}
	idx := make(map[UserID]User, len(users))
	for _, u := range users {
		idx[u.ID] = u
	}
	return idx, nil
}
