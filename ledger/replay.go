/*
replay.go - Site stock derivation by ledger replay

PURPOSE:
  Site stock is never stored. Every read folds the project's transactions
  in chronological order into per-material aggregates.

FOLD RULES (per (project, material) pair):
  OUT, DELIVERED      allocated += q, current += q
  OUT, not delivered  allocated += q               (not on site yet)
  IN                  current -= q                 (return to warehouse)
  CHECK               current = q                  (physical count wins)
  ADJUST              ignored                      (warehouse-only note)

ORDERING:
  Ascending CreatedAt. Transactions with the same CreatedAt are ordered by
  ID (byte-wise). Store scans are unordered, so without the ID tie-break two
  replays of the same set could disagree on a CHECK sitting next to an OUT.

  Current is not clamped: a CHECK of 5 followed by a return of 8 yields -3.
*/
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// chronological reports whether a replays before b.
func chronological(a, b Transaction) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// SortChronological sorts in replay order, in place.
func SortChronological(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool { return chronological(txs[i], txs[j]) })
}

func projectSlice(projectID ProjectID, txs []Transaction) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.ProjectID == projectID {
			out = append(out, tx)
		}
	}
	return out
}

// ComputeProjectStats replays a project's transactions into per-material
// aggregates. txs may be the full set or any superset of the project's
// transactions; the input slice is not modified.
func ComputeProjectStats(projectID ProjectID, txs []Transaction) map[MaterialID]StockStats {
	own := projectSlice(projectID, txs)
	SortChronological(own)

	stats := make(map[MaterialID]StockStats)
	for _, tx := range own {
		stats[tx.MaterialID] = fold(stats[tx.MaterialID], tx)
	}
	return stats
}

// ComputePairStats replays a single (project, material) pair.
func ComputePairStats(projectID ProjectID, materialID MaterialID, txs []Transaction) StockStats {
	own := make([]Transaction, 0)
	for _, tx := range txs {
		if tx.ProjectID == projectID && tx.MaterialID == materialID {
			own = append(own, tx)
		}
	}
	SortChronological(own)

	var s StockStats
	for _, tx := range own {
		s = fold(s, tx)
	}
	return s
}

func fold(s StockStats, tx Transaction) StockStats {
	switch tx.Type {
	case TxOut:
		s.Allocated = s.Allocated.Add(tx.Quantity)
		if tx.IsDelivered() {
			s.Current = s.Current.Add(tx.Quantity)
		}
	case TxIn:
		s.Current = s.Current.Sub(tx.Quantity)
	case TxCheck:
		s.Current = tx.Quantity
	}
	return s
}

// ComputeProjectHistory returns the project's transactions newest first,
// without CHECK entries.
func ComputeProjectHistory(projectID ProjectID, txs []Transaction) []Transaction {
	out := make([]Transaction, 0)
	for _, tx := range txs {
		if tx.ProjectID == projectID && tx.Type != TxCheck {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return chronological(out[j], out[i]) })
	return out
}

// TotalAllocated sums Allocated across the map. Used by reports.
func TotalAllocated(stats map[MaterialID]StockStats) decimal.Decimal {
	total := decimal.Zero
	for _, s := range stats {
		total = total.Add(s.Allocated)
	}
	return total
}
