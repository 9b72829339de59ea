package ledger

import (
	"context"
	"sync"
)

// StatsCache memoizes replay aggregates per project. Writers call
// Invalidate for every (project, material) pair they touch; the next read
// re-folds only the stale pairs with ComputePairStats.
//
// A read that overlaps an invalidation returns its own result but does not
// store it, so a replay of a pre-commit snapshot never sticks.
type StatsCache struct {
	mu       sync.Mutex
	projects map[ProjectID]*cachedProject
}

type cachedProject struct {
	stats map[MaterialID]StockStats // nil until the first full replay
	stale map[MaterialID]bool
	gen   uint64
}

func NewStatsCache() *StatsCache {
	return &StatsCache{projects: make(map[ProjectID]*cachedProject)}
}

// Invalidate marks one pair stale. An empty materialID drops the project.
func (c *StatsCache) Invalidate(projectID ProjectID, materialID MaterialID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.entry(projectID)
	p.gen++
	if materialID == "" {
		p.stats = nil
		p.stale = make(map[MaterialID]bool)
		return
	}
	p.stale[materialID] = true
}

// Stats returns the project's aggregates, loading transactions with load
// when anything must be recomputed.
func (c *StatsCache) Stats(ctx context.Context, projectID ProjectID, load func(context.Context) ([]Transaction, error)) (map[MaterialID]StockStats, error) {
	c.mu.Lock()
	p := c.entry(projectID)
	gen := p.gen
	if p.stats != nil && len(p.stale) == 0 {
		out := copyStats(p.stats)
		c.mu.Unlock()
		return out, nil
	}
	var (
		base  map[MaterialID]StockStats
		stale []MaterialID
	)
	if p.stats != nil {
		base = copyStats(p.stats)
		for id := range p.stale {
			stale = append(stale, id)
		}
	}
	c.mu.Unlock()

	txs, err := load(ctx)
	if err != nil {
		return nil, err
	}

	var stats map[MaterialID]StockStats
	if base == nil {
		stats = ComputeProjectStats(projectID, txs)
	} else {
		stats = base
		for _, id := range stale {
			if hasPair(projectID, id, txs) {
				stats[id] = ComputePairStats(projectID, id, txs)
			} else {
				delete(stats, id)
			}
		}
	}

	c.mu.Lock()
	if p := c.entry(projectID); p.gen == gen {
		p.stats = copyStats(stats)
		p.stale = make(map[MaterialID]bool)
	}
	c.mu.Unlock()
	return stats, nil
}

func (c *StatsCache) entry(projectID ProjectID) *cachedProject {
	p, ok := c.projects[projectID]
	if !ok {
		p = &cachedProject{stale: make(map[MaterialID]bool)}
		c.projects[projectID] = p
	}
	return p
}

func hasPair(projectID ProjectID, materialID MaterialID, txs []Transaction) bool {
	for _, tx := range txs {
		if tx.ProjectID == projectID && tx.MaterialID == materialID {
			return true
		}
	}
	return false
}

func copyStats(in map[MaterialID]StockStats) map[MaterialID]StockStats {
	out := make(map[MaterialID]StockStats, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Reset drops everything, for database resets.
func (c *StatsCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.projects {
		p.gen++
		p.stats = nil
		p.stale = make(map[MaterialID]bool)
	}
}
