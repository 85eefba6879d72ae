package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// DefaultRefreshEvery is how many tag-affecting mutations make the usage counts stale.
const DefaultRefreshEvery = 100

// UsageLoader reads fresh per-tag usage counts.
type UsageLoader func(ctx context.Context, q sqlx.QueryerContext) (map[int64]int64, error)

// TagUsage caches how many objects each tag is attached to. The counts only
// steer query planning, so they may lag behind the data until refreshed.
type TagUsage struct {
	mu           sync.Mutex
	load         UsageLoader
	refreshEvery int
	counts       map[int64]int64
	pending      int
	loaded       bool
}

// NewTagUsage returns an empty cache. A nil loader reads object_tags.
func NewTagUsage(refreshEvery int, load UsageLoader) *TagUsage {
	if refreshEvery <= 0 {
		refreshEvery = DefaultRefreshEvery
	}
	if load == nil {
		load = TagUsageCounts
	}
	return &TagUsage{load: load, refreshEvery: refreshEvery}
}

// Invalidate records one tag-affecting mutation.
func (c *TagUsage) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending++
	if c.pending >= c.refreshEvery {
		c.loaded = false
	}
}

// Refresh reloads the counts now.
func (c *TagUsage) Refresh(ctx context.Context, q sqlx.QueryerContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reload(ctx, q)
}

func (c *TagUsage) reload(ctx context.Context, q sqlx.QueryerContext) error {
	counts, err := c.load(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to load tag usage: %w", err)
	}
	c.counts = counts
	c.pending = 0
	c.loaded = true
	return nil
}

// LeastUsed returns the id among ids attached to the fewest objects,
// loading the counts first if they are stale. Ties go to the earlier id in ids.
func (c *TagUsage) LeastUsed(ctx context.Context, q sqlx.QueryerContext, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		if err := c.reload(ctx, q); err != nil {
			return 0, err
		}
	}
	best := ids[0]
	for _, id := range ids[1:] {
		if c.counts[id] < c.counts[best] {
			best = id
		}
	}
	return best, nil
}

// Counts returns a copy of the cached counts.
func (c *TagUsage) Counts() map[int64]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int64]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
