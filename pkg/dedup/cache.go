package dedup

import (
	"sort"
	"sync"
)

// verdictCache remembers definitive arbitration answers across scans so a
// pair is never re-arbitrated. Failed arbitrations are deliberately not
// cached; they are retried on the next scan.
type verdictCache struct {
	mu       sync.RWMutex
	verdicts map[pair]bool
}

func newVerdictCache() *verdictCache {
	return &verdictCache{
		verdicts: make(map[pair]bool),
	}
}

func (c *verdictCache) get(p pair) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	same, ok := c.verdicts[p]
	return same, ok
}

func (c *verdictCache) put(p pair, same bool) {
	c.mu.Lock()
	c.verdicts[p] = same
	c.mu.Unlock()
}

func (c *verdictCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.verdicts)
}

// snapshot returns every cached verdict sorted by pair for stable output.
func (c *verdictCache) snapshot() []verdictRecord {
	c.mu.RLock()
	records := make([]verdictRecord, 0, len(c.verdicts))
	for p, same := range c.verdicts {
		records = append(records, verdictRecord{Left: p.left, Right: p.right, Same: same})
	}
	c.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].Left != records[j].Left {
			return records[i].Left < records[j].Left
		}
		return records[i].Right < records[j].Right
	})
	return records
}

// seed loads previously persisted verdicts without overwriting newer ones.
func (c *verdictCache) seed(records []verdictRecord) {
	c.mu.Lock()
	for _, r := range records {
		p := pairOf(r.Left, r.Right)
		if _, ok := c.verdicts[p]; !ok {
			c.verdicts[p] = r.Same
		}
	}
	c.mu.Unlock()
}
