package analysis

import (
	"sync"

	"github.com/roach88/lumen/internal/store"
)

// RootCache keeps chord analyses in memory across runs, keyed by track
// id. Entries never expire on their own; callers invalidate with Remove
// when a track is reanalyzed or deleted. Safe for concurrent use.
type RootCache struct {
	mu    sync.RWMutex
	cache map[int64]store.RootAnalysis
}

// NewRootCache returns an empty cache.
func NewRootCache() *RootCache {
	return &RootCache{cache: make(map[int64]store.RootAnalysis)}
}

// Get returns the cached analysis for a track, or ok=false on a miss.
func (c *RootCache) Get(trackID int64) (store.RootAnalysis, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	analysis, ok := c.cache[trackID]
	return analysis, ok
}

// Put stores an analysis, replacing any prior entry for the track.
func (c *RootCache) Put(trackID int64, analysis store.RootAnalysis) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[trackID] = analysis
}

// Remove drops the cached analysis for a track.
func (c *RootCache) Remove(trackID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, trackID)
}

// Len reports the number of cached analyses.
func (c *RootCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
