package audio

import "sync"

type stemKey struct {
	trackID int64
	stem    string
}

type stemEntry struct {
	samples    []float32
	sampleRate int
}

// StemCache holds decoded stem audio across runs, keyed by
// (track id, stem name). Entries never expire on their own; callers
// invalidate with RemoveTrack when a track's stems are reprocessed or
// the track is deleted. Safe for concurrent use.
type StemCache struct {
	mu    sync.Mutex
	cache map[stemKey]stemEntry
}

// NewStemCache returns an empty cache.
func NewStemCache() *StemCache {
	return &StemCache{cache: make(map[stemKey]stemEntry)}
}

// Get returns the cached samples for a stem, or ok=false on a miss.
// The returned slice is shared; callers must not mutate it.
func (c *StemCache) Get(trackID int64, stem string) ([]float32, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[stemKey{trackID: trackID, stem: stem}]
	return entry.samples, entry.sampleRate, ok
}

// Put stores decoded samples for a stem, replacing any prior entry.
func (c *StemCache) Put(trackID int64, stem string, samples []float32, sampleRate int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[stemKey{trackID: trackID, stem: stem}] = stemEntry{samples: samples, sampleRate: sampleRate}
}

// RemoveTrack drops every stem cached for the track.
func (c *StemCache) RemoveTrack(trackID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.cache {
		if key.trackID == trackID {
			delete(c.cache, key)
		}
	}
}

// Len reports the number of cached stems.
func (c *StemCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}
