// Package store provides bounded track-id set storage backed by a Bloom
// filter fast path and an LRU eviction policy.
package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// TrackSet is a thread-safe set of track identifiers. Lookups hit a Bloom
// filter first so the common "not a member" case never touches the map; the
// exact map keeps correctness, the LRU bounds memory per playlist. The Bloom
// filter cannot forget removed ids, which only costs an extra map lookup.
type TrackSet struct {
	ids               map[string]struct{}
	bloom             *bloom.BloomFilter
	recency           *lru.Cache[string, struct{}]
	mutex             sync.RWMutex
	capacity          int
	falsePositiveRate float64
}

// NewTrackSet creates a set bounded to capacity ids with the given Bloom
// false positive rate.
func NewTrackSet(capacity int, falsePositiveRate float64) *TrackSet {
	if capacity <= 0 {
		panic("track set capacity must be positive")
	}

	recency, _ := lru.New[string, struct{}](capacity)

	return &TrackSet{
		ids:               make(map[string]struct{}),
		bloom:             bloom.NewWithEstimates(uint(capacity), falsePositiveRate),
		recency:           recency,
		capacity:          capacity,
		falsePositiveRate: falsePositiveRate,
	}
}

// Has reports whether trackID is in the set.
func (ts *TrackSet) Has(trackID string) bool {
	ts.mutex.RLock()
	defer ts.mutex.RUnlock()

	if !ts.bloom.TestString(trackID) {
		return false
	}

	_, exists := ts.ids[trackID]
	return exists
}

// Add inserts trackID, evicting the least recently inserted id when the set
// is at capacity.
func (ts *TrackSet) Add(trackID string) {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	if _, exists := ts.ids[trackID]; exists {
		return
	}

	ts.ids[trackID] = struct{}{}
	ts.bloom.AddString(trackID)
	ts.recency.Add(trackID, struct{}{})

	if len(ts.ids) > ts.capacity {
		ts.evictOldest()
	}
}

// Remove deletes trackID from the set. The Bloom filter retains the id; the
// exact map stays authoritative.
func (ts *TrackSet) Remove(trackID string) {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	if _, exists := ts.ids[trackID]; !exists {
		return
	}

	delete(ts.ids, trackID)
	ts.recency.Remove(trackID)
}

// Load replaces the contents of the set with the given ids, skipping empties.
func (ts *TrackSet) Load(trackIDs []string) {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	ts.ids = make(map[string]struct{}, len(trackIDs))
	ts.bloom = bloom.NewWithEstimates(uint(ts.capacity), ts.falsePositiveRate)
	ts.recency.Purge()

	for _, trackID := range trackIDs {
		if trackID == "" {
			continue
		}
		ts.ids[trackID] = struct{}{}
		ts.bloom.AddString(trackID)
		ts.recency.Add(trackID, struct{}{})
	}

	for len(ts.ids) > ts.capacity {
		ts.evictOldest()
	}
}

// Size returns the number of ids currently in the set.
func (ts *TrackSet) Size() int {
	ts.mutex.RLock()
	defer ts.mutex.RUnlock()
	return len(ts.ids)
}

func (ts *TrackSet) evictOldest() {
	oldest, _, ok := ts.recency.GetOldest()
	if !ok {
		return
	}

	delete(ts.ids, oldest)
	ts.recency.Remove(oldest)
}
