package events

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultDedupCapacity bounds the seen-id set when no capacity is configured.
const DefaultDedupCapacity = 10000

// Deduplicator is a bounded set of seen event ids. Eviction is handled by the
// underlying LRU at capacity; callers must not depend on eviction order.
// Duplicates only occur within one polling window, so approximate eviction is
// sufficient.
type Deduplicator struct {
	cache *lru.Cache[string, struct{}]
}

// NewDeduplicator creates a Deduplicator holding at most capacity ids.
func NewDeduplicator(capacity int) (*Deduplicator, error) {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	cache, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &Deduplicator{cache: cache}, nil
}

// Seen reports whether the id has been remembered before.
func (d *Deduplicator) Seen(id string) bool {
	return d.cache.Contains(id)
}

// Remember records the id, evicting the least recently used entry when the
// set is full.
func (d *Deduplicator) Remember(id string) {
	d.cache.Add(id, struct{}{})
}

// Len returns the number of remembered ids.
func (d *Deduplicator) Len() int {
	return d.cache.Len()
}

// Clear empties the set.
func (d *Deduplicator) Clear() {
	d.cache.Purge()
}
