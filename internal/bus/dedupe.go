package bus

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DedupeCache remembers recently seen keys so retransmitted messages can be
// dropped. Entries expire after ttl; the least recently seen key is evicted
// once maxSize is reached.
type DedupeCache struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, struct{}]
}

// NewDedupeCache creates a dedupe cache. maxSize <= 0 defaults to 5000.
func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	if maxSize <= 0 {
		maxSize = 5000
	}
	return &DedupeCache{
		lru: expirable.NewLRU[string, struct{}](maxSize, nil, ttl),
	}
}

// IsDuplicate returns true if key was already seen within the TTL window.
// If not a duplicate, records the key for future checks. Empty keys are
// never duplicates.
func (d *DedupeCache) IsDuplicate(key string) bool {
	if key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lru.Contains(key) {
		return true
	}
	d.lru.Add(key, struct{}{})
	return false
}

// Forget drops key so that its next sighting is not a duplicate.
func (d *DedupeCache) Forget(key string) {
	if key == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lru.Remove(key)
}

// Len returns the number of remembered keys.
func (d *DedupeCache) Len() int {
	return d.lru.Len()
}
