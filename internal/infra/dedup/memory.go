package dedup

import (
	"context"
	"sync"
	"time"

	"checkout-saga/internal/pkg/clock"
)

// MemoryDeduplicator keeps claims in process memory. Expired keys are
// pruned by a full scan at most once per ttl.
type MemoryDeduplicator struct {
	mu        sync.Mutex
	clock     clock.Clock
	ttl       time.Duration
	claims    map[string]time.Time
	nextPrune time.Time
}

func NewMemoryDeduplicator(clock clock.Clock, ttl time.Duration) *MemoryDeduplicator {
	return &MemoryDeduplicator{
		clock:  clock,
		ttl:    ttl,
		claims: make(map[string]time.Time),
	}
}

func (d *MemoryDeduplicator) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.Now()
	d.prune(now)
	if expiresAt, ok := d.claims[key]; ok && (d.ttl <= 0 || now.Before(expiresAt)) {
		return false, nil
	}
	d.claims[key] = now.Add(d.ttl)
	return true, nil
}

// prune must be called with mu held.
func (d *MemoryDeduplicator) prune(now time.Time) {
	if d.ttl <= 0 || now.Before(d.nextPrune) {
		return
	}
	for key, expiresAt := range d.claims {
		if !now.Before(expiresAt) {
			delete(d.claims, key)
		}
	}
	d.nextPrune = now.Add(d.ttl)
}

func (d *MemoryDeduplicator) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claims, key)
	return nil
}
