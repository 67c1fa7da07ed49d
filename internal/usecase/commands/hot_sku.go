package commands

import (
	"sync"
	"time"
)

// hotSKUTracker switches a SKU to row locking once it loses threshold CAS
// races inside one window, and keeps it there for cooldown.
type hotSKUTracker struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	cooldown  time.Duration
	entries   map[string]*hotEntry
}

type hotEntry struct {
	windowStart time.Time
	conflicts   int
	hotUntil    time.Time
}

func newHotSKUTracker(threshold int, window, cooldown time.Duration) *hotSKUTracker {
	return &hotSKUTracker{
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		entries:   make(map[string]*hotEntry),
	}
}

func (h *hotSKUTracker) isHot(sku string, now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[sku]
	if !ok {
		return false
	}
	if now.Before(e.hotUntil) {
		return true
	}
	if !e.hotUntil.IsZero() || now.Sub(e.windowStart) > h.window {
		delete(h.entries, sku)
	}
	return false
}

// recordConflict returns true when this conflict flips sku into pessimistic mode.
func (h *hotSKUTracker) recordConflict(sku string, now time.Time) bool {
	if h.threshold <= 0 {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[sku]
	if !ok || now.Sub(e.windowStart) > h.window {
		e = &hotEntry{windowStart: now}
		h.entries[sku] = e
	}
	if now.Before(e.hotUntil) {
		return false
	}
	e.conflicts++
	if e.conflicts >= h.threshold {
		e.hotUntil = now.Add(h.cooldown)
		return true
	}
	return false
}
