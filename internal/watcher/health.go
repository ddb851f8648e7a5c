package watcher

import (
	"sync"
	"time"
)

// Health tracks the last-seen-event time per namespace. Each namespace
// watcher writes only its own entry; the watchdog and the API read all of
// them, so access goes through a lock.
type Health struct {
	mu        sync.RWMutex
	lastEvent map[string]time.Time
}

func NewHealth() *Health {
	return &Health{
		lastEvent: make(map[string]time.Time),
	}
}

func (h *Health) Touch(namespace string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastEvent[namespace] = time.Now()
}

// LastEvent returns the time of the namespace's most recent watch event.
// The second return is false if no event has ever been seen.
func (h *Health) LastEvent(namespace string) (time.Time, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.lastEvent[namespace]
	return t, ok
}

// Snapshot copies the full map for reporting.
func (h *Health) Snapshot() map[string]time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]time.Time, len(h.lastEvent))
	for ns, t := range h.lastEvent {
		out[ns] = t
	}
	return out
}
