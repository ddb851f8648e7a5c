package history

import (
	"sync"
	"time"
)

// Notification is one dispatched (or attempted) deployment notification.
type Notification struct {
	Namespace    string    `json:"namespace"`
	Release      string    `json:"release"`
	Revision     string    `json:"revision"`
	ChartVersion string    `json:"chart_version"`
	AppVersion   string    `json:"app_version"`
	Delivered    bool      `json:"delivered"`
	Error        string    `json:"error,omitempty"`
	SentAt       time.Time `json:"sent_at"`
}

// Archive records dispatched notifications for later inspection. It is
// observability only: the dedup ledger, not the archive, decides whether a
// revision gets notified.
type Archive interface {
	Record(n Notification) error
	Recent(namespace string, limit int) ([]Notification, error)
}

// In-memory implementation for fallback
type MemoryArchive struct {
	mu      sync.RWMutex
	entries []Notification
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		entries: make([]Notification, 0),
	}
}

func (a *MemoryArchive) Record(n Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, n)
	return nil
}

// Recent returns newest-first entries, optionally filtered by namespace.
func (a *MemoryArchive) Recent(namespace string, limit int) ([]Notification, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	results := make([]Notification, 0, limit)
	for i := len(a.entries) - 1; i >= 0 && len(results) < limit; i-- {
		if namespace != "" && a.entries[i].Namespace != namespace {
			continue
		}
		results = append(results, a.entries[i])
	}
	return results, nil
}
