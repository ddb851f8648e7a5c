package ledger

import (
	"sync"
)

// Ledger answers whether a deployment event has already been notified.
// Keys are "namespace/name/revision" strings.
type Ledger interface {
	ShouldProcess(key string) bool
	MarkProcessed(key string)
}

// In-memory implementation. State is process-local and lost on restart, so a
// restart may re-notify for revisions whose events replay.
type MemoryLedger struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		seen: make(map[string]struct{}),
	}
}

// ShouldProcess reports whether the key has never been marked. It does not
// mutate the ledger.
func (l *MemoryLedger) ShouldProcess(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, exists := l.seen[key]
	return !exists
}

// MarkProcessed records the key. Marking an already-marked key is a no-op.
func (l *MemoryLedger) MarkProcessed(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[key] = struct{}{}
}

// Len returns the number of recorded keys.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.seen)
}
