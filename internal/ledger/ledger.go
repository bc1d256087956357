// Package ledger records which event identities have already been folded
// into stateful derived data.
package ledger

import (
	"sync"

	"github.com/roach88/chatsync/internal/event"
)

// Ledger is an append-only set of dedup keys for one session.
//
// Only the topic catalog fold consults the ledger. Message and karma views are
// recomputed from the full snapshot on every change and need no bookkeeping.
//
// DISTINCTION from the catalog's own id check:
//   - Ledger: "Have we applied this event occurrence?" (per tx hash + log index)
//   - Catalog: "Do we already know this topic id?" (per topic)
//
// An event for an already-known id is still recorded so later snapshots stop
// re-scanning it.
//
// Thread-safety: all methods are safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	applied map[event.DedupKey]struct{}
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		applied: make(map[event.DedupKey]struct{}),
	}
}

// Seen reports whether key has already been applied.
func (l *Ledger) Seen(key event.DedupKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.applied[key]
	return ok
}

// Record marks key as applied. Returns false if it was already present.
func (l *Ledger) Record(key event.DedupKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.applied[key]; ok {
		return false
	}
	l.applied[key] = struct{}{}
	return true
}

// Len returns the number of applied keys.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.applied)
}

// Reset drops all keys. Used when the active identity changes.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.applied = make(map[event.DedupKey]struct{})
}
