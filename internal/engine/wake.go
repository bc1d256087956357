package engine

import "sync"

// wakeup is a coalescing signal for the Run loop.
//
// Kick never blocks: the buffer of one collapses a burst of kicks into a
// single wakeup, since the loop always re-reads the full snapshot.
type wakeup struct {
	mu     sync.Mutex
	closed bool
	signal chan struct{}
}

func newWakeup() *wakeup {
	return &wakeup{signal: make(chan struct{}, 1)}
}

// Kick requests a loop iteration. Returns false after Close.
func (w *wakeup) Kick() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false
	}
	select {
	case w.signal <- struct{}{}:
	default:
	}
	return true
}

// Wait returns the channel to select on. It is closed by Close.
func (w *wakeup) Wait() <-chan struct{} {
	return w.signal
}

// Close wakes all waiters and disables further kicks.
func (w *wakeup) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	close(w.signal)
}
