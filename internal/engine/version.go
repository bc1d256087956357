package engine

import "sync/atomic"

// Version is the session's monotonic snapshot version counter.
//
// Every snapshot change and every identity switch takes the next value.
// Derived views are memoized against it, so a view is recomputed only when
// the version it was computed for is no longer current.
//
// Thread-safety: Version is safe for concurrent use (atomic operations).
type Version struct {
	n atomic.Uint64
}

// Next advances the counter and returns the new value.
func (v *Version) Next() uint64 {
	return v.n.Add(1)
}

// Current returns the current value without advancing.
func (v *Version) Current() uint64 {
	return v.n.Load()
}
