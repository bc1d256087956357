// Package engine implements the chat reconciliation session.
//
// A Session reconciles the contract's event stream into the views a chat
// client renders: the topic catalog, the message feed for the selected topic,
// the karma feed and the registration state of the active identity.
//
// ARCHITECTURE:
//
// Session-Scoped State:
// Everything derived belongs to the session of one identity. SwitchIdentity
// throws the catalog, dedup ledger, snapshot, cached views and rating caches
// away and restarts the registration machine. Results of collaborator calls
// that began under an earlier identity are dropped or reported as stale.
//
// Snapshot Processing Flow:
//  1. Refresh pulls the full event list from the collab.EventSource
//  2. Events without a timestamp are stamped once, at ingestion
//  3. The snapshot replaces the previous one and bumps the version counter
//  4. TopicCreated events are folded into the catalog, guarded by the ledger
//  5. Messages and Karma are recomputed lazily, memoized per version
//
// Run Loop:
// Run is a single goroutine reacting to change notifications, explicit
// wakeups after writes, and a re-check ticker. Errors inside the loop are
// logged and the loop continues. Session methods may also be called directly
// from any goroutine.
//
// Registration Race:
// A successful register marks the identity Registered immediately and opens
// the guard window. A read-based check that started earlier cannot regress
// that state: its result is ignored once the machine has left Checking, and
// automatic re-checks are suppressed while the window is open.
package engine
