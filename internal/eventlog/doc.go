// Package eventlog provides a SQLite-backed capture log of contract events.
//
// The log records what an event source delivered so a session can be
// replayed offline. It is not engine persistence: sessions always rebuild
// their views from the full snapshot.
//
// # Critical Patterns
//
// Event-Level Idempotency:
//   - UNIQUE(tx_hash, log_index) constraint, the event's dedup key
//   - Append uses ON CONFLICT DO NOTHING, so re-importing a capture is a no-op
//
// Arrival Order:
//   - seq INTEGER PRIMARY KEY records first-append order
//   - Events always returns rows ORDER BY seq ASC
//
// Canonical Args:
//   - args column holds canonical JSON (internal/canonical)
//   - Numbers are decoded as json.Number so large integers survive
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package eventlog
