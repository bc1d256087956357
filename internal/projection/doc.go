// Package projection derives the chat views from an event snapshot.
//
// Two strategies coexist:
//
// Recomputed views (Messages, Karma) are pure functions of the snapshot and,
// for messages, a topic filter. They hold no state, so running them twice on
// the same input yields identical, order-preserving output and re-delivery of
// events cannot double-count anything.
//
// The topic Catalog is the one stateful fold. It grows monotonically (topics
// are never removed or renamed) and consults a ledger.Ledger so that the same
// TopicCreated occurrence is applied at most once no matter how many times the
// full history is delivered.
package projection
