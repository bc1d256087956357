// Package harness runs scripted conversations against a live Session.
//
// A scenario is a YAML file describing an in-memory chain (seeded users and
// topics, synchronous or asynchronous confirmation), a flow of steps that
// drive the session and the chain, and assertions over the resulting trace
// and the session's final views.
//
// Every step is executed against the real engine: the session talks to a
// simchain.Chain through the same collaborator interfaces a production
// client uses. After each step the harness runs one Session.Sync, as the run
// loop would on a change notification, unless the scenario sets
// manual_sync.
//
// Scenarios run on a testutil.ManualClock starting at testutil.Epoch and a
// fixed session id, so traces and view snapshots are byte-for-byte
// reproducible and can be compared against golden files:
//
//	go test ./internal/harness -update
//
// Supported steps:
//
//	switch_identity {identity}      connect the wallet and switch the session
//	connect {identity}              connect the wallet only
//	register {name}
//	send {text}
//	like {msg_id} / dislike {msg_id}
//	create_topic {name}
//	rate_topic {topic_id, rating}
//	topic_rating {topic_id} / user_topic_rating {topic_id}
//	select_topic {topic_id}
//	refresh / check / load_topics / sync
//	mine                            apply queued writes (async chains)
//	advance {duration}              move the clock, e.g. "6s"
//	fail_next {message} / reject_next
//	emit {event_name, decoded, args}
//
// Supported assertions: trace_contains, trace_order, trace_count,
// final_state, state_count and transitions.
package harness
