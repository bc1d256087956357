// Package event defines the contract event envelope consumed by the
// reconciliation engine and the pure classifier that maps envelopes onto
// the chat domain.
//
// Events arrive already decoded (name plus argument bag) together with the
// transaction hash and log index that identify the occurrence on chain.
// The pair (transaction, log index) is the dedup identity of an event and is
// stable across re-delivery of the same stream.
//
// CLASSIFICATION:
//
// Classify never fails. An envelope that is not decoded, or whose name is not
// one of the known chat events, classifies as KindUnrecognized and is dropped
// by every projection. Missing arguments take defined defaults rather than
// producing errors:
//
//	user, userId, message, topic -> ""
//	msgId, karma                 -> "0"
//	topicId                      -> 0
package event
