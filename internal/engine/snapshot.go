package engine

import (
	"context"

	"github.com/roach88/chatsync/internal/event"
	"github.com/roach88/chatsync/internal/metrics"
	"github.com/roach88/chatsync/internal/projection"
)

// Refresh pulls the current snapshot from the event source and applies it.
// Returns true when the snapshot changed.
//
// A snapshot pulled for an identity that is no longer active is discarded.
func (s *Session) Refresh(ctx context.Context) (bool, error) {
	sc := s.currentScope()
	events, err := s.source.Events(ctx)
	if err != nil {
		s.log(sc).Warn("snapshot pull failed", "error", err)
		return false, readError(opRefresh, err)
	}

	s.mu.Lock()
	if !s.activeLocked(sc) {
		s.mu.Unlock()
		s.log(sc).Info("discarding snapshot for stale session", "events", len(events))
		return false, nil
	}
	changed, res, version := s.applyLocked(events)
	s.mu.Unlock()

	if !changed {
		return false, nil
	}

	lg := s.log(sc)
	for _, t := range res.Added {
		lg.Info("topic discovered", "topic_id", t.ID, "topic", t.Name)
	}
	if res.Duplicates > 0 {
		lg.Debug("topic events already applied", "count", res.Duplicates)
	}
	lg.Info("snapshot applied", "events", len(events), "version", version)
	return true, nil
}

// applyLocked stamps, stores and folds a pulled snapshot.
// Caller must hold s.mu.
func (s *Session) applyLocked(events []event.ContractEvent) (bool, projection.MergeResult, uint64) {
	stamped := make([]event.ContractEvent, len(events))
	for i, ev := range events {
		if ev.Timestamp.IsZero() {
			key := ev.Key()
			ts, ok := s.stamps[key]
			if !ok {
				ts = s.now()
				s.stamps[key] = ts
			}
			ev.Timestamp = ts
		}
		stamped[i] = ev
	}

	if s.snapshot != nil && event.SameSnapshot(s.snapshot, stamped) {
		return false, projection.MergeResult{}, s.version.Current()
	}

	fresh := stamped
	if len(stamped) >= len(s.snapshot) && event.SameSnapshot(s.snapshot, stamped[:len(s.snapshot)]) {
		fresh = stamped[len(s.snapshot):]
	}
	for _, ev := range fresh {
		metrics.ObserveClassified(event.Classify(ev).Kind.String())
	}

	s.snapshot = stamped
	version := s.version.Next()

	res := s.catalog.Merge(stamped, s.ledger)
	metrics.ObserveTopicMerge(metrics.MergeAdded, len(res.Added))
	metrics.ObserveTopicMerge(metrics.MergeKnown, res.Known)
	metrics.ObserveTopicMerge(metrics.MergeDuplicate, res.Duplicates)
	metrics.ObserveRefresh()

	return true, res, version
}

// Snapshot returns a copy of the current event snapshot, with ingestion
// timestamps applied.
func (s *Session) Snapshot() []event.ContractEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.ContractEvent, len(s.snapshot))
	copy(out, s.snapshot)
	return out
}

// Topics returns the topic catalog in discovery order.
func (s *Session) Topics() []event.Topic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.Topics()
}

// SelectTopic sets the topic filter. Values below AllTopics select all topics.
func (s *Session) SelectTopic(f projection.Filter) {
	if f < projection.AllTopics {
		f = projection.AllTopics
	}
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
}

// SelectedTopic returns the current topic filter.
func (s *Session) SelectedTopic() projection.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SendTarget returns the display name of the topic Send posts to.
func (s *Session) SendTarget() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filter == projection.AllTopics || s.filter == event.DefaultTopicID {
		return event.DefaultTopicName
	}
	if name, ok := s.catalog.Name(int(s.filter)); ok {
		return name
	}
	return event.DefaultTopicName
}

// Messages returns the message feed for the selected topic.
//
// The feed is recomputed from the full snapshot only when the snapshot
// version, the filter or the catalog changed since the last call.
func (s *Session) Messages() []event.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.version.Current()
	m := &s.memo
	if m.messages == nil || m.messagesVersion != v || m.messagesFilter != s.filter || m.messagesTopics != s.catalog.Len() {
		m.messages = projection.Messages(s.snapshot, s.filter, s.catalog)
		m.messagesVersion = v
		m.messagesFilter = s.filter
		m.messagesTopics = s.catalog.Len()
	}
	out := make([]event.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Karma returns the karma feed in arrival order.
func (s *Session) Karma() []event.KarmaUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.version.Current()
	if s.memo.karma == nil || s.memo.karmaVersion != v {
		s.memo.karma = projection.Karma(s.snapshot)
		s.memo.karmaVersion = v
	}
	out := make([]event.KarmaUpdate, len(s.memo.karma))
	copy(out, s.memo.karma)
	return out
}
