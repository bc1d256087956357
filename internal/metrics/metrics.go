// Package metrics exposes Prometheus counters for the reconciliation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsClassifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "events_classified_total",
			Help:      "Events seen in pulled snapshots, by classified kind.",
		},
		[]string{"kind"},
	)

	topicMergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "topic_merges_total",
			Help:      "Topic catalog fold outcomes (added, known, duplicate, bulk).",
		},
		[]string{"outcome"},
	)

	actionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "actions_total",
			Help:      "Outbound actions by name and outcome.",
		},
		[]string{"action", "outcome"},
	)

	registrationTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "registration_transitions_total",
			Help:      "Registration state machine transitions by target state.",
		},
		[]string{"to"},
	)

	snapshotRefreshesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "snapshot_refreshes_total",
			Help:      "Snapshots pulled that changed the session's event list.",
		},
	)
)

// Topic merge outcomes.
const (
	MergeAdded     = "added"
	MergeKnown     = "known"
	MergeDuplicate = "duplicate"
	MergeBulk      = "bulk"
)

// ObserveClassified counts one classified event.
func ObserveClassified(kind string) {
	eventsClassifiedTotal.WithLabelValues(kind).Inc()
}

// ObserveTopicMerge adds n catalog fold outcomes.
func ObserveTopicMerge(outcome string, n int) {
	if n <= 0 {
		return
	}
	topicMergesTotal.WithLabelValues(outcome).Add(float64(n))
}

// ObserveAction counts one outbound action outcome.
func ObserveAction(action, outcome string) {
	actionsTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveTransition counts one registration transition.
func ObserveTransition(to string) {
	registrationTransitionsTotal.WithLabelValues(to).Inc()
}

// ObserveRefresh counts one snapshot change.
func ObserveRefresh() {
	snapshotRefreshesTotal.Inc()
}

// ActionCount returns the current counter value, for tests and diagnostics.
func ActionCount(action, outcome string) float64 {
	return counterValue(actionsTotal.WithLabelValues(action, outcome))
}

// TopicMergeCount returns the current merge counter value.
func TopicMergeCount(outcome string) float64 {
	return counterValue(topicMergesTotal.WithLabelValues(outcome))
}

// ClassifiedCount returns the current classified counter value.
func ClassifiedCount(kind string) float64 {
	return counterValue(eventsClassifiedTotal.WithLabelValues(kind))
}
