package engine

import (
	"errors"
	"strings"

	"github.com/roach88/chatsync/internal/gateway"
	"github.com/roach88/chatsync/internal/metrics"
)

// ErrNoIdentity is returned by identity-scoped operations when no identity
// is active.
var ErrNoIdentity = errors.New("no active identity")

// Read-side operation names used in errors and logs.
const (
	opRefresh           = "refresh"
	opCheckRegistration = "check_registration"
	opLoadTopics        = "load_topics"
	opTopicCount        = "topic_count"
	opTopicRating       = "topic_rating"
	opUserTopicRating   = "user_topic_rating"
)

// readError wraps a read collaborator failure, keeping its message.
func readError(op string, err error) error {
	return gateway.NewCollaboratorError(op, err)
}

// requireText fails fast, before any collaborator is consulted, when a
// multi-step action gets a blank argument.
func requireText(action, value, message string) error {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	metrics.ObserveAction(action, "validation")
	return gateway.NewValidationError(action, message)
}
