// Package collab defines the contracts of the engine's external
// collaborators: the registration check, the topic read side, the write side
// and the event source.
//
// The engine knows nothing about wallets, transports or how writes are
// encoded. Implementations live elsewhere (simchain for tests and the
// harness, eventlog for offline capture replay).
package collab

import (
	"context"
	"errors"
	"strings"

	"github.com/roach88/chatsync/internal/event"
)

// RegistrationChecker answers whether an identity is registered.
type RegistrationChecker interface {
	IsRegistered(ctx context.Context, identity string) (bool, error)
	DisplayName(ctx context.Context, identity string) (string, error)
}

// TopicReader is the topic read side of the contract.
type TopicReader interface {
	// TopicCount returns the number of topics, which is also the id the next
	// created topic will get.
	TopicCount(ctx context.Context) (int, error)
	TopicName(ctx context.Context, id int) (string, error)
	// TopicRating returns the raw aggregate as stored on chain.
	TopicRating(ctx context.Context, id int) (RawRating, error)
	UserTopicRating(ctx context.Context, identity string, id int) (int, error)
}

// Writer submits the mutating user actions.
type Writer interface {
	Register(ctx context.Context, name string) (Receipt, error)
	SendMessage(ctx context.Context, text string) (Receipt, error)
	SendMessageToTopic(ctx context.Context, text string, topicID int) (Receipt, error)
	LikeMessage(ctx context.Context, msgID string) (Receipt, error)
	DislikeMessage(ctx context.Context, msgID string) (Receipt, error)
	CreateTopic(ctx context.Context, name string) (Receipt, error)
	RateTopic(ctx context.Context, topicID, rating int) (Receipt, error)
}

// EventSource supplies the full ordered event list of the active session.
// Snapshots are monotonically growing supersets.
type EventSource interface {
	Events(ctx context.Context) ([]event.ContractEvent, error)
}

// Notifier is implemented by event sources with a push transport. The
// channel receives a value whenever the snapshot may have changed; bursts are
// coalesced.
type Notifier interface {
	Changes() <-chan struct{}
}

// Reader bundles the read-side collaborators.
type Reader interface {
	RegistrationChecker
	TopicReader
}

// Receipt is the completion descriptor a writer returns.
type Receipt struct {
	// Synchronous is true when the write is already final (for example an
	// embedded wallet that confirms instantly) and false when confirmation is
	// still pending.
	Synchronous bool
	// TxHash identifies the submitted transaction, if known.
	TxHash string
}

// RawRating is a topic rating as the contract stores it: the average is an
// integer percentage (350 means 3.5 stars).
type RawRating struct {
	AveragePercent int64
	Count          int64
}

// Rating is a topic rating in display units.
type Rating struct {
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

// Normalize converts the on-chain percentage to a 0-5 average.
func (r RawRating) Normalize() Rating {
	return Rating{
		Average: float64(r.AveragePercent) / 100,
		Count:   r.Count,
	}
}

// ErrUserRejected is wrapped by writers when the user declined to sign or
// submit an asynchronous action.
var ErrUserRejected = errors.New("user rejected the action")

// RejectedCode is the error code wallets report for a declined action.
const RejectedCode = "ACTION_REJECTED"

type coder interface {
	Code() string
}

// IsUserRejection reports whether err means the user declined the action:
// it wraps ErrUserRejected, carries RejectedCode, or its message mentions a
// rejection.
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserRejected) {
		return true
	}
	var c coder
	if errors.As(err, &c) && c.Code() == RejectedCode {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "rejected")
}
