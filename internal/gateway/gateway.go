// Package gateway is the narrow contract through which the engine requests
// the mutating user actions.
//
// Every action follows the same three steps:
//  1. Validate the primary argument. A blank string fails fast with a
//     validation ActionError and the writer is never called.
//  2. Delegate to the collab.Writer.
//  3. Turn the writer's receipt into an Outcome whose Completion is Final
//     (already confirmed) or Pending (submitted, confirmation outstanding).
//
// Callers must treat Final and Pending identically for state purposes; the
// distinction only feeds latency messaging. No action is retried.
package gateway

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/chatsync/internal/collab"
	"github.com/roach88/chatsync/internal/metrics"
)

// Action names used in errors, logs and metrics.
const (
	ActionRegister           = "register"
	ActionSendMessage        = "send_message"
	ActionSendMessageToTopic = "send_message_to_topic"
	ActionLikeMessage        = "like_message"
	ActionDislikeMessage     = "dislike_message"
	ActionCreateTopic        = "create_topic"
	ActionRateTopic          = "rate_topic"
)

// Rating bounds accepted by RateTopic.
const (
	MinRating = 1
	MaxRating = 5
)

// Completion says whether an action is already final.
type Completion int

const (
	// Final means no further confirmation is needed.
	Final Completion = iota + 1
	// Pending means the action was submitted and confirmation is outstanding.
	Pending
)

// String returns the completion label.
func (c Completion) String() string {
	switch c {
	case Final:
		return "final"
	case Pending:
		return "pending"
	default:
		return "none"
	}
}

// CompletionOf maps a writer receipt onto the result variant.
func CompletionOf(r collab.Receipt) Completion {
	if r.Synchronous {
		return Final
	}
	return Pending
}

// Outcome is the successful result of an action.
type Outcome struct {
	Action     string        `json:"action"`
	Completion Completion    `json:"completion"`
	TxHash     string        `json:"txHash,omitempty"`
	Latency    time.Duration `json:"latency"`
}

// Gateway validates and submits user actions.
type Gateway struct {
	writer collab.Writer
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

// WithNow replaces the clock used for latency measurement.
func WithNow(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// New creates a Gateway over w.
func New(w collab.Writer, opts ...Option) *Gateway {
	g := &Gateway{
		writer: w,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register submits a registration under name.
func (g *Gateway) Register(ctx context.Context, name string) (Outcome, error) {
	if isBlank(name) {
		return g.reject(ActionRegister, "please enter a username")
	}
	return g.submit(ctx, ActionRegister, func(ctx context.Context) (collab.Receipt, error) {
		return g.writer.Register(ctx, name)
	})
}

// SendMessage posts text to the default topic.
func (g *Gateway) SendMessage(ctx context.Context, text string) (Outcome, error) {
	if isBlank(text) {
		return g.reject(ActionSendMessage, "please enter a message")
	}
	return g.submit(ctx, ActionSendMessage, func(ctx context.Context) (collab.Receipt, error) {
		return g.writer.SendMessage(ctx, text)
	})
}

// SendMessageToTopic posts text to topicID.
func (g *Gateway) SendMessageToTopic(ctx context.Context, text string, topicID int) (Outcome, error) {
	if isBlank(text) {
		return g.reject(ActionSendMessageToTopic, "please enter a message")
	}
	if topicID < 0 {
		return g.reject(ActionSendMessageToTopic, "topic id must not be negative")
	}
	return g.submit(ctx, ActionSendMessageToTopic, func(ctx context.Context) (collab.Receipt, error) {
		return g.writer.SendMessageToTopic(ctx, text, topicID)
	})
}

// LikeMessage gives karma to the author of msgID.
func (g *Gateway) LikeMessage(ctx context.Context, msgID string) (Outcome, error) {
	if isBlank(msgID) {
		return g.reject(ActionLikeMessage, "message id is required")
	}
	return g.submit(ctx, ActionLikeMessage, func(ctx context.Context) (collab.Receipt, error) {
		return g.writer.LikeMessage(ctx, msgID)
	})
}

// DislikeMessage takes karma from the author of msgID.
func (g *Gateway) DislikeMessage(ctx context.Context, msgID string) (Outcome, error) {
	if isBlank(msgID) {
		return g.reject(ActionDislikeMessage, "message id is required")
	}
	return g.submit(ctx, ActionDislikeMessage, func(ctx context.Context) (collab.Receipt, error) {
		return g.writer.DislikeMessage(ctx, msgID)
	})
}

// GiveKarma is the legacy name of LikeMessage.
func (g *Gateway) GiveKarma(ctx context.Context, msgID string) (Outcome, error) {
	return g.LikeMessage(ctx, msgID)
}

// TakeKarma is the legacy name of DislikeMessage.
func (g *Gateway) TakeKarma(ctx context.Context, msgID string) (Outcome, error) {
	return g.DislikeMessage(ctx, msgID)
}

// CreateTopic creates a topic called name.
func (g *Gateway) CreateTopic(ctx context.Context, name string) (Outcome, error) {
	if isBlank(name) {
		return g.reject(ActionCreateTopic, "please enter a topic name")
	}
	return g.submit(ctx, ActionCreateTopic, func(ctx context.Context) (collab.Receipt, error) {
		return g.writer.CreateTopic(ctx, name)
	})
}

// RateTopic rates topicID with 1 to 5 stars.
func (g *Gateway) RateTopic(ctx context.Context, topicID, rating int) (Outcome, error) {
	if topicID < 0 {
		return g.reject(ActionRateTopic, "topic id must not be negative")
	}
	if rating < MinRating || rating > MaxRating {
		return g.reject(ActionRateTopic, "rating must be between 1 and 5")
	}
	return g.submit(ctx, ActionRateTopic, func(ctx context.Context) (collab.Receipt, error) {
		return g.writer.RateTopic(ctx, topicID, rating)
	})
}

func (g *Gateway) reject(action, message string) (Outcome, error) {
	metrics.ObserveAction(action, "validation")
	return Outcome{}, NewValidationError(action, message)
}

func (g *Gateway) submit(ctx context.Context, action string, fn func(context.Context) (collab.Receipt, error)) (Outcome, error) {
	start := g.now()
	receipt, err := fn(ctx)
	latency := g.now().Sub(start)

	if err != nil {
		if collab.IsUserRejection(err) {
			metrics.ObserveAction(action, "cancelled")
			g.logger.Info("action cancelled by user", "action", action)
			return Outcome{}, NewCancelledError(action, err)
		}
		metrics.ObserveAction(action, "failed")
		g.logger.Warn("action failed", "action", action, "error", err)
		return Outcome{}, NewCollaboratorError(action, err)
	}

	out := Outcome{
		Action:     action,
		Completion: CompletionOf(receipt),
		TxHash:     receipt.TxHash,
		Latency:    latency,
	}
	metrics.ObserveAction(action, out.Completion.String())
	g.logger.Info("action completed",
		"action", action,
		"completion", out.Completion.String(),
		"tx", out.TxHash,
		"latency_ms", latency.Milliseconds(),
	)
	return out, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
