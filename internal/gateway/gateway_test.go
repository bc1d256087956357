package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chatsync/internal/collab"
	"github.com/roach88/chatsync/internal/metrics"
	"github.com/roach88/chatsync/internal/testutil"
)

type codedErr struct{ code string }

func (e codedErr) Error() string { return "wallet said no" }
func (e codedErr) Code() string  { return e.code }

// ============================================================================
// Validation
// ============================================================================

func TestGateway_BlankInputsNeverReachWriter(t *testing.T) {
	w := &testutil.RecordingWriter{Receipt: collab.Receipt{Synchronous: true}}
	g := New(w)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() (Outcome, error)
	}{
		{"register", func() (Outcome, error) { return g.Register(ctx, "") }},
		{"register whitespace", func() (Outcome, error) { return g.Register(ctx, "   ") }},
		{"send", func() (Outcome, error) { return g.SendMessage(ctx, "") }},
		{"send to topic", func() (Outcome, error) { return g.SendMessageToTopic(ctx, "\t", 1) }},
		{"like", func() (Outcome, error) { return g.LikeMessage(ctx, "") }},
		{"dislike", func() (Outcome, error) { return g.DislikeMessage(ctx, "") }},
		{"create topic", func() (Outcome, error) { return g.CreateTopic(ctx, "") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.call()
			require.Error(t, err)
			assert.True(t, IsValidation(err))
		})
	}
	assert.Empty(t, w.Calls())
}

func TestGateway_SendMessageBlankCountsValidation(t *testing.T) {
	before := metrics.ActionCount(ActionSendMessage, "validation")

	_, err := New(&testutil.RecordingWriter{}).SendMessage(context.Background(), "")
	require.Error(t, err)

	assert.Equal(t, before+1, metrics.ActionCount(ActionSendMessage, "validation"))
}

func TestGateway_RateTopicBounds(t *testing.T) {
	w := &testutil.RecordingWriter{Receipt: collab.Receipt{Synchronous: true}}
	g := New(w)
	ctx := context.Background()

	for _, rating := range []int{0, 6, -1} {
		_, err := g.RateTopic(ctx, 1, rating)
		assert.True(t, IsValidation(err), "rating %d", rating)
	}
	_, err := g.RateTopic(ctx, -1, 3)
	assert.True(t, IsValidation(err))
	assert.Empty(t, w.Calls())

	for _, rating := range []int{MinRating, MaxRating} {
		_, err := g.RateTopic(ctx, 1, rating)
		require.NoError(t, err)
	}
	assert.Len(t, w.Calls(), 2)
}

func TestGateway_SendMessageToTopicNegativeID(t *testing.T) {
	w := &testutil.RecordingWriter{}
	_, err := New(w).SendMessageToTopic(context.Background(), "hi", -2)
	assert.True(t, IsValidation(err))
	assert.Empty(t, w.Calls())
}

// ============================================================================
// Completion variant
// ============================================================================

func TestGateway_SynchronousReceiptIsFinal(t *testing.T) {
	w := &testutil.RecordingWriter{Receipt: collab.Receipt{Synchronous: true, TxHash: "0xaa"}}
	out, err := New(w).Register(context.Background(), "bob")
	require.NoError(t, err)

	assert.Equal(t, Final, out.Completion)
	assert.Equal(t, ActionRegister, out.Action)
	assert.Equal(t, "0xaa", out.TxHash)
	assert.Equal(t, []testutil.Call{{Method: "Register", Args: []any{"bob"}}}, w.Calls())
}

func TestGateway_AsynchronousReceiptIsPending(t *testing.T) {
	w := &testutil.RecordingWriter{Receipt: collab.Receipt{Synchronous: false}}
	out, err := New(w).CreateTopic(context.Background(), "Go")
	require.NoError(t, err)
	assert.Equal(t, Pending, out.Completion)
}

func TestGateway_LatencyUsesClock(t *testing.T) {
	clock := testutil.NewManualClock()
	calls := 0
	now := func() time.Time {
		calls++
		if calls == 2 {
			clock.Advance(250 * time.Millisecond)
		}
		return clock.Now()
	}

	w := &testutil.RecordingWriter{Receipt: collab.Receipt{Synchronous: true}}
	out, err := New(w, WithNow(now)).SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, out.Latency)
}

func TestGateway_KarmaAliases(t *testing.T) {
	w := &testutil.RecordingWriter{Receipt: collab.Receipt{Synchronous: true}}
	g := New(w)
	ctx := context.Background()

	_, err := g.GiveKarma(ctx, "m1")
	require.NoError(t, err)
	_, err = g.TakeKarma(ctx, "m2")
	require.NoError(t, err)

	calls := w.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "LikeMessage", calls[0].Method)
	assert.Equal(t, "DislikeMessage", calls[1].Method)
}

func TestCompletion_String(t *testing.T) {
	assert.Equal(t, "final", Final.String())
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "none", Completion(0).String())
}

// ============================================================================
// Failure classification
// ============================================================================

func TestGateway_UserRejection(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"sentinel", collab.ErrUserRejected},
		{"wrapped sentinel", errors.Join(errors.New("signer"), collab.ErrUserRejected)},
		{"code", codedErr{code: collab.RejectedCode}},
		{"message", errors.New("User Rejected the request")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &testutil.RecordingWriter{Err: tt.err}
			_, err := New(w).LikeMessage(context.Background(), "m1")
			require.Error(t, err)
			assert.True(t, IsUserCancelled(err))
			assert.False(t, IsCollaborator(err))
		})
	}
}

func TestGateway_CollaboratorFailureKeepsMessage(t *testing.T) {
	cause := errors.New("execution reverted: not registered")
	w := &testutil.RecordingWriter{Err: cause}

	_, err := New(w).SendMessage(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, IsCollaborator(err))
	assert.ErrorIs(t, err, cause)

	var ae *ActionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "execution reverted: not registered", ae.Message)
	assert.Equal(t, ActionSendMessage, ae.Action)
}

func TestActionError_Error(t *testing.T) {
	err := NewValidationError(ActionCreateTopic, "please enter a topic name")
	assert.Equal(t, "VALIDATION: create_topic: please enter a topic name", err.Error())

	bare := &ActionError{Code: ErrCodeCollaborator, Message: "boom"}
	assert.Equal(t, "COLLABORATOR: boom", bare.Error())
}
