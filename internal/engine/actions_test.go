package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chatsync/internal/collab"
	"github.com/roach88/chatsync/internal/event"
	"github.com/roach88/chatsync/internal/gateway"
	"github.com/roach88/chatsync/internal/projection"
	"github.com/roach88/chatsync/internal/registration"
	"github.com/roach88/chatsync/internal/simchain"
	"github.com/roach88/chatsync/internal/testutil"
)

// newChainSession wires a session to an in-memory chain where alice is
// registered and topic 1 "Go" exists.
func newChainSession(t *testing.T, extra ...Option) (*Session, *simchain.Chain) {
	t.Helper()
	clock := testutil.NewManualClock()
	chain := simchain.New(
		simchain.WithNow(clock.Now),
		simchain.WithUser(alice, "alice"),
		simchain.WithTopics("Go"),
	)
	chain.Connect(alice)
	s := NewSession(chain, chain, chain, testOptions(clock, extra...)...)
	s.SwitchIdentity(alice)

	state, err := s.CheckRegistration(context.Background())
	require.NoError(t, err)
	require.Equal(t, registration.Registered, state)
	return s, chain
}

// ============================================================================
// Send
// ============================================================================

func TestSession_SendBlankNeverReachesWriter(t *testing.T) {
	clock := testutil.NewManualClock()
	writer := &testutil.RecordingWriter{Receipt: collab.Receipt{Synchronous: true}}
	s := NewSession(testutil.NewStaticSource(), &testutil.ScriptedReader{}, writer, testOptions(clock)...)
	s.SwitchIdentity(alice)

	_, err := s.Send(context.Background(), "")
	require.Error(t, err)
	assert.True(t, gateway.IsValidation(err))
	assert.Empty(t, writer.Calls())
}

func TestSession_SendRouting(t *testing.T) {
	tests := []struct {
		name   string
		filter projection.Filter
		want   testutil.Call
	}{
		{"all topics", projection.AllTopics, testutil.Call{Method: "SendMessage", Args: []any{"hi"}}},
		{"default topic", 0, testutil.Call{Method: "SendMessage", Args: []any{"hi"}}},
		{"specific topic", 2, testutil.Call{Method: "SendMessageToTopic", Args: []any{"hi", 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := testutil.NewManualClock()
			writer := &testutil.RecordingWriter{Receipt: collab.Receipt{Synchronous: true}}
			s := NewSession(testutil.NewStaticSource(), &testutil.ScriptedReader{}, writer, testOptions(clock)...)
			s.SwitchIdentity(alice)
			s.SelectTopic(tt.filter)

			res, err := s.Send(context.Background(), "hi")
			require.NoError(t, err)
			assert.Equal(t, "s-test", res.SessionID)
			assert.Equal(t, []testutil.Call{tt.want}, writer.Calls())
		})
	}
}

func TestSession_SendTarget(t *testing.T) {
	s, _ := newChainSession(t)

	assert.Equal(t, "General", s.SendTarget())
	s.SelectTopic(0)
	assert.Equal(t, "General", s.SendTarget())
	s.SelectTopic(1)
	assert.Equal(t, "Go", s.SendTarget())
	s.SelectTopic(9)
	assert.Equal(t, "General", s.SendTarget())
}

func TestSession_SendThroughChainAppearsInFeed(t *testing.T) {
	s, _ := newChainSession(t)
	ctx := context.Background()

	s.SelectTopic(1)
	res, err := s.Send(ctx, "hello gophers")
	require.NoError(t, err)
	assert.Equal(t, gateway.Final, res.Completion)

	_, err = s.Refresh(ctx)
	require.NoError(t, err)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello gophers", msgs[0].Text)
	assert.Equal(t, "Go", msgs[0].Topic)
	assert.Equal(t, "alice", msgs[0].UserID)

	s.SelectTopic(0)
	assert.Empty(t, s.Messages())
}

func TestSession_FailedActionLeavesStateUnchanged(t *testing.T) {
	clock := testutil.NewManualClock()
	src := testutil.NewStaticSource(topicEvent(1, 1, "Go"), msgEvent(2, alice, "Go", "1"))
	writer := &testutil.RecordingWriter{Err: errors.New("execution reverted")}
	s := NewSession(src, &testutil.ScriptedReader{}, writer, testOptions(clock)...)
	s.SwitchIdentity(alice)
	_, err := s.Refresh(context.Background())
	require.NoError(t, err)
	s.SelectTopic(1)

	version, topics, msgs := s.Version(), s.Topics(), s.Messages()

	_, err = s.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, gateway.IsCollaborator(err))

	assert.Equal(t, version, s.Version())
	assert.Equal(t, topics, s.Topics())
	assert.Equal(t, msgs, s.Messages())
	assert.Equal(t, projection.Filter(1), s.SelectedTopic())
}

func TestSession_ActionCompletingAfterSwitchIsStale(t *testing.T) {
	clock := testutil.NewManualClock()
	gate := make(chan struct{})
	writer := &testutil.RecordingWriter{Receipt: collab.Receipt{Synchronous: false}, Gate: gate}
	s := NewSession(testutil.NewStaticSource(), &testutil.ScriptedReader{}, writer, testOptions(clock)...)
	s.SwitchIdentity(alice)

	done := make(chan Result, 1)
	go func() {
		res, err := s.Like(context.Background(), "1")
		assert.NoError(t, err)
		done <- res
	}()
	require.Eventually(t, func() bool { return len(writer.Calls()) == 1 }, time.Second, time.Millisecond)

	s.SwitchIdentity(bob)
	close(gate)

	res := <-done
	assert.True(t, res.Stale)
	assert.Equal(t, gateway.Pending, res.Completion)
}

func TestSession_LikeAndDislike(t *testing.T) {
	s, chain := newChainSession(t)
	ctx := context.Background()

	_, err := s.Send(ctx, "first")
	require.NoError(t, err)
	_, err = s.Like(ctx, "1")
	require.NoError(t, err)
	_, err = s.Like(ctx, "1")
	require.NoError(t, err)
	_, err = s.Dislike(ctx, "1")
	require.NoError(t, err)

	_, err = s.Dislike(ctx, "")
	assert.True(t, gateway.IsValidation(err))

	_, err = s.Refresh(ctx)
	require.NoError(t, err)

	var values []string
	for _, k := range s.Karma() {
		values = append(values, k.Karma)
	}
	assert.Equal(t, []string{"1", "2", "1"}, values)

	latest, ok := projection.LatestKarma(s.Karma(), alice)
	assert.True(t, ok)
	assert.Equal(t, "1", latest)
	assert.Equal(t, 0, chain.Pending())
}

// ============================================================================
// Topics
// ============================================================================

func TestSession_CreateTopicScenario(t *testing.T) {
	s, chain := newChainSession(t)
	ctx := context.Background()

	count, err := chain.TopicCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	id, res, err := s.CreateTopic(ctx, "Sports")
	require.NoError(t, err)
	assert.False(t, res.Stale)
	assert.Equal(t, 2, id)
	assert.Equal(t, projection.Filter(2), s.SelectedTopic())

	// The name comes from the TopicCreated event, not from the request.
	assert.Equal(t, []int{0, 1}, topicIDs(s.Topics()))

	_, err = s.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, []event.Topic{
		{ID: 0, Name: "General"},
		{ID: 1, Name: "Go"},
		{ID: 2, Name: "Sports"},
	}, s.Topics())
	assert.Equal(t, "Sports", s.SendTarget())
}

// racingReader runs race once, right after the next TopicCount answer.
type racingReader struct {
	*simchain.Chain
	race func()
}

func (r *racingReader) TopicCount(ctx context.Context) (int, error) {
	n, err := r.Chain.TopicCount(ctx)
	if race := r.race; race != nil {
		r.race = nil
		race()
	}
	return n, err
}

func TestSession_CreateTopicRacingWriterKeepsChainNames(t *testing.T) {
	clock := testutil.NewManualClock()
	chain := simchain.New(
		simchain.WithNow(clock.Now),
		simchain.WithUser(alice, "alice"),
		simchain.WithUser(carol, "carol"),
		simchain.WithTopics("Go"),
	)
	chain.Connect(alice)
	reader := &racingReader{Chain: chain}
	s := NewSession(chain, reader, chain, testOptions(clock)...)
	s.SwitchIdentity(alice)
	ctx := context.Background()

	_, err := s.LoadTopics(ctx)
	require.NoError(t, err)

	// carol's topic lands between alice's count read and her write.
	reader.race = func() {
		chain.Connect(carol)
		_, err := chain.CreateTopic(ctx, "Music")
		require.NoError(t, err)
		chain.Connect(alice)
	}

	id, _, err := s.CreateTopic(ctx, "Sports")
	require.NoError(t, err)
	assert.Equal(t, 2, id)

	_, err = s.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, []event.Topic{
		{ID: 0, Name: "General"},
		{ID: 1, Name: "Go"},
		{ID: 2, Name: "Music"},
		{ID: 3, Name: "Sports"},
	}, s.Topics())

	name, err := chain.TopicName(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Music", name)
}

func TestSession_CreateTopicBlankReadsNothing(t *testing.T) {
	clock := testutil.NewManualClock()
	reader := &testutil.ScriptedReader{Topics: []string{""}}
	writer := &testutil.RecordingWriter{}
	s := NewSession(testutil.NewStaticSource(), reader, writer, testOptions(clock)...)
	s.SwitchIdentity(alice)

	_, _, err := s.CreateTopic(context.Background(), "")
	require.Error(t, err)
	assert.True(t, gateway.IsValidation(err))
	assert.Empty(t, writer.Calls())
	assert.Equal(t, 1, len(s.Topics()))
}

func TestSession_CreateTopicRejected(t *testing.T) {
	s, chain := newChainSession(t)
	chain.RejectNext()

	_, _, err := s.CreateTopic(context.Background(), "Sports")
	require.Error(t, err)
	assert.True(t, gateway.IsUserCancelled(err))
	assert.Equal(t, []int{0, 1}, topicIDs(s.Topics()))
	assert.Equal(t, projection.AllTopics, s.SelectedTopic())
}

// ============================================================================
// Ratings
// ============================================================================

func TestSession_RateTopicRefreshesAggregate(t *testing.T) {
	var slept []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	s, _ := newChainSession(t, WithSleep(sleep), WithRatingRefreshDelay(500*time.Millisecond))
	ctx := context.Background()

	_, agg, err := s.RateTopic(ctx, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, collab.Rating{Average: 4, Count: 1}, agg)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, slept)

	mine, err := s.UserTopicRating(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, mine)

	cached, ok := s.CachedRating(1)
	assert.True(t, ok)
	assert.Equal(t, agg, cached)
}

func TestSession_RateTopicValidation(t *testing.T) {
	s, _ := newChainSession(t)
	ctx := context.Background()

	for _, rating := range []int{0, 6} {
		_, _, err := s.RateTopic(ctx, 1, rating)
		assert.True(t, gateway.IsValidation(err), "rating %d", rating)
	}
	_, _, err := s.RateTopic(ctx, -1, 3)
	assert.True(t, gateway.IsValidation(err))
}

func TestSession_RateTopicWaitCancelled(t *testing.T) {
	sleep := func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}
	s, chain := newChainSession(t, WithSleep(sleep))

	res, _, err := s.RateTopic(context.Background(), 1, 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, gateway.Final, res.Completion)

	raw, err := chain.TopicRating(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(500), raw.AveragePercent, "rating was submitted")
}

func TestSession_UserTopicRatingReadsThrough(t *testing.T) {
	clock := testutil.NewManualClock()
	reader := &testutil.ScriptedReader{UserRates: map[string]int{alice + "/3": 2}}
	s := NewSession(testutil.NewStaticSource(), reader, &testutil.RecordingWriter{}, testOptions(clock)...)
	s.SwitchIdentity(alice)

	r, err := s.UserTopicRating(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, r)
}

func TestSession_TopicRatingNormalizes(t *testing.T) {
	clock := testutil.NewManualClock()
	reader := &testutil.ScriptedReader{Ratings: map[int]collab.RawRating{1: {AveragePercent: 350, Count: 2}}}
	s := NewSession(testutil.NewStaticSource(), reader, &testutil.RecordingWriter{}, testOptions(clock)...)

	r, err := s.TopicRating(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, collab.Rating{Average: 3.5, Count: 2}, r)
}
