package engine

import (
	"context"

	"github.com/roach88/chatsync/internal/collab"
	"github.com/roach88/chatsync/internal/gateway"
	"github.com/roach88/chatsync/internal/projection"
)

// finish turns a gateway outcome into a Result for sc, marking it stale if
// the identity changed while the action was in flight.
func (s *Session) finish(sc scope, out gateway.Outcome) Result {
	s.mu.Lock()
	stale := !s.activeLocked(sc)
	s.mu.Unlock()

	if stale {
		s.log(sc).Info("action completed for stale session", "action", out.Action, "tx", out.TxHash)
	} else {
		s.wake.Kick()
	}
	return Result{Outcome: out, SessionID: sc.sessionID, Stale: stale}
}

// Send posts text to the selected topic. With all topics or the default
// topic selected the message goes to the default topic.
func (s *Session) Send(ctx context.Context, text string) (Result, error) {
	sc, err := s.identityScope()
	if err != nil {
		return Result{}, err
	}
	filter := s.SelectedTopic()

	var out gateway.Outcome
	if filter == projection.AllTopics || filter == 0 {
		out, err = s.gateway.SendMessage(ctx, text)
	} else {
		out, err = s.gateway.SendMessageToTopic(ctx, text, int(filter))
	}
	if err != nil {
		return Result{}, err
	}
	return s.finish(sc, out), nil
}

// Like gives karma to the author of msgID.
func (s *Session) Like(ctx context.Context, msgID string) (Result, error) {
	sc, err := s.identityScope()
	if err != nil {
		return Result{}, err
	}
	out, err := s.gateway.LikeMessage(ctx, msgID)
	if err != nil {
		return Result{}, err
	}
	return s.finish(sc, out), nil
}

// Dislike takes karma from the author of msgID.
func (s *Session) Dislike(ctx context.Context, msgID string) (Result, error) {
	sc, err := s.identityScope()
	if err != nil {
		return Result{}, err
	}
	out, err := s.gateway.DislikeMessage(ctx, msgID)
	if err != nil {
		return Result{}, err
	}
	return s.finish(sc, out), nil
}

// CreateTopic creates a topic called name and selects it.
//
// The topic count read before submitting is the id the new topic is
// expected to get. On success that id becomes the selected filter; the
// catalog learns the name from the TopicCreated event or the next topic
// load. Returns the expected id.
func (s *Session) CreateTopic(ctx context.Context, name string) (int, Result, error) {
	sc, err := s.identityScope()
	if err != nil {
		return 0, Result{}, err
	}
	if err := requireText(gateway.ActionCreateTopic, name, "please enter a topic name"); err != nil {
		return 0, Result{}, err
	}

	id, err := s.reader.TopicCount(ctx)
	if err != nil {
		return 0, Result{}, readError(opTopicCount, err)
	}

	out, err := s.gateway.CreateTopic(ctx, name)
	if err != nil {
		return 0, Result{}, err
	}

	res := s.finish(sc, out)
	if res.Stale {
		return id, res, nil
	}

	s.mu.Lock()
	if s.activeLocked(sc) {
		s.filter = projection.Filter(id)
	}
	s.mu.Unlock()

	s.log(sc).Info("topic created", "topic_id", id, "topic", name)
	return id, res, nil
}

// RateTopic rates topicID with 1 to 5 stars, then waits for the configured
// refresh delay and reads the new aggregate.
//
// If ctx ends during the wait the rating has still been submitted; the
// returned error is the context error and the aggregate is zero.
func (s *Session) RateTopic(ctx context.Context, topicID, rating int) (Result, collab.Rating, error) {
	sc, err := s.identityScope()
	if err != nil {
		return Result{}, collab.Rating{}, err
	}

	out, err := s.gateway.RateTopic(ctx, topicID, rating)
	if err != nil {
		return Result{}, collab.Rating{}, err
	}
	res := s.finish(sc, out)
	if res.Stale {
		return res, collab.Rating{}, nil
	}

	s.mu.Lock()
	if s.activeLocked(sc) {
		s.userRatings[topicID] = rating
	}
	s.mu.Unlock()

	if err := s.sleep(ctx, s.ratingDelay); err != nil {
		return res, collab.Rating{}, err
	}
	agg, err := s.TopicRating(ctx, topicID)
	if err != nil {
		return res, collab.Rating{}, err
	}
	return res, agg, nil
}

// TopicRating reads the aggregate rating of topicID, in display units.
func (s *Session) TopicRating(ctx context.Context, topicID int) (collab.Rating, error) {
	sc := s.currentScope()
	raw, err := s.reader.TopicRating(ctx, topicID)
	if err != nil {
		return collab.Rating{}, readError(opTopicRating, err)
	}
	r := raw.Normalize()

	s.mu.Lock()
	if s.activeLocked(sc) {
		s.ratings[topicID] = r
	}
	s.mu.Unlock()
	return r, nil
}

// UserTopicRating reads the active identity's own rating of topicID
// (0 when unrated). A rating submitted in this session is returned without a
// read.
func (s *Session) UserTopicRating(ctx context.Context, topicID int) (int, error) {
	sc, err := s.identityScope()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	if r, ok := s.userRatings[topicID]; ok && s.activeLocked(sc) {
		s.mu.Unlock()
		return r, nil
	}
	s.mu.Unlock()

	r, err := s.reader.UserTopicRating(ctx, sc.identity, topicID)
	if err != nil {
		return 0, readError(opUserTopicRating, err)
	}

	s.mu.Lock()
	if s.activeLocked(sc) {
		s.userRatings[topicID] = r
	}
	s.mu.Unlock()
	return r, nil
}

// CachedRating returns the last aggregate read for topicID in this session.
func (s *Session) CachedRating(topicID int) (collab.Rating, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.ratings[topicID]
	return r, ok
}
