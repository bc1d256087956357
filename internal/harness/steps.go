package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/chatsync/internal/engine"
	"github.com/roach88/chatsync/internal/event"
	"github.com/roach88/chatsync/internal/projection"
)

type stepFunc func(h *Harness, ctx context.Context, args map[string]interface{}) (string, map[string]interface{}, error)

var steps = map[string]stepFunc{
	"switch_identity":   (*Harness).switchIdentity,
	"connect":           (*Harness).connect,
	"register":          (*Harness).register,
	"send":              (*Harness).send,
	"like":              (*Harness).like,
	"dislike":           (*Harness).dislike,
	"create_topic":      (*Harness).createTopic,
	"rate_topic":        (*Harness).rateTopic,
	"topic_rating":      (*Harness).topicRating,
	"user_topic_rating": (*Harness).userTopicRating,
	"select_topic":      (*Harness).selectTopic,
	"refresh":           (*Harness).refresh,
	"check":             (*Harness).check,
	"load_topics":       (*Harness).loadTopics,
	"sync":              (*Harness).sync,
	"mine":              (*Harness).mine,
	"advance":           (*Harness).advance,
	"fail_next":         (*Harness).failNext,
	"reject_next":       (*Harness).rejectNext,
	"emit":              (*Harness).emit,
}

// actionCase maps a session action result onto its trace case.
func actionCase(r engine.Result) string {
	if r.Stale {
		return CaseStale
	}
	return r.Completion.String()
}

func (h *Harness) switchIdentity(_ context.Context, args map[string]interface{}) (string, map[string]interface{}, error) {
	identity, err := stringArg(args, "identity")
	if err != nil {
		return "", nil, err
	}
	h.chain.Connect(identity)
	id := h.session.SwitchIdentity(identity)
	return CaseOK, map[string]interface{}{"session_id": id}, nil
}

func (h *Harness) connect(_ context.Context, args map[string]interface{}) (string, map[string]interface{}, error) {
	identity, err := stringArg(args, "identity")
	if err != nil {
		return "", nil, err
	}
	h.chain.Connect(identity)
	return CaseOK, nil, nil
}

func (h *Harness) register(ctx context.Context, args map[string]interface{}) (string, map[string]interface{}, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return "", nil, err
	}
	r, err := h.session.Register(ctx, name)
	if err != nil {
		return "", nil, err
	}
	return actionCase(r), nil, nil
}

func (h *Harness) send(ctx context.Context, args map[string]interface{}) (string, map[string]interface{}, error) {
	text, err := stringArg(args, "text")
	if err != nil {
		return "", nil, err
	}
	target := h.session.SendTarget()
	r, err := h.session.Send(ctx, text)
	if err != nil {
		return "", nil, err
	}
	return actionCase(r), map[string]interface{}{"target": target}, nil
}

func (h *Harness) like(ctx context.Context, args map[string]interface{}) (string, map[string]interface{}, error) {
	id, err := requireArg(args, "msg_id")
	if err != nil {
		return "", nil, err
	}
	r, err := h.session.Like(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return actionCase(r), nil, nil
}

func (h *Harness) dislike(ctx context.Context, args map[string]interface{}) (string, map[string]interface{}, error) {
	id, err := requireArg(args, "msg_id")
	if err != nil {
		return "", nil, err
	}
	r, err := h.session.Dislike(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return actionCase(r), nil, nil
}

func (h *Harness) createTopic(ctx context.Context, args map[string]interface{}) (string, map[string]interface{}, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return "", nil, err
	}
	id, r, err := h.session.CreateTopic(ctx, name)
	if err != nil {
		return "", nil, err
	}
	return actionCase(r), map[string]interface{}{"topic_id": id}, nil
}

func (h *Harness) rateTopic(ctx context.Context, args map[string]interface{}) (string, map[string]interface{}, error) {
	id, err := intArg(args, "topic_id")
	if err != nil {
		return "", nil, err
	}
	rating, err := intArg(args, "rating")
	if err != nil {
		return "", nil, err
	}
	r, agg, err := h.session.RateTopic(ctx, id, rating)
	if err != nil {
		return "", nil, err
	}
	return actionCase(r), map[string]interface{}{"average": agg.Average, "count": agg.Count}, nil
}

func (h *Harness) topicRating(ctx context.Context, args map[string]interface{}) (string, map[string]interface{}, error) {
	id, err := intArg(args, "topic_id")
	if err != nil {
		return "", nil, err
	}
	agg, err := h.session.TopicRating(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return CaseOK, map[string]interface{}{"average": agg.Average, "count": agg.Count}, nil
}

func (h *Harness) userTopicRating(ctx context.Context, args map[string]interface{}) (string, map[string]interface{}, error) {
	id, err := intArg(args, "topic_id")
	if err != nil {
		return "", nil, err
	}
	rating, err := h.session.UserTopicRating(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return CaseOK, map[string]interface{}{"rating": rating}, nil
}

func (h *Harness) selectTopic(_ context.Context, args map[string]interface{}) (string, map[string]interface{}, error) {
	id, err := intArg(args, "topic_id")
	if err != nil {
		return "", nil, err
	}
	h.session.SelectTopic(projection.Filter(id))
	return CaseOK, map[string]interface{}{
		"selected_topic": int(h.session.SelectedTopic()),
		"send_target":    h.session.SendTarget(),
	}, nil
}

func (h *Harness) refresh(ctx context.Context, _ map[string]interface{}) (string, map[string]interface{}, error) {
	changed, err := h.session.Refresh(ctx)
	if err != nil {
		return "", nil, err
	}
	return CaseOK, map[string]interface{}{"changed": changed}, nil
}

func (h *Harness) check(ctx context.Context, _ map[string]interface{}) (string, map[string]interface{}, error) {
	state, err := h.session.CheckRegistration(ctx)
	if err != nil {
		return "", nil, err
	}
	return CaseOK, map[string]interface{}{"state": state.String()}, nil
}

func (h *Harness) loadTopics(ctx context.Context, _ map[string]interface{}) (string, map[string]interface{}, error) {
	topics, err := h.session.LoadTopics(ctx)
	if err != nil {
		return "", nil, err
	}
	return CaseOK, map[string]interface{}{"count": len(topics)}, nil
}

func (h *Harness) sync(ctx context.Context, _ map[string]interface{}) (string, map[string]interface{}, error) {
	if err := h.session.Sync(ctx); err != nil {
		return "", nil, err
	}
	return CaseOK, nil, nil
}

func (h *Harness) mine(context.Context, map[string]interface{}) (string, map[string]interface{}, error) {
	pending := h.chain.Pending()
	if err := h.chain.Mine(); err != nil {
		return "", nil, err
	}
	return CaseOK, map[string]interface{}{"mined": pending}, nil
}

func (h *Harness) advance(_ context.Context, args map[string]interface{}) (string, map[string]interface{}, error) {
	s, err := requireArg(args, "duration")
	if err != nil {
		return "", nil, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return "", nil, fmt.Errorf("argument %q: %w", "duration", err)
	}
	h.clock.Advance(d)
	return CaseOK, nil, nil
}

func (h *Harness) failNext(_ context.Context, args map[string]interface{}) (string, map[string]interface{}, error) {
	msg, err := requireArg(args, "message")
	if err != nil {
		return "", nil, err
	}
	h.chain.FailNext(errors.New(msg))
	return CaseOK, nil, nil
}

func (h *Harness) rejectNext(context.Context, map[string]interface{}) (string, map[string]interface{}, error) {
	h.chain.RejectNext()
	return CaseOK, nil, nil
}

func (h *Harness) emit(_ context.Context, args map[string]interface{}) (string, map[string]interface{}, error) {
	name, err := stringArg(args, "event_name")
	if err != nil {
		return "", nil, err
	}
	ev := event.ContractEvent{
		EventName: name,
		Decoded:   boolArg(args, "decoded", true),
	}
	if raw, ok := args["args"]; ok {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return "", nil, fmt.Errorf("argument %q: expected mapping, got %T", "args", raw)
		}
		ev.Args = m
	}
	if _, ok := args["log_index"]; ok {
		idx, err := intArg(args, "log_index")
		if err != nil {
			return "", nil, err
		}
		ev.LogIndex = int64(idx)
	}
	h.chain.Emit(ev)
	return CaseOK, nil, nil
}
