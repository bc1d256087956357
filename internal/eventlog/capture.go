package eventlog

import (
	"context"
	"errors"
	"strings"

	"github.com/roach88/chatsync/internal/collab"
	"github.com/roach88/chatsync/internal/event"
)

// ErrReadOnly is returned by ReadOnlyWriter for every action.
var ErrReadOnly = errors.New("capture replay is read-only")

// CaptureReader answers read-side queries from a captured event stream
// instead of a live contract.
//
// Registration and display names come from UserRegistered events; topics
// from TopicCreated. Ratings are not emitted as events, so every topic reads
// as unrated.
//
// Thread-safety: CaptureReader holds no state of its own and is safe for
// concurrent use if its source is.
type CaptureReader struct {
	source collab.EventSource
}

// NewCaptureReader creates a reader over source.
func NewCaptureReader(source collab.EventSource) *CaptureReader {
	return &CaptureReader{source: source}
}

type captureState struct {
	users  map[string]string
	topics map[int]string
	count  int
}

func (r *CaptureReader) load(ctx context.Context) (captureState, error) {
	events, err := r.source.Events(ctx)
	if err != nil {
		return captureState{}, err
	}
	st := captureState{
		users:  make(map[string]string),
		topics: make(map[int]string),
		count:  1,
	}
	for _, ev := range events {
		if !ev.Decoded {
			continue
		}
		switch ev.EventName {
		case event.NameUserRegistered:
			user, _ := ev.Args["user"].(string)
			name, _ := ev.Args["userId"].(string)
			if user != "" {
				st.users[strings.ToLower(user)] = name
			}
		case event.NameTopicCreated:
			c := event.Classify(ev)
			if c.Topic == nil {
				continue
			}
			st.topics[c.Topic.TopicID] = c.Topic.Topic
			if c.Topic.TopicID+1 > st.count {
				st.count = c.Topic.TopicID + 1
			}
		}
	}
	return st, nil
}

func (r *CaptureReader) IsRegistered(ctx context.Context, identity string) (bool, error) {
	st, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	_, ok := st.users[strings.ToLower(identity)]
	return ok, nil
}

func (r *CaptureReader) DisplayName(ctx context.Context, identity string) (string, error) {
	st, err := r.load(ctx)
	if err != nil {
		return "", err
	}
	return st.users[strings.ToLower(identity)], nil
}

// TopicCount returns one past the highest captured topic id. Topic 0 always
// exists.
func (r *CaptureReader) TopicCount(ctx context.Context) (int, error) {
	st, err := r.load(ctx)
	if err != nil {
		return 0, err
	}
	return st.count, nil
}

func (r *CaptureReader) TopicName(ctx context.Context, id int) (string, error) {
	st, err := r.load(ctx)
	if err != nil {
		return "", err
	}
	return st.topics[id], nil
}

func (r *CaptureReader) TopicRating(ctx context.Context, id int) (collab.RawRating, error) {
	return collab.RawRating{}, nil
}

func (r *CaptureReader) UserTopicRating(ctx context.Context, identity string, id int) (int, error) {
	return 0, nil
}

// ReadOnlyWriter rejects every write with ErrReadOnly.
type ReadOnlyWriter struct{}

func (ReadOnlyWriter) Register(context.Context, string) (collab.Receipt, error) {
	return collab.Receipt{}, ErrReadOnly
}

func (ReadOnlyWriter) SendMessage(context.Context, string) (collab.Receipt, error) {
	return collab.Receipt{}, ErrReadOnly
}

func (ReadOnlyWriter) SendMessageToTopic(context.Context, string, int) (collab.Receipt, error) {
	return collab.Receipt{}, ErrReadOnly
}

func (ReadOnlyWriter) LikeMessage(context.Context, string) (collab.Receipt, error) {
	return collab.Receipt{}, ErrReadOnly
}

func (ReadOnlyWriter) DislikeMessage(context.Context, string) (collab.Receipt, error) {
	return collab.Receipt{}, ErrReadOnly
}

func (ReadOnlyWriter) CreateTopic(context.Context, string) (collab.Receipt, error) {
	return collab.Receipt{}, ErrReadOnly
}

func (ReadOnlyWriter) RateTopic(context.Context, int, int) (collab.Receipt, error) {
	return collab.Receipt{}, ErrReadOnly
}

var (
	_ collab.Reader = (*CaptureReader)(nil)
	_ collab.Writer = ReadOnlyWriter{}
)
