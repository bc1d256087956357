package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/chatsync/internal/collab"
	"github.com/roach88/chatsync/internal/event"
)

// Call records one writer invocation.
type Call struct {
	Method string
	Args   []any
}

// RecordingWriter is a collab.Writer that records every call and answers
// with a configurable receipt or error.
//
// When Gate is non-nil each call blocks until a value is received from it (or
// the context ends), which lets tests hold a write in flight.
type RecordingWriter struct {
	mu      sync.Mutex
	calls   []Call
	Receipt collab.Receipt
	Err     error
	Gate    chan struct{}
}

// Calls returns a copy of the recorded calls.
func (w *RecordingWriter) Calls() []Call {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Call, len(w.calls))
	copy(out, w.calls)
	return out
}

func (w *RecordingWriter) record(ctx context.Context, method string, args ...any) (collab.Receipt, error) {
	w.mu.Lock()
	w.calls = append(w.calls, Call{Method: method, Args: args})
	gate, receipt, err := w.Gate, w.Receipt, w.Err
	w.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return collab.Receipt{}, ctx.Err()
		}
	}
	return receipt, err
}

func (w *RecordingWriter) Register(ctx context.Context, name string) (collab.Receipt, error) {
	return w.record(ctx, "Register", name)
}

func (w *RecordingWriter) SendMessage(ctx context.Context, text string) (collab.Receipt, error) {
	return w.record(ctx, "SendMessage", text)
}

func (w *RecordingWriter) SendMessageToTopic(ctx context.Context, text string, topicID int) (collab.Receipt, error) {
	return w.record(ctx, "SendMessageToTopic", text, topicID)
}

func (w *RecordingWriter) LikeMessage(ctx context.Context, msgID string) (collab.Receipt, error) {
	return w.record(ctx, "LikeMessage", msgID)
}

func (w *RecordingWriter) DislikeMessage(ctx context.Context, msgID string) (collab.Receipt, error) {
	return w.record(ctx, "DislikeMessage", msgID)
}

func (w *RecordingWriter) CreateTopic(ctx context.Context, name string) (collab.Receipt, error) {
	return w.record(ctx, "CreateTopic", name)
}

func (w *RecordingWriter) RateTopic(ctx context.Context, topicID, rating int) (collab.Receipt, error) {
	return w.record(ctx, "RateTopic", topicID, rating)
}

// ScriptedReader is a collab.Reader answering from fixed tables.
//
// When CheckGate is non-nil, IsRegistered blocks until a value is received
// from it, modelling a slow read that resolves after other events.
type ScriptedReader struct {
	mu         sync.Mutex
	Registered map[string]bool
	Names      map[string]string
	Topics     []string
	Ratings    map[int]collab.RawRating
	UserRates  map[string]int // key: identity + "/" + topic id
	CheckErr   error
	CheckGate  chan struct{}
	checks     int
}

// SetRegistered updates the registration table.
func (r *ScriptedReader) SetRegistered(identity string, registered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Registered == nil {
		r.Registered = make(map[string]bool)
	}
	r.Registered[identity] = registered
}

// Checks returns how many times IsRegistered was called.
func (r *ScriptedReader) Checks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checks
}

func (r *ScriptedReader) IsRegistered(ctx context.Context, identity string) (bool, error) {
	r.mu.Lock()
	r.checks++
	gate := r.CheckGate
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CheckErr != nil {
		return false, r.CheckErr
	}
	return r.Registered[identity], nil
}

func (r *ScriptedReader) DisplayName(_ context.Context, identity string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Names[identity], nil
}

func (r *ScriptedReader) TopicCount(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Topics), nil
}

func (r *ScriptedReader) TopicName(_ context.Context, id int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= len(r.Topics) {
		return "", fmt.Errorf("topic %d does not exist", id)
	}
	return r.Topics[id], nil
}

func (r *ScriptedReader) TopicRating(_ context.Context, id int) (collab.RawRating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Ratings[id], nil
}

func (r *ScriptedReader) UserTopicRating(_ context.Context, identity string, id int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.UserRates[fmt.Sprintf("%s/%d", identity, id)], nil
}

// StaticSource is a collab.EventSource over a growing event list. It also
// implements collab.Notifier: Append signals the change channel.
type StaticSource struct {
	mu      sync.Mutex
	events  []event.ContractEvent
	changes chan struct{}
	Err     error
}

// NewStaticSource creates a source holding events.
func NewStaticSource(events ...event.ContractEvent) *StaticSource {
	return &StaticSource{
		events:  append([]event.ContractEvent(nil), events...),
		changes: make(chan struct{}, 1),
	}
}

// Append adds events to the snapshot and signals a change.
func (s *StaticSource) Append(events ...event.ContractEvent) {
	s.mu.Lock()
	s.events = append(s.events, events...)
	s.mu.Unlock()
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Events returns a copy of the current snapshot.
func (s *StaticSource) Events(context.Context) ([]event.ContractEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]event.ContractEvent, len(s.events))
	copy(out, s.events)
	return out, nil
}

// Changes implements collab.Notifier.
func (s *StaticSource) Changes() <-chan struct{} {
	return s.changes
}
