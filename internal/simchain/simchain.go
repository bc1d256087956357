// Package simchain is an in-memory ChatApp contract.
//
// A Chain implements every collaborator the engine consumes: the
// registration check, the topic read side, the writer (acting as the
// connected wallet) and the event source with change notifications.
//
// In synchronous mode every write is applied at once and its receipt is
// final. In asynchronous mode writes are queued and only applied by Mine, so
// the read side lags behind the writer the way a real network does.
package simchain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/chatsync/internal/collab"
	"github.com/roach88/chatsync/internal/event"
)

// Revert reasons.
var (
	ErrNoCaller          = errors.New("no wallet connected")
	ErrAlreadyRegistered = errors.New("execution reverted: user already registered")
	ErrNotRegistered     = errors.New("execution reverted: user not registered")
	ErrNoSuchMessage     = errors.New("execution reverted: message does not exist")
	ErrNoSuchTopic       = errors.New("execution reverted: topic does not exist")
	ErrBadRating         = errors.New("execution reverted: rating must be between 1 and 5")
)

type user struct {
	name  string
	karma int64
}

type topic struct {
	name    string
	ratings map[string]int
}

type message struct {
	author string
}

type pending struct {
	caller string
	apply  func(caller string) error
}

// Chain is the simulated contract.
//
// Thread-safety: all methods are safe for concurrent use.
type Chain struct {
	mu          sync.Mutex
	now         func() time.Time
	synchronous bool
	caller      string
	users       map[string]*user
	topics      []*topic
	messages    []message
	events      []event.ContractEvent
	txs         int
	queue       []pending
	failNext    error
	changes     chan struct{}
}

// Option configures a Chain.
type Option func(*Chain)

// WithNow sets the clock used for event timestamps.
func WithNow(now func() time.Time) Option {
	return func(c *Chain) {
		c.now = now
	}
}

// WithAsync makes writes pending until Mine is called.
func WithAsync() Option {
	return func(c *Chain) {
		c.synchronous = false
	}
}

// WithTopics seeds additional topics after topic 0. No events are emitted
// for seeded topics, as if they were created before the capture started.
func WithTopics(names ...string) Option {
	return func(c *Chain) {
		for _, n := range names {
			c.topics = append(c.topics, &topic{name: n, ratings: make(map[string]int)})
		}
	}
}

// WithUser seeds a registered user without emitting an event.
func WithUser(identity, name string) Option {
	return func(c *Chain) {
		c.users[identity] = &user{name: name}
	}
}

// New creates a chain holding topic 0 with an empty name.
func New(opts ...Option) *Chain {
	c := &Chain{
		now:         time.Now,
		synchronous: true,
		users:       make(map[string]*user),
		topics:      []*topic{{ratings: make(map[string]int)}},
		changes:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect sets the wallet that signs subsequent writes.
func (c *Chain) Connect(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caller = identity
}

// FailNext makes the next write fail with err before it is submitted.
func (c *Chain) FailNext(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = err
}

// RejectNext makes the next write fail as if the user declined to sign it.
func (c *Chain) RejectNext() {
	c.FailNext(fmt.Errorf("wallet: %w", collab.ErrUserRejected))
}

// Pending returns the number of queued writes.
func (c *Chain) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Mine applies all queued writes in submission order. Writes that became
// invalid meanwhile are dropped; the first such error is returned.
func (c *Chain) Mine() error {
	c.mu.Lock()
	queue := c.queue
	c.queue = nil
	var first error
	for _, p := range queue {
		if err := p.apply(p.caller); err != nil && first == nil {
			first = err
		}
	}
	c.mu.Unlock()

	c.signal()
	return first
}

// Emit appends a raw event to the log, as a foreign contract or a malformed
// log would. Used to exercise classification of unexpected input.
func (c *Chain) Emit(ev event.ContractEvent) {
	c.mu.Lock()
	if ev.TransactionHash == "" {
		ev.TransactionHash = c.nextTxLocked()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.now()
	}
	c.events = append(c.events, ev)
	c.mu.Unlock()

	c.signal()
}

func (c *Chain) signal() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

func (c *Chain) nextTxLocked() string {
	c.txs++
	return txHash(c.txs)
}

func txHash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

func (c *Chain) emitLocked(tx string, index int64, name string, args map[string]any) {
	c.events = append(c.events, event.ContractEvent{
		EventName:       name,
		Decoded:         true,
		Args:            args,
		TransactionHash: tx,
		LogIndex:        index,
		Timestamp:       c.now(),
	})
}

// ============================================================================
// collab.EventSource and collab.Notifier
// ============================================================================

// Events returns a copy of the full event log.
func (c *Chain) Events(context.Context) ([]event.ContractEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.ContractEvent, len(c.events))
	copy(out, c.events)
	return out, nil
}

// Changes signals whenever the event log grows.
func (c *Chain) Changes() <-chan struct{} {
	return c.changes
}

// ============================================================================
// collab.Reader
// ============================================================================

func (c *Chain) IsRegistered(_ context.Context, identity string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.users[identity]
	return ok, nil
}

func (c *Chain) DisplayName(_ context.Context, identity string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.users[identity]; ok {
		return u.name, nil
	}
	return "", nil
}

func (c *Chain) TopicCount(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.topics), nil
}

func (c *Chain) TopicName(_ context.Context, id int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.topicLocked(id)
	if err != nil {
		return "", err
	}
	return t.name, nil
}

// TopicRating reports the average as an integer percentage, truncated.
func (c *Chain) TopicRating(_ context.Context, id int) (collab.RawRating, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.topicLocked(id)
	if err != nil {
		return collab.RawRating{}, err
	}
	var sum int64
	for _, r := range t.ratings {
		sum += int64(r)
	}
	n := int64(len(t.ratings))
	if n == 0 {
		return collab.RawRating{}, nil
	}
	return collab.RawRating{AveragePercent: sum * 100 / n, Count: n}, nil
}

func (c *Chain) UserTopicRating(_ context.Context, identity string, id int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.topicLocked(id)
	if err != nil {
		return 0, err
	}
	return t.ratings[identity], nil
}

func (c *Chain) topicLocked(id int) (*topic, error) {
	if id < 0 || id >= len(c.topics) {
		return nil, ErrNoSuchTopic
	}
	return c.topics[id], nil
}
