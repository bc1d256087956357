package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/chatsync/internal/collab"
	"github.com/roach88/chatsync/internal/event"
	"github.com/roach88/chatsync/internal/gateway"
	"github.com/roach88/chatsync/internal/ledger"
	"github.com/roach88/chatsync/internal/metrics"
	"github.com/roach88/chatsync/internal/projection"
	"github.com/roach88/chatsync/internal/registration"
)

// Defaults for the session timing options.
const (
	DefaultRecheckInterval    = time.Second
	DefaultRatingRefreshDelay = 500 * time.Millisecond
)

// Result is the outcome of an action submitted through a Session.
type Result struct {
	gateway.Outcome

	// SessionID is the session the action was submitted under.
	SessionID string `json:"sessionId"`

	// Stale is true when the identity changed while the action was in
	// flight. The action itself succeeded but its effect on the current
	// session was discarded; callers can safely ignore it.
	Stale bool `json:"stale,omitempty"`
}

// Session is the reconciliation context of one client.
//
// It owns all state derived for the active identity. Collaborator calls are
// made without holding the session lock; their results are applied only if
// the identity has not changed in the meantime.
//
// Thread-safety: all methods are safe for concurrent use. Run must be called
// from at most one goroutine.
type Session struct {
	source  collab.EventSource
	reader  collab.Reader
	gateway *gateway.Gateway
	machine *registration.Machine
	ids     SessionIDGenerator
	version Version
	wake    *wakeup

	logger      *slog.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	guard       time.Duration
	recheck     time.Duration
	ratingDelay time.Duration
	observer    registration.TransitionFunc

	mu          sync.Mutex
	sessionID   string
	identity    string
	epoch       uint64
	snapshot    []event.ContractEvent
	stamps      map[event.DedupKey]time.Time
	ledger      *ledger.Ledger
	catalog     *projection.Catalog
	filter      projection.Filter
	memo        viewMemo
	ratings     map[int]collab.Rating
	userRatings map[int]int
}

// viewMemo caches the last computed views. Messages depend on the snapshot
// version, the filter and the catalog (bulk loads change names without
// changing the snapshot); karma depends on the version only.
type viewMemo struct {
	messages        []event.Message
	messagesVersion uint64
	messagesFilter  projection.Filter
	messagesTopics  int

	karma        []event.KarmaUpdate
	karmaVersion uint64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithNow replaces the wall clock used for the guard window, ingestion
// timestamps and action latency.
func WithNow(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithSleep replaces the wait used before refreshing a topic rating.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Session) {
		s.sleep = sleep
	}
}

// WithGuardWindow sets the registration guard window.
//
// Default: registration.DefaultGuardWindow (5s).
func WithGuardWindow(d time.Duration) Option {
	return func(s *Session) {
		s.guard = d
	}
}

// WithRecheckInterval sets how often Run re-checks registration while the
// identity is not registered. Default: 1s.
func WithRecheckInterval(d time.Duration) Option {
	return func(s *Session) {
		s.recheck = d
	}
}

// WithRatingRefreshDelay sets how long RateTopic waits before reading the
// new aggregate. Default: 500ms.
func WithRatingRefreshDelay(d time.Duration) Option {
	return func(s *Session) {
		s.ratingDelay = d
	}
}

// WithSessionIDGenerator replaces the session id generator.
// Default: UUIDv7Generator.
func WithSessionIDGenerator(g SessionIDGenerator) Option {
	return func(s *Session) {
		s.ids = g
	}
}

// OnTransition installs an observer for registration state changes. It runs
// after the session's own logging and must not call back into the Session.
func OnTransition(fn registration.TransitionFunc) Option {
	return func(s *Session) {
		s.observer = fn
	}
}

// NewSession creates a session over its collaborators. No identity is active
// until SwitchIdentity is called.
func NewSession(source collab.EventSource, reader collab.Reader, writer collab.Writer, opts ...Option) *Session {
	s := &Session{
		source:      source,
		reader:      reader,
		ids:         UUIDv7Generator{},
		wake:        newWakeup(),
		logger:      slog.Default(),
		now:         time.Now,
		sleep:       sleepContext,
		guard:       registration.DefaultGuardWindow,
		recheck:     DefaultRecheckInterval,
		ratingDelay: DefaultRatingRefreshDelay,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.gateway = gateway.New(writer,
		gateway.WithLogger(s.logger),
		gateway.WithNow(s.now),
	)
	s.machine = registration.New(
		registration.WithGuardWindow(s.guard),
		registration.WithNow(s.now),
		registration.OnTransition(s.onTransition),
	)
	s.resetLocked("")
	return s
}

func (s *Session) onTransition(identity string, from, to registration.State) {
	metrics.ObserveTransition(to.String())
	s.logger.Info("registration transition",
		"identity", identity,
		"from", from.String(),
		"to", to.String(),
	)
	if s.observer != nil {
		s.observer(identity, from, to)
	}
}

// resetLocked rebuilds all session-scoped state for identity.
// Caller must hold s.mu (or be the constructor).
func (s *Session) resetLocked(identity string) {
	s.identity = identity
	s.sessionID = s.ids.Generate()
	s.snapshot = nil
	s.stamps = make(map[event.DedupKey]time.Time)
	s.ledger = ledger.New()
	s.catalog = projection.NewCatalog()
	s.filter = projection.AllTopics
	s.memo = viewMemo{}
	s.ratings = make(map[int]collab.Rating)
	s.userRatings = make(map[int]int)
	s.version.Next()
	s.epoch = s.machine.Reset(identity)
}

// SwitchIdentity makes identity the active account and rebuilds every
// derived view from scratch. An empty identity disconnects. Returns the new
// session id.
func (s *Session) SwitchIdentity(identity string) string {
	s.mu.Lock()
	previous := s.identity
	s.resetLocked(identity)
	sessionID := s.sessionID
	s.mu.Unlock()

	s.logger.Info("identity switched",
		"session", sessionID,
		"identity", identity,
		"previous", previous,
	)
	s.wake.Kick()
	return sessionID
}

// Identity returns the active identity, or "" when disconnected.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SessionID returns the id of the current identity session.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Version returns the current snapshot version.
func (s *Session) Version() uint64 {
	return s.version.Current()
}

// scope captures the identity session an operation starts under.
type scope struct {
	sessionID string
	identity  string
	epoch     uint64
}

func (s *Session) currentScope() scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scope{sessionID: s.sessionID, identity: s.identity, epoch: s.epoch}
}

func (s *Session) identityScope() (scope, error) {
	sc := s.currentScope()
	if sc.identity == "" {
		return sc, ErrNoIdentity
	}
	return sc, nil
}

// activeLocked reports whether sc is still the current session.
func (s *Session) activeLocked(sc scope) bool {
	return s.epoch == sc.epoch
}

func (s *Session) log(sc scope) *slog.Logger {
	return s.logger.With("session", sc.sessionID, "identity", sc.identity)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
