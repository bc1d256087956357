// Package registration tracks whether the active identity is registered,
// reconciling read-based checks with the user's own optimistic registration.
//
// THE RACE:
//
// A registration check is a read that may have been issued before the user's
// register write became visible on the read path. If it resolves late it
// reports "not registered" for an identity that just registered. Two guards
// stop that stale read from regressing the state:
//
//  1. Registered is sticky. A check result never moves the machine out of
//     Registered; only Reset (an identity switch) does.
//  2. For a guard window after reaching Registered, BeginCheck refuses to start
//     automatic re-checks at all.
//
// Every operation that spans a collaborator call is bracketed by a Begin and a
// Complete/Fail step. Begin returns the epoch it ran under; results carrying an
// older epoch (the identity changed meanwhile) are ignored.
package registration

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the registration state of the active identity.
type State int

const (
	Unknown State = iota
	Checking
	Unregistered
	Registering
	Registered
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unknown:
		return "Unknown"
	case Checking:
		return "Checking"
	case Unregistered:
		return "Unregistered"
	case Registering:
		return "Registering"
	case Registered:
		return "Registered"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DefaultGuardWindow is how long automatic re-checks stay suppressed after
// the machine reaches Registered.
const DefaultGuardWindow = 5 * time.Second

// ErrTransition is returned when an operation is not valid in the current state.
var ErrTransition = errors.New("invalid registration transition")

// TransitionFunc observes state changes.
type TransitionFunc func(identity string, from, to State)

// Machine is the per-identity registration state machine.
//
// Thread-safety: all methods are safe for concurrent use. Collaborator calls
// happen outside the machine between a Begin and its matching Complete.
type Machine struct {
	mu          sync.Mutex
	state       State
	identity    string
	displayName string
	epoch       uint64
	guardUntil  time.Time

	guard        time.Duration
	now          func() time.Time
	onTransition TransitionFunc
}

// Option configures a Machine.
type Option func(*Machine)

// WithGuardWindow sets the sticky guard window. Non-positive values disable it.
func WithGuardWindow(d time.Duration) Option {
	return func(m *Machine) {
		m.guard = d
	}
}

// WithNow replaces the wall clock used for the guard window.
func WithNow(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// OnTransition installs an observer called after every state change, outside
// the machine's lock.
func OnTransition(fn TransitionFunc) Option {
	return func(m *Machine) {
		m.onTransition = fn
	}
}

// New creates a machine in state Unknown with no identity.
func New(opts ...Option) *Machine {
	m := &Machine{
		state: Unknown,
		guard: DefaultGuardWindow,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reset restarts the machine from Unknown for a new identity and returns the
// new epoch. Results of operations begun under earlier epochs are dropped.
func (m *Machine) Reset(identity string) uint64 {
	m.mu.Lock()
	from := m.state
	m.epoch++
	m.identity = identity
	m.displayName = ""
	m.guardUntil = time.Time{}
	m.state = Unknown
	epoch := m.epoch
	m.mu.Unlock()

	m.notify(identity, from, Unknown)
	return epoch
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identity returns the identity the machine currently tracks.
func (m *Machine) Identity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// DisplayName returns the name stored when the identity became registered.
func (m *Machine) DisplayName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.displayName
}

// Epoch returns the current epoch.
func (m *Machine) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// Guarded reports whether the sticky guard window is still open.
func (m *Machine) Guarded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.guardedLocked()
}

func (m *Machine) guardedLocked() bool {
	return !m.guardUntil.IsZero() && m.now().Before(m.guardUntil)
}

// BeginCheck moves Unknown or Unregistered to Checking so the caller can run
// the read-based check. It reports false, leaving the state untouched, when
// there is no identity, a check or registration is already in flight, the
// identity is already Registered, or the guard window is open.
func (m *Machine) BeginCheck() (uint64, bool) {
	m.mu.Lock()
	if m.identity == "" || m.guardedLocked() {
		m.mu.Unlock()
		return 0, false
	}
	switch m.state {
	case Unknown, Unregistered:
	default:
		m.mu.Unlock()
		return 0, false
	}
	from := m.state
	m.state = Checking
	epoch, identity := m.epoch, m.identity
	m.mu.Unlock()

	m.notify(identity, from, Checking)
	return epoch, true
}

// CompleteCheck applies the result of a check begun under epoch. A stale
// epoch, or a machine that left Checking meanwhile (for example because a
// registration completed), ignores the result. Returns the resulting state and
// whether the result was applied.
func (m *Machine) CompleteCheck(epoch uint64, registered bool, displayName string) (State, bool) {
	m.mu.Lock()
	if epoch != m.epoch || m.state != Checking {
		s := m.state
		m.mu.Unlock()
		return s, false
	}
	to := Unregistered
	if registered {
		to = Registered
		m.displayName = displayName
		if m.guard > 0 {
			m.guardUntil = m.now().Add(m.guard)
		}
	}
	m.state = to
	identity := m.identity
	m.mu.Unlock()

	m.notify(identity, Checking, to)
	return to, true
}

// FailCheck returns a machine still in Checking under epoch to Unknown so a
// later check can retry.
func (m *Machine) FailCheck(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.state != Checking {
		m.mu.Unlock()
		return
	}
	m.state = Unknown
	identity := m.identity
	m.mu.Unlock()

	m.notify(identity, Checking, Unknown)
}

// BeginRegister moves the machine to Registering. Valid from Unknown,
// Checking and Unregistered; a pending check is superseded.
func (m *Machine) BeginRegister() (uint64, error) {
	m.mu.Lock()
	if m.identity == "" {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: no active identity", ErrTransition)
	}
	switch m.state {
	case Unknown, Checking, Unregistered:
	default:
		s := m.state
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: cannot register from %s", ErrTransition, s)
	}
	from := m.state
	m.state = Registering
	epoch, identity := m.epoch, m.identity
	m.mu.Unlock()

	m.notify(identity, from, Registering)
	return epoch, nil
}

// CompleteRegister marks the identity Registered as soon as the write
// completes, whether its confirmation was synchronous or not, and opens the
// guard window. Returns false if epoch is stale.
func (m *Machine) CompleteRegister(epoch uint64, displayName string) bool {
	m.mu.Lock()
	if epoch != m.epoch || m.state != Registering {
		m.mu.Unlock()
		return false
	}
	m.state = Registered
	m.displayName = displayName
	if m.guard > 0 {
		m.guardUntil = m.now().Add(m.guard)
	}
	identity := m.identity
	m.mu.Unlock()

	m.notify(identity, Registering, Registered)
	return true
}

// FailRegister reverts Registering to Unregistered. Returns false if epoch is
// stale.
func (m *Machine) FailRegister(epoch uint64) bool {
	m.mu.Lock()
	if epoch != m.epoch || m.state != Registering {
		m.mu.Unlock()
		return false
	}
	m.state = Unregistered
	identity := m.identity
	m.mu.Unlock()

	m.notify(identity, Registering, Unregistered)
	return true
}

func (m *Machine) notify(identity string, from, to State) {
	if m.onTransition != nil && from != to {
		m.onTransition(identity, from, to)
	}
}
