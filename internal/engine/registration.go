package engine

import (
	"context"
	"fmt"

	"github.com/roach88/chatsync/internal/event"
	"github.com/roach88/chatsync/internal/gateway"
	"github.com/roach88/chatsync/internal/metrics"
	"github.com/roach88/chatsync/internal/registration"
)

// RegistrationState returns the registration state of the active identity.
func (s *Session) RegistrationState() registration.State {
	return s.machine.State()
}

// DisplayName returns the registered display name of the active identity,
// or "" while it is not registered.
func (s *Session) DisplayName() string {
	return s.machine.DisplayName()
}

// CheckRegistration runs the read-based registration check.
//
// The check is skipped, returning the current state, when the identity is
// already registered, a check or registration is in flight, or the guard
// window is open. A positive result fetches the display name and bulk-loads
// the topic catalog.
func (s *Session) CheckRegistration(ctx context.Context) (registration.State, error) {
	sc, err := s.identityScope()
	if err != nil {
		return s.machine.State(), err
	}
	lg := s.log(sc)

	s.mu.Lock()
	if !s.activeLocked(sc) {
		s.mu.Unlock()
		return s.machine.State(), nil
	}
	epoch, ok := s.machine.BeginCheck()
	s.mu.Unlock()
	if !ok {
		lg.Debug("registration check skipped",
			"state", s.machine.State().String(),
			"guarded", s.machine.Guarded(),
		)
		return s.machine.State(), nil
	}

	registered, err := s.reader.IsRegistered(ctx, sc.identity)
	if err != nil {
		s.machine.FailCheck(epoch)
		lg.Warn("registration check failed", "error", err)
		return s.machine.State(), readError(opCheckRegistration, err)
	}

	var name string
	if registered {
		name, err = s.reader.DisplayName(ctx, sc.identity)
		if err != nil {
			s.machine.FailCheck(epoch)
			lg.Warn("display name lookup failed", "error", err)
			return s.machine.State(), readError(opCheckRegistration, err)
		}
	}

	state, applied := s.machine.CompleteCheck(epoch, registered, name)
	if !applied {
		lg.Info("stale registration check ignored",
			"reported", registered,
			"state", state.String(),
		)
		return state, nil
	}

	if state == registration.Registered {
		if _, err := s.LoadTopics(ctx); err != nil {
			return state, err
		}
	}
	return state, nil
}

// LoadTopics reads every topic from the contract and merges them into the
// catalog by id. Existing ids keep their name. Returns the topics added.
//
// Nothing is merged if any read fails or ctx ends during the load.
func (s *Session) LoadTopics(ctx context.Context) ([]event.Topic, error) {
	sc, err := s.identityScope()
	if err != nil {
		return nil, err
	}

	count, err := s.reader.TopicCount(ctx)
	if err != nil {
		return nil, readError(opLoadTopics, err)
	}
	if count < 0 {
		return nil, readError(opLoadTopics, fmt.Errorf("negative topic count %d", count))
	}
	var topics []event.Topic
	for id := 0; id < count; id++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, err := s.reader.TopicName(ctx, id)
		if err != nil {
			return nil, readError(opLoadTopics, err)
		}
		topics = append(topics, event.Topic{ID: id, Name: name})
	}

	s.mu.Lock()
	if !s.activeLocked(sc) {
		s.mu.Unlock()
		s.log(sc).Info("discarding topic load for stale session", "count", count)
		return nil, nil
	}
	added := s.catalog.MergeBulk(topics)
	s.mu.Unlock()

	metrics.ObserveTopicMerge(metrics.MergeBulk, len(added))
	s.log(sc).Info("topics loaded", "count", count, "added", len(added))
	return added, nil
}

// Register submits a registration under name.
//
// Success of either completion kind marks the identity Registered at once
// and opens the guard window; a failure reverts to Unregistered. A blank name
// fails validation without touching the state machine.
func (s *Session) Register(ctx context.Context, name string) (Result, error) {
	sc, err := s.identityScope()
	if err != nil {
		return Result{}, err
	}
	if err := requireText(gateway.ActionRegister, name, "please enter a username"); err != nil {
		return Result{}, err
	}
	lg := s.log(sc)

	s.mu.Lock()
	if !s.activeLocked(sc) {
		s.mu.Unlock()
		return Result{}, ErrNoIdentity
	}
	epoch, err := s.machine.BeginRegister()
	s.mu.Unlock()
	if err != nil {
		return Result{}, err
	}

	out, err := s.gateway.Register(ctx, name)
	if err != nil {
		s.machine.FailRegister(epoch)
		return Result{}, err
	}

	res := Result{Outcome: out, SessionID: sc.sessionID}
	if !s.machine.CompleteRegister(epoch, name) {
		res.Stale = true
		lg.Info("registration completed for stale session", "tx", out.TxHash)
		return res, nil
	}

	if _, err := s.LoadTopics(ctx); err != nil {
		lg.Warn("topic load after registration failed", "error", err)
	}
	s.wake.Kick()
	return res, nil
}
