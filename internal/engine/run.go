package engine

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/chatsync/internal/collab"
	"github.com/roach88/chatsync/internal/registration"
)

// Run drives the session until ctx is cancelled or Stop is called.
//
// It refreshes the snapshot whenever the event source signals a change (when
// it implements collab.Notifier) or a write or identity switch kicks the
// loop, and re-checks registration every recheck interval while the identity
// is not registered and the guard window is closed.
//
// On failure the error is logged and the loop continues.
//
// Must be called from exactly ONE goroutine.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info("session loop starting", "recheck_interval", s.recheck)

	var changes <-chan struct{}
	if n, ok := s.source.(collab.Notifier); ok {
		changes = n.Changes()
	}

	var tick <-chan time.Time
	if s.recheck > 0 {
		ticker := time.NewTicker(s.recheck)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.step(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session loop stopping: context cancelled")
			s.wake.Close()
			return ctx.Err()

		case _, ok := <-s.wake.Wait():
			if !ok {
				s.logger.Info("session loop stopping: stopped")
				return nil
			}
			s.step(ctx)

		case <-changes:
			s.step(ctx)

		case <-tick:
			s.recheckRegistration(ctx)
		}
	}
}

// Stop makes Run return.
func (s *Session) Stop() {
	s.wake.Close()
}

// Sync performs one pass of the loop: refresh the snapshot, then run the
// first registration check of a new identity. Both halves are attempted;
// their errors are joined.
func (s *Session) Sync(ctx context.Context) error {
	_, refreshErr := s.Refresh(ctx)
	if s.Identity() == "" || s.machine.State() != registration.Unknown {
		return refreshErr
	}
	_, checkErr := s.CheckRegistration(ctx)
	return errors.Join(refreshErr, checkErr)
}

func (s *Session) step(ctx context.Context) {
	if err := s.Sync(ctx); err != nil {
		s.logger.Error("sync failed", "error", err, "event", "sync_failed")
	}
}

func (s *Session) recheckRegistration(ctx context.Context) {
	if s.Identity() == "" || s.machine.State() == registration.Registered || s.machine.Guarded() {
		return
	}
	if _, err := s.CheckRegistration(ctx); err != nil {
		s.logger.Error("registration re-check failed", "error", err, "event", "check_failed")
	}
}
