package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chatsync/internal/collab"
	"github.com/roach88/chatsync/internal/gateway"
	"github.com/roach88/chatsync/internal/registration"
	"github.com/roach88/chatsync/internal/testutil"
)

// ============================================================================
// Read-based check
// ============================================================================

func TestSession_CheckRegistrationRegistered(t *testing.T) {
	clock := testutil.NewManualClock()
	reader := &testutil.ScriptedReader{
		Names:  map[string]string{alice: "alice"},
		Topics: []string{"", "Go"},
	}
	reader.SetRegistered(alice, true)
	s := NewSession(testutil.NewStaticSource(), reader, &testutil.RecordingWriter{}, testOptions(clock)...)
	s.SwitchIdentity(alice)

	state, err := s.CheckRegistration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, registration.Registered, state)
	assert.Equal(t, "alice", s.DisplayName())
	assert.Equal(t, []int{0, 1}, topicIDs(s.Topics()), "registration loads the catalog")
}

func TestSession_CheckRegistrationUnregistered(t *testing.T) {
	clock := testutil.NewManualClock()
	reader := &testutil.ScriptedReader{}
	s := NewSession(testutil.NewStaticSource(), reader, &testutil.RecordingWriter{}, testOptions(clock)...)
	s.SwitchIdentity(bob)

	state, err := s.CheckRegistration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, registration.Unregistered, state)
	assert.Equal(t, "", s.DisplayName())
}

func TestSession_CheckRegistrationFailureAllowsRetry(t *testing.T) {
	clock := testutil.NewManualClock()
	reader := &testutil.ScriptedReader{CheckErr: errors.New("rpc timeout")}
	s := NewSession(testutil.NewStaticSource(), reader, &testutil.RecordingWriter{}, testOptions(clock)...)
	s.SwitchIdentity(bob)

	state, err := s.CheckRegistration(context.Background())
	require.Error(t, err)
	assert.True(t, gateway.IsCollaborator(err))
	assert.Equal(t, registration.Unknown, state)

	reader.CheckErr = nil
	state, err = s.CheckRegistration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, registration.Unregistered, state)
	assert.Equal(t, 2, reader.Checks())
}

// ============================================================================
// Register
// ============================================================================

func TestSession_RegisterSynchronousStaysRegistered(t *testing.T) {
	clock := testutil.NewManualClock()
	reader := &testutil.ScriptedReader{}
	writer := &testutil.RecordingWriter{Receipt: collab.Receipt{Synchronous: true}}
	log := &transitionLog{}
	s := NewSession(testutil.NewStaticSource(), reader, writer, testOptions(clock, OnTransition(log.record))...)
	s.SwitchIdentity(bob)
	ctx := context.Background()

	state, err := s.CheckRegistration(ctx)
	require.NoError(t, err)
	require.Equal(t, registration.Unregistered, state)
	log.reset()

	res, err := s.Register(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, gateway.Final, res.Completion)
	assert.False(t, res.Stale)
	assert.Equal(t, []string{"Unregistered->Registering", "Registering->Registered"}, log.get())
	assert.Equal(t, "bob", s.DisplayName())

	// The read path still says false; within the guard window re-checks are
	// suppressed and the state stays Registered.
	clock.Advance(3 * time.Second)
	state, err = s.CheckRegistration(ctx)
	require.NoError(t, err)
	assert.Equal(t, registration.Registered, state)
	assert.Equal(t, 1, reader.Checks())

	// After the window the check is a no-op for a registered identity.
	clock.Advance(3 * time.Second)
	state, err = s.CheckRegistration(ctx)
	require.NoError(t, err)
	assert.Equal(t, registration.Registered, state)
	assert.Equal(t, 1, reader.Checks())
}

func TestSession_RegisterWinsOverInFlightCheck(t *testing.T) {
	clock := testutil.NewManualClock()
	gate := make(chan struct{})
	reader := &testutil.ScriptedReader{CheckGate: gate}
	writer := &testutil.RecordingWriter{Receipt: collab.Receipt{Synchronous: true}}
	s := NewSession(testutil.NewStaticSource(), reader, writer, testOptions(clock)...)
	s.SwitchIdentity(bob)
	ctx := context.Background()

	type checkResult struct {
		state registration.State
		err   error
	}
	done := make(chan checkResult, 1)
	go func() {
		st, err := s.CheckRegistration(ctx)
		done <- checkResult{st, err}
	}()
	require.Eventually(t, func() bool { return reader.Checks() == 1 }, time.Second, time.Millisecond)

	_, err := s.Register(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, registration.Registered, s.RegistrationState())

	// The slow check now resolves to false.
	close(gate)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, registration.Registered, res.state)
	assert.Equal(t, registration.Registered, s.RegistrationState())
}

func TestSession_RegisterPendingIsTreatedAsFinal(t *testing.T) {
	clock := testutil.NewManualClock()
	writer := &testutil.RecordingWriter{Receipt: collab.Receipt{Synchronous: false}}
	s := NewSession(testutil.NewStaticSource(), &testutil.ScriptedReader{}, writer, testOptions(clock)...)
	s.SwitchIdentity(bob)

	res, err := s.Register(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, gateway.Pending, res.Completion)
	assert.Equal(t, registration.Registered, s.RegistrationState())
}

func TestSession_RegisterBlankLeavesStateUnchanged(t *testing.T) {
	clock := testutil.NewManualClock()
	writer := &testutil.RecordingWriter{}
	log := &transitionLog{}
	s := NewSession(testutil.NewStaticSource(), &testutil.ScriptedReader{}, writer, testOptions(clock, OnTransition(log.record))...)
	s.SwitchIdentity(bob)

	_, err := s.Register(context.Background(), "  ")
	require.Error(t, err)
	assert.True(t, gateway.IsValidation(err))
	assert.Equal(t, registration.Unknown, s.RegistrationState())
	assert.Empty(t, log.get())
	assert.Empty(t, writer.Calls())
}

func TestSession_RegisterFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		cancelled bool
	}{
		{"revert", errors.New("execution reverted: user already registered"), false},
		{"rejected", collab.ErrUserRejected, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := testutil.NewManualClock()
			writer := &testutil.RecordingWriter{Err: tt.err}
			s := NewSession(testutil.NewStaticSource(), &testutil.ScriptedReader{}, writer, testOptions(clock)...)
			s.SwitchIdentity(bob)

			_, err := s.Register(context.Background(), "bob")
			require.Error(t, err)
			assert.Equal(t, tt.cancelled, gateway.IsUserCancelled(err))
			assert.Equal(t, !tt.cancelled, gateway.IsCollaborator(err))
			assert.Equal(t, registration.Unregistered, s.RegistrationState())
		})
	}
}

func TestSession_RegisterTwiceIsInvalid(t *testing.T) {
	clock := testutil.NewManualClock()
	writer := &testutil.RecordingWriter{Receipt: collab.Receipt{Synchronous: true}}
	s := NewSession(testutil.NewStaticSource(), &testutil.ScriptedReader{}, writer, testOptions(clock)...)
	s.SwitchIdentity(bob)
	ctx := context.Background()

	_, err := s.Register(ctx, "bob")
	require.NoError(t, err)
	_, err = s.Register(ctx, "bob")
	assert.ErrorIs(t, err, registration.ErrTransition)
	assert.Len(t, writer.Calls(), 1)
}

func TestSession_RegisterCompletingAfterSwitchIsStale(t *testing.T) {
	clock := testutil.NewManualClock()
	gate := make(chan struct{})
	writer := &testutil.RecordingWriter{Receipt: collab.Receipt{Synchronous: true}, Gate: gate}
	s := NewSession(testutil.NewStaticSource(), &testutil.ScriptedReader{}, writer, testOptions(clock)...)
	s.SwitchIdentity(bob)

	done := make(chan Result, 1)
	go func() {
		res, err := s.Register(context.Background(), "bob")
		assert.NoError(t, err)
		done <- res
	}()
	require.Eventually(t, func() bool { return len(writer.Calls()) == 1 }, time.Second, time.Millisecond)

	s.SwitchIdentity(carol)
	close(gate)

	res := <-done
	assert.True(t, res.Stale)
	assert.Equal(t, registration.Unknown, s.RegistrationState())
	assert.Equal(t, carol, s.Identity())
}
