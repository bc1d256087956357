package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/chatsync/internal/engine"
	"github.com/roach88/chatsync/internal/gateway"
	"github.com/roach88/chatsync/internal/registration"
	"github.com/roach88/chatsync/internal/simchain"
	"github.com/roach88/chatsync/internal/testutil"
)

// Completion cases recorded in the trace.
const (
	CaseOK                = "ok"
	CaseStale             = "stale"
	CaseValidation        = "validation"
	CaseUserCancelled     = "user_cancelled"
	CaseCollaborator      = "collaborator"
	CaseNoIdentity        = "no_identity"
	CaseInvalidTransition = "invalid_transition"
	CaseError             = "error"
)

// Harness is the scenario execution engine.
// It runs scenarios with a manual clock and a fixed session id.
type Harness struct {
	chain   *simchain.Chain
	session *engine.Session
	clock   *testutil.ManualClock
	logger  *slog.Logger
	seq     int64

	mu          sync.Mutex
	transitions []string
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger sends harness and session logs to l instead of discarding them.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// New builds the chain and session a scenario runs against.
func New(scenario *Scenario, opts ...Option) *Harness {
	cfg := runConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	clock := testutil.NewManualClock()

	chainOpts := []simchain.Option{
		simchain.WithNow(clock.Now),
		simchain.WithTopics(scenario.Chain.Topics...),
	}
	if scenario.Chain.Async {
		chainOpts = append(chainOpts, simchain.WithAsync())
	}
	for _, u := range scenario.Chain.Users {
		chainOpts = append(chainOpts, simchain.WithUser(u.Identity, u.Name))
	}
	chain := simchain.New(chainOpts...)

	h := &Harness{
		chain:  chain,
		clock:  clock,
		logger: cfg.logger,
	}
	h.session = engine.NewSession(chain, chain, chain,
		engine.WithLogger(cfg.logger),
		engine.WithNow(clock.Now),
		engine.WithSleep(h.sleep),
		engine.WithSessionIDGenerator(testutil.NewFixedSessionGenerator(scenario.SessionID)),
		engine.OnTransition(h.recordTransition),
	)
	return h
}

// Session exposes the session under test.
func (h *Harness) Session() *engine.Session {
	return h.session
}

// Chain exposes the simulated contract.
func (h *Harness) Chain() *simchain.Chain {
	return h.chain
}

// sleep advances the manual clock instead of blocking.
func (h *Harness) sleep(_ context.Context, d time.Duration) error {
	h.clock.Advance(d)
	return nil
}

func (h *Harness) recordTransition(_ string, from, to registration.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitions = append(h.transitions, from.String()+"->"+to.String())
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh chain and session. Setup steps must
// succeed; flow steps are checked against their expect clauses; assertions
// are evaluated last. Returns an error only when the scenario could not be
// executed at all.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := New(scenario, opts...)
	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Setup {
		outputCase, res := h.execute(ctx, step, result, scenario.ManualSync)
		if isErrorCase(outputCase) {
			return nil, fmt.Errorf("setup step %d (%s) failed: %s: %v", i, step.Invoke, outputCase, res["message"])
		}
	}

	for i, step := range scenario.Flow {
		outputCase, res := h.execute(ctx, step, result, scenario.ManualSync)
		if step.Expect == nil {
			continue
		}
		if outputCase != step.Expect.Case {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected case %q, got %q (%v)",
				i, step.Invoke, step.Expect.Case, outputCase, res))
			continue
		}
		for key, want := range step.Expect.Result {
			got, ok := res[key]
			if !ok || !valuesEqual(got, want) {
				result.AddError(fmt.Sprintf("flow[%d] %s: result %q: expected %v, got %v",
					i, step.Invoke, key, want, got))
			}
		}
		h.logger.Info("flow step validated",
			"step", i,
			"action", step.Invoke,
			"expected_case", step.Expect.Case,
			"actual_case", outputCase,
		)
	}

	h.mu.Lock()
	result.Transitions = append(result.Transitions, h.transitions...)
	h.mu.Unlock()
	result.Views = h.views()

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

// execute runs one step, traces it and syncs the session afterwards.
func (h *Harness) execute(ctx context.Context, step FlowStep, result *Result, manualSync bool) (string, map[string]interface{}) {
	h.seq++
	result.AddInvocationTrace(step.Invoke, step.Args, h.seq)

	fn := steps[step.Invoke]
	outputCase, res, err := fn(h, ctx, argMap(step.Args))
	if err != nil {
		outputCase = classifyError(err)
		res = map[string]interface{}{"message": err.Error()}
	}

	h.seq++
	result.AddCompletionTrace(outputCase, res, h.seq)

	if !manualSync {
		if err := h.session.Sync(ctx); err != nil {
			h.logger.Warn("sync after step failed", "action", step.Invoke, "error", err)
		}
	}

	h.logger.Info("step completed",
		"seq", h.seq,
		"action", step.Invoke,
		"case", outputCase,
	)
	return outputCase, res
}

// classifyError maps an error onto a trace case.
func classifyError(err error) string {
	switch {
	case gateway.IsValidation(err):
		return CaseValidation
	case gateway.IsUserCancelled(err):
		return CaseUserCancelled
	case gateway.IsCollaborator(err):
		return CaseCollaborator
	case errors.Is(err, engine.ErrNoIdentity):
		return CaseNoIdentity
	case errors.Is(err, registration.ErrTransition):
		return CaseInvalidTransition
	default:
		return CaseError
	}
}

func isErrorCase(c string) bool {
	switch c {
	case CaseValidation, CaseUserCancelled, CaseCollaborator, CaseNoIdentity, CaseInvalidTransition, CaseError:
		return true
	}
	return false
}

// views captures the session's final view tables.
func (h *Harness) views() map[string][]Row {
	s := h.session

	messages := make([]Row, 0)
	for _, m := range s.Messages() {
		messages = append(messages, Row{
			"message_id": m.MessageID,
			"user":       m.User,
			"user_id":    m.UserID,
			"text":       m.Text,
			"topic":      m.Topic,
		})
	}

	karma := make([]Row, 0)
	for _, k := range s.Karma() {
		karma = append(karma, Row{
			"user":    k.User,
			"user_id": k.UserID,
			"karma":   k.Karma,
		})
	}

	topics := make([]Row, 0)
	for _, t := range s.Topics() {
		topics = append(topics, Row{
			"id":   t.ID,
			"name": t.Name,
		})
	}

	session := []Row{{
		"identity":       s.Identity(),
		"session_id":     s.SessionID(),
		"state":          s.RegistrationState().String(),
		"display_name":   s.DisplayName(),
		"selected_topic": int(s.SelectedTopic()),
		"send_target":    s.SendTarget(),
	}}

	return map[string][]Row{
		TableMessages: messages,
		TableKarma:    karma,
		TableTopics:   topics,
		TableSession:  session,
	}
}

func argMap(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

func stringArg(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case int, int64, float64, bool:
		return fmt.Sprint(s), nil
	}
	return "", fmt.Errorf("argument %q: expected string, got %T", key, v)
}

func intArg(args map[string]interface{}, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("argument %q is required", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("argument %q: expected integer, got %v", key, v)
}

func boolArg(args map[string]interface{}, key string, def bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return def
}

func requireArg(args map[string]interface{}, key string) (string, error) {
	if _, ok := args[key]; !ok {
		return "", fmt.Errorf("argument %q is required", key)
	}
	return stringArg(args, key)
}
