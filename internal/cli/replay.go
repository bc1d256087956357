package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chatsync/internal/collab"
	"github.com/roach88/chatsync/internal/config"
	"github.com/roach88/chatsync/internal/engine"
	"github.com/roach88/chatsync/internal/event"
	"github.com/roach88/chatsync/internal/eventlog"
	"github.com/roach88/chatsync/internal/projection"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	File     string
	Identity string
	Topic    int

	// SessionIDs allows overriding the session id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	SessionIDs engine.SessionIDGenerator

	// Now overrides the ingestion clock (for testing). Both passes of a
	// replay stamp undated events with the same instant.
	Now func() time.Time
}

// ReplayResult holds the derived views of a replayed capture.
type ReplayResult struct {
	SessionID     string              `json:"sessionId"`
	Identity      string              `json:"identity,omitempty"`
	Registration  string              `json:"registration"`
	DisplayName   string              `json:"displayName,omitempty"`
	Events        int                 `json:"events"`
	Topic         string              `json:"topic"`
	Topics        []event.Topic       `json:"topics"`
	Messages      []event.Message     `json:"messages"`
	Karma         []event.KarmaUpdate `json:"karma"`
	Deterministic bool                `json:"deterministic"`
}

func (r ReplayResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "Session %s", r.SessionID)
	if r.Identity != "" {
		fmt.Fprintf(w, " as %s (%s", r.Identity, r.Registration)
		if r.DisplayName != "" {
			fmt.Fprintf(w, ", %s", r.DisplayName)
		}
		fmt.Fprint(w, ")")
	}
	fmt.Fprintf(w, ": %d events\n", r.Events)

	fmt.Fprintf(w, "\nTopics (%d):\n", len(r.Topics))
	for _, t := range r.Topics {
		fmt.Fprintf(w, "  #%d %s\n", t.ID, t.DisplayName())
	}

	fmt.Fprintf(w, "\nMessages in %s (%d):\n", r.Topic, len(r.Messages))
	for _, m := range r.Messages {
		name := m.UserID
		if name == "" {
			name = m.User
		}
		fmt.Fprintf(w, "  [%s] %s: %s\n", m.MessageID, name, m.Text)
	}

	fmt.Fprintf(w, "\nKarma (%d):\n", len(r.Karma))
	for _, k := range r.Karma {
		fmt.Fprintf(w, "  %s %s\n", k.User, k.Karma)
	}

	fmt.Fprintln(w)
	if r.Deterministic {
		fmt.Fprintln(w, "✓ Replay deterministic")
	} else {
		fmt.Fprintln(w, "✗ Replay NOT deterministic")
	}
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	return newReplayCommand(&ReplayOptions{RootOptions: rootOpts})
}

func newReplayCommand(opts *ReplayOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a capture through the engine",
		Long: `Replay captured contract events through a fresh engine session and
print the derived views: topic catalog, messages and karma feed.

The capture is read from the event log (--db, or the configured one) or
from a YAML capture file (--file). With --identity the session switches to
that identity and checks its registration against UserRegistered events
in the capture.

The capture is replayed twice; differing views mean the derivation is
not deterministic.

Exit codes:
  0 - Replay succeeded and is deterministic
  1 - Replay is not deterministic
  2 - Command error (no capture, unreadable log, etc.)

Examples:
  chatsync replay --db ./events.db
  chatsync replay --file ./captures.yaml --identity 0xabc --topic 2
  chatsync replay --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite event log")
	cmd.Flags().StringVar(&opts.File, "file", "", "path to a YAML capture file instead of the event log")
	cmd.Flags().StringVar(&opts.Identity, "identity", "", "identity to view the capture as")
	cmd.Flags().IntVar(&opts.Topic, "topic", int(projection.AllTopics), "topic id to show messages for (-1 for all)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	logger := opts.Logger()
	ctx := cmd.Context()

	source, closeSource, err := replaySource(opts)
	if err != nil {
		return err
	}
	defer closeSource()

	ids := opts.SessionIDs
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}
	now := opts.Now
	if now == nil {
		at := time.Now()
		now = func() time.Time { return at }
	}

	first, err := replayOnce(ctx, opts, source, ids, now, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}
	second, err := replayOnce(ctx, opts, source, ids, now, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	first.Deterministic = sameViews(first, second)
	f := opts.formatter(cmd)
	if !first.Deterministic {
		if err := f.Failure(CodeReplay, "replay is not deterministic", first); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "replay is not deterministic")
	}
	return f.Success(first)
}

// replaySource opens the capture named by the flags.
func replaySource(opts *ReplayOptions) (collab.EventSource, func(), error) {
	if opts.File != "" {
		if opts.Database != "" {
			return nil, nil, NewExitError(ExitCommandError, "--db and --file are mutually exclusive")
		}
		events, err := loadCaptures(opts.File)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to load captures", err)
		}
		return captureSource(events), func() {}, nil
	}

	log, err := openEventLog(opts.RootOptions, opts.Database)
	if err != nil {
		return nil, nil, err
	}
	return log, func() {
		if closeErr := log.Close(); closeErr != nil {
			opts.Logger().Error("error closing event log", "error", closeErr)
		}
	}, nil
}

// newCaptureSession builds an engine session over a capture: reads are
// answered from the capture with retries, writes are refused.
func newCaptureSession(cfg config.Config, source collab.EventSource, ids engine.SessionIDGenerator, logger *slog.Logger, opts ...engine.Option) *engine.Session {
	reader := collab.NewRetryingReader(eventlog.NewCaptureReader(source), collab.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseBackoff: cfg.Retry.BaseBackoff,
		MaxInterval: cfg.Retry.MaxInterval,
	})
	return engine.NewSession(source, reader, eventlog.ReadOnlyWriter{}, append([]engine.Option{
		engine.WithLogger(logger),
		engine.WithGuardWindow(cfg.GuardWindow),
		engine.WithRecheckInterval(cfg.RecheckInterval),
		engine.WithRatingRefreshDelay(cfg.RatingRefreshDelay),
		engine.WithSessionIDGenerator(ids),
	}, opts...)...)
}

func replayOnce(ctx context.Context, opts *ReplayOptions, source collab.EventSource, ids engine.SessionIDGenerator, now func() time.Time, logger *slog.Logger) (ReplayResult, error) {
	s := newCaptureSession(opts.Config(), source, ids, logger, engine.WithNow(now))
	if opts.Identity != "" {
		s.SwitchIdentity(opts.Identity)
	}
	if err := s.Sync(ctx); err != nil {
		return ReplayResult{}, err
	}
	if opts.Identity != "" {
		if _, err := s.LoadTopics(ctx); err != nil {
			return ReplayResult{}, err
		}
	}
	filter := projection.Filter(opts.Topic)
	s.SelectTopic(filter)

	return ReplayResult{
		SessionID:    s.SessionID(),
		Identity:     s.Identity(),
		Registration: s.RegistrationState().String(),
		DisplayName:  s.DisplayName(),
		Events:       len(s.Snapshot()),
		Topic:        topicLabel(filter, s.Topics()),
		Topics:       s.Topics(),
		Messages:     s.Messages(),
		Karma:        s.Karma(),
	}, nil
}

func topicLabel(f projection.Filter, topics []event.Topic) string {
	if f == projection.AllTopics {
		return "all topics"
	}
	for _, t := range topics {
		if t.ID == int(f) {
			return fmt.Sprintf("#%d %s", t.ID, t.DisplayName())
		}
	}
	return fmt.Sprintf("#%d", int(f))
}

// sameViews compares two replays, ignoring the session id.
func sameViews(a, b ReplayResult) bool {
	a.SessionID, b.SessionID = "", ""
	return reflect.DeepEqual(a, b)
}

// captureSource serves a fixed capture.
type captureSource []event.ContractEvent

func (c captureSource) Events(context.Context) ([]event.ContractEvent, error) {
	out := make([]event.ContractEvent, len(c))
	copy(out, c)
	return out, nil
}
