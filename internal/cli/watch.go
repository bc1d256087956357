package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chatsync/internal/engine"
	"github.com/roach88/chatsync/internal/projection"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Database string
	Identity string
	Topic    int
	Poll     time.Duration

	// SessionIDs allows overriding the session id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	SessionIDs engine.SessionIDGenerator
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return newWatchCommand(&WatchOptions{RootOptions: rootOpts})
}

func newWatchCommand(opts *WatchOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the session loop over the event log",
		Long: `Run the engine's session loop over the event log and print messages
as they arrive. Events appended by another process (for example a
concurrent "chatsync import") are picked up by polling the log.

Example:
  chatsync watch --db ./events.db --identity 0xabc
  chatsync watch --poll 500ms --topic 0`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite event log")
	cmd.Flags().StringVar(&opts.Identity, "identity", "", "identity to watch as")
	cmd.Flags().IntVar(&opts.Topic, "topic", int(projection.AllTopics), "topic id to show messages for (-1 for all)")
	cmd.Flags().DurationVar(&opts.Poll, "poll", time.Second, "how often to check the log for appends from other processes")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	logger := opts.Logger()
	if opts.Poll <= 0 {
		return NewExitError(ExitCommandError, "--poll must be positive")
	}

	log, err := openEventLog(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := log.Close(); closeErr != nil {
			logger.Error("error closing event log", "error", closeErr)
		}
	}()

	ids := opts.SessionIDs
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}
	s := newCaptureSession(opts.Config(), log, ids, logger)
	if opts.Identity != "" {
		s.SwitchIdentity(opts.Identity)
	}
	s.SelectTopic(projection.Filter(opts.Topic))

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		if err := log.Poll(ctx, opts.Poll); err != nil && ctx.Err() == nil {
			logger.Error("event log poll failed", "error", err)
		}
	}()
	defer func() { <-pollDone }()

	w := cmd.OutOrStdout()
	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		ticker := time.NewTicker(opts.Poll)
		defer ticker.Stop()
		var seen uint64
		printed := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if v := s.Version(); v != seen {
					seen = v
					printed = printNewMessages(w, s, printed)
				}
			}
		}
	}()
	defer func() { <-printerDone }()
	defer cancel()

	logger.Info("watch starting", "identity", opts.Identity, "poll", opts.Poll)
	fmt.Fprintln(w, "Watching event log. Press Ctrl-C to stop.")

	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "session loop error", err)
	}

	logger.Info("watch stopped")
	return nil
}

// printNewMessages prints the feed entries after the first printed and
// returns the new count. A shrinking feed (topic switch) prints nothing.
func printNewMessages(w io.Writer, s *engine.Session, printed int) int {
	msgs := s.Messages()
	if len(msgs) < printed {
		return len(msgs)
	}
	for _, m := range msgs[printed:] {
		name := m.UserID
		if name == "" {
			name = m.User
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", m.MessageID, name, m.Text)
	}
	return len(msgs)
}
