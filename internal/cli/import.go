package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/chatsync/internal/event"
	"github.com/roach88/chatsync/internal/eventlog"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database string
}

// ImportResult reports what an import did.
type ImportResult struct {
	File     string `json:"file"`
	Read     int    `json:"read"`
	Appended int    `json:"appended"`
	Total    int    `json:"total"`
}

func (r ImportResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "Imported %s: %d read, %d new, %d total in log\n", r.File, r.Read, r.Appended, r.Total)
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <captures.yaml>",
		Short: "Append captured contract events to the event log",
		Long: `Append contract event envelopes from a YAML capture file to the
SQLite event log. Events already in the log (same transaction hash and
log index) are skipped, so importing the same file twice is harmless.

The log path comes from --db, falling back to eventLog.path in the
config file or CHATSYNC_EVENT_LOG_FILE.

Example:
  chatsync import ./captures.yaml --db ./events.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite event log")

	return cmd
}

func runImport(opts *ImportOptions, file string, cmd *cobra.Command) error {
	logger := opts.Logger()

	events, err := loadCaptures(file)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load captures", err)
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

	ctx := cmd.Context()
	appended, err := log.Append(ctx, events...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to append events", err)
	}
	total, err := log.Count(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count events", err)
	}
	logger.Info("captures imported", "file", file, "read", len(events), "appended", appended)

	return opts.formatter(cmd).Success(ImportResult{
		File:     file,
		Read:     len(events),
		Appended: appended,
		Total:    total,
	})
}

// loadCaptures reads a YAML list of contract event envelopes.
func loadCaptures(path string) ([]event.ContractEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var events []event.ContractEvent
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&events); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, ev := range events {
		if ev.TransactionHash == "" {
			return nil, fmt.Errorf("parse %s: event %d: transactionHash is required", path, i)
		}
	}
	return events, nil
}

// openEventLog opens the log named by flag, or the configured one.
func openEventLog(opts *RootOptions, flag string) (*eventlog.Log, error) {
	path := flag
	if path == "" {
		path = opts.Config().EventLog.Path
	}
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no event log: pass --db or set eventLog.path")
	}
	log, err := eventlog.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open event log", err)
	}
	return log, nil
}
