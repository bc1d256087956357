package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/chatsync/internal/abidecode"
	"github.com/roach88/chatsync/internal/event"
)

// DecodeOptions holds flags for the decode command.
type DecodeOptions struct {
	*RootOptions
	Database string
}

// DecodeResult holds the decoded envelopes.
type DecodeResult struct {
	Events    []event.ContractEvent `json:"events"`
	Decoded   int                   `json:"decoded"`
	Undecoded int                   `json:"undecoded"`
	Appended  int                   `json:"appended"`
}

func (r DecodeResult) renderText(w io.Writer) {
	for _, ev := range r.Events {
		name := ev.EventName
		if name == "" {
			name = "?"
		}
		if ev.Decoded {
			fmt.Fprintf(w, "  %s %s\n", ev.Key(), name)
		} else {
			fmt.Fprintf(w, "  %s %s (undecoded)\n", ev.Key(), name)
		}
	}
	fmt.Fprintf(w, "Decoded %d, undecoded %d", r.Decoded, r.Undecoded)
	if r.Appended > 0 {
		fmt.Fprintf(w, ", %d appended to log", r.Appended)
	}
	fmt.Fprintln(w)
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode <logs-file>",
		Short: "Decode raw EVM logs against the ChatApp ABI",
		Long: `Decode raw logs (YAML or JSON, as returned by eth_getLogs plus a
timestamp) into contract event envelopes. Logs that do not match a ChatApp
event are kept as undecoded envelopes.

With --db the decoded envelopes are appended to the event log.

Examples:
  chatsync decode ./logs.json
  chatsync decode ./logs.yaml --db ./events.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "append decoded events to this event log")

	return cmd
}

func runDecode(opts *DecodeOptions, file string, cmd *cobra.Command) error {
	logger := opts.Logger()
	ctx := cmd.Context()

	logs, err := loadRawLogs(file)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load logs", err)
	}

	dec, err := abidecode.NewDecoder()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build decoder", err)
	}
	events := dec.DecodeAll(ctx, logs)

	result := DecodeResult{Events: events}
	for _, ev := range events {
		if ev.Decoded {
			result.Decoded++
		} else {
			result.Undecoded++
		}
	}
	logger.Debug("logs decoded", "file", file, "decoded", result.Decoded, "undecoded", result.Undecoded)

	if opts.Database != "" {
		log, err := openEventLog(opts.RootOptions, opts.Database)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := log.Close(); closeErr != nil {
				logger.Error("error closing event log", "error", closeErr)
			}
		}()
		if result.Appended, err = log.Append(ctx, events...); err != nil {
			return WrapExitError(ExitCommandError, "failed to append events", err)
		}
	}

	return opts.formatter(cmd).Success(result)
}

// loadRawLogs reads a list of raw logs from a .json file or YAML.
func loadRawLogs(path string) ([]abidecode.RawLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var logs []abidecode.RawLog
	unmarshal := yaml.Unmarshal
	if filepath.Ext(path) == ".json" {
		unmarshal = json.Unmarshal
	}
	if err := unmarshal(data, &logs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return logs, nil
}
