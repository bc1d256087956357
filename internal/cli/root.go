package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/chatsync/internal/config"
)

// RootOptions holds global flags for all commands, plus the configuration
// and logger resolved from them before any subcommand runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	cfg    *config.Config
	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the chatsync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

// Execute runs the CLI with args and returns the process exit code. Command
// errors are reported on stderr in the selected format.
func Execute(args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	code := GetExitCode(err)
	f := &OutputFormatter{Format: opts.Format, Writer: stderr}
	if !isValidFormat(f.Format) {
		f.Format = "text"
	}
	errCode := CodeFailed
	if code == ExitCommandError {
		errCode = CodeCommand
	}
	_ = f.Error(errCode, err.Error(), nil)
	return code
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatsync",
		Short: "chatsync - chat state reconciliation",
		Long: `Offline tooling for the chat reconciliation engine.

Captures contract events into a local event log, decodes raw EVM logs,
replays captures through the engine, and runs conformance scenarios.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			opts.cfg = &cfg
			level, err := config.ParseLevel(cfg.LogLevel)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid log level", err)
			}
			if opts.Verbose {
				level = slog.LevelDebug
			}
			opts.logger = newLogger(cmd.ErrOrStderr(), level)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a CUE config file")

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewDecodeCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Config returns the resolved configuration, or the defaults when the root
// command did not run (as in tests that execute a subcommand directly).
func (o *RootOptions) Config() config.Config {
	if o.cfg == nil {
		return config.Default()
	}
	return *o.cfg
}

// Logger returns the resolved logger. Without one, warnings go to stderr.
func (o *RootOptions) Logger() *slog.Logger {
	if o.logger == nil {
		level := slog.LevelWarn
		if o.Verbose {
			level = slog.LevelDebug
		}
		o.logger = newLogger(os.Stderr, level)
	}
	return o.logger
}

// formatter returns an OutputFormatter writing to the command's stdout.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
