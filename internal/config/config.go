// Package config holds the tunables of a chat session and the CLI.
//
// Values are layered: Default, then an optional CUE file checked against
// the embedded #Config schema, then CHATSYNC_* environment variables.
// Command-line flags are applied last by the caller.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "CHATSYNC"

//go:embed schema.cue
var schemaCUE []byte

// Config is the fully resolved configuration.
type Config struct {
	GuardWindow        time.Duration `envconfig:"GUARD_WINDOW"`
	RecheckInterval    time.Duration `envconfig:"RECHECK_INTERVAL"`
	RatingRefreshDelay time.Duration `envconfig:"RATING_REFRESH_DELAY"`
	LogLevel           string        `envconfig:"LOG_LEVEL"`
	Retry              Retry         `envconfig:"RETRY"`
	EventLog           EventLog      `envconfig:"EVENT_LOG"`
}

// Retry bounds read-side retries against the contract.
type Retry struct {
	MaxAttempts int           `envconfig:"MAX_ATTEMPTS"`
	BaseBackoff time.Duration `envconfig:"BASE_BACKOFF"`
	MaxInterval time.Duration `envconfig:"MAX_INTERVAL"`
}

// EventLog locates the SQLite capture log (CHATSYNC_EVENT_LOG_FILE). An
// empty Path means none.
type EventLog struct {
	Path string `envconfig:"FILE"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		GuardWindow:        5 * time.Second,
		RecheckInterval:    time.Second,
		RatingRefreshDelay: 500 * time.Millisecond,
		LogLevel:           "info",
		Retry: Retry{
			MaxAttempts: 3,
			BaseBackoff: 100 * time.Millisecond,
			MaxInterval: 2 * time.Second,
		},
	}
}

// fileConfig mirrors #Config. Absent fields stay nil and leave the
// corresponding default alone.
type fileConfig struct {
	GuardWindow        *string `json:"guardWindow"`
	RecheckInterval    *string `json:"recheckInterval"`
	RatingRefreshDelay *string `json:"ratingRefreshDelay"`
	LogLevel           *string `json:"logLevel"`
	Retry              *struct {
		MaxAttempts *int    `json:"maxAttempts"`
		BaseBackoff *string `json:"baseBackoff"`
		MaxInterval *string `json:"maxInterval"`
	} `json:"retry"`
	EventLog *struct {
		Path *string `json:"path"`
	} `json:"eventLog"`
}

// Load resolves the configuration. path may be empty, in which case only
// defaults and environment apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		src, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.applyCUE(path, src); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse applies CUE source on top of Default without consulting the
// environment.
func Parse(filename string, src []byte) (Config, error) {
	cfg := Default()
	if err := cfg.applyCUE(filename, src); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyCUE(filename string, src []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	data := ctx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}

	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(data)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid %s: %w", filename, err)
	}

	var fc fileConfig
	if err := value.Decode(&fc); err != nil {
		return fmt.Errorf("decode %s: %w", filename, err)
	}
	return c.merge(fc)
}

type durationField struct {
	name string
	src  *string
	dst  *time.Duration
}

func (c *Config) merge(fc fileConfig) error {
	durations := []durationField{
		{"guardWindow", fc.GuardWindow, &c.GuardWindow},
		{"recheckInterval", fc.RecheckInterval, &c.RecheckInterval},
		{"ratingRefreshDelay", fc.RatingRefreshDelay, &c.RatingRefreshDelay},
	}
	if fc.Retry != nil {
		if fc.Retry.MaxAttempts != nil {
			c.Retry.MaxAttempts = *fc.Retry.MaxAttempts
		}
		durations = append(durations,
			durationField{"retry.baseBackoff", fc.Retry.BaseBackoff, &c.Retry.BaseBackoff},
			durationField{"retry.maxInterval", fc.Retry.MaxInterval, &c.Retry.MaxInterval},
		)
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}

	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}
	if fc.EventLog != nil && fc.EventLog.Path != nil {
		c.EventLog.Path = *fc.EventLog.Path
	}
	return nil
}

// ApplyEnv overlays CHATSYNC_* variables, e.g. CHATSYNC_GUARD_WINDOW=3s or
// CHATSYNC_RETRY_MAX_ATTEMPTS=5. Unset variables leave fields unchanged.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("failed to process environment variables: %w", err)
	}
	return nil
}

// Validate rejects values the session cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.GuardWindow <= 0 {
		errs = append(errs, fmt.Errorf("guard window must be positive, got %s", c.GuardWindow))
	}
	if c.RecheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("recheck interval must be positive, got %s", c.RecheckInterval))
	}
	if c.RatingRefreshDelay < 0 {
		errs = append(errs, fmt.Errorf("rating refresh delay must not be negative, got %s", c.RatingRefreshDelay))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry max attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.BaseBackoff <= 0 {
		errs = append(errs, fmt.Errorf("retry base backoff must be positive, got %s", c.Retry.BaseBackoff))
	}
	if c.Retry.MaxInterval < c.Retry.BaseBackoff {
		errs = append(errs, fmt.Errorf("retry max interval %s is below base backoff %s", c.Retry.MaxInterval, c.Retry.BaseBackoff))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name onto slog.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
