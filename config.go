package coop

import (
	"errors"
	"fmt"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ygrebnov/coop/workers/metrics"
)

// Config configures a Scheduler. The zero value is valid: NewScheduler(nil)
// (or &Config{}) produces a scheduler with a dynamic future worker pool, a
// no-op logger, and a no-op metrics provider, matching the teacher's own
// "zero value is suitable for the majority of cases" convention.
type Config struct {
	// MaxWorkers bounds the worker pool backing callable-kind futures
	// (spec §4.6 / SPEC_FULL §12.6). Zero means a dynamic (unbounded) pool.
	MaxWorkers uint

	// TimerHeapHint is a timer-heap capacity hint. It is stored in the
	// scheduler's configuration only; the timer heap does not read it and
	// preallocates nothing.
	TimerHeapHint uint

	// EnableNativePoller selects the Linux epoll backend (netpoll.NewNative)
	// instead of the portable unix.Poll backend when true and available.
	EnableNativePoller bool

	// AutoGOMAXPROCS calls automaxprocs.Set at construction time, sizing
	// GOMAXPROCS to the container/cgroup CPU quota before any future
	// worker pool spins up goroutines.
	AutoGOMAXPROCS bool

	// MetricsProvider receives scheduler instrument updates. Defaults to
	// metrics.NoopProvider{}.
	MetricsProvider metrics.Provider

	// Logger receives scheduler lifecycle events. Defaults to NoopLogger().
	Logger Logger
}

// defaultConfig centralizes Config defaults, mirroring the adapted workers
// package's defaults.go / config.go split (that package historically
// duplicated this; here there is exactly one copy).
func defaultConfig() Config {
	return Config{
		MaxWorkers:         0,
		TimerHeapHint:      64,
		EnableNativePoller: false,
		AutoGOMAXPROCS:     false,
		MetricsProvider:    metrics.NoopProvider{},
		Logger:             NoopLogger(),
	}
}

func validateConfig(cfg *Config) error {
	if cfg.MetricsProvider == nil {
		return errors.New("coop: MetricsProvider must not be nil")
	}
	if cfg.Logger == nil {
		return errors.New("coop: Logger must not be nil")
	}
	return nil
}

// Option configures a Scheduler via NewSchedulerOptions, mirroring the
// adapted workers package's functional-options builder.
type Option func(*Config)

// WithMaxWorkers sets a fixed-size future worker pool capacity.
func WithMaxWorkers(n uint) Option { return func(c *Config) { c.MaxWorkers = n } }

// WithNativePoller selects the Linux epoll backend when available.
func WithNativePoller() Option { return func(c *Config) { c.EnableNativePoller = true } }

// WithAutoGOMAXPROCS sizes GOMAXPROCS to the container/cgroup CPU quota at
// construction time, grounded on go.uber.org/automaxprocs.
func WithAutoGOMAXPROCS() Option { return func(c *Config) { c.AutoGOMAXPROCS = true } }

// WithMetricsProvider installs a custom metrics.Provider.
func WithMetricsProvider(p metrics.Provider) Option {
	return func(c *Config) { c.MetricsProvider = p }
}

// WithLogger installs a custom Logger.
func WithLogger(l Logger) Option { return func(c *Config) { c.Logger = l } }

// WithDevelopmentLogging installs a zap development logger (human-readable,
// debug level, stack traces on warn+).
func WithDevelopmentLogging() Option {
	return func(c *Config) {
		zl, err := zapDevelopmentLogger()
		if err != nil {
			panic(fmt.Errorf("coop: development logger: %w", err))
		}
		c.Logger = zl
	}
}

func applyAutoGOMAXPROCS() error {
	_, err := maxprocs.Set()
	return err
}
