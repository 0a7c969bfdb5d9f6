package fchm

import (
	"log/slog"
	"os"
	"time"
)

type config struct {
	initialCapacity   int
	gcQueueSize       int
	gcDrainTimeout    time.Duration
	hasher            func(any) uint64
	logger            *slog.Logger
	metricsRegisterer metricsRegisterer
}

func defaultConfig() config {
	return config{
		initialCapacity: 0,
		gcQueueSize:     256,
		gcDrainTimeout:  2 * time.Second,
		logger:          slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
}

// Option is a functional option for New.
type Option func(*config)

// WithInitialCapacity pre-sizes the backing map. Negative values are
// ignored.
func WithInitialCapacity(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.initialCapacity = n
		}
	}
}

// WithGCQueueSize bounds the release-event queue fed to the GC worker.
func WithGCQueueSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.gcQueueSize = n
		}
	}
}

// WithGCDrainTimeout bounds how long Close waits for the GC worker to
// drain already-queued release events before returning.
func WithGCDrainTimeout(d time.Duration) Option {
	return func(c *config) { c.gcDrainTimeout = d }
}

// WithHasher plugs in a key-hashing collaborator for
// callers that pre-size or instrument the backing hash table. The core's
// own map is Go's built-in map and does not call this directly; it exists
// so collaborators such as a Merkle overlay can hash keys consistently
// with whatever scheme the caller already uses elsewhere.
func WithHasher(h func(any) uint64) Option {
	return func(c *config) { c.hasher = h }
}

// WithLogger installs a custom *slog.Logger for copy/release/GC events.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetricsRegisterer wires Prometheus metrics (see metrics.go); nil
// (the default) disables metrics entirely.
func WithMetricsRegisterer(r metricsRegisterer) Option {
	return func(c *config) { c.metricsRegisterer = r }
}
