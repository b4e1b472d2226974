// notes/syncer/options.go
package syncer

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultNamespace    = "notes"
	DefaultWriteTimeout = 10 * time.Second
	DefaultQueueSize    = 1024
)

type Option func(*Engine)

// WithNamespace sets the key prefix every user's tree lives under.
func WithNamespace(ns string) Option {
	return func(e *Engine) { e.namespace = ns }
}

// WithWriteTimeout bounds each mirrored write.
func WithWriteTimeout(d time.Duration) Option {
	return func(e *Engine) { e.writeTimeout = d }
}

// WithQueueSize sets how many writes may wait for the writer before new
// ones fail outright.
func WithQueueSize(n int) Option {
	return func(e *Engine) { e.queueSize = n }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger.With().Str("component", "syncer").Logger() }
}
