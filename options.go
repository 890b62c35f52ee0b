package spargo

import (
	"github.com/hupe1980/spargo/blobstore"
)

type options struct {
	logger     *Logger
	collectors []MetricsCollector
	blobs      blobstore.Store
	resume     bool
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the session logger. Defaults to a logger built from the
// logging section of the configuration.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetricsCollector adds a collector for runtime and solver events.
// It may be given more than once.
func WithMetricsCollector(c MetricsCollector) Option {
	return func(o *options) {
		if c != nil {
			o.collectors = append(o.collectors, c)
		}
	}
}

// WithBlobStore sets the checkpoint store, overriding the configured target.
func WithBlobStore(s blobstore.Store) Option {
	return func(o *options) {
		o.blobs = s
	}
}

// WithResume restores the newest checkpoint on open. Without a checkpoint
// the session starts from scratch.
func WithResume() Option {
	return func(o *options) {
		o.resume = true
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
