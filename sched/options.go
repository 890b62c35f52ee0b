package sched

import (
	"log/slog"
)

type options struct {
	logger         *slog.Logger
	workers        int
	observer       Observer
	registry       *Registry
	breakdownCheck bool
}

// Option configures a Runtime.
type Option func(*options)

// WithLogger sets the logger used for launch tracing and failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithWorkers sets the number of goroutines executing point tasks.
// Zero or less means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithObserver sets the runtime observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithRegistry replaces the process-wide task registry.
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithBreakdownCheck makes scalar division fail with ErrBreakdown on a zero
// divisor or a non-finite result instead of propagating NaN or Inf.
func WithBreakdownCheck(enabled bool) Option {
	return func(o *options) {
		o.breakdownCheck = enabled
	}
}

func applyOptions(opts []Option) options {
	o := options{
		logger:   slog.New(slog.DiscardHandler),
		observer: NoopObserver{},
		registry: defaultRegistry,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.observer == nil {
		o.observer = NoopObserver{}
	}
	return o
}
