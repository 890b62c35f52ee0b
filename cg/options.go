package cg

import "log/slog"

type options struct {
	logger         *slog.Logger
	breakdownCheck bool
}

// Option configures a Solver.
type Option func(*options)

// WithLogger sets the logger used for iteration tracing.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithBreakdownCheck makes alpha and beta fail with sched.ErrBreakdown when
// their denominator is zero or their value is not finite. The failure then
// propagates to every update and residual that depends on it.
//
// Without it a zero inner product yields NaN or Inf, which spreads through
// the remaining iterations.
func WithBreakdownCheck() Option {
	return func(o *options) {
		o.breakdownCheck = true
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}
