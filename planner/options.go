package planner

import (
	"log/slog"

	"github.com/hupe1980/spargo/space"
)

type options struct {
	logger     *slog.Logger
	accountant space.Accountant
}

// Option configures a Planner.
type Option func(*options)

// WithLogger sets the logger for slot and operator registration.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithAccountant charges workspace regions allocated by NewWorkspace
// against acct.
func WithAccountant(acct space.Accountant) Option {
	return func(o *options) {
		o.accountant = acct
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
