package checkpoint

import (
	"log/slog"
	"time"

	"github.com/hupe1980/spargo/codec"
	"github.com/hupe1980/spargo/resource"
)

type options struct {
	codec       codec.Codec
	compression Compression
	controller  *resource.Controller
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Store.
type Option func(*options)

// WithCodec sets the manifest codec. Defaults to codec.Default.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithCompression sets the payload compression. Defaults to zstd.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithController throttles checkpoint writes with the controller's IO
// limit and bounds concurrent saves by its background slots.
func WithController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithLogger sets the logger for saves and loads.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func applyOptions(opts []Option) options {
	o := options{
		codec:       codec.Default,
		compression: CompressionZstd,
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.codec == nil {
		o.codec = codec.Default
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}
