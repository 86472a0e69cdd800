package options

import (
	"context"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// DefaultPollInterval is how often device discovery looks for newly attached authenticators.
const DefaultPollInterval = 500 * time.Millisecond

type Options struct {
	Logger       *slog.Logger
	EncMode      cbor.EncMode
	Context      context.Context
	Paths        []string
	PollInterval time.Duration
}

type Option func(*Options)

func WithLogger(logger *slog.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

func WithEncMode(encMode cbor.EncMode) Option {
	return func(opts *Options) {
		opts.EncMode = encMode
	}
}

func WithContext(ctx context.Context) Option {
	return func(opts *Options) {
		opts.Context = ctx
	}
}

func WithPaths(paths ...string) Option {
	return func(opts *Options) {
		opts.Paths = paths
	}
}

// WithPollInterval sets the device discovery interval. Non-positive values keep the default.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *Options) {
		if interval > 0 {
			opts.PollInterval = interval
		}
	}
}

func NewOptions(opts ...Option) *Options {
	encMode, _ := cbor.CTAP2EncOptions().EncMode()
	oo := &Options{
		Logger:       slog.Default(),
		EncMode:      encMode,
		Context:      context.Background(),
		PollInterval: DefaultPollInterval,
	}

	for _, opt := range opts {
		opt(oo)
	}

	return oo
}
