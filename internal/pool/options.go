package pool

import (
	"time"

	"go.uber.org/zap"

	"github.com/faciam-dev/lbflow/pkg/backend"
	"github.com/faciam-dev/lbflow/pkg/config"
)

// OpenFunc builds the Opener backing a new pool.
type OpenFunc func(cfg config.DatabaseConfig) (Opener, error)

type options struct {
	log  *zap.Logger
	open OpenFunc
	now  func() time.Time
}

// Option configures a Pool or Registry.
type Option func(*options)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithOpenFunc replaces backend.Open when the registry creates pools.
func WithOpenFunc(fn OpenFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.open = fn
		}
	}
}

func openBackend(cfg config.DatabaseConfig) (Opener, error) {
	c, err := backend.Open(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop(), open: openBackend, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
