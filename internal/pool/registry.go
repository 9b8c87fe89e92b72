package pool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/faciam-dev/lbflow/internal/logger"
	"github.com/faciam-dev/lbflow/pkg/config"
)

// Registry creates and owns pools keyed by configuration identity, so that
// equivalent configurations share one pool.
type Registry struct {
	mu    sync.Mutex
	pools map[string]*Pool
	opts  []Option
	log   *zap.Logger
	open  OpenFunc
}

// NewRegistry returns an empty registry. Options are passed on to every pool
// it creates.
func NewRegistry(opts ...Option) *Registry {
	o := buildOptions(opts)
	return &Registry{
		pools: make(map[string]*Pool),
		opts:  opts,
		log:   o.log.With(logger.Component("registry")),
		open:  o.open,
	}
}

// CreatePool returns the pool for cfg, creating it on first use. A new pool is
// warmed to its minimum size; warm-up failures are logged and do not fail the
// call.
func (r *Registry) CreatePool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	if err := config.Check(cfg); err != nil {
		return nil, err
	}
	key := cfg.Key()

	r.mu.Lock()
	if p, ok := r.pools[key]; ok {
		r.mu.Unlock()
		return p, nil
	}
	opener, err := r.open(cfg)
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("open %s backend: %w", cfg.Type, err)
	}
	p := New(key, opener, cfg.EffectivePool(), r.opts...)
	r.pools[key] = p
	r.mu.Unlock()

	r.log.Info("pool created",
		logger.Backend(string(cfg.Type)),
		logger.Pool(p.label),
		zap.String("target", cfg.Redacted()),
		zap.Int("max", p.cfg.Max),
	)
	if err := p.Warm(ctx); err != nil {
		r.log.Warn("pool warm-up failed", logger.Pool(p.label), zap.Error(err))
	}
	return p, nil
}

// SupportedTypes lists the backend types pools can be created for, in a fixed
// order.
func (r *Registry) SupportedTypes() []config.Type {
	return slices.Clone(config.Types)
}

// CloseAll destroys every pool and empties the registry. Later CreatePool
// calls start fresh.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	pools := r.pools
	r.pools = make(map[string]*Pool)
	r.mu.Unlock()

	var errs []error
	for key, p := range pools {
		if err := p.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", p.label, err))
			continue
		}
		r.log.Debug("pool closed", zap.String("key", key))
	}
	return errors.Join(errs...)
}

// Stats returns the stats of every pool by key.
func (r *Registry) Stats() map[string]Stats {
	r.mu.Lock()
	pools := make(map[string]*Pool, len(r.pools))
	for k, p := range r.pools {
		pools[k] = p
	}
	r.mu.Unlock()

	out := make(map[string]Stats, len(pools))
	for k, p := range pools {
		out[k] = p.Stats()
	}
	return out
}

// ConnectionCounts reports connection counts per pool label and state. It
// feeds metrics.StartPoolGauge.
func (r *Registry) ConnectionCounts() map[string]map[string]int {
	out := make(map[string]map[string]int)
	for key, s := range r.Stats() {
		out[shortKey(key)] = map[string]int{"idle": s.Idle, "in_use": s.InUse, "pending": s.Pending}
	}
	return out
}
