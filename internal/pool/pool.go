// Package pool bounds and reuses backend connections. A Registry owns one
// Pool per distinct database configuration.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/faciam-dev/lbflow/internal/logger"
	"github.com/faciam-dev/lbflow/pkg/backend"
	"github.com/faciam-dev/lbflow/pkg/config"
	"github.com/faciam-dev/lbflow/pkg/metrics"
)

// Opener opens connections to one backend. *backend.Connector implements it.
type Opener interface {
	Connect(ctx context.Context) (backend.Conn, error)
	Dialect() backend.Dialect
	Close() error
}

// Stats is a point in time view of a pool.
type Stats struct {
	Total   int `json:"total"`
	InUse   int `json:"inUse"`
	Idle    int `json:"idle"`
	Pending int `json:"pending"`
}

type idleConn struct {
	conn  backend.Conn
	since time.Time
}

// Pool hands out at most cfg.Max connections at a time. Connections are
// exclusively owned by the caller between Acquire and Release.
type Pool struct {
	key     string
	label   string
	backend string
	opener  Opener
	cfg     config.PoolConfig
	sem     *semaphore.Weighted
	log     *zap.Logger
	now     func() time.Time
	done    chan struct{}

	mu      sync.Mutex
	idle    []idleConn
	inUse   map[backend.Conn]struct{}
	pending int
	closed  bool
}

// New returns a pool drawing connections from opener. cfg is expected to be
// resolved already (see config.DatabaseConfig.EffectivePool).
func New(key string, opener Opener, cfg config.PoolConfig, opts ...Option) *Pool {
	o := buildOptions(opts)
	if cfg.Max < 1 {
		cfg.Max = 1
	}
	if cfg.Min > cfg.Max {
		cfg.Min = cfg.Max
	}
	label := shortKey(key)
	p := &Pool{
		key:     key,
		label:   label,
		backend: opener.Dialect().Name(),
		opener:  opener,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.Max)),
		now:     o.now,
		done:    make(chan struct{}),
		inUse:   make(map[backend.Conn]struct{}),
	}
	p.log = o.log.With(logger.Component("pool"), logger.Pool(label), logger.Backend(p.backend))
	if d := p.idleTimeout(); d > 0 {
		go p.reap(d)
	}
	return p
}

// Key returns the configuration identity the pool was created for.
func (p *Pool) Key() string { return p.key }

// Dialect returns the SQL dialect of the pooled backend.
func (p *Pool) Dialect() backend.Dialect { return p.opener.Dialect() }

// Config returns the resolved pool sizing.
func (p *Pool) Config() config.PoolConfig { return p.cfg }

// shortKey abbreviates a configuration key for logs and metric labels.
func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

func (p *Pool) idleTimeout() time.Duration {
	return time.Duration(p.cfg.IdleTimeoutMillis) * time.Millisecond
}

// Acquire returns a connection, opening one when none is idle and fewer than
// Max are in use. It waits at most AcquireTimeoutMillis for a free slot and
// fails with *ExhaustedError when none frees up.
func (p *Pool) Acquire(ctx context.Context) (backend.Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.mu.Unlock()

	start := p.now()
	if !p.sem.TryAcquire(1) {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
	}
	metrics.PoolAcquireWait.WithLabelValues(p.backend).Observe(p.now().Sub(start).Seconds())

	c, err := p.checkout(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	p.observe()
	return c, nil
}

func (p *Pool) wait(ctx context.Context) error {
	p.mu.Lock()
	p.pending++
	p.mu.Unlock()
	p.observe()
	defer func() {
		p.mu.Lock()
		p.pending--
		p.mu.Unlock()
		p.observe()
	}()

	timeout := time.Duration(p.cfg.AcquireTimeoutMillis) * time.Millisecond
	var (
		wctx   context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		wctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		wctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	go func() {
		select {
		case <-p.done:
			cancel()
		case <-wctx.Done():
		}
	}()

	start := p.now()
	err := p.sem.Acquire(wctx, 1)
	if err == nil {
		return nil
	}
	switch {
	case p.isClosed():
		return ErrClosed
	case ctx.Err() != nil:
		return ctx.Err()
	}
	metrics.PoolExhausted.WithLabelValues(p.backend).Inc()
	p.log.Warn("acquire timed out", zap.Int("max", p.cfg.Max), zap.Duration("waited", p.now().Sub(start)))
	return &ExhaustedError{Max: p.cfg.Max, Waited: p.now().Sub(start)}
}

// checkout hands out an idle connection or opens a new one. The caller holds
// a semaphore slot.
func (p *Pool) checkout(ctx context.Context) (backend.Conn, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}
		n := len(p.idle)
		if n == 0 {
			p.mu.Unlock()
			break
		}
		ic := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()

		if p.expired(ic) || !ic.conn.IsConnected(ctx) {
			p.discard(ic.conn, "stale on checkout")
			continue
		}
		if err := p.markInUse(ic.conn); err != nil {
			return nil, err
		}
		return ic.conn, nil
	}

	c, err := p.opener.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.markInUse(c); err != nil {
		return nil, err
	}
	p.log.Debug("opened connection")
	return c, nil
}

func (p *Pool) markInUse(c backend.Conn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = c.Close()
		return ErrClosed
	}
	p.inUse[c] = struct{}{}
	return nil
}

func (p *Pool) expired(ic idleConn) bool {
	d := p.idleTimeout()
	return d > 0 && p.now().Sub(ic.since) > d
}

func (p *Pool) discard(c backend.Conn, reason string) {
	if err := c.Close(); err != nil {
		p.log.Debug("close discarded connection", zap.Error(err))
	}
	p.log.Info("connection discarded", zap.String("reason", reason))
}

// Release returns c to the pool. A connection that no longer reports
// connected is closed instead of being reused. Releasing a connection twice
// returns ErrNotAcquired and leaves the pool unchanged.
func (p *Pool) Release(c backend.Conn) error {
	p.mu.Lock()
	if _, ok := p.inUse[c]; !ok {
		p.mu.Unlock()
		return ErrNotAcquired
	}
	delete(p.inUse, c)
	closed := p.closed
	p.mu.Unlock()
	defer p.observe()
	defer p.sem.Release(1)

	if closed {
		return nil
	}
	if !c.IsConnected(context.Background()) {
		p.discard(c, "stale on release")
		return nil
	}
	if err := c.Rollback(); err == nil {
		p.log.Warn("rolled back transaction left open on release")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = c.Close()
		return nil
	}
	p.idle = append(p.idle, idleConn{conn: c, since: p.now()})
	return nil
}

// Warm opens connections until Min are live. It never exceeds Max and stops
// at the first connect failure.
func (p *Pool) Warm(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return ErrClosed
		}
		total := len(p.idle) + len(p.inUse)
		p.mu.Unlock()
		if total >= p.cfg.Min {
			return nil
		}
		if !p.sem.TryAcquire(1) {
			return nil
		}
		c, err := p.opener.Connect(ctx)
		if err != nil {
			p.sem.Release(1)
			return err
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = c.Close()
			p.sem.Release(1)
			return ErrClosed
		}
		p.idle = append(p.idle, idleConn{conn: c, since: p.now()})
		p.mu.Unlock()
		p.sem.Release(1)
		p.observe()
	}
}

// evict closes idle connections older than the idle timeout while more than
// Min connections are live.
func (p *Pool) evict() int {
	p.mu.Lock()
	var stale []backend.Conn
	keep := p.idle[:0]
	total := len(p.idle) + len(p.inUse)
	for _, ic := range p.idle {
		if total > p.cfg.Min && p.expired(ic) {
			stale = append(stale, ic.conn)
			total--
			continue
		}
		keep = append(keep, ic)
	}
	p.idle = keep
	p.mu.Unlock()

	for _, c := range stale {
		p.discard(c, "idle timeout")
	}
	if len(stale) > 0 {
		p.observe()
	}
	return len(stale)
}

func (p *Pool) reap(interval time.Duration) {
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.evict()
		}
	}
}

// Destroy closes every idle and in-use connection and the underlying
// opener. It is idempotent.
func (p *Pool) Destroy() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	idle := p.idle
	p.idle = nil
	busy := make([]backend.Conn, 0, len(p.inUse))
	for c := range p.inUse {
		busy = append(busy, c)
	}
	p.mu.Unlock()

	var errs []error
	for _, ic := range idle {
		errs = append(errs, ic.conn.Close())
	}
	for _, c := range busy {
		errs = append(errs, c.Close())
	}
	errs = append(errs, p.opener.Close())
	p.observe()
	p.log.Info("pool destroyed", zap.Int("closed", len(idle)+len(busy)))
	return errors.Join(errs...)
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Stats reports current counts. Total counts live connections whether idle
// or in use; Pending counts callers waiting for a slot.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{InUse: len(p.inUse), Idle: len(p.idle), Pending: p.pending}
	if p.closed {
		s.InUse = 0
	}
	s.Total = s.InUse + s.Idle
	return s
}

func (p *Pool) observe() {
	s := p.Stats()
	metrics.PoolConnections.WithLabelValues(p.label, "idle").Set(float64(s.Idle))
	metrics.PoolConnections.WithLabelValues(p.label, "in_use").Set(float64(s.InUse))
	metrics.PoolConnections.WithLabelValues(p.label, "pending").Set(float64(s.Pending))
}
