package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/faciam-dev/lbflow/pkg/backend"
	"github.com/faciam-dev/lbflow/pkg/config"
)

type fakeConn struct {
	id        int
	connected atomic.Bool
	closed    atomic.Bool
	inTx      bool
}

func (c *fakeConn) Query(context.Context, string, ...any) (*backend.QueryResult, error) {
	return &backend.QueryResult{}, nil
}

func (c *fakeConn) Execute(context.Context, string, ...any) (backend.ExecResult, error) {
	return backend.ExecResult{}, nil
}

func (c *fakeConn) BeginTransaction(context.Context) error {
	c.inTx = true
	return nil
}

func (c *fakeConn) Commit() error {
	if !c.inTx {
		return backend.ErrNoTx
	}
	c.inTx = false
	return nil
}

func (c *fakeConn) Rollback() error { return c.Commit() }

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	c.connected.Store(false)
	return nil
}

func (c *fakeConn) IsConnected(context.Context) bool { return c.connected.Load() }

func (c *fakeConn) Dialect() backend.Dialect { return backend.SQLite() }

type fakeOpener struct {
	mu     sync.Mutex
	conns  []*fakeConn
	fail   error
	closed bool
}

func (o *fakeOpener) Connect(context.Context) (backend.Conn, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return nil, o.fail
	}
	c := &fakeConn{id: len(o.conns) + 1}
	c.connected.Store(true)
	o.conns = append(o.conns, c)
	return c, nil
}

func (o *fakeOpener) Dialect() backend.Dialect { return backend.SQLite() }

func (o *fakeOpener) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}

func (o *fakeOpener) opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.conns)
}

func newTestPool(t *testing.T, cfg config.PoolConfig) (*Pool, *fakeOpener) {
	t.Helper()
	op := &fakeOpener{}
	p := New("test-"+t.Name(), op, cfg)
	t.Cleanup(func() { _ = p.Destroy() })
	return p, op
}

func TestAcquireRelease(t *testing.T) {
	p, op := newTestPool(t, config.PoolConfig{Max: 2, AcquireTimeoutMillis: 1000})
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	b, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got := p.Stats(); got != (Stats{Total: 2, InUse: 2}) {
		t.Fatalf("stats = %+v", got)
	}
	if err := p.Release(a); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := p.Stats(); got != (Stats{Total: 2, InUse: 1, Idle: 1}) {
		t.Fatalf("stats = %+v", got)
	}
	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if c != a {
		t.Fatalf("idle connection not reused")
	}
	if op.opened() != 2 {
		t.Fatalf("opened = %d", op.opened())
	}
	_ = p.Release(b)
	_ = p.Release(c)
}

func TestDoubleRelease(t *testing.T) {
	p, _ := newTestPool(t, config.PoolConfig{Max: 1})
	c, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := p.Release(c); err != nil {
		t.Fatalf("release: %v", err)
	}
	before := p.Stats()
	if err := p.Release(c); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("second release: %v", err)
	}
	if got := p.Stats(); got != before {
		t.Fatalf("stats changed: %+v -> %+v", before, got)
	}
	if err := p.Release(&fakeConn{}); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("foreign release: %v", err)
	}
}

func TestAcquireTimesOut(t *testing.T) {
	p, _ := newTestPool(t, config.PoolConfig{Max: 1, AcquireTimeoutMillis: 30})
	ctx := context.Background()
	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer p.Release(c)

	start := time.Now()
	_, err = p.Acquire(ctx)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) || ex.Max != 1 {
		t.Fatalf("expected *ExhaustedError, got %#v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("returned before the timeout")
	}
	if got := p.Stats().Pending; got != 0 {
		t.Fatalf("pending = %d", got)
	}
}

func TestAcquireHonoursContext(t *testing.T) {
	p, _ := newTestPool(t, config.PoolConfig{Max: 1, AcquireTimeoutMillis: 5000})
	c, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer p.Release(c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAcquireWaitsForRelease(t *testing.T) {
	p, _ := newTestPool(t, config.PoolConfig{Max: 1, AcquireTimeoutMillis: 2000})
	ctx := context.Background()
	held, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	got := make(chan backend.Conn, 1)
	go func() {
		c, err := p.Acquire(ctx)
		if err != nil {
			t.Errorf("waiting acquire: %v", err)
		}
		got <- c
	}()

	deadline := time.Now().Add(time.Second)
	for p.Stats().Pending != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("waiter never became pending")
		}
		time.Sleep(time.Millisecond)
	}
	if err := p.Release(held); err != nil {
		t.Fatalf("release: %v", err)
	}
	c := <-got
	if c != held {
		t.Fatalf("waiter did not receive the released connection")
	}
	_ = p.Release(c)
}

func TestInUseNeverExceedsMax(t *testing.T) {
	const limit = 3
	p, op := newTestPool(t, config.PoolConfig{Max: limit, AcquireTimeoutMillis: 5000})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		current atomic.Int32
		peak    atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := p.Acquire(ctx)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			if s := p.Stats(); s.InUse > limit {
				t.Errorf("in use %d > %d", s.InUse, limit)
			}
			time.Sleep(2 * time.Millisecond)
			current.Add(-1)
			if err := p.Release(c); err != nil {
				t.Errorf("release: %v", err)
			}
		}()
	}
	wg.Wait()
	if peak.Load() > limit {
		t.Fatalf("peak holders %d > %d", peak.Load(), limit)
	}
	if op.opened() > limit {
		t.Fatalf("opened %d connections for max %d", op.opened(), limit)
	}
	if s := p.Stats(); s.InUse != 0 || s.Pending != 0 {
		t.Fatalf("stats after run = %+v", s)
	}
}

func TestStaleConnectionReplaced(t *testing.T) {
	p, op := newTestPool(t, config.PoolConfig{Max: 1})
	ctx := context.Background()
	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	c.(*fakeConn).connected.Store(false)
	if err := p.Release(c); err != nil {
		t.Fatalf("release: %v", err)
	}
	if !c.(*fakeConn).closed.Load() {
		t.Fatalf("stale connection not closed")
	}
	if got := p.Stats(); got.Total != 0 {
		t.Fatalf("stale connection still counted: %+v", got)
	}

	next, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if next == c || op.opened() != 2 {
		t.Fatalf("expected a fresh connection, opened=%d", op.opened())
	}

	// A connection that drops while idle is skipped at checkout.
	_ = p.Release(next)
	next.(*fakeConn).connected.Store(false)
	third, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if third == next || op.opened() != 3 {
		t.Fatalf("dropped idle connection handed out")
	}
	_ = p.Release(third)
}

func TestReleaseRollsBackOpenTransaction(t *testing.T) {
	p, _ := newTestPool(t, config.PoolConfig{Max: 1})
	ctx := context.Background()
	c, _ := p.Acquire(ctx)
	_ = c.BeginTransaction(ctx)
	if err := p.Release(c); err != nil {
		t.Fatalf("release: %v", err)
	}
	if c.(*fakeConn).inTx {
		t.Fatalf("transaction left open")
	}
}

func TestWarm(t *testing.T) {
	p, op := newTestPool(t, config.PoolConfig{Min: 2, Max: 3})
	if err := p.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if got := p.Stats(); got != (Stats{Total: 2, Idle: 2}) {
		t.Fatalf("stats = %+v", got)
	}
	if err := p.Warm(context.Background()); err != nil {
		t.Fatalf("second warm: %v", err)
	}
	if op.opened() != 2 {
		t.Fatalf("opened = %d", op.opened())
	}
}

func TestEvictIdle(t *testing.T) {
	p, op := newTestPool(t, config.PoolConfig{Min: 1, Max: 3, IdleTimeoutMillis: 60_000})
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }
	ctx := context.Background()

	var held []backend.Conn
	for i := 0; i < 3; i++ {
		c, err := p.Acquire(ctx)
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		held = append(held, c)
	}
	for _, c := range held {
		_ = p.Release(c)
	}
	if n := p.evict(); n != 0 {
		t.Fatalf("evicted %d fresh connections", n)
	}

	clock = clock.Add(2 * time.Minute)
	if n := p.evict(); n != 2 {
		t.Fatalf("evicted %d, want 2 (min 1 kept)", n)
	}
	if got := p.Stats(); got.Total != 1 {
		t.Fatalf("stats = %+v", got)
	}
	if op.opened() != 3 {
		t.Fatalf("opened = %d", op.opened())
	}
}

func TestDestroy(t *testing.T) {
	p, op := newTestPool(t, config.PoolConfig{Max: 2, AcquireTimeoutMillis: 5000})
	ctx := context.Background()
	a, _ := p.Acquire(ctx)
	b, _ := p.Acquire(ctx)
	_ = p.Release(b)

	waiter := make(chan error, 1)
	go func() {
		_, _ = p.Acquire(ctx)
		_, err := p.Acquire(ctx)
		waiter <- err
	}()
	deadline := time.Now().Add(time.Second)
	for p.Stats().Pending != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("waiter never became pending")
		}
		time.Sleep(time.Millisecond)
	}

	if err := p.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := p.Destroy(); err != nil {
		t.Fatalf("second destroy: %v", err)
	}
	select {
	case err := <-waiter:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("waiter err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter not woken by destroy")
	}
	if !a.(*fakeConn).closed.Load() || !b.(*fakeConn).closed.Load() {
		t.Fatalf("connections left open")
	}
	if !op.closed {
		t.Fatalf("opener not closed")
	}
	if _, err := p.Acquire(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("acquire after destroy: %v", err)
	}
	if err := p.Release(a); err != nil {
		t.Fatalf("release after destroy: %v", err)
	}
	if got := p.Stats(); got != (Stats{}) {
		t.Fatalf("stats = %+v", got)
	}
}
