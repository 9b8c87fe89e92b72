package dbcmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/faciam-dev/lbflow/internal/datastore"
	"github.com/faciam-dev/lbflow/internal/logger"
	"github.com/faciam-dev/lbflow/internal/pool"
	"github.com/faciam-dev/lbflow/internal/schema"
)

// Session is an open backend: the pool for the resolved configuration and
// the logger built for it.
type Session struct {
	Config   Resolved
	Log      *zap.Logger
	Registry *pool.Registry
	Pool     *pool.Pool
}

// Open resolves f, builds the logger and creates the pool.
func Open(ctx context.Context, f *DBFlags) (*Session, error) {
	res, err := f.Resolve()
	if err != nil {
		return nil, err
	}
	log, err := NewLogger(res)
	if err != nil {
		return nil, err
	}
	reg := pool.NewRegistry(pool.WithLogger(log))
	p, err := reg.CreatePool(ctx, res.Database)
	if err != nil {
		_ = reg.CloseAll()
		return nil, err
	}
	log.Debug("backend opened", zap.String("db", res.Database.Redacted()))
	return &Session{Config: res, Log: log, Registry: reg, Pool: p}, nil
}

// NewLogger builds the logger for res and installs it as logger.L.
func NewLogger(res Resolved) (*zap.Logger, error) {
	log, err := logger.New(logger.Config{Level: res.Logging.Level, Format: res.Logging.Format})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	logger.Set(log)
	return log, nil
}

// WithManager runs fn with a schema manager bound to one pooled connection.
func (s *Session) WithManager(ctx context.Context, fn func(m *schema.Manager) error) error {
	c, err := s.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Pool.Release(c); err != nil {
			s.Log.Warn("release connection", zap.Error(err))
		}
	}()
	m, err := schema.NewManager(c, schema.WithLogger(s.Log))
	if err != nil {
		return err
	}
	return fn(m)
}

// Store returns a DataStore over the session pool.
func (s *Session) Store() *datastore.DataStore {
	return datastore.New(s.Pool, datastore.WithLogger(s.Log))
}

// Close destroys the pool and flushes the logger.
func (s *Session) Close() error {
	err := s.Registry.CloseAll()
	logger.Sync(s.Log)
	return err
}
