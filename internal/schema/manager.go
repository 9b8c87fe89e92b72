// Package schema owns the log storage schema: the ordered migration set and
// the checks that tell whether a database carries it.
package schema

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/faciam-dev/lbflow/internal/logentry"
	"github.com/faciam-dev/lbflow/internal/logger"
	"github.com/faciam-dev/lbflow/pkg/backend"
	"github.com/faciam-dev/lbflow/pkg/migrator"
)

// Manager runs the log schema migrations over one connection.
type Manager struct {
	conn   backend.Conn
	runner *migrator.Runner
	log    *zap.Logger
}

type options struct {
	log   *zap.Logger
	table string
}

// Option configures a Manager.
type Option func(*options)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMigrationsTable overrides the migrations tracking table.
func WithMigrationsTable(name string) Option {
	return func(o *options) { o.table = name }
}

// NewManager returns a manager with the log schema migrations registered for
// the dialect of conn.
func NewManager(conn backend.Conn, opts ...Option) (*Manager, error) {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	r := migrator.NewRunner(conn, migrator.WithLogger(o.log), migrator.WithTable(o.table))
	if err := r.Register(Migrations(conn.Dialect())...); err != nil {
		return nil, err
	}
	return &Manager{
		conn:   conn,
		runner: r,
		log:    o.log.With(logger.Component("schema"), logger.Backend(conn.Dialect().Name())),
	}, nil
}

// InitializeSchema creates the tracking table and applies every pending
// migration.
func (m *Manager) InitializeSchema(ctx context.Context) ([]string, error) {
	if err := m.runner.CreateMigrationsTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.runner.RunMigrations(ctx)
	if err != nil {
		return applied, err
	}
	m.log.Info("schema initialized", zap.Strings("applied", applied))
	return applied, nil
}

// RunMigrations applies pending migrations.
func (m *Manager) RunMigrations(ctx context.Context) ([]string, error) {
	return m.runner.RunMigrations(ctx)
}

// RollbackMigration reverts one executed migration.
func (m *Manager) RollbackMigration(ctx context.Context, id string) error {
	return m.runner.RollbackMigration(ctx, id)
}

// SchemaVersion returns the highest executed migration id. ok is false when
// no migration has run.
func (m *Manager) SchemaVersion(ctx context.Context) (version string, ok bool, err error) {
	recs, err := m.runner.ExecutedMigrations(ctx)
	if err != nil {
		return "", false, err
	}
	for _, r := range recs {
		if !ok || migrator.CompareIDs(r.ID, version) > 0 {
			version, ok = r.ID, true
		}
	}
	return version, ok, nil
}

// ValidateSchema reports whether log_entries and all of its base indexes
// exist.
func (m *Manager) ValidateSchema(ctx context.Context) (bool, error) {
	exists, err := backend.TableExists(ctx, m.conn, m.conn.Dialect(), logentry.Table)
	if err != nil || !exists {
		return false, err
	}
	names, err := m.IndexInfo(ctx)
	if err != nil {
		return false, err
	}
	have := make(map[string]struct{}, len(names))
	for _, n := range names {
		have[n] = struct{}{}
	}
	for _, ix := range BaseIndexes {
		if _, ok := have[ix.Name]; !ok {
			m.log.Warn("schema index missing", zap.String("index", ix.Name))
			return false, nil
		}
	}
	return true, nil
}

// TableInfo describes the columns of log_entries.
func (m *Manager) TableInfo(ctx context.Context) ([]backend.Column, error) {
	return backend.Columns(ctx, m.conn, m.conn.Dialect(), logentry.Table)
}

// IndexInfo lists the secondary indexes of log_entries.
func (m *Manager) IndexInfo(ctx context.Context) ([]string, error) {
	return backend.Indexes(ctx, m.conn, m.conn.Dialect(), logentry.Table)
}

// Drift lists executed migrations whose definitions changed since they ran.
func (m *Manager) Drift(ctx context.Context) ([]migrator.Drift, error) {
	return m.runner.Drift(ctx)
}

// Status is the state of one registered migration.
type Status struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Applied    bool       `json:"applied"`
	ExecutedAt *time.Time `json:"executedAt,omitempty"`
}

// Status reports every registered migration with its execution time, in
// application order.
func (m *Manager) Status(ctx context.Context) ([]Status, error) {
	recs, err := m.runner.ExecutedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	at := make(map[string]time.Time, len(recs))
	for _, r := range recs {
		at[r.ID] = r.ExecutedAt
	}
	var out []Status
	for _, mig := range m.runner.Migrations() {
		s := Status{ID: mig.ID(), Name: mig.Name()}
		if t, ok := at[mig.ID()]; ok {
			s.Applied = true
			s.ExecutedAt = &t
		}
		out = append(out, s)
	}
	return out, nil
}
