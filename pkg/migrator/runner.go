package migrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/faciam-dev/lbflow/internal/logger"
	"github.com/faciam-dev/lbflow/pkg/backend"
	"github.com/faciam-dev/lbflow/pkg/metrics"
)

// DefaultTable is the name of the migrations tracking table.
const DefaultTable = "schema_migrations"

// Runner applies registered migrations in order over one connection and
// tracks them in a table.
type Runner struct {
	conn       backend.Conn
	table      string
	log        *zap.Logger
	migrations []Migration
	ids        map[string]struct{}
}

// Option configures a Runner.
type Option func(*Runner)

// WithTable overrides the tracking table name.
func WithTable(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.table = name
		}
	}
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRunner returns a runner with no migrations registered.
func NewRunner(conn backend.Conn, opts ...Option) *Runner {
	r := &Runner{conn: conn, table: DefaultTable, log: zap.NewNop(), ids: make(map[string]struct{})}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.Component("migrator"), logger.Backend(conn.Dialect().Name()))
	return r
}

// Table returns the tracking table name.
func (r *Runner) Table() string { return r.table }

// Migrations returns the registered migrations in application order.
func (r *Runner) Migrations() []Migration {
	return append([]Migration(nil), r.migrations...)
}

// Register appends migrations. Ids must be unique and strictly ascending
// across all calls.
func (r *Runner) Register(ms ...Migration) error {
	for _, m := range ms {
		id := m.ID()
		if id == "" {
			return errors.New("migration id is required")
		}
		if _, dup := r.ids[id]; dup {
			return fmt.Errorf("migration %s registered twice", id)
		}
		if n := len(r.migrations); n > 0 {
			if last := r.migrations[n-1].ID(); CompareIDs(last, id) >= 0 {
				return fmt.Errorf("migration %s registered after %s", id, last)
			}
		}
		r.migrations = append(r.migrations, m)
		r.ids[id] = struct{}{}
	}
	return nil
}

func (r *Runner) backendName() string { return r.conn.Dialect().Name() }

func (r *Runner) tableDef() backend.TableDef {
	return backend.TableDef{
		Name: r.conn.Dialect().QuoteIdent(r.table),
		Columns: []backend.ColumnDef{
			{Name: "id", Type: backend.TypeString, NotNull: true, PrimaryKey: true},
			{Name: "name", Type: backend.TypeString, NotNull: true},
			{Name: "executed_at", Type: backend.TypeTimestamp, NotNull: true},
			{Name: "checksum", Type: backend.TypeString, NotNull: true},
		},
	}
}

// CreateMigrationsTable creates the tracking table if it does not exist.
func (r *Runner) CreateMigrationsTable(ctx context.Context) error {
	for _, stmt := range r.conn.Dialect().CreateTable(r.tableDef()) {
		if _, err := r.conn.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("create %s: %w", r.table, err)
		}
	}
	return nil
}

// ExecutedMigrations returns the tracking rows ordered by execution time. It
// returns no rows when the tracking table does not exist yet.
func (r *Runner) ExecutedMigrations(ctx context.Context) ([]Record, error) {
	d := r.conn.Dialect()
	ok, err := backend.TableExists(ctx, r.conn, d, r.table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	q := fmt.Sprintf("SELECT id, name, executed_at, checksum FROM %s ORDER BY executed_at, id", d.QuoteIdent(r.table))
	res, err := r.conn.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.table, err)
	}
	recs := make([]Record, 0, res.RowCount)
	for _, row := range res.Rows {
		at, err := backend.AsTime(row[2])
		if err != nil {
			return nil, fmt.Errorf("read %s: executed_at: %w", r.table, err)
		}
		recs = append(recs, Record{
			ID:         backend.AsString(row[0]),
			Name:       backend.AsString(row[1]),
			ExecutedAt: at,
			Checksum:   backend.AsString(row[3]),
		})
	}
	return recs, nil
}

func (r *Runner) executedSet(ctx context.Context) (map[string]Record, error) {
	recs, err := r.ExecutedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]Record, len(recs))
	for _, rec := range recs {
		done[rec.ID] = rec
	}
	return done, nil
}

// PendingMigrations returns registered migrations without a tracking row, in
// registration order.
func (r *Runner) PendingMigrations(ctx context.Context) ([]Migration, error) {
	done, err := r.executedSet(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, m := range r.migrations {
		if _, ok := done[m.ID()]; !ok {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// RunMigrations applies every pending migration in order, each in its own
// transaction together with its tracking row. It stops at the first failure
// and returns the ids applied before it.
func (r *Runner) RunMigrations(ctx context.Context) ([]string, error) {
	if err := r.CreateMigrationsTable(ctx); err != nil {
		return nil, err
	}
	pending, err := r.PendingMigrations(ctx)
	if err != nil {
		return nil, err
	}
	applied := make([]string, 0, len(pending))
	for _, m := range pending {
		start := time.Now()
		if err := r.apply(ctx, m); err != nil {
			metrics.MigrationFailures.WithLabelValues(r.backendName()).Inc()
			r.log.Error("migration failed", logger.Migration(m.ID()), zap.String("name", m.Name()), zap.Error(err))
			return applied, err
		}
		metrics.MigrationsApplied.WithLabelValues(r.backendName()).Inc()
		r.log.Info("migration applied", logger.Migration(m.ID()), zap.String("name", m.Name()), zap.Duration("took", time.Since(start)))
		applied = append(applied, m.ID())
	}
	return applied, nil
}

func (r *Runner) apply(ctx context.Context, m Migration) error {
	fail := func(err error) error {
		return &MigrationError{ID: m.ID(), Name: m.Name(), Direction: "up", Err: err}
	}
	if err := r.conn.BeginTransaction(ctx); err != nil {
		return fail(err)
	}
	if err := m.Up(ctx, r.conn); err != nil {
		return fail(r.rollback(err))
	}
	if err := r.insertRecord(ctx, m); err != nil {
		return fail(r.rollback(err))
	}
	if err := r.conn.Commit(); err != nil {
		return fail(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (r *Runner) rollback(cause error) error {
	if err := r.conn.Rollback(); err != nil {
		return fmt.Errorf("rollback: %v: %w", err, cause)
	}
	return cause
}

func (r *Runner) insertRecord(ctx context.Context, m Migration) error {
	d := r.conn.Dialect()
	q := fmt.Sprintf("INSERT INTO %s (id, name, executed_at, checksum) VALUES (%s, %s, %s, %s)",
		d.QuoteIdent(r.table), d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4))
	if _, err := r.conn.Execute(ctx, q, m.ID(), m.Name(), time.Now().UTC(), Checksum(m)); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return nil
}

func (r *Runner) lookup(id string) (Migration, bool) {
	for _, m := range r.migrations {
		if m.ID() == id {
			return m, true
		}
	}
	return nil, false
}

// RollbackMigration runs the Down of an executed migration and deletes its
// tracking row in one transaction. Unknown or unexecuted ids are rejected
// with *RollbackPreconditionError before anything changes.
func (r *Runner) RollbackMigration(ctx context.Context, id string) error {
	m, ok := r.lookup(id)
	if !ok {
		return &RollbackPreconditionError{ID: id, Err: ErrUnknownMigration}
	}
	done, err := r.executedSet(ctx)
	if err != nil {
		return err
	}
	if _, ok := done[id]; !ok {
		return &RollbackPreconditionError{ID: id, Err: ErrNotExecuted}
	}

	fail := func(err error) error {
		metrics.MigrationFailures.WithLabelValues(r.backendName()).Inc()
		r.log.Error("rollback failed", logger.Migration(id), zap.Error(err))
		return &MigrationError{ID: id, Name: m.Name(), Direction: "down", Err: err}
	}
	if err := r.conn.BeginTransaction(ctx); err != nil {
		return fail(err)
	}
	if err := m.Down(ctx, r.conn); err != nil {
		return fail(r.rollback(err))
	}
	d := r.conn.Dialect()
	q := fmt.Sprintf("DELETE FROM %s WHERE id = %s", d.QuoteIdent(r.table), d.Placeholder(1))
	if _, err := r.conn.Execute(ctx, q, id); err != nil {
		return fail(r.rollback(fmt.Errorf("delete record: %w", err)))
	}
	if err := r.conn.Commit(); err != nil {
		return fail(fmt.Errorf("commit: %w", err))
	}
	metrics.MigrationRollbacks.WithLabelValues(r.backendName()).Inc()
	r.log.Info("migration rolled back", logger.Migration(id), zap.String("name", m.Name()))
	return nil
}

// Drift describes an executed migration whose recorded checksum no longer
// matches the registered definition.
type Drift struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Recorded string `json:"recorded"`
	// Current is empty when the id is no longer registered.
	Current string `json:"current,omitempty"`
}

// Drift compares recorded checksums with the registered migrations. It only
// reports; RunMigrations does not consult it.
func (r *Runner) Drift(ctx context.Context) ([]Drift, error) {
	recs, err := r.ExecutedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	var out []Drift
	for _, rec := range recs {
		m, ok := r.lookup(rec.ID)
		if !ok {
			out = append(out, Drift{ID: rec.ID, Name: rec.Name, Recorded: rec.Checksum})
			continue
		}
		if sum := Checksum(m); sum != rec.Checksum {
			out = append(out, Drift{ID: rec.ID, Name: rec.Name, Recorded: rec.Checksum, Current: sum})
		}
	}
	return out, nil
}
