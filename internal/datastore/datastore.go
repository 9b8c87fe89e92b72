// Package datastore persists parsed log entries and answers filtered reads
// over pooled backend connections.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/iancoleman/strcase"
	"go.uber.org/zap"

	"github.com/faciam-dev/lbflow/internal/logentry"
	"github.com/faciam-dev/lbflow/internal/logger"
	"github.com/faciam-dev/lbflow/pkg/backend"
	"github.com/faciam-dev/lbflow/pkg/metrics"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("data store closed")
	// ErrUnknownColumn rejects index requests for columns log_entries lacks.
	ErrUnknownColumn = errors.New("unknown column")
)

// indexPrefix bounds text key parts where the engine requires it.
const indexPrefix = 191

// Acquirer hands out pooled connections. *pool.Pool implements it.
type Acquirer interface {
	Acquire(ctx context.Context) (backend.Conn, error)
	Release(c backend.Conn) error
}

// StorageWriteError reports one entry that could not be stored.
type StorageWriteError struct {
	Index int
	Err   error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("entry %d: %v", e.Index, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// StoreResult summarizes a batch write.
type StoreResult struct {
	Inserted int     `json:"inserted"`
	Failed   int     `json:"failed"`
	Errors   []error `json:"-"`
}

func (r *StoreResult) fail(i int, err error) {
	r.Failed++
	r.Errors = append(r.Errors, &StorageWriteError{Index: i, Err: err})
}

// Stats summarizes the stored data.
type Stats struct {
	TotalEntries int64      `json:"totalEntries"`
	DatabaseSize int64      `json:"databaseSize"`
	OldestEntry  *time.Time `json:"oldestEntry,omitempty"`
	NewestEntry  *time.Time `json:"newestEntry,omitempty"`
	IndexCount   int        `json:"indexCount"`
}

// DataStore reads and writes log_entries. Each operation holds one pooled
// connection for its duration.
type DataStore struct {
	pool   Acquirer
	log    *zap.Logger
	closed atomic.Bool
}

// Option configures a DataStore.
type Option func(*DataStore)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(s *DataStore) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a DataStore drawing connections from a. The log schema must
// already be in place.
func New(a Acquirer, opts ...Option) *DataStore {
	s := &DataStore{pool: a, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("datastore"))
	return s
}

func (s *DataStore) withConn(ctx context.Context, fn func(c backend.Conn) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.pool.Release(c); err != nil {
			s.log.Warn("release connection", zap.Error(err))
		}
	}()
	return fn(c)
}

func observe(d backend.Dialect, op string, start time.Time) {
	metrics.QueryLatency.WithLabelValues(d.Name(), op).Observe(time.Since(start).Seconds())
}

func insertSQL(d backend.Dialect) string {
	cols := logentry.InsertColumns()
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		logentry.Table, strings.Join(cols, ", "), strings.Join(marks, ", "))
}

// Store writes entries one by one. Invalid entries and rejected rows are
// counted in the result rather than failing the batch; an error is returned
// only when the connection itself becomes unusable.
func (s *DataStore) Store(ctx context.Context, entries []*logentry.Entry) (StoreResult, error) {
	var res StoreResult
	err := s.withConn(ctx, func(c backend.Conn) error {
		d := c.Dialect()
		q := insertSQL(d)
		defer func() {
			metrics.EntriesStored.WithLabelValues(d.Name()).Add(float64(res.Inserted))
			metrics.StoreFailures.WithLabelValues(d.Name()).Add(float64(res.Failed))
		}()
		for i, e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := logentry.Validate(e); err != nil {
				res.fail(i, err)
				continue
			}
			if _, err := c.Execute(ctx, q, logentry.Values(e)...); err != nil {
				if !c.IsConnected(ctx) {
					return fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
				}
				res.fail(i, err)
				continue
			}
			res.Inserted++
		}
		return nil
	})
	if res.Failed > 0 {
		s.log.Warn("entries rejected", zap.Int("failed", res.Failed), zap.Int("inserted", res.Inserted))
	}
	return res, err
}

// Query returns the entries matching f ordered by timestamp and id. At most
// MaxQueryLimit rows are returned.
func (s *DataStore) Query(ctx context.Context, f *Filter) ([]logentry.Entry, error) {
	var out []logentry.Entry
	err := s.withConn(ctx, func(c backend.Conn) error {
		d := c.Dialect()
		defer observe(d, "query", time.Now())
		cond, args := where(d, f)
		dir := "ASC"
		if f != nil && f.SortDesc {
			dir = "DESC"
		}
		q := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY timestamp %s, id %s LIMIT %d OFFSET %d",
			strings.Join(logentry.SelectColumns(), ", "), logentry.Table, cond, dir, dir, f.limit(), f.offset())
		res, err := c.Query(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("query %s: %w", logentry.Table, err)
		}
		out = make([]logentry.Entry, 0, res.RowCount)
		for _, row := range res.Rows {
			e, err := logentry.FromRow(res.Columns, row)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// Count returns the number of entries matching f. Limit and Offset are
// ignored.
func (s *DataStore) Count(ctx context.Context, f *Filter) (int64, error) {
	var n int64
	err := s.withConn(ctx, func(c backend.Conn) error {
		d := c.Dialect()
		defer observe(d, "count", time.Now())
		cond, args := where(d, f)
		res, err := c.Query(ctx, "SELECT COUNT(*) FROM "+logentry.Table+cond, args...)
		if err != nil {
			return fmt.Errorf("count %s: %w", logentry.Table, err)
		}
		if res.RowCount > 0 {
			n, err = backend.AsInt64(res.Rows[0][0])
		}
		return err
	})
	return n, err
}

// IndexName returns the name CreateIndex uses for column.
func IndexName(column string) string {
	return "idx_" + logentry.Table + "_" + strcase.ToSnake(column)
}

// CreateIndex adds a single column index on log_entries and returns its
// name. column may be given in snake or camel case. Creating an index that
// already exists is not an error.
func (s *DataStore) CreateIndex(ctx context.Context, column string) (string, error) {
	col := strcase.ToSnake(column)
	if !logentry.IsColumn(col) {
		return "", fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	name := IndexName(col)
	err := s.withConn(ctx, func(c backend.Conn) error {
		d := c.Dialect()
		existing, err := backend.Indexes(ctx, c, d, logentry.Table)
		if err != nil {
			return err
		}
		for _, n := range existing {
			if n == name {
				return nil
			}
		}
		ix := backend.IndexDef{Name: name, Table: logentry.Table, Columns: []string{col}, PrefixLengths: textPrefixes()}
		if _, err := c.Execute(ctx, d.CreateIndex(ix)); err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
		s.log.Info("index created", zap.String("index", name), logger.Backend(d.Name()))
		return nil
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

func textPrefixes() map[string]int {
	out := make(map[string]int)
	for _, c := range logentry.BaseColumns() {
		if c.Type == backend.TypeText {
			out[c.Name] = indexPrefix
		}
	}
	return out
}

// ListIndexes returns the secondary index names of log_entries.
func (s *DataStore) ListIndexes(ctx context.Context) ([]string, error) {
	var names []string
	err := s.withConn(ctx, func(c backend.Conn) error {
		var err error
		names, err = backend.Indexes(ctx, c, c.Dialect(), logentry.Table)
		return err
	})
	return names, err
}

// Stats reports row counts, the timestamp span and storage size. A backend
// that cannot report its size yields DatabaseSize 0.
func (s *DataStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.withConn(ctx, func(c backend.Conn) error {
		d := c.Dialect()
		defer observe(d, "stats", time.Now())
		res, err := c.Query(ctx, "SELECT COUNT(*), MIN(timestamp), MAX(timestamp) FROM "+logentry.Table)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		if res.RowCount > 0 {
			row := res.Rows[0]
			if st.TotalEntries, err = backend.AsInt64(row[0]); err != nil {
				return err
			}
			if st.TotalEntries > 0 {
				oldest, err := backend.AsTime(row[1])
				if err != nil {
					return err
				}
				newest, err := backend.AsTime(row[2])
				if err != nil {
					return err
				}
				oldest, newest = oldest.UTC(), newest.UTC()
				st.OldestEntry, st.NewestEntry = &oldest, &newest
			}
		}
		if st.DatabaseSize, err = backend.DatabaseSize(ctx, c, d); err != nil {
			s.log.Warn("database size unavailable", zap.Error(err))
			st.DatabaseSize = 0
		}
		idx, err := backend.Indexes(ctx, c, d, logentry.Table)
		if err != nil {
			return err
		}
		st.IndexCount = len(idx)
		return nil
	})
	return st, err
}

// Close marks the store closed. Connections are already back in the pool
// between operations; the pool itself is owned by the caller.
func (s *DataStore) Close() error {
	if s.closed.Swap(true) {
		return ErrClosed
	}
	s.log.Debug("data store closed")
	return nil
}
