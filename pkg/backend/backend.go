// Package backend is the connection capability the storage core is written
// against. Every engine is reached through database/sql; differences in SQL
// dialect are confined to Dialect implementations.
package backend

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable reports a connection that is closed or no longer
	// reachable. Pools discard such connections.
	ErrUnavailable = errors.New("backend connection unavailable")
	// ErrTxActive is returned when a transaction is already open.
	ErrTxActive = errors.New("transaction already active")
	// ErrNoTx is returned by Commit or Rollback without an open transaction.
	ErrNoTx = errors.New("no active transaction")
)

// QueryResult holds materialized rows. Values are the driver's native Go
// representation; use the As* helpers to convert them.
type QueryResult struct {
	Columns  []string
	Rows     [][]any
	RowCount int
}

// ExecResult reports the effect of a statement.
type ExecResult struct {
	AffectedRows int64
}

// Executor runs statements. It is the only capability handed to migrations.
type Executor interface {
	Query(ctx context.Context, query string, args ...any) (*QueryResult, error)
	Execute(ctx context.Context, query string, args ...any) (ExecResult, error)
}

// Conn is one live backend connection, owned by a single caller between
// acquire and release.
type Conn interface {
	Executor
	BeginTransaction(ctx context.Context) error
	Commit() error
	Rollback() error
	Close() error
	IsConnected(ctx context.Context) bool
	Dialect() Dialect
}

// Column describes one table column as reported by the engine.
type Column struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey bool
}
