package backend

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// pingTimeout bounds IsConnected probes.
const pingTimeout = 5 * time.Second

// sqlConn adapts one dedicated *sql.Conn to Conn. It is not safe for
// concurrent use; the pool hands it to one caller at a time.
type sqlConn struct {
	conn    *sql.Conn
	dialect Dialect
	tx      *sql.Tx
	// inTx tracks pseudo transactions on engines without transactional DDL.
	inTx   bool
	closed bool
}

// NewConn wraps a dedicated database/sql connection.
func NewConn(c *sql.Conn, d Dialect) Conn {
	return &sqlConn{conn: c, dialect: d}
}

func (c *sqlConn) Dialect() Dialect { return c.dialect }

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (c *sqlConn) target() queryer {
	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...any) (*QueryResult, error) {
	if c.closed {
		return nil, ErrUnavailable
	}
	rows, err := c.target().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &QueryResult{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(res.Rows), err)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res.RowCount = len(res.Rows)
	return res, nil
}

func (c *sqlConn) Execute(ctx context.Context, query string, args ...any) (ExecResult, error) {
	if c.closed {
		return ExecResult{}, ErrUnavailable
	}
	r, err := c.target().ExecContext(ctx, query, args...)
	if err != nil {
		return ExecResult{}, err
	}
	n, err := r.RowsAffected()
	if err != nil {
		// Some drivers (ClickHouse DDL) cannot report affected rows.
		n = 0
	}
	return ExecResult{AffectedRows: n}, nil
}

func (c *sqlConn) BeginTransaction(ctx context.Context) error {
	if c.closed {
		return ErrUnavailable
	}
	if c.tx != nil || c.inTx {
		return ErrTxActive
	}
	if !c.dialect.Transactional() {
		c.inTx = true
		return nil
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	c.tx = tx
	return nil
}

func (c *sqlConn) Commit() error {
	switch {
	case c.tx != nil:
		tx := c.tx
		c.tx = nil
		return tx.Commit()
	case c.inTx:
		c.inTx = false
		return nil
	default:
		return ErrNoTx
	}
}

func (c *sqlConn) Rollback() error {
	switch {
	case c.tx != nil:
		tx := c.tx
		c.tx = nil
		return tx.Rollback()
	case c.inTx:
		c.inTx = false
		return nil
	default:
		return ErrNoTx
	}
}

func (c *sqlConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
	return c.conn.Close()
}

func (c *sqlConn) IsConnected(ctx context.Context) bool {
	if c.closed {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return c.conn.PingContext(ctx) == nil
}
