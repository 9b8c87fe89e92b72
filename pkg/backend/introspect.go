package backend

import (
	"context"
	"fmt"
)

// TableExists reports whether table exists in the connection's current
// schema.
func TableExists(ctx context.Context, ex Executor, d Dialect, table string) (bool, error) {
	q, args := d.TableExistsQuery(table)
	res, err := ex.Query(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	if res.RowCount == 0 || len(res.Rows[0]) == 0 {
		return false, nil
	}
	n, err := AsInt64(res.Rows[0][0])
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Columns lists the columns of table in declaration order.
func Columns(ctx context.Context, ex Executor, d Dialect, table string) ([]Column, error) {
	q, args := d.ColumnsQuery(table)
	res, err := ex.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	cols := make([]Column, 0, res.RowCount)
	for _, r := range res.Rows {
		if len(r) < 4 {
			return nil, fmt.Errorf("columns query returned %d fields", len(r))
		}
		cols = append(cols, Column{
			Name:       AsString(r[0]),
			Type:       AsString(r[1]),
			NotNull:    AsBool(r[2]),
			PrimaryKey: AsBool(r[3]),
		})
	}
	return cols, nil
}

// Indexes lists the secondary index names of table.
func Indexes(ctx context.Context, ex Executor, d Dialect, table string) ([]string, error) {
	q, args := d.IndexesQuery(table)
	res, err := ex.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list indexes of %s: %w", table, err)
	}
	names := make([]string, 0, res.RowCount)
	for _, r := range res.Rows {
		if len(r) > 0 {
			names = append(names, AsString(r[0]))
		}
	}
	return names, nil
}

// DatabaseSize returns the size of the connected database in bytes. Engines
// that only account for checkpointed blocks are flushed first; a failed
// flush still reports the last checkpointed size.
func DatabaseSize(ctx context.Context, ex Executor, d Dialect) (int64, error) {
	if f, ok := d.(interface{ sizeFlushStatement() string }); ok {
		if q := f.sizeFlushStatement(); q != "" {
			_, _ = ex.Execute(ctx, q)
		}
	}
	res, err := ex.Query(ctx, d.SizeQuery())
	if err != nil {
		return 0, fmt.Errorf("database size: %w", err)
	}
	if res.RowCount == 0 || len(res.Rows[0]) == 0 {
		return 0, nil
	}
	return AsInt64(res.Rows[0][0])
}
