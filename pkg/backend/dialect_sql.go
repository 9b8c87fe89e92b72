package backend

import (
	"fmt"

	"github.com/lib/pq"
)

// SQLite returns the dialect for the embedded file engine.
func SQLite() Dialect {
	return &sqlDialect{
		name:        "sqlite",
		placeholder: questionMark,
		quote:       doubleQuote,
		types: map[ColumnType]string{
			TypeString:    "TEXT",
			TypeText:      "TEXT",
			TypeInt:       "INTEGER",
			TypeBigInt:    "INTEGER",
			TypeFloat:     "REAL",
			TypeTimestamp: "TIMESTAMP",
			TypeDate:      "DATE",
		},
		autoID:        func(string) string { return "INTEGER PRIMARY KEY AUTOINCREMENT" },
		partial:       true,
		indexIfExists: true,
		likeEscape:    true,
		tableExists:   `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		columns:       `SELECT name, type, "notnull", pk FROM pragma_table_info(?)`,
		indexes:       `SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND name NOT LIKE 'sqlite_autoindex%' ORDER BY name`,
		size:          `SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`,
	}
}

// Postgres returns the PostgreSQL dialect, shared by the lib/pq and pgx
// drivers.
func Postgres() Dialect {
	return &sqlDialect{
		name:        "postgres",
		placeholder: dollar,
		quote:       pq.QuoteIdentifier,
		types: map[ColumnType]string{
			TypeString:    "TEXT",
			TypeText:      "TEXT",
			TypeInt:       "INTEGER",
			TypeBigInt:    "BIGINT",
			TypeFloat:     "DOUBLE PRECISION",
			TypeTimestamp: "TIMESTAMP",
			TypeDate:      "DATE",
		},
		autoID:        func(string) string { return "BIGSERIAL PRIMARY KEY" },
		partial:       true,
		indexIfExists: true,
		likeEscape:    true,
		tableExists:   `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`,
		columns: `SELECT c.column_name, c.data_type, c.is_nullable = 'NO',
  EXISTS (
    SELECT 1 FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage k
      ON k.constraint_name = tc.constraint_name AND k.table_schema = tc.table_schema AND k.table_name = tc.table_name
    WHERE tc.table_schema = c.table_schema AND tc.table_name = c.table_name
      AND tc.constraint_type = 'PRIMARY KEY' AND k.column_name = c.column_name
  )
FROM information_schema.columns c
WHERE c.table_schema = current_schema() AND c.table_name = $1
ORDER BY c.ordinal_position`,
		indexes: `SELECT indexname FROM pg_indexes
WHERE schemaname = current_schema() AND tablename = $1
  AND indexname NOT IN (SELECT conname FROM pg_constraint WHERE contype IN ('p', 'u'))
ORDER BY indexname`,
		size: `SELECT pg_database_size(current_database())`,
	}
}

// MySQL returns the MySQL dialect. MySQL serves the client/server relational
// type when Driver is "mysql".
func MySQL() Dialect {
	return &sqlDialect{
		name:        "mysql",
		placeholder: questionMark,
		quote:       backtick,
		types: map[ColumnType]string{
			TypeString:    "VARCHAR(255)",
			TypeText:      "TEXT",
			TypeInt:       "INT",
			TypeBigInt:    "BIGINT",
			TypeFloat:     "DOUBLE",
			TypeTimestamp: "DATETIME(6)",
			TypeDate:      "DATE",
		},
		autoID:      func(string) string { return "BIGINT AUTO_INCREMENT PRIMARY KEY" },
		dropIndexOn: true,
		tableExists: `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`,
		columns:     `SELECT column_name, column_type, is_nullable = 'NO', column_key = 'PRI' FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position`,
		indexes:     `SELECT DISTINCT index_name FROM information_schema.statistics WHERE table_schema = DATABASE() AND table_name = ? AND non_unique = 1 ORDER BY index_name`,
		size:        `SELECT COALESCE(SUM(data_length + index_length), 0) FROM information_schema.tables WHERE table_schema = DATABASE()`,
	}
}

// DuckDB returns the embedded analytical dialect. Auto incrementing keys are
// backed by a per-table sequence.
func DuckDB() Dialect {
	return &sqlDialect{
		name:        "duckdb",
		placeholder: questionMark,
		quote:       doubleQuote,
		types: map[ColumnType]string{
			TypeString:    "VARCHAR",
			TypeText:      "VARCHAR",
			TypeInt:       "INTEGER",
			TypeBigInt:    "BIGINT",
			TypeFloat:     "DOUBLE",
			TypeTimestamp: "TIMESTAMP",
			TypeDate:      "DATE",
		},
		autoID: func(table string) string {
			return fmt.Sprintf("BIGINT PRIMARY KEY DEFAULT nextval('%s')", sequenceName(table))
		},
		sequences:     true,
		indexIfExists: true,
		likeEscape:    true,
		tableExists:   `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?`,
		columns: `SELECT c.column_name, c.data_type, NOT c.is_nullable,
  EXISTS (
    SELECT 1 FROM duckdb_constraints() k
    WHERE k.table_name = c.table_name AND k.constraint_type = 'PRIMARY KEY'
      AND list_contains(k.constraint_column_names, c.column_name)
  )
FROM duckdb_columns() c
WHERE c.table_name = ?
ORDER BY c.column_index`,
		indexes:   `SELECT index_name FROM duckdb_indexes() WHERE table_name = ? ORDER BY index_name`,
		size:      `SELECT block_size * used_blocks FROM pragma_database_size()`,
		sizeFlush: "CHECKPOINT",
	}
}
