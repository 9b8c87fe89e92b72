package backend

import (
	"fmt"
	"strings"
)

// ColumnType is an engine neutral column type.
type ColumnType int

const (
	// TypeAutoID is an auto incrementing 64-bit primary key.
	TypeAutoID ColumnType = iota
	// TypeString is short, indexable text.
	TypeString
	// TypeText is unbounded text.
	TypeText
	TypeInt
	TypeBigInt
	TypeFloat
	TypeTimestamp
	TypeDate
)

// ColumnDef declares a column for DDL rendering.
type ColumnDef struct {
	Name       string
	Type       ColumnType
	NotNull    bool
	PrimaryKey bool
}

// TableDef declares a table for DDL rendering.
type TableDef struct {
	Name    string
	Columns []ColumnDef
	// Unique lists uniqueness constraints. Engines without constraints use
	// the first one as the deduplication key.
	Unique [][]string
	// SortKey orders rows in engines that require one (ClickHouse).
	SortKey []string
}

func (t TableDef) autoID() (ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.Type == TypeAutoID {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// IndexDef declares a secondary index.
type IndexDef struct {
	Name    string
	Table   string
	Columns []string
	// Where restricts a partial index. Engines without partial indexes
	// index every row instead.
	Where string
	// PrefixLengths bounds key parts on unbounded text columns for engines
	// that require it (MySQL).
	PrefixLengths map[string]int
}

// Dialect renders the engine specific SQL the core needs.
type Dialect interface {
	Name() string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	QuoteIdent(name string) string
	// Transactional reports whether the engine has transactions. MySQL
	// reports true although it commits DDL implicitly.
	Transactional() bool
	// Like renders a LIKE predicate whose pattern escapes wildcards with '\'.
	Like(column, placeholder string) string

	CreateTable(t TableDef) []string
	DropTable(t TableDef) []string
	CreateIndex(ix IndexDef) string
	DropIndex(ix IndexDef) string
	AddColumn(table string, c ColumnDef) string
	DropColumn(table, column string) string

	// TableExistsQuery returns a query yielding one count row.
	TableExistsQuery(table string) (string, []any)
	// ColumnsQuery yields (name, type, not_null, primary_key) rows.
	ColumnsQuery(table string) (string, []any)
	// IndexesQuery yields one index name per row, primary keys excluded.
	IndexesQuery(table string) (string, []any)
	// SizeQuery yields the database size in bytes.
	SizeQuery() string
}

// sqlDialect renders DDL shared by the row-store engines. Engine files fill
// in the differences.
type sqlDialect struct {
	name          string
	placeholder   func(n int) string
	quote         func(name string) string
	types         map[ColumnType]string
	autoID        func(table string) string
	sequences     bool
	partial       bool
	indexIfExists bool
	dropIndexOn   bool
	likeEscape    bool
	tableExists   string
	columns       string
	indexes       string
	size          string
	// sizeFlush runs before size so that buffered writes are counted.
	sizeFlush     string
}

func (d *sqlDialect) Name() string                  { return d.name }
func (d *sqlDialect) Placeholder(n int) string      { return d.placeholder(n) }
func (d *sqlDialect) QuoteIdent(name string) string { return d.quote(name) }
func (d *sqlDialect) Transactional() bool           { return true }

func (d *sqlDialect) Like(column, placeholder string) string {
	if d.likeEscape {
		return fmt.Sprintf(`%s LIKE %s ESCAPE '\'`, column, placeholder)
	}
	return fmt.Sprintf("%s LIKE %s", column, placeholder)
}

func (d *sqlDialect) columnSQL(table string, c ColumnDef) string {
	if c.Type == TypeAutoID {
		return c.Name + " " + d.autoID(table)
	}
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte(' ')
	b.WriteString(d.types[c.Type])
	if c.NotNull {
		b.WriteString(" NOT NULL")
	}
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	return b.String()
}

func sequenceName(table string) string { return table + "_id_seq" }

func (d *sqlDialect) CreateTable(t TableDef) []string {
	var stmts []string
	if _, ok := t.autoID(); ok && d.sequences {
		stmts = append(stmts, fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s", sequenceName(t.Name)))
	}
	parts := make([]string, 0, len(t.Columns)+len(t.Unique))
	for _, c := range t.Columns {
		parts = append(parts, d.columnSQL(t.Name, c))
	}
	for _, u := range t.Unique {
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(u, ", ")))
	}
	stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", t.Name, strings.Join(parts, ",\n  ")))
	return stmts
}

func (d *sqlDialect) DropTable(t TableDef) []string {
	stmts := []string{fmt.Sprintf("DROP TABLE IF EXISTS %s", t.Name)}
	if _, ok := t.autoID(); ok && d.sequences {
		stmts = append(stmts, fmt.Sprintf("DROP SEQUENCE IF EXISTS %s", sequenceName(t.Name)))
	}
	return stmts
}

func (d *sqlDialect) indexColumns(ix IndexDef) string {
	cols := make([]string, len(ix.Columns))
	for i, c := range ix.Columns {
		if n, ok := ix.PrefixLengths[c]; ok && d.dropIndexOn {
			cols[i] = fmt.Sprintf("%s(%d)", c, n)
			continue
		}
		cols[i] = c
	}
	return strings.Join(cols, ", ")
}

func (d *sqlDialect) CreateIndex(ix IndexDef) string {
	var b strings.Builder
	b.WriteString("CREATE INDEX ")
	if d.indexIfExists {
		b.WriteString("IF NOT EXISTS ")
	}
	fmt.Fprintf(&b, "%s ON %s (%s)", ix.Name, ix.Table, d.indexColumns(ix))
	if ix.Where != "" && d.partial {
		b.WriteString(" WHERE ")
		b.WriteString(ix.Where)
	}
	return b.String()
}

func (d *sqlDialect) DropIndex(ix IndexDef) string {
	if d.dropIndexOn {
		return fmt.Sprintf("DROP INDEX %s ON %s", ix.Name, ix.Table)
	}
	return fmt.Sprintf("DROP INDEX IF EXISTS %s", ix.Name)
}

func (d *sqlDialect) AddColumn(table string, c ColumnDef) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, d.columnSQL(table, c))
}

func (d *sqlDialect) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, column)
}

func (d *sqlDialect) TableExistsQuery(table string) (string, []any) {
	return d.tableExists, []any{table}
}

func (d *sqlDialect) ColumnsQuery(table string) (string, []any) {
	return d.columns, []any{table}
}

func (d *sqlDialect) IndexesQuery(table string) (string, []any) {
	return d.indexes, []any{table}
}

func (d *sqlDialect) SizeQuery() string { return d.size }

func (d *sqlDialect) sizeFlushStatement() string { return d.sizeFlush }

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

func doubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func backtick(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// DialectFor returns the dialect spoken by a database/sql driver.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return SQLite(), nil
	case "postgres", "pgx":
		return Postgres(), nil
	case "mysql":
		return MySQL(), nil
	case "clickhouse":
		return ClickHouse(), nil
	case "duckdb":
		return DuckDB(), nil
	default:
		return nil, fmt.Errorf("no dialect for driver %q", driver)
	}
}
