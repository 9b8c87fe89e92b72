package backend

import (
	"fmt"
	"strings"
)

// clickhouseDialect renders MergeTree tables and data skipping indexes.
// ClickHouse has no transactional DDL, no auto increment and no uniqueness
// constraints: ids come from generateSnowflakeID() and the first unique key
// becomes a ReplacingMergeTree sorting key.
type clickhouseDialect struct {
	*sqlDialect
}

// ClickHouse returns the columnar analytical dialect.
func ClickHouse() Dialect {
	return &clickhouseDialect{&sqlDialect{
		name:        "clickhouse",
		placeholder: questionMark,
		quote:       backtick,
		types: map[ColumnType]string{
			TypeString:    "String",
			TypeText:      "String",
			TypeInt:       "Int32",
			TypeBigInt:    "Int64",
			TypeFloat:     "Float64",
			TypeTimestamp: "DateTime64(6)",
			TypeDate:      "Date",
		},
		autoID:      func(string) string { return "UInt64 DEFAULT generateSnowflakeID()" },
		tableExists: `SELECT count() FROM system.tables WHERE database = currentDatabase() AND name = ?`,
		columns:     `SELECT name, type, NOT startsWith(type, 'Nullable('), is_in_primary_key FROM system.columns WHERE database = currentDatabase() AND table = ? ORDER BY position`,
		indexes:     `SELECT name FROM system.data_skipping_indices WHERE database = currentDatabase() AND table = ? ORDER BY name`,
		size:        `SELECT sum(bytes_on_disk) FROM system.parts WHERE database = currentDatabase() AND active`,
	}}
}

func (d *clickhouseDialect) Transactional() bool { return false }

func (d *clickhouseDialect) columnSQL(c ColumnDef) string {
	if c.Type == TypeAutoID {
		return c.Name + " " + d.autoID("")
	}
	typ := d.types[c.Type]
	if !c.NotNull && !c.PrimaryKey {
		typ = "Nullable(" + typ + ")"
	}
	return c.Name + " " + typ
}

func (d *clickhouseDialect) CreateTable(t TableDef) []string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = d.columnSQL(c)
	}
	engine, order := "MergeTree", t.SortKey
	if len(t.Unique) > 0 {
		engine, order = "ReplacingMergeTree", t.Unique[0]
	}
	if len(order) == 0 && len(t.Columns) > 0 {
		order = []string{t.Columns[0].Name}
	}
	return []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n) ENGINE = %s ORDER BY (%s)",
		t.Name, strings.Join(cols, ",\n  "), engine, strings.Join(order, ", "))}
}

func (d *clickhouseDialect) DropTable(t TableDef) []string {
	return []string{fmt.Sprintf("DROP TABLE IF EXISTS %s", t.Name)}
}

func (d *clickhouseDialect) CreateIndex(ix IndexDef) string {
	return fmt.Sprintf("ALTER TABLE %s ADD INDEX IF NOT EXISTS %s (%s) TYPE minmax GRANULARITY 4",
		ix.Table, ix.Name, strings.Join(ix.Columns, ", "))
}

func (d *clickhouseDialect) DropIndex(ix IndexDef) string {
	return fmt.Sprintf("ALTER TABLE %s DROP INDEX IF EXISTS %s", ix.Table, ix.Name)
}

func (d *clickhouseDialect) AddColumn(table string, c ColumnDef) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s", table, d.columnSQL(c))
}

func (d *clickhouseDialect) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s", table, column)
}
