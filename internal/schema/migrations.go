package schema

import (
	"fmt"
	"strings"

	"github.com/faciam-dev/lbflow/internal/logentry"
	"github.com/faciam-dev/lbflow/pkg/backend"
	"github.com/faciam-dev/lbflow/pkg/migrator"
)

// urlPrefix bounds request_url key parts on engines that cannot index
// unbounded text.
const urlPrefix = 191

func index(name string, cols ...string) backend.IndexDef {
	return backend.IndexDef{
		Name:          "idx_log_entries_" + name,
		Table:         logentry.Table,
		Columns:       cols,
		PrefixLengths: map[string]int{"request_url": urlPrefix},
	}
}

func partial(ix backend.IndexDef, where string) backend.IndexDef {
	ix.Where = where
	return ix
}

// BaseIndexes are created with log_entries.
var BaseIndexes = []backend.IndexDef{
	index("timestamp", "timestamp"),
	index("client_ip", "client_ip"),
	index("request_url", "request_url"),
	index("elb_status_code", "elb_status_code"),
	index("target_status_code", "target_status_code"),
	index("domain_name", "domain_name"),
	index("timestamp_status", "timestamp", "elb_status_code"),
	index("timestamp_client", "timestamp", "client_ip"),
}

var paginationIndexes = []backend.IndexDef{
	index("timestamp_id", "timestamp", "id"),
	index("status_timestamp_id", "elb_status_code", "timestamp", "id"),
	index("client_timestamp_id", "client_ip", "timestamp", "id"),
}

var coveringIndexes = []backend.IndexDef{
	index("timestamp_status_bytes", "timestamp", "elb_status_code", "received_bytes", "sent_bytes"),
	index("domain_url_timestamp", "domain_name", "request_url", "timestamp"),
}

var workflowIndexes = []backend.IndexDef{
	partial(index("errors", "timestamp", "request_url"), "elb_status_code >= 400"),
	partial(index("slow_requests", "timestamp", "target_ip"), "target_processing_time > 1"),
}

var connTraceIndexes = []backend.IndexDef{
	index("conn_trace_id", "conn_trace_id"),
	index("conn_trace_timestamp", "conn_trace_id", "timestamp"),
}

func logEntriesTable() backend.TableDef {
	return backend.TableDef{
		Name:    logentry.Table,
		Columns: logentry.BaseColumns(),
		SortKey: []string{"timestamp", "id"},
	}
}

func col(name string, t backend.ColumnType) backend.ColumnDef {
	return backend.ColumnDef{Name: name, Type: t}
}

func key(name string, t backend.ColumnType) backend.ColumnDef {
	return backend.ColumnDef{Name: name, Type: t, NotNull: true}
}

// AggregationTables are summary tables filled by downstream analytics.
var AggregationTables = []backend.TableDef{
	{
		Name: "traffic_hourly",
		Columns: []backend.ColumnDef{
			logentry.IDColumn,
			key("hour_bucket", backend.TypeString),
			key("domain_name", backend.TypeString),
			col("request_count", backend.TypeBigInt),
			col("error_count", backend.TypeBigInt),
			col("total_received_bytes", backend.TypeBigInt),
			col("total_sent_bytes", backend.TypeBigInt),
			col("avg_response_time", backend.TypeFloat),
			col("max_response_time", backend.TypeFloat),
			col("unique_clients", backend.TypeBigInt),
			col("updated_at", backend.TypeTimestamp),
		},
		Unique: [][]string{{"hour_bucket", "domain_name"}},
	},
	{
		Name: "url_patterns",
		Columns: []backend.ColumnDef{
			logentry.IDColumn,
			key("url_pattern", backend.TypeString),
			key("domain_name", backend.TypeString),
			key("request_verb", backend.TypeString),
			col("request_count", backend.TypeBigInt),
			col("avg_response_time", backend.TypeFloat),
			col("error_rate", backend.TypeFloat),
			col("first_seen", backend.TypeTimestamp),
			col("last_seen", backend.TypeTimestamp),
		},
		Unique: [][]string{{"url_pattern", "domain_name", "request_verb"}},
	},
	{
		Name: "client_sessions",
		Columns: []backend.ColumnDef{
			logentry.IDColumn,
			key("client_ip", backend.TypeString),
			key("user_agent_hash", backend.TypeString),
			key("session_date", backend.TypeString),
			col("request_count", backend.TypeBigInt),
			col("total_bytes", backend.TypeBigInt),
			col("distinct_urls", backend.TypeBigInt),
			col("first_request", backend.TypeTimestamp),
			col("last_request", backend.TypeTimestamp),
		},
		Unique: [][]string{{"client_ip", "user_agent_hash", "session_date"}},
	},
	{
		Name: "error_patterns",
		Columns: []backend.ColumnDef{
			logentry.IDColumn,
			key("error_date", backend.TypeString),
			key("elb_status_code", backend.TypeInt),
			key("request_url", backend.TypeString),
			key("error_reason", backend.TypeString),
			col("occurrence_count", backend.TypeBigInt),
			col("first_occurrence", backend.TypeTimestamp),
			col("last_occurrence", backend.TypeTimestamp),
		},
		Unique: [][]string{{"error_date", "elb_status_code", "request_url", "error_reason"}},
	},
}

type script []string

func (s *script) add(stmts ...string) { *s = append(*s, stmts...) }

func (s script) String() string {
	if len(s) == 0 {
		return ""
	}
	return strings.Join(s, ";\n") + ";\n"
}

func createIndexes(d backend.Dialect, s *script, ixs []backend.IndexDef) {
	for _, ix := range ixs {
		s.add(d.CreateIndex(ix))
	}
}

func dropIndexes(d backend.Dialect, s *script, ixs []backend.IndexDef) {
	for i := len(ixs) - 1; i >= 0; i-- {
		s.add(d.DropIndex(ixs[i]))
	}
}

func indexMigration(d backend.Dialect, id, name string, ixs []backend.IndexDef) migrator.Migration {
	var up, down script
	createIndexes(d, &up, ixs)
	dropIndexes(d, &down, ixs)
	return migrator.SQLMigration{MigrationID: id, MigrationName: name, UpSQL: up.String(), DownSQL: down.String()}
}

// Migrations renders the log schema migrations for d, in application order.
func Migrations(d backend.Dialect) []migrator.Migration {
	table := logEntriesTable()

	var up1, down1 script
	up1.add(d.CreateTable(table)...)
	createIndexes(d, &up1, BaseIndexes)
	dropIndexes(d, &down1, BaseIndexes)
	down1.add(d.DropTable(table)...)

	var up5, down5 script
	for _, t := range AggregationTables {
		up5.add(d.CreateTable(t)...)
	}
	for i := len(AggregationTables) - 1; i >= 0; i-- {
		down5.add(d.DropTable(AggregationTables[i])...)
	}

	return []migrator.Migration{
		migrator.SQLMigration{MigrationID: "001", MigrationName: "create_log_entries", UpSQL: up1.String(), DownSQL: down1.String()},
		indexMigration(d, "002", "add_pagination_indexes", paginationIndexes),
		indexMigration(d, "003", "add_covering_indexes", coveringIndexes),
		indexMigration(d, "004", "add_workflow_indexes", workflowIndexes),
		migrator.SQLMigration{MigrationID: "005", MigrationName: "create_aggregation_tables", UpSQL: up5.String(), DownSQL: down5.String()},
		connTraceMigration(d),
	}
}

// connTraceMigration adds conn_trace_id. DuckDB refuses to alter a table
// that has indexes, so there the existing indexes are dropped around the
// column change. It also refuses to drop an indexed column inside the
// transaction that dropped the index, so its rollback rebuilds the table.
func connTraceMigration(d backend.Dialect) migrator.Migration {
	var up, down script
	if d.Name() != "duckdb" {
		up.add(d.AddColumn(logentry.Table, logentry.ConnTraceIDColumn))
		createIndexes(d, &up, connTraceIndexes)
		dropIndexes(d, &down, connTraceIndexes)
		down.add(d.DropColumn(logentry.Table, logentry.ConnTraceIDColumn.Name))
		return migrator.SQLMigration{MigrationID: "006", MigrationName: "add_connection_id", UpSQL: up.String(), DownSQL: down.String()}
	}

	var existing []backend.IndexDef
	existing = append(existing, BaseIndexes...)
	existing = append(existing, paginationIndexes...)
	existing = append(existing, coveringIndexes...)
	existing = append(existing, workflowIndexes...)

	dropIndexes(d, &up, existing)
	up.add(d.AddColumn(logentry.Table, logentry.ConnTraceIDColumn))
	createIndexes(d, &up, existing)
	createIndexes(d, &up, connTraceIndexes)

	rebuildLogEntries(d, &down)
	createIndexes(d, &down, existing)

	return migrator.SQLMigration{MigrationID: "006", MigrationName: "add_connection_id", UpSQL: up.String(), DownSQL: down.String()}
}

// rebuildLogEntries recreates log_entries with the base columns only,
// copying rows through a temporary table. The id sequence is kept so new
// rows continue after the copied ones.
func rebuildLogEntries(d backend.Dialect, s *script) {
	table := logEntriesTable()
	names := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		names[i] = c.Name
	}
	cols := strings.Join(names, ", ")
	tmp := table.Name + "_rebuild"

	s.add(
		fmt.Sprintf("CREATE TEMP TABLE %s AS SELECT %s FROM %s", tmp, cols, table.Name),
		fmt.Sprintf("DROP TABLE %s", table.Name),
	)
	s.add(d.CreateTable(table)...)
	s.add(
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", table.Name, cols, cols, tmp),
		fmt.Sprintf("DROP TABLE %s", tmp),
	)
}
