package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/faciam-dev/lbflow/internal/datastore"
	"github.com/faciam-dev/lbflow/internal/logentry"
	"github.com/faciam-dev/lbflow/internal/schema"
	"github.com/faciam-dev/lbflow/pkg/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func dbArgs(t *testing.T) []string {
	t.Helper()
	return []string{"--db", filepath.Join(t.TempDir(), "cli.db"), "--driver", "sqlite", "--log-level", "error"}
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestTypesCmd(t *testing.T) {
	out := mustRun(t, "types", "--output", "json")
	var got []string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	want := []string{"sqlite", "postgresql", "clickhouse", "duckdb"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("types diff (-want +got)\n%s", diff)
	}
}

func TestMigrateAndSchemaCmds(t *testing.T) {
	db := dbArgs(t)
	args := func(a ...string) []string { return append(a, db...) }

	out := mustRun(t, args("migrate")...)
	if !strings.Contains(out, "applied 001") || !strings.Contains(out, "applied 006") {
		t.Fatalf("migrate output = %q", out)
	}
	if out := mustRun(t, args("migrate", "up")...); out != "schema is up to date\n" {
		t.Fatalf("second migrate = %q", out)
	}
	if out := mustRun(t, args("schema", "version")...); out != "006\n" {
		t.Fatalf("version = %q", out)
	}
	if out := mustRun(t, args("schema", "validate")...); out != "schema is valid\n" {
		t.Fatalf("validate = %q", out)
	}

	var st []schema.Status
	if err := json.Unmarshal([]byte(mustRun(t, args("migrate", "status", "--output", "json")...)), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(st) != 6 {
		t.Fatalf("status rows = %d", len(st))
	}
	for _, s := range st {
		if !s.Applied || s.ExecutedAt == nil {
			t.Fatalf("migration %s not applied", s.ID)
		}
	}

	if out := mustRun(t, args("migrate", "rollback", "006")...); out != "rolled back 006\n" {
		t.Fatalf("rollback = %q", out)
	}
	if out := mustRun(t, args("schema", "version")...); out != "005\n" {
		t.Fatalf("version after rollback = %q", out)
	}
	if _, err := run(t, args("migrate", "rollback", "006")...); err == nil {
		t.Fatalf("rolling back an unapplied migration succeeded")
	}
	if out := mustRun(t, args("migrate", "drift")...); out != "no drift detected\n" {
		t.Fatalf("drift = %q", out)
	}
	if out := mustRun(t, args("schema", "tables")...); !strings.Contains(out, "request_url") {
		t.Fatalf("tables = %q", out)
	}
}

func writeLines(t *testing.T, lines ...string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "entries.jsonl")
	if err := os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestIngestQueryCountStats(t *testing.T) {
	db := dbArgs(t)
	args := func(a ...string) []string { return append(a, db...) }
	input := writeLines(t,
		`{"type":"https","timestamp":"2024-03-01T12:00:00Z","clientIp":"192.0.2.1","elbStatusCode":200,"requestUrl":"https://example.com/a","userAgent":"curl/8.4.0"}`,
		`{"type":"https","timestamp":"2024-03-01T12:01:00Z","clientIp":"192.0.2.2","elbStatusCode":500,"requestUrl":"https://example.com/b","userAgent":"Mozilla/5.0"}`,
		`not json`,
		``,
		`{"type":"https","clientIp":"192.0.2.3"}`,
		`{"type":"https","timestamp":"2024-03-01T12:02:00Z","clientIp":"192.0.2.1","elbStatusCode":200,"requestUrl":"https://example.com/c","userAgent":"curl/8.4.0"}`,
	)
	metricsFile := filepath.Join(t.TempDir(), "lbflow.prom")

	out := mustRun(t, args("ingest", input, "--migrate", "--metrics-file", metricsFile, "--output", "json")...)
	var sum ingestSummary
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("decode summary %q: %v", out, err)
	}
	if diff := cmp.Diff(ingestSummary{Lines: 6, Inserted: 3, Failed: 1, Malformed: 1}, sum); diff != "" {
		t.Fatalf("summary diff (-want +got)\n%s", diff)
	}
	prom, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(prom), "lbflow_entries_stored_total") {
		t.Fatalf("metrics file lacks write counter:\n%s", prom)
	}

	var entries []logentry.Entry
	if err := json.Unmarshal([]byte(mustRun(t, args("query", "--status", "500", "--output", "json")...)), &entries); err != nil {
		t.Fatalf("decode query: %v", err)
	}
	if len(entries) != 1 || entries[0].RequestURL != "https://example.com/b" {
		t.Fatalf("query = %+v", entries)
	}

	if err := json.Unmarshal([]byte(mustRun(t, args("query", "--user-agent", "curl", "--desc", "--limit", "1", "--output", "json")...)), &entries); err != nil {
		t.Fatalf("decode query: %v", err)
	}
	if len(entries) != 1 || entries[0].RequestURL != "https://example.com/c" {
		t.Fatalf("newest curl entry = %+v", entries)
	}

	if out := mustRun(t, args("count")...); out != "3\n" {
		t.Fatalf("count = %q", out)
	}
	if out := mustRun(t, args("count", "--client-ip", "192.0.2.1", "--since", "2024-03-01T12:01:00Z")...); out != "1\n" {
		t.Fatalf("filtered count = %q", out)
	}

	var stats struct {
		Storage datastore.Stats `json:"storage"`
	}
	if err := json.Unmarshal([]byte(mustRun(t, args("stats", "--output", "json")...)), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Storage.TotalEntries != 3 || stats.Storage.OldestEntry == nil {
		t.Fatalf("stats = %+v", stats.Storage)
	}
	if out := mustRun(t, args("stats")...); !strings.Contains(out, "Entries") {
		t.Fatalf("stats table = %q", out)
	}
}

func TestIndexCmds(t *testing.T) {
	db := dbArgs(t)
	args := func(a ...string) []string { return append(a, db...) }
	mustRun(t, args("migrate")...)

	if out := mustRun(t, args("index", "create", "userAgent")...); out != "idx_log_entries_user_agent\n" {
		t.Fatalf("create = %q", out)
	}
	var names []string
	if err := json.Unmarshal([]byte(mustRun(t, args("index", "list", "--output", "json")...)), &names); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	found := false
	for _, n := range names {
		found = found || n == "idx_log_entries_user_agent"
	}
	if !found {
		t.Fatalf("index missing from %v", names)
	}
	if _, err := run(t, args("index", "create", "nope")...); !errors.Is(err, datastore.ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestConfigCmds(t *testing.T) {
	p := filepath.Join(t.TempDir(), "lbflow.yaml")
	src := "database:\n  type: postgresql\n  host: pg.internal\n  password: secret\nlogging:\n  level: warn\n"
	if err := os.WriteFile(p, []byte(src), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	out := mustRun(t, "config", "show", "--config", p)
	if strings.Contains(out, "secret") || !strings.Contains(out, "***") {
		t.Fatalf("password not masked:\n%s", out)
	}
	if !strings.Contains(out, "pg.internal") || !strings.Contains(out, "alb_logs") {
		t.Fatalf("defaults not merged:\n%s", out)
	}

	out = mustRun(t, "config", "validate", "--config", p)
	if !strings.HasPrefix(out, "configuration is valid") {
		t.Fatalf("validate = %q", out)
	}

	_, err := run(t, "config", "validate", "--config", p, "--driver", "duckdb")
	var cerr *config.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *config.ConfigurationError, got %v", err)
	}

	if _, err := run(t, "config", "show"); err == nil {
		t.Fatalf("show without any database succeeded")
	}
}

type recordingWriter struct {
	batches [][]*logentry.Entry
}

func (w *recordingWriter) Store(_ context.Context, entries []*logentry.Entry) (datastore.StoreResult, error) {
	w.batches = append(w.batches, append([]*logentry.Entry(nil), entries...))
	var res datastore.StoreResult
	for i, e := range entries {
		if e.Timestamp.IsZero() {
			res.Failed++
			res.Errors = append(res.Errors, &datastore.StorageWriteError{Index: i, Err: logentry.ErrMissingTimestamp})
			continue
		}
		res.Inserted++
	}
	return res, nil
}

func TestIngestBatches(t *testing.T) {
	in := strings.Join([]string{
		`{"timestamp":"2024-03-01T12:00:00Z"}`,
		`{"timestamp":"2024-03-01T12:00:01Z"}`,
		`{}`,
		`{"timestamp":"2024-03-01T12:00:03Z"}`,
		`{"timestamp":"2024-03-01T12:00:04Z"}`,
	}, "\n")
	w := &recordingWriter{}
	sum, err := ingest(context.Background(), w, strings.NewReader(in), 2, zap.NewNop())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(w.batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(w.batches))
	}
	if diff := cmp.Diff(ingestSummary{Lines: 5, Inserted: 4, Failed: 1}, sum); diff != "" {
		t.Fatalf("summary diff (-want +got)\n%s", diff)
	}
}

func TestFilterFlags(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ff := filterFlags{statuses: []int{502}, since: "90m", until: "2024-03-01T11:59:00Z", limit: 10}
	f, err := ff.filter(now)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	want := &datastore.Filter{
		StatusCodes: []int{502},
		TimeRange:   &datastore.TimeRange{Start: now.Add(-90 * time.Minute), End: now.Add(-time.Minute)},
		Limit:       10,
	}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Fatalf("filter diff (-want +got)\n%s", diff)
	}

	if f, _ := (&filterFlags{}).filter(now); f.TimeRange != nil {
		t.Fatalf("empty flags produced a time range")
	}
	if _, err := (&filterFlags{since: "yesterday"}).filter(now); err == nil {
		t.Fatalf("invalid --since accepted")
	}
}
