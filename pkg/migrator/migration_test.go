package migrator

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplitSQLDollarQuote(t *testing.T) {
	src := "CREATE OR REPLACE FUNCTION notify_entries() RETURNS trigger LANGUAGE plpgsql AS $$\nBEGIN\n  PERFORM pg_notify('entries', NEW.id::text);\n  RETURN NEW;\nEND;\n$$;"
	stmts := SplitSQL(src)
	if len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d: %#v", len(stmts), stmts)
	}
}

func TestSplitSQL(t *testing.T) {
	src := `-- header; not a statement
CREATE TABLE t (v TEXT DEFAULT 'a;b');
INSERT INTO t VALUES ('it''s');  -- trailing; comment
CREATE INDEX "weird;name" ON t (v)`
	want := []string{
		"CREATE TABLE t (v TEXT DEFAULT 'a;b')",
		"INSERT INTO t VALUES ('it''s')",
		`CREATE INDEX "weird;name" ON t (v)`,
	}
	if diff := cmp.Diff(want, SplitSQL(src)); diff != "" {
		t.Fatalf("split diff (-want +got)\n%s", diff)
	}
	if got := SplitSQL("  ;\n; "); len(got) != 0 {
		t.Fatalf("empty statements kept: %#v", got)
	}
}

func TestChecksum(t *testing.T) {
	a := SQLMigration{MigrationID: "001", MigrationName: "a", UpSQL: "CREATE TABLE a (id INTEGER)", DownSQL: "DROP TABLE a"}
	b := a
	b.UpSQL = "  CREATE TABLE a (id INTEGER)\n"
	if Checksum(a) != Checksum(b) {
		t.Fatalf("surrounding whitespace changed the checksum")
	}
	b.DownSQL = "DROP TABLE IF EXISTS a"
	if Checksum(a) == Checksum(b) {
		t.Fatalf("down change not reflected in checksum")
	}
	if len(Checksum(a)) != 64 {
		t.Fatalf("checksum = %q", Checksum(a))
	}
}

func TestCompareIDs(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"001", "002", -1},
		{"9", "10", -1},
		{"010", "10", 0},
		{"b", "a", 1},
	}
	for _, c := range cases {
		if got := CompareIDs(c.a, c.b); got != c.want {
			t.Errorf("CompareIDs(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
