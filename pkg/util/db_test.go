package util

import "testing"

func TestDetectDriver(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/db":    "postgres",
		"postgresql://localhost/db":      "postgres",
		"mysql://u:p@localhost:3306/db":  "mysql",
		"clickhouse://localhost:9000/db": "clickhouse",
		"tcp://localhost:9000":           "clickhouse",
		"duckdb:///tmp/a.duckdb":         "duckdb",
		"file:logs.db?cache=shared":      "sqlite3",
		"/var/lib/alb/logs.db":           "sqlite3",
		"analytics.duckdb":               "duckdb",
	}
	for dsn, want := range cases {
		got, err := DetectDriver(dsn)
		if err != nil {
			t.Fatalf("detect %q: %v", dsn, err)
		}
		if got != want {
			t.Fatalf("detect %q: want %s got %s", dsn, want, got)
		}
	}
	for _, bad := range []string{"", "redis://localhost", "logs.txt"} {
		if _, err := DetectDriver(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("LBFLOW_TEST_INT", "42")
	if got := GetEnvInt("LBFLOW_TEST_INT", 1); got != 42 {
		t.Fatalf("want 42 got %d", got)
	}
	t.Setenv("LBFLOW_TEST_INT", "nope")
	if got := GetEnvInt("LBFLOW_TEST_INT", 7); got != 7 {
		t.Fatalf("want fallback 7 got %d", got)
	}
}
