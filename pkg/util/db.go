package util

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// DetectDriver returns the database/sql driver name implied by a DSN.
// URL schemes are checked first; bare paths fall back to the file extension.
// Supported schemes: postgres/postgresql, mysql, clickhouse/tcp, duckdb,
// sqlite/sqlite3/file.
func DetectDriver(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("empty dsn")
	}
	if strings.Contains(dsn, "://") || strings.HasPrefix(dsn, "file:") || strings.HasPrefix(dsn, "duckdb:") {
		parsedURL, err := url.Parse(dsn)
		if err != nil {
			return "", err
		}
		switch parsedURL.Scheme {
		case "postgres", "postgresql":
			return "postgres", nil
		case "mysql":
			return "mysql", nil
		case "clickhouse", "tcp":
			return "clickhouse", nil
		case "duckdb":
			return "duckdb", nil
		case "sqlite", "sqlite3", "file":
			return "sqlite3", nil
		default:
			return "", fmt.Errorf("unknown scheme: %s", parsedURL.Scheme)
		}
	}
	switch strings.ToLower(filepath.Ext(dsn)) {
	case ".duckdb", ".ddb":
		return "duckdb", nil
	case ".db", ".sqlite", ".sqlite3":
		return "sqlite3", nil
	}
	return "", fmt.Errorf("cannot detect driver for %q", dsn)
}
