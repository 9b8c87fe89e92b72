// Package config describes how lbflow reaches a storage backend: which engine,
// how to address it and how many connections to keep.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/faciam-dev/lbflow/pkg/util"
)

// Type identifies a storage engine family.
type Type string

const (
	// TypeSQLite is the embedded, file based engine.
	TypeSQLite Type = "sqlite"
	// TypePostgres is the client/server relational engine. MySQL is served by
	// the same type through Driver "mysql".
	TypePostgres Type = "postgresql"
	// TypeClickHouse is the columnar analytical engine.
	TypeClickHouse Type = "clickhouse"
	// TypeDuckDB is the embedded analytical engine.
	TypeDuckDB Type = "duckdb"
)

// Types lists every supported engine in registry order.
var Types = []Type{TypeSQLite, TypePostgres, TypeClickHouse, TypeDuckDB}

// drivers lists the database/sql driver names accepted per type. The first
// entry is the default.
var drivers = map[Type][]string{
	TypeSQLite:     {"sqlite3", "sqlite"},
	TypePostgres:   {"postgres", "pgx", "mysql"},
	TypeClickHouse: {"clickhouse"},
	TypeDuckDB:     {"duckdb"},
}

const (
	defaultAcquireTimeoutMillis = 30_000
	defaultIdleTimeoutMillis    = 600_000
)

// PoolConfig sizes a connection pool. Zero values mean "use the default".
type PoolConfig struct {
	Min                  int `yaml:"min,omitempty" json:"min,omitempty"`
	Max                  int `yaml:"max,omitempty" json:"max,omitempty"`
	AcquireTimeoutMillis int `yaml:"acquire_timeout_millis,omitempty" json:"acquireTimeoutMillis,omitempty"`
	IdleTimeoutMillis    int `yaml:"idle_timeout_millis,omitempty" json:"idleTimeoutMillis,omitempty"`
}

// DatabaseConfig holds connection parameters for one backend.
//
// A backend is addressed either by ConnectionString, by Host and Database, or
// (embedded engines) by Database/Filename naming a file. Driver selects the
// database/sql driver within the type; Options carries engine specific
// settings such as "sslmode" or "journal_mode".
type DatabaseConfig struct {
	Type             Type              `yaml:"type" json:"type"`
	ConnectionString string            `yaml:"connection_string,omitempty" json:"connectionString,omitempty"`
	Host             string            `yaml:"host,omitempty" json:"host,omitempty"`
	Port             int               `yaml:"port,omitempty" json:"port,omitempty"`
	Database         string            `yaml:"database,omitempty" json:"database,omitempty"`
	Username         string            `yaml:"username,omitempty" json:"username,omitempty"`
	Password         string            `yaml:"password,omitempty" json:"password,omitempty"`
	Filename         string            `yaml:"filename,omitempty" json:"filename,omitempty"`
	Driver           string            `yaml:"driver,omitempty" json:"driver,omitempty"`
	MaxConnections   int               `yaml:"max_connections,omitempty" json:"maxConnections,omitempty"`
	Pool             *PoolConfig       `yaml:"pool,omitempty" json:"pool,omitempty"`
	Options          map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
}

// Validate returns every problem found in cfg. An empty result means the
// configuration is usable.
func Validate(cfg DatabaseConfig) []string {
	if cfg.Type == "" {
		return []string{"Database type is required"}
	}
	var errs []string
	if cfg.Port != 0 && (cfg.Port < 1 || cfg.Port > 65535) {
		errs = append(errs, "Port must be between 1 and 65535")
	}
	if cfg.MaxConnections < 0 {
		errs = append(errs, "Max connections must be greater than 0")
	}
	if cfg.Pool != nil {
		if cfg.Pool.Min < 0 {
			errs = append(errs, "Pool min must be >= 0")
		}
		if cfg.Pool.Max < 0 {
			errs = append(errs, "Pool max must be greater than 0")
		}
		if cfg.Pool.AcquireTimeoutMillis < 0 || cfg.Pool.IdleTimeoutMillis < 0 {
			errs = append(errs, "Pool timeouts must be >= 0")
		}
		if cfg.Pool.Min > 0 && cfg.Pool.Min > cfg.maxConnections() {
			errs = append(errs, "Pool min connections cannot be greater than pool max connections")
		}
	}

	switch cfg.Type {
	case TypeSQLite:
		if cfg.Database == "" && cfg.Filename == "" {
			errs = append(errs, "SQLite requires either database or filename")
		}
	case TypePostgres:
		if cfg.ConnectionString == "" && (cfg.Host == "" || cfg.Database == "") {
			errs = append(errs, "PostgreSQL requires either connectionString or host and database")
		}
	case TypeClickHouse:
		if cfg.ConnectionString == "" && (cfg.Host == "" || cfg.Database == "") {
			errs = append(errs, "ClickHouse requires either connectionString or host and database")
		}
	case TypeDuckDB:
		if cfg.Database == "" && cfg.Filename == "" {
			errs = append(errs, "DuckDB requires either database or filename")
		}
	default:
		return append(errs, fmt.Sprintf("Unsupported database type: %s", cfg.Type))
	}

	if cfg.Driver != "" && !contains(drivers[cfg.Type], cfg.Driver) {
		errs = append(errs, fmt.Sprintf("Unsupported driver %q for database type %s", cfg.Driver, cfg.Type))
	}
	return errs
}

// IsValid reports whether Validate finds no problems.
func IsValid(cfg DatabaseConfig) bool {
	return len(Validate(cfg)) == 0
}

// Check returns a *ConfigurationError describing cfg's problems, or nil.
func Check(cfg DatabaseConfig) error {
	if reasons := Validate(cfg); len(reasons) > 0 {
		return &ConfigurationError{Reasons: reasons}
	}
	return nil
}

// ResolvedDriver returns the database/sql driver that will serve cfg.
func (c DatabaseConfig) ResolvedDriver() string {
	if c.Driver != "" {
		return c.Driver
	}
	allowed := drivers[c.Type]
	if c.ConnectionString != "" {
		if d, err := util.DetectDriver(c.ConnectionString); err == nil && contains(allowed, d) {
			return d
		}
	}
	if len(allowed) == 0 {
		return ""
	}
	return allowed[0]
}

// Path returns the file addressed by an embedded engine configuration.
func (c DatabaseConfig) Path() string {
	if c.Filename != "" {
		return c.Filename
	}
	return c.Database
}

// Addr joins Host and Port, using def when Port is unset.
func (c DatabaseConfig) Addr(def int) string {
	port := c.Port
	if port == 0 {
		port = def
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c DatabaseConfig) maxConnections() int {
	if c.Pool != nil && c.Pool.Max > 0 {
		return c.Pool.Max
	}
	if c.MaxConnections > 0 {
		return c.MaxConnections
	}
	return defaultMaxConnections(c.Type)
}

// EffectivePool resolves pool sizing with defaults applied. Pool.Max wins over
// MaxConnections.
func (c DatabaseConfig) EffectivePool() PoolConfig {
	var p PoolConfig
	if c.Pool != nil {
		p = *c.Pool
	}
	p.Max = c.maxConnections()
	if p.Min > p.Max {
		p.Min = p.Max
	}
	if p.AcquireTimeoutMillis == 0 {
		p.AcquireTimeoutMillis = defaultAcquireTimeoutMillis
	}
	if p.IdleTimeoutMillis == 0 {
		p.IdleTimeoutMillis = defaultIdleTimeoutMillis
	}
	return p
}

// Key returns the canonical identity of c. Two configurations that resolve to
// the same backend and pool sizing share a key.
func (c DatabaseConfig) Key() string {
	canon := struct {
		Type             Type              `json:"type"`
		ConnectionString string            `json:"connectionString"`
		Host             string            `json:"host"`
		Port             int               `json:"port"`
		Database         string            `json:"database"`
		Username         string            `json:"username"`
		Password         string            `json:"password"`
		Filename         string            `json:"filename"`
		Driver           string            `json:"driver"`
		Pool             PoolConfig        `json:"pool"`
		Options          map[string]string `json:"options"`
	}{
		Type:             c.Type,
		ConnectionString: c.ConnectionString,
		Host:             strings.ToLower(c.Host),
		Port:             c.Port,
		Database:         c.Database,
		Username:         c.Username,
		Password:         c.Password,
		Filename:         c.Filename,
		Driver:           c.ResolvedDriver(),
		Pool:             c.EffectivePool(),
		Options:          c.Options,
	}
	if len(canon.Options) == 0 {
		canon.Options = nil
	}
	// encoding/json sorts map keys, so Options serialize deterministically.
	b, _ := json.Marshal(canon)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Redacted describes c for logs without credentials.
func (c DatabaseConfig) Redacted() string {
	switch {
	case c.ConnectionString != "":
		return fmt.Sprintf("%s(%s)", c.Type, redactDSN(c.ConnectionString))
	case c.Host != "":
		host := c.Host
		if c.Port != 0 {
			host = c.Addr(c.Port)
		}
		return fmt.Sprintf("%s(%s/%s)", c.Type, host, c.Database)
	default:
		return fmt.Sprintf("%s(%s)", c.Type, c.Path())
	}
}

// Masked returns a copy of c with credentials replaced, for display.
func (c DatabaseConfig) Masked() DatabaseConfig {
	out := c.clone()
	if out.Password != "" {
		out.Password = "***"
	}
	out.ConnectionString = redactDSN(out.ConnectionString)
	return out
}

func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	start := strings.Index(dsn, "://")
	if start < 0 || start > at {
		return "***" + dsn[at:]
	}
	return dsn[:start+3] + "***" + dsn[at:]
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
