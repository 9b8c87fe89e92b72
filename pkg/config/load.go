package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/faciam-dev/lbflow/pkg/util"
)

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// File is the on-disk configuration layout.
//
//	database:
//	  type: postgresql
//	  host: db.internal
//	  database: alb_logs
//	  pool:
//	    min: 2
//	    max: 8
//	logging:
//	  level: info
type File struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  LogConfig      `yaml:"logging"`
}

// Load reads a YAML configuration file. A missing file yields an empty File.
func Load(path string) (*File, error) {
	if path == "" {
		return &File{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &File{}, nil
		}
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

// FromEnv overlays LBFLOW_DB_* environment variables onto base.
func FromEnv(base DatabaseConfig) DatabaseConfig {
	env := DatabaseConfig{
		Type:             Type(util.GetEnv("LBFLOW_DB_TYPE", "")),
		ConnectionString: util.GetEnv("LBFLOW_DB_URL", ""),
		Host:             util.GetEnv("LBFLOW_DB_HOST", ""),
		Port:             util.GetEnvInt("LBFLOW_DB_PORT", 0),
		Database:         util.GetEnv("LBFLOW_DB_NAME", ""),
		Username:         util.GetEnv("LBFLOW_DB_USER", ""),
		Password:         util.GetEnv("LBFLOW_DB_PASSWORD", ""),
		Filename:         util.GetEnv("LBFLOW_DB_FILE", ""),
		Driver:           util.GetEnv("LBFLOW_DB_DRIVER", ""),
		MaxConnections:   util.GetEnvInt("LBFLOW_DB_MAX_CONNECTIONS", 0),
	}
	return Merge(base, env)
}

// DetectType maps a DSN to an engine type. MySQL DSNs map to TypePostgres,
// the client/server relational type, with Driver "mysql".
func DetectType(dsn string) (Type, string, error) {
	drv, err := util.DetectDriver(dsn)
	if err != nil {
		return "", "", err
	}
	for _, t := range Types {
		if contains(drivers[t], drv) {
			return t, drv, nil
		}
	}
	return "", "", fmt.Errorf("no database type for driver %s", drv)
}

// FromDSN builds a configuration addressed by dsn. Embedded engines receive
// the path as Filename; server engines keep the DSN as ConnectionString.
func FromDSN(dsn string) (DatabaseConfig, error) {
	t, drv, err := DetectType(dsn)
	if err != nil {
		return DatabaseConfig{}, err
	}
	cfg := DatabaseConfig{Type: t, Driver: drv}
	switch t {
	case TypeSQLite, TypeDuckDB:
		cfg.Filename = stripScheme(dsn)
	default:
		cfg.ConnectionString = dsn
	}
	return cfg, nil
}

func stripScheme(dsn string) string {
	for _, p := range []string{"sqlite3://", "sqlite://", "duckdb://", "duckdb:"} {
		if strings.HasPrefix(dsn, p) {
			return strings.TrimPrefix(dsn, p)
		}
	}
	return dsn
}
