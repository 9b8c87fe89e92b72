package dbcmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faciam-dev/lbflow/pkg/config"
	"github.com/faciam-dev/lbflow/pkg/util"
)

// DBFlags defines the flags shared by every command that reaches a backend.
type DBFlags struct {
	ConfigPath string
	DSN        string
	Type       string
	Driver     string
	LogLevel   string
	LogFormat  string
	Output     string
}

// AddFlags attaches the DB flags to cmd and all of its subcommands.
func (f *DBFlags) AddFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.ConfigPath, "config", util.GetEnv("LBFLOW_CONFIG", ""), "YAML configuration file")
	pf.StringVar(&f.DSN, "db", "", "database DSN or file path")
	pf.StringVar(&f.Type, "type", "", "database type (sqlite|postgresql|clickhouse|duckdb)")
	pf.StringVar(&f.Driver, "driver", "", "database/sql driver name")
	pf.StringVar(&f.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	pf.StringVar(&f.LogFormat, "log-format", "", "log format (json|console)")
	pf.StringVar(&f.Output, "output", "table", "output format (table|json)")
}

// Resolved is the effective configuration after merging all sources.
type Resolved struct {
	Database config.DatabaseConfig
	Logging  config.LogConfig
}

// Resolve merges type defaults, the config file, LBFLOW_* environment
// variables and flags, later sources winning.
func (f *DBFlags) Resolve() (Resolved, error) {
	file, err := config.Load(f.ConfigPath)
	if err != nil {
		return Resolved{}, err
	}
	cfg := config.FromEnv(file.Database)
	if f.DSN != "" {
		fromDSN, err := config.FromDSN(f.DSN)
		if err != nil {
			return Resolved{}, fmt.Errorf("--db: %w", err)
		}
		cfg = config.Merge(cfg, fromDSN)
	}
	if f.Type != "" {
		cfg.Type = config.Type(f.Type)
	}
	if f.Driver != "" {
		cfg.Driver = f.Driver
	}
	if cfg.Type == "" {
		return Resolved{}, errors.New("no database configured: set --db, --type, LBFLOW_DB_TYPE or a config file")
	}
	cfg = config.CreateDefault(cfg.Type, cfg)

	logCfg := file.Logging
	logCfg.Level = pick(f.LogLevel, util.GetEnv("LBFLOW_LOG_LEVEL", ""), logCfg.Level)
	logCfg.Format = pick(f.LogFormat, util.GetEnv("LBFLOW_LOG_FORMAT", ""), logCfg.Format)
	return Resolved{Database: cfg, Logging: logCfg}, nil
}

func pick(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
