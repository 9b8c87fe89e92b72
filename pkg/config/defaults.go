package config

import "maps"

var defaults = map[Type]DatabaseConfig{
	TypeSQLite: {
		Database:       "alb_logs.db",
		MaxConnections: 1,
		Pool:           &PoolConfig{Min: 1, Max: 1, AcquireTimeoutMillis: defaultAcquireTimeoutMillis, IdleTimeoutMillis: defaultIdleTimeoutMillis},
		Options:        map[string]string{"journal_mode": "WAL", "busy_timeout": "5000"},
	},
	TypePostgres: {
		Host:           "localhost",
		Port:           5432,
		Database:       "alb_logs",
		Username:       "postgres",
		MaxConnections: 10,
		Pool:           &PoolConfig{Min: 2, Max: 10, AcquireTimeoutMillis: defaultAcquireTimeoutMillis, IdleTimeoutMillis: defaultIdleTimeoutMillis},
		Options:        map[string]string{"sslmode": "disable"},
	},
	TypeClickHouse: {
		Host:           "localhost",
		Port:           9000,
		Database:       "default",
		Username:       "default",
		MaxConnections: 5,
		Pool:           &PoolConfig{Min: 1, Max: 5, AcquireTimeoutMillis: defaultAcquireTimeoutMillis, IdleTimeoutMillis: defaultIdleTimeoutMillis},
		Options:        map[string]string{"compression": "lz4"},
	},
	TypeDuckDB: {
		Database:       "alb_logs.duckdb",
		MaxConnections: 4,
		Pool:           &PoolConfig{Min: 1, Max: 4, AcquireTimeoutMillis: defaultAcquireTimeoutMillis, IdleTimeoutMillis: defaultIdleTimeoutMillis},
		Options:        map[string]string{"threads": "4"},
	},
}

func defaultMaxConnections(t Type) int {
	if d, ok := defaults[t]; ok {
		return d.MaxConnections
	}
	return 10
}

// CreateDefault returns the defaults for t overlaid with every non-zero field
// of overrides. Pool fields and Options are merged key by key.
func CreateDefault(t Type, overrides DatabaseConfig) DatabaseConfig {
	cfg := defaults[t].clone()
	cfg.Type = t
	return Merge(cfg, overrides)
}

// Merge overlays the non-zero fields of over onto base.
func Merge(base, over DatabaseConfig) DatabaseConfig {
	out := base.clone()
	if over.Type != "" {
		out.Type = over.Type
	}
	if over.ConnectionString != "" {
		out.ConnectionString = over.ConnectionString
	}
	if over.Host != "" {
		out.Host = over.Host
	}
	if over.Port != 0 {
		out.Port = over.Port
	}
	if over.Database != "" {
		out.Database = over.Database
	}
	if over.Username != "" {
		out.Username = over.Username
	}
	if over.Password != "" {
		out.Password = over.Password
	}
	if over.Filename != "" {
		out.Filename = over.Filename
	}
	if over.Driver != "" {
		out.Driver = over.Driver
	}
	if over.MaxConnections != 0 {
		out.MaxConnections = over.MaxConnections
		// An explicit connection cap replaces the default pool ceiling.
		if out.Pool != nil && (over.Pool == nil || over.Pool.Max == 0) {
			out.Pool.Max = 0
		}
	}
	if over.Pool != nil {
		if out.Pool == nil {
			out.Pool = &PoolConfig{}
		}
		if over.Pool.Min != 0 {
			out.Pool.Min = over.Pool.Min
		}
		if over.Pool.Max != 0 {
			out.Pool.Max = over.Pool.Max
		}
		if over.Pool.AcquireTimeoutMillis != 0 {
			out.Pool.AcquireTimeoutMillis = over.Pool.AcquireTimeoutMillis
		}
		if over.Pool.IdleTimeoutMillis != 0 {
			out.Pool.IdleTimeoutMillis = over.Pool.IdleTimeoutMillis
		}
	}
	if len(over.Options) > 0 {
		if out.Options == nil {
			out.Options = map[string]string{}
		}
		maps.Copy(out.Options, over.Options)
	}
	if out.Pool != nil && out.Pool.Max == 0 && out.Pool.Min > out.maxConnections() {
		out.Pool.Min = out.maxConnections()
	}
	return out
}
