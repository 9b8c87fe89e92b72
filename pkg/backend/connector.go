package backend

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/faciam-dev/lbflow/pkg/config"
)

// Connector opens dedicated connections to one backend.
type Connector struct {
	db      *sql.DB
	dialect Dialect
	driver  string
	// setup runs on every new connection before it is handed out.
	setup []string
}

// NewConnector wraps an opened *sql.DB. Tests use it with sqlmock.
func NewConnector(db *sql.DB, d Dialect, setup ...string) *Connector {
	return &Connector{db: db, dialect: d, driver: d.Name(), setup: setup}
}

// Open prepares a Connector for cfg without dialing. cfg must be valid.
func Open(cfg config.DatabaseConfig) (*Connector, error) {
	drv := cfg.ResolvedDriver()
	d, err := DialectFor(drv)
	if err != nil {
		return nil, err
	}
	var (
		db    *sql.DB
		setup []string
	)
	switch drv {
	case "sqlite3", "sqlite":
		db, err = sql.Open(drv, sqlitePath(cfg.Path()))
		setup = sqlitePragmas(cfg.Options)
	case "postgres", "pgx":
		db, err = sql.Open(drv, postgresDSN(cfg))
	case "mysql":
		db, err = openMySQL(cfg)
	case "clickhouse":
		var opts *clickhouse.Options
		if opts, err = clickhouseOptions(cfg); err == nil {
			db = clickhouse.OpenDB(opts)
		}
	case "duckdb":
		db, err = sql.Open(drv, duckdbDSN(cfg))
	default:
		err = fmt.Errorf("unsupported driver %q", drv)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Type, err)
	}
	// The pool owns connection reuse; database/sql must not keep its own
	// idle set behind it.
	db.SetMaxIdleConns(0)
	return &Connector{db: db, dialect: d, driver: drv, setup: setup}, nil
}

// Connect opens a new dedicated connection and runs session setup.
func (c *Connector) Connect(ctx context.Context) (Conn, error) {
	sc, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := sc.PingContext(ctx); err != nil {
		sc.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	for _, stmt := range c.setup {
		if _, err := sc.ExecContext(ctx, stmt); err != nil {
			sc.Close()
			return nil, fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return NewConn(sc, c.dialect), nil
}

// Dialect returns the dialect of connections produced by c.
func (c *Connector) Dialect() Dialect { return c.dialect }

// Driver returns the database/sql driver name.
func (c *Connector) Driver() string { return c.driver }

// Close releases the underlying *sql.DB.
func (c *Connector) Close() error { return c.db.Close() }

func sqlitePath(p string) string {
	if p == ":memory:" {
		return "file::memory:?cache=shared"
	}
	return p
}

func sqlitePragmas(opts map[string]string) []string {
	pragmas := []string{"PRAGMA foreign_keys = ON"}
	if v := opts["busy_timeout"]; v != "" {
		pragmas = append(pragmas, "PRAGMA busy_timeout = "+v)
	}
	if v := opts["journal_mode"]; v != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode = "+v)
	}
	if v := opts["synchronous"]; v != "" {
		pragmas = append(pragmas, "PRAGMA synchronous = "+v)
	}
	return pragmas
}

func postgresDSN(cfg config.DatabaseConfig) string {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   cfg.Addr(5432),
		Path:   "/" + cfg.Database,
	}
	if cfg.Username != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.Username, cfg.Password)
		} else {
			u.User = url.User(cfg.Username)
		}
	}
	q := url.Values{}
	for k, v := range cfg.Options {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func openMySQL(cfg config.DatabaseConfig) (*sql.DB, error) {
	mc, err := mysqlConfig(cfg)
	if err != nil {
		return nil, err
	}
	c, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(c), nil
}

func mysqlConfig(cfg config.DatabaseConfig) (*mysql.Config, error) {
	var mc *mysql.Config
	switch {
	case strings.HasPrefix(cfg.ConnectionString, "mysql://"):
		u, err := url.Parse(cfg.ConnectionString)
		if err != nil {
			return nil, err
		}
		mc = mysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = u.Host
		mc.DBName = strings.TrimPrefix(u.Path, "/")
		if u.User != nil {
			mc.User = u.User.Username()
			mc.Passwd, _ = u.User.Password()
		}
		for k, vs := range u.Query() {
			if len(vs) > 0 {
				if mc.Params == nil {
					mc.Params = map[string]string{}
				}
				mc.Params[k] = vs[0]
			}
		}
	case cfg.ConnectionString != "":
		var err error
		if mc, err = mysql.ParseDSN(cfg.ConnectionString); err != nil {
			return nil, err
		}
	default:
		mc = mysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = cfg.Addr(3306)
		mc.DBName = cfg.Database
		mc.User = cfg.Username
		mc.Passwd = cfg.Password
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc, nil
}

func clickhouseOptions(cfg config.DatabaseConfig) (*clickhouse.Options, error) {
	if cfg.ConnectionString != "" {
		return clickhouse.ParseDSN(cfg.ConnectionString)
	}
	opts := &clickhouse.Options{
		Addr: []string{cfg.Addr(9000)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 10 * time.Second,
	}
	switch cfg.Options["compression"] {
	case "lz4":
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	case "zstd":
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionZSTD}
	}
	return opts, nil
}

func duckdbDSN(cfg config.DatabaseConfig) string {
	p := cfg.Path()
	if p == ":memory:" {
		p = ""
	}
	if len(cfg.Options) == 0 {
		return p
	}
	q := url.Values{}
	for k, v := range cfg.Options {
		q.Set(k, v)
	}
	// Encode sorts by key.
	return p + "?" + q.Encode()
}
