package config

import "maps"

// Builder assembles a DatabaseConfig fluently.
//
//	cfg, err := config.NewBuilder().
//		Type(config.TypePostgres).
//		Host("db.internal").
//		Database("alb_logs").
//		Build()
type Builder struct {
	cfg DatabaseConfig
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Type(t Type) *Builder {
	b.cfg.Type = t
	return b
}

func (b *Builder) ConnectionString(dsn string) *Builder {
	b.cfg.ConnectionString = dsn
	return b
}

func (b *Builder) Host(host string) *Builder {
	b.cfg.Host = host
	return b
}

func (b *Builder) Port(port int) *Builder {
	b.cfg.Port = port
	return b
}

func (b *Builder) Database(name string) *Builder {
	b.cfg.Database = name
	return b
}

func (b *Builder) Filename(path string) *Builder {
	b.cfg.Filename = path
	return b
}

// Credentials sets the username and password.
func (b *Builder) Credentials(user, password string) *Builder {
	b.cfg.Username = user
	b.cfg.Password = password
	return b
}

func (b *Builder) Driver(name string) *Builder {
	b.cfg.Driver = name
	return b
}

func (b *Builder) MaxConnections(n int) *Builder {
	b.cfg.MaxConnections = n
	return b
}

func (b *Builder) Pool(p PoolConfig) *Builder {
	b.cfg.Pool = &p
	return b
}

// Option sets one engine specific option.
func (b *Builder) Option(key, value string) *Builder {
	if b.cfg.Options == nil {
		b.cfg.Options = map[string]string{}
	}
	b.cfg.Options[key] = value
	return b
}

// Build returns a copy of the accumulated configuration. It fails only when
// Type was never set; use Validate for the remaining rules.
func (b *Builder) Build() (DatabaseConfig, error) {
	if b.cfg.Type == "" {
		return DatabaseConfig{}, ErrTypeRequired
	}
	return b.cfg.clone(), nil
}

func (c DatabaseConfig) clone() DatabaseConfig {
	out := c
	if c.Pool != nil {
		p := *c.Pool
		out.Pool = &p
	}
	if c.Options != nil {
		out.Options = maps.Clone(c.Options)
	}
	return out
}
