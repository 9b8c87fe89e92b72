//go:build integration
// +build integration

package schema

import (
	"context"
	"fmt"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/faciam-dev/lbflow/pkg/backend"
	"github.com/faciam-dev/lbflow/pkg/config"
)

func connect(t *testing.T, cfg config.DatabaseConfig) backend.Conn {
	t.Helper()
	ctx := context.Background()
	connector, err := backend.Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	c, err := connector.Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
		_ = connector.Close()
	})
	return c
}

func exerciseSchema(t *testing.T, c backend.Conn) {
	t.Helper()
	ctx := context.Background()
	m, err := NewManager(c)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	applied, err := m.InitializeSchema(ctx)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if len(applied) != 6 {
		t.Fatalf("applied = %v", applied)
	}
	if valid, err := m.ValidateSchema(ctx); err != nil || !valid {
		t.Fatalf("valid = %v, %v", valid, err)
	}
	cols, err := m.TableInfo(ctx)
	if err != nil || len(cols) != 32 {
		t.Fatalf("columns = %d, %v", len(cols), err)
	}
	for _, id := range []string{"006", "005", "004", "003", "002", "001"} {
		if err := m.RollbackMigration(ctx, id); err != nil {
			t.Fatalf("rollback %s: %v", id, err)
		}
	}
	if _, ok, _ := m.SchemaVersion(ctx); ok {
		t.Fatalf("migrations left after full rollback")
	}
	if _, err := m.RunMigrations(ctx); err != nil {
		t.Fatalf("reapply: %v", err)
	}
}

func TestSchemaPostgres(t *testing.T) {
	ctx := context.Background()
	container, err := func() (c *postgres.PostgresContainer, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%v", r)
			}
		}()
		return postgres.Run(ctx, "postgres:16", postgres.WithDatabase("alb_logs"), postgres.WithUsername("user"), postgres.WithPassword("pass"))
	}()
	if err != nil {
		t.Skipf("container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	exerciseSchema(t, connect(t, config.DatabaseConfig{Type: config.TypePostgres, ConnectionString: dsn, Driver: "pgx"}))
}

func TestSchemaMySQL(t *testing.T) {
	ctx := context.Background()
	container, err := func() (c *mysql.MySQLContainer, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%v", r)
			}
		}()
		return mysql.Run(ctx, "mysql:8.4",
			mysql.WithDatabase("alb_logs"),
			mysql.WithUsername("user"),
			mysql.WithPassword("pass"),
		)
	}()
	if err != nil {
		t.Skipf("container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })
	dsn, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	exerciseSchema(t, connect(t, config.DatabaseConfig{Type: config.TypePostgres, ConnectionString: dsn, Driver: "mysql"}))
}
