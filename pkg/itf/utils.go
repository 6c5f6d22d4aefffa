package itf

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/payroll-ledger/modules"
	"github.com/iota-uz/payroll-ledger/pkg/application"
	"github.com/iota-uz/payroll-ledger/pkg/configuration"
	"github.com/iota-uz/payroll-ledger/pkg/eventbus"
)

// PostgreSQL identifiers are capped at 63 bytes.
const (
	maxDBNameLength  = 63
	hashSuffixLength = 9
)

func NewPool(ctx context.Context, dbOpts string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	config, err := pgxpool.ParseConfig(dbOpts)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// sanitizeDBName turns a test name into a valid database name.
func sanitizeDBName(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, name)
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "test_db"
	}
	if len(sanitized) <= maxDBNameLength {
		return sanitized
	}
	sum := sha256.Sum256([]byte(name))
	return fmt.Sprintf("%s_%x", sanitized[:maxDBNameLength-hashSuffixLength], sum[:4])
}

func adminConnString(c *configuration.Configuration) string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=postgres password=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password,
	)
}

// CreateDB drops and recreates the named database.
func CreateDB(ctx context.Context, name string) error {
	conn, err := pgx.Connect(ctx, adminConnString(configuration.Use()))
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	ident := pgx.Identifier{sanitizeDBName(name)}.Sanitize()
	if _, err := conn.Exec(ctx, "DROP DATABASE IF EXISTS "+ident); err != nil {
		return err
	}
	_, err = conn.Exec(ctx, "CREATE DATABASE "+ident)
	return err
}

func DbOpts(name string) string {
	c := configuration.Use()
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, sanitizeDBName(name), c.Database.Password,
	)
}

// SetupApplication loads the modules against pool and migrates every
// registered schema up.
func SetupApplication(ctx context.Context, pool *pgxpool.Pool, mods ...application.Module) (application.Application, error) {
	conf := configuration.Use()
	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(conf.Logger()),
		Logger:   conf.Logger(),
	})
	if err := modules.Load(app, mods...); err != nil {
		return nil, err
	}
	if _, err := app.Migrations().Up(ctx, pool); err != nil {
		return nil, err
	}
	return app, nil
}

// RequireDatabase skips the test when the configured server is unreachable.
func RequireDatabase(tb testing.TB) {
	tb.Helper()
	if testing.Short() {
		tb.Skip("integration test skipped in -short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := pgx.Connect(ctx, adminConnString(configuration.Use()))
	if err != nil {
		tb.Skipf("postgres unavailable: %v", err)
	}
	_ = conn.Close(ctx)
}
