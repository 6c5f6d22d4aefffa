package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/payroll-ledger/pkg/application"
	"github.com/iota-uz/payroll-ledger/pkg/configuration"
	"github.com/iota-uz/payroll-ledger/pkg/eventbus"
)

// GetDatabasePool connects with dsn, or the configured database when dsn is
// empty.
func GetDatabasePool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		dsn = configuration.Use().Database.Opts
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return pool, nil
}

// AppLoader builds an application with its modules registered. The returned
// func releases the database pool.
type AppLoader func(ctx context.Context) (application.Application, func(), error)

func NewAppLoader(modules ...application.Module) AppLoader {
	return func(ctx context.Context) (application.Application, func(), error) {
		conf := configuration.Use()
		pool, err := GetDatabasePool(ctx, "")
		if err != nil {
			return nil, nil, err
		}
		app := application.New(&application.ApplicationOptions{
			Pool:     pool,
			EventBus: eventbus.NewEventPublisher(conf.Logger()),
			Logger:   conf.Logger(),
		})
		for _, m := range modules {
			if err := m.Register(app); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("register module %s: %w", m.Name(), err)
			}
		}
		return app, pool.Close, nil
	}
}
