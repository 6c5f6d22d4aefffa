package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-ledger/internal/server"
	"github.com/iota-uz/payroll-ledger/modules"
	"github.com/iota-uz/payroll-ledger/modules/payroll/infrastructure/persistence"
	"github.com/iota-uz/payroll-ledger/pkg/application"
	"github.com/iota-uz/payroll-ledger/pkg/configuration"
	"github.com/iota-uz/payroll-ledger/pkg/eventbus"
	"github.com/iota-uz/payroll-ledger/pkg/logging"
	"github.com/iota-uz/payroll-ledger/pkg/metrics"
	"github.com/iota-uz/payroll-ledger/pkg/outbox"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.OpenTelemetry.Enabled {
		cleanup := logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.CollectorEndpoint, logger)
		defer cleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to " + conf.OpenTelemetry.CollectorEndpoint)
	}

	connectCtx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(connectCtx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	if err := modules.Load(app, modules.BuiltInModules...); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}

	startOutboxBackground(ctx, conf, pool, logger, app.EventPublisher())

	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}
	serverInstance, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Pool:          pool,
		Entrypoint:    "server",
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}
	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := serverInstance.Start(ctx, conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

func startOutboxBackground(
	ctx context.Context,
	conf *configuration.Configuration,
	pool *pgxpool.Pool,
	logger *logrus.Logger,
	bus eventbus.EventBus,
) {
	outboxLog := logger.WithField("component", "outbox")
	if !conf.Outbox.RelayEnabled {
		outboxLog.Info("outbox: relay disabled")
		return
	}

	// Downstream consumers subscribe in-process; until one does, delivered
	// events are logged so the relay can mark them published.
	bus.Subscribe(eventbus.AllTopics, func(ctx context.Context, ev eventbus.Event) error {
		outboxLog.WithFields(logrus.Fields{
			"event-id":  ev.EventID.String(),
			"tenant-id": ev.TenantID.String(),
			"topic":     ev.Topic,
			"sequence":  ev.Sequence,
		}).Info("payroll event published")
		return nil
	})

	table := persistence.OutboxTable
	relay, err := outbox.NewRelay(pool, table, bus, outbox.RelayOptions{
		PollInterval:    conf.Outbox.RelayPollInterval,
		BatchSize:       conf.Outbox.RelayBatchSize,
		LockTTL:         conf.Outbox.RelayLockTTL,
		MaxAttempts:     conf.Outbox.RelayMaxAttempts,
		LastErrorMaxLen: conf.Outbox.LastErrorMaxBytes,
		Logger:          outboxLog.WithField("table", table.Sanitize()),
	})
	if err != nil {
		outboxLog.WithError(err).Warn("outbox: failed to create relay")
		return
	}
	go func() {
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			outboxLog.WithError(err).Error("outbox: relay stopped")
		}
	}()
}
