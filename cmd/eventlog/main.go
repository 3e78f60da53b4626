// cmd/eventlog/main.go drains the lobby event queue in Redis into the
// lobby_events table in Postgres.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/lobbyd/internal/config"
	"github.com/jason-s-yu/lobbyd/internal/database"
	"github.com/jason-s-yu/lobbyd/internal/eventlog"
	"github.com/jason-s-yu/lobbyd/internal/events"
	"github.com/jason-s-yu/lobbyd/internal/logging"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Fatalf("invalid configuration: %v", err)
	}
	logger := logging.New(cfg.LogLevel)

	if cfg.RedisAddr == "" || cfg.PostgresHost == "" {
		logger.Fatal("eventlog needs both REDIS_ADDR and PG_HOST")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := events.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	pool, err := database.Connect(ctx, cfg.PostgresURL())
	if err != nil {
		logger.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	writer := eventlog.NewPostgresWriter(pool)
	if err := writer.Migrate(ctx); err != nil {
		logger.Fatalf("migrate: %v", err)
	}

	consumer := eventlog.NewConsumer(rdb, writer, eventlog.Options{
		Queue:         cfg.EventQueue,
		BatchSize:     cfg.EventLogBatchSize,
		FlushInterval: cfg.EventLogFlushInterval,
		Logger:        logger,
	})
	if err := consumer.Run(ctx); err != nil {
		logger.Errorf("event log consumer: %v", err)
	}
}
