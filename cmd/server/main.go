// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/auth"
	"github.com/jason-s-yu/lobbyd/internal/config"
	"github.com/jason-s-yu/lobbyd/internal/database"
	"github.com/jason-s-yu/lobbyd/internal/events"
	"github.com/jason-s-yu/lobbyd/internal/gateway"
	"github.com/jason-s-yu/lobbyd/internal/handlers"
	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/jason-s-yu/lobbyd/internal/logging"
	"github.com/jason-s-yu/lobbyd/internal/middleware"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Fatalf("invalid configuration: %v", err)
	}
	logger := logging.New(cfg.LogLevel)

	if err := auth.Init(cfg.TokenExpire); err != nil {
		logger.Fatalf("auth init failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := gateway.NewHub(logger)
	sinks := []lobby.Notifier{events.LogNotifier{Logger: logger}, hub}

	if cfg.RedisAddr != "" {
		rdb, err := events.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		sinks = append(sinks, events.NewRedisPublisher(rdb, cfg.EventQueue, logger))
		logger.Infof("publishing lobby events to redis queue %q", cfg.EventQueue)
	}

	var channels handlers.ChannelLookup
	if cfg.PostgresHost != "" {
		pool, err := database.Connect(ctx, cfg.PostgresURL())
		if err != nil {
			logger.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		channels = database.NewChannelDirectory(pool)
	} else {
		logger.Warn("PG_HOST not set; channel linking is disabled")
	}

	store := lobby.NewStore(lobby.Options{
		Notifier:      events.NewFanout(logger, sinks...),
		Logger:        logger,
		SweepInterval: cfg.SweepInterval,
	})
	store.Start(ctx)

	mux := http.NewServeMux()
	handlers.NewLobbyServer(store, channels, logger).Register(mux, "/api/v9")
	mux.Handle("GET /api/v9/gateway", middleware.LogMiddleware(logger)(gateway.Handler(logger, hub)))

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		logger.Infof("Running on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server exited: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
	store.Shutdown()
}
