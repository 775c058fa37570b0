package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/pixtrade/backend/internal/config"
	"github.com/pixtrade/backend/internal/db"
	"github.com/pixtrade/backend/internal/events"
	"github.com/pixtrade/backend/internal/notify"
	"github.com/pixtrade/backend/internal/repositories"
	"github.com/pixtrade/backend/internal/services"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	tradeRepo := repositories.NewTradeRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	notifier := notify.NewHTTPNotifier(cfg.NotifyInternalURL, log)
	sweeper := services.NewSweeper(escrowRepo, tradeRepo, auditRepo, notifier, publisher, log)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	log.Info("sweeper started", zap.Duration("interval", cfg.SweepInterval))
	sweeper.Run(ctx, cfg.SweepInterval)
	log.Info("sweeper stopped")
}
