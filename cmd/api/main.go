package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pixtrade/backend/internal/config"
	"github.com/pixtrade/backend/internal/db"
	"github.com/pixtrade/backend/internal/events"
	apphttp "github.com/pixtrade/backend/internal/http"
	"github.com/pixtrade/backend/internal/http/handlers"
	"github.com/pixtrade/backend/internal/notify"
	"github.com/pixtrade/backend/internal/pix"
	"github.com/pixtrade/backend/internal/repositories"
	"github.com/pixtrade/backend/internal/services"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	tradeRepo := repositories.NewTradeRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	webhookRepo := repositories.NewWebhookRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	notifier := notify.NewHTTPNotifier(cfg.NotifyInternalURL, log)
	escrowService := services.NewEscrowService(escrowRepo, tradeRepo, auditRepo, notifier, publisher, cfg.EscrowExpiration, log)
	tradeService := services.NewTradeService(tradeRepo, escrowService, auditRepo, notifier, publisher, log)
	reconciler := pix.NewReconciler(
		webhookRepo,
		tradeRepo,
		escrowService,
		pix.NewRedisDeduper(rdb),
		cfg.PixWebhookSecrets,
		cfg.IsProduction(),
		log,
	)

	// Handlers
	tradeHandler := handlers.NewTradeHandler(tradeService, log)
	escrowHandler := handlers.NewEscrowHandler(escrowService, log)
	webhookHandler := handlers.NewWebhookHandler(reconciler, webhookRepo, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, pool, rdb, tradeHandler, escrowHandler, webhookHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
