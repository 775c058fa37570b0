package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pixtrade/backend/internal/auth"
	"github.com/pixtrade/backend/internal/config"
	"github.com/pixtrade/backend/internal/http/handlers"
	"github.com/pixtrade/backend/internal/middleware"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	pool *pgxpool.Pool,
	rdb *redis.Client,
	tradeHandler *handlers.TradeHandler,
	escrowHandler *handlers.EscrowHandler,
	webhookHandler *handlers.WebhookHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		status := fiber.StatusOK
		checks := fiber.Map{"postgres": "ok", "redis": "ok"}
		if err := pool.Ping(c.Context()); err != nil {
			checks["postgres"] = "unreachable"
			status = fiber.StatusServiceUnavailable
		}
		if err := rdb.Ping(c.Context()).Err(); err != nil {
			checks["redis"] = "unreachable"
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(checks)
	})

	// Token minting for local testing. Real tokens come from the
	// platform's account service; production never exposes this.
	if !cfg.IsProduction() {
		app.Post("/dev/token", func(c *fiber.Ctx) error {
			var req struct {
				UserID string `json:"user_id"`
			}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
			}
			userID, err := uuid.Parse(req.UserID)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user_id"})
			}
			token, err := auth.GenerateJWT(cfg.JWTSecret, userID, cfg.JWTExpiration)
			if err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "token generation failed"})
			}
			return c.JSON(fiber.Map{"token": token})
		})
	}

	// Provider webhooks (public, authenticated by payload signature)
	app.Post("/webhooks/pix/:provider", webhookHandler.Receive)
	app.Get("/webhooks/pix/:provider", webhookHandler.Challenge)

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Trades
	protected.Post("/trades", tradeHandler.Create)
	protected.Get("/trades/:id", tradeHandler.Get)
	protected.Patch("/trades/:id/status", tradeHandler.UpdateStatus)
	protected.Get("/trades/:id/events", tradeHandler.Events)
	protected.Get("/trades/:trade_id/escrow", escrowHandler.GetByTrade)

	// Escrows
	protected.Get("/escrows/:id", escrowHandler.Get)
	protected.Get("/escrows/:id/log", escrowHandler.Log)
	protected.Post("/escrows/:id/fund", escrowHandler.MarkFunded)
	protected.Post("/escrows/:id/confirm-payment", escrowHandler.ConfirmPayment)
	protected.Post("/escrows/:id/dispute", escrowHandler.OpenDispute)
	protected.Post("/escrows/:id/dispute/resolve", escrowHandler.ResolveDispute)
	protected.Post("/escrows/:id/cancel", escrowHandler.Cancel)

	// Webhook review queue (operator tooling)
	protected.Get("/webhooks/review", webhookHandler.ListReview)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
