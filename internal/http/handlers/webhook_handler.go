package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pixtrade/backend/internal/apperr"
	"github.com/pixtrade/backend/internal/http/dto"
	"github.com/pixtrade/backend/internal/pix"
	"github.com/pixtrade/backend/internal/repositories"
)

type WebhookHandler struct {
	reconciler *pix.Reconciler
	webhooks   *repositories.WebhookRepo
	log        *zap.Logger
}

func NewWebhookHandler(reconciler *pix.Reconciler, webhooks *repositories.WebhookRepo, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, webhooks: webhooks, log: log}
}

// Receive is the PIX provider entry point. Providers retry on anything
// but 2xx, so every outcome the reconciler can absorb is answered with
// the provider's own ack body. Only a bad signature or a storage
// failure propagates as an error status.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	providerName := c.Params("provider")
	provider := pix.Lookup(providerName)

	body := make([]byte, len(c.Body()))
	copy(body, c.Body())
	signature := c.Get(provider.SignatureHeader())

	result, err := h.reconciler.Process(c.Context(), providerName, body, signature)
	if err != nil {
		var e *apperr.Error
		if errors.As(err, &e) && e.Kind == apperr.KindSignatureInvalid {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid signature", Kind: string(e.Kind)})
		}
		h.log.Error("webhook processing failed",
			zap.String("provider", providerName),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "temporary failure, retry"})
	}

	h.log.Info("webhook handled",
		zap.String("provider", result.Provider),
		zap.String("outcome", result.Outcome))

	contentType, ack := provider.Ack()
	c.Set(fiber.HeaderContentType, contentType)
	return c.Status(fiber.StatusOK).SendString(ack)
}

// Challenge answers provider endpoint-verification probes by echoing
// the challenge token back.
func (h *WebhookHandler) Challenge(c *fiber.Ctx) error {
	if challenge := c.Query("challenge"); challenge != "" {
		return c.Status(fiber.StatusOK).SendString(challenge)
	}
	return c.Status(fiber.StatusOK).SendString("ok")
}

// ListReview pages through webhook events parked for a human to look at.
func (h *WebhookHandler) ListReview(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	events, err := h.webhooks.ListManualReview(c.Context(), limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: events})
}
