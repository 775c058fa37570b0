package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pixtrade/backend/internal/http/dto"
	"github.com/pixtrade/backend/internal/middleware"
	"github.com/pixtrade/backend/internal/money"
	"github.com/pixtrade/backend/internal/services"
)

type TradeHandler struct {
	trades *services.TradeService
	log    *zap.Logger
}

func NewTradeHandler(trades *services.TradeService, log *zap.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, log: log}
}

// Create opens a new trade with its escrow. The authenticated caller
// becomes the buyer.
func (h *TradeHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateTradeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid body"})
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order_id"})
	}
	sellerID, err := uuid.Parse(req.SellerID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid seller_id"})
	}

	crypto, err := money.Parse(req.CryptoAmount, req.CryptoCurrency)
	if err != nil {
		return respondError(c, err)
	}
	fiat, err := money.Parse(req.FiatAmount, req.FiatCurrency)
	if err != nil {
		return respondError(c, err)
	}

	trade, err := h.trades.CreateTrade(c.Context(), services.CreateTradeInput{
		OrderID:           orderID,
		BuyerID:           middleware.GetUserID(c),
		SellerID:          sellerID,
		PaymentMethod:     req.PaymentMethod,
		ExternalReference: req.ExternalReference,
		Crypto:            crypto,
		Fiat:              fiat,
		PaymentDeadline:   time.Duration(req.DeadlineMinutes) * time.Minute,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: trade})
}

func (h *TradeHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid trade id"})
	}

	trade, err := h.trades.GetTrade(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: trade})
}

// UpdateStatus moves a trade along its lifecycle. Which targets are
// reachable depends on the caller's role in the trade.
func (h *TradeHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid trade id"})
	}

	var req dto.UpdateTradeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid body"})
	}
	if req.Status == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "status is required"})
	}

	err = h.trades.UpdateStatus(c.Context(), id, middleware.GetUserID(c), services.UpdateStatusInput{
		NewStatus:     req.Status,
		DisputeReason: req.DisputeReason,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// Events returns the audit trail for a trade, most recent first.
func (h *TradeHandler) Events(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid trade id"})
	}

	events, err := h.trades.GetTradeEvents(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: events})
}
