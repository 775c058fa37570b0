package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pixtrade/backend/internal/http/dto"
	"github.com/pixtrade/backend/internal/middleware"
	"github.com/pixtrade/backend/internal/models"
	"github.com/pixtrade/backend/internal/services"
)

type EscrowHandler struct {
	escrows *services.EscrowService
	log     *zap.Logger
}

func NewEscrowHandler(escrows *services.EscrowService, log *zap.Logger) *EscrowHandler {
	return &EscrowHandler{escrows: escrows, log: log}
}

func (h *EscrowHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid escrow id"})
	}

	escrow, err := h.escrows.GetEscrow(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *EscrowHandler) GetByTrade(c *fiber.Ctx) error {
	tradeID, err := uuid.Parse(c.Params("trade_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid trade id"})
	}

	escrow, err := h.escrows.GetEscrowByTrade(c.Context(), tradeID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

// Log returns the full transition history of an escrow.
func (h *EscrowHandler) Log(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid escrow id"})
	}

	log, err := h.escrows.GetEscrowLog(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: log})
}

// MarkFunded records that crypto arrived at the custody address.
// Repeating the call with the same address is a no-op.
func (h *EscrowHandler) MarkFunded(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid escrow id"})
	}

	var req dto.MarkFundedRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid body"})
	}
	if req.CustodyAddress == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "custody_address is required"})
	}

	if err := h.escrows.MarkFunded(c.Context(), id, req.CustodyAddress); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// ConfirmPayment is the seller acknowledging the fiat payment arrived.
func (h *EscrowHandler) ConfirmPayment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid escrow id"})
	}

	if err := h.escrows.ConfirmPayment(c.Context(), id, middleware.GetUserID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *EscrowHandler) OpenDispute(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid escrow id"})
	}

	var req dto.OpenDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid body"})
	}

	if err := h.escrows.OpenDispute(c.Context(), id, middleware.GetUserID(c), req.Reason); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// ResolveDispute settles a disputed escrow to either party. Meant for
// an operator tool, not the trading parties themselves.
func (h *EscrowHandler) ResolveDispute(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid escrow id"})
	}

	var req dto.ResolveDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid body"})
	}

	if err := h.escrows.ResolveDispute(c.Context(), id, req.Outcome); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *EscrowHandler) Cancel(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid escrow id"})
	}

	userID := middleware.GetUserID(c)
	if err := h.escrows.Cancel(c.Context(), id, services.Actor{UserID: &userID, Type: models.ActorTypeUser}); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}
