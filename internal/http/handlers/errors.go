package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/pixtrade/backend/internal/apperr"
	"github.com/pixtrade/backend/internal/http/dto"
)

// respondError maps an error kind to its HTTP status. Only the stable
// kind and the human-safe message leave the service; wrapped internals
// stay in the logs.
func respondError(c *fiber.Ctx, err error) error {
	var e *apperr.Error
	if !errors.As(err, &e) {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	status := fiber.StatusBadRequest
	switch e.Kind {
	case apperr.KindUnauthorized:
		status = fiber.StatusForbidden
	case apperr.KindConflict:
		status = fiber.StatusConflict
	case apperr.KindInvalidTransition:
		status = fiber.StatusConflict
	case apperr.KindNotFound, apperr.KindNoMatch:
		status = fiber.StatusNotFound
	case apperr.KindSignatureInvalid:
		status = fiber.StatusUnauthorized
	case apperr.KindPersistence:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: "temporary storage failure",
			Kind:  string(e.Kind),
		})
	}

	return c.Status(status).JSON(dto.ErrorResponse{Error: e.Msg, Kind: string(e.Kind)})
}
