package server

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/receiptly/receipts-service/internal/common"
	"github.com/receiptly/receipts-service/pkg/telemetry"
)

// renderError maps domain errors onto HTTP responses. Internal details never
// reach the client.
func (s *Server) renderError(c *fiber.Ctx, err error) error {
	if quotaErr, ok := common.IsQuotaExceeded(err); ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": quotaErr.Error(),
			"limit": quotaErr.Limit,
		})
	}
	if common.IsValidation(err) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	switch {
	case errors.Is(err, common.ErrInvalidFieldUpdate):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, common.ErrInvalidCredentials),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, common.ErrEmailNotVerified):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, common.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, common.ErrDuplicateReceipt),
		errors.Is(err, common.ErrEmailTaken):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}

	telemetry.Incr(c.UserContext(), telemetry.ApplicationErrorsTotal)
	s.logger.Error("request failed",
		slog.String("path", c.Path()),
		slog.String("method", c.Method()),
		slog.Any("error", err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}
