package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/receiptly/receipts-service/internal/common"
	"github.com/receiptly/receipts-service/internal/core/billing"
)

func (s *Server) handleBillingWebhook(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "http.BillingWebhook")
	defer span.End()

	var ev billing.Event
	if err := c.BodyParser(&ev); err != nil {
		return s.renderError(c, common.NewValidationError("invalid event body"))
	}
	if err := s.services.Billing.ApplyEvent(ctx, ev); err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(fiber.Map{"status": "applied"})
}

func (s *Server) handleUsage(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "http.Usage")
	defer span.End()

	out, err := s.services.Billing.Usage(ctx, currentUser(c))
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(out)
}

func (s *Server) handleSetPlan(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "http.SetPlan")
	defer span.End()

	var req struct {
		Plan string `json:"plan"`
	}
	if err := c.BodyParser(&req); err != nil {
		return s.renderError(c, common.NewValidationError("invalid request body"))
	}

	user := currentUser(c)
	if err := s.services.Users.SetPlan(ctx, user.ID, req.Plan); err != nil {
		return s.renderError(c, err)
	}
	updated, err := s.services.Users.GetByID(ctx, user.ID)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(updated)
}
