package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/receiptly/receipts-service/internal/common"
	"github.com/receiptly/receipts-service/internal/core/analytics"
)

func (s *Server) handleSpendByPeriod(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "http.SpendByPeriod")
	defer span.End()

	interval := c.Query("interval", "month")
	out, err := s.services.Analytics.SpendByPeriod(ctx, currentUser(c), interval)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(out)
}

func (s *Server) handleTotalSpent(c *fiber.Ctx) error {
	out, err := s.services.Analytics.TotalSpent(c.UserContext(), currentUser(c))
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(out)
}

func (s *Server) handleTopProducts(c *fiber.Ctx) error {
	period := c.Query("period", analytics.PeriodMonth)
	limit := c.QueryInt("limit", 0)
	out, err := s.services.Analytics.TopProducts(c.UserContext(), currentUser(c), period, limit)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(out)
}

func (s *Server) handleMostExpensive(c *fiber.Ctx) error {
	out, err := s.services.Analytics.MostExpensive(c.UserContext(), currentUser(c))
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(out)
}

func (s *Server) handleExpensesByCategory(c *fiber.Ctx) error {
	out, err := s.services.Analytics.ExpensesByCategory(c.UserContext(), currentUser(c))
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(out)
}

func (s *Server) handleReceiptsByDate(c *fiber.Ctx) error {
	out, err := s.services.Analytics.ReceiptsByDate(c.UserContext(), currentUser(c))
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(out)
}

func (s *Server) handleProductsByCategory(c *fiber.Ctx) error {
	out, err := s.services.Analytics.ProductsByCategory(c.UserContext(), currentUser(c))
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(out)
}

func (s *Server) handleShoppingDays(c *fiber.Ctx) error {
	out, err := s.services.Analytics.ShoppingDays(c.UserContext(), currentUser(c))
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(out)
}

func (s *Server) handleBillStats(c *fiber.Ctx) error {
	out, err := s.services.Analytics.BillStats(c.UserContext(), currentUser(c))
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(out)
}

func (s *Server) handleGetWidgetOrder(c *fiber.Ctx) error {
	order, err := s.services.Analytics.GetWidgetOrder(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(fiber.Map{"widgets": order})
}

func (s *Server) handleSaveWidgetOrder(c *fiber.Ctx) error {
	var req struct {
		Widgets []string `json:"widgets"`
	}
	if err := c.BodyParser(&req); err != nil {
		return s.renderError(c, common.NewValidationError("invalid request body"))
	}
	if err := s.services.Analytics.SaveWidgetOrder(c.UserContext(), currentUser(c).ID, req.Widgets); err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(fiber.Map{"widgets": req.Widgets})
}
