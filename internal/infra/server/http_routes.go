package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	auth := s.app.Group("/auth")
	auth.Post("/register", s.handleRegister)
	auth.Post("/login", s.handleLogin)
	auth.Get("/confirm-email", s.handleConfirmEmail)
	auth.Post("/request-password-reset", s.handleRequestPasswordReset)
	auth.Post("/reset-password", s.handleResetPassword)
	auth.Post("/refresh", s.handleRefresh)

	// provider events carry their own validation upstream
	s.app.Post("/billing/webhook", s.handleBillingWebhook)

	api := s.app.Group("/api", s.authRequired)

	api.Get("/profile", s.handleGetProfile)
	api.Put("/profile/currency", s.handleUpdateCurrency)

	api.Get("/receipts", s.handleListReceipts)
	api.Post("/receipts", s.handleSubmitReceipt)
	api.Get("/receipts/:id", s.handleGetReceipt)
	api.Delete("/receipts/:id", s.handleDeleteReceipt)
	api.Patch("/receipts/:id", s.handleUpdateReceiptField)
	api.Patch("/receipts/:id/items/:index", s.handleUpdateItemField)

	api.Get("/filters/store-names", s.handleStoreNames)
	api.Get("/filters/store-categories", s.handleStoreCategories)

	api.Get("/analytics/spend-by-period", s.handleSpendByPeriod)
	api.Get("/analytics/total-spent", s.handleTotalSpent)
	api.Get("/analytics/top-products", s.handleTopProducts)
	api.Get("/analytics/most-expensive", s.handleMostExpensive)
	api.Get("/analytics/expenses-by-category", s.handleExpensesByCategory)
	api.Get("/analytics/receipts-by-date", s.handleReceiptsByDate)
	api.Get("/analytics/products-by-category", s.handleProductsByCategory)
	api.Get("/analytics/shopping-days", s.handleShoppingDays)
	api.Get("/analytics/bill-stats", s.handleBillStats)
	api.Get("/analytics/widgets", s.handleGetWidgetOrder)
	api.Put("/analytics/widgets", s.handleSaveWidgetOrder)

	api.Get("/subscription/usage", s.handleUsage)
	api.Post("/subscription/plan", s.handleSetPlan)
}
