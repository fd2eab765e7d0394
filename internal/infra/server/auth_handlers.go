package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/receiptly/receipts-service/internal/common"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "http.Register")
	defer span.End()

	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return s.renderError(c, common.NewValidationError("invalid request body"))
	}

	user, err := s.services.Users.Register(ctx, req.Email, req.Password)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "http.Login")
	defer span.End()

	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return s.renderError(c, common.NewValidationError("invalid request body"))
	}

	token, user, err := s.services.Users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(fiber.Map{"token": token, "user": user})
}

func (s *Server) handleConfirmEmail(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "http.ConfirmEmail")
	defer span.End()

	token := c.Query("token")
	if token == "" {
		return s.renderError(c, common.NewValidationError("token is required"))
	}
	if err := s.services.Users.ConfirmEmail(ctx, token); err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(fiber.Map{"status": "email confirmed"})
}

func (s *Server) handleRequestPasswordReset(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "http.RequestPasswordReset")
	defer span.End()

	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return s.renderError(c, common.NewValidationError("invalid request body"))
	}
	if err := s.services.Users.RequestPasswordReset(ctx, req.Email); err != nil {
		return s.renderError(c, err)
	}
	// same response whether or not the account exists
	return c.JSON(fiber.Map{"status": "reset mail sent if the account exists"})
}

func (s *Server) handleResetPassword(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "http.ResetPassword")
	defer span.End()

	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return s.renderError(c, common.NewValidationError("invalid request body"))
	}
	if err := s.services.Users.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(fiber.Map{"status": "password updated"})
}

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "http.Refresh")
	defer span.End()

	var req struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return s.renderError(c, common.NewValidationError("invalid request body"))
	}
	token, err := s.services.Users.Refresh(ctx, req.Token)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(fiber.Map{"token": token})
}

func (s *Server) handleGetProfile(c *fiber.Ctx) error {
	return c.JSON(currentUser(c))
}

func (s *Server) handleUpdateCurrency(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "http.UpdateCurrency")
	defer span.End()

	var req struct {
		Currency string `json:"currency"`
	}
	if err := c.BodyParser(&req); err != nil {
		return s.renderError(c, common.NewValidationError("invalid request body"))
	}

	user := currentUser(c)
	if err := s.services.Users.UpdateCurrency(ctx, user.ID, req.Currency); err != nil {
		return s.renderError(c, err)
	}
	updated, err := s.services.Users.GetByID(ctx, user.ID)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(updated)
}
