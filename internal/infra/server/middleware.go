package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/receiptly/receipts-service/internal/common"
	"github.com/receiptly/receipts-service/internal/core/auth"
	"github.com/receiptly/receipts-service/internal/core/users"
)

const localsUserKey = "currentUser"

// authRequired validates the bearer token and loads the account it names.
// Deleted accounts fail token validation even with a valid signature.
func (s *Server) authRequired(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return s.renderError(c, common.ErrInvalidToken)
	}

	claims, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		return s.renderError(c, err)
	}
	userID, err := claims.UserUUID()
	if err != nil {
		return s.renderError(c, err)
	}

	user, err := s.services.Users.GetByID(c.UserContext(), userID)
	if err != nil {
		return s.renderError(c, common.ErrInvalidToken)
	}

	c.Locals(localsUserKey, user)
	return c.Next()
}

func currentUser(c *fiber.Ctx) *users.User {
	user, _ := c.Locals(localsUserKey).(*users.User)
	return user
}
