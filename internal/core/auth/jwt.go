package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/receiptly/receipts-service/internal/common"
)

// Token purposes for single-use links. Access tokens carry no purpose.
const (
	PurposeConfirmEmail  = "confirm_email"
	PurposePasswordReset = "password_reset"
)

// Claims carries the authenticated identity inside an HS256 token.
type Claims struct {
	jwt.RegisteredClaims
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Purpose string `json:"purpose,omitempty"`
}

func GenerateToken(userID uuid.UUID, email string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID: userID.String(),
		Email:  email,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GeneratePurposeToken issues a token for a one-shot flow such as email
// confirmation. Purpose tokens are rejected by ParseToken so a reset link
// can never double as an access token.
func GeneratePurposeToken(userID uuid.UUID, email, purpose string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID:  userID.String(),
		Email:   email,
		Purpose: purpose,
	})
	return token.SignedString(secretKey)
}

// ParsePurposeToken verifies a purpose-scoped token.
func ParsePurposeToken(tokenString, purpose string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid || claims.Purpose != purpose {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// ParseToken verifies the signature and expiry and returns the claims.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.Purpose != "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// ParseExpiredToken verifies the signature but tolerates an expired token.
// Used by the refresh endpoint, which re-issues tokens for known identities.
func ParseExpiredToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// UserUUID parses the user_id claim as a UUID.
func (c *Claims) UserUUID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return uuid.Nil, common.ErrInvalidToken
	}
	return id, nil
}
