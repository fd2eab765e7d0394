package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	api "go.opentelemetry.io/otel/metric"

	"github.com/receiptly/receipts-service/config"
	"github.com/receiptly/receipts-service/internal/common"
	"github.com/receiptly/receipts-service/internal/core/auth"
	appmail "github.com/receiptly/receipts-service/internal/core/mail"
	"github.com/receiptly/receipts-service/pkg/telemetry"
)

var tracer = otel.Tracer("receipts-service")

const purposeTokenTTL = 24 * time.Hour

type Service struct {
	store     Store
	mailer    appmail.Mailer
	logger    *slog.Logger
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewService(store Store, mailer appmail.Mailer, cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		mailer:    mailer,
		logger:    logger,
		jwtSecret: []byte(cfg.JwtSecret),
		tokenTTL:  cfg.TokenTTL(),
	}
}

// Register creates an account and mails a confirmation link. The email is
// normalized to lowercase so lookups are case-insensitive.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	ctx, span := tracer.Start(ctx, "users.Register")
	defer span.End()

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if !auth.ValidPasswordLength(password) {
		return nil, common.NewValidationError("password must be at least %d characters", auth.MinPasswordLength)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user, err := s.store.Create(ctx, email, hash)
	if err != nil {
		return nil, err
	}

	token, err := auth.GeneratePurposeToken(user.ID, user.Email, auth.PurposeConfirmEmail, s.jwtSecret, purposeTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing confirmation token: %w", err)
	}
	if err := s.mailer.SendConfirmation(ctx, user.Email, token); err != nil {
		// The account exists; the user can request a resend later.
		s.logger.Error("sending confirmation mail", slog.String("email", user.Email), slog.Any("error", err))
	}

	telemetry.Incr(ctx, telemetry.UserRegistrationsTotal)
	s.logger.Info("user registered", slog.String("user_id", user.ID.String()))
	return user, nil
}

// Authenticate checks credentials and issues an access token. Unknown emails
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, *User, error) {
	ctx, span := tracer.Start(ctx, "users.Authenticate")
	defer span.End()

	email, err := normalizeEmail(email)
	if err != nil {
		return "", nil, common.ErrInvalidCredentials
	}

	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			telemetry.Incr(ctx, telemetry.LoginAttemptsTotal, api.WithAttributes(attribute.String("result", "failure")))
			return "", nil, common.ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		telemetry.Incr(ctx, telemetry.LoginAttemptsTotal, api.WithAttributes(attribute.String("result", "failure")))
		return "", nil, common.ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return "", nil, common.ErrEmailNotVerified
	}

	token, err := auth.GenerateToken(user.ID, user.Email, s.jwtSecret, s.tokenTTL)
	if err != nil {
		return "", nil, fmt.Errorf("issuing access token: %w", err)
	}

	telemetry.Incr(ctx, telemetry.LoginAttemptsTotal, api.WithAttributes(attribute.String("result", "success")))
	return token, user, nil
}

// ConfirmEmail validates a confirmation token and marks the account verified.
func (s *Service) ConfirmEmail(ctx context.Context, token string) error {
	ctx, span := tracer.Start(ctx, "users.ConfirmEmail")
	defer span.End()

	claims, err := auth.ParsePurposeToken(token, auth.PurposeConfirmEmail, s.jwtSecret)
	if err != nil {
		return err
	}
	id, err := claims.UserUUID()
	if err != nil {
		return err
	}
	return s.store.SetEmailVerified(ctx, id)
}

// RequestPasswordReset mails a reset link if the account exists. It never
// reveals whether the email is registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "users.RequestPasswordReset")
	defer span.End()

	email, err := normalizeEmail(email)
	if err != nil {
		return nil
	}

	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}

	token, err := auth.GeneratePurposeToken(user.ID, user.Email, auth.PurposePasswordReset, s.jwtSecret, purposeTokenTTL)
	if err != nil {
		return fmt.Errorf("issuing reset token: %w", err)
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		s.logger.Error("sending reset mail", slog.String("email", user.Email), slog.Any("error", err))
	}
	return nil
}

// ResetPassword applies a new password given a valid reset token.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	ctx, span := tracer.Start(ctx, "users.ResetPassword")
	defer span.End()

	claims, err := auth.ParsePurposeToken(token, auth.PurposePasswordReset, s.jwtSecret)
	if err != nil {
		return err
	}
	id, err := claims.UserUUID()
	if err != nil {
		return err
	}
	if !auth.ValidPasswordLength(newPassword) {
		return common.NewValidationError("password must be at least %d characters", auth.MinPasswordLength)
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	return s.store.UpdatePasswordHash(ctx, id, hash)
}

// Refresh re-issues an access token for a signed but possibly expired token.
func (s *Service) Refresh(ctx context.Context, token string) (string, error) {
	ctx, span := tracer.Start(ctx, "users.Refresh")
	defer span.End()

	claims, err := auth.ParseExpiredToken(token, s.jwtSecret)
	if err != nil {
		return "", err
	}
	if claims.Purpose != "" {
		return "", common.ErrInvalidToken
	}
	id, err := claims.UserUUID()
	if err != nil {
		return "", err
	}

	user, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrInvalidToken
		}
		return "", err
	}

	return auth.GenerateToken(user.ID, user.Email, s.jwtSecret, s.tokenTTL)
}

// GetByID loads a user, typically the authenticated principal.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.store.GetByID(ctx, id)
}

// UpdateCurrency sets the user's preferred display currency (ISO 4217).
func (s *Service) UpdateCurrency(ctx context.Context, id uuid.UUID, currency string) error {
	ctx, span := tracer.Start(ctx, "users.UpdateCurrency")
	defer span.End()

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return common.NewValidationError("currency must be a 3-letter code")
	}
	return s.store.UpdateCurrency(ctx, id, currency)
}

// SetPlan overrides the user's plan directly, outside the billing flow.
func (s *Service) SetPlan(ctx context.Context, id uuid.UUID, plan string) error {
	ctx, span := tracer.Start(ctx, "users.SetPlan")
	defer span.End()

	if !ValidPlan(plan) {
		return common.NewValidationError("plan must be one of: %s, %s", PlanBasic, PlanPro)
	}
	if err := s.store.UpdateSubscription(ctx, id, SubscriptionUpdate{Plan: &plan}); err != nil {
		return err
	}
	telemetry.Incr(ctx, telemetry.PlanChangesTotal, api.WithAttributes(attribute.String("plan", plan)))
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", common.NewValidationError("invalid email address")
	}
	return email, nil
}
