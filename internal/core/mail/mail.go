package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/receiptly/receipts-service/config"
)

// Mailer sends account lifecycle mail. Implementations must not block the
// request path longer than necessary; callers treat failures as non-fatal.
type Mailer interface {
	SendConfirmation(ctx context.Context, to, token string) error
	SendPasswordReset(ctx context.Context, to, token string) error
}

// New picks an implementation from the config: plain SMTP when mail is
// enabled, a log-only mailer otherwise (local development, tests).
func New(cfg config.MailConfig, logger *slog.Logger) Mailer {
	if cfg.Enabled {
		return &SMTPMailer{cfg: cfg, logger: logger}
	}
	return &LogMailer{logger: logger}
}

type SMTPMailer struct {
	cfg    config.MailConfig
	logger *slog.Logger
}

func (m *SMTPMailer) SendConfirmation(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/auth/confirm-email?token=%s", m.cfg.PublicURL, token)
	body := fmt.Sprintf("Welcome to Receiptly!\r\n\r\nConfirm your email address by opening the link below:\r\n\r\n%s\r\n", link)
	return m.send(ctx, to, "Confirm your email", body)
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/auth/reset-password?token=%s", m.cfg.PublicURL, token)
	body := fmt.Sprintf("A password reset was requested for your account.\r\n\r\nOpen the link below to choose a new password. If you did not request this, ignore this mail.\r\n\r\n%s\r\n", link)
	return m.send(ctx, to, "Reset your password", body)
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := strings.Join([]string{
		"From: " + m.cfg.Sender,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"utf-8\"",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := smtp.SendMail(addr, auth, m.cfg.Sender, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}

	m.logger.Info("mail sent", slog.String("to", to), slog.String("subject", subject))
	return nil
}

// LogMailer logs instead of sending. The token still reaches the operator,
// which is enough to exercise the confirmation flow locally.
type LogMailer struct {
	logger *slog.Logger
}

func (m *LogMailer) SendConfirmation(_ context.Context, to, token string) error {
	m.logger.Info("mail disabled, confirmation token logged",
		slog.String("to", to), slog.String("token", token))
	return nil
}

func (m *LogMailer) SendPasswordReset(_ context.Context, to, token string) error {
	m.logger.Info("mail disabled, password reset token logged",
		slog.String("to", to), slog.String("token", token))
	return nil
}
