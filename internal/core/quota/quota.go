package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/receiptly/receipts-service/config"
	"github.com/receiptly/receipts-service/internal/common"
)

var tracer = otel.Tracer("receipts-service")

// UsageCounter counts stored receipts whose transaction date falls in
// [from, to). Implemented by the receipts store.
type UsageCounter interface {
	CountInDateRange(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error)
}

// Accountant enforces the basic-plan submission quota. The check is advisory:
// the database unique constraint on (user_id, fingerprint) remains the hard
// backstop against duplicates, and concurrent submissions may briefly exceed
// the limit by the number of in-flight requests.
type Accountant struct {
	counter UsageCounter
	limit   int
	window  string
	logger  *slog.Logger
	now     func() time.Time
}

func NewAccountant(counter UsageCounter, cfg *config.Config, logger *slog.Logger) *Accountant {
	return &Accountant{
		counter: counter,
		limit:   cfg.BasicPlanLimit,
		window:  cfg.QuotaWindow,
		logger:  logger,
		now:     time.Now,
	}
}

// Limit returns the basic-plan receipt limit per window.
func (a *Accountant) Limit() int {
	return a.limit
}

// WindowBounds returns the half-open [from, to) accounting window containing
// now. Rolling covers the last 30 days up to and including today; calendar
// covers the current calendar month.
func (a *Accountant) WindowBounds(now time.Time) (time.Time, time.Time) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if a.window == config.QuotaWindowCalendar {
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return first, first.AddDate(0, 1, 0)
	}
	return day.AddDate(0, 0, -30), day.AddDate(0, 0, 1)
}

// CountUsageInWindow reports how many of the user's receipts fall in the
// current accounting window by transaction date.
func (a *Accountant) CountUsageInWindow(ctx context.Context, userID uuid.UUID) (int, error) {
	from, to := a.WindowBounds(a.now().UTC())
	count, err := a.counter.CountInDateRange(ctx, userID, from, to)
	if err != nil {
		return 0, fmt.Errorf("counting receipts in quota window: %w", err)
	}
	return count, nil
}

// CanAcceptReceipt checks whether the user may submit one more receipt.
// Non-basic plans are unmetered. A denial is a *common.QuotaExceededError
// carrying the limit so callers can surface it to the client.
func (a *Accountant) CanAcceptReceipt(ctx context.Context, userID uuid.UUID, plan string) error {
	ctx, span := tracer.Start(ctx, "quota.CanAcceptReceipt")
	defer span.End()

	if plan != "" && plan != "basic" {
		return nil
	}

	used, err := a.CountUsageInWindow(ctx, userID)
	if err != nil {
		return err
	}
	if used >= a.limit {
		a.logger.Info("receipt submission over quota",
			slog.String("user_id", userID.String()),
			slog.Int("used", used),
			slog.Int("limit", a.limit))
		return &common.QuotaExceededError{Limit: a.limit}
	}
	return nil
}
