package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	api "go.opentelemetry.io/otel/metric"

	"github.com/receiptly/receipts-service/internal/common"
	"github.com/receiptly/receipts-service/internal/core/quota"
	"github.com/receiptly/receipts-service/internal/core/users"
	"github.com/receiptly/receipts-service/pkg/telemetry"
)

var tracer = otel.Tracer("receipts-service")

const trialDuration = 14 * 24 * time.Hour

// ReceiptCounter reports how many receipts a user has stored in total.
// Implemented by the receipts store.
type ReceiptCounter interface {
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)
}

// Service mirrors billing events onto the user's subscription state and
// answers usage queries. It never talks to the payment provider itself.
type Service struct {
	users    users.Store
	receipts ReceiptCounter
	quota    *quota.Accountant
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(userStore users.Store, counter ReceiptCounter, accountant *quota.Accountant, logger *slog.Logger) *Service {
	return &Service{
		users:    userStore,
		receipts: counter,
		quota:    accountant,
		logger:   logger,
		now:      time.Now,
	}
}

// ApplyEvent mirrors one provider event onto the user row. Unknown event
// types are rejected; unknown users surface as common.ErrNotFound.
func (s *Service) ApplyEvent(ctx context.Context, ev Event) error {
	ctx, span := tracer.Start(ctx, "billing.ApplyEvent")
	defer span.End()

	if ev.UserID == uuid.Nil {
		return common.NewValidationError("event user_id is required")
	}

	upd, err := s.transition(ev)
	if err != nil {
		return err
	}

	telemetry.Incr(ctx, telemetry.BillingEventsTotal, api.WithAttributes(attribute.String("type", ev.Type)))
	s.logger.Info("billing event applied",
		slog.String("type", ev.Type),
		slog.String("user_id", ev.UserID.String()))

	if upd == nil {
		return nil
	}
	return s.users.UpdateSubscription(ctx, ev.UserID, *upd)
}

// transition maps an event to the subscription fields it changes.
// A nil update means the event is informational.
func (s *Service) transition(ev Event) (*users.SubscriptionUpdate, error) {
	now := s.now().UTC()
	upd := &users.SubscriptionUpdate{}
	if ev.CustomerID != "" {
		upd.StripeCustomerID = &ev.CustomerID
	}
	if ev.SubscriptionID != "" {
		upd.StripeSubscriptionID = &ev.SubscriptionID
	}

	switch ev.Type {
	case EventSubscriptionCreated:
		upd.Plan = ptr(users.PlanPro)
		upd.SubscriptionStart = &now
		if ev.Status == StatusTrialing {
			upd.SubscriptionStatus = ptr(StatusTrialing)
			upd.IsTrialActive = ptr(true)
			upd.TrialStart = &now
			trialEnd := now.Add(trialDuration)
			if ev.CurrentPeriodEnd != nil {
				trialEnd = *ev.CurrentPeriodEnd
			}
			upd.TrialEnd = &trialEnd
		} else {
			upd.SubscriptionStatus = ptr(StatusActive)
			upd.IsTrialActive = ptr(false)
			upd.NextBillingDate = ev.CurrentPeriodEnd
		}

	case EventSubscriptionUpdated:
		switch ev.Status {
		case StatusActive:
			upd.Plan = ptr(users.PlanPro)
			upd.SubscriptionStatus = ptr(StatusActive)
			upd.IsTrialActive = ptr(false)
			upd.NextBillingDate = ev.CurrentPeriodEnd
		case StatusPastDue:
			upd.Plan = ptr(users.PlanBasic)
			upd.SubscriptionStatus = ptr(StatusPastDue)
			upd.IsTrialActive = ptr(false)
		case StatusTrialing:
			upd.SubscriptionStatus = ptr(StatusTrialing)
		}
		if ev.CancelAtPeriodEnd && ev.CurrentPeriodEnd != nil {
			upd.SubscriptionEnd = ev.CurrentPeriodEnd
		} else if !ev.CancelAtPeriodEnd {
			upd.ClearSubscriptionEnd = true
		}

	case EventSubscriptionDeleted:
		upd.Plan = ptr(users.PlanBasic)
		upd.SubscriptionStatus = ptr(StatusCanceled)
		upd.IsTrialActive = ptr(false)
		upd.SubscriptionEnd = &now

	case EventPaymentSucceeded:
		upd.Plan = ptr(users.PlanPro)
		upd.SubscriptionStatus = ptr(StatusActive)
		upd.IsTrialActive = ptr(false)
		upd.NextBillingDate = ev.CurrentPeriodEnd

	case EventPaymentFailed:
		upd.Plan = ptr(users.PlanBasic)
		upd.SubscriptionStatus = ptr(StatusPastDue)

	case EventTrialWillEnd:
		return nil, nil

	default:
		return nil, common.NewValidationError("unknown event type %q", ev.Type)
	}

	return upd, nil
}

// Usage reports the user's stored receipts against the plan quota.
func (s *Service) Usage(ctx context.Context, user *users.User) (*UsageSummary, error) {
	ctx, span := tracer.Start(ctx, "billing.Usage")
	defer span.End()

	total, err := s.receipts.CountByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("counting receipts: %w", err)
	}
	windowUsed, err := s.quota.CountUsageInWindow(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	summary := &UsageSummary{
		Plan:         user.Plan,
		ReceiptCount: total,
		WindowUsed:   windowUsed,
		Subscription: SubscriptionSnapshot{
			Status:          user.SubscriptionStatus,
			StartDate:       user.SubscriptionStart,
			NextBillingDate: user.NextBillingDate,
			EndDate:         user.SubscriptionEnd,
			TrialEndDate:    user.TrialEnd,
			IsTrialActive:   user.IsTrialActive,
		},
	}
	if user.Plan == users.PlanBasic || user.Plan == "" {
		limit := s.quota.Limit()
		summary.WindowLimit = &limit
	}
	return summary, nil
}

func ptr[T any](v T) *T {
	return &v
}
