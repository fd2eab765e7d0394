package billing

import (
	"time"

	"github.com/google/uuid"
)

// Event types accepted by the webhook. Events arrive pre-validated from the
// payment provider integration; this service only mirrors them onto the user.
const (
	EventSubscriptionCreated = "subscription.created"
	EventSubscriptionUpdated = "subscription.updated"
	EventSubscriptionDeleted = "subscription.deleted"
	EventPaymentSucceeded    = "invoice.payment_succeeded"
	EventPaymentFailed       = "invoice.payment_failed"
	EventTrialWillEnd        = "trial.will_end"
)

// Subscription statuses as reported by the provider.
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

type Event struct {
	Type              string     `json:"type"`
	UserID            uuid.UUID  `json:"user_id"`
	CustomerID        string     `json:"customer_id,omitempty"`
	SubscriptionID    string     `json:"subscription_id,omitempty"`
	Status            string     `json:"status,omitempty"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end,omitempty"`
}

// SubscriptionSnapshot is the subscription state exposed on the usage
// endpoint.
type SubscriptionSnapshot struct {
	Status          *string    `json:"status"`
	StartDate       *time.Time `json:"start_date"`
	NextBillingDate *time.Time `json:"next_billing_date"`
	EndDate         *time.Time `json:"end_date"`
	TrialEndDate    *time.Time `json:"trial_end_date"`
	IsTrialActive   bool       `json:"is_trial_active"`
}

// UsageSummary reports stored receipts against the plan's quota.
// WindowLimit is nil for unmetered plans.
type UsageSummary struct {
	Plan         string               `json:"plan"`
	ReceiptCount int                  `json:"receipt_count"`
	WindowUsed   int                  `json:"window_used"`
	WindowLimit  *int                 `json:"window_limit"`
	Subscription SubscriptionSnapshot `json:"subscription"`
}
