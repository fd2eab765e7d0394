package users

import (
	"time"

	"github.com/google/uuid"
)

const (
	PlanBasic = "basic"
	PlanPro   = "pro"
)

type User struct {
	ID                   uuid.UUID  `json:"id"`
	Email                string     `json:"email"`
	PasswordHash         string     `json:"-"`
	EmailVerified        bool       `json:"email_verified"`
	Currency             string     `json:"currency"`
	Plan                 string     `json:"plan"`
	StripeCustomerID     *string    `json:"-"`
	StripeSubscriptionID *string    `json:"-"`
	SubscriptionStatus   *string    `json:"subscription_status,omitempty"`
	SubscriptionStart    *time.Time `json:"subscription_start_date,omitempty"`
	NextBillingDate      *time.Time `json:"next_billing_date,omitempty"`
	SubscriptionEnd      *time.Time `json:"subscription_end_date,omitempty"`
	TrialStart           *time.Time `json:"trial_start_date,omitempty"`
	TrialEnd             *time.Time `json:"trial_end_date,omitempty"`
	IsTrialActive        bool       `json:"is_trial_active"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// ValidPlan reports whether p is a plan users may be assigned.
func ValidPlan(p string) bool {
	return p == PlanBasic || p == PlanPro
}

// SubscriptionUpdate carries the subscription fields billing events mirror
// onto the user row. Nil pointers leave the column untouched; explicit
// clearing goes through the Clear flags.
type SubscriptionUpdate struct {
	Plan                 *string
	StripeCustomerID     *string
	StripeSubscriptionID *string
	SubscriptionStatus   *string
	SubscriptionStart    *time.Time
	NextBillingDate      *time.Time
	SubscriptionEnd      *time.Time
	TrialStart           *time.Time
	TrialEnd             *time.Time
	IsTrialActive        *bool
	ClearSubscriptionEnd bool
}
