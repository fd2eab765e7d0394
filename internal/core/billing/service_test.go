package billing

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/receiptly/receipts-service/config"
	"github.com/receiptly/receipts-service/internal/common"
	"github.com/receiptly/receipts-service/internal/core/quota"
	"github.com/receiptly/receipts-service/internal/core/users"
)

type fakeUserStore struct {
	user *users.User
}

func (f *fakeUserStore) Create(context.Context, string, string) (*users.User, error) {
	panic("not used")
}

func (f *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, common.ErrNotFound
	}
	return f.user, nil
}

func (f *fakeUserStore) GetByEmail(context.Context, string) (*users.User, error) {
	panic("not used")
}

func (f *fakeUserStore) SetEmailVerified(context.Context, uuid.UUID) error  { panic("not used") }
func (f *fakeUserStore) UpdatePasswordHash(context.Context, uuid.UUID, string) error {
	panic("not used")
}
func (f *fakeUserStore) UpdateCurrency(context.Context, uuid.UUID, string) error { panic("not used") }

func (f *fakeUserStore) UpdateSubscription(_ context.Context, id uuid.UUID, upd users.SubscriptionUpdate) error {
	if f.user == nil || f.user.ID != id {
		return common.ErrNotFound
	}
	u := f.user
	if upd.Plan != nil {
		u.Plan = *upd.Plan
	}
	if upd.StripeCustomerID != nil {
		u.StripeCustomerID = upd.StripeCustomerID
	}
	if upd.StripeSubscriptionID != nil {
		u.StripeSubscriptionID = upd.StripeSubscriptionID
	}
	if upd.SubscriptionStatus != nil {
		u.SubscriptionStatus = upd.SubscriptionStatus
	}
	if upd.SubscriptionStart != nil {
		u.SubscriptionStart = upd.SubscriptionStart
	}
	if upd.NextBillingDate != nil {
		u.NextBillingDate = upd.NextBillingDate
	}
	if upd.SubscriptionEnd != nil {
		u.SubscriptionEnd = upd.SubscriptionEnd
	} else if upd.ClearSubscriptionEnd {
		u.SubscriptionEnd = nil
	}
	if upd.TrialStart != nil {
		u.TrialStart = upd.TrialStart
	}
	if upd.TrialEnd != nil {
		u.TrialEnd = upd.TrialEnd
	}
	if upd.IsTrialActive != nil {
		u.IsTrialActive = *upd.IsTrialActive
	}
	return nil
}

type fixedCounter struct {
	total  int
	window int
}

func (f *fixedCounter) CountByUser(context.Context, uuid.UUID) (int, error) {
	return f.total, nil
}

func (f *fixedCounter) CountInDateRange(context.Context, uuid.UUID, time.Time, time.Time) (int, error) {
	return f.window, nil
}

func newTestService(user *users.User, counter *fixedCounter) (*Service, *fakeUserStore) {
	store := &fakeUserStore{user: user}
	cfg := config.DefaultConfig()
	accountant := quota.NewAccountant(counter, &cfg, slog.Default())
	svc := NewService(store, counter, accountant, slog.Default())
	return svc, store
}

func basicUser() *users.User {
	return &users.User{ID: uuid.New(), Plan: users.PlanBasic, Currency: "USD"}
}

func TestTrialSubscriptionCreated(t *testing.T) {
	user := basicUser()
	svc, store := newTestService(user, &fixedCounter{})

	err := svc.ApplyEvent(context.Background(), Event{
		Type:           EventSubscriptionCreated,
		UserID:         user.ID,
		CustomerID:     "cus_123",
		SubscriptionID: "sub_123",
		Status:         StatusTrialing,
	})

	require.NoError(t, err)
	u := store.user
	assert.Equal(t, users.PlanPro, u.Plan)
	assert.Equal(t, StatusTrialing, *u.SubscriptionStatus)
	assert.True(t, u.IsTrialActive)
	require.NotNil(t, u.TrialEnd)
	assert.WithinDuration(t, time.Now().Add(trialDuration), *u.TrialEnd, time.Minute)
	assert.Equal(t, "cus_123", *u.StripeCustomerID)
}

func TestPaymentSucceededUpgrades(t *testing.T) {
	user := basicUser()
	svc, store := newTestService(user, &fixedCounter{})
	nextBilling := time.Now().AddDate(0, 1, 0)

	err := svc.ApplyEvent(context.Background(), Event{
		Type:             EventPaymentSucceeded,
		UserID:           user.ID,
		CurrentPeriodEnd: &nextBilling,
	})

	require.NoError(t, err)
	assert.Equal(t, users.PlanPro, store.user.Plan)
	assert.Equal(t, StatusActive, *store.user.SubscriptionStatus)
	assert.False(t, store.user.IsTrialActive)
	assert.Equal(t, nextBilling, *store.user.NextBillingDate)
}

func TestPaymentFailedDowngrades(t *testing.T) {
	user := basicUser()
	user.Plan = users.PlanPro
	svc, store := newTestService(user, &fixedCounter{})

	err := svc.ApplyEvent(context.Background(), Event{
		Type:   EventPaymentFailed,
		UserID: user.ID,
	})

	require.NoError(t, err)
	assert.Equal(t, users.PlanBasic, store.user.Plan)
	assert.Equal(t, StatusPastDue, *store.user.SubscriptionStatus)
}

func TestSubscriptionDeleted(t *testing.T) {
	user := basicUser()
	user.Plan = users.PlanPro
	svc, store := newTestService(user, &fixedCounter{})

	err := svc.ApplyEvent(context.Background(), Event{
		Type:   EventSubscriptionDeleted,
		UserID: user.ID,
	})

	require.NoError(t, err)
	assert.Equal(t, users.PlanBasic, store.user.Plan)
	assert.Equal(t, StatusCanceled, *store.user.SubscriptionStatus)
	assert.NotNil(t, store.user.SubscriptionEnd)
	assert.False(t, store.user.IsTrialActive)
}

func TestCancelAtPeriodEnd(t *testing.T) {
	user := basicUser()
	user.Plan = users.PlanPro
	svc, store := newTestService(user, &fixedCounter{})
	periodEnd := time.Now().AddDate(0, 1, 0)

	err := svc.ApplyEvent(context.Background(), Event{
		Type:              EventSubscriptionUpdated,
		UserID:            user.ID,
		Status:            StatusActive,
		CurrentPeriodEnd:  &periodEnd,
		CancelAtPeriodEnd: true,
	})

	require.NoError(t, err)
	// still pro until the period actually ends
	assert.Equal(t, users.PlanPro, store.user.Plan)
	assert.Equal(t, periodEnd, *store.user.SubscriptionEnd)
}

func TestCancellationRevoked(t *testing.T) {
	user := basicUser()
	user.Plan = users.PlanPro
	end := time.Now().AddDate(0, 1, 0)
	user.SubscriptionEnd = &end
	svc, store := newTestService(user, &fixedCounter{})

	err := svc.ApplyEvent(context.Background(), Event{
		Type:   EventSubscriptionUpdated,
		UserID: user.ID,
		Status: StatusActive,
	})

	require.NoError(t, err)
	assert.Nil(t, store.user.SubscriptionEnd)
}

func TestTrialWillEndIsInformational(t *testing.T) {
	user := basicUser()
	svc, store := newTestService(user, &fixedCounter{})

	err := svc.ApplyEvent(context.Background(), Event{
		Type:   EventTrialWillEnd,
		UserID: user.ID,
	})

	require.NoError(t, err)
	assert.Equal(t, users.PlanBasic, store.user.Plan)
}

func TestUnknownEventRejected(t *testing.T) {
	user := basicUser()
	svc, _ := newTestService(user, &fixedCounter{})

	err := svc.ApplyEvent(context.Background(), Event{
		Type:   "subscription.paused",
		UserID: user.ID,
	})

	assert.True(t, common.IsValidation(err))
}

func TestEventRequiresUserID(t *testing.T) {
	svc, _ := newTestService(basicUser(), &fixedCounter{})

	err := svc.ApplyEvent(context.Background(), Event{Type: EventPaymentFailed})

	assert.True(t, common.IsValidation(err))
}

func TestUsageBasicPlan(t *testing.T) {
	user := basicUser()
	svc, _ := newTestService(user, &fixedCounter{total: 42, window: 7})

	got, err := svc.Usage(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, users.PlanBasic, got.Plan)
	assert.Equal(t, 42, got.ReceiptCount)
	assert.Equal(t, 7, got.WindowUsed)
	require.NotNil(t, got.WindowLimit)
	assert.Equal(t, 10, *got.WindowLimit)
}

func TestUsageProPlanUnlimited(t *testing.T) {
	user := basicUser()
	user.Plan = users.PlanPro
	svc, _ := newTestService(user, &fixedCounter{total: 42, window: 40})

	got, err := svc.Usage(context.Background(), user)

	require.NoError(t, err)
	assert.Nil(t, got.WindowLimit)
}
