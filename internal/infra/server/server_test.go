package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/receiptly/receipts-service/config"
	"github.com/receiptly/receipts-service/internal/common"
	"github.com/receiptly/receipts-service/internal/core/auth"
	"github.com/receiptly/receipts-service/internal/core/mail"
	"github.com/receiptly/receipts-service/internal/core/quota"
	"github.com/receiptly/receipts-service/internal/core/receipts"
	"github.com/receiptly/receipts-service/internal/core/users"
)

type fakeUserStore struct {
	user *users.User
}

func (f *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	if f.user != nil && f.user.ID == id {
		return f.user, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeUserStore) Create(context.Context, string, string) (*users.User, error) {
	panic("not used")
}
func (f *fakeUserStore) GetByEmail(context.Context, string) (*users.User, error) {
	panic("not used")
}
func (f *fakeUserStore) SetEmailVerified(context.Context, uuid.UUID) error { panic("not used") }
func (f *fakeUserStore) UpdatePasswordHash(context.Context, uuid.UUID, string) error {
	panic("not used")
}
func (f *fakeUserStore) UpdateCurrency(context.Context, uuid.UUID, string) error { panic("not used") }
func (f *fakeUserStore) UpdateSubscription(context.Context, uuid.UUID, users.SubscriptionUpdate) error {
	panic("not used")
}

type fakeReceiptStore struct {
	receipts map[uuid.UUID]*receipts.Receipt
}

func newFakeReceiptStore() *fakeReceiptStore {
	return &fakeReceiptStore{receipts: make(map[uuid.UUID]*receipts.Receipt)}
}

func (f *fakeReceiptStore) Insert(_ context.Context, r *receipts.Receipt) (*receipts.Receipt, error) {
	for _, existing := range f.receipts {
		if existing.UserID == r.UserID && existing.Fingerprint == r.Fingerprint {
			return nil, common.ErrDuplicateReceipt
		}
	}
	stored := *r
	stored.ID = uuid.New()
	f.receipts[stored.ID] = &stored
	return &stored, nil
}

func (f *fakeReceiptStore) ExistsFingerprint(_ context.Context, userID uuid.UUID, fingerprint string) (bool, error) {
	for _, r := range f.receipts {
		if r.UserID == userID && r.Fingerprint == fingerprint {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReceiptStore) CountInDateRange(_ context.Context, userID uuid.UUID, from, to time.Time) (int, error) {
	count := 0
	for _, r := range f.receipts {
		if r.UserID == userID && !r.Date.Before(from) && r.Date.Before(to) {
			count++
		}
	}
	return count, nil
}

func (f *fakeReceiptStore) CountByUser(_ context.Context, userID uuid.UUID) (int, error) {
	count := 0
	for _, r := range f.receipts {
		if r.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeReceiptStore) ListByUser(context.Context, uuid.UUID) ([]*receipts.Receipt, error) {
	return nil, nil
}

func (f *fakeReceiptStore) GetByID(_ context.Context, userID, id uuid.UUID) (*receipts.Receipt, error) {
	r, ok := f.receipts[id]
	if !ok || r.UserID != userID {
		return nil, common.ErrNotFound
	}
	return r, nil
}

func (f *fakeReceiptStore) Delete(context.Context, uuid.UUID, uuid.UUID) error {
	return common.ErrNotFound
}

func (f *fakeReceiptStore) UpdateAtomic(context.Context, uuid.UUID, uuid.UUID, func(*receipts.Receipt) error) (*receipts.Receipt, error) {
	return nil, common.ErrNotFound
}

func (f *fakeReceiptStore) DistinctStoreNames(context.Context, uuid.UUID) ([]string, error) {
	return nil, nil
}

func (f *fakeReceiptStore) DistinctStoreCategories(context.Context, uuid.UUID) ([]string, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*Server, *users.User) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.JwtSecret = "test-secret"

	user := &users.User{
		ID:            uuid.New(),
		Email:         "shopper@example.com",
		EmailVerified: true,
		Currency:      "EUR",
		Plan:          users.PlanBasic,
	}
	userStore := &fakeUserStore{user: user}
	receiptStore := newFakeReceiptStore()

	accountant := quota.NewAccountant(receiptStore, &cfg, slog.Default())
	mailer := mail.New(cfg.GetMailConfig(), slog.Default())

	services := Services{
		Users:    users.NewService(userStore, mailer, &cfg, slog.Default()),
		Receipts: receipts.NewService(receiptStore, accountant, nil, slog.Default()),
	}
	return New(&cfg, slog.Default(), services), user
}

func submitRequest(token, body string) *http.Request {
	req := httptest.NewRequest(fiber.MethodPost, "/api/receipts", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	return req
}

func TestSubmitReceiptResponseShape(t *testing.T) {
	srv, user := newTestServer(t)
	token, err := auth.GenerateToken(user.ID, user.Email, []byte("test-secret"), time.Hour)
	require.NoError(t, err)

	body := `{"date":"2024-01-05","total":12.5,"items":[{"name":"Bread","price":3.0,"quantity":1,"total":3.0}]}`
	resp, err := srv.App().Test(submitRequest(token, body), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var out struct {
		Message string    `json:"message"`
		ID      uuid.UUID `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Receipt saved", out.Message)
	assert.NotEqual(t, uuid.Nil, out.ID)
}

func TestSubmitReceiptDuplicateConflict(t *testing.T) {
	srv, user := newTestServer(t)
	token, err := auth.GenerateToken(user.ID, user.Email, []byte("test-secret"), time.Hour)
	require.NoError(t, err)

	body := `{"date":"2024-01-05","total":12.5,"items":[{"name":"Bread","price":3.0,"quantity":1,"total":3.0}]}`
	first, err := srv.App().Test(submitRequest(token, body), -1)
	require.NoError(t, err)
	first.Body.Close()
	require.Equal(t, fiber.StatusCreated, first.StatusCode)

	second, err := srv.App().Test(submitRequest(token, body), -1)
	require.NoError(t, err)
	defer second.Body.Close()
	assert.Equal(t, fiber.StatusConflict, second.StatusCode)
}

func TestSubmitReceiptRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.App().Test(submitRequest("", `{"date":"2024-01-05","total":1}`), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
