package receipts

import (
	"context"
	"fmt"
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

type fakeStore struct {
	receipts map[uuid.UUID]*Receipt
	order    []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{receipts: make(map[uuid.UUID]*Receipt)}
}

func (f *fakeStore) Insert(_ context.Context, r *Receipt) (*Receipt, error) {
	for _, existing := range f.receipts {
		if existing.UserID == r.UserID && existing.Fingerprint == r.Fingerprint {
			return nil, common.ErrDuplicateReceipt
		}
	}
	stored := *r
	stored.ID = uuid.New()
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	f.receipts[stored.ID] = &stored
	f.order = append(f.order, stored.ID)
	return &stored, nil
}

func (f *fakeStore) ExistsFingerprint(_ context.Context, userID uuid.UUID, fingerprint string) (bool, error) {
	for _, r := range f.receipts {
		if r.UserID == userID && r.Fingerprint == fingerprint {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CountInDateRange(_ context.Context, userID uuid.UUID, from, to time.Time) (int, error) {
	count := 0
	for _, r := range f.receipts {
		if r.UserID == userID && !r.Date.Before(from) && r.Date.Before(to) {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CountByUser(_ context.Context, userID uuid.UUID) (int, error) {
	count := 0
	for _, r := range f.receipts {
		if r.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*Receipt, error) {
	out := make([]*Receipt, 0)
	for _, id := range f.order {
		if r, ok := f.receipts[id]; ok && r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetByID(_ context.Context, userID, id uuid.UUID) (*Receipt, error) {
	r, ok := f.receipts[id]
	if !ok || r.UserID != userID {
		return nil, common.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) Delete(_ context.Context, userID, id uuid.UUID) error {
	r, ok := f.receipts[id]
	if !ok || r.UserID != userID {
		return common.ErrNotFound
	}
	delete(f.receipts, id)
	return nil
}

func (f *fakeStore) UpdateAtomic(ctx context.Context, userID, id uuid.UUID, mutate func(*Receipt) error) (*Receipt, error) {
	r, err := f.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(r); err != nil {
		return nil, err
	}
	r.UpdatedAt = time.Now()
	return r, nil
}

func (f *fakeStore) DistinctStoreNames(_ context.Context, userID uuid.UUID) ([]string, error) {
	return f.distinct(userID, func(r *Receipt) *string { return r.StoreName })
}

func (f *fakeStore) DistinctStoreCategories(_ context.Context, userID uuid.UUID) ([]string, error) {
	return f.distinct(userID, func(r *Receipt) *string { return r.StoreCategory })
}

func (f *fakeStore) distinct(userID uuid.UUID, get func(*Receipt) *string) ([]string, error) {
	seen := map[string]bool{}
	out := make([]string, 0)
	for _, r := range f.receipts {
		if r.UserID != userID {
			continue
		}
		if v := get(r); v != nil && *v != "" && !seen[*v] {
			seen[*v] = true
			out = append(out, *v)
		}
	}
	return out, nil
}

func newTestService(limit int) (*Service, *fakeStore) {
	store := newFakeStore()
	cfg := config.DefaultConfig()
	cfg.BasicPlanLimit = limit
	accountant := quota.NewAccountant(store, &cfg, slog.Default())
	return NewService(store, accountant, nil, slog.Default()), store
}

func basicUser() *users.User {
	return &users.User{ID: uuid.New(), Plan: users.PlanBasic}
}

func proUser() *users.User {
	return &users.User{ID: uuid.New(), Plan: users.PlanPro}
}

func submission(date string, total string, extra string) string {
	body := fmt.Sprintf(`{"date":%q,"total":%s`, date, total)
	if extra != "" {
		body += "," + extra
	}
	return body + "}"
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

func TestSubmitStoresReceipt(t *testing.T) {
	svc, store := newTestService(10)
	user := basicUser()

	raw := mustDecode(t, submission(today(), "12.40",
		`"store_name":"Lidl","store_category":"Groceries","tax_amount":1.2,
		 "items":[{"name":"Milk","price":3.5,"quantity":2,"total":7.0}]`))

	r, err := svc.Submit(context.Background(), user, raw)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, r.ID)
	assert.Equal(t, user.ID, r.UserID)
	assert.Equal(t, 12.40, r.Total)
	assert.Equal(t, "Lidl", *r.StoreName)
	assert.Equal(t, 1.2, *r.TaxAmount)
	assert.Len(t, r.Items, 1)
	assert.Len(t, r.Fingerprint, 64)
	assert.Len(t, store.receipts, 1)
}

func TestSubmitValidation(t *testing.T) {
	svc, _ := newTestService(10)
	user := basicUser()
	ctx := context.Background()

	_, err := svc.Submit(ctx, user, mustDecode(t, `{"total":5}`))
	assert.True(t, common.IsValidation(err), "missing date")

	_, err = svc.Submit(ctx, user, mustDecode(t, `{"date":"02.01.2024","total":5}`))
	assert.True(t, common.IsValidation(err), "wrong date format")

	_, err = svc.Submit(ctx, user, mustDecode(t, `{"date":"2024-01-02"}`))
	assert.True(t, common.IsValidation(err), "missing total")

	_, err = svc.Submit(ctx, user, mustDecode(t, `{"date":"2024-01-02","total":"abc"}`))
	assert.True(t, common.IsValidation(err), "non-numeric total")
}

func TestSubmitDuplicateRejected(t *testing.T) {
	svc, _ := newTestService(10)
	user := basicUser()
	ctx := context.Background()
	body := submission(today(), "9.99", `"store_name":"Lidl"`)

	_, err := svc.Submit(ctx, user, mustDecode(t, body))
	require.NoError(t, err)

	_, err = svc.Submit(ctx, user, mustDecode(t, body))
	assert.ErrorIs(t, err, common.ErrDuplicateReceipt)
}

func TestSubmitReorderedItemsAreDuplicate(t *testing.T) {
	svc, _ := newTestService(10)
	user := basicUser()
	ctx := context.Background()

	_, err := svc.Submit(ctx, user, mustDecode(t, submission(today(), "5",
		`"items":[{"name":"Apples","price":2},{"name":"Bread","price":3}]`)))
	require.NoError(t, err)

	_, err = svc.Submit(ctx, user, mustDecode(t, submission(today(), "5",
		`"items":[{"name":"Bread","price":3},{"name":"Apples","price":2}]`)))
	assert.ErrorIs(t, err, common.ErrDuplicateReceipt)
}

func TestSubmitSameContentDifferentUsers(t *testing.T) {
	svc, store := newTestService(10)
	ctx := context.Background()
	body := submission(today(), "9.99", `"store_name":"Lidl"`)

	_, err := svc.Submit(ctx, basicUser(), mustDecode(t, body))
	require.NoError(t, err)

	_, err = svc.Submit(ctx, basicUser(), mustDecode(t, body))
	require.NoError(t, err)

	assert.Len(t, store.receipts, 2)
}

func TestSubmitQuotaEnforced(t *testing.T) {
	svc, _ := newTestService(3)
	user := basicUser()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		body := submission(today(), fmt.Sprintf("%d.50", i+1), "")
		_, err := svc.Submit(ctx, user, mustDecode(t, body))
		require.NoError(t, err)
	}

	_, err := svc.Submit(ctx, user, mustDecode(t, submission(today(), "99.99", "")))
	require.Error(t, err)
	quotaErr, ok := common.IsQuotaExceeded(err)
	require.True(t, ok)
	assert.Equal(t, 3, quotaErr.Limit)
}

func TestSubmitQuotaIgnoresReceiptsOutsideWindow(t *testing.T) {
	svc, _ := newTestService(3)
	user := basicUser()
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -60).Format("2006-01-02")
	for i := 0; i < 3; i++ {
		body := submission(old, fmt.Sprintf("%d.50", i+1), "")
		_, err := svc.Submit(ctx, user, mustDecode(t, body))
		require.NoError(t, err)
	}

	_, err := svc.Submit(ctx, user, mustDecode(t, submission(today(), "99.99", "")))
	assert.NoError(t, err)
}

func TestSubmitQuotaSkippedForPro(t *testing.T) {
	svc, _ := newTestService(1)
	user := proUser()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		body := submission(today(), fmt.Sprintf("%d.50", i+1), "")
		_, err := svc.Submit(ctx, user, mustDecode(t, body))
		require.NoError(t, err)
	}
}

func TestDeleteOwnerScoped(t *testing.T) {
	svc, _ := newTestService(10)
	owner := basicUser()
	ctx := context.Background()

	r, err := svc.Submit(ctx, owner, mustDecode(t, submission(today(), "5", "")))
	require.NoError(t, err)

	err = svc.Delete(ctx, uuid.New(), r.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, owner.ID, r.ID))
	assert.ErrorIs(t, svc.Delete(ctx, owner.ID, r.ID), common.ErrNotFound)
}

func TestUpdateReceiptField(t *testing.T) {
	svc, _ := newTestService(10)
	user := basicUser()
	ctx := context.Background()

	r, err := svc.Submit(ctx, user, mustDecode(t, submission(today(), "7.0",
		`"store_name":"Lidl","items":[{"name":"Milk","price":3.5,"quantity":2,"total":7.0}]`)))
	require.NoError(t, err)

	updated, err := svc.UpdateReceiptField(ctx, user.ID, r.ID, "store_name", "Aldi")
	require.NoError(t, err)
	assert.Equal(t, "Aldi", *updated.StoreName)

	updated, err = svc.UpdateReceiptField(ctx, user.ID, r.ID, "date", "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", updated.DateString())

	// the fingerprint keeps identifying the original submission
	assert.Equal(t, r.Fingerprint, updated.Fingerprint)
}

func TestUpdateReceiptFieldRejected(t *testing.T) {
	svc, _ := newTestService(10)
	user := basicUser()
	ctx := context.Background()

	r, err := svc.Submit(ctx, user, mustDecode(t, submission(today(), "5", "")))
	require.NoError(t, err)

	_, err = svc.UpdateReceiptField(ctx, user.ID, r.ID, "total", 100)
	assert.ErrorIs(t, err, common.ErrInvalidFieldUpdate)

	_, err = svc.UpdateReceiptField(ctx, user.ID, r.ID, "date", "not-a-date")
	assert.ErrorIs(t, err, common.ErrInvalidFieldUpdate)

	_, err = svc.UpdateReceiptField(ctx, user.ID, r.ID, "store_name", 42)
	assert.ErrorIs(t, err, common.ErrInvalidFieldUpdate)
}

func TestUpdateItemFieldRecomputesTotals(t *testing.T) {
	svc, _ := newTestService(10)
	user := basicUser()
	ctx := context.Background()

	r, err := svc.Submit(ctx, user, mustDecode(t, submission(today(), "11.0",
		`"items":[{"name":"Milk","price":3.5,"quantity":2,"total":7.0},
		          {"name":"Bread","price":4.0,"quantity":1,"total":4.0}]`)))
	require.NoError(t, err)

	updated, err := svc.UpdateItemField(ctx, user.ID, r.ID, 0, "price", 4.0)
	require.NoError(t, err)

	assert.Equal(t, 4.0, updated.Items[0]["price"])
	assert.Equal(t, 8.0, updated.Items[0]["total"])
	assert.Equal(t, 12.0, updated.Total)

	updated, err = svc.UpdateItemField(ctx, user.ID, r.ID, 1, "quantity", 3)
	require.NoError(t, err)
	assert.Equal(t, 12.0, updated.Items[1]["total"])
	assert.Equal(t, 20.0, updated.Total)
}

func TestUpdateItemFieldRejected(t *testing.T) {
	svc, _ := newTestService(10)
	user := basicUser()
	ctx := context.Background()

	r, err := svc.Submit(ctx, user, mustDecode(t, submission(today(), "7.0",
		`"items":[{"name":"Milk","price":3.5,"quantity":2,"total":7.0}]`)))
	require.NoError(t, err)

	_, err = svc.UpdateItemField(ctx, user.ID, r.ID, 5, "price", 1.0)
	assert.ErrorIs(t, err, common.ErrInvalidFieldUpdate)

	_, err = svc.UpdateItemField(ctx, user.ID, r.ID, 0, "price", -1.0)
	assert.ErrorIs(t, err, common.ErrInvalidFieldUpdate)

	_, err = svc.UpdateItemField(ctx, user.ID, r.ID, 0, "quantity", 0)
	assert.ErrorIs(t, err, common.ErrInvalidFieldUpdate)

	_, err = svc.UpdateItemField(ctx, user.ID, r.ID, 0, "total", 9.0)
	assert.ErrorIs(t, err, common.ErrInvalidFieldUpdate)

	_, err = svc.UpdateItemField(ctx, user.ID, r.ID, 0, "name", 7)
	assert.ErrorIs(t, err, common.ErrInvalidFieldUpdate)
}

func TestListScopedToUser(t *testing.T) {
	svc, _ := newTestService(10)
	alice := basicUser()
	bob := basicUser()
	ctx := context.Background()

	_, err := svc.Submit(ctx, alice, mustDecode(t, submission(today(), "5", "")))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, bob, mustDecode(t, submission(today(), "6", "")))
	require.NoError(t, err)

	list, err := svc.List(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, alice.ID, list[0].UserID)
}
