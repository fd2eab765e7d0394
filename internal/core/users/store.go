package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/receiptly/receipts-service/internal/common"
	"github.com/receiptly/receipts-service/internal/infra/postgres"
)

// Store is the persistence surface the user service needs. Satisfied by
// PostgresStore in production and by fakes in tests.
type Store interface {
	Create(ctx context.Context, email, passwordHash string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	SetEmailVerified(ctx context.Context, id uuid.UUID) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateCurrency(ctx context.Context, id uuid.UUID, currency string) error
	UpdateSubscription(ctx context.Context, id uuid.UUID, upd SubscriptionUpdate) error
}

const userColumns = `id, email, password_hash, email_verified, currency, plan,
	stripe_customer_id, stripe_subscription_id, subscription_status,
	subscription_start_date, next_billing_date, subscription_end_date,
	trial_start_date, trial_end_date, is_trial_active, created_at, updated_at`

type PostgresStore struct {
	db postgres.DB
}

func NewPostgresStore(db postgres.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, email, passwordHash string) (*User, error) {
	ctx, span := tracer.Start(ctx, "users.store.Create")
	defer span.End()

	query := fmt.Sprintf(`INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING %s`, userColumns)
	user, err := scanUser(s.db.QueryRow(ctx, query, email, passwordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, common.ErrEmailTaken
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	ctx, span := tracer.Start(ctx, "users.store.GetByID")
	defer span.End()

	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	user, err := scanUser(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("selecting user by id: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	ctx, span := tracer.Start(ctx, "users.store.GetByEmail")
	defer span.End()

	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)
	user, err := scanUser(s.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("selecting user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) SetEmailVerified(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "users.store.SetEmailVerified")
	defer span.End()

	tag, err := s.db.Exec(ctx,
		`UPDATE users SET email_verified = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking email verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	ctx, span := tracer.Start(ctx, "users.store.UpdatePasswordHash")
	defer span.End()

	tag, err := s.db.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("updating password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateCurrency(ctx context.Context, id uuid.UUID, currency string) error {
	ctx, span := tracer.Start(ctx, "users.store.UpdateCurrency")
	defer span.End()

	tag, err := s.db.Exec(ctx,
		`UPDATE users SET currency = $2, updated_at = NOW() WHERE id = $1`, id, currency)
	if err != nil {
		return fmt.Errorf("updating currency: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateSubscription(ctx context.Context, id uuid.UUID, upd SubscriptionUpdate) error {
	ctx, span := tracer.Start(ctx, "users.store.UpdateSubscription")
	defer span.End()

	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Plan != nil {
		add("plan", *upd.Plan)
	}
	if upd.StripeCustomerID != nil {
		add("stripe_customer_id", *upd.StripeCustomerID)
	}
	if upd.StripeSubscriptionID != nil {
		add("stripe_subscription_id", *upd.StripeSubscriptionID)
	}
	if upd.SubscriptionStatus != nil {
		add("subscription_status", *upd.SubscriptionStatus)
	}
	if upd.SubscriptionStart != nil {
		add("subscription_start_date", *upd.SubscriptionStart)
	}
	if upd.NextBillingDate != nil {
		add("next_billing_date", *upd.NextBillingDate)
	}
	if upd.SubscriptionEnd != nil {
		add("subscription_end_date", *upd.SubscriptionEnd)
	} else if upd.ClearSubscriptionEnd {
		add("subscription_end_date", (*time.Time)(nil))
	}
	if upd.TrialStart != nil {
		add("trial_start_date", *upd.TrialStart)
	}
	if upd.TrialEnd != nil {
		add("trial_end_date", *upd.TrialEnd)
	}
	if upd.IsTrialActive != nil {
		add("is_trial_active", *upd.IsTrialActive)
	}

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $1`, strings.Join(sets, ", "))
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.EmailVerified, &u.Currency, &u.Plan,
		&u.StripeCustomerID, &u.StripeSubscriptionID, &u.SubscriptionStatus,
		&u.SubscriptionStart, &u.NextBillingDate, &u.SubscriptionEnd,
		&u.TrialStart, &u.TrialEnd, &u.IsTrialActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
