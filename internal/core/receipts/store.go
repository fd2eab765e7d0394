package receipts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/receiptly/receipts-service/internal/common"
	"github.com/receiptly/receipts-service/internal/infra/postgres"
)

// Store is the persistence surface for receipts. CountInDateRange doubles as
// the quota usage counter.
type Store interface {
	Insert(ctx context.Context, r *Receipt) (*Receipt, error)
	ExistsFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string) (bool, error)
	CountInDateRange(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Receipt, error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (*Receipt, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	UpdateAtomic(ctx context.Context, userID, id uuid.UUID, mutate func(*Receipt) error) (*Receipt, error)
	DistinctStoreNames(ctx context.Context, userID uuid.UUID) ([]string, error)
	DistinctStoreCategories(ctx context.Context, userID uuid.UUID) ([]string, error)
}

const receiptColumns = `id, user_id, store_category, store_name, date, total,
	tax_amount, total_discount, items, fingerprint, created_at, updated_at`

type PostgresStore struct {
	db postgres.DB
}

func NewPostgresStore(db postgres.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, r *Receipt) (*Receipt, error) {
	ctx, span := tracer.Start(ctx, "receipts.store.Insert")
	defer span.End()

	query := fmt.Sprintf(`INSERT INTO receipts
		(user_id, store_category, store_name, date, total, tax_amount, total_discount, items, fingerprint)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING %s`, receiptColumns)

	stored, err := scanReceipt(s.db.QueryRow(ctx, query,
		r.UserID, r.StoreCategory, r.StoreName, r.Date, r.Total,
		r.TaxAmount, r.TotalDiscount, r.Items, r.Fingerprint))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, common.ErrDuplicateReceipt
		}
		return nil, fmt.Errorf("inserting receipt: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) ExistsFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string) (bool, error) {
	ctx, span := tracer.Start(ctx, "receipts.store.ExistsFingerprint")
	defer span.End()

	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM receipts WHERE user_id = $1 AND fingerprint = $2)`,
		userID, fingerprint).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking fingerprint: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CountInDateRange(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM receipts WHERE user_id = $1 AND date >= $2 AND date < $3`,
		userID, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting receipts in range: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM receipts WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting receipts: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Receipt, error) {
	ctx, span := tracer.Start(ctx, "receipts.store.ListByUser")
	defer span.End()

	query := fmt.Sprintf(`SELECT %s FROM receipts WHERE user_id = $1 ORDER BY date DESC, created_at DESC`, receiptColumns)
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	defer rows.Close()

	return scanReceipts(rows)
}

func (s *PostgresStore) GetByID(ctx context.Context, userID, id uuid.UUID) (*Receipt, error) {
	ctx, span := tracer.Start(ctx, "receipts.store.GetByID")
	defer span.End()

	query := fmt.Sprintf(`SELECT %s FROM receipts WHERE user_id = $1 AND id = $2`, receiptColumns)
	r, err := scanReceipt(s.db.QueryRow(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("selecting receipt: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "receipts.store.Delete")
	defer span.End()

	tag, err := s.db.Exec(ctx, `DELETE FROM receipts WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

// UpdateAtomic loads the receipt under a row lock, applies mutate, and
// writes back the editable columns in one transaction.
func (s *PostgresStore) UpdateAtomic(ctx context.Context, userID, id uuid.UUID, mutate func(*Receipt) error) (*Receipt, error) {
	ctx, span := tracer.Start(ctx, "receipts.store.UpdateAtomic")
	defer span.End()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`SELECT %s FROM receipts WHERE user_id = $1 AND id = $2 FOR UPDATE`, receiptColumns)
	r, err := scanReceipt(tx.QueryRow(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("locking receipt: %w", err)
	}

	if err := mutate(r); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, fmt.Sprintf(`UPDATE receipts
		SET store_category = $3, store_name = $4, date = $5, total = $6, items = $7, updated_at = NOW()
		WHERE user_id = $1 AND id = $2
		RETURNING %s`, receiptColumns),
		userID, id, r.StoreCategory, r.StoreName, r.Date, r.Total, r.Items)
	updated, err := scanReceipt(row)
	if err != nil {
		return nil, fmt.Errorf("updating receipt: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing update: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) DistinctStoreNames(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return s.distinctColumn(ctx, userID, "store_name")
}

func (s *PostgresStore) DistinctStoreCategories(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return s.distinctColumn(ctx, userID, "store_category")
}

func (s *PostgresStore) distinctColumn(ctx context.Context, userID uuid.UUID, column string) ([]string, error) {
	query := fmt.Sprintf(
		`SELECT DISTINCT %s FROM receipts WHERE user_id = $1 AND %s IS NOT NULL AND %s <> '' ORDER BY %s`,
		column, column, column, column)
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing distinct %s: %w", column, err)
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func scanReceipt(row pgx.Row) (*Receipt, error) {
	var r Receipt
	err := row.Scan(&r.ID, &r.UserID, &r.StoreCategory, &r.StoreName, &r.Date, &r.Total,
		&r.TaxAmount, &r.TotalDiscount, &r.Items, &r.Fingerprint, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ScanRows collects receipts from rows produced by a SELECT over
// receiptColumns. Shared with the analytics queries.
func ScanRows(rows pgx.Rows) ([]*Receipt, error) {
	return scanReceipts(rows)
}

// Columns is the canonical SELECT column list for the receipts table.
func Columns() string {
	return receiptColumns
}

func scanReceipts(rows pgx.Rows) ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}
