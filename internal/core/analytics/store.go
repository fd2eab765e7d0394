package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/receiptly/receipts-service/internal/common"
	"github.com/receiptly/receipts-service/internal/core/receipts"
	"github.com/receiptly/receipts-service/internal/infra/postgres"
)

// Store is the read surface the aggregations run over. Grouped spend is
// pushed down to SQL; item-level aggregations load the receipts and fold
// over their JSONB items in Go.
type Store interface {
	ListAll(ctx context.Context, userID uuid.UUID) ([]*receipts.Receipt, error)
	ListBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*receipts.Receipt, error)
	CountAll(ctx context.Context, userID uuid.UUID) (int, error)
	SpendGroupedBy(ctx context.Context, userID uuid.UUID, dateFormat string) ([]PeriodSpend, error)
	GetWidgetOrder(ctx context.Context, userID uuid.UUID) ([]string, error)
	SaveWidgetOrder(ctx context.Context, userID uuid.UUID, order []string) error
}

type PostgresStore struct {
	db postgres.DB
}

func NewPostgresStore(db postgres.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ListAll(ctx context.Context, userID uuid.UUID) ([]*receipts.Receipt, error) {
	query := fmt.Sprintf(`SELECT %s FROM receipts WHERE user_id = $1 ORDER BY date`, receipts.Columns())
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("loading receipts for analytics: %w", err)
	}
	defer rows.Close()
	return receipts.ScanRows(rows)
}

func (s *PostgresStore) ListBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*receipts.Receipt, error) {
	query := fmt.Sprintf(`SELECT %s FROM receipts WHERE user_id = $1 AND date >= $2 AND date < $3 ORDER BY date`,
		receipts.Columns())
	rows, err := s.db.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("loading receipts in range: %w", err)
	}
	defer rows.Close()
	return receipts.ScanRows(rows)
}

func (s *PostgresStore) CountAll(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM receipts WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting receipts: %w", err)
	}
	return count, nil
}

// SpendGroupedBy sums receipt totals grouped by the formatted date. The
// format string is one of the to_char patterns from the service, never user
// input.
func (s *PostgresStore) SpendGroupedBy(ctx context.Context, userID uuid.UUID, dateFormat string) ([]PeriodSpend, error) {
	rows, err := s.db.Query(ctx,
		`SELECT to_char(date, $2) AS period, SUM(total) AS total
		 FROM receipts WHERE user_id = $1
		 GROUP BY period ORDER BY period`,
		userID, dateFormat)
	if err != nil {
		return nil, fmt.Errorf("grouping spend: %w", err)
	}
	defer rows.Close()

	points := make([]PeriodSpend, 0)
	for rows.Next() {
		var p PeriodSpend
		if err := rows.Scan(&p.Period, &p.Total); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *PostgresStore) GetWidgetOrder(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT display_order FROM widget_orders WHERE user_id = $1`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("loading widget order: %w", err)
	}

	var order []string
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("decoding widget order: %w", err)
	}
	return order, nil
}

func (s *PostgresStore) SaveWidgetOrder(ctx context.Context, userID uuid.UUID, order []string) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encoding widget order: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO widget_orders (user_id, display_order) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET display_order = EXCLUDED.display_order, updated_at = NOW()`,
		userID, raw)
	if err != nil {
		return fmt.Errorf("saving widget order: %w", err)
	}
	return nil
}
