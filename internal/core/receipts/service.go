package receipts

import (
	"context"
	"errors"
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

const dateLayout = "2006-01-02"

// Invalidator drops cached analytics for a user after a mutation. Satisfied
// by the redis cache; nil disables invalidation.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID uuid.UUID)
}

type Service struct {
	store  Store
	quota  *quota.Accountant
	cache  Invalidator
	logger *slog.Logger
}

func NewService(store Store, accountant *quota.Accountant, cache Invalidator, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		quota:  accountant,
		cache:  cache,
		logger: logger,
	}
}

// Submit runs the submission pipeline: quota check, canonicalization,
// fingerprinting, duplicate check, insert. The duplicate check is advisory;
// the unique constraint on (user_id, fingerprint) decides races.
func (s *Service) Submit(ctx context.Context, user *users.User, raw RawReceipt) (*Receipt, error) {
	ctx, span := tracer.Start(ctx, "receipts.Submit")
	defer span.End()

	if err := s.quota.CanAcceptReceipt(ctx, user.ID, user.Plan); err != nil {
		if _, ok := common.IsQuotaExceeded(err); ok {
			telemetry.Incr(ctx, telemetry.QuotaRejectionsTotal)
			telemetry.Incr(ctx, telemetry.ReceiptSubmissionsTotal, api.WithAttributes(attribute.String("outcome", "quota_exceeded")))
		}
		return nil, err
	}

	receipt, err := buildReceipt(user.ID, raw)
	if err != nil {
		telemetry.Incr(ctx, telemetry.ReceiptSubmissionsTotal, api.WithAttributes(attribute.String("outcome", "invalid")))
		return nil, err
	}

	exists, err := s.store.ExistsFingerprint(ctx, user.ID, receipt.Fingerprint)
	if err != nil {
		return nil, err
	}
	if exists {
		telemetry.Incr(ctx, telemetry.ReceiptDuplicatesTotal)
		telemetry.Incr(ctx, telemetry.ReceiptSubmissionsTotal, api.WithAttributes(attribute.String("outcome", "duplicate")))
		return nil, common.ErrDuplicateReceipt
	}

	stored, err := s.store.Insert(ctx, receipt)
	if err != nil {
		if errors.Is(err, common.ErrDuplicateReceipt) {
			telemetry.Incr(ctx, telemetry.ReceiptDuplicatesTotal)
			telemetry.Incr(ctx, telemetry.ReceiptSubmissionsTotal, api.WithAttributes(attribute.String("outcome", "duplicate")))
		}
		return nil, err
	}

	telemetry.Incr(ctx, telemetry.ReceiptSubmissionsTotal, api.WithAttributes(attribute.String("outcome", "accepted")))
	s.invalidate(ctx, user.ID)
	s.logger.Info("receipt stored",
		slog.String("user_id", user.ID.String()),
		slog.String("receipt_id", stored.ID.String()))
	return stored, nil
}

// buildReceipt validates the submission, fingerprints it, and maps it to the
// persisted shape.
func buildReceipt(userID uuid.UUID, raw RawReceipt) (*Receipt, error) {
	dateStr, ok := ToString(raw.Date)
	if !ok {
		return nil, common.NewValidationError("date is required")
	}
	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return nil, common.NewValidationError("date must be formatted as YYYY-MM-DD")
	}
	total, ok := ToFloat(raw.Total)
	if !ok {
		return nil, common.NewValidationError("total is required and must be a number")
	}

	fingerprint, err := Fingerprint(Canonicalize(raw))
	if err != nil {
		return nil, fmt.Errorf("fingerprinting receipt: %w", err)
	}

	r := &Receipt{
		UserID:      userID,
		Date:        date,
		Total:       total,
		Items:       raw.Items,
		Fingerprint: fingerprint,
	}
	if r.Items == nil {
		r.Items = []map[string]interface{}{}
	}
	if v, ok := ToString(raw.StoreCategory); ok {
		r.StoreCategory = &v
	}
	if v, ok := ToString(raw.StoreName); ok {
		r.StoreName = &v
	}
	if v, ok := ToFloat(raw.TaxAmount); ok {
		r.TaxAmount = &v
	}
	if v, ok := ToFloat(raw.TotalDiscount); ok {
		r.TotalDiscount = &v
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*Receipt, error) {
	ctx, span := tracer.Start(ctx, "receipts.List")
	defer span.End()

	return s.store.ListByUser(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Receipt, error) {
	return s.store.GetByID(ctx, userID, id)
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "receipts.Delete")
	defer span.End()

	if err := s.store.Delete(ctx, userID, id); err != nil {
		return err
	}
	telemetry.Incr(ctx, telemetry.ReceiptDeletionsTotal)
	s.invalidate(ctx, userID)
	return nil
}

// UpdateReceiptField edits one top-level field. Only store_name,
// store_category and date are editable; the fingerprint is never recomputed,
// it identifies the original submission.
func (s *Service) UpdateReceiptField(ctx context.Context, userID, id uuid.UUID, field string, value interface{}) (*Receipt, error) {
	ctx, span := tracer.Start(ctx, "receipts.UpdateReceiptField")
	defer span.End()

	updated, err := s.store.UpdateAtomic(ctx, userID, id, func(r *Receipt) error {
		switch field {
		case "store_name":
			v, ok := ToString(value)
			if !ok {
				return fmt.Errorf("%w: store_name must be a string", common.ErrInvalidFieldUpdate)
			}
			r.StoreName = &v
		case "store_category":
			v, ok := ToString(value)
			if !ok {
				return fmt.Errorf("%w: store_category must be a string", common.ErrInvalidFieldUpdate)
			}
			r.StoreCategory = &v
		case "date":
			v, ok := ToString(value)
			if !ok {
				return fmt.Errorf("%w: date must be a string", common.ErrInvalidFieldUpdate)
			}
			date, err := time.Parse(dateLayout, v)
			if err != nil {
				return fmt.Errorf("%w: date must be formatted as YYYY-MM-DD", common.ErrInvalidFieldUpdate)
			}
			r.Date = date
		default:
			return fmt.Errorf("%w: unknown field %q", common.ErrInvalidFieldUpdate, field)
		}
		r.Total = sumItemTotals(r.Items)
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.Incr(ctx, telemetry.ReceiptEditsTotal, api.WithAttributes(attribute.String("field", field)))
	s.invalidate(ctx, userID)
	return updated, nil
}

// UpdateItemField edits one field of one item, addressed by index. Editing
// price or quantity recomputes the item total and the receipt total.
func (s *Service) UpdateItemField(ctx context.Context, userID, id uuid.UUID, index int, field string, value interface{}) (*Receipt, error) {
	ctx, span := tracer.Start(ctx, "receipts.UpdateItemField")
	defer span.End()

	updated, err := s.store.UpdateAtomic(ctx, userID, id, func(r *Receipt) error {
		if index < 0 || index >= len(r.Items) {
			return fmt.Errorf("%w: item index %d out of range", common.ErrInvalidFieldUpdate, index)
		}
		item := r.Items[index]
		if item == nil {
			item = map[string]interface{}{}
			r.Items[index] = item
		}

		switch field {
		case "name", "category":
			v, ok := ToString(value)
			if !ok {
				return fmt.Errorf("%w: %s must be a string", common.ErrInvalidFieldUpdate, field)
			}
			item[field] = v
		case "price", "quantity":
			v, ok := ToFloat(value)
			if !ok || v <= 0 {
				return fmt.Errorf("%w: %s must be a positive number", common.ErrInvalidFieldUpdate, field)
			}
			item[field] = v
			price, _ := ToFloat(item["price"])
			qty, _ := ToFloat(item["quantity"])
			item["total"] = price * qty
		default:
			return fmt.Errorf("%w: unknown item field %q", common.ErrInvalidFieldUpdate, field)
		}
		r.Total = sumItemTotals(r.Items)
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.Incr(ctx, telemetry.ReceiptEditsTotal, api.WithAttributes(attribute.String("field", "item."+field)))
	s.invalidate(ctx, userID)
	return updated, nil
}

// StoreNames lists the distinct store names on the user's receipts, for
// filter dropdowns.
func (s *Service) StoreNames(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return s.store.DistinctStoreNames(ctx, userID)
}

// StoreCategories lists the distinct store categories on the user's receipts.
func (s *Service) StoreCategories(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return s.store.DistinctStoreCategories(ctx, userID)
}

// sumItemTotals folds the items' total fields, treating missing or
// non-numeric totals as zero.
func sumItemTotals(items []map[string]interface{}) float64 {
	var sum float64
	for _, item := range items {
		if v, ok := ToFloat(item["total"]); ok {
			sum += v
		}
	}
	return sum
}

func (s *Service) invalidate(ctx context.Context, userID uuid.UUID) {
	if s.cache != nil {
		s.cache.InvalidateUser(ctx, userID)
	}
}
