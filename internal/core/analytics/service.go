package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	api "go.opentelemetry.io/otel/metric"

	"github.com/receiptly/receipts-service/internal/common"
	"github.com/receiptly/receipts-service/internal/core/receipts"
	"github.com/receiptly/receipts-service/internal/core/users"
	"github.com/receiptly/receipts-service/pkg/telemetry"
)

var tracer = otel.Tracer("receipts-service")

const topProductsDefaultLimit = 10

// CacheStore is the read-through cache in front of the aggregations.
// Satisfied by the redis cache; nil disables caching.
type CacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{})
}

type Service struct {
	store  Store
	cache  CacheStore
	logger *slog.Logger
}

func NewService(store Store, cache CacheStore, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, logger: logger}
}

func cacheKey(userID uuid.UUID, name string) string {
	return fmt.Sprintf("analytics:%s:%s", userID, name)
}

func (s *Service) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	if err := s.cache.Get(ctx, key, dest); err != nil {
		telemetry.Incr(ctx, telemetry.AnalyticsCacheMisses)
		return false
	}
	telemetry.Incr(ctx, telemetry.AnalyticsCacheHits)
	return true
}

func (s *Service) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache != nil {
		s.cache.Set(ctx, key, value)
	}
}

func recordRequest(ctx context.Context, name string) {
	telemetry.Incr(ctx, telemetry.AnalyticsRequestsTotal, api.WithAttributes(attribute.String("aggregation", name)))
}

// SpendByPeriod sums receipt totals grouped by day, week, month or year.
func (s *Service) SpendByPeriod(ctx context.Context, user *users.User, interval string) (*SpendByPeriod, error) {
	ctx, span := tracer.Start(ctx, "analytics.SpendByPeriod")
	defer span.End()
	recordRequest(ctx, "spend_by_period")

	var format string
	switch interval {
	case IntervalDay:
		format = "YYYY-MM-DD"
	case IntervalWeek:
		format = "IYYY-IW"
	case IntervalMonth:
		format = "YYYY-MM"
	case IntervalYear:
		format = "YYYY"
	default:
		return nil, common.NewValidationError("interval must be one of: day, week, month, year")
	}

	key := cacheKey(user.ID, "spend_by_period:"+interval)
	var out SpendByPeriod
	if s.cacheGet(ctx, key, &out) {
		return &out, nil
	}

	points, err := s.store.SpendGroupedBy(ctx, user.ID, format)
	if err != nil {
		return nil, err
	}

	out = SpendByPeriod{
		HasData:  len(points) > 0,
		Currency: user.Currency,
		Interval: interval,
		Points:   points,
	}
	s.cacheSet(ctx, key, out)
	return &out, nil
}

// TotalSpent sums all of the user's receipt totals.
func (s *Service) TotalSpent(ctx context.Context, user *users.User) (*TotalSpent, error) {
	ctx, span := tracer.Start(ctx, "analytics.TotalSpent")
	defer span.End()
	recordRequest(ctx, "total_spent")

	key := cacheKey(user.ID, "total_spent")
	var out TotalSpent
	if s.cacheGet(ctx, key, &out) {
		return &out, nil
	}

	all, err := s.store.ListAll(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	var total float64
	for _, r := range all {
		total += r.Total
	}
	out = TotalSpent{HasData: len(all) > 0, Currency: user.Currency, Total: total}
	s.cacheSet(ctx, key, out)
	return &out, nil
}

// TopProducts ranks item names by the number of receipts they appear on
// within the period. A product bought twice on one receipt counts once;
// percentage is the share of the period's receipts that include it.
func (s *Service) TopProducts(ctx context.Context, user *users.User, period string, limit int) (*TopProducts, error) {
	ctx, span := tracer.Start(ctx, "analytics.TopProducts")
	defer span.End()
	recordRequest(ctx, "top_products")

	if limit <= 0 {
		limit = topProductsDefaultLimit
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	var cutoff time.Time
	switch period {
	case "", PeriodMonth:
		period = PeriodMonth
		cutoff = today.AddDate(0, 0, -30)
	case PeriodYear:
		cutoff = today.AddDate(0, 0, -365)
	case PeriodAll:
	default:
		return nil, common.NewValidationError("period must be one of: month, year, all")
	}

	key := cacheKey(user.ID, fmt.Sprintf("top_products:%s:%d", period, limit))
	var out TopProducts
	if s.cacheGet(ctx, key, &out) {
		return &out, nil
	}

	all, err := s.store.ListAll(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	inPeriod := all
	if !cutoff.IsZero() {
		inPeriod = make([]*receipts.Receipt, 0, len(all))
		for _, r := range all {
			if !r.Date.Before(cutoff) {
				inPeriod = append(inPeriod, r)
			}
		}
	}

	counts := map[string]*ProductStat{}
	for _, r := range inPeriod {
		// each product counts once per receipt, whatever its quantity
		onReceipt := map[string]string{}
		for _, item := range r.Items {
			name, ok := receipts.ToString(item["name"])
			if !ok {
				continue
			}
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			onReceipt[name] = itemCategory(item)
		}
		for name, category := range onReceipt {
			stat, exists := counts[name]
			if !exists {
				stat = &ProductStat{Name: name, Category: category}
				counts[name] = stat
			}
			stat.Count++
		}
	}

	products := make([]ProductStat, 0, len(counts))
	for _, stat := range counts {
		stat.Percentage = round1(float64(stat.Count) / float64(len(inPeriod)) * 100)
		products = append(products, *stat)
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Count != products[j].Count {
			return products[i].Count > products[j].Count
		}
		return products[i].Name < products[j].Name
	})
	if len(products) > limit {
		products = products[:limit]
	}

	out = TopProducts{
		HasData:       len(all) > 0,
		Period:        period,
		TotalReceipts: len(inPeriod),
		Products:      products,
	}
	s.cacheSet(ctx, key, out)
	return &out, nil
}

// MostExpensive finds the single priciest item ever purchased.
func (s *Service) MostExpensive(ctx context.Context, user *users.User) (*MostExpensive, error) {
	ctx, span := tracer.Start(ctx, "analytics.MostExpensive")
	defer span.End()
	recordRequest(ctx, "most_expensive")

	key := cacheKey(user.ID, "most_expensive")
	var out MostExpensive
	if s.cacheGet(ctx, key, &out) {
		return &out, nil
	}

	all, err := s.store.ListAll(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	var best *ExpensiveProduct
	for _, r := range all {
		for _, item := range r.Items {
			price, ok := receipts.ToFloat(item["price"])
			if !ok {
				continue
			}
			if best == nil || price > best.Price {
				name, _ := receipts.ToString(item["name"])
				p := &ExpensiveProduct{Name: name, Price: price, Date: r.DateString()}
				if r.StoreName != nil {
					p.StoreName = *r.StoreName
				}
				best = p
			}
		}
	}

	out = MostExpensive{HasData: best != nil, Currency: user.Currency, Product: best}
	s.cacheSet(ctx, key, out)
	return &out, nil
}

// ExpensesByCategory sums item spend per item category.
func (s *Service) ExpensesByCategory(ctx context.Context, user *users.User) (*ExpensesByCategory, error) {
	ctx, span := tracer.Start(ctx, "analytics.ExpensesByCategory")
	defer span.End()
	recordRequest(ctx, "expenses_by_category")

	key := cacheKey(user.ID, "expenses_by_category")
	var out ExpensesByCategory
	if s.cacheGet(ctx, key, &out) {
		return &out, nil
	}

	all, err := s.store.ListAll(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	sums := map[string]float64{}
	for _, r := range all {
		for _, item := range r.Items {
			sums[itemCategory(item)] += itemSpend(item)
		}
	}

	categories := make([]CategorySpend, 0, len(sums))
	for category, total := range sums {
		categories = append(categories, CategorySpend{Category: category, Total: total})
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Total != categories[j].Total {
			return categories[i].Total > categories[j].Total
		}
		return categories[i].Category < categories[j].Category
	})

	out = ExpensesByCategory{HasData: len(categories) > 0, Currency: user.Currency, Categories: categories}
	s.cacheSet(ctx, key, out)
	return &out, nil
}

// ReceiptsByDate counts receipts per transaction date.
func (s *Service) ReceiptsByDate(ctx context.Context, user *users.User) (*ReceiptsByDate, error) {
	ctx, span := tracer.Start(ctx, "analytics.ReceiptsByDate")
	defer span.End()
	recordRequest(ctx, "receipts_by_date")

	key := cacheKey(user.ID, "receipts_by_date")
	var out ReceiptsByDate
	if s.cacheGet(ctx, key, &out) {
		return &out, nil
	}

	all, err := s.store.ListAll(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, r := range all {
		counts[r.DateString()]++
	}

	points := make([]DateCount, 0, len(counts))
	for date, count := range counts {
		points = append(points, DateCount{Date: date, Count: count})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })

	out = ReceiptsByDate{HasData: len(points) > 0, Points: points}
	s.cacheSet(ctx, key, out)
	return &out, nil
}

// ProductsByCategory lists the distinct product names bought per category.
func (s *Service) ProductsByCategory(ctx context.Context, user *users.User) (*ProductsByCategory, error) {
	ctx, span := tracer.Start(ctx, "analytics.ProductsByCategory")
	defer span.End()
	recordRequest(ctx, "products_by_category")

	key := cacheKey(user.ID, "products_by_category")
	var out ProductsByCategory
	if s.cacheGet(ctx, key, &out) {
		return &out, nil
	}

	all, err := s.store.ListAll(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	byCategory := map[string]map[string]bool{}
	for _, r := range all {
		for _, item := range r.Items {
			name, ok := receipts.ToString(item["name"])
			if !ok || name == "" {
				continue
			}
			category := itemCategory(item)
			if byCategory[category] == nil {
				byCategory[category] = map[string]bool{}
			}
			byCategory[category][name] = true
		}
	}

	categories := make([]CategoryProducts, 0, len(byCategory))
	for category, names := range byCategory {
		products := make([]string, 0, len(names))
		for name := range names {
			products = append(products, name)
		}
		sort.Strings(products)
		categories = append(categories, CategoryProducts{Category: category, Products: products})
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Category < categories[j].Category })

	out = ProductsByCategory{HasData: len(categories) > 0, Categories: categories}
	s.cacheSet(ctx, key, out)
	return &out, nil
}

// ShoppingDays counts receipts per weekday, Monday first.
func (s *Service) ShoppingDays(ctx context.Context, user *users.User) (*ShoppingDays, error) {
	ctx, span := tracer.Start(ctx, "analytics.ShoppingDays")
	defer span.End()
	recordRequest(ctx, "shopping_days")

	key := cacheKey(user.ID, "shopping_days")
	var out ShoppingDays
	if s.cacheGet(ctx, key, &out) {
		return &out, nil
	}

	all, err := s.store.ListAll(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	counts := map[time.Weekday]int{}
	for _, r := range all {
		counts[r.Date.Weekday()]++
	}

	ordered := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
		time.Friday, time.Saturday, time.Sunday,
	}
	days := make([]WeekdayCount, 0, len(ordered))
	for _, wd := range ordered {
		days = append(days, WeekdayCount{Weekday: wd.String(), Count: counts[wd]})
	}

	out = ShoppingDays{HasData: len(all) > 0, Days: days}
	s.cacheSet(ctx, key, out)
	return &out, nil
}

// BillStats averages the bills of the last 30 days and, when the 30 days
// before also contain receipts, reports how the average moved.
func (s *Service) BillStats(ctx context.Context, user *users.User) (*BillStats, error) {
	ctx, span := tracer.Start(ctx, "analytics.BillStats")
	defer span.End()
	recordRequest(ctx, "bill_stats")

	key := cacheKey(user.ID, "bill_stats")
	var out BillStats
	if s.cacheGet(ctx, key, &out) {
		return &out, nil
	}

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	windowStart := today.AddDate(0, 0, -30)
	previousStart := today.AddDate(0, 0, -60)
	tomorrow := today.AddDate(0, 0, 1)

	current, err := s.store.ListBetween(ctx, user.ID, windowStart, tomorrow)
	if err != nil {
		return nil, err
	}
	previous, err := s.store.ListBetween(ctx, user.ID, previousStart, windowStart)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountAll(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	var average float64
	if len(current) > 0 {
		var sum float64
		for _, r := range current {
			sum += r.Total
		}
		average = sum / float64(len(current))
	}

	var delta *float64
	if len(current) > 0 && len(previous) > 0 {
		var previousSum float64
		for _, r := range previous {
			previousSum += r.Total
		}
		d := round2(average - previousSum/float64(len(previous)))
		delta = &d
	}

	out = BillStats{
		HasData:          total > 0,
		Currency:         user.Currency,
		TotalReceipts:    len(current),
		AverageBill:      round2(average),
		AverageBillDelta: delta,
	}
	s.cacheSet(ctx, key, out)
	return &out, nil
}

// GetWidgetOrder returns the stored dashboard layout. The first read
// persists the default order so later saves replace a known row.
func (s *Service) GetWidgetOrder(ctx context.Context, userID uuid.UUID) ([]string, error) {
	order, err := s.store.GetWidgetOrder(ctx, userID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	order = append([]string(nil), DefaultWidgetOrder...)
	if err := s.store.SaveWidgetOrder(ctx, userID, order); err != nil {
		return nil, err
	}
	return order, nil
}

// SaveWidgetOrder validates and persists a dashboard layout.
func (s *Service) SaveWidgetOrder(ctx context.Context, userID uuid.UUID, order []string) error {
	if len(order) == 0 {
		return common.NewValidationError("widget order must not be empty")
	}
	seen := map[string]bool{}
	for _, widget := range order {
		if !KnownWidgets[widget] {
			return common.NewValidationError("unknown widget %q", widget)
		}
		if seen[widget] {
			return common.NewValidationError("widget %q listed twice", widget)
		}
		seen[widget] = true
	}
	return s.store.SaveWidgetOrder(ctx, userID, order)
}

// itemSpend is an item's contribution to spend totals: its total when
// present, otherwise price, otherwise zero.
func itemSpend(item map[string]interface{}) float64 {
	if v, ok := receipts.ToFloat(item["total"]); ok {
		return v
	}
	if v, ok := receipts.ToFloat(item["price"]); ok {
		return v
	}
	return 0
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func itemCategory(item map[string]interface{}) string {
	if v, ok := receipts.ToString(item["category"]); ok && v != "" {
		return v
	}
	return "Uncategorized"
}
