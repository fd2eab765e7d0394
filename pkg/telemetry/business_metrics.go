package telemetry

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Business metrics for application-level monitoring
var (
	// Receipt pipeline metrics
	ReceiptSubmissionsTotal api.Int64Counter
	ReceiptDuplicatesTotal  api.Int64Counter
	QuotaRejectionsTotal    api.Int64Counter
	ReceiptDeletionsTotal   api.Int64Counter
	ReceiptEditsTotal       api.Int64Counter

	// User & subscription metrics
	UserRegistrationsTotal api.Int64Counter
	LoginAttemptsTotal     api.Int64Counter
	PlanChangesTotal       api.Int64Counter
	BillingEventsTotal     api.Int64Counter

	// Analytics metrics
	AnalyticsRequestsTotal api.Int64Counter
	AnalyticsCacheHits     api.Int64Counter
	AnalyticsCacheMisses   api.Int64Counter

	// Error tracking
	ApplicationErrorsTotal api.Int64Counter
	DatabaseErrorsTotal    api.Int64Counter
)

// Incr bumps a business counter by one. Safe to call before InitTelemetry
// has run, which keeps services usable in tests without a meter provider.
func Incr(ctx context.Context, counter api.Int64Counter, opts ...api.AddOption) {
	if counter != nil {
		counter.Add(ctx, 1, opts...)
	}
}

// InitTelemetry wires all application metrics and database pool gauges.
func InitTelemetry(provider *metric.MeterProvider, pool *pgxpool.Pool) error {
	if err := InitBusinessMetrics(provider); err != nil {
		return err
	}
	return initPoolMetrics(provider, pool)
}

// InitBusinessMetrics initializes all business-level metrics
func InitBusinessMetrics(provider *metric.MeterProvider) error {
	meter := provider.Meter("business")

	var err error

	ReceiptSubmissionsTotal, err = meter.Int64Counter("receipts.submissions.total",
		api.WithDescription("Total receipt submissions by outcome"))
	if err != nil {
		return err
	}

	ReceiptDuplicatesTotal, err = meter.Int64Counter("receipts.duplicates.total",
		api.WithDescription("Total submissions rejected as duplicates"))
	if err != nil {
		return err
	}

	QuotaRejectionsTotal, err = meter.Int64Counter("receipts.quota_rejections.total",
		api.WithDescription("Total submissions rejected by the basic-plan quota"))
	if err != nil {
		return err
	}

	ReceiptDeletionsTotal, err = meter.Int64Counter("receipts.deletions.total",
		api.WithDescription("Total receipt deletions"))
	if err != nil {
		return err
	}

	ReceiptEditsTotal, err = meter.Int64Counter("receipts.edits.total",
		api.WithDescription("Total receipt field edits by field"))
	if err != nil {
		return err
	}

	UserRegistrationsTotal, err = meter.Int64Counter("users.registrations.total",
		api.WithDescription("Total user registrations"))
	if err != nil {
		return err
	}

	LoginAttemptsTotal, err = meter.Int64Counter("users.login_attempts.total",
		api.WithDescription("Total login attempts by outcome"))
	if err != nil {
		return err
	}

	PlanChangesTotal, err = meter.Int64Counter("subscription.plan_changes.total",
		api.WithDescription("Total plan transitions by target plan"))
	if err != nil {
		return err
	}

	BillingEventsTotal, err = meter.Int64Counter("subscription.billing_events.total",
		api.WithDescription("Total billing webhook events by type"))
	if err != nil {
		return err
	}

	AnalyticsRequestsTotal, err = meter.Int64Counter("analytics.requests.total",
		api.WithDescription("Total analytics requests by widget"))
	if err != nil {
		return err
	}

	AnalyticsCacheHits, err = meter.Int64Counter("analytics.cache.hits",
		api.WithDescription("Analytics cache hits"))
	if err != nil {
		return err
	}

	AnalyticsCacheMisses, err = meter.Int64Counter("analytics.cache.misses",
		api.WithDescription("Analytics cache misses"))
	if err != nil {
		return err
	}

	ApplicationErrorsTotal, err = meter.Int64Counter("application.errors.total",
		api.WithDescription("Total unexpected application errors"))
	if err != nil {
		return err
	}

	DatabaseErrorsTotal, err = meter.Int64Counter("database.errors.total",
		api.WithDescription("Total database errors"))
	if err != nil {
		return err
	}

	slog.Info("Business metrics initialized")
	return nil
}

func initPoolMetrics(provider *metric.MeterProvider, pool *pgxpool.Pool) error {
	meter := provider.Meter("db_pool")

	totalConns, err := meter.Int64ObservableGauge("db.pool.total_connections",
		api.WithDescription("Total connections in the pgx pool"))
	if err != nil {
		return err
	}

	idleConns, err := meter.Int64ObservableGauge("db.pool.idle_connections",
		api.WithDescription("Idle connections in the pgx pool"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o api.Observer) error {
		stat := pool.Stat()
		o.ObserveInt64(totalConns, int64(stat.TotalConns()))
		o.ObserveInt64(idleConns, int64(stat.IdleConns()))
		return nil
	}, totalConns, idleConns)

	return err
}
