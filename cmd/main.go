package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/receiptly/receipts-service/config"
	"github.com/receiptly/receipts-service/internal/core/analytics"
	"github.com/receiptly/receipts-service/internal/core/billing"
	"github.com/receiptly/receipts-service/internal/core/mail"
	"github.com/receiptly/receipts-service/internal/core/quota"
	"github.com/receiptly/receipts-service/internal/core/receipts"
	"github.com/receiptly/receipts-service/internal/core/users"
	"github.com/receiptly/receipts-service/internal/infra/cache"
	"github.com/receiptly/receipts-service/internal/infra/postgres"
	"github.com/receiptly/receipts-service/internal/infra/server"
	"github.com/receiptly/receipts-service/pkg/logger"
	"github.com/receiptly/receipts-service/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("loading config", slog.Any("error", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.NewLogger(&cfg)
	if cfg.OtlpEndpoint != "" {
		observable, loggerProvider, err := logger.NewObservableLogger(&cfg)
		if err != nil {
			log.Warn("otlp log export unavailable, staying on local logging", slog.Any("error", err))
		} else {
			log = observable
			defer loggerProvider.Shutdown(context.Background())
		}
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DbRunMigrations {
		if err := postgres.RunMigrations(ctx, cfg.DbConnectionString()); err != nil {
			log.Error("running migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	pool, err := postgres.Init(cfg)
	if err != nil {
		log.Error("connecting to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var db postgres.DB = pool
	if cfg.JaegerEndpoint != "" {
		tracerProvider, err := telemetry.InitTracer(&cfg)
		if err != nil {
			log.Warn("tracing unavailable", slog.Any("error", err))
		} else {
			defer tracerProvider.Shutdown(context.Background())
		}
	}
	if cfg.OtlpEndpoint != "" {
		meterProvider, err := telemetry.InitMeter(ctx, &cfg)
		if err != nil {
			log.Warn("metrics export unavailable", slog.Any("error", err))
		} else {
			defer meterProvider.Shutdown(context.Background())
			if err := telemetry.InitTelemetry(meterProvider, pool); err != nil {
				log.Warn("initializing metrics", slog.Any("error", err))
			}
			instrumented, err := telemetry.NewInstrumentedPool(meterProvider, pool)
			if err != nil {
				log.Warn("instrumenting database pool", slog.Any("error", err))
			} else {
				db = instrumented
			}
		}
	}

	analyticsCache := cache.New(&cfg, log)
	defer analyticsCache.Close()

	userStore := users.NewPostgresStore(db)
	receiptStore := receipts.NewPostgresStore(db)
	analyticsStore := analytics.NewPostgresStore(db)

	accountant := quota.NewAccountant(receiptStore, &cfg, log)
	mailer := mail.New(cfg.GetMailConfig(), log)

	services := server.Services{
		Users:     users.NewService(userStore, mailer, &cfg, log),
		Receipts:  receipts.NewService(receiptStore, accountant, analyticsCache, log),
		Analytics: analytics.NewService(analyticsStore, analyticsCache, log),
		Billing:   billing.NewService(userStore, receiptStore, accountant, log),
	}

	srv := server.New(&cfg, log, services)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown failed", slog.Any("error", err))
		}
	}
}
