package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/otelfiber/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/favicon"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	slogfiber "github.com/samber/slog-fiber"
	"go.opentelemetry.io/otel"

	"github.com/receiptly/receipts-service/config"
	"github.com/receiptly/receipts-service/internal/core/analytics"
	"github.com/receiptly/receipts-service/internal/core/billing"
	"github.com/receiptly/receipts-service/internal/core/receipts"
	"github.com/receiptly/receipts-service/internal/core/users"
)

var tracer = otel.Tracer("receipts-service")

// Services bundles the domain services the HTTP layer exposes.
type Services struct {
	Users     *users.Service
	Receipts  *receipts.Service
	Analytics *analytics.Service
	Billing   *billing.Service
}

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	logger    *slog.Logger
	services  Services
	jwtSecret []byte
}

func New(cfg *config.Config, logger *slog.Logger, services Services) *Server {
	app := fiber.New(cfg.Fiber())

	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(cors.New())
	app.Use(favicon.New())
	app.Use(otelfiber.Middleware())
	app.Use(slogfiber.New(logger))
	app.Use(limiter.New(limiter.Config{
		Max:                    cfg.RateLimitMax,
		Expiration:             time.Duration(cfg.RateLimitWindow) * time.Second,
		LimiterMiddleware:      limiter.SlidingWindow{},
		SkipSuccessfulRequests: false,
	}))

	s := &Server{
		app:       app,
		cfg:       cfg,
		logger:    logger,
		services:  services,
		jwtSecret: []byte(cfg.JwtSecret),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("addr", s.cfg.ServerAddress))
	return s.app.Listen(s.cfg.ServerAddress)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
