package logger

import (
	"log/slog"
	"os"

	"github.com/receiptly/receipts-service/config"
)

// NewLogger creates a local slog logger honoring the configured format and level.
func NewLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.GetSlogLevel()}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
