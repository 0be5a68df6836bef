package bootstrap

import (
	"log/slog"

	"notify-dispatch/internal/handler/middleware"
	"notify-dispatch/internal/pkg/config"

	"go.uber.org/fx"
)

var LoggerModule = fx.Module("logger",
	fx.Provide(
		NewLogger,
	),
)

func NewLogger(cfg config.Config) *slog.Logger {
	logger := middleware.NewLogger(cfg.Log)
	return logger.GetSlogLogger()
}
