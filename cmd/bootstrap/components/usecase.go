package components

import (
	"notify-dispatch/internal/pkg/clock"
	"notify-dispatch/internal/pkg/config"
	"notify-dispatch/internal/usecase"
	"notify-dispatch/internal/usecase/commands"
	"notify-dispatch/internal/usecase/queries"

	"go.uber.org/fx"
)

var UseCaseModule = fx.Module("usecase",
	fx.Provide(
		NewDispatchCommands,
		queries.NewJobQueries,
		usecase.NewTokenValidator,
	),
)

func NewDispatchCommands(
	jobRepo commands.JobRepository,
	auditRepo commands.AuditRepository,
	providers commands.ProviderRegistry,
	clk clock.Clock,
	cfg config.Config,
) commands.DispatchCommands {
	return commands.NewDispatchCommands(jobRepo, auditRepo, providers, clk, cfg.Queue)
}
