package components

import (
	"notify-dispatch/internal/handler"
	"notify-dispatch/internal/handler/api"
	"notify-dispatch/internal/handler/middleware"
	"notify-dispatch/internal/pkg/config"
	"notify-dispatch/internal/usecase/commands"
	"notify-dispatch/internal/usecase/queries"

	"go.uber.org/fx"
)

var HandlerModule = fx.Module("handler",
	fx.Provide(
		NewJobHandler,
		middleware.NewAuthMiddleware,
	),
	fx.Invoke(handler.NewRouter),
)

func NewJobHandler(cmds commands.DispatchCommands, q queries.JobQueries, cfg config.Config) *api.JobHandler {
	return api.NewJobHandler(cmds, q, cfg.Queue.PollBatchSize)
}
