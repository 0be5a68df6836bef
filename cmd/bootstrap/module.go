package bootstrap

import (
	"notify-dispatch/cmd/bootstrap/components"

	"go.uber.org/fx"
)

var Module = fx.Options(
	ConfigModule,
	LoggerModule,
	JWTModule,
	components.StoreModule,
	components.ProviderModule,
	components.UseCaseModule,
	components.HandlerModule,
	PollerModule,
)
