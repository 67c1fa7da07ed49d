package bootstrap

import (
	"checkout-saga/cmd/bootstrap/components"

	"go.uber.org/fx"
)

var Module = fx.Options(
	ConfigModule,
	LoggerModule,
	DBModule,
	JWTModule,
	components.ObservabilityModule,
	components.PersistenceModule,
	components.RelayModule,
	components.UseCaseModule,
	components.JobsModule,
	components.HandlerModule,
)
