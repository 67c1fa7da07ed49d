package bootstrap

import (
	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/pkg/jwt"

	"go.uber.org/fx"
)

var JWTModule = fx.Module("jwt",
	fx.Provide(
		NewJWTService,
	),
)

func NewJWTService(cfg config.Config) *jwt.Service {
	if cfg.Callback.MaxSkew <= 0 {
		panic("invalid PAYMENT_CALLBACK_MAX_SKEW: must be positive")
	}
	return jwt.NewService(cfg.Callback.Secret, cfg.Callback.MaxSkew)
}
