package components

import (
	"checkout-saga/internal/handler"
	"checkout-saga/internal/handler/api"
	"checkout-saga/internal/handler/middleware"

	"go.uber.org/fx"
)

var HandlerModule = fx.Module("handler",
	fx.Provide(
		api.NewCheckoutHandler,
		api.NewPaymentHandler,
		api.NewInventoryHandler,
		middleware.NewSignatureMiddleware,
	),
	fx.Invoke(handler.NewRouter),
)
