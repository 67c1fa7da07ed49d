package components

import (
	"context"
	"log/slog"

	"checkout-saga/internal/infra/metrics"
	"checkout-saga/internal/infra/tracing"
	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/usecase/shared"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
)

var ObservabilityModule = fx.Module("observability",
	fx.Provide(
		NewRegistry,
		NewCollectors,
		func(c *metrics.Collectors) shared.LedgerObserver { return c },
	),
	fx.Invoke(registerTracing),
)

func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func NewCollectors(reg *prometheus.Registry) *metrics.Collectors {
	return metrics.NewCollectors(reg)
}

func registerTracing(lc fx.Lifecycle, cfg config.Config) {
	var shutdown func(context.Context) error
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			shutdown, err = tracing.Setup(ctx, cfg.Tracing)
			return err
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			if err := shutdown(ctx); err != nil {
				slog.Warn("failed to flush traces", "error", err.Error())
			}
			return nil
		},
	})
}
