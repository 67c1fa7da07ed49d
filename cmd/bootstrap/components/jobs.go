package components

import (
	"context"
	"log/slog"

	"checkout-saga/internal/infra/metrics"
	"checkout-saga/internal/jobs"
	"checkout-saga/internal/pkg/clock"
	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/usecase/commands"
	"checkout-saga/internal/usecase/shared"

	"go.uber.org/fx"
)

var JobsModule = fx.Module("jobs",
	fx.Provide(
		NewJobRunner,
	),
	fx.Invoke(registerJobRunner),
)

func NewJobRunner(
	cfg config.Config,
	uow shared.UnitOfWork,
	publisher shared.Publisher,
	manager commands.ReservationManager,
	checkout commands.CheckoutCommands,
	collectors *metrics.Collectors,
	clk clock.Clock,
) *jobs.Runner {
	dispatcher := jobs.NewDispatcher(uow, publisher, clk, collectors, cfg.Outbox)
	sweeper := jobs.NewSweeper(manager, checkout, collectors, cfg.Reservation.SweepBatch)
	watcher := jobs.NewPaymentWatcher(checkout, cfg.Saga.BatchSize)
	archiver := jobs.NewArchiver(checkout, cfg.Saga.BatchSize)
	snapshotter := jobs.NewSnapshotter(manager)

	return jobs.NewRunner(
		jobs.Job{Name: "outbox-dispatcher", Interval: cfg.Outbox.PollInterval, Run: dispatcher.Run},
		jobs.Job{Name: "reservation-sweeper", Interval: cfg.Reservation.SweepInterval, Run: sweeper.Run},
		jobs.Job{Name: "payment-watcher", Interval: cfg.Saga.ScanInterval, Run: watcher.Run},
		jobs.Job{Name: "saga-archiver", Interval: cfg.Saga.ArchiveInterval, Run: archiver.Run},
		jobs.Job{Name: "inventory-snapshot", Interval: cfg.Saga.SnapshotInterval, Run: snapshotter.Run},
	)
}

func registerJobRunner(lc fx.Lifecycle, runner *jobs.Runner) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(done)
				if err := runner.Start(ctx); err != nil {
					slog.Error("background jobs exited", "error", err.Error())
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
