package jobs

import (
	"context"
	"log/slog"
	"time"

	"checkout-saga/internal/pkg/backoff"
	"checkout-saga/internal/pkg/clock"
	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/usecase/shared"
)

type DispatchObserver interface {
	ObserveDispatch(kind string, err error)
	ObserveBatch(n int)
}

// Dispatcher publishes queued outbox rows. Rows are claimed and marked in one
// transaction, so concurrent dispatchers never send the same row twice in a
// poll; a crash between publish and commit re-sends, which consumers absorb.
type Dispatcher struct {
	uow         shared.UnitOfWork
	publisher   shared.Publisher
	clock       clock.Clock
	observer    DispatchObserver
	batch       int
	maxAttempts int
	retryBase   time.Duration
}

func NewDispatcher(uow shared.UnitOfWork, publisher shared.Publisher, clock clock.Clock, observer DispatchObserver, cfg config.OutboxConfig) *Dispatcher {
	return &Dispatcher{
		uow:         uow,
		publisher:   publisher,
		clock:       clock,
		observer:    observer,
		batch:       cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		retryBase:   cfg.RetryBase,
	}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	_, err := d.DispatchOnce(ctx)
	return err
}

// DispatchOnce handles one batch and returns how many messages were sent.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	sent := 0
	err := d.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		sent = 0
		now := d.clock.Now()
		msgs, err := tx.Outbox().ClaimDue(ctx, now, d.batch)
		if err != nil {
			return err
		}
		if d.observer != nil {
			d.observer.ObserveBatch(len(msgs))
		}

		for _, msg := range msgs {
			pubErr := d.publisher.Publish(ctx, msg)
			if d.observer != nil {
				d.observer.ObserveDispatch(msg.Kind, pubErr)
			}
			if pubErr == nil {
				if err := tx.Outbox().MarkSent(ctx, msg.ID, now); err != nil {
					return err
				}
				sent++
				continue
			}

			attempts := msg.Attempts + 1
			if attempts >= d.maxAttempts {
				slog.Error("outbox message abandoned",
					"id", msg.ID.String(),
					"kind", msg.Kind,
					"attempts", attempts,
					"error", pubErr.Error())
				if err := tx.Outbox().MarkFailed(ctx, msg.ID, attempts, pubErr.Error()); err != nil {
					return err
				}
				continue
			}
			next := now.Add(backoff.Exponential(attempts-1, d.retryBase, time.Hour))
			slog.Warn("outbox publish failed, rescheduled",
				"id", msg.ID.String(),
				"kind", msg.Kind,
				"attempts", attempts,
				"next_run_at", next,
				"error", pubErr.Error())
			if err := tx.Outbox().MarkRetry(ctx, msg.ID, attempts, next, pubErr.Error()); err != nil {
				return err
			}
		}
		return nil
	})
	return sent, err
}
