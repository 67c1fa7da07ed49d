package jobs

import (
	"context"
	"log/slog"

	"checkout-saga/internal/usecase/commands"
)

type SweepObserver interface {
	ObserveSwept(sagas int)
}

// Sweeper releases expired holds, then fails the sagas that owned them.
type Sweeper struct {
	manager  commands.ReservationManager
	checkout commands.CheckoutCommands
	observer SweepObserver
	batch    int
}

func NewSweeper(manager commands.ReservationManager, checkout commands.CheckoutCommands, observer SweepObserver, batch int) *Sweeper {
	return &Sweeper{manager: manager, checkout: checkout, observer: observer, batch: batch}
}

func (s *Sweeper) Run(ctx context.Context) error {
	sagaIDs, sweepErr := s.manager.SweepExpired(ctx, s.batch)
	if len(sagaIDs) == 0 {
		return sweepErr
	}
	if s.observer != nil {
		s.observer.ObserveSwept(len(sagaIDs))
	}
	slog.Info("released expired holds", "sagas", len(sagaIDs))
	// sagas whose holds were released must fail even if part of the sweep errored
	if err := s.checkout.HandleHoldsExpired(ctx, sagaIDs); err != nil {
		return err
	}
	return sweepErr
}

// PaymentWatcher compensates sagas whose payment deadline passed and resumes
// sagas whose driver stopped mid-flight.
type PaymentWatcher struct {
	checkout commands.CheckoutCommands
	batch    int
}

func NewPaymentWatcher(checkout commands.CheckoutCommands, batch int) *PaymentWatcher {
	return &PaymentWatcher{checkout: checkout, batch: batch}
}

func (w *PaymentWatcher) Run(ctx context.Context) error {
	timedOut, err := w.checkout.HandlePaymentTimeouts(ctx, w.batch)
	if timedOut > 0 {
		slog.Info("payment timeouts handled", "sagas", timedOut)
	}
	if err != nil {
		return err
	}
	resumed, err := w.checkout.ResumeStalled(ctx, w.batch)
	if resumed > 0 {
		slog.Info("stalled sagas resumed", "sagas", resumed)
	}
	return err
}

type Archiver struct {
	checkout commands.CheckoutCommands
	batch    int
}

func NewArchiver(checkout commands.CheckoutCommands, batch int) *Archiver {
	return &Archiver{checkout: checkout, batch: batch}
}

func (a *Archiver) Run(ctx context.Context) error {
	n, err := a.checkout.ArchiveTerminal(ctx, a.batch)
	if n > 0 {
		slog.Info("terminal sagas archived", "sagas", n)
	}
	return err
}

type Snapshotter struct {
	manager commands.ReservationManager
}

func NewSnapshotter(manager commands.ReservationManager) *Snapshotter {
	return &Snapshotter{manager: manager}
}

func (s *Snapshotter) Run(ctx context.Context) error {
	n, err := s.manager.Snapshot(ctx)
	if err != nil {
		return err
	}
	slog.Info("inventory snapshot taken", "skus", n)
	return nil
}
