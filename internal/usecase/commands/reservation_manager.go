package commands

//go:generate mockgen -source=$GOFILE -destination=../../../tests/mock/commands/reservation_manager.go -package=commandsmock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"checkout-saga/internal/domain/inventory"
	"checkout-saga/internal/domain/reservation"
	"checkout-saga/internal/domain/saga"
	"checkout-saga/internal/infra"
	"checkout-saga/internal/pkg/backoff"
	"checkout-saga/internal/pkg/clock"
	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/pkg/errs"
	"checkout-saga/internal/usecase/shared"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const operatorSystem = "system"

var tracer = otel.Tracer("checkout-saga/usecase/commands")

// HoldFailure is the PartialFailure outcome of HoldAll. Every hold in
// HeldSoFar has already been released when it is returned.
type HoldFailure struct {
	HeldSoFar []uuid.UUID
	FailedSKU string
	Reason    error
}

func (e *HoldFailure) Error() string {
	return fmt.Sprintf("hold failed on sku %s after %d holds: %v", e.FailedSKU, len(e.HeldSoFar), e.Reason)
}

func (e *HoldFailure) Unwrap() error {
	return e.Reason
}

// TxFence runs inside the transaction that confirms holds. A fence error
// rolls the confirmation back.
type TxFence func(ctx context.Context, tx shared.Tx) error

type AdjustCommand struct {
	SKUCode  string
	Quantity int64
	Reason   string
	Operator string
}

// ReservationManager is the only writer of the inventory ledger.
type ReservationManager interface {
	Read(ctx context.Context, sku string) (*inventory.Record, error)
	HoldAll(ctx context.Context, sagaID uuid.UUID, items []saga.LineItem) ([]uuid.UUID, error)
	ConfirmAll(ctx context.Context, reservationIDs []uuid.UUID, fences ...TxFence) error
	ReleaseAll(ctx context.Context, reservationIDs []uuid.UUID) error
	// SweepExpired releases expired holds and returns the sagas that owned them.
	SweepExpired(ctx context.Context, limit int) ([]uuid.UUID, error)
	Adjust(ctx context.Context, cmd AdjustCommand) (*inventory.Record, error)
	Provision(ctx context.Context, sku string, total int64, operator string) (*inventory.Record, error)
	// DeductNow is a hold without TTL followed by a confirm.
	DeductNow(ctx context.Context, ref uuid.UUID, items []saga.LineItem) ([]uuid.UUID, error)
	Snapshot(ctx context.Context) (int64, error)
}

type reservationManagerImpl struct {
	uow      shared.UnitOfWork
	clock    clock.Clock
	observer shared.LedgerObserver
	topics   Topics
	hot      *hotSKUTracker

	ttl               time.Duration
	retryBudget       int
	backoffBase       time.Duration
	backoffMax        time.Duration
	lockTimeout       time.Duration
	lowStockThreshold int64
}

func NewReservationManager(
	uow shared.UnitOfWork,
	clock clock.Clock,
	observer shared.LedgerObserver,
	cfg config.Config,
) ReservationManager {
	if observer == nil {
		observer = shared.NopLedgerObserver{}
	}
	return &reservationManagerImpl{
		uow:               uow,
		clock:             clock,
		observer:          observer,
		topics:            TopicsFromConfig(cfg.Kafka),
		hot:               newHotSKUTracker(cfg.Ledger.HotSKUThreshold, cfg.Ledger.HotSKUWindow, cfg.Ledger.HotSKUCooldown),
		ttl:               cfg.Reservation.TTL,
		retryBudget:       max(cfg.Ledger.RetryBudget, 1),
		backoffBase:       cfg.Ledger.BackoffBase,
		backoffMax:        cfg.Ledger.BackoffMax,
		lockTimeout:       cfg.Ledger.LockTimeout,
		lowStockThreshold: cfg.Ledger.LowStockThreshold,
	}
}

func (m *reservationManagerImpl) Read(ctx context.Context, sku string) (*inventory.Record, error) {
	return shared.ReadInTx(ctx, m.uow, func(ctx context.Context, tx shared.Tx) (*inventory.Record, error) {
		return tx.Inventory().Get(ctx, sku)
	})
}

func (m *reservationManagerImpl) HoldAll(ctx context.Context, sagaID uuid.UUID, items []saga.LineItem) ([]uuid.UUID, error) {
	return m.holdAll(ctx, sagaID, items, m.ttl)
}

// holdAll takes one hold per line item in ascending SKU order, each in its own
// transaction. On the first logical failure every hold taken so far is
// released. Infrastructure failures keep them: a resumed saga adopts its HELD
// rows and the sweeper reclaims them at TTL otherwise.
func (m *reservationManagerImpl) holdAll(ctx context.Context, sagaID uuid.UUID, items []saga.LineItem, ttl time.Duration) ([]uuid.UUID, error) {
	ctx, span := tracer.Start(ctx, "ReservationManager.HoldAll", trace.WithAttributes(
		attribute.String("saga.id", sagaID.String()),
		attribute.Int("items", len(items)),
	))
	defer span.End()

	sorted := append([]saga.LineItem(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SKUCode < sorted[j].SKUCode })

	held := make([]uuid.UUID, 0, len(sorted))
	for _, item := range sorted {
		id, err := m.holdOne(ctx, sagaID, item, ttl)
		if err == nil {
			held = append(held, id)
			continue
		}

		if !isLogical(err) {
			slog.Warn("hold failed, keeping partial holds for resume",
				"saga_id", sagaID.String(),
				"sku", item.SKUCode,
				"held", len(held),
				"error", err.Error())
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if releaseErr := m.ReleaseAll(ctx, held); releaseErr != nil {
			// infrastructure failure while rolling back; the sweeper reclaims the rest at TTL
			slog.Error("failed to release partial holds",
				"saga_id", sagaID.String(),
				"held", len(held),
				"error", releaseErr.Error())
			span.RecordError(releaseErr)
			return nil, errs.Combine(err, releaseErr)
		}
		span.SetAttributes(attribute.String("failed.sku", item.SKUCode))
		return nil, &HoldFailure{HeldSoFar: held, FailedSKU: item.SKUCode, Reason: err}
	}
	return held, nil
}

func (m *reservationManagerImpl) holdOne(ctx context.Context, sagaID uuid.UUID, item saga.LineItem, ttl time.Duration) (uuid.UUID, error) {
	now := m.clock.Now()
	hold, err := reservation.NewHold(sagaID, item.SKUCode, item.Quantity, ttl, now)
	if err != nil {
		return uuid.Nil, errs.Mark(err, errs.ErrInvalidCheckout)
	}

	_, err = m.run(ctx, ledgerOp{
		sku:      item.SKUCode,
		delta:    inventory.Reserve(item.Quantity),
		ref:      sagaID.String(),
		operator: operatorSystem,
		before: func(ctx context.Context, tx shared.Tx) (bool, error) {
			existing, err := tx.Reservations().Get(ctx, hold.ID())
			if errs.Is(err, errs.ErrReservationNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			// a resumed saga re-running holdAll finds its own row
			if existing.Status() == reservation.StatusReleased {
				return false, errs.Wrapf(errs.ErrReservationExpired, "reservation %s already released", hold.ID())
			}
			return true, nil
		},
		after: func(ctx context.Context, tx shared.Tx, _ *inventory.Record) error {
			return tx.Reservations().Insert(ctx, hold)
		},
	})
	if err != nil {
		return uuid.Nil, err
	}
	return hold.ID(), nil
}

// ConfirmAll converts every hold into a deduction in one transaction so a
// saga is confirmed completely or not at all.
func (m *reservationManagerImpl) ConfirmAll(ctx context.Context, reservationIDs []uuid.UUID, fences ...TxFence) error {
	ctx, span := tracer.Start(ctx, "ReservationManager.ConfirmAll", trace.WithAttributes(
		attribute.Int("reservations", len(reservationIDs)),
	))
	defer span.End()

	if len(reservationIDs) == 0 && len(fences) == 0 {
		return nil
	}

	var skus []string
	err := m.retry(ctx, func() []string { return skus }, func(ctx context.Context) error {
		return m.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			now := m.clock.Now()
			holds, err := lockReservations(ctx, tx, reservationIDs)
			if err != nil {
				return err
			}
			skus = skusOf(holds)

			for _, r := range holds {
				changed, err := r.Confirm(now)
				if err != nil {
					return errs.Mark(errs.Wrapf(err, "confirm reservation %s", r.ID()), errs.ErrReservationExpired)
				}
				if !changed {
					continue
				}
				if _, err := m.applyInTx(ctx, tx, ledgerOp{
					sku:      r.SKUCode(),
					delta:    inventory.Confirm(r.Quantity()),
					ref:      r.SagaID().String(),
					operator: operatorSystem,
				}, now); err != nil {
					return err
				}
				if err := tx.Reservations().UpdateStatus(ctx, r, reservation.StatusHeld); err != nil {
					return err
				}
			}
			for _, fence := range fences {
				if err := fence(ctx, tx); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// ReleaseAll releases each hold in its own transaction. Terminal reservations
// are skipped, so calling it again is a no-op.
func (m *reservationManagerImpl) ReleaseAll(ctx context.Context, reservationIDs []uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "ReservationManager.ReleaseAll", trace.WithAttributes(
		attribute.Int("reservations", len(reservationIDs)),
	))
	defer span.End()

	holds, err := shared.ReadInTx(ctx, m.uow, func(ctx context.Context, tx shared.Tx) ([]*reservation.Reservation, error) {
		var out []*reservation.Reservation
		for _, id := range reservationIDs {
			r, err := tx.Reservations().Get(ctx, id)
			if errs.Is(err, errs.ErrReservationNotFound) {
				slog.Warn("release skipped: reservation not found", "reservation_id", id.String())
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil
	})
	if err != nil {
		return err
	}
	sortBySKU(holds)

	for _, r := range holds {
		if err := m.release(ctx, r, func(*reservation.Reservation) bool { return true }); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}
	return nil
}

// release moves one hold back to available stock if it is still HELD and
// eligible(current) agrees. Returns nil when there was nothing to do.
func (m *reservationManagerImpl) release(ctx context.Context, r *reservation.Reservation, eligible func(*reservation.Reservation) bool) error {
	var locked *reservation.Reservation
	_, err := m.run(ctx, ledgerOp{
		sku:      r.SKUCode(),
		delta:    inventory.Release(r.Quantity()),
		ref:      r.SagaID().String(),
		operator: operatorSystem,
		before: func(ctx context.Context, tx shared.Tx) (bool, error) {
			current, err := tx.Reservations().GetForUpdate(ctx, r.ID())
			if err != nil {
				return false, err
			}
			switch current.Status() {
			case reservation.StatusReleased:
				return true, nil
			case reservation.StatusConfirmed:
				slog.Warn("release skipped: reservation already confirmed",
					"reservation_id", r.ID().String(),
					"saga_id", r.SagaID().String())
				return true, nil
			}
			if !eligible(current) {
				return true, nil
			}
			locked = current
			return false, nil
		},
		after: func(ctx context.Context, tx shared.Tx, _ *inventory.Record) error {
			locked.Release(m.clock.Now())
			return tx.Reservations().UpdateStatus(ctx, locked, reservation.StatusHeld)
		},
	})
	return err
}

func (m *reservationManagerImpl) SweepExpired(ctx context.Context, limit int) ([]uuid.UUID, error) {
	ctx, span := tracer.Start(ctx, "ReservationManager.SweepExpired")
	defer span.End()

	now := m.clock.Now()
	expired, err := shared.ReadInTx(ctx, m.uow, func(ctx context.Context, tx shared.Tx) ([]*reservation.Reservation, error) {
		return tx.Reservations().ListExpiredHeld(ctx, now, limit)
	})
	if err != nil {
		return nil, err
	}
	sortBySKU(expired)

	seen := make(map[uuid.UUID]struct{})
	var sagaIDs []uuid.UUID
	var errList []error
	for _, r := range expired {
		err := m.release(ctx, r, func(current *reservation.Reservation) bool {
			return current.IsExpired(m.clock.Now())
		})
		if err != nil {
			slog.Error("failed to release expired reservation",
				"reservation_id", r.ID().String(),
				"sku", r.SKUCode(),
				"error", err.Error())
			errList = append(errList, err)
			continue
		}
		if _, ok := seen[r.SagaID()]; !ok {
			seen[r.SagaID()] = struct{}{}
			sagaIDs = append(sagaIDs, r.SagaID())
		}
	}
	span.SetAttributes(attribute.Int("released", len(expired)-len(errList)))
	if len(errList) > 0 {
		return sagaIDs, errors.Join(errList...)
	}
	return sagaIDs, nil
}

func (m *reservationManagerImpl) Adjust(ctx context.Context, cmd AdjustCommand) (*inventory.Record, error) {
	if cmd.Quantity == 0 || strings.TrimSpace(cmd.SKUCode) == "" {
		return nil, errs.Wrap(errs.ErrInvalidAdjustment, "sku and a non-zero quantity are required")
	}
	operator := cmd.Operator
	if operator == "" {
		operator = operatorSystem
	}
	return m.run(ctx, ledgerOp{
		sku:      cmd.SKUCode,
		delta:    inventory.Adjust(cmd.Quantity),
		operator: operator,
		reason:   cmd.Reason,
	})
}

func (m *reservationManagerImpl) Provision(ctx context.Context, sku string, total int64, operator string) (*inventory.Record, error) {
	now := m.clock.Now()
	rec, err := inventory.NewRecord(sku, total, now)
	if err != nil {
		return nil, errs.Mark(err, errs.ErrInvalidAdjustment)
	}
	if operator == "" {
		operator = operatorSystem
	}

	err = m.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		if err := tx.Inventory().Create(ctx, rec); err != nil {
			return err
		}
		return m.recordChange(ctx, tx, rec, ledgerOp{
			sku:      rec.SKUCode,
			delta:    inventory.Adjust(total),
			operator: operator,
			reason:   "provision",
		}, now)
	})
	if infra.IsKind(err, infra.KindDuplicateKey) {
		return nil, errs.Mark(err, errs.ErrSKUExists)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (m *reservationManagerImpl) DeductNow(ctx context.Context, ref uuid.UUID, items []saga.LineItem) ([]uuid.UUID, error) {
	ids, err := m.holdAll(ctx, ref, items, 0)
	if err != nil {
		return nil, err
	}
	if err := m.ConfirmAll(ctx, ids); err != nil {
		if releaseErr := m.ReleaseAll(ctx, ids); releaseErr != nil {
			return nil, errs.Combine(err, releaseErr)
		}
		return nil, err
	}
	return ids, nil
}

func (m *reservationManagerImpl) Snapshot(ctx context.Context) (int64, error) {
	takenAt := m.clock.Now()
	return shared.RunInTx(ctx, m.uow, func(ctx context.Context, tx shared.Tx) (int64, error) {
		return tx.Snapshots().SnapshotAll(ctx, takenAt)
	})
}

type ledgerOp struct {
	sku      string
	delta    inventory.Delta
	ref      string
	operator string
	reason   string
	// before runs first in the transaction; skip commits without touching the ledger.
	before func(ctx context.Context, tx shared.Tx) (skip bool, err error)
	// after runs in the same transaction once the ledger row is written.
	after func(ctx context.Context, tx shared.Tx, rec *inventory.Record) error
}

// run applies op in its own transaction under the retry budget.
func (m *reservationManagerImpl) run(ctx context.Context, op ledgerOp) (*inventory.Record, error) {
	var rec *inventory.Record
	err := m.retry(ctx, func() []string { return []string{op.sku} }, func(ctx context.Context) error {
		rec = nil
		return m.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			if op.before != nil {
				skip, err := op.before(ctx, tx)
				if err != nil || skip {
					return err
				}
			}
			now := m.clock.Now()
			var err error
			rec, err = m.applyInTx(ctx, tx, op, now)
			if err != nil {
				return err
			}
			if op.after != nil {
				return op.after(ctx, tx, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// applyInTx writes op.delta through the optimistic path, or the locking path
// while the SKU is hot, then records the change.
func (m *reservationManagerImpl) applyInTx(ctx context.Context, tx shared.Tx, op ledgerOp, now time.Time) (*inventory.Record, error) {
	var (
		rec *inventory.Record
		err error
	)
	if m.hot.isHot(op.sku, now) {
		m.observer.ObservePessimistic(op.sku)
		rec, err = tx.Inventory().ApplyLocked(ctx, op.sku, op.delta, m.lockTimeout, now)
	} else {
		var current *inventory.Record
		current, err = tx.Inventory().Get(ctx, op.sku)
		if err != nil {
			return nil, err
		}
		// logical preconditions are checked against the version we CAS on
		if _, err := current.Apply(op.delta); err != nil {
			return nil, err
		}
		rec, err = tx.Inventory().TryApply(ctx, op.sku, current.Version, op.delta, now)
	}
	if err != nil {
		return nil, err
	}
	if err := m.recordChange(ctx, tx, rec, op, now); err != nil {
		return nil, err
	}
	return rec, nil
}

// recordChange writes the audit row and the inventory events for rec.
func (m *reservationManagerImpl) recordChange(ctx context.Context, tx shared.Tx, rec *inventory.Record, op ledgerOp, now time.Time) error {
	err := tx.InventoryLogs().Append(ctx, inventory.LogEntry{
		ID:          uuid.New(),
		SKUCode:     rec.SKUCode,
		Operation:   op.delta.Op,
		Quantity:    op.delta.Quantity,
		ReferenceID: op.ref,
		Operator:    op.operator,
		Reason:      op.reason,
		Available:   rec.Available,
		Reserved:    rec.Reserved,
		CreatedAt:   now,
	})
	if err != nil {
		return err
	}

	event := InventoryChangedEvent{
		SKUCode:     rec.SKUCode,
		Operation:   op.delta.Op,
		Quantity:    op.delta.Quantity,
		Total:       rec.Total,
		Available:   rec.Available,
		Reserved:    rec.Reserved,
		Version:     rec.Version,
		ReferenceID: op.ref,
		At:          now,
	}
	msg, err := newOutboxMessage(KindInventoryChanged, m.topics.InventoryEvent, rec.SKUCode, event, now)
	if err != nil {
		return err
	}
	if err := tx.Outbox().Enqueue(ctx, msg); err != nil {
		return err
	}

	// only the mutation that crosses the threshold raises the alert
	before := rec.Available - op.delta.Effect().Available
	if rec.IsLowStock(m.lowStockThreshold) && before > m.lowStockThreshold {
		alert, err := newOutboxMessage(KindInventoryLowStock, m.topics.InventoryEvent, rec.SKUCode, event, now)
		if err != nil {
			return err
		}
		if err := tx.Outbox().Enqueue(ctx, alert); err != nil {
			return err
		}
	}
	return nil
}

// retry runs attempt until it succeeds, fails logically or the budget is spent.
// skus reports which rows the last attempt touched, for the hot-SKU policy.
func (m *reservationManagerImpl) retry(ctx context.Context, skus func() []string, attempt func(ctx context.Context) error) error {
	for n := 0; ; n++ {
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return translate(err)
		}

		now := m.clock.Now()
		for _, sku := range skus() {
			m.observer.ObserveConflict(sku)
			if m.hot.recordConflict(sku, now) {
				slog.Warn("sku switched to pessimistic locking", "sku", sku)
			}
		}

		if n+1 >= m.retryBudget {
			for _, sku := range skus() {
				m.observer.ObserveExhausted(sku)
			}
			return errs.Mark(errs.Wrapf(err, "gave up after %d attempts", n+1), errs.ErrConcurrencyExhausted)
		}
		if err := backoff.Sleep(ctx, backoff.Exponential(n, m.backoffBase, m.backoffMax)); err != nil {
			return err
		}
	}
}

func isTransient(err error) bool {
	return errs.IsAny(err, errs.ErrVersionConflict, errs.ErrLockTimeout) ||
		infra.IsKind(err, infra.KindConflict) ||
		infra.IsKind(err, infra.KindLockTimeout)
}

// isLogical reports failures that end a saga instead of being retried.
func isLogical(err error) bool {
	return errs.IsAny(err,
		errs.ErrInsufficientStock,
		errs.ErrSKUNotFound,
		errs.ErrReservationExpired,
		errs.ErrConcurrencyExhausted,
		errs.ErrPromotionInvalid,
	)
}

// translate maps domain errors onto the sentinels callers branch on.
func translate(err error) error {
	switch {
	case errors.Is(err, inventory.ErrInsufficientStock):
		return errs.Mark(err, errs.ErrInsufficientStock)
	case errors.Is(err, inventory.ErrAdjustBelowZero), errors.Is(err, inventory.ErrInvalidQuantity):
		return errs.Mark(err, errs.ErrInvalidAdjustment)
	case errors.Is(err, reservation.ErrExpired), errors.Is(err, reservation.ErrAlreadyReleased):
		return errs.Mark(err, errs.ErrReservationExpired)
	default:
		return err
	}
}

func lockReservations(ctx context.Context, tx shared.Tx, ids []uuid.UUID) ([]*reservation.Reservation, error) {
	// row locks are taken in id order; ledger rows are then touched in SKU order
	ordered := append([]uuid.UUID(nil), ids...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })

	holds := make([]*reservation.Reservation, 0, len(ordered))
	for _, id := range ordered {
		r, err := tx.Reservations().GetForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		holds = append(holds, r)
	}
	sortBySKU(holds)
	return holds, nil
}

func sortBySKU(holds []*reservation.Reservation) {
	sort.SliceStable(holds, func(i, j int) bool { return holds[i].SKUCode() < holds[j].SKUCode() })
}

func skusOf(holds []*reservation.Reservation) []string {
	out := make([]string, len(holds))
	for i, r := range holds {
		out[i] = r.SKUCode()
	}
	return out
}
