package commands

//go:generate mockgen -source=$GOFILE -destination=../../../tests/mock/commands/checkout.go -package=commandsmock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"checkout-saga/internal/domain/saga"
	"checkout-saga/internal/infra"
	"checkout-saga/internal/pkg/backoff"
	"checkout-saga/internal/pkg/clock"
	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/pkg/errs"
	"checkout-saga/internal/usecase/shared"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var outboxNamespace = uuid.MustParse("9d4b2c61-58a7-4f0e-b3d1-7e6a0f2c9b84")

const persistAttempts = 3

type CheckoutCommand struct {
	SagaID uuid.UUID
	UserID string
	Items  []saga.LineItem
}

type CheckoutResult struct {
	Saga       *saga.Instance
	IsReplayed bool
}

type CheckoutCommands interface {
	Start(ctx context.Context, cmd CheckoutCommand) (*CheckoutResult, error)
	Cancel(ctx context.Context, sagaID uuid.UUID) (*saga.Instance, error)
	// HandlePaymentCallback acknowledges stale, duplicate and post-terminal
	// callbacks without acting on them.
	HandlePaymentCallback(ctx context.Context, cb PaymentCallback) (*saga.Instance, error)
	HandlePaymentTimeout(ctx context.Context, sagaID uuid.UUID) error
	HandlePaymentTimeouts(ctx context.Context, limit int) (int, error)
	HandleHoldsExpired(ctx context.Context, sagaIDs []uuid.UUID) error
	ResumeStalled(ctx context.Context, limit int) (int, error)
	ArchiveTerminal(ctx context.Context, limit int) (int64, error)
}

type checkoutUseCaseImpl struct {
	uow        shared.UnitOfWork
	manager    ReservationManager
	promotions shared.Promotions
	dedup      shared.Deduplicator
	notifier   shared.TransitionNotifier
	clock      clock.Clock
	topics     Topics

	paymentTimeout time.Duration
	stallAfter     time.Duration
	archiveAfter   time.Duration
	retryBase      time.Duration
}

func NewCheckoutUseCase(
	uow shared.UnitOfWork,
	manager ReservationManager,
	promotions shared.Promotions,
	dedup shared.Deduplicator,
	notifier shared.TransitionNotifier,
	clock clock.Clock,
	cfg config.Config,
) CheckoutCommands {
	if notifier == nil {
		notifier = shared.NopNotifier{}
	}
	return &checkoutUseCaseImpl{
		uow:            uow,
		manager:        manager,
		promotions:     promotions,
		dedup:          dedup,
		notifier:       notifier,
		clock:          clock,
		topics:         TopicsFromConfig(cfg.Kafka),
		paymentTimeout: cfg.Saga.PaymentTimeout,
		stallAfter:     cfg.Saga.StallAfter,
		archiveAfter:   cfg.Saga.ArchiveAfter,
		retryBase:      cfg.Ledger.BackoffBase,
	}
}

// errSuperseded means another actor advanced the saga first and now owns it.
var errSuperseded = errs.New("saga superseded by a concurrent step")

func (c *checkoutUseCaseImpl) Start(ctx context.Context, cmd CheckoutCommand) (*CheckoutResult, error) {
	ctx, span := tracer.Start(ctx, "Checkout.Start", trace.WithAttributes(
		attribute.String("saga.id", cmd.SagaID.String()),
	))
	defer span.End()

	if cmd.SagaID == uuid.Nil {
		return nil, errs.Wrap(errs.ErrInvalidCheckout, "saga id is required")
	}
	inst, err := saga.New(cmd.SagaID, cmd.UserID, cmd.Items, c.clock.Now())
	if err != nil {
		return nil, errs.Mark(err, errs.ErrInvalidCheckout)
	}

	err = c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		return tx.Sagas().Create(ctx, inst)
	})
	if infra.IsKind(err, infra.KindDuplicateKey) {
		return c.replay(ctx, inst)
	}
	if err != nil {
		return nil, err
	}

	if err := c.drive(ctx, inst); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("saga.state", inst.State().String()))
	return &CheckoutResult{Saga: inst}, nil
}

// replay answers a retried request with the saga the first request created.
func (c *checkoutUseCaseImpl) replay(ctx context.Context, requested *saga.Instance) (*CheckoutResult, error) {
	existing, err := c.load(ctx, requested.ID())
	if err != nil {
		return nil, err
	}
	if existing.UserID() != requested.UserID() || existing.RequestHash() != requested.RequestHash() {
		return nil, errs.Wrapf(errs.ErrDuplicateCheckout, "saga %s", requested.ID())
	}
	return &CheckoutResult{Saga: existing, IsReplayed: true}, nil
}

// drive advances a saga through every step that does not wait on an external
// callback. A step lost to a concurrent actor ends the loop quietly.
func (c *checkoutUseCaseImpl) drive(ctx context.Context, inst *saga.Instance) error {
	for {
		var err error
		switch inst.State() {
		case saga.StateStarted:
			err = c.transition(ctx, inst, func(i *saga.Instance, now time.Time) (saga.Transition, error) {
				return i.MarkReserving(now)
			}, nil)
		case saga.StateReserving:
			err = c.reserve(ctx, inst)
		case saga.StateReserved:
			err = c.requestPayment(ctx, inst)
		case saga.StateCompensating:
			err = c.compensate(ctx, inst, inst.FailureReason(), inst.FailureDetail())
		default:
			return nil
		}
		if errors.Is(err, errSuperseded) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (c *checkoutUseCaseImpl) reserve(ctx context.Context, inst *saga.Instance) error {
	ids, err := c.manager.HoldAll(ctx, inst.ID(), inst.Items())
	var failure *HoldFailure
	if errors.As(err, &failure) {
		reason := reasonFor(failure.Reason)
		detail := fmt.Sprintf("sku %s: %v", failure.FailedSKU, failure.Reason)
		return c.transition(ctx, inst, func(i *saga.Instance, now time.Time) (saga.Transition, error) {
			return i.MarkFailed(reason, detail, now)
		}, c.enqueueOutcome)
	}
	if err != nil {
		return err
	}

	err = c.transition(ctx, inst, func(i *saga.Instance, now time.Time) (saga.Transition, error) {
		return i.MarkReserved(ids, now)
	}, nil)
	if errors.Is(err, errSuperseded) && inst.State() == saga.StateFailed {
		// cancelled while the holds were being taken; nobody else knows about them
		if releaseErr := c.manager.ReleaseAll(ctx, ids); releaseErr != nil {
			return releaseErr
		}
	}
	return err
}

func (c *checkoutUseCaseImpl) requestPayment(ctx context.Context, inst *saga.Instance) error {
	promo, err := c.promotions.Evaluate(ctx, shared.PromotionRequest{
		SagaID:        inst.ID(),
		UserID:        inst.UserID(),
		Items:         inst.Items(),
		SubtotalCents: inst.SubtotalCents(),
	})
	if err != nil {
		slog.Warn("promotion evaluation failed",
			"saga_id", inst.ID().String(),
			"error", err.Error())
		return c.compensate(ctx, inst, saga.ReasonPromotionInvalid, err.Error())
	}

	return c.transition(ctx, inst, func(i *saga.Instance, now time.Time) (saga.Transition, error) {
		return i.MarkAwaitingPayment(promo.DiscountCents, promo.Applied, now.Add(c.paymentTimeout), now)
	}, func(ctx context.Context, tx shared.Tx, i *saga.Instance, t saga.Transition) error {
		event := PaymentRequestedEvent{
			SagaID:         i.ID(),
			StepSeq:        i.StepSeq(),
			UserID:         i.UserID(),
			TotalAmount:    i.TotalCents(),
			ReservationIDs: i.ReservationIDs(),
			Deadline:       *i.PaymentDeadline(),
		}
		return c.enqueue(ctx, tx, KindPaymentRequested, c.topics.PaymentRequest, i, event, t.At)
	})
}

// compensate is the single compensation path: COMPENSATING is persisted
// first, then every hold is released, then the saga fails.
func (c *checkoutUseCaseImpl) compensate(ctx context.Context, inst *saga.Instance, reason saga.FailureReason, detail string) error {
	if inst.State() != saga.StateCompensating {
		err := c.transition(ctx, inst, func(i *saga.Instance, now time.Time) (saga.Transition, error) {
			return i.MarkCompensating(reason, detail, now)
		}, nil)
		if err != nil {
			return err
		}
	}

	if err := c.manager.ReleaseAll(ctx, inst.ReservationIDs()); err != nil {
		// stays COMPENSATING; ResumeStalled retries the release
		return err
	}

	return c.transition(ctx, inst, func(i *saga.Instance, now time.Time) (saga.Transition, error) {
		return i.MarkFailed(reason, detail, now)
	}, c.enqueueOutcome)
}

func (c *checkoutUseCaseImpl) Cancel(ctx context.Context, sagaID uuid.UUID) (*saga.Instance, error) {
	inst, err := c.load(ctx, sagaID)
	if err != nil {
		return nil, err
	}

	switch inst.State() {
	case saga.StateStarted, saga.StateReserving:
		err = c.transition(ctx, inst, func(i *saga.Instance, now time.Time) (saga.Transition, error) {
			return i.MarkFailed(saga.ReasonCancelled, "cancelled by caller", now)
		}, c.enqueueOutcome)
	case saga.StateReserved:
		err = c.compensate(ctx, inst, saga.ReasonCancelled, "cancelled by caller")
	case saga.StateAwaitingPayment:
		// same path as a failed payment
		err = c.failPayment(ctx, inst, inst.StepSeq(), saga.ReasonCancelled, "cancelled by caller")
	case saga.StateFailed:
		if inst.FailureReason() == saga.ReasonCancelled {
			return inst, nil
		}
		return nil, errs.Wrapf(errs.ErrCancelNotAllowed, "saga %s is %s", sagaID, inst.State())
	default:
		return nil, errs.Wrapf(errs.ErrCancelNotAllowed, "saga %s is %s", sagaID, inst.State())
	}

	if errors.Is(err, errSuperseded) {
		return inst, errs.Wrapf(errs.ErrCancelNotAllowed, "saga %s moved to %s", sagaID, inst.State())
	}
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func (c *checkoutUseCaseImpl) HandlePaymentCallback(ctx context.Context, cb PaymentCallback) (*saga.Instance, error) {
	ctx, span := tracer.Start(ctx, "Checkout.HandlePaymentCallback", trace.WithAttributes(
		attribute.String("saga.id", cb.SagaID.String()),
		attribute.Int64("saga.step_seq", cb.StepSeq),
		attribute.String("payment.outcome", string(cb.Outcome)),
	))
	defer span.End()

	if err := cb.Validate(); err != nil {
		return nil, err
	}

	claimed, err := c.dedup.Claim(ctx, cb.DedupKey())
	if err != nil {
		// the step_seq fence below still holds
		slog.Warn("callback dedup unavailable", "saga_id", cb.SagaID.String(), "error", err.Error())
		claimed = true
	}
	if !claimed {
		span.SetAttributes(attribute.Bool("callback.duplicate", true))
		return c.load(ctx, cb.SagaID)
	}

	inst, err := c.handlePaymentCallback(ctx, cb)
	if err != nil {
		if releaseErr := c.dedup.Release(ctx, cb.DedupKey()); releaseErr != nil {
			slog.Warn("failed to release callback dedup key", "key", cb.DedupKey(), "error", releaseErr.Error())
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return inst, nil
}

func (c *checkoutUseCaseImpl) handlePaymentCallback(ctx context.Context, cb PaymentCallback) (*saga.Instance, error) {
	inst, err := c.load(ctx, cb.SagaID)
	if err != nil {
		return nil, err
	}
	if !inst.AcceptsPaymentCallback(cb.StepSeq) {
		slog.Info("ignoring stale payment callback",
			"saga_id", cb.SagaID.String(),
			"callback_step_seq", cb.StepSeq,
			"step_seq", inst.StepSeq(),
			"state", inst.State().String())
		return inst, nil
	}

	switch cb.Outcome {
	case saga.PaymentSucceeded:
		err = c.completePayment(ctx, inst)
	default:
		detail := cb.Reason
		if detail == "" {
			detail = "payment declined"
		}
		err = c.failPayment(ctx, inst, cb.StepSeq, saga.ReasonPaymentFailed, detail)
	}
	if errors.Is(err, errSuperseded) {
		return inst, nil
	}
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// completePayment confirms every hold and marks the saga COMPLETED in the same
// transaction, so a concurrent timeout either wins entirely or not at all.
func (c *checkoutUseCaseImpl) completePayment(ctx context.Context, inst *saga.Instance) error {
	prev := inst.StepSeq()
	next := inst.Clone()
	t, err := next.MarkCompleted(c.clock.Now())
	if err != nil {
		return err
	}

	err = c.manager.ConfirmAll(ctx, inst.ReservationIDs(), func(ctx context.Context, tx shared.Tx) error {
		if err := tx.Sagas().Update(ctx, next, prev); err != nil {
			return err
		}
		return c.enqueueOutcome(ctx, tx, next, t)
	})
	switch {
	case err == nil:
		*inst = *next
		c.notifier.Notify(ctx, t)
		return nil
	case errs.Is(err, errs.ErrStaleStep):
		return c.reload(ctx, inst)
	case errs.Is(err, errs.ErrReservationExpired):
		return c.compensate(ctx, inst, saga.ReasonReservationExpired, err.Error())
	default:
		return err
	}
}

func (c *checkoutUseCaseImpl) failPayment(ctx context.Context, inst *saga.Instance, stepSeq int64, reason saga.FailureReason, detail string) error {
	if !inst.AcceptsPaymentCallback(stepSeq) {
		return errSuperseded
	}
	return c.compensate(ctx, inst, reason, detail)
}

func (c *checkoutUseCaseImpl) HandlePaymentTimeout(ctx context.Context, sagaID uuid.UUID) error {
	inst, err := c.load(ctx, sagaID)
	if err != nil {
		return err
	}
	if !inst.IsPaymentOverdue(c.clock.Now()) {
		return nil
	}
	err = c.compensate(ctx, inst, saga.ReasonPaymentTimeout, "no payment callback before deadline")
	if errors.Is(err, errSuperseded) {
		return nil
	}
	return err
}

func (c *checkoutUseCaseImpl) HandlePaymentTimeouts(ctx context.Context, limit int) (int, error) {
	overdue, err := shared.ReadInTx(ctx, c.uow, func(ctx context.Context, tx shared.Tx) ([]*saga.Instance, error) {
		return tx.Sagas().ListOverduePayments(ctx, c.clock.Now(), limit)
	})
	if err != nil {
		return 0, err
	}

	var errList []error
	handled := 0
	for _, inst := range overdue {
		if err := c.HandlePaymentTimeout(ctx, inst.ID()); err != nil {
			errList = append(errList, err)
			continue
		}
		handled++
	}
	return handled, errors.Join(errList...)
}

// HandleHoldsExpired fails sagas whose holds the sweeper released. Sagas still
// in RESERVING are left to their own hold step.
func (c *checkoutUseCaseImpl) HandleHoldsExpired(ctx context.Context, sagaIDs []uuid.UUID) error {
	var errList []error
	for _, id := range sagaIDs {
		inst, err := c.load(ctx, id)
		if errs.Is(err, errs.ErrSagaNotFound) {
			continue
		}
		if err != nil {
			errList = append(errList, err)
			continue
		}
		switch inst.State() {
		case saga.StateReserved, saga.StateAwaitingPayment, saga.StateCompensating:
			err = c.compensate(ctx, inst, saga.ReasonReservationExpired, "reservation ttl elapsed")
		default:
			continue
		}
		if err != nil && !errors.Is(err, errSuperseded) {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// ResumeStalled picks up sagas whose driver stopped mid-flight.
func (c *checkoutUseCaseImpl) ResumeStalled(ctx context.Context, limit int) (int, error) {
	before := c.clock.Now().Add(-c.stallAfter)
	stalled, err := shared.ReadInTx(ctx, c.uow, func(ctx context.Context, tx shared.Tx) ([]*saga.Instance, error) {
		return tx.Sagas().ListStalled(ctx, []saga.State{
			saga.StateStarted,
			saga.StateReserving,
			saga.StateReserved,
			saga.StateCompensating,
		}, before, limit)
	})
	if err != nil {
		return 0, err
	}

	var errList []error
	resumed := 0
	for _, inst := range stalled {
		slog.Info("resuming stalled saga", "saga_id", inst.ID().String(), "state", inst.State().String())
		if err := c.drive(ctx, inst); err != nil {
			errList = append(errList, err)
			continue
		}
		resumed++
	}
	return resumed, errors.Join(errList...)
}

func (c *checkoutUseCaseImpl) ArchiveTerminal(ctx context.Context, limit int) (int64, error) {
	before := c.clock.Now().Add(-c.archiveAfter)
	return shared.RunInTx(ctx, c.uow, func(ctx context.Context, tx shared.Tx) (int64, error) {
		return tx.Sagas().ArchiveTerminal(ctx, before, limit)
	})
}

type stepFunc func(i *saga.Instance, now time.Time) (saga.Transition, error)

type txHook func(ctx context.Context, tx shared.Tx, i *saga.Instance, t saga.Transition) error

// transition applies step to a copy, persists it fenced on the current
// step_seq together with hook, and only then updates inst and notifies.
// Losing the fence reloads inst and returns errSuperseded.
func (c *checkoutUseCaseImpl) transition(ctx context.Context, inst *saga.Instance, step stepFunc, hook txHook) error {
	prev := inst.StepSeq()
	next := inst.Clone()
	t, err := step(next, c.clock.Now())
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		err = c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			if err := tx.Sagas().Update(ctx, next, prev); err != nil {
				return err
			}
			if hook != nil {
				return hook(ctx, tx, next, t)
			}
			return nil
		})
		if err == nil {
			break
		}
		if errs.Is(err, errs.ErrStaleStep) {
			return c.reload(ctx, inst)
		}
		if !isRetryablePersist(err) || attempt+1 >= persistAttempts {
			return err
		}
		slog.Warn("retrying saga transition",
			"saga_id", inst.ID().String(),
			"to", t.To.String(),
			"attempt", attempt+1,
			"error", err.Error())
		if err := backoff.Sleep(ctx, backoff.Exponential(attempt, c.retryBase, 0)); err != nil {
			return err
		}
	}

	*inst = *next
	c.notifier.Notify(ctx, t)
	return nil
}

func isRetryablePersist(err error) bool {
	return infra.IsKind(err, infra.KindDBFailure) || errs.Is(err, errs.ErrLockTimeout)
}

// reload refreshes inst with the persisted saga and reports errSuperseded.
func (c *checkoutUseCaseImpl) reload(ctx context.Context, inst *saga.Instance) error {
	fresh, err := c.load(ctx, inst.ID())
	if err != nil {
		return err
	}
	*inst = *fresh
	return errSuperseded
}

func (c *checkoutUseCaseImpl) load(ctx context.Context, id uuid.UUID) (*saga.Instance, error) {
	return shared.ReadInTx(ctx, c.uow, func(ctx context.Context, tx shared.Tx) (*saga.Instance, error) {
		return tx.Sagas().Get(ctx, id)
	})
}

func (c *checkoutUseCaseImpl) enqueueOutcome(ctx context.Context, tx shared.Tx, i *saga.Instance, t saga.Transition) error {
	kind := KindSagaFailed
	if i.State() == saga.StateCompleted {
		kind = KindSagaCompleted
	}
	event := SagaOutcomeEvent{
		SagaID:      i.ID(),
		UserID:      i.UserID(),
		State:       i.State(),
		StepSeq:     i.StepSeq(),
		Reason:      i.FailureReason().String(),
		OrderID:     i.OrderID(),
		TotalAmount: i.TotalCents(),
		At:          t.At,
	}
	return c.enqueue(ctx, tx, kind, c.topics.SagaEvents, i, event, t.At)
}

// enqueue keys the outbox row on (sagaId, stepSeq, kind) so a step can never
// produce the same message twice.
func (c *checkoutUseCaseImpl) enqueue(ctx context.Context, tx shared.Tx, kind, topic string, i *saga.Instance, payload any, now time.Time) error {
	msg, err := newOutboxMessage(kind, topic, i.ID().String(), payload, now)
	if err != nil {
		return err
	}
	msg.ID = uuid.NewSHA1(outboxNamespace, []byte(fmt.Sprintf("%s:%d:%s", i.ID(), i.StepSeq(), kind)))
	msg.Headers["saga_id"] = i.ID().String()
	msg.Headers["step_seq"] = strconv.FormatInt(i.StepSeq(), 10)
	return tx.Outbox().Enqueue(ctx, msg)
}

func reasonFor(err error) saga.FailureReason {
	switch {
	case errs.Is(err, errs.ErrInsufficientStock):
		return saga.ReasonInsufficientStock
	case errs.Is(err, errs.ErrSKUNotFound):
		return saga.ReasonSKUNotFound
	case errs.Is(err, errs.ErrReservationExpired):
		return saga.ReasonReservationExpired
	case errs.Is(err, errs.ErrPromotionInvalid):
		return saga.ReasonPromotionInvalid
	default:
		return saga.ReasonConcurrencyExhausted
	}
}
