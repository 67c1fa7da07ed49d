package queries

//go:generate mockgen -source=$GOFILE -destination=../../../tests/mock/queries/checkout.go -package=queriesmock

import (
	"context"

	"checkout-saga/internal/domain/reservation"
	"checkout-saga/internal/domain/saga"
	"checkout-saga/internal/usecase/shared"

	"github.com/google/uuid"
)

type CheckoutQueries interface {
	GetByID(ctx context.Context, sagaID uuid.UUID) (*CheckoutView, error)
	ListEvents(ctx context.Context, sagaID uuid.UUID) ([]*SagaEventView, error)
}

type checkoutQueriesImpl struct {
	uow shared.UnitOfWork
}

func NewCheckoutQueries(uow shared.UnitOfWork) CheckoutQueries {
	return &checkoutQueriesImpl{uow: uow}
}

// GetByID reads the saga and its holds from one snapshot
func (q *checkoutQueriesImpl) GetByID(ctx context.Context, sagaID uuid.UUID) (*CheckoutView, error) {
	return shared.ReadInTx(ctx, q.uow, func(ctx context.Context, tx shared.Tx) (*CheckoutView, error) {
		inst, err := tx.Sagas().Get(ctx, sagaID)
		if err != nil {
			return nil, err
		}
		holds, err := tx.Reservations().ListBySaga(ctx, sagaID)
		if err != nil {
			return nil, err
		}
		return toCheckoutView(inst, holds), nil
	})
}

func (q *checkoutQueriesImpl) ListEvents(ctx context.Context, sagaID uuid.UUID) ([]*SagaEventView, error) {
	return shared.ReadInTx(ctx, q.uow, func(ctx context.Context, tx shared.Tx) ([]*SagaEventView, error) {
		if _, err := tx.Sagas().Get(ctx, sagaID); err != nil {
			return nil, err
		}
		msgs, err := tx.Outbox().ListBySaga(ctx, sagaID.String())
		if err != nil {
			return nil, err
		}
		views := make([]*SagaEventView, 0, len(msgs))
		for _, m := range msgs {
			views = append(views, &SagaEventView{
				ID:        m.ID,
				Kind:      m.Kind,
				Topic:     m.Topic,
				Status:    m.Status,
				Attempts:  m.Attempts,
				LastError: m.LastError,
				CreatedAt: m.CreatedAt,
			})
		}
		return views, nil
	})
}

func toCheckoutView(inst *saga.Instance, holds []*reservation.Reservation) *CheckoutView {
	items := inst.Items()
	itemViews := make([]LineItemView, len(items))
	for i, it := range items {
		itemViews[i] = LineItemView{
			SKUCode:        it.SKUCode,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		}
	}
	holdViews := make([]ReservationView, len(holds))
	for i, r := range holds {
		holdViews[i] = ReservationView{
			ID:        r.ID(),
			SKUCode:   r.SKUCode(),
			Quantity:  r.Quantity(),
			Status:    r.Status().String(),
			ExpiresAt: r.ExpiresAt(),
			UpdatedAt: r.UpdatedAt(),
		}
	}
	return &CheckoutView{
		SagaID:            inst.ID(),
		UserID:            inst.UserID(),
		State:             inst.State().String(),
		Items:             itemViews,
		Reservations:      holdViews,
		SubtotalCents:     inst.SubtotalCents(),
		DiscountCents:     inst.DiscountCents(),
		TotalCents:        inst.TotalCents(),
		AppliedPromotions: inst.AppliedPromotions(),
		OrderID:           inst.OrderID(),
		FailureReason:     inst.FailureReason().String(),
		FailureDetail:     inst.FailureDetail(),
		StepSeq:           inst.StepSeq(),
		PaymentDeadline:   inst.PaymentDeadline(),
		CreatedAt:         inst.CreatedAt(),
		UpdatedAt:         inst.UpdatedAt(),
	}
}
