//go:build unit || e2e

package builder

import (
	"time"

	"checkout-saga/internal/domain/saga"
	reqdto "checkout-saga/internal/handler/dto/request"
	"checkout-saga/internal/usecase/commands"
	"checkout-saga/internal/usecase/queries"

	"github.com/google/uuid"
)

type CheckoutBuilder struct {
	SagaID    uuid.UUID
	UserID    string
	Items     []saga.LineItem
	CreatedAt time.Time
}

func NewCheckoutBuilder() *CheckoutBuilder {
	return &CheckoutBuilder{
		SagaID: uuid.New(),
		UserID: "user-001",
		Items: []saga.LineItem{
			{SKUCode: "SKU-APPLE", Quantity: 2, UnitPriceCents: 150},
			{SKUCode: "SKU-BANANA", Quantity: 1, UnitPriceCents: 300},
		},
		CreatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (b *CheckoutBuilder) With(mutate func(*CheckoutBuilder)) *CheckoutBuilder {
	mutate(b)
	return b
}

func (b *CheckoutBuilder) WithSagaID(id uuid.UUID) *CheckoutBuilder {
	b.SagaID = id
	return b
}

func (b *CheckoutBuilder) WithUserID(userID string) *CheckoutBuilder {
	b.UserID = userID
	return b
}

func (b *CheckoutBuilder) WithItems(items ...saga.LineItem) *CheckoutBuilder {
	b.Items = items
	return b
}

// Build methods
func (b *CheckoutBuilder) BuildDomain() (*saga.Instance, error) {
	return saga.New(b.SagaID, b.UserID, b.Items, b.CreatedAt)
}

func (b *CheckoutBuilder) BuildCommand() commands.CheckoutCommand {
	return commands.CheckoutCommand{
		SagaID: b.SagaID,
		UserID: b.UserID,
		Items:  append([]saga.LineItem(nil), b.Items...),
	}
}

func (b *CheckoutBuilder) BuildCreateRequestDTO() reqdto.CreateCheckoutRequest {
	items := make([]reqdto.LineItemRequest, 0, len(b.Items))
	for _, it := range b.Items {
		items = append(items, reqdto.LineItemRequest{
			SKUCode:        it.SKUCode,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		})
	}
	return reqdto.CreateCheckoutRequest{UserID: b.UserID, Items: items}
}

func (b *CheckoutBuilder) BuildView(state saga.State) *queries.CheckoutView {
	var subtotal int64
	items := make([]queries.LineItemView, 0, len(b.Items))
	for _, it := range b.Items {
		subtotal += it.AmountCents()
		items = append(items, queries.LineItemView{
			SKUCode:        it.SKUCode,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		})
	}
	return &queries.CheckoutView{
		SagaID:        b.SagaID,
		UserID:        b.UserID,
		State:         state.String(),
		Items:         items,
		SubtotalCents: subtotal,
		TotalCents:    subtotal,
		StepSeq:       1,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.CreatedAt,
	}
}

// NewSagaEventViews builds one sent outbox view per kind, oldest first.
func NewSagaEventViews(kinds ...string) []*queries.SagaEventView {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	views := make([]*queries.SagaEventView, 0, len(kinds))
	for i, kind := range kinds {
		views = append(views, &queries.SagaEventView{
			ID:        uuid.New(),
			Kind:      kind,
			Topic:     "checkout.saga.events",
			Status:    "sent",
			Attempts:  1,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	return views
}
