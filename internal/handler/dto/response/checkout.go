package response

import (
	"time"

	"checkout-saga/internal/usecase/queries"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

type LineItemResponse struct {
	SKUCode        string `json:"skuCode"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

type ReservationResponse struct {
	ID        uuid.UUID  `json:"id"`
	SKUCode   string     `json:"skuCode"`
	Quantity  int64      `json:"quantity"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type CheckoutResponse struct {
	SagaID            uuid.UUID             `json:"sagaId"`
	UserID            string                `json:"userId"`
	State             string                `json:"state"`
	Items             []LineItemResponse    `json:"items"`
	Reservations      []ReservationResponse `json:"reservations"`
	SubtotalCents     int64                 `json:"subtotalCents"`
	DiscountCents     int64                 `json:"discountCents"`
	TotalCents        int64                 `json:"totalCents"`
	AppliedPromotions []string              `json:"appliedPromotions,omitempty"`
	OrderID           *uuid.UUID            `json:"orderId,omitempty"`
	FailureReason     string                `json:"failureReason,omitempty"`
	FailureDetail     string                `json:"failureDetail,omitempty"`
	StepSeq           int64                 `json:"stepSeq"`
	PaymentDeadline   *time.Time            `json:"paymentDeadline,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}

type SagaEventResponse struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	Topic     string    `json:"topic"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// PaymentCallbackResponse acknowledges a callback, including stale ones.
type PaymentCallbackResponse struct {
	SagaID  uuid.UUID `json:"sagaId"`
	State   string    `json:"state"`
	StepSeq int64     `json:"stepSeq"`
}

func FromCheckoutView(v *queries.CheckoutView) *CheckoutResponse {
	var res CheckoutResponse
	_ = copier.Copy(&res, v)
	return &res
}

func FromSagaEventViews(vs []*queries.SagaEventView) []*SagaEventResponse {
	res := make([]*SagaEventResponse, 0, len(vs))
	_ = copier.Copy(&res, &vs)
	return res
}
