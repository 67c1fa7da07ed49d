package queries

import (
	"time"

	"github.com/google/uuid"
)

// CheckoutView represents read-optimized saga data
type CheckoutView struct {
	SagaID            uuid.UUID         `json:"sagaId"`
	UserID            string            `json:"userId"`
	State             string            `json:"state"`
	Items             []LineItemView    `json:"items"`
	Reservations      []ReservationView `json:"reservations"`
	SubtotalCents     int64             `json:"subtotalCents"`
	DiscountCents     int64             `json:"discountCents"`
	TotalCents        int64             `json:"totalCents"`
	AppliedPromotions []string          `json:"appliedPromotions,omitempty"`
	OrderID           *uuid.UUID        `json:"orderId,omitempty"`
	FailureReason     string            `json:"failureReason,omitempty"`
	FailureDetail     string            `json:"failureDetail,omitempty"`
	StepSeq           int64             `json:"stepSeq"`
	PaymentDeadline   *time.Time        `json:"paymentDeadline,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

type LineItemView struct {
	SKUCode        string `json:"skuCode"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

type ReservationView struct {
	ID        uuid.UUID  `json:"id"`
	SKUCode   string     `json:"skuCode"`
	Quantity  int64      `json:"quantity"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// SagaEventView is one outbox message emitted by a saga
type SagaEventView struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	Topic     string    `json:"topic"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// InventoryView represents read-optimized ledger data
type InventoryView struct {
	SKUCode   string    `json:"skuCode"`
	Total     int64     `json:"totalQuantity"`
	Available int64     `json:"availableQuantity"`
	Reserved  int64     `json:"reservedQuantity"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type InventoryLogView struct {
	ID          uuid.UUID `json:"id"`
	Operation   string    `json:"operation"`
	Quantity    int64     `json:"quantity"`
	ReferenceID string    `json:"referenceId,omitempty"`
	Operator    string    `json:"operator"`
	Reason      string    `json:"reason,omitempty"`
	Available   int64     `json:"availableQuantity"`
	Reserved    int64     `json:"reservedQuantity"`
	CreatedAt   time.Time `json:"createdAt"`
}
