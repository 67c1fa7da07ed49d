package commands

import (
	"encoding/json"
	"strconv"
	"time"

	"checkout-saga/internal/domain/inventory"
	"checkout-saga/internal/domain/saga"
	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/pkg/errs"
	"checkout-saga/internal/usecase/shared"

	"github.com/google/uuid"
)

// Outbox message kinds.
const (
	KindPaymentRequested  = "payment.requested"
	KindSagaCompleted     = "saga.completed"
	KindSagaFailed        = "saga.failed"
	KindInventoryChanged  = "inventory.changed"
	KindInventoryLowStock = "inventory.low_stock"
)

type Topics struct {
	PaymentRequest string
	SagaEvents     string
	InventoryEvent string
}

func TopicsFromConfig(cfg config.KafkaConfig) Topics {
	return Topics{
		PaymentRequest: cfg.PaymentRequestTopic,
		SagaEvents:     cfg.SagaEventTopic,
		InventoryEvent: cfg.InventoryEventTopic,
	}
}

// PaymentRequestedEvent is sent at most once per (sagaId, stepSeq).
type PaymentRequestedEvent struct {
	SagaID         uuid.UUID   `json:"sagaId"`
	StepSeq        int64       `json:"stepSeq"`
	UserID         string      `json:"userId"`
	TotalAmount    int64       `json:"totalAmount"`
	ReservationIDs []uuid.UUID `json:"reservationIds"`
	Deadline       time.Time   `json:"deadline"`
}

// PaymentCallback is the inbound payment result. StepSeq must echo the
// value carried by the payment request.
type PaymentCallback struct {
	SagaID  uuid.UUID           `json:"sagaId"`
	StepSeq int64               `json:"stepSeq"`
	Outcome saga.PaymentOutcome `json:"outcome"`
	Reason  string              `json:"reason,omitempty"`
}

// DedupKey is shared by every redelivery of the same callback.
func (c PaymentCallback) DedupKey() string {
	return "payment-callback:" + c.SagaID.String() + ":" + strconv.FormatInt(c.StepSeq, 10) + ":" + string(c.Outcome)
}

func (c PaymentCallback) Validate() error {
	if c.SagaID == uuid.Nil {
		return errs.Wrap(errs.ErrInvalidCheckout, "callback sagaId is required")
	}
	if c.StepSeq <= 0 {
		return errs.Wrap(errs.ErrInvalidCheckout, "callback stepSeq must be positive")
	}
	if !c.Outcome.IsValid() {
		return errs.Wrapf(errs.ErrInvalidCheckout, "unknown payment outcome %q", c.Outcome)
	}
	return nil
}

type SagaOutcomeEvent struct {
	SagaID      uuid.UUID  `json:"sagaId"`
	UserID      string     `json:"userId"`
	State       saga.State `json:"state"`
	StepSeq     int64      `json:"stepSeq"`
	Reason      string     `json:"reason,omitempty"`
	OrderID     *uuid.UUID `json:"orderId,omitempty"`
	TotalAmount int64      `json:"totalAmount"`
	At          time.Time  `json:"at"`
}

type InventoryChangedEvent struct {
	SKUCode     string              `json:"skuCode"`
	Operation   inventory.Operation `json:"operation"`
	Quantity    int64               `json:"quantity"`
	Total       int64               `json:"totalQuantity"`
	Available   int64               `json:"availableQuantity"`
	Reserved    int64               `json:"reservedQuantity"`
	Version     int64               `json:"version"`
	ReferenceID string              `json:"referenceId,omitempty"`
	At          time.Time           `json:"at"`
}

func newOutboxMessage(kind, topic, key string, payload any, now time.Time) (shared.OutboxMessage, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return shared.OutboxMessage{}, errs.Wrapf(err, "encode %s payload", kind)
	}
	return shared.OutboxMessage{
		ID:        uuid.New(),
		Kind:      kind,
		Topic:     topic,
		Key:       key,
		Payload:   b,
		Headers:   map[string]string{"kind": kind},
		Status:    shared.OutboxStatusQueued,
		RunAt:     now,
		CreatedAt: now,
	}, nil
}
