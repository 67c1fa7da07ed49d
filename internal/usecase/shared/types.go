package shared

import (
	"context"

	"checkout-saga/internal/domain/saga"

	"github.com/google/uuid"
)

type PromotionRequest struct {
	SagaID        uuid.UUID
	UserID        string
	Items         []saga.LineItem
	SubtotalCents int64
}

type PromotionResult struct {
	DiscountCents int64
	Applied       []string
}

// Promotions is queried synchronously before the payment amount is fixed.
// Any error fails the saga at RESERVED.
type Promotions interface {
	Evaluate(ctx context.Context, req PromotionRequest) (PromotionResult, error)
}

// Deduplicator short-circuits redelivered inbound messages before they reach
// the step_seq fence.
type Deduplicator interface {
	// Claim returns false when key was already claimed.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so a failed delivery can be processed again.
	Release(ctx context.Context, key string) error
}

type Publisher interface {
	Publish(ctx context.Context, msg OutboxMessage) error
}

// TransitionNotifier is the event relay's synchronous side: handlers are
// registered explicitly and run after each persisted transition.
type TransitionNotifier interface {
	Notify(ctx context.Context, t saga.Transition)
}

type LedgerObserver interface {
	ObserveConflict(sku string)
	ObservePessimistic(sku string)
	ObserveExhausted(sku string)
}

type NopLedgerObserver struct{}

func (NopLedgerObserver) ObserveConflict(string)    {}
func (NopLedgerObserver) ObservePessimistic(string) {}
func (NopLedgerObserver) ObserveExhausted(string)   {}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, saga.Transition) {}
