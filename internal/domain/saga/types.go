package saga

import (
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateStarted         State = "STARTED"
	StateReserving       State = "RESERVING"
	StateReserved        State = "RESERVED"
	StateAwaitingPayment State = "AWAITING_PAYMENT"
	StateCompensating    State = "COMPENSATING"
	StateCompleted       State = "COMPLETED"
	StateFailed          State = "FAILED"
)

func (s State) String() string {
	return string(s)
}

func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s State) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

var transitions = map[State][]State{
	StateStarted:         {StateReserving, StateFailed},
	StateReserving:       {StateReserved, StateFailed},
	StateReserved:        {StateAwaitingPayment, StateCompensating},
	StateAwaitingPayment: {StateCompleted, StateCompensating},
	StateCompensating:    {StateFailed},
	StateCompleted:       {},
	StateFailed:          {},
}

func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// FailureReason is the logical reason reported to the checkout caller.
type FailureReason string

const (
	ReasonNone                 FailureReason = ""
	ReasonInsufficientStock    FailureReason = "INSUFFICIENT_STOCK"
	ReasonSKUNotFound          FailureReason = "SKU_NOT_FOUND"
	ReasonConcurrencyExhausted FailureReason = "CONCURRENCY_EXHAUSTED"
	ReasonPromotionInvalid     FailureReason = "PROMOTION_INVALID"
	ReasonPaymentFailed        FailureReason = "PAYMENT_FAILED"
	ReasonPaymentTimeout       FailureReason = "PAYMENT_TIMEOUT"
	ReasonReservationExpired   FailureReason = "RESERVATION_EXPIRED"
	ReasonCancelled            FailureReason = "CANCELLED"
)

func (r FailureReason) String() string {
	return string(r)
}

type LineItem struct {
	SKUCode        string
	Quantity       int64
	UnitPriceCents int64
}

func (l LineItem) AmountCents() int64 {
	return l.Quantity * l.UnitPriceCents
}

// Transition is emitted after a state change has been persisted.
type Transition struct {
	SagaID  uuid.UUID
	UserID  string
	From    State
	To      State
	StepSeq int64
	Reason  FailureReason
	At      time.Time
}

type PaymentOutcome string

const (
	PaymentSucceeded PaymentOutcome = "SUCCEEDED"
	PaymentFailed    PaymentOutcome = "FAILED"
)

func (o PaymentOutcome) IsValid() bool {
	return o == PaymentSucceeded || o == PaymentFailed
}
