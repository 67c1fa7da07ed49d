package request

import (
	"checkout-saga/internal/domain/saga"
	"checkout-saga/internal/usecase/commands"

	"github.com/google/uuid"
)

type PaymentCallbackRequest struct {
	SagaID  uuid.UUID `json:"sagaId" binding:"required"`
	StepSeq int64     `json:"stepSeq" binding:"required,gt=0"`
	Outcome string    `json:"outcome" binding:"required,oneof=SUCCEEDED FAILED"`
	Reason  string    `json:"reason,omitempty" binding:"max=500"`
}

func (r PaymentCallbackRequest) ToCommand() commands.PaymentCallback {
	return commands.PaymentCallback{
		SagaID:  r.SagaID,
		StepSeq: r.StepSeq,
		Outcome: saga.PaymentOutcome(r.Outcome),
		Reason:  r.Reason,
	}
}
