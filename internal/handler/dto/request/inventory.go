package request

import (
	"checkout-saga/internal/domain/saga"

	"github.com/google/uuid"
)

type ProvisionInventoryRequest struct {
	SKUCode       string `json:"skuCode" binding:"required,max=64"`
	TotalQuantity int64  `json:"totalQuantity" binding:"gte=0"`
	Operator      string `json:"operator" binding:"required,max=128"`
}

// Quantity is signed: positive restocks, negative writes off available stock.
type AdjustInventoryRequest struct {
	Quantity int64  `json:"quantity" binding:"required"`
	Reason   string `json:"reason" binding:"required,max=500"`
	Operator string `json:"operator" binding:"required,max=128"`
}

type DeductInventoryRequest struct {
	ReferenceID uuid.UUID         `json:"referenceId" binding:"required"`
	Items       []LineItemRequest `json:"items" binding:"required,min=1,max=100,dive"`
}

func (r DeductInventoryRequest) ToLineItems() ([]saga.LineItem, error) {
	return toLineItems(r.Items)
}
