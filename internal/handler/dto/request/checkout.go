package request

import (
	"checkout-saga/internal/domain/saga"

	"github.com/jinzhu/copier"
)

type LineItemRequest struct {
	SKUCode        string `json:"skuCode" binding:"required,max=64"`
	Quantity       int64  `json:"quantity" binding:"required,gt=0"`
	UnitPriceCents int64  `json:"unitPriceCents" binding:"gte=0"`
}

type CreateCheckoutRequest struct {
	UserID string            `json:"userId" binding:"required,max=128"`
	Items  []LineItemRequest `json:"items" binding:"required,min=1,max=100,dive"`
}

func (r CreateCheckoutRequest) ToLineItems() ([]saga.LineItem, error) {
	return toLineItems(r.Items)
}

func toLineItems(in []LineItemRequest) ([]saga.LineItem, error) {
	items := make([]saga.LineItem, 0, len(in))
	if err := copier.Copy(&items, &in); err != nil {
		return nil, err
	}
	return items, nil
}
