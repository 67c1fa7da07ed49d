package response

import (
	"time"

	"checkout-saga/internal/domain/inventory"
	"checkout-saga/internal/usecase/queries"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

type InventoryResponse struct {
	SKUCode   string    `json:"skuCode"`
	Total     int64     `json:"totalQuantity"`
	Available int64     `json:"availableQuantity"`
	Reserved  int64     `json:"reservedQuantity"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type InventoryLogResponse struct {
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

type DeductResponse struct {
	ReferenceID    uuid.UUID   `json:"referenceId"`
	ReservationIDs []uuid.UUID `json:"reservationIds"`
}

func FromInventoryView(v *queries.InventoryView) *InventoryResponse {
	var res InventoryResponse
	_ = copier.Copy(&res, v)
	return &res
}

func FromInventoryViews(vs []*queries.InventoryView) []*InventoryResponse {
	res := make([]*InventoryResponse, 0, len(vs))
	for _, v := range vs {
		res = append(res, FromInventoryView(v))
	}
	return res
}

func FromInventoryRecord(rec *inventory.Record) *InventoryResponse {
	var res InventoryResponse
	_ = copier.Copy(&res, rec)
	return &res
}

func FromInventoryLogViews(vs []*queries.InventoryLogView) []*InventoryLogResponse {
	res := make([]*InventoryLogResponse, 0, len(vs))
	_ = copier.Copy(&res, &vs)
	return res
}
