//go:build unit || e2e

package builder

import (
	"time"

	"checkout-saga/internal/domain/inventory"
	reqdto "checkout-saga/internal/handler/dto/request"
	"checkout-saga/internal/usecase/queries"
)

type InventoryBuilder struct {
	SKUCode   string
	Total     int64
	Reserved  int64
	Operator  string
	UpdatedAt time.Time
}

func NewInventoryBuilder() *InventoryBuilder {
	return &InventoryBuilder{
		SKUCode:   "SKU-APPLE",
		Total:     10,
		Operator:  "ops@example.com",
		UpdatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (b *InventoryBuilder) WithSKU(sku string) *InventoryBuilder {
	b.SKUCode = sku
	return b
}

func (b *InventoryBuilder) WithTotal(total int64) *InventoryBuilder {
	b.Total = total
	return b
}

func (b *InventoryBuilder) WithReserved(reserved int64) *InventoryBuilder {
	b.Reserved = reserved
	return b
}

func (b *InventoryBuilder) BuildRecord() *inventory.Record {
	return &inventory.Record{
		SKUCode:   b.SKUCode,
		Total:     b.Total,
		Available: b.Total - b.Reserved,
		Reserved:  b.Reserved,
		Version:   1,
		UpdatedAt: b.UpdatedAt,
	}
}

func (b *InventoryBuilder) BuildView() *queries.InventoryView {
	return &queries.InventoryView{
		SKUCode:   b.SKUCode,
		Total:     b.Total,
		Available: b.Total - b.Reserved,
		Reserved:  b.Reserved,
		Version:   1,
		UpdatedAt: b.UpdatedAt,
	}
}

func (b *InventoryBuilder) BuildProvisionRequestDTO() reqdto.ProvisionInventoryRequest {
	return reqdto.ProvisionInventoryRequest{
		SKUCode:       b.SKUCode,
		TotalQuantity: b.Total,
		Operator:      b.Operator,
	}
}
