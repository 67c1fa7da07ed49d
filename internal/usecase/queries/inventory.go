package queries

//go:generate mockgen -source=$GOFILE -destination=../../../tests/mock/queries/inventory.go -package=queriesmock

import (
	"context"

	"checkout-saga/internal/domain/inventory"
	"checkout-saga/internal/usecase/shared"
)

const (
	DefaultHistoryLimit = 50
	MaxListLimit        = 200
)

type InventoryQueries interface {
	GetBySKU(ctx context.Context, sku string) (*InventoryView, error)
	List(ctx context.Context) ([]*InventoryView, error)
	History(ctx context.Context, sku string, limit int) ([]*InventoryLogView, error)
}

type inventoryQueriesImpl struct {
	uow shared.UnitOfWork
}

func NewInventoryQueries(uow shared.UnitOfWork) InventoryQueries {
	return &inventoryQueriesImpl{uow: uow}
}

func (q *inventoryQueriesImpl) GetBySKU(ctx context.Context, sku string) (*InventoryView, error) {
	return shared.ReadInTx(ctx, q.uow, func(ctx context.Context, tx shared.Tx) (*InventoryView, error) {
		rec, err := tx.Inventory().Get(ctx, sku)
		if err != nil {
			return nil, err
		}
		return toInventoryView(rec), nil
	})
}

func (q *inventoryQueriesImpl) List(ctx context.Context) ([]*InventoryView, error) {
	return shared.ReadInTx(ctx, q.uow, func(ctx context.Context, tx shared.Tx) ([]*InventoryView, error) {
		recs, err := tx.Inventory().List(ctx)
		if err != nil {
			return nil, err
		}
		views := make([]*InventoryView, len(recs))
		for i, rec := range recs {
			views[i] = toInventoryView(rec)
		}
		return views, nil
	})
}

// History returns the newest log entries first
func (q *inventoryQueriesImpl) History(ctx context.Context, sku string, limit int) ([]*InventoryLogView, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return shared.ReadInTx(ctx, q.uow, func(ctx context.Context, tx shared.Tx) ([]*InventoryLogView, error) {
		if _, err := tx.Inventory().Get(ctx, sku); err != nil {
			return nil, err
		}
		entries, err := tx.InventoryLogs().ListBySKU(ctx, sku, limit)
		if err != nil {
			return nil, err
		}
		views := make([]*InventoryLogView, len(entries))
		for i, e := range entries {
			views[i] = toInventoryLogView(e)
		}
		return views, nil
	})
}

func toInventoryView(rec *inventory.Record) *InventoryView {
	return &InventoryView{
		SKUCode:   rec.SKUCode,
		Total:     rec.Total,
		Available: rec.Available,
		Reserved:  rec.Reserved,
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt,
	}
}

func toInventoryLogView(e inventory.LogEntry) *InventoryLogView {
	return &InventoryLogView{
		ID:          e.ID,
		Operation:   string(e.Operation),
		Quantity:    e.Quantity,
		ReferenceID: e.ReferenceID,
		Operator:    e.Operator,
		Reason:      e.Reason,
		Available:   e.Available,
		Reserved:    e.Reserved,
		CreatedAt:   e.CreatedAt,
	}
}
