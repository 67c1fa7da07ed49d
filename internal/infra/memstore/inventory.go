package memstore

import (
	"context"
	"sort"
	"time"

	"checkout-saga/internal/domain/inventory"
	"checkout-saga/internal/infra"
	"checkout-saga/internal/pkg/errs"
)

type inventoryRepo struct {
	tx *tx
}

func (r *inventoryRepo) Get(_ context.Context, sku string) (*inventory.Record, error) {
	rec, ok := r.tx.readInventory(sku)
	if !ok {
		return nil, skuNotFound(sku)
	}
	return &rec, nil
}

func (r *inventoryRepo) List(_ context.Context) ([]*inventory.Record, error) {
	seen := make(map[string]struct{})
	r.tx.store.mu.Lock()
	for sku := range r.tx.store.inventory {
		seen[sku] = struct{}{}
	}
	r.tx.store.mu.Unlock()
	for sku := range r.tx.inventory {
		seen[sku] = struct{}{}
	}
	skus := make([]string, 0, len(seen))
	for sku := range seen {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	out := make([]*inventory.Record, 0, len(skus))
	for _, sku := range skus {
		if rec, ok := r.tx.readInventory(sku); ok {
			out = append(out, &rec)
		}
	}
	return out, nil
}

func (r *inventoryRepo) Create(ctx context.Context, rec *inventory.Record) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if err := rec.Check(); err != nil {
		return infra.NewRepoErr(infra.KindCheckViolated, err.Error())
	}
	if err := r.tx.lock(ctx, inventoryKey(rec.SKUCode), 0); err != nil {
		return err
	}
	if _, exists := r.tx.readInventory(rec.SKUCode); exists {
		return infra.NewRepoErr(infra.KindDuplicateKey, "inventory already exists for sku "+rec.SKUCode)
	}
	r.tx.inventory[rec.SKUCode] = *rec
	return nil
}

func (r *inventoryRepo) TryApply(ctx context.Context, sku string, version int64, d inventory.Delta, now time.Time) (*inventory.Record, error) {
	if err := r.tx.writable(); err != nil {
		return nil, err
	}
	// An UPDATE waits for the row lock, then re-reads the committed row.
	if err := r.tx.lock(ctx, inventoryKey(sku), 0); err != nil {
		return nil, err
	}
	current, ok := r.tx.readInventory(sku)
	if !ok {
		return nil, skuNotFound(sku)
	}
	if current.Version != version {
		return nil, errs.Wrapf(errs.ErrVersionConflict, "sku=%s expected=%d actual=%d", sku, version, current.Version)
	}
	next, err := current.Apply(d)
	if err != nil {
		// the CHECK constraints on the table reject the same rows
		return nil, infra.NewRepoErr(infra.KindCheckViolated, err.Error())
	}
	return r.store(next, now), nil
}

func (r *inventoryRepo) ApplyLocked(ctx context.Context, sku string, d inventory.Delta, lockTimeout time.Duration, now time.Time) (*inventory.Record, error) {
	if err := r.tx.writable(); err != nil {
		return nil, err
	}
	if err := r.tx.lock(ctx, inventoryKey(sku), lockTimeout); err != nil {
		return nil, err
	}
	current, ok := r.tx.readInventory(sku)
	if !ok {
		return nil, skuNotFound(sku)
	}
	next, err := current.Apply(d)
	if err != nil {
		return nil, err
	}
	return r.store(next, now), nil
}

func (r *inventoryRepo) store(next inventory.Record, now time.Time) *inventory.Record {
	next.Version++
	next.UpdatedAt = now
	r.tx.inventory[next.SKUCode] = next
	out := next
	return &out
}

func skuNotFound(sku string) error {
	return errs.Mark(infra.NewRepoErr(infra.KindNotFound, "inventory not found for sku "+sku), errs.ErrSKUNotFound)
}
