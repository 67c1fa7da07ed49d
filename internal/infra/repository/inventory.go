package repository

import (
	"context"
	"fmt"
	"time"

	"checkout-saga/internal/domain/inventory"
	"checkout-saga/internal/infra"
	"checkout-saga/internal/infra/db"
	"checkout-saga/internal/pkg/errs"
	"checkout-saga/internal/pkg/pgconv"

	"github.com/jackc/pgx/v5"
)

const inventoryColumns = `sku_code, total_quantity, available_quantity, reserved_quantity, version, updated_at`

type InventoryRepository struct {
	db db.DBTX
}

func NewInventoryRepository(db db.DBTX) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) Get(ctx context.Context, sku string) (*inventory.Record, error) {
	row := r.db.QueryRow(ctx, `SELECT `+inventoryColumns+` FROM inventory WHERE sku_code = $1`, sku)
	rec, err := scanInventory(row)
	if err != nil {
		return nil, inventoryErr("failed to get inventory", err)
	}
	return rec, nil
}

func (r *InventoryRepository) List(ctx context.Context) ([]*inventory.Record, error) {
	rows, err := r.db.Query(ctx, `SELECT `+inventoryColumns+` FROM inventory ORDER BY sku_code`)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to list inventory", err)
	}
	defer rows.Close()

	var out []*inventory.Record
	for rows.Next() {
		rec, err := scanInventory(rows)
		if err != nil {
			return nil, infra.WrapRepoErr("failed to scan inventory", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr("failed to iterate inventory", err)
	}
	return out, nil
}

func (r *InventoryRepository) Create(ctx context.Context, rec *inventory.Record) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO inventory (sku_code, total_quantity, available_quantity, reserved_quantity, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.SKUCode, rec.Total, rec.Available, rec.Reserved, rec.Version, rec.UpdatedAt)
	if err != nil {
		return infra.WrapRepoErr("failed to create inventory", err)
	}
	return nil
}

// TryApply is a compare-and-swap on the version column. When no row matches,
// a second read tells a missing SKU apart from a lost race.
func (r *InventoryRepository) TryApply(ctx context.Context, sku string, version int64, d inventory.Delta, now time.Time) (*inventory.Record, error) {
	e := d.Effect()
	row := r.db.QueryRow(ctx, `
		UPDATE inventory
		SET total_quantity     = total_quantity + $3,
		    available_quantity = available_quantity + $4,
		    reserved_quantity  = reserved_quantity + $5,
		    version            = version + 1,
		    updated_at         = $6
		WHERE sku_code = $1 AND version = $2
		RETURNING `+inventoryColumns,
		sku, version, e.Total, e.Available, e.Reserved, now)
	rec, err := scanInventory(row)
	if err == nil {
		return rec, nil
	}
	if !pgconv.IsNoRows(err) {
		return nil, infra.WrapRepoErr("failed to apply inventory delta", err)
	}

	var current int64
	err = r.db.QueryRow(ctx, `SELECT version FROM inventory WHERE sku_code = $1`, sku).Scan(&current)
	if err != nil {
		return nil, inventoryErr("failed to read inventory version", err)
	}
	return nil, errs.Wrapf(errs.ErrVersionConflict, "sku=%s expected=%d actual=%d", sku, version, current)
}

func (r *InventoryRepository) ApplyLocked(ctx context.Context, sku string, d inventory.Delta, lockTimeout time.Duration, now time.Time) (*inventory.Record, error) {
	if lockTimeout > 0 {
		if _, err := r.db.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, fmt.Sprintf("%dms", lockTimeout.Milliseconds())); err != nil {
			return nil, infra.WrapRepoErr("failed to set lock timeout", err)
		}
	}

	row := r.db.QueryRow(ctx, `SELECT `+inventoryColumns+` FROM inventory WHERE sku_code = $1 FOR UPDATE`, sku)
	current, err := scanInventory(row)
	if err != nil {
		return nil, inventoryErr("failed to lock inventory", err)
	}

	next, err := current.Apply(d)
	if err != nil {
		return nil, err
	}

	row = r.db.QueryRow(ctx, `
		UPDATE inventory
		SET total_quantity = $2, available_quantity = $3, reserved_quantity = $4,
		    version = version + 1, updated_at = $5
		WHERE sku_code = $1
		RETURNING `+inventoryColumns,
		sku, next.Total, next.Available, next.Reserved, now)
	rec, err := scanInventory(row)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to write locked inventory", err)
	}
	return rec, nil
}

func scanInventory(row pgx.Row) (*inventory.Record, error) {
	var rec inventory.Record
	if err := row.Scan(&rec.SKUCode, &rec.Total, &rec.Available, &rec.Reserved, &rec.Version, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// inventoryErr marks not-found and lock-timeout failures with the sentinels the
// reservation manager branches on.
func inventoryErr(msg string, err error) error {
	wrapped := infra.WrapRepoErr(msg, err)
	switch {
	case infra.IsKind(wrapped, infra.KindNotFound):
		return errs.Mark(wrapped, errs.ErrSKUNotFound)
	case infra.IsKind(wrapped, infra.KindLockTimeout):
		return errs.Mark(wrapped, errs.ErrLockTimeout)
	default:
		return wrapped
	}
}
