package repository

import (
	"context"
	"time"

	"checkout-saga/internal/domain/inventory"
	"checkout-saga/internal/infra"
	"checkout-saga/internal/infra/db"

	"github.com/google/uuid"
)

type InventoryLogRepository struct {
	db db.DBTX
}

func NewInventoryLogRepository(db db.DBTX) *InventoryLogRepository {
	return &InventoryLogRepository{db: db}
}

func (r *InventoryLogRepository) Append(ctx context.Context, e inventory.LogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO inventory_logs (id, sku_code, operation, quantity, reference_id, operator, reason, available, reserved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.SKUCode, e.Operation.String(), e.Quantity, e.ReferenceID, e.Operator, e.Reason,
		e.Available, e.Reserved, e.CreatedAt)
	if err != nil {
		return infra.WrapRepoErr("failed to append inventory log", err)
	}
	return nil
}

func (r *InventoryLogRepository) ListBySKU(ctx context.Context, sku string, limit int) ([]inventory.LogEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, sku_code, operation, quantity, reference_id, operator, reason, available, reserved, created_at
		FROM inventory_logs
		WHERE sku_code = $1
		ORDER BY created_at DESC
		LIMIT $2`, sku, limit)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to list inventory logs", err)
	}
	defer rows.Close()

	var out []inventory.LogEntry
	for rows.Next() {
		var (
			e  inventory.LogEntry
			op string
		)
		if err := rows.Scan(&e.ID, &e.SKUCode, &op, &e.Quantity, &e.ReferenceID, &e.Operator, &e.Reason,
			&e.Available, &e.Reserved, &e.CreatedAt); err != nil {
			return nil, infra.WrapRepoErr("failed to scan inventory log", err)
		}
		e.Operation = inventory.Operation(op)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr("failed to iterate inventory logs", err)
	}
	return out, nil
}

type SnapshotRepository struct {
	db db.DBTX
}

func NewSnapshotRepository(db db.DBTX) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) SnapshotAll(ctx context.Context, takenAt time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO inventory_snapshots (sku_code, total_quantity, available_quantity, reserved_quantity, version, taken_at)
		SELECT sku_code, total_quantity, available_quantity, reserved_quantity, version, $1
		FROM inventory
		ON CONFLICT (sku_code, taken_at) DO NOTHING`, takenAt)
	if err != nil {
		return 0, infra.WrapRepoErr("failed to snapshot inventory", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SnapshotRepository) ListByTakenAt(ctx context.Context, takenAt time.Time) ([]inventory.Snapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT sku_code, total_quantity, available_quantity, reserved_quantity, version, taken_at
		FROM inventory_snapshots
		WHERE taken_at = $1
		ORDER BY sku_code`, takenAt)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to list inventory snapshots", err)
	}
	defer rows.Close()

	var out []inventory.Snapshot
	for rows.Next() {
		var s inventory.Snapshot
		if err := rows.Scan(&s.SKUCode, &s.Total, &s.Available, &s.Reserved, &s.Version, &s.TakenAt); err != nil {
			return nil, infra.WrapRepoErr("failed to scan inventory snapshot", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr("failed to iterate inventory snapshots", err)
	}
	return out, nil
}
