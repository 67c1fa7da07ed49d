package repository

import (
	"context"
	"encoding/json"
	"time"

	"checkout-saga/internal/domain/saga"
	"checkout-saga/internal/infra"
	"checkout-saga/internal/infra/db"
	"checkout-saga/internal/pkg/errs"
	"checkout-saga/internal/pkg/pgconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const sagaColumns = `id, user_id, state, items, reservation_ids, subtotal_cents, discount_cents, total_cents,
	applied_promos, order_id, failure_reason, failure_detail, step_seq, payment_deadline, request_hash,
	created_at, updated_at`

type lineItemRow struct {
	SKUCode        string `json:"sku_code"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type SagaRepository struct {
	db db.DBTX
}

func NewSagaRepository(db db.DBTX) *SagaRepository {
	return &SagaRepository{db: db}
}

func (r *SagaRepository) Create(ctx context.Context, inst *saga.Instance) error {
	s := inst.Snapshot()
	items, err := encodeItems(s.Items)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO sagas (`+sagaColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		s.ID, s.UserID, s.State.String(), items, nonNilUUIDs(s.ReservationIDs),
		s.SubtotalCents, s.DiscountCents, s.TotalCents, nonNilStrings(s.AppliedPromos),
		pgconv.UUIDPtrToPgtype(s.OrderID), s.FailureReason.String(), s.FailureDetail, s.StepSeq,
		pgconv.TimePtrToPgtype(s.PaymentDeadline), s.RequestHash, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return infra.WrapRepoErr("failed to create saga", err)
	}
	return nil
}

// Get also looks in the archive so a replayed checkout still resolves.
func (r *SagaRepository) Get(ctx context.Context, id uuid.UUID) (*saga.Instance, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+sagaColumns+` FROM sagas WHERE id = $1
		UNION ALL
		SELECT `+sagaColumns+` FROM saga_archive WHERE id = $1
		LIMIT 1`, id)
	inst, err := scanSaga(row)
	if err != nil {
		wrapped := infra.WrapRepoErr("failed to get saga", err)
		if infra.IsKind(wrapped, infra.KindNotFound) {
			return nil, errs.Mark(wrapped, errs.ErrSagaNotFound)
		}
		return nil, wrapped
	}
	return inst, nil
}

func (r *SagaRepository) Update(ctx context.Context, inst *saga.Instance, expectedStepSeq int64) error {
	s := inst.Snapshot()
	tag, err := r.db.Exec(ctx, `
		UPDATE sagas
		SET state = $3, reservation_ids = $4, subtotal_cents = $5, discount_cents = $6, total_cents = $7,
		    applied_promos = $8, order_id = $9, failure_reason = $10, failure_detail = $11,
		    step_seq = $12, payment_deadline = $13, updated_at = $14
		WHERE id = $1 AND step_seq = $2`,
		s.ID, expectedStepSeq, s.State.String(), nonNilUUIDs(s.ReservationIDs),
		s.SubtotalCents, s.DiscountCents, s.TotalCents, nonNilStrings(s.AppliedPromos),
		pgconv.UUIDPtrToPgtype(s.OrderID), s.FailureReason.String(), s.FailureDetail,
		s.StepSeq, pgconv.TimePtrToPgtype(s.PaymentDeadline), s.UpdatedAt)
	if err != nil {
		return infra.WrapRepoErr("failed to update saga", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current int64
	if err := r.db.QueryRow(ctx, `SELECT step_seq FROM sagas WHERE id = $1`, s.ID).Scan(&current); err != nil {
		wrapped := infra.WrapRepoErr("failed to read saga step", err)
		if infra.IsKind(wrapped, infra.KindNotFound) {
			return errs.Mark(wrapped, errs.ErrSagaNotFound)
		}
		return wrapped
	}
	return errs.Wrapf(errs.ErrStaleStep, "saga=%s expected=%d actual=%d", s.ID, expectedStepSeq, current)
}

func (r *SagaRepository) ListOverduePayments(ctx context.Context, now time.Time, limit int) ([]*saga.Instance, error) {
	return r.list(ctx, `
		SELECT `+sagaColumns+` FROM sagas
		WHERE state = 'AWAITING_PAYMENT' AND payment_deadline <= $1
		ORDER BY payment_deadline
		LIMIT $2`, now, limit)
}

func (r *SagaRepository) ListStalled(ctx context.Context, states []saga.State, updatedBefore time.Time, limit int) ([]*saga.Instance, error) {
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = s.String()
	}
	return r.list(ctx, `
		SELECT `+sagaColumns+` FROM sagas
		WHERE state = ANY($1) AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3`, names, updatedBefore, limit)
}

func (r *SagaRepository) ArchiveTerminal(ctx context.Context, updatedBefore time.Time, limit int) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		WITH moved AS (
			DELETE FROM sagas
			WHERE id IN (
				SELECT id FROM sagas
				WHERE state IN ('COMPLETED', 'FAILED') AND updated_at < $1
				ORDER BY updated_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING *
		)
		INSERT INTO saga_archive SELECT * FROM moved`, updatedBefore, limit)
	if err != nil {
		return 0, infra.WrapRepoErr("failed to archive sagas", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SagaRepository) list(ctx context.Context, query string, args ...any) ([]*saga.Instance, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to list sagas", err)
	}
	defer rows.Close()

	var out []*saga.Instance
	for rows.Next() {
		inst, err := scanSaga(rows)
		if err != nil {
			return nil, infra.WrapRepoErr("failed to scan saga", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr("failed to iterate sagas", err)
	}
	return out, nil
}

func scanSaga(row pgx.Row) (*saga.Instance, error) {
	var (
		s        saga.Snapshot
		state    string
		reason   string
		items    []byte
		orderID  pgtype.UUID
		deadline pgtype.Timestamptz
	)
	err := row.Scan(&s.ID, &s.UserID, &state, &items, &s.ReservationIDs, &s.SubtotalCents, &s.DiscountCents,
		&s.TotalCents, &s.AppliedPromos, &orderID, &reason, &s.FailureDetail, &s.StepSeq, &deadline,
		&s.RequestHash, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.State = saga.State(state)
	s.FailureReason = saga.FailureReason(reason)
	s.OrderID = pgconv.UUIDPtrFromPgtype(orderID)
	s.PaymentDeadline = pgconv.TimePtrFromPgtype(deadline)
	if s.Items, err = decodeItems(items); err != nil {
		return nil, err
	}
	return saga.Reconstruct(s), nil
}

func encodeItems(items []saga.LineItem) ([]byte, error) {
	rows := make([]lineItemRow, len(items))
	for i, it := range items {
		rows[i] = lineItemRow{SKUCode: it.SKUCode, Quantity: it.Quantity, UnitPriceCents: it.UnitPriceCents}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return nil, errs.Wrap(err, "encode saga items")
	}
	return b, nil
}

func decodeItems(b []byte) ([]saga.LineItem, error) {
	var rows []lineItemRow
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, errs.Wrap(err, "decode saga items")
	}
	items := make([]saga.LineItem, len(rows))
	for i, r := range rows {
		items[i] = saga.LineItem{SKUCode: r.SKUCode, Quantity: r.Quantity, UnitPriceCents: r.UnitPriceCents}
	}
	return items, nil
}

func nonNilUUIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
