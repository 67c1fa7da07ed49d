package repository

import (
	"context"
	"time"

	"checkout-saga/internal/domain/reservation"
	"checkout-saga/internal/infra"
	"checkout-saga/internal/infra/db"
	"checkout-saga/internal/pkg/errs"
	"checkout-saga/internal/pkg/pgconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const reservationColumns = `id, saga_id, sku_code, quantity, status, created_at, expires_at, updated_at`

type ReservationRepository struct {
	db db.DBTX
}

func NewReservationRepository(db db.DBTX) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Insert(ctx context.Context, res *reservation.Reservation) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.ID(), res.SagaID(), res.SKUCode(), res.Quantity(), res.Status().String(),
		res.CreatedAt(), pgconv.TimePtrToPgtype(res.ExpiresAt()), res.UpdatedAt())
	if err != nil {
		return infra.WrapRepoErr("failed to insert reservation", err)
	}
	return nil
}

func (r *ReservationRepository) Get(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	return r.get(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
}

func (r *ReservationRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	return r.get(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id)
}

func (r *ReservationRepository) get(ctx context.Context, query string, id uuid.UUID) (*reservation.Reservation, error) {
	res, err := scanReservation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		wrapped := infra.WrapRepoErr("failed to get reservation", err)
		if infra.IsKind(wrapped, infra.KindNotFound) {
			return nil, errs.Mark(wrapped, errs.ErrReservationNotFound)
		}
		return nil, wrapped
	}
	return res, nil
}

func (r *ReservationRepository) UpdateStatus(ctx context.Context, res *reservation.Reservation, from reservation.Status) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE reservations SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4`,
		res.ID(), res.Status().String(), res.UpdatedAt(), from.String())
	if err != nil {
		return infra.WrapRepoErr("failed to update reservation status", err)
	}
	if tag.RowsAffected() == 0 {
		return infra.NewRepoErr(infra.KindConflict, "reservation status changed: "+res.ID().String())
	}
	return nil
}

func (r *ReservationRepository) ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	return r.list(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE status = 'HELD' AND expires_at <= $1
		ORDER BY expires_at, id
		LIMIT $2`, now, limit)
}

func (r *ReservationRepository) ListBySaga(ctx context.Context, sagaID uuid.UUID) ([]*reservation.Reservation, error) {
	return r.list(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE saga_id = $1
		ORDER BY sku_code`, sagaID)
}

func (r *ReservationRepository) list(ctx context.Context, query string, args ...any) ([]*reservation.Reservation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to list reservations", err)
	}
	defer rows.Close()

	var out []*reservation.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, infra.WrapRepoErr("failed to scan reservation", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr("failed to iterate reservations", err)
	}
	return out, nil
}

func scanReservation(row pgx.Row) (*reservation.Reservation, error) {
	var (
		id, sagaID           uuid.UUID
		sku, status          string
		quantity             int64
		createdAt, updatedAt time.Time
		expiresAt            pgtype.Timestamptz
	)
	if err := row.Scan(&id, &sagaID, &sku, &quantity, &status, &createdAt, &expiresAt, &updatedAt); err != nil {
		return nil, err
	}
	return reservation.Reconstruct(id, sagaID, sku, quantity, reservation.Status(status), createdAt, pgconv.TimePtrFromPgtype(expiresAt), updatedAt), nil
}
