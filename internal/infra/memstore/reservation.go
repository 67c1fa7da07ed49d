package memstore

import (
	"context"
	"sort"
	"time"

	"checkout-saga/internal/domain/reservation"
	"checkout-saga/internal/infra"
	"checkout-saga/internal/pkg/errs"

	"github.com/google/uuid"
)

type reservationRepo struct {
	tx *tx
}

func (r *reservationRepo) Insert(ctx context.Context, res *reservation.Reservation) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if err := r.tx.lock(ctx, reservationKey(res.ID()), 0); err != nil {
		return err
	}
	if _, exists := r.tx.readReservation(res.ID()); exists {
		return infra.NewRepoErr(infra.KindDuplicateKey, "reservation already exists: "+res.ID().String())
	}
	r.tx.reservations[res.ID()] = res.Clone()
	return nil
}

func (r *reservationRepo) Get(_ context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	res, ok := r.tx.readReservation(id)
	if !ok {
		return nil, reservationNotFound(id)
	}
	return res, nil
}

func (r *reservationRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	if err := r.tx.lock(ctx, reservationKey(id), 0); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *reservationRepo) UpdateStatus(ctx context.Context, res *reservation.Reservation, from reservation.Status) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if err := r.tx.lock(ctx, reservationKey(res.ID()), 0); err != nil {
		return err
	}
	current, ok := r.tx.readReservation(res.ID())
	if !ok {
		return reservationNotFound(res.ID())
	}
	if current.Status() != from {
		return infra.NewRepoErr(infra.KindConflict, "reservation status changed: "+res.ID().String())
	}
	r.tx.reservations[res.ID()] = res.Clone()
	return nil
}

func (r *reservationRepo) ListExpiredHeld(_ context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	out := r.filter(func(res *reservation.Reservation) bool {
		return res.Status() == reservation.StatusHeld && res.IsExpired(now)
	})
	sort.Slice(out, func(i, j int) bool {
		ei, ej := out[i].ExpiresAt(), out[j].ExpiresAt()
		if !ei.Equal(*ej) {
			return ei.Before(*ej)
		}
		return out[i].ID().String() < out[j].ID().String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *reservationRepo) ListBySaga(_ context.Context, sagaID uuid.UUID) ([]*reservation.Reservation, error) {
	out := r.filter(func(res *reservation.Reservation) bool {
		return res.SagaID() == sagaID
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SKUCode() < out[j].SKUCode() })
	return out, nil
}

func (r *reservationRepo) filter(keep func(*reservation.Reservation) bool) []*reservation.Reservation {
	merged := make(map[uuid.UUID]*reservation.Reservation)
	r.tx.store.mu.Lock()
	for id, res := range r.tx.store.reservations {
		merged[id] = res
	}
	r.tx.store.mu.Unlock()
	for id, res := range r.tx.reservations {
		merged[id] = res
	}

	var out []*reservation.Reservation
	for _, res := range merged {
		if keep(res) {
			out = append(out, res.Clone())
		}
	}
	return out
}

func reservationNotFound(id uuid.UUID) error {
	return errs.Mark(infra.NewRepoErr(infra.KindNotFound, "reservation not found: "+id.String()), errs.ErrReservationNotFound)
}
