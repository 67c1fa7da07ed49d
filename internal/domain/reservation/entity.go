package reservation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidQuantity   = errors.New("reservation quantity must be positive")
	ErrInvalidTTL        = errors.New("reservation ttl must be positive")
	ErrAlreadyReleased   = errors.New("reservation is already released")
	ErrAlreadyConfirmed  = errors.New("reservation is already confirmed")
	ErrExpired           = errors.New("reservation has expired")
	ErrInvalidTransition = errors.New("invalid reservation transition")
)

// namespace for deterministic reservation ids; a retried holdAll for the
// same saga and SKU always targets the same row.
var idNamespace = uuid.MustParse("6f1c7f0e-3f55-4d8b-9a57-1d1f8c0e2a41")

func NewID(sagaID uuid.UUID, sku string) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(sagaID.String()+":"+sku))
}

type Reservation struct {
	id        uuid.UUID
	sagaID    uuid.UUID
	skuCode   string
	quantity  int64
	status    Status
	createdAt time.Time
	expiresAt *time.Time
	updatedAt time.Time
}

// NewHold creates a HELD reservation. A zero ttl means the hold never expires,
// which is only used for immediate deductions.
func NewHold(sagaID uuid.UUID, sku string, quantity int64, ttl time.Duration, now time.Time) (*Reservation, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if ttl < 0 {
		return nil, ErrInvalidTTL
	}
	var expiresAt *time.Time
	if ttl > 0 {
		t := now.Add(ttl)
		expiresAt = &t
	}
	return &Reservation{
		id:        NewID(sagaID, sku),
		sagaID:    sagaID,
		skuCode:   sku,
		quantity:  quantity,
		status:    StatusHeld,
		createdAt: now,
		expiresAt: expiresAt,
		updatedAt: now,
	}, nil
}

func Reconstruct(
	id, sagaID uuid.UUID,
	sku string,
	quantity int64,
	status Status,
	createdAt time.Time,
	expiresAt *time.Time,
	updatedAt time.Time,
) *Reservation {
	return &Reservation{
		id:        id,
		sagaID:    sagaID,
		skuCode:   sku,
		quantity:  quantity,
		status:    status,
		createdAt: createdAt,
		expiresAt: expiresAt,
		updatedAt: updatedAt,
	}
}

func (r *Reservation) IsExpired(now time.Time) bool {
	return r.expiresAt != nil && !now.Before(*r.expiresAt)
}

// Confirm moves HELD to CONFIRMED. Confirming twice is a no-op; a released
// or expired hold can no longer be confirmed.
func (r *Reservation) Confirm(now time.Time) (changed bool, err error) {
	switch r.status {
	case StatusConfirmed:
		return false, nil
	case StatusReleased:
		return false, ErrAlreadyReleased
	case StatusHeld:
		if r.IsExpired(now) {
			return false, ErrExpired
		}
		r.status = StatusConfirmed
		r.updatedAt = now
		return true, nil
	default:
		return false, ErrInvalidTransition
	}
}

// Release moves HELD to RELEASED. Releasing a terminal reservation is a no-op.
func (r *Reservation) Release(now time.Time) (changed bool) {
	if r.status != StatusHeld {
		return false
	}
	r.status = StatusReleased
	r.updatedAt = now
	return true
}

func (r *Reservation) Clone() *Reservation {
	c := *r
	if r.expiresAt != nil {
		t := *r.expiresAt
		c.expiresAt = &t
	}
	return &c
}

func (r *Reservation) ID() uuid.UUID         { return r.id }
func (r *Reservation) SagaID() uuid.UUID     { return r.sagaID }
func (r *Reservation) SKUCode() string       { return r.skuCode }
func (r *Reservation) Quantity() int64       { return r.quantity }
func (r *Reservation) Status() Status        { return r.status }
func (r *Reservation) CreatedAt() time.Time  { return r.createdAt }
func (r *Reservation) ExpiresAt() *time.Time { return r.expiresAt }
func (r *Reservation) UpdatedAt() time.Time  { return r.updatedAt }
