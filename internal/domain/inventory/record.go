package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNoMatchingHold    = errors.New("no matching hold for quantity")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidSKU        = errors.New("sku code must not be empty")
	ErrInvariantBroken   = errors.New("inventory invariant violated")
	ErrAdjustBelowZero   = errors.New("adjustment would make available stock negative")
)

// Record is one SKU row of the ledger.
// available + reserved == total, and neither side may go negative.
type Record struct {
	SKUCode   string
	Total     int64
	Available int64
	Reserved  int64
	Version   int64
	UpdatedAt time.Time
}

func NewRecord(sku string, total int64, now time.Time) (*Record, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, ErrInvalidSKU
	}
	if total < 0 {
		return nil, ErrInvalidQuantity
	}
	return &Record{
		SKUCode:   sku,
		Total:     total,
		Available: total,
		Reserved:  0,
		Version:   1,
		UpdatedAt: now,
	}, nil
}

// Apply returns the record that results from applying d. The receiver is not modified.
// The returned record keeps the receiver's version; the store bumps it on write.
func (r Record) Apply(d Delta) (Record, error) {
	if err := d.Validate(); err != nil {
		return r, err
	}
	switch d.Op {
	case OpReserve:
		if r.Available < d.Quantity {
			return r, fmt.Errorf("%w: sku=%s available=%d requested=%d", ErrInsufficientStock, r.SKUCode, r.Available, d.Quantity)
		}
	case OpConfirm, OpRelease:
		if r.Reserved < d.Quantity {
			return r, fmt.Errorf("%w: sku=%s reserved=%d requested=%d", ErrNoMatchingHold, r.SKUCode, r.Reserved, d.Quantity)
		}
	case OpAdjust:
		if r.Available+d.Quantity < 0 {
			return r, fmt.Errorf("%w: sku=%s available=%d adjustment=%d", ErrAdjustBelowZero, r.SKUCode, r.Available, d.Quantity)
		}
	}

	e := d.Effect()
	next := r
	next.Total += e.Total
	next.Available += e.Available
	next.Reserved += e.Reserved
	if err := next.Check(); err != nil {
		return r, err
	}
	return next, nil
}

func (r Record) Check() error {
	if r.Available < 0 || r.Reserved < 0 || r.Available+r.Reserved != r.Total {
		return fmt.Errorf("%w: sku=%s total=%d available=%d reserved=%d", ErrInvariantBroken, r.SKUCode, r.Total, r.Available, r.Reserved)
	}
	return nil
}

// IsLowStock reports whether available stock is at or below threshold.
func (r Record) IsLowStock(threshold int64) bool {
	return r.Available <= threshold
}
