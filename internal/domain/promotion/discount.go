package promotion

import (
	"errors"
)

var (
	ErrInvalidDiscountAmount  = errors.New("discount amount cannot be negative")
	ErrInvalidDiscountPercent = errors.New("percentage discount must be between 0 and 100")
	ErrAmbiguousDiscount      = errors.New("discount can only be either fixed amount or percentage, not both")
	ErrMissingDiscount        = errors.New("discount must have either fixed amount or percentage")
)

type Discount struct {
	amountOffCents *int64
	percentOff     *float64
}

func NewFixedDiscount(amountOffCents int64) (Discount, error) {
	if amountOffCents < 0 {
		return Discount{}, ErrInvalidDiscountAmount
	}
	return Discount{amountOffCents: &amountOffCents}, nil
}

func NewPercentageDiscount(percentOff float64) (Discount, error) {
	if percentOff < 0 || percentOff > 100 {
		return Discount{}, ErrInvalidDiscountPercent
	}
	return Discount{percentOff: &percentOff}, nil
}

func NewDiscount(amountOffCents *int64, percentOff *float64) (Discount, error) {
	if amountOffCents != nil && percentOff != nil {
		return Discount{}, ErrAmbiguousDiscount
	}
	if amountOffCents == nil && percentOff == nil {
		return Discount{}, ErrMissingDiscount
	}
	if amountOffCents != nil {
		return NewFixedDiscount(*amountOffCents)
	}
	return NewPercentageDiscount(*percentOff)
}

func (d Discount) IsPercentage() bool {
	return d.percentOff != nil
}

// AmountFor returns the discount on priceCents, never more than priceCents.
// Percentages round down to the cent.
func (d Discount) AmountFor(priceCents int64) int64 {
	if priceCents <= 0 {
		return 0
	}
	var amount int64
	if d.percentOff != nil {
		amount = int64(float64(priceCents) * (*d.percentOff / 100.0))
	} else if d.amountOffCents != nil {
		amount = *d.amountOffCents
	}
	return min(amount, priceCents)
}
