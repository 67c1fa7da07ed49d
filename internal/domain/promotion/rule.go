package promotion

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidRuleID    = errors.New("invalid promotion id format")
	ErrEmptyCondition   = errors.New("promotion condition must not be empty")
	ErrRuleNotYetValid  = errors.New("promotion is not yet valid")
	ErrRuleExpired      = errors.New("promotion has expired")
	ErrInvalidValidSpan = errors.New("promotion validFrom must be before validTo")
)

var ruleIDRegex = regexp.MustCompile(`^[A-Z0-9_]{3,32}$`)

// Rule grants a discount when its condition holds for a checkout.
// A Reject rule fails the checkout instead.
type Rule struct {
	id        string
	condition string
	discount  Discount
	reject    bool
	exclusive bool
	validFrom *time.Time
	validTo   *time.Time
}

type RuleParams struct {
	ID             string
	Condition      string
	AmountOffCents *int64
	PercentOff     *float64
	Reject         bool
	Exclusive      bool
	ValidFrom      *time.Time
	ValidTo        *time.Time
}

func NewRule(p RuleParams) (*Rule, error) {
	id := strings.TrimSpace(strings.ToUpper(p.ID))
	if !ruleIDRegex.MatchString(id) {
		return nil, ErrInvalidRuleID
	}
	condition := strings.TrimSpace(p.Condition)
	if condition == "" {
		return nil, ErrEmptyCondition
	}
	if p.ValidFrom != nil && p.ValidTo != nil && !p.ValidFrom.Before(*p.ValidTo) {
		return nil, ErrInvalidValidSpan
	}

	r := &Rule{
		id:        id,
		condition: condition,
		reject:    p.Reject,
		exclusive: p.Exclusive,
		validFrom: p.ValidFrom,
		validTo:   p.ValidTo,
	}
	if !p.Reject {
		d, err := NewDiscount(p.AmountOffCents, p.PercentOff)
		if err != nil {
			return nil, err
		}
		r.discount = d
	}
	return r, nil
}

func (r *Rule) IsValidAt(t time.Time) bool {
	return r.ValidateUsage(t) == nil
}

func (r *Rule) ValidateUsage(t time.Time) error {
	if r.validFrom != nil && t.Before(*r.validFrom) {
		return ErrRuleNotYetValid
	}
	if r.validTo != nil && t.After(*r.validTo) {
		return ErrRuleExpired
	}
	return nil
}

func (r *Rule) ID() string            { return r.id }
func (r *Rule) Condition() string     { return r.condition }
func (r *Rule) Discount() Discount    { return r.discount }
func (r *Rule) IsReject() bool        { return r.reject }
func (r *Rule) IsExclusive() bool     { return r.exclusive }
func (r *Rule) ValidFrom() *time.Time { return r.validFrom }
func (r *Rule) ValidTo() *time.Time   { return r.validTo }
