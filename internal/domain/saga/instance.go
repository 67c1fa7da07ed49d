package saga

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNoItems           = errors.New("checkout must contain at least one line item")
	ErrInvalidItem       = errors.New("invalid line item")
	ErrConflictingPrice  = errors.New("same sku listed with different unit prices")
	ErrInvalidUser       = errors.New("user id must not be empty")
	ErrInvalidTransition = errors.New("invalid saga transition")
	ErrTerminal          = errors.New("saga already reached a terminal state")
)

// order ids are derived from the saga id so a replayed completion reports the same order.
var orderNamespace = uuid.MustParse("2b8e4f9a-7c1d-4e3a-b6f2-0d9c8a7e5b13")

type Instance struct {
	id              uuid.UUID
	userID          string
	items           []LineItem
	state           State
	reservationIDs  []uuid.UUID
	subtotalCents   int64
	discountCents   int64
	totalCents      int64
	appliedPromos   []string
	orderID         *uuid.UUID
	failureReason   FailureReason
	failureDetail   string
	stepSeq         int64
	paymentDeadline *time.Time
	requestHash     string
	createdAt       time.Time
	updatedAt       time.Time
}

// New builds a STARTED saga. Duplicate SKUs are merged and items are kept in
// ascending SKU order, which is also the order holds are taken in.
func New(id uuid.UUID, userID string, items []LineItem, now time.Time) (*Instance, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUser
	}
	merged, err := normalizeItems(items)
	if err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	var subtotal int64
	for _, it := range merged {
		subtotal += it.AmountCents()
	}

	return &Instance{
		id:            id,
		userID:        userID,
		items:         merged,
		state:         StateStarted,
		subtotalCents: subtotal,
		totalCents:    subtotal,
		stepSeq:       0,
		requestHash:   RequestHash(userID, merged),
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

func normalizeItems(items []LineItem) ([]LineItem, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	bySKU := make(map[string]LineItem, len(items))
	for _, it := range items {
		sku := strings.TrimSpace(it.SKUCode)
		if sku == "" || it.Quantity <= 0 || it.UnitPriceCents < 0 {
			return nil, fmt.Errorf("%w: sku=%q quantity=%d unitPrice=%d", ErrInvalidItem, it.SKUCode, it.Quantity, it.UnitPriceCents)
		}
		if prev, ok := bySKU[sku]; ok {
			if prev.UnitPriceCents != it.UnitPriceCents {
				return nil, fmt.Errorf("%w: sku=%s", ErrConflictingPrice, sku)
			}
			prev.Quantity += it.Quantity
			bySKU[sku] = prev
			continue
		}
		bySKU[sku] = LineItem{SKUCode: sku, Quantity: it.Quantity, UnitPriceCents: it.UnitPriceCents}
	}
	out := make([]LineItem, 0, len(bySKU))
	for _, it := range bySKU {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKUCode < out[j].SKUCode })
	return out, nil
}

// RequestHash fingerprints a checkout so a reused idempotency key with a
// different body can be told apart from a genuine replay.
func RequestHash(userID string, items []LineItem) string {
	var b strings.Builder
	b.WriteString(userID)
	for _, it := range items {
		b.WriteString("|")
		b.WriteString(it.SKUCode)
		b.WriteString(":")
		b.WriteString(strconv.FormatInt(it.Quantity, 10))
		b.WriteString("@")
		b.WriteString(strconv.FormatInt(it.UnitPriceCents, 10))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

type Snapshot struct {
	ID              uuid.UUID
	UserID          string
	Items           []LineItem
	State           State
	ReservationIDs  []uuid.UUID
	SubtotalCents   int64
	DiscountCents   int64
	TotalCents      int64
	AppliedPromos   []string
	OrderID         *uuid.UUID
	FailureReason   FailureReason
	FailureDetail   string
	StepSeq         int64
	PaymentDeadline *time.Time
	RequestHash     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func Reconstruct(s Snapshot) *Instance {
	return &Instance{
		id:              s.ID,
		userID:          s.UserID,
		items:           append([]LineItem(nil), s.Items...),
		state:           s.State,
		reservationIDs:  append([]uuid.UUID(nil), s.ReservationIDs...),
		subtotalCents:   s.SubtotalCents,
		discountCents:   s.DiscountCents,
		totalCents:      s.TotalCents,
		appliedPromos:   append([]string(nil), s.AppliedPromos...),
		orderID:         s.OrderID,
		failureReason:   s.FailureReason,
		failureDetail:   s.FailureDetail,
		stepSeq:         s.StepSeq,
		paymentDeadline: s.PaymentDeadline,
		requestHash:     s.RequestHash,
		createdAt:       s.CreatedAt,
		updatedAt:       s.UpdatedAt,
	}
}

func (i *Instance) Snapshot() Snapshot {
	return Snapshot{
		ID:              i.id,
		UserID:          i.userID,
		Items:           append([]LineItem(nil), i.items...),
		State:           i.state,
		ReservationIDs:  append([]uuid.UUID(nil), i.reservationIDs...),
		SubtotalCents:   i.subtotalCents,
		DiscountCents:   i.discountCents,
		TotalCents:      i.totalCents,
		AppliedPromos:   append([]string(nil), i.appliedPromos...),
		OrderID:         i.orderID,
		FailureReason:   i.failureReason,
		FailureDetail:   i.failureDetail,
		StepSeq:         i.stepSeq,
		PaymentDeadline: i.paymentDeadline,
		RequestHash:     i.requestHash,
		CreatedAt:       i.createdAt,
		UpdatedAt:       i.updatedAt,
	}
}

func (i *Instance) Clone() *Instance {
	return Reconstruct(i.Snapshot())
}

// transition advances the fencing token together with the state.
func (i *Instance) transition(to State, now time.Time) (Transition, error) {
	from := i.state
	if from.IsTerminal() {
		return Transition{}, fmt.Errorf("%w: %s", ErrTerminal, from)
	}
	if !from.CanTransitionTo(to) {
		return Transition{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	i.state = to
	i.stepSeq++
	i.updatedAt = now
	return Transition{
		SagaID:  i.id,
		UserID:  i.userID,
		From:    from,
		To:      to,
		StepSeq: i.stepSeq,
		Reason:  i.failureReason,
		At:      now,
	}, nil
}

func (i *Instance) MarkReserving(now time.Time) (Transition, error) {
	return i.transition(StateReserving, now)
}

func (i *Instance) MarkReserved(reservationIDs []uuid.UUID, now time.Time) (Transition, error) {
	t, err := i.transition(StateReserved, now)
	if err != nil {
		return t, err
	}
	i.reservationIDs = append([]uuid.UUID(nil), reservationIDs...)
	return t, nil
}

func (i *Instance) MarkAwaitingPayment(discountCents int64, promos []string, deadline time.Time, now time.Time) (Transition, error) {
	if discountCents < 0 {
		discountCents = 0
	}
	if discountCents > i.subtotalCents {
		discountCents = i.subtotalCents
	}
	t, err := i.transition(StateAwaitingPayment, now)
	if err != nil {
		return t, err
	}
	i.discountCents = discountCents
	i.totalCents = i.subtotalCents - discountCents
	i.appliedPromos = append([]string(nil), promos...)
	d := deadline
	i.paymentDeadline = &d
	return t, nil
}

func (i *Instance) MarkCompleted(now time.Time) (Transition, error) {
	t, err := i.transition(StateCompleted, now)
	if err != nil {
		return t, err
	}
	orderID := uuid.NewSHA1(orderNamespace, []byte(i.id.String()))
	i.orderID = &orderID
	i.paymentDeadline = nil
	return t, nil
}

func (i *Instance) MarkCompensating(reason FailureReason, detail string, now time.Time) (Transition, error) {
	prevReason, prevDetail := i.failureReason, i.failureDetail
	i.failureReason, i.failureDetail = reason, detail
	t, err := i.transition(StateCompensating, now)
	if err != nil {
		i.failureReason, i.failureDetail = prevReason, prevDetail
		return t, err
	}
	i.paymentDeadline = nil
	return t, nil
}

// MarkFailed keeps a reason recorded on entry to COMPENSATING unless none was set.
func (i *Instance) MarkFailed(reason FailureReason, detail string, now time.Time) (Transition, error) {
	prevReason, prevDetail := i.failureReason, i.failureDetail
	if i.failureReason == ReasonNone {
		i.failureReason, i.failureDetail = reason, detail
	}
	t, err := i.transition(StateFailed, now)
	if err != nil {
		i.failureReason, i.failureDetail = prevReason, prevDetail
		return t, err
	}
	i.paymentDeadline = nil
	return t, nil
}

// AcceptsPaymentCallback reports whether a callback fenced with stepSeq may act on this saga.
func (i *Instance) AcceptsPaymentCallback(stepSeq int64) bool {
	return i.state == StateAwaitingPayment && i.stepSeq == stepSeq
}

func (i *Instance) IsPaymentOverdue(now time.Time) bool {
	return i.state == StateAwaitingPayment && i.paymentDeadline != nil && !now.Before(*i.paymentDeadline)
}

func (i *Instance) ID() uuid.UUID                { return i.id }
func (i *Instance) UserID() string               { return i.userID }
func (i *Instance) Items() []LineItem            { return append([]LineItem(nil), i.items...) }
func (i *Instance) State() State                 { return i.state }
func (i *Instance) ReservationIDs() []uuid.UUID  { return append([]uuid.UUID(nil), i.reservationIDs...) }
func (i *Instance) SubtotalCents() int64         { return i.subtotalCents }
func (i *Instance) DiscountCents() int64         { return i.discountCents }
func (i *Instance) TotalCents() int64            { return i.totalCents }
func (i *Instance) AppliedPromotions() []string  { return append([]string(nil), i.appliedPromos...) }
func (i *Instance) OrderID() *uuid.UUID          { return i.orderID }
func (i *Instance) FailureReason() FailureReason { return i.failureReason }
func (i *Instance) FailureDetail() string        { return i.failureDetail }
func (i *Instance) StepSeq() int64               { return i.stepSeq }
func (i *Instance) PaymentDeadline() *time.Time  { return i.paymentDeadline }
func (i *Instance) RequestHash() string          { return i.requestHash }
func (i *Instance) CreatedAt() time.Time         { return i.createdAt }
func (i *Instance) UpdatedAt() time.Time         { return i.updatedAt }
