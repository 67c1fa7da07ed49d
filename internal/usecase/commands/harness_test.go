//go:build unit

package commands_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"checkout-saga/internal/domain/inventory"
	"checkout-saga/internal/domain/reservation"
	"checkout-saga/internal/domain/saga"
	"checkout-saga/internal/infra"
	"checkout-saga/internal/infra/dedup"
	"checkout-saga/internal/infra/memstore"
	"checkout-saga/internal/pkg/clock"
	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/usecase/commands"
	"checkout-saga/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakePromotions struct {
	mu       sync.Mutex
	discount int64
	applied  []string
	err      error
}

func (p *fakePromotions) Evaluate(context.Context, shared.PromotionRequest) (shared.PromotionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return shared.PromotionResult{}, p.err
	}
	return shared.PromotionResult{DiscountCents: p.discount, Applied: p.applied}, nil
}

type recordingNotifier struct {
	mu          sync.Mutex
	transitions []saga.Transition
}

func (n *recordingNotifier) Notify(_ context.Context, t saga.Transition) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitions = append(n.transitions, t)
}

func (n *recordingNotifier) states(sagaID uuid.UUID) []saga.State {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []saga.State
	for _, t := range n.transitions {
		if t.SagaID == sagaID {
			out = append(out, t.To)
		}
	}
	return out
}

type countingObserver struct {
	mu          sync.Mutex
	conflicts   int
	pessimistic int
	exhausted   int
}

func (o *countingObserver) ObserveConflict(string) {
	o.mu.Lock()
	o.conflicts++
	o.mu.Unlock()
}

func (o *countingObserver) ObservePessimistic(string) {
	o.mu.Lock()
	o.pessimistic++
	o.mu.Unlock()
}

func (o *countingObserver) ObserveExhausted(string) {
	o.mu.Lock()
	o.exhausted++
	o.mu.Unlock()
}

// faultyUoW fails reservation inserts for chosen SKUs a fixed number of
// times with a database failure.
type faultyUoW struct {
	shared.UnitOfWork
	mu         sync.Mutex
	failInsert map[string]int
}

func (f *faultyUoW) Within(ctx context.Context, fn func(ctx context.Context, tx shared.Tx) error) error {
	return f.UnitOfWork.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		return fn(ctx, &faultyTx{Tx: tx, uow: f})
	})
}

func (f *faultyUoW) failInsertOnce(sku string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failInsert[sku]++
}

func (f *faultyUoW) shouldFail(sku string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert[sku] == 0 {
		return false
	}
	f.failInsert[sku]--
	return true
}

type faultyTx struct {
	shared.Tx
	uow *faultyUoW
}

func (t *faultyTx) Reservations() shared.ReservationRepository {
	return &faultyReservations{ReservationRepository: t.Tx.Reservations(), uow: t.uow}
}

type faultyReservations struct {
	shared.ReservationRepository
	uow *faultyUoW
}

func (r *faultyReservations) Insert(ctx context.Context, res *reservation.Reservation) error {
	if r.uow.shouldFail(res.SKUCode()) {
		return infra.NewRepoErr(infra.KindDBFailure, "connection reset inserting "+res.SKUCode())
	}
	return r.ReservationRepository.Insert(ctx, res)
}

type harness struct {
	cfg        config.Config
	clock      *clock.MockClock
	uow        *memstore.UnitOfWork
	faults     *faultyUoW
	observer   *countingObserver
	promotions *fakePromotions
	notifier   *recordingNotifier
	manager    commands.ReservationManager
	checkout   commands.CheckoutCommands
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()
	cfg := config.NewTestConfig()
	cfg.Ledger.RetryBudget = 50
	cfg.Saga.PaymentTimeout = 5 * time.Minute
	for _, m := range mutate {
		m(&cfg)
	}

	h := &harness{
		cfg:        cfg,
		clock:      clock.NewMockClock(start),
		uow:        memstore.NewUnitOfWork(memstore.NewStore(memstore.WithLockWait(cfg.Ledger.LockTimeout))),
		observer:   &countingObserver{},
		promotions: &fakePromotions{},
		notifier:   &recordingNotifier{},
	}
	h.faults = &faultyUoW{UnitOfWork: h.uow, failInsert: make(map[string]int)}
	h.manager = commands.NewReservationManager(h.faults, h.clock, h.observer, cfg)
	h.checkout = commands.NewCheckoutUseCase(h.faults, h.manager, h.promotions,
		dedup.NewMemoryDeduplicator(h.clock, time.Hour), h.notifier, h.clock, cfg)
	return h
}

func (h *harness) provision(t *testing.T, sku string, total int64) {
	t.Helper()
	_, err := h.manager.Provision(context.Background(), sku, total, "test")
	require.NoError(t, err)
}

func (h *harness) ledger(t *testing.T, sku string) inventory.Record {
	t.Helper()
	rec, err := h.manager.Read(context.Background(), sku)
	require.NoError(t, err)
	require.NoError(t, rec.Check())
	return *rec
}

func (h *harness) reservations(t *testing.T, sagaID uuid.UUID) []*reservation.Reservation {
	t.Helper()
	out, err := shared.ReadInTx(context.Background(), h.uow, func(ctx context.Context, tx shared.Tx) ([]*reservation.Reservation, error) {
		return tx.Reservations().ListBySaga(ctx, sagaID)
	})
	require.NoError(t, err)
	return out
}

func (h *harness) outbox(t *testing.T, key string) []shared.OutboxMessage {
	t.Helper()
	out, err := shared.ReadInTx(context.Background(), h.uow, func(ctx context.Context, tx shared.Tx) ([]shared.OutboxMessage, error) {
		return tx.Outbox().ListBySaga(ctx, key)
	})
	require.NoError(t, err)
	return out
}

func (h *harness) saga(t *testing.T, id uuid.UUID) *saga.Instance {
	t.Helper()
	inst, err := shared.ReadInTx(context.Background(), h.uow, func(ctx context.Context, tx shared.Tx) (*saga.Instance, error) {
		return tx.Sagas().Get(ctx, id)
	})
	require.NoError(t, err)
	return inst
}

func countKind(msgs []shared.OutboxMessage, kind string) int {
	n := 0
	for _, m := range msgs {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

func statuses(rs []*reservation.Reservation) map[reservation.Status]int {
	out := make(map[reservation.Status]int)
	for _, r := range rs {
		out[r.Status()]++
	}
	return out
}

func items(pairs ...any) []saga.LineItem {
	var out []saga.LineItem
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, saga.LineItem{SKUCode: pairs[i].(string), Quantity: int64(pairs[i+1].(int)), UnitPriceCents: 100})
	}
	return out
}
