package memstore

import (
	"context"
	"time"

	"checkout-saga/internal/domain/inventory"
	"checkout-saga/internal/domain/reservation"
	"checkout-saga/internal/domain/saga"
	"checkout-saga/internal/pkg/errs"
	"checkout-saga/internal/usecase/shared"

	"github.com/google/uuid"
)

var errReadOnly = errs.New("cannot write in a read-only transaction")

type tx struct {
	store    *Store
	readOnly bool
	done     bool

	held map[string]struct{}

	inventory    map[string]inventory.Record
	reservations map[uuid.UUID]*reservation.Reservation
	sagas        map[uuid.UUID]*saga.Instance
	archive      map[uuid.UUID]struct{}
	outboxNew    []shared.OutboxMessage
	outboxUpd    map[uuid.UUID]shared.OutboxMessage
	logs         []inventory.LogEntry
	snapshots    []inventory.Snapshot
}

func newTx(store *Store, readOnly bool) *tx {
	return &tx{
		store:        store,
		readOnly:     readOnly,
		held:         make(map[string]struct{}),
		inventory:    make(map[string]inventory.Record),
		reservations: make(map[uuid.UUID]*reservation.Reservation),
		sagas:        make(map[uuid.UUID]*saga.Instance),
		archive:      make(map[uuid.UUID]struct{}),
		outboxUpd:    make(map[uuid.UUID]shared.OutboxMessage),
	}
}

func (t *tx) Inventory() shared.InventoryRepository        { return &inventoryRepo{tx: t} }
func (t *tx) Reservations() shared.ReservationRepository   { return &reservationRepo{tx: t} }
func (t *tx) Sagas() shared.SagaRepository                 { return &sagaRepo{tx: t} }
func (t *tx) Outbox() shared.OutboxRepository              { return &outboxRepo{tx: t} }
func (t *tx) InventoryLogs() shared.InventoryLogRepository { return &logRepo{tx: t} }
func (t *tx) Snapshots() shared.SnapshotRepository         { return &snapshotRepo{tx: t} }

func (t *tx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

// lock is reentrant within the transaction.
func (t *tx) lock(ctx context.Context, key string, wait time.Duration) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	if wait <= 0 {
		wait = t.store.lockWait
	}
	if err := t.store.acquire(ctx, key, wait); err != nil {
		return err
	}
	t.held[key] = struct{}{}
	return nil
}

func (t *tx) tryLock(key string) bool {
	if _, ok := t.held[key]; ok {
		return true
	}
	if !t.store.tryAcquire(key) {
		return false
	}
	t.held[key] = struct{}{}
	return true
}

func (t *tx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for sku, rec := range t.inventory {
		s.inventory[sku] = rec
	}
	for id, r := range t.reservations {
		s.reservations[id] = r
	}
	for id, inst := range t.sagas {
		s.sagas[id] = inst
	}
	for id := range t.archive {
		if inst, ok := s.sagas[id]; ok {
			s.archived[id] = inst
			delete(s.sagas, id)
		}
	}
	for _, msg := range t.outboxNew {
		s.outboxIndex[msg.ID] = len(s.outbox)
		s.outbox = append(s.outbox, msg)
	}
	for id, msg := range t.outboxUpd {
		if i, ok := s.outboxIndex[id]; ok {
			s.outbox[i] = msg
		}
	}
	s.logs = append(s.logs, t.logs...)
	s.snapshots = append(s.snapshots, t.snapshots...)

	t.releaseAll()
}

func (t *tx) rollback() {
	if t.done {
		return
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.releaseAll()
}

// releaseAll must be called with store.mu held.
func (t *tx) releaseAll() {
	for key := range t.held {
		t.store.releaseLocked(key)
	}
	t.held = nil
	t.done = true
}

func (t *tx) readInventory(sku string) (inventory.Record, bool) {
	if rec, ok := t.inventory[sku]; ok {
		return rec, true
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	rec, ok := t.store.inventory[sku]
	return rec, ok
}

func (t *tx) readReservation(id uuid.UUID) (*reservation.Reservation, bool) {
	if r, ok := t.reservations[id]; ok {
		return r.Clone(), true
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	r, ok := t.store.reservations[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

func (t *tx) readSaga(id uuid.UUID) (*saga.Instance, bool) {
	if _, gone := t.archive[id]; gone {
		return nil, false
	}
	if inst, ok := t.sagas[id]; ok {
		return inst.Clone(), true
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	inst, ok := t.store.sagas[id]
	if !ok {
		return nil, false
	}
	return inst.Clone(), true
}

func inventoryKey(sku string) string     { return "inventory:" + sku }
func reservationKey(id uuid.UUID) string { return "reservation:" + id.String() }
func sagaKey(id uuid.UUID) string        { return "saga:" + id.String() }
func outboxKey(id uuid.UUID) string      { return "outbox:" + id.String() }
