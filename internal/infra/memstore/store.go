// Package memstore is an in-process implementation of the unit of work used
// by unit tests and by STORE_DRIVER=memory. Writes are staged per transaction
// and become visible on commit; row locks are held until commit or rollback
// the way postgres holds them for UPDATE and SELECT ... FOR UPDATE.
package memstore

import (
	"context"
	"sync"
	"time"

	"checkout-saga/internal/domain/inventory"
	"checkout-saga/internal/domain/reservation"
	"checkout-saga/internal/domain/saga"
	"checkout-saga/internal/pkg/errs"
	"checkout-saga/internal/usecase/shared"

	"github.com/google/uuid"
)

const defaultLockWait = 5 * time.Second

type Store struct {
	mu sync.Mutex

	inventory    map[string]inventory.Record
	reservations map[uuid.UUID]*reservation.Reservation
	sagas        map[uuid.UUID]*saga.Instance
	archived     map[uuid.UUID]*saga.Instance
	outbox       []shared.OutboxMessage
	outboxIndex  map[uuid.UUID]int
	logs         []inventory.LogEntry
	snapshots    []inventory.Snapshot

	locks    map[string]chan struct{}
	lockWait time.Duration
}

type Option func(*Store)

// WithLockWait bounds how long a plain row lock waits before failing with
// errs.ErrLockTimeout.
func WithLockWait(d time.Duration) Option {
	return func(s *Store) { s.lockWait = d }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		inventory:    make(map[string]inventory.Record),
		reservations: make(map[uuid.UUID]*reservation.Reservation),
		sagas:        make(map[uuid.UUID]*saga.Instance),
		archived:     make(map[uuid.UUID]*saga.Instance),
		outboxIndex:  make(map[uuid.UUID]int),
		locks:        make(map[string]chan struct{}),
		lockWait:     defaultLockWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type UnitOfWork struct {
	store *Store
}

func NewUnitOfWork(store *Store) *UnitOfWork {
	return &UnitOfWork{store: store}
}

func (u *UnitOfWork) Within(ctx context.Context, fn func(ctx context.Context, tx shared.Tx) error) error {
	t := newTx(u.store, false)
	// no-op after commit; releases row locks if fn panics
	defer t.rollback()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.commit()
	return nil
}

func (u *UnitOfWork) WithinReadOnly(ctx context.Context, fn func(ctx context.Context, tx shared.Tx) error) error {
	t := newTx(u.store, true)
	defer t.rollback()
	return fn(ctx, t)
}

// acquire blocks until key is free, ctx is done or wait elapses.
func (s *Store) acquire(ctx context.Context, key string, wait time.Duration) error {
	var deadline <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		s.mu.Lock()
		held, busy := s.locks[key]
		if !busy {
			s.locks[key] = make(chan struct{})
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		select {
		case <-held:
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return errs.Wrapf(errs.ErrLockTimeout, "row lock %s", key)
		}
	}
}

// tryAcquire is the SKIP LOCKED variant.
func (s *Store) tryAcquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.locks[key]; busy {
		return false
	}
	s.locks[key] = make(chan struct{})
	return true
}

func (s *Store) releaseLocked(key string) {
	if ch, ok := s.locks[key]; ok {
		close(ch)
		delete(s.locks, key)
	}
}
