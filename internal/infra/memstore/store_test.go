//go:build unit

package memstore_test

import (
	"context"
	"testing"
	"time"

	"checkout-saga/internal/domain/inventory"
	"checkout-saga/internal/infra"
	"checkout-saga/internal/infra/memstore"
	"checkout-saga/internal/pkg/errs"
	"checkout-saga/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, uow *memstore.UnitOfWork, sku string, total int64) {
	t.Helper()
	rec, err := inventory.NewRecord(sku, total, now)
	require.NoError(t, err)
	require.NoError(t, uow.Within(context.Background(), func(ctx context.Context, tx shared.Tx) error {
		return tx.Inventory().Create(ctx, rec)
	}))
}

func read(t *testing.T, uow *memstore.UnitOfWork, sku string) *inventory.Record {
	t.Helper()
	rec, err := shared.ReadInTx(context.Background(), uow, func(ctx context.Context, tx shared.Tx) (*inventory.Record, error) {
		return tx.Inventory().Get(ctx, sku)
	})
	require.NoError(t, err)
	return rec
}

func TestTryApply(t *testing.T) {
	ctx := context.Background()

	t.Run("version bump on success", func(t *testing.T) {
		uow := memstore.NewUnitOfWork(memstore.NewStore())
		seed(t, uow, "SKU-A", 10)

		err := uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			_, err := tx.Inventory().TryApply(ctx, "SKU-A", 1, inventory.Reserve(3), now)
			return err
		})
		require.NoError(t, err)

		rec := read(t, uow, "SKU-A")
		assert.Equal(t, int64(2), rec.Version)
		assert.Equal(t, int64(7), rec.Available)
	})

	t.Run("stale version is a conflict", func(t *testing.T) {
		uow := memstore.NewUnitOfWork(memstore.NewStore())
		seed(t, uow, "SKU-A", 10)

		err := uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			_, err := tx.Inventory().TryApply(ctx, "SKU-A", 7, inventory.Reserve(1), now)
			return err
		})
		assert.True(t, errs.Is(err, errs.ErrVersionConflict))
		assert.Equal(t, int64(10), read(t, uow, "SKU-A").Available)
	})

	t.Run("missing sku", func(t *testing.T) {
		uow := memstore.NewUnitOfWork(memstore.NewStore())
		err := uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			_, err := tx.Inventory().TryApply(ctx, "SKU-X", 1, inventory.Reserve(1), now)
			return err
		})
		assert.True(t, errs.Is(err, errs.ErrSKUNotFound))
	})

	t.Run("overdraw is rejected like a check constraint", func(t *testing.T) {
		uow := memstore.NewUnitOfWork(memstore.NewStore())
		seed(t, uow, "SKU-A", 1)
		err := uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			_, err := tx.Inventory().TryApply(ctx, "SKU-A", 1, inventory.Reserve(2), now)
			return err
		})
		assert.True(t, infra.IsKind(err, infra.KindCheckViolated))
	})
}

func TestRollback(t *testing.T) {
	uow := memstore.NewUnitOfWork(memstore.NewStore())
	seed(t, uow, "SKU-A", 10)

	err := uow.Within(context.Background(), func(ctx context.Context, tx shared.Tx) error {
		if _, err := tx.Inventory().TryApply(ctx, "SKU-A", 1, inventory.Reserve(4), now); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	rec := read(t, uow, "SKU-A")
	assert.Equal(t, int64(10), rec.Available)
	assert.Equal(t, int64(1), rec.Version)
}

func TestPanicReleasesRowLocks(t *testing.T) {
	uow := memstore.NewUnitOfWork(memstore.NewStore(memstore.WithLockWait(20 * time.Millisecond)))
	seed(t, uow, "SKU-A", 10)

	assert.Panics(t, func() {
		_ = uow.Within(context.Background(), func(ctx context.Context, tx shared.Tx) error {
			if _, err := tx.Inventory().ApplyLocked(ctx, "SKU-A", inventory.Reserve(1), 0, now); err != nil {
				return err
			}
			panic("boom")
		})
	})

	err := uow.Within(context.Background(), func(ctx context.Context, tx shared.Tx) error {
		_, err := tx.Inventory().ApplyLocked(ctx, "SKU-A", inventory.Reserve(2), 10*time.Millisecond, now)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), read(t, uow, "SKU-A").Available)
}

func TestDuplicateCreate(t *testing.T) {
	uow := memstore.NewUnitOfWork(memstore.NewStore())
	seed(t, uow, "SKU-A", 10)

	rec, err := inventory.NewRecord("SKU-A", 3, now)
	require.NoError(t, err)
	err = uow.Within(context.Background(), func(ctx context.Context, tx shared.Tx) error {
		return tx.Inventory().Create(ctx, rec)
	})
	assert.True(t, infra.IsKind(err, infra.KindDuplicateKey))
}

func TestRowLock(t *testing.T) {
	t.Run("a second writer times out while the row is locked", func(t *testing.T) {
		uow := memstore.NewUnitOfWork(memstore.NewStore(memstore.WithLockWait(20 * time.Millisecond)))
		seed(t, uow, "SKU-A", 10)

		locked := make(chan struct{})
		finish := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- uow.Within(context.Background(), func(ctx context.Context, tx shared.Tx) error {
				if _, err := tx.Inventory().ApplyLocked(ctx, "SKU-A", inventory.Reserve(1), 0, now); err != nil {
					return err
				}
				close(locked)
				<-finish
				return nil
			})
		}()
		<-locked

		err := uow.Within(context.Background(), func(ctx context.Context, tx shared.Tx) error {
			_, err := tx.Inventory().ApplyLocked(ctx, "SKU-A", inventory.Reserve(1), 10*time.Millisecond, now)
			return err
		})
		assert.True(t, errs.Is(err, errs.ErrLockTimeout))

		close(finish)
		require.NoError(t, <-done)
		assert.Equal(t, int64(9), read(t, uow, "SKU-A").Available)
	})

	t.Run("a waiting CAS sees the committed version", func(t *testing.T) {
		uow := memstore.NewUnitOfWork(memstore.NewStore())
		seed(t, uow, "SKU-A", 10)

		locked := make(chan struct{})
		finish := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- uow.Within(context.Background(), func(ctx context.Context, tx shared.Tx) error {
				if _, err := tx.Inventory().TryApply(ctx, "SKU-A", 1, inventory.Reserve(1), now); err != nil {
					return err
				}
				close(locked)
				<-finish
				return nil
			})
		}()
		<-locked

		result := make(chan error, 1)
		go func() {
			result <- uow.Within(context.Background(), func(ctx context.Context, tx shared.Tx) error {
				_, err := tx.Inventory().TryApply(ctx, "SKU-A", 1, inventory.Reserve(1), now)
				return err
			})
		}()
		close(finish)
		require.NoError(t, <-done)
		assert.True(t, errs.Is(<-result, errs.ErrVersionConflict))
	})
}

func TestOutboxClaimSkipsLockedRows(t *testing.T) {
	uow := memstore.NewUnitOfWork(memstore.NewStore())
	ctx := context.Background()
	require.NoError(t, uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		for i := 0; i < 3; i++ {
			if err := tx.Outbox().Enqueue(ctx, shared.OutboxMessage{ID: uuid.New(), Kind: "k", Key: "saga", RunAt: now, CreatedAt: now}); err != nil {
				return err
			}
		}
		return nil
	}))

	claimed := make(chan struct{})
	finish := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			msgs, err := tx.Outbox().ClaimDue(ctx, now, 2)
			if err != nil {
				return err
			}
			if len(msgs) != 2 {
				return assert.AnError
			}
			close(claimed)
			<-finish
			return nil
		})
	}()
	<-claimed

	err := uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		msgs, err := tx.Outbox().ClaimDue(ctx, now, 10)
		require.NoError(t, err)
		assert.Len(t, msgs, 1)
		return nil
	})
	require.NoError(t, err)
	close(finish)
	require.NoError(t, <-done)
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	uow := memstore.NewUnitOfWork(memstore.NewStore())
	rec, err := inventory.NewRecord("SKU-A", 1, now)
	require.NoError(t, err)
	err = uow.WithinReadOnly(context.Background(), func(ctx context.Context, tx shared.Tx) error {
		return tx.Inventory().Create(ctx, rec)
	})
	require.Error(t, err)
}
