//go:build unit

package jobs_test

import (
	"context"
	"errors"
	"testing"

	"checkout-saga/internal/jobs"
	commandsmock "checkout-saga/tests/mock/commands"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

type sweepCounter struct{ swept int }

func (c *sweepCounter) ObserveSwept(n int) { c.swept += n }

func TestSweeper(t *testing.T) {
	ctx := context.Background()

	t.Run("失効したサガを失敗させる", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		manager := commandsmock.NewMockReservationManager(ctrl)
		checkout := commandsmock.NewMockCheckoutCommands(ctrl)
		ids := []uuid.UUID{uuid.New(), uuid.New()}
		manager.EXPECT().SweepExpired(ctx, 25).Return(ids, nil)
		checkout.EXPECT().HandleHoldsExpired(ctx, ids).Return(nil)
		counter := &sweepCounter{}

		assert.NoError(t, jobs.NewSweeper(manager, checkout, counter, 25).Run(ctx))
		assert.Equal(t, 2, counter.swept)
	})

	t.Run("掃除が一部失敗しても解放済みのサガは処理する", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		manager := commandsmock.NewMockReservationManager(ctrl)
		checkout := commandsmock.NewMockCheckoutCommands(ctrl)
		ids := []uuid.UUID{uuid.New()}
		sweepErr := errors.New("lock timeout")
		manager.EXPECT().SweepExpired(ctx, 25).Return(ids, sweepErr)
		checkout.EXPECT().HandleHoldsExpired(ctx, ids).Return(nil)

		assert.ErrorIs(t, jobs.NewSweeper(manager, checkout, nil, 25).Run(ctx), sweepErr)
	})

	t.Run("失効がなければサガには触れない", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		manager := commandsmock.NewMockReservationManager(ctrl)
		checkout := commandsmock.NewMockCheckoutCommands(ctrl)
		manager.EXPECT().SweepExpired(ctx, 25).Return(nil, nil)

		assert.NoError(t, jobs.NewSweeper(manager, checkout, nil, 25).Run(ctx))
	})
}

func TestPaymentWatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("タイムアウト処理の後に停止したサガを再開する", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		checkout := commandsmock.NewMockCheckoutCommands(ctrl)
		gomock.InOrder(
			checkout.EXPECT().HandlePaymentTimeouts(ctx, 10).Return(1, nil),
			checkout.EXPECT().ResumeStalled(ctx, 10).Return(2, nil),
		)

		assert.NoError(t, jobs.NewPaymentWatcher(checkout, 10).Run(ctx))
	})

	t.Run("タイムアウト処理が失敗したら再開しない", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		checkout := commandsmock.NewMockCheckoutCommands(ctrl)
		checkout.EXPECT().HandlePaymentTimeouts(ctx, 10).Return(0, errors.New("db down"))

		assert.Error(t, jobs.NewPaymentWatcher(checkout, 10).Run(ctx))
	})
}

func TestArchiverAndSnapshotter(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	checkout := commandsmock.NewMockCheckoutCommands(ctrl)
	manager := commandsmock.NewMockReservationManager(ctrl)

	checkout.EXPECT().ArchiveTerminal(ctx, 100).Return(int64(3), nil)
	manager.EXPECT().Snapshot(ctx).Return(int64(0), errors.New("read only"))

	assert.NoError(t, jobs.NewArchiver(checkout, 100).Run(ctx))
	assert.Error(t, jobs.NewSnapshotter(manager).Run(ctx))
}
