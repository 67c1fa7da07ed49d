//go:build unit

package commands_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"checkout-saga/internal/domain/inventory"
	"checkout-saga/internal/domain/reservation"
	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/pkg/errs"
	"checkout-saga/internal/usecase/commands"
	"checkout-saga/internal/usecase/shared"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ReservationManagerTestSuite struct {
	suite.Suite
	h   *harness
	ctx context.Context
}

func (s *ReservationManagerTestSuite) SetupTest() {
	s.h = newHarness(s.T())
	s.ctx = context.Background()
	s.h.provision(s.T(), "SKU-A", 10)
	s.h.provision(s.T(), "SKU-B", 3)
}

func TestReservationManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ReservationManagerTestSuite))
}

var ignoreTimestamps = cmpopts.IgnoreFields(inventory.Record{}, "UpdatedAt", "Version")

func (s *ReservationManagerTestSuite) TestHoldAll() {
	s.Run("全明細を確保できる", func() {
		sagaID := uuid.New()
		ids, err := s.h.manager.HoldAll(s.ctx, sagaID, items("SKU-B", 2, "SKU-A", 4))
		s.Require().NoError(err)
		s.Len(ids, 2)
		// SKU 昇順で確保される
		s.Equal(reservation.NewID(sagaID, "SKU-A"), ids[0])
		s.Equal(reservation.NewID(sagaID, "SKU-B"), ids[1])

		want := inventory.Record{SKUCode: "SKU-A", Total: 10, Available: 6, Reserved: 4}
		if diff := cmp.Diff(want, s.h.ledger(s.T(), "SKU-A"), ignoreTimestamps); diff != "" {
			s.T().Errorf("ledger mismatch (-want +got):\n%s", diff)
		}
		s.Equal(map[reservation.Status]int{reservation.StatusHeld: 2}, statuses(s.h.reservations(s.T(), sagaID)))
	})

	s.Run("同じサガで再実行しても二重に確保しない", func() {
		sagaID := uuid.New()
		first, err := s.h.manager.HoldAll(s.ctx, sagaID, items("SKU-A", 1))
		s.Require().NoError(err)
		before := s.h.ledger(s.T(), "SKU-A")

		second, err := s.h.manager.HoldAll(s.ctx, sagaID, items("SKU-A", 1))
		s.Require().NoError(err)
		s.Equal(first, second)
		s.Equal(before.Reserved, s.h.ledger(s.T(), "SKU-A").Reserved)
	})
}

func (s *ReservationManagerTestSuite) TestHoldAllPartialFailure() {
	s.Run("在庫不足なら確保済み分を解放して HoldFailure を返す", func() {
		sagaID := uuid.New()
		_, err := s.h.manager.HoldAll(s.ctx, sagaID, items("SKU-A", 4, "SKU-B", 5))

		var failure *commands.HoldFailure
		s.Require().ErrorAs(err, &failure)
		s.Equal("SKU-B", failure.FailedSKU)
		s.Equal([]uuid.UUID{reservation.NewID(sagaID, "SKU-A")}, failure.HeldSoFar)
		s.True(errs.Is(err, errs.ErrInsufficientStock))

		for sku, total := range map[string]int64{"SKU-A": 10, "SKU-B": 3} {
			want := inventory.Record{SKUCode: sku, Total: total, Available: total}
			if diff := cmp.Diff(want, s.h.ledger(s.T(), sku), ignoreTimestamps); diff != "" {
				s.T().Errorf("%s ledger mismatch (-want +got):\n%s", sku, diff)
			}
		}
		s.Equal(map[reservation.Status]int{reservation.StatusReleased: 1}, statuses(s.h.reservations(s.T(), sagaID)))
	})

	s.Run("存在しない SKU は ErrSKUNotFound", func() {
		_, err := s.h.manager.HoldAll(s.ctx, uuid.New(), items("SKU-A", 1, "SKU-Z", 1))

		var failure *commands.HoldFailure
		s.Require().ErrorAs(err, &failure)
		s.Equal("SKU-Z", failure.FailedSKU)
		s.True(errs.Is(err, errs.ErrSKUNotFound))
		s.Equal(int64(0), s.h.ledger(s.T(), "SKU-A").Reserved)
	})
}

func (s *ReservationManagerTestSuite) TestHoldAllInfrastructureFailure() {
	s.Run("DB 障害では確保済み分を残し、再実行で引き継ぐ", func() {
		sagaID := uuid.New()
		s.h.faults.failInsertOnce("SKU-B")

		_, err := s.h.manager.HoldAll(s.ctx, sagaID, items("SKU-A", 2, "SKU-B", 1))
		s.Require().Error(err)
		var failure *commands.HoldFailure
		s.False(errors.As(err, &failure))
		s.Equal(map[reservation.Status]int{reservation.StatusHeld: 1}, statuses(s.h.reservations(s.T(), sagaID)))
		s.Equal(int64(2), s.h.ledger(s.T(), "SKU-A").Reserved)
		s.Equal(int64(0), s.h.ledger(s.T(), "SKU-B").Reserved)

		ids, err := s.h.manager.HoldAll(s.ctx, sagaID, items("SKU-A", 2, "SKU-B", 1))
		s.Require().NoError(err)
		s.Equal([]uuid.UUID{reservation.NewID(sagaID, "SKU-A"), reservation.NewID(sagaID, "SKU-B")}, ids)
		s.Equal(map[reservation.Status]int{reservation.StatusHeld: 2}, statuses(s.h.reservations(s.T(), sagaID)))
		// 引き継いだ分は二重に引当しない
		s.Equal(int64(2), s.h.ledger(s.T(), "SKU-A").Reserved)
		s.Equal(int64(1), s.h.ledger(s.T(), "SKU-B").Reserved)
	})
}

func (s *ReservationManagerTestSuite) TestConfirmAll() {
	s.Run("確保を引当に変換し、再実行は何もしない", func() {
		sagaID := uuid.New()
		ids, err := s.h.manager.HoldAll(s.ctx, sagaID, items("SKU-A", 3))
		s.Require().NoError(err)

		s.Require().NoError(s.h.manager.ConfirmAll(s.ctx, ids))
		s.Require().NoError(s.h.manager.ConfirmAll(s.ctx, ids))

		want := inventory.Record{SKUCode: "SKU-A", Total: 7, Available: 7, Reserved: 0}
		if diff := cmp.Diff(want, s.h.ledger(s.T(), "SKU-A"), ignoreTimestamps); diff != "" {
			s.T().Errorf("ledger mismatch (-want +got):\n%s", diff)
		}
		s.Equal(map[reservation.Status]int{reservation.StatusConfirmed: 1}, statuses(s.h.reservations(s.T(), sagaID)))
	})

	s.Run("TTL 経過後は ErrReservationExpired で何も変更しない", func() {
		ids, err := s.h.manager.HoldAll(s.ctx, uuid.New(), items("SKU-B", 1))
		s.Require().NoError(err)
		before := s.h.ledger(s.T(), "SKU-B")

		s.h.clock.Add(s.h.cfg.Reservation.TTL + time.Second)
		err = s.h.manager.ConfirmAll(s.ctx, ids)
		s.True(errs.Is(err, errs.ErrReservationExpired))
		s.Equal(before.Reserved, s.h.ledger(s.T(), "SKU-B").Reserved)
	})

	s.Run("フェンスが失敗すると確定はロールバックされる", func() {
		ids, err := s.h.manager.HoldAll(s.ctx, uuid.New(), items("SKU-A", 1))
		s.Require().NoError(err)
		before := s.h.ledger(s.T(), "SKU-A")

		err = s.h.manager.ConfirmAll(s.ctx, ids, func(context.Context, shared.Tx) error {
			return errs.ErrStaleStep
		})
		s.True(errs.Is(err, errs.ErrStaleStep))
		if diff := cmp.Diff(before, s.h.ledger(s.T(), "SKU-A")); diff != "" {
			s.T().Errorf("ledger changed (-before +after):\n%s", diff)
		}
	})
}

func (s *ReservationManagerTestSuite) TestReleaseAll() {
	s.Run("解放は冪等", func() {
		ids, err := s.h.manager.HoldAll(s.ctx, uuid.New(), items("SKU-A", 2, "SKU-B", 1))
		s.Require().NoError(err)

		s.Require().NoError(s.h.manager.ReleaseAll(s.ctx, ids))
		s.Require().NoError(s.h.manager.ReleaseAll(s.ctx, ids))

		s.Equal(int64(10), s.h.ledger(s.T(), "SKU-A").Available)
		s.Equal(int64(3), s.h.ledger(s.T(), "SKU-B").Available)
	})

	s.Run("確定済みの引当は解放しない", func() {
		ids, err := s.h.manager.HoldAll(s.ctx, uuid.New(), items("SKU-A", 2))
		s.Require().NoError(err)
		s.Require().NoError(s.h.manager.ConfirmAll(s.ctx, ids))
		before := s.h.ledger(s.T(), "SKU-A")

		s.Require().NoError(s.h.manager.ReleaseAll(s.ctx, ids))
		if diff := cmp.Diff(before, s.h.ledger(s.T(), "SKU-A")); diff != "" {
			s.T().Errorf("ledger changed (-before +after):\n%s", diff)
		}
	})

	s.Run("存在しない予約 ID は無視する", func() {
		s.NoError(s.h.manager.ReleaseAll(s.ctx, []uuid.UUID{uuid.New()}))
	})
}

func (s *ReservationManagerTestSuite) TestSweepExpired() {
	expiring := uuid.New()
	_, err := s.h.manager.HoldAll(s.ctx, expiring, items("SKU-A", 2, "SKU-B", 1))
	s.Require().NoError(err)

	s.h.clock.Add(time.Minute)
	fresh := uuid.New()
	_, err = s.h.manager.HoldAll(s.ctx, fresh, items("SKU-A", 1))
	s.Require().NoError(err)

	s.h.clock.Add(s.h.cfg.Reservation.TTL - 30*time.Second)
	sagaIDs, err := s.h.manager.SweepExpired(s.ctx, 100)
	s.Require().NoError(err)
	s.Equal([]uuid.UUID{expiring}, sagaIDs)

	s.Equal(map[reservation.Status]int{reservation.StatusReleased: 2}, statuses(s.h.reservations(s.T(), expiring)))
	s.Equal(map[reservation.Status]int{reservation.StatusHeld: 1}, statuses(s.h.reservations(s.T(), fresh)))
	s.Equal(int64(1), s.h.ledger(s.T(), "SKU-A").Reserved)

	again, err := s.h.manager.SweepExpired(s.ctx, 100)
	s.Require().NoError(err)
	s.Empty(again)
}

func (s *ReservationManagerTestSuite) TestAdjust() {
	testCases := []struct {
		name    string
		cmd     commands.AdjustCommand
		wantErr error
		want    int64
	}{
		{name: "入庫", cmd: commands.AdjustCommand{SKUCode: "SKU-B", Quantity: 4, Reason: "restock"}, want: 7},
		{name: "出庫", cmd: commands.AdjustCommand{SKUCode: "SKU-B", Quantity: -3, Reason: "damaged"}, want: 0},
		{name: "利用可能数を下回る出庫", cmd: commands.AdjustCommand{SKUCode: "SKU-B", Quantity: -4}, wantErr: errs.ErrInvalidAdjustment},
		{name: "数量ゼロ", cmd: commands.AdjustCommand{SKUCode: "SKU-B"}, wantErr: errs.ErrInvalidAdjustment},
		{name: "存在しない SKU", cmd: commands.AdjustCommand{SKUCode: "SKU-Z", Quantity: 1}, wantErr: errs.ErrSKUNotFound},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.SetupTest()
			rec, err := s.h.manager.Adjust(s.ctx, tc.cmd)
			if tc.wantErr != nil {
				s.True(errs.Is(err, tc.wantErr), "got %v", err)
				s.Equal(int64(3), s.h.ledger(s.T(), "SKU-B").Available)
				return
			}
			s.Require().NoError(err)
			s.Equal(tc.want, rec.Available)
			s.Equal(tc.want, rec.Total)
		})
	}
}

func (s *ReservationManagerTestSuite) TestProvision() {
	s.Run("既存 SKU は ErrSKUExists", func() {
		_, err := s.h.manager.Provision(s.ctx, "SKU-A", 1, "ops")
		s.True(errs.Is(err, errs.ErrSKUExists))
		s.Equal(int64(10), s.h.ledger(s.T(), "SKU-A").Total)
	})

	s.Run("負の数量は ErrInvalidAdjustment", func() {
		_, err := s.h.manager.Provision(s.ctx, "SKU-N", -1, "ops")
		s.True(errs.Is(err, errs.ErrInvalidAdjustment))
	})

	s.Run("変更イベントが outbox に積まれる", func() {
		_, err := s.h.manager.Provision(s.ctx, "SKU-C", 20, "ops")
		s.Require().NoError(err)
		msgs := s.h.outbox(s.T(), "SKU-C")
		s.Equal(1, countKind(msgs, commands.KindInventoryChanged))
		s.Equal(0, countKind(msgs, commands.KindInventoryLowStock))
	})
}

func (s *ReservationManagerTestSuite) TestDeductNow() {
	s.Run("即時引当", func() {
		ref := uuid.New()
		ids, err := s.h.manager.DeductNow(s.ctx, ref, items("SKU-A", 2))
		s.Require().NoError(err)
		s.Len(ids, 1)

		rec := s.h.ledger(s.T(), "SKU-A")
		s.Equal(int64(8), rec.Total)
		s.Equal(int64(0), rec.Reserved)
		s.Equal(map[reservation.Status]int{reservation.StatusConfirmed: 1}, statuses(s.h.reservations(s.T(), ref)))
	})

	s.Run("在庫不足なら何も変わらない", func() {
		_, err := s.h.manager.DeductNow(s.ctx, uuid.New(), items("SKU-B", 4))
		s.True(errs.Is(err, errs.ErrInsufficientStock))
		s.Equal(int64(3), s.h.ledger(s.T(), "SKU-B").Available)
	})
}

func (s *ReservationManagerTestSuite) TestLowStockAlert() {
	// 閾値 2 を跨いだ操作だけが通知される
	_, err := s.h.manager.HoldAll(s.ctx, uuid.New(), items("SKU-A", 7))
	s.Require().NoError(err)
	s.Equal(0, countKind(s.h.outbox(s.T(), "SKU-A"), commands.KindInventoryLowStock))

	_, err = s.h.manager.HoldAll(s.ctx, uuid.New(), items("SKU-A", 1))
	s.Require().NoError(err)
	s.Equal(1, countKind(s.h.outbox(s.T(), "SKU-A"), commands.KindInventoryLowStock))

	_, err = s.h.manager.HoldAll(s.ctx, uuid.New(), items("SKU-A", 1))
	s.Require().NoError(err)
	msgs := s.h.outbox(s.T(), "SKU-A")
	s.Equal(1, countKind(msgs, commands.KindInventoryLowStock))
	s.Equal(4, countKind(msgs, commands.KindInventoryChanged))
}

func (s *ReservationManagerTestSuite) TestSnapshot() {
	n, err := s.h.manager.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), n)
}

func TestReservationManagerConcurrency(t *testing.T) {
	const (
		stock  = 10
		buyers = 40
	)

	t.Run("同一 SKU への同時確保は在庫数ちょうどで打ち止めになる", func(t *testing.T) {
		h := newHarness(t)
		h.provision(t, "HOT", stock)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			won       int
			shortages int
		)
		for range buyers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.manager.HoldAll(context.Background(), uuid.New(), items("HOT", 1))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					won++
				case errs.Is(err, errs.ErrInsufficientStock):
					shortages++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, stock, won)
		assert.Equal(t, buyers-stock, shortages)
		rec := h.ledger(t, "HOT")
		assert.Equal(t, int64(0), rec.Available)
		assert.Equal(t, int64(stock), rec.Reserved)
	})

	t.Run("衝突が続く SKU は悲観ロックに切り替わる", func(t *testing.T) {
		h := newHarness(t, func(c *config.Config) {
			c.Ledger.HotSKUThreshold = 1
		})
		h.provision(t, "HOT", 100)

		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.manager.HoldAll(context.Background(), uuid.New(), items("HOT", 1))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		rec := h.ledger(t, "HOT")
		require.Equal(t, int64(20), rec.Reserved)
		h.observer.mu.Lock()
		defer h.observer.mu.Unlock()
		if h.observer.conflicts > 0 {
			assert.Positive(t, h.observer.pessimistic)
		}
		assert.Zero(t, h.observer.exhausted)
	})
}
