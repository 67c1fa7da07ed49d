//go:build unit

package commands_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"checkout-saga/internal/domain/reservation"
	"checkout-saga/internal/domain/saga"
	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/pkg/errs"
	"checkout-saga/internal/usecase/commands"
	"checkout-saga/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type CheckoutTestSuite struct {
	suite.Suite
	h   *harness
	ctx context.Context
}

func (s *CheckoutTestSuite) SetupTest() {
	s.h = newHarness(s.T())
	s.ctx = context.Background()
	s.h.provision(s.T(), "SKU-A", 10)
	s.h.provision(s.T(), "SKU-B", 2)
}

func (s *CheckoutTestSuite) SetupSubTest() {
	s.SetupTest()
}

func TestCheckoutTestSuite(t *testing.T) {
	suite.Run(t, new(CheckoutTestSuite))
}

func (s *CheckoutTestSuite) start(lineItems ...saga.LineItem) *saga.Instance {
	res, err := s.h.checkout.Start(s.ctx, commands.CheckoutCommand{
		SagaID: uuid.New(),
		UserID: "user-1",
		Items:  lineItems,
	})
	s.Require().NoError(err)
	return res.Saga
}

func (s *CheckoutTestSuite) callback(inst *saga.Instance, outcome saga.PaymentOutcome) *saga.Instance {
	got, err := s.h.checkout.HandlePaymentCallback(s.ctx, commands.PaymentCallback{
		SagaID:  inst.ID(),
		StepSeq: inst.StepSeq(),
		Outcome: outcome,
	})
	s.Require().NoError(err)
	return got
}

func (s *CheckoutTestSuite) assertUntouched() {
	for sku, total := range map[string]int64{"SKU-A": 10, "SKU-B": 2} {
		rec := s.h.ledger(s.T(), sku)
		s.Equal(total, rec.Total, sku)
		s.Equal(total, rec.Available, sku)
		s.Zero(rec.Reserved, sku)
	}
}

func (s *CheckoutTestSuite) TestStart() {
	s.Run("支払い待ちまで進み、支払い要求を一度だけ積む", func() {
		s.h.promotions.discount = 150
		s.h.promotions.applied = []string{"SUMMER"}

		inst := s.start(items("SKU-B", 1, "SKU-A", 3)...)

		s.Equal(saga.StateAwaitingPayment, inst.State())
		s.Equal(int64(3), inst.StepSeq())
		s.Len(inst.ReservationIDs(), 2)
		s.Equal(int64(400), inst.SubtotalCents())
		s.Equal(int64(250), inst.TotalCents())
		s.Equal([]string{"SUMMER"}, inst.AppliedPromotions())
		s.Require().NotNil(inst.PaymentDeadline())
		s.Equal(start.Add(s.h.cfg.Saga.PaymentTimeout), *inst.PaymentDeadline())

		s.Equal([]saga.State{saga.StateReserving, saga.StateReserved, saga.StateAwaitingPayment}, s.h.notifier.states(inst.ID()))
		s.Equal(1, countKind(s.h.outbox(s.T(), inst.ID().String()), commands.KindPaymentRequested))
		s.Equal(int64(3), s.h.ledger(s.T(), "SKU-A").Reserved)
		s.Equal(int64(1), s.h.ledger(s.T(), "SKU-B").Reserved)
	})

	s.Run("同じリクエストの再送は既存のサガを返す", func() {
		cmd := commands.CheckoutCommand{SagaID: uuid.New(), UserID: "user-1", Items: items("SKU-A", 1)}
		first, err := s.h.checkout.Start(s.ctx, cmd)
		s.Require().NoError(err)

		replayed, err := s.h.checkout.Start(s.ctx, cmd)
		s.Require().NoError(err)
		s.True(replayed.IsReplayed)
		s.Equal(first.Saga.StepSeq(), replayed.Saga.StepSeq())
		s.Equal(int64(1), s.h.ledger(s.T(), "SKU-A").Reserved)
	})

	s.Run("同じ ID で内容が違うリクエストは ErrDuplicateCheckout", func() {
		id := uuid.New()
		_, err := s.h.checkout.Start(s.ctx, commands.CheckoutCommand{SagaID: id, UserID: "user-1", Items: items("SKU-A", 1)})
		s.Require().NoError(err)

		_, err = s.h.checkout.Start(s.ctx, commands.CheckoutCommand{SagaID: id, UserID: "user-1", Items: items("SKU-A", 2)})
		s.True(errs.Is(err, errs.ErrDuplicateCheckout))
	})

	s.Run("入力不正は ErrInvalidCheckout", func() {
		for name, cmd := range map[string]commands.CheckoutCommand{
			"ID なし":    {UserID: "user-1", Items: items("SKU-A", 1)},
			"ユーザーなし": {SagaID: uuid.New(), Items: items("SKU-A", 1)},
			"明細なし":    {SagaID: uuid.New(), UserID: "user-1"},
			"数量ゼロ":    {SagaID: uuid.New(), UserID: "user-1", Items: items("SKU-A", 0)},
		} {
			_, err := s.h.checkout.Start(s.ctx, cmd)
			s.True(errs.Is(err, errs.ErrInvalidCheckout), name)
		}
	})
}

func (s *CheckoutTestSuite) TestStartFails() {
	testCases := []struct {
		name   string
		items  []saga.LineItem
		reason saga.FailureReason
	}{
		{name: "在庫不足", items: items("SKU-A", 2, "SKU-B", 3), reason: saga.ReasonInsufficientStock},
		{name: "存在しない SKU", items: items("SKU-A", 1, "SKU-Z", 1), reason: saga.ReasonSKUNotFound},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			inst := s.start(tc.items...)

			s.Equal(saga.StateFailed, inst.State())
			s.Equal(tc.reason, inst.FailureReason())
			s.Empty(inst.ReservationIDs())
			s.assertUntouched()
			s.Equal(1, countKind(s.h.outbox(s.T(), inst.ID().String()), commands.KindSagaFailed))
			s.Zero(countKind(s.h.outbox(s.T(), inst.ID().String()), commands.KindPaymentRequested))
		})
	}

	s.Run("プロモーション評価の失敗は補償して PROMOTION_INVALID", func() {
		s.h.promotions.err = errors.New("promotion service unavailable")

		inst := s.start(items("SKU-A", 2)...)

		s.Equal(saga.StateFailed, inst.State())
		s.Equal(saga.ReasonPromotionInvalid, inst.FailureReason())
		s.Equal([]saga.State{saga.StateReserving, saga.StateReserved, saga.StateCompensating, saga.StateFailed}, s.h.notifier.states(inst.ID()))
		s.assertUntouched()
		s.Equal(map[reservation.Status]int{reservation.StatusReleased: 1}, statuses(s.h.reservations(s.T(), inst.ID())))
	})
}

func (s *CheckoutTestSuite) TestPaymentCallback() {
	s.Run("支払い成功で引当が確定し注文 ID が付く", func() {
		inst := s.start(items("SKU-A", 3)...)

		got := s.callback(inst, saga.PaymentSucceeded)

		s.Equal(saga.StateCompleted, got.State())
		s.NotNil(got.OrderID())
		rec := s.h.ledger(s.T(), "SKU-A")
		s.Equal(int64(7), rec.Total)
		s.Zero(rec.Reserved)
		s.Equal(1, countKind(s.h.outbox(s.T(), inst.ID().String()), commands.KindSagaCompleted))
	})

	s.Run("重複したコールバックは何もしない", func() {
		inst := s.start(items("SKU-A", 3)...)
		first := s.callback(inst, saga.PaymentSucceeded)

		second := s.callback(inst, saga.PaymentSucceeded)

		s.Equal(first.StepSeq(), second.StepSeq())
		s.Equal(int64(7), s.h.ledger(s.T(), "SKU-A").Total)
		s.Equal(1, countKind(s.h.outbox(s.T(), inst.ID().String()), commands.KindSagaCompleted))
	})

	s.Run("古い stepSeq のコールバックは無視される", func() {
		inst := s.start(items("SKU-A", 3)...)

		got, err := s.h.checkout.HandlePaymentCallback(s.ctx, commands.PaymentCallback{
			SagaID:  inst.ID(),
			StepSeq: inst.StepSeq() - 1,
			Outcome: saga.PaymentSucceeded,
		})
		s.Require().NoError(err)
		s.Equal(saga.StateAwaitingPayment, got.State())
		s.Equal(int64(3), s.h.ledger(s.T(), "SKU-A").Reserved)
	})

	s.Run("支払い失敗は確保を解放して PAYMENT_FAILED", func() {
		inst := s.start(items("SKU-A", 3, "SKU-B", 2)...)

		got := s.callback(inst, saga.PaymentFailed)

		s.Equal(saga.StateFailed, got.State())
		s.Equal(saga.ReasonPaymentFailed, got.FailureReason())
		s.Equal("payment declined", got.FailureDetail())
		s.assertUntouched()
	})

	s.Run("不正なコールバックは ErrInvalidCheckout", func() {
		_, err := s.h.checkout.HandlePaymentCallback(s.ctx, commands.PaymentCallback{
			SagaID:  uuid.New(),
			StepSeq: 1,
			Outcome: "MAYBE",
		})
		s.True(errs.Is(err, errs.ErrInvalidCheckout))
	})

	s.Run("存在しないサガは ErrSagaNotFound で、再送できるよう重複キーを戻す", func() {
		cb := commands.PaymentCallback{SagaID: uuid.New(), StepSeq: 3, Outcome: saga.PaymentSucceeded}
		_, err := s.h.checkout.HandlePaymentCallback(s.ctx, cb)
		s.True(errs.Is(err, errs.ErrSagaNotFound))

		_, err = s.h.checkout.HandlePaymentCallback(s.ctx, cb)
		s.True(errs.Is(err, errs.ErrSagaNotFound))
	})
}

func (s *CheckoutTestSuite) TestPaymentTimeout() {
	s.Run("期限切れで補償され、遅れた成功通知は無視される", func() {
		inst := s.start(items("SKU-A", 3)...)

		n, err := s.h.checkout.HandlePaymentTimeouts(s.ctx, 10)
		s.Require().NoError(err)
		s.Zero(n)

		s.h.clock.Add(s.h.cfg.Saga.PaymentTimeout + time.Second)
		n, err = s.h.checkout.HandlePaymentTimeouts(s.ctx, 10)
		s.Require().NoError(err)
		s.Equal(1, n)

		failed := s.h.saga(s.T(), inst.ID())
		s.Equal(saga.StateFailed, failed.State())
		s.Equal(saga.ReasonPaymentTimeout, failed.FailureReason())
		s.assertUntouched()

		late := s.callback(inst, saga.PaymentSucceeded)
		s.Equal(saga.StateFailed, late.State())
		s.assertUntouched()
	})

	s.Run("期限前のタイムアウト処理は何もしない", func() {
		inst := s.start(items("SKU-A", 1)...)
		s.Require().NoError(s.h.checkout.HandlePaymentTimeout(s.ctx, inst.ID()))
		s.Equal(saga.StateAwaitingPayment, s.h.saga(s.T(), inst.ID()).State())
	})
}

func (s *CheckoutTestSuite) TestHoldExpiry() {
	s.Run("掃除で確保が失効したサガは RESERVATION_EXPIRED", func() {
		s.h = newHarness(s.T(), func(c *config.Config) { c.Saga.PaymentTimeout = time.Hour })
		s.h.provision(s.T(), "SKU-A", 10)
		s.h.provision(s.T(), "SKU-B", 2)
		inst := s.start(items("SKU-A", 2)...)

		s.h.clock.Add(s.h.cfg.Reservation.TTL + time.Second)
		sagaIDs, err := s.h.manager.SweepExpired(s.ctx, 10)
		s.Require().NoError(err)
		s.Require().NoError(s.h.checkout.HandleHoldsExpired(s.ctx, sagaIDs))

		got := s.h.saga(s.T(), inst.ID())
		s.Equal(saga.StateFailed, got.State())
		s.Equal(saga.ReasonReservationExpired, got.FailureReason())
		s.assertUntouched()
	})

	s.Run("TTL 後に届いた成功通知は確定できず RESERVATION_EXPIRED", func() {
		s.h = newHarness(s.T(), func(c *config.Config) { c.Saga.PaymentTimeout = time.Hour })
		s.h.provision(s.T(), "SKU-A", 10)
		s.h.provision(s.T(), "SKU-B", 2)
		inst := s.start(items("SKU-A", 2)...)

		s.h.clock.Add(s.h.cfg.Reservation.TTL + time.Second)
		got := s.callback(inst, saga.PaymentSucceeded)

		s.Equal(saga.StateFailed, got.State())
		s.Equal(saga.ReasonReservationExpired, got.FailureReason())
		s.assertUntouched()
	})
}

func (s *CheckoutTestSuite) TestCancel() {
	s.Run("支払い待ちのサガは補償して CANCELLED、再度の取消は同じ結果", func() {
		inst := s.start(items("SKU-A", 4)...)

		got, err := s.h.checkout.Cancel(s.ctx, inst.ID())
		s.Require().NoError(err)
		s.Equal(saga.StateFailed, got.State())
		s.Equal(saga.ReasonCancelled, got.FailureReason())
		s.assertUntouched()

		again, err := s.h.checkout.Cancel(s.ctx, inst.ID())
		s.Require().NoError(err)
		s.Equal(got.StepSeq(), again.StepSeq())
	})

	s.Run("完了したサガは取り消せない", func() {
		inst := s.start(items("SKU-A", 1)...)
		s.callback(inst, saga.PaymentSucceeded)

		_, err := s.h.checkout.Cancel(s.ctx, inst.ID())
		s.True(errs.Is(err, errs.ErrCancelNotAllowed))
	})

	s.Run("別の理由で失敗したサガは取り消せない", func() {
		inst := s.start(items("SKU-B", 5)...)
		_, err := s.h.checkout.Cancel(s.ctx, inst.ID())
		s.True(errs.Is(err, errs.ErrCancelNotAllowed))
	})

	s.Run("存在しないサガは ErrSagaNotFound", func() {
		_, err := s.h.checkout.Cancel(s.ctx, uuid.New())
		s.True(errs.Is(err, errs.ErrSagaNotFound))
	})
}

func (s *CheckoutTestSuite) TestResumeStalled() {
	inst, err := saga.New(uuid.New(), "user-1", items("SKU-A", 2), s.h.clock.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.h.uow.Within(s.ctx, func(ctx context.Context, tx shared.Tx) error {
		return tx.Sagas().Create(ctx, inst)
	}))

	n, err := s.h.checkout.ResumeStalled(s.ctx, 10)
	s.Require().NoError(err)
	s.Zero(n)

	s.h.clock.Add(s.h.cfg.Saga.StallAfter + time.Second)
	n, err = s.h.checkout.ResumeStalled(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(1, n)

	got := s.h.saga(s.T(), inst.ID())
	s.Equal(saga.StateAwaitingPayment, got.State())
	s.Equal(int64(2), s.h.ledger(s.T(), "SKU-A").Reserved)
}

func (s *CheckoutTestSuite) TestResumeAfterInfrastructureFailure() {
	s.Run("引当中の DB 障害は再開後に支払い待ちへ進む", func() {
		sagaID := uuid.New()
		s.h.faults.failInsertOnce("SKU-B")

		_, err := s.h.checkout.Start(s.ctx, commands.CheckoutCommand{
			SagaID: sagaID,
			UserID: "user-1",
			Items:  items("SKU-A", 1, "SKU-B", 1),
		})
		s.Require().Error(err)
		s.Equal(saga.StateReserving, s.h.saga(s.T(), sagaID).State())

		s.h.clock.Add(s.h.cfg.Saga.StallAfter + time.Second)
		n, err := s.h.checkout.ResumeStalled(s.ctx, 10)
		s.Require().NoError(err)
		s.Equal(1, n)

		got := s.h.saga(s.T(), sagaID)
		s.Equal(saga.StateAwaitingPayment, got.State(), "reason=%s detail=%s", got.FailureReason(), got.FailureDetail())
		s.Equal(int64(1), s.h.ledger(s.T(), "SKU-A").Reserved)
		s.Equal(int64(1), s.h.ledger(s.T(), "SKU-B").Reserved)
		s.Equal(map[reservation.Status]int{reservation.StatusHeld: 2}, statuses(s.h.reservations(s.T(), sagaID)))
	})
}

func (s *CheckoutTestSuite) TestArchiveTerminal() {
	done := s.start(items("SKU-A", 1)...)
	s.callback(done, saga.PaymentSucceeded)
	pending := s.start(items("SKU-A", 1)...)

	s.h.clock.Add(s.h.cfg.Saga.ArchiveAfter + time.Minute)
	n, err := s.h.checkout.ArchiveTerminal(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.h.checkout.ArchiveTerminal(s.ctx, 10)
	s.Require().NoError(err)
	s.Zero(n)

	// アーカイブ後も参照はできる
	s.Equal(saga.StateCompleted, s.h.saga(s.T(), done.ID()).State())
	s.Equal(saga.StateAwaitingPayment, s.h.saga(s.T(), pending.ID()).State())
}

func TestCheckoutTimeoutRace(t *testing.T) {
	// タイムアウトと成功通知が同時に届いても、確定と解放の両方が起きることはない
	for range 20 {
		h := newHarness(t)
		h.provision(t, "SKU-A", 10)
		ctx := context.Background()

		res, err := h.checkout.Start(ctx, commands.CheckoutCommand{SagaID: uuid.New(), UserID: "user-1", Items: items("SKU-A", 3)})
		require.NoError(t, err)
		inst := res.Saga
		h.clock.Add(h.cfg.Saga.PaymentTimeout + time.Second)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := h.checkout.HandlePaymentCallback(ctx, commands.PaymentCallback{
				SagaID: inst.ID(), StepSeq: inst.StepSeq(), Outcome: saga.PaymentSucceeded,
			})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, h.checkout.HandlePaymentTimeout(ctx, inst.ID()))
		}()
		wg.Wait()

		got := h.saga(t, inst.ID())
		rec := h.ledger(t, "SKU-A")
		assert.Zero(t, rec.Reserved)
		switch got.State() {
		case saga.StateCompleted:
			assert.Equal(t, int64(7), rec.Total)
			assert.Equal(t, map[reservation.Status]int{reservation.StatusConfirmed: 1}, statuses(h.reservations(t, inst.ID())))
		case saga.StateFailed:
			assert.Equal(t, saga.ReasonPaymentTimeout, got.FailureReason())
			assert.Equal(t, int64(10), rec.Total)
			assert.Equal(t, map[reservation.Status]int{reservation.StatusReleased: 1}, statuses(h.reservations(t, inst.ID())))
		default:
			t.Fatalf("unexpected state %s", got.State())
		}
	}
}

func TestCheckoutTwoBuyersForSevenOfTen(t *testing.T) {
	h := newHarness(t)
	h.provision(t, "X", 10)
	ctx := context.Background()

	results := make([]*saga.Instance, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.checkout.Start(ctx, commands.CheckoutCommand{SagaID: uuid.New(), UserID: "user-1", Items: items("X", 7)})
			if assert.NoError(t, err) {
				results[i] = res.Saga
			}
		}()
	}
	wg.Wait()

	var winner *saga.Instance
	failed := 0
	for _, inst := range results {
		require.NotNil(t, inst)
		switch inst.State() {
		case saga.StateAwaitingPayment:
			winner = inst
		case saga.StateFailed:
			assert.Equal(t, saga.ReasonInsufficientStock, inst.FailureReason())
			failed++
		}
	}
	require.NotNil(t, winner)
	require.Equal(t, 1, failed)

	_, err := h.checkout.HandlePaymentCallback(ctx, commands.PaymentCallback{
		SagaID: winner.ID(), StepSeq: winner.StepSeq(), Outcome: saga.PaymentSucceeded,
	})
	require.NoError(t, err)

	rec := h.ledger(t, "X")
	assert.Equal(t, int64(3), rec.Total)
	assert.Equal(t, int64(3), rec.Available)
	assert.Zero(t, rec.Reserved)
}
