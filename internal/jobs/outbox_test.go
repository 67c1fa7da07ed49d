//go:build unit

package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"checkout-saga/internal/infra/memstore"
	"checkout-saga/internal/jobs"
	"checkout-saga/internal/pkg/clock"
	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu     sync.Mutex
	sent   []string
	failOn map[string]bool
}

func (p *fakePublisher) Publish(_ context.Context, msg shared.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn[msg.Kind] {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, msg.Kind)
	return nil
}

type dispatchCounter struct {
	ok, failed, batches int
}

func (c *dispatchCounter) ObserveDispatch(_ string, err error) {
	if err != nil {
		c.failed++
		return
	}
	c.ok++
}

func (c *dispatchCounter) ObserveBatch(int) { c.batches++ }

func enqueue(t *testing.T, uow shared.UnitOfWork, now time.Time, kinds ...string) {
	t.Helper()
	require.NoError(t, uow.Within(context.Background(), func(ctx context.Context, tx shared.Tx) error {
		for _, kind := range kinds {
			err := tx.Outbox().Enqueue(ctx, shared.OutboxMessage{
				ID:        uuid.New(),
				Kind:      kind,
				Topic:     "events",
				Key:       "key-1",
				Payload:   []byte(`{}`),
				Status:    shared.OutboxStatusQueued,
				RunAt:     now,
				CreatedAt: now,
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))
}

func outboxByKind(t *testing.T, uow shared.UnitOfWork) map[string]shared.OutboxMessage {
	t.Helper()
	msgs, err := shared.ReadInTx(context.Background(), uow, func(ctx context.Context, tx shared.Tx) ([]shared.OutboxMessage, error) {
		return tx.Outbox().ListBySaga(ctx, "key-1")
	})
	require.NoError(t, err)
	out := make(map[string]shared.OutboxMessage, len(msgs))
	for _, m := range msgs {
		out[m.Kind] = m
	}
	return out
}

func TestDispatcher(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := config.NewTestConfig().Outbox

	t.Run("送信できたものは sent、失敗は再試行を経て failed になる", func(t *testing.T) {
		clk := clock.NewMockClock(now)
		uow := memstore.NewUnitOfWork(memstore.NewStore())
		publisher := &fakePublisher{failOn: map[string]bool{"bad": true}}
		counter := &dispatchCounter{}
		d := jobs.NewDispatcher(uow, publisher, clk, counter, cfg)
		enqueue(t, uow, now, "first", "bad", "second")

		sent, err := d.DispatchOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, sent)
		assert.Equal(t, []string{"first", "second"}, publisher.sent)

		msgs := outboxByKind(t, uow)
		assert.Equal(t, shared.OutboxStatusSent, msgs["first"].Status)
		assert.Equal(t, shared.OutboxStatusQueued, msgs["bad"].Status)
		assert.Equal(t, 1, msgs["bad"].Attempts)
		assert.True(t, msgs["bad"].RunAt.After(now))
		assert.Equal(t, "broker unavailable", msgs["bad"].LastError)

		// 再試行時刻まではクレームされない
		sent, err = d.DispatchOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, sent)
		assert.Equal(t, 1, counter.failed)

		for range cfg.MaxAttempts - 1 {
			clk.Add(time.Minute)
			_, err = d.DispatchOnce(context.Background())
			require.NoError(t, err)
		}
		msgs = outboxByKind(t, uow)
		assert.Equal(t, shared.OutboxStatusFailed, msgs["bad"].Status)
		assert.Equal(t, cfg.MaxAttempts, msgs["bad"].Attempts)

		clk.Add(time.Hour)
		_, err = d.DispatchOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, cfg.MaxAttempts, counter.failed)
		assert.Equal(t, 2, counter.ok)
	})

	t.Run("observer なしでも動く", func(t *testing.T) {
		uow := memstore.NewUnitOfWork(memstore.NewStore())
		publisher := &fakePublisher{}
		d := jobs.NewDispatcher(uow, publisher, clock.NewMockClock(now), nil, cfg)
		enqueue(t, uow, now, "only")

		require.NoError(t, d.Run(context.Background()))
		assert.Equal(t, []string{"only"}, publisher.sent)
	})
}
