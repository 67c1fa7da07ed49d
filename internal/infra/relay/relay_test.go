//go:build unit

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"checkout-saga/internal/domain/saga"
	"checkout-saga/internal/pkg/errs"
	"checkout-saga/internal/usecase/commands"
	"checkout-saga/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub(t *testing.T) {
	ctx := context.Background()

	t.Run("publish reaches every handler of the topic", func(t *testing.T) {
		hub := NewHub()
		var got []string
		hub.Subscribe("a", func(_ context.Context, msg shared.OutboxMessage) error {
			got = append(got, "a1:"+msg.Kind)
			return nil
		})
		hub.Subscribe("a", func(_ context.Context, msg shared.OutboxMessage) error {
			got = append(got, "a2:"+msg.Kind)
			return errors.New("handler failed")
		})
		hub.Subscribe("b", func(context.Context, shared.OutboxMessage) error {
			t.Error("handler of another topic called")
			return nil
		})

		err := hub.Publish(ctx, shared.OutboxMessage{Topic: "a", Kind: "k"})
		assert.EqualError(t, err, "handler failed")
		assert.Equal(t, []string{"a1:k", "a2:k"}, got)

		assert.NoError(t, hub.Publish(ctx, shared.OutboxMessage{Topic: "nobody"}))
	})

	t.Run("a panicking listener does not stop the others", func(t *testing.T) {
		hub := NewHub()
		var seen []saga.State
		hub.OnTransition(func(context.Context, saga.Transition) { panic("listener bug") })
		hub.OnTransition(func(_ context.Context, tr saga.Transition) { seen = append(seen, tr.To) })

		hub.Notify(ctx, saga.Transition{SagaID: uuid.New(), To: saga.StateCompleted})
		assert.Equal(t, []saga.State{saga.StateCompleted}, seen)
	})
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher(t *testing.T) {
	id := uuid.New()
	msg := shared.OutboxMessage{
		ID:      id,
		Kind:    commands.KindSagaCompleted,
		Topic:   "checkout.saga.events",
		Key:     "saga-1",
		Payload: []byte(`{"state":"COMPLETED"}`),
		Headers: map[string]string{"step_seq": "4", "kind": commands.KindSagaCompleted},
	}

	t.Run("writes key, payload and sorted headers", func(t *testing.T) {
		w := &fakeWriter{}
		require.NoError(t, NewKafkaPublisher(w).Publish(context.Background(), msg))

		require.Len(t, w.msgs, 1)
		km := w.msgs[0]
		assert.Equal(t, "checkout.saga.events", km.Topic)
		assert.Equal(t, []byte("saga-1"), km.Key)
		assert.JSONEq(t, `{"state":"COMPLETED"}`, string(km.Value))
		require.GreaterOrEqual(t, len(km.Headers), 3)
		assert.Equal(t, kafka.Header{Key: "message_id", Value: []byte(id.String())}, km.Headers[0])
		assert.Equal(t, "kind", km.Headers[1].Key)
		assert.Equal(t, "step_seq", km.Headers[2].Key)
	})

	t.Run("wraps writer errors", func(t *testing.T) {
		w := &fakeWriter{err: errors.New("leader not available")}
		err := NewKafkaPublisher(w).Publish(context.Background(), msg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "publish saga.completed to checkout.saga.events")
	})
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) offsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeCallbackHandler struct {
	mu       sync.Mutex
	failures map[uuid.UUID]error
	budget   map[uuid.UUID]int
	handled  []uuid.UUID
}

func (h *fakeCallbackHandler) HandlePaymentCallback(_ context.Context, cb commands.PaymentCallback) (*saga.Instance, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err, ok := h.failures[cb.SagaID]; ok && h.budget[cb.SagaID] > 0 {
		h.budget[cb.SagaID]--
		return nil, err
	}
	h.handled = append(h.handled, cb.SagaID)
	return nil, nil
}

func callbackMessage(t *testing.T, offset int64, cb commands.PaymentCallback) kafka.Message {
	t.Helper()
	b, err := json.Marshal(cb)
	require.NoError(t, err)
	return kafka.Message{Topic: "payment.callbacks", Offset: offset, Value: b}
}

func TestCallbackConsumer(t *testing.T) {
	ok := uuid.New()
	flaky := uuid.New()
	missing := uuid.New()

	reader := &fakeReader{queue: []kafka.Message{
		callbackMessage(t, 1, commands.PaymentCallback{SagaID: ok, StepSeq: 3, Outcome: saga.PaymentSucceeded}),
		{Topic: "payment.callbacks", Offset: 2, Value: []byte("{not json")},
		callbackMessage(t, 3, commands.PaymentCallback{SagaID: uuid.New(), StepSeq: 0, Outcome: saga.PaymentFailed}),
		callbackMessage(t, 4, commands.PaymentCallback{SagaID: flaky, StepSeq: 3, Outcome: saga.PaymentFailed}),
		callbackMessage(t, 5, commands.PaymentCallback{SagaID: missing, StepSeq: 3, Outcome: saga.PaymentSucceeded}),
	}}
	handler := &fakeCallbackHandler{
		failures: map[uuid.UUID]error{
			flaky:   errs.ErrLockTimeout,
			missing: errs.ErrSagaNotFound,
		},
		budget: map[uuid.UUID]int{flaky: 2, missing: 100},
	}

	consumer := NewCallbackConsumer(reader, handler)
	consumer.retry = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.offsets()) == 5 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, reader.offsets())
	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, []uuid.UUID{ok, flaky}, handler.handled)
	assert.Zero(t, handler.budget[flaky])
	assert.Equal(t, 99, handler.budget[missing])
}
