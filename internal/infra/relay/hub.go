package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"checkout-saga/internal/domain/saga"
	"checkout-saga/internal/usecase/shared"
)

type MessageHandler func(ctx context.Context, msg shared.OutboxMessage) error

type TransitionListener func(ctx context.Context, t saga.Transition)

// Hub is the in-process relay. It stands in for Kafka when no brokers are
// configured and always carries transition listeners. Handlers are
// registered explicitly at startup.
type Hub struct {
	mu        sync.RWMutex
	handlers  map[string][]MessageHandler
	listeners []TransitionListener
}

func NewHub() *Hub {
	return &Hub{handlers: make(map[string][]MessageHandler)}
}

func (h *Hub) Subscribe(topic string, fn MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[topic] = append(h.handlers[topic], fn)
}

func (h *Hub) OnTransition(fn TransitionListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Publish hands msg to every handler of its topic. A topic nobody subscribed
// to is dropped, as a broker without consumers would.
func (h *Hub) Publish(ctx context.Context, msg shared.OutboxMessage) error {
	h.mu.RLock()
	handlers := append([]MessageHandler(nil), h.handlers[msg.Topic]...)
	h.mu.RUnlock()

	var errList []error
	for _, fn := range handlers {
		if err := fn(ctx, msg); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// Notify runs listeners in registration order. A panicking listener is
// logged and skipped.
func (h *Hub) Notify(ctx context.Context, t saga.Transition) {
	h.mu.RLock()
	listeners := append([]TransitionListener(nil), h.listeners...)
	h.mu.RUnlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("transition listener panicked",
						"saga_id", t.SagaID.String(),
						"to", t.To.String(),
						"panic", r)
				}
			}()
			fn(ctx, t)
		}()
	}
}
