package metrics

import (
	"context"

	"checkout-saga/internal/domain/saga"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "checkout"

// Collectors implements shared.LedgerObserver and counts saga transitions
// and outbox dispatches.
type Collectors struct {
	casConflicts     *prometheus.CounterVec
	pessimisticWrite *prometheus.CounterVec
	retryExhausted   *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	outcomes         *prometheus.CounterVec
	outboxDispatched *prometheus.CounterVec
	outboxBacklog    prometheus.Gauge
	sweptHolds       prometheus.Counter
}

func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		casConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "cas_conflicts_total",
			Help:      "Optimistic ledger writes that lost a version race.",
		}, []string{"sku"}),
		pessimisticWrite: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "pessimistic_writes_total",
			Help:      "Ledger writes taken under a row lock for a hot SKU.",
		}, []string{"sku"}),
		retryExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "retry_exhausted_total",
			Help:      "Ledger operations that gave up after the retry budget.",
		}, []string{"sku"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "transitions_total",
			Help:      "Persisted saga state transitions.",
		}, []string{"from", "to"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "outcomes_total",
			Help:      "Sagas that reached a terminal state, by failure reason.",
		}, []string{"state", "reason"}),
		outboxDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "dispatched_total",
			Help:      "Outbox messages handed to the relay, by result.",
		}, []string{"kind", "result"}),
		outboxBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "last_batch_size",
			Help:      "Messages claimed by the last dispatcher poll.",
		}),
		sweptHolds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reservation",
			Name:      "expired_sagas_total",
			Help:      "Sagas whose holds were released by the TTL sweep.",
		}),
	}
	reg.MustRegister(
		c.casConflicts,
		c.pessimisticWrite,
		c.retryExhausted,
		c.transitions,
		c.outcomes,
		c.outboxDispatched,
		c.outboxBacklog,
		c.sweptHolds,
	)
	return c
}

func (c *Collectors) ObserveConflict(sku string)    { c.casConflicts.WithLabelValues(sku).Inc() }
func (c *Collectors) ObservePessimistic(sku string) { c.pessimisticWrite.WithLabelValues(sku).Inc() }
func (c *Collectors) ObserveExhausted(sku string)   { c.retryExhausted.WithLabelValues(sku).Inc() }

// ObserveTransition is registered as a transition listener on the relay hub.
func (c *Collectors) ObserveTransition(_ context.Context, t saga.Transition) {
	c.transitions.WithLabelValues(t.From.String(), t.To.String()).Inc()
	if t.To.IsTerminal() {
		c.outcomes.WithLabelValues(t.To.String(), t.Reason.String()).Inc()
	}
}

func (c *Collectors) ObserveDispatch(kind string, err error) {
	result := "sent"
	if err != nil {
		result = "error"
	}
	c.outboxDispatched.WithLabelValues(kind, result).Inc()
}

func (c *Collectors) ObserveBatch(n int) {
	c.outboxBacklog.Set(float64(n))
}

func (c *Collectors) ObserveSwept(sagas int) {
	c.sweptHolds.Add(float64(sagas))
}
