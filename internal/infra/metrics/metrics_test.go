//go:build unit

package metrics_test

import (
	"context"
	"errors"
	"testing"

	"checkout-saga/internal/domain/saga"
	"checkout-saga/internal/infra/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollectors(reg)

	c.ObserveConflict("SKU-1")
	c.ObserveConflict("SKU-1")
	c.ObservePessimistic("SKU-1")
	c.ObserveTransition(context.Background(), saga.Transition{From: saga.StateCompensating, To: saga.StateFailed, Reason: saga.ReasonPaymentTimeout})
	c.ObserveTransition(context.Background(), saga.Transition{From: saga.StateStarted, To: saga.StateReserving})
	c.ObserveDispatch("payment.requested", nil)
	c.ObserveDispatch("payment.requested", errors.New("broker down"))

	n, err := testutil.GatherAndCount(reg, "checkout_ledger_cas_conflicts_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = testutil.GatherAndCount(reg, "checkout_saga_outcomes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = testutil.GatherAndCount(reg, "checkout_saga_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = testutil.GatherAndCount(reg, "checkout_outbox_dispatched_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
