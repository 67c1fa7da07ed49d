//go:build unit

package queries_test

import (
	"context"
	"testing"
	"time"

	"checkout-saga/internal/domain/saga"
	"checkout-saga/internal/infra/dedup"
	"checkout-saga/internal/infra/memstore"
	"checkout-saga/internal/pkg/clock"
	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/pkg/errs"
	"checkout-saga/internal/usecase/commands"
	"checkout-saga/internal/usecase/queries"
	"checkout-saga/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noPromotions struct{}

func (noPromotions) Evaluate(context.Context, shared.PromotionRequest) (shared.PromotionResult, error) {
	return shared.PromotionResult{}, nil
}

type fixture struct {
	manager   commands.ReservationManager
	checkout  commands.CheckoutCommands
	inventory queries.InventoryQueries
	checkouts queries.CheckoutQueries
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.NewTestConfig()
	clk := clock.NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	uow := memstore.NewUnitOfWork(memstore.NewStore())
	manager := commands.NewReservationManager(uow, clk, nil, cfg)
	f := &fixture{
		manager:   manager,
		checkout:  commands.NewCheckoutUseCase(uow, manager, noPromotions{}, dedup.NewMemoryDeduplicator(clk, time.Hour), nil, clk, cfg),
		inventory: queries.NewInventoryQueries(uow),
		checkouts: queries.NewCheckoutQueries(uow),
	}
	_, err := manager.Provision(context.Background(), "SKU-A", 10, "ops")
	require.NoError(t, err)
	return f
}

func TestInventoryQueries(t *testing.T) {
	ctx := context.Background()

	t.Run("台帳と履歴を新しい順に返す", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.Adjust(ctx, commands.AdjustCommand{SKUCode: "SKU-A", Quantity: 5, Reason: "restock", Operator: "ops"})
		require.NoError(t, err)
		_, err = f.manager.HoldAll(ctx, uuid.New(), []saga.LineItem{{SKUCode: "SKU-A", Quantity: 3, UnitPriceCents: 100}})
		require.NoError(t, err)

		view, err := f.inventory.GetBySKU(ctx, "SKU-A")
		require.NoError(t, err)
		assert.Equal(t, int64(15), view.Total)
		assert.Equal(t, int64(12), view.Available)
		assert.Equal(t, int64(3), view.Reserved)

		history, err := f.inventory.History(ctx, "SKU-A", 0)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, "RESERVE", history[0].Operation)
		assert.Equal(t, "restock", history[1].Reason)

		limited, err := f.inventory.History(ctx, "SKU-A", 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		all, err := f.inventory.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("存在しない SKU は ErrSKUNotFound", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.inventory.GetBySKU(ctx, "SKU-Z")
		assert.True(t, errs.Is(err, errs.ErrSKUNotFound))
		_, err = f.inventory.History(ctx, "SKU-Z", 10)
		assert.True(t, errs.Is(err, errs.ErrSKUNotFound))
	})
}

func TestCheckoutQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.checkout.Start(ctx, commands.CheckoutCommand{
		SagaID: uuid.New(),
		UserID: "user-1",
		Items:  []saga.LineItem{{SKUCode: "SKU-A", Quantity: 2, UnitPriceCents: 250}},
	})
	require.NoError(t, err)
	id := res.Saga.ID()

	view, err := f.checkouts.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, saga.StateAwaitingPayment.String(), view.State)
	assert.Equal(t, int64(500), view.TotalCents)
	require.Len(t, view.Reservations, 1)
	assert.Equal(t, "HELD", view.Reservations[0].Status)
	assert.NotNil(t, view.PaymentDeadline)

	events, err := f.checkouts.ListEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, commands.KindPaymentRequested, events[0].Kind)
	assert.Equal(t, shared.OutboxStatusQueued, events[0].Status)

	_, err = f.checkouts.GetByID(ctx, uuid.New())
	assert.True(t, errs.Is(err, errs.ErrSagaNotFound))
}
