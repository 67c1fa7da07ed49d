package components

import (
	"log/slog"

	"checkout-saga/internal/infra/memstore"
	"checkout-saga/internal/infra/uow"
	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/usecase/shared"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
)

var PersistenceModule = fx.Module("persistence",
	fx.Provide(
		NewUnitOfWork,
	),
)

// NewUnitOfWork picks the store by STORE_DRIVER. The pool is nil for the
// memory driver.
func NewUnitOfWork(cfg config.Config, pool *pgxpool.Pool) shared.UnitOfWork {
	if cfg.Store.Driver == config.StoreDriverMemory || pool == nil {
		slog.Warn("using in-memory store, data is lost on restart")
		return memstore.NewUnitOfWork(memstore.NewStore(memstore.WithLockWait(cfg.Ledger.LockTimeout)))
	}
	return uow.NewPostgresUoW(pool)
}
