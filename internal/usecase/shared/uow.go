package shared

import (
	"context"
	"time"

	"checkout-saga/internal/domain/inventory"
	"checkout-saga/internal/domain/reservation"
	"checkout-saga/internal/domain/saga"

	"github.com/google/uuid"
)

type UnitOfWork interface {
	// Within: Full transaction for write operations with retry logic
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// WithinReadOnly: Read-only transaction for multi-table consistent reads
	WithinReadOnly(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes repositories bound to one transaction.
type Tx interface {
	Inventory() InventoryRepository
	Reservations() ReservationRepository
	Sagas() SagaRepository
	Outbox() OutboxRepository
	InventoryLogs() InventoryLogRepository
	Snapshots() SnapshotRepository
}

// InventoryRepository is the ledger. TryApply is the optimistic path and
// ApplyLocked the pessimistic one; both bump the version on success.
type InventoryRepository interface {
	Get(ctx context.Context, sku string) (*inventory.Record, error)
	List(ctx context.Context) ([]*inventory.Record, error)
	Create(ctx context.Context, rec *inventory.Record) error
	// TryApply applies d only if the row is still at version. The caller must
	// have validated d against the record it read at that version.
	// Returns errs.ErrVersionConflict or errs.ErrSKUNotFound.
	TryApply(ctx context.Context, sku string, version int64, d inventory.Delta, now time.Time) (*inventory.Record, error)
	// ApplyLocked takes an exclusive row lock bounded by lockTimeout.
	// Returns errs.ErrLockTimeout, errs.ErrSKUNotFound or a domain error from Record.Apply.
	ApplyLocked(ctx context.Context, sku string, d inventory.Delta, lockTimeout time.Duration, now time.Time) (*inventory.Record, error)
}

type ReservationRepository interface {
	Insert(ctx context.Context, r *reservation.Reservation) error
	Get(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error)
	// GetForUpdate locks the row until the transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error)
	// UpdateStatus writes r only if the stored status is still from.
	UpdateStatus(ctx context.Context, r *reservation.Reservation, from reservation.Status) error
	ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error)
	ListBySaga(ctx context.Context, sagaID uuid.UUID) ([]*reservation.Reservation, error)
}

type SagaRepository interface {
	Create(ctx context.Context, inst *saga.Instance) error
	Get(ctx context.Context, id uuid.UUID) (*saga.Instance, error)
	// Update persists inst only if the stored step_seq equals expectedStepSeq.
	// Returns errs.ErrStaleStep otherwise.
	Update(ctx context.Context, inst *saga.Instance, expectedStepSeq int64) error
	ListOverduePayments(ctx context.Context, now time.Time, limit int) ([]*saga.Instance, error)
	ListStalled(ctx context.Context, states []saga.State, updatedBefore time.Time, limit int) ([]*saga.Instance, error)
	ArchiveTerminal(ctx context.Context, updatedBefore time.Time, limit int) (int64, error)
}

const (
	OutboxStatusQueued = "queued"
	OutboxStatusSent   = "sent"
	OutboxStatusFailed = "failed"
)

type OutboxMessage struct {
	ID        uuid.UUID
	Kind      string
	Topic     string
	Key       string
	Payload   []byte
	Headers   map[string]string
	Status    string
	Attempts  int
	LastError string
	RunAt     time.Time
	CreatedAt time.Time
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) error
	// ClaimDue returns queued messages whose run_at has passed, oldest first,
	// locked against concurrent dispatchers for the rest of the transaction.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error)
	MarkSent(ctx context.Context, id uuid.UUID, now time.Time) error
	MarkRetry(ctx context.Context, id uuid.UUID, attempts int, nextRunAt time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string) error
	ListBySaga(ctx context.Context, key string) ([]OutboxMessage, error)
}

type InventoryLogRepository interface {
	Append(ctx context.Context, entry inventory.LogEntry) error
	ListBySKU(ctx context.Context, sku string, limit int) ([]inventory.LogEntry, error)
}

type SnapshotRepository interface {
	SnapshotAll(ctx context.Context, takenAt time.Time) (int64, error)
	ListByTakenAt(ctx context.Context, takenAt time.Time) ([]inventory.Snapshot, error)
}
