package memstore

import (
	"context"
	"sort"
	"time"

	"checkout-saga/internal/domain/inventory"
	"checkout-saga/internal/infra"
	"checkout-saga/internal/usecase/shared"

	"github.com/google/uuid"
)

type outboxRepo struct {
	tx *tx
}

func (r *outboxRepo) Enqueue(_ context.Context, msg shared.OutboxMessage) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Status == "" {
		msg.Status = shared.OutboxStatusQueued
	}
	r.tx.outboxNew = append(r.tx.outboxNew, msg)
	return nil
}

func (r *outboxRepo) ClaimDue(_ context.Context, now time.Time, limit int) ([]shared.OutboxMessage, error) {
	var out []shared.OutboxMessage
	for _, msg := range r.all() {
		if limit > 0 && len(out) >= limit {
			break
		}
		if msg.Status != shared.OutboxStatusQueued || msg.RunAt.After(now) {
			continue
		}
		if !r.tx.tryLock(outboxKey(msg.ID)) {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (r *outboxRepo) MarkSent(_ context.Context, id uuid.UUID, _ time.Time) error {
	return r.update(id, func(m *shared.OutboxMessage) {
		m.Status = shared.OutboxStatusSent
		m.LastError = ""
	})
}

func (r *outboxRepo) MarkRetry(_ context.Context, id uuid.UUID, attempts int, nextRunAt time.Time, lastErr string) error {
	return r.update(id, func(m *shared.OutboxMessage) {
		m.Attempts = attempts
		m.RunAt = nextRunAt
		m.LastError = lastErr
	})
}

func (r *outboxRepo) MarkFailed(_ context.Context, id uuid.UUID, attempts int, lastErr string) error {
	return r.update(id, func(m *shared.OutboxMessage) {
		m.Status = shared.OutboxStatusFailed
		m.Attempts = attempts
		m.LastError = lastErr
	})
}

func (r *outboxRepo) ListBySaga(_ context.Context, key string) ([]shared.OutboxMessage, error) {
	var out []shared.OutboxMessage
	for _, msg := range r.all() {
		if msg.Key == key {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (r *outboxRepo) update(id uuid.UUID, mutate func(*shared.OutboxMessage)) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	for _, msg := range r.all() {
		if msg.ID == id {
			mutate(&msg)
			r.tx.outboxUpd[id] = msg
			return nil
		}
	}
	return infra.NewRepoErr(infra.KindNotFound, "outbox message not found: "+id.String())
}

// all returns committed and staged messages in insertion order.
func (r *outboxRepo) all() []shared.OutboxMessage {
	r.tx.store.mu.Lock()
	out := make([]shared.OutboxMessage, 0, len(r.tx.store.outbox)+len(r.tx.outboxNew))
	out = append(out, r.tx.store.outbox...)
	r.tx.store.mu.Unlock()
	out = append(out, r.tx.outboxNew...)
	for i := range out {
		if upd, ok := r.tx.outboxUpd[out[i].ID]; ok {
			out[i] = upd
		}
	}
	return out
}

type logRepo struct {
	tx *tx
}

func (r *logRepo) Append(_ context.Context, entry inventory.LogEntry) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	r.tx.logs = append(r.tx.logs, entry)
	return nil
}

// ListBySKU returns the newest entries first.
func (r *logRepo) ListBySKU(_ context.Context, sku string, limit int) ([]inventory.LogEntry, error) {
	r.tx.store.mu.Lock()
	all := append([]inventory.LogEntry(nil), r.tx.store.logs...)
	r.tx.store.mu.Unlock()
	all = append(all, r.tx.logs...)

	var out []inventory.LogEntry
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].SKUCode != sku {
			continue
		}
		out = append(out, all[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type snapshotRepo struct {
	tx *tx
}

func (r *snapshotRepo) SnapshotAll(ctx context.Context, takenAt time.Time) (int64, error) {
	if err := r.tx.writable(); err != nil {
		return 0, err
	}
	records, err := (&inventoryRepo{tx: r.tx}).List(ctx)
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		r.tx.snapshots = append(r.tx.snapshots, inventory.Snapshot{
			SKUCode:   rec.SKUCode,
			Total:     rec.Total,
			Available: rec.Available,
			Reserved:  rec.Reserved,
			Version:   rec.Version,
			TakenAt:   takenAt,
		})
	}
	return int64(len(records)), nil
}

func (r *snapshotRepo) ListByTakenAt(_ context.Context, takenAt time.Time) ([]inventory.Snapshot, error) {
	r.tx.store.mu.Lock()
	all := append([]inventory.Snapshot(nil), r.tx.store.snapshots...)
	r.tx.store.mu.Unlock()
	all = append(all, r.tx.snapshots...)

	var out []inventory.Snapshot
	for _, s := range all {
		if s.TakenAt.Equal(takenAt) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKUCode < out[j].SKUCode })
	return out, nil
}
