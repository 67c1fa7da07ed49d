package memstore

import (
	"context"
	"slices"
	"sort"
	"time"

	"checkout-saga/internal/domain/saga"
	"checkout-saga/internal/infra"
	"checkout-saga/internal/pkg/errs"

	"github.com/google/uuid"
)

type sagaRepo struct {
	tx *tx
}

func (r *sagaRepo) Create(ctx context.Context, inst *saga.Instance) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if err := r.tx.lock(ctx, sagaKey(inst.ID()), 0); err != nil {
		return err
	}
	if _, exists := r.tx.readSaga(inst.ID()); exists || r.isArchived(inst.ID()) {
		return infra.NewRepoErr(infra.KindDuplicateKey, "saga already exists: "+inst.ID().String())
	}
	r.tx.sagas[inst.ID()] = inst.Clone()
	return nil
}

func (r *sagaRepo) Get(_ context.Context, id uuid.UUID) (*saga.Instance, error) {
	if inst, ok := r.tx.readSaga(id); ok {
		return inst, nil
	}
	r.tx.store.mu.Lock()
	defer r.tx.store.mu.Unlock()
	if inst, ok := r.tx.store.archived[id]; ok {
		return inst.Clone(), nil
	}
	return nil, sagaNotFound(id)
}

func (r *sagaRepo) Update(ctx context.Context, inst *saga.Instance, expectedStepSeq int64) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if err := r.tx.lock(ctx, sagaKey(inst.ID()), 0); err != nil {
		return err
	}
	current, ok := r.tx.readSaga(inst.ID())
	if !ok {
		return sagaNotFound(inst.ID())
	}
	if current.StepSeq() != expectedStepSeq {
		return errs.Wrapf(errs.ErrStaleStep, "saga=%s expected=%d actual=%d", inst.ID(), expectedStepSeq, current.StepSeq())
	}
	r.tx.sagas[inst.ID()] = inst.Clone()
	return nil
}

func (r *sagaRepo) ListOverduePayments(_ context.Context, now time.Time, limit int) ([]*saga.Instance, error) {
	out := r.filter(func(inst *saga.Instance) bool {
		return inst.IsPaymentOverdue(now)
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].PaymentDeadline().Before(*out[j].PaymentDeadline())
	})
	return truncate(out, limit), nil
}

func (r *sagaRepo) ListStalled(_ context.Context, states []saga.State, updatedBefore time.Time, limit int) ([]*saga.Instance, error) {
	out := r.filter(func(inst *saga.Instance) bool {
		return slices.Contains(states, inst.State()) && inst.UpdatedAt().Before(updatedBefore)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt().Before(out[j].UpdatedAt()) })
	return truncate(out, limit), nil
}

func (r *sagaRepo) ArchiveTerminal(ctx context.Context, updatedBefore time.Time, limit int) (int64, error) {
	if err := r.tx.writable(); err != nil {
		return 0, err
	}
	candidates := r.filter(func(inst *saga.Instance) bool {
		return inst.State().IsTerminal() && inst.UpdatedAt().Before(updatedBefore)
	})
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].UpdatedAt().Before(candidates[j].UpdatedAt()) })

	var n int64
	for _, inst := range candidates {
		if limit > 0 && n >= int64(limit) {
			break
		}
		if !r.tx.tryLock(sagaKey(inst.ID())) {
			continue
		}
		r.tx.archive[inst.ID()] = struct{}{}
		n++
	}
	return n, nil
}

func (r *sagaRepo) filter(keep func(*saga.Instance) bool) []*saga.Instance {
	merged := make(map[uuid.UUID]*saga.Instance)
	r.tx.store.mu.Lock()
	for id, inst := range r.tx.store.sagas {
		merged[id] = inst
	}
	r.tx.store.mu.Unlock()
	for id, inst := range r.tx.sagas {
		merged[id] = inst
	}
	for id := range r.tx.archive {
		delete(merged, id)
	}

	var out []*saga.Instance
	for _, inst := range merged {
		if keep(inst) {
			out = append(out, inst.Clone())
		}
	}
	return out
}

func (r *sagaRepo) isArchived(id uuid.UUID) bool {
	r.tx.store.mu.Lock()
	defer r.tx.store.mu.Unlock()
	_, ok := r.tx.store.archived[id]
	return ok
}

func truncate[T any](in []T, limit int) []T {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

func sagaNotFound(id uuid.UUID) error {
	return errs.Mark(infra.NewRepoErr(infra.KindNotFound, "saga not found: "+id.String()), errs.ErrSagaNotFound)
}
