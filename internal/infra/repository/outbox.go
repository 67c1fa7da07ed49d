package repository

import (
	"context"
	"time"

	"checkout-saga/internal/infra"
	"checkout-saga/internal/infra/db"
	"checkout-saga/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const outboxColumns = `id, kind, topic, msg_key, payload, headers, status, attempts, last_error, run_at, created_at`

type OutboxRepository struct {
	db db.DBTX
}

func NewOutboxRepository(db db.DBTX) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, msg shared.OutboxMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Status == "" {
		msg.Status = shared.OutboxStatusQueued
	}
	headers := msg.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO outbox_messages (`+outboxColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		msg.ID, msg.Kind, msg.Topic, msg.Key, msg.Payload, headers, msg.Status,
		msg.Attempts, msg.LastError, msg.RunAt, msg.CreatedAt)
	if err != nil {
		return infra.WrapRepoErr("failed to enqueue outbox message", err)
	}
	return nil
}

// ClaimDue skips rows another dispatcher already holds.
func (r *OutboxRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]shared.OutboxMessage, error) {
	return r.list(ctx, `
		SELECT `+outboxColumns+` FROM outbox_messages
		WHERE status = 'queued' AND run_at <= $1
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, now, limit)
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE outbox_messages SET status = 'sent', sent_at = $2, last_error = ''
		WHERE id = $1`, id, now)
	if err != nil {
		return infra.WrapRepoErr("failed to mark outbox message sent", err)
	}
	return nil
}

func (r *OutboxRepository) MarkRetry(ctx context.Context, id uuid.UUID, attempts int, nextRunAt time.Time, lastErr string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE outbox_messages SET attempts = $2, run_at = $3, last_error = $4
		WHERE id = $1`, id, attempts, nextRunAt, lastErr)
	if err != nil {
		return infra.WrapRepoErr("failed to reschedule outbox message", err)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE outbox_messages SET status = 'failed', attempts = $2, last_error = $3
		WHERE id = $1`, id, attempts, lastErr)
	if err != nil {
		return infra.WrapRepoErr("failed to mark outbox message failed", err)
	}
	return nil
}

func (r *OutboxRepository) ListBySaga(ctx context.Context, key string) ([]shared.OutboxMessage, error) {
	return r.list(ctx, `
		SELECT `+outboxColumns+` FROM outbox_messages
		WHERE msg_key = $1
		ORDER BY created_at`, key)
}

func (r *OutboxRepository) list(ctx context.Context, query string, args ...any) ([]shared.OutboxMessage, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to query outbox", err)
	}
	defer rows.Close()

	var out []shared.OutboxMessage
	for rows.Next() {
		msg, err := scanOutbox(rows)
		if err != nil {
			return nil, infra.WrapRepoErr("failed to scan outbox message", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr("failed to iterate outbox", err)
	}
	return out, nil
}

func scanOutbox(row pgx.Row) (shared.OutboxMessage, error) {
	var m shared.OutboxMessage
	err := row.Scan(&m.ID, &m.Kind, &m.Topic, &m.Key, &m.Payload, &m.Headers, &m.Status,
		&m.Attempts, &m.LastError, &m.RunAt, &m.CreatedAt)
	return m, err
}
