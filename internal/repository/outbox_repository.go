package repository

import (
	"context"
	"sort"
	"time"

	"github.com/segyhp/fee-ledger/internal/domain"

	"github.com/jmoiron/sqlx"
)

type outboxRepository struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Enqueue(ctx context.Context, event *domain.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (id, event_type, aggregate_id, payload, attempts, created_at, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	next := event.NextAttemptAt
	if next.IsZero() {
		next = event.CreatedAt
	}

	_, err := executor(ctx, r.db).ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.AggregateID,
		string(event.Payload),
		event.Attempts,
		event.CreatedAt,
		next,
	)

	return translate(err, "insert outbox event")
}

func (r *outboxRepository) ClaimPending(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*domain.OutboxEvent, error) {
	query := `
		WITH due AS (
			SELECT id
			FROM outbox_events
			WHERE dispatched_at IS NULL
			  AND dead_at IS NULL
			  AND next_attempt_at <= $1
			ORDER BY next_attempt_at, created_at, id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_events o
		SET next_attempt_at = $2
		FROM due
		WHERE o.id = due.id
		RETURNING o.id, o.event_type, o.aggregate_id, o.payload, o.attempts, o.last_error,
		          o.created_at, o.next_attempt_at, o.dispatched_at, o.dead_at
	`

	var events []*domain.OutboxEvent
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &events, query, now, leaseUntil, limit); err != nil {
		return nil, translate(err, "claim outbox events")
	}

	// RETURNING does not keep the CTE order
	sort.Slice(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

func (r *outboxRepository) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE outbox_events
		SET dispatched_at = $2, attempts = attempts + 1, last_error = NULL
		WHERE id = $1
	`

	res, err := executor(ctx, r.db).ExecContext(ctx, query, id, at)
	if err != nil {
		return translate(err, "mark outbox event dispatched")
	}
	return requireAffected(res, "mark outbox event dispatched")
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, reason string, retryAt time.Time) error {
	query := `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3
		WHERE id = $1
	`

	res, err := executor(ctx, r.db).ExecContext(ctx, query, id, reason, retryAt)
	if err != nil {
		return translate(err, "mark outbox event failed")
	}
	return requireAffected(res, "mark outbox event failed")
}

func (r *outboxRepository) MarkDead(ctx context.Context, id string, reason string, at time.Time) error {
	query := `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = $2, dead_at = $3
		WHERE id = $1
	`

	res, err := executor(ctx, r.db).ExecContext(ctx, query, id, reason, at)
	if err != nil {
		return translate(err, "mark outbox event dead")
	}
	return requireAffected(res, "mark outbox event dead")
}

func (r *outboxRepository) Exists(ctx context.Context, eventType, aggregateID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM outbox_events WHERE event_type = $1 AND aggregate_id = $2)`

	var exists bool
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &exists, query, eventType, aggregateID); err != nil {
		return false, translate(err, "check outbox event")
	}
	return exists, nil
}
