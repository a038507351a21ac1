package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// retryStep is the linear backoff unit between publish attempts.
const retryStep = 5 * time.Second

// Event is one outbox_events row.
type Event struct {
	ID            int64           `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   *int64          `db:"aggregate_id"`
	RoutingKey    string          `db:"routing_key"`
	Payload       json.RawMessage `db:"payload"`
	Status        string          `db:"status"`
	RetryCount    int             `db:"retry_count"`
	NextRetryAt   *time.Time      `db:"next_retry_at"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// InsertEvent writes event inside tx, so it only becomes visible to the
// dispatcher if the surrounding business write commits.
func (r *Repository) InsertEvent(ctx context.Context, tx pgx.Tx, event *Event) error {
	if event.Status == "" {
		event.Status = StatusPending
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, routing_key, payload, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		event.AggregateType, event.AggregateID, event.RoutingKey, event.Payload, event.Status,
	)
	if err := row.Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt); err != nil {
		return fmt.Errorf("insert outbox event %s: %w", event.RoutingKey, err)
	}
	return nil
}

// GetPendingEvents returns up to limit pending events whose backoff has elapsed, oldest first.
func (r *Repository) GetPendingEvents(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, routing_key, payload, status,
		       retry_count, next_retry_at, created_at, updated_at
		FROM outbox_events
		WHERE status = $1 AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at, id
		LIMIT $2`,
		StatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox events: %w", err)
	}

	events, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Event])
	if err != nil {
		return nil, fmt.Errorf("collect pending outbox events: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkAsSent(ctx context.Context, eventID int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE outbox_events SET status = $2, updated_at = NOW() WHERE id = $1`,
		eventID, StatusSent,
	)
	if err != nil {
		return fmt.Errorf("mark outbox event %d sent: %w", eventID, err)
	}
	return nil
}

// MarkAsFailed records a failed publish. The event is retried after
// retry_count*retryStep until maxRetries is reached, then parked as failed.
func (r *Repository) MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE outbox_events
		SET retry_count   = retry_count + 1,
		    status        = CASE WHEN retry_count + 1 >= $2 THEN $3 ELSE $4 END,
		    next_retry_at = CASE WHEN retry_count + 1 >= $2 THEN NULL
		                         ELSE NOW() + (retry_count + 1) * $5::interval END,
		    updated_at    = NOW()
		WHERE id = $1`,
		eventID, maxRetries, StatusFailed, StatusPending, retryStep,
	)
	if err != nil {
		return fmt.Errorf("mark outbox event %d failed: %w", eventID, err)
	}
	return nil
}
