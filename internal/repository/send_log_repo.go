package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	contractmq "creatorreminder/contracts/mq"
	"creatorreminder/internal/model"
	"creatorreminder/pkg/otel"
	"creatorreminder/pkg/outbox"
	"creatorreminder/pkg/trace"
	"creatorreminder/pkg/util"
)

const sendLogAggregate = "reminder_send_log"

type SendLogRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewSendLogRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *SendLogRepository {
	return &SendLogRepository{db: db, outboxRepo: outboxRepo, logger: logger}
}

// Exists reports whether a reminder was already logged for key.
func (r *SendLogRepository) Exists(ctx context.Context, key model.SendLogKey) (bool, error) {
	query := `
        SELECT EXISTS (
            SELECT 1 FROM reminder_send_log
            WHERE user_id = $1 AND campaign_id = $2 AND milestone = $3 AND sent_on = $4
        )
    `
	var exists bool
	err := otel.Query(ctx, "SELECT", "reminder_send_log", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, key.UserID, key.CampaignID, key.Milestone, key.Day).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("check send log %s: %w", key, err)
	}
	return exists, nil
}

// Insert logs a sent reminder and queues a reminder.sent outbox event in the
// same transaction. A duplicate key leaves the existing row untouched and
// returns inserted=false.
func (r *SendLogRepository) Insert(ctx context.Context, entry model.SendLogEntry) (bool, error) {
	query := `
        INSERT INTO reminder_send_log
            (user_id, campaign_id, milestone, sent_on, enrollment_id, recipient, subject, sent_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (user_id, campaign_id, milestone, sent_on) DO NOTHING
        RETURNING id
    `
	inserted := false
	err := otel.Query(ctx, "INSERT", "reminder_send_log", func(ctx context.Context) error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		var id int64
		err = tx.QueryRow(ctx, query,
			entry.Key.UserID,
			entry.Key.CampaignID,
			entry.Key.Milestone,
			entry.Key.Day,
			entry.EnrollmentID,
			entry.Recipient,
			entry.Subject,
			entry.SentAt,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		payload := contractmq.ReminderSentPayload{
			UserID:       entry.Key.UserID,
			CampaignID:   entry.Key.CampaignID,
			EnrollmentID: entry.EnrollmentID,
			Milestone:    entry.Key.Milestone,
			Day:          entry.Key.DayString(),
			Recipient:    entry.Recipient,
			SentAt:       entry.SentAt,
			TraceID:      trace.FromContext(ctx),
		}
		if err := r.outboxRepo.Enqueue(ctx, tx, sendLogAggregate, &id, contractmq.RoutingKeyReminderSent, payload); err != nil {
			return fmt.Errorf("insert reminder.sent to outbox: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		inserted = true
		return nil
	})
	if util.IsUniqueViolation(err) {
		r.logger.Info("Send-log entry already exists", zap.Stringer("key", entry.Key))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert send log %s: %w", entry.Key, err)
	}
	return inserted, nil
}
