package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"creatorreminder/internal/model"
	"creatorreminder/pkg/otel"
)

type ApplicationRepository struct {
	db *pgxpool.Pool
}

func NewApplicationRepository(db *pgxpool.Pool) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// ListApprovedEnrollments returns the approved applications of a campaign.
func (r *ApplicationRepository) ListApprovedEnrollments(ctx context.Context, campaignID int64) ([]model.Enrollment, error) {
	query := `
        SELECT id, campaign_id, user_id, approval_status,
               COALESCE(deliverable_url, ''), COALESCE(submission_status, '')
        FROM campaign_applications
        WHERE campaign_id = $1 AND approval_status = $2
        ORDER BY id
    `
	var enrollments []model.Enrollment
	err := otel.Query(ctx, "SELECT", "campaign_applications", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, query, campaignID, model.ApprovalStatusApproved)
		if err != nil {
			return err
		}
		enrollments, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Enrollment, error) {
			var e model.Enrollment
			err := row.Scan(
				&e.ID,
				&e.CampaignID,
				&e.UserID,
				&e.ApprovalStatus,
				&e.DeliverableURL,
				&e.SubmissionStatus,
			)
			return e, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list approved enrollments for campaign %d: %w", campaignID, err)
	}
	return enrollments, nil
}
