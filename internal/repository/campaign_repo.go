package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"creatorreminder/internal/model"
	"creatorreminder/pkg/otel"
)

type CampaignRepository struct {
	db *pgxpool.Pool
}

func NewCampaignRepository(db *pgxpool.Pool) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// ListActiveCampaigns returns every campaign whose status is active. Campaigns
// without a deadline are returned with a zero Deadline.
func (r *CampaignRepository) ListActiveCampaigns(ctx context.Context) ([]model.Campaign, error) {
	query := `
        SELECT id, title, brand_name, deadline, status, reward_amount::float8,
               COALESCE(requirements, ''), COALESCE(guidelines_url, ''), COALESCE(upload_url, '')
        FROM campaigns
        WHERE status = $1
        ORDER BY deadline, id
    `
	var campaigns []model.Campaign
	err := otel.Query(ctx, "SELECT", "campaigns", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, query, model.CampaignStatusActive)
		if err != nil {
			return err
		}
		campaigns, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Campaign, error) {
			var (
				c        model.Campaign
				deadline pgtype.Date
			)
			err := row.Scan(
				&c.ID,
				&c.Title,
				&c.BrandName,
				&deadline,
				&c.Status,
				&c.RewardAmount,
				&c.Requirements,
				&c.GuidelinesURL,
				&c.UploadURL,
			)
			// a NULL deadline leaves the zero time; the sweep skips such campaigns
			if deadline.Valid && deadline.InfinityModifier == pgtype.Finite {
				c.Deadline = deadline.Time
			}
			return c, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	return campaigns, nil
}
