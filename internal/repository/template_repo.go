package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"creatorreminder/internal/model"
	"creatorreminder/pkg/otel"
)

type TemplateRepository struct {
	db *pgxpool.Pool
}

func NewTemplateRepository(db *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// GetActiveTemplate returns the active template for milestone, or nil, nil
// when none is active. If several are active the most recently updated wins.
func (r *TemplateRepository) GetActiveTemplate(ctx context.Context, milestone string) (*model.Template, error) {
	query := `
        SELECT id, milestone, is_active, subject, body
        FROM reminder_templates
        WHERE milestone = $1 AND is_active
        ORDER BY updated_at DESC, id DESC
        LIMIT 1
    `
	var t model.Template
	err := otel.Query(ctx, "SELECT", "reminder_templates", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, milestone).Scan(&t.ID, &t.Milestone, &t.IsActive, &t.Subject, &t.Body)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active template %s: %w", milestone, err)
	}
	return &t, nil
}
