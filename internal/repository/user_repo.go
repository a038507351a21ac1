package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"creatorreminder/internal/model"
	"creatorreminder/internal/reminder"
	"creatorreminder/pkg/otel"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// GetUser returns the user by id, or reminder.ErrUserNotFound.
func (r *UserRepository) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	query := `
        SELECT id, COALESCE(name, ''), COALESCE(email, '')
        FROM users
        WHERE id = $1
    `
	var u model.User
	err := otel.Query(ctx, "SELECT", "users", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, userID).Scan(&u.ID, &u.Name, &u.Email)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, reminder.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	return &u, nil
}
