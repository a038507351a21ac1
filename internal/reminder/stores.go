package reminder

import (
	"context"

	"creatorreminder/internal/model"
)

type CampaignStore interface {
	ListActiveCampaigns(ctx context.Context) ([]model.Campaign, error)
}

type ApplicationStore interface {
	ListApprovedEnrollments(ctx context.Context, campaignID int64) ([]model.Enrollment, error)
}

type UserStore interface {
	// GetUser returns ErrUserNotFound when no such user exists.
	GetUser(ctx context.Context, userID int64) (*model.User, error)
}

type TemplateStore interface {
	// GetActiveTemplate returns nil, nil when no template is active for milestone.
	GetActiveTemplate(ctx context.Context, milestone string) (*model.Template, error)
}

type SendLogStore interface {
	Exists(ctx context.Context, key model.SendLogKey) (bool, error)
	// Insert writes entry unless its key already exists. inserted is false on a
	// duplicate key; that is not an error.
	Insert(ctx context.Context, entry model.SendLogEntry) (inserted bool, err error)
}

// Sender is the external delivery function.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Stores bundles the record stores a sweep reads and writes.
type Stores struct {
	Campaigns   CampaignStore
	Enrollments ApplicationStore
	Users       UserStore
	Templates   TemplateStore
	SendLog     SendLogStore
}
