package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"creatorreminder/internal/model"
)

// Reason explains why an enrollment was or was not selected for a reminder.
type Reason int

const (
	ReasonEligible Reason = iota
	ReasonNotApproved
	ReasonSubmitted
	ReasonAlreadySent
)

func (r Reason) String() string {
	switch r {
	case ReasonEligible:
		return "eligible"
	case ReasonNotApproved:
		return "not_approved"
	case ReasonSubmitted:
		return "submitted"
	case ReasonAlreadySent:
		return "already_sent"
	default:
		return "unknown"
	}
}

// Decision is the result of evaluating one enrollment. User is set only when
// Reason is ReasonEligible.
type Decision struct {
	Reason Reason
	User   *model.User
}

// EligibilityFilter decides whether an enrollment gets the reminder for a key.
type EligibilityFilter struct {
	users   UserStore
	sendLog SendLogStore
}

func NewEligibilityFilter(users UserStore, sendLog SendLogStore) *EligibilityFilter {
	return &EligibilityFilter{users: users, sendLog: sendLog}
}

// Evaluate checks approval, submission, the send log and finally resolves the
// recipient. A returned error means the enrollment must be skipped for this
// sweep; it wraps ErrUserNotFound or ErrMissingEmail when the user cannot be used.
func (f *EligibilityFilter) Evaluate(ctx context.Context, e model.Enrollment, key model.SendLogKey) (Decision, error) {
	if !e.IsApproved() {
		return Decision{Reason: ReasonNotApproved}, nil
	}
	if e.HasSubmitted() {
		return Decision{Reason: ReasonSubmitted}, nil
	}

	sent, err := f.sendLog.Exists(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("check send log: %w", err)
	}
	if sent {
		return Decision{Reason: ReasonAlreadySent}, nil
	}

	user, err := f.users.GetUser(ctx, e.UserID)
	if err != nil {
		return Decision{}, fmt.Errorf("get user %d: %w", e.UserID, err)
	}
	if user == nil {
		return Decision{}, fmt.Errorf("get user %d: %w", e.UserID, ErrUserNotFound)
	}
	if strings.TrimSpace(user.Email) == "" {
		return Decision{}, fmt.Errorf("user %d: %w", e.UserID, ErrMissingEmail)
	}

	return Decision{Reason: ReasonEligible, User: user}, nil
}

// isLookupMiss reports whether err is a missing or unusable user rather than a store failure.
func isLookupMiss(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrMissingEmail)
}
