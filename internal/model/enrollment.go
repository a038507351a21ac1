package model

import "strings"

const (
	ApprovalStatusApproved  = "approved"
	SubmissionStatusPending = "pending"
	SubmissionStatusDone    = "submitted"
)

// Enrollment is an approved application of a creator to a campaign.
type Enrollment struct {
	ID               int64
	CampaignID       int64
	UserID           int64
	ApprovalStatus   string
	DeliverableURL   string
	SubmissionStatus string
}

func (e *Enrollment) IsApproved() bool {
	return e.ApprovalStatus == ApprovalStatusApproved
}

// HasSubmitted is true when either a deliverable URL is recorded or the
// submission status flag says so.
func (e *Enrollment) HasSubmitted() bool {
	return strings.TrimSpace(e.DeliverableURL) != "" || e.SubmissionStatus == SubmissionStatusDone
}
