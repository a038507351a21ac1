package mq

import "time"

const (
	RoutingKeyReminderSent           = "reminder.sent"
	RoutingKeyReminderFailed         = "reminder.failed"
	RoutingKeyReminderEmailRequested = "reminder.email.requested"
)

// ReminderSentPayload is written to the outbox with every send-log entry.
type ReminderSentPayload struct {
	UserID       int64     `json:"user_id"`
	CampaignID   int64     `json:"campaign_id"`
	EnrollmentID int64     `json:"enrollment_id"`
	Milestone    string    `json:"milestone"`
	Day          string    `json:"day"` // YYYY-MM-DD
	Recipient    string    `json:"recipient"`
	SentAt       time.Time `json:"sent_at"`
	TraceID      string    `json:"trace_id,omitempty"`
}

// ReminderFailedPayload goes to the dead-letter exchange when delivery fails.
type ReminderFailedPayload struct {
	UserID       int64     `json:"user_id"`
	CampaignID   int64     `json:"campaign_id"`
	EnrollmentID int64     `json:"enrollment_id"`
	Milestone    string    `json:"milestone"`
	Day          string    `json:"day"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"`
	FailureCount int64     `json:"failure_count"`
	FailedAt     time.Time `json:"failed_at"`
	TraceID      string    `json:"trace_id,omitempty"`
}

// EmailRequestedPayload asks a downstream mail worker to deliver one message.
type EmailRequestedPayload struct {
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	RequestedAt time.Time `json:"requested_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}
