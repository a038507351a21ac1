package model

import (
	"fmt"
	"time"
)

// SendLogKey identifies one reminder: a user, a campaign, a milestone and a calendar day.
type SendLogKey struct {
	UserID     int64
	CampaignID int64
	Milestone  string
	Day        time.Time // midnight of the calendar day
}

// DayString formats Day as YYYY-MM-DD.
func (k SendLogKey) DayString() string {
	return k.Day.Format(time.DateOnly)
}

type SendLogEntry struct {
	Key          SendLogKey
	EnrollmentID int64
	Recipient    string
	Subject      string
	SentAt       time.Time
}

// String renders the key as user:campaign:milestone:day, used for claims and counters.
func (k SendLogKey) String() string {
	return fmt.Sprintf("%d:%d:%s:%s", k.UserID, k.CampaignID, k.Milestone, k.DayString())
}
