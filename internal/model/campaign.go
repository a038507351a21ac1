package model

import "time"

const CampaignStatusActive = "active"

type Campaign struct {
	ID            int64
	Title         string
	BrandName     string
	Deadline      time.Time // date only; zero when the campaign has none
	Status        string
	RewardAmount  float64
	Requirements  string
	GuidelinesURL string
	UploadURL     string
}

func (c *Campaign) IsActive() bool {
	return c.Status == CampaignStatusActive
}

// HasDeadline reports whether a deadline is set.
func (c *Campaign) HasDeadline() bool {
	return !c.Deadline.IsZero()
}
