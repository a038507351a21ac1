package reminder

import (
	"strconv"
	"strings"

	"creatorreminder/internal/model"
)

const deadlineLayout = "January 2, 2006"

// Variables are the values substituted into a reminder template.
type Variables struct {
	CreatorName   string
	CampaignTitle string
	BrandName     string
	RewardAmount  string
	Deadline      string
	DaysLeft      string
	Requirements  string
	GuidelinesURL string
	UploadURL     string
}

// NewVariables builds the template values for one reminder.
func NewVariables(c model.Campaign, u model.User, m Milestone) Variables {
	v := Variables{
		CreatorName:   u.Name,
		CampaignTitle: c.Title,
		BrandName:     c.BrandName,
		RewardAmount:  strconv.FormatFloat(c.RewardAmount, 'f', 2, 64),
		Requirements:  c.Requirements,
		GuidelinesURL: c.GuidelinesURL,
		UploadURL:     c.UploadURL,
	}
	if !c.Deadline.IsZero() {
		v.Deadline = c.Deadline.Format(deadlineLayout)
	}
	if days := m.DaysLeft(); days >= 0 {
		v.DaysLeft = strconv.Itoa(days)
	}
	return v
}

func (v Variables) replacer() *strings.Replacer {
	pairs := []struct{ token, value string }{
		{"{{creator_name}}", v.CreatorName},
		{"{{campaign_title}}", v.CampaignTitle},
		{"{{brand_name}}", v.BrandName},
		{"{{reward_amount}}", v.RewardAmount},
		{"{{deadline}}", v.Deadline},
		{"{{days_left}}", v.DaysLeft},
		{"{{requirements}}", v.Requirements},
		{"{{guidelines_url}}", v.GuidelinesURL},
		{"{{upload_url}}", v.UploadURL},
	}

	// empty values leave their token in place
	oldnew := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		oldnew = append(oldnew, p.token, p.value)
	}
	return strings.NewReplacer(oldnew...)
}

// Message is a rendered reminder.
type Message struct {
	Subject string
	Body    string
}

// Render substitutes vars into the template subject and body. Unknown tokens
// are left as they are.
func Render(tpl model.Template, vars Variables) Message {
	r := vars.replacer()
	return Message{
		Subject: r.Replace(tpl.Subject),
		Body:    r.Replace(tpl.Body),
	}
}
