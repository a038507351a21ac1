package reminder

import (
	"math"
	"time"
)

// Milestone names a point in the countdown to a campaign deadline.
type Milestone string

const (
	MilestoneNone      Milestone = ""
	MilestoneThreeDays Milestone = "3_days"
	MilestoneTwoDays   Milestone = "2_days"
	MilestoneOneDay    Milestone = "1_day"
	MilestoneToday     Milestone = "today"
)

// Milestones lists every reminder milestone, furthest first.
var Milestones = []Milestone{MilestoneThreeDays, MilestoneTwoDays, MilestoneOneDay, MilestoneToday}

const day = 24 * time.Hour

// Classify maps the distance from now to deadline onto a milestone:
// ceil((deadline - now) / 1 day) of 3, 2, 1 or 0. Anything else is MilestoneNone.
func Classify(deadline, now time.Time) Milestone {
	daysUntil := int(math.Ceil(float64(deadline.Sub(now)) / float64(day)))
	switch daysUntil {
	case 3:
		return MilestoneThreeDays
	case 2:
		return MilestoneTwoDays
	case 1:
		return MilestoneOneDay
	case 0:
		return MilestoneToday
	default:
		return MilestoneNone
	}
}

// DaysLeft is the number of days the milestone stands for, -1 for MilestoneNone.
func (m Milestone) DaysLeft() int {
	switch m {
	case MilestoneThreeDays:
		return 3
	case MilestoneTwoDays:
		return 2
	case MilestoneOneDay:
		return 1
	case MilestoneToday:
		return 0
	default:
		return -1
	}
}

func (m Milestone) String() string {
	if m == MilestoneNone {
		return "none"
	}
	return string(m)
}

// StartOfDay returns midnight of t's calendar date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DeadlineIn interprets a date-only deadline as midnight of that date in loc.
func DeadlineIn(deadline time.Time, loc *time.Location) time.Time {
	y, m, d := deadline.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
