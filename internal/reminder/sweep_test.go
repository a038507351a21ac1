package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"creatorreminder/internal/model"
)

var sweepNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func deadlineIn(days int) time.Time {
	return time.Date(2025, time.March, 10+days, 0, 0, 0, 0, time.UTC)
}

type sweepFixture struct {
	campaigns   *fakeCampaigns
	enrollments *fakeEnrollments
	users       *fakeUsers
	templates   *fakeTemplates
	sendLog     *fakeSendLog
	sender      *fakeSender
	logs        *observer.ObservedLogs
	sweeper     *Sweeper
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	f := &sweepFixture{
		campaigns:   &fakeCampaigns{},
		enrollments: &fakeEnrollments{byCampaign: map[int64][]model.Enrollment{}},
		users:       &fakeUsers{users: map[int64]*model.User{}},
		templates:   &fakeTemplates{},
		sendLog:     newFakeSendLog(),
		sender:      &fakeSender{},
		logs:        logs,
	}
	for _, m := range Milestones {
		f.templates.set(&model.Template{
			Milestone: string(m),
			IsActive:  true,
			Subject:   "{{campaign_title}}: {{days_left}} days left",
			Body:      "Hi {{creator_name}}, upload to {{upload_url}} before {{deadline}}.",
		})
	}

	stores := Stores{
		Campaigns:   f.campaigns,
		Enrollments: f.enrollments,
		Users:       f.users,
		Templates:   f.templates,
		SendLog:     f.sendLog,
	}
	dispatcher := NewDispatcher(f.sender, f.sendLog, logger, WithDispatcherClock(fixedClock(sweepNow)))
	f.sweeper = NewSweeper(stores, dispatcher, SweeperConfig{Workers: 4}, logger).WithClock(fixedClock(sweepNow))
	return f
}

func (f *sweepFixture) addCampaign(id int64, deadlineDays int) {
	f.campaigns.campaigns = append(f.campaigns.campaigns, model.Campaign{
		ID:           id,
		Title:        "Campaign",
		BrandName:    "Acme",
		Deadline:     deadlineIn(deadlineDays),
		Status:       model.CampaignStatusActive,
		RewardAmount: 100,
		UploadURL:    "https://acme.example.com/upload",
	})
}

func (f *sweepFixture) addEnrollment(campaignID, enrollmentID, userID int64, mutate ...func(*model.Enrollment)) {
	e := model.Enrollment{
		ID:               enrollmentID,
		CampaignID:       campaignID,
		UserID:           userID,
		ApprovalStatus:   model.ApprovalStatusApproved,
		SubmissionStatus: model.SubmissionStatusPending,
	}
	for _, fn := range mutate {
		fn(&e)
	}
	f.enrollments.byCampaign[campaignID] = append(f.enrollments.byCampaign[campaignID], e)
	if _, ok := f.users.users[userID]; !ok {
		f.users.users[userID] = &model.User{ID: userID, Name: "Creator", Email: "creator@example.com"}
	}
}

func TestSweeper_ThreeDayReminder(t *testing.T) {
	f := newSweepFixture(t)
	f.addCampaign(7, 3)
	f.addEnrollment(7, 11, 1)

	report, err := f.sweeper.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "ok", report.Result)
	assert.Equal(t, int64(1), report.Sent)
	require.Len(t, f.sender.messages(), 1)
	msg := f.sender.messages()[0]
	assert.Equal(t, "creator@example.com", msg.To)
	assert.Equal(t, "Campaign: 3 days left", msg.Subject)
	assert.Equal(t, "Hi Creator, upload to https://acme.example.com/upload before March 13, 2025.", msg.Body)

	key := model.SendLogKey{UserID: 1, CampaignID: 7, Milestone: "3_days", Day: deadlineIn(0)}
	entry, ok := f.sendLog.entries[key]
	require.True(t, ok)
	assert.Equal(t, int64(11), entry.EnrollmentID)
	assert.Equal(t, sweepNow, entry.SentAt)
}

func TestSweeper_SecondRunSameDaySendsNothing(t *testing.T) {
	f := newSweepFixture(t)
	f.addCampaign(7, 3)
	f.addEnrollment(7, 11, 1)

	_, err := f.sweeper.RunOnce(context.Background())
	require.NoError(t, err)

	report, err := f.sweeper.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, f.sender.attempts())
	assert.Equal(t, 1, f.sendLog.len())
	assert.Equal(t, int64(0), report.Sent)
	assert.Equal(t, int64(1), report.AlreadySent)
}

func TestSweeper_NoMilestoneOutsideWindow(t *testing.T) {
	testCases := []struct {
		name string
		days int
	}{
		{name: "five days out", days: 5},
		{name: "four days out", days: 4},
		{name: "past deadline", days: -1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSweepFixture(t)
			f.addCampaign(7, tc.days)
			f.addEnrollment(7, 11, 1)

			report, err := f.sweeper.RunOnce(context.Background())

			require.NoError(t, err)
			assert.Zero(t, f.sender.attempts())
			assert.Equal(t, int64(1), report.NoMilestone)
		})
	}
}

func TestSweeper_EveryMilestoneInWindow(t *testing.T) {
	f := newSweepFixture(t)
	for days := 0; days <= 6; days++ {
		f.addCampaign(int64(100+days), days)
		f.addEnrollment(int64(100+days), int64(200+days), int64(300+days))
	}

	report, err := f.sweeper.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(4), report.Sent)
	assert.Equal(t, 4, f.sender.attempts())
	for _, m := range Milestones {
		assert.Equal(t, 1, f.templates.callCount(string(m)), m)
	}
}

func TestSweeper_SubmittedEnrollmentSkipped(t *testing.T) {
	f := newSweepFixture(t)
	f.addCampaign(7, 0)
	f.addEnrollment(7, 11, 1, func(e *model.Enrollment) {
		e.DeliverableURL = "https://cdn.example.com/video.mp4"
	})
	f.addEnrollment(7, 12, 2, func(e *model.Enrollment) {
		e.SubmissionStatus = model.SubmissionStatusDone
	})

	report, err := f.sweeper.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, f.sender.attempts())
	assert.Equal(t, int64(2), report.Submitted)
}

func TestSweeper_MissingTemplateIsConfigurationGap(t *testing.T) {
	f := newSweepFixture(t)
	f.templates.templates[string(MilestoneOneDay)] = nil
	f.addCampaign(7, 1)
	f.addEnrollment(7, 11, 1)

	report, err := f.sweeper.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, f.sender.attempts())
	assert.Zero(t, f.sendLog.len())
	assert.Equal(t, int64(1), report.ConfigGaps)
	gaps := f.logs.FilterMessageSnippet("Configuration gap").All()
	require.Len(t, gaps, 1)
	assert.Equal(t, zapcore.WarnLevel, gaps[0].Level)

	// still eligible once a template is activated
	f.templates.set(&model.Template{Milestone: string(MilestoneOneDay), IsActive: true, Subject: "Tomorrow", Body: "Due tomorrow"})

	report, err = f.sweeper.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Sent)
	assert.Equal(t, 1, f.sendLog.len())
}

func TestSweeper_InactiveTemplateIsConfigurationGap(t *testing.T) {
	f := newSweepFixture(t)
	f.templates.set(&model.Template{Milestone: string(MilestoneTwoDays), IsActive: false, Subject: "x", Body: "y"})
	f.addCampaign(7, 2)
	f.addEnrollment(7, 11, 1)

	report, err := f.sweeper.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, f.sender.attempts())
	assert.Equal(t, int64(1), report.ConfigGaps)
}

func TestSweeper_TemplateLoadedOncePerSweep(t *testing.T) {
	f := newSweepFixture(t)
	f.addCampaign(7, 2)
	f.addCampaign(8, 2)
	for i := int64(1); i <= 10; i++ {
		f.addEnrollment(7, 100+i, i)
		f.addEnrollment(8, 200+i, i)
	}

	report, err := f.sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(20), report.Sent)
	assert.Equal(t, 1, f.templates.callCount(string(MilestoneTwoDays)))

	// the memo does not outlive the sweep
	f.sendLog.reset()
	report, err = f.sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(20), report.Sent)
	assert.Equal(t, 2, f.templates.callCount(string(MilestoneTwoDays)))
}

func TestSweeper_PanicIsIsolated(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(f *sweepFixture)
	}{
		{
			name: "sender panics",
			setup: func(f *sweepFixture) {
				f.sender.panicFor = map[string]bool{"broken@example.com": true}
			},
		},
		{
			name: "user store panics",
			setup: func(f *sweepFixture) {
				f.users.panicFor = map[int64]bool{1: true}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSweepFixture(t)
			f.addCampaign(7, 1)
			f.addEnrollment(7, 11, 1)
			f.addEnrollment(7, 12, 2)
			f.users.users[1].Email = "broken@example.com"
			f.users.users[2].Email = "ok@example.com"
			tc.setup(f)

			report, err := f.sweeper.RunOnce(context.Background())

			require.NoError(t, err)
			assert.Equal(t, int64(1), report.Sent)
			assert.Equal(t, int64(1), report.Failed)
			require.Len(t, f.sender.messages(), 1)
			assert.Equal(t, "ok@example.com", f.sender.messages()[0].To)
			assert.Equal(t, 1, f.sendLog.len())
		})
	}
}

func TestSweeper_FailureIsIsolated(t *testing.T) {
	f := newSweepFixture(t)
	f.addCampaign(7, 1)
	f.addEnrollment(7, 11, 1)
	f.addEnrollment(7, 12, 2)
	f.users.users[1].Email = "broken@example.com"
	f.users.users[2].Email = "ok@example.com"
	f.sender.failFor = map[string]error{"broken@example.com": errProvider}

	report, err := f.sweeper.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Sent)
	assert.Equal(t, int64(1), report.Failed)
	assert.Equal(t, 1, f.sendLog.len())

	// retried on the next sweep once the provider recovers
	f.sender.mu.Lock()
	f.sender.failFor = nil
	f.sender.mu.Unlock()

	report, err = f.sweeper.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Sent)
	assert.Equal(t, int64(1), report.AlreadySent)
	assert.Equal(t, 2, f.sendLog.len())
}

func TestSweeper_LookupFailuresAreIsolated(t *testing.T) {
	f := newSweepFixture(t)
	f.addCampaign(7, 2)
	f.addCampaign(8, 2)
	f.addEnrollment(7, 11, 1)
	f.addEnrollment(7, 12, 2)
	f.addEnrollment(8, 21, 3)
	delete(f.users.users, 2)
	f.enrollments.errs = map[int64]error{8: errStoreDown}

	report, err := f.sweeper.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Sent)
	assert.Equal(t, int64(2), report.LookupFailures)
	assert.NotEmpty(t, f.logs.FilterMessageSnippet("recipient unavailable").All())
}

func TestSweeper_DuplicateEnrollmentSendsOnce(t *testing.T) {
	f := newSweepFixture(t)
	f.addCampaign(7, 3)
	f.addEnrollment(7, 11, 1)
	f.addEnrollment(7, 12, 1)

	report, err := f.sweeper.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, f.sender.attempts())
	assert.Equal(t, int64(1), report.Sent)
	assert.Equal(t, int64(1), report.AlreadySent)
}

func TestSweeper_CampaignWithoutDeadlineIsSkipped(t *testing.T) {
	f := newSweepFixture(t)
	f.addCampaign(7, 1)
	f.addCampaign(8, 1)
	f.campaigns.campaigns[0].Deadline = time.Time{}
	f.addEnrollment(7, 11, 1)
	f.addEnrollment(8, 21, 2)

	report, err := f.sweeper.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "ok", report.Result)
	assert.Equal(t, int64(1), report.Sent)
	assert.Equal(t, int64(1), report.LookupFailures)
	assert.NotEmpty(t, f.logs.FilterMessage("Campaign has no deadline, skipping").All())
}

func TestSweeper_SkipsInactiveCampaigns(t *testing.T) {
	f := newSweepFixture(t)
	f.addCampaign(7, 1)
	f.campaigns.campaigns[0].Status = "closed"
	f.addEnrollment(7, 11, 1)

	report, err := f.sweeper.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, f.sender.attempts())
	assert.Zero(t, report.Campaigns)
}

func TestSweeper_AbortsWhenCampaignsUnavailable(t *testing.T) {
	f := newSweepFixture(t)
	f.campaigns.err = errStoreDown

	report, err := f.sweeper.RunOnce(context.Background())

	require.ErrorIs(t, err, errStoreDown)
	require.NotNil(t, report)
	assert.Equal(t, "aborted", report.Result)
	assert.NotEmpty(t, report.SweepID)
}

func TestSweeper_CanceledContext(t *testing.T) {
	f := newSweepFixture(t)
	f.addCampaign(7, 1)
	f.addEnrollment(7, 11, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.sweeper.RunOnce(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "canceled", report.Result)
	assert.Zero(t, f.sender.attempts())
}

func TestSweeper_SweepIDOnLogs(t *testing.T) {
	f := newSweepFixture(t)

	report, err := f.sweeper.RunOnce(context.Background())
	require.NoError(t, err)

	completed := f.logs.FilterMessage("Reminder sweep completed").All()
	require.Len(t, completed, 1)
	assert.Equal(t, report.SweepID, completed[0].ContextMap()["trace_id"])
}
