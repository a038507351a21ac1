package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"creatorreminder/internal/model"
	"creatorreminder/pkg/logger"
	"creatorreminder/pkg/metrics"
	appotel "creatorreminder/pkg/otel"
	"creatorreminder/pkg/trace"
)

const defaultWorkers = 4

// Report summarizes one sweep.
type Report struct {
	SweepID          string    `json:"sweep_id"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Result           string    `json:"result"` // ok, aborted, canceled
	Campaigns        int64     `json:"campaigns"`
	Enrollments      int64     `json:"enrollments"`
	Sent             int64     `json:"sent"`
	Failed           int64     `json:"failed"`
	AlreadySent      int64     `json:"already_sent"`
	Submitted        int64     `json:"submitted"`
	NotApproved      int64     `json:"not_approved"`
	NoMilestone      int64     `json:"no_milestone"`
	ConfigGaps       int64     `json:"config_gaps"`
	LookupFailures   int64     `json:"lookup_failures"`
	LogWriteFailures int64     `json:"log_write_failures"`
}

type SweeperConfig struct {
	// Workers bounds the enrollments processed concurrently.
	Workers int
	// Location is the timezone in which deadlines and calendar days are read.
	Location *time.Location
}

// Sweeper runs one pass over all active campaigns.
type Sweeper struct {
	stores     Stores
	filter     *EligibilityFilter
	dispatcher *Dispatcher
	workers    int
	location   *time.Location
	logger     *zap.Logger
	now        func() time.Time
}

func NewSweeper(stores Stores, dispatcher *Dispatcher, cfg SweeperConfig, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Sweeper{
		stores:     stores,
		filter:     NewEligibilityFilter(stores.Users, stores.SendLog),
		dispatcher: dispatcher,
		workers:    cfg.Workers,
		location:   cfg.Location,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock replaces the wall clock, for tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// RunOnce performs a full sweep. Only a failure to list active campaigns
// aborts it; everything else is counted per enrollment in the report. A
// canceled ctx stops scheduling new work and returns ctx.Err() with the
// partial report.
func (s *Sweeper) RunOnce(ctx context.Context) (*Report, error) {
	sweepID := trace.NewID()
	ctx = trace.WithContext(ctx, sweepID)
	ctx, span := appotel.StartSpan(ctx, "reminder.sweep")
	defer span.End()
	span.SetAttributes(attribute.String("sweep.id", sweepID))

	log := logger.WithTrace(ctx, s.logger)
	now := s.now().In(s.location)
	run := &sweepRun{
		sweeper:   s,
		today:     StartOfDay(now, s.location),
		templates: newTemplateMemo(s.stores.Templates),
		log:       log,
	}
	run.report.SweepID = sweepID
	run.report.StartedAt = now

	log.Info("Starting reminder sweep", zap.String("date", run.today.Format(time.DateOnly)))

	campaigns, err := s.stores.Campaigns.ListActiveCampaigns(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list active campaigns")
		log.Error("Reminder sweep aborted, cannot list active campaigns", zap.Error(err))
		return run.finish("aborted"), fmt.Errorf("list active campaigns: %w", err)
	}

	g := new(errgroup.Group)
	g.SetLimit(s.workers)

	for _, c := range campaigns {
		if ctx.Err() != nil {
			break
		}
		if !c.IsActive() {
			continue
		}
		run.campaigns.Add(1)

		if !c.HasDeadline() {
			run.lookupFailures.Add(1)
			log.Warn("Campaign has no deadline, skipping", zap.Int64("campaign_id", c.ID))
			continue
		}

		milestone := Classify(DeadlineIn(c.Deadline, s.location), now)
		if milestone == MilestoneNone {
			run.noMilestone.Add(1)
			continue
		}

		enrollments, err := s.stores.Enrollments.ListApprovedEnrollments(ctx, c.ID)
		if err != nil {
			run.lookupFailures.Add(1)
			log.Warn("Failed to list enrollments, skipping campaign",
				zap.Int64("campaign_id", c.ID),
				zap.Error(err),
			)
			continue
		}

		for _, e := range enrollments {
			if ctx.Err() != nil {
				break
			}
			run.enrollments.Add(1)
			g.Go(func() error {
				run.process(ctx, c, milestone, e)
				return nil
			})
		}
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "canceled")
		log.Warn("Reminder sweep canceled", zap.Error(err))
		return run.finish("canceled"), err
	}

	report := run.finish("ok")
	span.SetAttributes(
		attribute.Int64("reminders.sent", report.Sent),
		attribute.Int64("reminders.failed", report.Failed),
	)
	log.Info("Reminder sweep completed",
		zap.Int64("campaigns", report.Campaigns),
		zap.Int64("enrollments", report.Enrollments),
		zap.Int64("sent", report.Sent),
		zap.Int64("failed", report.Failed),
		zap.Int64("already_sent", report.AlreadySent),
		zap.Int64("submitted", report.Submitted),
		zap.Int64("config_gaps", report.ConfigGaps),
		zap.Int64("lookup_failures", report.LookupFailures),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

// sweepRun holds the state of a single sweep. Nothing in it outlives RunOnce.
type sweepRun struct {
	sweeper   *Sweeper
	today     time.Time
	templates *templateMemo
	claimed   sync.Map // model.SendLogKey -> struct{}
	log       *zap.Logger
	report    Report

	campaigns        atomic.Int64
	enrollments      atomic.Int64
	sent             atomic.Int64
	failed           atomic.Int64
	alreadySent      atomic.Int64
	submitted        atomic.Int64
	notApproved      atomic.Int64
	noMilestone      atomic.Int64
	configGaps       atomic.Int64
	lookupFailures   atomic.Int64
	logWriteFailures atomic.Int64
}

func (r *sweepRun) process(ctx context.Context, c model.Campaign, milestone Milestone, e model.Enrollment) {
	if ctx.Err() != nil {
		return
	}
	s := r.sweeper
	log := r.log.With(
		zap.Int64("campaign_id", c.ID),
		zap.Int64("enrollment_id", e.ID),
		zap.Int64("user_id", e.UserID),
		zap.String("milestone", string(milestone)),
	)
	defer func() {
		if p := recover(); p != nil {
			r.count(milestone, &r.failed, "failed")
			log.Error("Recovered panic while processing enrollment",
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
		}
	}()
	key := model.SendLogKey{
		UserID:     e.UserID,
		CampaignID: c.ID,
		Milestone:  string(milestone),
		Day:        r.today,
	}

	// one attempt per key per sweep, even if the key shows up twice
	if _, loaded := r.claimed.LoadOrStore(key, struct{}{}); loaded {
		r.count(milestone, &r.alreadySent, "already_sent")
		return
	}

	decision, err := s.filter.Evaluate(ctx, e, key)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.count(milestone, &r.lookupFailures, "lookup_failed")
		if isLookupMiss(err) {
			log.Warn("Skipping enrollment, recipient unavailable", zap.Error(err))
		} else {
			log.Warn("Skipping enrollment, eligibility lookup failed",
				zap.String("error_type", errorType(err)),
				zap.Error(err),
			)
		}
		return
	}

	switch decision.Reason {
	case ReasonNotApproved:
		r.count(milestone, &r.notApproved, "not_approved")
		return
	case ReasonSubmitted:
		r.count(milestone, &r.submitted, "submitted")
		return
	case ReasonAlreadySent:
		r.count(milestone, &r.alreadySent, "already_sent")
		return
	}

	tpl, err := r.templates.get(ctx, milestone)
	if err != nil {
		if errors.Is(err, ErrNoActiveTemplate) {
			r.count(milestone, &r.configGaps, "config_gap")
			log.Warn("Configuration gap: no active template for milestone, skipping enrollment")
			return
		}
		if ctx.Err() != nil {
			return
		}
		r.count(milestone, &r.lookupFailures, "lookup_failed")
		log.Warn("Skipping enrollment, template lookup failed", zap.Error(err))
		return
	}

	msg := Render(*tpl, NewVariables(c, *decision.User, milestone))

	outcome, err := s.dispatcher.Deliver(ctx, Reminder{
		Key:          key,
		EnrollmentID: e.ID,
		To:           decision.User.Email,
		Message:      msg,
	})
	switch outcome {
	case OutcomeSent:
		r.count(milestone, &r.sent, "sent")
		if errors.Is(err, ErrSendLogWrite) {
			r.logWriteFailures.Add(1)
		}
	case OutcomeAlreadySent:
		r.count(milestone, &r.alreadySent, "already_sent")
	case OutcomeFailed:
		r.count(milestone, &r.failed, "failed")
	}
}

func (r *sweepRun) count(m Milestone, c *atomic.Int64, outcome string) {
	c.Add(1)
	metrics.IncrementReminderOutcome(string(m), outcome)
}

func (r *sweepRun) finish(result string) *Report {
	rep := r.report
	rep.FinishedAt = r.sweeper.now().In(r.sweeper.location)
	rep.Result = result
	rep.Campaigns = r.campaigns.Load()
	rep.Enrollments = r.enrollments.Load()
	rep.Sent = r.sent.Load()
	rep.Failed = r.failed.Load()
	rep.AlreadySent = r.alreadySent.Load()
	rep.Submitted = r.submitted.Load()
	rep.NotApproved = r.notApproved.Load()
	rep.NoMilestone = r.noMilestone.Load()
	rep.ConfigGaps = r.configGaps.Load()
	rep.LookupFailures = r.lookupFailures.Load()
	rep.LogWriteFailures = r.logWriteFailures.Load()

	metrics.RecordSweep(result, rep.FinishedAt.Sub(rep.StartedAt))
	return &rep
}

// templateMemo loads each milestone's active template at most once per sweep.
// Store errors are not memoized so a later enrollment may retry the lookup.
type templateMemo struct {
	store   TemplateStore
	mu      sync.Mutex
	entries map[Milestone]*model.Template // nil value: no active template
}

func newTemplateMemo(store TemplateStore) *templateMemo {
	return &templateMemo{store: store, entries: make(map[Milestone]*model.Template)}
}

func (m *templateMemo) get(ctx context.Context, milestone Milestone) (*model.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tpl, ok := m.entries[milestone]
	if !ok {
		loaded, err := m.store.GetActiveTemplate(ctx, string(milestone))
		if err != nil {
			return nil, fmt.Errorf("get active template %s: %w", milestone, err)
		}
		if loaded != nil && !loaded.IsActive {
			loaded = nil
		}
		m.entries[milestone] = loaded
		tpl = loaded
	}
	if tpl == nil {
		return nil, ErrNoActiveTemplate
	}
	return tpl, nil
}
