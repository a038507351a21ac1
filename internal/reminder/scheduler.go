package reminder

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultInterval = 24 * time.Hour

// SweepRunner is what the scheduler drives; *Sweeper implements it.
type SweepRunner interface {
	RunOnce(ctx context.Context) (*Report, error)
}

type SchedulerConfig struct {
	// Interval between sweeps. Ignored when Spec is set.
	Interval time.Duration
	// Spec is an optional standard 5-field cron expression, e.g. "0 9 * * *".
	Spec string
	// Location is the timezone cron expressions are evaluated in.
	Location *time.Location
}

// Scheduler runs a sweep immediately on Start and then on every tick. Ticks
// that arrive while a sweep is still running are skipped, including a sweep
// abandoned by an earlier Stop.
type Scheduler struct {
	runner   SweepRunner
	schedule cron.Schedule
	location *time.Location
	logger   *zap.Logger

	// busy holds a token while a sweep runs; it outlives Start/Stop cycles
	busy chan struct{}

	mu       sync.Mutex
	cron     *cron.Cron
	cancel   context.CancelFunc
	inflight *sync.WaitGroup

	lastReport atomic.Pointer[Report]
}

func NewScheduler(runner SweepRunner, cfg SchedulerConfig, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	var schedule cron.Schedule
	if cfg.Spec != "" {
		parsed, err := cron.ParseStandard(cfg.Spec)
		if err != nil {
			return nil, fmt.Errorf("parse schedule %q: %w", cfg.Spec, err)
		}
		schedule = parsed
	} else {
		interval := cfg.Interval
		if interval <= 0 {
			interval = defaultInterval
		}
		schedule = cron.Every(interval)
	}

	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		location: cfg.Location,
		logger:   logger,
		busy:     make(chan struct{}, 1),
	}, nil
}

// Start begins scheduling. Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	inflight := &sync.WaitGroup{}
	cl := cronLogger{l: s.logger.Sugar()}

	job := cron.NewChain(
		cron.SkipIfStillRunning(cl),
		cron.Recover(cl),
	).Then(cron.FuncJob(func() {
		s.runSweep(ctx)
	}))

	c := cron.New(cron.WithLocation(s.location), cron.WithLogger(cl))
	c.Schedule(s.schedule, job)
	c.Start()

	inflight.Add(1)
	go func() {
		defer inflight.Done()
		job.Run()
	}()

	s.cron, s.cancel, s.inflight = c, cancel, inflight
	s.logger.Info("Reminder scheduler started")
}

// Stop cancels any in-flight sweep and waits for it to return. If ctx ends
// first the sweep is abandoned and ctx.Err() is returned. Calling Stop on a
// stopped scheduler does nothing.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel, inflight := s.cron, s.cancel, s.inflight
	s.cron, s.cancel, s.inflight = nil, nil, nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	cancel()
	cronDone := c.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Reminder scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Reminder scheduler stop timed out, abandoning in-flight sweep", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// Running reports whether Start has been called without a matching Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// LastReport returns the report of the most recent sweep, or nil.
func (s *Scheduler) LastReport() *Report {
	return s.lastReport.Load()
}

func (s *Scheduler) runSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	select {
	case s.busy <- struct{}{}:
		defer func() { <-s.busy }()
	default:
		s.logger.Warn("Previous reminder sweep still running, skipping this run")
		return
	}
	report, err := s.runner.RunOnce(ctx)
	if report != nil {
		s.lastReport.Store(report)
	}
	if err != nil && ctx.Err() == nil {
		s.logger.Error("Reminder sweep failed", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
