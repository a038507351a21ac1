package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	contractmq "creatorreminder/contracts/mq"
	"creatorreminder/internal/model"
	"creatorreminder/pkg/circuitbreaker"
	"creatorreminder/pkg/logger"
	"creatorreminder/pkg/metrics"
	"creatorreminder/pkg/trace"
	"creatorreminder/pkg/util"
)

// sendLogWriteTimeout bounds the send-log write that follows a successful
// delivery; it runs even when the sweep has been canceled.
const sendLogWriteTimeout = 5 * time.Second

// Claimer guards a reminder key across processes (see util.Deduper).
type Claimer interface {
	AcquireOnce(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// FailureCounter counts consecutive delivery failures per key (see util.RetryCounter).
type FailureCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// FailureReporter receives failed deliveries (see mq.Publisher.PublishToDLQ).
type FailureReporter interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload any, originalError string) error
}

// Reminder is one rendered message bound to its send-log key.
type Reminder struct {
	Key          model.SendLogKey
	EnrollmentID int64
	To           string
	Message      Message
}

type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeAlreadySent
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeAlreadySent:
		return "already_sent"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Dispatcher makes exactly one delivery attempt per reminder and records the
// result in the send log.
type Dispatcher struct {
	sender   Sender
	provider string
	sendLog  SendLogStore
	breaker  *circuitbreaker.CircuitBreaker
	limiter  *rate.Limiter
	claimer  Claimer
	failures FailureCounter
	dlq      FailureReporter
	logger   *zap.Logger
	now      func() time.Time
}

type DispatcherOption func(*Dispatcher)

// WithProvider sets the provider label used in metrics.
func WithProvider(name string) DispatcherOption {
	return func(d *Dispatcher) { d.provider = name }
}

func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) DispatcherOption {
	return func(d *Dispatcher) { d.breaker = cb }
}

// WithRateLimit caps delivery calls per second. Zero or less means unlimited.
func WithRateLimit(perSecond float64) DispatcherOption {
	return func(d *Dispatcher) {
		if perSecond <= 0 {
			d.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithClaimer(c Claimer) DispatcherOption {
	return func(d *Dispatcher) { d.claimer = c }
}

func WithFailureCounter(fc FailureCounter) DispatcherOption {
	return func(d *Dispatcher) { d.failures = fc }
}

func WithFailureReporter(r FailureReporter) DispatcherOption {
	return func(d *Dispatcher) { d.dlq = r }
}

func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(sender Sender, sendLog SendLogStore, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		sender:   sender,
		provider: "default",
		sendLog:  sendLog,
		breaker:  circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver sends r once. A failed send is never logged so the reminder stays
// eligible for the next sweep. After a successful send, an error wrapping
// ErrSendLogWrite means the send-log entry could not be persisted.
func (d *Dispatcher) Deliver(ctx context.Context, r Reminder) (Outcome, error) {
	log := logger.WithTrace(ctx, d.logger).With(
		zap.Int64("user_id", r.Key.UserID),
		zap.Int64("campaign_id", r.Key.CampaignID),
		zap.Int64("enrollment_id", r.EnrollmentID),
		zap.String("milestone", r.Key.Milestone),
	)
	claimKey := r.Key.String()

	claimed := false
	if d.claimer != nil {
		ok, err := d.claimer.AcquireOnce(ctx, claimKey)
		if !ok {
			return OutcomeAlreadySent, nil
		}
		// a Redis error fails open; the send-log unique key still holds
		claimed = err == nil
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			d.releaseClaim(claimed, claimKey, log)
			return OutcomeFailed, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	start := d.now()
	err := d.breaker.Execute(func() (err error) {
		// a panicking provider counts as a failed send
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("%w: %v", ErrSenderPanic, p)
			}
		}()
		return d.sender.Send(ctx, r.To, r.Message.Subject, r.Message.Body)
	})
	elapsed := d.now().Sub(start)

	if err != nil {
		metrics.RecordDeliveryLatency(d.provider, "failed", elapsed)
		d.releaseClaim(claimed, claimKey, log)
		d.reportFailure(ctx, r, claimKey, err, log)
		return OutcomeFailed, fmt.Errorf("send reminder: %w", err)
	}
	metrics.RecordDeliveryLatency(d.provider, "sent", elapsed)

	// the message is out; persist the log entry even if the sweep was canceled meanwhile
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendLogWriteTimeout)
	defer cancel()

	inserted, err := d.sendLog.Insert(writeCtx, model.SendLogEntry{
		Key:          r.Key,
		EnrollmentID: r.EnrollmentID,
		Recipient:    r.To,
		Subject:      r.Message.Subject,
		SentAt:       d.now(),
	})
	if err != nil {
		log.Error("Reminder sent but send-log write failed, a duplicate may follow on the next sweep",
			zap.String("error_type", errorType(err)),
			zap.Error(err),
		)
		return OutcomeSent, fmt.Errorf("%w: %w", ErrSendLogWrite, err)
	}
	if !inserted {
		log.Info("Send-log entry already present, treating as already sent")
	}

	if d.failures != nil {
		if err := d.failures.Reset(writeCtx, claimKey); err != nil {
			log.Debug("Failed to reset failure counter", zap.Error(err))
		}
	}

	log.Info("Reminder sent", zap.String("recipient", r.To))
	return OutcomeSent, nil
}

func (d *Dispatcher) releaseClaim(claimed bool, key string, log *zap.Logger) {
	if !claimed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendLogWriteTimeout)
	defer cancel()
	if err := d.claimer.Release(ctx, key); err != nil {
		log.Warn("Failed to release reminder claim", zap.String("claim_key", key), zap.Error(err))
	}
}

func (d *Dispatcher) reportFailure(ctx context.Context, r Reminder, key string, sendErr error, log *zap.Logger) {
	kind := errorType(sendErr)

	var count int64
	if d.failures != nil {
		n, err := d.failures.IncrementAndGet(ctx, key)
		if err != nil {
			log.Debug("Failed to increment failure counter", zap.Error(err))
		}
		count = n
	}

	log.Warn("Reminder delivery failed, will retry on next sweep",
		zap.String("error_type", kind),
		zap.Int64("failure_count", count),
		zap.Error(sendErr),
	)

	if d.dlq == nil || errors.Is(sendErr, context.Canceled) {
		return
	}
	payload := contractmq.ReminderFailedPayload{
		UserID:       r.Key.UserID,
		CampaignID:   r.Key.CampaignID,
		EnrollmentID: r.EnrollmentID,
		Milestone:    r.Key.Milestone,
		Day:          r.Key.DayString(),
		Error:        sendErr.Error(),
		ErrorType:    kind,
		FailureCount: count,
		FailedAt:     d.now(),
		TraceID:      trace.FromContext(ctx),
	}
	if err := d.dlq.PublishToDLQ(ctx, contractmq.RoutingKeyReminderFailed, payload, sendErr.Error()); err != nil {
		log.Error("Failed to publish reminder failure to DLQ", zap.Error(err))
	}
}

func errorType(err error) string {
	_, kind := util.IsRetryableError(err)
	return kind
}
