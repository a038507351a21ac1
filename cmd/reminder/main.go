package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	contractmq "creatorreminder/contracts/mq"
	"creatorreminder/internal/config"
	"creatorreminder/internal/delivery"
	"creatorreminder/internal/httpserver"
	"creatorreminder/internal/reminder"
	"creatorreminder/internal/repository"
	"creatorreminder/pkg/circuitbreaker"
	"creatorreminder/pkg/db"
	"creatorreminder/pkg/logger"
	"creatorreminder/pkg/mq"
	"creatorreminder/pkg/otel"
	"creatorreminder/pkg/outbox"
	pkgredis "creatorreminder/pkg/redis"
	"creatorreminder/pkg/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger level comes from config, so fall back to a default logger here
		logger.NewLogger("info").Fatal("Failed to load config", zap.Error(err))
	}

	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	log.Info("Starting creator reminder service...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("delivery_provider", cfg.Delivery.Provider),
		zap.String("timezone", cfg.Reminder.Timezone),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownTracing, err := otel.Init(cfg.Otel, log)
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing()

	// DB
	log.Info("Initializing database connection...")
	dbConn, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("Database connection established successfully")

	readiness := map[string]httpserver.Check{
		"db": func(ctx context.Context) error { return dbConn.Ping(ctx) },
	}

	// Redis (optional): cross-process claims and failure counters
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = pkgredis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to init Redis", zap.Error(err))
		}
		defer rdb.Close()
		readiness["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		log.Info("Redis connection established", zap.String("addr", cfg.Redis.Addr))
	} else {
		log.Warn("Redis not configured, reminder claims are local to this process")
	}

	// MQ Publisher (optional): outbox events, dead letters and the mq provider
	var publisher *mq.Publisher
	if cfg.MQ.URL != "" {
		publisher, err = mq.NewPublisher(cfg.MQ.URL, cfg.MQ.Exchange, contractmq.RoutingKeyReminderFailed)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer publisher.Close()
		readiness["mq"] = func(context.Context) error {
			if !publisher.IsConnected() {
				return errors.New("publisher disconnected")
			}
			return nil
		}
	} else {
		log.Warn("MQ not configured, outbox events stay pending and failures are not dead-lettered")
	}

	// Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	stores := reminder.Stores{
		Campaigns:   repository.NewCampaignRepository(dbConn),
		Enrollments: repository.NewApplicationRepository(dbConn),
		Users:       repository.NewUserRepository(dbConn),
		Templates:   repository.NewTemplateRepository(dbConn),
		SendLog:     repository.NewSendLogRepository(dbConn, outboxRepo, log),
	}

	// Delivery
	var senderPublisher delivery.Publisher
	if publisher != nil {
		senderPublisher = publisher
	}
	sender, err := delivery.New(cfg.Delivery, senderPublisher, log)
	if err != nil {
		log.Fatal("Failed to init delivery provider", zap.Error(err))
	}

	breaker := circuitbreaker.NewCircuitBreaker(cfg.Delivery.Breaker).OnStateChange(func(from, to circuitbreaker.State) {
		log.Warn("Delivery circuit breaker state changed",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	})

	opts := []reminder.DispatcherOption{
		reminder.WithProvider(cfg.Delivery.Provider),
		reminder.WithCircuitBreaker(breaker),
		reminder.WithRateLimit(cfg.Delivery.RatePerSecond),
	}
	if rdb != nil {
		opts = append(opts,
			reminder.WithClaimer(util.NewDeduper(rdb, "reminder:claim:", cfg.Reminder.ClaimTTL, log)),
			reminder.WithFailureCounter(util.NewRetryCounter(rdb, "reminder:failures:", cfg.Reminder.FailureTTL)),
		)
	}
	if publisher != nil {
		opts = append(opts, reminder.WithFailureReporter(publisher))
	}
	dispatcher := reminder.NewDispatcher(sender, stores.SendLog, log, opts...)

	// Sweeper + Scheduler
	sweeper := reminder.NewSweeper(stores, dispatcher, reminder.SweeperConfig{
		Workers:  cfg.Reminder.Workers,
		Location: cfg.Location(),
	}, log)

	scheduler, err := reminder.NewScheduler(sweeper, reminder.SchedulerConfig{
		Interval: cfg.Reminder.Interval,
		Spec:     cfg.Reminder.Schedule,
		Location: cfg.Location(),
	}, log)
	if err != nil {
		log.Fatal("Failed to init scheduler", zap.Error(err))
	}

	// Outbox Dispatcher
	outboxCtx, outboxCancel := context.WithCancel(context.Background())
	defer outboxCancel()
	if publisher != nil {
		outboxDispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
			WithInterval(cfg.Outbox.Interval).
			WithBatchSize(cfg.Outbox.BatchSize).
			WithMaxRetries(cfg.Outbox.MaxRetries)
		go outboxDispatcher.Start(outboxCtx)
	}

	// HTTP Server (health, readiness, metrics, status)
	router := httpserver.NewRouter(scheduler, readiness)
	srv := router.Server(cfg.Server.Port)
	go func() {
		log.Info("HTTP server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	if cfg.Reminder.Schedule != "" {
		log.Info("Starting reminder scheduler", zap.String("schedule", cfg.Reminder.Schedule))
	} else {
		log.Info("Starting reminder scheduler", zap.Duration("interval", cfg.Reminder.Interval))
	}
	scheduler.Start()

	log.Info("creator reminder service is fully initialized and running")

	<-ctx.Done()
	log.Info("Shutting down creator reminder service gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Error("Scheduler stop error", zap.Error(err))
	}
	outboxCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("creator reminder service shutdown complete")
}
