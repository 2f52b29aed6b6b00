package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/cors"

	"github.com/gigbook/backend/internal/auth"
	"github.com/gigbook/backend/internal/booking"
	"github.com/gigbook/backend/internal/clock"
	"github.com/gigbook/backend/internal/config"
	"github.com/gigbook/backend/internal/dashboard"
	"github.com/gigbook/backend/internal/database"
	"github.com/gigbook/backend/internal/handlers"
	"github.com/gigbook/backend/internal/jobs"
	"github.com/gigbook/backend/internal/ledger"
	"github.com/gigbook/backend/internal/metrics"
	"github.com/gigbook/backend/internal/middleware"
	"github.com/gigbook/backend/internal/models"
	"github.com/gigbook/backend/internal/notify"
	"github.com/gigbook/backend/internal/payments"
	"github.com/gigbook/backend/internal/promocode"
	"github.com/gigbook/backend/internal/provider"
	"github.com/gigbook/backend/internal/repository"
	"github.com/gigbook/backend/internal/router"
	"github.com/gigbook/backend/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := database.Migrate(ctx, pool); err != nil {
		slog.Error("Migrations failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Migrations applied")

	m := metrics.New(prometheus.DefaultRegisterer)
	clk := clock.Real()

	accountRepo := repository.NewAccountRepo(pool)
	bookingRepo := repository.NewBookingRepo(pool)
	changeRepo := repository.NewChangeRecordRepo(pool)
	promocodeRepo := repository.NewPromocodeRepo(pool)
	transactionRepo := repository.NewTransactionRepo(pool)
	withdrawalRepo := repository.NewWithdrawalRepo(pool)

	ledgerSvc := ledger.NewService(transactionRepo, accountRepo, m, logger)

	// Jobs: insert func is set after River client is created (breaks init cycle)
	var insertMu sync.Mutex
	var insertFn models.EnqueueEventTxFunc
	enqueue := func(ctx context.Context, tx pgx.Tx, event models.BookingEvent, entityPK uuid.UUID) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, event, entityPK)
	}

	var remindFn jobs.RemindFunc
	remind := func(ctx context.Context, event models.BookingEvent, bookingID uuid.UUID, hours int) error {
		insertMu.Lock()
		fn := remindFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, event, bookingID, hours)
	}

	stripe := provider.NewStripe(provider.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Currency:      cfg.Stripe.Currency,
		APIBaseURL:    cfg.Stripe.APIBaseURL,
	}, m, logger)

	machine := booking.NewMachine(bookingRepo, changeRepo, clk, m, logger)
	orchestrator := payments.NewOrchestrator(pool, bookingRepo, machine, ledgerSvc, stripe,
		withdrawalRepo, accountRepo, enqueue, clk, m, logger)

	promoEngine, err := promocode.NewEngine(promocodeRepo, clk, m, logger)
	if err != nil {
		slog.Error("Failed to create promocode engine", "error", err)
		os.Exit(1)
	}
	bookingSvc := booking.NewService(bookingRepo, changeRepo, machine, accountRepo, orchestrator,
		promoEngine, enqueue, clk, booking.Config{
			MinDurationMinutes: cfg.Booking.MinDurationMinutes,
			MinLeadTime:        cfg.Booking.MinLeadTime,
		}, m, logger)

	kafkaWriter := notify.NewKafkaWriter(cfg.Kafka.Brokers)
	publisher := notify.NewPublisher(kafkaWriter, notify.Topics{
		Notifications: cfg.Kafka.TopicNotifications,
		Emails:        cfg.Kafka.TopicEmails,
		ChatRooms:     cfg.Kafka.TopicChatRooms,
	})
	defer publisher.Close()

	// Workers: booking side effects and periodic sweeps
	sweeper := jobs.NewSweeper(bookingRepo, orchestrator, bookingSvc, remind, clk, jobs.SweepConfig{
		PaymentTimeout:    cfg.Sweeps.PaymentTimeout,
		DJResponseTimeout: cfg.Sweeps.DJResponseTimeout,
		PayoutDelay:       cfg.Sweeps.PayoutDelay,
		RatingWindow:      cfg.Sweeps.RatingWindow,
	}, m, logger)
	workers := river.NewWorkers()
	jobs.AddWorkers(workers,
		jobs.NewBookingEventWorker(bookingRepo, accountRepo, withdrawalRepo, publisher, publisher, publisher, logger),
		sweeper)

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.RiverMaxWorkers},
		},
		Workers: workers,
		PeriodicJobs: jobs.PeriodicJobs(jobs.Intervals{
			PaymentTimeout:    cfg.Sweeps.PaymentTimeoutEvery,
			DJResponseTimeout: cfg.Sweeps.DJResponseTimeoutEvery,
			EventStarted:      cfg.Sweeps.EventStartedEvery,
			Payout:            cfg.Sweeps.PayoutEvery,
			RatingWindow:      cfg.Sweeps.RatingWindowEvery,

			AwaitingAcceptanceReminders: cfg.Sweeps.AwaitingAcceptanceRemindersEvery,
			BeforeEventReminders:        cfg.Sweeps.BeforeEventRemindersEvery,
			RatingReminders:             cfg.Sweeps.RatingRemindersEvery,
		}),
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = jobs.NewEnqueuer(riverClient)
	remindFn = jobs.NewReminder(riverClient)
	insertMu.Unlock()

	// Webhooks
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	var dedupe webhook.Dedupe
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("Redis unavailable, webhook dedupe disabled", "error", err)
	} else {
		dedupe = webhook.NewRedisDedupe(rdb, cfg.Redis.DedupeTTL)
	}
	processor := webhook.NewProcessor(stripe, orchestrator, accountRepo, dedupe, m, logger)

	schemas, err := middleware.LoadSchemas()
	if err != nil {
		slog.Error("Failed to load request schemas", "error", err)
		os.Exit(1)
	}

	apiRouter := router.New(router.Deps{
		Bookings:    &handlers.BookingHandler{Bookings: bookingSvc, Payer: orchestrator, Logger: logger},
		Withdrawals: &handlers.WithdrawalHandler{Withdrawals: orchestrator, Logger: logger},
		Promocodes:  &handlers.PromocodeHandler{Promocodes: promoEngine, Logger: logger},
		Webhooks:    &handlers.WebhookHandler{Processor: processor, Logger: logger},
		Dashboard:   dashboard.NewHandler(accountRepo, ledgerSvc, logger),
		Tokens:      auth.NewService(cfg.JWTSecret, cfg.JWTTTL),
		Schemas:     schemas,
		Gatherer:    prometheus.DefaultGatherer,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	// Start River client (processes jobs)
	if err := riverClient.Start(ctx); err != nil {
		slog.Error("Failed to start River client", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		slog.Error("River stop failed", "error", err)
	}
}
