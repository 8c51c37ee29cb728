package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fagerlund/salon-platform/internal/api/router"
	"github.com/fagerlund/salon-platform/internal/appointments"
	"github.com/fagerlund/salon-platform/internal/cancellation"
	appconfig "github.com/fagerlund/salon-platform/internal/config"
	"github.com/fagerlund/salon-platform/internal/events"
	"github.com/fagerlund/salon-platform/internal/http/handlers"
	httpmiddleware "github.com/fagerlund/salon-platform/internal/http/middleware"
	"github.com/fagerlund/salon-platform/internal/notify"
	"github.com/fagerlund/salon-platform/internal/observability/metrics"
	"github.com/fagerlund/salon-platform/internal/payments"
	"github.com/fagerlund/salon-platform/internal/policy"
	"github.com/fagerlund/salon-platform/internal/reconcile"
	"github.com/fagerlund/salon-platform/internal/refunds"
	"github.com/fagerlund/salon-platform/internal/scheduler"
	"github.com/fagerlund/salon-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel, cfg.Env)
	logger.Info("starting salon-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer func() { _ = rdb.Close() }()

	// Repositories.
	apptRepo := appointments.NewRepository(pool)
	payRepo := payments.NewRepository(pool)
	refundRepo := refunds.NewRepository(pool)
	policyResolver := policy.NewResolver(pool)
	processedStore := events.NewProcessedStore(pool)

	// Observability.
	registry := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(registry)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	// Notifications.
	notifier := notify.NewService(pool, emailSender(ctx, cfg, logger), logger)

	// Domain services.
	detector := appointments.NewDetector(apptRepo)
	bookingService := appointments.NewService(apptRepo, detector, logger)
	generator := appointments.NewGenerator(apptRepo, detector, logger)
	executor := payments.NewExecutor(
		payments.NewStripeRefunder(cfg.StripeSecretKey, logger),
		payments.NewVippsRefunder(logger),
		logger,
	)
	calculator := cancellation.NewCalculator(apptRepo, payRepo, policyResolver, nil)
	cancelService := cancellation.NewService(calculator, apptRepo, payRepo, refundRepo, executor, logger)
	reconciler := reconcile.NewReconciler(payRepo, apptRepo, notifier, logger)

	// Reminder scheduler.
	reminders := scheduler.New(apptRepo, notifier, cfg.ReminderInterval, cfg.ReminderWindow, nil, logger)
	go reminders.Start(ctx)

	r := router.New(&router.Config{
		Logger:             logger,
		Appointments:       handlers.NewAppointmentsHandler(bookingService, generator, bookingMetrics, logger),
		Cancellation:       handlers.NewCancellationHandler(cancelService, apptRepo, notifier, bookingMetrics, logger),
		Refunds:            handlers.NewRefundsHandler(refundRepo, logger),
		StripeWebhook:      handlers.NewStripeWebhookHandler(cfg.StripeWebhookSecret, cfg.StripeWebhookTolerance, reconciler, processedStore, bookingMetrics, logger),
		VippsWebhook:       handlers.NewVippsWebhookHandler(cfg.VippsCallbackToken, reconciler, processedStore, bookingMetrics, logger),
		RateLimiter:        httpmiddleware.NewRedisRateLimiter(rdb, cfg.RateLimitRequests, cfg.RateLimitWindow, logger),
		StaffJWTSecret:     cfg.StaffJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	reminders.Wait()

	logger.Info("server stopped")
}

// emailSender picks the configured email backend, falling back to the stub
// so development environments never need credentials.
func emailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			return s
		}
		logger.Warn("sendgrid not configured, falling back to stub sender")
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Warn("failed to load AWS config, falling back to stub sender", "error", err)
			break
		}
		if s := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			return s
		}
	}
	return notify.NewStubEmailSender(logger)
}
