package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/fagerlund/salon-platform/internal/http/handlers"
	httpmiddleware "github.com/fagerlund/salon-platform/internal/http/middleware"
	"github.com/fagerlund/salon-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Appointments       *handlers.AppointmentsHandler
	Cancellation       *handlers.CancellationHandler
	Refunds            *handlers.RefundsHandler
	StripeWebhook      *handlers.StripeWebhookHandler
	VippsWebhook       *handlers.VippsWebhookHandler
	RateLimiter        *httpmiddleware.RedisRateLimiter
	StaffJWTSecret     string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a chi router with all routes configured. Webhooks and health
// live outside the tenant middleware; the data plane requires X-Tenant-Id,
// and mutating appointment routes additionally require staff auth.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware())
	}

	// Public endpoints: health, metrics, gateway webhooks.
	r.Group(func(public chi.Router) {
		public.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.StripeWebhook != nil {
			public.Post("/webhooks/stripe", cfg.StripeWebhook.HandleWebhook)
		}
		if cfg.VippsWebhook != nil {
			public.Post("/webhooks/vipps/{tenantID}", cfg.VippsWebhook.HandleCallback)
		}
	})

	// Tenant-scoped API routes.
	r.Group(func(tenant chi.Router) {
		tenant.Use(httpmiddleware.RequireTenant())

		tenant.Route("/appointments", func(r chi.Router) {
			r.Use(httpmiddleware.StaffJWT(cfg.StaffJWTSecret))
			r.Post("/", cfg.Appointments.Create)
			r.Post("/recurring", cfg.Appointments.CreateRecurring)
			r.Get("/recurring/{id}", cfg.Appointments.ListRecurring)
			r.Post("/{id}/reschedule", cfg.Appointments.Reschedule)
			r.Post("/{id}/cancel", cfg.Cancellation.Cancel)
		})

		tenant.With(httpmiddleware.StaffJWT(cfg.StaffJWTSecret)).
			Get("/refunds", cfg.Refunds.List)
	})

	return r
}
