package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/WeddingDonations/pkg/health"
	"github.com/utafrali/WeddingDonations/pkg/middleware"
)

// webhookBodyLimit bounds provider notification bodies.
const webhookBodyLimit = 1 << 20

// RateLimit is a per-client token bucket. A zero RPS disables limiting.
type RateLimit struct {
	RPS   float64
	Burst int
}

// RouterConfig carries everything NewRouter needs.
type RouterConfig struct {
	ServiceName   string
	Auth          AuthService
	Payments      PaymentService
	Health        *health.Handler
	Logger        *slog.Logger
	CORSOrigins   []string
	WebhookSecret string
	AuthLimit     RateLimit
	WebhookLimit  RateLimit
}

// NewRouter creates a chi router with all donation API routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins...)))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	requireAdmin := middleware.Auth(adminAuthenticator(cfg.Auth))
	authLimit := rateLimit(cfg.AuthLimit, logger)

	authHandler := NewAuthHandler(cfg.Auth, logger)
	r.Route("/api/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		// Credential endpoints: rate limited, no bearer token.
		r.Group(func(r chi.Router) {
			r.Use(authLimit)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/logout-all", authHandler.LogoutAll)
			r.Get("/me", authHandler.Me)
			r.Post("/change-password", authHandler.ChangePassword)
			r.Get("/sessions", authHandler.ListSessions)
			r.Delete("/sessions/{id}", authHandler.RevokeSession)

			r.With(RequireSuperAdmin).Post("/admins", authHandler.CreateAdmin)
		})
	})

	paymentHandler := NewPaymentHandler(cfg.Payments, logger)
	r.Route("/api/payments", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Post("/bank/initialize", paymentHandler.InitializeCard)
			r.Post("/mobile-money/initialize", paymentHandler.InitializeMobileMoney)
			r.Post("/mobile-money/submit-otp", paymentHandler.SubmitOTP)
		})
		r.Get("/verify/{reference}", paymentHandler.Verify)
		r.Get("/callback", paymentHandler.Callback)

		r.With(
			rateLimit(cfg.WebhookLimit, logger),
			middleware.PreserveRawBody(webhookBodyLimit),
			middleware.VerifySignature(middleware.SignatureConfig{
				Header: "x-paystack-signature",
				Secret: cfg.WebhookSecret,
			}, logger),
		).Post("/webhook", paymentHandler.Webhook)
	})

	donationHandler := NewDonationHandler(cfg.Payments, logger)
	r.Route("/api/donations", func(r chi.Router) {
		r.Use(requireAdmin)
		r.Get("/", donationHandler.List)
	})

	return r
}

func rateLimit(l RateLimit, logger *slog.Logger) func(http.Handler) http.Handler {
	if l.RPS <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimit(l.RPS, l.Burst, logger)
}
