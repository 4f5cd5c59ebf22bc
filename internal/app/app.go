package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/utafrali/WeddingDonations/internal/auth"
	"github.com/utafrali/WeddingDonations/internal/config"
	"github.com/utafrali/WeddingDonations/internal/event"
	"github.com/utafrali/WeddingDonations/internal/gateway"
	"github.com/utafrali/WeddingDonations/internal/gateway/fake"
	"github.com/utafrali/WeddingDonations/internal/gateway/paystack"
	handler "github.com/utafrali/WeddingDonations/internal/handler/http"
	"github.com/utafrali/WeddingDonations/internal/repository/postgres"
	redisrepo "github.com/utafrali/WeddingDonations/internal/repository/redis"
	"github.com/utafrali/WeddingDonations/internal/service"
	"github.com/utafrali/WeddingDonations/migrations"
	"github.com/utafrali/WeddingDonations/pkg/database"
	"github.com/utafrali/WeddingDonations/pkg/health"
	"github.com/utafrali/WeddingDonations/pkg/idempotency"
	pkgkafka "github.com/utafrali/WeddingDonations/pkg/kafka"
	"github.com/utafrali/WeddingDonations/pkg/tracing"
)

const (
	// ServiceName labels logs, metrics and traces.
	ServiceName = "wedding-donations"
	version     = "0.1.0"
)

// App wires together all dependencies and runs the donation API.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	janitor        *service.TokenJanitor
	tracerShutdown tracing.Shutdown
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.Init(ctx, cfg.Tracing(ServiceName, version))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, tracerShutdown: tracerShutdown}

	// Initialize PostgreSQL connection pool.
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("connect to postgres: %w", err), a.closeAll())
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return nil, errors.Join(fmt.Errorf("run migrations: %w", err), a.closeAll())
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	// Webhook de-duplication: Redis when available, otherwise process-local.
	var dedup idempotency.Store = idempotency.NewMemoryStore()
	if cfg.RedisEnabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			logger.Warn("redis unavailable, webhook de-duplication is process-local",
				slog.String("error", err.Error()),
			)
		} else {
			a.redis = client
			dedup = redisrepo.NewIdempotencyStore(client)
			logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))
		}
	}

	// Domain events. The interface stays nil when Kafka is off so the
	// event producer drops events instead of calling a nil writer.
	var publisher event.Publisher
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = a.producer
		if err := pingKafkaWithRetry(ctx, a.producer, logger); err != nil {
			logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
	}
	events := event.NewProducer(publisher, logger)

	// Build the dependency graph.
	donations := postgres.NewDonationRepository(pool)
	envelopes := postgres.NewEnvelopeRepository(pool)
	admins := postgres.NewAdminRepository(pool)
	refreshRepo := postgres.NewRefreshTokenRepository(pool)

	gw := newGateway(cfg, logger)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessExpiry)
	refreshStore := auth.NewRefreshStore(refreshRepo, cfg.RefreshTokenExpiry, cfg.RefreshTokenMaxExpiry)

	reconciler := service.NewReconciliationService(donations, gw, events, logger)
	payments := service.NewPaymentService(donations, envelopes, gw, reconciler, dedup, events, service.PaymentConfig{
		FrontendURL:     cfg.FrontendURL,
		DefaultCurrency: cfg.DefaultCurrency,
		AnonymousEmail:  cfg.AnonymousDonorEmail,
		WebhookDedupTTL: cfg.WebhookDedupTTL,
	}, logger)
	authService := service.NewAuthService(admins, jwtManager, refreshStore, events, logger)
	a.janitor = service.NewTokenJanitor(refreshStore, cfg.TokenCleanupInterval, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if a.redis != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}
	if a.producer != nil {
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return a.producer.Ping(ctx)
		})
	}

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		ServiceName:   ServiceName,
		Auth:          authService,
		Payments:      payments,
		Health:        healthHandler,
		Logger:        logger,
		CORSOrigins:   cfg.CORSAllowedOrigins,
		WebhookSecret: cfg.WebhookSecret(),
		AuthLimit:     handler.RateLimit{RPS: cfg.AuthRateLimitRPS, Burst: cfg.AuthRateLimitBurst},
		WebhookLimit:  handler.RateLimit{RPS: cfg.WebhookRateLimitRPS, Burst: cfg.WebhookRateLimitBurst},
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// newGateway selects the payment gateway for cfg.PaystackMode.
func newGateway(cfg *config.Config, logger *slog.Logger) gateway.PaymentGateway {
	if cfg.PaystackMode == config.PaystackModeFake {
		logger.Warn("using the in-memory payment gateway; no real charges are made")
		return fake.New()
	}
	return paystack.New(paystack.Config{
		BaseURL:   cfg.PaystackBaseURL,
		SecretKey: cfg.PaystackSecretKey,
		Timeout:   cfg.PaystackTimeout,
		Traced:    cfg.OTELEnabled,
	}, logger)
}

// Run starts the HTTP server and the token janitor, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Start background refresh token cleanup.
	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go a.janitor.Run(janitorCtx)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		stopJanitor()
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer, Redis client, PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	if a.httpServer != nil {
		httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer httpCancel()
		if err := a.httpServer.Shutdown(httpCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeAll releases everything NewApp may have opened. It tolerates a
// partially built App.
func (a *App) closeAll() error {
	var errs []error

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.producer = nil
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.redis = nil
	}

	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}

	return errors.Join(errs...)
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	const attempts = 3

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = producer.Ping(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}

		base := time.Duration(1<<uint(attempt)) * time.Second
		jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- retry jitter
		wait := base + jitter
		logger.Warn("kafka producer ping failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", attempts),
			slog.Duration("backoff", wait),
			slog.String("error", lastErr.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("kafka producer ping failed after %d attempts: %w", attempts, lastErr)
}
