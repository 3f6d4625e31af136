package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/database"
	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/health"
	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/httpclient"
	pkgkafka "github.com/justin-elyphant/elyphant-v1-sub002/pkg/kafka"
	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/tracing"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/auth"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/catalog"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/config"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/event"
	handler "github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/handler/http"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/notify"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/repository"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/repository/postgres"
	redisrepo "github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/repository/redis"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/service"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/migrations"
)

const idempotencyTTL = 24 * time.Hour

// App wires together all dependencies and runs the wishlist service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	rdb            *goredis.Client
	producer       *pkgkafka.Producer
	consumer       *pkgkafka.Consumer
	idempotency    *pkgkafka.MemoryIdempotencyStore
	kafkaNotifier  *notify.KafkaNotifier
	sessions       *service.SessionManager
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "wishlist",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	repo, err := a.openRepository(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	// Kafka is optional; without it the service runs standalone.
	var (
		events    service.EventPublisher
		notifiers = []notify.Notifier{notify.ContextNotifier{}, notify.NewLogNotifier(logger)}
	)
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		if err := a.producer.Ping(ctx); err != nil {
			logger.Warn("kafka producer ping failed, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
		eventProducer := event.NewProducer(a.producer, logger)
		events = eventProducer
		a.kafkaNotifier = notify.NewKafkaNotifier(eventProducer, logger)
		notifiers = append(notifiers, a.kafkaNotifier)

		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
	}

	// Build the dependency graph.
	sessions := service.NewSessionManager(repo, events, notify.Multi(notifiers...), logger, service.Config{
		AddRetryDelay:  cfg.AddRetryDelay,
		SessionIdleTTL: cfg.SessionIdleTTL,
	})
	a.sessions = sessions

	if cfg.KafkaEnabled {
		a.idempotency = pkgkafka.NewMemoryIdempotencyStore(idempotencyTTL)
		a.consumer = event.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID,
			event.NewConsumerHandler(sessions, logger), a.idempotency, logger)
	}

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.CatalogTimeout
	catalogBreaker := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpCfg),
		httpclient.DefaultCircuitBreakerConfig("catalog"),
		logger,
	)
	catalogClient := catalog.NewClient(catalogBreaker, cfg.CatalogBaseURL)
	healthHandler.RegisterNonCritical("catalog", catalogBreaker.Ready)

	// HTTP router.
	validator := auth.NewValidator(cfg.JWTSecret, cfg.JWTLeeway)
	wishlistHandler := handler.NewWishlistHandler(sessions, catalogClient, logger, handler.StreamConfig{})
	router := handler.NewRouter(wishlistHandler, healthHandler, validator.Validate, handler.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) openRepository(ctx context.Context, healthHandler *health.Handler) (repository.ProfileRepository, error) {
	cfg := a.cfg

	switch cfg.StoreBackend {
	case config.BackendRedis:
		rdb, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		a.logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		return redisrepo.NewProfileRepository(rdb), nil

	default:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		a.logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		if err := database.RegisterPoolMetrics(pool, "wishlist"); err != nil {
			a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}

		if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.logger.Info("database migrations completed")

		if cfg.SlowQueryThreshold > 0 {
			database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThreshold)*time.Millisecond, a.logger)
		}

		healthHandler.RegisterCritical("postgres", pool.Ping)
		return postgres.NewProfileRepository(pool), nil
	}
}

// Run starts the HTTP server and the Kafka consumer, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("user events consumer: %w", err)
			}
		}()
		go a.sweepIdempotency(ctx)
	}
	if a.cfg.SessionIdleTTL > 0 {
		go a.sweepSessions(ctx)
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

func (a *App) sweepIdempotency(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.idempotency.Sweep(); n > 0 {
				a.logger.Debug("expired idempotency keys dropped", slog.Int("count", n))
			}
		}
	}
}

func (a *App) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(min(a.cfg.SessionIdleTTL, time.Minute))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sessions.Sweep(ctx)
		}
	}
}

// Shutdown gracefully stops all components in order: HTTP server, tracer,
// Kafka consumer, pending notifications, Kafka producer, storage.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.kafkaNotifier != nil {
		a.kafkaNotifier.Wait()
	}

	errs = append(errs, a.closeResources()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeResources() []error {
	var errs []error
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errs
}
