package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/panditseva/internal/api"
	"github.com/onnwee/panditseva/internal/audit"
	"github.com/onnwee/panditseva/internal/auth"
	"github.com/onnwee/panditseva/internal/booking"
	"github.com/onnwee/panditseva/internal/catalog"
	"github.com/onnwee/panditseva/internal/config"
	"github.com/onnwee/panditseva/internal/db"
	"github.com/onnwee/panditseva/internal/health"
	"github.com/onnwee/panditseva/internal/idempotency"
	"github.com/onnwee/panditseva/internal/jobs"
	"github.com/onnwee/panditseva/internal/middleware"
	"github.com/onnwee/panditseva/internal/pandit"
	"github.com/onnwee/panditseva/internal/ranking"
	"github.com/onnwee/panditseva/internal/rating"
	"github.com/onnwee/panditseva/internal/tracing"
	"github.com/onnwee/panditseva/internal/user"
)

// rateLimitWindow is the window of both configured request limits.
const rateLimitWindow = time.Minute

// reviewStore is what the server needs from rating storage: the store the
// service writes through and the subject listing used to seed reconciliation.
type reviewStore interface {
	rating.ReviewStore
	rating.SubjectLister
}

// storage holds the repositories for one backend.
type storage struct {
	users    user.Repository
	pandits  pandit.Repository
	bookings booking.Repository
	services catalog.Repository
	reviews  reviewStore
	audit    audit.Repository
	conn     *sql.DB // nil for in-memory storage
}

// app is a fully wired server: its HTTP handler plus the background work
// and connections that must be started and released with it.
type app struct {
	handler  http.Handler
	logger   *slog.Logger
	tracer   *tracing.Provider
	registry *prometheus.Registry

	reconcile *jobs.Periodic
	periodic  []*jobs.Periodic
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger, registry: prometheus.NewRegistry()}

	tp, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:        cfg.TracingEnabled,
		ServiceName:    api.ServiceName,
		ServiceVersion: api.Version,
		Environment:    cfg.Env,
		Exporter:       tracing.Exporter(cfg.TracingExporter),
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       cfg.TracingInsecure,
		SampleRate:     cfg.TracingSampleRate,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracing provider: %w", err)
	}
	a.tracer = tp

	httpMetrics := middleware.NewMetrics()
	rankingMetrics := ranking.NewMetrics()
	ratingMetrics := rating.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	for _, register := range []func(prometheus.Registerer) error{
		httpMetrics.Register,
		rankingMetrics.Register,
		ratingMetrics.Register,
		jobMetrics.Register,
	} {
		if err := register(a.registry); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	var dbChecker api.HealthChecker
	if store.conn != nil {
		dbChecker = health.NewDBChecker(store.conn)
		a.closers = append(a.closers, store.conn.Close)
	}

	var (
		locker       rating.SubjectLocker = rating.NewKeyedMutex()
		searchLimit  middleware.RateLimitStore
		reviewLimit  middleware.RateLimitStore
		idempotent   idempotency.Store
		redisChecker api.HealthChecker
	)
	if cfg.RedisURL != "" {
		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		redisChecker = health.NewRedisChecker(client)
		locker = rating.NewRedisLocker(client, rating.RedisLockerConfig{Logger: logger})
		searchLimit = middleware.NewRedisRateLimitStore(client).WithPrefix("search").WithMetrics(httpMetrics).WithLogger(logger)
		reviewLimit = middleware.NewRedisRateLimitStore(client).WithPrefix("review").WithMetrics(httpMetrics).WithLogger(logger)
		idempotent = idempotency.NewRedisStore(client, idempotency.DefaultExpiry)
		logger.Info("using redis for review locks, rate limits and idempotency keys")
	} else {
		searchMem := middleware.NewInMemoryRateLimitStore()
		reviewMem := middleware.NewInMemoryRateLimitStore()
		searchLimit, reviewLimit = searchMem, reviewMem
		a.periodic = append(a.periodic, jobs.NewPeriodic(jobs.PeriodicConfig{
			JobType:  jobs.JobTypeRateLimitCleanup,
			Interval: rateLimitWindow,
			Run: func(context.Context) error {
				searchMem.Cleanup()
				reviewMem.Cleanup()
				return nil
			},
			Metrics: jobMetrics,
			Logger:  logger,
		}))
		idemMem := idempotency.NewInMemoryStore(idempotency.DefaultExpiry)
		idempotent = idemMem
		a.periodic = append(a.periodic, jobs.NewPeriodic(jobs.PeriodicConfig{
			JobType:  jobs.JobTypeIdempotencyCleanup,
			Interval: time.Hour,
			Run:      idempotency.Cleanup(idemMem, logger),
			Metrics:  jobMetrics,
			Logger:   logger,
		}))
		logger.Warn("REDIS_URL not set, review locks, rate limits and idempotency keys are local to this process")
	}

	calibration, err := ranking.LoadCalibration(cfg.RankingCalibrationPath)
	if err != nil {
		logger.Warn("using default ranking calibration", "error", err)
	}
	ranker := ranking.NewRanker(calibration, rankingMetrics)

	dirty := rating.NewDirtyTracker()
	reviews := rating.NewService(rating.ServiceConfig{
		Store:   store.reviews,
		Locker:  locker,
		Dirty:   dirty,
		Metrics: ratingMetrics,
		Logger:  logger,
	})
	a.reconcile = rating.NewReconcileJob(rating.ReconcileJobConfig{
		Logger:  logger,
		Metrics: ratingMetrics,
		Locker:  locker,
	}, dirty, store.reviews).Periodic(cfg.RatingReconcileInterval, jobMetrics)
	if n, err := dirty.Seed(ctx, store.reviews); err != nil {
		logger.Warn("failed to seed reconcile queue", "error", err)
	} else if n > 0 {
		logger.Info("queued stored aggregates for reconciliation", "subjects", n)
	}

	router := api.NewRouter(api.RouterConfig{
		Tokens:   auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret, auth.DefaultLeeway),
		Users:    store.users,
		Pandits:  store.pandits,
		Bookings: store.bookings,
		Services: store.services,
		Ranker:   ranker,
		Reviews:  reviews,
		Audit:    store.audit,

		Idempotency: idempotent,

		Health: api.NewHealthHandlers(api.HealthHandlersConfig{
			DBChecker:      dbChecker,
			RedisChecker:   redisChecker,
			MetricsEnabled: true,
		}),
		Metrics: api.NewMetricsHandler(a.registry, cfg.MetricsToken),
		SearchLimit: api.RateLimit{
			Store:  searchLimit,
			Config: middleware.RateLimitConfig{RequestsPerWindow: cfg.RateLimitSearchPerMinute, WindowDuration: rateLimitWindow},
		},
		ReviewLimit: api.RateLimit{
			Store:  reviewLimit,
			Config: middleware.RateLimitConfig{RequestsPerWindow: cfg.RateLimitReviewPerMinute, WindowDuration: rateLimitWindow},
		},
		MiddlewareMetrics: httpMetrics,
	})

	// Apply middleware: RequestID -> Tracing -> Logging -> HTTPMetrics -> CORS
	handler := middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins})(router)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	if tp.Enabled() {
		handler = middleware.Tracing(api.ServiceName)(handler)
	}
	a.handler = middleware.RequestID(handler)

	return a, nil
}

// openStorage connects to Postgres when DATABASE_URL is set and falls back to
// in-memory repositories otherwise.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		users := user.NewInMemoryRepository()
		pandits := pandit.NewInMemoryRepository()
		reviews := rating.NewInMemoryStore()
		reviews.Mirror(rating.TypePandit, pandits)
		reviews.Mirror(rating.TypeUser, users)
		bookings := booking.NewInMemoryRepository()
		services := catalog.NewInMemoryRepository()
		cascadePanditDelete(pandits, bookings, services, reviews)
		return &storage{
			users:    users,
			pandits:  pandits,
			bookings: bookings,
			services: services,
			reviews:  reviews,
			audit:    audit.NewInMemoryRepository(),
		}, nil
	}

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info("connected to database")

	return &storage{
		users:    user.NewPostgresRepository(conn, logger),
		pandits:  pandit.NewPostgresRepository(conn, logger),
		bookings: booking.NewPostgresRepository(conn, logger),
		services: catalog.NewPostgresRepository(conn, logger),
		reviews:  rating.NewPostgresStore(conn, logger),
		audit:    audit.NewPostgresRepository(conn, logger),
		conn:     conn,
	}, nil
}

// cascadePanditDelete makes deleting an in-memory pandit remove their
// services, bookings and the reviews written on those bookings, as the
// foreign keys do in Postgres.
func cascadePanditDelete(pandits *pandit.InMemoryRepository, bookings *booking.InMemoryRepository, services *catalog.InMemoryRepository, reviews *rating.InMemoryStore) {
	pandits.OnDelete(services.DeleteByPandit, func(ctx context.Context, panditID string) error {
		ids, err := bookings.DeleteByPandit(ctx, panditID)
		if err != nil {
			return err
		}
		_, err = reviews.DeleteByBookings(ctx, ids)
		return err
	})
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// start launches the background jobs.
func (a *app) start(ctx context.Context) {
	a.reconcile.Start(ctx)
	for _, p := range a.periodic {
		p.Start(ctx)
	}
}

// shutdown stops background jobs, flushes traces and closes connections.
func (a *app) shutdown(ctx context.Context) {
	a.reconcile.Stop()
	for _, p := range a.periodic {
		p.Stop()
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Error("failed to shutdown tracing provider", "error", err)
	}
	a.close()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("failed to close connection", "error", err)
		}
	}
	a.closers = nil
}
