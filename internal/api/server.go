package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"routeopt/internal/auth"
	"routeopt/internal/config"
	"routeopt/internal/jobs"
	"routeopt/internal/metrics"
	"routeopt/internal/store"
	"routeopt/internal/webhooks"
)

type Server struct {
	Config config.Config
	Log    *zap.Logger
	Store  store.Store
	Jobs   *jobs.Service
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker

	storeKind string
	limiter   *rate.Limiter
}

// NewServer wires the store, broker and job service from cfg. Postgres is
// used when a DATABASE_URL is set, then SQLite when a path is set, else
// the in-memory store.
func NewServer(cfg config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	st, kind, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL, log.Named("broker"))
		if err != nil {
			log.Warn("redis broker unavailable, using in-process broker", zap.Error(err))
		} else {
			broker = rb
		}
	}

	pub := webhooks.NewPublisher(st)
	svc, err := jobs.NewService(st, broker, pub, jobs.Options{
		MaxConcurrent:   cfg.MaxConcurrentSolves,
		MatrixCacheSize: cfg.MatrixCacheSize,
		Defaults:        cfg.Search.Parameters(),
	}, log.Named("jobs"))
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RateRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateRPS), max(cfg.RateBurst, 1))
	}
	return &Server{
		Config:    cfg,
		Log:       log,
		Store:     st,
		Jobs:      svc,
		Pub:       pub,
		Auth:      auth.NewVerifier(cfg.Auth),
		Broker:    broker,
		storeKind: kind,
		limiter:   limiter,
	}, nil
}

type migrator interface {
	store.Store
	Migrate(ctx context.Context) error
}

func openStore(cfg config.Config) (store.Store, string, error) {
	var (
		st   migrator
		kind string
		err  error
	)
	switch {
	case strings.TrimSpace(cfg.DatabaseURL) != "":
		kind = "postgres"
		st, err = store.NewPostgres(cfg.DatabaseURL)
	case strings.TrimSpace(cfg.SQLitePath) != "":
		kind = "sqlite"
		st, err = store.NewSQLite(cfg.SQLitePath)
	default:
		return store.NewMemory(), "memory", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("open %s store: %w", kind, err)
	}
	if cfg.DBMigrate {
		if err := st.Migrate(context.Background()); err != nil {
			_ = st.Close()
			return nil, "", err
		}
	}
	return st, kind, nil
}

// Handler returns the routed API wrapped in logging and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Solves
	mux.HandleFunc("/v1/solve", rateLimit(s.limiter, s.SolveHandler))
	mux.HandleFunc("/v1/solves", rateLimit(s.limiter, s.SolvesHandler))
	mux.HandleFunc("/v1/solves/", s.SolveByIDHandler) // includes /events/stream, /ws
	mux.HandleFunc("/v1/solver/config", s.SolverConfigHandler)

	// Shared matrices
	mux.HandleFunc("/v1/matrix-sets", s.MatrixSetsHandler)
	mux.HandleFunc("/v1/matrix-sets/", s.MatrixSetByIDHandler)

	// Admin
	mux.HandleFunc("/v1/admin/search-metrics", s.SearchMetricsHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries/", s.WebhookDeliveryRetryHandler)
	mux.HandleFunc("/v1/admin/webhook-dlq", s.WebhookDLQHandler)
	mux.HandleFunc("/v1/admin/webhook-dlq/", s.WebhookDLQHandler)

	// Health
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.HandleFunc("/debug/info", s.DebugJSON)
	metrics.RegisterDefault()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return Instrument(s.Log, mux)
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Config.WebhookMaxAttempts, s.Config.WebhookInterval, s.Log.Named("webhooks"))
}

// Close waits for running solves and releases the store and broker.
func (s *Server) Close() error {
	s.Jobs.Close()
	if rb, ok := s.Broker.(*RedisBroker); ok {
		_ = rb.Close()
	}
	return s.Store.Close()
}
