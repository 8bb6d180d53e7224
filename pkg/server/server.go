// Package server wires the stores, calculators and per-package routers into
// one HTTP handler and runs the singleton housekeeping loops.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"

	"github.com/greenledger/greenledger/pkg/activity"
	"github.com/greenledger/greenledger/pkg/audit"
	"github.com/greenledger/greenledger/pkg/authz"
	"github.com/greenledger/greenledger/pkg/cache"
	"github.com/greenledger/greenledger/pkg/config"
	"github.com/greenledger/greenledger/pkg/credits"
	"github.com/greenledger/greenledger/pkg/db"
	"github.com/greenledger/greenledger/pkg/factors"
	"github.com/greenledger/greenledger/pkg/greenscore"
	"github.com/greenledger/greenledger/pkg/ha"
	"github.com/greenledger/greenledger/pkg/loans"
	"github.com/greenledger/greenledger/pkg/marketrate"
	"github.com/greenledger/greenledger/pkg/metrics"
	"github.com/greenledger/greenledger/pkg/notify"
	"github.com/greenledger/greenledger/pkg/profile"
)

// APIPrefix is where every domain route is mounted.
const APIPrefix = "/api/v1"

// Models lists every persisted model, in migration order.
func Models() []any {
	models := append([]any{}, activity.Models()...)
	models = append(models, credits.Models()...)
	models = append(models, profile.Models()...)
	models = append(models,
		&marketrate.MarketRate{},
		&notify.NotificationRecord{},
		&audit.EventRecord{},
	)
	return models
}

// Server owns the components behind the HTTP API.
type Server struct {
	cfg       *config.Config
	db        *gorm.DB
	logger    *slog.Logger
	startedAt time.Time

	activities *activity.Store
	recorder   *activity.Recorder
	credits    *credits.Store
	issuer     *credits.Issuer
	profiles   *profile.Store
	rates      *marketrate.Store
	outbox     *notify.Outbox
	auditLog   *audit.Store
	aggregator *greenscore.Aggregator
	cache      *cache.CacheManager
	identity   func(http.Handler) http.Handler
}

// New builds a Server on an open database. It does not touch the schema;
// call Migrate before serving.
func New(cfg *config.Config, gormDB *gorm.DB, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	jwtCfg := cfg.Auth.JWT
	jwtCfg.Logger = logger
	identity, err := authz.IdentityMiddleware(cfg.Auth.Mode, jwtCfg)
	if err != nil {
		return nil, fmt.Errorf("identity middleware: %w", err)
	}

	s := &Server{
		cfg:        cfg,
		db:         gormDB,
		logger:     logger,
		startedAt:  time.Now(),
		activities: activity.NewStore(gormDB),
		credits:    credits.NewStore(gormDB),
		profiles:   profile.NewStore(gormDB),
		rates:      marketrate.NewStore(gormDB),
		outbox:     notify.NewOutbox(gormDB),
		auditLog:   audit.NewStore(gormDB),
		cache:      cache.NewCacheManager(&cfg.Cache),
		identity:   identity,
	}
	sink := notify.Multi{notify.LogSink{Logger: logger}, s.outbox}
	s.recorder = activity.NewRecorder(s.activities, logger)
	s.issuer = credits.NewIssuer(s.credits, s.activities, s.rates, s.profiles, sink, cfg.Credits, logger)
	s.aggregator = greenscore.NewAggregator(s.profiles, s.activities, s.credits, s.auditLog, sink, logger)
	return s, nil
}

// Migrate creates or updates every table under the migration lock and
// seeds the market rate when the rate table is empty.
func (s *Server) Migrate(ctx context.Context) error {
	locker := ha.MigrationLockerFor(&s.cfg.HA, s.db)
	if err := db.Migrate(ctx, s.db, locker, Models()...); err != nil {
		return err
	}
	seeded, err := s.rates.Seed(ctx, s.cfg.MarketRate.SeedRate, s.cfg.MarketRate.SeedCurrency)
	if err != nil {
		return err
	}
	if seeded {
		s.logger.Info("seeded market rate",
			"rate", s.cfg.MarketRate.SeedRate,
			"currency", s.cfg.MarketRate.SeedCurrency)
	}
	return nil
}

// Router returns the complete HTTP handler.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Cache"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)
	if s.cfg.Server.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Route(APIPrefix, func(r chi.Router) {
		r.Use(s.identity)
		if s.cfg.Audit.Enabled {
			r.Use(audit.AuditMiddleware(s.auditLog, &s.cfg.Audit, s.logger))
			s.logger.Info("audit middleware enabled",
				"logDenied", s.cfg.Audit.LogDenied,
				"retentionDays", s.cfg.Audit.RetentionDays)
		}

		// Reference data and pure calculations; handlers that need a caller
		// check for one themselves.
		factors.Register(r, s.logger, s.cache.FactorsMiddleware())
		marketrate.Register(r, s.rates, s.logger)
		activity.Register(r, s.recorder, s.activities, s.logger)
		credits.Register(r, s.issuer, s.credits, s.rates, s.logger)
		greenscore.Register(r, s.aggregator, s.profiles, s.logger)

		r.Group(func(r chi.Router) {
			r.Use(authz.RequireIdentity())
			profile.Register(r, s.profiles, s.logger)
			loans.Register(r, s.profiles, s.logger)
			notify.Register(r, s.outbox, s.logger)
			audit.Register(r, s.auditLog, s.logger)
		})
	})
	return r
}

// RunHousekeeping runs the audit retention worker on whichever replica holds
// the housekeeping lease, until ctx is cancelled.
func (s *Server) RunHousekeeping(ctx context.Context) error {
	le := ha.NewLeaderElector(&s.cfg.HA, s.db, s.cfg.HA.Identity, s.logger)
	if s.cfg.HA.LeaderElectionEnabled {
		if err := le.Migrate(); err != nil {
			return fmt.Errorf("migrate leader lease: %w", err)
		}
	}
	worker := audit.NewRetentionWorker(s.auditLog, &s.cfg.Audit, s.logger)
	le.OnStartLeading(worker.Run)
	le.OnStopLeading(func() {
		s.logger.Info("housekeeping paused, leadership lost")
	})
	le.Run(ctx)
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// readyHandler reports ready once the database answers a ping.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbStatus := map[string]string{"status": "up"}
	ready := true
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		dbStatus = map[string]string{"status": "down"}
		ready = false
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeStatus(w, code, map[string]any{
		"status":   status,
		"database": dbStatus,
	})
}

func writeStatus(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
