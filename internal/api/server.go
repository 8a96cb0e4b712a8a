package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/model-catalog/internal/catalog"
	"github.com/JakeFAU/model-catalog/internal/config"
	"github.com/JakeFAU/model-catalog/internal/metrics"
	"github.com/JakeFAU/model-catalog/internal/middleware"
)

const (
	welcomeMessage = "Welcome to Model Info API"
	requestTimeout = 60 * time.Second
	maxBodyBytes   = 1 << 20
)

// Server wires HTTP handlers to the catalog store.
type Server struct {
	router   chi.Router
	store    catalog.Store
	cfg      config.Config
	logger   *zap.Logger
	database string
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store catalog.Store, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		store:    store,
		cfg:      cfg,
		logger:   logger,
		database: databaseLabel(cfg.Database),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(cors.Handler(corsOptions(cfg.CORS)))
	if cfg.Auth.Enabled {
		r.Use(middleware.APIKey(cfg.Auth.APIKey, "/healthz", "/readyz", "/metrics"))
	}

	r.Get("/", s.root)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/model/*", s.getModel)
	r.Get("/models", s.listModels)
	r.Post("/models/batch", s.batchModels)
	r.Get("/search", s.searchModels)

	r.Route("/hardware", func(r chi.Router) {
		r.Get("/", s.listHardware)
		r.Get("/types", s.hardwareTypes)
		r.Get("/manufacturers", s.hardwareManufacturers)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	status := "connected"
	ctx, cancel := s.queryContext(r)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("database ping failed", zap.Error(err))
		status = "disconnected"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":           welcomeMessage,
		"database":          s.database,
		"connection_status": status,
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) queryContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.cfg.QueryTimeout())
}

// storeFailure logs err and answers 504 for timeouts, 500 otherwise.
func (s *Server) storeFailure(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg,
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.Error(err),
	)
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, "database query timed out")
		return
	}
	writeError(w, http.StatusInternalServerError, msg)
}

// databaseLabel names the database without exposing credentials.
// corsOptions maps the config to go-chi/cors. A wildcard origin with
// credentials echoes the request origin, since browsers reject a
// credentialed response carrying "*".
func corsOptions(cfg config.CORSConfig) cors.Options {
	opts := cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAgeSeconds,
	}
	if cfg.AllowCredentials && slices.Contains(cfg.AllowedOrigins, "*") {
		// go-chi/cors answers "*" whenever AllowedOrigins holds a wildcard.
		opts.AllowedOrigins = nil
		opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
	}
	return opts
}

func databaseLabel(cfg config.DatabaseConfig) string {
	if cfg.DSN != "" {
		if u, err := url.Parse(cfg.DSN); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	if cfg.Backend == "" {
		return "postgres"
	}
	return cfg.Backend
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	middleware.WriteJSON(w, status, payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	middleware.WriteError(w, status, msg)
}
