package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/linklift/linklift/internal/geoip"
	"github.com/linklift/linklift/internal/handler"
	"github.com/linklift/linklift/internal/server/middleware"
	"github.com/linklift/linklift/internal/service"
	"github.com/linklift/linklift/internal/store"
)

// DefaultPublicPaths are the path prefixes that bypass authentication:
// the login and callback endpoints, token refresh, the short-link
// redirect, and health/error probes. Everything else runs through the
// authentication pipeline.
var DefaultPublicPaths = []string{
	"/s/",
	"/api/auth/oauth2/",
	"/api/auth/refresh",
	"/oauth2/",
	"/login/oauth2/code/",
	"/healthz",
	"/readyz",
	"/error",
}

// Config holds the HTTP server configuration.
type Config struct {
	Host              string
	Port              int
	ShutdownTimeout   time.Duration
	CORSOrigins       []string
	PublicPaths       []string
	AuthRatePerMinute int // rate limit for login/refresh endpoints
	APIRatePerMinute  int // per-credential rate limit for the rest of the API
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8080,
		ShutdownTimeout:   30 * time.Second,
		CORSOrigins:       []string{"*"},
		PublicPaths:       DefaultPublicPaths,
		AuthRatePerMinute: 30,
		APIRatePerMinute:  300,
	}
}

// Server is the top-level HTTP server for linklift. It owns the chi
// router, the credential store, and the authentication services.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *store.Store
	tokens     *service.TokenService
	keys       *service.APIKeyService
	bridge     *service.IdentityBridge
	oauth      *service.MicrosoftOAuth
	geo        *geoip.Service
	resolver   handler.LinkResolver
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, st *store.Store, tokens *service.TokenService, keys *service.APIKeyService,
	bridge *service.IdentityBridge, oauth *service.MicrosoftOAuth, geo *geoip.Service,
	resolver handler.LinkResolver, logger *slog.Logger) *Server {

	if len(cfg.PublicPaths) == 0 {
		cfg.PublicPaths = DefaultPublicPaths
	}
	s := &Server{
		cfg:      cfg,
		store:    st,
		tokens:   tokens,
		keys:     keys,
		bridge:   bridge,
		oauth:    oauth,
		geo:      geo,
		resolver: resolver,
		logger:   logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// Authentication runs on every request; public paths are bypassed
	// inside the pipeline. Logging sits inside it so request logs carry
	// the resolved principal.
	pipeline := middleware.NewPipeline(s.logger, s.cfg.PublicPaths,
		middleware.NewAPIKeyStrategy(s.keys),
		middleware.NewBearerStrategy(s.tokens),
	)
	r.Use(pipeline.Handler)
	r.Use(middleware.Logger(s.logger))

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- Public short-link redirect ---
	redirectHandler := handler.NewRedirectHandler(s.resolver, s.geo, s.logger)
	r.Get("/s/{code}", redirectHandler.Redirect)

	// --- Auth endpoints ---
	authHandler := handler.NewAuthHandler(s.store, s.tokens, s.bridge, s.oauth, s.logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(s.cfg.AuthRatePerMinute))
		r.Get("/api/auth/oauth2/login", authHandler.LoginRedirect)
		r.Get("/login/oauth2/code/microsoft", authHandler.Callback)
		r.Post("/api/auth/refresh", authHandler.Refresh)
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByCredential(s.cfg.APIRatePerMinute))
			r.Use(middleware.RequireAuth())
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the credential store
// is reachable, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"degraded"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before returning.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.geo.Close()
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
