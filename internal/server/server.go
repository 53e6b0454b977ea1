// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects stores, services,
// handlers, middleware, and routes, and decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go loads a config.Config and hands it to New, which builds:
//
//	sqlite.DB (accounts + local store) ─┐
//	document store (sqlite | dynamodb) ─┼─► services ─► handlers ─► routes
//	metrics, ws.Hub, limiters ──────────┘
//
// This is the "composition root" pattern: every dependency is created in
// one place and passed down explicitly.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/sakif/rakshak/internal/auth"
	"github.com/sakif/rakshak/internal/config"
	"github.com/sakif/rakshak/internal/handler"
	"github.com/sakif/rakshak/internal/identity"
	"github.com/sakif/rakshak/internal/metrics"
	"github.com/sakif/rakshak/internal/middleware"
	"github.com/sakif/rakshak/internal/ratelimit"
	"github.com/sakif/rakshak/internal/repository"
	"github.com/sakif/rakshak/internal/repository/dynamo"
	sqliteRepo "github.com/sakif/rakshak/internal/repository/sqlite"
	"github.com/sakif/rakshak/internal/seed"
	"github.com/sakif/rakshak/internal/service"
	"github.com/sakif/rakshak/internal/ws"
)

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and everything it owns.
//
// RESOURCE MANAGEMENT:
// The Server owns the database, the background workers (dispatcher, hub,
// seed watcher) and the caches. Close releases all of them; Start calls it
// after the HTTP server has drained.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger

	db      *sqliteRepo.DB
	docs    repository.DocumentStore
	metrics *metrics.Metrics
	tokens  *auth.TokenService

	hub          *ws.Hub
	dispatcher   *service.Dispatcher
	session      *service.SessionCache
	loader       *service.DataLoader
	sos          *service.SOSService
	auth         *service.AuthService
	loginLimiter *ratelimit.Limiter
	emailLimiter *ratelimit.Limiter
	subs         []*service.Subscription
}

// OpenStores opens the SQLite database and picks the document store named
// by cfg.Store.Driver. Accounts and the local store always live in SQLite.
func OpenStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sqliteRepo.DB, repository.DocumentStore, error) {
	db, err := sqliteRepo.New(cfg.Store.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	if cfg.Store.Driver != config.DriverDynamoDB {
		return db, db, nil
	}

	docs, err := dynamo.Open(ctx, dynamo.Options{
		Region:      cfg.Store.AWSRegion,
		TablePrefix: cfg.Store.DynamoTablePrefix,
		Endpoint:    cfg.Store.DynamoEndpoint,
	}, logger)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("opening dynamodb: %w", err)
	}
	return db, docs, nil
}

// New wires the whole application for cfg.
//
// WIRING ORDER:
//  1. Stores, metrics, tokens
//  2. Seed the public collections if they are empty
//  3. Services (session cache first, everything else depends on it)
//  4. The WebSocket hub, which doubles as the SOS alerter and clipboard
//  5. Handlers and routes
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, docs, err := OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenServiceWithTTL(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		docs:    docs,
		metrics: metrics.New(),
		tokens:  tokens,
	}

	if err := s.seed(ctx); err != nil {
		// The loader serves its fallback set when collections are empty,
		// so a failed seed is not fatal.
		logger.Error("seeding public collections failed", slog.String("error", err.Error()))
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func (s *Server) seed(ctx context.Context) error {
	set, err := seed.Load(s.config.Seed.File)
	if err != nil {
		return err
	}
	_, err = seed.Apply(ctx, s.docs, set, seed.Options{OnlyEmpty: true}, s.logger)
	return err
}

// setupRoutes builds the services and handlers and registers every route.
//
// ROUTE STRUCTURE:
// GET  /, /login, /dashboard         → HTML pages
// GET  /healthz, /metrics            → liveness, Prometheus
// GET  /ws                           → WebSocket (token in cookie or ?token=)
// GET  /auth/github/{login,callback} → GitHub sign-in (when configured)
// /api/auth/*                        → sign-in, sign-up, sign-out
// /api/public/*                      → public resources
// GET  /api/location/nearest         → nearest safe places
// everything else under /api         → requires a session
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID, 2. RealIP, 3. Recoverer, 4. request logger + metrics,
// 5. CORS (when origins are configured), 6. OptionalAuth. The login rate
// limiter and RequireAuth are attached per route group.
func (s *Server) setupRoutes() error {
	cfg := s.config
	logger := s.logger

	// === Services ===
	s.session = service.NewSessionCache(s.db, cfg.Auth.TokenTTL, logger)
	profiles := service.NewProfileService(s.docs, logger)

	s.emailLimiter = ratelimit.New(cfg.Auth.LoginMaxAttempts, cfg.Auth.LoginWindow)
	provider := identity.NewLocalProvider(s.db, auth.NewPasswordService(), s.emailLimiter,
		identity.LocalOptions{AllowSignup: cfg.Auth.AllowSignup}, logger)

	s.auth = service.NewAuthService(provider, s.tokens, s.session, profiles, s.docs, s.metrics,
		service.AuthOptions{AllowGuest: cfg.Auth.AllowGuest, AllowDemo: cfg.Auth.AllowDemo}, logger)

	s.loader = service.NewDataLoader(s.docs, service.DefaultPublicDataTTL, s.metrics, logger)

	s.hub = ws.NewHub(s.metrics, logger)
	notifier := ws.NewNotifier(s.hub, logger)

	s.dispatcher = service.NewDispatcher(s.docs, cfg.SOS.QueueSize, s.metrics, logger)
	s.sos = service.NewSOSService(s.db, s.docs, s.session, s.dispatcher, notifier, notifier, s.metrics,
		service.SOSOptions{DemoFallback: cfg.SOS.DemoFallback}, logger)
	safety := service.NewSafetyService(s.db, s.docs, s.session, s.metrics, logger)

	// Sign-outs reach every open tab, and drop the captured location.
	s.subs = append(s.subs,
		s.auth.OnAuthChange(notifier.AuthChanged),
		s.auth.OnAuthChange(func(ch service.AuthChange) {
			if ch.State == service.StateAnonymous {
				s.sos.Forget(ch.UserID)
			}
		}),
	)

	// === Handlers ===
	var github handler.GitHubOAuth
	if cfg.Auth.GitHub.Enabled() {
		github = auth.NewGitHubProvider(cfg.Auth.GitHub.ClientID, cfg.Auth.GitHub.ClientSecret, cfg.Auth.GitHub.CallbackURL)
	}
	authHandler := handler.NewAuthHandler(s.auth, github, handler.AuthOptions{
		CookieTTL:    s.tokens.TTL(),
		SecureCookie: cfg.Server.SecureCookies,
	}, logger)

	pages, err := handler.NewPageHandler(s.loader, s.auth, authHandler.Options, logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}
	publicHandler := handler.NewPublicHandler(s.loader, logger)
	sosHandler := handler.NewSOSHandler(s.sos, logger)
	safetyHandler := handler.NewSafetyHandler(safety, profiles, logger)
	wsHandler := ws.NewHandler(s.hub, s.tokens, s.sos, checkOrigin(cfg.Server.CORSOrigins), logger)

	s.loginLimiter = ratelimit.New(cfg.Auth.LoginMaxAttempts*2, cfg.Auth.LoginWindow)

	// === Global Middleware ===
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(logger, s.metrics))
	if len(cfg.Server.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           300,
		}).Handler)
	}
	r.Use(auth.OptionalAuth(s.tokens))

	// === Pages and infrastructure ===
	r.Get("/", pages.HandleHome)
	r.Get("/login", pages.HandleLogin)
	r.Get("/dashboard", pages.HandleDashboard)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.metrics.Handler())
	r.Handle("/ws", wsHandler)

	if github != nil {
		r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	}

	// === API ===
	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Get("/options", authHandler.HandleOptions)
			r.With(middleware.RateLimit(s.loginLimiter, logger)).Post("/login", authHandler.HandleLogin)
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/guest", authHandler.HandleGuest)
			r.Post("/demo", authHandler.HandleDemo)
			r.Post("/logout", authHandler.HandleLogout)
		})

		r.Get("/public", publicHandler.HandleAll)
		r.Get("/public/{collection}", publicHandler.HandleCollection)
		r.Get("/location/nearest", handler.HandleNearest)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(s.tokens))

			r.Get("/me", authHandler.HandleMe)

			r.Post("/location", sosHandler.HandleCaptureLocation)
			r.Post("/sos/emergency", sosHandler.HandleEmergency)
			r.Post("/sos/silent", sosHandler.HandleSilent)
			r.Get("/sos/events", sosHandler.HandleLocalEvents)
			r.Get("/sos/history", sosHandler.HandleHistory)
			r.Post("/share", sosHandler.HandleShare)

			r.Get("/preferences", safetyHandler.HandleGetPreferences)
			r.Put("/preferences", safetyHandler.HandleSavePreferences)
			r.Get("/contacts", safetyHandler.HandleListContacts)
			r.Post("/contacts", safetyHandler.HandleAddContact)
			r.Get("/report", safetyHandler.HandleReport)
			r.Get("/profile", safetyHandler.HandleGetProfile)
			r.Put("/profile", safetyHandler.HandleUpdateProfile)
		})
	})

	return nil
}

// Handler exposes the router, for tests and for embedding in another server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the background workers: the WebSocket hub and, when
// configured, the seed-file watcher. It blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.hub.Run(ctx)
		close(done)
	}()

	if s.config.Seed.Watch && s.config.Seed.File != "" {
		w, err := seed.NewWatcher(s.config.Seed.File, s.reseed, s.logger)
		if err != nil {
			s.logger.Error("seed watcher unavailable", slog.String("error", err.Error()))
		} else {
			go w.Run(ctx)
		}
	}

	<-done
}

// reseed re-applies the seed file and drops the cached public data.
func (s *Server) reseed(ctx context.Context) error {
	set, err := seed.Load(s.config.Seed.File)
	if err != nil {
		return err
	}
	if _, err := seed.Apply(ctx, s.docs, set, seed.Options{}, s.logger); err != nil {
		return err
	}
	s.loader.Invalidate()
	return nil
}

// Start serves HTTP and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Stop the hub and watcher, drain the SOS dispatcher, close the database
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	workers := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(workers)
	}()
	defer func() {
		cancel()
		<-workers
		s.Close()
	}()

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// WebSocket connections are hijacked, so WriteTimeout only bounds
		// ordinary responses.
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("store", s.config.Store.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close releases everything New created. The hub must already be stopped
// (Run returned), so no connection can trigger an SOS while the dispatcher
// drains.
func (s *Server) Close() {
	for _, sub := range s.subs {
		sub.Close()
	}
	if s.dispatcher != nil {
		s.dispatcher.Close()
	}
	if s.sos != nil {
		s.sos.Close()
	}
	if s.loader != nil {
		s.loader.Close()
	}
	if s.session != nil {
		s.session.Close()
	}
	if s.loginLimiter != nil {
		s.loginLimiter.Close()
	}
	if s.emailLimiter != nil {
		s.emailLimiter.Close()
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("closing database failed", slog.String("error", err.Error()))
	}
}

// checkOrigin accepts WebSocket handshakes from the configured CORS origins
// and from the server's own host. With no origins configured any origin is
// accepted.
func checkOrigin(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if slices.Contains(origins, origin) {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
