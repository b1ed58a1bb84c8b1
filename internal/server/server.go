// Package server wires storage, services, handlers and routes together and
// runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/vind/internal/auth"
	"github.com/sakif/vind/internal/config"
	"github.com/sakif/vind/internal/handler"
	"github.com/sakif/vind/internal/ingest"
	"github.com/sakif/vind/internal/middleware"
	"github.com/sakif/vind/internal/repository"
	"github.com/sakif/vind/internal/repository/mongodb"
	sqliteRepo "github.com/sakif/vind/internal/repository/sqlite"
	"github.com/sakif/vind/internal/service"
	"github.com/sakif/vind/internal/videoprovider"
)

// Services is the application layer shared by the HTTP server and the CLI
// maintenance commands.
type Services struct {
	Tokens     *auth.TokenService
	Auth       *service.AuthService
	Relations  *service.RelationshipService
	Engagement *service.EngagementService
	Feed       *service.FeedService
	Profile    *service.ProfileService
	Seed       *service.SeedService
}

// NewServices builds every service over one store.
func NewServices(store repository.Store, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	authSvc := service.NewAuthService(store, tokens, auth.NewPasswordService(), logger)
	relations := service.NewRelationshipService(store, logger)
	engagement := service.NewEngagementService(store, store, store, logger)

	return &Services{
		Tokens:     tokens,
		Auth:       authSvc,
		Relations:  relations,
		Engagement: engagement,
		Feed:       service.NewFeedService(store, engagement, logger),
		Profile:    service.NewProfileService(store, store, relations, engagement, logger),
		Seed:       service.NewSeedService(authSvc, store, store, relations, logger),
	}, nil
}

// OpenStore opens the store selected by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		store, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverSQLite:
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Server represents the HTTP server and all its dependencies. It owns the
// store and the ingest watcher and releases both on shutdown.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	store    repository.Store
	services *Services
	watcher  *ingest.Watcher
}

// New creates a server over an open store. The store is closed by Start.
func New(cfg *config.Config, store repository.Store, logger *slog.Logger) (*Server, error) {
	services, err := NewServices(store, cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		store:    store,
		services: services,
	}

	var provider videoprovider.Provider
	if cfg.UploadsEnabled() {
		mux, err := videoprovider.NewMuxClient(videoprovider.MuxConfig{
			TokenID:     cfg.MuxTokenID,
			TokenSecret: cfg.MuxTokenSecret,
			BaseURL:     cfg.MuxBaseURL,
			CORSOrigin:  cfg.UploadCORSOrigin,
		})
		if err != nil {
			return nil, fmt.Errorf("creating video provider: %w", err)
		}
		provider = mux
		s.watcher = ingest.NewWatcher(mux, services.Feed, ingest.Config{
			Workers:   cfg.IngestWorkers,
			QueueSize: cfg.IngestQueueSize,
			Poll: videoprovider.PollConfig{
				Interval: cfg.PollInterval,
				Attempts: cfg.PollAttempts,
			},
		}, logger)
	} else {
		logger.Warn("MUX_TOKEN_ID not set, uploads are disabled")
	}

	var queue service.PublishQueue
	if s.watcher != nil {
		queue = s.watcher
	}
	uploads := service.NewUploadService(provider, queue, logger)

	s.setupRoutes(uploads)
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(uploads *service.UploadService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	var github *auth.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}

	authHandler := handler.NewAuthHandler(s.services.Auth, github, s.logger)
	authHandler.SecureCookies = s.config.SecureCookies
	videoHandler := handler.NewVideoHandler(s.services.Feed, s.services.Engagement, s.logger)
	userHandler := handler.NewUserHandler(s.services.Profile, s.services.Relations, s.logger)
	uploadHandler := handler.NewUploadHandler(uploads, s.logger)

	if authHandler.GitHubEnabled() {
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	}

	requireAuth := auth.RequireAuth(s.services.Tokens)
	optionalAuth := auth.OptionalAuth(s.services.Tokens)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", authHandler.HandleSignup)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/videos/{videoId}/share", videoHandler.HandleShare)
		r.Get("/videos/{videoId}/comments", videoHandler.HandleListComments)
		r.Get("/assets/{assetId}", uploadHandler.HandleAsset)

		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)
			r.Get("/videos", videoHandler.HandleList)
			r.Get("/videos/{videoId}", videoHandler.HandleGet)
			r.Get("/users/{username}", userHandler.HandleProfile)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/auth/logout", authHandler.HandleLogout)
			r.Get("/auth/verify", authHandler.HandleVerify)

			r.Post("/videos", videoHandler.HandleCreate)
			r.Get("/videos/saved", videoHandler.HandleSaved)
			r.Post("/videos/{videoId}/like", videoHandler.HandleLike)
			r.Post("/videos/{videoId}/save", videoHandler.HandleSave)
			r.Post("/videos/{videoId}/comments", videoHandler.HandleAddComment)
			r.Post("/videos/{videoId}/comments/{commentId}/like", videoHandler.HandleLikeComment)

			r.Post("/users/{username}/follow", userHandler.HandleFollow)
			r.Delete("/users/{username}/follow", userHandler.HandleUnfollow)

			r.Post("/upload", uploadHandler.HandleCreate)
			r.Get("/upload/{uploadId}", uploadHandler.HandleStatus)
			r.Post("/upload/{uploadId}/publish", uploadHandler.HandlePublish)
			r.Get("/upload/{uploadId}/publish", uploadHandler.HandlePublishStatus)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Start runs the server until SIGINT or SIGTERM, then drains in-flight
// requests, stops the ingest workers and closes the store.
func (s *Server) Start() error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	if s.watcher != nil {
		s.watcher.Start()
		defer s.watcher.Stop()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("store", s.config.StoreDriver),
			slog.Bool("uploads", s.watcher != nil),
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

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
