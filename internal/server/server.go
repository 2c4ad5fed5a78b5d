package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/primeacre/apiserver/config"
	"github.com/primeacre/apiserver/internal/db"
	"github.com/primeacre/apiserver/internal/handlers"
	"github.com/primeacre/apiserver/internal/mq"
	"github.com/primeacre/apiserver/internal/services"
	"github.com/primeacre/apiserver/internal/session"
	"github.com/primeacre/apiserver/internal/storage"
	"github.com/primeacre/apiserver/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisPingTimeout = 5 * time.Second

// Server wraps the HTTP server, its router and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	objects    *storage.Storage
	queue      *mq.MQ
	redis      *redis.Client
	log        *zap.Logger
}

// New connects every backing service named by cfg and builds the router.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*Server, error) {
	s := &Server{log: log}
	if err := s.connect(ctx, cfg); err != nil {
		s.close()
		return nil, err
	}

	var revoker session.Revoker
	if s.redis != nil {
		revoker = session.NewRedisRevoker(s.redis)
	}
	sessions, err := session.NewManager(cfg.Session, revoker)
	if err != nil {
		s.close()
		return nil, err
	}

	var publisher services.CleanupPublisher
	if s.queue != nil {
		publisher = s.queue
	}

	userRepo := store.NewUserRepository(s.db)
	listingRepo := store.NewListingRepository(s.db)
	reviewRepo := store.NewReviewRepository(s.db)

	media := services.NewMediaService(s.objects, publisher, cfg.MQ.CleanupChannel, cfg.Upload, log)
	authService := services.NewAuthService(userRepo)
	userService := services.NewUserService(userRepo, listingRepo, media)
	listingService := services.NewListingService(listingRepo, reviewRepo, userRepo, media)
	interestService := services.NewInterestService(userRepo, listingRepo)
	reviewService := services.NewReviewService(reviewRepo, listingRepo, userRepo)

	authLimiter := handlers.NewRateLimiter(s.redis, cfg.Redis.AuthRateLimitPerMinute, log)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		handlers.RequestLogger(log),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		sessions.Load,
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, handlers.NewAuthHandler(authService, userService, sessions, log), authLimiter.Handler)
	})
	router.Route("/properties", func(r chi.Router) {
		handlers.PropertyRouter(
			r,
			handlers.NewPropertyHandler(listingService, interestService, cfg.Upload, log),
			handlers.NewReviewHandler(reviewService, log),
		)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, handlers.NewUserHandler(userService, sessions, log))
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) connect(ctx context.Context, cfg config.Config) error {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.db = dbConn

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("connect object storage: %w", err)
	}
	s.objects = objects
	if err := objects.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket %q: %w", objects.Bucket(), err)
	}

	queue, err := mq.New(ctx, cfg.MQ)
	if err != nil {
		return fmt.Errorf("connect message queue: %w", err)
	}
	s.queue = queue

	client, err := OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	s.redis = client
	if client == nil {
		s.log.Info("redis not configured, session revocation and auth rate limiting disabled")
	}
	return nil
}

// OpenRedis connects to cfg.URL. It returns nil without error when no URL is
// configured.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil once Shutdown has been called.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx is
// done and releases every connection.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			s.log.Warn("close message queue", zap.Error(err))
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.objects != nil {
		_ = s.objects.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
