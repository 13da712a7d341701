package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/taskdeck/apiserver/config"
	"github.com/taskdeck/apiserver/internal/db"
	"github.com/taskdeck/apiserver/internal/handlers"
	"github.com/taskdeck/apiserver/internal/mailer"
	"github.com/taskdeck/apiserver/internal/mq"
	"github.com/taskdeck/apiserver/internal/notify"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/storage"
	"github.com/taskdeck/apiserver/internal/store"
)

// Server wraps the HTTP server, router, and the long-lived backends.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	stopWorker context.CancelFunc
	logger     *slog.Logger
}

// New constructs a Server with all dependencies wired.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	blobs, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	var queue *mq.MQ
	var notifier notify.Notifier = notify.NewNopNotifier(logger)
	if strings.TrimSpace(cfg.MQ.Backend) != "" {
		queue, err = mq.NewFromConfig(ctx, cfg.MQ)
		if err != nil {
			_ = dbConn.Close()
			return nil, err
		}
		notifier = notify.NewMQNotifier(queue, logger)
	}

	userRepo := store.NewUserRepository(dbConn)
	taskRepo := store.NewTaskRepository(dbConn)
	tokenRepo := store.NewTokenRepository(dbConn)

	authService := services.NewAuthService(userRepo, tokenRepo, jwtSecret, cfg.Auth.TokenTTL)
	userService := services.NewUserService(userRepo, notifier)
	taskService := services.NewTaskService(taskRepo)
	avatarService := services.NewAvatarService(userRepo, blobs)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userService, authService, avatarService)
	})
	router.Route("/tasks", func(r chi.Router) {
		handlers.TaskRouter(r, taskService, authService)
	})

	// Mailer worker: consumes notification events when both the queue
	// and SendGrid are configured.
	var stopWorker context.CancelFunc
	if queue != nil && strings.TrimSpace(cfg.SendGrid.APIKey) != "" {
		sender, err := mailer.New(cfg.SendGrid)
		if err != nil {
			_ = queue.Close()
			_ = dbConn.Close()
			return nil, err
		}
		var workerCtx context.Context
		workerCtx, stopWorker = context.WithCancel(context.Background())
		worker := mailer.NewWorker(queue, sender, logger)
		go func() {
			if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("mailer worker stopped", "error", err)
			}
		}()
	}

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		stopWorker: stopWorker,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.stopWorker != nil {
		s.stopWorker()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
