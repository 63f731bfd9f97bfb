package authapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/relaychat/backend/config"
	"github.com/relaychat/backend/internal/mailer"
	"github.com/relaychat/backend/internal/mq"
	"github.com/relaychat/backend/internal/oauth"
	"github.com/relaychat/backend/internal/recordclient"
	"github.com/relaychat/backend/internal/services"
	"github.com/relaychat/backend/internal/storage"
)

// Server wraps the credential service HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	queue      *mq.MQ
}

// New constructs a credential service Server wired against the record store.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if cfg.JWT.Secret == "" || cfg.JWT.RefreshSecret == "" {
		return nil, errors.New("JWT_SECRET and JWT_REFRESH_SECRET are required")
	}

	logger := slog.Default()
	records := recordclient.New(cfg.RecordStore)
	issuer := services.NewTokenIssuer(records, cfg.JWT)

	queue, resetMailer, err := buildMailer(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	devMode := cfg.Env == "dev"
	authService := services.NewAuthService(records, issuer, resetMailer, logger, cfg.FrontendURL, devMode)

	avatars, err := buildAvatarStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	handler := NewAuthHandler(authService, issuer, oauth.NewGitHubClient(cfg.GitHub), avatars, cfg.FrontendURL)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", Healthz)
	router.Route("/auth", handler.Routes)

	port := cfg.AuthPort
	if port == 0 {
		port = 3001
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
		queue:      queue,
	}, nil
}

func buildMailer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*mq.MQ, mailer.Mailer, error) {
	var backend mq.Backend
	var err error

	switch cfg.MQBackend {
	case "rabbitmq":
		backend, err = mq.NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		backend, err = mq.NewPubSubClient(ctx, cfg.PubSub)
	case "":
		return nil, mailer.NewLogMailer(logger), nil
	default:
		return nil, nil, fmt.Errorf("unknown mq backend %q", cfg.MQBackend)
	}
	if err != nil {
		return nil, nil, err
	}

	queue := mq.New(backend)
	return queue, mailer.NewQueueMailer(queue, logger), nil
}

func buildAvatarStorage(ctx context.Context, cfg config.Config) (*storage.Storage, error) {
	var backend storage.ObjectStorage
	var err error

	switch cfg.StorageBackend {
	case "minio":
		backend, err = storage.NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = storage.NewGCSClient(ctx, cfg.GCS)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	if err != nil {
		return nil, err
	}

	store := storage.NewStorage(backend)
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.queue != nil {
		_ = s.queue.Close()
	}
	return s.httpServer.Close()
}

// Healthz reports service liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "authentication",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
