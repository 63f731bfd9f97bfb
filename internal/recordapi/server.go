package recordapi

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/relaychat/backend/config"
	"github.com/relaychat/backend/internal/db"
	"github.com/relaychat/backend/internal/store"
)

// Server wraps the record store HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
}

// New constructs a record store Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	users := NewUserHandler(store.NewUserRepository(dbConn))
	refreshTokens := NewRefreshTokenHandler(store.NewRefreshTokenRepository(dbConn))
	resetTokens := NewPasswordResetTokenHandler(store.NewPasswordResetTokenRepository(dbConn))
	sessions := NewSessionHandler(store.NewSessionRepository(dbConn))

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", Healthz)
	router.Route("/users", users.Routes)
	router.Route("/refresh-tokens", refreshTokens.Routes)
	router.Route("/password-reset-tokens", resetTokens.Routes)
	router.Route("/sessions", sessions.Routes)

	port := cfg.RecordsPort
	if port == 0 {
		port = 3002
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
	}, nil
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
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}

// Healthz reports service liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
