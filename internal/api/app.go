package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/devroom-io/devroom/internal/auth"
	"github.com/devroom-io/devroom/internal/config"
	"github.com/devroom-io/devroom/internal/database"
	"github.com/devroom-io/devroom/internal/server"
	"github.com/gorilla/handlers"
)

type DevroomApp struct {
	log            *log.Logger
	db             database.Repository
	mux            *http.Server
	cs             *server.ChatServer
	authn          *auth.Authenticator
	allowedOrigins []string
}

func NewDevroomApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.Repository, authn *auth.Authenticator, cfg *config.Config) *DevroomApp {
	s := &DevroomApp{
		log:            logger,
		db:             db,
		cs:             cs,
		authn:          authn,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("GET /api/users", s.authMiddleware(s.listUsers))
	mux.Handle("POST /api/projects", s.authMiddleware(s.createProject))
	mux.Handle("GET /api/projects", s.authMiddleware(s.listProjects))
	mux.Handle("GET /api/projects/{id}", s.authMiddleware(s.getProject))
	mux.Handle("GET /api/projects/{id}/participants", s.authMiddleware(s.participants))
	mux.Handle("PUT /api/projects/add-user", s.authMiddleware(s.addProjectUser))
	mux.Handle("PUT /api/projects/update-file-tree", s.authMiddleware(s.updateFileTree))
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *DevroomApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *DevroomApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
