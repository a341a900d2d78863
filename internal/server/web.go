package server

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/teemow/templatemail/internal/logging"
)

//go:embed static
var staticFiles embed.FS

// WebServerConfig configures the web UI listener.
type WebServerConfig struct {
	// Addr is the listen address, for example "localhost:8080".
	Addr string

	// SessionSecret signs the session cookie.
	SessionSecret string

	// SessionTimeout expires idle sessions. Zero means DefaultSessionTimeout.
	SessionTimeout time.Duration
}

// WebServer serves the single page UI and its JSON API.
type WebServer struct {
	sc       *ServerContext
	sessions *SessionManager
	health   *HealthChecker
	router   *mux.Router
	server   *http.Server
}

// NewWebServer creates the web server and registers every route.
func NewWebServer(sc *ServerContext, cfg WebServerConfig) (*WebServer, error) {
	if sc == nil {
		return nil, errors.New("server context is required")
	}
	if cfg.Addr == "" {
		return nil, errors.New("listen address is required")
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("session secret is required")
	}

	s := &WebServer{
		sc:       sc,
		sessions: NewSessionManager(cfg.SessionSecret, cfg.SessionTimeout, sc.Logger(), sc.Metrics()),
		health:   NewHealthChecker(sc),
		router:   mux.NewRouter(),
	}
	if err := s.routes(); err != nil {
		s.sessions.Stop()
		return nil, err
	}

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *WebServer) routes() error {
	s.router.Use(securityHeaders, metricsMiddleware(s.sc.Metrics()))

	s.health.RegisterHealthEndpoints(s.router)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/templates", s.handleListTemplates).Methods(http.MethodGet)
	api.HandleFunc("/templates/{name}", s.handleGetTemplate).Methods(http.MethodGet)
	api.HandleFunc("/session", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/session/select", s.handleSelect).Methods(http.MethodPost)
	api.HandleFunc("/rewrite", s.handleRewrite).Methods(http.MethodPost)
	api.HandleFunc("/send", s.handleSend).Methods(http.MethodPost)

	s.router.HandleFunc("/auth/gmail", s.handleAuthStart).Methods(http.MethodGet)
	s.router.HandleFunc("/auth/callback", s.handleAuthCallback).Methods(http.MethodGet)

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return err
	}
	s.router.Handle("/", http.FileServer(http.FS(static))).Methods(http.MethodGet)
	return nil
}

// Handler returns the root handler, for tests and embedding.
func (s *WebServer) Handler() http.Handler {
	return s.router
}

// Sessions returns the session manager.
func (s *WebServer) Sessions() *SessionManager {
	return s.sessions
}

// Health returns the health checker.
func (s *WebServer) Health() *HealthChecker {
	return s.health
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *WebServer) Start() error {
	s.sc.Logger().Info("starting web UI", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown marks the server not ready, drains connections and stops the
// session cleanup.
func (s *WebServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	defer s.sessions.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		s.sc.Logger().Warn("web UI shutdown incomplete", logging.Err(err))
		return err
	}
	return nil
}
