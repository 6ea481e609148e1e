package api

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"incidentboard/config"
	"incidentboard/core/auth"
	"incidentboard/core/clients"
	"incidentboard/core/metrics"
	"incidentboard/core/utils"
)

// BackgroundWorker runs alongside the HTTP server for its whole lifetime.
type BackgroundWorker interface {
	StartWithContext(ctx context.Context) error
	StopWithContext(ctx context.Context) error
}

type ServerDeps struct {
	Registry  *clients.Registry
	Metrics   *metrics.Metrics
	CSRF      *auth.CSRF
	Templates *template.Template
	// Health reports whether the slot database is reachable.
	Health  func(ctx context.Context) error
	Workers []BackgroundWorker
}

type Server struct {
	cfg      *config.AppConfig
	logger   *utils.Logger
	registry *clients.Registry
	metrics  *metrics.Metrics
	csrf     *auth.CSRF
	tmpl     *template.Template
	health   func(ctx context.Context) error
	workers  []BackgroundWorker

	router     chi.Router
	httpServer *http.Server

	mu            sync.Mutex
	workersCancel context.CancelFunc
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger) (*Server, error) {
	if deps.Registry == nil {
		return nil, errors.New("api: client registry is required")
	}
	if deps.CSRF == nil || deps.Templates == nil {
		return nil, errors.New("api: csrf and templates are required")
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: deps.Registry,
		metrics:  deps.Metrics,
		csrf:     deps.CSRF,
		tmpl:     deps.Templates,
		health:   deps.Health,
		workers:  deps.Workers,
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start launches the background workers and serves until Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.workersCancel = cancel
	s.mu.Unlock()
	for _, w := range s.workers {
		if err := w.StartWithContext(ctx); err != nil {
			cancel()
			return err
		}
	}
	if s.logger != nil {
		s.logger.Printf("HTTP server starting on %s (tls=%t)", s.cfg.ListenAddr, s.cfg.TLSEnabled)
	}
	var err error
	if s.cfg.TLSEnabled {
		err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then stops the workers.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.logger != nil {
		s.logger.Printf("HTTP server shutting down")
	}
	err := s.httpServer.Shutdown(ctx)
	for _, w := range s.workers {
		if werr := w.StopWithContext(ctx); werr != nil && s.logger != nil {
			s.logger.Errorf("stop worker: %v", werr)
		}
	}
	s.mu.Lock()
	if s.workersCancel != nil {
		s.workersCancel()
	}
	s.mu.Unlock()
	return err
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			if s.logger != nil {
				s.logger.Errorf("health check: %v", err)
			}
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": s.registry.Len()})
}
