// Package server exposes the HTTP surface: the webhook intake endpoints
// that Radarr and Sonarr post to, and a small status API over the
// download registry.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/s0up4200/linkarr/config"
	"github.com/s0up4200/linkarr/intake"
	"github.com/s0up4200/linkarr/monitor"
	"github.com/s0up4200/linkarr/qbittorrent"
)

// WebhookStore persists received webhooks for later inspection.
type WebhookStore interface {
	SaveWebhook(ev *intake.Event, payload []byte) error
}

// Server holds the dependencies for the HTTP API.
type Server struct {
	cfg     config.ServerConfig
	monitor *monitor.Monitor
	gateway monitor.Gateway
	rule    *intake.Rule
	store   WebhookStore
	version string
	logger  zerolog.Logger

	mu     sync.Mutex
	recent []eventView

	httpServer *http.Server
}

// recentWebhookLimit bounds the in-memory webhook history.
const recentWebhookLimit = 100

// NewServer creates a new Server instance. The gateway, rule and store
// are optional.
func NewServer(cfg config.ServerConfig, mon *monitor.Monitor, gateway monitor.Gateway, logger zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		monitor: mon,
		gateway: gateway,
		logger:  logger,
	}
}

// SetRule installs a grab filter. Grab events the rule rejects are
// acknowledged but not registered.
func (s *Server) SetRule(r *intake.Rule) {
	s.rule = r
}

// SetStore enables webhook history persistence.
func (s *Server) SetStore(store WebhookStore) {
	s.store = store
}

// SetVersion sets the version reported by the info endpoint.
func (s *Server) SetVersion(version string) {
	s.version = version
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", s.handleInfo)
	r.Get("/healthz", s.handleHealth)

	// Radarr and Sonarr can be pointed at either path.
	r.Post("/", s.handleWebhook)
	r.Post("/webhook", s.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/api", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Get("/history", s.handleHistory)
			r.Get("/webhooks", s.handleWebhooks)
			r.Get("/torrent/{hash}", s.handleTorrent)
		})
	})

	return r
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("HTTP server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// liveState fetches the current torrent state from the client, bounded
// by a short timeout so a slow client cannot stall the status API.
func (s *Server) liveState(ctx context.Context, hash string) *qbittorrent.TorrentState {
	if s.gateway == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	state, err := s.gateway.State(ctx, hash)
	if err != nil {
		s.logger.Debug().Err(err).Str("hash", hash).Msg("Live state lookup failed")
		return nil
	}
	return state
}
