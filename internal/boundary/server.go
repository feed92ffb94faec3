// Package boundary is the HTTP+WebSocket surface described in spec §4.7:
// it authenticates, parses, and dispatches both ingress dialects onto the
// Orchestrator and exposes session/metrics snapshots.
package boundary

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/birddigital/voicebridge/internal/egress"
	"github.com/birddigital/voicebridge/internal/eventbridge"
	"github.com/birddigital/voicebridge/internal/metrics"
	"github.com/birddigital/voicebridge/internal/orchestrator"
	"github.com/birddigital/voicebridge/internal/session"
)

// Config bundles the Boundary Server's construction-time dependencies
// and the auth secrets from spec §4.7.
type Config struct {
	Port string

	AsteriskSharedSecret string
	ControlAPISecret     string
	TwilioAuthToken      string
	PublicBaseURL        string
	OutboundTarget       string

	Store    *session.Store
	Egress   *egress.Store
	Orch     *orchestrator.Orchestrator
	Bridge   *eventbridge.Bridge
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics

	Logger zerolog.Logger
}

// Server owns the chi router and the underlying *http.Server.
type Server struct {
	router     chi.Router
	httpServer *http.Server

	store  *session.Store
	egress *egress.Store
	orch   *orchestrator.Orchestrator
	bridge *eventbridge.Bridge

	outboundTarget string
	publicBaseURL  string
	port           string
	log            zerolog.Logger
}

// New wires the full route table from spec §4.7 plus the ambient
// liveness/readiness/Prometheus routes from SPEC_FULL.md §4.7.
func New(cfg Config) *Server {
	s := &Server{
		store:          cfg.Store,
		egress:         cfg.Egress,
		orch:           cfg.Orch,
		bridge:         cfg.Bridge,
		outboundTarget: cfg.OutboundTarget,
		publicBaseURL:  cfg.PublicBaseURL,
		port:           cfg.Port,
		log:            cfg.Logger.With().Str("component", "boundary_server").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log, cfg.Metrics))
	r.Use(recoverer(s.log))

	r.Get("/health", s.handleHealth)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/sessions", s.handleSessions)
	r.Get("/metrics", s.handleMetrics)

	if cfg.Gatherer != nil {
		r.Handle("/internal/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	asteriskAuth := sharedSecretAuth(s.log, "x-asterisk-secret", cfg.AsteriskSharedSecret)
	r.Group(func(ar chi.Router) {
		ar.Use(asteriskAuth)
		ar.Post("/asterisk/inbound", s.handleAsteriskInbound)
		ar.Post("/asterisk/media", s.handleAsteriskMedia)
		ar.Post("/asterisk/end", s.handleAsteriskEnd)
		ar.Get("/asterisk/egress/next", s.handleAsteriskEgressNext)
	})

	controlAuth := sharedSecretAuth(s.log, "x-control-secret", cfg.ControlAPISecret)
	r.Group(func(cr chi.Router) {
		cr.Use(controlAuth)
		cr.Post("/sessions/control", s.handleSessionsControl)
		cr.Post("/openclaw/command", s.handleOpenclawCommand)
	})

	r.Group(func(tr chi.Router) {
		tr.Use(webhookSignatureAuth(s.log, cfg.TwilioAuthToken, cfg.PublicBaseURL))
		tr.Post("/twilio/voice", s.handleTwilioVoice)
	})
	// The media stream handshake authenticates implicitly (the caller must
	// already have resolved callSid via the voice webhook); no signature
	// check applies to individual WS frames (spec §4.7).
	r.Get("/twilio/stream", s.handleTwilioStream)

	s.router = r
	return s
}

// Handler exposes the router directly, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins listening for HTTP connections. Blocks until Shutdown or
// a listen error occurs.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%s", s.port),
		Handler: s.router,
	}
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("starting boundary server")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections and drains in-flight handlers,
// per spec §5's graceful-shutdown requirement.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info().Msg("shutting down boundary server")
	return s.httpServer.Shutdown(ctx)
}
