// Command voicebridge runs the stateless real-time voice translation
// gateway: it terminates both telephony ingress dialects, drives the
// STT -> MT -> TTS pipeline per call, and relays session lifecycle events
// to an external orchestrator.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/birddigital/voicebridge/internal/boundary"
	"github.com/birddigital/voicebridge/internal/config"
	"github.com/birddigital/voicebridge/internal/egress"
	"github.com/birddigital/voicebridge/internal/eventbridge"
	"github.com/birddigital/voicebridge/internal/logging"
	"github.com/birddigital/voicebridge/internal/metrics"
	"github.com/birddigital/voicebridge/internal/orchestrator"
	"github.com/birddigital/voicebridge/internal/provider/stub"
	"github.com/birddigital/voicebridge/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicebridge: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("outbound_target", cfg.OutboundTargetE164).Msg("starting voicebridge")

	m := metrics.New()

	store := session.NewStore()
	egressStore := egress.NewStore(cfg.EgressMaxQueuePerSession)

	bridge := eventbridge.New(eventbridge.Config{
		Logger:      log,
		Metrics:     m,
		BaseURL:     cfg.OpenclawBridgeURL,
		APIKey:      cfg.OpenclawBridgeAPIKey,
		Timeout:     time.Duration(cfg.OpenclawBridgeTimeoutMs) * time.Millisecond,
		MaxAttempts: 4,
	})
	defer bridge.Stop()

	// Provider credentials are out of scope for this gateway's local
	// build; absence of vendor credentials always selects the stub
	// implementations (spec §6, §9).
	sttProvider := stub.NewSttProvider(cfg.StubSTTText, 0)
	mtProvider := stub.NewTranslationProvider()
	ttsProvider := stub.NewTtsProvider()

	orch := orchestrator.New(orchestrator.Config{
		Logger:             log,
		Store:              store,
		STT:                sttProvider,
		MT:                 mtProvider,
		TTS:                ttsProvider,
		OutboundTarget:     cfg.OutboundTargetE164,
		MinFrameIntervalMs: cfg.PipelineMinFrameIntervalMs,
		Metrics:            m,
		OnSessionEvent:     bridge.PublishSessionEvent,
		OnTtsChunk: func(chunk session.TtsChunk) (int, bool) {
			res := egressStore.Enqueue(chunk.SessionID, chunk)
			return res.QueueSize, res.DroppedOldest
		},
	})

	server := boundary.New(boundary.Config{
		Port:                 cfg.Port,
		AsteriskSharedSecret: cfg.AsteriskSharedSecret,
		ControlAPISecret:     cfg.ControlAPISecret,
		TwilioAuthToken:      cfg.TwilioAuthToken,
		PublicBaseURL:        cfg.PublicBaseURL,
		OutboundTarget:       cfg.OutboundTargetE164,
		Store:                store,
		Egress:               egressStore,
		Orch:                 orch,
		Bridge:               bridge,
		Gatherer:             prometheus.DefaultGatherer,
		Metrics:              m,
		Logger:               log,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("boundary server error: %w", err)
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("voicebridge started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server error, initiating shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutMs)*time.Millisecond)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("boundary server shutdown error")
	} else {
		log.Info().Msg("boundary server drained and stopped")
	}

	// Active sessions are not torn down on shutdown (spec §5): in-memory
	// state is simply lost. The Event Bridge's deferred Stop() above
	// cancels its drain loop and any in-flight retry cleanly.
	log.Info().Msg("voicebridge shut down")
}
