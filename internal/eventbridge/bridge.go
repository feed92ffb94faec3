// Package eventbridge delivers SessionEvents and operator commands to an
// external orchestrator HTTP endpoint with at-least-once semantics,
// bounded memory, and backpressure, per spec §4.5.
package eventbridge

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/birddigital/voicebridge/internal/metrics"
	"github.com/birddigital/voicebridge/internal/session"
)

// EnvelopeType discriminates the two envelope payload kinds.
type EnvelopeType string

const (
	EnvelopeSessionEvent EnvelopeType = "session_event"
	EnvelopeCommand      EnvelopeType = "command"
)

// Command is a free-form operator instruction relayed to the external bridge.
type Command struct {
	Text    string         `json:"text"`
	Context map[string]any `json:"context,omitempty"`
}

// Envelope is the wire shape POSTed to the bridge endpoint.
type Envelope struct {
	Type           EnvelopeType   `json:"type"`
	IdempotencyKey string         `json:"idempotencyKey"`
	AtMs           int64          `json:"atMs"`
	SessionEvent   *session.Event `json:"sessionEvent,omitempty"`
	Command        *Command       `json:"command,omitempty"`
}

// Config configures a Bridge. A zero-value BaseURL disables delivery
// entirely (publish calls still succeed; the drain loop dequeues and
// discards each envelope without sending it).
type Config struct {
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxAttempts int
	QueueBound  int
}

// Bridge owns a single FIFO queue drained sequentially by one goroutine.
type Bridge struct {
	log    zerolog.Logger
	m      *metrics.Metrics
	client *http.Client

	baseURL     string
	apiKey      string
	maxAttempts int

	queue    chan Envelope
	drainWg  sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(cfg Config) *Bridge {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.QueueBound <= 0 {
		cfg.QueueBound = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1200 * time.Millisecond
	}

	b := &Bridge{
		log:         cfg.Logger,
		m:           cfg.Metrics,
		client:      &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		maxAttempts: cfg.MaxAttempts,
		queue:       make(chan Envelope, cfg.QueueBound),
		stopCh:      make(chan struct{}),
	}
	b.drainWg.Add(1)
	go b.drainLoop()
	return b
}

// Stop cancels the drain loop cleanly and waits for it to exit. Per
// spec §5, shutdown must cancel the Event Bridge's retry timer cleanly.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.drainWg.Wait()
}

// PublishSessionEvent enqueues evt and returns immediately; bridge
// failures never propagate to the caller.
func (b *Bridge) PublishSessionEvent(evt session.Event) {
	env := Envelope{
		Type:           EnvelopeSessionEvent,
		IdempotencyKey: sessionEventIdempotencyKey(evt),
		AtMs:           evt.AtMs,
		SessionEvent:   &evt,
	}
	b.enqueue(env)
}

// SendCommand enqueues a free-form operator command with a randomly
// generated idempotency key (each invocation is distinct, unlike a retry
// of the same session event).
func (b *Bridge) SendCommand(cmd Command) {
	env := Envelope{
		Type:           EnvelopeCommand,
		IdempotencyKey: uuid.NewString(),
		AtMs:           time.Now().UnixMilli(),
		Command:        &cmd,
	}
	b.enqueue(env)
}

func (b *Bridge) enqueue(env Envelope) {
	select {
	case b.queue <- env:
	default:
		b.log.Warn().Str("idempotency_key", env.IdempotencyKey).Msg("event bridge queue full, dropping envelope")
	}
	if b.m != nil {
		b.m.BridgeQueueDepth.Set(float64(len(b.queue)))
	}
}

// sessionEventIdempotencyKey derives a deterministic key so a retry after
// transient failure replays the same key (spec §4.5).
func sessionEventIdempotencyKey(evt session.Event) string {
	payload, _ := json.Marshal(evt.Payload)
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s:%s:%d:%s", evt.Type, evt.SessionID, evt.AtMs, hex.EncodeToString(sum[:8]))
}

// drainLoop drains the queue strictly in enqueue order. Re-entrancy-safe:
// only this one goroutine ever runs it.
func (b *Bridge) drainLoop() {
	defer b.drainWg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case env := <-b.queue:
			b.deliver(env)
			if b.m != nil {
				b.m.BridgeQueueDepth.Set(float64(len(b.queue)))
			}
		}
	}
}

func (b *Bridge) deliver(env Envelope) {
	if b.baseURL == "" {
		return
	}

	body, err := json.Marshal(env)
	if err != nil {
		b.log.Warn().Err(err).Msg("failed to marshal event bridge envelope")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.client.Timeout*time.Duration(b.maxAttempts)+time.Second)
	defer cancel()
	go func() {
		select {
		case <-b.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.Multiplier = 2
	bo.MaxInterval = 2000 * time.Millisecond
	bo.RandomizationFactor = 0

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attemptErr := b.attempt(ctx, env, body)
		if attemptErr != nil {
			return struct{}{}, attemptErr
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(b.maxAttempts)))

	if err != nil {
		b.log.Warn().Err(err).Str("idempotency_key", env.IdempotencyKey).Msg("event bridge delivery exhausted retries, dropping")
		if b.m != nil {
			b.m.BridgeAttemptsTotal.WithLabelValues("dropped").Inc()
		}
	}
}

func (b *Bridge) attempt(ctx context.Context, env Envelope, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("idempotency-key", env.IdempotencyKey)
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if b.m != nil {
			b.m.BridgeAttemptsTotal.WithLabelValues("error").Inc()
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if b.m != nil {
			b.m.BridgeAttemptsTotal.WithLabelValues("success").Inc()
		}
		return nil
	}
	if b.m != nil {
		b.m.BridgeAttemptsTotal.WithLabelValues("retryable").Inc()
	}
	return fmt.Errorf("event bridge: non-2xx response %d", resp.StatusCode)
}

// HealthCheck issues a GET to <origin>/health with the bridge's timeout.
func (b *Bridge) HealthCheck(ctx context.Context, origin string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, b.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, origin+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
