package eventbridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/birddigital/voicebridge/internal/logging"
	"github.com/birddigital/voicebridge/internal/session"
)

func TestSessionEventIdempotencyKeyIsDeterministic(t *testing.T) {
	evt := session.Event{
		Type:      session.EventSessionStarted,
		SessionID: "s1",
		AtMs:      1000,
		Payload:   map[string]any{"source": "sip-bridge"},
	}

	k1 := sessionEventIdempotencyKey(evt)
	k2 := sessionEventIdempotencyKey(evt)
	if k1 != k2 {
		t.Fatalf("expected deterministic idempotency key, got %q and %q", k1, k2)
	}
}

func TestSessionEventIdempotencyKeyDiffersOnPayload(t *testing.T) {
	base := session.Event{Type: session.EventSessionStarted, SessionID: "s1", AtMs: 1000, Payload: map[string]any{"a": 1}}
	changed := session.Event{Type: session.EventSessionStarted, SessionID: "s1", AtMs: 1000, Payload: map[string]any{"a": 2}}

	if sessionEventIdempotencyKey(base) == sessionEventIdempotencyKey(changed) {
		t.Fatal("expected different payloads to produce different keys")
	}
}

func TestDeliveryRetriesThenSucceedsWithSameIdempotencyKey(t *testing.T) {
	var (
		mu          sync.Mutex
		keys        []string
		attempts    int32
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("idempotency-key"))
		mu.Unlock()

		n := atomic.AddInt32(&attempts, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	b := New(Config{
		Logger:      logging.NewNop(),
		BaseURL:     server.URL,
		Timeout:     500 * time.Millisecond,
		MaxAttempts: 4,
		QueueBound:  8,
	})
	defer b.Stop()

	b.PublishSessionEvent(session.Event{Type: session.EventSessionStarted, SessionID: "s1", AtMs: 1})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(keys) == 3
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(keys) != 3 {
		t.Fatalf("expected exactly 3 POST attempts, got %d", len(keys))
	}
	for _, k := range keys {
		if k != keys[0] {
			t.Fatalf("expected all attempts to share the same idempotency key, got %v", keys)
		}
	}
}

func TestQueueFullDropsEnvelopeWithoutBlocking(t *testing.T) {
	b := New(Config{Logger: logging.NewNop(), BaseURL: "", QueueBound: 1})
	defer b.Stop()

	// BaseURL is empty so nothing is sent; both enqueues should return
	// immediately regardless of queue capacity.
	done := make(chan struct{})
	go func() {
		b.PublishSessionEvent(session.Event{SessionID: "s1"})
		b.PublishSessionEvent(session.Event{SessionID: "s2"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked unexpectedly")
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	b := New(Config{Logger: logging.NewNop(), BaseURL: server.URL})
	defer b.Stop()

	if !b.HealthCheck(context.Background(), server.URL) {
		t.Fatal("expected health check to succeed")
	}
}
