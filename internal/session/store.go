package session

import (
	"sync"

	"github.com/google/uuid"
)

// externalKey namespaces external call IDs by ingress source, so a
// sip-bridge call-id and a webhook-stream call SID never collide.
type externalKey struct {
	source IngressSource
	id     string
}

// Store owns CallSession records and the (source, externalId) -> internal
// ID index. State updates are single-writer from the Orchestrator's
// perspective; lookups may be concurrent. Coarse-grained locking is
// acceptable given the low mutation rate (spec §5).
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession
	byExternal map[externalKey]string

	metricsMu sync.RWMutex
	metrics   map[string]*Metrics
}

func NewStore() *Store {
	return &Store{
		sessions:   make(map[string]*CallSession),
		byExternal: make(map[externalKey]string),
		metrics:    make(map[string]*Metrics),
	}
}

// CreateFromIncoming mints an internal ID, records both index entries, and
// sets the initial state. Not idempotent by itself — de-duplication of
// repeated ingress handshakes is the Orchestrator's responsibility.
func (s *Store) CreateFromIncoming(event IncomingCallEvent, outboundTarget string) *CallSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := &CallSession{
		ID:             uuid.NewString(),
		Source:         event.Source,
		ExternalCallID: event.ExternalCallID,
		InboundCaller:  event.From,
		OutboundTarget: outboundTarget,
		StartedAtMs:    event.ReceivedAtMs,
		Mode:           ModePrivateTranslation,
		SourceLanguage: LanguageES,
		TargetLanguage: LanguageEN,
		State:          StatePending,
	}
	s.sessions[cs.ID] = cs
	s.byExternal[externalKey{source: event.Source, id: event.ExternalCallID}] = cs.ID
	return cs
}

// GetByExternal resolves a session by its ingress-namespaced external ID.
func (s *Store) GetByExternal(source IngressSource, externalID string) *CallSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byExternal[externalKey{source: source, id: externalID}]
	if !ok {
		return nil
	}
	return s.sessions[id]
}

// Get resolves a session by its internal ID.
func (s *Store) Get(id string) *CallSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// UpdateState transitions a session's state. State transitions are
// monotonic; once terminal, no further transition is applied.
func (s *Store) UpdateState(id string, state State) *CallSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if cs.State.terminal() {
		return cs
	}
	cs.State = state
	return cs
}

// UpdateControl applies a validated patch. No effect while the session is ended.
func (s *Store) UpdateControl(id string, patch ControlPatch) *CallSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if cs.State == StateEnded {
		return cs
	}
	if patch.Mode != nil {
		cs.Mode = *patch.Mode
	}
	if patch.SourceLanguage != nil {
		cs.SourceLanguage = *patch.SourceLanguage
	}
	if patch.TargetLanguage != nil {
		cs.TargetLanguage = *patch.TargetLanguage
	}
	return cs
}

// All returns a snapshot of every session, safe to serialize outside the lock.
func (s *Store) All() []CallSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]CallSession, 0, len(s.sessions))
	for _, cs := range s.sessions {
		out = append(out, cs.Snapshot())
	}
	return out
}

// Metrics returns the metrics record for id, creating it lazily on first
// access. Never removed while the session exists.
func (s *Store) Metrics(id string) *Metrics {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()

	m, ok := s.metrics[id]
	if !ok {
		m = &Metrics{}
		s.metrics[id] = m
	}
	return m
}

// MetricsSnapshot returns a value copy of id's metrics, or nil if none exist.
func (s *Store) MetricsSnapshot(id string) *Metrics {
	s.metricsMu.RLock()
	defer s.metricsMu.RUnlock()

	m, ok := s.metrics[id]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

// AllMetrics returns a snapshot of every session's metrics, keyed by session ID.
func (s *Store) AllMetrics() map[string]Metrics {
	s.metricsMu.RLock()
	defer s.metricsMu.RUnlock()

	out := make(map[string]Metrics, len(s.metrics))
	for id, m := range s.metrics {
		out[id] = *m
	}
	return out
}
