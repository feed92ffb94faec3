package orchestrator

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/birddigital/voicebridge/internal/logging"
	"github.com/birddigital/voicebridge/internal/metrics"
	"github.com/birddigital/voicebridge/internal/session"
)

type countingSTT struct {
	calls int
	text  string
}

func (c *countingSTT) Name() string { return "counting-stt" }
func (c *countingSTT) Transcribe(frame session.AudioFrame) (*session.TranscriptionChunk, error) {
	c.calls++
	if c.text == "" {
		return nil, nil
	}
	return &session.TranscriptionChunk{
		SessionID:   frame.SessionID,
		Text:        c.text,
		Language:    session.LanguageES,
		TimestampMs: frame.TimestampMs,
	}, nil
}

type passthroughMT struct{ calls int }

func (m *passthroughMT) Name() string { return "passthrough-mt" }
func (m *passthroughMT) Translate(chunk session.TranscriptionChunk) (*session.TranslationChunk, error) {
	m.calls++
	return &session.TranslationChunk{
		SessionID:      chunk.SessionID,
		Text:           chunk.Text,
		SourceLanguage: chunk.Language,
		TargetLanguage: session.LanguageEN,
		TimestampMs:    chunk.TimestampMs,
	}, nil
}

type silentTTS struct{ calls int }

func (t *silentTTS) Name() string { return "silent-tts" }
func (t *silentTTS) Synthesize(chunk session.TranslationChunk) (*session.TtsChunk, error) {
	t.calls++
	return &session.TtsChunk{SessionID: chunk.SessionID, Encoding: "mulaw", SampleRateHz: 8000, Payload: []byte{0xFF}, TimestampMs: chunk.TimestampMs}, nil
}

func newTestOrchestrator(store *session.Store, stt *countingSTT, mt *passthroughMT, tts *silentTTS, minFrameIntervalMs int) *Orchestrator {
	return New(Config{
		Logger:             logging.NewNop(),
		Store:              store,
		STT:                stt,
		MT:                 mt,
		TTS:                tts,
		OutboundTarget:     "+15555550100",
		MinFrameIntervalMs: minFrameIntervalMs,
	})
}

func TestOnIncomingCallIsIdempotent(t *testing.T) {
	store := session.NewStore()
	o := newTestOrchestrator(store, &countingSTT{}, &passthroughMT{}, &silentTTS{}, 0)

	evt := session.IncomingCallEvent{Source: session.SourceSIPBridge, ExternalCallID: "sip-1", ReceivedAtMs: 1}
	first := o.OnIncomingCall(evt)
	second := o.OnIncomingCall(evt)

	if first.ID != second.ID {
		t.Fatalf("expected same session ID, got %s and %s", first.ID, second.ID)
	}
	if len(store.All()) != 1 {
		t.Fatalf("expected 1 session, got %d", len(store.All()))
	}
	if second.State != session.StateActive {
		t.Fatalf("expected active state after transition, got %s", second.State)
	}
}

func TestPassthroughModeSkipsSTTAndCountsFrames(t *testing.T) {
	store := session.NewStore()
	stt := &countingSTT{text: "hola"}
	o := newTestOrchestrator(store, stt, &passthroughMT{}, &silentTTS{}, 0)

	cs := o.OnIncomingCall(session.IncomingCallEvent{Source: session.SourceSIPBridge, ExternalCallID: "sip-2"})
	passthrough := session.ModePassthrough
	o.UpdateSessionControl(cs.ID, session.ControlPatch{Mode: &passthrough})

	o.OnAudioFrame(session.AudioFrame{SessionID: cs.ID, TimestampMs: 100})
	o.OnAudioFrame(session.AudioFrame{SessionID: cs.ID, TimestampMs: 200})

	if stt.calls != 0 {
		t.Fatalf("expected no STT calls in passthrough mode, got %d", stt.calls)
	}
	m := store.MetricsSnapshot(cs.ID)
	if m.PassthroughFrames != 2 {
		t.Fatalf("expected 2 passthrough frames counted, got %d", m.PassthroughFrames)
	}
}

func TestEndSessionIsTerminalAndIdempotent(t *testing.T) {
	store := session.NewStore()
	o := newTestOrchestrator(store, &countingSTT{}, &passthroughMT{}, &silentTTS{}, 0)

	cs := o.OnIncomingCall(session.IncomingCallEvent{Source: session.SourceSIPBridge, ExternalCallID: "sip-3"})
	ended := o.EndSession(cs.ID)
	if ended.State != session.StateEnded {
		t.Fatalf("expected ended, got %s", ended.State)
	}
	again := o.EndSession(cs.ID)
	if again.State != session.StateEnded {
		t.Fatalf("expected ended to remain ended, got %s", again.State)
	}
}

func TestRateLimiterDropsFramesArrivingTooSoon(t *testing.T) {
	store := session.NewStore()
	stt := &countingSTT{text: "hola"}
	o := newTestOrchestrator(store, stt, &passthroughMT{}, &silentTTS{}, 100)

	cs := o.OnIncomingCall(session.IncomingCallEvent{Source: session.SourceSIPBridge, ExternalCallID: "sip-4"})

	// Frames at t=0, t=50 (too soon), t=150 (far enough from t=0).
	o.OnAudioFrame(session.AudioFrame{SessionID: cs.ID, TimestampMs: 0})
	o.OnAudioFrame(session.AudioFrame{SessionID: cs.ID, TimestampMs: 50})
	o.OnAudioFrame(session.AudioFrame{SessionID: cs.ID, TimestampMs: 150})

	if stt.calls != 2 {
		t.Fatalf("expected 2 STT calls reaching the provider, got %d", stt.calls)
	}
	m := store.MetricsSnapshot(cs.ID)
	if m.DroppedFrames < 1 {
		t.Fatalf("expected at least 1 dropped frame, got %d", m.DroppedFrames)
	}
}

func TestFullPipelineUpdatesMetricsAndEnqueuesEgress(t *testing.T) {
	store := session.NewStore()
	stt := &countingSTT{text: "hola"}
	mt := &passthroughMT{}
	tts := &silentTTS{}

	var enqueued []session.TtsChunk
	o := New(Config{
		Logger:         logging.NewNop(),
		Store:          store,
		STT:            stt,
		MT:             mt,
		TTS:            tts,
		OutboundTarget: "+15555550100",
		OnTtsChunk: func(chunk session.TtsChunk) (int, bool) {
			enqueued = append(enqueued, chunk)
			return len(enqueued), false
		},
	})

	cs := o.OnIncomingCall(session.IncomingCallEvent{Source: session.SourceSIPBridge, ExternalCallID: "sip-5"})
	o.OnAudioFrame(session.AudioFrame{SessionID: cs.ID, TimestampMs: 10})

	if len(enqueued) != 1 {
		t.Fatalf("expected 1 enqueued tts chunk, got %d", len(enqueued))
	}
	m := store.MetricsSnapshot(cs.ID)
	if m.TranslatedChunks != 1 {
		t.Fatalf("expected 1 translated chunk, got %d", m.TranslatedChunks)
	}
	if m.EgressQueuePeak != 1 {
		t.Fatalf("expected egress queue peak 1, got %d", m.EgressQueuePeak)
	}
}

// gaugeValue reads a registered Gauge's current value straight from the
// registry it was constructed with, avoiding any dependency on internal
// prometheus.Gauge accessors.
func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			if g := m.GetGauge(); g != nil {
				return g.GetValue()
			}
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestActiveSessionsGaugeTracksLifecycleIdempotently(t *testing.T) {
	store := session.NewStore()
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(reg)

	o := New(Config{
		Logger:         logging.NewNop(),
		Store:          store,
		STT:            &countingSTT{},
		MT:             &passthroughMT{},
		TTS:            &silentTTS{},
		OutboundTarget: "+15555550100",
		Metrics:        m,
	})

	cs := o.OnIncomingCall(session.IncomingCallEvent{Source: session.SourceSIPBridge, ExternalCallID: "sip-6"})
	if got := gaugeValue(t, reg, "voicebridge_active_sessions"); got != 1 {
		t.Fatalf("expected active_sessions=1 after incoming call, got %v", got)
	}

	o.EndSession(cs.ID)
	if got := gaugeValue(t, reg, "voicebridge_active_sessions"); got != 0 {
		t.Fatalf("expected active_sessions=0 after end, got %v", got)
	}

	// Repeat end-of-call calls must not double-decrement the gauge.
	o.EndSession(cs.ID)
	if got := gaugeValue(t, reg, "voicebridge_active_sessions"); got != 0 {
		t.Fatalf("expected active_sessions to remain 0 after idempotent end, got %v", got)
	}
}

func TestUnknownSessionFrameIsDroppedSilently(t *testing.T) {
	store := session.NewStore()
	stt := &countingSTT{text: "hola"}
	o := newTestOrchestrator(store, stt, &passthroughMT{}, &silentTTS{}, 0)

	o.OnAudioFrame(session.AudioFrame{SessionID: "does-not-exist", TimestampMs: 1})
	if stt.calls != 0 {
		t.Fatalf("expected no provider calls for unknown session, got %d", stt.calls)
	}
}
