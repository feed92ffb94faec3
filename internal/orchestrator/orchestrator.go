// Package orchestrator implements the Voice Orchestrator: the single
// pipeline owner driving per-frame STT -> MT -> TTS, rate limiting, mode
// switching, metric accounting, and session-event emission.
package orchestrator

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/birddigital/voicebridge/internal/metrics"
	"github.com/birddigital/voicebridge/internal/provider"
	"github.com/birddigital/voicebridge/internal/session"
)

// TtsSink receives a synthesized chunk, typically to enqueue into the
// Egress Store. It returns the enqueue outcome so the Orchestrator can
// update egress metrics (spec §4.4.3 reportEgressStats).
type TtsSink func(chunk session.TtsChunk) (queueSize int, droppedOldest bool)

// EventSink receives a SessionEvent, typically for delivery to the
// External Event Bridge. Failures are the sink's concern; the Orchestrator
// never blocks or fails on event emission.
type EventSink func(evt session.Event)

// Orchestrator is the single pipeline owner. Constructed with its
// dependencies; nil sinks are valid (events/chunks are simply dropped).
type Orchestrator struct {
	log zerolog.Logger

	store *session.Store

	stt   provider.SttProvider
	mt    provider.TranslationProvider
	tts   provider.TtsProvider

	outboundTarget     string
	minFrameIntervalMs int64

	onTtsChunk     TtsSink
	onSessionEvent EventSink

	metrics *metrics.Metrics

	rateMu       sync.Mutex
	lastFrameTs  map[string]int64
}

// Config bundles the Orchestrator's construction-time dependencies.
type Config struct {
	Logger             zerolog.Logger
	Store              *session.Store
	STT                provider.SttProvider
	MT                 provider.TranslationProvider
	TTS                provider.TtsProvider
	OutboundTarget     string
	MinFrameIntervalMs int
	OnTtsChunk         TtsSink
	OnSessionEvent     EventSink
	Metrics            *metrics.Metrics
}

func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		log:                cfg.Logger,
		store:              cfg.Store,
		stt:                cfg.STT,
		mt:                 cfg.MT,
		tts:                cfg.TTS,
		outboundTarget:     cfg.OutboundTarget,
		minFrameIntervalMs: int64(cfg.MinFrameIntervalMs),
		onTtsChunk:         cfg.OnTtsChunk,
		onSessionEvent:     cfg.OnSessionEvent,
		metrics:            cfg.Metrics,
		lastFrameTs:        make(map[string]int64),
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }

// emit delivers evt to the event sink, tolerating a nil sink. Emission
// never fails upward — per spec, event emission failures are logged and
// do not propagate.
func (o *Orchestrator) emit(evt session.Event) {
	if o.onSessionEvent == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.log.Warn().Interface("panic", r).Str("session_id", evt.SessionID).Msg("session event sink panicked")
		}
	}()
	o.onSessionEvent(evt)
}

// OnIncomingCall resolves or creates a session for event, per spec §4.4.1.
// Repeated handshakes for the same (source, externalId) are idempotent.
func (o *Orchestrator) OnIncomingCall(event session.IncomingCallEvent) *session.CallSession {
	if existing := o.store.GetByExternal(event.Source, event.ExternalCallID); existing != nil {
		o.log.Info().
			Str("session_id", existing.ID).
			Str("external_call_id", event.ExternalCallID).
			Msg("duplicate incoming-call handshake, returning existing session")
		return existing
	}

	cs := o.store.CreateFromIncoming(event, o.outboundTarget)
	cs = o.store.UpdateState(cs.ID, session.StateActive)

	o.log.Info().Str("session_id", cs.ID).Str("source", string(cs.Source)).Msg("session started")
	if o.metrics != nil {
		o.metrics.ActiveSessions.Inc()
	}
	o.emit(session.Event{
		Type:      session.EventSessionStarted,
		SessionID: cs.ID,
		AtMs:      nowMs(),
		Payload: map[string]any{
			"source":          string(cs.Source),
			"inboundCaller":   cs.InboundCaller,
			"outboundTarget":  cs.OutboundTarget,
		},
	})
	return cs
}

// OnAudioFrame runs the per-frame pipeline per spec §4.4.2.
func (o *Orchestrator) OnAudioFrame(frame session.AudioFrame) {
	cs := o.store.Get(frame.SessionID)
	if cs == nil {
		o.log.Warn().Str("session_id", frame.SessionID).Msg("audio frame for unknown session, dropping")
		return
	}

	m := o.store.Metrics(cs.ID)

	if cs.Mode == session.ModePassthrough {
		m.PassthroughFrames++
		if o.metrics != nil {
			o.metrics.FramesPassthrough.Inc()
		}
		return
	}

	if o.minFrameIntervalMs > 0 {
		o.rateMu.Lock()
		last, seen := o.lastFrameTs[cs.ID]
		tooSoon := seen && frame.TimestampMs-last < o.minFrameIntervalMs
		if !tooSoon {
			o.lastFrameTs[cs.ID] = frame.TimestampMs
		}
		o.rateMu.Unlock()

		if tooSoon {
			m.DroppedFrames++
			if o.metrics != nil {
				o.metrics.FramesDropped.WithLabelValues("rate_limited").Inc()
			}
			return
		}
	}

	sttStart := time.Now()
	transcript, err := o.stt.Transcribe(frame)
	sttLatencyMs := time.Since(sttStart).Milliseconds()
	m.LastSTTLatencyMs = sttLatencyMs
	o.observeStage("stt", sttLatencyMs)
	if err != nil {
		o.log.Warn().Err(err).Str("session_id", cs.ID).Msg("stt provider failure, treating as no transcript")
		return
	}
	if transcript == nil || strings.TrimSpace(transcript.Text) == "" {
		return
	}

	o.emit(session.Event{
		Type:      session.EventSessionTranscript,
		SessionID: cs.ID,
		AtMs:      transcript.TimestampMs,
		Payload: map[string]any{
			"text":     transcript.Text,
			"isFinal":  transcript.IsFinal,
			"language": string(transcript.Language),
		},
	})

	mtStart := time.Now()
	translation, err := o.mt.Translate(*transcript)
	mtLatencyMs := time.Since(mtStart).Milliseconds()
	m.LastTranslationLatencyMs = mtLatencyMs
	o.observeStage("mt", mtLatencyMs)
	if err != nil {
		o.log.Warn().Err(err).Str("session_id", cs.ID).Msg("translation provider failure, treating as no translation")
		return
	}
	if translation == nil {
		return
	}

	o.emit(session.Event{
		Type:      session.EventSessionTranslation,
		SessionID: cs.ID,
		AtMs:      translation.TimestampMs,
		Payload: map[string]any{
			"text":           translation.Text,
			"sourceLanguage": string(translation.SourceLanguage),
			"targetLanguage": string(translation.TargetLanguage),
		},
	})

	ttsStart := time.Now()
	ttsChunk, err := o.tts.Synthesize(*translation)
	ttsLatencyMs := time.Since(ttsStart).Milliseconds()
	m.LastTTSLatencyMs = ttsLatencyMs
	o.observeStage("tts", ttsLatencyMs)
	if err != nil {
		o.log.Warn().Err(err).Str("session_id", cs.ID).Msg("tts provider failure, dropping chunk")
		return
	}

	if ttsChunk != nil && o.onTtsChunk != nil {
		queueSize, droppedOldest := o.onTtsChunk(*ttsChunk)
		o.ReportEgressStats(cs.ID, queueSize, droppedOldest)
	}

	m.LastPipelineLatencyMs = sttLatencyMs + mtLatencyMs + ttsLatencyMs
	m.TranslatedChunks++
}

func (o *Orchestrator) observeStage(stage string, latencyMs int64) {
	if o.metrics != nil {
		o.metrics.PipelineStageLatency.WithLabelValues(stage).Observe(float64(latencyMs))
	}
}

// UpdateSessionControl applies patch and emits session.control.updated.
func (o *Orchestrator) UpdateSessionControl(id string, patch session.ControlPatch) *session.CallSession {
	cs := o.store.UpdateControl(id, patch)
	if cs == nil {
		return nil
	}
	o.emit(session.Event{
		Type:      session.EventSessionControlUpdate,
		SessionID: cs.ID,
		AtMs:      nowMs(),
		Payload: map[string]any{
			"mode":           string(cs.Mode),
			"sourceLanguage": string(cs.SourceLanguage),
			"targetLanguage": string(cs.TargetLanguage),
		},
	})
	return cs
}

// EndSession transitions id to ended idempotently and emits session.ended
// with a final metrics snapshot.
func (o *Orchestrator) EndSession(id string) *session.CallSession {
	before := o.store.Get(id)
	alreadyTerminal := before != nil && (before.State == session.StateEnded || before.State == session.StateFailed)

	cs := o.store.UpdateState(id, session.StateEnded)
	if cs == nil {
		return nil
	}
	if !alreadyTerminal && o.metrics != nil {
		o.metrics.ActiveSessions.Dec()
	}
	snap := o.store.MetricsSnapshot(id)
	o.emit(session.Event{
		Type:      session.EventSessionEnded,
		SessionID: cs.ID,
		AtMs:      nowMs(),
		Payload: map[string]any{
			"finalMetrics": snap,
		},
	})
	return cs
}

// ReportEgressStats updates egress-derived metrics after a Boundary-layer enqueue.
func (o *Orchestrator) ReportEgressStats(sessionID string, queueSize int, droppedOldest bool) {
	m := o.store.Metrics(sessionID)
	if int64(queueSize) > m.EgressQueuePeak {
		m.EgressQueuePeak = int64(queueSize)
	}
	if droppedOldest {
		m.EgressDropCount++
		if o.metrics != nil {
			o.metrics.EgressDropped.Inc()
		}
	}
	if o.metrics != nil {
		o.metrics.EgressQueueDepth.WithLabelValues(sessionID).Set(float64(queueSize))
	}
}
