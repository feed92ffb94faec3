package boundary

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/birddigital/voicebridge/internal/audio"
	"github.com/birddigital/voicebridge/internal/ingress"
	"github.com/birddigital/voicebridge/internal/session"
)

// streamConverter re-encodes the pipeline's canonical pcm_s16le/16000 TTS
// output back to the mulaw/8000 wire format Twilio media streams require,
// mirroring the normalization ingress does on the way in (spec §4.6).
var streamConverter = audio.NewConverter()

// streamURL builds the wss:// URL the Start/Stream TwiML verb should dial,
// derived from the configured public base URL. It returns "" when no public
// base URL is configured, in which case no Start/Stream verb is emitted.
func (s *Server) streamURL(r *http.Request) string {
	if s.publicBaseURL == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.TrimPrefix(s.publicBaseURL, "https://"), "http://")
	return "wss://" + host + "/twilio/stream"
}

// handleTwilioVoice is the webhook-stream dialect's voice webhook.
func (s *Server) handleTwilioVoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, s.log, http.StatusBadRequest, "invalid_payload")
		return
	}
	form, err := ingress.ParseVoiceWebhookForm(map[string][]string(r.PostForm))
	if err != nil {
		writeError(w, s.log, http.StatusBadRequest, "invalid_payload")
		return
	}

	s.orch.OnIncomingCall(form.ToIncomingCallEvent(nowMs()))

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ingress.DialInstructionXML(s.outboundTarget, s.streamURL(r))))
}

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	streamPingInterval  = 54 * time.Second
	streamEgressPollInterval = 40 * time.Millisecond
)

// handleTwilioStream upgrades to a WebSocket and pumps the webhook-stream
// media dialect, adapted from the teacher's SignalWire audio bridge
// readPump/writePump pair: one goroutine reads inbound media frames, the
// other polls the Egress Store and writes synthesized audio back out.
func (s *Server) handleTwilioStream(w http.ResponseWriter, r *http.Request) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sc := &streamConn{conn: conn, log: s.log, egress: s.egress}
	go sc.writePump()
	sc.readPump(s)
}

// streamConn owns one media-stream WebSocket's lifecycle.
type streamConn struct {
	conn   *websocket.Conn
	log    zerolog.Logger
	egress egressDequeuer

	mu        sync.Mutex
	closed    bool
	sessionID string
	streamSid string
}

// egressDequeuer is the subset of *egress.Store a streamConn needs,
// narrowed for testability.
type egressDequeuer interface {
	Dequeue(sessionID string) (session.TtsChunk, bool)
}

func (sc *streamConn) markSession(id, streamSid string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.sessionID = id
	sc.streamSid = streamSid
}

func (sc *streamConn) currentSession() (string, string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sessionID, sc.streamSid
}

func (sc *streamConn) close() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return
	}
	sc.closed = true
	_ = sc.conn.Close()
}

func (sc *streamConn) isClosed() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.closed
}

func (sc *streamConn) readPump(s *Server) {
	defer sc.close()

	sc.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	sc.conn.SetPingHandler(func(string) error {
		sc.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return sc.conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(5*time.Second))
	})

	for {
		_, raw, err := sc.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := ingress.ParseStreamMessage(raw)
		if err != nil {
			sc.log.Warn().Err(err).Msg("invalid stream message, ignoring")
			continue
		}
		sc.handleMessage(s, msg)
	}
}

func (sc *streamConn) handleMessage(s *Server, msg ingress.StreamMessage) {
	switch msg.Event {
	case "start":
		if msg.Start == nil {
			return
		}
		cs := s.store.GetByExternal(session.SourceWebhookStream, msg.Start.CallSid)
		if cs == nil {
			sc.log.Warn().Str("call_sid", msg.Start.CallSid).Msg("stream start for unknown call, dropping")
			return
		}
		sc.markSession(cs.ID, msg.Start.StreamSid)

	case "media":
		if msg.Media == nil {
			return
		}
		sessionID, _ := sc.currentSession()
		if sessionID == "" {
			return
		}
		frame, err := msg.Media.ToAudioFrame(sessionID, nowMs())
		if err != nil {
			sc.log.Warn().Err(err).Msg("invalid media payload, dropping frame")
			return
		}
		s.orch.OnAudioFrame(frame)

	case "stop":
		sessionID, _ := sc.currentSession()
		if sessionID == "" {
			return
		}
		s.orch.EndSession(sessionID)
		s.egress.Clear(sessionID)
	}
}

// writePump pings for keepalive and polls the Egress Store, writing any
// synthesized chunk back out as an outbound media message.
func (sc *streamConn) writePump() {
	pingTicker := time.NewTicker(streamPingInterval)
	pollTicker := time.NewTicker(streamEgressPollInterval)
	defer pingTicker.Stop()
	defer pollTicker.Stop()
	defer sc.close()

	for {
		select {
		case <-pingTicker.C:
			if err := sc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-pollTicker.C:
			if sc.isClosed() {
				return
			}
			sessionID, streamSid := sc.currentSession()
			if sessionID == "" {
				continue
			}
			chunk, ok := sc.egress.Dequeue(sessionID)
			if !ok {
				continue
			}
			payload, err := streamConverter.Convert(chunk.Payload, audio.Encoding(chunk.Encoding), audio.EncodingMulaw)
			if err != nil {
				sc.log.Warn().Err(err).Msg("failed to convert tts chunk to wire format, dropping")
				continue
			}
			raw, err := ingress.OutboundMediaMessage(streamSid, payload)
			if err != nil {
				continue
			}
			if err := sc.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		}
	}
}
