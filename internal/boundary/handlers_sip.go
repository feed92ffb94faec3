package boundary

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/birddigital/voicebridge/internal/ingress"
	"github.com/birddigital/voicebridge/internal/session"
)

func nowMs() int64 { return time.Now().UnixMilli() }

// handleAsteriskInbound is the SIP-bridge handshake, spec §4.6/§4.7.
func (s *Server) handleAsteriskInbound(w http.ResponseWriter, r *http.Request) {
	var req ingress.SIPInboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.log, http.StatusBadRequest, "invalid_payload")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, s.log, http.StatusBadRequest, "invalid_payload")
		return
	}

	cs := s.orch.OnIncomingCall(req.ToIncomingCallEvent(nowMs()))
	writeJSON(w, s.log, http.StatusOK, map[string]string{
		"sessionId":  cs.ID,
		"dialTarget": cs.OutboundTarget,
	})
}

// handleAsteriskMedia is the SIP-bridge media-frame ingest.
func (s *Server) handleAsteriskMedia(w http.ResponseWriter, r *http.Request) {
	var req ingress.SIPMediaFrameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.log, http.StatusBadRequest, "invalid_payload")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, s.log, http.StatusBadRequest, "invalid_payload")
		return
	}

	cs := s.store.GetByExternal(session.SourceSIPBridge, req.CallID)
	if cs == nil {
		writeError(w, s.log, http.StatusNotFound, "unknown_session")
		return
	}

	frame, err := req.ToAudioFrame(cs.ID, nowMs())
	if err != nil {
		writeError(w, s.log, http.StatusBadRequest, "invalid_payload")
		return
	}

	s.orch.OnAudioFrame(frame)
	writeJSON(w, s.log, http.StatusAccepted, map[string]any{
		"accepted":  true,
		"sessionId": cs.ID,
	})
}

// handleAsteriskEgressNext is the SIP-bridge egress poll.
func (s *Server) handleAsteriskEgressNext(w http.ResponseWriter, r *http.Request) {
	callID := r.URL.Query().Get("callId")
	src := r.URL.Query().Get("source")
	if callID == "" || src == "" {
		writeError(w, s.log, http.StatusBadRequest, "invalid_payload")
		return
	}

	cs := s.store.GetByExternal(session.IngressSource(src), callID)
	if cs == nil {
		writeError(w, s.log, http.StatusNotFound, "unknown_session")
		return
	}

	chunk, ok := s.egress.Dequeue(cs.ID)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, s.log, http.StatusOK, map[string]any{
		"sessionId":       cs.ID,
		"encoding":        chunk.Encoding,
		"sampleRateHz":    chunk.SampleRateHz,
		"timestampMs":     chunk.TimestampMs,
		"payloadBase64":   base64.StdEncoding.EncodeToString(chunk.Payload),
		"remainingQueue":  s.egress.Size(cs.ID),
	})
}

// handleAsteriskEnd is the SIP-bridge end-of-call notification.
func (s *Server) handleAsteriskEnd(w http.ResponseWriter, r *http.Request) {
	var req ingress.SIPEndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.log, http.StatusBadRequest, "invalid_payload")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, s.log, http.StatusBadRequest, "invalid_payload")
		return
	}

	var cs *session.CallSession
	if req.SessionID != "" {
		cs = s.store.Get(req.SessionID)
	} else {
		src := req.Source
		if src == "" {
			src = string(session.SourceSIPBridge)
		}
		cs = s.store.GetByExternal(session.IngressSource(src), req.CallID)
	}
	if cs == nil {
		writeError(w, s.log, http.StatusNotFound, "unknown_session")
		return
	}

	s.orch.EndSession(cs.ID)
	s.egress.Clear(cs.ID)
	writeJSON(w, s.log, http.StatusOK, map[string]string{"sessionId": cs.ID})
}
