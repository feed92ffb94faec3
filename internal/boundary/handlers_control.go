package boundary

import (
	"encoding/json"
	"net/http"

	"github.com/birddigital/voicebridge/internal/eventbridge"
	"github.com/birddigital/voicebridge/internal/session"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, http.StatusOK, map[string]string{"status": "ready"})
}

// handleSessions is GET /sessions: a snapshot of all sessions.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, http.StatusOK, s.store.All())
}

// handleMetrics is GET /metrics: the JSON snapshot of all per-session
// metrics, distinct from the Prometheus exposition at /internal/metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, http.StatusOK, s.store.AllMetrics())
}

type controlRequest struct {
	SessionID      string  `json:"sessionId"`
	Mode           *string `json:"mode,omitempty"`
	SourceLanguage *string `json:"sourceLanguage,omitempty"`
	TargetLanguage *string `json:"targetLanguage,omitempty"`
}

var validModes = map[string]bool{string(session.ModePrivateTranslation): true, string(session.ModePassthrough): true}
var validLanguages = map[string]bool{string(session.LanguageEN): true, string(session.LanguageES): true}

// handleSessionsControl is POST /sessions/control: a mode/language patch.
func (s *Server) handleSessionsControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, s.log, http.StatusBadRequest, "invalid_payload")
		return
	}

	patch := session.ControlPatch{}
	if req.Mode != nil {
		if !validModes[*req.Mode] {
			writeError(w, s.log, http.StatusBadRequest, "invalid_payload")
			return
		}
		mode := session.SessionMode(*req.Mode)
		patch.Mode = &mode
	}
	if req.SourceLanguage != nil {
		if !validLanguages[*req.SourceLanguage] {
			writeError(w, s.log, http.StatusBadRequest, "invalid_payload")
			return
		}
		lang := session.LanguageCode(*req.SourceLanguage)
		patch.SourceLanguage = &lang
	}
	if req.TargetLanguage != nil {
		if !validLanguages[*req.TargetLanguage] {
			writeError(w, s.log, http.StatusBadRequest, "invalid_payload")
			return
		}
		lang := session.LanguageCode(*req.TargetLanguage)
		patch.TargetLanguage = &lang
	}

	cs := s.orch.UpdateSessionControl(req.SessionID, patch)
	if cs == nil {
		writeError(w, s.log, http.StatusNotFound, "unknown_session")
		return
	}
	writeJSON(w, s.log, http.StatusOK, cs)
}

type commandRequest struct {
	Text    string         `json:"text"`
	Context map[string]any `json:"context,omitempty"`
}

// handleOpenclawCommand is POST /openclaw/command: relays a free-form
// operator command to the External Event Bridge.
func (s *Server) handleOpenclawCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, s.log, http.StatusBadRequest, "invalid_payload")
		return
	}

	s.bridge.SendCommand(eventbridge.Command{Text: req.Text, Context: req.Context})
	writeJSON(w, s.log, http.StatusAccepted, map[string]bool{"accepted": true})
}
