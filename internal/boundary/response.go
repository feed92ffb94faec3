package boundary

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// writeJSON serializes data as JSON. A nil data writes only the status.
func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// writeError writes the spec's flat {"error": "..."} shape (§4.6, §7).
func writeError(w http.ResponseWriter, log zerolog.Logger, status int, code string) {
	writeJSON(w, log, status, map[string]string{"error": code})
}
