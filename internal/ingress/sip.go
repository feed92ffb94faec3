// Package ingress parses and validates the two telephony ingress
// dialects (SIP-bridge JSON-over-HTTP, webhook-stream form+WebSocket) and
// maps them onto the canonical session events/frames the Orchestrator
// understands. No networking lives here; internal/boundary owns that.
package ingress

import (
	"encoding/base64"
	"fmt"

	"github.com/birddigital/voicebridge/internal/audio"
	"github.com/birddigital/voicebridge/internal/session"
)

// converter normalizes inbound mulaw frames from either dialect to the
// pipeline's canonical PCM16 16kHz format; pcm_s16le frames are passed on
// at their own sample rate without conversion. Stateless, safe for
// concurrent use.
var converter = audio.NewConverter()

// SIPInboundRequest is the handshake payload for POST /asterisk/inbound.
type SIPInboundRequest struct {
	CallID string `json:"callId"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// Validate checks required fields are present.
func (r SIPInboundRequest) Validate() error {
	if r.CallID == "" {
		return fmt.Errorf("callId is required")
	}
	if r.From == "" {
		return fmt.Errorf("from is required")
	}
	if r.To == "" {
		return fmt.Errorf("to is required")
	}
	return nil
}

// ToIncomingCallEvent maps a validated request to the canonical event.
func (r SIPInboundRequest) ToIncomingCallEvent(receivedAtMs int64) session.IncomingCallEvent {
	return session.IncomingCallEvent{
		Source:         session.SourceSIPBridge,
		ExternalCallID: r.CallID,
		From:           r.From,
		To:             r.To,
		ReceivedAtMs:   receivedAtMs,
	}
}

// SIPMediaFrameRequest is the payload for POST /asterisk/media.
type SIPMediaFrameRequest struct {
	CallID       string `json:"callId"`
	SampleRateHz int    `json:"sampleRateHz"`
	Encoding     string `json:"encoding"`
	PayloadB64   string `json:"payloadBase64"`
	TimestampMs  *int64 `json:"timestampMs,omitempty"`
}

var validEncodings = map[string]bool{"pcm_s16le": true, "mulaw": true}

func (r SIPMediaFrameRequest) Validate() error {
	if r.CallID == "" {
		return fmt.Errorf("callId is required")
	}
	if r.SampleRateHz <= 0 {
		return fmt.Errorf("sampleRateHz must be positive")
	}
	if !validEncodings[r.Encoding] {
		return fmt.Errorf("encoding must be one of pcm_s16le, mulaw")
	}
	if r.PayloadB64 == "" {
		return fmt.Errorf("payloadBase64 is required")
	}
	if _, err := base64.StdEncoding.DecodeString(r.PayloadB64); err != nil {
		return fmt.Errorf("payloadBase64 is not valid base64: %w", err)
	}
	return nil
}

// ToAudioFrame decodes the payload, normalizes it to PCM16 16kHz when the
// PBX captured mulaw, and maps to the canonical frame. The caller has
// already resolved sessionID by (sip-bridge, callId).
func (r SIPMediaFrameRequest) ToAudioFrame(sessionID string, fallbackTimestampMs int64) (session.AudioFrame, error) {
	payload, err := base64.StdEncoding.DecodeString(r.PayloadB64)
	if err != nil {
		return session.AudioFrame{}, err
	}

	encoding := r.Encoding
	sampleRateHz := r.SampleRateHz
	if audio.Encoding(r.Encoding) == audio.EncodingMulaw {
		payload, err = converter.MulawToPCM16(payload)
		if err != nil {
			return session.AudioFrame{}, fmt.Errorf("normalizing mulaw frame: %w", err)
		}
		encoding = string(audio.EncodingPCM16)
		sampleRateHz = audio.PCMSampleRateHz
	}

	ts := fallbackTimestampMs
	if r.TimestampMs != nil {
		ts = *r.TimestampMs
	}
	return session.AudioFrame{
		SessionID:    sessionID,
		Source:       session.SourceSIPBridge,
		SampleRateHz: sampleRateHz,
		Encoding:     encoding,
		TimestampMs:  ts,
		Payload:      payload,
	}, nil
}

// SIPEndRequest accepts either {callId, source} or {sessionId}.
type SIPEndRequest struct {
	CallID    string `json:"callId,omitempty"`
	Source    string `json:"source,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

func (r SIPEndRequest) Validate() error {
	if r.SessionID == "" && r.CallID == "" {
		return fmt.Errorf("either sessionId or callId is required")
	}
	return nil
}
