package ingress

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/birddigital/voicebridge/internal/audio"
	"github.com/birddigital/voicebridge/internal/session"
)

// VoiceWebhookForm is the form-encoded payload a cloud telephony provider
// POSTs when a call is answered (Twilio/SignalWire "voice webhook" shape).
type VoiceWebhookForm struct {
	CallSid string
	From    string
	To      string
}

// ParseVoiceWebhookForm extracts the fields this gateway cares about from a
// decoded application/x-www-form-urlencoded body.
func ParseVoiceWebhookForm(values map[string][]string) (VoiceWebhookForm, error) {
	get := func(key string) string {
		if v, ok := values[key]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}
	form := VoiceWebhookForm{CallSid: get("CallSid"), From: get("From"), To: get("To")}
	if form.CallSid == "" {
		return form, fmt.Errorf("CallSid is required")
	}
	if form.From == "" {
		return form, fmt.Errorf("From is required")
	}
	if form.To == "" {
		return form, fmt.Errorf("To is required")
	}
	return form, nil
}

// ToIncomingCallEvent maps a validated webhook form to the canonical event.
func (f VoiceWebhookForm) ToIncomingCallEvent(receivedAtMs int64) session.IncomingCallEvent {
	return session.IncomingCallEvent{
		Source:         session.SourceWebhookStream,
		ExternalCallID: f.CallSid,
		From:           f.From,
		To:             f.To,
		ReceivedAtMs:   receivedAtMs,
	}
}

// DialInstructionXML builds the TwiML-style response instructing the
// provider to dial outboundTarget, per spec §4.6/scenario S2. When streamURL
// is non-empty, a Start/Stream verb precedes the Dial so the provider also
// opens the bidirectional media stream this gateway reads/writes over
// WS /twilio/stream; when it is empty, only the Dial is emitted.
func DialInstructionXML(outboundTarget, streamURL string) string {
	if streamURL == "" {
		return fmt.Sprintf(
			`<?xml version="1.0" encoding="UTF-8"?><Response><Dial>%s</Dial></Response>`,
			outboundTarget,
		)
	}
	return fmt.Sprintf(
		`<?xml version="1.0" encoding="UTF-8"?><Response><Start><Stream url="%s"/></Start><Dial>%s</Dial></Response>`,
		streamURL, outboundTarget,
	)
}

// StreamMessage is the JSON shape of a media-stream WebSocket frame,
// discriminated by Event.
type StreamMessage struct {
	Event     string          `json:"event"`
	StreamSid string          `json:"streamSid,omitempty"`
	Start     *StreamStart    `json:"start,omitempty"`
	Media     *StreamMedia    `json:"media,omitempty"`
}

type StreamStart struct {
	CallSid   string `json:"callSid"`
	StreamSid string `json:"streamSid"`
}

type StreamMedia struct {
	Track     string `json:"track"`
	Payload   string `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// ParseStreamMessage unmarshals a raw WebSocket text frame.
func ParseStreamMessage(raw []byte) (StreamMessage, error) {
	var msg StreamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("invalid stream message: %w", err)
	}
	switch msg.Event {
	case "connected", "start", "media", "stop":
	default:
		return msg, fmt.Errorf("unknown stream event %q", msg.Event)
	}
	return msg, nil
}

// ToAudioFrame decodes a "media" message's base64 payload. Webhook-stream
// media is always 8kHz mulaw on the wire (spec §4.6); it is normalized to
// the pipeline's canonical PCM16 16kHz here, same as the SIP-bridge path.
func (m StreamMedia) ToAudioFrame(sessionID string, fallbackTimestampMs int64) (session.AudioFrame, error) {
	raw, err := base64.StdEncoding.DecodeString(m.Payload)
	if err != nil {
		return session.AudioFrame{}, fmt.Errorf("media payload is not valid base64: %w", err)
	}
	payload, err := converter.MulawToPCM16(raw)
	if err != nil {
		return session.AudioFrame{}, fmt.Errorf("normalizing mulaw frame: %w", err)
	}
	return session.AudioFrame{
		SessionID:    sessionID,
		Source:       session.SourceWebhookStream,
		SampleRateHz: audio.PCMSampleRateHz,
		Encoding:     string(audio.EncodingPCM16),
		TimestampMs:  fallbackTimestampMs,
		Payload:      payload,
	}, nil
}

// OutboundMediaMessage builds the JSON frame carrying a synthesized TTS
// chunk back out over the media-stream WebSocket.
func OutboundMediaMessage(streamSid string, payload []byte) ([]byte, error) {
	msg := map[string]any{
		"event": "media",
		"media": map[string]any{
			"track":   "outbound",
			"payload": base64.StdEncoding.EncodeToString(payload),
		},
	}
	if streamSid != "" {
		msg["streamSid"] = streamSid
	}
	return json.Marshal(msg)
}
