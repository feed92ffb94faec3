package stub

import (
	"github.com/birddigital/voicebridge/internal/audio"
	"github.com/birddigital/voicebridge/internal/session"
)

// silentPCM16Frame is 20ms of PCM16 silence at the pipeline's canonical
// 16kHz rate (320 samples * 2 bytes, all zero).
var silentPCM16Frame = make([]byte, 640)

// TtsProvider emits a tiny silent payload, per spec §4.3's "fallback
// stubs are permitted (emit tiny silent payloads) to allow smoke tests
// without cloud credentials." It synthesizes directly in the pipeline's
// canonical pcm_s16le/16000 format (spec.md §8 Scenario S1 Request C),
// the same format ingress adapters normalize inbound audio to.
type TtsProvider struct{}

func NewTtsProvider() *TtsProvider {
	return &TtsProvider{}
}

func (p *TtsProvider) Name() string { return "stub-tts" }

func (p *TtsProvider) Synthesize(chunk session.TranslationChunk) (*session.TtsChunk, error) {
	return &session.TtsChunk{
		SessionID:    chunk.SessionID,
		Encoding:     string(audio.EncodingPCM16),
		SampleRateHz: audio.PCMSampleRateHz,
		Payload:      silentPCM16Frame,
		TimestampMs:  chunk.TimestampMs,
	}, nil
}
