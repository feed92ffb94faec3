// Package provider declares the narrow STT/MT/TTS capability interfaces
// the Voice Orchestrator depends on. Concrete vendor adapters are out of
// scope for this repo (spec §1); see provider/stub for the default
// implementations used for smoke tests and local runs.
package provider

import "github.com/birddigital/voicebridge/internal/session"

// SttProvider transcribes audio frames. A nil chunk means "no transcript
// for this frame" (silence, partial below threshold) — not an error.
type SttProvider interface {
	Name() string
	Transcribe(frame session.AudioFrame) (*session.TranscriptionChunk, error)
}

// TranslationProvider translates a transcript. A nil chunk means the
// translator declined (empty input, rate-limited, or a failure surfaced
// as a skip rather than an error).
type TranslationProvider interface {
	Name() string
	Translate(chunk session.TranscriptionChunk) (*session.TranslationChunk, error)
}

// TtsProvider synthesizes translated text to audio.
type TtsProvider interface {
	Name() string
	Synthesize(chunk session.TranslationChunk) (*session.TtsChunk, error)
}

// TargetLanguage implements the cross-language policy from spec §4.3: if
// the transcript is Spanish the target is English, otherwise Spanish.
func TargetLanguage(source session.LanguageCode) session.LanguageCode {
	if source == session.LanguageES {
		return session.LanguageEN
	}
	return session.LanguageES
}
