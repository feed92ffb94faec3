// Package stub ships default STT/MT/TTS implementations that do not call
// an external vendor, used when no provider credentials are configured.
package stub

import (
	"strings"
	"sync"

	"github.com/birddigital/voicebridge/internal/session"
)

// SttProvider buffers inbound audio per session and emits a fixed
// transcript once enough audio has accumulated. This demonstrates the
// stateful-buffering variant permitted (not required) by spec §9; the
// interface contract still tolerates long runs of nil returns.
type SttProvider struct {
	text           string
	flushThreshold int // bytes of buffered audio before a transcript is emitted

	mu      sync.Mutex
	buffers map[string]int
}

// NewSttProvider builds a buffering stub that emits text once
// flushThreshold bytes of audio have been seen for a session.
func NewSttProvider(text string, flushThreshold int) *SttProvider {
	if flushThreshold <= 0 {
		flushThreshold = 1600 // 50ms at 16kHz mono 16-bit
	}
	return &SttProvider{text: text, flushThreshold: flushThreshold, buffers: make(map[string]int)}
}

func (p *SttProvider) Name() string { return "stub-stt" }

func (p *SttProvider) Transcribe(frame session.AudioFrame) (*session.TranscriptionChunk, error) {
	p.mu.Lock()
	p.buffers[frame.SessionID] += len(frame.Payload)
	accumulated := p.buffers[frame.SessionID]
	if accumulated < p.flushThreshold {
		p.mu.Unlock()
		return nil, nil
	}
	p.buffers[frame.SessionID] = 0
	p.mu.Unlock()

	text := strings.TrimSpace(p.text)
	if text == "" {
		return nil, nil
	}
	return &session.TranscriptionChunk{
		SessionID:   frame.SessionID,
		Text:        text,
		IsFinal:     true,
		Language:    session.LanguageES,
		TimestampMs: frame.TimestampMs,
	}, nil
}
