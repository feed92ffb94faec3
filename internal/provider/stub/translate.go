package stub

import (
	"fmt"
	"strings"

	"github.com/birddigital/voicebridge/internal/provider"
	"github.com/birddigital/voicebridge/internal/session"
)

// TranslationProvider applies the spec's fixed cross-language policy and
// performs a trivial, reversible transformation so tests can assert that
// translation actually ran without a real MT vendor.
type TranslationProvider struct{}

func NewTranslationProvider() *TranslationProvider {
	return &TranslationProvider{}
}

func (p *TranslationProvider) Name() string { return "stub-mt" }

func (p *TranslationProvider) Translate(chunk session.TranscriptionChunk) (*session.TranslationChunk, error) {
	text := strings.TrimSpace(chunk.Text)
	if text == "" {
		return nil, nil
	}
	target := provider.TargetLanguage(chunk.Language)

	return &session.TranslationChunk{
		SessionID:      chunk.SessionID,
		Text:           fmt.Sprintf("[%s] %s", target, text),
		SourceLanguage: chunk.Language,
		TargetLanguage: target,
		TimestampMs:    chunk.TimestampMs,
	}, nil
}
