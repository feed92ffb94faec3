package stub

import (
	"testing"

	"github.com/birddigital/voicebridge/internal/session"
)

func TestSttProviderBuffersUntilThreshold(t *testing.T) {
	p := NewSttProvider("hola mundo", 100)

	chunk, err := p.Transcribe(session.AudioFrame{SessionID: "s1", Payload: make([]byte, 50)})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if chunk != nil {
		t.Fatal("expected nil before threshold reached")
	}

	chunk, err = p.Transcribe(session.AudioFrame{SessionID: "s1", Payload: make([]byte, 60)})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if chunk == nil {
		t.Fatal("expected a transcript once threshold is crossed")
	}
	if chunk.Text != "hola mundo" {
		t.Errorf("unexpected text: %q", chunk.Text)
	}
}

func TestSttProviderBuffersPerSessionIndependently(t *testing.T) {
	p := NewSttProvider("hi", 100)
	p.Transcribe(session.AudioFrame{SessionID: "a", Payload: make([]byte, 90)})

	chunk, _ := p.Transcribe(session.AudioFrame{SessionID: "b", Payload: make([]byte, 90)})
	if chunk != nil {
		t.Fatal("session b should not inherit session a's accumulated buffer")
	}
}

func TestTranslationProviderAppliesCrossLanguagePolicy(t *testing.T) {
	p := NewTranslationProvider()

	es, err := p.Translate(session.TranscriptionChunk{Text: "hola", Language: session.LanguageES})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if es.TargetLanguage != session.LanguageEN {
		t.Errorf("expected es->en, got target %s", es.TargetLanguage)
	}

	en, err := p.Translate(session.TranscriptionChunk{Text: "hello", Language: session.LanguageEN})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if en.TargetLanguage != session.LanguageES {
		t.Errorf("expected en->es, got target %s", en.TargetLanguage)
	}
}

func TestTranslationProviderDeclinesEmptyInput(t *testing.T) {
	p := NewTranslationProvider()
	chunk, err := p.Translate(session.TranscriptionChunk{Text: "   "})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if chunk != nil {
		t.Fatal("expected nil for whitespace-only input")
	}
}

func TestTtsProviderEmitsSilentPayload(t *testing.T) {
	p := NewTtsProvider()
	chunk, err := p.Synthesize(session.TranslationChunk{Text: "[en] hola"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(chunk.Payload) == 0 {
		t.Fatal("expected non-empty silent payload")
	}
	if chunk.Encoding != "pcm_s16le" || chunk.SampleRateHz != 16000 {
		t.Errorf("unexpected format: %s @ %d", chunk.Encoding, chunk.SampleRateHz)
	}
}
