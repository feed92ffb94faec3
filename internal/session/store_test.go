package session

import "testing"

func TestCreateFromIncomingSetsDefaults(t *testing.T) {
	s := NewStore()
	cs := s.CreateFromIncoming(IncomingCallEvent{
		Source:         SourceSIPBridge,
		ExternalCallID: "sip-1",
		From:           "+15550000001",
		To:             "+18005550199",
		ReceivedAtMs:   1000,
	}, "+15555550100")

	if cs.State != StatePending {
		t.Errorf("expected initial state pending, got %s", cs.State)
	}
	if cs.Mode != ModePrivateTranslation {
		t.Errorf("expected default mode private-translation, got %s", cs.Mode)
	}
	if cs.SourceLanguage != LanguageES || cs.TargetLanguage != LanguageEN {
		t.Errorf("expected default es->en, got %s->%s", cs.SourceLanguage, cs.TargetLanguage)
	}
}

func TestGetByExternalNamespacesBySource(t *testing.T) {
	s := NewStore()
	s.CreateFromIncoming(IncomingCallEvent{Source: SourceSIPBridge, ExternalCallID: "same-id"}, "+15555550100")

	if s.GetByExternal(SourceWebhookStream, "same-id") != nil {
		t.Fatal("expected no cross-source collision")
	}
	if s.GetByExternal(SourceSIPBridge, "same-id") == nil {
		t.Fatal("expected session to resolve within its own source namespace")
	}
}

func TestStateTransitionsAreMonotonic(t *testing.T) {
	s := NewStore()
	cs := s.CreateFromIncoming(IncomingCallEvent{Source: SourceSIPBridge, ExternalCallID: "sip-2"}, "+15555550100")

	s.UpdateState(cs.ID, StateActive)
	s.UpdateState(cs.ID, StateEnded)
	updated := s.UpdateState(cs.ID, StateActive) // resurrection attempt must be ignored

	if updated.State != StateEnded {
		t.Fatalf("expected terminal state to stick, got %s", updated.State)
	}

	// Endsession idempotence: calling end again keeps it ended.
	again := s.UpdateState(cs.ID, StateEnded)
	if again.State != StateEnded {
		t.Fatalf("expected ended to remain ended, got %s", again.State)
	}
}

func TestUpdateControlHasNoEffectOnceEnded(t *testing.T) {
	s := NewStore()
	cs := s.CreateFromIncoming(IncomingCallEvent{Source: SourceSIPBridge, ExternalCallID: "sip-3"}, "+15555550100")
	s.UpdateState(cs.ID, StateEnded)

	passthrough := ModePassthrough
	updated := s.UpdateControl(cs.ID, ControlPatch{Mode: &passthrough})
	if updated.Mode != ModePrivateTranslation {
		t.Fatalf("expected control patch to be a no-op once ended, got mode %s", updated.Mode)
	}
}

func TestMetricsCreatedLazilyAndPersist(t *testing.T) {
	s := NewStore()
	cs := s.CreateFromIncoming(IncomingCallEvent{Source: SourceSIPBridge, ExternalCallID: "sip-4"}, "+15555550100")

	m := s.Metrics(cs.ID)
	m.DroppedFrames++

	again := s.Metrics(cs.ID)
	if again.DroppedFrames != 1 {
		t.Fatalf("expected metrics to persist across Metrics() calls, got %d", again.DroppedFrames)
	}
}

func TestAllReturnsSnapshotNotLiveReferences(t *testing.T) {
	s := NewStore()
	s.CreateFromIncoming(IncomingCallEvent{Source: SourceSIPBridge, ExternalCallID: "sip-5"}, "+15555550100")

	all := s.All()
	if len(all) != 1 {
		t.Fatalf("expected 1 session, got %d", len(all))
	}
	all[0].Mode = ModePassthrough // mutating the snapshot must not affect the store

	fresh := s.All()
	if fresh[0].Mode != ModePrivateTranslation {
		t.Fatal("expected store session to be unaffected by snapshot mutation")
	}
}
