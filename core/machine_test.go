package core

import (
	"testing"

	"pkt.systems/snipforge/schema"
)

func kinds(effects []Effect) []EffectKind {
	out := make([]EffectKind, len(effects))
	for i, e := range effects {
		out[i] = e.Kind
	}
	return out
}

func sameKinds(got []Effect, want []EffectKind) bool {
	if len(got) != len(want) {
		return false
	}
	for i, k := range kinds(got) {
		if k != want[i] {
			return false
		}
	}
	return true
}

func TestTransitionCodeStart(t *testing.T) {
	next, effects := Transition(StateConnecting, schema.StreamEvent{Type: schema.EventCodeStart})
	if next != StateStreaming {
		t.Fatalf("expected streaming, got %v", next)
	}
	want := []EffectKind{EffectSuspendPreview, EffectSnapshotCursor, EffectClearBuffer}
	if !sameKinds(effects, want) {
		t.Fatalf("unexpected effects: %v", kinds(effects))
	}
}

func TestTransitionCodeStartOnlyFromConnecting(t *testing.T) {
	for _, state := range []SessionState{StateStreaming, StateFinalizing} {
		next, effects := Transition(state, schema.StreamEvent{Type: schema.EventCodeStart})
		if next != state || len(effects) != 0 {
			t.Fatalf("code-start in %v: got %v with %d effects", state, next, len(effects))
		}
	}
}

func TestTransitionChunkRequiresStreaming(t *testing.T) {
	next, effects := Transition(StateConnecting, schema.StreamEvent{Type: schema.EventCodeChunk, Chunk: "x"})
	if next != StateConnecting || len(effects) != 0 {
		t.Fatalf("chunk before code-start must be dropped, got %v with %d effects", next, len(effects))
	}

	next, effects = Transition(StateStreaming, schema.StreamEvent{Type: schema.EventCodeChunk, Chunk: "abc"})
	if next != StateStreaming {
		t.Fatalf("expected streaming, got %v", next)
	}
	if len(effects) != 1 || effects[0].Kind != EffectAppendChunk || effects[0].Text != "abc" {
		t.Fatalf("unexpected effects: %+v", effects)
	}
}

func TestTransitionCodeComplete(t *testing.T) {
	next, effects := Transition(StateStreaming, schema.StreamEvent{Type: schema.EventCodeComplete})
	if next != StateFinalizing {
		t.Fatalf("expected finalizing, got %v", next)
	}
	if !sameKinds(effects, []EffectKind{EffectDrainSink, EffectFormat}) {
		t.Fatalf("unexpected effects: %v", kinds(effects))
	}
}

func TestTransitionDoneFromStreamingDrainsFirst(t *testing.T) {
	remaining := 7
	next, effects := Transition(StateStreaming, schema.StreamEvent{
		Type:      schema.EventDone,
		Message:   "done!",
		Code:      "<html></html>",
		Remaining: &remaining,
	})
	if next != StateCompleted {
		t.Fatalf("expected completed, got %v", next)
	}
	if !sameKinds(effects, []EffectKind{EffectDrainSink, EffectCommit}) {
		t.Fatalf("unexpected effects: %v", kinds(effects))
	}
	commit := effects[1]
	if commit.Text != "done!" || commit.Code != "<html></html>" {
		t.Fatalf("commit lost payload: %+v", commit)
	}
	if commit.Remaining == nil || *commit.Remaining != 7 {
		t.Fatalf("commit lost remaining: %+v", commit.Remaining)
	}
}

func TestTransitionDoneFromFinalizingSkipsDrain(t *testing.T) {
	next, effects := Transition(StateFinalizing, schema.StreamEvent{Type: schema.EventDone, Message: "ok"})
	if next != StateCompleted {
		t.Fatalf("expected completed, got %v", next)
	}
	if !sameKinds(effects, []EffectKind{EffectCommit}) {
		t.Fatalf("unexpected effects: %v", kinds(effects))
	}
}

func TestTransitionDoneWithoutCodeStart(t *testing.T) {
	// A done straight from connecting still completes; the buffer was never
	// cleared, so the only effect is the commit.
	next, effects := Transition(StateConnecting, schema.StreamEvent{Type: schema.EventDone, Message: "nothing to do"})
	if next != StateCompleted {
		t.Fatalf("expected completed, got %v", next)
	}
	if !sameKinds(effects, []EffectKind{EffectCommit}) {
		t.Fatalf("unexpected effects: %v", kinds(effects))
	}
}

func TestTransitionMessageComplete(t *testing.T) {
	next, effects := Transition(StateFinalizing, schema.StreamEvent{Type: schema.EventMessageComplete, Message: "summary"})
	if next != StateFinalizing {
		t.Fatalf("expected finalizing, got %v", next)
	}
	if len(effects) != 1 || effects[0].Kind != EffectTranscriptPending || effects[0].Text != "summary" {
		t.Fatalf("unexpected effects: %+v", effects)
	}
	next, effects = Transition(StateConnecting, schema.StreamEvent{Type: schema.EventMessageComplete, Message: "early"})
	if next != StateConnecting || len(effects) != 0 {
		t.Fatalf("message-complete before streaming must be dropped")
	}
}

func TestTransitionErrorEvent(t *testing.T) {
	next, effects := Transition(StateStreaming, schema.StreamEvent{
		Type:      schema.EventError,
		Error:     "password expired",
		ErrorCode: schema.WireCodePasswordExpired,
	})
	if next != StateFailed {
		t.Fatalf("expected failed, got %v", next)
	}
	if len(effects) != 1 || effects[0].Kind != EffectFail {
		t.Fatalf("unexpected effects: %+v", effects)
	}
	err := effects[0].Err
	if err == nil || err.Kind != schema.KindUnauthorized || err.Message != "password expired" {
		t.Fatalf("unexpected error: %+v", err)
	}
}

func TestTransitionRateLimitForcesZeroRemaining(t *testing.T) {
	_, effects := Transition(StateConnecting, schema.StreamEvent{
		Type:      schema.EventError,
		Error:     "no uses left",
		ErrorCode: schema.WireCodeRateLimited,
	})
	err := effects[0].Err
	if err.Kind != schema.KindRateLimited {
		t.Fatalf("unexpected kind: %v", err.Kind)
	}
	if err.RemainingUses == nil || *err.RemainingUses != 0 {
		t.Fatalf("rate limit without count must force zero, got %+v", err.RemainingUses)
	}
}

func TestTransitionErrorKeepsExplicitRemaining(t *testing.T) {
	three := 3
	_, effects := Transition(StateStreaming, schema.StreamEvent{
		Type:          schema.EventError,
		Error:         "provider failed",
		ErrorCode:     schema.WireCodeProviderFailed,
		RemainingUses: &three,
	})
	err := effects[0].Err
	if err.Kind != schema.KindServerFault {
		t.Fatalf("unexpected kind: %v", err.Kind)
	}
	if err.RemainingUses == nil || *err.RemainingUses != 3 {
		t.Fatalf("explicit remaining lost: %+v", err.RemainingUses)
	}
}

func TestTransitionTerminalStatesAbsorb(t *testing.T) {
	for _, state := range []SessionState{StateCompleted, StateFailed, StateCancelled} {
		for _, eventType := range []schema.EventType{
			schema.EventCodeStart, schema.EventCodeChunk, schema.EventDone, schema.EventError,
		} {
			next, effects := Transition(state, schema.StreamEvent{Type: eventType})
			if next != state || len(effects) != 0 {
				t.Fatalf("%v in %v must be absorbed, got %v with %d effects", eventType, state, next, len(effects))
			}
		}
	}
}
