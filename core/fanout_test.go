package core

import (
	"context"
	"testing"

	"pkt.systems/snipforge/schema"
)

func TestSinkFanoutForwardsInOrder(t *testing.T) {
	first := &recordSink{}
	second := &recordSink{}
	fan := NewSinkFanout(first, nil, second)

	fan.OnPreviewSuspend()
	fan.OnTranscript(schema.TranscriptEntry{Role: "user", Text: "hi"})
	fan.OnQuotaUpdated(3)
	fan.OnTemplateCommit(schema.Template{ID: "t1"}, true)
	fan.OnDone("done")
	fan.OnError(schema.NewSessionError(schema.KindNetwork, "boom"))
	fan.OnCancelled()
	fan.OnPreviewResume()

	for i, sink := range []*recordSink{first, second} {
		if sink.suspends != 1 || sink.resumes != 1 {
			t.Fatalf("sink %d suspend/resume mismatch: %d/%d", i, sink.suspends, sink.resumes)
		}
		if len(sink.transcript) != 1 || sink.transcript[0].Text != "hi" {
			t.Fatalf("sink %d transcript mismatch: %+v", i, sink.transcript)
		}
		if len(sink.quota) != 1 || sink.quota[0] != 3 {
			t.Fatalf("sink %d quota mismatch: %v", i, sink.quota)
		}
		if len(sink.commits) != 1 || sink.commits[0].ID != "t1" {
			t.Fatalf("sink %d commit mismatch: %v", i, sink.commits)
		}
		if len(sink.done) != 1 || len(sink.errs) != 1 || sink.cancellings != 1 {
			t.Fatalf("sink %d terminal mismatch: %d/%d/%d", i, len(sink.done), len(sink.errs), sink.cancellings)
		}
	}
}

func TestSessionFansOutToEverySink(t *testing.T) {
	ui := &recordSink{}
	audit := &recordSink{}
	buf := NewMemoryBuffer()
	orch, err := NewOrchestrator(testConfig(), OrchestratorDeps{
		Transport: &scriptedTransport{body: successStream},
		Buffer:    buf,
		Sink:      NewSinkFanout(ui, audit),
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	session, err := orch.Start(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, session)

	if len(ui.done) != 1 || len(audit.done) != 1 {
		t.Fatalf("both sinks must see done: %d/%d", len(ui.done), len(audit.done))
	}
	if ui.terminalCount() != 1 || audit.terminalCount() != 1 {
		t.Fatalf("terminal notifications must be exactly once per sink: %d/%d",
			ui.terminalCount(), audit.terminalCount())
	}
}
