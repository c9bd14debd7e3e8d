package persist

import (
	"context"
	"errors"
	"testing"

	"pkt.systems/snipforge/schema"
)

func TestLoadMiss(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, found, err := store.Load("nobody")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found {
		t.Fatalf("fresh visitor must have no snapshot")
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	visitor := schema.VisitorID("v1")
	snapshot := WorkspaceSnapshot{
		ActiveTemplate: "t1",
		Templates: []schema.Template{
			{ID: "t1", Name: "Clock", Code: "<html></html>"},
		},
		Transcript: []schema.TranscriptEntry{
			{Role: "user", Text: "make a clock"},
			{Role: "assistant", Text: "done"},
		},
	}
	if err := store.Save(visitor, snapshot); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, found, err := store.Load(visitor)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatalf("expected snapshot")
	}
	if loaded.ActiveTemplate != "t1" || len(loaded.Templates) != 1 || len(loaded.Transcript) != 2 {
		t.Fatalf("roundtrip mismatch: %+v", loaded)
	}
}

func TestVisitorsIsolated(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Save("a", WorkspaceSnapshot{ActiveTemplate: "x"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, found, err := store.Load("b")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found {
		t.Fatalf("snapshots must be per visitor")
	}
}

func TestSanitizedVisitorPath(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	// Visitor IDs are validated upstream, but the store must never let a
	// hostile one escape the state directory.
	visitor := schema.VisitorID("../../etc/passwd")
	if err := store.Save(visitor, WorkspaceSnapshot{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, found, err := store.Load(visitor)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatalf("sanitized path must roundtrip")
	}
}

func TestAppendTranscript(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	visitor := schema.VisitorID("v1")
	if err := store.AppendTranscript(visitor, schema.TranscriptEntry{Role: "user", Text: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendTranscript(visitor, schema.TranscriptEntry{Role: "assistant", Text: "hello"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	snapshot, _, err := store.Load(visitor)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snapshot.Transcript) != 2 || snapshot.Transcript[1].Text != "hello" {
		t.Fatalf("unexpected transcript: %+v", snapshot.Transcript)
	}
}

func TestTranscriptRecorderSkipsPending(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	recorder := store.TranscriptRecorder("v1")
	recorder.OnTranscript(schema.TranscriptEntry{Role: "user", Text: "a clock"})
	recorder.OnTranscript(schema.TranscriptEntry{Role: "assistant", Text: "working", Pending: true})
	recorder.OnTranscript(schema.TranscriptEntry{Role: "assistant", Text: "here it is"})

	snapshot, found, err := store.Load("v1")
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if len(snapshot.Transcript) != 2 {
		t.Fatalf("pending entries must not persist, got %+v", snapshot.Transcript)
	}
	if snapshot.Transcript[1].Text != "here it is" {
		t.Fatalf("unexpected transcript: %+v", snapshot.Transcript)
	}
}

func TestVisitorTemplateStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	templates := store.Templates("v1")

	if _, err := templates.Get(ctx, "missing"); !errors.Is(err, schema.ErrTemplateNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	tpl := schema.Template{ID: "t1", Name: "Clock", Code: "v1"}
	if err := templates.Put(ctx, tpl); err != nil {
		t.Fatalf("put: %v", err)
	}
	tpl.Code = "v2"
	if err := templates.Put(ctx, tpl); err != nil {
		t.Fatalf("put update: %v", err)
	}
	got, err := templates.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Code != "v2" {
		t.Fatalf("put must upsert, got %q", got.Code)
	}
	list, err := templates.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 template, got %d", len(list))
	}

	// A second visitor sees an empty store.
	other, err := store.Templates("v2").List(ctx)
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("template stores must be per visitor, got %d", len(other))
	}
}
