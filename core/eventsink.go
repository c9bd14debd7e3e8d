package core

import "pkt.systems/snipforge/schema"

// SessionSink receives UI-facing notifications from the session
// orchestrator. Exactly one of OnDone, OnError, or OnCancelled fires per
// started session, and it fires exactly once.
type SessionSink interface {
	// OnPreviewSuspend signals the live preview to stop refreshing while
	// the buffer streams.
	OnPreviewSuspend()
	// OnPreviewResume signals the live preview to resume.
	OnPreviewResume()
	// OnTranscript surfaces a transcript entry. An entry with Pending set
	// replaces any previous pending entry for the session.
	OnTranscript(entry schema.TranscriptEntry)
	// OnQuotaUpdated reports the authoritative remaining-uses count.
	OnQuotaUpdated(remaining int)
	// OnTemplateCommit reports the variant a finished generation was
	// committed into, and whether it was newly created.
	OnTemplateCommit(tpl schema.Template, created bool)
	// OnDone reports successful completion with the final summary.
	OnDone(message string)
	// OnError reports terminal failure.
	OnError(err *schema.SessionError)
	// OnCancelled acknowledges external cancellation.
	OnCancelled()
}

// NopSink discards all notifications. Embed it to implement only the
// callbacks a host cares about.
type NopSink struct{}

// OnPreviewSuspend implements SessionSink.
func (NopSink) OnPreviewSuspend() {}

// OnPreviewResume implements SessionSink.
func (NopSink) OnPreviewResume() {}

// OnTranscript implements SessionSink.
func (NopSink) OnTranscript(schema.TranscriptEntry) {}

// OnQuotaUpdated implements SessionSink.
func (NopSink) OnQuotaUpdated(int) {}

// OnTemplateCommit implements SessionSink.
func (NopSink) OnTemplateCommit(schema.Template, bool) {}

// OnDone implements SessionSink.
func (NopSink) OnDone(string) {}

// OnError implements SessionSink.
func (NopSink) OnError(*schema.SessionError) {}

// OnCancelled implements SessionSink.
func (NopSink) OnCancelled() {}
