package core

import "pkt.systems/snipforge/schema"

// SinkFanout forwards every notification to each sink in order.
type SinkFanout struct {
	sinks []SessionSink
}

// NewSinkFanout composes several sinks into one. Nil entries are skipped.
func NewSinkFanout(sinks ...SessionSink) *SinkFanout {
	return &SinkFanout{sinks: sinks}
}

// OnPreviewSuspend implements SessionSink.
func (f *SinkFanout) OnPreviewSuspend() {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnPreviewSuspend()
	}
}

// OnPreviewResume implements SessionSink.
func (f *SinkFanout) OnPreviewResume() {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnPreviewResume()
	}
}

// OnTranscript implements SessionSink.
func (f *SinkFanout) OnTranscript(entry schema.TranscriptEntry) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnTranscript(entry)
	}
}

// OnQuotaUpdated implements SessionSink.
func (f *SinkFanout) OnQuotaUpdated(remaining int) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnQuotaUpdated(remaining)
	}
}

// OnTemplateCommit implements SessionSink.
func (f *SinkFanout) OnTemplateCommit(tpl schema.Template, created bool) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnTemplateCommit(tpl, created)
	}
}

// OnDone implements SessionSink.
func (f *SinkFanout) OnDone(message string) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnDone(message)
	}
}

// OnError implements SessionSink.
func (f *SinkFanout) OnError(err *schema.SessionError) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnError(err)
	}
}

// OnCancelled implements SessionSink.
func (f *SinkFanout) OnCancelled() {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnCancelled()
	}
}
