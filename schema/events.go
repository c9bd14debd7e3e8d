package schema

// EventType is the discriminator carried in each stream event payload.
type EventType string

const (
	// EventCodeStart marks the beginning of incremental code output.
	EventCodeStart EventType = "code-start"
	// EventCodeChunk carries one fragment of incremental code output.
	EventCodeChunk EventType = "code-chunk"
	// EventCodeComplete marks the end of incremental code output.
	EventCodeComplete EventType = "code-complete"
	// EventMessageComplete carries the finished natural-language summary.
	EventMessageComplete EventType = "message-complete"
	// EventDone terminates a session successfully with the authoritative result.
	EventDone EventType = "done"
	// EventError terminates a session with a structured failure.
	EventError EventType = "error"
)

// StreamEvent is the JSON payload carried on a "data: " line of the
// generation event stream. Field presence depends on Type:
//
//	code-chunk       Chunk
//	message-complete Message
//	done             Message, Code, Remaining
//	error            Error, ErrorCode, Details, RemainingUses
type StreamEvent struct {
	Type          EventType `json:"type"`
	Chunk         string    `json:"chunk,omitempty"`
	Message       string    `json:"message,omitempty"`
	Code          string    `json:"code,omitempty"`
	Remaining     *int      `json:"remaining,omitempty"`
	Error         string    `json:"error,omitempty"`
	ErrorCode     string    `json:"errorCode,omitempty"`
	Details       []string  `json:"details,omitempty"`
	RemainingUses *int      `json:"remainingUses,omitempty"`
}

// Terminal reports whether the event ends a session.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// KnownType reports whether the event carries a defined discriminator.
func (e StreamEvent) KnownType() bool {
	switch e.Type {
	case EventCodeStart, EventCodeChunk, EventCodeComplete,
		EventMessageComplete, EventDone, EventError:
		return true
	default:
		return false
	}
}
