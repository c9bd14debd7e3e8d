package core

import "pkt.systems/snipforge/schema"

// SessionState is the phase of a single generation attempt.
type SessionState int

const (
	// StateIdle means no session exists yet.
	StateIdle SessionState = iota
	// StateConnecting means the transport is open but no event has arrived.
	StateConnecting
	// StateStreaming means incremental code output is being applied.
	StateStreaming
	// StateFinalizing means code output ended and the result is settling.
	StateFinalizing
	// StateCompleted is the successful terminal state.
	StateCompleted
	// StateFailed is the failed terminal state.
	StateFailed
	// StateCancelled is the externally-cancelled terminal state.
	StateCancelled
)

// String implements fmt.Stringer.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further events may act on the session.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// EffectKind identifies a side effect requested by a transition.
type EffectKind int

const (
	// EffectSuspendPreview asks the host to stop live preview refreshes.
	EffectSuspendPreview EffectKind = iota
	// EffectSnapshotCursor captures the cursor before the first mutation.
	EffectSnapshotCursor
	// EffectClearBuffer empties the buffer ahead of incremental output.
	EffectClearBuffer
	// EffectAppendChunk enqueues Text for a throttled append.
	EffectAppendChunk
	// EffectDrainSink flushes queued chunks immediately.
	EffectDrainSink
	// EffectFormat schedules the post-stream formatting pass and cursor
	// restoration.
	EffectFormat
	// EffectTranscriptPending surfaces Text as an in-progress summary.
	EffectTranscriptPending
	// EffectCommit commits the authoritative result: final code, quota,
	// template, preview resume.
	EffectCommit
	// EffectFail reports the terminal failure in Err.
	EffectFail
)

// Effect describes one side effect. The transition function computes
// effects; it never performs them.
type Effect struct {
	Kind      EffectKind
	Text      string
	Code      string
	Remaining *int
	Err       *schema.SessionError
}

// Transition advances a session state by one event and returns the side
// effects the event is allowed to produce. It is pure: same state and event
// always yield the same result. Events that are not meaningful in the
// current state are dropped (no effects, state unchanged); the stream is
// lenient by design and a stray event must not corrupt the buffer.
func Transition(state SessionState, event schema.StreamEvent) (SessionState, []Effect) {
	if state.Terminal() {
		return state, nil
	}
	switch event.Type {
	case schema.EventCodeStart:
		if state != StateConnecting {
			return state, nil
		}
		return StateStreaming, []Effect{
			{Kind: EffectSuspendPreview},
			{Kind: EffectSnapshotCursor},
			{Kind: EffectClearBuffer},
		}
	case schema.EventCodeChunk:
		if state != StateStreaming {
			// A chunk without a preceding code-start would land in a
			// buffer that was never cleared.
			return state, nil
		}
		return StateStreaming, []Effect{{Kind: EffectAppendChunk, Text: event.Chunk}}
	case schema.EventCodeComplete:
		if state != StateStreaming {
			return state, nil
		}
		return StateFinalizing, []Effect{
			{Kind: EffectDrainSink},
			{Kind: EffectFormat},
		}
	case schema.EventMessageComplete:
		if state != StateStreaming && state != StateFinalizing {
			return state, nil
		}
		return state, []Effect{{Kind: EffectTranscriptPending, Text: event.Message}}
	case schema.EventDone:
		effects := make([]Effect, 0, 2)
		if state == StateStreaming {
			// The provider skipped code-complete; drain so no chunk is lost.
			effects = append(effects, Effect{Kind: EffectDrainSink})
		}
		effects = append(effects, Effect{
			Kind:      EffectCommit,
			Text:      event.Message,
			Code:      event.Code,
			Remaining: event.Remaining,
		})
		return StateCompleted, effects
	case schema.EventError:
		return StateFailed, []Effect{{Kind: EffectFail, Err: sessionErrorFromEvent(event)}}
	default:
		return state, nil
	}
}

// sessionErrorFromEvent builds the terminal error for a wire error event.
// A rate-limit error without an explicit count forces remaining uses to
// zero; the client must never keep a stale positive count after exhaustion.
func sessionErrorFromEvent(event schema.StreamEvent) *schema.SessionError {
	kind := schema.KindFromWireCode(event.ErrorCode)
	err := &schema.SessionError{
		Kind:    kind,
		Message: event.Error,
		Details: event.Details,
	}
	if event.RemainingUses != nil {
		remaining := *event.RemainingUses
		err.RemainingUses = &remaining
	} else if kind == schema.KindRateLimited {
		zero := 0
		err.RemainingUses = &zero
	}
	return err
}
