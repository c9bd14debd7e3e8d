package core

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/snipforge/internal/genstream"
	"pkt.systems/snipforge/internal/logx"
	"pkt.systems/snipforge/schema"
)

// OrchestratorDeps carries the collaborators a session controller needs.
type OrchestratorDeps struct {
	Transport Transport
	Buffer    Buffer
	Templates *TemplateManager
	// Formatter is optional; nil skips the post-stream formatting pass.
	Formatter Formatter
	// Sink is optional; nil discards notifications.
	Sink SessionSink
	// Schedule is optional; nil uses real timers for the coalesce tick.
	Schedule Schedule
	Logger   pslog.Logger
}

// Orchestrator owns at most one active generation session per workspace.
// Starting a new session cancels the previous one before the new session's
// first side effect runs.
type Orchestrator struct {
	cfg  schema.SessionConfig
	deps OrchestratorDeps

	mu     sync.Mutex
	epoch  uint64
	active *Session
}

// NewOrchestrator constructs an orchestrator. Transport and Buffer are
// required.
func NewOrchestrator(cfg schema.SessionConfig, deps OrchestratorDeps) (*Orchestrator, error) {
	if deps.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if deps.Buffer == nil {
		return nil, errors.New("buffer is required")
	}
	if deps.Sink == nil {
		deps.Sink = NopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = pslog.Ctx(context.Background())
	}
	return &Orchestrator{
		cfg:  schema.NormalizeSessionConfig(cfg),
		deps: deps,
	}, nil
}

// Session is the handle for one generation attempt.
type Session struct {
	orch  *Orchestrator
	id    schema.SessionID
	epoch uint64

	cancelCtx context.CancelFunc
	done      chan struct{}
	throttle  *ThrottledSink

	// Guarded by orch.mu.
	state       SessionState
	finished    bool
	suspended   bool
	savedCursor CursorPos
	hasCursor   bool
	restored    bool
	streamed    int
}

// ID returns the session identifier.
func (s *Session) ID() schema.SessionID {
	return s.id
}

// Done is closed once the session's resources are released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the session's current phase.
func (s *Session) State() SessionState {
	s.orch.mu.Lock()
	defer s.orch.mu.Unlock()
	return s.state
}

// Cancel aborts the session. Idempotent, and a no-op after natural
// completion. No callback fires after Cancel returns.
func (s *Session) Cancel() {
	o := s.orch
	o.mu.Lock()
	if s.finished {
		o.mu.Unlock()
		return
	}
	s.finished = true
	s.state = StateCancelled
	if o.active == s {
		o.active = nil
	}
	// Supersede every continuation that captured this session's epoch.
	o.epoch++
	s.throttle.Stop()
	if s.suspended {
		o.deps.Buffer.SetReadOnly(false)
		o.deps.Sink.OnPreviewResume()
	}
	o.deps.Sink.OnCancelled()
	o.mu.Unlock()
	s.cancelCtx()
	o.deps.Logger.With("session", s.id).Info("session cancelled")
}

// Start begins a generation attempt. An already-active session for this
// workspace is cancelled first. The request is validated and its history
// clamped before the transport opens.
func (o *Orchestrator) Start(ctx context.Context, req schema.GenerateRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.MessageHistory = schema.ClampHistory(req.MessageHistory)

	o.mu.Lock()
	prior := o.active
	o.mu.Unlock()
	if prior != nil {
		prior.Cancel()
	}

	sessCtx, cancel := context.WithCancel(ctx)
	session := &Session{
		orch:      o,
		id:        schema.SessionID(newID()),
		cancelCtx: cancel,
		done:      make(chan struct{}),
		state:     StateConnecting,
	}
	session.throttle = NewThrottledSink(o.deps.Buffer, o.cfg.FlushInterval, o.deps.Schedule)

	o.mu.Lock()
	o.epoch++
	session.epoch = o.epoch
	o.active = session
	o.mu.Unlock()

	o.deps.Sink.OnTranscript(schema.TranscriptEntry{Role: "user", Text: req.Prompt})

	log := logx.WithVisitorSession(ctx, req.VisitorID, session.id)
	log.Info("session start", "history", len(req.MessageHistory), "existing_code_len", len(req.ExistingCode))
	go o.run(sessCtx, session, req, log)
	return session, nil
}

// Cancel aborts the active session, if any.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	active := o.active
	o.mu.Unlock()
	if active != nil {
		active.Cancel()
	}
}

// locked runs fn under the orchestrator lock if the session's epoch is
// still live. Every asynchronous continuation goes through here; a stale
// epoch is a silent no-op.
func (o *Orchestrator) locked(s *Session, fn func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.epoch != s.epoch || s.finished {
		return false
	}
	fn()
	return true
}

func (o *Orchestrator) run(ctx context.Context, s *Session, req schema.GenerateRequest, log pslog.Logger) {
	defer close(s.done)
	defer s.cancelCtx()

	body, err := o.deps.Transport.Open(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			o.cancelFromContext(s, log)
			return
		}
		o.finishError(s, asSessionError(err), log)
		return
	}
	stream := genstream.NewStream(pslog.ContextWithLogger(ctx, log), body)
	defer func() { _ = stream.Close() }()

	state := StateConnecting
	for {
		event, err := stream.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				// A handle-initiated Cancel already acknowledged. A parent
				// context cancellation has not, and still owes its single
				// terminal notification.
				o.cancelFromContext(s, log)
			case errors.Is(err, io.EOF):
				o.finishError(s, schema.NewSessionError(schema.KindProtocol, "stream ended before completion"), log)
			case errors.Is(err, genstream.ErrMalformedOpening):
				o.finishError(s, schema.NewSessionError(schema.KindProtocol, err.Error()), log)
			default:
				sessionErr := schema.NewSessionError(schema.KindNetwork, err.Error())
				o.finishError(s, sessionErr, log)
			}
			return
		}
		log.Trace("session event", "type", event.Type, "state", state)

		next, effects := Transition(state, event)
		if next == state && len(effects) == 0 && !state.Terminal() {
			log.Debug("session event dropped", "type", event.Type, "state", state)
		}
		state = next
		if !o.locked(s, func() { s.state = state }) {
			return
		}
		for _, effect := range effects {
			if !o.applyEffect(ctx, s, effect, log) {
				return
			}
		}
		if state.Terminal() {
			return
		}
	}
}

// applyEffect performs one side effect, epoch-guarded. Returns false when
// the session has been superseded and the caller must stop.
func (o *Orchestrator) applyEffect(ctx context.Context, s *Session, effect Effect, log pslog.Logger) bool {
	switch effect.Kind {
	case EffectSuspendPreview:
		return o.locked(s, func() {
			s.suspended = true
			o.deps.Buffer.SetReadOnly(true)
			o.deps.Sink.OnPreviewSuspend()
		})
	case EffectSnapshotCursor:
		return o.locked(s, func() {
			s.savedCursor = o.deps.Buffer.Cursor()
			s.hasCursor = true
		})
	case EffectClearBuffer:
		return o.locked(s, func() {
			o.deps.Buffer.ReplaceAll("")
		})
	case EffectAppendChunk:
		return o.locked(s, func() {
			s.streamed += len(effect.Text)
			s.throttle.Push(effect.Text)
		})
	case EffectDrainSink:
		return o.locked(s, func() {
			s.throttle.Drain()
		})
	case EffectFormat:
		return o.formatPass(ctx, s, log)
	case EffectTranscriptPending:
		return o.locked(s, func() {
			o.deps.Sink.OnTranscript(schema.TranscriptEntry{
				Role:    "assistant",
				Text:    effect.Text,
				Pending: true,
			})
		})
	case EffectCommit:
		o.commit(ctx, s, effect, log)
		return false
	case EffectFail:
		o.fail(s, effect.Err, log)
		return false
	default:
		log.Warn("unknown effect", "kind", int(effect.Kind))
		return true
	}
}

// formatPass formats the fully-applied buffer and restores the cursor.
// Two settle delays let the buffer host observe applied text before the
// formatter runs and post-format line numbers before the cursor moves.
func (o *Orchestrator) formatPass(ctx context.Context, s *Session, log pslog.Logger) bool {
	if o.deps.Formatter == nil {
		return o.restoreCursor(s, log)
	}
	if !sleepCtx(ctx, o.cfg.SettleDelay) {
		return false
	}
	var current string
	if !o.locked(s, func() { current = o.deps.Buffer.Text() }) {
		return false
	}
	formatted, err := o.deps.Formatter.Format(current)
	if err != nil {
		// Unformatted code is still the user's code; formatting is
		// best effort.
		log.Warn("format pass failed", "err", err)
		return o.restoreCursor(s, log)
	}
	if formatted != current {
		if !o.locked(s, func() { o.deps.Buffer.ReplaceAll(formatted) }) {
			return false
		}
	}
	if !sleepCtx(ctx, o.cfg.SettleDelay) {
		return false
	}
	return o.restoreCursor(s, log)
}

// restoreCursor puts the cursor back on its pre-generation line if that
// line still exists, clamped to the new line length. A vanished line drops
// the restoration silently.
func (o *Orchestrator) restoreCursor(s *Session, log pslog.Logger) bool {
	return o.locked(s, func() {
		if !s.hasCursor || s.restored {
			return
		}
		s.restored = true
		line := s.savedCursor.Line
		if line >= o.deps.Buffer.LineCount() {
			log.Debug("cursor restore skipped", "line", line, "lines", o.deps.Buffer.LineCount())
			return
		}
		col := s.savedCursor.Col
		if max := o.deps.Buffer.LineLen(line); col > max {
			col = max
		}
		o.deps.Buffer.SetCursor(CursorPos{Line: line, Col: col})
	})
}

// commit applies the authoritative result of a done event and emits the
// single success notification.
func (o *Orchestrator) commit(ctx context.Context, s *Session, effect Effect, log pslog.Logger) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.epoch != s.epoch || s.finished {
		return
	}
	s.finished = true
	s.state = StateCompleted
	if o.active == s {
		o.active = nil
	}

	// The structured done code is ground truth; it supersedes the
	// streamed concatenation if they diverge.
	final := effect.Code
	current := o.deps.Buffer.Text()
	if final == "" {
		final = current
	} else {
		if o.deps.Formatter != nil {
			if formatted, err := o.deps.Formatter.Format(final); err == nil {
				final = formatted
			} else {
				log.Warn("final format failed", "err", err)
			}
		}
		if final != current {
			log.Debug("authoritative code override", "buffer_len", len(current), "final_len", len(final))
			o.deps.Buffer.ReplaceAll(final)
		}
	}

	if effect.Text != "" {
		o.deps.Sink.OnTranscript(schema.TranscriptEntry{Role: "assistant", Text: effect.Text})
	}
	if effect.Remaining != nil {
		o.deps.Sink.OnQuotaUpdated(*effect.Remaining)
	}
	if s.suspended {
		o.deps.Buffer.SetReadOnly(false)
		o.deps.Sink.OnPreviewResume()
	}
	if o.deps.Templates != nil {
		tpl, created, err := o.deps.Templates.CommitGeneration(ctx, final, SuggestedName(final))
		if err != nil {
			// The generation itself succeeded; a persistence failure must
			// not turn it into a session failure.
			log.Warn("template commit failed", "err", err)
		} else {
			o.deps.Sink.OnTemplateCommit(tpl, created)
		}
	}
	o.deps.Sink.OnDone(effect.Text)
	log.Info("session completed", "code_len", len(final), "streamed_len", s.streamed)
}

// fail reports a terminal error event. Partial code stays visible so the
// user can inspect what was produced before the failure.
func (o *Orchestrator) fail(s *Session, err *schema.SessionError, log pslog.Logger) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failLocked(s, err, log)
}

func (o *Orchestrator) failLocked(s *Session, err *schema.SessionError, log pslog.Logger) {
	if o.epoch != s.epoch || s.finished {
		return
	}
	s.finished = true
	s.state = StateFailed
	if o.active == s {
		o.active = nil
	}
	s.throttle.Drain()
	if s.suspended {
		o.deps.Buffer.SetReadOnly(false)
		o.deps.Sink.OnPreviewResume()
	}
	if err.RemainingUses != nil {
		o.deps.Sink.OnQuotaUpdated(*err.RemainingUses)
	}
	o.deps.Sink.OnError(err)
	log.Warn("session failed", "kind", err.Kind, "err", err.Message, "details", len(err.Details))
}

// cancelFromContext finishes a session whose parent context died without
// the handle's Cancel being called. A session Cancel already finished is
// left alone.
func (o *Orchestrator) cancelFromContext(s *Session, log pslog.Logger) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.epoch != s.epoch || s.finished {
		return
	}
	s.finished = true
	s.state = StateCancelled
	if o.active == s {
		o.active = nil
	}
	o.epoch++
	s.throttle.Stop()
	if s.suspended {
		o.deps.Buffer.SetReadOnly(false)
		o.deps.Sink.OnPreviewResume()
	}
	o.deps.Sink.OnCancelled()
	log.Info("session cancelled", "reason", "context")
}

func (o *Orchestrator) finishError(s *Session, err *schema.SessionError, log pslog.Logger) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failLocked(s, err, log)
}

// asSessionError maps a transport error to the taxonomy. Typed errors pass
// through; anything else is a network failure.
func asSessionError(err error) *schema.SessionError {
	var sessionErr *schema.SessionError
	if errors.As(err, &sessionErr) {
		return sessionErr
	}
	return schema.NewSessionError(schema.KindNetwork, err.Error())
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
