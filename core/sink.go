package core

import (
	"strings"
	"sync"
	"time"
)

// Schedule arms a one-shot callback after d and returns a cancel func.
// The default wraps time.AfterFunc; tests inject a manual scheduler so the
// coalesce tick is not tied to wall-clock timers.
type Schedule func(d time.Duration, fn func()) (cancel func())

func timerSchedule(d time.Duration, fn func()) func() {
	timer := time.AfterFunc(d, fn)
	return func() { timer.Stop() }
}

// ThrottledSink applies an ordered stream of text fragments to a buffer,
// coalescing fragments that arrive within one tick into a single mutation.
// Each fragment is eventually appended; fragments are never reordered.
type ThrottledSink struct {
	mu       sync.Mutex
	buffer   Buffer
	interval time.Duration
	schedule Schedule

	pending     []string
	cancelTimer func()
	stopped     bool
}

// NewThrottledSink constructs a sink writing to buffer at most once per
// interval. A nil schedule uses real timers.
func NewThrottledSink(buffer Buffer, interval time.Duration, schedule Schedule) *ThrottledSink {
	if schedule == nil {
		schedule = timerSchedule
	}
	return &ThrottledSink{
		buffer:   buffer,
		interval: interval,
		schedule: schedule,
	}
}

// Push enqueues a fragment for the next flush. The first push of a coalesce
// cycle arms the tick; later pushes in the same cycle just accumulate.
func (s *ThrottledSink) Push(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.pending = append(s.pending, text)
	if s.cancelTimer == nil {
		s.cancelTimer = s.schedule(s.interval, s.tick)
	}
}

// Drain synchronously applies everything still pending and disarms the
// tick. Call on code-complete: trailing bytes must not wait for a timer
// that the session may outrun.
func (s *ThrottledSink) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

// Stop disarms the tick and discards pending fragments without touching
// the buffer. Used on cancellation.
func (s *ThrottledSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.pending = nil
	if s.cancelTimer != nil {
		s.cancelTimer()
		s.cancelTimer = nil
	}
}

// Pending reports whether fragments are waiting for a flush.
func (s *ThrottledSink) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

func (s *ThrottledSink) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.cancelTimer = nil
	s.flushLocked()
}

// flushLocked writes all pending fragments as one buffer mutation. A flush
// always takes the whole pending slice, so a stale scheduled write can
// never apply a subset and a newer cycle supersedes rather than appends.
func (s *ThrottledSink) flushLocked() {
	if s.cancelTimer != nil {
		s.cancelTimer()
		s.cancelTimer = nil
	}
	if len(s.pending) == 0 || s.stopped {
		s.pending = nil
		return
	}
	text := strings.Join(s.pending, "")
	s.pending = nil
	s.buffer.Append(text)
}
