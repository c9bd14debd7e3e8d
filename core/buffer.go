package core

import (
	"strings"
	"sync"
)

// CursorPos is a line/column position in a buffer. Both are zero-based;
// Col counts runes, not bytes.
type CursorPos struct {
	Line int
	Col  int
}

// Buffer is the capability the controller holds on the editor's text model.
// The controller never owns the buffer; adapters implement this over the
// real editor widget. Implementations must be safe for concurrent use: the
// throttled sink appends from a timer goroutine.
type Buffer interface {
	// Append adds text at the end of the buffer.
	Append(text string)
	// ReplaceAll replaces the entire buffer content.
	ReplaceAll(text string)
	// Text returns the current buffer content.
	Text() string
	// LineCount returns the number of lines. An empty buffer has one line.
	LineCount() int
	// LineLen returns the rune length of the given line, or 0 if the line
	// does not exist.
	LineLen(line int) int
	// Cursor returns the current cursor position.
	Cursor() CursorPos
	// SetCursor moves the cursor. Implementations clamp out-of-range input.
	SetCursor(pos CursorPos)
	// SetReadOnly toggles user edits. The controller holds the buffer
	// read-only while a session is streaming or finalizing.
	SetReadOnly(readOnly bool)
}

// MemoryBuffer is an in-process Buffer for tests and headless use.
type MemoryBuffer struct {
	mu       sync.Mutex
	text     string
	cursor   CursorPos
	readOnly bool
}

// NewMemoryBuffer returns an empty in-memory buffer.
func NewMemoryBuffer() *MemoryBuffer {
	return &MemoryBuffer{}
}

// Append implements Buffer.
func (b *MemoryBuffer) Append(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text += text
}

// ReplaceAll implements Buffer.
func (b *MemoryBuffer) ReplaceAll(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
	b.cursor = clampCursor(b.cursor, b.text)
}

// Text implements Buffer.
func (b *MemoryBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// LineCount implements Buffer.
func (b *MemoryBuffer) LineCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.text, "\n") + 1
}

// LineLen implements Buffer.
func (b *MemoryBuffer) LineLen(line int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	lines := strings.Split(b.text, "\n")
	if line < 0 || line >= len(lines) {
		return 0
	}
	return len([]rune(lines[line]))
}

// Cursor implements Buffer.
func (b *MemoryBuffer) Cursor() CursorPos {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// SetCursor implements Buffer.
func (b *MemoryBuffer) SetCursor(pos CursorPos) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cursor = clampCursor(pos, b.text)
}

// SetReadOnly implements Buffer.
func (b *MemoryBuffer) SetReadOnly(readOnly bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readOnly = readOnly
}

// ReadOnly reports whether the buffer currently rejects user edits.
func (b *MemoryBuffer) ReadOnly() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readOnly
}

func clampCursor(pos CursorPos, text string) CursorPos {
	lines := strings.Split(text, "\n")
	if pos.Line < 0 {
		pos.Line = 0
	}
	if pos.Line >= len(lines) {
		pos.Line = len(lines) - 1
	}
	lineLen := len([]rune(lines[pos.Line]))
	if pos.Col < 0 {
		pos.Col = 0
	}
	if pos.Col > lineLen {
		pos.Col = lineLen
	}
	return pos
}
