package core

import "testing"

func TestMemoryBufferLines(t *testing.T) {
	buf := NewMemoryBuffer()
	if buf.LineCount() != 1 {
		t.Fatalf("empty buffer has one line, got %d", buf.LineCount())
	}
	buf.Append("<html>\n<body>räksmörgås</body>\n</html>")
	if buf.LineCount() != 3 {
		t.Fatalf("expected 3 lines, got %d", buf.LineCount())
	}
	if got := buf.LineLen(1); got != len([]rune("<body>räksmörgås</body>")) {
		t.Fatalf("line length must count runes, got %d", got)
	}
	if got := buf.LineLen(99); got != 0 {
		t.Fatalf("missing line has length 0, got %d", got)
	}
}

func TestMemoryBufferCursorClamp(t *testing.T) {
	buf := NewMemoryBuffer()
	buf.ReplaceAll("ab\ncdef")

	buf.SetCursor(CursorPos{Line: 1, Col: 3})
	if got := buf.Cursor(); got != (CursorPos{Line: 1, Col: 3}) {
		t.Fatalf("in-range cursor moved: %+v", got)
	}
	buf.SetCursor(CursorPos{Line: 9, Col: 9})
	if got := buf.Cursor(); got != (CursorPos{Line: 1, Col: 4}) {
		t.Fatalf("out-of-range cursor must clamp, got %+v", got)
	}
	buf.SetCursor(CursorPos{Line: -1, Col: -1})
	if got := buf.Cursor(); got != (CursorPos{Line: 0, Col: 0}) {
		t.Fatalf("negative cursor must clamp to origin, got %+v", got)
	}
}

func TestMemoryBufferReplaceAllReclamps(t *testing.T) {
	buf := NewMemoryBuffer()
	buf.ReplaceAll("one\ntwo\nthree")
	buf.SetCursor(CursorPos{Line: 2, Col: 5})
	buf.ReplaceAll("x")
	if got := buf.Cursor(); got != (CursorPos{Line: 0, Col: 1}) {
		t.Fatalf("cursor must clamp into the new text, got %+v", got)
	}
}

func TestMemoryBufferReadOnlyFlag(t *testing.T) {
	buf := NewMemoryBuffer()
	buf.SetReadOnly(true)
	if !buf.ReadOnly() {
		t.Fatalf("expected read-only")
	}
	buf.SetReadOnly(false)
	if buf.ReadOnly() {
		t.Fatalf("expected writable")
	}
}
