package core

import (
	"context"
	"io"

	"pkt.systems/snipforge/schema"
)

// Transport opens the event stream for one generation request. A non-2xx
// response before any event must surface as a *schema.SessionError with a
// status-derived kind; transport-level failures map to KindNetwork.
type Transport interface {
	Open(ctx context.Context, req schema.GenerateRequest) (io.ReadCloser, error)
}

// Formatter rewrites a finished document, typically reindenting it.
// Formatting a half-written document produces invalid results, so the
// controller only formats after code-complete.
type Formatter interface {
	Format(code string) (string, error)
}

// FormatterFunc adapts a function to the Formatter interface.
type FormatterFunc func(code string) (string, error)

// Format implements Formatter.
func (f FormatterFunc) Format(code string) (string, error) {
	return f(code)
}
