// Package providermock is a deterministic generation provider for local
// development and tests. It never calls a model: the snippet it streams is
// derived from the prompt, so the same prompt always yields the same
// stream.
package providermock

import (
	"context"
	"fmt"
	"hash/fnv"
	"html"
	"io"
	"strings"
	"time"

	"pkt.systems/snipforge/core"
	"pkt.systems/snipforge/schema"
)

// Prompt markers that force a scenario, so a workshop host can demo
// failure paths from the browser.
const (
	MarkerFail     = "mock:fail"
	MarkerTruncate = "mock:truncate"
)

// Provider implements core.Provider with canned snippets.
type Provider struct {
	// Delay is the pause between events. Zero streams as fast as the
	// consumer reads.
	Delay time.Duration
	// ChunkSize is the maximum bytes per code-chunk event. Zero picks a
	// seed-derived size so chunk boundaries vary between prompts.
	ChunkSize int
}

// Generate implements core.Provider.
func (p *Provider) Generate(_ context.Context, req core.ProviderRequest) (core.ProviderStream, error) {
	seed := hashSeed(req.Prompt, req.ExistingCode)
	if strings.Contains(req.Prompt, MarkerFail) {
		return &stream{events: failureEvents(), delay: p.Delay}, nil
	}

	code := renderSnippet(seed, req.Prompt)
	message := mockMessage(seed, req.Prompt)
	chunkSize := p.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 24 + int(seed%64)
	}

	events := []schema.StreamEvent{{Type: schema.EventCodeStart}}
	for _, chunk := range splitChunks(code, chunkSize) {
		events = append(events, schema.StreamEvent{Type: schema.EventCodeChunk, Chunk: chunk})
	}
	if strings.Contains(req.Prompt, MarkerTruncate) {
		// Stop mid-stream without a terminal event.
		events = events[:1+len(events)/2]
		return &stream{events: events, delay: p.Delay}, nil
	}
	events = append(events,
		schema.StreamEvent{Type: schema.EventCodeComplete},
		schema.StreamEvent{Type: schema.EventMessageComplete, Message: message},
		schema.StreamEvent{Type: schema.EventDone, Message: message, Code: code},
	)
	return &stream{events: events, delay: p.Delay}, nil
}

type stream struct {
	events []schema.StreamEvent
	next   int
	delay  time.Duration
	closed bool
}

func (s *stream) Next(ctx context.Context) (schema.StreamEvent, error) {
	if s.closed || s.next >= len(s.events) {
		return schema.StreamEvent{}, io.EOF
	}
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return schema.StreamEvent{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return schema.StreamEvent{}, err
	}
	event := s.events[s.next]
	s.next++
	return event, nil
}

func (s *stream) Close() error {
	s.closed = true
	return nil
}

func failureEvents() []schema.StreamEvent {
	return []schema.StreamEvent{
		{Type: schema.EventCodeStart},
		{Type: schema.EventCodeChunk, Chunk: "<html>\n<body>\n"},
		{
			Type:      schema.EventError,
			Error:     "mock failure: simulated provider error",
			ErrorCode: schema.WireCodeProviderFailed,
		},
	}
}

func hashSeed(prompt, existing string) uint64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(prompt))
	_, _ = hasher.Write([]byte(existing))
	return hasher.Sum64()
}

var accents = []string{"#e07a5f", "#3d405b", "#81b29a", "#f2cc8f", "#6d597a"}

func renderSnippet(seed uint64, prompt string) string {
	title := snippetTitle(prompt)
	accent := accents[int(seed%uint64(len(accents)))]
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>%s</title>
    <style>
      body { font-family: sans-serif; background: %s; color: #fff; display: grid; place-items: center; min-height: 100vh; margin: 0; }
      main { text-align: center; }
    </style>
  </head>
  <body>
    <main>
      <h1>%s</h1>
      <p id="note">generated from: %s</p>
    </main>
    <script>
      document.getElementById('note').title = new Date().toISOString();
    </script>
  </body>
</html>
`, title, accent, title, html.EscapeString(prompt))
}

func snippetTitle(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) == 0 {
		return "Snippet"
	}
	if len(words) > 4 {
		words = words[:4]
	}
	return html.EscapeString(strings.Join(words, " "))
}

func mockMessage(seed uint64, prompt string) string {
	templates := []string{
		"Mock response: built a page for \"%s\".",
		"Mock response: generated a snippet for \"%s\".",
		"Mock response: finished the request \"%s\".",
	}
	idx := int(seed % uint64(len(templates)))
	return fmt.Sprintf(templates[idx], prompt)
}

// splitChunks cuts text into pieces of roughly size bytes, never inside a
// rune. Chunks travel as JSON strings and must stay valid UTF-8.
func splitChunks(text string, size int) []string {
	if size <= 0 || text == "" {
		return []string{text}
	}
	chunks := make([]string, 0, len(text)/size+1)
	start := 0
	for idx := range text {
		if idx-start >= size {
			chunks = append(chunks, text[start:idx])
			start = idx
		}
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}
