package genstream

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"pkt.systems/snipforge/schema"
)

const sampleStream = "data: {\"type\":\"code-start\"}\n" +
	"\n" +
	": keepalive comment\n" +
	"data: {\"type\":\"code-chunk\",\"chunk\":\"<h1>h\\u00e9j \\ud83d\\ude00</h1>\"}\n" +
	"data: {\"type\":\"code-chunk\",\"chunk\":\"<p>räksmörgås</p>\"}\n" +
	"data: {\"type\":\"code-complete\"}\n" +
	"data: {\"type\":\"message-complete\",\"message\":\"klart\"}\n" +
	"data: {\"type\":\"done\",\"message\":\"klart\",\"code\":\"<h1>ok</h1>\",\"remaining\":4}\n"

func decodeAll(t *testing.T, fragments ...[]byte) []schema.StreamEvent {
	t.Helper()
	dec := NewDecoder(nil)
	var events []schema.StreamEvent
	for _, fragment := range fragments {
		events = append(events, dec.Feed(fragment)...)
	}
	return append(events, dec.Flush()...)
}

func TestDecoderSingleFragment(t *testing.T) {
	events := decodeAll(t, []byte(sampleStream))
	if len(events) != 6 {
		t.Fatalf("expected 6 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != schema.EventCodeStart {
		t.Fatalf("expected code-start first, got %s", events[0].Type)
	}
	if events[1].Chunk != "<h1>héj \U0001f600</h1>" {
		t.Fatalf("unexpected chunk: %q", events[1].Chunk)
	}
	last := events[5]
	if last.Type != schema.EventDone || last.Remaining == nil || *last.Remaining != 4 {
		t.Fatalf("unexpected done event: %+v", last)
	}
}

func TestDecoderFragmentationInvariance(t *testing.T) {
	want := decodeAll(t, []byte(sampleStream))

	// Every two-way split, including mid-line, mid-JSON, mid-UTF8.
	raw := []byte(sampleStream)
	for i := 0; i <= len(raw); i++ {
		got := decodeAll(t, raw[:i], raw[i:])
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("split at %d diverged: got %+v want %+v", i, got, want)
		}
	}

	// One byte at a time.
	fragments := make([][]byte, 0, len(raw))
	for i := range raw {
		fragments = append(fragments, raw[i:i+1])
	}
	if got := decodeAll(t, fragments...); !reflect.DeepEqual(got, want) {
		t.Fatalf("byte-wise decode diverged: got %+v want %+v", got, want)
	}
}

func TestDecoderSplitInsidePrefix(t *testing.T) {
	events := decodeAll(t, []byte("data: {\"typ"), []byte("e\":\"code-start\"}\n"))
	if len(events) != 1 || events[0].Type != schema.EventCodeStart {
		t.Fatalf("expected single code-start, got %+v", events)
	}
}

func TestDecoderDropsMalformedLines(t *testing.T) {
	dec := NewDecoder(nil)
	stream := "data: {\"type\":\"code-start\"}\n" +
		"data: {not json}\n" +
		"data: {\"type\":\"mystery\"}\n" +
		"data: {\"type\":\"code-chunk\",\"chunk\":\"ok\"}\n"
	events := dec.Feed([]byte(stream))
	if len(events) != 2 || events[1].Chunk != "ok" {
		t.Fatalf("expected surviving events, got %+v", events)
	}
	if dec.Dropped() != 2 {
		t.Fatalf("expected 2 dropped lines, got %d", dec.Dropped())
	}
	if err := dec.OpeningError(); err != nil {
		t.Fatalf("drops after a good opening must stay lenient, got %v", err)
	}
}

func TestDecoderMalformedOpening(t *testing.T) {
	dec := NewDecoder(nil)
	stream := ": comment\n" +
		"data: {not json}\n" +
		"data: {\"type\":\"code-start\"}\n"
	dec.Feed([]byte(stream))
	if !errors.Is(dec.OpeningError(), ErrMalformedOpening) {
		t.Fatalf("expected opening error, got %v", dec.OpeningError())
	}
}

func TestDecoderIgnoresNonDataLines(t *testing.T) {
	stream := "event: ping\n\n: comment\nretry: 100\n"
	dec := NewDecoder(nil)
	if events := dec.Feed([]byte(stream)); len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
	if dec.Dropped() != 0 {
		t.Fatalf("ignored lines must not be counted as drops, got %d", dec.Dropped())
	}
}

func TestDecoderCRLF(t *testing.T) {
	events := decodeAll(t, []byte("data: {\"type\":\"code-start\"}\r\n"))
	if len(events) != 1 || events[0].Type != schema.EventCodeStart {
		t.Fatalf("expected code-start from CRLF line, got %+v", events)
	}
}

func TestDecoderFlushHandlesMissingTrailingNewline(t *testing.T) {
	dec := NewDecoder(nil)
	if events := dec.Feed([]byte("data: {\"type\":\"done\",\"code\":\"x\"}")); len(events) != 0 {
		t.Fatalf("incomplete line must wait for flush, got %+v", events)
	}
	events := dec.Flush()
	if len(events) != 1 || events[0].Type != schema.EventDone {
		t.Fatalf("expected done on flush, got %+v", events)
	}
	if events := dec.Flush(); len(events) != 0 {
		t.Fatalf("second flush must be empty, got %+v", events)
	}
}

type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func (r *chunkReader) Close() error { return nil }

func TestStreamNext(t *testing.T) {
	reader := &chunkReader{chunks: strings.SplitAfter(sampleStream, "}")}
	stream := NewStream(context.Background(), reader)
	var got []schema.EventType
	for {
		event, err := stream.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next failed: %v", err)
		}
		got = append(got, event.Type)
	}
	want := []schema.EventType{
		schema.EventCodeStart,
		schema.EventCodeChunk,
		schema.EventCodeChunk,
		schema.EventCodeComplete,
		schema.EventMessageComplete,
		schema.EventDone,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("event order diverged: got %v want %v", got, want)
	}
}

func TestStreamFailsOnMalformedOpening(t *testing.T) {
	body := "data: {broken\n" + sampleStream
	stream := NewStream(context.Background(), io.NopCloser(strings.NewReader(body)))
	_, err := stream.Next(context.Background())
	if !errors.Is(err, ErrMalformedOpening) {
		t.Fatalf("expected opening error, got %v", err)
	}
	// The failure is sticky; later valid events never surface.
	if _, err := stream.Next(context.Background()); !errors.Is(err, ErrMalformedOpening) {
		t.Fatalf("expected sticky opening error, got %v", err)
	}
}

func TestStreamNextHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stream := NewStream(context.Background(), &chunkReader{})
	if _, err := stream.Next(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
