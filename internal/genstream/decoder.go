// Package genstream decodes the line-delimited generation event stream.
// Framing is the only concern here: the decoder is a pure function of the
// bytes seen so far and holds no session semantics.
package genstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"pkt.systems/pslog"
	"pkt.systems/snipforge/schema"
)

// dataPrefix marks event-carrying lines. Anything else is ignored.
const dataPrefix = "data: "

// ErrMalformedOpening marks a stream whose first event-carrying line failed
// to decode. Later malformed lines are dropped per the leniency policy; a
// stream that opens with garbage is not speaking the protocol at all.
var ErrMalformedOpening = errors.New("malformed opening event")

// Decoder turns arbitrarily fragmented stream text into discrete events.
// A fragment may split a line anywhere, including inside a multi-byte code
// point; the incomplete tail is buffered until the next fragment or Flush.
type Decoder struct {
	tail      []byte
	log       pslog.Logger
	dropped   int
	dataLines int
	openErr   error
}

// NewDecoder constructs a decoder. A nil logger disables drop logging.
func NewDecoder(logger pslog.Logger) *Decoder {
	return &Decoder{log: logger}
}

// Feed consumes one transport fragment and returns the events completed by
// it, in order. Malformed event lines are dropped, not fatal: one bad line
// must not abort an otherwise good generation.
func (d *Decoder) Feed(fragment []byte) []schema.StreamEvent {
	if len(fragment) == 0 {
		return nil
	}
	d.tail = append(d.tail, fragment...)
	var events []schema.StreamEvent
	for {
		idx := bytes.IndexByte(d.tail, '\n')
		if idx < 0 {
			return events
		}
		line := d.tail[:idx]
		d.tail = d.tail[idx+1:]
		if event, ok := d.decodeLine(line); ok {
			events = append(events, event)
		}
	}
}

// Flush decodes any buffered trailing line. Call once the transport reports
// end of stream; the final line is not required to end with a newline.
func (d *Decoder) Flush() []schema.StreamEvent {
	if len(d.tail) == 0 {
		return nil
	}
	line := d.tail
	d.tail = nil
	if event, ok := d.decodeLine(line); ok {
		return []schema.StreamEvent{event}
	}
	return nil
}

// Dropped reports how many event lines failed to decode and were skipped.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// OpeningError is non-nil once the first event-carrying line has failed to
// decode. The stream cannot be trusted past that point.
func (d *Decoder) OpeningError() error {
	return d.openErr
}

func (d *Decoder) decodeLine(line []byte) (schema.StreamEvent, bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if len(bytes.TrimSpace(line)) == 0 {
		return schema.StreamEvent{}, false
	}
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return schema.StreamEvent{}, false
	}
	d.dataLines++
	payload := line[len(dataPrefix):]
	event, err := decodePayload(payload)
	if err != nil {
		d.dropped++
		if d.dataLines == 1 {
			d.openErr = fmt.Errorf("%w: %v", ErrMalformedOpening, err)
		}
		if d.log != nil {
			preview := previewText(string(payload), 200)
			d.log.Warn("stream event decode failed", "preview", preview, "truncated", len(preview) < len(payload), "err", err)
		}
		return schema.StreamEvent{}, false
	}
	return event, true
}

func decodePayload(payload []byte) (schema.StreamEvent, error) {
	var event schema.StreamEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return schema.StreamEvent{}, err
	}
	if !event.KnownType() {
		return schema.StreamEvent{}, fmt.Errorf("unknown event type %q", event.Type)
	}
	return event, nil
}

func previewText(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	return value[:max]
}
