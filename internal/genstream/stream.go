package genstream

import (
	"context"
	"io"

	"pkt.systems/pslog"
	"pkt.systems/snipforge/schema"
)

const readChunkSize = 4096

// Stream yields decoded events from a transport reader. Cancellation is the
// caller's job: closing the reader unblocks a pending Read.
type Stream struct {
	reader  io.ReadCloser
	decoder *Decoder
	pending []schema.StreamEvent
	eof     bool
	err     error
}

// NewStream wraps the reader with a decoding stream. The logger bound to ctx
// receives per-line drop warnings.
func NewStream(ctx context.Context, r io.ReadCloser) *Stream {
	return &Stream{
		reader:  r,
		decoder: NewDecoder(pslog.Ctx(ctx)),
	}
}

// Next returns the next decoded event, or io.EOF once the stream is drained.
func (s *Stream) Next(ctx context.Context) (schema.StreamEvent, error) {
	for {
		if len(s.pending) > 0 {
			event := s.pending[0]
			s.pending = s.pending[1:]
			return event, nil
		}
		if s.err != nil {
			return schema.StreamEvent{}, s.err
		}
		if s.eof {
			return schema.StreamEvent{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return schema.StreamEvent{}, err
		}
		buf := make([]byte, readChunkSize)
		n, err := s.reader.Read(buf)
		if n > 0 {
			s.pending = append(s.pending, s.decoder.Feed(buf[:n])...)
		}
		if err != nil {
			s.eof = true
			s.pending = append(s.pending, s.decoder.Flush()...)
			if err != io.EOF {
				s.err = err
			}
		}
		if openErr := s.decoder.OpeningError(); openErr != nil {
			s.pending = nil
			s.err = openErr
			return schema.StreamEvent{}, openErr
		}
	}
}

// Dropped reports how many event lines were skipped as malformed.
func (s *Stream) Dropped() int {
	return s.decoder.Dropped()
}

// Close releases the underlying reader.
func (s *Stream) Close() error {
	return s.reader.Close()
}
