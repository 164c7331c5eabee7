// Package parseio is the re-entrant streaming driver of spec §4.2: it
// pulls bytes from a blocking Source into an internal/ringbuf.Buffer
// and repeatedly offers the unread prefix to a Decoder until the
// decoder reports Done, Incomplete, or Malformed.
//
// The retry-on-short-read shape is grounded in two teacher loops: the
// media/av/transport.go CopyPackets "for { read; handle; check done }"
// loop, and media/slice/queue.go's QueueCursor.ReadPacket
// retry-until-available loop. Neither teacher loop owns a growable
// prefix buffer or a tri-state verdict — both are generalized here
// into the single byte-prefix-retry loop spec.md describes.
package parseio

import (
	"io"

	"github.com/rivermux/tsparse/internal/errs"
	"github.com/rivermux/tsparse/internal/ringbuf"
)

// Status is the tri-state verdict every decoder in this repo returns.
type Status int

const (
	// StatusIncomplete means the window held a valid-so-far prefix but
	// not enough bytes to finish decoding; the decoder must be retried
	// from scratch against a larger window once more bytes arrive.
	StatusIncomplete Status = iota
	// StatusDone means a full record was decoded from the front of the
	// window; Consumed bytes should be dropped from the window.
	StatusDone
	// StatusMalformed means the bytes can never form a valid record no
	// matter how many more arrive.
	StatusMalformed
)

// Result is a decoder's tri-state verdict, parameterized over the
// record type it produces on success.
type Result[T any] struct {
	Status   Status
	Value    T
	Consumed int
	Err      error
}

// Done reports successful decode of value, having consumed the first
// n bytes of the window.
func Done[T any](value T, n int) Result[T] {
	return Result[T]{Status: StatusDone, Value: value, Consumed: n}
}

// Incomplete reports that the window is a valid prefix but not yet a
// full record.
func Incomplete[T any]() Result[T] {
	return Result[T]{Status: StatusIncomplete}
}

// Malformed reports that the window can never decode, regardless of
// how many more bytes follow.
func Malformed[T any](err error) Result[T] {
	return Result[T]{Status: StatusMalformed, Err: err}
}

// View is the immutable window a decoder inspects: the unread bytes
// currently buffered, plus whether the source is exhausted (spec §3's
// PartialStream/PartialView — Complete distinguishes "malformed, ran
// out of bytes for good" from "incomplete, more may still arrive").
type View struct {
	Bytes    []byte
	Complete bool
}

// Decoder is the contract every bit-field/structure decoder in this
// repo implements: pure given a View, never mutating prior state, safe
// to call again from byte 0 of a larger window after an Incomplete.
type Decoder[T any] func(View) Result[T]

// Source is the blocking byte source the driver pulls from.
type Source = io.Reader

// Stream drives one Decoder over one Source, yielding successive
// records until the source and buffer are both exhausted.
type Stream[T any] struct {
	src    Source
	ring   *ringbuf.Buffer
	decode Decoder[T]
	eof    bool
}

// NewStream builds a Stream reading from src and decoding records with
// decode. The ring buffer starts at one chunk and grows on demand.
func NewStream[T any](src Source, decode Decoder[T]) *Stream[T] {
	return &Stream[T]{
		src:    src,
		ring:   ringbuf.New(ringbuf.ChunkSize),
		decode: decode,
	}
}

// Next returns the next decoded record. ok is false with a nil error
// when the source is cleanly exhausted with no trailing partial data;
// it is false with a non-nil error on a malformed record or a source
// read failure (spec §7).
func (s *Stream[T]) Next() (value T, ok bool, err error) {
	for {
		view := View{Bytes: s.ring.Data(), Complete: s.eof}
		res := s.decode(view)

		switch res.Status {
		case StatusDone:
			s.ring.Consume(res.Consumed)
			return res.Value, true, nil

		case StatusMalformed:
			var zero T
			return zero, false, errs.Malformed("%v", res.Err)

		case StatusIncomplete:
			var zero T
			if s.eof {
				if s.ring.Available() == 0 {
					return zero, false, nil
				}
				return zero, false, errs.Malformed("truncated: %d trailing byte(s) never completed a record", s.ring.Available())
			}
			if s.ring.AvailableSpace() == 0 {
				s.ring.MakeRoom()
			}
			n, rerr := s.src.Read(s.ring.Space())
			if n > 0 {
				s.ring.Fill(n)
			}
			if rerr != nil {
				if rerr == io.EOF {
					s.eof = true
					continue
				}
				return zero, false, errs.Source(rerr)
			}
			if n == 0 {
				// spec §4.2 treats a zero-byte read as end-of-stream
				// regardless of a nil error, matching io.Reader
				// implementations that signal EOF this way instead
				// of pairing it with io.EOF.
				s.eof = true
			}
			continue
		}
	}
}
