// Package errs distinguishes the two ways the streaming driver in
// internal/parseio can fail: the underlying source misbehaved, or the
// bytes it produced do not match the grammar a decoder expects.
// Adapted from the teacher's common/errs (Code/Msg sentinel-error
// helpers over github.com/pkg/errors) to the two-kind distinction this
// spec's error model actually needs (spec §7/§9) — Incomplete is
// deliberately not a Kind here: it never escapes the driver as an error.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies why a Stream's Next call returned an error.
type Kind int32

const (
	// KindSource marks an error propagated from the underlying reader.
	KindSource Kind = iota
	// KindMalformed marks a decoder's outright rejection of the bytes
	// it was given — the grammar was violated, not merely incomplete.
	KindMalformed
)

// Error is the concrete error type returned across that boundary.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// New builds an Error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Malformed builds a KindMalformed error from a reason.
func Malformed(format string, args ...interface{}) error {
	return &Error{Kind: KindMalformed, Msg: fmt.Sprintf(format, args...)}
}

// Source wraps a read error from the underlying source, preserving its
// stack via pkg/errors.
func Source(cause error) error {
	return errors.Wrap(cause, "source read failed")
}

// KindOf reports the Kind of err, defaulting to KindSource for errors
// that did not originate in this package (e.g. a bare io error that
// escaped Source's wrapping).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindSource
}

// IsMalformed reports whether err represents a grammar violation
// rather than a source/transport failure.
func IsMalformed(err error) bool {
	return KindOf(err) == KindMalformed
}
