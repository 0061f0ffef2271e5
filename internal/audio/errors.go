package audio

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Decoder failure sentinels. Codec errors are marked with one of these so
// errors.Is classifies them regardless of how much context was wrapped on top.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrIoFailure         = errors.New("i/o failure")
	ErrCorruptStream     = errors.New("corrupt stream")
)

// ErrorKind is the decoder failure reported in the player state
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindUnsupportedFormat
	KindIoFailure
	KindCorruptStream
)

// String returns the kind name
func (k ErrorKind) String() string {
	switch k {
	case KindUnsupportedFormat:
		return "UnsupportedFormat"
	case KindIoFailure:
		return "IoFailure"
	case KindCorruptStream:
		return "CorruptStream"
	default:
		return "None"
	}
}

// MarshalText implements encoding.TextMarshaler
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *ErrorKind) UnmarshalText(text []byte) error {
	for _, c := range []ErrorKind{KindNone, KindUnsupportedFormat, KindIoFailure, KindCorruptStream} {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return errors.Newf("unknown error kind %q", text)
}

// KindOf classifies a decoder error. Unmarked errors count as I/O failures
// since they come from the file collaborator.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, ErrCorruptStream):
		return KindCorruptStream
	default:
		return KindIoFailure
	}
}

// ioFailure wraps err and marks it as an I/O failure
func ioFailure(err error, msg string) error {
	if errors.Is(err, ErrIoFailure) || errors.Is(err, context.Canceled) {
		return errors.Wrap(err, msg)
	}
	return errors.Mark(errors.Wrap(err, msg), ErrIoFailure)
}

// corrupt wraps err and marks it as a corrupt stream unless it already
// carries an I/O failure from the guarded source underneath.
func corrupt(err error, msg string) error {
	if errors.Is(err, ErrIoFailure) || errors.Is(err, context.Canceled) {
		return errors.Wrap(err, msg)
	}
	return errors.Mark(errors.Wrap(err, msg), ErrCorruptStream)
}
