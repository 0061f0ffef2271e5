package player

import (
	"github.com/cockroachdb/errors"
)

// ErrInvalidCommand marks commands rejected for malformed arguments: unknown
// tracks, collections or policies, or an output device that never opened.
// Such commands leave the engine state untouched.
var ErrInvalidCommand = errors.New("invalid command")

func invalid(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidCommand)
}

func invalidWrap(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrInvalidCommand)
}
