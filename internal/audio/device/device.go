// Package device opens the output sinks that drive an audio.Pump from a sound card callback.
package device

import (
	"strings"

	"github.com/austinkregel/local-media/playlistd/internal/audio"
	"github.com/cockroachdb/errors"
)

// Backend names accepted by Open
const (
	BackendOto   = "oto"
	BackendMalgo = "malgo"
	BackendNull  = "null"
)

// Open returns an unstarted sink for the named backend. The caller starts it
// with the pump; a start failure means no audio device is available.
func Open(backend string, sampleRate int) (audio.Sink, error) {
	switch strings.ToLower(backend) {
	case "", BackendOto:
		return NewOto(sampleRate), nil
	case BackendMalgo:
		return NewMalgo(sampleRate), nil
	case BackendNull:
		return audio.NewNullSink(sampleRate), nil
	}
	return nil, errors.Newf("unknown audio backend %q", backend)
}
