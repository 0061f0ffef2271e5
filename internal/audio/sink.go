package audio

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrDeviceUnavailable is returned when an output device cannot be opened
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// Sink drives a pump from an output device's real-time callback
type Sink interface {
	Name() string
	Start(p *Pump) error
	Close() error
}

// NullSink drains the pump on a timer at the nominal sample rate and discards
// the audio. It stands in for a device on headless machines.
type NullSink struct {
	SampleRate int
	Period     time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewNullSink creates a null sink pulling every 10ms
func NewNullSink(sampleRate int) *NullSink {
	return &NullSink{SampleRate: sampleRate, Period: 10 * time.Millisecond}
}

func (s *NullSink) Name() string { return "null" }

// Start begins pulling from p
func (s *NullSink) Start(p *Pump) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return errors.New("null sink already started")
	}
	if s.SampleRate <= 0 || s.Period <= 0 {
		return errors.Wrapf(ErrDeviceUnavailable, "null sink: rate %d, period %s", s.SampleRate, s.Period)
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	frames := int(DurationToFrames(s.Period, s.SampleRate))
	if frames < 1 {
		frames = 1
	}
	go s.run(p, make([]Frame, frames), s.stop, s.done)

	zlog.Info().Msgf("[OUTPUT] Null sink started (%d Hz, %d frames per %s)", s.SampleRate, frames, s.Period)
	return nil
}

func (s *NullSink) run(p *Pump, buf []Frame, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.Period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.Fill(buf)
		}
	}
}

// Close stops the pull loop
func (s *NullSink) Close() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}
