package audio

import (
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
)

const resampleQuality = 4

// normalize returns dec unchanged when it already runs at rate, otherwise
// wraps it in a beep resampler.
func normalize(dec Decoder, rate int) Decoder {
	src := dec.Format().SampleRate
	if rate <= 0 || src == rate {
		return dec
	}
	r := &resampled{dec: dec, rate: rate}
	r.reset()
	return r
}

// frameStreamer adapts a Decoder to beep.Streamer
type frameStreamer struct {
	dec Decoder
	buf []Frame
	err error
	eof bool
}

func (s *frameStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.eof || s.err != nil {
		return 0, false
	}
	if cap(s.buf) < len(samples) {
		s.buf = make([]Frame, len(samples))
	}
	buf := s.buf[:len(samples)]

	filled := 0
	for filled < len(buf) {
		n, err := s.dec.Read(buf[filled:])
		filled += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.eof = true
			} else {
				s.err = err
			}
			break
		}
		if n == 0 {
			break
		}
	}

	for i := 0; i < filled; i++ {
		samples[i][0] = float64(buf[i][0]) / 32768
		samples[i][1] = float64(buf[i][1]) / 32768
	}
	return filled, filled > 0
}

func (s *frameStreamer) Err() error { return s.err }

// resampled converts a decoder's output to the engine rate
type resampled struct {
	dec       Decoder
	rate      int
	stream    *frameStreamer
	resampler *beep.Resampler
	floats    [][2]float64
}

func (r *resampled) reset() {
	r.stream = &frameStreamer{dec: r.dec}
	r.resampler = beep.Resample(resampleQuality, beep.SampleRate(r.dec.Format().SampleRate), beep.SampleRate(r.rate), r.stream)
}

func (r *resampled) Format() Format {
	return Format{SampleRate: r.rate, Channels: Channels}
}

func (r *resampled) Read(dst []Frame) (int, error) {
	if cap(r.floats) < len(dst) {
		r.floats = make([][2]float64, len(dst))
	}
	floats := r.floats[:len(dst)]

	n, ok := r.resampler.Stream(floats)
	for i := 0; i < n; i++ {
		dst[i] = Frame{clampSample(floats[i][0]), clampSample(floats[i][1])}
	}
	if err := r.stream.Err(); err != nil {
		return n, err
	}
	if !ok || (n == 0 && r.stream.eof) {
		return n, io.EOF
	}
	return n, nil
}

// SeekFrame seeks in engine-rate frames
func (r *resampled) SeekFrame(frame int64) error {
	s, ok := r.dec.(FrameSeeker)
	if !ok {
		return errors.New("decoder cannot seek")
	}
	srcFrame := frame * int64(r.dec.Format().SampleRate) / int64(r.rate)
	if err := s.SeekFrame(srcFrame); err != nil {
		return err
	}
	r.reset()
	return nil
}

func (r *resampled) Duration() time.Duration {
	return DurationOf(r.dec)
}

func (r *resampled) Close() error {
	return r.dec.Close()
}
