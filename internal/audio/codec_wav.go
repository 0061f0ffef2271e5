package audio

import (
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/youpy/go-wav"
)

// WAVCodec decodes RIFF/WAVE files: PCM 8/16/24/32, IEEE float, A-law and mu-law
type WAVCodec struct{}

func (WAVCodec) Name() string         { return "wav" }
func (WAVCodec) Extensions() []string { return []string{".wav", ".wave"} }
func (WAVCodec) MimeTypes() []string  { return []string{"audio/wav"} }

// Open validates the fmt chunk
func (WAVCodec) Open(src Source) (dec Decoder, err error) {
	defer recoverRIFF(src, &err, "wav header")

	r := wav.NewReader(src)
	format, err := r.Format()
	if err != nil {
		return nil, errors.Wrap(err, "wav fmt chunk")
	}

	shift, err := wavShift(format)
	if err != nil {
		return nil, err
	}

	wd := &wavDecoder{r: r, src: src, format: format, shift: shift}
	if d, err := r.Duration(); err == nil {
		wd.duration = d
	}
	return wd, nil
}

// recoverRIFF turns a panic from the RIFF chunk reader, which panics on any
// short read, into a decoder error. A failure already recorded by the guard
// is reported as an I/O failure.
func recoverRIFF(src Source, errp *error, msg string) {
	r := recover()
	if r == nil {
		return
	}
	if g, ok := src.(*GuardReader); ok {
		if err := g.sticky(); err != nil {
			*errp = ioFailure(err, msg)
			return
		}
	}
	*errp = corrupt(errors.Newf("%v", r), msg)
}

// wavShift returns how far go-wav's sample values must be shifted down to
// fit 16 bits. Layouts the reader cannot handle are rejected up front.
func wavShift(f *wav.WavFormat) (int, error) {
	if f.NumChannels == 0 || f.NumChannels > 2 {
		return 0, errors.Mark(errors.Newf("wav: %d channels", f.NumChannels), ErrUnsupportedFormat)
	}
	if f.SampleRate == 0 || f.BlockAlign == 0 {
		return 0, errors.Newf("wav: sample rate %d, block align %d", f.SampleRate, f.BlockAlign)
	}

	switch f.AudioFormat {
	case wav.AudioFormatPCM:
		switch f.BitsPerSample {
		case 8:
			return 0, nil
		case 16:
			return 0, nil
		case 24:
			return 8, nil
		case 32:
			return 16, nil
		}
		return 0, errors.Newf("wav: %d bits per sample", f.BitsPerSample)
	case wav.AudioFormatIEEEFloat:
		if f.BitsPerSample != 32 {
			return 0, errors.Mark(errors.Newf("wav: %d-bit float", f.BitsPerSample), ErrUnsupportedFormat)
		}
		return 16, nil
	case wav.AudioFormatALaw, wav.AudioFormatMULaw:
		if f.BitsPerSample != 8 {
			return 0, errors.Newf("wav: %d-bit companded audio", f.BitsPerSample)
		}
		return 0, nil
	}
	return 0, errors.Mark(errors.Newf("wav: audio format %d", f.AudioFormat), ErrUnsupportedFormat)
}

type wavDecoder struct {
	r        *wav.Reader
	src      Source
	format   *wav.WavFormat
	shift    int
	duration time.Duration
}

func (w *wavDecoder) Format() Format {
	return Format{SampleRate: int(w.format.SampleRate), Channels: int(w.format.NumChannels)}
}

func (w *wavDecoder) Read(dst []Frame) (n int, err error) {
	defer recoverRIFF(w.src, &err, "wav samples")

	if len(dst) == 0 {
		return 0, nil
	}
	samples, err := w.r.ReadSamples(uint32(len(dst)))
	for _, s := range samples {
		if n == len(dst) {
			break
		}
		l := w.convert(s.Values[0])
		r := l
		if w.format.NumChannels == 2 {
			r = w.convert(s.Values[1])
		}
		dst[n] = Frame{l, r}
		n++
	}

	switch {
	case err == nil:
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return n, io.EOF
	default:
		return n, corrupt(err, "wav samples")
	}
}

func (w *wavDecoder) convert(v int) int16 {
	if w.format.AudioFormat == wav.AudioFormatPCM && w.format.BitsPerSample == 8 {
		return int16((v - 128) << 8)
	}
	return int16(v >> w.shift)
}

func (w *wavDecoder) Duration() time.Duration { return w.duration }

func (w *wavDecoder) Close() error { return nil }
