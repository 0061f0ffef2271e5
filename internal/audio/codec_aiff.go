package audio

import (
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
)

// AIFFCodec decodes uncompressed AIFF through go-audio
type AIFFCodec struct{}

func (AIFFCodec) Name() string         { return "aiff" }
func (AIFFCodec) Extensions() []string { return []string{".aif", ".aiff", ".aifc"} }
func (AIFFCodec) MimeTypes() []string  { return []string{"audio/aiff"} }

// Open reads the COMM chunk
func (AIFFCodec) Open(src Source) (Decoder, error) {
	d := aiff.NewDecoder(src)
	d.ReadInfo()
	if !d.IsValidFile() {
		return nil, errors.New("aiff: invalid file")
	}

	channels := int(d.NumChans)
	bits := int(d.SampleBitDepth())
	if channels == 0 || d.SampleRate == 0 {
		return nil, errors.Newf("aiff: %d channels at %d Hz", channels, d.SampleRate)
	}
	if bits < 8 || bits > 32 {
		return nil, errors.Newf("aiff: %d bits per sample", bits)
	}

	dec := &aiffDecoder{
		d:        d,
		channels: channels,
		bits:     bits,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: d.SampleRate},
			SourceBitDepth: bits,
		},
	}
	if dur, err := d.Duration(); err == nil {
		dec.duration = dur
	}
	return dec, nil
}

type aiffDecoder struct {
	d        *aiff.Decoder
	channels int
	bits     int
	buf      *goaudio.IntBuffer
	duration time.Duration
}

func (a *aiffDecoder) Format() Format {
	return Format{SampleRate: a.d.SampleRate, Channels: a.channels}
}

func (a *aiffDecoder) Read(dst []Frame) (int, error) {
	want := len(dst) * a.channels
	if cap(a.buf.Data) < want {
		a.buf.Data = make([]int, want)
	}
	a.buf.Data = a.buf.Data[:want]

	n, err := a.d.PCMBuffer(a.buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		} else {
			err = corrupt(err, "aiff samples")
		}
	}

	frames := n / a.channels
	for i := 0; i < frames; i++ {
		base := i * a.channels
		l := a.sample(a.buf.Data[base])
		r := l
		if a.channels > 1 {
			r = a.sample(a.buf.Data[base+1])
		}
		dst[i] = Frame{l, r}
	}

	if err == nil && n == 0 {
		err = io.EOF
	}
	return frames, err
}

func (a *aiffDecoder) sample(v int) int16 {
	switch {
	case a.bits > 16:
		return int16(v >> (a.bits - 16))
	case a.bits < 16:
		return int16(v << (16 - a.bits))
	default:
		return int16(v)
	}
}

func (a *aiffDecoder) Duration() time.Duration { return a.duration }

func (a *aiffDecoder) Close() error { return nil }
