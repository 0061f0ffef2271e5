package audio

import (
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hajimehoshi/go-mp3"
)

// MP3Codec decodes MPEG-1/2 layer III with go-mp3
type MP3Codec struct{}

func (MP3Codec) Name() string         { return "mp3" }
func (MP3Codec) Extensions() []string { return []string{".mp3"} }
func (MP3Codec) MimeTypes() []string  { return []string{"audio/mpeg"} }

// Open reads the first frame header and returns a decoder positioned at the start
func (MP3Codec) Open(src Source) (Decoder, error) {
	d, err := mp3.NewDecoder(src)
	if err != nil {
		return nil, errors.Wrap(err, "mp3 decoder")
	}
	return &mp3Decoder{d: d}, nil
}

type mp3Decoder struct {
	d   *mp3.Decoder
	raw []byte
}

func (m *mp3Decoder) Format() Format {
	return Format{SampleRate: m.d.SampleRate(), Channels: 2}
}

func (m *mp3Decoder) Read(dst []Frame) (int, error) {
	want := len(dst) * BytesPerFrame
	if cap(m.raw) < want {
		m.raw = make([]byte, want)
	}
	raw := m.raw[:want]

	n, err := io.ReadFull(m.d, raw)
	frames := decodeFrames(dst, raw[:n])
	switch {
	case err == nil:
		return frames, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return frames, io.EOF
	default:
		return frames, corrupt(err, "mp3 frame")
	}
}

// SeekFrame seeks the PCM output, go-mp3 measures offsets in output bytes
func (m *mp3Decoder) SeekFrame(frame int64) error {
	if _, err := m.d.Seek(frame*BytesPerFrame, io.SeekStart); err != nil {
		return ioFailure(err, "mp3 seek")
	}
	return nil
}

func (m *mp3Decoder) Duration() time.Duration {
	length := m.d.Length()
	if length <= 0 {
		return 0
	}
	return FramesToDuration(length/BytesPerFrame, m.d.SampleRate())
}

func (m *mp3Decoder) Close() error { return nil }
