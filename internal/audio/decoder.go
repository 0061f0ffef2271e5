package audio

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gabriel-vasile/mimetype"
	zlog "github.com/rs/zerolog/log"
)

// Decoder produces a finite, non-restartable sequence of frames.
// Read may return n > 0 together with io.EOF.
type Decoder interface {
	Format() Format
	Read(dst []Frame) (int, error)
	Close() error
}

// FrameSeeker is implemented by decoders that can jump to a frame offset natively
type FrameSeeker interface {
	SeekFrame(frame int64) error
}

// Durationer is implemented by decoders that know the stream length up front
type Durationer interface {
	Duration() time.Duration
}

// Source is what codecs read from. Registry.Open always hands codecs a Source
// even when the collaborator only provides a plain stream.
type Source interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

// Codec recognises and opens one container format
type Codec interface {
	Name() string
	Extensions() []string
	MimeTypes() []string
	Open(src Source) (Decoder, error)
}

const sniffBytes = 3072

// Registry maps detected formats onto codecs and normalises their output
// to the engine's sample rate.
type Registry struct {
	mu          sync.RWMutex
	codecs      []Codec
	sampleRate  int
	readTimeout time.Duration
}

// NewRegistry creates an empty registry producing frames at sampleRate.
// A zero readTimeout disables the stall guard.
func NewRegistry(sampleRate int, readTimeout time.Duration) *Registry {
	return &Registry{
		sampleRate:  sampleRate,
		readTimeout: readTimeout,
	}
}

// DefaultRegistry returns a registry with every built-in codec
func DefaultRegistry(sampleRate int, readTimeout time.Duration) *Registry {
	r := NewRegistry(sampleRate, readTimeout)
	r.Register(MP3Codec{}, WAVCodec{}, AIFFCodec{})
	return r
}

// Register adds codecs. Later registrations take precedence.
func (r *Registry) Register(codecs ...Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs = append(append([]Codec{}, codecs...), r.codecs...)
}

// SampleRate returns the rate every decoder is normalised to
func (r *Registry) SampleRate() int {
	return r.sampleRate
}

// Open detects the format of rc and returns a decoder producing stereo frames
// at the registry's sample rate. name is only used for the extension fallback.
// The decoder owns rc from here on, including on error.
func (r *Registry) Open(ctx context.Context, name string, rc io.ReadCloser) (Decoder, error) {
	guard := NewGuardReader(ctx, rc, r.readTimeout)

	src, err := toSource(guard)
	if err != nil {
		guard.Close()
		return nil, err
	}

	codec := r.detect(src, name)
	if codec == nil {
		guard.Close()
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%s", name)
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		guard.Close()
		return nil, ioFailure(err, "rewind source")
	}

	dec, err := codec.Open(src)
	if err != nil {
		guard.Close()
		if errors.Is(err, ErrUnsupportedFormat) {
			return nil, err
		}
		return nil, corrupt(err, codec.Name()+" header")
	}

	zlog.Debug().Msgf("[DECODER] Opened %s as %s (%d Hz, %d ch)", name, codec.Name(), dec.Format().SampleRate, dec.Format().Channels)

	return &closer{Decoder: normalize(dec, r.sampleRate), c: guard}, nil
}

func (r *Registry) detect(src Source, name string) Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	head := make([]byte, sniffBytes)
	n, err := src.ReadAt(head, 0)
	if err != nil && err != io.EOF {
		n = 0
	}
	if n > 0 {
		mtype := mimetype.Detect(head[:n])
		for _, c := range r.codecs {
			for _, m := range c.MimeTypes() {
				if mtype.Is(m) {
					return c
				}
			}
		}
	}

	ext := extensionOf(name)
	if ext == "" {
		return nil
	}
	for _, c := range r.codecs {
		for _, e := range c.Extensions() {
			if e == ext {
				return c
			}
		}
	}
	return nil
}

// extensionOf returns the lowercase extension of a path or URL, query stripped
func extensionOf(name string) string {
	if u, err := url.Parse(name); err == nil && u.Scheme != "" {
		name = u.Path
	} else if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(path.Ext(name))
}

// toSource returns g itself when the wrapped stream is seekable, otherwise
// buffers the whole stream in memory.
func toSource(g *GuardReader) (Source, error) {
	if g.Seekable() {
		return g, nil
	}
	data, err := io.ReadAll(g)
	if err != nil {
		return nil, ioFailure(err, "read source")
	}
	return bytes.NewReader(data), nil
}

// closer releases the source after the decoder
type closer struct {
	Decoder
	c io.Closer
}

func (d *closer) Close() error {
	err := d.Decoder.Close()
	if cerr := d.c.Close(); err == nil {
		err = cerr
	}
	return err
}

func (d *closer) SeekFrame(frame int64) error {
	if s, ok := d.Decoder.(FrameSeeker); ok {
		return s.SeekFrame(frame)
	}
	return errors.New("decoder cannot seek")
}

func (d *closer) Duration() time.Duration {
	if s, ok := d.Decoder.(Durationer); ok {
		return s.Duration()
	}
	return 0
}

// Skip discards frames from the start of dec, seeking natively when the decoder allows it
func Skip(dec Decoder, frames int64) error {
	if frames <= 0 {
		return nil
	}
	if s, ok := dec.(FrameSeeker); ok {
		if err := s.SeekFrame(frames); err == nil {
			return nil
		}
	}

	buf := make([]Frame, 1024)
	for frames > 0 {
		want := int64(len(buf))
		if frames < want {
			want = frames
		}
		n, err := dec.Read(buf[:want])
		frames -= int64(n)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
	return nil
}

// DurationOf returns the decoder's stream length when it is known
func DurationOf(dec Decoder) time.Duration {
	if d, ok := dec.(Durationer); ok {
		return d.Duration()
	}
	return 0
}
