package audio

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youpy/go-wav"
)

// memFile is a seekable in-memory track as a library would return it
type memFile struct {
	*bytes.Reader
	closed bool
}

func (m *memFile) Close() error {
	m.closed = true
	return nil
}

func newMemFile(data []byte) *memFile {
	return &memFile{Reader: bytes.NewReader(data)}
}

func makeWAV(t *testing.T, channels uint16, rate uint32, bits uint16, samples []wav.Sample) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := wav.NewWriter(&buf, uint32(len(samples)), channels, rate, bits)
	require.NoError(t, w.WriteSamples(samples))
	return buf.Bytes()
}

func stereoRamp(n int) []wav.Sample {
	samples := make([]wav.Sample, n)
	for i := range samples {
		samples[i].Values[0] = i * 10
		samples[i].Values[1] = -i * 10
	}
	return samples
}

func readAll(t *testing.T, dec Decoder) []Frame {
	t.Helper()
	var out []Frame
	buf := make([]Frame, 100)
	for {
		n, err := dec.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
	}
}

func TestRegistryOpensStereoWAV(t *testing.T) {
	reg := DefaultRegistry(44100, 0)
	f := newMemFile(makeWAV(t, 2, 44100, 16, stereoRamp(500)))

	dec, err := reg.Open(context.Background(), "music/ambient/01_rain.wav", f)
	require.NoError(t, err)

	assert.Equal(t, Format{SampleRate: 44100, Channels: 2}, dec.Format())
	frames := readAll(t, dec)
	require.Len(t, frames, 500)
	assert.Equal(t, Frame{0, 0}, frames[0])
	assert.Equal(t, Frame{4990, -4990}, frames[499])

	require.NoError(t, dec.Close())
	assert.True(t, f.closed)
}

func TestRegistryDuplicatesMono(t *testing.T) {
	reg := DefaultRegistry(8000, 0)
	samples := []wav.Sample{{Values: [2]int{100}}, {Values: [2]int{-200}}}

	dec, err := reg.Open(context.Background(), "mono.wav", newMemFile(makeWAV(t, 1, 8000, 16, samples)))
	require.NoError(t, err)

	assert.Equal(t, []Frame{{100, 100}, {-200, -200}}, readAll(t, dec))
}

func TestRegistryWidensEightBit(t *testing.T) {
	reg := DefaultRegistry(8000, 0)
	samples := []wav.Sample{{Values: [2]int{128, 0}}, {Values: [2]int{255, 129}}}

	dec, err := reg.Open(context.Background(), "lofi.wav", newMemFile(makeWAV(t, 2, 8000, 8, samples)))
	require.NoError(t, err)

	assert.Equal(t, []Frame{{0, -32768}, {127 << 8, 1 << 8}}, readAll(t, dec))
}

func TestRegistryResamplesToEngineRate(t *testing.T) {
	reg := DefaultRegistry(44100, 0)
	dec, err := reg.Open(context.Background(), "slow.wav", newMemFile(makeWAV(t, 2, 22050, 16, stereoRamp(2205))))
	require.NoError(t, err)

	assert.Equal(t, 44100, dec.Format().SampleRate)
	frames := readAll(t, dec)
	assert.Greater(t, len(frames), 4000)
	assert.LessOrEqual(t, len(frames), 4500)
}

func TestRegistryUnsupportedFormat(t *testing.T) {
	reg := DefaultRegistry(44100, 0)
	f := newMemFile([]byte("just some notes about the album"))

	_, err := reg.Open(context.Background(), "notes.txt", f)
	require.Error(t, err)
	assert.Equal(t, KindUnsupportedFormat, KindOf(err))
	assert.True(t, f.closed)
}

func TestRegistryCorruptHeader(t *testing.T) {
	reg := DefaultRegistry(44100, 0)
	// 12-bit PCM is not a layout the wav reader can unpack
	data := makeWAV(t, 2, 44100, 12, nil)

	_, err := reg.Open(context.Background(), "odd.wav", newMemFile(data))
	require.Error(t, err)
	assert.Equal(t, KindCorruptStream, KindOf(err))
}

func TestRegistryRejectsSurroundWAV(t *testing.T) {
	reg := DefaultRegistry(44100, 0)
	data := makeWAV(t, 2, 44100, 16, nil)
	// patch NumChannels in the fmt chunk to 6
	data[22] = 6

	_, err := reg.Open(context.Background(), "surround.wav", newMemFile(data))
	require.Error(t, err)
	assert.Equal(t, KindUnsupportedFormat, KindOf(err))
}

type fakeCodec struct {
	opened int
}

func (c *fakeCodec) Name() string         { return "fake" }
func (c *fakeCodec) Extensions() []string { return []string{".fake"} }
func (c *fakeCodec) MimeTypes() []string  { return nil }
func (c *fakeCodec) Open(src Source) (Decoder, error) {
	c.opened++
	return &fakeDecoder{remaining: 10, rate: 44100}, nil
}

type fakeDecoder struct {
	remaining int
	rate      int
	closed    bool
}

func (d *fakeDecoder) Format() Format { return Format{SampleRate: d.rate, Channels: 2} }
func (d *fakeDecoder) Close() error   { d.closed = true; return nil }
func (d *fakeDecoder) Read(dst []Frame) (int, error) {
	if d.remaining == 0 {
		return 0, io.EOF
	}
	n := len(dst)
	if n > d.remaining {
		n = d.remaining
	}
	for i := 0; i < n; i++ {
		dst[i] = Frame{1, 1}
	}
	d.remaining -= n
	return n, nil
}

func TestRegistryExtensionFallback(t *testing.T) {
	reg := NewRegistry(44100, 0)
	codec := &fakeCodec{}
	reg.Register(codec)

	dec, err := reg.Open(context.Background(), "http://host/set/track.FAKE?dl=1", io.NopCloser(bytes.NewReader([]byte("xyz"))))
	require.NoError(t, err)
	assert.Equal(t, 1, codec.opened)
	assert.Len(t, readAll(t, dec), 10)
}

func TestExtensionOf(t *testing.T) {
	tests := map[string]string{
		"a/b/c.MP3":                   ".mp3",
		"song.wav?x=1":                ".wav",
		"https://host/dir/t%20x.aiff": ".aiff",
		"https://host/dir/t.mp3#frag": ".mp3",
		"no-extension":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, extensionOf(in), in)
	}
}

func TestSkipReadsThroughWithoutSeeker(t *testing.T) {
	dec := &fakeDecoder{remaining: 3000, rate: 44100}
	require.NoError(t, Skip(dec, 2500))
	assert.Equal(t, 500, dec.remaining)

	require.NoError(t, Skip(dec, 10000), "skipping past the end is not an error")
	assert.Equal(t, 0, dec.remaining)
}

type stallReader struct {
	release chan struct{}
}

func (s *stallReader) Read(p []byte) (int, error) {
	<-s.release
	return 0, io.EOF
}

func (s *stallReader) Close() error { return nil }

func TestGuardReaderTimesOut(t *testing.T) {
	src := &stallReader{release: make(chan struct{})}
	defer close(src.release)

	g := NewGuardReader(context.Background(), src, 20*time.Millisecond)
	start := time.Now()
	_, err := g.Read(make([]byte, 16))

	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, errors.Is(err, ErrReadStalled))
	assert.Equal(t, KindIoFailure, KindOf(err))

	_, err = g.Read(make([]byte, 16))
	assert.True(t, errors.Is(err, ErrReadStalled), "stall is sticky")
}

func TestGuardReaderHonoursContext(t *testing.T) {
	src := &stallReader{release: make(chan struct{})}
	defer close(src.release)

	ctx, cancel := context.WithCancel(context.Background())
	g := NewGuardReader(ctx, src, 0)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := g.Read(make([]byte, 16))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGuardReaderPassesData(t *testing.T) {
	g := NewGuardReader(context.Background(), newMemFile([]byte("abcdef")), time.Second)
	require.True(t, g.Seekable())

	buf := make([]byte, 4)
	n, err := g.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf[:n]))

	n, err = g.ReadAt(buf[:2], 4)
	require.NoError(t, err)
	assert.Equal(t, "ef", string(buf[:n]))
}
