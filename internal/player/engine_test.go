package player

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/austinkregel/local-media/playlistd/internal/audio"
	"github.com/austinkregel/local-media/playlistd/internal/library"
	"github.com/austinkregel/local-media/playlistd/internal/queue"
	"github.com/austinkregel/local-media/playlistd/internal/types"
	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youpy/go-wav"
)

const testRate = 8000

func wavTrack(t *testing.T, frames int, bits uint16) []byte {
	t.Helper()
	samples := make([]wav.Sample, frames)
	for i := range samples {
		samples[i].Values[0] = i % 100
		samples[i].Values[1] = -(i % 100)
	}
	var buf bytes.Buffer
	w := wav.NewWriter(&buf, uint32(frames), 2, testRate, bits)
	require.NoError(t, w.WriteSamples(samples))
	return buf.Bytes()
}

type memTrack struct {
	*bytes.Reader
}

func (memTrack) Close() error { return nil }

type testLibrary struct {
	mu          sync.Mutex
	files       map[string][]byte
	collections map[string][]string
	hold        chan struct{} // when set, Open blocks until it is closed
	opened      []string
}

func newTestLibrary() *testLibrary {
	return &testLibrary{files: map[string][]byte{}, collections: map[string][]string{}}
}

func (l *testLibrary) add(collection, id string, data []byte) {
	l.files[id] = data
	l.collections[collection] = append(l.collections[collection], id)
}

func (l *testLibrary) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	l.mu.Lock()
	hold := l.hold
	l.opened = append(l.opened, id)
	data, ok := l.files[id]
	l.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, errors.Wrap(library.ErrNotFound, id)
	}
	return memTrack{bytes.NewReader(data)}, nil
}

func (l *testLibrary) List(ctx context.Context, name string) (types.Collection, error) {
	ids, ok := l.collections[name]
	if !ok {
		return types.Collection{}, errors.Wrapf(library.ErrNotFound, "collection %q", name)
	}
	c := types.Collection{Name: name}
	for _, id := range ids {
		c.Tracks = append(c.Tracks, types.Track{ID: id, Title: id, Collection: name})
	}
	return c, nil
}

func (l *testLibrary) Collections(ctx context.Context) ([]string, error) {
	var names []string
	for name := range l.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (l *testLibrary) setHold(ch chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hold = ch
}

type preloadingLibrary struct {
	*testLibrary
	preloaded chan string
}

func (l *preloadingLibrary) Preload(ctx context.Context, id string) error {
	l.preloaded <- id
	return nil
}

// manualSink hands the pump to the test, which drives it with fill
type manualSink struct {
	pump *audio.Pump
	err  error
}

func (s *manualSink) Name() string { return "manual" }

func (s *manualSink) Start(p *audio.Pump) error {
	if s.err != nil {
		return s.err
	}
	s.pump = p
	return nil
}

func (s *manualSink) Close() error { return nil }

func (s *manualSink) fill(frames int) int {
	return s.pump.Fill(make([]audio.Frame, frames))
}

var testOptions = Options{
	RingFrames:      256,
	WatermarkFrames: 200,
	ChunkFrames:     32,
	RetryDelay:      time.Millisecond,
	PushBackoff:     time.Millisecond,
}

func newTestController(t *testing.T, lib library.Library, sink *manualSink) *Controller {
	t.Helper()
	e := NewEngine(lib, audio.DefaultRegistry(testRate, time.Second), sink, queue.NewManager(1), testOptions)
	t.Cleanup(func() { e.Close() })
	_ = e.Start()
	return NewController(e, lib)
}

func waitFor(t *testing.T, c *Controller, msg string, cond func(Status) bool) Status {
	t.Helper()
	var mu sync.Mutex
	var last Status
	ok := assert.Eventually(t, func() bool {
		st := c.Query()
		mu.Lock()
		last = st
		mu.Unlock()
		return cond(st)
	}, 2*time.Second, time.Millisecond, msg)
	mu.Lock()
	defer mu.Unlock()
	if !ok {
		t.FailNow()
	}
	return last
}

func playing(id string) func(Status) bool {
	return func(st Status) bool {
		return st.State == StatePlaying && st.Track != nil && st.Track.ID == id
	}
}

func inState(state State) func(Status) bool {
	return func(st Status) bool { return st.State == state }
}

// collect reads statuses until one matches stop
func collect(t *testing.T, ch <-chan Status, stop func(Status) bool) []Status {
	t.Helper()
	var out []Status
	timeout := time.After(2 * time.Second)
	for {
		select {
		case st, ok := <-ch:
			require.True(t, ok, "subscription closed")
			out = append(out, st)
			if stop(st) {
				return out
			}
		case <-timeout:
			t.Fatalf("no matching status after %d events", len(out))
		}
	}
}

// idleAfterStart matches the first Idle status that follows playback starting
func idleAfterStart() func(Status) bool {
	started := false
	return func(st Status) bool {
		if st.State == StateBuffering {
			started = true
		}
		return started && st.State == StateIdle
	}
}

func playedTracks(events []Status) []string {
	var ids []string
	for _, st := range events {
		if st.State == StatePlaying && st.Track != nil {
			if len(ids) == 0 || ids[len(ids)-1] != st.Track.ID {
				ids = append(ids, st.Track.ID)
			}
		}
	}
	return ids
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	d := DefaultOptions()
	assert.Equal(t, d.RingFrames, o.RingFrames)
	assert.Equal(t, d.WatermarkFrames, o.WatermarkFrames)
	assert.Equal(t, d.ChunkFrames, o.ChunkFrames)
	assert.Equal(t, 250*time.Millisecond, o.RetryDelay)
	assert.Equal(t, d.PushBackoff, o.PushBackoff)
	assert.Equal(t, 0, o.OpenRetries, "zero retries is a valid choice")

	o = Options{OpenRetries: -1, RetryDelay: time.Second}.withDefaults()
	assert.Equal(t, 0, o.OpenRetries)
	assert.Equal(t, time.Second, o.RetryDelay)
}

func TestPlaysCollectionToTheEnd(t *testing.T) {
	lib := newTestLibrary()
	for _, id := range []string{"a", "b", "c"} {
		lib.add("rain", id, wavTrack(t, 100, 16))
	}
	sink := &manualSink{}
	c := newTestController(t, lib, sink)
	events, cancel := c.Subscribe()
	defer cancel()

	require.NoError(t, c.SetCollection(context.Background(), "rain"))
	require.NoError(t, c.Play(""))

	for _, id := range []string{"a", "b", "c"} {
		waitFor(t, c, "playing "+id, playing(id))
		assert.Equal(t, 100, sink.fill(200), "whole track is buffered before output starts")
	}

	got := collect(t, events, idleAfterStart())
	assert.Equal(t, []string{"a", "b", "c"}, playedTracks(got))
	assert.Equal(t, StateIdle, c.Query().State)
}

func TestFailedTrackIsReportedAndSkipped(t *testing.T) {
	lib := newTestLibrary()
	lib.add("rain", "a", wavTrack(t, 100, 16))
	lib.add("rain", "b", wavTrack(t, 100, 12)) // unreadable bit depth
	lib.add("rain", "c", wavTrack(t, 100, 16))
	sink := &manualSink{}
	c := newTestController(t, lib, sink)
	events, cancel := c.Subscribe()
	defer cancel()

	require.NoError(t, c.SetCollection(context.Background(), "rain"))
	require.NoError(t, c.Play(""))
	waitFor(t, c, "playing a", playing("a"))
	sink.fill(200)

	got := collect(t, events, playing("c"))

	var failure *Status
	for i := range got {
		if got[i].State == StateError {
			failure = &got[i]
		}
	}
	require.NotNil(t, failure, "expected an error status")
	assert.Equal(t, audio.KindCorruptStream, failure.ErrorKind)
	require.NotNil(t, failure.Track)
	assert.Equal(t, "b", failure.Track.ID)
	assert.Equal(t, []string{"a", "c"}, playedTracks(got))

	st := c.Query()
	assert.Equal(t, audio.KindNone, st.ErrorKind, "error clears once the next track starts")
}

func TestTruncatedWAVIsSkipped(t *testing.T) {
	lib := newTestLibrary()
	lib.add("rain", "a.wav", wavTrack(t, 100, 16))
	lib.add("rain", "b.wav", []byte("RIFF\x10\x00"))
	lib.add("rain", "c.wav", wavTrack(t, 100, 16))
	sink := &manualSink{}
	c := newTestController(t, lib, sink)
	events, cancel := c.Subscribe()
	defer cancel()

	require.NoError(t, c.SetCollection(context.Background(), "rain"))
	require.NoError(t, c.Play(""))
	waitFor(t, c, "playing a", playing("a.wav"))
	sink.fill(200)

	got := collect(t, events, playing("c.wav"))

	var kinds []audio.ErrorKind
	for _, st := range got {
		if st.State == StateError {
			kinds = append(kinds, st.ErrorKind)
		}
	}
	assert.Equal(t, []audio.ErrorKind{audio.KindCorruptStream}, kinds)
	assert.Equal(t, []string{"a.wav", "c.wav"}, playedTracks(got))
}

func TestAllTracksFailingGoesIdle(t *testing.T) {
	lib := newTestLibrary()
	lib.add("broken", "x", []byte("not audio at all, just text"))
	lib.add("broken", "y", wavTrack(t, 10, 12))
	c := newTestController(t, lib, &manualSink{})
	events, cancel := c.Subscribe()
	defer cancel()

	require.NoError(t, c.SetCollection(context.Background(), "broken"))
	require.NoError(t, c.Play(""))

	got := collect(t, events, idleAfterStart())
	kinds := []audio.ErrorKind{}
	for _, st := range got {
		if st.State == StateError {
			kinds = append(kinds, st.ErrorKind)
		}
	}
	assert.Equal(t, []audio.ErrorKind{audio.KindUnsupportedFormat, audio.KindCorruptStream}, kinds)
}

func TestMissingTrackIsAnIoFailure(t *testing.T) {
	lib := newTestLibrary()
	lib.collections["rain"] = []string{"gone"}
	c := newTestController(t, lib, &manualSink{})
	events, cancel := c.Subscribe()
	defer cancel()

	require.NoError(t, c.SetCollection(context.Background(), "rain"))
	require.NoError(t, c.Play(""))

	got := collect(t, events, inState(StateError))
	assert.Equal(t, audio.KindIoFailure, got[len(got)-1].ErrorKind)
	waitFor(t, c, "idle", inState(StateIdle))
}

func TestStopDuringBuffering(t *testing.T) {
	lib := newTestLibrary()
	lib.add("rain", "a", wavTrack(t, 100, 16))
	lib.setHold(make(chan struct{}))
	c := newTestController(t, lib, &manualSink{})

	require.NoError(t, c.SetCollection(context.Background(), "rain"))
	require.NoError(t, c.Play(""))
	assert.Equal(t, StateBuffering, c.Query().State)

	e := c.Engine()
	e.mu.Lock()
	done := e.session.done
	e.mu.Unlock()

	require.NoError(t, c.Stop())
	assert.Equal(t, StateStopped, c.Query().State)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("decode worker did not exit after stop")
	}
	assert.Equal(t, StateStopped, c.Query().State, "a cancelled worker reports nothing")
	assert.Empty(t, c.Query().SessionID)
}

func TestPauseKeepsElapsedFrames(t *testing.T) {
	lib := newTestLibrary()
	lib.add("rain", "long", wavTrack(t, 1000, 16))
	sink := &manualSink{}
	c := newTestController(t, lib, sink)

	require.NoError(t, c.SetCollection(context.Background(), "rain"))
	require.NoError(t, c.Play(""))
	waitFor(t, c, "playing", playing("long"))

	assert.Equal(t, 100, sink.fill(100))
	assert.Equal(t, int64(100), c.Query().ElapsedFrames)

	require.NoError(t, c.Pause())
	assert.Equal(t, StatePaused, c.Query().State)
	assert.Equal(t, 0, sink.fill(50), "paused output is silent")
	assert.Equal(t, int64(100), c.Query().ElapsedFrames)

	require.NoError(t, c.Resume())
	assert.Equal(t, StatePlaying, c.Query().State)
	assert.Equal(t, int64(100), c.Query().ElapsedFrames)

	assert.Equal(t, 30, sink.fill(30))
	assert.Equal(t, int64(130), c.Query().ElapsedFrames)
}

func TestStarvationRefillsWithoutRestarting(t *testing.T) {
	lib := newTestLibrary()
	lib.add("rain", "long", wavTrack(t, 1000, 16))
	sink := &manualSink{}
	c := newTestController(t, lib, sink)

	require.NoError(t, c.SetCollection(context.Background(), "rain"))
	require.NoError(t, c.Play(""))
	before := waitFor(t, c, "playing", playing("long"))

	// hold the worker so the next pull runs the ring dry
	e := c.Engine()
	e.mu.Lock()
	e.session.gate.Close()
	e.mu.Unlock()

	sink.fill(1000)
	waitFor(t, c, "buffering after underrun", inState(StateBuffering))

	e.mu.Lock()
	e.session.gate.Open()
	e.mu.Unlock()

	after := waitFor(t, c, "playing again", playing("long"))
	assert.Equal(t, before.SessionID, after.SessionID, "same session refills")
}

func TestTransitionTable(t *testing.T) {
	setups := map[State]func(t *testing.T, c *Controller, lib *testLibrary){
		StateIdle: func(t *testing.T, c *Controller, lib *testLibrary) {},
		StateBuffering: func(t *testing.T, c *Controller, lib *testLibrary) {
			lib.setHold(make(chan struct{}))
			require.NoError(t, c.Play(""))
		},
		StatePlaying: func(t *testing.T, c *Controller, lib *testLibrary) {
			require.NoError(t, c.Play(""))
			waitFor(t, c, "playing", inState(StatePlaying))
		},
		StatePaused: func(t *testing.T, c *Controller, lib *testLibrary) {
			require.NoError(t, c.Play(""))
			waitFor(t, c, "playing", inState(StatePlaying))
			require.NoError(t, c.Pause())
		},
		StateStopped: func(t *testing.T, c *Controller, lib *testLibrary) {
			require.NoError(t, c.Play(""))
			waitFor(t, c, "playing", inState(StatePlaying))
			require.NoError(t, c.Stop())
		},
	}

	commands := map[string]func(c *Controller) error{
		"play":      func(c *Controller) error { return c.Play("") },
		"play long": func(c *Controller) error { return c.Play("long") },
		"pause":     (*Controller).Pause,
		"resume":    (*Controller).Resume,
		"stop":      (*Controller).Stop,
	}

	started := []State{StateBuffering, StatePlaying}
	tests := []struct {
		from    State
		command string
		want    []State
	}{
		{StateIdle, "play", started},
		{StateIdle, "play long", started},
		{StateIdle, "pause", []State{StateIdle}},
		{StateIdle, "resume", []State{StateIdle}},
		{StateIdle, "stop", []State{StateIdle}},
		{StateBuffering, "play", []State{StateBuffering}},
		{StateBuffering, "play long", []State{StateBuffering}},
		{StateBuffering, "pause", []State{StateBuffering}},
		{StateBuffering, "resume", []State{StateBuffering}},
		{StateBuffering, "stop", []State{StateStopped}},
		{StatePlaying, "play", []State{StatePlaying}},
		{StatePlaying, "play long", []State{StatePlaying}},
		{StatePlaying, "pause", []State{StatePaused}},
		{StatePlaying, "resume", []State{StatePlaying}},
		{StatePlaying, "stop", []State{StateStopped}},
		{StatePaused, "play", []State{StatePlaying}},
		{StatePaused, "play long", []State{StatePlaying}},
		{StatePaused, "pause", []State{StatePaused}},
		{StatePaused, "resume", []State{StatePlaying}},
		{StatePaused, "stop", []State{StateStopped}},
		{StateStopped, "play", started},
		{StateStopped, "play long", started},
		{StateStopped, "pause", []State{StateStopped}},
		{StateStopped, "resume", []State{StateStopped}},
		{StateStopped, "stop", []State{StateStopped}},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.command, func(t *testing.T) {
			lib := newTestLibrary()
			lib.add("rain", "long", wavTrack(t, 1000, 16))
			c := newTestController(t, lib, &manualSink{})
			require.NoError(t, c.SetCollection(context.Background(), "rain"))

			setups[tt.from](t, c, lib)
			require.Equal(t, tt.from, c.Query().State, "setup")

			require.NoError(t, commands[tt.command](c))
			assert.Contains(t, tt.want, c.Query().State)

			// repeating a command never changes the outcome
			require.NoError(t, commands[tt.command](c))
			assert.Contains(t, tt.want, c.Query().State)
		})
	}
}

func TestPlayingTheLiveTrackKeepsSession(t *testing.T) {
	lib := newTestLibrary()
	lib.add("rain", "long", wavTrack(t, 1000, 16))
	lib.add("rain", "short", wavTrack(t, 100, 16))
	sink := &manualSink{}
	c := newTestController(t, lib, sink)

	require.NoError(t, c.SetCollection(context.Background(), "rain"))
	require.NoError(t, c.Play("long"))
	before := waitFor(t, c, "playing", playing("long"))
	assert.Equal(t, 100, sink.fill(100))

	require.NoError(t, c.Play("long"))
	after := c.Query()
	assert.Equal(t, StatePlaying, after.State)
	assert.Equal(t, before.SessionID, after.SessionID)
	assert.Equal(t, int64(100), after.ElapsedFrames)

	require.NoError(t, c.Play("short"))
	switched := waitFor(t, c, "playing short", playing("short"))
	assert.NotEqual(t, before.SessionID, switched.SessionID)
}

func TestDeviceUnavailable(t *testing.T) {
	lib := newTestLibrary()
	lib.add("rain", "a", wavTrack(t, 100, 16))
	sink := &manualSink{err: errors.New("no such device")}
	c := newTestController(t, lib, sink)
	require.NoError(t, c.SetCollection(context.Background(), "rain"))

	err := c.Play("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCommand))
	assert.True(t, errors.Is(err, audio.ErrDeviceUnavailable))
	assert.Equal(t, StateIdle, c.Query().State)

	assert.Error(t, c.Next())
	assert.Equal(t, StateIdle, c.Query().State)
}

func TestInvalidCommandsLeaveStateAlone(t *testing.T) {
	lib := newTestLibrary()
	lib.add("rain", "a", wavTrack(t, 1000, 16))
	c := newTestController(t, lib, &manualSink{})
	ctx := context.Background()

	err := c.Play("")
	assert.True(t, errors.Is(err, ErrInvalidCommand), "empty queue")

	err = c.SetCollection(ctx, "nowhere")
	assert.True(t, errors.Is(err, ErrInvalidCommand))

	require.NoError(t, c.SetCollection(ctx, "rain"))
	require.NoError(t, c.Play(""))
	waitFor(t, c, "playing", inState(StatePlaying))

	err = c.Play("missing")
	assert.True(t, errors.Is(err, ErrInvalidCommand))
	err = c.SetVolume(1.5)
	assert.True(t, errors.Is(err, ErrInvalidCommand))
	_, err = ParsePolicy("sideways")
	assert.True(t, errors.Is(err, ErrInvalidCommand))

	assert.Equal(t, StatePlaying, c.Query().State)
}

func TestRepeatOneReplaysTrack(t *testing.T) {
	lib := newTestLibrary()
	lib.add("rain", "a", wavTrack(t, 100, 16))
	lib.add("rain", "b", wavTrack(t, 100, 16))
	sink := &manualSink{}
	c := newTestController(t, lib, sink)

	require.NoError(t, c.SetCollection(context.Background(), "rain"))
	require.NoError(t, c.SetPolicy(types.PolicyRepeatOne))
	require.NoError(t, c.Play(""))

	first := waitFor(t, c, "playing a", playing("a"))
	sink.fill(200)
	second := waitFor(t, c, "a again", func(st Status) bool {
		return playing("a")(st) && st.SessionID != first.SessionID
	})
	assert.Equal(t, int64(0), second.ElapsedFrames)
}

func TestSeekByBackwardsNearStartGoesToPrevious(t *testing.T) {
	lib := newTestLibrary()
	lib.add("rain", "a", wavTrack(t, 1000, 16))
	lib.add("rain", "b", wavTrack(t, 1000, 16))
	c := newTestController(t, lib, &manualSink{})

	require.NoError(t, c.SetCollection(context.Background(), "rain"))
	require.NoError(t, c.Play(""))
	waitFor(t, c, "playing a", playing("a"))
	require.NoError(t, c.Next())
	waitFor(t, c, "playing b", playing("b"))

	require.NoError(t, c.SeekBy(-SeekStep))
	waitFor(t, c, "back to a", playing("a"))
}

func TestSeekRestartsAtOffset(t *testing.T) {
	lib := newTestLibrary()
	lib.add("rain", "long", wavTrack(t, 1000, 16))
	sink := &manualSink{}
	c := newTestController(t, lib, sink)

	require.NoError(t, c.SetCollection(context.Background(), "rain"))
	require.NoError(t, c.Play(""))
	first := waitFor(t, c, "playing", playing("long"))
	assert.Equal(t, int64(125), first.Duration)

	require.NoError(t, c.Seek(50*time.Millisecond))
	st := waitFor(t, c, "playing after seek", func(st Status) bool {
		return playing("long")(st) && st.SessionID != first.SessionID
	})
	assert.Equal(t, int64(400), st.ElapsedFrames)
	assert.Equal(t, int64(50), st.Position)

	sink.fill(10)
	assert.Equal(t, int64(410), c.Query().ElapsedFrames)
}

func TestSeekWhilePausedStaysPaused(t *testing.T) {
	lib := newTestLibrary()
	lib.add("rain", "long", wavTrack(t, 1000, 16))
	c := newTestController(t, lib, &manualSink{})

	require.NoError(t, c.SetCollection(context.Background(), "rain"))
	require.NoError(t, c.Play(""))
	waitFor(t, c, "playing", inState(StatePlaying))
	require.NoError(t, c.Pause())

	require.NoError(t, c.Seek(25*time.Millisecond))
	st := waitFor(t, c, "paused after seek", inState(StatePaused))
	assert.Equal(t, int64(200), st.ElapsedFrames)

	require.NoError(t, c.Resume())
	assert.Equal(t, StatePlaying, c.Query().State)
}

func TestPreloadsNextTrack(t *testing.T) {
	base := newTestLibrary()
	base.add("rain", "a", wavTrack(t, 100, 16))
	base.add("rain", "b", wavTrack(t, 100, 16))
	lib := &preloadingLibrary{testLibrary: base, preloaded: make(chan string, 4)}
	c := newTestController(t, lib, &manualSink{})

	require.NoError(t, c.SetCollection(context.Background(), "rain"))
	require.NoError(t, c.Play(""))

	select {
	case id := <-lib.preloaded:
		assert.Equal(t, "b", id)
	case <-time.After(time.Second):
		t.Fatal("next track was not preloaded")
	}
}

func TestSetCollectionKeepsCurrentSession(t *testing.T) {
	lib := newTestLibrary()
	lib.add("rain", "a", wavTrack(t, 100, 16))
	lib.add("forest", "x", wavTrack(t, 100, 16))
	sink := &manualSink{}
	c := newTestController(t, lib, sink)
	ctx := context.Background()

	require.NoError(t, c.SetCollection(ctx, "rain"))
	require.NoError(t, c.Play(""))
	first := waitFor(t, c, "playing a", playing("a"))

	require.NoError(t, c.SetCollection(ctx, "forest"))
	st := c.Query()
	assert.Equal(t, first.SessionID, st.SessionID)
	assert.Equal(t, "forest", st.Collection)

	sink.fill(200)
	waitFor(t, c, "playing x", playing("x"))
}

func TestVolumeAndSubscription(t *testing.T) {
	lib := newTestLibrary()
	c := newTestController(t, lib, &manualSink{})
	events, cancel := c.Subscribe()

	first := <-events
	assert.Equal(t, StateIdle, first.State)

	require.NoError(t, c.SetVolume(0.25))
	st := <-events
	assert.Equal(t, 0.25, st.Volume)
	assert.Equal(t, 0.25, c.Query().Volume)

	cancel()
	_, ok := <-events
	assert.False(t, ok, "cancel closes the channel")
}

func TestRestoreQueue(t *testing.T) {
	lib := newTestLibrary()
	lib.add("rain", "a", wavTrack(t, 10, 16))
	lib.add("rain", "b", wavTrack(t, 10, 16))
	c := newTestController(t, lib, &manualSink{})

	fs := newMemStore(t, `{"collection":"rain","trackId":"b","policy":"repeat-all"}`)
	store := queue.NewStore(fs, "/state", c.Engine().Queue())
	require.NoError(t, c.Restore(context.Background(), store))

	st := c.Query()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, "rain", st.Collection)
	assert.Equal(t, types.PolicyRepeatAll, st.Policy)
	require.NotNil(t, st.Track)
	assert.Equal(t, "b", st.Track.ID)
}

func newMemStore(t *testing.T, content string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/state/queue.json", []byte(content), 0600))
	return fs
}
