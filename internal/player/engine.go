package player

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/austinkregel/local-media/playlistd/internal/audio"
	"github.com/austinkregel/local-media/playlistd/internal/library"
	"github.com/austinkregel/local-media/playlistd/internal/queue"
	"github.com/austinkregel/local-media/playlistd/internal/types"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Options tunes the decode pipeline
type Options struct {
	RingFrames      int           // ring capacity per session
	WatermarkFrames int           // frames buffered before output starts
	ChunkFrames     int           // frames decoded per read
	OpenRetries     int           // extra attempts when the library fails to open a track
	RetryDelay      time.Duration // pause between open attempts
	PushBackoff     time.Duration // producer sleep while the ring is full
}

// DefaultOptions returns options sized for 44.1kHz output: a two second ring
// that starts playing after a quarter second.
func DefaultOptions() Options {
	return Options{
		RingFrames:      88200,
		WatermarkFrames: 11025,
		ChunkFrames:     4096,
		OpenRetries:     2,
		RetryDelay:      250 * time.Millisecond,
		PushBackoff:     10 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RingFrames <= 0 {
		o.RingFrames = d.RingFrames
	}
	if o.WatermarkFrames <= 0 {
		o.WatermarkFrames = d.WatermarkFrames
	}
	if o.ChunkFrames <= 0 {
		o.ChunkFrames = d.ChunkFrames
	}
	if o.OpenRetries < 0 {
		o.OpenRetries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = d.RetryDelay
	}
	if o.PushBackoff <= 0 {
		o.PushBackoff = d.PushBackoff
	}
	return o
}

const subscriberBacklog = 64

// Engine is the player state machine. It owns the single live playback
// session and the player state; every state change goes through setStateLocked.
type Engine struct {
	mu       sync.Mutex
	opts     Options
	lib      library.Library
	registry *audio.Registry
	pump     *audio.Pump
	sink     audio.Sink
	queue    *queue.Manager

	state    State
	errKind  audio.ErrorKind
	errMsg   string
	session  *session
	failures int // consecutive tracks that failed to decode

	deviceErr error
	started   bool

	subs    map[int]chan Status
	nextSub int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// session is one track being decoded into its own ring
type session struct {
	id         string
	track      types.Track
	ring       *audio.Ring
	gate       *gate
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	startFrame int64
	duration   time.Duration
	holdPaused bool        // enter Paused rather than Playing once primed
	needPrime  atomic.Bool // waiting for the watermark before output resumes
}

// NewEngine creates an engine. Start must be called before playback.
func NewEngine(lib library.Library, registry *audio.Registry, sink audio.Sink, q *queue.Manager, opts Options) *Engine {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		opts:     opts,
		lib:      lib,
		registry: registry,
		pump:     audio.NewPump(opts.ChunkFrames),
		sink:     sink,
		queue:    q,
		subs:     make(map[int]chan Status),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start opens the output device and begins watching the pump. A device
// failure is reported once here; the engine stays usable for queries but
// refuses to play.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.watch()
	}()

	if err := e.sink.Start(e.pump); err != nil {
		e.mu.Lock()
		e.deviceErr = errors.Mark(err, audio.ErrDeviceUnavailable)
		e.mu.Unlock()
		zlog.Error().Err(err).Msgf("[PLAYER] Output device %s unavailable", e.sink.Name())
		return e.deviceErr
	}
	zlog.Info().Msgf("[PLAYER] Output device %s started", e.sink.Name())
	return nil
}

// Close tears down the live session, stops the device and waits for every
// worker to exit.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.teardownLocked()
	e.mu.Unlock()

	e.cancel()
	err := e.sink.Close()
	e.wg.Wait()

	e.mu.Lock()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.mu.Unlock()

	if err != nil {
		return errors.Wrap(err, "failed to close output device")
	}
	return nil
}

// Queue returns the track queue driven by the engine
func (e *Engine) Queue() *queue.Manager {
	return e.queue
}

// Play starts playback. With an id, that track is selected and played from the
// start. Without one, a paused session resumes, an active one is left alone,
// and otherwise the current (or first) track of the queue starts. Naming the
// track of the live session behaves like Play without an id.
func (e *Engine) Play(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deviceErr != nil {
		return invalidWrap(e.deviceErr, "cannot play")
	}
	if s := e.session; s != nil && s.track.ID == id {
		id = ""
	}

	var track types.Track
	if id != "" {
		t, ok := e.queue.Select(id)
		if !ok {
			return invalid("unknown track %q", id)
		}
		track = t
	} else {
		switch e.state {
		case StateBuffering, StatePlaying:
			zlog.Debug().Msgf("[PLAYER] Play ignored while %s", e.state)
			return nil
		case StatePaused:
			e.resumeLocked()
			return nil
		}
		t, ok := e.queue.Start()
		if !ok {
			return invalid("queue is empty")
		}
		track = t
	}

	e.teardownLocked()
	e.failures = 0
	e.startLocked(track, 0, false)
	return nil
}

// Pause suspends output and decoding. Only a playing session can be paused.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePlaying {
		zlog.Debug().Msgf("[PLAYER] Pause ignored while %s", e.state)
		return
	}
	e.pump.SetActive(false)
	e.session.gate.Close()
	e.setStateLocked(StatePaused)
	zlog.Info().Msgf("[PLAYER] Paused at %s", e.elapsedLocked())
}

// Resume continues a paused session
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePaused {
		zlog.Debug().Msgf("[PLAYER] Resume ignored while %s", e.state)
		return
	}
	e.resumeLocked()
}

func (e *Engine) resumeLocked() {
	s := e.session
	s.holdPaused = false
	s.gate.Open()
	if s.needPrime.Load() {
		e.setStateLocked(StateBuffering)
		if s.ring.Len() >= e.watermark(s) || s.ring.Finished() {
			e.primeLocked(s)
		}
		return
	}
	s.ring.ArmStarved()
	e.pump.SetActive(true)
	e.setStateLocked(StatePlaying)
	zlog.Info().Msgf("[PLAYER] Resumed at %s", e.elapsedLocked())
}

// Stop tears the session down. It does not wait for the decode worker.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		zlog.Debug().Msgf("[PLAYER] Stop ignored while %s", e.state)
		return
	}
	e.teardownLocked()
	e.setStateLocked(StateStopped)
	zlog.Info().Msg("[PLAYER] Stopped playback")
}

// Next skips to the next track, or goes idle when the queue is exhausted
func (e *Engine) Next() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deviceErr != nil {
		return invalidWrap(e.deviceErr, "cannot play")
	}
	if e.queue.Len() == 0 {
		return invalid("queue is empty")
	}
	e.failures = 0
	e.advanceLocked(types.ReasonSkipped)
	return nil
}

// Previous goes back to the previously played track
func (e *Engine) Previous() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deviceErr != nil {
		return invalidWrap(e.deviceErr, "cannot play")
	}
	track, ok := e.queue.Previous()
	if !ok {
		return invalid("queue is empty")
	}
	e.teardownLocked()
	e.failures = 0
	e.startLocked(track, 0, false)
	return nil
}

// Seek restarts the current track at pos. A paused session stays paused.
func (e *Engine) Seek(pos time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session
	if s == nil {
		zlog.Debug().Msgf("[PLAYER] Seek ignored while %s", e.state)
		return nil
	}
	if pos < 0 {
		pos = 0
	}
	if d := e.durationLocked(s); d > 0 && pos > d {
		pos = d
	}

	track := s.track
	track.Duration = e.durationLocked(s)
	paused := e.state == StatePaused

	zlog.Info().Msgf("[PLAYER] Seeking to %s in %s", pos, track.ID)
	e.teardownLocked()
	e.startLocked(track, audio.DurationToFrames(pos, e.registry.SampleRate()), paused)
	return nil
}

// SetVolume sets the output volume (0.0 - 1.0)
func (e *Engine) SetVolume(v float64) error {
	if v < 0 || v > 1 {
		return invalid("volume %.2f must be between 0.0 and 1.0", v)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pump.SetVolume(v)
	e.emitLocked()
	return nil
}

// SetCollection replaces the queue's collection. The live session carries on
// with its track; the new collection takes effect when it ends.
func (e *Engine) SetCollection(c types.Collection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue.SetCollection(c)
	e.emitLocked()
}

// SetPolicy changes how the next track is chosen
func (e *Engine) SetPolicy(p types.Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue.SetPolicy(p)
	e.emitLocked()
	zlog.Info().Msgf("[PLAYER] Policy set to %s", p)
}

// Status returns the current snapshot
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

// Subscribe returns a channel receiving a Status on every transition,
// starting with the current one. A subscriber that falls behind misses events.
func (e *Engine) Subscribe() (<-chan Status, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan Status, subscriberBacklog)
	ch <- e.statusLocked()
	e.subs[id] = ch

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if c, ok := e.subs[id]; ok {
			close(c)
			delete(e.subs, id)
		}
	}
}

// startLocked creates a new session for track and spawns its decode worker
func (e *Engine) startLocked(track types.Track, startFrame int64, holdPaused bool) {
	s := &session{
		id:         uuid.NewString(),
		track:      track,
		ring:       audio.NewRing(e.opts.RingFrames),
		gate:       newGate(),
		done:       make(chan struct{}),
		startFrame: startFrame,
		duration:   track.Duration,
		holdPaused: holdPaused,
	}
	s.ctx, s.cancel = context.WithCancel(e.ctx)
	s.needPrime.Store(true)

	e.session = s
	e.pump.Swap(s.ring)
	e.errKind = audio.KindNone
	e.errMsg = ""
	e.setStateLocked(StateBuffering)

	zlog.Info().Msgf("[PLAYER] Starting %s (session %s)", track.ID, s.id)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.decode(s)
	}()
	e.preloadNextLocked(track)
}

// teardownLocked drops the live session: the ring stops accepting frames,
// the worker is cancelled, and the pump goes silent. It never waits.
func (e *Engine) teardownLocked() {
	s := e.session
	if s == nil {
		return
	}
	e.session = nil
	s.ring.Close()
	s.cancel()
	e.pump.Swap(nil)
}

// advanceLocked moves the queue on and starts the next track, or goes idle
func (e *Engine) advanceLocked(reason types.AdvanceReason) {
	e.teardownLocked()
	track, ok := e.queue.Advance(reason)
	if !ok {
		e.setStateLocked(StateIdle)
		zlog.Info().Msg("[PLAYER] Queue exhausted")
		return
	}
	e.startLocked(track, 0, false)
}

// primeLocked starts output once the ring holds enough frames
func (e *Engine) primeLocked(s *session) {
	if e.session != s || e.state != StateBuffering || !s.needPrime.Load() {
		return
	}
	s.needPrime.Store(false)
	e.failures = 0
	if s.holdPaused {
		s.gate.Close()
		e.setStateLocked(StatePaused)
		return
	}
	s.ring.ArmStarved()
	e.pump.SetActive(true)
	e.setStateLocked(StatePlaying)
}

// primed is called by the decode worker after every chunk
func (e *Engine) primed(s *session) {
	if !s.needPrime.Load() {
		return
	}
	if s.ring.Len() < e.watermark(s) && !s.ring.Finished() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.primeLocked(s)
}

func (e *Engine) watermark(s *session) int {
	w := e.opts.WatermarkFrames
	if c := s.ring.Cap(); w > c {
		w = c
	}
	return w
}

// failed reports a decode failure for s and moves on
func (e *Engine) failed(s *session, err error) {
	if s.ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != s {
		return
	}

	kind := audio.KindOf(err)
	zlog.Warn().Err(err).Msgf("[PLAYER] %s failed: %s", s.track.ID, kind)

	e.errKind = kind
	e.errMsg = err.Error()
	e.setStateLocked(StateError)
	e.teardownLocked()

	e.failures++
	if n := e.queue.Len(); e.failures >= n {
		zlog.Error().Msgf("[PLAYER] %d consecutive tracks failed, giving up", e.failures)
		e.failures = 0
		e.setStateLocked(StateIdle)
		return
	}
	e.advanceLocked(types.ReasonFailed)
}

// setDuration records the length reported by the decoder
func (e *Engine) setDuration(s *session, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != s {
		return
	}
	s.duration = d
	e.emitLocked()
}

// watch handles pump notices until the engine closes
func (e *Engine) watch() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case n := <-e.pump.Notices():
			e.handleNotice(n)
		}
	}
}

func (e *Engine) handleNotice(n audio.Notice) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session
	if s == nil || s.ring != n.Ring {
		// notice from a ring that has since been swapped out
		return
	}

	switch n.Kind {
	case audio.NoticeStarved:
		if e.state != StatePlaying {
			return
		}
		s.needPrime.Store(true)
		if s.ring.Finished() {
			// the worker finished after the underrun; the drain notice follows
			s.needPrime.Store(false)
			return
		}
		zlog.Warn().Msgf("[PLAYER] Buffer underrun on %s, refilling", s.track.ID)
		e.pump.SetActive(false)
		e.setStateLocked(StateBuffering)
		if s.ring.Len() >= e.watermark(s) {
			e.primeLocked(s)
		}

	case audio.NoticeDrained:
		if e.state != StatePlaying {
			return
		}
		zlog.Info().Msgf("[PLAYER] Finished %s", s.track.ID)
		e.advanceLocked(types.ReasonEnded)
	}
}

func (e *Engine) preloadNextLocked(current types.Track) {
	p, ok := e.lib.(library.Preloader)
	if !ok {
		return
	}
	next, ok := e.queue.Peek()
	if !ok || next.ID == current.ID {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := p.Preload(e.ctx, next.ID); err != nil && e.ctx.Err() == nil {
			zlog.Warn().Err(err).Msgf("[PLAYER] Failed to preload %s", next.ID)
		}
	}()
}

func (e *Engine) setStateLocked(st State) {
	if e.state != st {
		zlog.Debug().Msgf("[PLAYER] %s -> %s", e.state, st)
	}
	e.state = st
	e.emitLocked()
}

func (e *Engine) emitLocked() {
	st := e.statusLocked()
	for _, ch := range e.subs {
		select {
		case ch <- st:
		default:
			zlog.Debug().Msg("[PLAYER] Subscriber is behind, dropping status")
		}
	}
}

func (e *Engine) elapsedFramesLocked() int64 {
	s := e.session
	if s == nil {
		return 0
	}
	return s.startFrame + s.ring.Consumed()
}

func (e *Engine) elapsedLocked() time.Duration {
	return audio.FramesToDuration(e.elapsedFramesLocked(), e.registry.SampleRate())
}

func (e *Engine) durationLocked(s *session) time.Duration {
	if s.duration > 0 {
		return s.duration
	}
	return s.track.Duration
}

func (e *Engine) statusLocked() Status {
	idx, size := e.queue.Position()
	st := Status{
		State:      e.state,
		ErrorKind:  e.errKind,
		Error:      e.errMsg,
		Collection: e.queue.Collection().Name,
		Policy:     e.queue.Policy(),
		Index:      idx,
		QueueLen:   size,
		Volume:     e.pump.Volume(),
	}

	if s := e.session; s != nil {
		track := s.track
		st.Track = &track
		st.SessionID = s.id
		st.ElapsedFrames = e.elapsedFramesLocked()
		st.Position = e.elapsedLocked().Milliseconds()
		st.Duration = e.durationLocked(s).Milliseconds()
	} else if t, ok := e.queue.Current(); ok {
		st.Track = &t
		st.Duration = t.Duration.Milliseconds()
	}
	return st
}
