package player

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/austinkregel/local-media/playlistd/internal/audio"
	"github.com/austinkregel/local-media/playlistd/internal/library"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// decode is the per-session worker: it opens the track, skips to the start
// offset and pushes frames into the session ring until the stream ends or the
// session is cancelled. It checks for cancellation between reads and pushes.
func (e *Engine) decode(s *session) {
	defer close(s.done)

	dec, err := e.open(s)
	if err != nil {
		e.failed(s, err)
		return
	}
	defer dec.Close()

	if d := audio.DurationOf(dec); d > 0 {
		e.setDuration(s, d)
	}
	if s.startFrame > 0 {
		if err := audio.Skip(dec, s.startFrame); err != nil {
			e.failed(s, err)
			return
		}
	}

	buf := make([]audio.Frame, e.opts.ChunkFrames)
	for {
		if err := s.gate.Wait(s.ctx); err != nil {
			return
		}

		n, err := dec.Read(buf)
		if n > 0 && !e.push(s, buf[:n]) {
			return
		}
		if errors.Is(err, io.EOF) {
			s.ring.Finish()
			e.primed(s)
			zlog.Debug().Msgf("[DECODER] %s decoded (%d frames)", s.track.ID, s.ring.Pushed())
			return
		}
		if err != nil {
			e.failed(s, err)
			return
		}
		e.primed(s)
	}
}

// open asks the library for the track, retrying transient failures, and hands
// the stream to the codec registry. Codec errors are not retried.
func (e *Engine) open(s *session) (audio.Decoder, error) {
	var lastErr error
	for attempt := 0; attempt <= e.opts.OpenRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(e.opts.RetryDelay)
			select {
			case <-s.ctx.Done():
				t.Stop()
				return nil, s.ctx.Err()
			case <-t.C:
			}
			zlog.Debug().Msgf("[DECODER] Retrying %s (attempt %d)", s.track.ID, attempt+1)
		}

		rc, err := e.lib.Open(s.ctx, s.track.ID)
		if err != nil {
			if s.ctx.Err() != nil {
				return nil, s.ctx.Err()
			}
			lastErr = err
			if errors.Is(err, library.ErrNotFound) {
				break
			}
			continue
		}
		return e.registry.Open(s.ctx, s.track.ID, rc)
	}
	return nil, errors.Mark(errors.Wrapf(lastErr, "failed to open %s", s.track.ID), audio.ErrIoFailure)
}

// push hands frames to the ring, sleeping while it is full. It returns false
// once the session is cancelled; the unpushed remainder is discarded.
func (e *Engine) push(s *session, frames []audio.Frame) bool {
	for {
		if s.ctx.Err() != nil {
			return false
		}
		n := s.ring.Push(frames)
		frames = frames[n:]
		if len(frames) == 0 {
			return true
		}
		if s.ring.Closed() {
			return false
		}

		// full ring: whatever is buffered is enough to start
		e.primed(s)

		t := time.NewTimer(e.opts.PushBackoff)
		select {
		case <-s.ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
		if err := s.gate.Wait(s.ctx); err != nil {
			return false
		}
	}
}

// gate suspends the decode worker while the session is paused
type gate struct {
	mu   sync.Mutex
	open chan struct{} // closed while the gate is open
}

func newGate() *gate {
	g := &gate{open: make(chan struct{})}
	close(g.open)
	return g
}

// Close makes Wait block until Open
func (g *gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.open:
		g.open = make(chan struct{})
	default:
	}
}

// Open releases waiting workers
func (g *gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.open:
	default:
		close(g.open)
	}
}

// Wait blocks while the gate is closed
func (g *gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.open
	g.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
