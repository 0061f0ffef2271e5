package audio

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrReadStalled is returned once a read has taken longer than the guard timeout
var ErrReadStalled = errors.Mark(errors.New("read stalled"), ErrIoFailure)

// GuardReader bounds every read on the wrapped stream by a timeout and a
// context. A stalled read is abandoned: the guard reports IoFailure from then
// on and the late result is discarded.
type GuardReader struct {
	ctx     context.Context
	rc      io.ReadCloser
	timeout time.Duration

	mu  sync.Mutex
	err error
	buf []byte
}

type readResult struct {
	n   int
	err error
}

// NewGuardReader wraps rc. A zero timeout only enforces ctx.
func NewGuardReader(ctx context.Context, rc io.ReadCloser, timeout time.Duration) *GuardReader {
	return &GuardReader{ctx: ctx, rc: rc, timeout: timeout}
}

// Seekable reports whether the wrapped stream supports random access
func (g *GuardReader) Seekable() bool {
	_, ra := g.rc.(io.ReaderAt)
	_, sk := g.rc.(io.Seeker)
	return ra && sk
}

// Read implements io.Reader
func (g *GuardReader) Read(p []byte) (int, error) {
	return g.guarded(p, func(b []byte) (int, error) {
		return g.rc.Read(b)
	})
}

// ReadAt implements io.ReaderAt when the wrapped stream does
func (g *GuardReader) ReadAt(p []byte, off int64) (int, error) {
	ra, ok := g.rc.(io.ReaderAt)
	if !ok {
		return 0, errors.New("source does not support ReadAt")
	}
	return g.guarded(p, func(b []byte) (int, error) {
		return ra.ReadAt(b, off)
	})
}

// Seek implements io.Seeker when the wrapped stream does
func (g *GuardReader) Seek(offset int64, whence int) (int64, error) {
	if err := g.sticky(); err != nil {
		return 0, err
	}
	sk, ok := g.rc.(io.Seeker)
	if !ok {
		return 0, errors.New("source does not support Seek")
	}
	return sk.Seek(offset, whence)
}

// Close closes the wrapped stream
func (g *GuardReader) Close() error {
	return g.rc.Close()
}

func (g *GuardReader) sticky() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	if err := g.ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (g *GuardReader) fail(err error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err == nil {
		g.err = err
	}
	return g.err
}

func (g *GuardReader) guarded(p []byte, read func([]byte) (int, error)) (int, error) {
	if err := g.sticky(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	// The read runs into a private buffer so an abandoned call can never
	// write into p after we have returned.
	g.mu.Lock()
	if cap(g.buf) < len(p) {
		g.buf = make([]byte, len(p))
	}
	buf := g.buf[:len(p)]
	g.buf = nil
	g.mu.Unlock()

	done := make(chan readResult, 1)
	go func() {
		n, err := read(buf)
		done <- readResult{n, err}
	}()

	var timer <-chan time.Time
	if g.timeout > 0 {
		t := time.NewTimer(g.timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case res := <-done:
		copy(p, buf[:res.n])
		g.mu.Lock()
		g.buf = buf
		g.mu.Unlock()
		if res.err != nil && res.err != io.EOF {
			return res.n, ioFailure(res.err, "read")
		}
		return res.n, res.err
	case <-timer:
		return 0, g.fail(errors.Wrapf(ErrReadStalled, "no data after %s", g.timeout))
	case <-g.ctx.Done():
		return 0, g.fail(g.ctx.Err())
	}
}
