package audio

import (
	"sync/atomic"
)

// PopStatus describes the state of the ring after a Pop
type PopStatus int

const (
	// PopOK means the request was filled completely
	PopOK PopStatus = iota
	// PopStarved means the ring ran short while the stream is still being decoded
	PopStarved
	// PopFinished means the stream ended and every frame has been consumed
	PopFinished
)

// String returns the status name
func (s PopStatus) String() string {
	switch s {
	case PopStarved:
		return "starved"
	case PopFinished:
		return "finished"
	default:
		return "ok"
	}
}

// Ring is a fixed-capacity single-producer/single-consumer frame buffer.
// The decode worker is the only caller of Push and Finish; the output
// callback is the only caller of Pop. Neither side ever waits for the other.
type Ring struct {
	buf  []Frame
	mask uint64

	head atomic.Uint64 // total frames written
	tail atomic.Uint64 // total frames read

	finished atomic.Bool
	closed   atomic.Bool

	// once-per-episode notice flags, see ArmStarved
	starveArmed atomic.Bool
	drained     atomic.Bool
}

// NewRing creates a ring holding at least capacity frames.
// The capacity is rounded up to a power of two.
func NewRing(capacity int) *Ring {
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Ring{
		buf:  make([]Frame, size),
		mask: uint64(size - 1),
	}
}

// Push copies as many frames as fit and returns the count accepted.
// It never blocks; a closed or finished ring accepts nothing.
func (r *Ring) Push(frames []Frame) int {
	if r.closed.Load() || r.finished.Load() {
		return 0
	}

	head := r.head.Load()
	tail := r.tail.Load()
	free := uint64(len(r.buf)) - (head - tail)

	n := uint64(len(frames))
	if n > free {
		n = free
	}
	if n == 0 {
		return 0
	}

	start := head & r.mask
	first := copy(r.buf[start:], frames[:n])
	if uint64(first) < n {
		copy(r.buf, frames[first:n])
	}

	// a ring closed during the copy keeps its head
	if r.closed.Load() {
		return 0
	}
	r.head.Store(head + n)
	return int(n)
}

// Pop moves up to len(dst) frames into dst. It never blocks and never allocates.
// A short read reports PopStarved unless the stream has finished, in which
// case the ring is drained and PopFinished is returned.
func (r *Ring) Pop(dst []Frame) (int, PopStatus) {
	// finished is read before head: once Finish is visible the head is final
	finished := r.finished.Load()
	head := r.head.Load()
	tail := r.tail.Load()

	n := head - tail
	if n > uint64(len(dst)) {
		n = uint64(len(dst))
	}

	if n > 0 {
		start := tail & r.mask
		first := copy(dst[:n], r.buf[start:])
		if uint64(first) < n {
			copy(dst[first:n], r.buf[:n-uint64(first)])
		}
		r.tail.Store(tail + n)
	}

	switch {
	case finished && tail+n == head:
		return int(n), PopFinished
	case int(n) < len(dst):
		return int(n), PopStarved
	default:
		return int(n), PopOK
	}
}

// Finish marks the end of the stream. Frames already pushed remain poppable.
func (r *Ring) Finish() {
	r.finished.Store(true)
}

// Finished reports whether the producer has marked the end of the stream
func (r *Ring) Finished() bool {
	return r.finished.Load()
}

// Close rejects further pushes. Used when a session is torn down. A Push
// already past its final check may still land, so the head moves by at most
// one more chunk after Close returns.
func (r *Ring) Close() {
	r.closed.Store(true)
}

// Closed reports whether the ring has been closed
func (r *Ring) Closed() bool {
	return r.closed.Load()
}

// Len returns the number of buffered frames
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Cap returns the ring capacity in frames
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Pushed returns the total number of frames ever accepted
func (r *Ring) Pushed() int64 {
	return int64(r.head.Load())
}

// Consumed returns the total number of frames popped, the elapsed-frame counter
func (r *Ring) Consumed() int64 {
	return int64(r.tail.Load())
}

// ArmStarved allows the next underrun to be reported.
// The consumer reports at most one underrun per arming.
func (r *Ring) ArmStarved() {
	r.starveArmed.Store(true)
}

func (r *Ring) markStarved() bool {
	return r.starveArmed.CompareAndSwap(true, false)
}

func (r *Ring) markDrained() bool {
	return r.drained.CompareAndSwap(false, true)
}
