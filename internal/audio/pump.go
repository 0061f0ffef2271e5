package audio

import (
	"math"
	"sync/atomic"
)

// NoticeKind says what the pump observed on the ring
type NoticeKind int

const (
	NoticeStarved NoticeKind = iota
	NoticeDrained
)

// String returns the notice name
func (k NoticeKind) String() string {
	if k == NoticeDrained {
		return "drained"
	}
	return "starved"
}

// Notice is posted by the pump when the ring it is draining underruns or finishes.
// Ring identifies the buffer so stale notices from a swapped-out ring can be ignored.
type Notice struct {
	Ring *Ring
	Kind NoticeKind
}

const noticeBacklog = 8

// Pump is the consumer side of the pipeline. Sinks call Fill or FillBytes from
// their device callback; nothing in that path locks, allocates or does I/O.
type Pump struct {
	ring    atomic.Pointer[Ring]
	active  atomic.Bool
	volume  atomic.Uint64 // math.Float64bits of 0.0 - 1.0
	notices chan Notice

	// scratch is only touched by the single consumer in FillBytes
	scratch []Frame
}

// NewPump creates a pump whose byte path converts at most maxFrames per step
func NewPump(maxFrames int) *Pump {
	if maxFrames <= 0 {
		maxFrames = 4096
	}
	p := &Pump{
		notices: make(chan Notice, noticeBacklog),
		scratch: make([]Frame, maxFrames),
	}
	p.volume.Store(math.Float64bits(1.0))
	return p
}

// Swap installs a new ring and returns the previous one. The pump is left
// inactive; frames remaining in the old ring are discarded.
func (p *Pump) Swap(r *Ring) *Ring {
	p.active.Store(false)
	return p.ring.Swap(r)
}

// Ring returns the ring currently being drained
func (p *Pump) Ring() *Ring {
	return p.ring.Load()
}

// SetActive starts or stops pulling from the ring. An inactive pump outputs silence.
func (p *Pump) SetActive(active bool) {
	p.active.Store(active)
}

// Active reports whether the pump is pulling from the ring
func (p *Pump) Active() bool {
	return p.active.Load()
}

// SetVolume sets the playback volume, clamped to 0.0 - 1.0
func (p *Pump) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	p.volume.Store(math.Float64bits(v))
}

// Volume returns the current volume
func (p *Pump) Volume() float64 {
	return math.Float64frombits(p.volume.Load())
}

// Notices returns the channel of starved/drained notices
func (p *Pump) Notices() <-chan Notice {
	return p.notices
}

// Fill writes len(dst) frames of output, padding with silence, and returns
// how many came from the ring.
func (p *Pump) Fill(dst []Frame) int {
	r := p.ring.Load()
	if r == nil || !p.active.Load() {
		clear(dst)
		return 0
	}

	n, status := r.Pop(dst)
	clear(dst[n:])

	switch status {
	case PopStarved:
		if r.markStarved() && !p.post(Notice{Ring: r, Kind: NoticeStarved}) {
			r.ArmStarved()
		}
	case PopFinished:
		if r.markDrained() && !p.post(Notice{Ring: r, Kind: NoticeDrained}) {
			r.drained.Store(false)
		}
	}

	applyVolume(dst[:n], p.Volume())
	return n
}

// FillBytes fills b with interleaved little-endian S16 stereo, the layout
// every device sink is opened with.
func (p *Pump) FillBytes(b []byte) int {
	total := 0
	for len(b) >= BytesPerFrame {
		count := len(b) / BytesPerFrame
		if count > len(p.scratch) {
			count = len(p.scratch)
		}
		frames := p.scratch[:count]
		total += p.Fill(frames)
		encodeFrames(b, frames)
		b = b[count*BytesPerFrame:]
	}
	clear(b)
	return total
}

func (p *Pump) post(n Notice) bool {
	select {
	case p.notices <- n:
		return true
	default:
		return false
	}
}

// applyVolume scales frames in place by vol
func applyVolume(frames []Frame, vol float64) {
	if vol >= 1.0 {
		return
	}
	for i := range frames {
		frames[i][0] = int16(float64(frames[i][0]) * vol)
		frames[i][1] = int16(float64(frames[i][1]) * vol)
	}
}
