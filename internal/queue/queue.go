// Package queue manages the playback cursor over the active collection.
package queue

import (
	"math/rand"
	"sync"
	"time"

	"github.com/austinkregel/local-media/playlistd/internal/types"
	zlog "github.com/rs/zerolog/log"
)

const maxHistory = 100

// ChangeCallback is called when the queue state changes
type ChangeCallback func()

// Manager owns the cursor into one collection and the policy used to move it.
// Given the same seed, policy and starting track it always yields the same sequence.
type Manager struct {
	mu         sync.RWMutex
	collection types.Collection
	index      int          // position of current in collection, -1 if absent
	current    *types.Track // survives SetCollection until the cursor moves
	policy     types.Policy
	history    []int // previously played positions, most recent last
	rng        *rand.Rand
	seed       int64
	next       int // pre-drawn shuffle pick, -1 when not drawn
	onChange   ChangeCallback
}

// NewManager creates a queue manager. A zero seed is replaced by the clock.
func NewManager(seed int64) *Manager {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Manager{
		index: -1,
		next:  -1,
		rng:   rand.New(rand.NewSource(seed)),
		seed:  seed,
	}
}

// Seed returns the seed the shuffle generator was created with
func (m *Manager) Seed() int64 {
	return m.seed
}

// SetOnChange sets a callback to be called when the queue state changes
func (m *Manager) SetOnChange(callback ChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = callback
}

// notifyChange calls the onChange callback if set (must be called without lock held)
func (m *Manager) notifyChange() {
	m.mu.RLock()
	callback := m.onChange
	m.mu.RUnlock()
	if callback != nil {
		callback()
	}
}

// SetCollection replaces the active collection. The current track, if any,
// stays current; the cursor continues from its position in the new
// collection, or from the start when it is not part of it.
func (m *Manager) SetCollection(c types.Collection) {
	m.mu.Lock()

	tracks := make([]types.Track, len(c.Tracks))
	copy(tracks, c.Tracks)
	m.collection = types.Collection{Name: c.Name, Tracks: tracks}
	m.history = nil
	m.next = -1
	m.index = -1
	if m.current != nil {
		m.index = m.collection.IndexOf(m.current.ID)
	}

	zlog.Debug().Msgf("[QUEUE] Collection %q with %d tracks", c.Name, len(tracks))
	m.mu.Unlock()
	m.notifyChange()
}

// Collection returns the active collection
func (m *Manager) Collection() types.Collection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collection
}

// SetPolicy changes how the next track is chosen
func (m *Manager) SetPolicy(p types.Policy) {
	m.mu.Lock()
	m.policy = p
	m.next = -1
	m.mu.Unlock()
	m.notifyChange()
}

// Policy returns the current policy
func (m *Manager) Policy() types.Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy
}

// Current returns the current track
func (m *Manager) Current() (types.Track, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return types.Track{}, false
	}
	return *m.current, true
}

// Start positions the cursor on the first track to play: a random one under
// shuffle, otherwise the first in order. It is a no-op when a track is current.
func (m *Manager) Start() (types.Track, bool) {
	m.mu.Lock()
	if m.current != nil {
		t := *m.current
		m.mu.Unlock()
		return t, true
	}
	n := m.collection.Len()
	if n == 0 {
		m.mu.Unlock()
		return types.Track{}, false
	}
	pos := 0
	if m.policy == types.PolicyShuffle {
		pos = m.rng.Intn(n)
	}
	t := m.moveTo(pos, false)
	m.mu.Unlock()
	m.notifyChange()
	return t, true
}

// Advance moves the cursor past the current track. The second return value
// is false when the queue is exhausted; the cursor is then reset so the next
// Start begins again.
func (m *Manager) Advance(reason types.AdvanceReason) (types.Track, bool) {
	m.mu.Lock()

	if m.current == nil {
		m.mu.Unlock()
		return m.Start()
	}

	pos, ok := m.pick(reason)
	if !ok {
		zlog.Debug().Msgf("[QUEUE] Exhausted after %s (%s)", m.current.ID, reason)
		m.current = nil
		m.index = -1
		m.next = -1
		m.mu.Unlock()
		m.notifyChange()
		return types.Track{}, false
	}

	t := m.moveTo(pos, true)
	m.mu.Unlock()
	m.notifyChange()
	return t, true
}

// Peek returns the track Advance would pick after a natural end, without moving.
func (m *Manager) Peek() (types.Track, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		if m.collection.Len() == 0 || m.policy == types.PolicyShuffle {
			return types.Track{}, false
		}
		return m.collection.Tracks[0], true
	}
	pos, ok := m.pick(types.ReasonEnded)
	if !ok {
		return types.Track{}, false
	}
	if pos < 0 {
		return *m.current, true
	}
	return m.collection.Tracks[pos], true
}

// pick chooses the next position. -1 with ok means "replay current" for a
// current track that is not part of the collection. Must be called with lock held.
func (m *Manager) pick(reason types.AdvanceReason) (int, bool) {
	n := m.collection.Len()

	if m.policy == types.PolicyRepeatOne && reason == types.ReasonEnded {
		return m.index, true
	}
	if n == 0 {
		return 0, false
	}

	if m.policy == types.PolicyShuffle {
		if m.next < 0 {
			m.next = m.drawShuffle(n)
		}
		return m.next, true
	}

	next := m.index + 1
	if next >= n {
		if m.policy == types.PolicyNone {
			return 0, false
		}
		// repeat-all wraps; so does skipping under repeat-one
		next = 0
	}
	return next, true
}

// drawShuffle picks uniformly among all positions except the current one
func (m *Manager) drawShuffle(n int) int {
	if n == 1 || m.index < 0 {
		return m.rng.Intn(n)
	}
	j := m.rng.Intn(n - 1)
	if j >= m.index {
		j++
	}
	return j
}

// moveTo makes pos current. Must be called with lock held.
func (m *Manager) moveTo(pos int, remember bool) types.Track {
	m.next = -1
	if pos < 0 {
		return *m.current
	}
	if remember && m.index >= 0 && pos != m.index {
		m.history = append(m.history, m.index)
		if len(m.history) > maxHistory {
			m.history = m.history[len(m.history)-maxHistory:]
		}
	}
	m.index = pos
	t := m.collection.Tracks[pos]
	m.current = &t
	return t
}

// Previous moves back to the most recently played track. Without history it
// steps back in collection order, wrapping under repeat-all, and stays on the
// first track otherwise.
func (m *Manager) Previous() (types.Track, bool) {
	m.mu.Lock()

	n := m.collection.Len()
	if n == 0 {
		m.mu.Unlock()
		return types.Track{}, false
	}

	var pos int
	switch {
	case len(m.history) > 0:
		pos = m.history[len(m.history)-1]
		m.history = m.history[:len(m.history)-1]
	case m.index > 0:
		pos = m.index - 1
	case m.index == 0 && m.policy == types.PolicyRepeatAll:
		pos = n - 1
	default:
		pos = 0
		if m.index < 0 && m.current != nil {
			pos = -1
		}
	}

	t := m.moveTo(pos, false)
	m.mu.Unlock()
	m.notifyChange()
	return t, true
}

// Select makes the track with the given id current
func (m *Manager) Select(id string) (types.Track, bool) {
	m.mu.Lock()
	pos := m.collection.IndexOf(id)
	if pos < 0 {
		m.mu.Unlock()
		return types.Track{}, false
	}
	t := m.moveTo(pos, true)
	m.mu.Unlock()
	m.notifyChange()
	return t, true
}

// Restore positions the cursor on id without recording history.
// Used when reloading a saved queue.
func (m *Manager) Restore(id string) bool {
	m.mu.Lock()
	pos := m.collection.IndexOf(id)
	if pos < 0 {
		m.mu.Unlock()
		return false
	}
	m.moveTo(pos, false)
	m.mu.Unlock()
	m.notifyChange()
	return true
}

// Lookup returns the track with the given id from the active collection
func (m *Manager) Lookup(id string) (types.Track, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos := m.collection.IndexOf(id)
	if pos < 0 {
		return types.Track{}, false
	}
	return m.collection.Tracks[pos], true
}

// Position returns the current index and collection size
func (m *Manager) Position() (int, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index, m.collection.Len()
}

// Tracks returns a copy of the active collection's tracks
func (m *Manager) Tracks() []types.Track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tracks := make([]types.Track, len(m.collection.Tracks))
	copy(tracks, m.collection.Tracks)
	return tracks
}

// Len returns the number of tracks in the active collection
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collection.Len()
}
