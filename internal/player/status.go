// Package player runs the playback state machine: it owns the playback
// session, moves through the queue and reports status to subscribers.
package player

import (
	"time"

	"github.com/austinkregel/local-media/playlistd/internal/audio"
	"github.com/austinkregel/local-media/playlistd/internal/media"
	"github.com/austinkregel/local-media/playlistd/internal/types"
	"github.com/cockroachdb/errors"
)

// State represents the current player state
type State int

const (
	StateIdle State = iota
	StateBuffering
	StatePlaying
	StatePaused
	StateStopped
	StateError
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateError; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return errors.Newf("unknown player state %q", text)
}

// Status is a snapshot of the player, emitted on every transition
type Status struct {
	State         State           `json:"state"`
	ErrorKind     audio.ErrorKind `json:"errorKind,omitempty"`
	Error         string          `json:"error,omitempty"`
	Track         *types.Track    `json:"track,omitempty"`
	Collection    string          `json:"collection"`
	Policy        types.Policy    `json:"policy"`
	Index         int             `json:"index"`
	QueueLen      int             `json:"queueLen"`
	ElapsedFrames int64           `json:"elapsedFrames"`
	Position      int64           `json:"position"` // milliseconds
	Duration      int64           `json:"duration"` // milliseconds, zero when unknown
	Volume        float64         `json:"volume"`
	SessionID     string          `json:"sessionId,omitempty"`
}

// Elapsed returns the playback position as a duration
func (s Status) Elapsed() time.Duration {
	return time.Duration(s.Position) * time.Millisecond
}

// Media converts the status into what the desktop media session shows
func (s Status) Media() media.Snapshot {
	snap := media.Snapshot{
		State:    mediaState(s.State),
		Session:  s.SessionID,
		Position: s.Elapsed(),
		Shuffle:  s.Policy == types.PolicyShuffle,
		Loop:     loopStatus(s.Policy),
		Volume:   s.Volume,
	}
	if s.Track != nil {
		snap.Metadata = media.Metadata{
			TrackID:    s.Track.ID,
			Title:      s.Track.Title,
			Collection: s.Track.Collection,
			Duration:   time.Duration(s.Duration) * time.Millisecond,
		}
	}
	return snap
}

func mediaState(state State) media.PlaybackState {
	switch state {
	case StatePlaying, StateBuffering:
		return media.StatePlaying
	case StatePaused:
		return media.StatePaused
	default:
		return media.StateStopped
	}
}

func loopStatus(p types.Policy) media.LoopStatus {
	switch p {
	case types.PolicyRepeatOne:
		return media.LoopTrack
	case types.PolicyRepeatAll:
		return media.LoopPlaylist
	default:
		return media.LoopNone
	}
}
