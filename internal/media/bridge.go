package media

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Snapshot is the player state as the desktop session shows it
type Snapshot struct {
	State    PlaybackState
	Session  string // changes whenever playback restarts, including seeks
	Metadata Metadata
	Position time.Duration
	Shuffle  bool
	Loop     LoopStatus
	Volume   float64
}

// Bridge keeps a Session in step with the player and forwards the session's
// commands back to a handler. Only fields that changed are pushed.
type Bridge struct {
	session Session
	handler CommandHandler
	onQuit  func()

	mu     sync.Mutex
	last   Snapshot
	synced bool
}

// NewBridge connects session to handler. onQuit, if set, runs when the
// desktop asks the player to quit.
func NewBridge(session Session, handler CommandHandler, onQuit func()) *Bridge {
	b := &Bridge{session: session, handler: handler, onQuit: onQuit}
	session.SetCommandHandler(b)
	return b
}

// OnCommand implements CommandHandler
func (b *Bridge) OnCommand(cmd Command, data interface{}) error {
	if cmd == CmdQuit {
		if b.onQuit != nil {
			b.onQuit()
		}
		return nil
	}
	return b.handler.OnCommand(cmd, data)
}

// Publish pushes the differences between s and the last published snapshot
func (b *Bridge) Publish(s Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs error
	first := !b.synced
	if first || s.Metadata != b.last.Metadata {
		errs = errors.CombineErrors(errs, b.session.UpdateMetadata(s.Metadata))
	}
	if first || s.State != b.last.State || s.Session != b.last.Session {
		errs = errors.CombineErrors(errs, b.session.UpdatePlaybackState(s.State, s.Position))
	}
	if first || s.Shuffle != b.last.Shuffle {
		errs = errors.CombineErrors(errs, b.session.UpdateShuffle(s.Shuffle))
	}
	if first || s.Loop != b.last.Loop {
		errs = errors.CombineErrors(errs, b.session.UpdateLoopStatus(s.Loop))
	}
	if first || s.Volume != b.last.Volume {
		errs = errors.CombineErrors(errs, b.session.UpdateVolume(s.Volume))
	}

	b.last = s
	b.synced = true
	if errs != nil {
		return errors.Wrap(errs, "failed to update media session")
	}
	return nil
}

// Close releases the session
func (b *Bridge) Close() error {
	return b.session.Close()
}
