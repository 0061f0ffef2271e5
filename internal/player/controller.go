package player

import (
	"context"
	"time"

	"github.com/austinkregel/local-media/playlistd/internal/library"
	"github.com/austinkregel/local-media/playlistd/internal/media"
	"github.com/austinkregel/local-media/playlistd/internal/queue"
	"github.com/austinkregel/local-media/playlistd/internal/types"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// SeekStep is the default jump for relative seeks
const SeekStep = 5 * time.Second

// restartWindow is how far into a track a backwards seek still goes to the
// previous track instead of the start of this one.
const restartWindow = 2 * time.Second

// Controller is the command and query surface used by the IPC server, the
// media session and the keyboard. Commands that make no sense in the current
// state are logged no-ops; malformed arguments return ErrInvalidCommand.
type Controller struct {
	engine *Engine
	lib    library.Library
}

// NewController creates a controller over engine, resolving collections from lib
func NewController(engine *Engine, lib library.Library) *Controller {
	return &Controller{engine: engine, lib: lib}
}

// Engine returns the underlying state machine
func (c *Controller) Engine() *Engine {
	return c.engine
}

// Play starts playback, of the given track when id is not empty
func (c *Controller) Play(id string) error {
	return c.engine.Play(id)
}

// Pause pauses playback
func (c *Controller) Pause() error {
	c.engine.Pause()
	return nil
}

// Resume resumes paused playback
func (c *Controller) Resume() error {
	c.engine.Resume()
	return nil
}

// PlayPause toggles between playing and paused, starting playback when idle
func (c *Controller) PlayPause() error {
	switch c.engine.Status().State {
	case StatePlaying:
		c.engine.Pause()
		return nil
	case StateBuffering:
		return nil
	default:
		return c.engine.Play("")
	}
}

// Stop stops playback
func (c *Controller) Stop() error {
	c.engine.Stop()
	return nil
}

// Next skips to the next track
func (c *Controller) Next() error {
	return c.engine.Next()
}

// Previous goes back one track
func (c *Controller) Previous() error {
	return c.engine.Previous()
}

// Seek jumps to an absolute position in the current track
func (c *Controller) Seek(pos time.Duration) error {
	return c.engine.Seek(pos)
}

// SeekBy moves relative to the current position. Seeking backwards within the
// first two seconds of a track goes to the previous track.
func (c *Controller) SeekBy(delta time.Duration) error {
	st := c.engine.Status()
	if st.SessionID == "" {
		zlog.Debug().Msgf("[PLAYER] Seek ignored while %s", st.State)
		return nil
	}
	if delta < 0 && st.Elapsed() < restartWindow {
		return c.engine.Previous()
	}
	return c.engine.Seek(st.Elapsed() + delta)
}

// SetVolume sets the output volume (0.0 - 1.0)
func (c *Controller) SetVolume(v float64) error {
	return c.engine.SetVolume(v)
}

// SetCollection loads the named collection from the library into the queue
func (c *Controller) SetCollection(ctx context.Context, name string) error {
	coll, err := c.lib.List(ctx, name)
	if err != nil {
		if errors.Is(err, library.ErrNotFound) {
			return invalidWrap(err, "unknown collection")
		}
		return errors.Wrapf(err, "failed to load collection %q", name)
	}
	c.engine.SetCollection(coll)
	zlog.Info().Msgf("[PLAYER] Collection %q loaded with %d tracks", name, coll.Len())
	return nil
}

// SetPolicy sets the queue policy
func (c *Controller) SetPolicy(p types.Policy) error {
	c.engine.SetPolicy(p)
	return nil
}

// ParsePolicy parses a policy name, rejecting unknown names as invalid commands
func ParsePolicy(name string) (types.Policy, error) {
	p, ok := types.ParsePolicy(name)
	if !ok {
		return types.PolicyNone, invalid("unknown policy %q", name)
	}
	return p, nil
}

// Query returns the current status
func (c *Controller) Query() Status {
	return c.engine.Status()
}

// Subscribe returns a channel of status updates and a function to stop them
func (c *Controller) Subscribe() (<-chan Status, func()) {
	return c.engine.Subscribe()
}

// Collections returns the collection names the library offers
func (c *Controller) Collections(ctx context.Context) ([]string, error) {
	names, err := c.lib.Collections(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list collections")
	}
	return names, nil
}

// Tracks returns the tracks of the active collection
func (c *Controller) Tracks() []types.Track {
	return c.engine.Queue().Tracks()
}

// Restore reloads a saved queue: its collection, policy and current track.
// Playback does not start.
func (c *Controller) Restore(ctx context.Context, store *queue.Store) error {
	state, err := store.Load()
	if err != nil {
		return err
	}
	if state == nil || state.Collection == "" {
		return nil
	}
	if err := c.SetCollection(ctx, state.Collection); err != nil {
		return errors.Wrap(err, "failed to restore queue")
	}
	store.Apply(state)
	zlog.Info().Msgf("[PLAYER] Restored queue %q at %q", state.Collection, state.TrackID)
	return nil
}

// OnCommand implements media.CommandHandler for the desktop media session
func (c *Controller) OnCommand(cmd media.Command, data interface{}) error {
	if cmd != media.CmdSeek {
		zlog.Debug().Msgf("[PLAYER] Received media command: %s", cmd)
	}

	switch cmd {
	case media.CmdPlay:
		return c.Play("")
	case media.CmdPause:
		return c.Pause()
	case media.CmdPlayPause:
		return c.PlayPause()
	case media.CmdStop:
		return c.Stop()
	case media.CmdNext:
		return c.Next()
	case media.CmdPrevious:
		return c.Previous()
	case media.CmdSeek:
		if pos, ok := data.(time.Duration); ok {
			return c.Seek(pos)
		}
		return invalid("seek needs a position")
	case media.CmdSeekBy:
		if delta, ok := data.(time.Duration); ok {
			return c.SeekBy(delta)
		}
		return invalid("seek needs an offset")
	case media.CmdSetVolume:
		if v, ok := data.(float64); ok {
			return c.SetVolume(v)
		}
		return invalid("volume needs a number")
	case media.CmdSetShuffle:
		enabled, ok := data.(bool)
		if !ok {
			return invalid("shuffle needs a boolean")
		}
		if enabled {
			return c.SetPolicy(types.PolicyShuffle)
		}
		if c.engine.Queue().Policy() == types.PolicyShuffle {
			return c.SetPolicy(types.PolicyNone)
		}
		return nil
	case media.CmdSetLoopStatus:
		status, ok := data.(media.LoopStatus)
		if !ok {
			return invalid("loop status needs a value")
		}
		switch status {
		case media.LoopTrack:
			return c.SetPolicy(types.PolicyRepeatOne)
		case media.LoopPlaylist:
			return c.SetPolicy(types.PolicyRepeatAll)
		default:
			if p := c.engine.Queue().Policy(); p == types.PolicyRepeatOne || p == types.PolicyRepeatAll {
				return c.SetPolicy(types.PolicyNone)
			}
			return nil
		}
	default:
		return invalid("unknown media command %s", cmd)
	}
}
