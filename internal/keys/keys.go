// Package keys maps terminal key presses onto player commands.
package keys

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/austinkregel/local-media/playlistd/internal/player"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// ErrNotTerminal is returned by Run when stdin is not a terminal
var ErrNotTerminal = errors.New("stdin is not a terminal")

// VolumeStep is the change applied by + and -
const VolumeStep = 0.05

// Action is a decoded key press
type Action int

const (
	ActionNone Action = iota
	ActionPlayPause
	ActionNext
	ActionPrevious
	ActionStop
	ActionQuit
	ActionSeekForward
	ActionSeekBack
	ActionVolumeUp
	ActionVolumeDown
)

func (a Action) String() string {
	switch a {
	case ActionPlayPause:
		return "play-pause"
	case ActionNext:
		return "next"
	case ActionPrevious:
		return "previous"
	case ActionStop:
		return "stop"
	case ActionQuit:
		return "quit"
	case ActionSeekForward:
		return "seek-forward"
	case ActionSeekBack:
		return "seek-back"
	case ActionVolumeUp:
		return "volume-up"
	case ActionVolumeDown:
		return "volume-down"
	default:
		return "none"
	}
}

// Decoder turns a byte stream into actions. Arrow keys arrive as the escape
// sequences ESC [ C and ESC [ D.
type Decoder struct {
	esc int // bytes of an escape sequence seen so far
}

// Feed consumes one byte
func (d *Decoder) Feed(b byte) Action {
	switch d.esc {
	case 1:
		if b == '[' {
			d.esc = 2
			return ActionNone
		}
		d.esc = 0
	case 2:
		d.esc = 0
		switch b {
		case 'C':
			return ActionSeekForward
		case 'D':
			return ActionSeekBack
		case 'A':
			return ActionVolumeUp
		case 'B':
			return ActionVolumeDown
		}
		return ActionNone
	}

	switch b {
	case 0x1b:
		d.esc = 1
	case ' ':
		return ActionPlayPause
	case 'n', 'N':
		return ActionNext
	case 'p', 'P':
		return ActionPrevious
	case 's', 'S':
		return ActionStop
	case 'q', 'Q', 0x03: // ctrl-c does not raise SIGINT in raw mode
		return ActionQuit
	case '+', '=':
		return ActionVolumeUp
	case '-', '_':
		return ActionVolumeDown
	}
	return ActionNone
}

// Controls is the part of the player the keyboard drives
type Controls interface {
	PlayPause() error
	Next() error
	Previous() error
	Stop() error
	SeekBy(delta time.Duration) error
	SetVolume(v float64) error
	Query() player.Status
}

// Keyboard reads keys and drives Controls
type Keyboard struct {
	ctrl   Controls
	onQuit func()
}

// New creates a keyboard handler. onQuit runs when q is pressed.
func New(ctrl Controls, onQuit func()) *Keyboard {
	return &Keyboard{ctrl: ctrl, onQuit: onQuit}
}

// Run puts stdin into raw mode and serves key presses until ctx is cancelled
// or q is pressed. The terminal is restored on return.
func (k *Keyboard) Run(ctx context.Context) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return ErrNotTerminal
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return errors.Wrap(err, "failed to enter raw mode")
	}
	defer term.Restore(fd, state)

	zlog.Info().Msg("[KEYS] space=play/pause n=next p=prev s=stop arrows=seek +/-=volume q=quit")
	return k.Serve(ctx, os.Stdin)
}

// Serve handles key presses read from r
func (k *Keyboard) Serve(ctx context.Context, r io.Reader) error {
	bytes := make(chan byte)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := r.Read(buf); err != nil {
				readErr <- err
				return
			}
			select {
			case bytes <- buf[0]:
			case <-ctx.Done():
				return
			}
		}
	}()

	var dec Decoder
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "failed to read keys")
		case b := <-bytes:
			action := dec.Feed(b)
			if action == ActionNone {
				continue
			}
			if err := k.Handle(action); err != nil {
				zlog.Warn().Msgf("[KEYS] %s: %v", action, err)
			}
			if action == ActionQuit {
				return nil
			}
		}
	}
}

// Handle performs one action
func (k *Keyboard) Handle(a Action) error {
	switch a {
	case ActionPlayPause:
		return k.ctrl.PlayPause()
	case ActionNext:
		return k.ctrl.Next()
	case ActionPrevious:
		return k.ctrl.Previous()
	case ActionStop:
		return k.ctrl.Stop()
	case ActionSeekForward:
		return k.ctrl.SeekBy(player.SeekStep)
	case ActionSeekBack:
		return k.ctrl.SeekBy(-player.SeekStep)
	case ActionVolumeUp:
		return k.ctrl.SetVolume(clamp(k.ctrl.Query().Volume + VolumeStep))
	case ActionVolumeDown:
		return k.ctrl.SetVolume(clamp(k.ctrl.Query().Volume - VolumeStep))
	case ActionQuit:
		if k.onQuit != nil {
			k.onQuit()
		}
	}
	return nil
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
