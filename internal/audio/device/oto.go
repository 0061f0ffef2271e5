package device

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/austinkregel/local-media/playlistd/internal/audio"
	"github.com/cockroachdb/errors"
	"github.com/hajimehoshi/oto/v2"
	zlog "github.com/rs/zerolog/log"
)

// oto allows a single context per process
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
	otoRate int
)

func otoContext(sampleRate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(sampleRate, audio.Channels, audio.BytesPerSample)
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx, otoRate = ctx, sampleRate
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != sampleRate {
		return nil, errors.Newf("oto context already running at %d Hz", otoRate)
	}
	return otoCtx, nil
}

// Oto is a sink backed by oto. Oto pulls through io.Reader from its own
// goroutine, which reads straight from the pump.
type Oto struct {
	sampleRate int

	mu     sync.Mutex
	player oto.Player
	reader *pumpReader
}

// NewOto creates an oto sink at sampleRate
func NewOto(sampleRate int) *Oto {
	return &Oto{sampleRate: sampleRate}
}

func (o *Oto) Name() string { return BackendOto }

// Start opens the device and begins pulling from p
func (o *Oto) Start(p *audio.Pump) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player != nil {
		return errors.New("oto sink already started")
	}

	ctx, err := otoContext(o.sampleRate)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to create oto context"), audio.ErrDeviceUnavailable)
	}

	o.reader = &pumpReader{pump: p}
	o.player = ctx.NewPlayer(o.reader)
	o.player.Play()

	zlog.Info().Msgf("[OUTPUT] Oto output started (%d Hz)", o.sampleRate)
	return nil
}

// Close stops the player
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return nil
	}
	o.reader.closed.Store(true)
	err := o.player.Close()
	o.player = nil
	return err
}

// pumpReader never blocks: silence keeps the stream alive while nothing plays
type pumpReader struct {
	pump   *audio.Pump
	closed atomic.Bool
}

func (r *pumpReader) Read(p []byte) (int, error) {
	if r.closed.Load() {
		return 0, io.EOF
	}
	n := len(p) - len(p)%audio.BytesPerFrame
	r.pump.FillBytes(p[:n])
	return n, nil
}
