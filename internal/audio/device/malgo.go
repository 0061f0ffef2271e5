package device

import (
	"sync"

	"github.com/austinkregel/local-media/playlistd/internal/audio"
	"github.com/cockroachdb/errors"
	"github.com/gen2brain/malgo"
	zlog "github.com/rs/zerolog/log"
)

// Malgo is a sink on miniaudio. The data callback runs on the device thread.
type Malgo struct {
	sampleRate int

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

// NewMalgo creates a miniaudio sink at sampleRate
func NewMalgo(sampleRate int) *Malgo {
	return &Malgo{sampleRate: sampleRate}
}

func (m *Malgo) Name() string { return BackendMalgo }

// Start initialises the context and device and starts pulling from p
func (m *Malgo) Start(p *audio.Pump) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		return errors.New("malgo sink already started")
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		zlog.Debug().Msgf("[OUTPUT] malgo: %s", message)
	})
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to initialize audio context"), audio.ErrDeviceUnavailable)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = audio.Channels
	cfg.SampleRate = uint32(m.sampleRate)
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) {
			p.FillBytes(out)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		freeContext(ctx)
		return errors.Mark(errors.Wrap(err, "failed to initialize playback device"), audio.ErrDeviceUnavailable)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		freeContext(ctx)
		return errors.Mark(errors.Wrap(err, "failed to start playback"), audio.ErrDeviceUnavailable)
	}

	m.ctx, m.device = ctx, device
	zlog.Info().Msgf("[OUTPUT] Malgo output started (%d Hz)", m.sampleRate)
	return nil
}

// Close stops the device and frees the context
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return nil
	}
	err := m.device.Stop()
	m.device.Uninit()
	freeContext(m.ctx)
	m.device, m.ctx = nil, nil
	return err
}

func freeContext(ctx *malgo.AllocatedContext) {
	if err := ctx.Uninit(); err != nil {
		zlog.Warn().Err(err).Msg("[OUTPUT] malgo context uninit failed")
	}
	ctx.Free()
}
