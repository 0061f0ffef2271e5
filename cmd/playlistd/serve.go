package main

import (
	"context"
	"net/http"
	"time"

	"github.com/austinkregel/local-media/playlistd/internal/audio"
	"github.com/austinkregel/local-media/playlistd/internal/audio/device"
	"github.com/austinkregel/local-media/playlistd/internal/config"
	"github.com/austinkregel/local-media/playlistd/internal/ipc"
	"github.com/austinkregel/local-media/playlistd/internal/keys"
	"github.com/austinkregel/local-media/playlistd/internal/library"
	"github.com/austinkregel/local-media/playlistd/internal/logging"
	"github.com/austinkregel/local-media/playlistd/internal/media"
	"github.com/austinkregel/local-media/playlistd/internal/player"
	"github.com/austinkregel/local-media/playlistd/internal/queue"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// loadConfig reads the config file and applies the persistent flags
func loadConfig(opts *rootOptions) (*config.Config, error) {
	mgr := config.NewManager(afero.NewOsFs(), opts.configPath)
	if err := mgr.Load(); err != nil {
		return nil, errors.Wrapf(err, "failed to load config %s", mgr.GetPath())
	}
	cfg := mgr.Get()
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	if opts.logFile != "" {
		cfg.Log.File = opts.logFile
	}
	return cfg, nil
}

func openLibrary(cfg config.LibraryConfig, readTimeout time.Duration) (library.Library, error) {
	var lib library.Library
	switch cfg.Source {
	case "web":
		web, err := library.NewWeb(cfg.URL, &http.Client{Timeout: 4 * readTimeout}, cfg.Extensions)
		if err != nil {
			return nil, err
		}
		lib = web
	default:
		lib = library.NewFS(afero.NewOsFs(), cfg.Root, cfg.Extensions)
	}
	if cfg.All {
		lib = library.NewAll(lib)
	}
	return lib, nil
}

func runServe(ctx context.Context, opts *rootOptions, collection string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logCloser, err := logging.Init(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return errors.Wrap(err, "failed to initialize logging")
	}
	defer logCloser.Close()

	zlog.Info().Msgf("playlistd version %s starting...", Version)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lib, err := openLibrary(cfg.Library, cfg.Audio.ReadTimeout)
	if err != nil {
		return errors.Wrap(err, "failed to open library")
	}

	sink, err := device.Open(cfg.Audio.Backend, cfg.Audio.SampleRate)
	if err != nil {
		return err
	}

	seed := cfg.Playback.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	queueMgr := queue.NewManager(seed)

	engine := player.NewEngine(lib, audio.DefaultRegistry(cfg.Audio.SampleRate, cfg.Audio.ReadTimeout), sink, queueMgr, player.Options{
		RingFrames:      cfg.Audio.RingFrames,
		WatermarkFrames: cfg.Audio.WatermarkFrames,
		ChunkFrames:     cfg.Audio.ChunkFrames,
		OpenRetries:     cfg.Audio.OpenRetries,
		RetryDelay:      cfg.Audio.RetryDelay,
	})
	// A missing device is not fatal: status and library commands keep working
	_ = engine.Start()
	defer engine.Close()

	ctrl := player.NewController(engine, lib)
	if err := ctrl.SetVolume(cfg.Audio.Volume); err != nil {
		return err
	}
	policy, err := player.ParsePolicy(cfg.Playback.Policy)
	if err != nil {
		return err
	}
	ctrl.SetPolicy(policy)

	var store *queue.Store
	if cfg.Playback.RememberQueue {
		store = queue.NewStore(afero.NewOsFs(), config.StateDir(), queueMgr)
		if collection == "" {
			if err := ctrl.Restore(ctx, store); err != nil {
				zlog.Warn().Err(err).Msg("[QUEUE] Failed to restore saved queue")
			}
		}
		store.AutoSave(ctx)
	}

	if collection == "" && queueMgr.Len() == 0 {
		collection = cfg.Library.Collection
	}
	if collection != "" {
		if err := ctrl.SetCollection(ctx, collection); err != nil {
			zlog.Warn().Err(err).Msgf("[LIBRARY] Failed to load collection %q", collection)
		}
	}
	if cfg.Playback.Autoplay {
		autoplay(ctrl)
	}

	bridge := startMediaSession(ctx, cfg.Media, ctrl, cancel)
	if bridge != nil {
		defer bridge.Close()
	}

	if cfg.Keyboard.Enabled {
		go func() {
			err := keys.New(ctrl, cancel).Run(ctx)
			switch {
			case errors.Is(err, keys.ErrNotTerminal):
				zlog.Debug().Msg("[KEYS] Not a terminal, keyboard controls disabled")
			case err != nil:
				zlog.Warn().Err(err).Msg("[KEYS] Keyboard controls stopped")
			}
		}()
	}

	server := ipc.NewServer(cfg.IPC.Socket, ctrl)
	serveErr := server.Start(ctx)

	if store != nil {
		if err := store.Save(); err != nil {
			zlog.Warn().Err(err).Msg("[QUEUE] Failed to save queue on shutdown")
		} else {
			zlog.Info().Msg("[QUEUE] Queue saved on shutdown")
		}
	}

	if serveErr != nil {
		return errors.Wrap(serveErr, "IPC server error")
	}
	return nil
}

// autoplay starts the loaded queue. A failure, such as a missing output
// device, is logged and the daemon keeps serving commands.
func autoplay(ctrl *player.Controller) {
	if ctrl.Query().QueueLen == 0 {
		zlog.Debug().Msg("[PLAYER] Nothing queued, not starting playback")
		return
	}
	if err := ctrl.Play(""); err != nil {
		zlog.Error().Err(err).Msg("[PLAYER] Failed to start playback")
		return
	}
	zlog.Info().Msg("[PLAYER] Playback started")
}

// startMediaSession connects the desktop media session to the controller and
// keeps it updated from the status stream. It returns nil when disabled.
func startMediaSession(ctx context.Context, cfg config.MediaConfig, ctrl *player.Controller, quit func()) *media.Bridge {
	if !cfg.Enabled {
		return nil
	}

	session, err := media.NewSession(cfg.BusName)
	if err != nil {
		zlog.Warn().Err(err).Msg("[MEDIA] Failed to initialize media session, continuing without OS media integration")
		return nil
	}
	zlog.Info().Msg("[MEDIA] Media session initialized successfully")

	bridge := media.NewBridge(session, ctrl, quit)
	updates, unsubscribe := ctrl.Subscribe()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case st, ok := <-updates:
				if !ok {
					return
				}
				if err := bridge.Publish(st.Media()); err != nil {
					zlog.Debug().Err(err).Msg("[MEDIA] Publish failed")
				}
			}
		}
	}()
	return bridge
}
