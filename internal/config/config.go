// Package config handles daemon configuration file management.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// AppName names the daemon's XDG directories
const AppName = "playlistd"

// Config represents the daemon configuration
type Config struct {
	Library  LibraryConfig  `yaml:"library"`
	Audio    AudioConfig    `yaml:"audio"`
	Playback PlaybackConfig `yaml:"playback"`
	IPC      IPCConfig      `yaml:"ipc"`
	Media    MediaConfig    `yaml:"media"`
	Keyboard KeyboardConfig `yaml:"keyboard"`
	Log      LogConfig      `yaml:"log"`
}

// LibraryConfig selects where collections come from
type LibraryConfig struct {
	// Source is "fs" for a directory tree or "web" for an HTTP index
	Source string `yaml:"source" default:"fs" validate:"oneof=fs web"`
	// Root is the directory holding one sub-directory per collection
	Root string `yaml:"root"`
	// URL is the index page of a web library
	URL        string   `yaml:"url" validate:"omitempty,url"`
	Extensions []string `yaml:"extensions,omitempty"`
	// Collection is loaded on start when no saved queue exists
	Collection string `yaml:"collection"`
	// All adds the synthetic "all" collection
	All bool `yaml:"all" default:"true"`
}

// AudioConfig contains audio-related settings
type AudioConfig struct {
	Backend         string        `yaml:"backend" default:"oto" validate:"oneof=oto malgo null"`
	SampleRate      int           `yaml:"sample_rate" default:"44100" validate:"gte=8000,lte=192000"`
	RingFrames      int           `yaml:"ring_frames" default:"88200" validate:"gt=0"`
	WatermarkFrames int           `yaml:"watermark_frames" default:"11025" validate:"gt=0,ltefield=RingFrames"`
	ChunkFrames     int           `yaml:"chunk_frames" default:"4096" validate:"gt=0"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"5s" validate:"gte=0"`
	OpenRetries     int           `yaml:"open_retries" default:"2" validate:"gte=0,lte=10"`
	RetryDelay      time.Duration `yaml:"retry_delay" default:"250ms" validate:"gte=0"`
	Volume          float64       `yaml:"volume" default:"1.0" validate:"gte=0,lte=1"`
}

// PlaybackConfig contains queue behaviour
type PlaybackConfig struct {
	Policy string `yaml:"policy" default:"none" validate:"oneof=none shuffle repeat-one repeat-all"`
	// Seed for shuffle; zero picks one from the clock
	Seed          int64 `yaml:"seed"`
	RememberQueue bool  `yaml:"remember_queue" default:"true"`
	// Autoplay starts the loaded queue as soon as the daemon is up
	Autoplay bool `yaml:"autoplay" default:"true"`
}

// IPCConfig configures the control socket
type IPCConfig struct {
	Socket string `yaml:"socket"`
}

// MediaConfig configures the desktop media session
type MediaConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	BusName string `yaml:"bus_name" default:"playlistd" validate:"required,excludesall=/"`
}

// KeyboardConfig configures terminal key controls
type KeyboardConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	// File, when set, receives JSON logs with rotation
	File string `yaml:"file"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(errors.Wrap(err, "invalid default tags"))
	}
	cfg.fillPaths()
	return cfg
}

// DefaultPath returns $XDG_CONFIG_HOME/playlistd/config.yaml
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// StateDir returns where the daemon keeps state between runs
func StateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// DefaultSocket returns the control socket path under the runtime directory
func DefaultSocket() string {
	return filepath.Join(xdg.RuntimeDir, AppName+".sock")
}

// Parse reads YAML on top of the defaults, then applies environment overrides
// and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()
	cfg.fillPaths()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return cfg, nil
}

// overrideFromEnv overrides config values with PLAYLISTD_* variables
func (c *Config) overrideFromEnv() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("PLAYLISTD_LIBRARY_SOURCE", &c.Library.Source)
	setString("PLAYLISTD_LIBRARY_ROOT", &c.Library.Root)
	setString("PLAYLISTD_LIBRARY_URL", &c.Library.URL)
	setString("PLAYLISTD_COLLECTION", &c.Library.Collection)
	setString("PLAYLISTD_AUDIO_BACKEND", &c.Audio.Backend)
	setString("PLAYLISTD_POLICY", &c.Playback.Policy)
	setString("PLAYLISTD_SOCKET", &c.IPC.Socket)
	setString("PLAYLISTD_LOG_LEVEL", &c.Log.Level)
	setString("PLAYLISTD_LOG_FILE", &c.Log.File)

	if v := os.Getenv("PLAYLISTD_SAMPLE_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Audio.SampleRate = n
		}
	}
	if v := os.Getenv("PLAYLISTD_VOLUME"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Audio.Volume = f
		}
	}
}

// fillPaths fills the path settings that default to XDG locations
func (c *Config) fillPaths() {
	if c.Library.Root == "" {
		c.Library.Root = xdg.UserDirs.Music
	}
	if c.IPC.Socket == "" {
		c.IPC.Socket = DefaultSocket()
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	switch c.Library.Source {
	case "fs":
		if c.Library.Root == "" {
			return errors.New("library.root is required for an fs library")
		}
	case "web":
		if c.Library.URL == "" {
			return errors.New("library.url is required for a web library")
		}
	}
	return nil
}

// Manager handles loading and saving configuration
type Manager struct {
	fs         afero.Fs
	configPath string
	config     *Config
}

// NewManager creates a manager for the file at path, or DefaultPath when
// path is empty
func NewManager(fs afero.Fs, path string) *Manager {
	if path == "" {
		path = DefaultPath()
	}
	return &Manager{
		fs:         fs,
		configPath: path,
		config:     DefaultConfig(),
	}
}

// Load reads the configuration from disk, writing a default file on first run
func (m *Manager) Load() error {
	data, err := afero.ReadFile(m.fs, m.configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.Wrap(err, "failed to read config")
		}
		m.config = DefaultConfig()
		if err := m.Save(); err != nil {
			return err
		}
	}

	cfg, err := Parse(data)
	if err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	if err := m.fs.MkdirAll(filepath.Dir(m.configPath), 0700); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := afero.WriteFile(m.fs, m.configPath, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write config")
	}
	return nil
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	return m.config
}

// GetPath returns the config file path
func (m *Manager) GetPath() string {
	return m.configPath
}
