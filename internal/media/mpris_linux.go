//go:build linux

package media

import (
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

const (
	mprisInterface       = "org.mpris.MediaPlayer2"
	mprisPlayerInterface = "org.mpris.MediaPlayer2.Player"
	mprisBusPrefix       = "org.mpris.MediaPlayer2."
	mprisObjectPath      = "/org/mpris/MediaPlayer2"
	trackPathPrefix      = "/org/playlistd/track/"
	identity             = "playlistd"
)

// trackNamespace derives stable MPRIS track ids from track ids
var trackNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("playlistd:track"))

// MPRISSession implements MPRIS media session for Linux
type MPRISSession struct {
	conn *dbus.Conn

	mu         sync.RWMutex
	handler    CommandHandler
	metadata   Metadata
	state      PlaybackState
	position   time.Duration
	shuffle    bool
	loopStatus LoopStatus
	volume     float64
}

// NewSession creates a new MPRIS media session owning
// org.mpris.MediaPlayer2.<busName>
func NewSession(busName string) (Session, error) {
	if busName == "" {
		busName = identity
	}

	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to session bus")
	}

	reply, err := conn.RequestName(mprisBusPrefix+busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to request bus name")
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, errors.Newf("bus name %s already taken", mprisBusPrefix+busName)
	}

	session := &MPRISSession{
		conn:       conn,
		state:      StateStopped,
		loopStatus: LoopNone,
		volume:     1.0,
	}

	if err := session.exportInterfaces(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to export interfaces")
	}

	zlog.Info().Msgf("[MEDIA] MPRIS session registered as %s", mprisBusPrefix+busName)
	return session, nil
}

func (s *MPRISSession) exportInterfaces() error {
	path := dbus.ObjectPath(mprisObjectPath)
	for _, iface := range []string{mprisInterface, mprisPlayerInterface, "org.freedesktop.DBus.Properties"} {
		if err := s.conn.Export(s, path, iface); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMetadata updates the track metadata
func (s *MPRISSession) UpdateMetadata(metadata Metadata) error {
	s.mu.Lock()
	s.metadata = metadata
	props := map[string]dbus.Variant{
		"Metadata": dbus.MakeVariant(s.metadataMapLocked()),
	}
	s.mu.Unlock()

	return s.emitPropertiesChanged(props)
}

// UpdatePlaybackState updates the playback state. Playing always comes with a
// Seeked signal so clients re-anchor their position clock.
func (s *MPRISSession) UpdatePlaybackState(state PlaybackState, position time.Duration) error {
	s.mu.Lock()
	s.state = state
	s.position = position
	props := map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant(playbackStatus(state)),
	}
	s.mu.Unlock()

	if state == StatePlaying {
		if err := s.emitSeeked(position); err != nil {
			return err
		}
	}
	return s.emitPropertiesChanged(props)
}

func (s *MPRISSession) emitSeeked(position time.Duration) error {
	return s.conn.Emit(
		dbus.ObjectPath(mprisObjectPath),
		mprisPlayerInterface+".Seeked",
		position.Microseconds(),
	)
}

// UpdateShuffle updates the shuffle state
func (s *MPRISSession) UpdateShuffle(enabled bool) error {
	s.mu.Lock()
	s.shuffle = enabled
	s.mu.Unlock()
	return s.emitPropertiesChanged(map[string]dbus.Variant{"Shuffle": dbus.MakeVariant(enabled)})
}

// UpdateLoopStatus updates the loop/repeat mode
func (s *MPRISSession) UpdateLoopStatus(status LoopStatus) error {
	s.mu.Lock()
	s.loopStatus = status
	s.mu.Unlock()
	return s.emitPropertiesChanged(map[string]dbus.Variant{"LoopStatus": dbus.MakeVariant(string(status))})
}

// UpdateVolume updates the volume property
func (s *MPRISSession) UpdateVolume(volume float64) error {
	s.mu.Lock()
	s.volume = volume
	s.mu.Unlock()
	return s.emitPropertiesChanged(map[string]dbus.Variant{"Volume": dbus.MakeVariant(volume)})
}

// SetCommandHandler sets the handler for media commands
func (s *MPRISSession) SetCommandHandler(handler CommandHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Close releases resources
func (s *MPRISSession) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *MPRISSession) dispatch(cmd Command, data interface{}) *dbus.Error {
	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()
	if handler == nil {
		return nil
	}
	if err := handler.OnCommand(cmd, data); err != nil {
		zlog.Warn().Err(err).Msgf("[MEDIA] %s failed", cmd)
		return dbus.MakeFailedError(err)
	}
	return nil
}

// org.mpris.MediaPlayer2 methods

func (s *MPRISSession) Raise() *dbus.Error {
	return nil
}

func (s *MPRISSession) Quit() *dbus.Error {
	return s.dispatch(CmdQuit, nil)
}

// org.mpris.MediaPlayer2.Player methods

func (s *MPRISSession) Play() *dbus.Error {
	return s.dispatch(CmdPlay, nil)
}

func (s *MPRISSession) Pause() *dbus.Error {
	return s.dispatch(CmdPause, nil)
}

func (s *MPRISSession) PlayPause() *dbus.Error {
	return s.dispatch(CmdPlayPause, nil)
}

func (s *MPRISSession) Stop() *dbus.Error {
	return s.dispatch(CmdStop, nil)
}

func (s *MPRISSession) Next() *dbus.Error {
	return s.dispatch(CmdNext, nil)
}

func (s *MPRISSession) Previous() *dbus.Error {
	return s.dispatch(CmdPrevious, nil)
}

func (s *MPRISSession) Seek(offset int64) *dbus.Error {
	return s.dispatch(CmdSeekBy, time.Duration(offset)*time.Microsecond)
}

func (s *MPRISSession) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	s.mu.RLock()
	current := trackPath(s.metadata.TrackID)
	s.mu.RUnlock()
	if trackID != current {
		// stale request for a track that is no longer playing
		return nil
	}
	return s.dispatch(CmdSeek, time.Duration(position)*time.Microsecond)
}

// org.freedesktop.DBus.Properties methods

func (s *MPRISSession) Get(iface, prop string) (dbus.Variant, *dbus.Error) {
	all, derr := s.GetAll(iface)
	if derr != nil {
		return dbus.Variant{}, derr
	}
	v, ok := all[prop]
	if !ok {
		return dbus.Variant{}, dbus.MakeFailedError(errors.Newf("unknown property: %s", prop))
	}
	return v, nil
}

func (s *MPRISSession) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	switch iface {
	case mprisInterface:
		return rootProperties(), nil
	case mprisPlayerInterface:
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.playerPropertiesLocked(), nil
	}
	return nil, dbus.MakeFailedError(errors.Newf("unknown interface: %s", iface))
}

func (s *MPRISSession) Set(iface, prop string, value dbus.Variant) *dbus.Error {
	if iface != mprisPlayerInterface {
		return nil
	}

	switch prop {
	case "Shuffle":
		enabled, ok := value.Value().(bool)
		if !ok {
			return dbus.MakeFailedError(errors.New("invalid type for Shuffle"))
		}
		return s.dispatch(CmdSetShuffle, enabled)
	case "LoopStatus":
		status, ok := value.Value().(string)
		if !ok {
			return dbus.MakeFailedError(errors.New("invalid type for LoopStatus"))
		}
		return s.dispatch(CmdSetLoopStatus, LoopStatus(status))
	case "Volume":
		volume, ok := value.Value().(float64)
		if !ok {
			return dbus.MakeFailedError(errors.New("invalid type for Volume"))
		}
		if volume < 0 {
			volume = 0
		}
		if volume > 1 {
			volume = 1
		}
		return s.dispatch(CmdSetVolume, volume)
	}
	return nil
}

func rootProperties() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"CanQuit":             dbus.MakeVariant(true),
		"CanRaise":            dbus.MakeVariant(false),
		"HasTrackList":        dbus.MakeVariant(false),
		"Identity":            dbus.MakeVariant(identity),
		"DesktopEntry":        dbus.MakeVariant(identity),
		"SupportedUriSchemes": dbus.MakeVariant([]string{"file", "http", "https"}),
		"SupportedMimeTypes":  dbus.MakeVariant([]string{"audio/mpeg", "audio/wav", "audio/aiff"}),
	}
}

func (s *MPRISSession) playerPropertiesLocked() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant(playbackStatus(s.state)),
		"Metadata":       dbus.MakeVariant(s.metadataMapLocked()),
		"Position":       dbus.MakeVariant(s.position.Microseconds()),
		"Rate":           dbus.MakeVariant(1.0),
		"MinimumRate":    dbus.MakeVariant(1.0),
		"MaximumRate":    dbus.MakeVariant(1.0),
		"CanGoNext":      dbus.MakeVariant(true),
		"CanGoPrevious":  dbus.MakeVariant(true),
		"CanPlay":        dbus.MakeVariant(true),
		"CanPause":       dbus.MakeVariant(true),
		"CanSeek":        dbus.MakeVariant(true),
		"CanControl":     dbus.MakeVariant(true),
		"Volume":         dbus.MakeVariant(s.volume),
		"Shuffle":        dbus.MakeVariant(s.shuffle),
		"LoopStatus":     dbus.MakeVariant(string(s.loopStatus)),
	}
}

func playbackStatus(state PlaybackState) string {
	switch state {
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

// trackPath maps a track id onto a valid D-Bus object path
func trackPath(id string) dbus.ObjectPath {
	if id == "" {
		return "/org/mpris/MediaPlayer2/TrackList/NoTrack"
	}
	u := uuid.NewSHA1(trackNamespace, []byte(id))
	return dbus.ObjectPath(trackPathPrefix + strings.ReplaceAll(u.String(), "-", ""))
}

func (s *MPRISSession) metadataMapLocked() map[string]dbus.Variant {
	m := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(trackPath(s.metadata.TrackID)),
	}
	if s.metadata.Title != "" {
		m["xesam:title"] = dbus.MakeVariant(s.metadata.Title)
	}
	if s.metadata.Collection != "" {
		m["xesam:album"] = dbus.MakeVariant(s.metadata.Collection)
	}
	if s.metadata.Duration > 0 {
		m["mpris:length"] = dbus.MakeVariant(s.metadata.Duration.Microseconds())
	}
	if s.metadata.TrackID != "" {
		m["xesam:url"] = dbus.MakeVariant(s.metadata.TrackID)
	}
	return m
}

func (s *MPRISSession) emitPropertiesChanged(props map[string]dbus.Variant) error {
	return s.conn.Emit(
		dbus.ObjectPath(mprisObjectPath),
		"org.freedesktop.DBus.Properties.PropertiesChanged",
		mprisPlayerInterface,
		props,
		[]string{},
	)
}
