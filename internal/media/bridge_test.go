package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSession struct {
	NoOpSession
	calls   []string
	handler CommandHandler
}

func (r *recordingSession) UpdateMetadata(m Metadata) error {
	r.calls = append(r.calls, "metadata:"+m.TrackID)
	return nil
}

func (r *recordingSession) UpdatePlaybackState(s PlaybackState, _ time.Duration) error {
	r.calls = append(r.calls, "state")
	return nil
}

func (r *recordingSession) UpdateShuffle(bool) error {
	r.calls = append(r.calls, "shuffle")
	return nil
}

func (r *recordingSession) UpdateLoopStatus(LoopStatus) error {
	r.calls = append(r.calls, "loop")
	return nil
}

func (r *recordingSession) UpdateVolume(float64) error {
	r.calls = append(r.calls, "volume")
	return nil
}

func (r *recordingSession) SetCommandHandler(h CommandHandler) {
	r.handler = h
}

func TestBridgePublishesOnlyChanges(t *testing.T) {
	session := &recordingSession{}
	b := NewBridge(session, CommandHandlerFunc(func(Command, interface{}) error { return nil }), nil)

	snap := Snapshot{
		State:    StatePlaying,
		Session:  "s1",
		Metadata: Metadata{TrackID: "rain/a.mp3", Title: "a"},
		Loop:     LoopNone,
		Volume:   1,
	}
	require.NoError(t, b.Publish(snap))
	assert.Equal(t, []string{"metadata:rain/a.mp3", "state", "shuffle", "loop", "volume"}, session.calls)

	session.calls = nil
	snap.Position = 3 * time.Second
	require.NoError(t, b.Publish(snap))
	assert.Empty(t, session.calls, "position alone is tracked by the client")

	snap.Session = "s2"
	snap.Shuffle = true
	require.NoError(t, b.Publish(snap))
	assert.Equal(t, []string{"state", "shuffle"}, session.calls)
}

func TestBridgeForwardsCommands(t *testing.T) {
	session := &recordingSession{}
	var got []Command
	quit := false
	NewBridge(session, CommandHandlerFunc(func(cmd Command, _ interface{}) error {
		got = append(got, cmd)
		return nil
	}), func() { quit = true })

	require.NotNil(t, session.handler)
	require.NoError(t, session.handler.OnCommand(CmdNext, nil))
	require.NoError(t, session.handler.OnCommand(CmdQuit, nil))

	assert.Equal(t, []Command{CmdNext}, got)
	assert.True(t, quit)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "SeekBy", CmdSeekBy.String())
	assert.Equal(t, "Unknown", Command(99).String())
}
