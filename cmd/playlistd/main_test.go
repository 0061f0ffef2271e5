package main

import (
	"testing"
	"time"

	"github.com/austinkregel/local-media/playlistd/internal/audio"
	"github.com/austinkregel/local-media/playlistd/internal/player"
	"github.com/austinkregel/local-media/playlistd/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	for in, want := range map[string]time.Duration{
		"90":    90 * time.Second,
		"1m30s": 90 * time.Second,
		"-5s":   -5 * time.Second,
		"2.5":   2500 * time.Millisecond,
	} {
		got, err := parseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseDuration("soon")
	assert.Error(t, err)
}

func TestFormatStatus(t *testing.T) {
	line := formatStatus(player.Status{
		State:    player.StatePlaying,
		Track:    &types.Track{ID: "rain/a.wav"},
		Position: 61500,
		Duration: 180000,
		Volume:   0.5,
		Policy:   types.PolicyShuffle,
	})
	assert.Contains(t, line, "playing")
	assert.Contains(t, line, "rain/a.wav 1m1s/3m0s")
	assert.Contains(t, line, "vol=0.50 shuffle")

	line = formatStatus(player.Status{State: player.StateError, ErrorKind: audio.KindCorruptStream, Error: "bad header"})
	assert.Contains(t, line, "error=CorruptStream(bad header)")
}

func TestCommandTree(t *testing.T) {
	root := newRootCommand()
	for _, path := range [][]string{
		{"serve"},
		{"collections"},
		{"ctl", "play"},
		{"ctl", "seekby"},
		{"ctl", "watch"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	seekBy, _, err := root.Find([]string{"ctl", "seekby"})
	require.NoError(t, err)
	assert.True(t, seekBy.DisableFlagParsing)
}
