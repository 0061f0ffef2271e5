package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"chatty":  zerolog.InfoLevel,
	} {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestInitWritesConsoleAndFile(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "playlistd.log")
	closer, err := Init(Config{Level: "info", File: path, Console: &console})
	require.NoError(t, err)

	zlog.Debug().Msg("[PLAYER] hidden")
	zlog.Info().Msgf("[PLAYER] Playing %s", "rain/a.wav")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "[PLAYER] Playing rain/a.wav")
	assert.NotContains(t, console.String(), "hidden")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "[PLAYER] Playing rain/a.wav", entry["message"])
}
