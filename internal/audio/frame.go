// Package audio holds the decode/buffer pipeline: codecs, the frame ring shared
// between the decode worker and the output callback, and the pump that feeds sinks.
package audio

import (
	"encoding/binary"
	"time"
)

const (
	// Channels is the channel count of every frame handed to a sink
	Channels = 2
	// BytesPerSample is the size of one signed 16-bit sample
	BytesPerSample = 2
	// BytesPerFrame is the size of one interleaved stereo frame
	BytesPerFrame = Channels * BytesPerSample
)

// Frame is one stereo sample pair, left then right
type Frame [Channels]int16

// Format describes the stream produced by a decoder
type Format struct {
	SampleRate int
	Channels   int
}

// FramesToDuration converts a frame count at the given rate into wall time
func FramesToDuration(frames int64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

// DurationToFrames converts wall time into a frame count at the given rate
func DurationToFrames(d time.Duration, sampleRate int) int64 {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	return int64(d) * int64(sampleRate) / int64(time.Second)
}

// encodeFrames writes frames as interleaved little-endian S16 into dst.
// dst must hold at least len(frames)*BytesPerFrame bytes.
func encodeFrames(dst []byte, frames []Frame) {
	for i, f := range frames {
		off := i * BytesPerFrame
		binary.LittleEndian.PutUint16(dst[off:], uint16(f[0]))
		binary.LittleEndian.PutUint16(dst[off+2:], uint16(f[1]))
	}
}

// decodeFrames reads interleaved little-endian S16 stereo from src into dst
// and returns the number of whole frames converted.
func decodeFrames(dst []Frame, src []byte) int {
	n := len(src) / BytesPerFrame
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		off := i * BytesPerFrame
		dst[i][0] = int16(binary.LittleEndian.Uint16(src[off:]))
		dst[i][1] = int16(binary.LittleEndian.Uint16(src[off+2:]))
	}
	return n
}

// clampSample converts a float in [-1, 1] into a saturated int16
func clampSample(v float64) int16 {
	s := v * 32768
	if s > 32767 {
		return 32767
	}
	if s < -32768 {
		return -32768
	}
	return int16(s)
}
