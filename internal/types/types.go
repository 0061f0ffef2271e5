// Package types provides shared type definitions used across the playlistd daemon.
package types

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Track is a single playable item resolved by the library
type Track struct {
	ID         string        `json:"id"`
	Title      string        `json:"title,omitempty"`
	Collection string        `json:"collection,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"` // zero until decoded
}

// Collection is a named, ordered playlist
type Collection struct {
	Name   string  `json:"name"`
	Tracks []Track `json:"tracks"`
}

// Len returns the number of tracks in the collection
func (c Collection) Len() int {
	return len(c.Tracks)
}

// IndexOf returns the position of the track with the given id, or -1
func (c Collection) IndexOf(id string) int {
	for i, t := range c.Tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Policy selects how the queue picks the next track
type Policy int

const (
	PolicyNone Policy = iota
	PolicyShuffle
	PolicyRepeatOne
	PolicyRepeatAll
)

// String returns the string representation of the policy
func (p Policy) String() string {
	switch p {
	case PolicyShuffle:
		return "shuffle"
	case PolicyRepeatOne:
		return "repeat-one"
	case PolicyRepeatAll:
		return "repeat-all"
	default:
		return "none"
	}
}

// ParsePolicy parses a string into a Policy.
// The second return value is false when the string names no known policy.
func ParsePolicy(s string) (Policy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off", "":
		return PolicyNone, true
	case "shuffle", "random":
		return PolicyShuffle, true
	case "repeat-one", "one", "track":
		return PolicyRepeatOne, true
	case "repeat-all", "all", "playlist":
		return PolicyRepeatAll, true
	default:
		return PolicyNone, false
	}
}

// MarshalText implements encoding.TextMarshaler
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *Policy) UnmarshalText(text []byte) error {
	v, ok := ParsePolicy(string(text))
	if !ok {
		return errors.Newf("unknown policy %q", text)
	}
	*p = v
	return nil
}

// AdvanceReason tells the queue why the cursor is moving
type AdvanceReason int

const (
	ReasonEnded   AdvanceReason = iota // track played to the end
	ReasonSkipped                      // user asked for the next track
	ReasonFailed                       // track could not be decoded
)

// String returns the reason name
func (r AdvanceReason) String() string {
	switch r {
	case ReasonSkipped:
		return "skipped"
	case ReasonFailed:
		return "failed"
	default:
		return "ended"
	}
}
