//go:build !linux

package media

import "github.com/cockroachdb/errors"

// NewSession reports that no desktop media session exists on this platform
func NewSession(busName string) (Session, error) {
	return nil, errors.New("media session not supported on this platform")
}
