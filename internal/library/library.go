// Package library resolves collections and track streams for the player.
// A track ID is a slash-separated path under the library root, or an absolute
// URL for web libraries.
package library

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/austinkregel/local-media/playlistd/internal/types"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// ErrNotFound is returned for unknown collections and tracks
var ErrNotFound = errors.New("not found")

// DefaultExtensions lists the file types the built-in codecs can play
var DefaultExtensions = []string{".mp3", ".wav", ".wave", ".aif", ".aiff", ".aifc"}

// Library is the file collaborator the player reads from
type Library interface {
	// Open returns the byte stream of a track
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	// List returns the tracks of a named collection
	List(ctx context.Context, name string) (types.Collection, error)
	// Collections returns the available collection names
	Collections(ctx context.Context) ([]string, error)
}

// Preloader is implemented by libraries that can fetch a track ahead of time
type Preloader interface {
	Preload(ctx context.Context, id string) error
}

// extensionSet normalises a list of extensions to lowercase with a leading dot
func extensionSet(exts []string) map[string]bool {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	return lo.SliceToMap(exts, func(e string) (string, bool) {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		return e, true
	})
}

func hasExtension(set map[string]bool, name string) bool {
	return set[strings.ToLower(path.Ext(name))]
}
