package library

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/austinkregel/local-media/playlistd/internal/types"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// FS serves collections from a directory tree: every top-level directory
// under root is a collection holding the audio files found beneath it.
type FS struct {
	fs         afero.Fs
	root       string
	extensions map[string]bool
}

// NewFS creates a filesystem library rooted at root
func NewFS(fs afero.Fs, root string, extensions []string) *FS {
	return &FS{
		fs:         fs,
		root:       filepath.Clean(root),
		extensions: extensionSet(extensions),
	}
}

// Collections returns the names of the non-hidden directories under root
func (l *FS) Collections(ctx context.Context) ([]string, error) {
	entries, err := afero.ReadDir(l.fs, l.root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read library root %s", l.root)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// List walks the collection directory recursively
func (l *FS) List(ctx context.Context, name string) (types.Collection, error) {
	if !validName(name) {
		return types.Collection{}, errors.Wrapf(ErrNotFound, "collection %q", name)
	}
	dir := filepath.Join(l.root, name)
	info, err := l.fs.Stat(dir)
	if err != nil || !info.IsDir() {
		return types.Collection{}, errors.Wrapf(ErrNotFound, "collection %q", name)
	}

	c := types.Collection{Name: name}
	err = afero.Walk(l.fs, dir, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if fi.IsDir() {
			if strings.HasPrefix(fi.Name(), ".") && p != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !hasExtension(l.extensions, fi.Name()) {
			return nil
		}

		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return nil
		}
		id := filepath.ToSlash(rel)
		c.Tracks = append(c.Tracks, types.Track{ID: id, Title: Title(id), Collection: name})
		return nil
	})
	if err != nil {
		return types.Collection{}, errors.Wrapf(err, "failed to walk collection %q", name)
	}

	zlog.Debug().Msgf("[LIBRARY] Collection %q: %d tracks", name, len(c.Tracks))
	return c, nil
}

// Open opens the track file. The returned afero.File is seekable.
func (l *FS) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	clean := path.Clean("/" + id)[1:]
	if clean == "" || clean != id {
		return nil, errors.Wrapf(ErrNotFound, "track %q", id)
	}
	f, err := l.fs.Open(filepath.Join(l.root, filepath.FromSlash(clean)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Mark(errors.Wrapf(err, "track %q", id), ErrNotFound)
		}
		return nil, errors.Wrapf(err, "failed to open track %q", id)
	}
	return f, nil
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
