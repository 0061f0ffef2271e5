package library

import (
	"context"
	"io"

	"github.com/austinkregel/local-media/playlistd/internal/types"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// AllCollection is the synthetic collection holding every track
const AllCollection = "all"

// All adds the synthetic "all" collection on top of another library. Its
// tracks are every collection's tracks in order, with songs that share a
// real name spread apart.
type All struct {
	Library
}

// NewAll wraps lib
func NewAll(lib Library) *All {
	return &All{Library: lib}
}

// Collections returns the wrapped collections followed by "all"
func (a *All) Collections(ctx context.Context) ([]string, error) {
	names, err := a.Library.Collections(ctx)
	if err != nil {
		return nil, err
	}
	names = lo.Filter(names, func(n string, _ int) bool { return n != AllCollection })
	return append(names, AllCollection), nil
}

// List merges every collection when asked for "all"
func (a *All) List(ctx context.Context, name string) (types.Collection, error) {
	if name != AllCollection {
		return a.Library.List(ctx, name)
	}

	names, err := a.Library.Collections(ctx)
	if err != nil {
		return types.Collection{}, err
	}

	merged := types.Collection{Name: AllCollection}
	for _, n := range names {
		c, err := a.Library.List(ctx, n)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return types.Collection{}, err
			}
			zlog.Warn().Err(err).Msgf("[LIBRARY] Skipping collection %q", n)
			continue
		}
		merged.Tracks = append(merged.Tracks, c.Tracks...)
	}

	SpreadDuplicates(merged.Tracks, func(t types.Track) (string, bool) {
		return RealName(t.ID)
	})
	return merged, nil
}

// Open delegates to the wrapped library
func (a *All) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	return a.Library.Open(ctx, id)
}

// Preload delegates when the wrapped library can preload
func (a *All) Preload(ctx context.Context, id string) error {
	if p, ok := a.Library.(Preloader); ok {
		return p.Preload(ctx, id)
	}
	return nil
}
