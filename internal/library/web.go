package library

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/austinkregel/local-media/playlistd/internal/types"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

const defaultCacheSize = 4

// Web serves collections from an HTTP directory index. The index page links
// one directory per collection; each collection directory is crawled
// recursively for audio links.
type Web struct {
	client     *http.Client
	base       *url.URL
	extensions map[string]bool

	mu        sync.Mutex
	cache     map[string][]byte
	order     []string
	cacheSize int
}

// NewWeb creates a web library rooted at index
func NewWeb(index string, client *http.Client, extensions []string) (*Web, error) {
	base, err := url.Parse(index)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid library url %q", index)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Newf("library url %q is not http(s)", index)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Web{
		client:     client,
		base:       base,
		extensions: extensionSet(extensions),
		cache:      make(map[string][]byte),
		cacheSize:  defaultCacheSize,
	}, nil
}

// Collections returns the directories linked from the index page
func (w *Web) Collections(ctx context.Context) ([]string, error) {
	_, folders, err := w.listing(ctx, w.base)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(folders))
	for _, f := range folders {
		name, err := url.PathUnescape(path.Base(f.Path))
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// List crawls a collection directory level by level, fetching the pages of
// each level concurrently.
func (w *Web) List(ctx context.Context, name string) (types.Collection, error) {
	if !validName(name) {
		return types.Collection{}, errors.Wrapf(ErrNotFound, "collection %q", name)
	}
	start := w.base.ResolveReference(&url.URL{Path: name + "/"})

	c := types.Collection{Name: name}
	level := []*url.URL{start}
	for len(level) > 0 {
		files := make([][]*url.URL, len(level))
		folders := make([][]*url.URL, len(level))
		errs := make([]error, len(level))

		var wg sync.WaitGroup
		for i, u := range level {
			wg.Add(1)
			go func(i int, u *url.URL) {
				defer wg.Done()
				files[i], folders[i], errs[i] = w.listing(ctx, u)
			}(i, u)
		}
		wg.Wait()

		level = nil
		for i := range errs {
			if errs[i] != nil {
				return types.Collection{}, errors.Wrapf(errs[i], "collection %q", name)
			}
			for _, f := range files[i] {
				if !hasExtension(w.extensions, f.Path) {
					continue
				}
				id := f.String()
				c.Tracks = append(c.Tracks, types.Track{ID: id, Title: Title(id), Collection: name})
			}
			level = append(level, folders[i]...)
		}
	}

	zlog.Debug().Msgf("[LIBRARY] Web collection %q: %d tracks", name, len(c.Tracks))
	return c, nil
}

// Open returns the cached body of a preloaded track or starts a download
func (w *Web) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	w.mu.Lock()
	data, ok := w.cache[id]
	w.mu.Unlock()
	if ok {
		return &memBody{Reader: bytes.NewReader(data)}, nil
	}

	resp, err := w.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Preload downloads a track into the in-memory cache
func (w *Web) Preload(ctx context.Context, id string) error {
	w.mu.Lock()
	_, ok := w.cache[id]
	w.mu.Unlock()
	if ok {
		return nil
	}

	resp, err := w.get(ctx, id)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to download %s", id)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.cache[id]; !ok {
		w.cache[id] = data
		w.order = append(w.order, id)
		for len(w.order) > w.cacheSize {
			delete(w.cache, w.order[0])
			w.order = w.order[1:]
		}
	}
	zlog.Debug().Msgf("[LIBRARY] Preloaded %s (%d bytes)", id, len(data))
	return nil
}

func (w *Web) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid url %q", rawURL)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		err := errors.Newf("GET %s: %s", rawURL, resp.Status)
		if resp.StatusCode == http.StatusNotFound {
			err = errors.Mark(err, ErrNotFound)
		}
		return nil, err
	}
	return resp, nil
}

// listing fetches one directory page and splits its links into files and
// subdirectories. Links outside the page's directory are ignored.
func (w *Web) listing(ctx context.Context, page *url.URL) (files, folders []*url.URL, err error) {
	resp, err := w.get(ctx, page.String())
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	links, err := extractLinks(resp.Body)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to parse %s", page)
	}

	for _, link := range links {
		ref, err := url.Parse(link)
		if err != nil {
			continue
		}
		target := page.ResolveReference(ref)
		if !below(page, target) {
			continue
		}
		target.RawQuery, target.Fragment = "", ""
		if strings.HasSuffix(target.Path, "/") {
			folders = append(folders, target)
		} else {
			files = append(files, target)
		}
	}
	return files, folders, nil
}

// below reports whether target lies strictly inside the directory of page
func below(page, target *url.URL) bool {
	if target.Scheme != page.Scheme || target.Host != page.Host {
		return false
	}
	return strings.HasPrefix(target.Path, page.Path) && len(target.Path) > len(page.Path)
}

// extractLinks returns the href of every anchor outside of comments
func extractLinks(r io.Reader) ([]string, error) {
	var links []string
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return links, nil
			}
			return links, z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "href" {
					links = append(links, string(val))
				}
			}
		}
	}
}

// memBody is a cached download; it keeps the random access of bytes.Reader
type memBody struct {
	*bytes.Reader
}

func (memBody) Close() error { return nil }
