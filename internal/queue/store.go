package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/austinkregel/local-media/playlistd/internal/types"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// PersistentState is the part of the queue remembered between runs.
// Tracks are not stored; the collection is reloaded from the library.
type PersistentState struct {
	Collection string `json:"collection"`
	TrackID    string `json:"trackId,omitempty"`
	Policy     string `json:"policy"`
}

// Store handles queue persistence to disk
type Store struct {
	mu       sync.Mutex
	fs       afero.Fs
	filePath string
	manager  *Manager
}

// NewStore creates a store writing queue.json under stateDir
func NewStore(fs afero.Fs, stateDir string, manager *Manager) *Store {
	return &Store{
		fs:       fs,
		filePath: filepath.Join(stateDir, "queue.json"),
		manager:  manager,
	}
}

// Load reads the saved state. A missing file yields a nil state and no error.
func (s *Store) Load() (*PersistentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read queue file")
	}

	var state PersistentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.Wrap(err, "failed to parse queue file")
	}
	return &state, nil
}

// Apply restores policy and cursor onto the manager. The manager must already
// hold the saved collection; a track that has since disappeared is skipped.
func (s *Store) Apply(state *PersistentState) {
	if state == nil {
		return
	}
	if p, ok := types.ParsePolicy(state.Policy); ok {
		s.manager.SetPolicy(p)
	}
	if state.TrackID != "" && !s.manager.Restore(state.TrackID) {
		zlog.Debug().Msgf("[QUEUE] Saved track %s is no longer in %q", state.TrackID, state.Collection)
	}
}

// Save writes the current queue state
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := PersistentState{
		Collection: s.manager.Collection().Name,
		Policy:     s.manager.Policy().String(),
	}
	if t, ok := s.manager.Current(); ok {
		state.TrackID = t.ID
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal queue state")
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
		return errors.Wrap(err, "failed to create queue directory")
	}
	if err := afero.WriteFile(s.fs, s.filePath, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write queue file")
	}
	return nil
}

// AutoSave saves after queue changes until ctx is done. Saves run on their
// own goroutine; changes arriving while one is in progress coalesce into a
// single follow-up save.
func (s *Store) AutoSave(ctx context.Context) {
	pending := make(chan struct{}, 1)
	s.manager.SetOnChange(func() {
		select {
		case pending <- struct{}{}:
		default:
		}
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-pending:
				if err := s.Save(); err != nil {
					zlog.Warn().Err(err).Msg("[QUEUE] Failed to save queue")
				}
			}
		}
	}()
}

// FilePath returns the path to the queue file
func (s *Store) FilePath() string {
	return s.filePath
}
