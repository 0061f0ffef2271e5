package queue

import (
	"context"
	"testing"
	"time"

	"github.com/austinkregel/local-media/playlistd/internal/types"
	"github.com/spf13/afero"
)

func TestStoreLoadSaveRoundtrip(t *testing.T) {
	fs := afero.NewMemMapFs()

	m := NewManager(1)
	m.SetCollection(collection("rain", "a", "b", "c"))
	m.Start()
	m.Advance(types.ReasonEnded) // b
	m.SetPolicy(types.PolicyRepeatAll)

	store := NewStore(fs, "/state", m)
	if err := store.Save(); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	if ok, _ := afero.Exists(fs, "/state/queue.json"); !ok {
		t.Fatal("Queue file was not created")
	}

	m2 := NewManager(1)
	store2 := NewStore(fs, "/state", m2)
	state, err := store2.Load()
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if state == nil || state.Collection != "rain" {
		t.Fatalf("Expected saved collection rain, got %+v", state)
	}

	m2.SetCollection(collection("rain", "a", "b", "c"))
	store2.Apply(state)

	idx, size := m2.Position()
	if size != 3 {
		t.Errorf("Expected size 3, got %d", size)
	}
	if idx != 1 {
		t.Errorf("Expected index 1, got %d", idx)
	}
	if m2.Policy() != types.PolicyRepeatAll {
		t.Errorf("Expected repeat-all, got %s", m2.Policy())
	}
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "/nowhere", NewManager(1))

	state, err := store.Load()
	if err != nil {
		t.Errorf("Expected no error for a missing file, got %v", err)
	}
	if state != nil {
		t.Errorf("Expected nil state, got %+v", state)
	}
}

func TestStoreLoadCorruptFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/state/queue.json", []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	store := NewStore(fs, "/state", NewManager(1))
	if _, err := store.Load(); err == nil {
		t.Error("Expected an error for a corrupt queue file")
	}
}

func TestStoreApplySkipsMissingTrack(t *testing.T) {
	m := NewManager(1)
	m.SetCollection(collection("rain", "a", "b"))
	store := NewStore(afero.NewMemMapFs(), "/state", m)

	store.Apply(&PersistentState{Collection: "rain", TrackID: "gone", Policy: "shuffle"})

	if _, ok := m.Current(); ok {
		t.Error("Expected no current track")
	}
	if m.Policy() != types.PolicyShuffle {
		t.Errorf("Expected shuffle, got %s", m.Policy())
	}
}

// waitForSaved polls the queue file until it holds collection/trackID
func waitForSaved(t *testing.T, store *Store, collection, trackID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var last *PersistentState
	for time.Now().Before(deadline) {
		state, err := store.Load()
		if err == nil && state != nil {
			last = state
			if state.Collection == collection && state.TrackID == trackID {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %s/%s to be saved, last saw %+v", collection, trackID, last)
}

func TestStoreAutoSave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(1)
	store := NewStore(afero.NewMemMapFs(), "/state", m)
	store.AutoSave(ctx)

	m.SetCollection(collection("forest", "x", "y"))
	m.Start()

	waitForSaved(t, store, "forest", "x")
}

func TestStoreAutoSaveDoesNotBlockChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(1)
	store := NewStore(afero.NewMemMapFs(), "/state", m)
	store.AutoSave(ctx)

	// a save stuck on the disk must not hold up queue changes
	store.mu.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.SetCollection(collection("rain", "a", "b", "c"))
		m.Start()
		m.Advance(types.ReasonEnded)
		m.Advance(types.ReasonEnded)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		store.mu.Unlock()
		t.Fatal("Queue changes waited for the save")
	}
	store.mu.Unlock()

	waitForSaved(t, store, "rain", "c")
}
