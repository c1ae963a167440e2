package prefs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_LoadMissing(t *testing.T) {
	f := NewFileStore(filepath.Join(t.TempDir(), "prefs.yaml"), nil)
	p, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p)
}

func TestFileStore_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auto_sync: always\n"), 0o644))

	p, err := NewFileStore(path, nil).Load()
	require.NoError(t, err)

	want := Defaults()
	want.AutoSync = AutoSyncAlways
	assert.Equal(t, want, p)
}

func TestFileStore_LoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auto_sync: sometimes\n"), 0o644))

	p, err := NewFileStore(path, nil).Load()
	assert.Error(t, err)
	assert.Equal(t, Defaults(), p)
}

func TestFileStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")
	f := NewFileStore(path, nil)

	p := Defaults()
	p.UnstableUpdate = true
	p.CleanUpInterval = 3 * time.Hour
	p.ProxyType = ProxySOCKS
	require.NoError(t, f.Save(p))

	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, p, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestFileStore_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "prefs.yaml")
	f := NewFileStore(path, nil)
	b := NewBroadcaster[Preferences]()

	done := make(chan error, 1)
	go func() { done <- f.Watch(ctx, b) }()

	ch := b.Subscribe(ctx)
	assert.Equal(t, Defaults(), receive(t, ch))

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	p := Defaults()
	p.AutoSync = AutoSyncNever
	require.NoError(t, f.Save(p))

	require.Eventually(t, func() bool {
		cur, ok := b.Current()
		return ok && cur.AutoSync == AutoSyncNever
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
