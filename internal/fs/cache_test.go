package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pavel-fokin/filehub/internal/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedRegistry(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"files": [{"id": "a"}]}`), 0644))

	cache := NewCachedRegistry(NewRegistry(root, "registry.json", false))

	reg, err := cache.Load()
	require.NoError(t, err)
	require.Len(t, reg.All(), 1)

	// Mutating a loaded copy does not leak into the cache.
	reg.Files = append(reg.Files, &files.Entry{ID: "b"})

	require.NoError(t, os.WriteFile(path, []byte(`{"files": []}`), 0644))
	reg, err = cache.Load()
	require.NoError(t, err)
	assert.Len(t, reg.All(), 1, "served from cache")

	cache.Invalidate()
	reg, err = cache.Load()
	require.NoError(t, err)
	assert.Empty(t, reg.All())
}

func TestCachedRegistrySave(t *testing.T) {
	root := t.TempDir()
	cache := NewCachedRegistry(NewRegistry(root, "registry.json", false))

	reg, err := cache.Load()
	require.NoError(t, err)
	reg.Files = append(reg.Files, &files.Entry{ID: "a", Path: "a.txt"})
	require.NoError(t, cache.Save(reg))

	reg, err = cache.Load()
	require.NoError(t, err)
	require.Len(t, reg.All(), 1)
	assert.Equal(t, "a", reg.All()[0].ID)
}

func TestCachedRegistryWatch(t *testing.T) {
	root := t.TempDir()
	store := NewRegistry(root, "registry.json", false)
	require.NoError(t, store.Save(&files.Registry{Root: root, Files: []*files.Entry{{ID: "a"}}}))

	cache := NewCachedRegistry(store)
	_, err := cache.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cache.Watch(ctx) }()

	// Give the watcher time to register before changing the document.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, store.Save(&files.Registry{Root: root, Files: []*files.Entry{{ID: "a"}, {ID: "b"}}}))

	require.Eventually(t, func() bool {
		reg, err := cache.Load()
		return err == nil && len(reg.All()) == 2
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
