package fs

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pavel-fokin/filehub/internal/files"
)

// CachedRegistry keeps the last loaded registry in memory until the
// document changes on disk or is saved through it.
type CachedRegistry struct {
	store *Registry

	mu     sync.RWMutex
	cached *files.Registry
	gen    uint64
}

// NewCachedRegistry wraps a registry store with a cache
func NewCachedRegistry(store *Registry) *CachedRegistry {
	return &CachedRegistry{store: store}
}

// Load returns a copy of the cached registry, reading it on a miss
func (c *CachedRegistry) Load() (*files.Registry, error) {
	c.mu.RLock()
	cached, gen := c.cached, c.gen
	c.mu.RUnlock()
	if cached != nil {
		return clone(cached), nil
	}

	reg, err := c.store.Load()
	if err != nil {
		return nil, err
	}

	// Only cache what was read if nothing invalidated it meanwhile.
	c.mu.Lock()
	if c.gen == gen {
		c.cached = reg
	}
	c.mu.Unlock()
	return clone(reg), nil
}

// Save persists the registry and replaces the cached copy
func (c *CachedRegistry) Save(reg *files.Registry) error {
	if err := c.store.Save(reg); err != nil {
		c.Invalidate()
		return err
	}

	c.mu.Lock()
	c.cached = clone(reg)
	c.gen++
	c.mu.Unlock()
	return nil
}

// Invalidate drops the cached registry
func (c *CachedRegistry) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.gen++
	c.mu.Unlock()
}

// Watch invalidates the cache whenever the registry document changes.
// It blocks until ctx is cancelled.
func (c *CachedRegistry) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// The document is replaced by rename, so watch its directory.
	path := c.store.Path()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	slog.Info("Watching registry", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				slog.Debug("Registry changed on disk", "path", event.Name, "op", event.Op.String())
				c.Invalidate()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("Registry watcher error", "error", err)
		}
	}
}

func clone(reg *files.Registry) *files.Registry {
	out := *reg
	out.Files = append([]*files.Entry(nil), reg.Files...)
	return &out
}
