package model

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Catalog maps model identifiers to files following a naming pattern such as "ggml-%s.bin".
// Path derivation never consults the directory; the listing is informational only.
type Catalog struct {
	models    map[string]Model
	dir       string
	pattern   string
	prefix    string
	suffix    string
	debounce  time.Duration
	mu        sync.RWMutex
	refreshes atomic.Uint32
}

// NewCatalog creates a catalog over dir. pattern must contain exactly one %s.
func NewCatalog(dir, pattern string) *Catalog {
	prefix, suffix, _ := strings.Cut(pattern, "%s")

	return &Catalog{
		models:   make(map[string]Model),
		dir:      dir,
		pattern:  pattern,
		prefix:   prefix,
		suffix:   suffix,
		debounce: defaultDebounce,
	}
}

// Dir returns the models directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// Path returns the model file path for id. The file may not exist.
func (c *Catalog) Path(id string) string {
	return filepath.Join(c.dir, c.prefix+id+c.suffix)
}

// Get returns the model with the given ID.
func (c *Catalog) Get(id string) (Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.models[id]
	return m, ok
}

// List returns all known models sorted by ID.
func (c *Catalog) List() []Model {
	c.mu.RLock()
	defer c.mu.RUnlock()

	models := make([]Model, 0, len(c.models))
	for _, m := range c.models {
		models = append(models, m)
	}
	slices.SortFunc(models, func(a, b Model) int {
		return cmp.Compare(a.ID, b.ID)
	})

	return models
}

// RefreshCount returns the number of completed refreshes.
func (c *Catalog) RefreshCount() uint32 {
	return c.refreshes.Load()
}

// Refresh rescans the models directory. A missing directory empties the catalog and is reported.
func (c *Catalog) Refresh() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("model: failed to read models directory %s: %w", c.dir, err)
	}

	models := make(map[string]Model, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		id, ok := c.parseID(entry.Name())
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}

		models[id] = Model{
			ID:         id,
			Path:       filepath.Join(c.dir, entry.Name()),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		}
	}

	c.mu.Lock()
	c.models = models
	c.mu.Unlock()
	c.refreshes.Add(1)

	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("model: models directory %s: %w", c.dir, err)
	}

	return nil
}

// Watch refreshes the catalog whenever the models directory changes, until ctx is done.
// The watch is registered before Watch returns.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("model: failed to create file watcher: %w", err)
	}

	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("model: failed to watch %s: %w", c.dir, err)
	}

	go c.watch(ctx, watcher)

	return nil
}

func (c *Catalog) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	const relevant = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Op&relevant == 0 {
				continue
			}

			if timer != nil {
				timer.Stop()
			}

			timer = time.AfterFunc(c.debounce, func() {
				if err := c.Refresh(); err != nil {
					slog.Warn("Failed to refresh model catalog", "dir", c.dir, "error", err)
					return
				}
				slog.Info("Model catalog refreshed", "dir", c.dir, "models", len(c.List()))
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			slog.Error("Watcher error", "dir", c.dir, "error", err)
		}
	}
}

// parseID extracts the model identifier from a file name matching the pattern.
func (c *Catalog) parseID(name string) (string, bool) {
	if len(name) <= len(c.prefix)+len(c.suffix) {
		return "", false
	}
	if !strings.HasPrefix(name, c.prefix) || !strings.HasSuffix(name, c.suffix) {
		return "", false
	}

	return name[len(c.prefix) : len(name)-len(c.suffix)], true
}
