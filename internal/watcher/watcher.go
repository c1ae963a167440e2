package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/blackwell-systems/reposync/internal/installed"
)

// Roots are the directories under the Homebrew prefix holding installed kegs.
var Roots = []string{"Cellar", "Caskroom"}

// Watcher emits installed.Events for changes under the Homebrew prefix.
type Watcher struct {
	prefix    string
	logger    *slog.Logger
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a Watcher for the Homebrew installation at prefix.
func New(prefix string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{prefix: prefix, logger: logger, ready: make(chan struct{})}
}

// Ready is closed once every package root is being watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches the package roots and sends events until ctx is done.
func (w *Watcher) Run(ctx context.Context, events chan<- installed.Event) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	var roots []string
	for _, name := range Roots {
		root := filepath.Join(w.prefix, name)
		if err := fw.Add(root); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				w.logger.Debug("package root missing", "root", root)
				continue
			}
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
		roots = append(roots, root)

		// Watch existing package directories for version changes.
		entries, err := os.ReadDir(root)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", root, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				w.watch(fw, filepath.Join(root, entry.Name()))
			}
		}
	}
	if len(roots) == 0 {
		return fmt.Errorf("no package directories under %s", w.prefix)
	}

	w.logger.Info("watching package directories", "roots", roots)
	w.readyOnce.Do(func() { close(w.ready) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			out, watchDir, ok := translate(roots, ev)
			if !ok {
				continue
			}
			if watchDir != "" {
				w.watch(fw, watchDir)
			}
			w.logger.Debug("package event", "kind", out.Kind.String(), "package", out.PackageName)
			select {
			case events <- out:
			case <-ctx.Done():
				return nil
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("package watcher error", "error", err)
		}
	}
}

func (w *Watcher) watch(fw *fsnotify.Watcher, dir string) {
	if err := fw.Add(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Warn("failed to watch package directory", "dir", dir, "error", err)
	}
}

// translate maps a filesystem event to a package event. It also returns a
// directory that should be watched from now on, if any.
func translate(roots []string, ev fsnotify.Event) (installed.Event, string, bool) {
	for _, root := range roots {
		rel, err := filepath.Rel(root, ev.Name)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}

		parts := strings.Split(rel, string(filepath.Separator))
		name := parts[0]
		if strings.HasPrefix(name, ".") {
			return installed.Event{}, "", false
		}

		switch len(parts) {
		case 1:
			switch {
			case ev.Has(fsnotify.Create):
				return installed.Event{Kind: installed.EventAdded, PackageName: name}, ev.Name, true
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				return installed.Event{Kind: installed.EventRemoved, PackageName: name}, "", true
			}
		case 2:
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				return installed.Event{Kind: installed.EventAdded, PackageName: name}, "", true
			}
		}
		return installed.Event{}, "", false
	}
	return installed.Event{}, "", false
}
