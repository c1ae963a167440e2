package prefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FileStore keeps preferences in a YAML file.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore returns a store for the file at path. The file need not exist.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the preference file location.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the preference file. Missing files and missing keys fall back
// to Defaults.
func (f *FileStore) Load() (Preferences, error) {
	p := Defaults()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("failed to read preferences: %w", err)
	}

	if err := yaml.Unmarshal(data, &p); err != nil {
		return Defaults(), fmt.Errorf("failed to parse preferences %s: %w", f.path, err)
	}
	return p, nil
}

// Save writes p atomically (temp file + rename).
func (f *FileStore) Save(p Preferences) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace preferences: %w", err)
	}
	return nil
}

// Watch publishes the current preferences to b, then republishes after
// every change to the file until ctx is done. A file that fails to parse
// is logged and skipped; the last good snapshot stays current.
func (f *FileStore) Watch(ctx context.Context, b *Broadcaster[Preferences]) error {
	p, err := f.Load()
	if err != nil {
		f.logger.Warn("using default preferences", "error", err)
	}
	b.Publish(p)

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer w.Close()

	// Editors and Save replace the file, so watch the directory.
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	name := filepath.Clean(f.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			p, err := f.Load()
			if err != nil {
				f.logger.Warn("ignoring unreadable preferences", "path", f.path, "error", err)
				continue
			}
			f.logger.Debug("preferences reloaded", "path", f.path)
			b.Publish(p)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("preferences watcher error", "error", err)
		}
	}
}
