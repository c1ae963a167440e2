// Package cleanup schedules and runs the periodic cache sweep.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blackwell-systems/reposync/internal/jobs"
)

// Scheduler registers the cleanup job and sweeps the cache when it runs.
type Scheduler struct {
	scheduler jobs.Scheduler
	cacheDir  string
	keep      []string
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	interval time.Duration
}

// NewScheduler creates a cleanup Scheduler for cacheDir. Subdirectories of
// cacheDir named in keep are never swept.
func NewScheduler(scheduler jobs.Scheduler, cacheDir string, logger *slog.Logger, keep ...string) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: scheduler,
		cacheDir:  cacheDir,
		keep:      keep,
		logger:    logger,
		now:       time.Now,
	}
}

// Schedule registers the cleanup job to run every interval. A non-positive
// interval cancels it.
func (s *Scheduler) Schedule(interval time.Duration) error {
	s.mu.Lock()
	s.interval = interval
	s.mu.Unlock()

	if interval <= 0 {
		if err := s.scheduler.Cancel(jobs.CleanupJobID); err != nil {
			return fmt.Errorf("failed to cancel cleanup job: %w", err)
		}
		s.logger.Info("cleanup job cancelled")
		return nil
	}

	job := jobs.Job{
		ID:     jobs.CleanupJobID,
		Period: interval,
		Flex:   jobs.MinFlex,
	}
	if err := s.scheduler.Schedule(job); err != nil {
		return fmt.Errorf("failed to schedule cleanup job: %w", err)
	}
	s.logger.Info("cleanup job scheduled", "interval", interval)
	return nil
}

// Run is the job handler. It removes cache files older than the current
// interval.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	interval := s.interval
	s.mu.Unlock()

	if interval <= 0 {
		return nil
	}
	removed, err := Sweep(ctx, s.cacheDir, interval, s.now(), s.keep...)
	if err != nil {
		return err
	}
	s.logger.Info("cache cleaned", "dir", s.cacheDir, "removed", removed)
	return nil
}

// Sweep deletes regular files under dir last modified more than maxAge
// before now, and returns how many were removed. A missing dir is empty.
// The top-level subdirectories named in keep are skipped entirely.
func Sweep(ctx context.Context, dir string, maxAge time.Duration, now time.Time, keep ...string) (int, error) {
	cutoff := now.Add(-maxAge)
	removed := 0

	skip := make(map[string]bool, len(keep))
	for _, name := range keep {
		skip[filepath.Join(dir, name)] = true
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() && skip[path] {
			return filepath.SkipDir
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to remove %s: %w", path, err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to sweep %s: %w", dir, err)
	}
	return removed, nil
}
