package app

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/blackwell-systems/reposync/internal/brew"
	"github.com/blackwell-systems/reposync/internal/cleanup"
	"github.com/blackwell-systems/reposync/internal/download"
	"github.com/blackwell-systems/reposync/internal/installed"
	"github.com/blackwell-systems/reposync/internal/jobs"
	"github.com/blackwell-systems/reposync/internal/orchestrator"
	"github.com/blackwell-systems/reposync/internal/prefs"
	"github.com/blackwell-systems/reposync/internal/proxy"
	"github.com/blackwell-systems/reposync/internal/reconcile"
	"github.com/blackwell-systems/reposync/internal/resync"
	"github.com/blackwell-systems/reposync/internal/store"
	"github.com/blackwell-systems/reposync/internal/syncjob"
	"github.com/blackwell-systems/reposync/internal/syncsvc"
	"github.com/blackwell-systems/reposync/internal/telemetry"
	"github.com/blackwell-systems/reposync/internal/watcher"
)

var _ orchestrator.Readier = (*watcher.Watcher)(nil)

// openStore opens and migrates the database. It reports whether the schema
// was created or upgraded.
func (c *cli) openStore() (*store.Store, bool, error) {
	st, err := store.New(c.cfg.DB)
	if err != nil {
		return nil, false, err
	}
	upgraded, err := st.Migrate()
	if err != nil {
		st.Close()
		return nil, false, err
	}
	return st, upgraded, nil
}

// openExistingStore opens the database without creating a schema.
func (c *cli) openExistingStore() (*store.Store, error) {
	st, err := store.New(c.cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return st, nil
}

// newDownloader returns a downloader using the proxy from the stored
// preferences, so one-shot commands honour the same settings as run.
func (c *cli) newDownloader() *download.Downloader {
	dl := download.New()
	p, err := prefs.NewFileStore(c.cfg.Prefs, c.logger).Load()
	if err != nil {
		c.logger.Warn("using default preferences", "error", err)
	}
	proxy.NewController(dl, c.logger).Apply(p.Proxy())
	return dl
}

// service is the assembled background scope of 'reposync run'.
type service struct {
	store *store.Store
	orch  *orchestrator.Orchestrator
}

func (s *service) close() {
	s.store.Close()
}

func (c *cli) assemble(ctx context.Context) (*service, error) {
	st, upgraded, err := c.openStore()
	if err != nil {
		return nil, err
	}

	provider := otel.GetMeterProvider()
	mirrorMetrics, err := telemetry.NewMirrorMetrics(provider)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create mirror metrics: %w", err)
	}
	syncMetrics, err := telemetry.NewSyncMetrics(provider)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	reconcileMetrics, err := telemetry.NewReconcileMetrics(provider)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create reconcile metrics: %w", err)
	}

	brewClient := brew.NewClient(c.cfg.BrewBin)
	mirror := installed.NewMirror(st, brewClient,
		installed.WithLogger(c.logger),
		installed.WithMetrics(mirrorMetrics),
	)

	var events orchestrator.EventSource
	prefix := c.cfg.BrewPrefix
	if prefix == "" {
		if prefix, err = brewClient.Prefix(ctx); err != nil {
			c.logger.Warn("live package events disabled", "error", err)
		}
	}
	if prefix != "" {
		events = watcher.New(prefix, c.logger)
	}

	dl := download.New()
	scheduler := jobs.NewPersistentScheduler(st)
	cleaner := cleanup.NewScheduler(scheduler, c.cfg.CacheDir, c.logger, syncsvc.IndexDir)

	svc := syncsvc.New(st, dl, c.cfg.CacheDir,
		syncsvc.WithLogger(c.logger),
		syncsvc.WithMetrics(syncMetrics),
	)
	coordinator := resync.NewCoordinator(st, svc, resync.WithLogger(c.logger))

	runner, err := jobs.NewRunner(st, jobs.NewSystemEnvironment(c.cfg.CacheDir), jobs.WithLogger(c.logger))
	if err != nil {
		st.Close()
		return nil, err
	}
	runner.Register(jobs.SyncJobID, svc.Handle)
	runner.Register(jobs.CleanupJobID, cleaner.Run)

	snapshots := prefs.NewBroadcaster[prefs.Preferences]()
	prefStore := prefs.NewFileStore(c.cfg.Prefs, c.logger)

	reconciler := reconcile.New(
		snapshots,
		syncjob.NewController(scheduler, c.logger),
		proxy.NewController(dl, c.logger),
		cleaner,
		coordinator,
		reconcile.WithLogger(c.logger),
		reconcile.WithMetrics(reconcileMetrics),
	)

	orch, err := orchestrator.New(orchestrator.Components{
		Mirror:   mirror,
		Events:   events,
		Services: []orchestrator.Service{svc, runner},
		Preferences: orchestrator.RunnerFunc(func(ctx context.Context) error {
			return prefStore.Watch(ctx, snapshots)
		}),
		Reconciler:     reconciler,
		Resync:         coordinator,
		SchemaUpgraded: upgraded,
	}, c.logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &service{store: st, orch: orch}, nil
}

// notInitialized rewrites ErrNotInitialized into a hint for the user.
func notInitialized(err error) error {
	if errors.Is(err, store.ErrNotInitialized) {
		return store.ErrNotInitialized
	}
	return err
}
