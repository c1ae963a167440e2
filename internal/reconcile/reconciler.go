// Package reconcile drives the sync job, cache cleanup, proxy and force
// resync from the preference stream.
//
// A single subscription feeds every concern. Each concern watches its own
// deduplicated projection of that stream on its own goroutine, so a slow or
// failing collaborator in one concern never delays the others.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/reposync/internal/prefs"
	"github.com/blackwell-systems/reposync/internal/proxy"
	"github.com/blackwell-systems/reposync/internal/telemetry"
)

// Source delivers the latest preferences on subscription and every change
// after that.
type Source interface {
	Subscribe(ctx context.Context) <-chan prefs.Preferences
}

// SyncJob reconciles the periodic sync job.
type SyncJob interface {
	Reconcile(force bool, mode prefs.AutoSyncMode) error
}

// ProxyApplier publishes proxy preferences.
type ProxyApplier interface {
	Apply(pref prefs.ProxyPreference) proxy.Config
}

// CleanupScheduler schedules the cache cleanup job.
type CleanupScheduler interface {
	Schedule(interval time.Duration) error
}

// Resyncer performs a force full resync.
type Resyncer interface {
	ForceSyncAll(ctx context.Context) error
}

const (
	concernUnstable = "unstable_update"
	concernAutoSync = "auto_sync"
	concernCleanup  = "clean_up_interval"
	concernProxy    = "proxy"
)

// Reconciler fans the preference stream out to its collaborators.
type Reconciler struct {
	source  Source
	syncJob SyncJob
	proxy   ProxyApplier
	cleanup CleanupScheduler
	resync  Resyncer
	logger  *slog.Logger
	metrics *telemetry.ReconcileMetrics
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the reconciler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithMetrics sets the reconciler metrics.
func WithMetrics(metrics *telemetry.ReconcileMetrics) Option {
	return func(r *Reconciler) {
		r.metrics = metrics
	}
}

// New creates a Reconciler.
func New(source Source, syncJob SyncJob, proxyApplier ProxyApplier, cleanup CleanupScheduler, resync Resyncer, opts ...Option) *Reconciler {
	r := &Reconciler{
		source:  source,
		syncJob: syncJob,
		proxy:   proxyApplier,
		cleanup: cleanup,
		resync:  resync,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run subscribes to the source once and fans every value out to each
// concern, so all concerns observe the same sequence. It blocks until ctx
// is done and all concerns have drained. Collaborator failures are logged,
// never returned.
func (r *Reconciler) Run(ctx context.Context) error {
	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Every concern subscribes before the first value is forwarded.
	fan := prefs.NewBroadcaster[prefs.Preferences]()
	unstable := fan.Subscribe(fanCtx)
	autoSync := fan.Subscribe(fanCtx)
	cleanup := fan.Subscribe(fanCtx)
	proxyPrefs := fan.Subscribe(fanCtx)

	var g errgroup.Group

	g.Go(func() error {
		defer cancel()
		for p := range r.source.Subscribe(ctx) {
			fan.Publish(p)
		}
		return nil
	})

	g.Go(func() error {
		watch(ctx, r, concernUnstable, unstable,
			func(p prefs.Preferences) bool { return p.UnstableUpdate },
			func(index int, _ bool) error {
				// The first value is the stored state, not a change.
				if index == 0 {
					return nil
				}
				return r.resync.ForceSyncAll(ctx)
			})
		return nil
	})

	g.Go(func() error {
		watch(ctx, r, concernAutoSync, autoSync,
			func(p prefs.Preferences) prefs.AutoSyncMode { return p.AutoSync },
			func(index int, mode prefs.AutoSyncMode) error {
				return r.syncJob.Reconcile(index > 0, mode)
			})
		return nil
	})

	g.Go(func() error {
		watch(ctx, r, concernCleanup, cleanup,
			func(p prefs.Preferences) time.Duration { return p.CleanUpInterval },
			func(_ int, interval time.Duration) error {
				return r.cleanup.Schedule(interval)
			})
		return nil
	})

	g.Go(func() error {
		watch(ctx, r, concernProxy, proxyPrefs,
			prefs.Preferences.Proxy,
			func(_ int, pref prefs.ProxyPreference) error {
				r.proxy.Apply(pref)
				return nil
			})
		return nil
	})

	return g.Wait()
}

// watch feeds each distinct projection to act together with its position
// in the deduplicated sequence.
func watch[K comparable](
	ctx context.Context,
	r *Reconciler,
	concern string,
	in <-chan prefs.Preferences,
	project func(prefs.Preferences) K,
	act func(index int, value K) error,
) {
	logger := r.logger.With("concern", concern)

	index := 0
	for value := range prefs.DistinctMap(ctx, in, project) {
		err := safeCall(func() error { return act(index, value) })
		r.metrics.RecordAction(ctx, concern, err == nil)
		if err != nil {
			logger.Error("reconciliation failed", "index", index, "error", err)
		} else {
			logger.Debug("reconciled", "index", index, "value", value)
		}
		index++
	}
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}
