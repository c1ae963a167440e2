// Package installed mirrors the package manager's installed set into the
// local registry.
//
// The mirror has two inputs that may race: a one-shot enumeration at startup
// and a live stream of add/remove events. Both paths end in idempotent
// upserts and deletes keyed by package name, so whichever write lands last
// describes the same underlying state.
package installed

import (
	"context"
	"log/slog"

	"github.com/blackwell-systems/reposync/internal/telemetry"
)

// Mirror keeps a Registry in step with a PackageManager.
type Mirror struct {
	registry Registry
	manager  PackageManager
	logger   *slog.Logger
	metrics  *telemetry.MirrorMetrics
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithLogger sets the logger used by the mirror.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mirror) {
		m.logger = logger
	}
}

// WithMetrics sets the metrics recorder used by the mirror.
func WithMetrics(metrics *telemetry.MirrorMetrics) Option {
	return func(m *Mirror) {
		m.metrics = metrics
	}
}

// NewMirror creates a Mirror writing to registry.
func NewMirror(registry Registry, manager PackageManager, opts ...Option) *Mirror {
	m := &Mirror{
		registry: registry,
		manager:  manager,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sync enumerates every installed package and upserts them in one batch.
// Enumeration failures count as "nothing installed" and are only logged.
// It returns the number of items written.
func (m *Mirror) Sync(ctx context.Context) int {
	packages, err := m.manager.ListInstalled(ctx)
	if err != nil {
		m.logger.Warn("Failed to enumerate installed packages", "error", err)
		return 0
	}
	if len(packages) == 0 {
		return 0
	}

	items := make([]Item, 0, len(packages))
	for _, pkg := range packages {
		items = append(items, pkg.ToItem())
	}

	if err := m.registry.PutAllInstalled(items); err != nil {
		m.logger.Error("Failed to store installed packages", "count", len(items), "error", err)
		return 0
	}

	m.logger.Info("Installed registry synchronized", "count", len(items))
	return len(items)
}

// Handle applies a single package event to the registry.
func (m *Mirror) Handle(ctx context.Context, ev Event) {
	if ev.PackageName == "" {
		return
	}
	m.metrics.RecordEvent(ctx, ev.Kind.String())

	switch ev.Kind {
	case EventAdded:
		info, err := m.manager.GetInfo(ctx, ev.PackageName)
		if err != nil {
			// The package may already be gone again; a removal event follows.
			m.logger.Debug("Skipping package without info", "package", ev.PackageName, "error", err)
			return
		}
		if err := m.registry.PutInstalled(info.ToItem()); err != nil {
			m.logger.Error("Failed to store installed package", "package", ev.PackageName, "error", err)
		}
	case EventRemoved:
		if err := m.registry.DeleteInstalled(ev.PackageName); err != nil {
			m.logger.Error("Failed to delete installed package", "package", ev.PackageName, "error", err)
		}
	}
}

// Run handles events until the channel is closed or ctx is done.
func (m *Mirror) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.Handle(ctx, ev)
		}
	}
}
