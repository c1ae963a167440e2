// Package orchestrator owns the process-wide background scope: it starts
// the installed registry mirror, the sync service, the job runner and the
// preference reconciler, and tears them all down exactly once.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blackwell-systems/reposync/internal/installed"
)

// EventSource emits package events until ctx is done.
type EventSource interface {
	Run(ctx context.Context, events chan<- installed.Event) error
}

// Readier is implemented by event sources that need time to start
// listening. Ready is closed once events are being observed.
type Readier interface {
	Ready() <-chan struct{}
}

// Service is a component with explicit start and stop.
type Service interface {
	Start(ctx context.Context) error
	Stop()
}

// Runner runs a blocking task until ctx is done.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f RunnerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Resyncer performs a force full resync.
type Resyncer interface {
	ForceSyncAll(ctx context.Context) error
}

// Components are the parts started by an Orchestrator. Mirror, Services
// and Reconciler are required.
type Components struct {
	Mirror      *installed.Mirror
	Events      EventSource
	Services    []Service
	Preferences Runner
	Reconciler  Runner
	Resync      Resyncer

	// SchemaUpgraded triggers one force resync after startup.
	SchemaUpgraded bool
}

// Orchestrator manages the background scope.
type Orchestrator struct {
	c      Components
	logger *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	started  []Service
	stopOnce sync.Once
	wg       sync.WaitGroup
	done     chan struct{}
}

// New creates an Orchestrator.
func New(c Components, logger *slog.Logger) (*Orchestrator, error) {
	if c.Mirror == nil {
		return nil, errors.New("mirror cannot be nil")
	}
	if c.Reconciler == nil {
		return nil, errors.New("reconciler cannot be nil")
	}
	if c.SchemaUpgraded && c.Resync == nil {
		return nil, errors.New("resync cannot be nil when the schema was upgraded")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{c: c, logger: logger, done: make(chan struct{})}, nil
}

// Start brings every component up in order and returns once they are
// running. On failure the components already started are stopped.
func (o *Orchestrator) Start(ctx context.Context) error {
	scope, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	// Listen before enumerating so a change made during enumeration is not
	// lost. Both paths end in idempotent upserts and deletes.
	if o.c.Events != nil {
		events := make(chan installed.Event)
		exited := make(chan struct{})
		o.goRun("event source", func() error {
			defer close(events)
			defer close(exited)
			return o.c.Events.Run(scope, events)
		})
		o.goRun("installed mirror", func() error {
			o.c.Mirror.Run(scope, events)
			return nil
		})
		if r, ok := o.c.Events.(Readier); ok {
			select {
			case <-r.Ready():
			case <-exited:
			case <-scope.Done():
			}
		}
	}

	n := o.c.Mirror.Sync(scope)
	o.logger.Info("installed registry synchronized", "packages", n)

	for _, svc := range o.c.Services {
		if err := svc.Start(scope); err != nil {
			o.Stop()
			return fmt.Errorf("failed to start service: %w", err)
		}
		o.mu.Lock()
		o.started = append(o.started, svc)
		o.mu.Unlock()
	}

	if o.c.Preferences != nil {
		o.goRun("preferences", func() error { return o.c.Preferences.Run(scope) })
	}
	o.goRun("reconciler", func() error { return o.c.Reconciler.Run(scope) })

	if o.c.SchemaUpgraded {
		o.goRun("schema upgrade resync", func() error { return o.c.Resync.ForceSyncAll(scope) })
	}

	o.logger.Info("orchestrator started", "services", len(o.c.Services))
	return nil
}

func (o *Orchestrator) goRun(name string, fn func() error) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("background task failed", "task", name, "error", err)
		}
	}()
}

// Stop cancels the scope, waits for every task and stops the started
// services in reverse order. Calls after the first are no-ops.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		o.mu.Lock()
		cancel := o.cancel
		started := o.started
		o.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		o.wg.Wait()

		for i := len(started) - 1; i >= 0; i-- {
			started[i].Stop()
		}
		close(o.done)
		o.logger.Info("orchestrator stopped")
	})
}

// Done is closed once Stop has finished.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}
