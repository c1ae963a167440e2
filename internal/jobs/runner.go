package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is how often the Runner looks for due jobs.
const DefaultPollInterval = time.Minute

// Runner fires registered handlers for jobs whose window has opened and
// whose constraints are met.
type Runner struct {
	store    Store
	env      Environment
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	handlers map[ID]Handler

	stopCh chan struct{}
	wg     sync.WaitGroup
	ticker *time.Ticker
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a Runner over st using env to evaluate constraints.
func NewRunner(st Store, env Environment, opts ...RunnerOption) (*Runner, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if env == nil {
		return nil, fmt.Errorf("environment cannot be nil")
	}
	r := &Runner{
		store:    st,
		env:      env,
		logger:   slog.Default(),
		interval: DefaultPollInterval,
		now:      time.Now,
		handlers: make(map[ID]Handler),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Register sets the handler run for jobs registered under id.
func (r *Runner) Register(id ID, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = h
}

// Start runs one pass immediately and then polls on a ticker until Stop is
// called or ctx ends.
func (r *Runner) Start(ctx context.Context) error {
	r.RunDue(ctx)

	r.ticker = time.NewTicker(r.interval)

	r.wg.Add(1)
	go r.loop(ctx)

	return nil
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-r.ticker.C:
			r.RunDue(ctx)
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts polling and waits for an in-flight pass to finish.
func (r *Runner) Stop() {
	close(r.stopCh)

	if r.ticker != nil {
		r.ticker.Stop()
	}

	r.wg.Wait()
}

// RunDue runs every due job once and returns how many handlers ran.
func (r *Runner) RunDue(ctx context.Context) int {
	registered, err := r.store.ListJobs()
	if err != nil {
		r.logger.Error("failed to list jobs", "error", err)
		return 0
	}

	now := r.now()
	ran := 0
	for _, job := range registered {
		if now.Before(job.NextWindow()) {
			continue
		}

		r.mu.Lock()
		h, ok := r.handlers[job.ID]
		r.mu.Unlock()
		if !ok {
			continue
		}

		if met, why := r.env.Satisfies(job.Constraints); !met {
			r.logger.Debug("job deferred", "job", job.ID.String(), "reason", why)
			continue
		}

		start := r.now()
		if err := h(ctx); err != nil {
			r.logger.Error("job failed", "job", job.ID.String(), "error", err)
		} else {
			r.logger.Info("job completed", "job", job.ID.String(), "duration", r.now().Sub(start))
		}
		ran++

		// A failed run still consumes its window; the next period retries.
		if err := r.store.MarkJobRun(job.ID, now); err != nil {
			r.logger.Error("failed to record job run", "job", job.ID.String(), "error", err)
		}
	}
	return ran
}
