// Package resync implements the force full resync: clear every
// repository's freshness marker and ask the sync service for a forced pass.
package resync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/blackwell-systems/reposync/internal/store"
	"github.com/blackwell-systems/reposync/internal/syncsvc"
)

//go:generate mockgen -destination=mocks/mock_coordinator.go -package=mocks -source=coordinator.go

// RepositoryStore reads and rewrites repository records.
type RepositoryStore interface {
	ListRepositories() ([]*store.Repository, error)
	PutRepository(repo *store.Repository) error
}

// Connector opens connections to the sync service.
type Connector interface {
	Connect(ctx context.Context) (syncsvc.Conn, error)
}

const defaultMaxTries = 8

// Coordinator performs force resyncs.
type Coordinator struct {
	repos      RepositoryStore
	connector  Connector
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
	maxTries   uint
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithBackOff sets the retry policy used while the sync service is not yet
// running.
func WithBackOff(newBackOff func() backoff.BackOff, maxTries uint) Option {
	return func(c *Coordinator) {
		c.newBackOff = newBackOff
		if maxTries > 0 {
			c.maxTries = maxTries
		}
	}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(repos RepositoryStore, connector Connector, opts ...Option) *Coordinator {
	c := &Coordinator{
		repos:     repos,
		connector: connector,
		logger:    slog.Default(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		maxTries: defaultMaxTries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForceSyncAll clears every non-empty freshness marker and then issues a
// single forced sync request. Records that fail to list or update are
// reported in the returned error but do not prevent the sync request.
func (c *Coordinator) ForceSyncAll(ctx context.Context) error {
	var errs []error
	repos, err := c.repos.ListRepositories()
	if err != nil {
		c.logger.Error("failed to list repositories", "error", err)
		errs = append(errs, fmt.Errorf("failed to list repositories: %w", err))
	}

	cleared := 0
	for _, repo := range repos {
		if !repo.HasFreshnessMarker() {
			continue
		}
		repo.LastModified = ""
		repo.EntityTag = ""
		if err := c.repos.PutRepository(repo); err != nil {
			c.logger.Error("failed to clear freshness marker", "repository", repo.Name, "error", err)
			errs = append(errs, fmt.Errorf("repository %s: %w", repo.Name, err))
			continue
		}
		cleared++
	}

	if err := c.requestForce(ctx); err != nil {
		errs = append(errs, err)
	} else {
		c.logger.Info("force sync requested", "repositories", len(repos), "cleared", cleared)
	}
	return errors.Join(errs...)
}

func (c *Coordinator) requestForce(ctx context.Context) error {
	connect := func() (syncsvc.Conn, error) {
		conn, err := c.connector.Connect(ctx)
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, syncsvc.ErrNotRunning) {
			c.logger.Debug("sync service not running yet, retrying")
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	conn, err := backoff.Retry(ctx, connect,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to sync service: %w", err)
	}
	defer conn.Close()

	if err := conn.Sync(ctx, syncsvc.RequestForce); err != nil {
		return fmt.Errorf("failed to request force sync: %w", err)
	}
	return nil
}
