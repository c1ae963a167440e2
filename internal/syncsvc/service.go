// Package syncsvc runs repository index syncs on a single worker.
//
// Clients connect, submit a Request and disconnect; the request is
// acknowledged once queued. The worker fetches each enabled repository's
// index with conditional requests derived from its freshness marker and
// stores the raw body under the IndexDir subdirectory of the cache directory.
package syncsvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blackwell-systems/reposync/internal/download"
	"github.com/blackwell-systems/reposync/internal/store"
	"github.com/blackwell-systems/reposync/internal/telemetry"
)

// IndexFile is the index path fetched under each repository address.
const IndexFile = "index-v1.json"

// IndexDir is the subdirectory of the cache directory holding stored indexes.
// Cache sweeps must leave it alone.
const IndexDir = "indexes"

const queueSize = 16

// ErrNotRunning is returned by Connect and Conn.Sync when the service has
// not been started or has stopped.
var ErrNotRunning = errors.New("sync service is not running")

// Request selects how a sync pass treats freshness markers.
type Request int

const (
	// RequestNormal sends conditional requests.
	RequestNormal Request = iota
	// RequestForce fetches every index unconditionally.
	RequestForce
)

func (r Request) String() string {
	if r == RequestForce {
		return "force"
	}
	return "normal"
}

// RepositoryStore is the repository persistence used by the worker.
type RepositoryStore interface {
	ListRepositories() ([]*store.Repository, error)
	PutRepository(repo *store.Repository) error
}

// Fetcher performs conditional downloads.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, v download.Validators, w io.Writer) (download.Result, error)
}

// Summary is the outcome of one sync pass.
type Summary struct {
	Updated   int
	Unchanged int
	Failed    int
}

type task struct {
	id   uuid.UUID
	req  Request
	done chan Summary
}

// Service is the sync worker.
type Service struct {
	repos    RepositoryStore
	fetcher  Fetcher
	indexDir string
	logger   *slog.Logger
	metrics  *telemetry.SyncMetrics
	now      func() time.Time

	mu      sync.RWMutex
	running bool
	queue   chan task
	wg      sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the service metrics.
func WithMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// New creates a stopped Service.
func New(repos RepositoryStore, fetcher Fetcher, cacheDir string, opts ...Option) *Service {
	s := &Service{
		repos:    repos,
		fetcher:  fetcher,
		indexDir: filepath.Join(cacheDir, IndexDir),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker. Passes run under ctx.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sync service already running")
	}
	if err := os.MkdirAll(s.indexDir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	s.queue = make(chan task, queueSize)
	s.running = true

	s.wg.Add(1)
	go s.work(ctx, s.queue)

	s.logger.Info("sync service started", "index_dir", s.indexDir)
	return nil
}

// Stop refuses new requests, lets queued ones finish and waits for the worker.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("sync service stopped")
}

// Conn is a client connection to the service.
//
//go:generate mockgen -destination=mocks/mock_conn.go -package=mocks github.com/blackwell-systems/reposync/internal/syncsvc Conn
type Conn interface {
	Sync(ctx context.Context, req Request) error
	Close() error
}

// Connect opens a connection. It fails with ErrNotRunning until Start.
func (s *Service) Connect(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running {
		return nil, ErrNotRunning
	}
	return &conn{svc: s}, nil
}

// Run queues req and waits for its pass to complete.
func (s *Service) Run(ctx context.Context, req Request) (Summary, error) {
	done := make(chan Summary, 1)
	if err := s.enqueue(ctx, req, done); err != nil {
		return Summary{}, err
	}
	select {
	case sum := <-done:
		return sum, nil
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}
}

// Handle is the periodic sync job handler.
func (s *Service) Handle(ctx context.Context) error {
	sum, err := s.Run(ctx, RequestNormal)
	if err != nil {
		return err
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d repositories failed to sync", sum.Failed)
	}
	return nil
}

func (s *Service) enqueue(ctx context.Context, req Request, done chan Summary) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running {
		return ErrNotRunning
	}

	t := task{id: uuid.New(), req: req, done: done}
	select {
	case s.queue <- t:
		s.logger.Debug("sync request queued", "request_id", t.id.String(), "request", req.String())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type conn struct {
	svc    *Service
	mu     sync.Mutex
	closed bool
}

func (c *conn) Sync(ctx context.Context, req Request) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("connection closed")
	}
	return c.svc.enqueue(ctx, req, nil)
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (s *Service) work(ctx context.Context, queue <-chan task) {
	defer s.wg.Done()

	for t := range queue {
		sum := s.pass(ctx, t)
		if t.done != nil {
			t.done <- sum
		}
	}
}

func (s *Service) pass(ctx context.Context, t task) Summary {
	start := s.now()
	logger := s.logger.With("request_id", t.id.String(), "request", t.req.String())

	var sum Summary
	defer func() {
		s.metrics.RecordSync(ctx, t.req.String(), s.now().Sub(start), sum.Failed)
	}()

	repos, err := s.repos.ListRepositories()
	if err != nil {
		logger.Error("failed to list repositories", "error", err)
		sum.Failed++
		return sum
	}

	for _, repo := range repos {
		if !repo.Enabled {
			continue
		}
		if ctx.Err() != nil {
			logger.Warn("sync pass interrupted")
			return sum
		}

		updated, err := s.syncRepository(ctx, repo, t.req)
		switch {
		case err != nil:
			sum.Failed++
			logger.Warn("repository sync failed", "repository", repo.Name, "error", err)
		case updated:
			sum.Updated++
			logger.Info("repository updated", "repository", repo.Name)
		default:
			sum.Unchanged++
			logger.Debug("repository unchanged", "repository", repo.Name)
		}
	}

	logger.Info("sync pass complete",
		"updated", sum.Updated,
		"unchanged", sum.Unchanged,
		"failed", sum.Failed,
		"duration", s.now().Sub(start))
	return sum
}

// CachePath returns where the index of repo is stored.
func (s *Service) CachePath(repo *store.Repository) string {
	return filepath.Join(s.indexDir, fmt.Sprintf("repo-%d-%s", repo.ID, IndexFile))
}

func (s *Service) syncRepository(ctx context.Context, repo *store.Repository, req Request) (bool, error) {
	// A marker without its stored index cannot be trusted; fetch in full.
	var v download.Validators
	if req != RequestForce && s.hasIndex(repo) {
		v = download.Validators{LastModified: repo.LastModified, EntityTag: repo.EntityTag}
	}

	// Write to a temp file so a failed fetch never clobbers the cached index.
	tmp, err := os.CreateTemp(s.indexDir, ".index-*")
	if err != nil {
		return false, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	url := strings.TrimRight(repo.Address, "/") + "/" + IndexFile
	res, err := s.fetcher.Fetch(ctx, url, v, tmp)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close temp file: %w", closeErr)
	}
	if err != nil {
		return false, err
	}
	if res.NotModified {
		return false, nil
	}

	if err := os.Rename(tmpName, s.CachePath(repo)); err != nil {
		return false, fmt.Errorf("failed to store index: %w", err)
	}

	repo.LastModified = res.LastModified
	repo.EntityTag = res.EntityTag
	repo.UpdatedAt = s.now()
	if err := s.repos.PutRepository(repo); err != nil {
		return false, fmt.Errorf("failed to record freshness marker: %w", err)
	}
	return true, nil
}

func (s *Service) hasIndex(repo *store.Repository) bool {
	info, err := os.Stat(s.CachePath(repo))
	return err == nil && info.Mode().IsRegular()
}
