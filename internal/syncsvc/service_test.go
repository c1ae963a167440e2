package syncsvc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/reposync/internal/cleanup"
	"github.com/blackwell-systems/reposync/internal/download"
	"github.com/blackwell-systems/reposync/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	_, err = st.Migrate()
	require.NoError(t, err)
	return st
}

// indexServer serves a fixed index and records the validators it receives.
type indexServer struct {
	*httptest.Server
	mu      sync.Mutex
	seenTag []string
}

func newIndexServer(t *testing.T) *indexServer {
	s := &indexServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repo/"+IndexFile {
			http.NotFound(w, r)
			return
		}
		s.mu.Lock()
		s.seenTag = append(s.seenTag, r.Header.Get("If-None-Match"))
		s.mu.Unlock()

		if r.Header.Get("If-None-Match") == `"v2"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v2"`)
		w.Header().Set("Last-Modified", "Tue, 03 Jan 2006 15:04:05 GMT")
		w.Write([]byte(`{"packages":{}}`))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *indexServer) tags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seenTag...)
}

func TestConnect_NotRunning(t *testing.T) {
	svc := New(newTestStore(t), download.New(), t.TempDir())
	_, err := svc.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestRun_FetchesAndRefreshesMarker(t *testing.T) {
	st := newTestStore(t)
	srv := newIndexServer(t)
	repo, err := st.AddRepository("main", srv.URL+"/repo/")
	require.NoError(t, err)
	_, err = st.AddRepository("broken", srv.URL+"/missing")
	require.NoError(t, err)
	disabled, err := st.AddRepository("off", srv.URL+"/repo")
	require.NoError(t, err)
	disabled.Enabled = false
	require.NoError(t, st.PutRepository(disabled))

	cache := t.TempDir()
	svc := New(st, download.New(), cache)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	sum, err := svc.Run(context.Background(), RequestNormal)
	require.NoError(t, err)
	assert.Equal(t, Summary{Updated: 1, Failed: 1}, sum)

	got, err := st.GetRepository(repo.ID)
	require.NoError(t, err)
	assert.Equal(t, `"v2"`, got.EntityTag)
	assert.Equal(t, "Tue, 03 Jan 2006 15:04:05 GMT", got.LastModified)
	assert.False(t, got.UpdatedAt.IsZero())

	data, err := os.ReadFile(svc.CachePath(got))
	require.NoError(t, err)
	assert.Equal(t, `{"packages":{}}`, string(data))

	// Second normal pass sends the stored validator and is a 304.
	sum, err = svc.Run(context.Background(), RequestNormal)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Unchanged)

	// Force ignores the stored validator.
	sum, err = svc.Run(context.Background(), RequestForce)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)

	assert.Equal(t, []string{"", `"v2"`, ""}, srv.tags())
}

func TestRun_CacheSweepKeepsIndexes(t *testing.T) {
	st := newTestStore(t)
	srv := newIndexServer(t)
	repo, err := st.AddRepository("main", srv.URL+"/repo")
	require.NoError(t, err)

	cache := t.TempDir()
	svc := New(st, download.New(), cache)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	_, err = svc.Run(context.Background(), RequestNormal)
	require.NoError(t, err)

	removed, err := cleanup.Sweep(context.Background(), cache, 12*time.Hour, time.Now().Add(13*time.Hour), IndexDir)
	require.NoError(t, err)
	assert.Zero(t, removed)

	sum, err := svc.Run(context.Background(), RequestNormal)
	require.NoError(t, err)
	assert.Equal(t, Summary{Unchanged: 1}, sum)

	data, err := os.ReadFile(svc.CachePath(repo))
	require.NoError(t, err)
	assert.Equal(t, `{"packages":{}}`, string(data))
}

func TestRun_RefetchesMissingIndex(t *testing.T) {
	st := newTestStore(t)
	srv := newIndexServer(t)
	repo, err := st.AddRepository("main", srv.URL+"/repo")
	require.NoError(t, err)

	cache := t.TempDir()
	svc := New(st, download.New(), cache)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	_, err = svc.Run(context.Background(), RequestNormal)
	require.NoError(t, err)

	// An unrestricted sweep removes the stored index but not the marker.
	removed, err := cleanup.Sweep(context.Background(), cache, 12*time.Hour, time.Now().Add(13*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	sum, err := svc.Run(context.Background(), RequestNormal)
	require.NoError(t, err)
	assert.Equal(t, Summary{Updated: 1}, sum)

	data, err := os.ReadFile(svc.CachePath(repo))
	require.NoError(t, err)
	assert.Equal(t, `{"packages":{}}`, string(data))
	assert.Equal(t, []string{"", ""}, srv.tags())
}

func TestConn_SyncAcknowledgesWhenQueued(t *testing.T) {
	st := newTestStore(t)
	srv := newIndexServer(t)
	repo, err := st.AddRepository("main", srv.URL+"/repo")
	require.NoError(t, err)

	svc := New(st, download.New(), t.TempDir())
	require.NoError(t, svc.Start(context.Background()))

	conn, err := svc.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Sync(context.Background(), RequestForce))
	require.NoError(t, conn.Close())
	assert.Error(t, conn.Sync(context.Background(), RequestForce))

	// Stop drains the queued request.
	svc.Stop()

	got, err := st.GetRepository(repo.ID)
	require.NoError(t, err)
	assert.Equal(t, `"v2"`, got.EntityTag)

	_, err = svc.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestHandle_ReportsFailures(t *testing.T) {
	st := newTestStore(t)
	srv := newIndexServer(t)
	_, err := st.AddRepository("broken", srv.URL+"/missing")
	require.NoError(t, err)

	svc := New(st, download.New(), t.TempDir())
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	assert.Error(t, svc.Handle(context.Background()))
}

type failingStore struct{}

func (failingStore) ListRepositories() ([]*store.Repository, error) {
	return nil, errors.New("database locked")
}

func (failingStore) PutRepository(*store.Repository) error { return nil }

func TestRun_ListFailure(t *testing.T) {
	svc := New(failingStore{}, download.New(), t.TempDir())
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sum, err := svc.Run(ctx, RequestNormal)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
}

func TestStart_Twice(t *testing.T) {
	svc := New(failingStore{}, download.New(), t.TempDir())
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()
	assert.Error(t, svc.Start(context.Background()))
}
