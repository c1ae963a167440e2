package cleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/blackwell-systems/reposync/internal/jobs"
	"github.com/blackwell-systems/reposync/internal/jobs/mocks"
)

func TestSchedule(t *testing.T) {
	ctrl := gomock.NewController(t)
	sched := mocks.NewMockScheduler(ctrl)
	sched.EXPECT().Schedule(jobs.Job{
		ID:     jobs.CleanupJobID,
		Period: 6 * time.Hour,
		Flex:   jobs.MinFlex,
	}).Return(nil)

	require.NoError(t, NewScheduler(sched, t.TempDir(), nil).Schedule(6*time.Hour))
}

func TestSchedule_ZeroCancels(t *testing.T) {
	ctrl := gomock.NewController(t)
	sched := mocks.NewMockScheduler(ctrl)
	sched.EXPECT().Cancel(jobs.CleanupJobID).Return(nil)

	require.NoError(t, NewScheduler(sched, t.TempDir(), nil).Schedule(0))
}

func TestSchedule_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	sched := mocks.NewMockScheduler(ctrl)
	want := errors.New("busy")
	sched.EXPECT().Schedule(gomock.Any()).Return(want)

	err := NewScheduler(sched, t.TempDir(), nil).Schedule(time.Hour)
	assert.ErrorIs(t, err, want)
}

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	touch(t, filepath.Join(dir, "old.json"), now.Add(-48*time.Hour))
	touch(t, filepath.Join(dir, "nested", "old.json"), now.Add(-25*time.Hour))
	touch(t, filepath.Join(dir, "fresh.json"), now.Add(-time.Hour))

	removed, err := Sweep(context.Background(), dir, 24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = os.Stat(filepath.Join(dir, "fresh.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "old.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestSweep_KeepsProtectedDirs(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	touch(t, filepath.Join(dir, "indexes", "repo-1-index-v1.json"), now.Add(-48*time.Hour))
	touch(t, filepath.Join(dir, "other", "old.json"), now.Add(-48*time.Hour))
	touch(t, filepath.Join(dir, "old.json"), now.Add(-48*time.Hour))

	removed, err := Sweep(context.Background(), dir, 24*time.Hour, now, "indexes")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = os.Stat(filepath.Join(dir, "indexes", "repo-1-index-v1.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "other", "old.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestSweep_MissingDir(t *testing.T) {
	removed, err := Sweep(context.Background(), filepath.Join(t.TempDir(), "absent"), time.Hour, time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRun_UsesCurrentInterval(t *testing.T) {
	ctrl := gomock.NewController(t)
	sched := mocks.NewMockScheduler(ctrl)
	sched.EXPECT().Schedule(gomock.Any()).Return(nil)

	dir := t.TempDir()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	touch(t, filepath.Join(dir, "a"), now.Add(-3*time.Hour))
	touch(t, filepath.Join(dir, "b"), now.Add(-30*time.Minute))

	s := NewScheduler(sched, dir, nil)
	s.now = func() time.Time { return now }

	// Not configured yet: nothing is swept.
	require.NoError(t, s.Run(context.Background()))
	_, err := os.Stat(filepath.Join(dir, "a"))
	require.NoError(t, err)

	require.NoError(t, s.Schedule(time.Hour))
	require.NoError(t, s.Run(context.Background()))

	_, err = os.Stat(filepath.Join(dir, "a"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "b"))
	assert.NoError(t, err)
}

func TestRun_KeepsProtectedDirs(t *testing.T) {
	ctrl := gomock.NewController(t)
	sched := mocks.NewMockScheduler(ctrl)
	sched.EXPECT().Schedule(gomock.Any()).Return(nil)

	dir := t.TempDir()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	index := filepath.Join(dir, "indexes", "repo-1-index-v1.json")
	touch(t, index, now.Add(-72*time.Hour))
	touch(t, filepath.Join(dir, "stale"), now.Add(-72*time.Hour))

	s := NewScheduler(sched, dir, nil, "indexes")
	s.now = func() time.Time { return now }
	require.NoError(t, s.Schedule(12*time.Hour))
	require.NoError(t, s.Run(context.Background()))

	_, err := os.Stat(index)
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "stale"))
	assert.True(t, os.IsNotExist(err))
}
