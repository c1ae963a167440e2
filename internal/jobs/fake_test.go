package jobs

import (
	"errors"
	"sort"
	"sync"
	"time"
)

type memStore struct {
	mu      sync.Mutex
	jobs    map[ID]Job
	listErr error
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[ID]Job)}
}

func (m *memStore) SaveJob(job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *memStore) LoadJob(id ID) (Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	return job, ok, nil
}

func (m *memStore) ListJobs() ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (m *memStore) DeleteJob(id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *memStore) MarkJobRun(id ID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return errors.New("no such job")
	}
	job.LastRunAt = at
	m.jobs[id] = job
	return nil
}

type staticEnv struct {
	ok bool
}

func (e staticEnv) Satisfies(Constraints) (bool, string) {
	if e.ok {
		return true, ""
	}
	return false, "blocked"
}
