package jobs

import (
	"fmt"
	"time"
)

// Store persists job registrations.
type Store interface {
	SaveJob(job Job) error
	LoadJob(id ID) (Job, bool, error)
	ListJobs() ([]Job, error)
	DeleteJob(id ID) error
	MarkJobRun(id ID, at time.Time) error
}

// PersistentScheduler implements Scheduler over a Store.
type PersistentScheduler struct {
	store Store
	now   func() time.Time
}

// NewPersistentScheduler creates a scheduler backed by st.
func NewPersistentScheduler(st Store) *PersistentScheduler {
	return &PersistentScheduler{store: st, now: time.Now}
}

// IsPending reports whether a job is registered under id.
func (s *PersistentScheduler) IsPending(id ID) (bool, error) {
	_, ok, err := s.store.LoadJob(id)
	if err != nil {
		return false, fmt.Errorf("failed to query %s job: %w", id, err)
	}
	return ok, nil
}

// Schedule registers job, replacing any previous registration under the
// same ID. Period is clamped to MinPeriod and Flex to [MinFlex, Period].
// The new registration starts a fresh period.
func (s *PersistentScheduler) Schedule(job Job) error {
	job = clamp(job)
	job.ScheduledAt = s.now()
	job.LastRunAt = time.Time{}
	if err := s.store.SaveJob(job); err != nil {
		return fmt.Errorf("failed to schedule %s job: %w", job.ID, err)
	}
	return nil
}

// Cancel removes the job registered under id.
func (s *PersistentScheduler) Cancel(id ID) error {
	if err := s.store.DeleteJob(id); err != nil {
		return fmt.Errorf("failed to cancel %s job: %w", id, err)
	}
	return nil
}

func clamp(job Job) Job {
	if job.Period < MinPeriod {
		job.Period = MinPeriod
	}
	if job.Flex < MinFlex {
		job.Flex = MinFlex
	}
	if job.Flex > job.Period {
		job.Flex = job.Period
	}
	return job
}
