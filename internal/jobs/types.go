package jobs

import (
	"context"
	"time"
)

// ID identifies a periodic job slot. At most one job is registered per ID.
type ID int

const (
	// SyncJobID is the slot of the periodic repository sync job.
	SyncJobID ID = 1
	// CleanupJobID is the slot of the periodic cache cleanup job.
	CleanupJobID ID = 2
)

func (id ID) String() string {
	switch id {
	case SyncJobID:
		return "sync"
	case CleanupJobID:
		return "cleanup"
	default:
		return "job"
	}
}

const (
	// MinPeriod is the shortest period a job may be registered with.
	MinPeriod = 15 * time.Minute
	// MinFlex is the shortest flex window of a periodic job.
	MinFlex = 5 * time.Minute
)

// NetworkType is the connectivity a job requires before it may run.
type NetworkType int

const (
	// NetworkNone means no network is required.
	NetworkNone NetworkType = iota
	// NetworkAny requires any connected network.
	NetworkAny
	// NetworkUnmetered requires a network without data usage limits.
	NetworkUnmetered
)

func (n NetworkType) String() string {
	switch n {
	case NetworkAny:
		return "any"
	case NetworkUnmetered:
		return "unmetered"
	default:
		return "none"
	}
}

// Constraints are the device conditions a job waits for.
type Constraints struct {
	Network               NetworkType
	RequiresCharging      bool
	RequiresBatteryNotLow bool
	RequiresStorageNotLow bool
}

// Job is a periodic job registration.
type Job struct {
	ID          ID
	Constraints Constraints
	Period      time.Duration
	Flex        time.Duration
	ScheduledAt time.Time
	LastRunAt   time.Time
}

// NextWindow returns the earliest time the job may run again.
func (j Job) NextWindow() time.Time {
	base := j.ScheduledAt
	if j.LastRunAt.After(base) {
		base = j.LastRunAt
	}
	return base.Add(j.Period - j.Flex)
}

// Scheduler registers, queries and cancels periodic jobs.
//
//go:generate mockgen -destination=mocks/mock_scheduler.go -package=mocks -source=types.go
type Scheduler interface {
	// IsPending reports whether a job is currently registered under id.
	IsPending(id ID) (bool, error)
	// Schedule registers job, atomically replacing any job with the same ID.
	Schedule(job Job) error
	// Cancel removes the job registered under id. Cancelling an absent job is not an error.
	Cancel(id ID) error
}

// Handler runs one execution of a job.
type Handler func(ctx context.Context) error
