package scheduler

import (
	"context"
	"time"
)

// DefaultSchedule polls every five minutes.
const DefaultSchedule = "5m"

// Config controls the scheduler.
type Config struct {
	Schedule string // cron, @every, Go duration or HH:MM interval
	Timezone string // IANA TZ for cron schedules, e.g. "Europe/Warsaw"
	// RunOnStart triggers one run right after Start.
	RunOnStart bool
	// StartupSpread delays the first interval run by a random fraction of the
	// interval (capped) so restarted replicas do not poll in lockstep.
	StartupSpread bool
	// RunTimeout bounds a single run; 0 means unbounded.
	RunTimeout time.Duration
}

// Job is the scheduled unit of work.
type Job func(ctx context.Context) error

// Snapshot is a point-in-time view of the scheduler for status pages.
type Snapshot struct {
	Started   bool      `json:"started"`
	Running   bool      `json:"running"`
	Schedule  string    `json:"schedule"`
	Timezone  string    `json:"timezone"`
	Next      time.Time `json:"next,omitzero"`
	Prev      time.Time `json:"prev,omitzero"`
	Runs      uint64    `json:"runs"`
	Skipped   uint64    `json:"skipped"`
	Failures  uint64    `json:"failures"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}
