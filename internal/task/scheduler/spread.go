package scheduler

import (
	"math/rand"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// firstRunSchedule fires at first, then defers to base.
type firstRunSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *firstRunSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// withStartupSpread delays the first tick of an interval schedule by a random
// jitter up to min(every, maxStartupSpread). Non-interval schedules are
// returned unchanged.
func withStartupSpread(sched cron.Schedule, now time.Time, rng *rand.Rand) (cron.Schedule, time.Duration) {
	cd, ok := sched.(cron.ConstantDelaySchedule)
	if !ok || cd.Delay <= 0 {
		return sched, 0
	}
	spread := min(cd.Delay, maxStartupSpread)
	if spread <= 0 {
		return sched, 0
	}
	// Whole seconds: cron.Every drops sub-second offsets on later ticks.
	jitter := time.Duration(rng.Int63n(int64(spread))).Truncate(time.Second)
	return &firstRunSchedule{base: cd, first: now.Add(cd.Delay + jitter)}, jitter
}
