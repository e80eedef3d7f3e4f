package scheduler

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	logx "dealwatch/pkg/logx"
)

// Service runs one job on a schedule. It is safe for concurrent use.
type Service struct {
	job Job
	log logx.Logger

	mu      sync.Mutex
	cfg     Config
	spec    ParsedSpec
	loc     *time.Location
	c       *cron.Cron
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	running  atomic.Bool
	runs     atomic.Uint64
	skipped  atomic.Uint64
	failures atomic.Uint64

	lastMu  sync.Mutex
	lastRun time.Time
	lastErr string
}

// New validates cfg.Schedule; an empty schedule selects DefaultSchedule.
func New(cfg Config, job Job, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule
	}
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	return &Service{job: job, log: log.With(logx.String("comp", "scheduler")), cfg: cfg, spec: spec}, nil
}

// Started reports whether triggering is active.
func (s *Service) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

// Start begins triggering. It returns false if the service was already
// started. Runs inherit ctx's values but not its cancellation; only Stop
// cancels an in-flight run.
func (s *Service) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return false
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.startLocked()

	if s.cfg.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}
	return true
}

func (s *Service) startLocked() {
	s.loc = s.loadLocationLocked()
	s.c = cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})),
	)

	sched, err := s.spec.Schedule()
	if err != nil {
		// ParseSchedule already validated the spec.
		s.log.Error("schedule rejected", logx.String("spec", s.spec.String()), logx.Err(err))
		return
	}
	var jitter time.Duration
	if s.cfg.StartupSpread {
		sched, jitter = withStartupSpread(sched, time.Now().In(s.loc), rand.New(rand.NewSource(time.Now().UnixNano())))
	}
	s.entryID = s.c.Schedule(sched, cron.FuncJob(s.tick))
	s.c.Start()
	s.log.Info("scheduler started",
		logx.String("schedule", s.spec.String()),
		logx.String("tz", s.loc.String()),
		logx.Duration("startup_spread", jitter))
}

// tick runs the job once unless a run is already in flight.
func (s *Service) tick() {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.log.Debug("trigger skipped, previous run still in flight")
		return
	}
	defer s.running.Store(false)

	s.mu.Lock()
	ctx := s.ctx
	timeout := s.cfg.RunTimeout
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s.runs.Add(1)
	err := s.job(ctx)

	s.lastMu.Lock()
	s.lastRun = time.Now()
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
	s.lastMu.Unlock()
	if err != nil {
		s.failures.Add(1)
		s.log.Warn("scheduled run failed", logx.Err(err))
	}
}

// Apply swaps the config. A changed schedule or timezone reschedules the
// running service; an invalid schedule is rejected and the old one kept.
func (s *Service) Apply(cfg Config) error {
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule
	}
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	changed := spec.String() != s.spec.String() || strings.TrimSpace(cfg.Timezone) != strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	s.spec = spec
	if s.c == nil || !changed {
		return nil
	}
	// Stopping cron only stops triggers; an in-flight run keeps going and the
	// running guard still prevents an overlap with the new schedule.
	s.c.Stop()
	s.startLocked()
	return nil
}

// Stop stops triggering, cancels the run context once ctx expires, and waits
// for the in-flight run. Stop on a stopped service is a no-op.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("stop deadline reached, canceling in-flight run")
		cancel()
		<-done
	}
	cancel()
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Started:  s.c != nil,
		Schedule: s.spec.String(),
		Timezone: strings.TrimSpace(s.cfg.Timezone),
	}
	if s.loc != nil {
		snap.Timezone = s.loc.String()
	}
	if s.c != nil && s.entryID != 0 {
		e := s.c.Entry(s.entryID)
		snap.Next, snap.Prev = e.Next, e.Prev
	}
	s.mu.Unlock()

	snap.Running = s.running.Load()
	snap.Runs = s.runs.Load()
	snap.Skipped = s.skipped.Load()
	snap.Failures = s.failures.Load()
	s.lastMu.Lock()
	snap.LastRun, snap.LastError = s.lastRun, s.lastErr
	s.lastMu.Unlock()
	return snap
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// ValidTimezone reports whether tz is empty or a loadable IANA zone.
func ValidTimezone(tz string) error {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return nil
	}
	_, err := time.LoadLocation(tz)
	return errors.Wrapf(err, "timezone %q", tz)
}

// cronLogger routes robfig/cron diagnostics to logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
