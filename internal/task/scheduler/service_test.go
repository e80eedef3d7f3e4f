package scheduler

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	logx "dealwatch/pkg/logx"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunOnStartAndStopWaits(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	finished := make(chan struct{})
	svc, err := New(Config{Schedule: "1h", RunOnStart: true}, func(ctx context.Context) error {
		calls.Add(1)
		<-release
		close(finished)
		return nil
	}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	if !svc.Start(context.Background()) {
		t.Fatal("first Start must start")
	}
	if svc.Start(context.Background()) {
		t.Fatal("second Start must be a no-op")
	}
	waitFor(t, func() bool { return svc.Snapshot().Running })

	stopped := make(chan struct{})
	go func() {
		svc.Stop(context.Background())
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a run was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-stopped
	<-finished

	snap := svc.Snapshot()
	if snap.Started || snap.Runs != 1 || calls.Load() != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestStopDeadlineCancelsRun(t *testing.T) {
	svc, err := New(Config{Schedule: "1h", RunOnStart: true}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	svc.Start(context.Background())
	waitFor(t, func() bool { return svc.Snapshot().Running })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	svc.Stop(ctx)

	snap := svc.Snapshot()
	if snap.Failures != 1 || snap.LastError == "" {
		t.Fatalf("expected a failed run, got %+v", snap)
	}
}

func TestParentCancelLetsRunFinish(t *testing.T) {
	release := make(chan struct{})
	runErr := make(chan error, 1)
	svc, err := New(Config{Schedule: "1h", RunOnStart: true}, func(ctx context.Context) error {
		<-release
		runErr <- ctx.Err()
		return nil
	}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	parent, cancelParent := context.WithCancel(context.Background())
	svc.Start(parent)
	waitFor(t, func() bool { return svc.Snapshot().Running })

	cancelParent()
	stopped := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Stop(ctx)
		close(stopped)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-stopped

	if err := <-runErr; err != nil {
		t.Fatalf("run context canceled by parent: %v", err)
	}
	if snap := svc.Snapshot(); snap.Failures != 0 || snap.Runs != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestTickSkipsWhileRunning(t *testing.T) {
	release := make(chan struct{})
	svc, err := New(Config{Schedule: "1h"}, func(context.Context) error {
		<-release
		return errors.New("boom")
	}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	go svc.tick()
	waitFor(t, func() bool { return svc.Snapshot().Running })
	svc.tick()
	close(release)
	waitFor(t, func() bool { return !svc.Snapshot().Running })

	snap := svc.Snapshot()
	if snap.Skipped != 1 || snap.Runs != 1 || snap.Failures != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestApplyReschedules(t *testing.T) {
	svc, err := New(Config{}, func(context.Context) error { return nil }, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if got := svc.Snapshot().Schedule; got != "@every 5m0s" {
		t.Fatalf("default schedule = %q", got)
	}
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	if err := svc.Apply(Config{Schedule: "bogus"}); err == nil {
		t.Fatal("expected invalid schedule error")
	}
	if err := svc.Apply(Config{Schedule: "*/10 * * * *"}); err != nil {
		t.Fatal(err)
	}
	snap := svc.Snapshot()
	if snap.Schedule != "*/10 * * * *" || !snap.Started || snap.Next.IsZero() {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestStartupSpread(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(1))

	sched, jitter := withStartupSpread(cron.Every(time.Minute), now, rng)
	first := sched.Next(now)
	if jitter < 0 || jitter >= 30*time.Second {
		t.Fatalf("jitter %v out of range", jitter)
	}
	if !first.Equal(now.Add(time.Minute + jitter)) {
		t.Fatalf("first run %v", first)
	}
	if next := sched.Next(first); !next.Equal(first.Add(time.Minute)) {
		t.Fatalf("second run %v", next)
	}

	spec, _ := ParseSchedule("*/5 * * * *")
	cronSched, _ := spec.Schedule()
	if _, j := withStartupSpread(cronSched, now, rng); j != 0 {
		t.Fatal("cron schedules are not spread")
	}
}

func TestValidTimezone(t *testing.T) {
	if err := ValidTimezone(""); err != nil {
		t.Fatal(err)
	}
	if err := ValidTimezone("UTC"); err != nil {
		t.Fatal(err)
	}
	if err := ValidTimezone("Mars/Olympus"); err == nil {
		t.Fatal("expected error")
	}
}
