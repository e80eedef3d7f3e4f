// Package app wires configuration, storage, providers, the notifier and the
// cycle driver into one process, and applies config reloads to it.
package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"dealwatch/internal/config"
	"dealwatch/internal/cycle"
	"dealwatch/internal/deal"
	"dealwatch/internal/eventbus"
	"dealwatch/internal/httpapi"
	"dealwatch/internal/notify"
	"dealwatch/internal/reconcile"
	"dealwatch/internal/runtime/supervisor"
	"dealwatch/internal/storage"
	"dealwatch/internal/task/scheduler"
	"dealwatch/internal/transport/telegram"
	logx "dealwatch/pkg/logx"
	"dealwatch/pkg/sdnotify"
)

type App struct {
	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service

	bus    eventbus.Bus
	events *eventbus.Recorder

	store    storage.Store
	redis    *redis.Client
	client   *http.Client
	rec      *reconcile.Reconciler
	notifier *notify.Notifier
	driver   *cycle.Driver
	sched    *scheduler.Service

	sup     *supervisor.Supervisor
	started time.Time

	// work parents cycles. It survives the Start context so a shutdown
	// signal lets the running cycle finish; Stop cancels it.
	work     context.Context
	stopWork context.CancelFunc

	mu  sync.Mutex
	cfg *config.Config
}

// New loads the config and builds every component. It does not start any
// background work; call Start or RunOnce.
func New(ctx context.Context, cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("INFO")
	cfgm := config.NewManager(cfgPath, bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logConfig(cfg), nil)
	cfgm.SetLogger(log)

	sender, err := telegram.New(senderConfig(cfg), log)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	logs.SetSender(sender)

	a := &App{
		cfgm:    cfgm,
		cfg:     cfg,
		log:     log.With(logx.String("comp", "app")),
		logs:    logs,
		bus:     eventbus.New(),
		client:  newProviderClient(),
		started: time.Now(),
	}
	a.events = eventbus.NewRecorder(20,
		eventbus.CycleCompleted, eventbus.CycleFailed, eventbus.CycleSkipped, eventbus.ConfigReloaded)

	a.store, err = storage.Open(ctx, storageConfig(cfg), log)
	if err != nil {
		a.closeResources()
		_ = logs.Close()
		return nil, err
	}

	var (
		locker  cycle.Locker
		lockTTL time.Duration
	)
	if cfg.Redis != nil {
		opts, key, ttl := redisOptions(cfg)
		a.redis, err = cycle.DialRedis(ctx, opts)
		if err != nil {
			a.closeResources()
			_ = logs.Close()
			return nil, err
		}
		locker = cycle.NewRedisLocker(a.redis, key, log)
		lockTTL = ttl
	}

	providers, err := buildProviders(cfg, a.client)
	if err != nil {
		a.closeResources()
		_ = logs.Close()
		return nil, err
	}

	a.rec = reconcile.New(a.store, log)
	a.notifier = notify.New(sender, notifyConfig(cfg), log)
	a.driver = cycle.New(cycle.Options{
		Providers:       providers,
		Reconciler:      a.rec,
		Notifier:        a.notifier,
		Bus:             a.bus,
		Locker:          locker,
		LockTTL:         lockTTL,
		ProviderTimeout: providerTimeout(cfg),
		Log:             log,
	})

	a.sched, err = scheduler.New(schedulerConfig(cfg), a.runScheduled, log)
	if err != nil {
		a.closeResources()
		_ = logs.Close()
		return nil, err
	}

	a.log.Info("initialized",
		logx.String("storage", cfg.Storage.Driver),
		logx.Strs("providers", a.driver.Providers()),
		logx.Bool("redis_lock", locker != nil),
		logx.Bool("dry_run", cfg.Telegram.DryRun))
	return a, nil
}

// Config returns the config currently applied.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// RunOnce runs a single cycle in the foreground.
func (a *App) RunOnce(ctx context.Context) (deal.Summary, error) {
	return a.driver.RunCycle(ctx)
}

func (a *App) runScheduled(ctx context.Context) error {
	_, err := a.driver.RunCycle(ctx)
	if errors.Is(err, cycle.ErrCycleInFlight) {
		return nil
	}
	return err
}

// Start launches the background workers and returns once they are running.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	cfg := a.Config()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))
	a.work, a.stopWork = context.WithCancel(context.WithoutCancel(ctx))

	evCh, unsub := a.bus.Subscribe(64)
	a.sup.Go("events", func(ctx context.Context) error {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return nil
			case e := <-evCh:
				a.events.Record(e)
			}
		}
	})

	restart := supervisor.RestartPolicy{MinBackoff: time.Second, MaxBackoff: 30 * time.Second}
	a.sup.GoRestart("config.watch", a.cfgm.Watch, restart)

	updates := a.cfgm.Subscribe(4)
	a.sup.Go("config.reload", func(ctx context.Context) error {
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return nil
			case next := <-updates:
				a.applyConfig(next)
			}
		}
	})

	if cfg.HTTP.Enabled {
		srv := httpapi.New(httpOptions(cfg), httpapi.Deps{
			Cycles:    a.driver,
			Offers:    a.rec,
			Scheduler: a.sched,
			Events:    a.events,
			Workers:   a.sup.Workers,
			StartTime: a.started,
			Base:      a.work,
		}, a.log)
		a.sup.Go("http", srv.Serve)
	}

	if cfg.Scheduler.Enabled {
		a.sched.Start(a.work)
	} else {
		a.log.Info("scheduler disabled; waiting for /start or a config change")
	}

	a.sup.Go("watchdog", func(ctx context.Context) error {
		return sdnotify.Watchdog(ctx, func() bool { return a.sup.Err() == nil })
	})
	if _, err := sdnotify.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	}
	a.log.Info("started")
	return nil
}

// Done is closed when the supervisor context ends.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// ShutdownTimeout is the configured bound for Stop.
func (a *App) ShutdownTimeout() time.Duration { return shutdownTimeout(a.Config()) }

// applyConfig applies the hot-reloadable parts of next. Transport, storage,
// redis and HTTP settings are only read at startup.
func (a *App) applyConfig(next *config.Config) {
	a.mu.Lock()
	prev := a.cfg
	a.mu.Unlock()

	ch := config.Diff(prev, next)
	if ch.Empty() {
		a.log.Debug("config reload without effective changes")
		return
	}
	_, _ = sdnotify.Reloading()
	defer func() { _, _ = sdnotify.Ready() }()

	a.logs.Apply(logConfig(next))
	a.notifier.Apply(notifyConfig(next))

	if providers, err := buildProviders(next, a.client); err != nil {
		a.log.Warn("provider reload failed; keeping previous providers", logx.Err(err))
	} else {
		a.driver.SetProviders(providers, providerTimeout(next))
	}

	if err := a.sched.Apply(schedulerConfig(next)); err != nil {
		a.log.Warn("scheduler reload failed", logx.Err(err))
	}
	if next.Scheduler.Enabled && !a.sched.Started() {
		a.sched.Start(a.work)
	}

	a.mu.Lock()
	a.cfg = next
	a.mu.Unlock()

	if len(ch.Restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.Strs("sections", ch.Restart))
	}
	a.log.Info("config applied", ch.Fields()...)
	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: ch})
}

// Stop shuts the app down within ctx. An in-flight cycle gets to finish
// unless the deadline passes first.
func (a *App) Stop(ctx context.Context) error {
	_, _ = sdnotify.Stopping()
	a.log.Info("stopping")
	if a.stopWork != nil {
		release := context.AfterFunc(ctx, a.stopWork)
		defer func() {
			release()
			a.stopWork()
		}()
	}

	a.step(ctx, "scheduler", 0, func(c context.Context) error { a.sched.Stop(c); return nil })
	if a.sup != nil {
		a.step(ctx, "supervisor", 5*time.Second, a.sup.Stop)
	}
	a.closeResources()
	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step bounded by max (0 means the caller's deadline)
// so a stuck component cannot stall the rest of the shutdown.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx := ctx
	if max > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, max)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errors.Newf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("step", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("step", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("step", name), logx.Duration("elapsed", time.Since(start)))
	}
}

func (a *App) closeResources() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
		a.store = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.client != nil {
		a.client.CloseIdleConnections()
	}
}
