// Package cycle runs one poll -> normalize -> reconcile -> notify pass at a
// time.
package cycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"dealwatch/internal/deal"
	"dealwatch/internal/dedup"
	"dealwatch/internal/eventbus"
	"dealwatch/internal/notify"
	"dealwatch/internal/provider"
	logx "dealwatch/pkg/logx"
)

// Reconciler persists a snapshot and reports the transition.
type Reconciler interface {
	Reconcile(ctx context.Context, snapshot []deal.Offer) (deal.Transition, error)
}

// Notifier picks and delivers notification candidates.
type Notifier interface {
	Select(candidates []deal.Offer, tr deal.Transition) []deal.Offer
	Notify(ctx context.Context, offers []deal.Offer) notify.Report
}

type Options struct {
	Providers  []provider.Provider
	Reconciler Reconciler
	Notifier   Notifier
	Bus        eventbus.Bus
	// Locker extends single-flight beyond this process. Nil means local only.
	Locker  Locker
	LockTTL time.Duration
	// ProviderTimeout bounds each provider fetch; 0 means no extra bound.
	ProviderTimeout time.Duration
	Log             logx.Logger
}

type Driver struct {
	rec      Reconciler
	notifier Notifier
	bus      eventbus.Bus
	locker   Locker
	lockTTL  time.Duration
	log      logx.Logger
	seen     *dedup.Set

	mu              sync.RWMutex
	providers       []provider.Provider
	providerTimeout time.Duration

	running atomic.Bool
	now     func() time.Time
}

func New(opts Options) *Driver {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Driver{
		rec:             opts.Reconciler,
		notifier:        opts.Notifier,
		bus:             opts.Bus,
		locker:          opts.Locker,
		lockTTL:         opts.LockTTL,
		log:             log.With(logx.String("comp", "cycle")),
		seen:            dedup.NewSet(),
		providers:       append([]provider.Provider(nil), opts.Providers...),
		providerTimeout: opts.ProviderTimeout,
		now:             time.Now,
	}
}

// SetProviders replaces the provider list for the next cycle. Order is the
// merge order.
func (d *Driver) SetProviders(ps []provider.Provider, timeout time.Duration) {
	d.mu.Lock()
	d.providers = append([]provider.Provider(nil), ps...)
	d.providerTimeout = timeout
	d.mu.Unlock()
}

// Providers returns the names of the providers the next cycle will poll.
func (d *Driver) Providers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.providers))
	for i, p := range d.providers {
		out[i] = p.Name()
	}
	return out
}

// Running reports whether a cycle is in flight in this process.
func (d *Driver) Running() bool { return d.running.Load() }

type fetchResult struct {
	name string
	p    provider.Provider
	recs []provider.Record
	err  error
	took time.Duration
}

// RunCycle executes one cycle. It returns ErrCycleInFlight without side
// effects if another cycle holds the guard, and a deal.ErrPersistenceFailure
// error if reconciliation failed, in which case nothing is notified.
// Provider and transport failures are reported in the summary only.
func (d *Driver) RunCycle(ctx context.Context) (deal.Summary, error) {
	if !d.running.CompareAndSwap(false, true) {
		d.publish(eventbus.CycleSkipped, nil)
		return deal.Summary{}, ErrCycleInFlight
	}
	defer d.running.Store(false)

	if d.locker != nil {
		release, err := d.locker.Acquire(ctx, d.lockTTL)
		if errors.Is(err, ErrLocked) {
			d.publish(eventbus.CycleSkipped, nil)
			return deal.Summary{}, ErrCycleInFlight
		}
		if err != nil {
			return deal.Summary{}, errors.Wrap(err, "acquire cycle lock")
		}
		defer release()
	}

	sum := deal.Summary{CycleID: uuid.NewString(), Started: d.now()}
	log := d.log.With(logx.String("cycle_id", sum.CycleID))
	d.seen.Reset()

	d.mu.RLock()
	providers := append([]provider.Provider(nil), d.providers...)
	timeout := d.providerTimeout
	d.mu.RUnlock()

	results := d.fetchAll(ctx, providers, timeout)
	snapshot, candidates := d.merge(log, results, &sum)

	tr, err := d.rec.Reconcile(ctx, snapshot)
	if err != nil {
		sum.ReconcileError = err.Error()
		sum.Duration = time.Since(sum.Started)
		log.Error("cycle aborted: reconcile failed", logx.Err(err))
		d.publish(eventbus.CycleFailed, sum)
		return sum, err
	}
	sum.Activated = len(tr.Activated)
	sum.Inserted = len(tr.Inserted)
	sum.Deactivated = len(tr.Deactivated)
	sum.Retained = tr.Retained

	selected := d.notifier.Select(candidates, tr)
	sum.Candidates = len(selected)
	rep := d.notifier.Notify(ctx, selected)
	sum.BatchesSent = rep.Sent
	sum.BatchesFail = rep.Failed
	sum.Oversize = rep.Dropped

	sum.Duration = time.Since(sum.Started)
	log.Info("cycle done",
		logx.Strs("providers_ok", sum.ProvidersOK),
		logx.Strs("providers_failed", sum.ProvidersFailed),
		logx.Int("fetched", sum.Fetched),
		logx.Int("malformed", sum.Malformed),
		logx.Int("duplicates", sum.Duplicates),
		logx.Int("snapshot", sum.Snapshot),
		logx.Int("new", sum.Activated),
		logx.Int("expired", sum.Deactivated),
		logx.Int("candidates", sum.Candidates),
		logx.Int("batches", sum.BatchesSent),
		logx.Duration("took", sum.Duration),
	)
	d.publish(eventbus.CycleCompleted, sum)
	return sum, nil
}

// fetchAll polls every provider concurrently. Each goroutine writes only its
// own slot, so no locking is needed until the join.
func (d *Driver) fetchAll(ctx context.Context, ps []provider.Provider, timeout time.Duration) []fetchResult {
	out := make([]fetchResult, len(ps))
	var wg sync.WaitGroup
	for i, p := range ps {
		wg.Add(1)
		go func(i int, p provider.Provider) {
			defer wg.Done()
			res := fetchResult{name: p.Name(), p: p}
			defer func() {
				if r := recover(); r != nil {
					res.err = errors.Newf("panic: %v", r)
				}
				out[i] = res
			}()

			fctx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			start := time.Now()
			res.recs, res.err = p.Fetch(fctx)
			res.took = time.Since(start)
		}(i, p)
	}
	wg.Wait()
	return out
}

// merge runs on the driver goroutine in provider order, so fingerprint
// observation order is deterministic. Every normalized offer joins the
// snapshot; only first-seen records become candidates.
func (d *Driver) merge(log logx.Logger, results []fetchResult, sum *deal.Summary) ([]deal.Offer, []deal.Offer) {
	var snapshot, candidates []deal.Offer
	for _, res := range results {
		plog := log.With(logx.String("provider", res.name))
		if res.err != nil {
			err := deal.ProviderUnavailable(res.name, res.err)
			sum.ProvidersFailed = append(sum.ProvidersFailed, res.name)
			plog.Warn("provider unavailable", logx.Err(err))
			continue
		}
		sum.ProvidersOK = append(sum.ProvidersOK, res.name)
		sum.Fetched += len(res.recs)

		malformed := 0
		for _, rec := range res.recs {
			offer, err := res.p.Normalize(rec)
			switch {
			case errors.Is(err, provider.ErrFiltered):
				sum.Filtered++
				continue
			case err != nil:
				malformed++
				plog.Debug("malformed record", logx.Err(err))
				continue
			}
			if offer.Provider == "" {
				offer.Provider = res.name
			}
			snapshot = append(snapshot, offer)
			if d.seen.Observe(rec) {
				candidates = append(candidates, offer)
			} else {
				sum.Duplicates++
			}
		}
		sum.Malformed += malformed
		if malformed > 0 {
			plog.Warn("malformed records dropped", logx.Int("count", malformed))
		}
		plog.Debug("provider fetched", logx.Int("records", len(res.recs)), logx.Duration("took", res.took))
	}
	sum.Snapshot = len(snapshot)
	return snapshot, deal.UniqueByKey(candidates)
}

func (d *Driver) publish(typ string, data any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Time: d.now(), Data: data})
}
