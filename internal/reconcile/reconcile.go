// Package reconcile turns a cycle snapshot into persisted active/inactive
// transitions.
package reconcile

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"dealwatch/internal/deal"
	"dealwatch/internal/storage"
	logx "dealwatch/pkg/logx"
)

// Reconciler is the only writer of the active flag.
type Reconciler struct {
	store storage.Store
	log   logx.Logger
	now   func() time.Time
}

func New(store storage.Store, log logx.Logger) *Reconciler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reconciler{store: store, log: log.With(logx.String("comp", "reconcile")), now: time.Now}
}

// Reconcile persists snapshot and returns the resulting transition. Offers
// sharing an identity key collapse to the first occurrence. Any error is
// classified as deal.ErrPersistenceFailure and leaves the stored state as it
// was before the call.
func (r *Reconciler) Reconcile(ctx context.Context, snapshot []deal.Offer) (deal.Transition, error) {
	if r == nil || r.store == nil {
		return deal.Transition{}, deal.PersistenceFailure(storage.ErrClosed, "reconcile")
	}
	unique := deal.UniqueByKey(snapshot)
	start := r.now()

	tr, err := r.store.Reconcile(ctx, unique, start)
	if err != nil {
		if !errors.Is(err, deal.ErrPersistenceFailure) {
			err = deal.PersistenceFailure(err, "reconcile")
		}
		r.log.Error("reconcile failed", logx.Int("snapshot", len(unique)), logx.Err(err))
		return deal.Transition{}, err
	}

	r.log.Info("reconciled",
		logx.Int("snapshot", len(snapshot)),
		logx.Int("unique", len(unique)),
		logx.Int("activated", len(tr.Activated)),
		logx.Int("inserted", len(tr.Inserted)),
		logx.Int("deactivated", len(tr.Deactivated)),
		logx.Int("retained", tr.Retained),
		logx.Duration("took", time.Since(start)),
	)
	return tr, nil
}

// Offers exposes the persisted records for read-only views.
func (r *Reconciler) Offers(ctx context.Context, f storage.Filter) ([]deal.Record, error) {
	return r.store.Offers(ctx, f)
}
