package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealwatch/internal/deal"
	"dealwatch/internal/storage"
	logx "dealwatch/pkg/logx"
)

type failingStore struct {
	storage.Store
	err error
}

func (f failingStore) Reconcile(context.Context, []deal.Offer, time.Time) (deal.Transition, error) {
	return deal.Transition{}, f.err
}

func offer(price int64, dest string) deal.Offer {
	return deal.Offer{Price: decimal.NewFromInt(price), Country: "PL", Destination: dest, Airport: "WAW", Brand: "B"}
}

func activeSet(t *testing.T, r *Reconciler) map[string]bool {
	t.Helper()
	recs, err := r.Offers(context.Background(), storage.Filter{ActiveOnly: true})
	require.NoError(t, err)
	out := map[string]bool{}
	for _, rec := range recs {
		out[rec.Destination] = true
	}
	return out
}

func TestReconcileIsIdempotent(t *testing.T) {
	r := New(storage.NewMemory(), logx.Nop())
	snap := []deal.Offer{offer(1, "A"), offer(2, "B")}

	_, err := r.Reconcile(context.Background(), snap)
	require.NoError(t, err)
	once := activeSet(t, r)

	tr, err := r.Reconcile(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, tr.Activated)
	assert.Equal(t, once, activeSet(t, r))
}

func TestReconcileSetDifference(t *testing.T) {
	r := New(storage.NewMemory(), logx.Nop())
	ctx := context.Background()
	_, err := r.Reconcile(ctx, []deal.Offer{offer(1, "X"), offer(2, "Y")})
	require.NoError(t, err)

	// Duplicates in the snapshot count once.
	tr, err := r.Reconcile(ctx, []deal.Offer{offer(2, "Y"), offer(3, "Z"), offer(3, "Z")})
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{"Y": true, "Z": true}, activeSet(t, r))
	assert.Equal(t, []deal.IdentityKey{offer(3, "Z").Key()}, tr.Activated)
	assert.Equal(t, []deal.IdentityKey{offer(3, "Z").Key()}, tr.Inserted)
	assert.Equal(t, []deal.IdentityKey{offer(1, "X").Key()}, tr.Deactivated)
}

func TestReconcileClassifiesFailure(t *testing.T) {
	r := New(failingStore{Store: storage.NewMemory(), err: errors.New("disk full")}, logx.Nop())
	_, err := r.Reconcile(context.Background(), []deal.Offer{offer(1, "A")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, deal.ErrPersistenceFailure))
	assert.Contains(t, err.Error(), "disk full")
}
