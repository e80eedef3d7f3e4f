package storage

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"dealwatch/internal/deal"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values: "memory" (default), "file", "sqlite", "postgres".
type Config struct {
	Driver      string
	Path        string        // file and sqlite
	DSN         string        // postgres
	BusyTimeout time.Duration // sqlite only; 0 means default
	MaxConns    int32         // postgres pool size; 0 means pgx default
}

// Filter narrows Offers results. The zero value lists everything.
type Filter struct {
	ActiveOnly bool
	Provider   string
	Limit      int
}

// Store is the persistence contract the reconciler depends on.
type Store interface {
	// Reconcile applies one complete snapshot: keys in it become (or stay)
	// active with LastSeen=at, active keys missing from it become inactive.
	// It is all-or-nothing; on error the persisted state is unchanged.
	Reconcile(ctx context.Context, snapshot []deal.Offer, at time.Time) (deal.Transition, error)
	// Offers lists persisted records ordered by price.
	Offers(ctx context.Context, f Filter) ([]deal.Record, error)
	Close() error
}
