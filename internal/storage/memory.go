package storage

import (
	"context"
	"sync"
	"time"

	"dealwatch/internal/deal"
)

// Memory is a process-local Store.
type Memory struct {
	mu     sync.Mutex
	st     state
	closed bool
}

func NewMemory() *Memory { return &Memory{st: state{}} }

func (m *Memory) Reconcile(ctx context.Context, snapshot []deal.Offer, at time.Time) (deal.Transition, error) {
	if err := ctx.Err(); err != nil {
		return deal.Transition{}, deal.PersistenceFailure(err, "reconcile")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return deal.Transition{}, deal.PersistenceFailure(ErrClosed, "reconcile")
	}
	next, tr := m.st.apply(snapshot, at)
	m.st = next
	return tr, nil
}

func (m *Memory) Offers(ctx context.Context, f Filter) ([]deal.Record, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.st.list(f), nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
