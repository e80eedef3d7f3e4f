package cycle

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrCycleInFlight is returned when another cycle holds the single-flight
// guard, in this process or, with a shared Locker, in another one.
var ErrCycleInFlight = errors.New("cycle already in flight")

// ErrLocked is returned by a Locker whose lock is held elsewhere.
var ErrLocked = errors.New("lock held")

// Locker serializes cycles. Acquire either returns a release func or
// ErrLocked without waiting. ttl bounds how long a crashed holder can block
// others; lockers that cannot expire ignore it.
type Locker interface {
	Acquire(ctx context.Context, ttl time.Duration) (release func(), err error)
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu sync.Mutex
}

func (l *MemoryLocker) Acquire(ctx context.Context, _ time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.mu.TryLock() {
		return nil, ErrLocked
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, nil
}
