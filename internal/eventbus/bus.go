// Package eventbus is an in-process fanout for lifecycle signals such as
// finished cycles and config reloads.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the pipeline.
const (
	CycleCompleted = "cycle.completed"
	CycleFailed    = "cycle.failed"
	CycleSkipped   = "cycle.skipped"
	ConfigReloaded = "config.reloaded"
)

// Event is a small, in-memory signal. Data should be JSON-serializable.
//
// Publish never blocks: subscribers get buffered channels and a slow
// subscriber misses events instead of stalling the publisher.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			// Holding the write lock excludes in-flight Publish calls, so
			// closing cannot race a send.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

// Recorder keeps the most recent events of the given types.
type Recorder struct {
	mu    sync.RWMutex
	max   int
	types map[string]bool
	buf   []Event
}

// NewRecorder keeps up to max events; no types means every type.
func NewRecorder(max int, types ...string) *Recorder {
	if max <= 0 {
		max = 20
	}
	r := &Recorder{max: max}
	if len(types) > 0 {
		r.types = map[string]bool{}
		for _, t := range types {
			r.types[t] = true
		}
	}
	return r
}

// Record stores e if its type is tracked.
func (r *Recorder) Record(e Event) {
	if r.types != nil && !r.types[e.Type] {
		return
	}
	r.mu.Lock()
	r.buf = append(r.buf, e)
	if over := len(r.buf) - r.max; over > 0 {
		r.buf = append(r.buf[:0:0], r.buf[over:]...)
	}
	r.mu.Unlock()
}

// Recent returns stored events, newest first.
func (r *Recorder) Recent() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, len(r.buf))
	for i, e := range r.buf {
		out[len(r.buf)-1-i] = e
	}
	return out
}

// Last returns the newest stored event.
func (r *Recorder) Last() (Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.buf) == 0 {
		return Event{}, false
	}
	return r.buf[len(r.buf)-1], true
}

// Follow records events from ch until it is closed.
func (r *Recorder) Follow(ch <-chan Event) {
	for e := range ch {
		r.Record(e)
	}
}
