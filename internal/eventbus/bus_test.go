package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	b := New()
	ch1, unsub1 := b.Subscribe(1)
	ch2, unsub2 := b.Subscribe(1)
	defer unsub2()

	b.Publish(Event{Type: CycleCompleted})
	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != CycleCompleted || e.Time.IsZero() {
				t.Fatalf("subscriber %d got %+v", i, e)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d got nothing", i)
		}
	}

	unsub1()
	unsub1()
	if _, ok := <-ch1; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: CycleFailed})
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: CycleCompleted})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
}

func TestRecorderKeepsNewest(t *testing.T) {
	r := NewRecorder(2, CycleCompleted, CycleFailed)
	r.Record(Event{Type: CycleCompleted, Data: 1})
	r.Record(Event{Type: ConfigReloaded, Data: 99})
	r.Record(Event{Type: CycleFailed, Data: 2})
	r.Record(Event{Type: CycleCompleted, Data: 3})

	got := r.Recent()
	if len(got) != 2 || got[0].Data != 3 || got[1].Data != 2 {
		t.Fatalf("unexpected recent events %+v", got)
	}
	if last, ok := r.Last(); !ok || last.Data != 3 {
		t.Fatalf("unexpected last %+v", last)
	}
}
