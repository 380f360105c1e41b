package eventbus

import (
	"testing"
	"time"
)

func TestPublishFiltersByPrefix(t *testing.T) {
	t.Parallel()

	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	cfg, unsubCfg := b.Subscribe(4, "config.")
	defer unsubCfg()

	b.Publish(Event{Type: TypeDispatchStarted, DispatchID: "d1"})
	b.Publish(Event{Type: TypeConfigReloaded})

	if got := len(all); got != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", got)
	}
	if got := len(cfg); got != 1 {
		t.Fatalf("config subscriber got %d events, want 1", got)
	}
	e := <-cfg
	if e.Type != TypeConfigReloaded || e.Time.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: TypeDispatchCall})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if len(ch) != 1 {
		t.Fatalf("buffered = %d, want 1", len(ch))
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	b.Publish(Event{Type: TypeDispatchCall})
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	Discard.Publish(Event{Type: TypeDispatchCall})
	ch, unsub := Discard.Subscribe(1)
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("discard channel not closed")
	}
}
