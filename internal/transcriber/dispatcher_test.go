package transcriber

import (
	"errors"
	"testing"
	"time"

	"github.com/foxseedlab/nlscribe/internal/protocol"
)

func TestDispatcher_DeliversInOrder(t *testing.T) {
	d := NewDispatcher()
	var got []protocol.EventKind
	if err := d.Register(ConsumerFunc(func(ev protocol.Event) { got = append(got, ev.Kind) })); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	d.Dispatch(protocol.Event{Kind: protocol.KindStarted})
	d.Dispatch(protocol.Event{Kind: protocol.KindPartialResult})
	d.Dispatch(protocol.Event{Kind: protocol.KindSentenceEnd})
	want := []protocol.EventKind{protocol.KindStarted, protocol.KindPartialResult, protocol.KindSentenceEnd}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestDispatcher_SingleConsumer(t *testing.T) {
	d := NewDispatcher()
	noop := ConsumerFunc(func(protocol.Event) {})
	if err := d.Register(noop); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := d.Register(noop); !errors.Is(err, ErrConsumerRegistered) {
		t.Fatalf("expected ErrConsumerRegistered, got %v", err)
	}
	d.Unregister()
	if err := d.Register(noop); err != nil {
		t.Fatalf("register after unregister failed: %v", err)
	}
}

func TestDispatcher_UnregisterDropsWithoutReplay(t *testing.T) {
	d := NewDispatcher()
	count := 0
	_ = d.Register(ConsumerFunc(func(protocol.Event) { count++ }))
	d.Dispatch(protocol.Event{Kind: protocol.KindStarted})
	d.Unregister()
	d.Dispatch(protocol.Event{Kind: protocol.KindSentenceEnd})
	_ = d.Register(ConsumerFunc(func(protocol.Event) { count += 10 }))
	if count != 1 {
		t.Fatalf("events dispatched with no consumer must be dropped, count=%d", count)
	}
}

func TestDispatcher_CloseClosesChannel(t *testing.T) {
	d := NewDispatcher()
	c := newChannelConsumer(4, nil)
	if err := d.Register(c); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	d.Dispatch(protocol.Event{Kind: protocol.KindStarted})
	d.Close()
	d.Dispatch(protocol.Event{Kind: protocol.KindSentenceEnd})

	ev, ok := <-c.ch
	if !ok || ev.Kind != protocol.KindStarted {
		t.Fatalf("expected buffered started event, got %+v ok=%v", ev, ok)
	}
	if _, ok := <-c.ch; ok {
		t.Fatal("channel should be closed after dispatcher close")
	}
	if err := d.Register(c); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed, got %v", err)
	}
}

func TestChannelConsumer_ClosesAfterTerminal(t *testing.T) {
	c := newChannelConsumer(4, nil)
	c.OnEvent(protocol.Event{Kind: protocol.KindSentenceEnd})
	c.OnEvent(protocol.Event{Kind: protocol.KindCompleted})
	c.OnEvent(protocol.Event{Kind: protocol.KindSentenceEnd})

	var kinds []protocol.EventKind
	for ev := range c.ch {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 2 || kinds[1] != protocol.KindCompleted {
		t.Fatalf("unexpected events: %v", kinds)
	}
	c.close()
}

func TestChannelConsumer_CloseUnblocksFullBuffer(t *testing.T) {
	c := newChannelConsumer(1, nil)
	c.OnEvent(protocol.Event{Kind: protocol.KindStarted})
	done := make(chan struct{})
	go func() {
		c.OnEvent(protocol.Event{Kind: protocol.KindSentenceEnd})
		close(done)
	}()
	c.close()
	<-done
}

func TestChannelConsumer_AbortDropsWhenFull(t *testing.T) {
	abort := make(chan struct{})
	c := newChannelConsumer(1, abort)
	c.OnEvent(protocol.Event{Kind: protocol.KindStarted})
	done := make(chan struct{})
	go func() {
		c.OnEvent(protocol.Event{Kind: protocol.KindSentenceEnd})
		close(done)
	}()
	close(abort)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("abort did not release the blocked sender")
	}

	ev := <-c.ch
	if ev.Kind != protocol.KindStarted {
		t.Fatalf("expected started, got %s", ev.Kind)
	}
	// With room in the buffer the final event still gets through.
	c.OnEvent(protocol.Event{Kind: protocol.KindFailed})
	ev, ok := <-c.ch
	if !ok || ev.Kind != protocol.KindFailed {
		t.Fatalf("expected failed event, got %v (ok=%v)", ev.Kind, ok)
	}
	if _, ok := <-c.ch; ok {
		t.Fatal("channel should be closed after the final event")
	}
}
