package transcriber

import (
	"errors"
	"sync"

	"github.com/foxseedlab/nlscribe/internal/protocol"
)

var (
	ErrConsumerRegistered = errors.New("a consumer is already registered")
	ErrDispatcherClosed   = errors.New("dispatcher is closed")
)

type Consumer interface {
	OnEvent(ev protocol.Event)
}

type ConsumerFunc func(ev protocol.Event)

func (f ConsumerFunc) OnEvent(ev protocol.Event) { f(ev) }

type closableConsumer interface {
	Consumer
	close()
}

// Dispatcher hands events to at most one consumer in arrival order. Events
// dispatched with no consumer registered are dropped, never replayed.
type Dispatcher struct {
	mu       sync.Mutex
	consumer Consumer
	closed   bool
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) Register(c Consumer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if d.consumer != nil {
		return ErrConsumerRegistered
	}
	d.consumer = c
	return nil
}

func (d *Dispatcher) Unregister() {
	d.mu.Lock()
	c := d.consumer
	d.consumer = nil
	d.mu.Unlock()
	if cc, ok := c.(closableConsumer); ok {
		cc.close()
	}
}

// Dispatch calls the consumer outside the lock so it may Unregister or close
// the session from inside OnEvent.
func (d *Dispatcher) Dispatch(ev protocol.Event) {
	d.mu.Lock()
	c := d.consumer
	closed := d.closed
	d.mu.Unlock()
	if c == nil || closed {
		return
	}
	c.OnEvent(ev)
}

func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	c := d.consumer
	d.consumer = nil
	d.mu.Unlock()
	if cc, ok := c.(closableConsumer); ok {
		cc.close()
	}
}

// channelConsumer buffers events for a reader. A full buffer blocks the
// sender until the reader catches up, the consumer is closed or abort fires.
// After abort only events that fit in the buffer are delivered. The channel
// is closed after the terminal event.
type channelConsumer struct {
	ch    chan protocol.Event
	abort <-chan struct{}

	mu       sync.Mutex
	closed   bool
	done     chan struct{}
	doneOnce sync.Once
}

func newChannelConsumer(size int, abort <-chan struct{}) *channelConsumer {
	return &channelConsumer{
		ch:    make(chan protocol.Event, size),
		abort: abort,
		done:  make(chan struct{}),
	}
}

func (c *channelConsumer) OnEvent(ev protocol.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if !c.deliver(ev) {
		return
	}
	if ev.IsTerminal() {
		c.closeLocked()
	}
}

func (c *channelConsumer) deliver(ev protocol.Event) bool {
	select {
	case c.ch <- ev:
		return true
	default:
	}
	select {
	case c.ch <- ev:
		return true
	case <-c.done:
	case <-c.abort:
	}
	return false
}

func (c *channelConsumer) close() {
	c.doneOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *channelConsumer) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
