package eventbus

import (
	"sync"
	"time"
)

// Bus is a thread-safe FIFO queue of Events for a single turn. One worker
// goroutine produces; one consumer goroutine (the runner's driver) drains
// via Live. Enqueue is serialized by mu so seq order, assigned by the
// Factory just before Emit, is preserved exactly as observed by the
// consumer (§4.8, §5).
type Bus struct {
	mu     sync.Mutex
	queue  []Event
	closed bool
	wake   chan struct{}
}

// NewBus creates an empty, open Bus.
func NewBus() *Bus {
	return &Bus{wake: make(chan struct{}, 1)}
}

func (b *Bus) notify() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Emit enqueues an event and wakes any blocked consumer.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, e)
	b.mu.Unlock()
	b.notify()
}

// Close signals that no more events will be produced. Events already queued
// remain drainable via Events/Live.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.notify()
}

// pollInterval bounds how long Live can wait before re-checking isDone; the
// worker is the only other writer and always calls notify on Emit/Close, so
// this is a safety net, not the primary wakeup path.
const pollInterval = 20 * time.Millisecond

// Live yields events as they arrive until the queue is drained and isDone
// returns true. isDone is consulted only once the queue is empty, so a
// producer racing to append one more event before finishing is never
// dropped.
func (b *Bus) Live(isDone func() bool) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			b.mu.Lock()
			if len(b.queue) > 0 {
				e := b.queue[0]
				b.queue = b.queue[1:]
				b.mu.Unlock()
				out <- e
				continue
			}
			closed := b.closed
			b.mu.Unlock()

			if closed || isDone() {
				return
			}

			select {
			case <-b.wake:
			case <-time.After(pollInterval):
			}
		}
	}()
	return out
}

// Events drains whatever remains in the queue after Close, without waiting
// for new arrivals.
func (b *Bus) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.queue
	b.queue = nil
	return remaining
}
