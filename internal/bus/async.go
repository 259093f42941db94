package bus

import "sync"

// AsyncBus queues events for a single background worker. Publish never
// blocks on subscriber work. Each subscriber sees events in publish order.
type AsyncBus struct {
	*dispatcher

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Event
	running  bool
	stopping bool
	stopped  bool
	done     chan struct{}
}

// NewAsyncBus creates an asynchronous bus. Events published before Start are
// held until the worker runs.
func NewAsyncBus(opts ...Option) *AsyncBus {
	b := &AsyncBus{dispatcher: newDispatcher(opts), done: make(chan struct{})}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Publish enqueues e, or hands it to the transport.
func (b *AsyncBus) Publish(e Event) error {
	b.mu.Lock()
	closed := b.stopping || b.stopped
	b.mu.Unlock()
	if closed {
		return ErrBusStopped
	}

	b.metrics.published(e.Name)
	if b.forward(e) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopping || b.stopped {
		return ErrBusStopped
	}
	b.queue = append(b.queue, e)
	b.metrics.queued(len(b.queue))
	b.cond.Signal()
	return nil
}

// Start launches the worker. Calling it again, or after Stop, does nothing.
func (b *AsyncBus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running || b.stopped {
		return
	}
	b.running = true
	go b.work()
}

// Stop refuses further events, waits for the queue to drain and joins the
// worker. A bus that was never started drains on the caller's goroutine.
func (b *AsyncBus) Stop() {
	b.mu.Lock()
	if b.stopping || b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopping = true
	running := b.running
	b.cond.Broadcast()
	b.mu.Unlock()

	if running {
		<-b.done
	} else {
		for {
			e, ok := b.next(false)
			if !ok {
				break
			}
			b.deliver(e)
		}
	}

	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	if b.transport != nil {
		_ = b.transport.Close()
	}
}

// Pending reports how many events wait in the queue.
func (b *AsyncBus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *AsyncBus) work() {
	defer close(b.done)
	for {
		e, ok := b.next(true)
		if !ok {
			return
		}
		b.deliver(e)
	}
}

// next pops the head of the queue. With wait set it blocks until an event
// arrives or Stop is called; it reports false once the queue is empty and
// the bus is stopping.
func (b *AsyncBus) next(wait bool) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for wait && len(b.queue) == 0 && !b.stopping {
		b.cond.Wait()
	}
	if len(b.queue) == 0 {
		return Event{}, false
	}
	e := b.queue[0]
	b.queue[0] = Event{}
	b.queue = b.queue[1:]
	b.metrics.queued(len(b.queue))
	return e, true
}
