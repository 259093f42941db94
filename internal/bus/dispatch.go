package bus

import (
	"fmt"
	"sort"
	"sync"
)

type subscription struct {
	id      int
	handler Handler
}

// dispatcher holds subscriptions and delivers to them with per-subscriber
// failure isolation. Both bus strategies embed it.
type dispatcher struct {
	options

	mu     sync.RWMutex
	nextID int
	subs   map[string][]subscription
}

func newDispatcher(opts []Option) *dispatcher {
	return &dispatcher{options: buildOptions(opts), subs: map[string][]subscription{}}
}

func (d *dispatcher) Subscribe(name string, h Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.subs[name] = append(d.subs[name], subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			list := d.subs[name]
			for i, s := range list {
				if s.id == id {
					d.subs[name] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// targets returns the subscribers of name plus wildcard subscribers, in
// subscription order.
func (d *dispatcher) targets(name string) []subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := append([]subscription(nil), d.subs[name]...)
	if name != Wildcard {
		out = append(out, d.subs[Wildcard]...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (d *dispatcher) deliver(e Event) {
	for _, s := range d.targets(e.Name) {
		if err := d.call(s, e); err != nil {
			d.metrics.failed(e.Name)
			d.log.WithField("event", e.Name).WithField("subscriber", s.id).WithError(err).Error("subscriber failed")
			continue
		}
		d.metrics.delivered(e.Name)
	}
}

func (d *dispatcher) call(s subscription, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.handler(e)
}

// forward tries the external transport. It reports whether the event was
// taken by it.
func (d *dispatcher) forward(e Event) bool {
	if d.transport == nil {
		return false
	}
	if err := d.transport.Send(e); err != nil {
		d.metrics.fallback()
		d.log.WithField("event", e.Name).WithError(err).Warn("transport failed, delivering locally")
		return false
	}
	return true
}
