package trace

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/suderio/baator/internal/bus"
)

// DefaultEvents are the diagnostic events a Recorder keeps.
var DefaultEvents = []string{
	"rules.trace",
	"sim.turn",
	"sim.trace.begin",
	"sim.trace.end",
	"sim.downed",
	"sim.scene_end",
	"rng.requested",
	"rng.fulfilled",
	"rng.failed",
}

// Recorder keeps raw diagnostic events in arrival order and optionally
// mirrors them to a Store.
type Recorder struct {
	mu     sync.Mutex
	events []bus.Event
	store  *Store
	log    logrus.FieldLogger
	unsubs []func()
}

// NewRecorder creates a recorder. store and log may be nil.
func NewRecorder(store *Store, log logrus.FieldLogger) *Recorder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Recorder{store: store, log: log}
}

// Attach subscribes to names on b, or to DefaultEvents when names is empty.
func (r *Recorder) Attach(b bus.Bus, names ...string) {
	if len(names) == 0 {
		names = DefaultEvents
	}
	for _, name := range names {
		r.unsubs = append(r.unsubs, b.Subscribe(name, r.record))
	}
}

// Detach drops every subscription made by Attach.
func (r *Recorder) Detach() {
	for _, u := range r.unsubs {
		u()
	}
	r.unsubs = nil
}

func (r *Recorder) record(e bus.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Append(e); err != nil {
			r.log.WithField("event", e.Name).WithError(err).Warn("trace append failed")
			return err
		}
	}
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bus.Event(nil), r.events...)
}

// AsLog flattens each event into its payload plus a "name" key.
func (r *Recorder) AsLog() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]map[string]any, len(r.events))
	for i, e := range r.events {
		line := make(map[string]any, len(e.Payload)+1)
		for k, v := range e.Payload {
			line[k] = v
		}
		line["name"] = e.Name
		out[i] = line
	}
	return out
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
