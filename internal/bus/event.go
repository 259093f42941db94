// Package bus decouples rule outcomes from the code reacting to them.
//
// Events are broadcast to every subscriber of a name; commands go to exactly
// one handler. Two event delivery strategies share one interface: SyncBus
// delivers inline before Publish returns, AsyncBus queues for a single
// background worker.
package bus

import (
	"errors"
	"time"
)

var (
	// ErrNoHandler is returned when dispatching a command nobody handles.
	ErrNoHandler = errors.New("no handler registered")
	// ErrHandlerExists is returned when a command name is registered twice.
	ErrHandlerExists = errors.New("handler already registered")
	// ErrBusStopped is returned when publishing to a stopped bus.
	ErrBusStopped = errors.New("bus stopped")
)

// Wildcard subscribes to every event name.
const Wildcard = "*"

// Event is an immutable notification.
type Event struct {
	Name      string         `json:"name"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent stamps an event with the current time. The payload map is copied
// so later changes by the caller are not observed by subscribers.
func NewEvent(name string, payload map[string]any) Event {
	p := make(map[string]any, len(payload))
	for k, v := range payload {
		p[k] = v
	}
	return Event{Name: name, Payload: p, Timestamp: time.Now().UTC()}
}

// Handler reacts to an event. Returned errors are logged and counted; they
// never reach the publisher.
type Handler func(Event) error

// Bus is the event delivery strategy chosen at construction.
type Bus interface {
	// Subscribe registers h for name (or Wildcard) and returns a func that
	// removes it again.
	Subscribe(name string, h Handler) (unsubscribe func())
	Publish(e Event) error
	Start()
	Stop()
}

// New builds the bus for mode "sync" or "async".
func New(mode string, opts ...Option) (Bus, error) {
	switch mode {
	case "", "sync":
		return NewSyncBus(opts...), nil
	case "async":
		return NewAsyncBus(opts...), nil
	}
	return nil, errors.New("unknown bus mode " + mode)
}
