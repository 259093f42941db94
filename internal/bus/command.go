package bus

import (
	"fmt"
	"sync"
)

// Command is an imperative request with exactly one owner.
type Command struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

// CommandHandler performs a command. Its error is returned to the dispatcher.
type CommandHandler func(Command) error

// CommandBus routes each command name to its single handler.
type CommandBus struct {
	options

	mu       sync.RWMutex
	handlers map[string]CommandHandler
}

// NewCommandBus creates an empty command bus. WithTransport is ignored.
func NewCommandBus(opts ...Option) *CommandBus {
	return &CommandBus{options: buildOptions(opts), handlers: map[string]CommandHandler{}}
}

// Register binds h to name. A name can only have one handler.
func (b *CommandBus) Register(name string, h CommandHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handlers[name]; ok {
		return fmt.Errorf("%w: %s", ErrHandlerExists, name)
	}
	b.handlers[name] = h
	return nil
}

// Unregister removes the handler for name, if any.
func (b *CommandBus) Unregister(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, name)
}

// Handles reports whether name has a handler.
func (b *CommandBus) Handles(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.handlers[name]
	return ok
}

// Dispatch runs the handler for cmd on the caller's goroutine and returns
// its error unchanged.
func (b *CommandBus) Dispatch(cmd Command) error {
	b.mu.RLock()
	h, ok := b.handlers[cmd.Name]
	b.mu.RUnlock()
	if !ok {
		b.metrics.command(cmd.Name, "no_handler")
		return fmt.Errorf("%w: %s", ErrNoHandler, cmd.Name)
	}
	if err := h(cmd); err != nil {
		b.metrics.command(cmd.Name, "error")
		b.log.WithField("command", cmd.Name).WithError(err).Debug("command failed")
		return err
	}
	b.metrics.command(cmd.Name, "ok")
	return nil
}
