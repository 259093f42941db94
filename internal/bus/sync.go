package bus

// SyncBus delivers each event to its subscribers on the publisher's
// goroutine, in subscription order, before Publish returns.
type SyncBus struct {
	*dispatcher
}

// NewSyncBus creates a synchronous bus.
func NewSyncBus(opts ...Option) *SyncBus {
	return &SyncBus{dispatcher: newDispatcher(opts)}
}

// Publish delivers e. Subscriber failures are logged, never returned.
func (b *SyncBus) Publish(e Event) error {
	b.metrics.published(e.Name)
	if b.forward(e) {
		return nil
	}
	b.deliver(e)
	return nil
}

// Start is a no-op; a SyncBus is always running.
func (b *SyncBus) Start() {}

// Stop closes the transport, if any.
func (b *SyncBus) Stop() {
	if b.transport != nil {
		_ = b.transport.Close()
	}
}
