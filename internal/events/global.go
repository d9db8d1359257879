package events

import (
	"sync"

	"loom/internal/worker"
)

// The process-wide bus. Explicit init/teardown rather than ambient creation
// so its lifecycle is visible to callers and tests.
var (
	defaultMu  sync.Mutex
	defaultBus *Bus
)

// Initialize creates the process-wide bus if it does not exist yet and
// returns it. Calling it again while the bus is active is a no-op that
// returns the same bus; after Shutdown it builds a fresh one.
func Initialize(opts ...Option) *Bus {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultBus == nil {
		defaultBus = NewBus(opts...)
	}
	return defaultBus
}

// Default returns the process-wide bus, or nil when none is active.
func Default() *Bus {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultBus
}

// Subscribe registers a listener on the process-wide bus, initializing it
// on first use.
func Subscribe(handler Handler) *Subscription {
	return Initialize().Subscribe(handler)
}

// Unsubscribe removes a listener from the process-wide bus.
func Unsubscribe(sub *Subscription) bool {
	defaultMu.Lock()
	bus := defaultBus
	defaultMu.Unlock()
	if bus == nil {
		return false
	}
	return bus.Unsubscribe(sub)
}

// Publish forwards an event to the process-wide bus. It is a safe no-op
// when the bus was never initialized or has been shut down.
func Publish(evt worker.Event) {
	defaultMu.Lock()
	bus := defaultBus
	defaultMu.Unlock()
	if bus != nil {
		bus.Publish(evt)
	}
}

// Shutdown tears down the process-wide bus, draining queued deliveries.
func Shutdown() {
	defaultMu.Lock()
	bus := defaultBus
	defaultBus = nil
	defaultMu.Unlock()
	if bus != nil {
		bus.Shutdown()
	}
}

type defaultPublisher struct{}

func (defaultPublisher) Publish(evt worker.Event) { Publish(evt) }

// DefaultPublisher returns a publisher bound to the process-wide bus at
// publish time, so workers built before Initialize still publish once the
// bus exists.
func DefaultPublisher() worker.EventPublisher {
	return defaultPublisher{}
}
