// Package proc is the convenience façade over workers, queues, and the
// process-wide event bus. It covers the common wiring so callers do not
// assemble the pieces by hand; anything needing finer control uses the
// underlying packages directly.
package proc

import (
	"loom/internal/events"
	"loom/internal/runqueue"
	"loom/internal/worker"
)

// NewWorker builds a pending worker for a registered task. Workers built
// here publish lifecycle events through the process-wide bus whenever
// publishEvents is set, even if the bus is initialized later.
func NewWorker(task string, args []any, kwargs map[string]any, callback worker.Callback, publishEvents bool) (*worker.Worker, error) {
	return worker.New(worker.Options{
		Task:          task,
		Args:          args,
		Kwargs:        kwargs,
		Callback:      callback,
		PublishEvents: publishEvents,
		Publisher:     events.DefaultPublisher(),
	})
}

// NewQueue builds an execution queue running at most maxWorkers workers
// concurrently.
func NewQueue(maxWorkers int, opts ...runqueue.Option) (*runqueue.Queue, error) {
	return runqueue.New(maxWorkers, opts...)
}

// InitializeEvents sets up the process-wide event bus. Safe to call more
// than once; subsequent calls return the already-active bus.
func InitializeEvents(opts ...events.Option) *events.Bus {
	return events.Initialize(opts...)
}

// SubscribeEvents registers a listener on the process-wide bus, initializing
// it on first use.
func SubscribeEvents(handler events.Handler) *events.Subscription {
	return events.Subscribe(handler)
}

// UnsubscribeEvents removes a listener from the process-wide bus.
func UnsubscribeEvents(sub *events.Subscription) bool {
	return events.Unsubscribe(sub)
}

// ShutdownEvents tears down the process-wide bus, draining queued
// deliveries first.
func ShutdownEvents() {
	events.Shutdown()
}
