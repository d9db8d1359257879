package events

import (
	"log/slog"
	"sync"

	"loom/internal/logging"
	"loom/internal/worker"
)

// DefaultBufferSize is the per-subscriber delivery queue depth.
const DefaultBufferSize = 64

// Handler receives published events on the subscriber's dispatch goroutine.
type Handler func(worker.Event)

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer overrides the per-subscriber queue depth.
func WithBuffer(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.buffer = size
		}
	}
}

// WithLogger attaches a logger for drop and panic diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logging.NewComponentLogger(logger, "events")
		}
	}
}

// Bus delivers worker events to any number of subscribers.
type Bus struct {
	buffer int
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewBus constructs an active bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		buffer: DefaultBufferSize,
		logger: logging.NewNop(),
		subs:   make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription identifies one registered listener.
type Subscription struct {
	handler Handler
	logger  *slog.Logger

	mu     sync.Mutex
	ch     chan worker.Event
	closed bool
}

// Subscribe registers a handler. Events published from now on are delivered
// to it in publication order. Returns nil when the bus has been shut down.
func (b *Bus) Subscribe(handler Handler) *Subscription {
	if handler == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	sub := &Subscription{
		handler: handler,
		logger:  b.logger,
		ch:      make(chan worker.Event, b.buffer),
	}
	b.subs[sub] = struct{}{}
	b.wg.Add(1)
	go sub.run(&b.wg)
	return sub
}

// Unsubscribe removes a listener. Events already queued for it are still
// delivered; nothing published afterwards reaches it. Reports whether the
// subscription was registered.
func (b *Bus) Unsubscribe(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	b.mu.Lock()
	_, ok := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()
	if ok {
		sub.close()
	}
	return ok
}

// Publish enqueues the event for every current subscriber and returns
// without waiting for delivery. After Shutdown it is a safe no-op.
func (b *Bus) Publish(evt worker.Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		if !sub.send(evt) {
			b.logger.Warn("dropping event for slow subscriber",
				logging.String(logging.FieldWorkerID, evt.WorkerID),
				logging.String("status", string(evt.Status)))
		}
	}
}

// Shutdown tears the bus down: no further publications are accepted, queued
// events are drained to their subscribers, and all dispatch goroutines exit
// before Shutdown returns.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.wg.Wait()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	b.wg.Wait()
}

var _ worker.EventPublisher = (*Bus)(nil)

func (s *Subscription) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for evt := range s.ch {
		s.deliver(evt)
	}
}

func (s *Subscription) deliver(evt worker.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event subscriber panicked", logging.Any("panic", r))
		}
	}()
	s.handler(evt)
}

// send enqueues without blocking; it reports false when the subscriber's
// queue is full and the event was dropped.
func (s *Subscription) send(evt worker.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
}
