package events

import (
	"sync"
	"sync/atomic"

	"github.com/kcaldas/storysprout/pkg/logging"
)

const defaultTopicBuffer = 64

// EventHandler is a function that handles an event
type EventHandler func(event interface{})

// Publisher allows publishing events
type Publisher interface {
	Publish(eventType string, event interface{})
}

// Subscriber allows subscribing to events
type Subscriber interface {
	Subscribe(eventType string, handler EventHandler)
}

// EventBus provides both publishing and subscribing
type EventBus interface {
	Publisher
	Subscriber
}

// InMemoryBus delivers events in order per topic on one worker goroutine per topic.
type InMemoryBus struct {
	mu          sync.RWMutex
	subscribers map[string][]EventHandler
	workers     map[string]*topicWorker
	bufferSize  int
	closed      bool
	dropped     atomic.Int64
	logger      logging.Logger
}

// NewEventBus creates a new event bus with the default buffer size.
func NewEventBus() *InMemoryBus {
	return NewEventBusWithBuffer(defaultTopicBuffer)
}

// NewEventBusWithBuffer allows configuring the per-topic worker queue size.
// A buffer of at least 1 is enforced.
func NewEventBusWithBuffer(buffer int) *InMemoryBus {
	if buffer < 1 {
		buffer = 1
	}
	return &InMemoryBus{
		subscribers: make(map[string][]EventHandler),
		workers:     make(map[string]*topicWorker),
		bufferSize:  buffer,
		logger:      logging.NewComponentLogger("events"),
	}
}

// SetLogger replaces the logger used for dropped events and handler panics.
func (b *InMemoryBus) SetLogger(logger logging.Logger) {
	if logger == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
}

func (b *InMemoryBus) currentLogger() logging.Logger {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.logger
}

// Subscribe adds a handler for a specific event type.
func (b *InMemoryBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish never blocks: when the topic queue is full, or the bus has been shut
// down, the event is dropped and counted.
func (b *InMemoryBus) Publish(eventType string, event interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.subscribers[eventType]
	if len(handlers) == 0 {
		return
	}
	if b.closed {
		b.dropped.Add(1)
		return
	}

	worker, ok := b.workers[eventType]
	if !ok {
		worker = newTopicWorker(b.bufferSize, b.currentLogger)
		b.workers[eventType] = worker
	}

	env := eventEnvelope{
		event:    event,
		handlers: append([]EventHandler(nil), handlers...),
	}
	select {
	case worker.ch <- env:
	default:
		b.dropped.Add(1)
		b.logger.Warn("event queue full, dropping event", "topic", eventType)
	}
}

// DroppedCount returns the number of events dropped due to full queues.
func (b *InMemoryBus) DroppedCount() int64 {
	return b.dropped.Load()
}

// Shutdown drains every queued event and stops the topic workers.
func (b *InMemoryBus) Shutdown() {
	b.mu.Lock()
	b.closed = true
	workers := make([]*topicWorker, 0, len(b.workers))
	for _, w := range b.workers {
		workers = append(workers, w)
	}
	b.mu.Unlock()

	for _, w := range workers {
		w.stop()
	}
}

type eventEnvelope struct {
	event    interface{}
	handlers []EventHandler
}

type topicWorker struct {
	ch       chan eventEnvelope
	wg       sync.WaitGroup
	stopOnce sync.Once
	logger   func() logging.Logger
}

func newTopicWorker(buffer int, logger func() logging.Logger) *topicWorker {
	w := &topicWorker{
		ch:     make(chan eventEnvelope, buffer),
		logger: logger,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *topicWorker) run() {
	defer w.wg.Done()
	for env := range w.ch {
		for _, handler := range env.handlers {
			w.deliver(handler, env.event)
		}
	}
}

func (w *topicWorker) deliver(handler EventHandler, event interface{}) {
	defer func() {
		if r := recover(); r != nil {
			w.logger().Error("event handler panicked", "panic", r)
		}
	}()
	handler(event)
}

func (w *topicWorker) stop() {
	w.stopOnce.Do(func() {
		close(w.ch)
		w.wg.Wait()
	})
}

// NoOpEventBus discards everything. Used where no one listens.
type NoOpEventBus struct{}

func (n *NoOpEventBus) Publish(topic string, event interface{}) {}

func (n *NoOpEventBus) Subscribe(topic string, handler EventHandler) {}
