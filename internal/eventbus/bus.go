package eventbus

import (
	"sync"
	"time"

	"flowdesk/internal/log"
)

// Bus is a simple in-process pub/sub event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic][]Handler
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[Topic][]Handler),
	}
}

// Subscribe registers a handler for one or more topics.
func (b *Bus) Subscribe(handler Handler, topics ...Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		b.handlers[topic] = append(b.handlers[topic], handler)
	}
}

// Publish sends an event to all subscribers of the topic.
// Handlers are called synchronously in the order they were registered.
// A panicking handler is logged and skipped. Publishing on a nil bus is a
// no-op.
func (b *Bus) Publish(topic Topic, payload any) {
	if b == nil {
		return
	}
	event, handlers := b.prepare(topic, payload)
	for _, h := range handlers {
		invoke(h, event)
	}
}

// PublishAsync sends an event to all subscribers asynchronously.
func (b *Bus) PublishAsync(topic Topic, payload any) {
	if b == nil {
		return
	}
	event, handlers := b.prepare(topic, payload)
	for _, h := range handlers {
		go invoke(h, event)
	}
}

func (b *Bus) prepare(topic Topic, payload any) (Event, []Handler) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[topic]))
	copy(handlers, b.handlers[topic])
	b.mu.RUnlock()

	return Event{
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
	}, handlers
}

func invoke(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[eventbus] handler for %s panicked: %v", e.Topic, r)
		}
	}()
	h(e)
}
