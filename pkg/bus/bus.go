package bus

import (
	"context"
	"sync"

	"github.com/securepatrol-id/securepatrol-backend/pkg/logger"
)

// Topic names an in-process notification channel. One topic exists per
// partition plus one for auth transitions.
type Topic string

const (
	TopicUsers     Topic = "users"
	TopicLocations Topic = "locations"
	TopicLogs      Topic = "logs"
	TopicAuth      Topic = "auth"
)

// Handler is invoked on publish. Events carry no payload: subscribers re-pull
// the current snapshot from the store, so there is no staleness window
// between publish and consumption.
type Handler func()

// Bus is a synchronous in-process publish/subscribe fan-out. Publish invokes
// every currently-subscribed handler before returning, so a reader can never
// observe a collection mutation without its notification.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[Topic]map[int]Handler
	logg   *logger.Logger
}

// New constructs an empty bus. The logger is optional.
func New(logg *logger.Logger) *Bus {
	return &Bus{
		subs: make(map[Topic]map[int]Handler),
		logg: logg,
	}
}

// Subscribe registers a handler and synchronously invokes it once with the
// current state, so consumers never render an empty snapshot while waiting
// for a first event. The returned unsubscribe func is idempotent.
func (b *Bus) Subscribe(topic Topic, handler Handler) func() {
	if handler == nil {
		return func() {}
	}

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[topic][id] = handler
	b.mu.Unlock()

	handler()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if handlers, ok := b.subs[topic]; ok {
				delete(handlers, id)
				if len(handlers) == 0 {
					delete(b.subs, topic)
				}
			}
		})
	}
}

// Publish synchronously delivers the topic to every subscriber. Publishing
// to a topic with no subscribers is a no-op.
func (b *Bus) Publish(ctx context.Context, topic Topic) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	if b.logg != nil {
		b.logg.Debug(b.logg.WithTopic(ctx, string(topic)), "publishing event")
	}

	for _, h := range handlers {
		h()
	}
}
