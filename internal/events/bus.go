package events

import (
	"sync"
)

// subscriber is one registered channel. An empty topic means it receives
// events from every topic.
type subscriber struct {
	topic string
	ch    chan Event
}

// EventBus is a channel-based pub-sub bus. Publishing never blocks: a
// subscriber whose channel is full simply misses that event. Observers
// that need complete state use the orchestrator's Snapshot, not the bus.
type EventBus struct {
	mu     sync.RWMutex
	subs   []subscriber
	closed bool
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a channel for one topic. bufSize defaults to 256
// when <= 0. The returned channel is closed when the bus closes.
func (b *EventBus) Subscribe(topic string, bufSize int) <-chan Event {
	return b.add(topic, bufSize)
}

// SubscribeAll registers a channel receiving events from every topic.
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	return b.add("", bufSize)
}

func (b *EventBus) add(topic string, bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}

	b.subs = append(b.subs, subscriber{topic: topic, ch: ch})
	return ch
}

// Publish delivers an event to every subscriber of the topic and every
// all-topic subscriber. Non-blocking; full channels drop the event.
func (b *EventBus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if sub.topic != "" && sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Channel full, drop event for this subscriber.
		}
	}
}

// Close closes the bus and all subscriber channels. Idempotent.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}
