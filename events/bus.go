// Package events provides a process-local publish/subscribe bus for agent
// lifecycle and error events. Delivery is synchronous fan-out on the
// publisher's goroutine; subscribers must not block, and there is no
// persistence — catch-up after disconnect is handled by polling the session
// manager's query API.
package events

import (
	"sync"
	"time"
)

// Topic names one event stream on the bus.
type Topic string

const (
	TopicStatusChanged      Topic = "statusChanged"
	TopicStepStarted        Topic = "stepStarted"
	TopicStepCompleted      Topic = "stepCompleted"
	TopicStepFailed         Topic = "stepFailed"
	TopicLockConflict       Topic = "lockConflict"
	TopicNeedsClarification Topic = "needsClarification"
	TopicExecutionComplete  Topic = "executionComplete"
	TopicExecutionAborted   Topic = "executionAborted"
	TopicAgentCreated       Topic = "agentCreated"
	TopicAgentDeleted       Topic = "agentDeleted"
	TopicMessageAdded       Topic = "messageAdded"
)

// Event is one published occurrence.
type Event struct {
	Topic     Topic          `json:"topic"`
	SessionID string         `json:"session_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Time      time.Time      `json:"time"`
}

// Handler receives published events.
type Handler func(event Event)

// Bus is an explicit topic registry holding subscriber callbacks.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Topic]map[int]Handler
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic]map[int]Handler)}
}

// Subscribe registers a handler for a topic and returns a disposer that
// removes the subscription. Disposal is idempotent.
func (b *Bus) Subscribe(topic Topic, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	b.subs[topic][id] = handler
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[topic], id)
		})
	}
}

// Publish delivers the event synchronously to every subscriber of its topic.
// The event time is stamped if unset.
func (b *Bus) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[event.Topic]))
	for _, h := range b.subs[event.Topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}

// SubscriberCount returns the number of live subscriptions for a topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
