package core

import (
	"context"
	"sync"

	"github.com/linkerbell/campus-market-chat/internal/metrics"
)

type subscription struct {
	session *Session
	id      string
}

// Broker routes broadcast payloads to the sessions subscribed to a topic.
// Delivery is at-most-once per current subscription; there is no backlog.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[subscription]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]map[subscription]struct{}),
	}
}

// Subscribe registers a session subscription on topic.
func (b *Broker) Subscribe(s *Session, subID, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subs[subID]; exists {
		return ErrDuplicateSubscription
	}
	s.subs[subID] = topic

	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[subscription]struct{})
		b.topics[topic] = subs
	}
	subs[subscription{session: s, id: subID}] = struct{}{}
	return nil
}

// Unsubscribe removes one subscription of a session.
func (b *Broker) Unsubscribe(s *Session, subID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	topic, ok := s.subs[subID]
	if !ok {
		return ErrUnknownSubscription
	}
	delete(s.subs, subID)
	b.removeLocked(topic, subscription{session: s, id: subID})
	return nil
}

// RemoveSession drops every subscription held by a session.
func (b *Broker) RemoveSession(s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	for subID, topic := range s.subs {
		b.removeLocked(topic, subscription{session: s, id: subID})
	}
	s.subs = make(map[string]string)
}

func (b *Broker) removeLocked(topic string, sub subscription) {
	subs, ok := b.topics[topic]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, topic)
	}
}

// Publish delivers body to every current subscription of topic. A full subscriber
// buffer drops that delivery only.
func (b *Broker) Publish(topic string, body []byte) (delivered, dropped int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.topics[topic] {
		ok := sub.session.deliver(Delivery{
			Topic:          topic,
			SubscriptionID: sub.id,
			Body:           body,
		})
		if ok {
			delivered++
		} else {
			dropped++
		}
	}

	metrics.BroadcastDeliveries.WithLabelValues("delivered").Add(float64(delivered))
	metrics.BroadcastDeliveries.WithLabelValues("dropped").Add(float64(dropped))
	return delivered, dropped
}

// Broadcast publishes body on topic. It never fails for in-process fan-out.
func (b *Broker) Broadcast(_ context.Context, topic string, body []byte) error {
	b.Publish(topic, body)
	return nil
}

// Subscribers returns the number of subscriptions on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
