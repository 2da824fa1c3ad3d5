package core

import (
	"context"
	"errors"
	"testing"
)

func TestBrokerPublishReachesRoomSubscribers(t *testing.T) {
	broker := NewBroker()

	alice := NewSession("a", nil, 4)
	bob := NewSession("b", nil, 4)
	carol := NewSession("c", nil, 4)

	topic := RoomTopic(10)
	if err := broker.Subscribe(alice, "sub-0", topic); err != nil {
		t.Fatalf("subscribe alice: %v", err)
	}
	if err := broker.Subscribe(bob, "sub-0", topic); err != nil {
		t.Fatalf("subscribe bob: %v", err)
	}
	if err := broker.Subscribe(carol, "sub-0", RoomTopic(11)); err != nil {
		t.Fatalf("subscribe carol: %v", err)
	}

	delivered, dropped := broker.Publish(topic, []byte(`{"content":"hello"}`))
	if delivered != 2 || dropped != 0 {
		t.Fatalf("expected 2 delivered 0 dropped, got %d/%d", delivered, dropped)
	}

	for _, s := range []*Session{alice, bob} {
		d := mustDelivery(t, s.Outbound)
		if d.Topic != "/sub/chat/10" || d.SubscriptionID != "sub-0" || string(d.Body) != `{"content":"hello"}` {
			t.Fatalf("unexpected delivery for %s: %+v", s.ID, d)
		}
	}
	expectNoDelivery(t, carol.Outbound)
}

func TestBrokerLateSubscriberGetsNoBacklog(t *testing.T) {
	broker := NewBroker()
	topic := RoomTopic(10)

	if delivered, _ := broker.Publish(topic, []byte("early")); delivered != 0 {
		t.Fatalf("expected no deliveries without subscribers, got %d", delivered)
	}

	late := NewSession("late", nil, 4)
	if err := broker.Subscribe(late, "s", topic); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	expectNoDelivery(t, late.Outbound)

	_ = broker.Broadcast(context.Background(), topic, []byte("after"))
	if d := mustDelivery(t, late.Outbound); string(d.Body) != "after" {
		t.Fatalf("unexpected body %q", d.Body)
	}
}

func TestBrokerSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	broker := NewBroker()
	topic := RoomTopic(3)

	slow := NewSession("slow", nil, 1)
	fast := NewSession("fast", nil, 8)
	_ = broker.Subscribe(slow, "s", topic)
	_ = broker.Subscribe(fast, "s", topic)

	broker.Publish(topic, []byte("1"))
	delivered, dropped := broker.Publish(topic, []byte("2"))
	if delivered != 1 || dropped != 1 {
		t.Fatalf("expected 1 delivered 1 dropped, got %d/%d", delivered, dropped)
	}

	if d := mustDelivery(t, fast.Outbound); string(d.Body) != "1" {
		t.Fatalf("unexpected first body %q", d.Body)
	}
	if d := mustDelivery(t, fast.Outbound); string(d.Body) != "2" {
		t.Fatalf("unexpected second body %q", d.Body)
	}
	if d := mustDelivery(t, slow.Outbound); string(d.Body) != "1" {
		t.Fatalf("slow subscriber should keep the first body, got %q", d.Body)
	}
	expectNoDelivery(t, slow.Outbound)
}

func TestBrokerUnsubscribeAndRemoveSession(t *testing.T) {
	broker := NewBroker()
	s := NewSession("s", nil, 4)

	_ = broker.Subscribe(s, "one", RoomTopic(1))
	_ = broker.Subscribe(s, "two", RoomTopic(2))

	if err := broker.Subscribe(s, "one", RoomTopic(3)); !errors.Is(err, ErrDuplicateSubscription) {
		t.Fatalf("expected ErrDuplicateSubscription, got %v", err)
	}

	if err := broker.Unsubscribe(s, "one"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := broker.Unsubscribe(s, "one"); !errors.Is(err, ErrUnknownSubscription) {
		t.Fatalf("expected ErrUnknownSubscription, got %v", err)
	}
	if broker.Subscribers(RoomTopic(1)) != 0 {
		t.Fatalf("topic 1 should have no subscribers")
	}

	broker.RemoveSession(s)
	if broker.Subscribers(RoomTopic(2)) != 0 || s.SubscriptionCount() != 0 {
		t.Fatalf("session subscriptions should be cleared")
	}
}
