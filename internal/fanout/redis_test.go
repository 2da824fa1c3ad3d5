package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/linkerbell/campus-market-chat/internal/core"
)

func startRelay(t *testing.T, mr *miniredis.Miniredis, broker *core.Broker) *RedisRelay {
	t.Helper()

	relay, err := NewRedisRelay(context.Background(), RedisConfig{Addr: mr.Addr(), Prefix: "test:"}, broker, nil)
	if err != nil {
		t.Fatalf("NewRedisRelay failed: %v", err)
	}
	t.Cleanup(func() { _ = relay.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ready := make(chan struct{})
	go func() { _ = relay.Run(ctx, ready) }()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatalf("relay did not subscribe")
	}
	return relay
}

func TestRelayDeliversAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)

	brokerA := core.NewBroker()
	brokerB := core.NewBroker()
	relayA := startRelay(t, mr, brokerA)
	startRelay(t, mr, brokerB)

	topic := core.RoomTopic(10)
	subA := core.NewSession("a", nil, 4)
	subB := core.NewSession("b", nil, 4)
	if err := brokerA.Subscribe(subA, "sub-a", topic); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := brokerB.Subscribe(subB, "sub-b", topic); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := relayA.Broadcast(context.Background(), topic, []byte(`{"chattingId":1}`)); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}

	for _, s := range []*core.Session{subA, subB} {
		select {
		case d := <-s.Outbound:
			if d.Topic != topic || string(d.Body) != `{"chattingId":1}` {
				t.Fatalf("unexpected delivery: %+v", d)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("session %s did not receive relayed payload", s.ID)
		}
	}
}

func TestRelayBroadcastFailsWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)

	relay, err := NewRedisRelay(context.Background(), RedisConfig{Addr: mr.Addr()}, core.NewBroker(), nil)
	if err != nil {
		t.Fatalf("NewRedisRelay failed: %v", err)
	}
	defer relay.Close()

	mr.Close()

	if err := relay.Broadcast(context.Background(), core.RoomTopic(1), []byte("x")); err == nil {
		t.Fatalf("expected publish error with redis down")
	}
}
