package core

import (
	"testing"
	"time"
)

func mustDelivery(t *testing.T, ch <-chan Delivery) Delivery {
	t.Helper()

	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatalf("expected delivery not received")
		return Delivery{}
	}
}

func expectNoDelivery(t *testing.T, ch <-chan Delivery) {
	t.Helper()

	select {
	case d := <-ch:
		t.Fatalf("unexpected delivery: %+v", d)
	case <-time.After(50 * time.Millisecond):
	}
}
