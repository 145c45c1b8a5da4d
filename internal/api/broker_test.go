package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("fleet")

	evt := SSEEvent{Type: "vehicle.moved", Data: map[string]any{"vehicleId": "v1"}}
	b.Publish("fleet", evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["vehicleId"].(string) != "v1" {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe("fleet", ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerTopicsAreIsolated(t *testing.T) {
	b := NewBroker()
	fleet := b.Subscribe("fleet")
	other := b.Subscribe("v2")
	defer b.Unsubscribe("v2", other)
	defer b.Unsubscribe("fleet", fleet)

	b.Publish("v1", SSEEvent{Type: "vehicle.moved", Data: map[string]any{}})

	select {
	case <-other:
		t.Fatal("event leaked across topics")
	case <-time.After(50 * time.Millisecond):
	}
}
