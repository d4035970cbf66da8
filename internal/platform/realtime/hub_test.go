package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient() *client {
	return &client{
		id:     "test",
		tables: make(map[string]struct{}),
		send:   make(chan []byte, 4),
	}
}

func TestPublishReachesSubscribersOnly(t *testing.T) {
	h := NewHub(zerolog.Nop())
	billsClient := newTestClient()
	otherClient := newTestClient()
	h.register(billsClient)
	h.register(otherClient)
	h.subscribe(billsClient, []string{"bills"})
	h.subscribe(otherClient, []string{"medications"})

	h.Publish(context.Background(), ChangeEvent{Table: "bills", Op: OpUpdate, RowID: "abc"})

	select {
	case data := <-billsClient.send:
		var ev ChangeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if ev.Table != "bills" || ev.Op != OpUpdate || ev.RowID != "abc" {
			t.Errorf("event = %+v", ev)
		}
		if ev.Timestamp.IsZero() {
			t.Error("timestamp not stamped")
		}
	default:
		t.Fatal("subscriber received nothing")
	}

	select {
	case <-otherClient.send:
		t.Error("unsubscribed client received event")
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := newTestClient()
	h.register(c)
	h.subscribe(c, []string{"bills"})
	h.unsubscribe(c, []string{"bills"})

	h.Publish(context.Background(), ChangeEvent{Table: "bills", Op: OpInsert})

	select {
	case <-c.send:
		t.Error("received after unsubscribe")
	default:
	}
	if n := h.SubscriberCount("bills"); n != 0 {
		t.Errorf("SubscriberCount = %d", n)
	}
}

func TestPublishSkipsFullBuffers(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := newTestClient()
	h.register(c)
	h.subscribe(c, []string{"bills"})

	// Fill the buffer and one more; the extra must not block.
	for i := 0; i < cap(c.send)+1; i++ {
		h.Publish(context.Background(), ChangeEvent{Table: "bills", Op: OpInsert})
	}
	if len(c.send) != cap(c.send) {
		t.Errorf("buffered = %d, want %d", len(c.send), cap(c.send))
	}
}

func TestUnregisterCleansUp(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := newTestClient()
	h.register(c)
	h.subscribe(c, []string{"bills", "medications"})

	h.unregister(c)
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d", h.ClientCount())
	}
	if h.SubscriberCount("bills") != 0 || h.SubscriberCount("medications") != 0 {
		t.Error("subscriptions not dropped")
	}
	// Channel is closed; publishing must not panic.
	h.Publish(context.Background(), ChangeEvent{Table: "bills", Op: OpDelete})
}
