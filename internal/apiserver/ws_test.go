package apiserver

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEventHubBroadcastsToSubscribers(t *testing.T) {
	h := newEventHub()
	ch := h.subscribe()
	defer h.unsubscribe(ch)

	h.broadcast(AdmittedEvent{TxID: "abc", FeePerHop: 100})

	select {
	case msg := <-ch:
		var ev AdmittedEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if ev.TxID != "abc" || ev.FeePerHop != 100 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected subscriber to receive broadcast event")
	}
}

func TestEventHubDropsSlowSubscriberWithoutBlocking(t *testing.T) {
	h := newEventHub()
	ch := h.subscribe()
	defer h.unsubscribe(ch)

	for i := 0; i < wsSendBuffer+10; i++ {
		h.broadcast(AdmittedEvent{TxID: "flood"})
	}
	// broadcast must not block or panic even once the subscriber's buffer
	// fills; draining should still yield at least one queued event.
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("expected at least one buffered event to be deliverable")
	}
}

func TestEventHubUnsubscribeClosesChannel(t *testing.T) {
	h := newEventHub()
	ch := h.subscribe()
	h.unsubscribe(ch)

	_, ok := <-ch
	if ok {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}
}
