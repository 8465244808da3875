package wsbroadcast

import (
	"context"
	"testing"
	"time"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.DroppedMessages() != 0 {
		t.Errorf("expected 0 dropped messages, got %d", hub.DroppedMessages())
	}
}

func newTestClient(hub *Hub) *Client {
	return &Client{hub: hub, send: make(chan []byte, sendBufferSize)}
}

func TestHubRegisterAndBroadcast(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := newTestClient(hub)
	hub.register <- client
	waitForClientCount(t, hub, 1)

	hub.Broadcast(NewStatusTransitionMessage(1, "binance", StatusDispatched, "job-1"))

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("expected non-empty broadcast payload")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast to reach client")
	}
}

func TestHubUnregisterStopsDelivery(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := newTestClient(hub)
	hub.register <- client
	waitForClientCount(t, hub, 1)

	hub.unregister <- client
	waitForClientCount(t, hub, 0)

	if _, ok := <-client.send; ok {
		t.Error("expected client.send to be closed after unregister")
	}
}

func TestHubRunExitsOnContextCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Hub.Run did not exit after context cancellation")
	}
}

func TestHubBroadcastDropsWhenSaturated(t *testing.T) {
	hub := NewHub()
	// No Run goroutine draining h.broadcast: every send past the buffer's
	// capacity must be dropped rather than block the caller.
	for i := 0; i < cap(hub.broadcast)+10; i++ {
		hub.Broadcast(map[string]int{"i": i})
	}
	if hub.DroppedMessages() == 0 {
		t.Error("expected some messages to be dropped once the channel saturated")
	}
}

func waitForClientCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("client count did not reach %d, got %d", want, hub.ClientCount())
}
