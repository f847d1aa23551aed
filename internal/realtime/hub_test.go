package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventDrift, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventDrift, EventCheckError},
	}}

	driftEvent := &Event{Type: EventDrift}
	errEvent := &Event{Type: EventCheckError}
	passEvent := &Event{Type: EventCheckPass}

	if !h.shouldSend(client, driftEvent) {
		t.Error("Should receive drift events")
	}
	if !h.shouldSend(client, errEvent) {
		t.Error("Should receive check_error events")
	}
	if h.shouldSend(client, passEvent) {
		t.Error("Should NOT receive check_pass events")
	}
}

func TestShouldSend_GroupFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Groups: []string{"wallets"},
	}}

	matching := &Event{Type: EventDrift, Group: "wallets", Monitor: "balance.alice"}
	notMatching := &Event{Type: EventDrift, Group: "contracts", Monitor: "field.counter"}
	noGroup := &Event{Type: EventCheckPass}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on group")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match unrelated group")
	}
	if !h.shouldSend(client, noGroup) {
		t.Error("Group filter should only apply to events carrying a group")
	}
}

func TestShouldSend_MonitorFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Monitors: []string{"balance.alice"},
	}}

	matching := &Event{Type: EventDrift, Group: "wallets", Monitor: "balance.alice"}
	notMatching := &Event{Type: EventDrift, Group: "wallets", Monitor: "balance.bob"}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on monitor id")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match unrelated monitor")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventDrift}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Broadcast an event
	h.Broadcast(&Event{Type: EventDrift, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.BroadcastDrift("wallets", "balance.alice",
		"balance.alice: un-asserted state change detected (100) => (88)")

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants hard check failures
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventCheckError}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Send a drift event (should be filtered out)
	h.Broadcast(&Event{Type: EventDrift, Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive drift event")
	default:
		// Good - filtered out
	}

	// Send a check_error event (should be received)
	h.Broadcast(&Event{Type: EventCheckError, Timestamp: time.Now()})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive check_error event")
	}
}
