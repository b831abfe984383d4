package channel

import (
	"context"
	"testing"

	"nftflow/internal/events"
)

func testEvent(id string) events.CanonicalEvent {
	return events.CanonicalEvent{
		EventType: events.ItemSold,
		Timestamp: "2024-05-01T12:00:00Z",
		ItemID:    id,
	}
}

func TestChannelsStats(t *testing.T) {
	ch := NewChannels(2)
	ch.IncrementSent()
	ch.IncrementDropped()
	stats := ch.GetStats()
	if stats.Sent != 1 || stats.Dropped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSendDropsWhenFull(t *testing.T) {
	ch := NewChannels(1)
	ctx := context.Background()
	if !ch.Send(ctx, testEvent("ethereum/0xabc/1")) {
		t.Fatal("first send should succeed")
	}
	if ch.Send(ctx, testEvent("ethereum/0xabc/2")) {
		t.Fatal("send into a full buffer should drop")
	}
	stats := ch.GetStats()
	if stats.Sent != 1 || stats.Dropped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestChannelsStartAndClose(t *testing.T) {
	ch := NewChannels(1)
	ch.Close()
}
