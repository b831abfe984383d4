package events

import (
	"fmt"
	"testing"
)

func TestDeduplicatorSeen(t *testing.T) {
	d, err := NewDeduplicator(10)
	if err != nil {
		t.Fatalf("NewDeduplicator failed: %v", err)
	}

	id := "2023-11-14T22:13:20Z|item_sold|ethereum/0xabc/1|0xdead"
	if d.Seen(id) {
		t.Fatalf("fresh id reported as seen")
	}
	d.Remember(id)
	if !d.Seen(id) {
		t.Fatalf("remembered id not reported as seen")
	}
	if d.Len() != 1 {
		t.Errorf("unexpected length: %d", d.Len())
	}
}

func TestDeduplicatorBounded(t *testing.T) {
	d, err := NewDeduplicator(8)
	if err != nil {
		t.Fatalf("NewDeduplicator failed: %v", err)
	}
	for i := 0; i < 100; i++ {
		d.Remember(fmt.Sprintf("id-%d", i))
	}
	if d.Len() > 8 {
		t.Fatalf("capacity exceeded: %d", d.Len())
	}
	// The most recent id always survives eviction.
	if !d.Seen("id-99") {
		t.Errorf("most recent id was evicted")
	}
}

func TestDeduplicatorClear(t *testing.T) {
	d, _ := NewDeduplicator(4)
	d.Remember("a")
	d.Remember("b")
	d.Clear()
	if d.Len() != 0 {
		t.Errorf("clear left %d entries", d.Len())
	}
	if d.Seen("a") {
		t.Errorf("cleared id still seen")
	}
}

func TestDeduplicatorDefaultCapacity(t *testing.T) {
	d, err := NewDeduplicator(0)
	if err != nil {
		t.Fatalf("NewDeduplicator failed: %v", err)
	}
	d.Remember("x")
	if !d.Seen("x") {
		t.Errorf("default-capacity deduplicator dropped entry")
	}
}
