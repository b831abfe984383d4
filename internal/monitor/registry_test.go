package monitor

import (
	"errors"
	"strings"
	"testing"

	"nftflow/internal/events"
)

func listedEvent(from, to string) *events.CanonicalEvent {
	return &events.CanonicalEvent{
		EventType: events.ItemListed,
		Timestamp: "2024-05-01T12:00:00Z",
		ItemID:    "ethereum/0xabc/1",
		Payload: events.Payload{
			FromAddress:    from,
			ToAddress:      to,
			CollectionSlug: "cool-cats",
		},
	}
}

func TestAddRejectsEmptyEventTypes(t *testing.T) {
	r := NewRegistry()
	_, err := r.Add("cool-cats", nil, func(*events.CanonicalEvent) error { return nil }, "")
	if err == nil {
		t.Fatal("expected error for empty event types")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if !strings.Contains(err.Error(), "non-empty array") {
		t.Fatalf("error message should mention non-empty array, got %q", err.Error())
	}
}

func TestDispatchMatchesCollectionAndType(t *testing.T) {
	r := NewRegistry()
	var got []string
	_, err := r.Add("cool-cats", []events.EventType{events.ItemListed}, func(ev *events.CanonicalEvent) error {
		got = append(got, ev.ItemID)
		return nil
	}, "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if n := r.Dispatch(listedEvent("0x1", "0x2"), ""); n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	sold := listedEvent("0x1", "0x2")
	sold.EventType = events.ItemSold
	if n := r.Dispatch(sold, ""); n != 0 {
		t.Fatalf("type mismatch still delivered: %d", n)
	}
	other := listedEvent("0x1", "0x2")
	other.Payload.CollectionSlug = "other-collection"
	if n := r.Dispatch(other, ""); n != 0 {
		t.Fatalf("collection mismatch still delivered: %d", n)
	}
	if len(got) != 1 {
		t.Fatalf("callback invoked %d times", len(got))
	}
}

func TestDispatchWildcardCollection(t *testing.T) {
	r := NewRegistry()
	key, err := r.Add(WildcardCollection, []events.EventType{events.ItemListed}, func(*events.CanonicalEvent) error { return nil }, "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if key != WildcardCollection {
		t.Fatalf("wildcard key should be %q, got %q", WildcardCollection, key)
	}
	ev := listedEvent("0x1", "0x2")
	ev.Payload.CollectionSlug = "whatever"
	if n := r.Dispatch(ev, ""); n != 1 {
		t.Fatalf("wildcard subscription missed event: %d", n)
	}
}

func TestDispatchWalletFilterCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	delivered := 0
	_, err := r.Add("cool-cats", []events.EventType{events.ItemListed}, func(*events.CanonicalEvent) error {
		delivered++
		return nil
	}, "0xAbCd")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if n := r.Dispatch(listedEvent("0xabcd", "0x2"), ""); n != 1 {
		t.Fatalf("case-insensitive from match skipped: %d", n)
	}
	if n := r.Dispatch(listedEvent("0x1", "0XABCD"), ""); n != 1 {
		t.Fatalf("case-insensitive to match skipped: %d", n)
	}
	if n := r.Dispatch(listedEvent("0x1", "0x2"), ""); n != 0 {
		t.Fatalf("unrelated event delivered: %d", n)
	}
	if delivered != 2 {
		t.Fatalf("expected 2 deliveries, got %d", delivered)
	}
}

func TestDispatchSurvivesFailingCallback(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Add("cool-cats", []events.EventType{events.ItemListed}, func(*events.CanonicalEvent) error {
		panic("boom")
	}, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	healthy := 0
	if _, err := r.Add(WildcardCollection, []events.EventType{events.ItemListed}, func(*events.CanonicalEvent) error {
		healthy++
		return errors.New("also fails, also tolerated")
	}, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if n := r.Dispatch(listedEvent("0x1", "0x2"), ""); n != 2 {
		t.Fatalf("expected both callbacks invoked, got %d", n)
	}
	if healthy != 1 {
		t.Fatalf("healthy callback invoked %d times", healthy)
	}
	if r.Count() != 2 {
		t.Fatal("failing callback must not be unsubscribed")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	key, err := r.Add("cool-cats", []events.EventType{events.ItemListed}, func(*events.CanonicalEvent) error { return nil }, "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	r.Remove(key)
	r.Remove(key)
	r.Remove("never-existed")
	if r.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Count())
	}
	r.Remove("")
}

func TestRemoveAllClearsEverything(t *testing.T) {
	r := NewRegistry()
	for _, c := range []string{"a", "b", "c"} {
		if _, err := r.Add(c, []events.EventType{events.ItemSold}, func(*events.CanonicalEvent) error { return nil }, ""); err != nil {
			t.Fatalf("Add %s: %v", c, err)
		}
	}
	r.Remove("")
	if r.Count() != 0 {
		t.Fatalf("expected 0 subscriptions, got %d", r.Count())
	}
}

func TestSubscriptionKeyShape(t *testing.T) {
	key := subscriptionKey("cool-cats", []events.EventType{events.ItemListed, events.ItemSold})
	if key != "cool-cats:item_listed,item_sold" {
		t.Fatalf("unexpected key: %s", key)
	}
}
