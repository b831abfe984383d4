package marketapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEventsAccountScoped(t *testing.T) {
	var gotPath, gotKey, gotAfter string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-KEY")
		gotAfter = r.URL.Query().Get("occurred_after")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"asset_events": []map[string]interface{}{
				{"event_type": "sale", "event_timestamp": 1700000000, "nft": map[string]string{}},
			},
			"next": "",
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "test-key", ClientOptions{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	evs, err := c.Events(context.Background(), EventsQuery{Account: "0xABCDEF", After: 1699999000})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if gotPath != "/events/accounts/0xabcdef" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("missing api key header, got %q", gotKey)
	}
	if gotAfter != "1699999000" {
		t.Fatalf("unexpected occurred_after: %s", gotAfter)
	}
}

func TestEventsFollowsCursor(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		next := ""
		if r.URL.Query().Get("next") == "" {
			next = "page-2"
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"asset_events": []map[string]interface{}{
				{"event_type": "sale", "event_timestamp": 1700000000},
			},
			"next": next,
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "k", ClientOptions{RequestsPerSecond: 100, BurstSize: 10})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	evs, err := c.Events(context.Background(), EventsQuery{Collection: "cool-cats"})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 page fetches, got %d", calls)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
}

func TestEventsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "k", ClientOptions{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Events(context.Background(), EventsQuery{Collection: "cool-cats"}); err == nil {
		t.Fatal("expected error on 403 response")
	}
}

func TestEventsQueryNeedsScope(t *testing.T) {
	c, err := NewClient("https://example.com", "k", ClientOptions{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Events(context.Background(), EventsQuery{}); err == nil {
		t.Fatal("expected error for empty query")
	}
}
