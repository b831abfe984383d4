package events

import (
	"strings"
	"time"
)

// EventType identifies a canonical marketplace event.
type EventType string

const (
	ItemListed          EventType = "item_listed"
	ItemSold            EventType = "item_sold"
	ItemTransferred     EventType = "item_transferred"
	ItemReceivedBid     EventType = "item_received_bid"
	ItemCancelled       EventType = "item_cancelled"
	ItemMetadataUpdated EventType = "item_metadata_updated"
)

// KnownTypes lists every canonical event type.
var KnownTypes = []EventType{
	ItemListed,
	ItemSold,
	ItemTransferred,
	ItemReceivedBid,
	ItemCancelled,
	ItemMetadataUpdated,
}

// IsKnownType reports whether t is one of the canonical event types.
// Subscriptions may carry unrecognized types; they simply never match.
func IsKnownType(t EventType) bool {
	for _, k := range KnownTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Payload carries the optional event details. All fields may be empty
// depending on the event type and the upstream source.
type Payload struct {
	FromAddress    string `json:"from_address,omitempty"`
	ToAddress      string `json:"to_address,omitempty"`
	PriceRaw       string `json:"price_raw,omitempty"`
	Currency       string `json:"currency,omitempty"`
	CollectionSlug string `json:"collection_slug,omitempty"`
}

// CanonicalEvent is the single normalized event schema produced regardless of
// the upstream source. Immutable once produced.
type CanonicalEvent struct {
	EventType EventType `json:"event_type"`
	// Timestamp is the upstream event time in RFC 3339 form.
	Timestamp string `json:"timestamp"`
	// ItemID is the chain/contract/tokenId composite.
	ItemID  string  `json:"item_id"`
	TxHash  string  `json:"tx_hash,omitempty"`
	Payload Payload `json:"payload"`
}

// SeenID derives the deduplication id. Only fields that are stable across
// duplicate deliveries of the same real-world event participate; the
// received-at wall clock never does.
func (e *CanonicalEvent) SeenID() string {
	return strings.Join([]string{e.Timestamp, string(e.EventType), e.ItemID, e.TxHash}, "|")
}

// OccurredAt parses the event timestamp. The zero time is returned when the
// timestamp is absent or malformed.
func (e *CanonicalEvent) OccurredAt() time.Time {
	if e.Timestamp == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Involves reports whether the given wallet address appears as the event's
// sender or receiver. Comparison is case-insensitive; an empty wallet never
// matches.
func (e *CanonicalEvent) Involves(wallet string) bool {
	if wallet == "" {
		return false
	}
	return strings.EqualFold(e.Payload.FromAddress, wallet) ||
		strings.EqualFold(e.Payload.ToAddress, wallet)
}
