package events

import (
	"fmt"
	"strings"
	"time"
)

// NormalizeRest maps a REST-native asset event onto the canonical schema.
// chainName supplies the chain component of the item id when the event does
// not carry one. Unsupported event types yield nil; the caller treats that as
// "not processed", not as an error.
func NormalizeRest(raw RestEvent, chainName string) *CanonicalEvent {
	eventType, ok := restEventType(raw)
	if !ok {
		return nil
	}

	chain := raw.Chain
	if chain == "" {
		chain = chainName
	}

	ev := &CanonicalEvent{
		EventType: eventType,
		Timestamp: time.Unix(raw.EventTimestamp, 0).UTC().Format(time.RFC3339),
		ItemID:    fmt.Sprintf("%s/%s/%s", chain, strings.ToLower(raw.ContractAddress), raw.TokenID),
		TxHash:    raw.Transaction,
		Payload: Payload{
			CollectionSlug: raw.Collection,
		},
	}

	switch eventType {
	case ItemSold:
		if raw.Payment != nil {
			ev.Payload.PriceRaw = raw.Payment.Quantity
			ev.Payload.Currency = raw.Payment.Symbol
		}
		ev.Payload.FromAddress = raw.Seller
		ev.Payload.ToAddress = raw.Buyer
	case ItemTransferred:
		ev.Payload.FromAddress = raw.FromAddress
		ev.Payload.ToAddress = raw.ToAddress
	case ItemListed, ItemReceivedBid, ItemCancelled:
		if raw.Payment != nil {
			ev.Payload.PriceRaw = raw.Payment.Quantity
			ev.Payload.Currency = raw.Payment.Symbol
		}
		ev.Payload.FromAddress = raw.Maker
	}

	return ev
}

func restEventType(raw RestEvent) (EventType, bool) {
	switch raw.EventType {
	case "sale":
		return ItemSold, true
	case "transfer":
		return ItemTransferred, true
	case "cancel":
		return ItemCancelled, true
	case "metadata_update":
		return ItemMetadataUpdated, true
	case "order":
		switch raw.OrderType {
		case "listing":
			return ItemListed, true
		case "offer", "item_offer", "criteria_offer", "collection_offer":
			return ItemReceivedBid, true
		}
	}
	return "", false
}

// NormalizeStream maps a push-native message onto the canonical schema.
// Push event type names already match the canonical enum; everything else is
// field renaming. Unsupported types yield nil.
func NormalizeStream(raw StreamEvent) *CanonicalEvent {
	eventType := EventType(raw.EventType)
	if !IsKnownType(eventType) {
		return nil
	}

	p := raw.Payload
	ev := &CanonicalEvent{
		EventType: eventType,
		Timestamp: p.EventTimestamp,
		ItemID:    p.Item.NftID,
		Payload: Payload{
			CollectionSlug: p.Collection.Slug,
		},
	}
	if p.Transaction != nil {
		ev.TxHash = p.Transaction.Hash
	}
	if p.PaymentToken != nil {
		ev.Payload.Currency = p.PaymentToken.Symbol
	}

	switch eventType {
	case ItemSold:
		ev.Payload.PriceRaw = p.SalePrice
		if p.FromAccount != nil {
			ev.Payload.FromAddress = p.FromAccount.Address
		}
		if p.ToAccount != nil {
			ev.Payload.ToAddress = p.ToAccount.Address
		}
	case ItemTransferred:
		if p.FromAccount != nil {
			ev.Payload.FromAddress = p.FromAccount.Address
		}
		if p.ToAccount != nil {
			ev.Payload.ToAddress = p.ToAccount.Address
		}
	case ItemListed, ItemReceivedBid, ItemCancelled:
		ev.Payload.PriceRaw = p.BasePrice
		if p.Maker != nil {
			ev.Payload.FromAddress = p.Maker.Address
		}
	}

	return ev
}
