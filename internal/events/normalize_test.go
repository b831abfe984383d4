package events

import "testing"

func TestNormalizeRestSale(t *testing.T) {
	raw := RestEvent{
		EventType:       "sale",
		ContractAddress: "0xABCDEF0123456789abcdef0123456789ABCDEF01",
		TokenID:         "42",
		Collection:      "cool-cats",
		EventTimestamp:  1700000000,
		Transaction:     "0xdeadbeef",
		Seller:          "0xSeller",
		Buyer:           "0xBuyer",
		Payment:         &RestPayment{Quantity: "1500000000000000000", Symbol: "ETH", Decimals: 18},
	}

	ev := NormalizeRest(raw, "ethereum")
	if ev == nil {
		t.Fatalf("expected canonical event")
	}
	if ev.EventType != ItemSold {
		t.Errorf("unexpected event type: %s", ev.EventType)
	}
	if ev.ItemID != "ethereum/0xabcdef0123456789abcdef0123456789abcdef01/42" {
		t.Errorf("unexpected item id: %s", ev.ItemID)
	}
	if ev.Timestamp != "2023-11-14T22:13:20Z" {
		t.Errorf("unexpected timestamp: %s", ev.Timestamp)
	}
	if ev.Payload.PriceRaw != "1500000000000000000" {
		t.Errorf("sale must take price from payment.quantity, got %q", ev.Payload.PriceRaw)
	}
	if ev.Payload.FromAddress != "0xSeller" || ev.Payload.ToAddress != "0xBuyer" {
		t.Errorf("unexpected parties: %+v", ev.Payload)
	}
}

func TestNormalizeRestTransfer(t *testing.T) {
	raw := RestEvent{
		EventType:       "transfer",
		ContractAddress: "0xc0ffee",
		TokenID:         "7",
		EventTimestamp:  1700000000,
		FromAddress:     "0xfrom",
		ToAddress:       "0xto",
	}

	ev := NormalizeRest(raw, "ethereum")
	if ev == nil {
		t.Fatalf("expected canonical event")
	}
	if ev.EventType != ItemTransferred {
		t.Errorf("unexpected event type: %s", ev.EventType)
	}
	if ev.Payload.FromAddress != "0xfrom" || ev.Payload.ToAddress != "0xto" {
		t.Errorf("transfer must use from_address/to_address, got %+v", ev.Payload)
	}
}

func TestNormalizeRestOrderTypes(t *testing.T) {
	cases := []struct {
		orderType string
		want      EventType
	}{
		{"listing", ItemListed},
		{"offer", ItemReceivedBid},
		{"item_offer", ItemReceivedBid},
		{"collection_offer", ItemReceivedBid},
	}
	for _, c := range cases {
		raw := RestEvent{EventType: "order", OrderType: c.orderType, ContractAddress: "0x1", TokenID: "1", EventTimestamp: 1}
		ev := NormalizeRest(raw, "ethereum")
		if ev == nil {
			t.Fatalf("order_type %q: expected canonical event", c.orderType)
		}
		if ev.EventType != c.want {
			t.Errorf("order_type %q: got %s, want %s", c.orderType, ev.EventType, c.want)
		}
	}
}

func TestNormalizeRestUnknownType(t *testing.T) {
	raw := RestEvent{EventType: "redemption", ContractAddress: "0x1", TokenID: "1"}
	if ev := NormalizeRest(raw, "ethereum"); ev != nil {
		t.Fatalf("unknown event type must not produce an event, got %+v", ev)
	}
	raw = RestEvent{EventType: "order", OrderType: "dutch_auction", ContractAddress: "0x1", TokenID: "1"}
	if ev := NormalizeRest(raw, "ethereum"); ev != nil {
		t.Fatalf("unknown order type must not produce an event, got %+v", ev)
	}
}

func TestNormalizeRestDeterministic(t *testing.T) {
	raw := RestEvent{
		EventType:       "sale",
		ContractAddress: "0xA",
		TokenID:         "1",
		EventTimestamp:  1700000000,
		Transaction:     "0x1",
		Payment:         &RestPayment{Quantity: "10"},
	}
	a := NormalizeRest(raw, "ethereum")
	b := NormalizeRest(raw, "ethereum")
	if a == nil || b == nil {
		t.Fatalf("expected events")
	}
	if *a != *b {
		t.Errorf("normalization is not deterministic: %+v vs %+v", a, b)
	}
	if a.SeenID() != b.SeenID() {
		t.Errorf("seen ids differ for identical input")
	}
}

func TestNormalizeStreamSold(t *testing.T) {
	raw := StreamEvent{
		EventType: "item_sold",
		Payload: StreamPayload{
			Item:           StreamItem{NftID: "ethereum/0xabc/9"},
			Collection:     StreamCollection{Slug: "cool-cats"},
			EventTimestamp: "2023-11-14T22:13:20Z",
			SalePrice:      "2000000000000000000",
			PaymentToken:   &StreamPaymentToken{Symbol: "WETH"},
			FromAccount:    &StreamAccount{Address: "0xSeller"},
			ToAccount:      &StreamAccount{Address: "0xBuyer"},
			Transaction:    &StreamTransaction{Hash: "0xfeed"},
		},
	}

	ev := NormalizeStream(raw)
	if ev == nil {
		t.Fatalf("expected canonical event")
	}
	if ev.EventType != ItemSold {
		t.Errorf("unexpected event type: %s", ev.EventType)
	}
	if ev.Payload.PriceRaw != "2000000000000000000" {
		t.Errorf("item_sold must take price from sale_price, got %q", ev.Payload.PriceRaw)
	}
	if ev.ItemID != "ethereum/0xabc/9" {
		t.Errorf("unexpected item id: %s", ev.ItemID)
	}
	if ev.TxHash != "0xfeed" {
		t.Errorf("unexpected tx hash: %s", ev.TxHash)
	}
	if ev.Payload.CollectionSlug != "cool-cats" {
		t.Errorf("unexpected collection: %s", ev.Payload.CollectionSlug)
	}
}

func TestNormalizeStreamTransferAccounts(t *testing.T) {
	raw := StreamEvent{
		EventType: "item_transferred",
		Payload: StreamPayload{
			Item:           StreamItem{NftID: "ethereum/0xabc/9"},
			EventTimestamp: "2023-11-14T22:13:20Z",
			FromAccount:    &StreamAccount{Address: "0xfrom"},
			ToAccount:      &StreamAccount{Address: "0xto"},
		},
	}

	ev := NormalizeStream(raw)
	if ev == nil {
		t.Fatalf("expected canonical event")
	}
	if ev.Payload.FromAddress != "0xfrom" || ev.Payload.ToAddress != "0xto" {
		t.Errorf("transfer must use from_account/to_account, got %+v", ev.Payload)
	}
}

func TestNormalizeStreamUnknownType(t *testing.T) {
	raw := StreamEvent{EventType: "collection_offer_created"}
	if ev := NormalizeStream(raw); ev != nil {
		t.Fatalf("unknown push type must not produce an event, got %+v", ev)
	}
}

func TestInvolves(t *testing.T) {
	ev := CanonicalEvent{Payload: Payload{FromAddress: "0xAbC", ToAddress: "0xDeF"}}
	if !ev.Involves("0xABC") {
		t.Errorf("expected case-insensitive match on from address")
	}
	if !ev.Involves("0xdef") {
		t.Errorf("expected case-insensitive match on to address")
	}
	if ev.Involves("0x123") {
		t.Errorf("unexpected match")
	}
	if ev.Involves("") {
		t.Errorf("empty wallet must never match")
	}
}
