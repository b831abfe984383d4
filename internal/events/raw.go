package events

// Raw upstream shapes. The REST events endpoint and the push transport use
// different field names for the same facts; both are mapped onto
// CanonicalEvent by the normalizer.

// RestEvent is the REST-native asset event shape.
type RestEvent struct {
	EventType       string       `json:"event_type"`
	OrderType       string       `json:"order_type,omitempty"`
	Chain           string       `json:"chain,omitempty"`
	ContractAddress string       `json:"contract_address"`
	TokenID         string       `json:"token_id"`
	Collection      string       `json:"collection,omitempty"`
	EventTimestamp  int64        `json:"event_timestamp"`
	Transaction     string       `json:"transaction,omitempty"`
	FromAddress     string       `json:"from_address,omitempty"`
	ToAddress       string       `json:"to_address,omitempty"`
	Seller          string       `json:"seller,omitempty"`
	Buyer           string       `json:"buyer,omitempty"`
	Maker           string       `json:"maker,omitempty"`
	Payment         *RestPayment `json:"payment,omitempty"`
}

// RestPayment is the payment block attached to sale and order events.
type RestPayment struct {
	Quantity string `json:"quantity"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// StreamEvent is the push-native message delivered on a collection topic.
type StreamEvent struct {
	EventType string        `json:"event_type"`
	SentAt    string        `json:"sent_at,omitempty"`
	Payload   StreamPayload `json:"payload"`
}

// StreamPayload is the push-native event body.
type StreamPayload struct {
	Item           StreamItem          `json:"item"`
	Collection     StreamCollection    `json:"collection"`
	EventTimestamp string              `json:"event_timestamp"`
	SalePrice      string              `json:"sale_price,omitempty"`
	BasePrice      string              `json:"base_price,omitempty"`
	PaymentToken   *StreamPaymentToken `json:"payment_token,omitempty"`
	FromAccount    *StreamAccount      `json:"from_account,omitempty"`
	ToAccount      *StreamAccount      `json:"to_account,omitempty"`
	Maker          *StreamAccount      `json:"maker,omitempty"`
	Transaction    *StreamTransaction  `json:"transaction,omitempty"`
}

// StreamItem identifies the NFT; NftID is already the
// chain/contract/tokenId composite.
type StreamItem struct {
	NftID string `json:"nft_id"`
}

type StreamCollection struct {
	Slug string `json:"slug"`
}

type StreamAccount struct {
	Address string `json:"address"`
}

type StreamTransaction struct {
	Hash string `json:"hash"`
}

type StreamPaymentToken struct {
	Symbol string `json:"symbol"`
}
