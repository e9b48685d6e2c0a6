package domain

type EventType string

const (
	EventSubscribed = EventType("subscribed")
	EventOrderBook  = EventType("orderbook")
	EventTrade      = EventType("trade")
	EventFill       = EventType("fill")
	EventCanceled   = EventType("canceled")
	EventRejected   = EventType("rejected")
)

// PriceLevel is a [price, quantity] pair as sent on the feed.
type PriceLevel [2]float64

func (level PriceLevel) Price() float64    { return level[0] }
func (level PriceLevel) Quantity() float64 { return level[1] }

// FeedEvent is the envelope for every message pushed on the market-data
// stream. Which fields are set depends on Type.
type FeedEvent struct {
	Type   EventType `json:"type"`
	Symbol string    `json:"symbol"`

	// orderbook
	BestBid float64      `json:"bestBid,omitempty"`
	BestAsk float64      `json:"bestAsk,omitempty"`
	Bids    []PriceLevel `json:"bids,omitempty"`
	Asks    []PriceLevel `json:"asks,omitempty"`

	// trade and fill
	Price    float64 `json:"price,omitempty"`
	Quantity float64 `json:"quantity,omitempty"`

	// order events; Seq is strictly increasing per order
	ClientOrderID   string `json:"clientOrderId,omitempty"`
	ExchangeOrderID string `json:"orderId,omitempty"`
	Seq             int64  `json:"seq,omitempty"`
	Reason          string `json:"reason,omitempty"`

	Timestamp int64 `json:"ts,omitempty"`
}

// OrderEvent reports whether the event targets a single order and must be
// applied in per-order sequence order.
func (event FeedEvent) OrderEvent() bool {
	switch event.Type {
	case EventFill, EventCanceled, EventRejected:
		return true
	}
	return false
}

// Fill is one confirmed execution, recorded for the archive.
type Fill struct {
	ID            uint   `gorm:"primaryKey"`
	ClientOrderID string `json:"clientOrderId"`
	Side          Side
	Price         float64
	Quantity      float64
	Seq           int64
	Timestamp     int64
}
