package domain

import "time"

// QuoteLevel is one side of a desired quote. A zero size means the side
// should not be quoted.
type QuoteLevel struct {
	Price float64
	Size  float64
}

// Quote is the desired bid/ask pair for one refresh cycle. It is recomputed
// every cycle and never persisted.
type Quote struct {
	Bid         QuoteLevel
	Ask         QuoteLevel
	GeneratedAt time.Time
}
