package services

import (
	"time"

	"github.com/ghdlabs/ghd-market-maker/domain"
	"github.com/google/btree"
)

type bookLevel struct {
	price    float64
	quantity float64
}

// bid side orders price descending so Min() is the best bid
func bidLess(a, b bookLevel) bool {
	return a.price > b.price
}

// ask side orders price ascending so Min() is the best ask
func askLess(a, b bookLevel) bool {
	return a.price < b.price
}

// Book is the engine's local view of the market, fed by orderbook events.
// Only the reconciliation loop touches it, so it carries no lock. A feed
// message may carry full depth levels (quantity zero deletes a level) or
// just the top of book.
type Book struct {
	bids      *btree.BTreeG[bookLevel]
	asks      *btree.BTreeG[bookLevel]
	updatedAt time.Time
}

func NewBook() *Book {
	const degree = 16
	return &Book{
		bids: btree.NewG[bookLevel](degree, bidLess),
		asks: btree.NewG[bookLevel](degree, askLess),
	}
}

func (book *Book) Apply(event domain.FeedEvent, now time.Time) {
	if event.Type != domain.EventOrderBook {
		return
	}

	for _, level := range event.Bids {
		book.applyLevel(book.bids, level)
	}
	for _, level := range event.Asks {
		book.applyLevel(book.asks, level)
	}

	// top-of-book-only message: replace the whole side
	if len(event.Bids) == 0 && event.BestBid > 0 {
		book.bids.Clear(false)
		book.bids.ReplaceOrInsert(bookLevel{price: event.BestBid, quantity: 1})
	}
	if len(event.Asks) == 0 && event.BestAsk > 0 {
		book.asks.Clear(false)
		book.asks.ReplaceOrInsert(bookLevel{price: event.BestAsk, quantity: 1})
	}

	book.updatedAt = now
}

func (book *Book) applyLevel(side *btree.BTreeG[bookLevel], level domain.PriceLevel) {
	entry := bookLevel{price: level.Price(), quantity: level.Quantity()}
	if entry.quantity == 0 {
		side.Delete(entry)
		return
	}
	side.ReplaceOrInsert(entry)
}

func (book *Book) BestBid() (float64, bool) {
	level, ok := book.bids.Min()
	return level.price, ok
}

func (book *Book) BestAsk() (float64, bool) {
	level, ok := book.asks.Min()
	return level.price, ok
}

// Mid is the reference price fed to the quote model.
func (book *Book) Mid() (float64, bool) {
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// UpdatedAt is when the book last changed; the quote model uses it to
// refuse quoting off stale data.
func (book *Book) UpdatedAt() time.Time {
	return book.updatedAt
}
