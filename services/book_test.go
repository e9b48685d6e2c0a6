package services_test

import (
	"testing"
	"time"

	"github.com/ghdlabs/ghd-market-maker/domain"
	"github.com/ghdlabs/ghd-market-maker/services"
	"github.com/stretchr/testify/assert"
)

func TestBookTopOfBook(t *testing.T) {
	book := services.NewBook()

	_, ok := book.Mid()
	assert.False(t, ok)

	now := time.Now()
	book.Apply(domain.FeedEvent{Type: domain.EventOrderBook, BestBid: 99.9, BestAsk: 100.1}, now)

	mid, ok := book.Mid()
	assert.True(t, ok)
	assert.InDelta(t, 100.0, mid, 1e-9)
	assert.Equal(t, now, book.UpdatedAt())
}

func TestBookDepthLevels(t *testing.T) {
	book := services.NewBook()

	book.Apply(domain.FeedEvent{
		Type: domain.EventOrderBook,
		Bids: []domain.PriceLevel{{99.5, 10}, {99.8, 5}, {99.2, 20}},
		Asks: []domain.PriceLevel{{100.4, 8}, {100.2, 3}},
	}, time.Now())

	bid, ok := book.BestBid()
	assert.True(t, ok)
	assert.Equal(t, 99.8, bid)

	ask, ok := book.BestAsk()
	assert.True(t, ok)
	assert.Equal(t, 100.2, ask)
}

func TestBookZeroQuantityRemovesLevel(t *testing.T) {
	book := services.NewBook()

	book.Apply(domain.FeedEvent{
		Type: domain.EventOrderBook,
		Bids: []domain.PriceLevel{{99.8, 5}, {99.5, 10}},
		Asks: []domain.PriceLevel{{100.2, 3}},
	}, time.Now())

	book.Apply(domain.FeedEvent{
		Type: domain.EventOrderBook,
		Bids: []domain.PriceLevel{{99.8, 0}},
	}, time.Now())

	bid, ok := book.BestBid()
	assert.True(t, ok)
	assert.Equal(t, 99.5, bid)
}

func TestBookIgnoresNonBookEvents(t *testing.T) {
	book := services.NewBook()

	book.Apply(domain.FeedEvent{Type: domain.EventTrade, Price: 100}, time.Now())

	_, ok := book.Mid()
	assert.False(t, ok)
}
