package services

import (
	"sort"
	"time"

	"github.com/ghdlabs/ghd-market-maker/domain"
)

// Sequencer reorders per-order feed events into exchange sequence order.
// Events may arrive on the wire in any order; they are only released to the
// engine once every earlier sequence number for that order has been seen.
// A gap that stays open longer than gapWait signals a lost event and the
// engine must resync over REST.
type Sequencer struct {
	gapWait time.Duration
	next    map[string]int64
	pending map[string]map[int64]domain.FeedEvent
	gapOpen map[string]time.Time
}

func NewSequencer(gapWait time.Duration) *Sequencer {
	sequencer := &Sequencer{gapWait: gapWait}
	sequencer.Reset()
	return sequencer
}

// Push accepts one order event and returns every event now ready to apply,
// in sequence order. Duplicates (seq already applied) are dropped.
func (sequencer *Sequencer) Push(event domain.FeedEvent, now time.Time) []domain.FeedEvent {
	if !event.OrderEvent() {
		return nil
	}

	id := event.ClientOrderID
	next, seen := sequencer.next[id]
	if !seen {
		// per-order sequences start at 1
		next = 1
	}
	if event.Seq < next {
		return nil
	}

	if event.Seq > next {
		if sequencer.pending[id] == nil {
			sequencer.pending[id] = make(map[int64]domain.FeedEvent)
		}
		sequencer.pending[id][event.Seq] = event
		if _, open := sequencer.gapOpen[id]; !open {
			sequencer.gapOpen[id] = now
		}
		return nil
	}

	ready := []domain.FeedEvent{event}
	next++

	// drain any buffered successors
	for {
		buffered, ok := sequencer.pending[id][next]
		if !ok {
			break
		}
		delete(sequencer.pending[id], next)
		ready = append(ready, buffered)
		next++
	}

	sequencer.next[id] = next
	if len(sequencer.pending[id]) == 0 {
		delete(sequencer.pending, id)
		delete(sequencer.gapOpen, id)
	} else {
		sequencer.gapOpen[id] = now
	}

	sort.Slice(ready, func(i, j int) bool { return ready[i].Seq < ready[j].Seq })
	return ready
}

// GapExceeded reports whether any order has been waiting on a missing
// sequence number for longer than the bounded wait.
func (sequencer *Sequencer) GapExceeded(now time.Time) bool {
	for _, openedAt := range sequencer.gapOpen {
		if now.Sub(openedAt) > sequencer.gapWait {
			return true
		}
	}
	return false
}

// Forget drops all buffered state for one order, typically once terminal.
func (sequencer *Sequencer) Forget(clientOrderID string) {
	delete(sequencer.next, clientOrderID)
	delete(sequencer.pending, clientOrderID)
	delete(sequencer.gapOpen, clientOrderID)
}

// Reset drops everything. Called after a resync made the buffered history
// meaningless.
func (sequencer *Sequencer) Reset() {
	sequencer.next = make(map[string]int64)
	sequencer.pending = make(map[string]map[int64]domain.FeedEvent)
	sequencer.gapOpen = make(map[string]time.Time)
}
