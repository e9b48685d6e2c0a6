package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/ghdlabs/ghd-market-maker/domain"
)

type exchangeClient interface {
	PlaceOrder(ctx context.Context, order domain.Order) (PlaceResult, error)
	CancelOrder(ctx context.Context, exchangeOrderID string) (CancelResult, error)
	OpenOrders(ctx context.Context) ([]domain.Order, error)
	GetTicker(ctx context.Context) (Ticker, error)
	GetBalance(ctx context.Context) ([]Balance, error)
}

type quoteComputer interface {
	Compute(referencePrice float64, priceAge time.Duration, inventory float64, limits domain.RiskLimits, now time.Time) (domain.Quote, bool)
}

type quoteFilter interface {
	Filter(quote domain.Quote, inventory float64, openBuys int, openSells int) domain.Quote
	Limits() domain.RiskLimits
}

type fillRecorder interface {
	RecordFill(fill domain.Fill)
}

type engineNotifier interface {
	NotifyFill(order domain.Order, quantity float64, price float64)
	NotifyHalt(reason string)
}

type reconcilerLogger interface {
	Debugf(format string, args ...interface{})
	Printf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type ReconcilerConfig struct {
	Symbol          string
	Interval        time.Duration
	DriftTolerance  float64 // relative price/size drift that triggers cancel-then-place
	GapWait         time.Duration
	ShutdownTimeout time.Duration
}

// Reconciler is the single control loop. It owns OrderState, the local book
// and the position; every mutation of engine state happens on this loop, so
// none of them needs a lock. Each cycle it recomputes the target quote,
// diffs it against what is resting and converges with cancel-then-place.
// Exchange-pushed events are applied as they arrive, in per-order sequence
// order, out of band from the periodic cycle.
type Reconciler struct {
	cfg        ReconcilerConfig
	client     exchangeClient
	model      quoteComputer
	guard      quoteFilter
	state      *OrderState
	book       *Book
	volatility *Volatility
	sequencer  *Sequencer
	events     <-chan domain.FeedEvent
	fills      fillRecorder
	notifier   engineNotifier
	logger     reconcilerLogger

	position    domain.Position
	lastMid     float64
	paused      bool
	halted      bool
	needsResync bool

	pauseCh chan bool

	statusMu sync.RWMutex
	status   domain.EngineStatus
}

func NewReconciler(
	cfg ReconcilerConfig,
	client exchangeClient,
	model quoteComputer,
	guard quoteFilter,
	state *OrderState,
	book *Book,
	volatility *Volatility,
	events <-chan domain.FeedEvent,
	fills fillRecorder,
	notifier engineNotifier,
	logger reconcilerLogger,
) *Reconciler {
	return &Reconciler{
		cfg:        cfg,
		client:     client,
		model:      model,
		guard:      guard,
		state:      state,
		book:       book,
		volatility: volatility,
		sequencer:  NewSequencer(cfg.GapWait),
		events:     events,
		fills:      fills,
		notifier:   notifier,
		logger:     logger,
		pauseCh:    make(chan bool, 4),
	}
}

// Run drives the engine until the context is cancelled or a fatal error
// halts it. On any exit it attempts a best-effort cancel of all resting
// orders.
func (reconciler *Reconciler) Run(ctx context.Context) error {
	if err := reconciler.Startup(ctx); err != nil {
		reconciler.halt(err.Error())
		return err
	}
	reconciler.publishStatus()

	ticker := time.NewTicker(reconciler.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			reconciler.shutdown()
			return nil
		case paused := <-reconciler.pauseCh:
			reconciler.applyPause(ctx, paused)
		case event, ok := <-reconciler.events:
			if !ok {
				// feed closed; the nil channel blocks forever
				reconciler.events = nil
				continue
			}
			reconciler.HandleEvent(event, time.Now())
		case <-ticker.C:
			if err := reconciler.Tick(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					reconciler.shutdown()
					return nil
				}
				reconciler.halt(err.Error())
				reconciler.shutdown()
				return err
			}
		}
	}
}

// Startup checks credentials against the balance endpoint and reconciles
// whatever a prior run left resting before the first quote goes out.
func (reconciler *Reconciler) Startup(ctx context.Context) error {
	balances, err := reconciler.client.GetBalance(ctx)
	switch {
	case errors.Is(err, domain.ErrAuthentication):
		return err
	case err != nil:
		reconciler.logger.Warnf("startup balance check failed: %v", err)
	default:
		for _, balance := range balances {
			reconciler.logger.Printf("balance %s: free %f locked %f", balance.Asset, balance.Free, balance.Locked)
		}
	}

	if err := reconciler.resync(ctx); err != nil {
		if errors.Is(err, domain.ErrAuthentication) {
			return err
		}
		// not fatal: the loop refuses to quote until a resync succeeds
		reconciler.logger.Warnf("startup reconcile failed, retrying on next cycle: %v", err)
		reconciler.needsResync = true
	}

	// seed the book from REST so the first cycle does not have to wait for
	// the first feed message
	ticker, err := reconciler.client.GetTicker(ctx)
	if err != nil {
		reconciler.logger.Warnf("startup ticker fetch failed: %v", err)
	} else {
		reconciler.book.Apply(domain.FeedEvent{
			Type:    domain.EventOrderBook,
			BestBid: ticker.Bid,
			BestAsk: ticker.Ask,
		}, time.Now())
	}
	return nil
}

// HandleEvent applies one feed event. Market data feeds the book and the
// volatility window; order events pass through the sequencer and mutate
// OrderState immediately.
func (reconciler *Reconciler) HandleEvent(event domain.FeedEvent, now time.Time) {
	switch event.Type {
	case domain.EventOrderBook:
		reconciler.book.Apply(event, now)
	case domain.EventTrade:
		if reconciler.volatility != nil {
			reconciler.volatility.Observe(event.Price)
		}
	default:
		if !event.OrderEvent() {
			return
		}
		for _, ready := range reconciler.sequencer.Push(event, now) {
			reconciler.applyOrderEvent(ready, now)
		}
		reconciler.publishStatus()
	}
}

func (reconciler *Reconciler) applyOrderEvent(event domain.FeedEvent, now time.Time) {
	order, ok := reconciler.state.Get(event.ClientOrderID)
	if !ok {
		reconciler.logger.Warnf("%s event for unknown order %s", event.Type, event.ClientOrderID)
		reconciler.needsResync = true
		return
	}
	if event.Seq <= order.LastSeq {
		return // already accounted for, e.g. replayed after a resync
	}

	switch event.Type {
	case domain.EventFill:
		// a fill proves the order is live even if its place ack was lost,
		// or that our cancel race-lost
		if order.Status == domain.StatusSubmitting || order.Status == domain.StatusCancelling {
			_ = reconciler.state.Transition(order.ClientOrderID, domain.StatusOpen, now)
		}
		updated, err := reconciler.state.ApplyFill(order.ClientOrderID, event.Quantity, event.Seq, now)
		if err != nil {
			reconciler.logger.Warnf("fill conflict: %v", err)
			reconciler.needsResync = true
			return
		}
		reconciler.position.ApplyFill(updated.Side, event.Price, event.Quantity)
		reconciler.logger.Printf("fill %s %s %f @ %f (position %f)", updated.ClientOrderID, updated.Side, event.Quantity, event.Price, reconciler.position.Base)
		if reconciler.fills != nil {
			reconciler.fills.RecordFill(domain.Fill{
				ClientOrderID: updated.ClientOrderID,
				Side:          updated.Side,
				Price:         event.Price,
				Quantity:      event.Quantity,
				Seq:           event.Seq,
				Timestamp:     event.Timestamp,
			})
		}
		if reconciler.notifier != nil {
			reconciler.notifier.NotifyFill(updated, event.Quantity, event.Price)
		}
	case domain.EventCanceled:
		if err := reconciler.state.Transition(event.ClientOrderID, domain.StatusCancelled, now); err != nil {
			reconciler.logger.Warnf("cancel conflict: %v", err)
			reconciler.needsResync = true
		}
	case domain.EventRejected:
		if err := reconciler.state.Transition(event.ClientOrderID, domain.StatusRejected, now); err != nil {
			reconciler.logger.Warnf("reject conflict: %v", err)
			reconciler.needsResync = true
		} else {
			reconciler.logger.Warnf("order %s: %v", event.ClientOrderID, &domain.RejectionError{Reason: event.Reason})
		}
	}
}

// Tick is one reconciliation cycle.
func (reconciler *Reconciler) Tick(ctx context.Context) error {
	defer reconciler.publishStatus()
	now := time.Now()

	if reconciler.needsResync || reconciler.sequencer.GapExceeded(now) {
		if err := reconciler.resync(ctx); err != nil {
			if errors.Is(err, domain.ErrAuthentication) || errors.Is(err, context.Canceled) {
				return err
			}
			// never quote while out of sync
			reconciler.logger.Warnf("resync failed: %v", err)
			return nil
		}
	}

	if reconciler.paused {
		reconciler.evictTerminal()
		return nil
	}

	mid, okMid := reconciler.book.Mid()
	age := now.Sub(reconciler.book.UpdatedAt())

	var quote domain.Quote
	okQuote := false
	if okMid {
		reconciler.lastMid = mid
		quote, okQuote = reconciler.model.Compute(mid, age, reconciler.position.Base, reconciler.guard.Limits(), now)
	}
	if !okQuote {
		// stale or missing reference price: pull everything and wait
		reconciler.logger.Debugf("%v (mid known: %t, age %s), cancelling resting orders", domain.ErrStaleData, okMid, age)
		if err := reconciler.cancelAllActive(ctx, now); err != nil {
			return err
		}
		reconciler.evictTerminal()
		return nil
	}

	inFlightBuys := reconciler.countInFlight(domain.SideBuy)
	inFlightSells := reconciler.countInFlight(domain.SideSell)
	quote = reconciler.guard.Filter(quote, reconciler.position.Base, inFlightBuys, inFlightSells)

	if err := reconciler.reconcileSide(ctx, domain.SideBuy, quote.Bid, now); err != nil {
		return err
	}
	if err := reconciler.reconcileSide(ctx, domain.SideSell, quote.Ask, now); err != nil {
		return err
	}

	reconciler.evictTerminal()
	return nil
}

// reconcileSide converges one side toward the desired level: keep a resting
// order that still matches within tolerance, cancel everything else, and
// place a fresh order only once the side is clear (cancel-then-place, never
// a blind replace).
func (reconciler *Reconciler) reconcileSide(ctx context.Context, side domain.Side, level domain.QuoteLevel, now time.Time) error {
	keeper := ""
	for _, order := range reconciler.state.ListBySide(side) {
		switch order.Status {
		case domain.StatusSubmitting, domain.StatusCancelling:
			// unresolved in-flight order; events or a resync settle it
			continue
		}
		if level.Size > 0 && keeper == "" && reconciler.withinTolerance(order, level) {
			keeper = order.ClientOrderID
			continue
		}
		if err := reconciler.cancelOrder(ctx, order, now); err != nil {
			return err
		}
	}

	if level.Size <= 0 || keeper != "" {
		return nil
	}
	if len(reconciler.state.ListBySide(side)) > 0 {
		// the side is not clear yet; place on a later cycle
		return nil
	}
	if reconciler.guard.Limits().MaxOpenOrdersPerSide < 1 {
		return nil
	}
	return reconciler.placeOrder(ctx, side, level, now)
}

func (reconciler *Reconciler) withinTolerance(order domain.Order, level domain.QuoteLevel) bool {
	if level.Price <= 0 {
		return false
	}
	priceDrift := math.Abs(order.Price-level.Price) / level.Price
	sizeDrift := math.Abs(order.Remaining()-level.Size) / level.Size
	return priceDrift <= reconciler.cfg.DriftTolerance && sizeDrift <= reconciler.cfg.DriftTolerance
}

func (reconciler *Reconciler) placeOrder(ctx context.Context, side domain.Side, level domain.QuoteLevel, now time.Time) error {
	order := domain.Order{
		ClientOrderID: reconciler.state.NewClientOrderID(),
		Symbol:        reconciler.cfg.Symbol,
		Side:          side,
		Price:         level.Price,
		Quantity:      level.Size,
		Status:        domain.StatusIntent,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	reconciler.state.Upsert(order)
	_ = reconciler.state.Transition(order.ClientOrderID, domain.StatusSubmitting, now)

	result, err := reconciler.client.PlaceOrder(ctx, order)
	if err != nil {
		return err
	}

	switch result.Outcome {
	case PlaceAccepted:
		accepted, _ := reconciler.state.Get(order.ClientOrderID)
		accepted.ExchangeOrderID = result.ExchangeOrderID
		reconciler.state.Upsert(accepted)
		_ = reconciler.state.Transition(order.ClientOrderID, domain.StatusOpen, now)
		if result.Status.Terminal() {
			// acknowledged but already closed on the exchange side
			reconciler.needsResync = true
		}
		reconciler.logger.Printf("placed %s %s %f @ %f", order.ClientOrderID, side, level.Size, level.Price)
	case PlaceRejected:
		_ = reconciler.state.Transition(order.ClientOrderID, domain.StatusRejected, now)
		reconciler.logger.Warnf("order %s: %v", order.ClientOrderID, &domain.RejectionError{Reason: result.Reason})
	case PlaceUnknown:
		// outcome unknown: the order stays SUBMITTING and nothing touches
		// it until a resync reveals whether it is resting
		reconciler.needsResync = true
		reconciler.logger.Warnf("order %s outcome unknown, resync scheduled", order.ClientOrderID)
	}
	return nil
}

func (reconciler *Reconciler) cancelOrder(ctx context.Context, order domain.Order, now time.Time) error {
	if order.ExchangeOrderID == "" {
		reconciler.needsResync = true
		return nil
	}
	_ = reconciler.state.Transition(order.ClientOrderID, domain.StatusCancelling, now)

	result, err := reconciler.client.CancelOrder(ctx, order.ExchangeOrderID)
	if err != nil {
		return err
	}

	switch result.Outcome {
	case CancelDone:
		_ = reconciler.state.Transition(order.ClientOrderID, domain.StatusCancelled, now)
		reconciler.logger.Printf("cancelled %s", order.ClientOrderID)
	case CancelAlreadyTerminal, CancelNotFound, CancelUnknown:
		// two views disagree; the next resync takes the exchange as truth
		reconciler.needsResync = true
	}
	return nil
}

func (reconciler *Reconciler) cancelAllActive(ctx context.Context, now time.Time) error {
	for _, order := range reconciler.state.ListActive() {
		if order.Status == domain.StatusSubmitting || order.Status == domain.StatusCancelling {
			continue
		}
		if err := reconciler.cancelOrder(ctx, order, now); err != nil {
			return err
		}
	}
	return nil
}

// resync pulls the exchange's open orders and treats them as authoritative:
// local orders it confirms are adopted (id, status, missed fills), local
// orders it does not know are closed out, and resting orders the engine
// does not recognize are cancelled. This also runs once at startup so a
// crashed predecessor cannot leave orphaned exposure.
func (reconciler *Reconciler) resync(ctx context.Context) error {
	open, err := reconciler.client.OpenOrders(ctx)
	if err != nil {
		return err
	}
	now := time.Now()

	remote := make(map[string]domain.Order, len(open))
	for _, order := range open {
		remote[order.ClientOrderID] = order
	}

	for _, local := range reconciler.state.Snapshot() {
		if local.Status.Terminal() {
			continue
		}

		confirmed, resting := remote[local.ClientOrderID]
		if !resting {
			// not on the exchange: the place never landed or the order
			// closed while we were out of sync
			reconciler.logger.Warnf("order %s not on exchange, closing locally (was %s)", local.ClientOrderID, local.Status)
			local.Status = domain.StatusCancelled
			local.LastUpdatedAt = now
			reconciler.state.Upsert(local)
			continue
		}
		delete(remote, local.ClientOrderID)

		if confirmed.FilledQuantity > local.FilledQuantity {
			missed := confirmed.FilledQuantity - local.FilledQuantity
			reconciler.position.ApplyFill(local.Side, local.Price, missed)
			reconciler.logger.Warnf("order %s: %f filled while out of sync", local.ClientOrderID, missed)
		}

		local.ExchangeOrderID = confirmed.ExchangeOrderID
		local.FilledQuantity = confirmed.FilledQuantity
		local.Status = confirmed.Status
		local.LastUpdatedAt = now
		reconciler.state.Upsert(local)
	}

	// whatever is left is resting exposure this process never created
	for _, orphan := range remote {
		reconciler.logger.Warnf("cancelling unrecognized order %s", orphan.ExchangeOrderID)
		if _, err := reconciler.client.CancelOrder(ctx, orphan.ExchangeOrderID); err != nil {
			return err
		}
	}

	reconciler.sequencer.Reset()
	reconciler.needsResync = false
	return nil
}

func (reconciler *Reconciler) countInFlight(side domain.Side) int {
	count := 0
	for _, order := range reconciler.state.ListBySide(side) {
		if order.Status == domain.StatusSubmitting || order.Status == domain.StatusCancelling {
			count++
		}
	}
	return count
}

func (reconciler *Reconciler) evictTerminal() {
	for _, order := range reconciler.state.EvictTerminal() {
		reconciler.sequencer.Forget(order.ClientOrderID)
	}
}

func (reconciler *Reconciler) applyPause(ctx context.Context, paused bool) {
	reconciler.paused = paused
	if paused {
		reconciler.logger.Printf("quoting paused")
		if err := reconciler.cancelAllActive(ctx, time.Now()); err != nil {
			reconciler.logger.Warnf("cancel on pause: %v", err)
		}
	} else {
		reconciler.logger.Printf("quoting resumed")
	}
	reconciler.publishStatus()
}

func (reconciler *Reconciler) halt(reason string) {
	reconciler.halted = true
	reconciler.logger.Errorf("engine halted: %s", reason)
	if reconciler.notifier != nil {
		reconciler.notifier.NotifyHalt(reason)
	}
	reconciler.publishStatus()
}

// shutdown is the best-effort cancel-all on the way out, on a fresh context
// because the run context is usually already cancelled.
func (reconciler *Reconciler) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), reconciler.cfg.ShutdownTimeout)
	defer cancel()

	if err := reconciler.cancelAllActive(ctx, time.Now()); err != nil {
		reconciler.logger.Warnf("shutdown cancel-all: %v", err)
	}
	reconciler.evictTerminal()
	reconciler.publishStatus()
	reconciler.logger.Printf("engine stopped")
}

// SetPaused asks the loop to pause or resume quoting. Pausing cancels all
// resting orders. Safe to call from other goroutines.
func (reconciler *Reconciler) SetPaused(paused bool) {
	reconciler.pauseCh <- paused
}

// Status returns the snapshot published after the last cycle. Safe to call
// from other goroutines.
func (reconciler *Reconciler) Status() domain.EngineStatus {
	reconciler.statusMu.RLock()
	defer reconciler.statusMu.RUnlock()
	return reconciler.status
}

func (reconciler *Reconciler) publishStatus() {
	snapshot := domain.EngineStatus{
		Symbol:       reconciler.cfg.Symbol,
		Position:     reconciler.position.Base,
		AverageCost:  reconciler.position.AverageCost,
		LastMid:      reconciler.lastMid,
		Paused:       reconciler.paused,
		Halted:       reconciler.halted,
		ActiveOrders: reconciler.state.ListActive(),
		UpdatedAt:    time.Now(),
	}

	reconciler.statusMu.Lock()
	reconciler.status = snapshot
	reconciler.statusMu.Unlock()
}
