package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/ghdlabs/ghd-market-maker/domain"
	"github.com/google/uuid"
)

type orderArchive interface {
	ArchiveOrder(order domain.Order)
}

type orderStateLogger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// OrderState is the single source of truth for what the engine believes is
// resting on the exchange, keyed by clientOrderId. Only the reconciliation
// loop mutates it; everyone else reads snapshots, so it carries no lock.
type OrderState struct {
	orders  map[string]domain.Order
	archive orderArchive
	logger  orderStateLogger
}

func NewOrderState(archive orderArchive, logger orderStateLogger) *OrderState {
	return &OrderState{
		orders:  make(map[string]domain.Order),
		archive: archive,
		logger:  logger,
	}
}

// NewClientOrderID mints the idempotency key for one order. Never reused
// for the lifetime of the process.
func (state *OrderState) NewClientOrderID() string {
	return uuid.NewString()
}

func (state *OrderState) Upsert(order domain.Order) {
	state.orders[order.ClientOrderID] = order
}

func (state *OrderState) Get(clientOrderID string) (domain.Order, bool) {
	order, ok := state.orders[clientOrderID]
	return order, ok
}

// Transition moves the order forward through the lifecycle state machine.
// Transitions to the current status are no-ops; anything the state machine
// forbids is a reconciliation conflict reported to the caller.
func (state *OrderState) Transition(clientOrderID string, to domain.OrderStatus, now time.Time) error {
	order, ok := state.orders[clientOrderID]
	if !ok {
		return fmt.Errorf("order %s: %w", clientOrderID, domain.ErrReconciliationConflict)
	}
	if order.Status == to {
		return nil
	}
	if !order.Status.CanTransition(to) {
		return fmt.Errorf("order %s: %s -> %s: %w", clientOrderID, order.Status, to, domain.ErrReconciliationConflict)
	}

	order.Status = to
	order.LastUpdatedAt = now
	state.orders[clientOrderID] = order
	state.logger.Debugf("order %s -> %s", clientOrderID, to)
	return nil
}

// ApplyFill adds an execution to the order and advances its status. The
// filled quantity never exceeds the order quantity.
func (state *OrderState) ApplyFill(clientOrderID string, quantity float64, seq int64, now time.Time) (domain.Order, error) {
	order, ok := state.orders[clientOrderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("fill for unknown order %s: %w", clientOrderID, domain.ErrReconciliationConflict)
	}
	if order.Status.Terminal() {
		return order, fmt.Errorf("fill for terminal order %s: %w", clientOrderID, domain.ErrReconciliationConflict)
	}

	order.FilledQuantity += quantity
	if order.FilledQuantity > order.Quantity {
		state.logger.Warnf("order %s overfilled by %f, capping", clientOrderID, order.FilledQuantity-order.Quantity)
		order.FilledQuantity = order.Quantity
	}
	if seq > order.LastSeq {
		order.LastSeq = seq
	}

	if order.FilledQuantity >= order.Quantity {
		order.Status = domain.StatusFilled
	} else {
		order.Status = domain.StatusPartiallyFilled
	}
	order.LastUpdatedAt = now

	state.orders[clientOrderID] = order
	return order, nil
}

// ListActive returns all non-terminal orders, oldest first.
func (state *OrderState) ListActive() []domain.Order {
	var active []domain.Order
	for _, order := range state.orders {
		if order.Active() {
			active = append(active, order)
		}
	}
	sortByCreation(active)
	return active
}

func (state *OrderState) ListBySide(side domain.Side) []domain.Order {
	var orders []domain.Order
	for _, order := range state.orders {
		if order.Active() && order.Side == side {
			orders = append(orders, order)
		}
	}
	sortByCreation(orders)
	return orders
}

// EvictTerminal removes fully reconciled terminal orders from the active
// mapping and hands them to the archive. A terminal order never reappears.
func (state *OrderState) EvictTerminal() []domain.Order {
	var evicted []domain.Order
	for id, order := range state.orders {
		if order.Status.Terminal() {
			delete(state.orders, id)
			if state.archive != nil {
				state.archive.ArchiveOrder(order)
			}
			evicted = append(evicted, order)
		}
	}
	sortByCreation(evicted)
	return evicted
}

// Snapshot returns a copy of every tracked order for read-only consumers.
func (state *OrderState) Snapshot() []domain.Order {
	orders := make([]domain.Order, 0, len(state.orders))
	for _, order := range state.orders {
		orders = append(orders, order)
	}
	sortByCreation(orders)
	return orders
}

func sortByCreation(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ClientOrderID < orders[j].ClientOrderID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}
