package domain

import "time"

type Side string

const (
	SideBuy  = Side("BUY")
	SideSell = Side("SELL")
)

type OrderStatus string

const (
	StatusIntent          = OrderStatus("INTENT")
	StatusSubmitting      = OrderStatus("SUBMITTING")
	StatusOpen            = OrderStatus("OPEN")
	StatusPartiallyFilled = OrderStatus("PARTIALLY_FILLED")
	StatusCancelling      = OrderStatus("CANCELLING")
	StatusFilled          = OrderStatus("FILLED")
	StatusCancelled       = OrderStatus("CANCELLED")
	StatusRejected        = OrderStatus("REJECTED")
)

// Terminal statuses never transition again.
func (status OrderStatus) Terminal() bool {
	switch status {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

var allowedTransitions = map[OrderStatus][]OrderStatus{
	StatusIntent:          {StatusSubmitting},
	StatusSubmitting:      {StatusOpen, StatusRejected},
	StatusOpen:            {StatusPartiallyFilled, StatusFilled, StatusCancelling, StatusCancelled},
	StatusPartiallyFilled: {StatusPartiallyFilled, StatusFilled, StatusCancelling, StatusCancelled},
	StatusCancelling:      {StatusCancelled, StatusOpen},
}

// CanTransition reports whether the status may move to the given status.
// A transition to the current status is a no-op and always allowed.
func (status OrderStatus) CanTransition(to OrderStatus) bool {
	if status == to {
		return true
	}
	for _, allowed := range allowedTransitions[status] {
		if allowed == to {
			return true
		}
	}
	return false
}

type Order struct {
	ClientOrderID   string `json:"clientOrderId" gorm:"primaryKey"`
	ExchangeOrderID string `json:"exchangeOrderId"`
	Symbol          string `json:"symbol"`
	Side            Side   `json:"side"`
	Price           float64
	Quantity        float64
	FilledQuantity  float64
	Status          OrderStatus
	LastSeq         int64
	CreatedAt       time.Time
	LastUpdatedAt   time.Time
}

func (order Order) Active() bool {
	return !order.Status.Terminal()
}

func (order Order) Remaining() float64 {
	return order.Quantity - order.FilledQuantity
}
