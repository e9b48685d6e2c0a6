package services

import (
	"github.com/ghdlabs/ghd-market-maker/domain"
)

// RiskGuard is the last gate before placement: it clamps or zeroes quote
// sizes that would breach the configured limits. It runs after the quote
// model on every cycle and is never bypassed.
type RiskGuard struct {
	limits domain.RiskLimits
}

func NewRiskGuard(limits domain.RiskLimits) *RiskGuard {
	return &RiskGuard{limits: limits}
}

func (guard *RiskGuard) Limits() domain.RiskLimits {
	return guard.limits
}

// Filter returns the quote with sizes reduced so that no fill could push
// the position past MaxPosition, no order exceeds MaxOrderSize, and no side
// exceeds MaxOpenOrdersPerSide.
func (guard *RiskGuard) Filter(quote domain.Quote, inventory float64, openBuys int, openSells int) domain.Quote {
	if quote.Bid.Size > guard.limits.MaxOrderSize {
		quote.Bid.Size = guard.limits.MaxOrderSize
	}
	if quote.Ask.Size > guard.limits.MaxOrderSize {
		quote.Ask.Size = guard.limits.MaxOrderSize
	}

	// project the worst case: every resting quote fills completely
	if inventory+quote.Bid.Size > guard.limits.MaxPosition {
		quote.Bid.Size = max(0, guard.limits.MaxPosition-inventory)
	}
	if inventory-quote.Ask.Size < -guard.limits.MaxPosition {
		quote.Ask.Size = max(0, inventory+guard.limits.MaxPosition)
	}

	if openBuys >= guard.limits.MaxOpenOrdersPerSide {
		quote.Bid.Size = 0
	}
	if openSells >= guard.limits.MaxOpenOrdersPerSide {
		quote.Ask.Size = 0
	}

	return quote
}

func max(a float64, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
