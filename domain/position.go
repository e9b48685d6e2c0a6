package domain

// Position is the net base-asset holding from the engine's own trading.
// It is updated only by applying confirmed fills.
type Position struct {
	Base        float64
	AverageCost float64
}

// ApplyFill updates the holding and its average cost with a confirmed fill.
// Fills that extend the position move the average cost toward the fill
// price; fills that reduce it leave the average cost untouched; fills that
// flip the sign restart the average cost at the fill price.
func (position *Position) ApplyFill(side Side, price float64, quantity float64) {
	signed := quantity
	if side == SideSell {
		signed = -quantity
	}

	previous := position.Base
	position.Base += signed

	switch {
	case previous == 0 || (previous > 0) == (signed > 0):
		total := abs(previous) + quantity
		if total > 0 {
			position.AverageCost = (position.AverageCost*abs(previous) + price*quantity) / total
		}
	case (position.Base > 0) != (previous > 0) && position.Base != 0:
		position.AverageCost = price
	case position.Base == 0:
		position.AverageCost = 0
	}
}

func abs(value float64) float64 {
	if value < 0 {
		return -value
	}
	return value
}
