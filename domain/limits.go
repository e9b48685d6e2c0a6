package domain

// RiskLimits bounds the engine's exposure. Immutable after load.
type RiskLimits struct {
	MaxPosition          float64
	MaxOrderSize         float64
	MaxOpenOrdersPerSide int
	MinSpread            float64 // fraction of the reference price
}
