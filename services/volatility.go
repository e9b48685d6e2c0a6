package services

import (
	talib "github.com/markcheno/go-talib"
)

// Volatility keeps a bounded window of recent trade prices and exposes
// their standard deviation, used to widen the quoted spread in fast markets.
type Volatility struct {
	window     []float64
	maxSamples int
	minSamples int
}

func NewVolatility(maxSamples int, minSamples int) *Volatility {
	if minSamples < 2 {
		minSamples = 2
	}
	return &Volatility{maxSamples: maxSamples, minSamples: minSamples}
}

func (volatility *Volatility) Observe(price float64) {
	volatility.window = append(volatility.window, price)
	if len(volatility.window) > volatility.maxSamples {
		volatility.window = volatility.window[1:]
	}
}

// StdDev returns the standard deviation over the window, or false until
// enough samples have been observed.
func (volatility *Volatility) StdDev() (float64, bool) {
	if len(volatility.window) < volatility.minSamples {
		return 0, false
	}
	deviations := talib.StdDev(volatility.window, len(volatility.window), 1.0)
	return deviations[len(deviations)-1], true
}
