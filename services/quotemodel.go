package services

import (
	"math"
	"time"

	"github.com/ghdlabs/ghd-market-maker/domain"
)

// QuoteParams configures the pricing model. Immutable after load.
type QuoteParams struct {
	Spread      float64 // full bid-to-ask spread as a fraction of the reference price
	SkewFactor  float64 // how hard inventory pushes both quotes
	ClipSize    float64 // standard order quantity per refresh
	TickSize    float64
	QtyStep     float64
	MinNotional float64
	StaleAfter  time.Duration // refuse to quote off older data
	VolFactor   float64       // spread widening per unit of relative volatility; 0 disables
}

type volatilitySource interface {
	StdDev() (float64, bool)
}

// QuoteModel computes the desired bid/ask pair from the reference price and
// current inventory. It is deterministic given its inputs and does no I/O.
type QuoteModel struct {
	params     QuoteParams
	volatility volatilitySource
}

func NewQuoteModel(params QuoteParams, volatility volatilitySource) *QuoteModel {
	return &QuoteModel{params: params, volatility: volatility}
}

// Compute returns the target quote, or false when the reference price is
// stale: the engine then cancels resting orders and pauses instead of
// quoting off dead data.
//
// The half-spread is Spread/2, widened by volatility when configured and
// floored by the configured minimum spread. Inventory skews both quotes
// down when long and up when short:
//
//	k   = clamp(inventory/maxPosition, -1, 1)
//	bid = ref * (1 - s - k*skewFactor)
//	ask = ref * (1 + s - k*skewFactor)
//
// Size starts at the clip size and shrinks to zero as inventory approaches
// the limit on the side that would increase exposure.
func (model *QuoteModel) Compute(referencePrice float64, priceAge time.Duration, inventory float64, limits domain.RiskLimits, now time.Time) (domain.Quote, bool) {
	if referencePrice <= 0 || priceAge > model.params.StaleAfter {
		return domain.Quote{}, false
	}

	halfSpread := model.params.Spread / 2
	if model.params.VolFactor > 0 && model.volatility != nil {
		if deviation, ok := model.volatility.StdDev(); ok {
			halfSpread += model.params.VolFactor * deviation / referencePrice
		}
	}
	if halfSpread < limits.MinSpread/2 {
		halfSpread = limits.MinSpread / 2
	}

	skew := 0.0
	if limits.MaxPosition > 0 {
		skew = clamp(inventory/limits.MaxPosition, -1, 1)
	}

	bidPrice := roundDown(referencePrice*(1-halfSpread-skew*model.params.SkewFactor), model.params.TickSize)
	askPrice := roundUp(referencePrice*(1+halfSpread-skew*model.params.SkewFactor), model.params.TickSize)

	bidSize := roundDown(model.params.ClipSize*sizeScale(skew), model.params.QtyStep)
	askSize := roundDown(model.params.ClipSize*sizeScale(-skew), model.params.QtyStep)

	if bidPrice <= 0 || bidSize*bidPrice < model.params.MinNotional {
		bidSize = 0
	}
	if askSize*askPrice < model.params.MinNotional {
		askSize = 0
	}

	return domain.Quote{
		Bid:         domain.QuoteLevel{Price: bidPrice, Size: bidSize},
		Ask:         domain.QuoteLevel{Price: askPrice, Size: askSize},
		GeneratedAt: now,
	}, true
}

// sizeScale shrinks the clip linearly to zero as the skew toward this side
// reaches 1, i.e. as inventory reaches the limit this side would extend.
func sizeScale(skew float64) float64 {
	scale := 1 - math.Max(0, skew)
	if scale < 0 {
		return 0
	}
	return scale
}

func clamp(value float64, low float64, high float64) float64 {
	return math.Min(math.Max(value, low), high)
}

func roundDown(value float64, step float64) float64 {
	if step <= 0 {
		return value
	}
	return math.Floor(value/step+1e-9) * step
}

func roundUp(value float64, step float64) float64 {
	if step <= 0 {
		return value
	}
	return math.Ceil(value/step-1e-9) * step
}
