// Package risk turns a meta decision into a sized, bounded position
// request: base allocation, Kelly cap, volatility adjustment, regime
// multiplier, breaker scale-down, concentration cap, and a stop-loss price.
package risk

import (
	"math"

	"github.com/tradecore/decision-core/internal/domain"
	"github.com/tradecore/decision-core/pkg/formulas"
)

// Config holds the tunables for the sizing cascade.
type Config struct {
	BasePercent        float64
	MaxPositionPercent float64
	KellyFractionCap   float64
	StopLossATRMultiple float64
	TargetVolatility   float64
}

// Manager composes the sizing rules in the fixed order the pipeline
// requires: base allocation never changes shape, each subsequent step only
// scales it down.
type Manager struct {
	cfg Config
}

// New creates a risk Manager from its configuration.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// BasePercent returns the configured base allocation fraction, for callers
// (the Risk Agent) that need to express a result as a fraction of it.
func (m *Manager) BasePercent() float64 {
	return m.cfg.BasePercent
}

// SizeInputs bundles everything the cascade needs for one symbol.
type SizeInputs struct {
	Decision         domain.MetaDecision
	Indicators       domain.Indicators
	Price            float64
	PortfolioValue   float64
	ExistingExposure float64 // current market value already held in this symbol
	ClosedTrades     []domain.ClosedTrade
	BreakerMultiplier float64 // 1.0 normal, smaller under a cautioning breaker
}

// Size runs the cascade and returns the quantity to trade (0 means veto)
// along with the stop-loss price for a BUY.
func (m *Manager) Size(in SizeInputs) (quantity float64, stopLossPrice float64, reason string) {
	if in.Decision.Action != domain.SideBuy && in.Decision.Action != domain.SideSell {
		return 0, 0, "no sizing needed for non-directional action"
	}
	if in.Price <= 0 || in.PortfolioValue <= 0 {
		return 0, 0, "invalid price or portfolio value"
	}

	// 1. Base allocation.
	notional := m.cfg.BasePercent * in.PortfolioValue

	// 2. Kelly cap: never allocate beyond the Kelly-implied fraction,
	// itself capped to avoid over-betting on a small sample.
	kelly := kellyFraction(in.ClosedTrades)
	if kelly > m.cfg.KellyFractionCap {
		kelly = m.cfg.KellyFractionCap
	}
	if kelly > 0 {
		kellyNotional := kelly * in.PortfolioValue
		if kellyNotional < notional {
			notional = kellyNotional
		}
	} else if kelly < 0 {
		return 0, 0, "negative historical expectancy, kelly fraction vetoes sizing"
	}

	// 3. Volatility adjustment: scale toward a target volatility, up when
	// realized volatility sits below it and down when it sits above.
	volScale := volatilityScale(in.Indicators.RealizedVol20, m.cfg.TargetVolatility)
	notional *= volScale

	// 4. Regime multiplier: crisis regime trims size further, trending
	// regime allows full size.
	notional *= regimeMultiplier(in.Decision.Regime)

	// 5. Breaker scale: a cautioning breaker trims size even when it still
	// allows trading.
	mult := in.BreakerMultiplier
	if mult <= 0 {
		mult = 1.0
	}
	notional *= mult

	// 6. Concentration cap: never let one symbol exceed its ceiling of
	// portfolio value including what is already held.
	maxNotional := m.cfg.MaxPositionPercent*in.PortfolioValue - in.ExistingExposure
	if maxNotional <= 0 {
		return 0, 0, "concentration cap already exceeded"
	}
	if notional > maxNotional {
		notional = maxNotional
	}

	if notional <= 0 {
		return 0, 0, "sizing collapsed to zero"
	}

	quantity = notional / in.Price

	// 7. Stop-loss price, ATR-based. An undefined ATR (short series) falls
	// back to a flat percentage of price rather than no stop at all.
	atr := m.cfg.StopLossATRMultiple * fallbackATR(in.Indicators.ATR14, in.Price)
	if in.Decision.Action == domain.SideBuy {
		stopLossPrice = in.Price - atr
		if stopLossPrice < 0 {
			stopLossPrice = 0
		}
	} else {
		stopLossPrice = in.Price + atr
	}

	return quantity, stopLossPrice, "sized"
}

// kellyFraction estimates the Kelly fraction from closed-trade history
// using win-rate and average win/loss ratio. Fewer than 10 trades is too
// small a sample to estimate from, so it returns 0 (defer to base sizing).
func kellyFraction(trades []domain.ClosedTrade) float64 {
	if len(trades) < 10 {
		return 0
	}

	var wins, losses int
	var winSum, lossSum float64
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
			winSum += t.PnL
		} else if t.PnL < 0 {
			losses++
			lossSum += -t.PnL
		}
	}
	if wins == 0 || losses == 0 {
		return 0
	}

	winRate := float64(wins) / float64(wins+losses)
	avgWin := winSum / float64(wins)
	avgLoss := lossSum / float64(losses)
	if avgLoss <= 0 {
		return 0
	}
	payoffRatio := avgWin / avgLoss

	// Kelly% = W - (1-W)/R
	return winRate - (1-winRate)/payoffRatio
}

// volatilityScale is the ratio of target to observed realized volatility,
// clamped to [0.25, 2.0]: size scales up in calm markets and down in
// volatile ones, symmetrically around the target.
func volatilityScale(realizedVol, targetVol float64) float64 {
	if targetVol <= 0 {
		targetVol = 0.16
	}
	if realizedVol <= 0 {
		return 2.0
	}
	scale := targetVol / realizedVol
	if scale < 0.25 {
		scale = 0.25
	}
	if scale > 2.0 {
		scale = 2.0
	}
	return scale
}

// fallbackATR returns the measured ATR when defined, else 2% of price as a
// placeholder stop distance for series too short to have one.
func fallbackATR(atr *float64, price float64) float64 {
	if atr != nil {
		return *atr
	}
	return 0.02 * price
}

func regimeMultiplier(regime domain.Regime) float64 {
	switch regime {
	case domain.RegimeLowVol:
		return 1.0
	case domain.RegimeHighVol:
		return 0.5
	case domain.RegimeTrending:
		return 1.2
	case domain.RegimeRanging:
		return 0.8
	case domain.RegimeCrisis:
		return 0.0
	default:
		return 0.5
	}
}

// PortfolioCVaR estimates portfolio-level conditional value at risk from
// per-symbol historical returns and weights, for the risk manager's health
// reporting.
func PortfolioCVaR(returnsBySymbol map[string][]float64, weights map[string]float64, confidence float64) float64 {
	total := 0.0
	for symbol, w := range weights {
		returns, ok := returnsBySymbol[symbol]
		if !ok || len(returns) == 0 {
			continue
		}
		total += w * formulas.CalculateCVaR(returns, confidence)
	}
	return total
}

// clamp01 keeps a confidence-like value within [0, 1].
func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
