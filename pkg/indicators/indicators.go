// Package indicators computes the technical indicator set the pipeline's
// specialist agents consume, from a bar series.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/tradecore/decision-core/internal/domain"
	"github.com/tradecore/decision-core/pkg/formulas"
)

// defaultExpectedMoveDTE is the horizon, in days, expectedMove projects over
// when the caller has no specific option expiry in mind. It approximates a
// monthly at-the-money option's days-to-expiry.
const defaultExpectedMoveDTE = 30.0

// Compute derives the full domain.Indicators set from a bar series. It
// never panics on short series: every indicator that needs more history
// than is available falls back to its simple-moving-average analogue where
// one exists (SMA20/SMA50) or leaves the field nil, matching the edge
// policy used throughout pkg/formulas — callers must check before use.
func Compute(series domain.BarSeries) domain.Indicators {
	closes := series.Closes()
	ind := domain.Indicators{Symbol: series.Symbol}

	if last, ok := series.Last(); ok {
		ind.AsOf = last.Timestamp
	}
	if len(closes) == 0 {
		return ind
	}

	if v := formulas.CalculateSMA(closes, 20); v != nil {
		ind.SMA20 = *v
	} else {
		ind.SMA20 = formulas.Mean(closes)
	}
	if v := formulas.CalculateSMA(closes, 50); v != nil {
		ind.SMA50 = *v
	} else {
		ind.SMA50 = formulas.Mean(closes)
	}
	if v := formulas.CalculateEMA(closes, 12); v != nil {
		ind.EMA12 = *v
	}
	if v := formulas.CalculateEMA(closes, 26); v != nil {
		ind.EMA26 = *v
	}

	macd, signal, hist := macdSeries(closes)
	ind.MACD, ind.MACDSignal, ind.MACDHistogram = macd, signal, hist

	ind.RSI14 = rsi(closes, 14)
	ind.ATR14 = atr(series.Bars, 14)
	ind.ADX14 = adx(series.Bars, 14)

	if bands := formulas.CalculateBollingerBands(closes, 20, 2.0); bands != nil {
		ind.BollingerUpper = bands.Upper
		ind.BollingerMiddle = bands.Middle
		ind.BollingerLower = bands.Lower
	}

	returns := formulas.CalculateReturns(lastN(closes, 21))
	ind.RealizedVol20 = formulas.AnnualizedVolatility(returns)
	// No options chain feeds this system, so realized volatility stands in
	// for implied volatility in the expected-move projection.
	ind.ExpectedMove = expectedMove(closes[len(closes)-1], ind.RealizedVol20, defaultExpectedMoveDTE)

	return ind
}

func lastN(v []float64, n int) []float64 {
	if len(v) <= n {
		return v
	}
	return v[len(v)-n:]
}

func macdSeries(closes []float64) (macd, signal, hist *float64) {
	if len(closes) < 26 {
		return nil, nil, nil
	}
	m, s, h := talib.Macd(closes, 12, 26, 9)
	if n := len(m); n > 0 && !math.IsNaN(m[n-1]) {
		macd = domain.Float64Ptr(m[n-1])
	}
	if n := len(s); n > 0 && !math.IsNaN(s[n-1]) {
		signal = domain.Float64Ptr(s[n-1])
	}
	if n := len(h); n > 0 && !math.IsNaN(h[n-1]) {
		hist = domain.Float64Ptr(h[n-1])
	}
	return
}

func rsi(closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}
	r := talib.Rsi(closes, period)
	if n := len(r); n > 0 && !math.IsNaN(r[n-1]) {
		return domain.Float64Ptr(r[n-1])
	}
	return nil
}

func atr(bars []domain.Bar, period int) *float64 {
	if len(bars) < period+1 {
		return nil
	}
	high, low, close := splitHLC(bars)
	a := talib.Atr(high, low, close, period)
	if n := len(a); n > 0 && !math.IsNaN(a[n-1]) {
		return domain.Float64Ptr(a[n-1])
	}
	return nil
}

func adx(bars []domain.Bar, period int) *float64 {
	if len(bars) < period*2 {
		return nil
	}
	high, low, close := splitHLC(bars)
	a := talib.Adx(high, low, close, period)
	if n := len(a); n > 0 && !math.IsNaN(a[n-1]) {
		return domain.Float64Ptr(a[n-1])
	}
	return nil
}

func splitHLC(bars []domain.Bar) (high, low, close []float64) {
	high = make([]float64, len(bars))
	low = make([]float64, len(bars))
	close = make([]float64, len(bars))
	for i, b := range bars {
		high[i], low[i], close[i] = b.High, b.Low, b.Close
	}
	return
}

// expectedMove projects a price range over dte days at the given (fractional,
// annualized) volatility: price * iv * sqrt(dte/365). Undefined when price
// or iv aren't usable, since there is nothing meaningful to project.
func expectedMove(price, iv, dte float64) *float64 {
	if price <= 0 || iv <= 0 {
		return nil
	}
	return domain.Float64Ptr(price * iv * math.Sqrt(dte/365))
}
