// Package meta implements the meta agent: regime detection from a bar
// window plus weighted aggregation of specialist recommendations into one
// decision per symbol.
package meta

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tradecore/decision-core/internal/domain"
	"github.com/tradecore/decision-core/pkg/formulas"
)

// Config holds the tunables for regime detection and aggregation.
type Config struct {
	WindowBars    int
	BuyThreshold  float64
	HighVolADX    float64
	TrendADX      float64
}

// DefaultConfig returns the default escalation thresholds.
func DefaultConfig() Config {
	return Config{WindowBars: 30, BuyThreshold: 0.35, HighVolADX: 25, TrendADX: 25}
}

// weightVectors maps each regime to the per-specialist weight it assigns,
// each vector summing to 1.
var weightVectors = map[domain.Regime]map[domain.AgentRole]float64{
	domain.RegimeLowVol: {
		domain.RoleResearch: 0.40, domain.RoleSignal: 0.30, domain.RoleRisk: 0.20, domain.RoleExecution: 0.10,
	},
	domain.RegimeHighVol: {
		domain.RoleResearch: 0.20, domain.RoleSignal: 0.20, domain.RoleRisk: 0.50, domain.RoleExecution: 0.10,
	},
	domain.RegimeTrending: {
		domain.RoleResearch: 0.20, domain.RoleSignal: 0.50, domain.RoleRisk: 0.20, domain.RoleExecution: 0.10,
	},
	domain.RegimeRanging: {
		domain.RoleResearch: 0.33, domain.RoleSignal: 0.33, domain.RoleRisk: 0.33, domain.RoleExecution: 0.01,
	},
}

// Agent detects regime and aggregates specialist output into a MetaDecision.
type Agent struct {
	cfg Config

	// volHistory is the rolling history of realized-volatility observations
	// used to rank the current reading into a percentile.
	volHistory []float64
}

// New builds a meta Agent.
func New(cfg Config) *Agent {
	return &Agent{cfg: cfg}
}

// ObserveVolatility records a realized-volatility sample into the agent's
// rolling history, used to percentile-rank future readings. Callers feed
// this once per run per symbol (or pool across the watchlist).
func (a *Agent) ObserveVolatility(v float64) {
	a.volHistory = append(a.volHistory, v)
	if len(a.volHistory) > 500 {
		a.volHistory = a.volHistory[len(a.volHistory)-500:]
	}
}

// DetectRegime classifies the market regime from a bar series and its
// derived indicators: realized-vol percentile against the agent's own
// rolling history, plus an ADX-like trend-strength reading.
func (a *Agent) DetectRegime(series domain.BarSeries, ind domain.Indicators) domain.Regime {
	window := a.cfg.WindowBars
	closes := series.Closes()
	if len(closes) > window {
		closes = closes[len(closes)-window:]
	}
	returns := formulas.CalculateReturns(closes)

	crisisDrawdown := worstDrawdown(closes)
	if crisisDrawdown <= -0.15 {
		return domain.RegimeCrisis
	}

	volPercentile := percentileRank(a.volHistory, ind.RealizedVol20)
	trending := ind.ADX14 != nil && *ind.ADX14 >= a.cfg.TrendADX

	switch {
	case volPercentile >= 0.85:
		return domain.RegimeHighVol
	case trending:
		return domain.RegimeTrending
	case volPercentile <= 0.35 && len(returns) > 0:
		return domain.RegimeLowVol
	default:
		return domain.RegimeRanging
	}
}

// percentileRank estimates where value falls against history by fitting a
// normal distribution to it (mean/stddev via gonum/stat) and reading off
// its CDF, or 0.5 (neutral) when there isn't enough history to fit against.
func percentileRank(history []float64, value float64) float64 {
	if len(history) < 5 {
		return 0.5
	}
	mean := stat.Mean(history, nil)
	stddev := stat.StdDev(history, nil)
	if stddev <= 0 {
		return 0.5
	}
	dist := distuv.Normal{Mu: mean, Sigma: stddev}
	return dist.CDF(value)
}

func worstDrawdown(closes []float64) float64 {
	if len(closes) == 0 {
		return 0
	}
	peak := closes[0]
	worst := 0.0
	for _, c := range closes {
		if c > peak {
			peak = c
		}
		if peak > 0 {
			dd := (c - peak) / peak
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// Aggregate folds a symbol's specialist recommendations into one
// MetaDecision for the given regime.
func (a *Agent) Aggregate(symbol string, regime domain.Regime, recs []domain.SpecialistRecommendation) domain.MetaDecision {
	weights := weightVectors[regime]
	if weights == nil {
		weights = weightVectors[domain.RegimeRanging]
	}

	if regime == domain.RegimeCrisis {
		return a.aggregateCrisis(symbol, recs, weights)
	}

	sum := 0.0
	for _, rec := range recs {
		sum += vote(rec.Action) * rec.Confidence * weights[rec.Agent]
	}

	action := domain.SideHold
	switch {
	case sum > a.cfg.BuyThreshold:
		action = domain.SideBuy
	case sum < -a.cfg.BuyThreshold:
		action = domain.SideSell
	}

	return domain.MetaDecision{
		Symbol:     symbol,
		Regime:     regime,
		Action:     action,
		Confidence: clamp01(math.Abs(sum)),
		Weights:    weights,
		Inputs:     recs,
		DecidedAt:  time.Now().UTC(),
	}
}

// aggregateCrisis implements the CRISIS rule: a BUY requires every
// specialist to recommend BUY; any dissent (or non-BUY) degrades to HOLD.
func (a *Agent) aggregateCrisis(symbol string, recs []domain.SpecialistRecommendation, weights map[domain.AgentRole]float64) domain.MetaDecision {
	unanimousBuy := len(recs) > 0
	minConfidence := 1.0
	for _, rec := range recs {
		if rec.Action != domain.SideBuy {
			unanimousBuy = false
		}
		if rec.Confidence < minConfidence {
			minConfidence = rec.Confidence
		}
	}

	action := domain.SideHold
	confidence := 0.0
	if unanimousBuy {
		action = domain.SideBuy
		confidence = clamp01(minConfidence)
	}

	return domain.MetaDecision{
		Symbol:     symbol,
		Regime:     domain.RegimeCrisis,
		Action:     action,
		Confidence: confidence,
		Weights:    weights,
		Inputs:     recs,
		DecidedAt:  time.Now().UTC(),
	}
}

func vote(action domain.Side) float64 {
	switch action {
	case domain.SideBuy:
		return 1
	case domain.SideSell:
		return -1
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
