// Package agents implements the four specialist variants over a single
// shared capability: given a symbol's market context, produce one
// SpecialistRecommendation. Variants are stateless with respect to each
// other; they read the shared context and do not communicate.
package agents

import (
	"context"
	"time"

	"github.com/tradecore/decision-core/internal/domain"
)

// Context bundles the immutable inputs every specialist reads. None of it
// is mutated by analysis.
type Context struct {
	Symbol         string
	Series         domain.BarSeries
	Indicators     domain.Indicators
	PortfolioValue float64
	ExistingExposure float64
	ClosedTrades   []domain.ClosedTrade
	BreakerMultiplier float64
}

// Agent is the single capability every specialist variant implements.
type Agent interface {
	Role() domain.AgentRole
	Analyze(ctx context.Context, in Context) domain.SpecialistRecommendation
}

func recommendation(role domain.AgentRole, symbol string, action domain.Side, confidence float64, rationale string) domain.SpecialistRecommendation {
	return domain.SpecialistRecommendation{
		Agent:       role,
		Symbol:      symbol,
		Action:      action,
		Confidence:  clamp01(confidence),
		Rationale:   rationale,
		GeneratedAt: time.Now().UTC(),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
