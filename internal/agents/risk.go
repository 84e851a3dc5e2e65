package agents

import (
	"context"
	"fmt"

	"github.com/tradecore/decision-core/internal/domain"
	"github.com/tradecore/decision-core/internal/risk"
)

// RiskAgent returns BUY or HOLD only. Its confidence is derived from the
// size the Risk Manager would actually allow for a full-confidence BUY,
// as a fraction of the base allocation.
type RiskAgent struct {
	manager *risk.Manager
}

// NewRiskAgent wraps a risk.Manager for use as a specialist.
func NewRiskAgent(manager *risk.Manager) *RiskAgent {
	return &RiskAgent{manager: manager}
}

func (a *RiskAgent) Role() domain.AgentRole { return domain.RoleRisk }

func (a *RiskAgent) Analyze(ctx context.Context, in Context) domain.SpecialistRecommendation {
	last, ok := in.Series.Last()
	if !ok || last.Close <= 0 {
		return recommendation(domain.RoleRisk, in.Symbol, domain.SideHold, 0, "no price available to size against")
	}

	probe := domain.MetaDecision{Symbol: in.Symbol, Action: domain.SideBuy, Regime: domain.RegimeLowVol}
	mult := in.BreakerMultiplier
	if mult <= 0 {
		mult = 1.0
	}

	qty, _, reason := a.manager.Size(risk.SizeInputs{
		Decision:          probe,
		Indicators:        in.Indicators,
		Price:             last.Close,
		PortfolioValue:    in.PortfolioValue,
		ExistingExposure:  in.ExistingExposure,
		ClosedTrades:      in.ClosedTrades,
		BreakerMultiplier: mult,
	})

	if qty <= 0 {
		return recommendation(domain.RoleRisk, in.Symbol, domain.SideHold, 0, "sizing would veto: "+reason)
	}

	baseQty := (in.PortfolioValue * a.manager.BasePercent()) / last.Close
	confidence := qty / baseQty
	if confidence > 1 {
		confidence = 1
	}

	return recommendation(domain.RoleRisk, in.Symbol, domain.SideBuy, confidence,
		fmt.Sprintf("sizing allows %.4f shares against a %.4f baseline", qty, baseQty))
}
