package meta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tradecore/decision-core/internal/domain"
)

func seriesOf(closes ...float64) domain.BarSeries {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Timestamp: time.Now(), Close: c}
	}
	return domain.BarSeries{Symbol: "SPY", Bars: bars}
}

func rec(role domain.AgentRole, action domain.Side, confidence float64) domain.SpecialistRecommendation {
	return domain.SpecialistRecommendation{Agent: role, Action: action, Confidence: confidence}
}

func TestDetectRegime_SharpDrawdownIsCrisis(t *testing.T) {
	a := New(DefaultConfig())
	series := seriesOf(100, 95, 90, 83, 80)
	regime := a.DetectRegime(series, domain.Indicators{RealizedVol20: 0.3, ADX14: domain.Float64Ptr(20)})
	assert.Equal(t, domain.RegimeCrisis, regime)
}

func TestDetectRegime_StrongTrendWhenADXHigh(t *testing.T) {
	a := New(DefaultConfig())
	for i := 0; i < 20; i++ {
		a.ObserveVolatility(0.1)
	}
	series := seriesOf(100, 101, 102, 103, 104)
	regime := a.DetectRegime(series, domain.Indicators{RealizedVol20: 0.1, ADX14: domain.Float64Ptr(40)})
	assert.Equal(t, domain.RegimeTrending, regime)
}

func TestAggregate_BuyAboveThreshold(t *testing.T) {
	a := New(DefaultConfig())
	recs := []domain.SpecialistRecommendation{
		rec(domain.RoleResearch, domain.SideBuy, 0.8),
		rec(domain.RoleSignal, domain.SideBuy, 0.8),
		rec(domain.RoleRisk, domain.SideBuy, 0.8),
		rec(domain.RoleExecution, domain.SideBuy, 0.8),
	}
	decision := a.Aggregate("SPY", domain.RegimeLowVol, recs)
	assert.Equal(t, domain.SideBuy, decision.Action)
	assert.Greater(t, decision.Confidence, 0.0)
}

func TestAggregate_MixedSignalsHold(t *testing.T) {
	a := New(DefaultConfig())
	recs := []domain.SpecialistRecommendation{
		rec(domain.RoleResearch, domain.SideBuy, 0.5),
		rec(domain.RoleSignal, domain.SideSell, 0.5),
		rec(domain.RoleRisk, domain.SideHold, 0),
		rec(domain.RoleExecution, domain.SideHold, 0),
	}
	decision := a.Aggregate("SPY", domain.RegimeRanging, recs)
	assert.Equal(t, domain.SideHold, decision.Action)
}

func TestAggregate_CrisisRequiresUnanimousBuy(t *testing.T) {
	a := New(DefaultConfig())
	recs := []domain.SpecialistRecommendation{
		rec(domain.RoleResearch, domain.SideBuy, 0.9),
		rec(domain.RoleSignal, domain.SideBuy, 0.9),
		rec(domain.RoleRisk, domain.SideHold, 0.1),
		rec(domain.RoleExecution, domain.SideBuy, 0.9),
	}
	decision := a.Aggregate("SPY", domain.RegimeCrisis, recs)
	assert.Equal(t, domain.SideHold, decision.Action)
}

func TestAggregate_CrisisUnanimousBuyPasses(t *testing.T) {
	a := New(DefaultConfig())
	recs := []domain.SpecialistRecommendation{
		rec(domain.RoleResearch, domain.SideBuy, 0.9),
		rec(domain.RoleSignal, domain.SideBuy, 0.8),
		rec(domain.RoleRisk, domain.SideBuy, 0.7),
		rec(domain.RoleExecution, domain.SideBuy, 0.95),
	}
	decision := a.Aggregate("SPY", domain.RegimeCrisis, recs)
	assert.Equal(t, domain.SideBuy, decision.Action)
	assert.InDelta(t, 0.7, decision.Confidence, 0.01)
}
