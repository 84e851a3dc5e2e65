package agents

import (
	"context"
	"fmt"

	"github.com/tradecore/decision-core/internal/domain"
)

// SignalAgent combines MACD histogram sign, RSI band, volume ratio, and
// trend vs moving averages into a score in [-1, 1] and a confidence.
type SignalAgent struct{}

// NewSignalAgent constructs a SignalAgent. It holds no state.
func NewSignalAgent() *SignalAgent { return &SignalAgent{} }

func (a *SignalAgent) Role() domain.AgentRole { return domain.RoleSignal }

func (a *SignalAgent) Analyze(ctx context.Context, in Context) domain.SpecialistRecommendation {
	ind := in.Indicators

	score := 0.0
	var notes []string

	if ind.MACDHistogram != nil {
		switch {
		case *ind.MACDHistogram > 0:
			score += 0.35
			notes = append(notes, "macd histogram positive")
		case *ind.MACDHistogram < 0:
			score -= 0.35
			notes = append(notes, "macd histogram negative")
		}
	}

	if ind.RSI14 != nil {
		switch {
		case *ind.RSI14 >= 70:
			score -= 0.25
			notes = append(notes, "rsi overbought")
		case *ind.RSI14 <= 30:
			score += 0.25
			notes = append(notes, "rsi oversold")
		}
	}

	last, ok := in.Series.Last()
	if ok && ind.SMA50 > 0 {
		switch {
		case last.Close > ind.SMA20 && ind.SMA20 > ind.SMA50:
			score += 0.4
			notes = append(notes, "price above rising short-term average")
		case last.Close < ind.SMA20 && ind.SMA20 < ind.SMA50:
			score -= 0.4
			notes = append(notes, "price below falling short-term average")
		}
	}

	action := domain.SideHold
	switch {
	case score > 0.2:
		action = domain.SideBuy
	case score < -0.2:
		action = domain.SideSell
	}

	confidence := abs(score)
	rationale := joinNotes(notes)
	if rationale == "" {
		rationale = "no directional signal"
	}

	return recommendation(domain.RoleSignal, in.Symbol, action, confidence, fmt.Sprintf("score=%.2f: %s", score, rationale))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func joinNotes(notes []string) string {
	out := ""
	for i, n := range notes {
		if i > 0 {
			out += "; "
		}
		out += n
	}
	return out
}
