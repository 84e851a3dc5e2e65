package agents

import (
	"context"
	"time"

	"github.com/tradecore/decision-core/internal/domain"
)

// ExecutionAgent assesses intraday timing: session phase and a spread
// estimate from the bar's own range. Mid-session it recommends BUY, at lower
// confidence when the spread estimate exceeds 2% of the close; near the
// session open or close, and outside the session, it recommends HOLD.
type ExecutionAgent struct {
	now func() time.Time
}

// NewExecutionAgent constructs an ExecutionAgent using the real clock.
func NewExecutionAgent() *ExecutionAgent {
	return &ExecutionAgent{now: time.Now}
}

func (a *ExecutionAgent) Role() domain.AgentRole { return domain.RoleExecution }

func (a *ExecutionAgent) Analyze(ctx context.Context, in Context) domain.SpecialistRecommendation {
	last, ok := in.Series.Last()
	if !ok {
		return recommendation(domain.RoleExecution, in.Symbol, domain.SideHold, 0, "no bar to assess timing against")
	}

	phase := sessionPhase(a.now().UTC())
	spreadEstimate := 0.0
	if last.Close > 0 {
		spreadEstimate = (last.High - last.Low) / last.Close
	}

	switch phase {
	case phaseOpen, phaseClose:
		return recommendation(domain.RoleExecution, in.Symbol, domain.SideHold, 0.3,
			"near session open/close, wider spreads expected")
	case phaseClosed:
		return recommendation(domain.RoleExecution, in.Symbol, domain.SideHold, 0.1, "outside trading session")
	}

	confidence := 0.7
	if spreadEstimate > 0.02 {
		confidence = 0.4
	}

	return recommendation(domain.RoleExecution, in.Symbol, domain.SideBuy, confidence, "favorable intraday timing")
}

type phase string

const (
	phaseOpen   phase = "OPEN"
	phaseMid    phase = "MID"
	phaseClose  phase = "CLOSE"
	phaseClosed phase = "CLOSED"
)

// sessionPhase classifies a UTC timestamp against the US equity session
// (13:30-20:00 UTC, standard time convention used throughout the pipeline).
func sessionPhase(t time.Time) phase {
	minutesSinceMidnight := t.Hour()*60 + t.Minute()
	open := 13*60 + 30
	close := 20 * 60

	switch {
	case minutesSinceMidnight < open || minutesSinceMidnight >= close:
		return phaseClosed
	case minutesSinceMidnight < open+30:
		return phaseOpen
	case minutesSinceMidnight >= close-30:
		return phaseClose
	default:
		return phaseMid
	}
}
