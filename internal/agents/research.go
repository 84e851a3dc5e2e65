package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tradecore/decision-core/internal/domain"
	"github.com/tradecore/decision-core/internal/llm"
)

// ResearchAgent produces a fundamentals/sentiment-flavored recommendation
// via an LLM collaborator. Any LLM failure degrades soft to HOLD with low
// confidence rather than propagating the error.
type ResearchAgent struct {
	llm llm.Client
	log zerolog.Logger
}

// NewResearchAgent wraps an llm.Client. client may be nil, in which case
// the agent always degrades (equivalent to the collaborator being
// permanently unavailable).
func NewResearchAgent(client llm.Client, log zerolog.Logger) *ResearchAgent {
	return &ResearchAgent{llm: client, log: log.With().Str("agent", "research").Logger()}
}

func (a *ResearchAgent) Role() domain.AgentRole { return domain.RoleResearch }

func (a *ResearchAgent) Analyze(ctx context.Context, in Context) domain.SpecialistRecommendation {
	if a.llm == nil {
		return a.degrade(in, domain.LLMUnavailableError{Cause: fmt.Errorf("no llm collaborator configured")})
	}

	prompt := researchPrompt(in)
	resp, err := a.llm.Analyze(ctx, prompt, 256)
	if err != nil {
		return a.degrade(in, domain.LLMUnavailableError{Cause: err})
	}

	action, confidence := parseResearchResponse(resp)
	return recommendation(domain.RoleResearch, in.Symbol, action, confidence, resp.Text)
}

func (a *ResearchAgent) degrade(in Context, err domain.LLMUnavailableError) domain.SpecialistRecommendation {
	a.log.Warn().Err(err).Str("symbol", in.Symbol).Msg("research agent degrading to HOLD")
	return recommendation(domain.RoleResearch, in.Symbol, domain.SideHold, 0.1, err.Error())
}

func researchPrompt(in Context) string {
	last, _ := in.Series.Last()
	rsiText := "undefined"
	if in.Indicators.RSI14 != nil {
		rsiText = fmt.Sprintf("%.1f", *in.Indicators.RSI14)
	}
	macdText := "undefined"
	if in.Indicators.MACDHistogram != nil {
		macdText = fmt.Sprintf("%.4f", *in.Indicators.MACDHistogram)
	}
	return fmt.Sprintf(
		"Assess %s given the last close of %.2f, RSI14=%s, and MACD histogram %s. "+
			"Respond with a direction (BUY, SELL, or HOLD) and a brief rationale.",
		in.Symbol, last.Close, rsiText, macdText,
	)
}

// parseResearchResponse extracts a direction from the model's free text,
// defaulting to HOLD when no direction word is present. The confidence hint
// is used when the model supplies one, otherwise a conservative default.
func parseResearchResponse(resp llm.Response) (domain.Side, float64) {
	text := strings.ToUpper(resp.Text)
	action := domain.SideHold
	switch {
	case strings.Contains(text, "BUY"):
		action = domain.SideBuy
	case strings.Contains(text, "SELL"):
		action = domain.SideSell
	}

	confidence := 0.5
	if resp.ConfidenceHint != nil {
		confidence = *resp.ConfidenceHint
	}
	return action, confidence
}
