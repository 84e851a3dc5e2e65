// Package breaker implements the portfolio-level and per-broker circuit
// breakers: a CLOSED/OPEN/HALF_OPEN state machine with a CAUTION/WARNING/
// CRITICAL/HALT advisory tier layered on top.
package breaker

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradecore/decision-core/internal/domain"
)

// Config controls when a breaker trips and how long it stays open before
// probing again. FailThreshold/CooldownSeconds drive the per-broker
// consecutive-failure breakers; DailyLossPct/MaxConsecLosses/MaxAPIErrors
// drive the portfolio breaker's loss-based triggers and are left zero
// (disabled) on per-broker instances.
type Config struct {
	FailThreshold   int
	CooldownSeconds int

	DailyLossPct    float64
	MaxConsecLosses int
	MaxAPIErrors    int
}

// Breaker is a single named circuit breaker guarding one collaborator
// (the whole portfolio, or one specific broker).
type Breaker struct {
	mu    sync.Mutex
	name  string
	cfg   Config
	state domain.BreakerState
	log   zerolog.Logger

	dailyLossPct       float64
	consecClosedLosses int
	apiErrors          int
}

// New creates a Breaker starting CLOSED, seeded from persisted state when
// one is supplied (e.g. loaded from the state store on process start).
func New(name string, cfg Config, seed *domain.BreakerState, log zerolog.Logger) *Breaker {
	st := domain.BreakerState{
		Name:           name,
		Level:          domain.BreakerClosed,
		Tier:           domain.TierNormal,
		LastTransition: time.Now().UTC(),
	}
	if seed != nil {
		st = *seed
	}
	return &Breaker{
		name: name,
		cfg:  cfg,
		state: st,
		log:  log.With().Str("component", "breaker").Str("breaker", name).Logger(),
	}
}

// State returns a copy of the breaker's current persisted state.
func (b *Breaker) State() domain.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RecordSuccess clears the breaker's failure streak. A HALF_OPEN breaker
// that sees a success closes again.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state.ConsecutiveFails = 0
	if b.state.Level != domain.BreakerClosed {
		b.transition(domain.BreakerClosed, domain.TierNormal, "recovered after successful probe")
	}
}

// RecordFailure registers a collaborator failure and trips the breaker once
// the configured threshold is reached.
func (b *Breaker) RecordFailure(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state.ConsecutiveFails++
	if b.state.Level == domain.BreakerClosed && b.state.ConsecutiveFails >= b.cfg.FailThreshold {
		b.transition(domain.BreakerOpen, tierForFailures(b.state.ConsecutiveFails, b.cfg.FailThreshold), reason)
	}
}

// ManualHalt forces the breaker to OPEN/HALT regardless of its failure
// count, for an operator-initiated emergency stop.
func (b *Breaker) ManualHalt(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(domain.BreakerOpen, domain.TierHalt, reason)
}

// TradeIntent distinguishes an order that would open/grow exposure from one
// that would only reduce it, since a breaker's CAUTION/WARNING/CRITICAL
// tiers treat the two differently.
type TradeIntent int

const (
	IntentEntry TradeIntent = iota
	IntentExit
)

// MayTradeResult is what a breaker decides for one trade intent: whether it
// is allowed at all, the size scale factor to apply if so, and why.
type MayTradeResult struct {
	Allow       bool
	ScaleFactor float64
	Reason      string
}

// MayTrade reports whether the given trade intent should be attempted right
// now, and at what size scale.
//
// CLOSED: NORMAL allows entries and exits at full size. CAUTION allows both
// at half size. WARNING and CRITICAL block new entries but still allow
// exits at full size, so open risk can be reduced even while new risk is
// refused.
//
// OPEN: HALT never allows anything until manually reset. Any other tier
// blocks until the cooldown elapses, then allows a single HALF_OPEN probe.
// HALF_OPEN always allows a probe at full size.
func (b *Breaker) MayTrade(intent TradeIntent) MayTradeResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state.Level {
	case domain.BreakerClosed:
		switch b.state.Tier {
		case domain.TierCritical, domain.TierWarning:
			if intent == IntentExit {
				return MayTradeResult{Allow: true, ScaleFactor: 1.0, Reason: "exits only at " + string(b.state.Tier)}
			}
			return MayTradeResult{Allow: false, ScaleFactor: 0, Reason: "new entries blocked at " + string(b.state.Tier)}
		case domain.TierCaution:
			return MayTradeResult{Allow: true, ScaleFactor: 0.5, Reason: "caution: size scaled down"}
		default:
			return MayTradeResult{Allow: true, ScaleFactor: 1.0, Reason: ""}
		}
	case domain.BreakerHalfOpen:
		return MayTradeResult{Allow: true, ScaleFactor: 1.0, Reason: "half-open probe"}
	case domain.BreakerOpen:
		if b.state.Tier == domain.TierHalt {
			return MayTradeResult{Allow: false, ScaleFactor: 0, Reason: "halted"}
		}
		if time.Since(b.state.OpenedAt) >= time.Duration(b.cfg.CooldownSeconds)*time.Second {
			b.transition(domain.BreakerHalfOpen, b.state.Tier, "cooldown elapsed, probing")
			return MayTradeResult{Allow: true, ScaleFactor: 1.0, Reason: "probe"}
		}
		return MayTradeResult{Allow: false, ScaleFactor: 0, Reason: "open, cooling down"}
	default:
		return MayTradeResult{Allow: false, ScaleFactor: 0}
	}
}

// RecordDailyPnL updates the portfolio's realized+unrealized daily P&L
// percentage (negative for a loss) and retiers the breaker accordingly.
func (b *Breaker) RecordDailyPnL(pnlPct float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dailyLossPct = pnlPct
	tier := tierForLoss(pnlPct)
	if b.cfg.DailyLossPct != 0 && pnlPct <= -math.Abs(b.cfg.DailyLossPct) && tierRank(tier) < tierRank(domain.TierWarning) {
		tier = domain.TierWarning
	}
	b.retier(tier, fmt.Sprintf("daily pnl %.2f%%", pnlPct*100))
}

// RecordClosedTrade updates the consecutive closed-trade loss streak: a
// losing trade extends it, a winning trade resets it to zero.
func (b *Breaker) RecordClosedTrade(pnl float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pnl < 0 {
		b.consecClosedLosses++
	} else {
		b.consecClosedLosses = 0
	}
	if b.cfg.MaxConsecLosses > 0 && b.consecClosedLosses >= b.cfg.MaxConsecLosses {
		b.retier(domain.TierCritical, fmt.Sprintf("%d consecutive closed-trade losses", b.consecClosedLosses))
	}
}

// RecordAPIError counts a failed upstream call (market data or broker) for
// the portfolio breaker's API-error trigger.
func (b *Breaker) RecordAPIError() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.apiErrors++
	if b.cfg.MaxAPIErrors > 0 && b.apiErrors >= b.cfg.MaxAPIErrors {
		b.retier(domain.TierCritical, fmt.Sprintf("%d API errors", b.apiErrors))
	}
}

// tierForLoss maps a daily loss percentage (negative for a loss) to its
// advisory tier.
func tierForLoss(pnlPct float64) domain.BreakerTier {
	switch {
	case pnlPct <= -0.05:
		return domain.TierHalt
	case pnlPct <= -0.03:
		return domain.TierCritical
	case pnlPct <= -0.02:
		return domain.TierWarning
	case pnlPct <= -0.01:
		return domain.TierCaution
	default:
		return domain.TierNormal
	}
}

func tierRank(t domain.BreakerTier) int {
	switch t {
	case domain.TierHalt:
		return 4
	case domain.TierCritical:
		return 3
	case domain.TierWarning:
		return 2
	case domain.TierCaution:
		return 1
	default:
		return 0
	}
}

// retier applies a newly computed tier from one of the portfolio triggers.
// A tier at or above WARNING opens (or escalates) the breaker; a lower tier
// only adjusts the advisory tier while the breaker is still closed, since a
// single cooling trigger should not quietly close an otherwise-open breaker.
func (b *Breaker) retier(tier domain.BreakerTier, reason string) {
	if tierRank(tier) >= tierRank(domain.TierWarning) {
		if b.state.Level != domain.BreakerOpen || tierRank(tier) > tierRank(b.state.Tier) {
			b.transition(domain.BreakerOpen, tier, reason)
		}
		return
	}
	if b.state.Level == domain.BreakerClosed && tierRank(tier) > tierRank(b.state.Tier) {
		b.state.Tier = tier
	}
}

// Reset clears the breaker back to CLOSED/NORMAL, for explicit operator
// recovery after investigating a HALT.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.ConsecutiveFails = 0
	b.transition(domain.BreakerClosed, domain.TierNormal, "manually reset")
}

func (b *Breaker) transition(level domain.BreakerLevel, tier domain.BreakerTier, reason string) {
	b.state.Level = level
	b.state.Tier = tier
	b.state.Reason = reason
	b.state.LastTransition = time.Now().UTC()
	if level == domain.BreakerOpen {
		b.state.OpenedAt = b.state.LastTransition
	}
	b.log.Warn().
		Str("level", string(level)).
		Str("tier", string(tier)).
		Str("reason", reason).
		Int("consecutive_fails", b.state.ConsecutiveFails).
		Msg("breaker transition")
}

// tierForFailures escalates the advisory tier as the failure count climbs
// past the trip threshold, independent of the underlying CLOSED/OPEN state.
func tierForFailures(fails, threshold int) domain.BreakerTier {
	switch {
	case fails >= threshold*3:
		return domain.TierHalt
	case fails >= threshold*2:
		return domain.TierCritical
	case fails >= threshold:
		return domain.TierWarning
	default:
		return domain.TierCaution
	}
}
