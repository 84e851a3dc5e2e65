package breaker

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/tradecore/decision-core/internal/domain"
)

func testConfig() Config {
	return Config{FailThreshold: 3, CooldownSeconds: 0}
}

func TestBreaker_StartsClosedAndMayTrade(t *testing.T) {
	b := New("portfolio", testConfig(), nil, zerolog.Nop())
	assert.True(t, b.MayTrade(IntentEntry).Allow)
	assert.Equal(t, domain.BreakerClosed, b.State().Level)
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := New("portfolio", Config{FailThreshold: 3, CooldownSeconds: 3600}, nil, zerolog.Nop())
	b.RecordFailure("timeout")
	b.RecordFailure("timeout")
	assert.True(t, b.MayTrade(IntentEntry).Allow)
	b.RecordFailure("timeout")
	assert.Equal(t, domain.BreakerOpen, b.State().Level)
	assert.False(t, b.MayTrade(IntentEntry).Allow)
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	b := New("portfolio", Config{FailThreshold: 3, CooldownSeconds: 1}, nil, zerolog.Nop())
	for i := 0; i < 3; i++ {
		b.RecordFailure("timeout")
	}
	assert.False(t, b.MayTrade(IntentEntry).Allow)
	// cooldown is 1s; once it has elapsed MayTrade allows a probe
	time.Sleep(1100 * time.Millisecond)
	assert.True(t, b.MayTrade(IntentEntry).Allow)
	assert.Equal(t, domain.BreakerHalfOpen, b.State().Level)
}

func TestBreaker_SuccessClosesFromHalfOpen(t *testing.T) {
	b := New("portfolio", testConfig(), nil, zerolog.Nop())
	for i := 0; i < 3; i++ {
		b.RecordFailure("timeout")
	}
	b.MayTrade(IntentEntry) // moves to HALF_OPEN
	b.RecordSuccess()
	assert.Equal(t, domain.BreakerClosed, b.State().Level)
}

func TestBreaker_ManualHaltBlocksRegardlessOfCooldown(t *testing.T) {
	b := New("portfolio", testConfig(), nil, zerolog.Nop())
	b.ManualHalt("operator stop")
	assert.False(t, b.MayTrade(IntentEntry).Allow)
	assert.Equal(t, domain.TierHalt, b.State().Tier)
}

func TestTierForFailures_Escalates(t *testing.T) {
	assert.Equal(t, domain.TierCaution, tierForFailures(1, 3))
	assert.Equal(t, domain.TierWarning, tierForFailures(3, 3))
	assert.Equal(t, domain.TierCritical, tierForFailures(6, 3))
	assert.Equal(t, domain.TierHalt, tierForFailures(9, 3))
}
