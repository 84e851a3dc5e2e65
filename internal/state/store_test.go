package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecore/decision-core/internal/domain"
)

func TestLoad_MissingFileReturnsFreshEmptyState(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "state.json"), 48, zerolog.Nop())

	result, err := store.Load()
	require.NoError(t, err)
	assert.True(t, result.Usable)
	assert.Equal(t, domain.FreshnessFresh, result.Freshness)
	assert.Empty(t, result.State.Positions)
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "state.json"), 48, zerolog.Nop())

	st := domain.SystemState{
		Positions: map[string]domain.Position{
			"SPY": {Symbol: "SPY", Quantity: 10, CurrentPrice: 500},
		},
		CashAvailable: domain.NewMoney(1000, domain.CurrencyUSD),
	}
	require.NoError(t, store.Save(st))

	result, err := store.Load()
	require.NoError(t, err)
	assert.True(t, result.Usable)
	assert.Equal(t, domain.FreshnessFresh, result.Freshness)
	assert.Equal(t, 10.0, result.State.Positions["SPY"].Quantity)
}

func TestClassify_FixedHourBoundariesRegardlessOfExpiry(t *testing.T) {
	cases := []struct {
		age        time.Duration
		expect     domain.DataFreshness
		confidence float64
		usable     bool
	}{
		{time.Hour, domain.FreshnessFresh, 0.95, true},
		{25 * time.Hour, domain.FreshnessAging, 0.70, true},
		{49 * time.Hour, domain.FreshnessStale, 0.30, true},
		{73 * time.Hour, domain.FreshnessExpired, 0.05, false},
	}
	for _, tc := range cases {
		freshness, confidence, usable := classify(tc.age, 72)
		assert.Equal(t, tc.expect, freshness, "age=%s", tc.age)
		assert.Equal(t, tc.confidence, confidence, "age=%s", tc.age)
		assert.Equal(t, tc.usable, usable, "age=%s", tc.age)
	}
}

func TestClassify_ExpiryGatesUsabilityWithinTheStaleBucket(t *testing.T) {
	freshness, _, usable := classify(49*time.Hour, 40)
	assert.Equal(t, domain.FreshnessStale, freshness)
	assert.False(t, usable, "expiry tighter than the fixed stale boundary still cuts usability")
}

func TestLoad_PopulatesMeta(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "state.json"), 72, zerolog.Nop())
	require.NoError(t, store.Save(domain.SystemState{}))

	result, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, result.State.Meta)
	assert.Equal(t, domain.FreshnessFresh, result.State.Meta.StalenessStatus)
	assert.Equal(t, 0.95, result.State.Meta.Confidence)
}

func TestSave_ClearsMeta(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "state.json"), 72, zerolog.Nop())

	st := domain.SystemState{Meta: &domain.StalenessMeta{Confidence: 0.3}}
	require.NoError(t, store.Save(st))

	data, err := os.ReadFile(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\"meta\"")
}
