package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t, "WATCHLIST", "DAILY_INVESTMENT", "PAPER_TRADING", "TRADERNET_API_KEY")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"SPY", "QQQ", "IWM"}, cfg.Watchlist)
	assert.Equal(t, 100.0, cfg.DailyInvestment)
	assert.True(t, cfg.PaperTrading)
	assert.Equal(t, 25, cfg.AlphaVantageMaxPerDay)
	assert.Equal(t, 72, cfg.StateExpiryHours)
}

func TestLoad_WatchlistOverride(t *testing.T) {
	clearEnv(t, "WATCHLIST")
	os.Setenv("WATCHLIST", "aapl, msft,  voo")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "VOO"}, cfg.Watchlist)
}

func TestValidate_RequiresTradernetCredentialsWhenLive(t *testing.T) {
	cfg := &Config{
		Watchlist:       []string{"SPY"},
		DailyInvestment: 50,
		PaperTrading:    false,
	}
	err := cfg.Validate()
	assert.Error(t, err)

	cfg.TradernetAPIKey = "key"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsEmptyWatchlist(t *testing.T) {
	cfg := &Config{DailyInvestment: 50, PaperTrading: true}
	err := cfg.Validate()
	assert.Error(t, err)
}
