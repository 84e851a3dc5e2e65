package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRun_PreMarketCadence_LandsOnWeekday(t *testing.T) {
	after := time.Date(2026, 7, 27, 0, 0, 0, 0, time.UTC) // a Monday
	next, err := NextRun(CadencePreMarket, after)
	require.NoError(t, err)

	assert.Equal(t, 13, next.Hour())
	assert.Equal(t, 25, next.Minute())
	assert.NotEqual(t, time.Saturday, next.Weekday())
	assert.NotEqual(t, time.Sunday, next.Weekday())
}

func TestNextRun_UnknownCadence_Errors(t *testing.T) {
	_, err := NextRun(Cadence("bogus"), time.Now())
	assert.Error(t, err)
}

func TestScheduleExpr_MarketOpenAfterPreMarket(t *testing.T) {
	preMarket, err := ScheduleExpr(CadencePreMarket)
	require.NoError(t, err)
	marketOpen, err := ScheduleExpr(CadenceMarketOpen)
	require.NoError(t, err)
	assert.NotEqual(t, preMarket, marketOpen)
}
