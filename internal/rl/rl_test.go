package rl

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradecore/decision-core/internal/domain"
)

func TestStateKeyFor_DiscretizesFeatures(t *testing.T) {
	key := StateKeyFor(domain.RegimeTrending, domain.Indicators{RSI14: domain.Float64Ptr(72), MACDHistogram: domain.Float64Ptr(-0.2), ADX14: domain.Float64Ptr(45)})
	assert.Equal(t, domain.RegimeTrending, key.Regime)
	assert.Equal(t, 7, key.RSIBucket)
	assert.Equal(t, -1, key.MACDSign)
	assert.Equal(t, 2, key.TrendBucket)
}

func TestApply_NeverExploresWhenEpsilonZero(t *testing.T) {
	f := New(Config{Epsilon: 0, Alpha: 0.1, Gamma: 0.95, OverrideConfidence: 0.05}, nil, rand.New(rand.NewSource(1)))
	key := StateKeyFor(domain.RegimeLowVol, domain.Indicators{})
	action := f.Apply(key, domain.SideHold)
	assert.Equal(t, domain.SideHold, action)
}

func TestApply_OverridesWhenMarginClearsThreshold(t *testing.T) {
	f := New(Config{Epsilon: 1, Alpha: 0.1, Gamma: 0.95, OverrideConfidence: 0.05}, nil, rand.New(rand.NewSource(1)))
	key := StateKeyFor(domain.RegimeLowVol, domain.Indicators{})
	f.table[keyString(key)] = map[domain.Side]float64{domain.SideBuy: 1.0, domain.SideHold: 0.1}

	action := f.Apply(key, domain.SideHold)
	assert.Equal(t, domain.SideBuy, action)
}

func TestApply_NoOverrideWithoutLearnedValues(t *testing.T) {
	f := New(Config{Epsilon: 1, Alpha: 0.1, Gamma: 0.95, OverrideConfidence: 0.05}, nil, rand.New(rand.NewSource(1)))
	key := StateKeyFor(domain.RegimeLowVol, domain.Indicators{})
	action := f.Apply(key, domain.SideSell)
	assert.Equal(t, domain.SideSell, action)
}

func TestUpdate_MovesQTowardReward(t *testing.T) {
	f := New(DefaultConfig(), nil, rand.New(rand.NewSource(1)))
	state := StateKeyFor(domain.RegimeLowVol, domain.Indicators{RSI14: domain.Float64Ptr(50)})
	next := StateKeyFor(domain.RegimeLowVol, domain.Indicators{RSI14: domain.Float64Ptr(55)})

	f.Update(state, domain.SideBuy, 1.0, next)
	q1 := f.Table()[keyString(state)][domain.SideBuy]
	assert.Greater(t, q1, 0.0)

	f.Update(state, domain.SideBuy, 1.0, next)
	q2 := f.Table()[keyString(state)][domain.SideBuy]
	assert.Greater(t, q2, q1)
}
