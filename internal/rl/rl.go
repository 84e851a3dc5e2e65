// Package rl implements a tabular Q-learning filter that may override the
// meta agent's decision, and updates its table from realized trade
// outcomes.
package rl

import (
	"encoding/json"
	"math/rand"

	"github.com/tradecore/decision-core/internal/domain"
)

// Config holds the filter's tunables.
type Config struct {
	Epsilon            float64 // exploration probability
	Alpha              float64 // learning rate
	Gamma              float64 // discount factor
	OverrideConfidence float64 // minimum Q-value margin required to override
}

// DefaultConfig returns the default learning parameters.
func DefaultConfig() Config {
	return Config{Epsilon: 0.1, Alpha: 0.1, Gamma: 0.95, OverrideConfidence: 0.05}
}

// Filter wraps a QTable and a source of randomness for exploration.
type Filter struct {
	cfg   Config
	table domain.QTable
	rng   *rand.Rand
}

// New builds a Filter over an existing QTable (nil creates an empty one).
func New(cfg Config, table domain.QTable, rng *rand.Rand) *Filter {
	if table == nil {
		table = domain.QTable{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Filter{cfg: cfg, table: table, rng: rng}
}

// Table returns the filter's QTable, for persistence through the state
// store.
func (f *Filter) Table() domain.QTable {
	return f.table
}

// StateKeyFor discretizes the meta agent's decision context into the key
// the QTable indexes on: regime, a 10-unit RSI bucket, MACD histogram
// sign, and a 3-state trend bucket derived from ADX.
func StateKeyFor(regime domain.Regime, ind domain.Indicators) domain.RLStateKey {
	return domain.RLStateKey{
		Regime:      regime,
		RSIBucket:   rsiBucket(ind.RSI14),
		MACDSign:    macdSign(ind.MACDHistogram),
		TrendBucket: trendBucket(ind.ADX14),
	}
}

// rsiBucket maps RSI to one of 11 buckets (0-10). Undefined RSI (short
// series) buckets as neutral (5), same as an RSI reading of 50.
func rsiBucket(rsi *float64) int {
	if rsi == nil {
		return 5
	}
	b := int(*rsi / 10)
	if b < 0 {
		b = 0
	}
	if b > 10 {
		b = 10
	}
	return b
}

func macdSign(hist *float64) int {
	if hist == nil {
		return 0
	}
	switch {
	case *hist > 0:
		return 1
	case *hist < 0:
		return -1
	default:
		return 0
	}
}

// trendBucket collapses ADX into a 3-state bucket: 0 weak, 1 moderate, 2
// strong trend. Undefined ADX (short series) buckets as weak.
func trendBucket(adx *float64) int {
	if adx == nil {
		return 0
	}
	switch {
	case *adx >= 40:
		return 2
	case *adx >= 20:
		return 1
	default:
		return 0
	}
}

func keyString(k domain.RLStateKey) string {
	b, _ := json.Marshal(k)
	return string(b)
}

// KeyString serializes a state key the same way the table indexes it, for
// callers that need to persist a key alongside a position (e.g. so a
// closed trade's realized reward can be applied to the state it was opened
// under).
func KeyString(k domain.RLStateKey) string {
	return keyString(k)
}

// ParseKeyString reverses KeyString.
func ParseKeyString(s string) (domain.RLStateKey, error) {
	var k domain.RLStateKey
	err := json.Unmarshal([]byte(s), &k)
	return k, err
}

// Apply may override meta's action for the given state key: with
// probability epsilon it explores by taking the table's argmax action
// for the key, provided that action's Q-value margin over the runner-up
// clears OverrideConfidence. Otherwise it returns meta's action unchanged.
func (f *Filter) Apply(key domain.RLStateKey, metaAction domain.Side) domain.Side {
	if f.rng.Float64() >= f.cfg.Epsilon {
		return metaAction
	}

	actions, ok := f.table[keyString(key)]
	if !ok || len(actions) == 0 {
		return metaAction
	}

	best := domain.Side("")
	bestQ, secondQ := -1e18, -1e18
	for action, q := range actions {
		if q > bestQ {
			secondQ = bestQ
			best, bestQ = action, q
		} else if q > secondQ {
			secondQ = q
		}
	}

	if bestQ-secondQ < f.cfg.OverrideConfidence {
		return metaAction
	}
	return best
}

// Update applies the Q-learning rule for a closed trade's realized reward:
// Q[s,a] <- Q[s,a] + alpha*(r + gamma*max_a' Q[s',a'] - Q[s,a]).
func (f *Filter) Update(state domain.RLStateKey, action domain.Side, reward float64, nextState domain.RLStateKey) {
	sk := keyString(state)
	if f.table[sk] == nil {
		f.table[sk] = map[domain.Side]float64{}
	}

	current := f.table[sk][action]
	maxNext := f.maxQ(nextState)

	f.table[sk][action] = current + f.cfg.Alpha*(reward+f.cfg.Gamma*maxNext-current)
}

func (f *Filter) maxQ(state domain.RLStateKey) float64 {
	actions, ok := f.table[keyString(state)]
	if !ok || len(actions) == 0 {
		return 0
	}
	best := -1e18
	for _, q := range actions {
		if q > best {
			best = q
		}
	}
	return best
}
