// Package domain holds the shared data model for the decision and execution
// pipeline: market data, indicators, specialist output, sizing, orders and
// the system's persisted state.
package domain

import (
	"fmt"
	"time"
)

// Currency represents a currency code.
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
)

// Money represents a monetary value with currency.
type Money struct {
	Currency Currency `json:"currency"`
	Amount   float64  `json:"amount"`
}

// NewMoney creates a new Money value.
func NewMoney(amount float64, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// Bar is a single OHLCV observation.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// BarSeries is an ordered, oldest-first sequence of bars for one symbol.
type BarSeries struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// Last returns the most recent bar and true, or the zero value and false
// when the series is empty.
func (s BarSeries) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Closes extracts the close price column, oldest first.
func (s BarSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// DataFreshness classifies how old a market data observation is relative to
// the trading session.
type DataFreshness string

const (
	FreshnessFresh   DataFreshness = "FRESH"
	FreshnessAging   DataFreshness = "AGING"
	FreshnessStale   DataFreshness = "STALE"
	FreshnessExpired DataFreshness = "EXPIRED"
)

// FetchAttempt records one source's outcome while the provider worked down
// its fallback chain for a single symbol.
type FetchAttempt struct {
	Source    string    `json:"source"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// MarketDataResult is what the market data provider returns for one symbol:
// the series it managed to assemble, which source produced it, how fresh it
// is, and the attempt trail across the fallback chain.
type MarketDataResult struct {
	Symbol        string         `json:"symbol"`
	Series        BarSeries      `json:"series"`
	Source        string         `json:"source"`
	Freshness     DataFreshness  `json:"freshness"`
	Confidence    float64        `json:"confidence"`
	FetchedAt     time.Time      `json:"fetched_at"`
	Attempts      []FetchAttempt `json:"attempts"`
	CacheAgeHours *float64       `json:"cache_age_hours,omitempty"`
}

// Indicators is the full set of derived technical values for one symbol at
// one point in time. Fields that are undefined when the bar series is
// shorter than the lookback window (RSI14, MACD family, ATR14, ADX14,
// ExpectedMove) are nil rather than a fallback number; callers must check
// before use.
type Indicators struct {
	Symbol          string    `json:"symbol"`
	AsOf            time.Time `json:"as_of"`
	SMA20           float64   `json:"sma20"`
	SMA50           float64   `json:"sma50"`
	EMA12           float64   `json:"ema12"`
	EMA26           float64   `json:"ema26"`
	MACD            *float64  `json:"macd"`
	MACDSignal      *float64  `json:"macd_signal"`
	MACDHistogram   *float64  `json:"macd_histogram"`
	RSI14           *float64  `json:"rsi14"`
	ATR14           *float64  `json:"atr14"`
	ADX14           *float64  `json:"adx14"`
	BollingerUpper  float64   `json:"bollinger_upper"`
	BollingerMiddle float64   `json:"bollinger_middle"`
	BollingerLower  float64   `json:"bollinger_lower"`
	RealizedVol20   float64   `json:"realized_vol20"`
	ExpectedMove    *float64  `json:"expected_move"`
}

// Float64Ptr returns a pointer to a defined indicator value, for
// constructing Indicators literals and for indicator calculations that have
// enough bars to produce a result.
func Float64Ptr(v float64) *float64 { return &v }

// Side is a trade direction.
type Side string

const (
	SideBuy   Side = "BUY"
	SideSell  Side = "SELL"
	SideHold  Side = "HOLD"
	SideClose Side = "CLOSE"
)

// AgentRole tags which specialist produced a recommendation.
type AgentRole string

const (
	RoleResearch  AgentRole = "RESEARCH"
	RoleSignal    AgentRole = "SIGNAL"
	RoleRisk      AgentRole = "RISK"
	RoleExecution AgentRole = "EXECUTION"
)

// SpecialistRecommendation is the single capability result every specialist
// agent returns: a direction, a confidence, and why.
type SpecialistRecommendation struct {
	Agent       AgentRole `json:"agent"`
	Symbol      string    `json:"symbol"`
	Action      Side      `json:"action"`
	Confidence  float64   `json:"confidence"`
	Rationale   string    `json:"rationale"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Regime is the market regime the meta agent assigns on each run.
type Regime string

const (
	RegimeLowVol   Regime = "LOW_VOL"
	RegimeHighVol  Regime = "HIGH_VOL"
	RegimeTrending Regime = "TRENDING"
	RegimeRanging  Regime = "RANGING"
	RegimeCrisis   Regime = "CRISIS"
)

// MetaDecision is the meta agent's weighted aggregation of the specialist
// recommendations for one symbol.
type MetaDecision struct {
	Symbol     string                     `json:"symbol"`
	Regime     Regime                     `json:"regime"`
	Action     Side                       `json:"action"`
	Confidence float64                    `json:"confidence"`
	Weights    map[AgentRole]float64      `json:"weights"`
	Inputs     []SpecialistRecommendation `json:"inputs"`
	DecidedAt  time.Time                  `json:"decided_at"`
}

// RLStateKey is the discretized key the Q-learner indexes on: market regime,
// a 10-unit RSI bucket, the MACD histogram's sign, and a 3-state trend
// bucket.
type RLStateKey struct {
	Regime      Regime `json:"regime"`
	RSIBucket   int    `json:"rsi_bucket"`
	MACDSign    int    `json:"macd_sign"`
	TrendBucket int    `json:"trend_bucket"`
}

// QTable maps a serialized RLStateKey to the learned action values.
type QTable map[string]map[Side]float64

// PositionRequest is the sized, risk-gated intent the executor attempts to
// fill, keyed by an idempotent RequestID. Exactly one of Notional or Qty is
// populated: Notional for a dollar-sized request, Qty for a share-sized one.
type PositionRequest struct {
	RequestID      string   `json:"request_id"`
	Symbol         string   `json:"symbol"`
	Side           Side     `json:"side"`
	Notional       *float64 `json:"notional,omitempty"`
	Qty            *float64 `json:"qty,omitempty"`
	TIF            string   `json:"tif,omitempty"`
	LimitPrice     float64  `json:"limit_price,omitempty"`
	StopLossPrice  float64  `json:"stop_loss_price,omitempty"`
	SizeMultiplier float64  `json:"size_multiplier"`
}

// NewQty returns a PositionRequest.Qty value for a share-sized request.
func NewQty(v float64) *float64 { return &v }

// NewNotional returns a PositionRequest.Notional value for a dollar-sized
// request.
func NewNotional(v float64) *float64 { return &v }

// Validate checks the notional/qty exclusivity invariant.
func (r PositionRequest) Validate() error {
	if (r.Notional == nil) == (r.Qty == nil) {
		return fmt.Errorf("position request %s: exactly one of notional or qty must be set", r.RequestID)
	}
	return nil
}

// ResolvedQty returns the request's share quantity, converting from Notional
// at the given reference price when the request was sized in dollars. price
// is ignored when Qty is already populated.
func (r PositionRequest) ResolvedQty(price float64) float64 {
	if r.Qty != nil {
		return *r.Qty
	}
	if r.Notional != nil && price > 0 {
		return *r.Notional / price
	}
	return 0
}

// OrderStatus is the lifecycle state of a submitted order.
type OrderStatus string

const (
	OrderFilled          OrderStatus = "FILLED"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderFailed          OrderStatus = "FAILED"
)

// OrderResult is what a broker adapter returns for one submitted request.
type OrderResult struct {
	RequestID   string      `json:"request_id"`
	Broker      string      `json:"broker"`
	Symbol      string      `json:"symbol"`
	Status      OrderStatus `json:"status"`
	FilledQty   float64     `json:"filled_qty"`
	FilledPrice float64     `json:"filled_price"`
	Error       string      `json:"error,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// Position is a held position as reported by (or reconciled against) a
// broker account. StopLossPrice is 0 when the position carries no
// protective stop (e.g. one opened before stop-loss tracking existed).
type Position struct {
	Symbol        string    `json:"symbol"`
	Currency      Currency  `json:"currency"`
	Quantity      float64   `json:"quantity"`
	AverageCost   float64   `json:"average_cost"`
	CurrentPrice  float64   `json:"current_price"`
	MarketValue   float64   `json:"market_value"`
	UnrealizedPL  float64   `json:"unrealized_pl"`
	StopLossPrice float64   `json:"stop_loss_price,omitempty"`
	OpenedAt      time.Time `json:"opened_at"`
	LastUpdated   time.Time `json:"last_updated"`
	EntryStateKey string    `json:"entry_state_key,omitempty"`
}

// ClosedTrade is a completed round trip used to estimate win-rate and
// expectancy for position sizing.
type ClosedTrade struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	PnL        float64   `json:"pnl"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
	ExitReason string    `json:"exit_reason"`
}

// BreakerLevel is the CLOSED/OPEN/HALF_OPEN state of a circuit breaker.
type BreakerLevel string

const (
	BreakerClosed   BreakerLevel = "CLOSED"
	BreakerOpen     BreakerLevel = "OPEN"
	BreakerHalfOpen BreakerLevel = "HALF_OPEN"
)

// BreakerTier is the advisory severity layered on top of BreakerLevel.
type BreakerTier string

const (
	TierNormal   BreakerTier = "NORMAL"
	TierCaution  BreakerTier = "CAUTION"
	TierWarning  BreakerTier = "WARNING"
	TierCritical BreakerTier = "CRITICAL"
	TierHalt     BreakerTier = "HALT"
)

// BreakerState is the persisted state of one circuit breaker (portfolio or
// per-broker).
type BreakerState struct {
	Name             string       `json:"name"`
	Level            BreakerLevel `json:"level"`
	Tier             BreakerTier  `json:"tier"`
	ConsecutiveFails int          `json:"consecutive_fails"`
	OpenedAt         time.Time    `json:"opened_at,omitempty"`
	LastTransition   time.Time    `json:"last_transition"`
	Reason           string       `json:"reason,omitempty"`
}

// StalenessMeta is the staleness classification computed when a SystemState
// is loaded. It is transient: Store.Save always clears it before writing, so
// the persisted file never carries a stale classification forward.
type StalenessMeta struct {
	StalenessHours float64       `json:"staleness_hours"`
	StalenessStatus DataFreshness `json:"staleness_status"`
	Confidence     float64       `json:"confidence"`
}

// SystemState is the complete persisted state of the pipeline, as written
// atomically to the JSON state file after every run.
type SystemState struct {
	SchemaVersion    int                     `json:"schema_version"`
	UpdatedAt        time.Time               `json:"updated_at"`
	RunID            string                  `json:"run_id"`
	Positions        map[string]Position     `json:"positions"`
	ClosedTrades     []ClosedTrade           `json:"closed_trades"`
	PortfolioBreaker BreakerState            `json:"portfolio_breaker"`
	BrokerBreakers   map[string]BreakerState `json:"broker_breakers"`
	QTable           QTable                  `json:"q_table"`
	CashAvailable    Money                   `json:"cash_available"`
	Meta             *StalenessMeta          `json:"meta,omitempty"`
}

// AuditRecord is one append-only entry describing a pipeline stage outcome,
// for after-the-fact inspection of a run.
type AuditRecord struct {
	RunID     string                 `json:"run_id" msgpack:"run_id"`
	Symbol    string                 `json:"symbol,omitempty" msgpack:"symbol,omitempty"`
	Stage     string                 `json:"stage" msgpack:"stage"`
	Timestamp time.Time              `json:"timestamp" msgpack:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty" msgpack:"payload,omitempty"`
	Outcome   string                 `json:"outcome" msgpack:"outcome"`
}

// HealthLogRecord is one line of the pre-market health check's JSON-lines
// log.
type HealthLogRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Healthy   bool              `json:"healthy"`
	Detail    string            `json:"detail,omitempty"`
}
