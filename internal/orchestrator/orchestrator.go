// Package orchestrator drives one end-to-end invocation of the decision
// and execution pipeline: load state, check health, consult the portfolio
// breaker, run the per-symbol pipeline, mark open positions to market, and
// persist the result.
package orchestrator

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradecore/decision-core/internal/agents"
	"github.com/tradecore/decision-core/internal/breaker"
	"github.com/tradecore/decision-core/internal/broker"
	"github.com/tradecore/decision-core/internal/domain"
	"github.com/tradecore/decision-core/internal/events"
	"github.com/tradecore/decision-core/internal/marketdata"
	"github.com/tradecore/decision-core/internal/meta"
	"github.com/tradecore/decision-core/internal/rl"
	"github.com/tradecore/decision-core/internal/risk"
	"github.com/tradecore/decision-core/internal/state"
	"github.com/tradecore/decision-core/pkg/indicators"
)

// Exit codes for one orchestrator invocation, returned by Run.
const (
	ExitOK             = 0
	ExitStateExpired   = 2
	ExitBreakerHalt    = 3
	ExitHealthFailed   = 4
	ExitUnhandledError = 5
)

// Config holds the orchestrator's concurrency and timing tunables.
type Config struct {
	WorkerPoolSize    int
	SpecialistTimeout time.Duration
	RunDeadline       time.Duration
}

// DefaultConfig returns the pipeline's default concurrency and timing model.
func DefaultConfig() Config {
	return Config{
		WorkerPoolSize:    min(8, runtime.NumCPU()),
		SpecialistTimeout: 10 * time.Second,
		RunDeadline:       5 * time.Minute,
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Orchestrator wires every pipeline component together for one invocation.
// Its meta agent and RL filter are mutated under runMu so concurrent
// per-symbol workers never race them; the specialists and the network-bound
// calls (market data, executor) run outside runMu and are left to their own
// internal synchronization.
type Orchestrator struct {
	cfg Config

	stateStore       *state.Store
	breakerCfg       breaker.Config
	healthChecker    *HealthChecker
	provider         *marketdata.Provider
	specialists      []agents.Agent
	metaAgent        *meta.Agent
	rlFilter         *rl.Filter // rebuilt each Run from the loaded QTable
	riskMgr          *risk.Manager
	executor         *broker.Executor
	audit            *events.Manager
	watchlist        []string
	portfolioValueFn func(ctx context.Context) (float64, error)

	portfolioBreaker *breaker.Breaker // rebuilt each Run from persisted state

	runMu sync.Mutex
	log   zerolog.Logger
}

// Deps bundles every collaborator the Orchestrator needs, constructed and
// wired by the DI container.
type Deps struct {
	StateStore       *state.Store
	BreakerCfg       breaker.Config
	HealthChecker    *HealthChecker
	Provider         *marketdata.Provider
	Specialists      []agents.Agent
	MetaAgent        *meta.Agent
	RiskMgr          *risk.Manager
	Executor         *broker.Executor
	Audit            *events.Manager
	Watchlist        []string
	PortfolioValueFn func(ctx context.Context) (float64, error)
}

// New builds an Orchestrator from its dependencies.
func New(cfg Config, deps Deps, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:              cfg,
		stateStore:       deps.StateStore,
		breakerCfg:       deps.BreakerCfg,
		healthChecker:    deps.HealthChecker,
		provider:         deps.Provider,
		specialists:      deps.Specialists,
		metaAgent:        deps.MetaAgent,
		riskMgr:          deps.RiskMgr,
		executor:         deps.Executor,
		audit:            deps.Audit,
		watchlist:        deps.Watchlist,
		portfolioValueFn: deps.PortfolioValueFn,
		log:              log.With().Str("component", "orchestrator").Logger(),
	}
}

// Run executes one complete invocation and returns the process exit code
// defined by the package's exit-code constants. A panic on Run's own
// goroutine is recovered and reported as ExitUnhandledError.
func (o *Orchestrator) Run(parent context.Context) (code int) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Interface("panic", r).Msg("run panicked")
			code = ExitUnhandledError
		}
	}()
	runID := uuid.NewString()
	ctx, cancel := context.WithTimeout(parent, o.cfg.RunDeadline)
	defer cancel()

	log := o.log.With().Str("run_id", runID).Logger()
	o.audit.Emit(events.KindRunStarted, "", "ok", map[string]interface{}{"run_id": runID})

	loaded, err := o.stateStore.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load state")
		o.audit.Emit(events.KindErrorOccurred, "", "fatal", map[string]interface{}{"stage": "load_state", "error": err.Error()})
		return ExitUnhandledError
	}
	if !loaded.Usable {
		log.Error().Str("freshness", string(loaded.Freshness)).Msg("persisted state expired")
		o.audit.Emit(events.KindErrorOccurred, "", "state_expired", map[string]interface{}{"freshness": string(loaded.Freshness)})
		return ExitStateExpired
	}

	st := loaded.State
	if st.Positions == nil {
		st.Positions = map[string]domain.Position{}
	}
	if st.BrokerBreakers == nil {
		st.BrokerBreakers = map[string]domain.BreakerState{}
	}

	portfolioBreaker := breaker.New("portfolio", o.breakerCfg, &loaded.State.PortfolioBreaker, log)
	o.portfolioBreaker = portfolioBreaker

	portfolioValue := o.estimatePortfolioValue(ctx, st)
	portfolioBreaker.RecordDailyPnL(dailyLossPct(st, portfolioValue))

	o.audit.Emit(events.KindHealthChecked, "", "pending", nil)

	if err := o.healthChecker.Check(ctx); err != nil {
		log.Error().Err(err).Msg("pre-market health check failed")
		o.audit.Emit(events.KindErrorOccurred, "", "health_check_failed", map[string]interface{}{"error": err.Error()})
		return ExitHealthFailed
	}
	o.audit.Emit(events.KindHealthChecked, "", "ok", nil)

	if portfolioBreaker.State().Tier == domain.TierHalt {
		log.Warn().Msg("portfolio breaker halted, refusing to trade")
		o.audit.Emit(events.KindBreakerTransition, "", "halt", map[string]interface{}{"reason": portfolioBreaker.State().Reason})
		return ExitBreakerHalt
	}

	entryAllowed := portfolioBreaker.MayTrade(breaker.IntentEntry).Allow
	exitAllowed := portfolioBreaker.MayTrade(breaker.IntentExit).Allow
	if !entryAllowed {
		log.Warn().Msg("portfolio breaker restricts new entries this run")
		o.audit.Emit(events.KindBreakerTransition, "", "entries_blocked", map[string]interface{}{"reason": portfolioBreaker.State().Reason})
	}
	if !exitAllowed {
		log.Warn().Msg("portfolio breaker open, refusing exits this run")
		o.audit.Emit(events.KindBreakerTransition, "", "exits_blocked", map[string]interface{}{"reason": portfolioBreaker.State().Reason})
	}

	o.rlFilter = rl.New(rl.DefaultConfig(), loaded.State.QTable, nil)

	var results []symbolResult
	if entryAllowed {
		results = o.runWatchlist(ctx, st, portfolioValue, log)
	}

	for _, r := range results {
		if r.position != nil {
			st.Positions[r.symbol] = *r.position
		}
	}

	if exitAllowed {
		entryKeys := make(map[string]string, len(st.Positions))
		for symbol, pos := range st.Positions {
			entryKeys[symbol] = pos.EntryStateKey
		}

		closed := o.markToMarket(ctx, st, results, log)
		st.ClosedTrades = append(st.ClosedTrades, closed...)
		for _, ct := range closed {
			portfolioBreaker.RecordClosedTrade(ct.PnL)
			if ct.EntryPrice <= 0 || ct.Quantity <= 0 {
				continue
			}
			reward := ct.PnL / (ct.EntryPrice * ct.Quantity)
			if key, err := rl.ParseKeyString(entryKeys[ct.Symbol]); err == nil {
				o.rlFilter.Update(key, ct.Side, reward, key)
			}
		}
	}

	st.PortfolioBreaker = portfolioBreaker.State()
	st.QTable = o.rlFilter.Table()
	for name, bs := range o.executor.BreakerStates() {
		st.BrokerBreakers[name] = bs
	}

	if err := o.stateStore.Save(st); err != nil {
		log.Error().Err(err).Msg("failed to persist state")
		o.audit.Emit(events.KindErrorOccurred, "", "persist_failed", map[string]interface{}{"error": err.Error()})
		return ExitUnhandledError
	}

	o.audit.Emit(events.KindRunCompleted, "", "ok", map[string]interface{}{"symbols_processed": len(results)})
	return ExitOK
}

// dailyLossPct approximates the portfolio's realized+unrealized P&L over
// the trailing 24 hours as a fraction of portfolio value: unrealized P&L on
// every currently open position, plus the realized P&L of every trade
// closed within the last 24 hours (there is no start-of-day snapshot to
// diff against, so the trailing window is the closest available proxy for
// "today").
func dailyLossPct(st domain.SystemState, portfolioValue float64) float64 {
	if portfolioValue <= 0 {
		return 0
	}
	var pnl float64
	for _, p := range st.Positions {
		pnl += p.UnrealizedPL
	}
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	for _, ct := range st.ClosedTrades {
		if ct.ClosedAt.After(cutoff) {
			pnl += ct.PnL
		}
	}
	return pnl / portfolioValue
}

func (o *Orchestrator) estimatePortfolioValue(ctx context.Context, st domain.SystemState) float64 {
	if o.portfolioValueFn != nil {
		if v, err := o.portfolioValueFn(ctx); err == nil && v > 0 {
			return v
		}
	}
	total := st.CashAvailable.Amount
	for _, p := range st.Positions {
		total += p.MarketValue
	}
	return total
}

// symbolResult is one symbol's pipeline outcome, consumed by the caller to
// update positions and persisted state.
type symbolResult struct {
	symbol   string
	position *domain.Position
	price    float64
}

// runWatchlist fans out the per-symbol pipeline across a bounded worker
// pool and fans results back in.
func (o *Orchestrator) runWatchlist(ctx context.Context, st domain.SystemState, portfolioValue float64, log zerolog.Logger) []symbolResult {
	sem := make(chan struct{}, o.cfg.WorkerPoolSize)
	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make([]symbolResult, 0, len(o.watchlist))

	for _, symbol := range o.watchlist {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			r := o.processSymbol(ctx, symbol, st, portfolioValue, log)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()
	return results
}

// processSymbol runs one symbol through fetch -> indicators -> specialists
// -> meta -> RL -> risk -> executor.
func (o *Orchestrator) processSymbol(ctx context.Context, symbol string, st domain.SystemState, portfolioValue float64, log zerolog.Logger) symbolResult {
	data, err := o.provider.Fetch(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("skipping symbol, no market data")
		o.audit.Emit(events.KindDataFetched, symbol, "skipped", map[string]interface{}{"error": err.Error()})
		o.portfolioBreaker.RecordAPIError()
		return symbolResult{symbol: symbol}
	}

	var fetchedPrice float64
	if last, ok := data.Series.Last(); ok {
		fetchedPrice = last.Close
	}

	ind := indicators.Compute(data.Series)
	o.audit.Emit(events.KindIndicatorsComputed, symbol, "ok", map[string]interface{}{
		"rsi14": ind.RSI14, "adx14": ind.ADX14, "macd_histogram": ind.MACDHistogram,
	})

	existing := st.Positions[symbol]
	recs := o.runSpecialists(ctx, symbol, data.Series, ind, portfolioValue, existing, st.ClosedTrades, log)
	for _, rec := range recs {
		o.audit.Emit(events.KindRecommendation, symbol, string(rec.Action), map[string]interface{}{
			"agent": string(rec.Agent), "confidence": rec.Confidence,
		})
	}

	o.runMu.Lock()
	o.metaAgent.ObserveVolatility(ind.RealizedVol20)
	regime := o.metaAgent.DetectRegime(data.Series, ind)
	decision := o.metaAgent.Aggregate(symbol, regime, recs)
	stateKey := rl.StateKeyFor(regime, ind)
	finalAction := o.rlFilter.Apply(stateKey, decision.Action)
	o.runMu.Unlock()

	o.audit.Emit(events.KindMetaDecision, symbol, string(decision.Action), map[string]interface{}{
		"regime": string(regime), "confidence": decision.Confidence,
	})
	if finalAction != decision.Action {
		o.audit.Emit(events.KindRLOverride, symbol, string(finalAction), map[string]interface{}{"meta_action": string(decision.Action)})
		decision.Action = finalAction
	}

	if decision.Action == domain.SideHold {
		return symbolResult{symbol: symbol, price: fetchedPrice}
	}

	last, ok := data.Series.Last()
	if !ok || last.Close <= 0 {
		return symbolResult{symbol: symbol}
	}

	qty, stopLoss, reason := o.riskMgr.Size(risk.SizeInputs{
		Decision:          decision,
		Indicators:        ind,
		Price:             last.Close,
		PortfolioValue:    portfolioValue,
		ExistingExposure:  existing.MarketValue,
		ClosedTrades:      st.ClosedTrades,
		BreakerMultiplier: o.portfolioBreaker.MayTrade(breaker.IntentEntry).ScaleFactor,
	})
	if qty <= 0 {
		log.Info().Str("symbol", symbol).Str("reason", reason).Msg("risk veto")
		o.audit.Emit(events.KindRiskVeto, symbol, "veto", map[string]interface{}{"reason": reason})
		return symbolResult{symbol: symbol, price: fetchedPrice}
	}

	req := domain.PositionRequest{
		RequestID:     broker.NewRequestID(),
		Symbol:        symbol,
		Side:          decision.Action,
		Qty:           domain.NewQty(qty),
		TIF:           "day",
		StopLossPrice: stopLoss,
	}
	result, attempts, err := o.executor.SubmitOrder(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("execution failed across all brokers")
		o.audit.Emit(events.KindErrorOccurred, symbol, "execution_failed", map[string]interface{}{"attempts": len(attempts), "error": err.Error()})
		o.portfolioBreaker.RecordAPIError()
		return symbolResult{symbol: symbol, price: fetchedPrice}
	}

	o.audit.Emit(events.KindOrderSubmitted, symbol, string(result.Status), map[string]interface{}{
		"broker": result.Broker, "qty": result.FilledQty, "price": result.FilledPrice,
	})

	pos := mergePosition(existing, result, stopLoss, rl.KeyString(stateKey))
	return symbolResult{symbol: symbol, position: &pos, price: fetchedPrice}
}

func (o *Orchestrator) runSpecialists(ctx context.Context, symbol string, series domain.BarSeries, ind domain.Indicators, portfolioValue float64, existing domain.Position, closedTrades []domain.ClosedTrade, log zerolog.Logger) []domain.SpecialistRecommendation {
	in := agents.Context{
		Symbol:            symbol,
		Series:            series,
		Indicators:        ind,
		PortfolioValue:    portfolioValue,
		ExistingExposure:  existing.MarketValue,
		ClosedTrades:      closedTrades,
		BreakerMultiplier: o.portfolioBreaker.MayTrade(breaker.IntentEntry).ScaleFactor,
	}

	type out struct {
		idx int
		rec domain.SpecialistRecommendation
	}
	results := make([]domain.SpecialistRecommendation, len(o.specialists))
	var wg sync.WaitGroup
	ch := make(chan out, len(o.specialists))

	for i, a := range o.specialists {
		wg.Add(1)
		go func(i int, a agents.Agent) {
			defer wg.Done()
			specCtx, cancel := context.WithTimeout(ctx, o.cfg.SpecialistTimeout)
			defer cancel()

			done := make(chan domain.SpecialistRecommendation, 1)
			go func() { done <- a.Analyze(specCtx, in) }()

			select {
			case rec := <-done:
				ch <- out{i, rec}
			case <-specCtx.Done():
				log.Warn().Str("symbol", symbol).Str("agent", string(a.Role())).Msg("specialist timed out, degrading to hold")
				ch <- out{i, domain.SpecialistRecommendation{Agent: a.Role(), Symbol: symbol, Action: domain.SideHold, Confidence: 0, Rationale: "timeout"}}
			}
		}(i, a)
	}

	wg.Wait()
	close(ch)
	for item := range ch {
		results[item.idx] = item.rec
	}
	return results
}

func mergePosition(existing domain.Position, fill domain.OrderResult, stopLoss float64, entryKey string) domain.Position {
	pos := existing
	pos.Symbol = fill.Symbol
	if pos.Currency == "" {
		pos.Currency = domain.CurrencyUSD
	}

	switch fill.Status {
	case domain.OrderFilled, domain.OrderPartiallyFilled:
		totalCost := pos.AverageCost*pos.Quantity + fill.FilledPrice*fill.FilledQty
		pos.Quantity += fill.FilledQty
		if pos.Quantity > 0 {
			pos.AverageCost = totalCost / pos.Quantity
		}
		pos.CurrentPrice = fill.FilledPrice
		pos.MarketValue = pos.Quantity * fill.FilledPrice
		pos.UnrealizedPL = (fill.FilledPrice - pos.AverageCost) * pos.Quantity
		if stopLoss > 0 {
			pos.StopLossPrice = stopLoss
		}
		if pos.OpenedAt.IsZero() {
			pos.OpenedAt = fill.SubmittedAt
		}
		pos.EntryStateKey = entryKey
		pos.LastUpdated = time.Now().UTC()
	}
	return pos
}

// markToMarket revalues every open position against this run's fetched
// prices and closes any whose stop-loss was breached.
func (o *Orchestrator) markToMarket(ctx context.Context, st domain.SystemState, results []symbolResult, log zerolog.Logger) []domain.ClosedTrade {
	latestPrice := map[string]float64{}
	for _, r := range results {
		if r.price > 0 {
			latestPrice[r.symbol] = r.price
		}
	}

	var closed []domain.ClosedTrade
	for symbol, pos := range st.Positions {
		price, ok := latestPrice[symbol]
		if !ok || pos.Quantity <= 0 {
			continue
		}

		pos.CurrentPrice = price
		pos.MarketValue = pos.Quantity * price
		pos.UnrealizedPL = (price - pos.AverageCost) * pos.Quantity

		if pos.StopLossPrice > 0 && price <= pos.StopLossPrice {
			closeReq := domain.PositionRequest{
				RequestID: broker.NewRequestID(),
				Symbol:    symbol,
				Side:      domain.SideClose,
				Qty:       domain.NewQty(pos.Quantity),
				TIF:       "day",
			}
			result, _, err := o.executor.SubmitOrder(ctx, closeReq)
			if err != nil {
				log.Error().Err(err).Str("symbol", symbol).Msg("failed to close stopped-out position")
				o.portfolioBreaker.RecordAPIError()
				st.Positions[symbol] = pos
				continue
			}

			pnl := (result.FilledPrice - pos.AverageCost) * pos.Quantity
			closed = append(closed, domain.ClosedTrade{
				Symbol: symbol, Side: domain.SideSell, Quantity: pos.Quantity,
				EntryPrice: pos.AverageCost, ExitPrice: result.FilledPrice, PnL: pnl,
				OpenedAt: pos.OpenedAt, ClosedAt: time.Now().UTC(), ExitReason: "stop_loss",
			})
			o.audit.Emit(events.KindOrderSubmitted, symbol, "closed", map[string]interface{}{"exit_reason": "stop_loss", "pnl": pnl})
			delete(st.Positions, symbol)
			continue
		}

		st.Positions[symbol] = pos
	}
	return closed
}
