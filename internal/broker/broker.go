// Package broker defines the adapter contract every execution venue
// implements and the multi-broker executor that fails over across them.
package broker

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradecore/decision-core/internal/breaker"
	"github.com/tradecore/decision-core/internal/domain"
	"github.com/tradecore/decision-core/internal/netutil"
)

// NewRequestID generates a fresh idempotency key for a PositionRequest.
// Adapters forward it to the underlying broker call so a retry across
// brokers never produces a duplicate fill.
func NewRequestID() string {
	return uuid.NewString()
}

// Account is a broker's reported account snapshot.
type Account struct {
	Equity      float64
	Cash        float64
	BuyingPower float64
}

// Adapter is what a broker integration must implement. It is
// transport-agnostic: the primary adapter may support fractional shares by
// notional; backups may require whole-share quantities, in which case the
// Executor rounds notional to shares itself before calling SubmitOrder.
type Adapter interface {
	Name() string
	SupportsFractional() bool
	GetAccount(ctx context.Context) (Account, error)
	ListPositions(ctx context.Context) ([]domain.Position, error)
	SubmitOrder(ctx context.Context, req domain.PositionRequest) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	HealthCheck(ctx context.Context) error
}

// Executor tries brokers in priority order, skipping any whose breaker is
// open, and returns the first success. Every attempt is recorded for the
// caller to persist as part of the audit trail.
type Executor struct {
	adapters  []Adapter
	breakers  map[string]*breaker.Breaker
	retryCfg  netutil.Config
	log       zerolog.Logger
}

// NewExecutor builds an Executor over adapters in priority order. Each
// adapter gets its own circuit breaker using the given breaker config,
// seeded from persisted state when one is supplied for that broker name.
// retryCfg governs how many times a single adapter's SubmitOrder is retried
// with backoff before the executor moves on to the next adapter.
func NewExecutor(adapters []Adapter, breakerCfg breaker.Config, seeds map[string]domain.BreakerState, log zerolog.Logger, retryCfg ...netutil.Config) *Executor {
	breakers := make(map[string]*breaker.Breaker, len(adapters))
	for _, a := range adapters {
		var seed *domain.BreakerState
		if s, ok := seeds[a.Name()]; ok {
			seed = &s
		}
		breakers[a.Name()] = breaker.New(a.Name(), breakerCfg, seed, log)
	}
	var rc netutil.Config
	if len(retryCfg) > 0 {
		rc = retryCfg[0]
	}
	return &Executor{adapters: adapters, breakers: breakers, retryCfg: rc, log: log.With().Str("component", "executor").Logger()}
}

// BreakerStates returns a snapshot of every adapter's breaker state, for
// persistence through the state store.
func (e *Executor) BreakerStates() map[string]domain.BreakerState {
	out := make(map[string]domain.BreakerState, len(e.breakers))
	for name, br := range e.breakers {
		out[name] = br.State()
	}
	return out
}

// Attempt is one broker's outcome while servicing a single request.
type Attempt struct {
	Broker string
	Result domain.OrderResult
	Err    error
}

// SubmitOrder tries each adapter in order, skipping ones whose breaker is
// open, and returns the first success plus the full attempt log. If every
// adapter fails, it returns domain.ExecutionFailedError with every broker
// name it tried.
func (e *Executor) SubmitOrder(ctx context.Context, req domain.PositionRequest) (domain.OrderResult, []Attempt, error) {
	var attempts []Attempt
	var tried []string

	for _, adapter := range e.adapters {
		br := e.breakers[adapter.Name()]
		if !br.MayTrade(breaker.IntentEntry).Allow {
			e.log.Warn().Str("broker", adapter.Name()).Msg("skipping broker, breaker open")
			continue
		}
		tried = append(tried, adapter.Name())

		sized := req
		if !adapter.SupportsFractional() {
			sized = roundToWholeShares(req)
		}

		var result domain.OrderResult
		err := netutil.Do(ctx, e.retryCfg, func(ctx context.Context) error {
			var attemptErr error
			result, attemptErr = adapter.SubmitOrder(ctx, sized)
			if attemptErr != nil {
				return attemptErr
			}
			if result.Status == domain.OrderRejected || result.Status == domain.OrderFailed {
				return fmt.Errorf("broker %s rejected order: %s", adapter.Name(), result.Error)
			}
			return nil
		})
		attempts = append(attempts, Attempt{Broker: adapter.Name(), Result: result, Err: err})

		if err != nil || result.Status == domain.OrderRejected || result.Status == domain.OrderFailed {
			reason := result.Error
			if reason == "" && err != nil {
				reason = err.Error()
			}
			br.RecordFailure(reason)
			continue
		}

		br.RecordSuccess()
		if req.StopLossPrice > 0 {
			e.attachStopLoss(ctx, adapter, req, result)
		}
		return result, attempts, nil
	}

	return domain.OrderResult{}, attempts, domain.ExecutionFailedError{Symbol: req.Symbol, Brokers: tried}
}

// attachStopLoss places a protective stop on the broker that just filled
// the primary order. If the stop fails to place, it attempts an emergency
// close of the position it just opened (best effort) and logs a CRITICAL
// alert either way.
func (e *Executor) attachStopLoss(ctx context.Context, adapter Adapter, original domain.PositionRequest, fill domain.OrderResult) {
	stopReq := domain.PositionRequest{
		RequestID:     original.RequestID + "-stop",
		Symbol:        original.Symbol,
		Side:          oppositeSide(original.Side),
		Qty:           domain.NewQty(fill.FilledQty),
		TIF:           "day",
		LimitPrice:    original.StopLossPrice,
		StopLossPrice: 0,
	}

	if _, err := adapter.SubmitOrder(ctx, stopReq); err != nil {
		e.log.Error().Err(err).Str("broker", adapter.Name()).Str("symbol", original.Symbol).
			Msg("CRITICAL: failed to attach stop-loss, attempting emergency close")

		closeReq := domain.PositionRequest{
			RequestID: original.RequestID + "-emergency-close",
			Symbol:    original.Symbol,
			Side:      oppositeSide(original.Side),
			Qty:       domain.NewQty(fill.FilledQty),
			TIF:       "day",
		}
		if _, closeErr := adapter.SubmitOrder(ctx, closeReq); closeErr != nil {
			e.log.Error().Err(closeErr).Str("symbol", original.Symbol).
				Msg("CRITICAL: emergency close also failed, position left unprotected")
		}
	}
}

func oppositeSide(side domain.Side) domain.Side {
	if side == domain.SideBuy {
		return domain.SideSell
	}
	return domain.SideBuy
}

// roundToWholeShares rounds a request down to a whole-share Qty for adapters
// that cannot fill fractional shares. A notional-sized request is resolved
// at a zero reference price here (the caller has no live quote at this
// layer); adapters that need an accurate notional-to-shares conversion do it
// themselves against a real quote before submission.
func roundToWholeShares(req domain.PositionRequest) domain.PositionRequest {
	rounded := req
	qty := math.Trunc(req.ResolvedQty(0))
	rounded.Qty = domain.NewQty(qty)
	rounded.Notional = nil
	return rounded
}

// PrimaryAccount returns the highest-priority adapter's account snapshot,
// for pre-market checks that need a free-cash figure.
func (e *Executor) PrimaryAccount(ctx context.Context) (Account, error) {
	if len(e.adapters) == 0 {
		return Account{}, fmt.Errorf("no broker adapters configured")
	}
	return e.adapters[0].GetAccount(ctx)
}

// HealthCheckAll runs every adapter's health check and returns the first
// error encountered, annotated with which broker failed.
func (e *Executor) HealthCheckAll(ctx context.Context) error {
	for _, adapter := range e.adapters {
		if err := adapter.HealthCheck(ctx); err != nil {
			return fmt.Errorf("broker %s health check failed: %w", adapter.Name(), err)
		}
	}
	return nil
}
