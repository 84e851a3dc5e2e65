// Package tradernet adapts the Tradernet microservice client to the
// primary broker.Adapter contract.
package tradernet

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tradecore/decision-core/internal/broker"
	tnclient "github.com/tradecore/decision-core/internal/clients/tradernet"
	"github.com/tradecore/decision-core/internal/domain"
)

// Adapter wraps a Tradernet microservice client as the pipeline's primary
// broker: fractional-share capable by notional. It optionally runs a
// websocket fill stream alongside the synchronous REST submission, so a
// partial fill reported after the initial response still reaches the
// recorded OrderResult.
type Adapter struct {
	client     *tnclient.Client
	fillStream *tnclient.FillStream
	log        zerolog.Logger

	mu      sync.Mutex
	fillsByReq map[string]tnclient.FillEvent
}

// New builds a tradernet Adapter over an already-configured client.
func New(client *tnclient.Client, log zerolog.Logger) *Adapter {
	return &Adapter{
		client:     client,
		log:        log.With().Str("adapter", "tradernet").Logger(),
		fillsByReq: make(map[string]tnclient.FillEvent),
	}
}

// WithFillStream attaches a fill stream whose events update the in-memory
// fill cache that LatestFill reads from, and starts it against ctx. Optional:
// an Adapter built without one still works off the synchronous REST fill.
func (a *Adapter) WithFillStream(ctx context.Context, stream *tnclient.FillStream) *Adapter {
	a.fillStream = stream
	stream.Start(ctx)
	return a
}

// recordFill is the fill stream's callback, wired in by the caller that
// constructs the FillStream with this adapter's cache in mind.
func (a *Adapter) recordFill(evt tnclient.FillEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fillsByReq[evt.RequestID] = evt
}

// RecordFillFn returns recordFill as a bound callback, for constructing a
// FillStream that reports into this adapter's cache before the adapter
// itself has that stream attached.
func (a *Adapter) RecordFillFn() func(tnclient.FillEvent) {
	return a.recordFill
}

// LatestFill returns the most recent fill event seen for a request ID over
// the fill stream, if any arrived after the synchronous submission
// returned.
func (a *Adapter) LatestFill(requestID string) (tnclient.FillEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	evt, ok := a.fillsByReq[requestID]
	return evt, ok
}

func (a *Adapter) Name() string            { return "tradernet" }
func (a *Adapter) SupportsFractional() bool { return true }

func (a *Adapter) GetAccount(ctx context.Context) (broker.Account, error) {
	balances, err := a.client.GetCashBalances()
	if err != nil {
		return broker.Account{}, fmt.Errorf("tradernet get cash balances: %w", err)
	}

	var cash float64
	for _, b := range balances {
		if b.Currency == "EUR" || b.Currency == "USD" {
			cash += b.Amount
		}
	}

	positions, err := a.client.GetPortfolio()
	if err != nil {
		return broker.Account{}, fmt.Errorf("tradernet get portfolio: %w", err)
	}
	var marketValue float64
	for _, p := range positions {
		marketValue += p.MarketValueEUR
	}

	return broker.Account{Equity: cash + marketValue, Cash: cash, BuyingPower: cash}, nil
}

func (a *Adapter) ListPositions(ctx context.Context) ([]domain.Position, error) {
	raw, err := a.client.GetPortfolio()
	if err != nil {
		return nil, fmt.Errorf("tradernet list positions: %w", err)
	}

	out := make([]domain.Position, len(raw))
	for i, p := range raw {
		out[i] = domain.Position{
			Symbol:       p.Symbol,
			Currency:     domain.Currency(p.Currency),
			Quantity:     p.Quantity,
			AverageCost:  p.AvgPrice,
			CurrentPrice: p.CurrentPrice,
			MarketValue:  p.MarketValue,
			UnrealizedPL: p.UnrealizedPnL,
		}
	}
	return out, nil
}

func (a *Adapter) SubmitOrder(ctx context.Context, req domain.PositionRequest) (domain.OrderResult, error) {
	result, err := a.client.PlaceOrder(req.Symbol, string(req.Side), req.ResolvedQty(0), req.RequestID)
	if err != nil {
		return domain.OrderResult{RequestID: req.RequestID, Broker: a.Name(), Symbol: req.Symbol, Status: domain.OrderFailed, Error: err.Error()}, err
	}

	return domain.OrderResult{
		RequestID:   req.RequestID,
		Broker:      a.Name(),
		Symbol:      req.Symbol,
		Status:      domain.OrderFilled,
		FilledQty:   result.Quantity,
		FilledPrice: result.Price,
	}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	// The microservice client exposes no cancel endpoint; pending orders
	// are inspected via GetPendingOrders and reconciled at the orchestrator
	// level instead.
	return fmt.Errorf("tradernet adapter does not support order cancellation (order %s)", orderID)
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	health, err := a.client.HealthCheck()
	if err != nil {
		return fmt.Errorf("tradernet health check: %w", err)
	}
	if !health.Connected {
		return fmt.Errorf("tradernet microservice reports disconnected (as of %s)", health.Timestamp)
	}
	return nil
}
