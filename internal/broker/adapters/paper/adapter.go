// Package paper implements a paper-trading broker.Adapter: every order
// fills immediately at the latest quote, for PAPER_TRADING=true runs and
// for the fast smoke-test path in the pre-market health check.
package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tradecore/decision-core/internal/broker"
	"github.com/tradecore/decision-core/internal/clients/yahoo"
	"github.com/tradecore/decision-core/internal/domain"
)

// Adapter simulates fills using the live quote from a yahoo.Client,
// tracking positions and cash in memory only.
type Adapter struct {
	quotes *yahoo.Client
	log    zerolog.Logger

	mu        sync.Mutex
	cash      float64
	positions map[string]domain.Position
	orders    map[string]domain.OrderResult
}

// New builds a paper Adapter seeded with startingCash.
func New(quotes *yahoo.Client, startingCash float64, log zerolog.Logger) *Adapter {
	return &Adapter{
		quotes:    quotes,
		cash:      startingCash,
		positions: make(map[string]domain.Position),
		orders:    make(map[string]domain.OrderResult),
		log:       log.With().Str("adapter", "paper").Logger(),
	}
}

func (a *Adapter) Name() string            { return "paper" }
func (a *Adapter) SupportsFractional() bool { return true }

func (a *Adapter) GetAccount(ctx context.Context) (broker.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	marketValue := 0.0
	for _, p := range a.positions {
		marketValue += p.MarketValue
	}
	equity := a.cash + marketValue
	return broker.Account{Equity: equity, Cash: a.cash, BuyingPower: a.cash}, nil
}

func (a *Adapter) ListPositions(ctx context.Context) ([]domain.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, p)
	}
	return out, nil
}

func (a *Adapter) SubmitOrder(ctx context.Context, req domain.PositionRequest) (domain.OrderResult, error) {
	price, err := a.quotes.GetCurrentPrice(req.Symbol, nil, 1)
	if err != nil || price == nil {
		return domain.OrderResult{RequestID: req.RequestID, Broker: a.Name(), Symbol: req.Symbol, Status: domain.OrderFailed, Error: "no quote available"},
			fmt.Errorf("paper fill for %s: %w", req.Symbol, err)
	}

	qty := req.ResolvedQty(*price)

	a.mu.Lock()
	defer a.mu.Unlock()

	notional := qty * *price
	switch req.Side {
	case domain.SideBuy:
		a.cash -= notional
	case domain.SideSell, domain.SideClose:
		a.cash += notional
	}
	a.applyFill(req, qty, *price)

	result := domain.OrderResult{
		RequestID:   req.RequestID,
		Broker:      a.Name(),
		Symbol:      req.Symbol,
		Status:      domain.OrderFilled,
		FilledQty:   qty,
		FilledPrice: *price,
	}
	a.orders[req.RequestID] = result
	return result, nil
}

func (a *Adapter) applyFill(req domain.PositionRequest, qty, price float64) {
	pos, exists := a.positions[req.Symbol]
	if !exists {
		pos = domain.Position{Symbol: req.Symbol, Currency: domain.CurrencyUSD}
	}

	switch req.Side {
	case domain.SideBuy:
		totalCost := pos.AverageCost*pos.Quantity + price*qty
		pos.Quantity += qty
		if pos.Quantity > 0 {
			pos.AverageCost = totalCost / pos.Quantity
		}
	case domain.SideSell, domain.SideClose:
		pos.Quantity -= qty
	}
	pos.CurrentPrice = price
	pos.MarketValue = pos.Quantity * price
	pos.UnrealizedPL = (price - pos.AverageCost) * pos.Quantity

	if pos.Quantity <= 0 {
		delete(a.positions, req.Symbol)
		return
	}
	a.positions[req.Symbol] = pos
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.orders[orderID]; !ok {
		return fmt.Errorf("paper order %s not found", orderID)
	}
	delete(a.orders, orderID)
	return nil
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	if _, err := a.quotes.GetCurrentPrice("SPY", nil, 1); err != nil {
		return fmt.Errorf("paper adapter quote smoke test failed: %w", err)
	}
	return nil
}
