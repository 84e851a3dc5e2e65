// Package alpaca adapts the Alpaca trading API as the fractional-share
// capable secondary broker.Adapter.
package alpaca

import (
	"context"
	"fmt"

	aalpaca "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tradecore/decision-core/internal/broker"
	"github.com/tradecore/decision-core/internal/domain"
)

// Adapter wraps an Alpaca trading client.
type Adapter struct {
	trading *aalpaca.Client
	log     zerolog.Logger
}

// New builds an Alpaca Adapter scoped to the given API key pair and base
// URL (paper or live trading endpoint).
func New(apiKey, apiSecret, baseURL string, log zerolog.Logger) *Adapter {
	trading := aalpaca.NewClient(aalpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return &Adapter{trading: trading, log: log.With().Str("adapter", "alpaca").Logger()}
}

func (a *Adapter) Name() string            { return "alpaca" }
func (a *Adapter) SupportsFractional() bool { return true }

func (a *Adapter) GetAccount(ctx context.Context) (broker.Account, error) {
	acct, err := a.trading.GetAccount()
	if err != nil {
		return broker.Account{}, fmt.Errorf("alpaca get account: %w", err)
	}
	equity, _ := acct.Equity.Float64()
	cash, _ := acct.Cash.Float64()
	buyingPower, _ := acct.BuyingPower.Float64()
	return broker.Account{Equity: equity, Cash: cash, BuyingPower: buyingPower}, nil
}

func (a *Adapter) ListPositions(ctx context.Context) ([]domain.Position, error) {
	positions, err := a.trading.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("alpaca list positions: %w", err)
	}

	out := make([]domain.Position, len(positions))
	for i, p := range positions {
		qty, _ := p.Qty.Float64()
		avgCost, _ := p.AvgEntryPrice.Float64()
		current, _ := p.CurrentPrice.Float64()
		marketValue, _ := p.MarketValue.Float64()
		unrealized, _ := p.UnrealizedPL.Float64()
		out[i] = domain.Position{
			Symbol: p.Symbol, Currency: domain.CurrencyUSD, Quantity: qty,
			AverageCost: avgCost, CurrentPrice: current, MarketValue: marketValue, UnrealizedPL: unrealized,
		}
	}
	return out, nil
}

func (a *Adapter) SubmitOrder(ctx context.Context, req domain.PositionRequest) (domain.OrderResult, error) {
	side := aalpaca.Buy
	if req.Side == domain.SideSell || req.Side == domain.SideClose {
		side = aalpaca.Sell
	}
	qty := decimal.NewFromFloat(req.ResolvedQty(0))

	order, err := a.trading.PlaceOrder(aalpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          side,
		Type:          aalpaca.Market,
		TimeInForce:   aalpaca.Day,
		ClientOrderID: req.RequestID,
	})
	if err != nil {
		return domain.OrderResult{RequestID: req.RequestID, Broker: a.Name(), Symbol: req.Symbol, Status: domain.OrderFailed, Error: err.Error()}, err
	}

	filledQty, _ := order.FilledQty.Float64()
	filledPrice := 0.0
	if order.FilledAvgPrice != nil {
		filledPrice, _ = order.FilledAvgPrice.Float64()
	}

	return domain.OrderResult{
		RequestID:   req.RequestID,
		Broker:      a.Name(),
		Symbol:      req.Symbol,
		Status:      statusFor(string(order.Status)),
		FilledQty:   filledQty,
		FilledPrice: filledPrice,
	}, nil
}

func statusFor(alpacaStatus string) domain.OrderStatus {
	switch alpacaStatus {
	case "filled":
		return domain.OrderFilled
	case "partially_filled":
		return domain.OrderPartiallyFilled
	case "rejected", "canceled", "expired":
		return domain.OrderRejected
	default:
		return domain.OrderFilled
	}
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	if err := a.trading.CancelOrder(orderID); err != nil {
		return fmt.Errorf("alpaca cancel order %s: %w", orderID, err)
	}
	return nil
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	if _, err := a.trading.GetAccount(); err != nil {
		return fmt.Errorf("alpaca health check: %w", err)
	}
	return nil
}
