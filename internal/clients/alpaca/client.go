// Package alpaca wraps the Alpaca market data API as the market data
// provider's secondary source.
package alpaca

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Client wraps an Alpaca market data client with the logging and
// credential plumbing the rest of the pipeline expects.
type Client struct {
	md  *marketdata.Client
	log zerolog.Logger
}

// NewClient creates an Alpaca client scoped to the given API key pair and
// base URL (paper or live).
func NewClient(apiKey, apiSecret, baseURL string, log zerolog.Logger) *Client {
	md := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return &Client{md: md, log: log.With().Str("client", "alpaca").Logger()}
}

// Bar is one OHLCV observation as returned by Alpaca's bars endpoint.
type Bar struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// GetDailyBars fetches daily bars for symbol between start and end
// (inclusive), using the IEX feed (available without a market data
// subscription).
func (c *Client) GetDailyBars(symbol string, start, end time.Time) ([]Bar, error) {
	resp, err := c.md.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      marketdata.IEX,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch alpaca bars for %s: %w", symbol, err)
	}

	bars := make([]Bar, 0, len(resp))
	for _, b := range resp {
		bars = append(bars, Bar{
			Timestamp: b.Timestamp,
			Open:      decimal.NewFromFloat(b.Open),
			High:      decimal.NewFromFloat(b.High),
			Low:       decimal.NewFromFloat(b.Low),
			Close:     decimal.NewFromFloat(b.Close),
			Volume:    decimal.NewFromFloat(float64(b.Volume)),
		})
	}

	c.log.Info().Str("symbol", symbol).Int("count", len(bars)).Msg("fetched alpaca daily bars")
	return bars, nil
}

// GetLatestTrade fetches the most recent traded price for symbol.
func (c *Client) GetLatestTrade(symbol string) (decimal.Decimal, error) {
	trade, err := c.md.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{Feed: marketdata.IEX})
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch alpaca latest trade for %s: %w", symbol, err)
	}
	return decimal.NewFromFloat(trade.Price), nil
}
