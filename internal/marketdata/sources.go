package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/tradecore/decision-core/internal/clients/alpaca"
	"github.com/tradecore/decision-core/internal/clients/alphavantage"
	"github.com/tradecore/decision-core/internal/clients/yahoo"
	"github.com/tradecore/decision-core/internal/domain"
	"github.com/tradecore/decision-core/internal/netutil"
)

// Source is one collaborator the provider's fallback chain can try in
// order. Every source either returns a usable series or an error; it never
// blocks past the context deadline it is given.
type Source interface {
	Name() string
	Fetch(ctx context.Context, symbol string, lookbackDays int) (domain.BarSeries, error)
}

// YFinanceSource is the primary source, Yahoo Finance's free chart API.
type YFinanceSource struct {
	Client         *yahoo.Client
	MaxRetries     int
	InitialBackoff time.Duration
}

func (s *YFinanceSource) Name() string { return "yfinance" }

func (s *YFinanceSource) Fetch(ctx context.Context, symbol string, lookbackDays int) (domain.BarSeries, error) {
	period := periodForLookback(lookbackDays)

	var out domain.BarSeries
	err := netutil.Do(ctx, netutil.Config{MaxRetries: s.MaxRetries, InitialBackoff: s.InitialBackoff}, func(ctx context.Context) error {
		type result struct {
			prices []yahoo.HistoricalPrice
			err    error
		}
		done := make(chan result, 1)
		go func() {
			prices, err := s.Client.GetHistoricalPrices(symbol, nil, period)
			done <- result{prices, err}
		}()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-done:
			if r.err != nil {
				return fmt.Errorf("yfinance fetch %s: %w", symbol, r.err)
			}
			if len(r.prices) == 0 {
				return fmt.Errorf("yfinance returned no bars for %s", symbol)
			}
			bars := make([]domain.Bar, len(r.prices))
			for i, p := range r.prices {
				bars[i] = domain.Bar{
					Timestamp: p.Date, Open: p.Open, High: p.High, Low: p.Low,
					Close: p.Close, Volume: float64(p.Volume),
				}
			}
			out = domain.BarSeries{Symbol: symbol, Bars: bars}
			return nil
		}
	})
	return out, err
}

func periodForLookback(days int) string {
	switch {
	case days <= 5:
		return "5d"
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 365:
		return "1y"
	default:
		return "2y"
	}
}

// AlpacaSource is the secondary source: Alpaca's IEX-feed daily bars.
type AlpacaSource struct {
	Client         *alpaca.Client
	MaxRetries     int
	InitialBackoff time.Duration
}

func (s *AlpacaSource) Name() string { return "alpaca" }

func (s *AlpacaSource) Fetch(ctx context.Context, symbol string, lookbackDays int) (domain.BarSeries, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -lookbackDays)

	var out domain.BarSeries
	err := netutil.Do(ctx, netutil.Config{MaxRetries: s.MaxRetries, InitialBackoff: s.InitialBackoff}, func(ctx context.Context) error {
		type result struct {
			bars []alpaca.Bar
			err  error
		}
		done := make(chan result, 1)
		go func() {
			bars, err := s.Client.GetDailyBars(symbol, start, end)
			done <- result{bars, err}
		}()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-done:
			if r.err != nil {
				return fmt.Errorf("alpaca fetch %s: %w", symbol, r.err)
			}
			if len(r.bars) == 0 {
				return fmt.Errorf("alpaca returned no bars for %s", symbol)
			}
			bars := make([]domain.Bar, len(r.bars))
			for i, b := range r.bars {
				o, _ := b.Open.Float64()
				h, _ := b.High.Float64()
				l, _ := b.Low.Float64()
				c, _ := b.Close.Float64()
				v, _ := b.Volume.Float64()
				bars[i] = domain.Bar{Timestamp: b.Timestamp, Open: o, High: h, Low: l, Close: c, Volume: v}
			}
			out = domain.BarSeries{Symbol: symbol, Bars: bars}
			return nil
		}
	})
	return out, err
}

// AlphaVantageSource is the tertiary, rate-limited source. Its minimum
// inter-call interval is enforced inside the client itself (see
// internal/clients/alphavantage), not by this retry loop.
type AlphaVantageSource struct {
	Client         *alphavantage.Client
	MaxRetries     int
	InitialBackoff time.Duration
}

func (s *AlphaVantageSource) Name() string { return "alpha_vantage" }

func (s *AlphaVantageSource) Fetch(ctx context.Context, symbol string, lookbackDays int) (domain.BarSeries, error) {
	var out domain.BarSeries
	err := netutil.Do(ctx, netutil.Config{MaxRetries: s.MaxRetries, InitialBackoff: s.InitialBackoff}, func(ctx context.Context) error {
		type result struct {
			bars []alphavantage.DailyBar
			err  error
		}
		done := make(chan result, 1)
		go func() {
			bars, err := s.Client.GetDailyTimeSeries(symbol)
			done <- result{bars, err}
		}()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-done:
			if r.err != nil {
				return fmt.Errorf("alpha_vantage fetch %s: %w", symbol, r.err)
			}
			if len(r.bars) == 0 {
				return fmt.Errorf("alpha_vantage returned no bars for %s", symbol)
			}
			cutoff := len(r.bars) - lookbackDays
			if cutoff < 0 {
				cutoff = 0
			}
			trimmed := r.bars[cutoff:]
			bars := make([]domain.Bar, len(trimmed))
			for i, b := range trimmed {
				bars[i] = domain.Bar{Timestamp: b.Date, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
			}
			out = domain.BarSeries{Symbol: symbol, Bars: bars}
			return nil
		}
	})
	return out, err
}
