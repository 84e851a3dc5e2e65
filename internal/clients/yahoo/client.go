// Package yahoo is a native Go client for Yahoo Finance's quote and chart
// endpoints, used as the market data provider's primary price/history
// source.
package yahoo

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client is a Yahoo Finance API client.
type Client struct {
	client *http.Client
	log    zerolog.Logger

	// BaseQuoteURL overrides the quote endpoint's scheme+host+path, for
	// tests to point at a local server. Defaults to the real endpoint.
	BaseQuoteURL string
}

const defaultQuoteURL = "https://query1.finance.yahoo.com/v7/finance/quote"

// NewClient creates a new Yahoo Finance client with the given request
// timeout.
func NewClient(log zerolog.Logger, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		client:       &http.Client{Timeout: timeout},
		log:          log.With().Str("client", "yahoo").Logger(),
		BaseQuoteURL: defaultQuoteURL,
	}
}

func (c *Client) quoteURL() string {
	if c.BaseQuoteURL != "" {
		return c.BaseQuoteURL
	}
	return defaultQuoteURL
}

// GetYahooSymbol converts a broker-format symbol to its Yahoo Finance
// equivalent.
func GetYahooSymbol(symbol string, yahooSymbolOverride *string) string {
	if yahooSymbolOverride != nil && *yahooSymbolOverride != "" {
		return *yahooSymbolOverride
	}

	if strings.HasSuffix(symbol, ".US") {
		return strings.TrimSuffix(symbol, ".US")
	}

	if strings.HasSuffix(symbol, ".JP") {
		base := strings.TrimSuffix(symbol, ".JP")
		return base + ".T"
	}

	return symbol
}

// HistoricalPrice is one OHLCV observation as returned by the chart API.
type HistoricalPrice struct {
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
	AdjClose float64
}

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []map[string]interface{} `json:"result"`
		Error  interface{}              `json:"error"`
	} `json:"quoteResponse"`
}

// GetCurrentPrice gets the current price with exponential-backoff retry.
func (c *Client) GetCurrentPrice(symbol string, yahooSymbolOverride *string, maxRetries int) (*float64, error) {
	if maxRetries == 0 {
		maxRetries = 3
	}

	yfSymbol := GetYahooSymbol(symbol, yahooSymbolOverride)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		info, err := c.getQuoteInfo(yfSymbol)
		if err != nil {
			lastErr = err
			if attempt < maxRetries-1 {
				waitTime := time.Duration(1<<uint(attempt)) * time.Second
				c.log.Warn().Err(err).
					Str("symbol", symbol).
					Int("attempt", attempt+1).
					Dur("wait", waitTime).
					Msg("failed to get price, retrying")
				time.Sleep(waitTime)
				continue
			}
			break
		}

		if price := getFloat64(info, "currentPrice"); price != nil && *price > 0 {
			return price, nil
		}
		if price := getFloat64(info, "regularMarketPrice"); price != nil && *price > 0 {
			return price, nil
		}

		if attempt < maxRetries-1 {
			waitTime := time.Duration(1<<uint(attempt)) * time.Second
			c.log.Warn().
				Str("symbol", symbol).
				Int("attempt", attempt+1).
				Dur("wait", waitTime).
				Msg("price was invalid, retrying")
			time.Sleep(waitTime)
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
	}
	return nil, fmt.Errorf("failed to get valid price after %d attempts", maxRetries)
}

// GetBatchQuotes fetches current prices for multiple symbols in one or more
// requests (Yahoo's quote endpoint caps at ~100 symbols per call).
func (c *Client) GetBatchQuotes(symbolOverrides map[string]*string) (map[string]*float64, error) {
	if len(symbolOverrides) == 0 {
		return map[string]*float64{}, nil
	}

	yahooSymbols := make([]string, 0, len(symbolOverrides))
	symbolMap := make(map[string]string)

	for origSymbol, yahooOverride := range symbolOverrides {
		yahooSymbol := GetYahooSymbol(origSymbol, yahooOverride)
		yahooSymbols = append(yahooSymbols, yahooSymbol)
		symbolMap[yahooSymbol] = origSymbol
	}

	const batchSize = 100
	result := make(map[string]*float64)

	for i := 0; i < len(yahooSymbols); i += batchSize {
		end := i + batchSize
		if end > len(yahooSymbols) {
			end = len(yahooSymbols)
		}

		batch := yahooSymbols[i:end]
		batchQuotes, err := c.getBatchQuoteInfo(batch)
		if err != nil {
			c.log.Warn().Err(err).Int("batch_size", len(batch)).Msg("failed to fetch batch quotes")
			continue
		}

		for yahooSymbol, info := range batchQuotes {
			origSymbol := symbolMap[yahooSymbol]

			var price *float64
			if p := getFloat64(info, "currentPrice"); p != nil && *p > 0 {
				price = p
			} else if p := getFloat64(info, "regularMarketPrice"); p != nil && *p > 0 {
				price = p
			}

			if price != nil {
				result[origSymbol] = price
			}
		}
	}

	c.log.Info().
		Int("requested", len(symbolOverrides)).
		Int("fetched", len(result)).
		Msg("batch quote fetch complete")

	return result, nil
}

func (c *Client) getBatchQuoteInfo(symbols []string) (map[string]map[string]interface{}, error) {
	if len(symbols) == 0 {
		return map[string]map[string]interface{}{}, nil
	}

	baseURL := c.quoteURL()
	params := url.Values{}
	params.Add("symbols", strings.Join(symbols, ","))
	params.Add("fields", "symbol,regularMarketPrice,currentPrice")

	req, err := http.NewRequest("GET", baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	var resp *http.Response
	var lastErr error
	const maxRetries = 3

	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err = c.client.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			break
		}
		if resp != nil {
			resp.Body.Close()
		}
		lastErr = err
		if resp != nil && resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
		}
		if attempt < maxRetries-1 {
			waitTime := time.Duration(1<<uint(attempt)) * time.Second
			c.log.Warn().Err(lastErr).Int("attempt", attempt+1).Dur("wait", waitTime).
				Msg("batch quote request failed, retrying")
			time.Sleep(waitTime)
		}
	}

	if resp == nil || resp.StatusCode != http.StatusOK {
		if lastErr != nil {
			return nil, fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
		}
		return nil, fmt.Errorf("failed after %d attempts with no error details", maxRetries)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var result yahooQuoteResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if result.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("yahoo finance api error: %v", result.QuoteResponse.Error)
	}

	quotes := make(map[string]map[string]interface{})
	for _, quote := range result.QuoteResponse.Result {
		if symbol, ok := quote["symbol"].(string); ok {
			quotes[symbol] = quote
		}
	}
	return quotes, nil
}

func (c *Client) getQuoteInfo(symbol string) (map[string]interface{}, error) {
	baseURL := c.quoteURL()
	params := url.Values{}
	params.Add("symbols", symbol)
	params.Add("fields", "symbol,regularMarketPrice,currentPrice")

	req, err := http.NewRequest("GET", baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("yahoo finance api returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var result yahooQuoteResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if result.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("yahoo finance api error: %v", result.QuoteResponse.Error)
	}
	if len(result.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("no quote data returned for symbol %s", symbol)
	}
	return result.QuoteResponse.Result[0], nil
}

func getFloat64(m map[string]interface{}, key string) *float64 {
	if val, ok := m[key]; ok && val != nil {
		switch v := val.(type) {
		case float64:
			return &v
		case int:
			f := float64(v)
			return &f
		case int64:
			f := float64(v)
			return &f
		}
	}
	return nil
}

// GetHistoricalPrices fetches historical OHLCV data from Yahoo Finance's
// chart API. Supported periods: 1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y,
// ytd, max.
func (c *Client) GetHistoricalPrices(symbol string, yahooSymbolOverride *string, period string) ([]HistoricalPrice, error) {
	yfSymbol := GetYahooSymbol(symbol, yahooSymbolOverride)

	baseURL := "https://query1.finance.yahoo.com/v8/finance/chart/" + url.QueryEscape(yfSymbol)
	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("range", period)

	req, err := http.NewRequest("GET", baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch historical data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("yahoo finance api returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var result struct {
		Chart struct {
			Result []struct {
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Quote []struct {
						Open   []float64 `json:"open"`
						High   []float64 `json:"high"`
						Low    []float64 `json:"low"`
						Close  []float64 `json:"close"`
						Volume []int64   `json:"volume"`
					} `json:"quote"`
					AdjClose []struct {
						AdjClose []float64 `json:"adjclose"`
					} `json:"adjclose"`
				} `json:"indicators"`
			} `json:"result"`
			Error interface{} `json:"error"`
		} `json:"chart"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if result.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo finance api error: %v", result.Chart.Error)
	}
	if len(result.Chart.Result) == 0 {
		c.log.Warn().Str("symbol", symbol).Msg("no historical data returned")
		return []HistoricalPrice{}, nil
	}

	chartData := result.Chart.Result[0]
	timestamps := chartData.Timestamp
	if len(chartData.Indicators.Quote) == 0 {
		c.log.Warn().Str("symbol", symbol).Msg("no quote data in response")
		return []HistoricalPrice{}, nil
	}
	quote := chartData.Indicators.Quote[0]

	var adjCloseData []float64
	if len(chartData.Indicators.AdjClose) > 0 {
		adjCloseData = chartData.Indicators.AdjClose[0].AdjClose
	}

	var prices []HistoricalPrice
	for i := range timestamps {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			continue
		}
		if quote.Open[i] == 0 && quote.High[i] == 0 && quote.Low[i] == 0 && quote.Close[i] == 0 {
			continue
		}

		adjClose := quote.Close[i]
		if i < len(adjCloseData) && adjCloseData[i] != 0 {
			adjClose = adjCloseData[i]
		}

		volume := int64(0)
		if i < len(quote.Volume) {
			volume = quote.Volume[i]
		}

		prices = append(prices, HistoricalPrice{
			Date:     time.Unix(timestamps[i], 0),
			Open:     quote.Open[i],
			High:     quote.High[i],
			Low:      quote.Low[i],
			Close:    quote.Close[i],
			Volume:   volume,
			AdjClose: adjClose,
		})
	}

	c.log.Info().
		Str("symbol", symbol).
		Str("period", period).
		Int("count", len(prices)).
		Msg("fetched historical prices")

	return prices, nil
}
