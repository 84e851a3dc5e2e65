// Package alphavantage is a minimal client for the Alpha Vantage
// TIME_SERIES_DAILY endpoint, used as the market data provider's
// rate-limited tertiary source.
package alphavantage

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrRateLimitExceeded is returned once the client has made its daily
// allotment of requests.
type ErrRateLimitExceeded struct {
	Limit int
}

func (e ErrRateLimitExceeded) Error() string {
	return fmt.Sprintf("alpha vantage daily request limit of %d exceeded", e.Limit)
}

type cacheEntry struct {
	data      interface{}
	expiresAt time.Time
}

// Client is a minimal Alpha Vantage HTTP client with a daily request
// counter and a small TTL cache, reflecting the free tier's tight limits.
type Client struct {
	apiKey      string
	httpClient  *http.Client
	log         zerolog.Logger
	maxPerDay   int
	minInterval time.Duration

	mu           sync.Mutex
	requestCount int
	dayStarted   time.Time
	lastRequest  time.Time
	cache        map[string]cacheEntry
}

// NewClient creates an Alpha Vantage client. maxPerDay and minInterval
// default to the free tier's limits (25 requests/day, 12s between calls)
// when zero.
func NewClient(apiKey string, log zerolog.Logger, maxPerDay int, minInterval time.Duration) *Client {
	if maxPerDay <= 0 {
		maxPerDay = 25
	}
	if minInterval <= 0 {
		minInterval = 12 * time.Second
	}
	return &Client{
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		log:         log.With().Str("client", "alphavantage").Logger(),
		maxPerDay:   maxPerDay,
		minInterval: minInterval,
		dayStarted:  time.Now().UTC(),
		cache:       make(map[string]cacheEntry),
	}
}

// GetRemainingRequests returns how many requests are left in today's quota.
func (c *Client) GetRemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rolloverIfNewDayLocked()
	remaining := c.maxPerDay - c.requestCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ResetDailyCounter manually resets the request counter, for tests and for
// operators correcting clock drift.
func (c *Client) ResetDailyCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCount = 0
	c.dayStarted = time.Now().UTC()
}

func (c *Client) rolloverIfNewDayLocked() {
	if time.Since(c.dayStarted) >= 24*time.Hour {
		c.requestCount = 0
		c.dayStarted = time.Now().UTC()
	}
}

func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rolloverIfNewDayLocked()
	if c.requestCount >= c.maxPerDay {
		return ErrRateLimitExceeded{Limit: c.maxPerDay}
	}
	return nil
}

func (c *Client) throttle() {
	c.mu.Lock()
	wait := c.minInterval - time.Since(c.lastRequest)
	c.mu.Unlock()
	if wait > 0 {
		time.Sleep(wait)
	}
}

func (c *Client) recordRequest() {
	c.mu.Lock()
	c.requestCount++
	c.lastRequest = time.Now().UTC()
	c.mu.Unlock()
}

func buildCacheKey(function string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(function)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(params[k])
	}
	return b.String()
}

func (c *Client) setCache(key string, data interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{data: data, expiresAt: time.Now().Add(ttl)}
}

func (c *Client) getFromCache(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cacheEntry)
}

// DailyBar is one OHLCV observation from TIME_SERIES_DAILY.
type DailyBar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

type dailySeriesResponse struct {
	TimeSeries map[string]map[string]string `json:"Time Series (Daily)"`
	Note       string                       `json:"Note"`
	ErrMessage string                       `json:"Error Message"`
}

// GetDailyTimeSeries fetches daily OHLCV bars for symbol, oldest first,
// honoring the daily rate limit and a 60 minute response cache.
func (c *Client) GetDailyTimeSeries(symbol string) ([]DailyBar, error) {
	params := map[string]string{"symbol": symbol}
	cacheKey := buildCacheKey("TIME_SERIES_DAILY", params)

	if cached, ok := c.getFromCache(cacheKey); ok {
		return cached.([]DailyBar), nil
	}

	if err := c.checkRateLimit(); err != nil {
		return nil, err
	}
	c.throttle()

	q := url.Values{}
	q.Set("function", "TIME_SERIES_DAILY")
	q.Set("symbol", symbol)
	q.Set("outputsize", "compact")
	q.Set("apikey", c.apiKey)

	reqURL := "https://www.alphavantage.co/query?" + q.Encode()
	resp, err := c.httpClient.Get(reqURL)
	if err != nil {
		return nil, fmt.Errorf("fetch daily series: %w", err)
	}
	defer resp.Body.Close()
	c.recordRequest()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var parsed dailySeriesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if parsed.ErrMessage != "" {
		return nil, fmt.Errorf("alpha vantage error: %s", parsed.ErrMessage)
	}
	if parsed.Note != "" {
		return nil, fmt.Errorf("alpha vantage throttled: %s", parsed.Note)
	}

	bars := make([]DailyBar, 0, len(parsed.TimeSeries))
	for dateStr, values := range parsed.TimeSeries {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		bars = append(bars, DailyBar{
			Date:   date,
			Open:   parseFloat(values["1. open"]),
			High:   parseFloat(values["2. high"]),
			Low:    parseFloat(values["3. low"]),
			Close:  parseFloat(values["4. close"]),
			Volume: parseFloat(values["5. volume"]),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	c.setCache(cacheKey, bars, time.Hour)
	return bars, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
