// Package marketdata assembles bar series for a symbol by trying an
// ordered chain of sources, falling back to a local cache when every live
// source fails, and classifying the result's freshness either way.
package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradecore/decision-core/internal/domain"
	"github.com/tradecore/decision-core/internal/events"
)

// Provider is the market data provider: an ordered fallback chain of
// sources plus the cache they write through.
type Provider struct {
	sources      []Source
	cache        *Cache
	lookbackDays int
	log          zerolog.Logger
	audit        *events.Manager
}

// Config controls the provider's lookback window and cache tiers; the
// sources themselves are constructed by the caller and passed in priority
// order.
type Config struct {
	LookbackDays int
	CacheTTL     time.Duration
	CacheMaxAge  time.Duration
	CacheDiskDir string
}

// NewProvider builds a Provider from an ordered slice of sources (first is
// tried first) and a cache.
func NewProvider(sources []Source, cfg Config, audit *events.Manager, log zerolog.Logger) *Provider {
	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = 90
	}
	return &Provider{
		sources:      sources,
		cache:        NewCache(cfg.CacheTTL, cfg.CacheMaxAge, cfg.CacheDiskDir),
		lookbackDays: lookback,
		log:          log.With().Str("component", "marketdata").Logger(),
		audit:        audit,
	}
}

// Fetch runs the fallback chain for symbol: a fresh in-memory cache hit
// short-circuits before any live call; otherwise each source is tried in
// order until one succeeds, at which point the result is cached and
// returned as FRESH. If every source fails, the cache is consulted (even
// stale, up to CacheMaxAge) before giving up with
// domain.DataUnavailableError. Every live source attempt, success or
// failure, is recorded in the result's Attempts trail.
func (p *Provider) Fetch(ctx context.Context, symbol string) (domain.MarketDataResult, error) {
	if cached, ok := p.cache.GetFresh(symbol); ok {
		return cached, nil
	}

	var lastErr error
	var attempts []domain.FetchAttempt

	for _, src := range p.sources {
		series, err := src.Fetch(ctx, symbol, p.lookbackDays)
		attempt := domain.FetchAttempt{Source: src.Name(), AttemptedAt: time.Now().UTC()}
		if err != nil {
			attempt.Error = err.Error()
			attempts = append(attempts, attempt)

			p.log.Warn().Err(err).Str("symbol", symbol).Str("source", src.Name()).Msg("source failed")
			if p.audit != nil {
				p.audit.Emit(events.KindDataFetched, symbol, "source_failed", map[string]interface{}{
					"source": src.Name(), "error": err.Error(),
				})
			}
			lastErr = err
			continue
		}

		attempt.Success = true
		attempts = append(attempts, attempt)

		p.cache.Put(symbol, src.Name(), series)
		result := domain.MarketDataResult{
			Symbol:     symbol,
			Series:     series,
			Source:     src.Name(),
			Freshness:  domain.FreshnessFresh,
			Confidence: 1.0,
			FetchedAt:  time.Now().UTC(),
			Attempts:   attempts,
		}
		if p.audit != nil {
			p.audit.Emit(events.KindDataFetched, symbol, "ok", map[string]interface{}{
				"source": src.Name(), "bars": len(series.Bars),
			})
		}
		return result, nil
	}

	if cached, ok := p.cache.Get(symbol, true); ok {
		attempts = append(attempts, domain.FetchAttempt{Source: "disk_cache", Success: true, AttemptedAt: time.Now().UTC()})
		cached.Attempts = attempts
		p.log.Warn().Str("symbol", symbol).Msg("all live sources failed, serving from cache")
		return cached, nil
	}

	attempts = append(attempts, domain.FetchAttempt{Source: "disk_cache", AttemptedAt: time.Now().UTC(), Error: "no usable cache entry"})

	if p.audit != nil {
		reason := "all sources failed, no cache available"
		if lastErr != nil {
			reason = lastErr.Error()
		}
		p.audit.Emit(events.KindDataFetched, symbol, "unavailable", map[string]interface{}{"reason": reason})
	}

	return domain.MarketDataResult{Attempts: attempts}, domain.DataUnavailableError{Symbol: symbol, Reason: errString(lastErr)}
}

func errString(err error) string {
	if err == nil {
		return "no sources configured"
	}
	return err.Error()
}
