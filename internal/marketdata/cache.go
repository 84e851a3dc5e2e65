package marketdata

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tradecore/decision-core/internal/domain"
)

// cacheEntry is what both the in-memory and disk cache tiers store: the
// series itself, stamped with when it was fetched and by which source.
type cacheEntry struct {
	Series    domain.BarSeries `msgpack:"series"`
	Source    string           `msgpack:"source"`
	FetchedAt time.Time        `msgpack:"fetched_at"`
}

// Cache is a two-tier cache: a fast in-memory map backed by per-symbol
// msgpack files on disk, so a cold process restart still has yesterday's
// bars to fall back on when every live source is down.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	maxAge  time.Duration
	diskDir string
	mem     map[string]cacheEntry
}

// NewCache creates a Cache with the given TTL, disk directory for the
// persisted tier, and maxAge beyond which even the disk tier is treated as
// unusable. The directory is created lazily on first write.
func NewCache(ttl, maxAge time.Duration, diskDir string) *Cache {
	return &Cache{
		ttl:     ttl,
		maxAge:  maxAge,
		diskDir: diskDir,
		mem:     make(map[string]cacheEntry),
	}
}

// GetFresh returns symbol's cached entry only if it is still within TTL,
// for the in-memory short-circuit at the front of the fallback chain.
func (c *Cache) GetFresh(symbol string) (domain.MarketDataResult, bool) {
	c.mu.RLock()
	entry, ok := c.mem[symbol]
	c.mu.RUnlock()

	if ok && time.Since(entry.FetchedAt) <= c.ttl {
		return toResult(entry, true, c.ageHours(entry)), true
	}
	return domain.MarketDataResult{}, false
}

// Get returns a cached series for symbol if one exists within TTL, falling
// back to disk (regardless of TTL, since disk is the last resort used only
// when every live source has already failed). Entries older than maxAge are
// never returned, even from the disk tier.
func (c *Cache) Get(symbol string, allowStale bool) (domain.MarketDataResult, bool) {
	c.mu.RLock()
	entry, ok := c.mem[symbol]
	c.mu.RUnlock()

	if ok && !c.tooOld(entry) {
		fresh := time.Since(entry.FetchedAt) <= c.ttl
		if fresh || allowStale {
			return toResult(entry, fresh, c.ageHours(entry)), true
		}
	}

	diskEntry, ok := c.readDisk(symbol)
	if ok && allowStale && !c.tooOld(diskEntry) {
		c.mu.Lock()
		c.mem[symbol] = diskEntry
		c.mu.Unlock()
		return toResult(diskEntry, false, c.ageHours(diskEntry)), true
	}

	return domain.MarketDataResult{}, false
}

func (c *Cache) tooOld(entry cacheEntry) bool {
	if c.maxAge <= 0 {
		return false
	}
	return time.Since(entry.FetchedAt) > c.maxAge
}

func (c *Cache) ageHours(entry cacheEntry) float64 {
	return time.Since(entry.FetchedAt).Hours()
}

func toResult(entry cacheEntry, fresh bool, ageHours float64) domain.MarketDataResult {
	freshness := domain.FreshnessAging
	confidence := 0.6
	if fresh {
		freshness = domain.FreshnessFresh
		confidence = 1.0
	}
	return domain.MarketDataResult{
		Symbol:        entry.Series.Symbol,
		Series:        entry.Series,
		Source:        entry.Source + "_cache",
		Freshness:     freshness,
		Confidence:    confidence,
		FetchedAt:     entry.FetchedAt,
		CacheAgeHours: domain.Float64Ptr(ageHours),
	}
}

// Put stores series under symbol in both cache tiers.
func (c *Cache) Put(symbol, source string, series domain.BarSeries) {
	entry := cacheEntry{Series: series, Source: source, FetchedAt: time.Now().UTC()}

	c.mu.Lock()
	c.mem[symbol] = entry
	c.mu.Unlock()

	if err := c.writeDisk(symbol, entry); err != nil {
		// Disk persistence is best-effort: a failure here only costs us the
		// cold-start fallback, not the current run.
		_ = err
	}
}

func (c *Cache) diskPath(symbol string) string {
	return filepath.Join(c.diskDir, symbol+".msgpack")
}

func (c *Cache) writeDisk(symbol string, entry cacheEntry) error {
	if err := os.MkdirAll(c.diskDir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	data, err := msgpack.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return os.WriteFile(c.diskPath(symbol), data, 0o644)
}

func (c *Cache) readDisk(symbol string) (cacheEntry, bool) {
	data, err := os.ReadFile(c.diskPath(symbol))
	if err != nil {
		return cacheEntry{}, false
	}
	var entry cacheEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return cacheEntry{}, false
	}
	return entry, true
}
