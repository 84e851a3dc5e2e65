package marketdata

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecore/decision-core/internal/domain"
)

type fakeSource struct {
	name   string
	series domain.BarSeries
	err    error
	calls  int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, symbol string, lookbackDays int) (domain.BarSeries, error) {
	f.calls++
	if f.err != nil {
		return domain.BarSeries{}, f.err
	}
	return f.series, nil
}

func sampleSeries(symbol string) domain.BarSeries {
	return domain.BarSeries{
		Symbol: symbol,
		Bars: []domain.Bar{
			{Timestamp: time.Now(), Close: 100},
			{Timestamp: time.Now(), Close: 101},
		},
	}
}

func TestFetch_PrimarySourceSucceeds(t *testing.T) {
	primary := &fakeSource{name: "primary", series: sampleSeries("SPY")}
	secondary := &fakeSource{name: "secondary", series: sampleSeries("SPY")}

	p := NewProvider([]Source{primary, secondary}, Config{CacheDiskDir: t.TempDir()}, nil, zerolog.Nop())
	result, err := p.Fetch(context.Background(), "SPY")

	require.NoError(t, err)
	assert.Equal(t, "primary", result.Source)
	assert.Equal(t, domain.FreshnessFresh, result.Freshness)
	assert.Equal(t, 0, secondary.calls)
}

func TestFetch_FallsBackToSecondaryOnFailure(t *testing.T) {
	primary := &fakeSource{name: "primary", err: errors.New("boom")}
	secondary := &fakeSource{name: "secondary", series: sampleSeries("SPY")}

	p := NewProvider([]Source{primary, secondary}, Config{CacheDiskDir: t.TempDir()}, nil, zerolog.Nop())
	result, err := p.Fetch(context.Background(), "SPY")

	require.NoError(t, err)
	assert.Equal(t, "secondary", result.Source)
}

func TestFetch_FallsBackToCacheWhenAllSourcesFail(t *testing.T) {
	dir := t.TempDir()
	working := &fakeSource{name: "primary", series: sampleSeries("SPY")}
	p := NewProvider([]Source{working}, Config{CacheDiskDir: dir}, nil, zerolog.Nop())

	_, err := p.Fetch(context.Background(), "SPY")
	require.NoError(t, err)

	failing := &fakeSource{name: "primary", err: errors.New("down")}
	p2 := NewProvider([]Source{failing}, Config{CacheDiskDir: dir}, nil, zerolog.Nop())
	result, err := p2.Fetch(context.Background(), "SPY")

	require.NoError(t, err)
	assert.Contains(t, result.Source, "_cache")
	assert.NotEqual(t, domain.FreshnessFresh, result.Freshness)
}

func TestFetch_ReturnsDataUnavailableWhenNothingWorks(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "empty")
	failing := &fakeSource{name: "primary", err: errors.New("down")}
	p := NewProvider([]Source{failing}, Config{CacheDiskDir: dir}, nil, zerolog.Nop())

	_, err := p.Fetch(context.Background(), "NEWSYMBOL")
	require.Error(t, err)
	var dataErr domain.DataUnavailableError
	assert.ErrorAs(t, err, &dataErr)
}

func TestFetch_FreshInMemoryCacheShortCircuitsLiveSources(t *testing.T) {
	source := &fakeSource{name: "primary", series: sampleSeries("SPY")}
	p := NewProvider([]Source{source}, Config{CacheTTL: time.Hour, CacheDiskDir: t.TempDir()}, nil, zerolog.Nop())

	_, err := p.Fetch(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)

	result, err := p.Fetch(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls, "a fresh in-memory hit must not re-invoke any live source")
	assert.Equal(t, domain.FreshnessFresh, result.Freshness)
	assert.Empty(t, result.Attempts)
}

func TestFetch_RecordsOneAttemptPerSourceAndTheFinalCacheLookup(t *testing.T) {
	dir := t.TempDir()
	seed := &fakeSource{name: "primary", series: sampleSeries("SPY")}
	seedProvider := NewProvider([]Source{seed}, Config{CacheDiskDir: dir}, nil, zerolog.Nop())
	_, err := seedProvider.Fetch(context.Background(), "SPY")
	require.NoError(t, err)

	primary := &fakeSource{name: "primary", err: errors.New("primary down")}
	secondary := &fakeSource{name: "secondary", err: errors.New("secondary down")}
	tertiary := &fakeSource{name: "tertiary", err: errors.New("tertiary down")}
	p := NewProvider([]Source{primary, secondary, tertiary}, Config{CacheDiskDir: dir}, nil, zerolog.Nop())

	result, err := p.Fetch(context.Background(), "SPY")
	require.NoError(t, err)
	require.Len(t, result.Attempts, 4, "3 failed live sources plus the final cache lookup")
	assert.False(t, result.Attempts[0].Success)
	assert.False(t, result.Attempts[1].Success)
	assert.False(t, result.Attempts[2].Success)
	assert.True(t, result.Attempts[3].Success)
	assert.NotNil(t, result.CacheAgeHours)
}
