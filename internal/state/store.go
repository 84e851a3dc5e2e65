// Package state persists and loads the pipeline's SystemState as a single
// JSON file, classifying its staleness on load.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradecore/decision-core/internal/domain"
)

const currentSchemaVersion = 1

// Store guards the on-disk state file with a single writer and classifies
// its age against configured thresholds on every load.
type Store struct {
	mu          sync.Mutex
	path        string
	expiryHours int
	log         zerolog.Logger
}

// New creates a Store for the state file at path. expiryHours is the age
// beyond which Load refuses to return the file as usable.
func New(path string, expiryHours int, log zerolog.Logger) *Store {
	return &Store{
		path:        path,
		expiryHours: expiryHours,
		log:         log.With().Str("component", "state").Logger(),
	}
}

// LoadResult is what Load returns: the state itself (possibly a fresh
// zero-value one when no file existed yet), its age classification, and
// whether it is still usable.
type LoadResult struct {
	State     domain.SystemState
	Freshness domain.DataFreshness
	Usable    bool
}

// Load reads the state file. A missing file is not an error: it returns a
// fresh empty state classified FRESH, the way a first-ever run starts.
func (s *Store) Load() (LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		st := emptyState()
		st.Meta = &domain.StalenessMeta{StalenessHours: 0, StalenessStatus: domain.FreshnessFresh, Confidence: 0.95}
		return LoadResult{
			State:     st,
			Freshness: domain.FreshnessFresh,
			Usable:    true,
		}, nil
	}
	if err != nil {
		return LoadResult{}, fmt.Errorf("read state file: %w", err)
	}

	var st domain.SystemState
	if err := json.Unmarshal(data, &st); err != nil {
		return LoadResult{}, fmt.Errorf("parse state file: %w", err)
	}

	age := time.Since(st.UpdatedAt)
	freshness, confidence, usable := classify(age, s.expiryHours)
	st.Meta = &domain.StalenessMeta{
		StalenessHours:  age.Hours(),
		StalenessStatus: freshness,
		Confidence:      confidence,
	}
	return LoadResult{State: st, Freshness: freshness, Usable: usable}, nil
}

// classify buckets age into the four-tier freshness scale against fixed
// 24h/48h/72h boundaries, independent of the configured expiry: AGING and
// STALE remain usable with reduced confidence; EXPIRED is not. expiryHours
// only gates the EXPIRED/usable cutoff when it is tighter than 72h.
func classify(age time.Duration, expiryHours int) (domain.DataFreshness, float64, bool) {
	hours := age.Hours()
	expiry := float64(expiryHours)
	if expiry <= 0 {
		expiry = 72
	}

	switch {
	case hours <= 24:
		return domain.FreshnessFresh, 0.95, true
	case hours <= 48:
		return domain.FreshnessAging, 0.70, hours <= expiry
	case hours <= 72:
		return domain.FreshnessStale, 0.30, hours <= expiry
	default:
		return domain.FreshnessExpired, 0.05, false
	}
}

// Save writes st to the state file atomically: serialize to a temp file in
// the same directory, fsync it, then rename over the live path so a reader
// never observes a partial write.
func (s *Store) Save(st domain.SystemState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.SchemaVersion = currentSchemaVersion
	st.UpdatedAt = time.Now().UTC()
	st.Meta = nil

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}

	s.log.Debug().Str("path", s.path).Msg("state saved")
	return nil
}

func emptyState() domain.SystemState {
	return domain.SystemState{
		SchemaVersion: currentSchemaVersion,
		Positions:     map[string]domain.Position{},
		ClosedTrades:  []domain.ClosedTrade{},
		PortfolioBreaker: domain.BreakerState{
			Name:           "portfolio",
			Level:          domain.BreakerClosed,
			Tier:           domain.TierNormal,
			LastTransition: time.Now().UTC(),
		},
		BrokerBreakers: map[string]domain.BreakerState{},
		QTable:         domain.QTable{},
	}
}
