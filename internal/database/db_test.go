package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_OpensAndMigratesLedgerProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := New(Config{Path: path, Profile: ProfileLedger, Name: "ledger"})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(`CREATE TABLE IF NOT EXISTS trades (id INTEGER PRIMARY KEY, symbol TEXT)`))
	require.NoError(t, db.Migrate(`CREATE TABLE IF NOT EXISTS trades (id INTEGER PRIMARY KEY, symbol TEXT)`), "re-applying an idempotent schema must not error")

	_, err = db.Exec(`INSERT INTO trades (symbol) VALUES (?)`, "SPY")
	require.NoError(t, err)

	var symbol string
	require.NoError(t, db.QueryRow(`SELECT symbol FROM trades WHERE id = 1`).Scan(&symbol))
	assert.Equal(t, "SPY", symbol)
}

func TestDB_HealthCheckPassesOnFreshDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := New(Config{Path: path, Profile: ProfileCache, Name: "cache"})
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.NoError(t, db.QuickCheck(context.Background()))
}

func TestDB_GetStatsReturnsNonZeroPageSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "standard.db")
	db, err := New(Config{Path: path, Name: "standard"})
	require.NoError(t, err)
	defer db.Close()

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageSize, int64(0))
}
