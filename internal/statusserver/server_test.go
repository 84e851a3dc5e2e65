package statusserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecore/decision-core/internal/domain"
	"github.com/tradecore/decision-core/internal/state"
)

func TestHandlers_ServeExpectedPayloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := state.New(path, 48, zerolog.Nop())
	require.NoError(t, store.Save(domain.SystemState{
		SchemaVersion: 1,
		UpdatedAt:     time.Now().UTC(),
		Positions:     map[string]domain.Position{},
		ClosedTrades:  []domain.ClosedTrade{},
		PortfolioBreaker: domain.BreakerState{
			Name: "portfolio", Level: domain.BreakerClosed, Tier: domain.TierNormal, LastTransition: time.Now().UTC(),
		},
		BrokerBreakers: map[string]domain.BreakerState{},
		QTable:         domain.QTable{},
	}))

	srv := New(":0", store, zerolog.Nop())

	t.Run("healthz", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		srv.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("state", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/state", nil)
		srv.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body, "freshness")
		assert.Contains(t, body, "usable")
	})

	t.Run("breaker", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/breaker", nil)
		srv.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		var body map[string]domain.BreakerState
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, domain.BreakerClosed, body["portfolio"].Level)
	})
}
