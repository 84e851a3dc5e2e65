package tradernet

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceOrder_ForwardsRequestIDForIdempotency(t *testing.T) {
	var captured PlaceOrderRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		resp := ServiceResponse{Success: true, Data: json.RawMessage(`{"order_id":"o1","symbol":"SPY","side":"BUY","quantity":5,"price":500}`)}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := NewClient(server.URL, zerolog.Nop())
	result, err := c.PlaceOrder("SPY", "BUY", 5, "req-123")

	require.NoError(t, err)
	assert.Equal(t, "req-123", captured.RequestID)
	assert.Equal(t, "o1", result.OrderID)
}

func TestHealthCheck_ReportsDisconnectedOnTransportError(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", zerolog.Nop())
	result, err := c.HealthCheck()
	require.NoError(t, err)
	assert.False(t, result.Connected)
}

func TestGetPortfolio_ParsesPositions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := ServiceResponse{Success: true, Data: json.RawMessage(`{"positions":[{"symbol":"SPY","quantity":2,"avg_price":400,"current_price":410,"market_value":820,"market_value_eur":750,"unrealized_pnl":20,"currency":"USD"}]}`)}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := NewClient(server.URL, zerolog.Nop())
	positions, err := c.GetPortfolio()
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "SPY", positions[0].Symbol)
}
