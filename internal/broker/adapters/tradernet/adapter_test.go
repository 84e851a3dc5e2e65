package tradernet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tnclient "github.com/tradecore/decision-core/internal/clients/tradernet"
	"github.com/tradecore/decision-core/internal/domain"
)

func TestSubmitOrder_ReturnsFilledResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := tnclient.ServiceResponse{Success: true, Data: json.RawMessage(`{"order_id":"o1","symbol":"SPY","side":"BUY","quantity":5,"price":500}`)}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	adapter := New(tnclient.NewClient(server.URL, zerolog.Nop()), zerolog.Nop())
	result, err := adapter.SubmitOrder(context.Background(), domain.PositionRequest{RequestID: "r1", Symbol: "SPY", Side: domain.SideBuy, Qty: domain.NewQty(5)})

	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, result.Status)
	assert.Equal(t, "tradernet", result.Broker)
	assert.Equal(t, 5.0, result.FilledQty)
}

func TestHealthCheck_FailsWhenDisconnected(t *testing.T) {
	adapter := New(tnclient.NewClient("http://127.0.0.1:0", zerolog.Nop()), zerolog.Nop())
	err := adapter.HealthCheck(context.Background())
	assert.Error(t, err)
}

func TestSupportsFractional_IsTrue(t *testing.T) {
	adapter := New(tnclient.NewClient("http://example.invalid", zerolog.Nop()), zerolog.Nop())
	assert.True(t, adapter.SupportsFractional())
}

func TestLatestFill_ReflectsStreamedEvent(t *testing.T) {
	adapter := New(tnclient.NewClient("http://example.invalid", zerolog.Nop()), zerolog.Nop())

	_, ok := adapter.LatestFill("r1")
	assert.False(t, ok)

	adapter.recordFill(tnclient.FillEvent{RequestID: "r1", Symbol: "SPY", FilledQty: 5, FilledPrice: 501})

	evt, ok := adapter.LatestFill("r1")
	require.True(t, ok)
	assert.Equal(t, 501.0, evt.FilledPrice)
}
