package paper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecore/decision-core/internal/clients/yahoo"
	"github.com/tradecore/decision-core/internal/domain"
)

func quoteServer(t *testing.T, price float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"quoteResponse": map[string]interface{}{
				"result": []map[string]interface{}{
					{"symbol": "SPY", "regularMarketPrice": price},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func TestSubmitOrder_FillsAtQuotedPriceAndUpdatesCash(t *testing.T) {
	server := quoteServer(t, 100)
	defer server.Close()

	client := yahoo.NewClient(zerolog.Nop(), time.Second)
	client.BaseQuoteURL = server.URL

	adapter := New(client, 10000, zerolog.Nop())
	result, err := adapter.SubmitOrder(context.Background(), domain.PositionRequest{RequestID: "r1", Symbol: "SPY", Side: domain.SideBuy, Qty: domain.NewQty(10)})

	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, result.Status)
	assert.Equal(t, 100.0, result.FilledPrice)

	acct, err := adapter.GetAccount(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 9000, acct.Cash, 0.01)
}

func TestListPositions_ReflectsFilledBuy(t *testing.T) {
	server := quoteServer(t, 50)
	defer server.Close()

	client := yahoo.NewClient(zerolog.Nop(), time.Second)
	client.BaseQuoteURL = server.URL

	adapter := New(client, 10000, zerolog.Nop())
	_, err := adapter.SubmitOrder(context.Background(), domain.PositionRequest{RequestID: "r1", Symbol: "SPY", Side: domain.SideBuy, Qty: domain.NewQty(4)})
	require.NoError(t, err)

	positions, err := adapter.ListPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 4.0, positions[0].Quantity)
}
