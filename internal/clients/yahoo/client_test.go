package yahoo

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestGetYahooSymbol(t *testing.T) {
	cases := []struct {
		symbol   string
		override *string
		want     string
	}{
		{"AAPL.US", nil, "AAPL"},
		{"7203.JP", nil, "7203.T"},
		{"BASF.DE", nil, "BASF.DE"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, GetYahooSymbol(tc.symbol, tc.override))
	}

	override := "CUSTOM.L"
	assert.Equal(t, "CUSTOM.L", GetYahooSymbol("AAPL.US", &override))
}

func TestNewClient_DefaultTimeout(t *testing.T) {
	c := NewClient(zerolog.Nop(), 0)
	assert.Equal(t, float64(30), c.client.Timeout.Seconds())
}
