package database

import (
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"
)

func TestNullableUnix(t *testing.T) {
	// Ensure a zero time maps to a null parameter.
	assert.Equal(t, nullableUnix(time.Time{}), nil)

	// Ensure a set time maps to its unix seconds.
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, nullableUnix(at), any(at.Unix()))
}

func TestParseOpenPosition(t *testing.T) {
	entry := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// Ensure a well-formed row rebuilds an open position.
	row := map[string]any{
		"id":           "pos-1",
		"symbol":       "BTC/USD",
		"entry_price":  "103.00",
		"entry_time":   float64(entry.Unix()),
		"volume":       "0.5",
		"tag":          "swing",
		"external_ref": "TX-1",
	}

	pos, err := parseOpenPosition(row)
	assert.NoError(t, err)
	assert.Equal(t, pos.ID, "pos-1")
	assert.Equal(t, pos.Market, "BTC/USD")
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromFloat(103.00)))
	assert.True(t, pos.Volume.Equal(decimal.NewFromFloat(0.5)))
	assert.Equal(t, pos.EntryTime, entry)
	assert.Equal(t, pos.Tag, "swing")
	assert.Equal(t, pos.ExternalRef, "TX-1")

	// Ensure rows without identifiers are rejected.
	_, err = parseOpenPosition(map[string]any{"symbol": "BTC/USD"})
	assert.Error(t, err)

	// Ensure malformed prices are rejected.
	malformed := map[string]any{
		"id":          "pos-2",
		"symbol":      "BTC/USD",
		"entry_price": "not-a-number",
		"volume":      "1",
	}
	_, err = parseOpenPosition(malformed)
	assert.Error(t, err)
}

func TestPerformanceString(t *testing.T) {
	// Ensure the summary formats percentages and durations.
	perf := Performance{
		TotalTrades: 4,
		WinRate:     0.75,
		AvgReturn:   0.021,
		TotalPNL:    120.5,
		AvgHolding:  90 * time.Minute,
	}

	summary := perf.String()
	assert.True(t, strings.Contains(summary, "Total Trades: 4"))
	assert.True(t, strings.Contains(summary, "Win Rate: 75.00%"))
	assert.True(t, strings.Contains(summary, "Avg Return: 2.10%"))
	assert.True(t, strings.Contains(summary, "Total PnL: 120.50"))
}
