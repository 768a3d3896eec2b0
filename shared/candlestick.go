package shared

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the format layout for parsing dates.
	DateLayout = "2006-01-02 15:04:05"
)

// Candlestick represents a unit candlestick for a market.
type Candlestick struct {
	Open   float64
	Low    float64
	High   float64
	Close  float64
	Volume float64
	Date   time.Time

	// Metadata fields.
	Market   string
	Interval time.Duration
}

// ValidateSeries asserts the provided candlesticks form an ordered series
// with strictly increasing timestamps and no duplicates.
func ValidateSeries(candles []Candlestick) error {
	for idx := 1; idx < len(candles); idx++ {
		if !candles[idx].Date.After(candles[idx-1].Date) {
			return fmt.Errorf("candlestick series out of order at index %d: "+
				"%s does not advance %s", idx,
				candles[idx].Date.Format(DateLayout), candles[idx-1].Date.Format(DateLayout))
		}
	}

	return nil
}
