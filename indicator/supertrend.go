package indicator

import (
	"fmt"
	"math"

	"github.com/lukaw/swingbot/shared"
)

// Supertrend represents the supertrend line and directional trend for the
// most recent candles of a series.
type Supertrend struct {
	// Value is the current supertrend line value.
	Value float64
	// Trend is the current directional trend.
	Trend shared.Trend
	// PrevTrend is the trend of the immediately preceding candle, exposed so
	// callers can detect a flip between consecutive periods.
	PrevTrend shared.Trend
}

// ComputeSupertrend computes a supertrend directional indicator over the
// provided candlesticks. Volatility bands are formed from the candle midpoint
// offset by multiplier times a running ATR of the given period, with band
// levels ratcheting toward price. A close at or above the supertrend line is
// bullish, below is bearish. The series seeds bearish on its first candle.
func ComputeSupertrend(candles []shared.Candlestick, period int, multiplier float64) (*Supertrend, error) {
	if period < 1 {
		return nil, fmt.Errorf("supertrend period must be positive, got %d", period)
	}
	if multiplier <= 0 {
		return nil, fmt.Errorf("supertrend multiplier must be positive, got %f", multiplier)
	}
	if len(candles) < 2 {
		return nil, fmt.Errorf("supertrend needs at least 2 candles, got %d: %w",
			len(candles), shared.ErrInsufficientData)
	}

	atr := runningAverageTrueRange(candles, period)

	finalUpper := make([]float64, len(candles))
	finalLower := make([]float64, len(candles))
	for idx := range candles {
		midpoint := (candles[idx].High + candles[idx].Low) / 2
		finalUpper[idx] = midpoint + multiplier*atr[idx]
		finalLower[idx] = midpoint - multiplier*atr[idx]

		// Bands only ratchet toward price, never away from it.
		if idx > 0 {
			finalUpper[idx] = math.Min(finalUpper[idx], finalUpper[idx-1])
			finalLower[idx] = math.Max(finalLower[idx], finalLower[idx-1])
		}
	}

	line := make([]float64, len(candles))
	trend := make([]shared.Trend, len(candles))

	line[0] = finalUpper[0]
	trend[0] = shared.Bearish

	for idx := 1; idx < len(candles); idx++ {
		close := candles[idx].Close

		switch {
		case line[idx-1] == finalUpper[idx-1]:
			if close > finalUpper[idx] {
				line[idx] = finalLower[idx]
			} else {
				line[idx] = finalUpper[idx]
			}
		default:
			if close < finalLower[idx] {
				line[idx] = finalUpper[idx]
			} else {
				line[idx] = finalLower[idx]
			}
		}

		if close >= line[idx] {
			trend[idx] = shared.Bullish
		} else {
			trend[idx] = shared.Bearish
		}
	}

	st := &Supertrend{
		Value:     line[len(candles)-1],
		Trend:     trend[len(candles)-1],
		PrevTrend: trend[len(candles)-2],
	}

	return st, nil
}
