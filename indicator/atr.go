package indicator

import (
	"fmt"
	"math"

	"github.com/lukaw/swingbot/shared"
)

// trueRange computes the true range of a candle against the previous close.
func trueRange(candle *shared.Candlestick, prevClose float64) float64 {
	highLow := candle.High - candle.Low
	highClose := math.Abs(candle.High - prevClose)
	lowClose := math.Abs(candle.Low - prevClose)

	return math.Max(highLow, math.Max(highClose, lowClose))
}

// AverageTrueRange computes the mean true range over the provided
// candlesticks using the given lookback period.
func AverageTrueRange(candles []shared.Candlestick, lookback int) (float64, error) {
	if lookback < 1 {
		return 0, fmt.Errorf("atr lookback must be positive, got %d", lookback)
	}
	if len(candles) < lookback+1 {
		return 0, fmt.Errorf("atr needs %d candles, got %d: %w",
			lookback+1, len(candles), shared.ErrInsufficientData)
	}

	window := candles[len(candles)-(lookback+1):]

	var sum float64
	for idx := 1; idx < len(window); idx++ {
		sum += trueRange(&window[idx], window[idx-1].Close)
	}

	return sum / float64(lookback), nil
}

// runningAverageTrueRange computes an ATR series aligned with the provided
// candles, averaging over at most period true ranges and starting immediately
// so early candles still receive finite volatility bands.
func runningAverageTrueRange(candles []shared.Candlestick, period int) []float64 {
	ranges := make([]float64, len(candles))
	for idx := range candles {
		if idx == 0 {
			ranges[idx] = candles[idx].High - candles[idx].Low
			continue
		}
		ranges[idx] = trueRange(&candles[idx], candles[idx-1].Close)
	}

	atr := make([]float64, len(candles))
	var sum float64
	for idx := range ranges {
		sum += ranges[idx]
		if idx >= period {
			sum -= ranges[idx-period]
			atr[idx] = sum / float64(period)
			continue
		}
		atr[idx] = sum / float64(idx+1)
	}

	return atr
}
