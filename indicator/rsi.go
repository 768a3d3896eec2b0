package indicator

import (
	"fmt"

	"github.com/lukaw/swingbot/shared"
)

// RelativeStrengthIndex computes Wilder's RSI over the provided candlesticks
// using the given lookback period. It requires lookback+1 candles to form
// lookback close-to-close deltas.
func RelativeStrengthIndex(candles []shared.Candlestick, lookback int) (float64, error) {
	if lookback < 1 {
		return 0, fmt.Errorf("rsi lookback must be positive, got %d", lookback)
	}
	if len(candles) < lookback+1 {
		return 0, fmt.Errorf("rsi needs %d candles, got %d: %w",
			lookback+1, len(candles), shared.ErrInsufficientData)
	}

	window := candles[len(candles)-(lookback+1):]

	var avgGain, avgLoss float64
	for idx := 1; idx < len(window); idx++ {
		delta := window[idx].Close - window[idx-1].Close
		switch {
		case delta > 0:
			avgGain += delta
		case delta < 0:
			avgLoss += -delta
		}
	}

	avgGain /= float64(lookback)
	avgLoss /= float64(lookback)

	// A window with no losses pins the oscillator at the overbought extreme.
	// A fully flat window yields no strength reading at all.
	if avgLoss == 0 {
		if avgGain == 0 {
			return 0, nil
		}
		return 100, nil
	}

	rs := avgGain / avgLoss
	rsi := 100 - (100 / (1 + rs))

	return rsi, nil
}
