// Package indicator provides technical indicator calculations over candle
// data. All computations are pure functions of the provided series, required
// for reproducible backtests.
package indicator

import (
	"fmt"

	"github.com/lukaw/swingbot/shared"
)

// Snapshot represents the derived indicator state for the latest candle of a
// market. It is recomputed each cycle and never persisted.
type Snapshot struct {
	Market     string
	LastClose  float64
	RSI        float64
	ATR        float64
	Supertrend float64
	Trend      shared.Trend
	PrevTrend  shared.Trend
}

// Compute derives an indicator snapshot from the provided ordered candlestick
// series using the given lookback period and supertrend multiplier. It fails
// with shared.ErrInsufficientData when fewer than lookback+1 candles are
// supplied.
func Compute(candles []shared.Candlestick, lookback int, multiplier float64) (*Snapshot, error) {
	err := shared.ValidateSeries(candles)
	if err != nil {
		return nil, err
	}

	if len(candles) < lookback+1 {
		return nil, fmt.Errorf("computing indicators needs %d candles, got %d: %w",
			lookback+1, len(candles), shared.ErrInsufficientData)
	}

	rsi, err := RelativeStrengthIndex(candles, lookback)
	if err != nil {
		return nil, fmt.Errorf("computing rsi: %w", err)
	}

	atr, err := AverageTrueRange(candles, lookback)
	if err != nil {
		return nil, fmt.Errorf("computing atr: %w", err)
	}

	st, err := ComputeSupertrend(candles, lookback, multiplier)
	if err != nil {
		return nil, fmt.Errorf("computing supertrend: %w", err)
	}

	last := candles[len(candles)-1]
	snapshot := &Snapshot{
		Market:     last.Market,
		LastClose:  last.Close,
		RSI:        rsi,
		ATR:        atr,
		Supertrend: st.Value,
		Trend:      st.Trend,
		PrevTrend:  st.PrevTrend,
	}

	return snapshot, nil
}

// TrendFlippedBullish reports whether the snapshot captures a fresh bearish
// to bullish trend flip between consecutive periods.
func (s *Snapshot) TrendFlippedBullish() bool {
	return s.PrevTrend == shared.Bearish && s.Trend == shared.Bullish
}
