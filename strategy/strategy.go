// Package strategy evaluates indicator snapshots into discrete trade signals.
package strategy

import (
	"errors"
	"fmt"

	"github.com/lukaw/swingbot/indicator"
	"github.com/lukaw/swingbot/shared"
)

// Config represents the signal evaluator thresholds.
type Config struct {
	// RSIExitThreshold is the overbought level at which holdings are exited.
	RSIExitThreshold float64
	// RSIEntryCeiling is the level above which entries are suppressed.
	RSIEntryCeiling float64
}

// Validate asserts the config has sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.RSIExitThreshold <= 0 || cfg.RSIExitThreshold > 100 {
		errs = errors.Join(errs, fmt.Errorf("rsi exit threshold must be in (0, 100], got %f",
			cfg.RSIExitThreshold))
	}
	if cfg.RSIEntryCeiling <= 0 || cfg.RSIEntryCeiling > 100 {
		errs = errors.Join(errs, fmt.Errorf("rsi entry ceiling must be in (0, 100], got %f",
			cfg.RSIEntryCeiling))
	}
	if cfg.RSIEntryCeiling > cfg.RSIExitThreshold {
		errs = errors.Join(errs, fmt.Errorf("rsi entry ceiling %f cannot exceed the exit threshold %f",
			cfg.RSIEntryCeiling, cfg.RSIExitThreshold))
	}

	return errs
}

// Evaluation represents the outcome of evaluating an indicator snapshot.
type Evaluation struct {
	// Signal is the discrete trade signal.
	Signal shared.Signal
	// TrendFlipBullish reports a fresh bearish to bullish trend flip.
	TrendFlipBullish bool
}

// Evaluate combines the provided indicator snapshot into a discrete trade
// signal. A close below the supertrend line or an overbought oscillator
// favours exiting, a bullish close with room below the entry ceiling favours
// entering. Stateless per call.
func Evaluate(snapshot *indicator.Snapshot, cfg *Config) Evaluation {
	eval := Evaluation{
		Signal:           shared.Hold,
		TrendFlipBullish: snapshot.TrendFlippedBullish(),
	}

	switch {
	case snapshot.RSI >= cfg.RSIExitThreshold:
		eval.Signal = shared.Sell
	case snapshot.Trend == shared.Bearish:
		eval.Signal = shared.Sell
	case snapshot.Trend == shared.Bullish && snapshot.RSI < cfg.RSIEntryCeiling:
		eval.Signal = shared.Buy
	}

	return eval
}
