// Package engine decides entry and exit actions for tracked markets from
// indicator snapshots, trade signals and market sentiment.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lukaw/swingbot/indicator"
	"github.com/lukaw/swingbot/position"
	"github.com/lukaw/swingbot/shared"
	"github.com/lukaw/swingbot/strategy"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// pricePrecision is the decimal precision for limit prices.
	pricePrecision = 2
	// volumePrecision is the decimal precision for order volumes.
	volumePrecision = 8
)

// Action represents the decision taken for a market during a cycle.
type Action int

const (
	Held Action = iota
	ForcedExit
	NormalExit
	Entered
	SkippedEntry
)

// String stringifies the provided action.
func (a Action) String() string {
	switch a {
	case Held:
		return "held"
	case ForcedExit:
		return "forced exit"
	case NormalExit:
		return "normal exit"
	case Entered:
		return "entered"
	case SkippedEntry:
		return "skipped entry"
	default:
		return "unknown"
	}
}

// Config represents the decision engine configuration.
type Config struct {
	// Tag labels the positions managed by this engine.
	Tag string
	// Mode is the bot run mode, test forces simulated submissions.
	Mode shared.Mode
	// EntryBuffer scales the ATR offset added to the close for entry limits.
	EntryBuffer float64
	// DangerFGScoreForExit is the sentiment level forcing open positions out.
	DangerFGScoreForExit int
	// MinFGScoreForEntry is the sentiment level below which entries are suppressed.
	MinFGScoreForEntry int
	// SentimentStaleness bounds how old a sentiment score may be before the
	// sentiment gates are disabled instead of acting on dead data.
	SentimentStaleness time.Duration
	// Store is the position store owning position and trade records.
	Store *position.Store
	// Gateway is the execution venue adapter.
	Gateway shared.ExecutionGateway
	// Notify sends the provided alert.
	Notify func(ctx context.Context, title string, message string)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.Store == nil {
		errs = errors.Join(errs, fmt.Errorf("position store cannot be nil"))
	}
	if cfg.Gateway == nil {
		errs = errors.Join(errs, fmt.Errorf("execution gateway cannot be nil"))
	}
	if cfg.Notify == nil {
		errs = errors.Join(errs, fmt.Errorf("notify function cannot be nil"))
	}
	if cfg.EntryBuffer < 0 {
		errs = errors.Join(errs, fmt.Errorf("entry buffer cannot be negative, got %f", cfg.EntryBuffer))
	}
	if cfg.SentimentStaleness <= 0 {
		errs = errors.Join(errs, fmt.Errorf("sentiment staleness window must be positive, got %s",
			cfg.SentimentStaleness))
	}

	return errs
}

// Engine is the decision state machine. Each market and tag pair is either
// without a position or holding one, and a cycle evaluates transitions in
// strict priority order: forced exit, normal exit, entry, hold.
type Engine struct {
	cfg *Config
}

// NewEngine initializes a new decision engine.
func NewEngine(cfg *Config) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating engine config: %w", err)
	}

	return &Engine{cfg: cfg}, nil
}

// EntryLimitPrice computes the buffered limit price for an entry, offsetting
// the last close by the entry buffer times the average true range.
func (e *Engine) EntryLimitPrice(lastClose float64, atr float64) decimal.Decimal {
	return decimal.NewFromFloat(lastClose + e.cfg.EntryBuffer*atr).Round(pricePrecision)
}

// sentimentFresh reports whether the provided score is usable for gating.
func (e *Engine) sentimentFresh(score *shared.SentimentScore, now time.Time) bool {
	return score != nil && !score.StaleBy(now, e.cfg.SentimentStaleness)
}

// ProcessMarket evaluates the state machine for a single market, deciding and
// executing at most one transition. The position store is only mutated after
// the gateway confirms the submitted order, so an aborted cycle leaves no
// market half-updated.
func (e *Engine) ProcessMarket(ctx context.Context, snapshot *indicator.Snapshot,
	eval strategy.Evaluation, score *shared.SentimentScore, now time.Time) (Action, error) {
	market := snapshot.Market
	pos, open := e.cfg.Store.OpenPosition(market, e.cfg.Tag)
	fresh := e.sentimentFresh(score, now)
	if !fresh {
		e.cfg.Logger.Warn().Msgf("%s: sentiment score stale or missing, sentiment gates disabled", market)
	}

	// Forced exit overrides every other rule, including a simultaneous buy
	// signal.
	if open && fresh && score.Value < e.cfg.DangerFGScoreForExit {
		err := e.exit(ctx, pos, snapshot.LastClose, now, true)
		if err != nil {
			return Held, err
		}
		return ForcedExit, nil
	}

	if open && eval.Signal == shared.Sell {
		err := e.exit(ctx, pos, snapshot.LastClose, now, false)
		if err != nil {
			return Held, err
		}
		return NormalExit, nil
	}

	// An entry requires both a buy signal and a fresh bearish to bullish
	// flip, otherwise the bot would chase an already established trend.
	if !open && eval.Signal == shared.Buy && eval.TrendFlipBullish {
		return e.enter(ctx, snapshot, score, fresh, now)
	}

	e.cfg.Logger.Debug().Msgf("%s: holding, signal %s, flip %v, position open %v",
		market, eval.Signal.String(), eval.TrendFlipBullish, open)

	return Held, nil
}

// exit submits a sell order for the full position volume and closes the
// position once the venue confirms it.
func (e *Engine) exit(ctx context.Context, pos *position.Position, lastClose float64,
	now time.Time, forced bool) error {
	price := decimal.NewFromFloat(lastClose).Round(pricePrecision)
	intent := &shared.OrderIntent{
		Market: pos.Market,
		Side:   shared.SideSell,
		Price:  price,
		Volume: pos.Volume,
		Tag:    e.cfg.Tag,
	}

	result, err := e.cfg.Gateway.Submit(ctx, intent, e.cfg.Mode)
	if err != nil {
		return fmt.Errorf("submitting sell order for %s: %w", pos.Market, err)
	}
	if !result.Accepted {
		e.cfg.Notify(ctx, "Order Rejected", fmt.Sprintf("sell %s @ %s", pos.Market, price))
		return fmt.Errorf("sell order for %s declined by venue: %w", pos.Market, shared.ErrOrderRejected)
	}

	closed, err := e.cfg.Store.RecordExit(ctx, pos.ID, result.FilledPrice, now, result.Simulated)
	if err != nil {
		return fmt.Errorf("recording exit for %s: %w", pos.Market, err)
	}

	title := "Trade Closed"
	if forced {
		title = "Force Exit (FG Crash)"
	}
	e.cfg.Logger.Info().Msgf("%s: closed position %s @ %s, pnl %s, simulated %v",
		closed.Market, closed.ID, closed.ExitPrice, closed.PNL, result.Simulated)
	if !result.Simulated {
		e.cfg.Notify(ctx, title, fmt.Sprintf("%s @ %s", closed.Market, closed.ExitPrice))
	}

	return nil
}

// enter computes the buffered limit price, sizes the order from the usable
// balance and opens a position once the venue confirms the buy.
func (e *Engine) enter(ctx context.Context, snapshot *indicator.Snapshot,
	score *shared.SentimentScore, fresh bool, now time.Time) (Action, error) {
	market := snapshot.Market

	// Entries require a usable sentiment reading above the entry floor.
	if !fresh {
		e.cfg.Logger.Warn().Msgf("%s: skipping entry, no fresh sentiment score", market)
		return SkippedEntry, nil
	}
	if score.Value < e.cfg.MinFGScoreForEntry {
		e.cfg.Logger.Info().Msgf("%s: skipping entry, sentiment %d below entry floor %d",
			market, score.Value, e.cfg.MinFGScoreForEntry)
		return SkippedEntry, nil
	}

	limit := e.EntryLimitPrice(snapshot.LastClose, snapshot.ATR)
	if limit.LessThanOrEqual(decimal.Zero) {
		return Held, fmt.Errorf("%s: non-positive entry limit price %s", market, limit)
	}

	usable, err := e.cfg.Gateway.AvailableBalance(ctx, market)
	if err != nil {
		return Held, fmt.Errorf("fetching available balance for %s: %w", market, err)
	}

	volume := usable.Div(limit).RoundDown(volumePrecision)
	if volume.LessThanOrEqual(decimal.Zero) || usable.LessThan(limit.Mul(volume)) {
		// Declined entries are a logged no-op, not a failure.
		e.cfg.Logger.Warn().Msgf("%s: %v, usable %s against limit %s",
			market, shared.ErrInsufficientCapital, usable, limit)
		return SkippedEntry, nil
	}

	intent := &shared.OrderIntent{
		Market: market,
		Side:   shared.SideBuy,
		Price:  limit,
		Volume: volume,
		Tag:    e.cfg.Tag,
	}

	result, err := e.cfg.Gateway.Submit(ctx, intent, e.cfg.Mode)
	if err != nil {
		return Held, fmt.Errorf("submitting buy order for %s: %w", market, err)
	}
	if !result.Accepted {
		e.cfg.Notify(ctx, "Order Rejected", fmt.Sprintf("buy %s @ %s", market, limit))
		return Held, fmt.Errorf("buy order for %s declined by venue: %w", market, shared.ErrOrderRejected)
	}

	pos, err := e.cfg.Store.RecordEntry(ctx, market, result.FilledPrice, volume,
		e.cfg.Tag, now, result.Reference, result.Simulated)
	if err != nil {
		return Held, fmt.Errorf("recording entry for %s: %w", market, err)
	}

	e.cfg.Logger.Info().Msgf("%s: opened position %s @ %s, volume %s, simulated %v",
		market, pos.ID, pos.EntryPrice, pos.Volume, result.Simulated)
	if !result.Simulated {
		e.cfg.Notify(ctx, "Trade Executed (Flip Entry)", fmt.Sprintf("%s @ %s", market, pos.EntryPrice))
	}

	return Entered, nil
}
