// Package service wires the trading bot together and drives its cycles.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/lukaw/swingbot/database"
	"github.com/lukaw/swingbot/engine"
	"github.com/lukaw/swingbot/indicator"
	"github.com/lukaw/swingbot/position"
	"github.com/lukaw/swingbot/shared"
	"github.com/lukaw/swingbot/strategy"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// dustThreshold is the venue balance below which a holding is treated
	// as gone when sweeping phantom positions.
	dustThreshold = "0.00001"
	// reportWindow is the aggregation window for performance reports.
	reportWindow = 30 * 24 * time.Hour
)

// BotConfig represents the configuration struct for the trading bot service.
type BotConfig struct {
	// Markets represents the traded markets.
	Markets []string
	// Mode is the bot run mode.
	Mode shared.Mode
	// Tag labels positions opened by this bot.
	Tag string
	// CandleInterval is the candle timeframe driving decisions.
	CandleInterval time.Duration
	// CandleHistory is the number of candles fetched per market each cycle.
	CandleHistory int
	// Lookback is the indicator lookback period.
	Lookback int
	// SupertrendMultiplier scales the supertrend volatility bands.
	SupertrendMultiplier float64
	// EntryBuffer scales the ATR offset added to entry limit prices.
	EntryBuffer float64
	// RSIExitThreshold is the overbought exit level.
	RSIExitThreshold float64
	// RSIEntryCeiling is the level above which entries are suppressed.
	RSIEntryCeiling float64
	// DangerFGScoreForExit is the sentiment level forcing positions out.
	DangerFGScoreForExit int
	// MinFGScoreForEntry is the sentiment floor for entries.
	MinFGScoreForEntry int
	// SentimentStaleness bounds how old a usable sentiment score may be.
	SentimentStaleness time.Duration
	// CycleInterval schedules repeated cycles when positive, otherwise the
	// bot runs a single cycle and returns.
	CycleInterval time.Duration
	// Retry is the retry policy for transient venue failures.
	Retry shared.RetryPolicy

	// Candles is the market candle source.
	Candles shared.CandleFetcher
	// Sentiment is the sentiment score source.
	Sentiment shared.SentimentSource
	// Gateway is the execution venue adapter.
	Gateway shared.ExecutionGateway
	// Notifier delivers trade alerts.
	Notifier shared.Notifier
	// Store is the position store.
	Store *position.Store
	// BaseBalances reports the venue balances of the given markets' base
	// assets in one fetch.
	BaseBalances func(ctx context.Context, markets []string) (map[string]decimal.Decimal, error)
	// Performance aggregates closed-position performance since a time.
	Performance func(ctx context.Context, since time.Time) (*database.Performance, error)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *BotConfig) Validate() error {
	var errs error

	if cfg.CandleInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("candle interval must be positive, got %s", cfg.CandleInterval))
	}
	if cfg.Lookback < 1 {
		errs = errors.Join(errs, fmt.Errorf("lookback must be positive, got %d", cfg.Lookback))
	}
	if cfg.CandleHistory < cfg.Lookback+1 {
		errs = errors.Join(errs, fmt.Errorf("candle history %d cannot cover lookback %d",
			cfg.CandleHistory, cfg.Lookback))
	}
	if cfg.Candles == nil {
		errs = errors.Join(errs, fmt.Errorf("candle source cannot be nil"))
	}
	if cfg.Sentiment == nil {
		errs = errors.Join(errs, fmt.Errorf("sentiment source cannot be nil"))
	}
	if cfg.Gateway == nil {
		errs = errors.Join(errs, fmt.Errorf("execution gateway cannot be nil"))
	}
	if cfg.Notifier == nil {
		errs = errors.Join(errs, fmt.Errorf("notifier cannot be nil"))
	}
	if cfg.Store == nil {
		errs = errors.Join(errs, fmt.Errorf("position store cannot be nil"))
	}
	if cfg.BaseBalances == nil {
		errs = errors.Join(errs, fmt.Errorf("base balances function cannot be nil"))
	}
	if cfg.Performance == nil {
		errs = errors.Join(errs, fmt.Errorf("performance function cannot be nil"))
	}
	err := cfg.Retry.Validate()
	if err != nil {
		errs = errors.Join(errs, err)
	}

	return errs
}

// retryingGateway decorates the execution gateway with the retry policy so
// downstream decision logic stays free of I/O retry concerns.
type retryingGateway struct {
	inner  shared.ExecutionGateway
	policy *shared.RetryPolicy
}

func (g *retryingGateway) Submit(ctx context.Context, intent *shared.OrderIntent,
	mode shared.Mode) (*shared.OrderResult, error) {
	var result *shared.OrderResult
	err := shared.Retry(ctx, g.policy, func(ctx context.Context) error {
		var serr error
		result, serr = g.inner.Submit(ctx, intent, mode)
		return serr
	})
	return result, err
}

func (g *retryingGateway) OpenOrders(ctx context.Context) ([]shared.ExternalOrder, error) {
	var orders []shared.ExternalOrder
	err := shared.Retry(ctx, g.policy, func(ctx context.Context) error {
		var ferr error
		orders, ferr = g.inner.OpenOrders(ctx)
		return ferr
	})
	return orders, err
}

func (g *retryingGateway) AvailableBalance(ctx context.Context, market string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := shared.Retry(ctx, g.policy, func(ctx context.Context) error {
		var ferr error
		balance, ferr = g.inner.AvailableBalance(ctx, market)
		return ferr
	})
	return balance, err
}

// Bot represents the trading bot service.
type Bot struct {
	cfg          *BotConfig
	strategyCfg  strategy.Config
	gateway      shared.ExecutionGateway
	engine       *engine.Engine
	jobScheduler *gocron.Scheduler
	logger       *zerolog.Logger
}

// NewBot initializes a new trading bot service.
func NewBot(cfg *BotConfig) (*Bot, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating bot config: %w", err)
	}

	strategyCfg := strategy.Config{
		RSIExitThreshold: cfg.RSIExitThreshold,
		RSIEntryCeiling:  cfg.RSIEntryCeiling,
	}
	err = strategyCfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating strategy config: %w", err)
	}

	notifyFunc := func(ctx context.Context, title string, message string) {
		nerr := cfg.Notifier.Notify(ctx, title, message)
		if nerr != nil {
			cfg.Logger.Error().Msgf("sending notification %q: %v", title, nerr)
		}
	}

	venue := &retryingGateway{inner: cfg.Gateway, policy: &cfg.Retry}

	engineLogger := cfg.Logger.With().Str("component", "engine").Logger()
	eng, err := engine.NewEngine(&engine.Config{
		Tag:                  cfg.Tag,
		Mode:                 cfg.Mode,
		EntryBuffer:          cfg.EntryBuffer,
		DangerFGScoreForExit: cfg.DangerFGScoreForExit,
		MinFGScoreForEntry:   cfg.MinFGScoreForEntry,
		SentimentStaleness:   cfg.SentimentStaleness,
		Store:                cfg.Store,
		Gateway:              venue,
		Notify:               notifyFunc,
		Logger:               &engineLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating decision engine: %w", err)
	}

	bot := &Bot{
		cfg:          cfg,
		strategyCfg:  strategyCfg,
		gateway:      venue,
		engine:       eng,
		jobScheduler: gocron.NewScheduler(time.UTC),
		logger:       cfg.Logger,
	}

	return bot, nil
}

// sweepPhantomPositions closes tracked open positions whose holdings no
// longer exist on the venue, using their entry price so no pnl is invented.
// Balances for all open markets are fetched once per sweep.
func (b *Bot) sweepPhantomPositions(ctx context.Context) {
	open := b.cfg.Store.OpenPositions("")
	if len(open) == 0 {
		return
	}

	seen := make(map[string]struct{}, len(open))
	markets := make([]string, 0, len(open))
	for _, pos := range open {
		if _, ok := seen[pos.Market]; ok {
			continue
		}
		seen[pos.Market] = struct{}{}
		markets = append(markets, pos.Market)
	}

	balances, err := b.cfg.BaseBalances(ctx, markets)
	if err != nil {
		b.logger.Warn().Msgf("fetching base balances: %v", err)
		return
	}

	dust := decimal.RequireFromString(dustThreshold)
	for _, pos := range open {
		if balances[pos.Market].LessThan(dust) {
			b.logger.Info().Msgf("removing phantom position %s for %s, no venue balance",
				pos.ID, pos.Market)
			_, err = b.cfg.Store.RecordExit(ctx, pos.ID, pos.EntryPrice, time.Now().UTC(), true)
			if err != nil {
				b.logger.Error().Msgf("closing phantom position %s: %v", pos.ID, err)
			}
		}
	}
}

// reconcile aligns the store with persisted and venue state before a cycle.
func (b *Bot) reconcile(ctx context.Context) error {
	err := b.cfg.Store.SyncFromStore(ctx)
	if err != nil {
		return fmt.Errorf("syncing open positions from store: %w", err)
	}

	b.sweepPhantomPositions(ctx)

	orders, err := b.gateway.OpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("fetching venue open orders: %w", err)
	}

	synced, err := b.cfg.Store.SyncFromExchange(ctx, orders)
	if err != nil {
		return fmt.Errorf("reconciling venue orders: %w", err)
	}
	if synced > 0 {
		b.logger.Info().Msgf("reconciled %d venue orders into the store", synced)
	}

	return nil
}

// processMarket runs the decision pass for a single market.
func (b *Bot) processMarket(ctx context.Context, market string, score *shared.SentimentScore,
	now time.Time) (engine.Action, error) {
	var candles []shared.Candlestick
	err := shared.Retry(ctx, &b.cfg.Retry, func(ctx context.Context) error {
		var ferr error
		candles, ferr = b.cfg.Candles.FetchCandles(ctx, market, b.cfg.CandleInterval, b.cfg.CandleHistory)
		return ferr
	})
	if err != nil {
		return engine.Held, fmt.Errorf("fetching candles for %s: %w", market, err)
	}

	snapshot, err := indicator.Compute(candles, b.cfg.Lookback, b.cfg.SupertrendMultiplier)
	if err != nil {
		return engine.Held, fmt.Errorf("computing indicators for %s: %w", market, err)
	}

	eval := strategy.Evaluate(snapshot, &b.strategyCfg)

	b.logger.Info().Msgf("%s: close %.2f, supertrend %.2f, trend %s, rsi %.2f, signal %s",
		market, snapshot.LastClose, snapshot.Supertrend, snapshot.Trend.String(),
		snapshot.RSI, eval.Signal.String())

	return b.engine.ProcessMarket(ctx, snapshot, eval, score, now)
}

// RunCycle executes one full trading cycle: reconcile state, fetch the
// sentiment score and evaluate each market sequentially. A failing market
// aborts only its own transition.
func (b *Bot) RunCycle(ctx context.Context) error {
	now := time.Now().UTC()

	err := b.reconcile(ctx)
	if err != nil {
		return err
	}

	score, err := b.cfg.Sentiment.Score(ctx, now)
	if err != nil {
		// The engine disables its sentiment gates without a usable score.
		b.logger.Warn().Msgf("fetching sentiment score: %v", err)
		score = nil
	} else {
		b.logger.Info().Msgf("fear & greed score: %d", score.Value)
	}

	var acted bool
	for _, market := range b.cfg.Markets {
		action, err := b.processMarket(ctx, market, score, now)
		switch {
		case errors.Is(err, shared.ErrInsufficientData):
			b.logger.Warn().Msgf("%s: skipping market: %v", market, err)
			continue
		case shared.Transient(err):
			b.logger.Warn().Msgf("%s: skipping market after retries: %v", market, err)
			continue
		case err != nil:
			b.logger.Error().Msgf("%s: aborting market cycle: %v", market, err)
			continue
		}

		b.logger.Info().Msgf("%s: %s", market, action.String())
		if action != engine.Held {
			acted = true
		}
	}

	if !acted {
		b.logger.Info().Msg("no trading actions taken in this cycle")
	}

	return nil
}

// RunReport aggregates performance over the report window and delivers the
// summary, performing no trading side effects.
func (b *Bot) RunReport(ctx context.Context) error {
	since := time.Now().UTC().Add(-reportWindow)

	perf, err := b.cfg.Performance(ctx, since)
	if err != nil {
		return fmt.Errorf("aggregating monthly performance: %w", err)
	}

	if b.cfg.Mode.DryRun() {
		b.logger.Info().Msgf("monthly report:\n%s", perf)
		return nil
	}

	err = b.cfg.Notifier.Notify(ctx, "Monthly Report", perf.String())
	if err != nil {
		return fmt.Errorf("delivering monthly report: %w", err)
	}

	return nil
}

// Run handles the lifecycle of the trading bot. Without a cycle interval a
// single cycle runs and the service returns, otherwise cycles are scheduled
// until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if b.cfg.CycleInterval <= 0 {
		return b.RunCycle(ctx)
	}

	_, err := b.jobScheduler.Every(b.cfg.CycleInterval).Do(func() {
		cerr := b.RunCycle(ctx)
		if cerr != nil {
			b.logger.Error().Msgf("trading cycle failed: %v", cerr)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling trading cycles: %w", err)
	}

	b.jobScheduler.StartAsync()
	<-ctx.Done()
	b.jobScheduler.Stop()

	return nil
}
