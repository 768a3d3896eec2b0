package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lukaw/swingbot/indicator"
	"github.com/lukaw/swingbot/position"
	"github.com/lukaw/swingbot/shared"
	"github.com/lukaw/swingbot/strategy"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.uber.org/atomic"
)

// fakeGateway simulates an execution venue for engine tests.
type fakeGateway struct {
	balance     decimal.Decimal
	reject      bool
	submitErr   error
	submissions atomic.Int64
	lastIntent  *shared.OrderIntent
}

func (g *fakeGateway) Submit(ctx context.Context, intent *shared.OrderIntent, mode shared.Mode) (*shared.OrderResult, error) {
	g.submissions.Inc()
	g.lastIntent = intent

	if g.submitErr != nil {
		return nil, g.submitErr
	}
	if g.reject {
		return &shared.OrderResult{Accepted: false}, nil
	}

	return &shared.OrderResult{
		Accepted:    true,
		FilledPrice: intent.Price,
		Reference:   "TX-FAKE",
		Simulated:   mode.DryRun(),
	}, nil
}

func (g *fakeGateway) OpenOrders(ctx context.Context) ([]shared.ExternalOrder, error) {
	return nil, nil
}

func (g *fakeGateway) AvailableBalance(ctx context.Context, market string) (decimal.Decimal, error) {
	return g.balance, nil
}

func setupEngine(t *testing.T, mode shared.Mode) (*Engine, *position.Store, *fakeGateway, chan string) {
	t.Helper()

	store, err := position.NewStore(&position.StoreConfig{
		FeeRate: decimal.Zero,
		SyncTag: "swing",
		PersistPosition: func(ctx context.Context, pos *position.Position) error {
			return nil
		},
		PersistTrade: func(ctx context.Context, trade *position.Trade) error {
			return nil
		},
		LoadOpenPositions: func(ctx context.Context) ([]*position.Position, error) {
			return nil, nil
		},
		Logger: &log.Logger,
	})
	assert.NoError(t, err)

	gateway := &fakeGateway{balance: decimal.NewFromInt(10000)}
	alerts := make(chan string, 10)

	eng, err := NewEngine(&Config{
		Tag:                  "swing",
		Mode:                 mode,
		EntryBuffer:          1.5,
		DangerFGScoreForExit: 15,
		MinFGScoreForEntry:   30,
		SentimentStaleness:   time.Hour,
		Store:                store,
		Gateway:              gateway,
		Notify: func(ctx context.Context, title string, message string) {
			alerts <- title
		},
		Logger: &log.Logger,
	})
	assert.NoError(t, err)

	return eng, store, gateway, alerts
}

func bullishSnapshot(market string, close float64, atr float64) *indicator.Snapshot {
	return &indicator.Snapshot{
		Market:    market,
		LastClose: close,
		RSI:       55,
		ATR:       atr,
		Trend:     shared.Bullish,
		PrevTrend: shared.Bearish,
	}
}

func freshScore(value int, now time.Time) *shared.SentimentScore {
	return &shared.SentimentScore{Value: value, Timestamp: now}
}

func TestEngineEntry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	eng, store, gateway, _ := setupEngine(t, shared.Prod)

	// Ensure a buy signal with a fresh flip opens a position at the
	// buffered limit price: round(100 + 1.5*2, 2) = 103.00.
	snapshot := bullishSnapshot("BTC/USD", 100, 2)
	eval := strategy.Evaluation{Signal: shared.Buy, TrendFlipBullish: true}

	action, err := eng.ProcessMarket(ctx, snapshot, eval, freshScore(50, now), now)
	assert.NoError(t, err)
	assert.Equal(t, action, Entered)
	assert.True(t, gateway.lastIntent.Price.Equal(decimal.NewFromFloat(103.00)))

	pos, ok := store.OpenPosition("BTC/USD", "swing")
	assert.True(t, ok)
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromFloat(103.00)))
}

func TestEngineEntryRequiresFlipAndSignal(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	eng, store, gateway, _ := setupEngine(t, shared.Prod)

	snapshot := bullishSnapshot("BTC/USD", 100, 2)
	score := freshScore(50, now)

	// Ensure a buy signal without a fresh flip is a no-op.
	action, err := eng.ProcessMarket(ctx, snapshot,
		strategy.Evaluation{Signal: shared.Buy, TrendFlipBullish: false}, score, now)
	assert.NoError(t, err)
	assert.Equal(t, action, Held)

	// Ensure a flip without a buy signal is a no-op.
	action, err = eng.ProcessMarket(ctx, snapshot,
		strategy.Evaluation{Signal: shared.Hold, TrendFlipBullish: true}, score, now)
	assert.NoError(t, err)
	assert.Equal(t, action, Held)

	assert.Equal(t, gateway.submissions.Load(), int64(0))
	assert.Equal(t, len(store.OpenPositions("")), 0)
}

func TestEngineForcedExitPriority(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	eng, store, _, _ := setupEngine(t, shared.Prod)

	_, err := store.RecordEntry(ctx, "BTC/USD", decimal.NewFromInt(100),
		decimal.NewFromInt(1), "swing", now.Add(-time.Hour), "", false)
	assert.NoError(t, err)

	// Ensure a sentiment crash forces an exit even with a simultaneous buy
	// signal, never a new entry.
	snapshot := bullishSnapshot("BTC/USD", 110, 2)
	eval := strategy.Evaluation{Signal: shared.Buy, TrendFlipBullish: true}

	action, err := eng.ProcessMarket(ctx, snapshot, eval, freshScore(10, now), now)
	assert.NoError(t, err)
	assert.Equal(t, action, ForcedExit)
	assert.Equal(t, len(store.OpenPositions("")), 0)
}

func TestEngineNormalExit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	eng, store, _, _ := setupEngine(t, shared.Prod)

	_, err := store.RecordEntry(ctx, "ETH/USD", decimal.NewFromInt(100),
		decimal.NewFromInt(2), "swing", now.Add(-time.Hour), "", false)
	assert.NoError(t, err)

	// Ensure an overbought sell signal with healthy sentiment closes the
	// position through the normal exit, with pnl (110-100)*2 = 20.
	snapshot := &indicator.Snapshot{
		Market:    "ETH/USD",
		LastClose: 110,
		RSI:       75,
		ATR:       2,
		Trend:     shared.Bullish,
		PrevTrend: shared.Bullish,
	}
	eval := strategy.Evaluation{Signal: shared.Sell}

	action, err := eng.ProcessMarket(ctx, snapshot, eval, freshScore(50, now), now)
	assert.NoError(t, err)
	assert.Equal(t, action, NormalExit)
	assert.Equal(t, len(store.OpenPositions("")), 0)
}

func TestEngineSentimentGates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	eng, store, gateway, _ := setupEngine(t, shared.Prod)

	snapshot := bullishSnapshot("BTC/USD", 100, 2)
	eval := strategy.Evaluation{Signal: shared.Buy, TrendFlipBullish: true}

	// Ensure fearful sentiment below the entry floor suppresses the entry.
	action, err := eng.ProcessMarket(ctx, snapshot, eval, freshScore(20, now), now)
	assert.NoError(t, err)
	assert.Equal(t, action, SkippedEntry)

	// Ensure a stale score suppresses the entry rather than acting on it.
	stale := &shared.SentimentScore{Value: 80, Timestamp: now.Add(-2 * time.Hour)}
	action, err = eng.ProcessMarket(ctx, snapshot, eval, stale, now)
	assert.NoError(t, err)
	assert.Equal(t, action, SkippedEntry)

	// Ensure a stale crash score does not force an open position out.
	_, err = store.RecordEntry(ctx, "ETH/USD", decimal.NewFromInt(100),
		decimal.NewFromInt(1), "swing", now.Add(-time.Hour), "", false)
	assert.NoError(t, err)

	holdSnapshot := &indicator.Snapshot{
		Market:    "ETH/USD",
		LastClose: 105,
		RSI:       50,
		ATR:       2,
		Trend:     shared.Bullish,
		PrevTrend: shared.Bullish,
	}
	staleCrash := &shared.SentimentScore{Value: 5, Timestamp: now.Add(-2 * time.Hour)}
	action, err = eng.ProcessMarket(ctx, holdSnapshot, strategy.Evaluation{Signal: shared.Hold},
		staleCrash, now)
	assert.NoError(t, err)
	assert.Equal(t, action, Held)
	assert.Equal(t, len(store.OpenPositions("ETH/USD")), 1)

	assert.Equal(t, gateway.submissions.Load(), int64(0))
}

func TestEngineInsufficientCapital(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	eng, store, gateway, _ := setupEngine(t, shared.Prod)

	// Ensure an empty balance declines the entry as a logged no-op.
	gateway.balance = decimal.Zero
	snapshot := bullishSnapshot("BTC/USD", 100, 2)
	eval := strategy.Evaluation{Signal: shared.Buy, TrendFlipBullish: true}

	action, err := eng.ProcessMarket(ctx, snapshot, eval, freshScore(50, now), now)
	assert.NoError(t, err)
	assert.Equal(t, action, SkippedEntry)
	assert.Equal(t, gateway.submissions.Load(), int64(0))
	assert.Equal(t, len(store.OpenPositions("")), 0)
}

func TestEngineOrderRejected(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	eng, store, gateway, alerts := setupEngine(t, shared.Prod)

	// Ensure a venue rejection surfaces and leaves the store untouched.
	gateway.reject = true
	snapshot := bullishSnapshot("BTC/USD", 100, 2)
	eval := strategy.Evaluation{Signal: shared.Buy, TrendFlipBullish: true}

	_, err := eng.ProcessMarket(ctx, snapshot, eval, freshScore(50, now), now)
	assert.True(t, errors.Is(err, shared.ErrOrderRejected))
	assert.Equal(t, len(store.OpenPositions("")), 0)
	assert.Equal(t, <-alerts, "Order Rejected")
}

func TestEngineDryRunMutations(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	eng, store, _, alerts := setupEngine(t, shared.Test)

	// Ensure dry-run acceptance produces the same store writes as live.
	snapshot := bullishSnapshot("BTC/USD", 100, 2)
	eval := strategy.Evaluation{Signal: shared.Buy, TrendFlipBullish: true}

	action, err := eng.ProcessMarket(ctx, snapshot, eval, freshScore(50, now), now)
	assert.NoError(t, err)
	assert.Equal(t, action, Entered)

	pos, ok := store.OpenPosition("BTC/USD", "swing")
	assert.True(t, ok)
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromFloat(103.00)))

	// Ensure simulated fills do not page anyone.
	assert.Equal(t, len(alerts), 0)
}

func TestEngineNotifyContext(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "cycle")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	store, err := position.NewStore(&position.StoreConfig{
		FeeRate: decimal.Zero,
		SyncTag: "swing",
		PersistPosition: func(ctx context.Context, pos *position.Position) error {
			return nil
		},
		PersistTrade: func(ctx context.Context, trade *position.Trade) error {
			return nil
		},
		LoadOpenPositions: func(ctx context.Context) ([]*position.Position, error) {
			return nil, nil
		},
		Logger: &log.Logger,
	})
	assert.NoError(t, err)

	notifyCtxs := make(chan context.Context, 1)
	eng, err := NewEngine(&Config{
		Tag:                  "swing",
		Mode:                 shared.Prod,
		EntryBuffer:          1.5,
		DangerFGScoreForExit: 15,
		MinFGScoreForEntry:   30,
		SentimentStaleness:   time.Hour,
		Store:                store,
		Gateway:              &fakeGateway{balance: decimal.NewFromInt(10000)},
		Notify: func(ctx context.Context, title string, message string) {
			notifyCtxs <- ctx
		},
		Logger: &log.Logger,
	})
	assert.NoError(t, err)

	// Ensure the cycle context reaches the notifier so alerts honor
	// cancellation.
	snapshot := bullishSnapshot("BTC/USD", 100, 2)
	eval := strategy.Evaluation{Signal: shared.Buy, TrendFlipBullish: true}

	_, err = eng.ProcessMarket(ctx, snapshot, eval, freshScore(50, now), now)
	assert.NoError(t, err)
	assert.Equal(t, (<-notifyCtxs).Value(ctxKey{}), "cycle")
}
