package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/lukaw/swingbot/database"
	"github.com/lukaw/swingbot/fetch"
	"github.com/lukaw/swingbot/gateway"
	"github.com/lukaw/swingbot/notify"
	"github.com/lukaw/swingbot/position"
	"github.com/lukaw/swingbot/sentiment"
	"github.com/lukaw/swingbot/service"
	"github.com/lukaw/swingbot/shared"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/shopspring/decimal"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Error().Msgf("loading config: %v", err)
		return
	}

	mode, err := shared.ParseMode(cfg.Mode)
	if err != nil {
		log.Error().Msgf("parsing bot mode: %v", err)
		return
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	if mode.Debug() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	logger := log.With().Str("service", "swingbot").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feeRate := decimal.NewFromFloat(cfg.FeeRate)

	dbLogger := logger.With().Str("component", "database").Logger()
	db, err := database.New(ctx, &database.Config{
		Endpoint: cfg.DBEndpoint,
		User:     cfg.DBUser,
		Pass:     cfg.DBPass,
		Logger:   &dbLogger,
	})
	if err != nil {
		logger.Error().Msgf("creating database: %v", err)
		return
	}

	storeLogger := logger.With().Str("component", "positionstore").Logger()
	store, err := position.NewStore(&position.StoreConfig{
		FeeRate:           feeRate,
		SyncTag:           cfg.TradeTag,
		PersistPosition:   db.PersistPosition,
		PersistTrade:      db.PersistTrade,
		LoadOpenPositions: db.LoadOpenPositions,
		Logger:            &storeLogger,
	})
	if err != nil {
		logger.Error().Msgf("creating position store: %v", err)
		return
	}

	fetcher, err := fetch.NewKrakenClient(&fetch.KrakenConfig{BaseURL: fetch.BaseURL})
	if err != nil {
		logger.Error().Msgf("creating candle client: %v", err)
		return
	}

	scorerLogger := logger.With().Str("component", "sentiment").Logger()
	scorer, err := sentiment.NewScorer(&sentiment.ScorerConfig{
		BaseURL:  sentiment.BaseURL,
		CacheTTL: time.Duration(cfg.SentimentStalenessMinutes) * time.Minute,
		Logger:   &scorerLogger,
	})
	if err != nil {
		logger.Error().Msgf("creating sentiment scorer: %v", err)
		return
	}

	gatewayLogger := logger.With().Str("component", "gateway").Logger()
	venue, err := gateway.NewKraken(&gateway.KrakenConfig{
		BaseURL:   gateway.BaseURL,
		APIKey:    cfg.KrakenAPIKey,
		APISecret: cfg.KrakenAPISecret,
		FeeRate:   feeRate,
		Logger:    &gatewayLogger,
	})
	if err != nil {
		logger.Error().Msgf("creating execution gateway: %v", err)
		return
	}

	notifierLogger := logger.With().Str("component", "notifier").Logger()
	notifier, err := notify.NewPushover(&notify.PushoverConfig{
		BaseURL: notify.BaseURL,
		Token:   cfg.PushoverToken,
		UserKey: cfg.PushoverUser,
		Logger:  &notifierLogger,
	})
	if err != nil {
		logger.Error().Msgf("creating notifier: %v", err)
		return
	}

	bot, err := service.NewBot(&service.BotConfig{
		Markets:              cfg.Markets,
		Mode:                 mode,
		Tag:                  cfg.TradeTag,
		CandleInterval:       time.Duration(cfg.CandleIntervalMinutes) * time.Minute,
		CandleHistory:        cfg.CandleHistory,
		Lookback:             cfg.Lookback,
		SupertrendMultiplier: cfg.ATRMultiplier,
		EntryBuffer:          cfg.EntryBuffer,
		RSIExitThreshold:     cfg.RSIExitThreshold,
		RSIEntryCeiling:      cfg.RSIEntryCeiling,
		DangerFGScoreForExit: cfg.DangerFGScoreForExit,
		MinFGScoreForEntry:   cfg.MinFGScoreForEntry,
		SentimentStaleness:   time.Duration(cfg.SentimentStalenessMinutes) * time.Minute,
		CycleInterval:        time.Duration(cfg.CycleIntervalMinutes) * time.Minute,
		Retry: shared.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   time.Duration(cfg.RetryBaseDelaySeconds) * time.Second,
		},
		Candles:      fetcher,
		Sentiment:    scorer,
		Gateway:      venue,
		Notifier:     notifier,
		Store:        store,
		BaseBalances: venue.BaseBalances,
		Performance:  db.MonthlyPerformance,
		Logger:       &logger,
	})
	if err != nil {
		logger.Error().Msgf("creating trading bot: %v", err)
		return
	}

	go handleTermination(ctx, cancel)

	if cfg.Report {
		err = bot.RunReport(ctx)
		if err != nil {
			logger.Error().Msgf("running performance report: %v", err)
			os.Exit(1)
		}
		return
	}

	err = bot.Run(ctx)
	if err != nil {
		logger.Error().Msgf("running trading bot: %v", err)
		os.Exit(1)
	}
}
