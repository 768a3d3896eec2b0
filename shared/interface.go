package shared

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CandleFetcher defines the requirements for fetching market candle data.
type CandleFetcher interface {
	// FetchCandles fetches an ordered candlestick series for the market.
	FetchCandles(ctx context.Context, market string, interval time.Duration, limit int) ([]Candlestick, error)
}

// SentimentSource defines the requirements for fetching sentiment scores.
type SentimentSource interface {
	// Score returns the current Fear & Greed score, possibly from cache.
	Score(ctx context.Context, now time.Time) (*SentimentScore, error)
}

// ExecutionGateway defines the requirements for submitting orders to a venue.
type ExecutionGateway interface {
	// Submit places the provided order intent, simulating acceptance in dry-run mode.
	Submit(ctx context.Context, intent *OrderIntent, mode Mode) (*OrderResult, error)
	// OpenOrders reports the venue's currently open orders.
	OpenOrders(ctx context.Context) ([]ExternalOrder, error)
	// AvailableBalance reports the usable quote balance for the market.
	AvailableBalance(ctx context.Context, market string) (decimal.Decimal, error)
}

// Notifier defines the requirements for sending alerts.
type Notifier interface {
	// Notify sends the provided alert message.
	Notify(ctx context.Context, title string, message string) error
}
